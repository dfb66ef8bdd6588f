package ocr

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockDetector struct {
	DetectTextFunc func(ctx context.Context, params *rekognition.DetectTextInput) (*rekognition.DetectTextOutput, error)
	calls          int
}

func (m *mockDetector) DetectText(ctx context.Context, params *rekognition.DetectTextInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectTextOutput, error) {
	m.calls++
	return m.DetectTextFunc(ctx, params)
}

func detection(text string, kind types.TextTypes, conf float32) types.TextDetection {
	return types.TextDetection{DetectedText: aws.String(text), Type: kind, Confidence: aws.Float32(conf)}
}

func TestReader_ReadText(t *testing.T) {
	image := []byte{0xff, 0xd8, 0xff}
	m := &mockDetector{
		DetectTextFunc: func(ctx context.Context, params *rekognition.DetectTextInput) (*rekognition.DetectTextOutput, error) {
			assert.Equal(t, image, params.Image.Bytes)
			return &rekognition.DetectTextOutput{TextDetections: []types.TextDetection{
				detection(" RAB 123C ", types.TextTypesLine, 97.5),
				detection("RAB", types.TextTypesWord, 99),
				detection("RWANDA", types.TextTypesLine, 42),
				detection("RAC456D", types.TextTypesLine, 80),
				{Type: types.TextTypesLine, Confidence: aws.Float32(99)},
			}}, nil
		},
	}

	texts, err := NewReader(m, 80, zap.NewNop()).ReadText(context.Background(), image)
	require.NoError(t, err)
	assert.Equal(t, []string{"RAB 123C", "RAC456D"}, texts)
}

func TestReader_Errors(t *testing.T) {
	m := &mockDetector{
		DetectTextFunc: func(ctx context.Context, params *rekognition.DetectTextInput) (*rekognition.DetectTextOutput, error) {
			return nil, errors.New("throttled")
		},
	}
	r := NewReader(m, 80, zap.NewNop())

	_, err := r.ReadText(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyImage)
	assert.Zero(t, m.calls)

	_, err = r.ReadText(context.Background(), []byte{1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}
