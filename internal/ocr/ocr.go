// Package ocr turns camera crops into candidate plate text using AWS
// Rekognition. Validation of the text is left to the plate package.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"go.uber.org/zap"
)

// ErrEmptyImage is returned for a zero-length image.
var ErrEmptyImage = errors.New("empty image")

// TextDetector is the part of the Rekognition client the reader needs.
type TextDetector interface {
	DetectText(ctx context.Context, params *rekognition.DetectTextInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectTextOutput, error)
}

// Reader extracts text lines from images.
type Reader struct {
	client        TextDetector
	minConfidence float32
	log           *zap.Logger
}

// NewReader creates a Reader over an existing client.
func NewReader(client TextDetector, minConfidence float32, logger *zap.Logger) *Reader {
	return &Reader{client: client, minConfidence: minConfidence, log: logger.Named("ocr")}
}

// NewRekognitionReader builds a Rekognition client from the default AWS
// credential chain.
func NewRekognitionReader(ctx context.Context, region string, minConfidence float32, logger *zap.Logger) (*Reader, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewReader(rekognition.NewFromConfig(cfg), minConfidence, logger), nil
}

// ReadText returns the LINE detections at or above the confidence floor, in
// the order Rekognition reports them.
func (r *Reader) ReadText(ctx context.Context, image []byte) ([]string, error) {
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}

	out, err := r.client.DetectText(ctx, &rekognition.DetectTextInput{
		Image: &types.Image{Bytes: image},
	})
	if err != nil {
		return nil, fmt.Errorf("rekognition detect text: %w", err)
	}

	var texts []string
	for _, d := range out.TextDetections {
		if d.Type != types.TextTypesLine || d.DetectedText == nil {
			continue
		}
		conf := aws.ToFloat32(d.Confidence)
		if conf < r.minConfidence {
			r.log.Debug("dropping low confidence text", zap.String("text", *d.DetectedText), zap.Float32("confidence", conf))
			continue
		}
		if txt := strings.TrimSpace(*d.DetectedText); txt != "" {
			texts = append(texts, txt)
		}
	}
	r.log.Debug("text detected", zap.Int("detections", len(out.TextDetections)), zap.Strings("lines", texts))
	return texts, nil
}
