package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// mockSender is a mock implementation of the NotificationSender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// Send calls the mock SendFunc.
func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

// recordingSink collects delivered events.
type recordingSink struct {
	mu     sync.Mutex
	name   string
	events []Event
	err    error
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Deliver(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func TestWorkerPool_Notify(t *testing.T) {
	wp := NewWorkerPool(1, 4, zap.NewNop())

	wp.Notify(Entry("RAB123C"))

	select {
	case job := <-wp.Jobs():
		assert.Equal(t, KindEntry, job.Kind)
		assert.Equal(t, "RAB123C", job.Plate)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for event to be queued")
	}
}

func TestWorkerPool_NotifyNeverBlocks(t *testing.T) {
	wp := NewWorkerPool(1, 2, zap.NewNop())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			wp.Notify(Entry("RAB123C"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full queue")
	}
	assert.Len(t, wp.Jobs(), 2)
}

func TestWorkerPool_DeliversToEverySink(t *testing.T) {
	failing := &recordingSink{name: "failing", err: errors.New("backend down")}
	ok := &recordingSink{name: "ok"}
	wp := NewWorkerPool(2, 8, zap.NewNop(), failing)
	wp.AddSink(ok)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	wp.Notify(Entry("RAB123C"))
	wp.Notify(Alert("RAB123C", AlertUnpaidExitAttempt, "unpaid exit attempt"))

	assert.Eventually(t, func() bool { return ok.count() == 2 }, time.Second, 5*time.Millisecond,
		"a failing sink must not stop delivery to the others")
	assert.Equal(t, 2, failing.count())
}

func TestBackendClient_Payloads(t *testing.T) {
	type request struct {
		path string
		body map[string]any
	}
	var mu sync.Mutex
	var got []request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		got = append(got, request{path: r.URL.Path, body: body})
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewBackendClient(server.URL+"/", time.Second)
	ctx := context.Background()
	require.NoError(t, client.Deliver(ctx, Entry("RAB123C")))
	require.NoError(t, client.Deliver(ctx, Exit("RAB123C", ExitPaid)))
	require.NoError(t, client.Deliver(ctx, Exit("RAA111A", ExitUnpaidAttempt)))
	require.NoError(t, client.Deliver(ctx, Alert("", AlertDeviceNotReady, "terminal not ready")))

	require.Len(t, got, 4)
	assert.Equal(t, "/events/entry", got[0].path)
	assert.Equal(t, map[string]any{"car_plate": "RAB123C"}, got[0].body)
	assert.Equal(t, "/events/exit", got[1].path)
	assert.Equal(t, map[string]any{"car_plate": "RAB123C", "payment_status": "PAID"}, got[1].body)
	assert.Equal(t, "UNPAID_ATTEMPT", got[2].body["payment_status"])
	assert.Equal(t, "/events/alert", got[3].path)
	assert.Equal(t, map[string]any{
		"plate_number": "",
		"message":      "terminal not ready",
		"type":         "ARDUINO_TIMEOUT_READY",
	}, got[3].body)
}

func TestBackendClient_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	err := NewBackendClient(server.URL, time.Second).Deliver(context.Background(), Entry("RAB123C"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestPusher_Deliver(t *testing.T) {
	gormDB, mock := newTestDB(t)
	p := NewPusher(gormDB, &webpush.Options{}, zap.NewNop())
	ctx := context.Background()

	t.Run("ignores non-alert events", func(t *testing.T) {
		require.NoError(t, p.Deliver(ctx, Entry("RAB123C")))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("sends to matching subscriptions", func(t *testing.T) {
		var sent []string
		p.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				sent = append(sent, sub.Endpoint)
				var body pushPayload
				require.NoError(t, json.Unmarshal(payload, &body))
				assert.Equal(t, AlertUnpaidExitAttempt, body.Type)
				assert.Equal(t, "RAA111A", body.Plate)
				return &http.Response{
					StatusCode: http.StatusCreated,
					Body:       io.NopCloser(bytes.NewBufferString("")),
				}, nil
			},
		}

		mock.ExpectQuery(`SELECT \* FROM "push_subscriptions"`).
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "created_at", "alert_types"}).
				AddRow("https://example.com/all", "k1", "a1", time.Now(), "").
				AddRow("https://example.com/payments", "k2", "a2", time.Now(), "ARDUINO_TIMEOUT_CONFIRM").
				AddRow("https://example.com/exits", "k3", "a3", time.Now(), "UNPAID_EXIT_ATTEMPT, PAYMENT_DB_ERROR"))

		require.NoError(t, p.Deliver(ctx, Alert("RAA111A", AlertUnpaidExitAttempt, "unpaid exit attempt")))
		assert.Equal(t, []string{"https://example.com/all", "https://example.com/exits"}, sent)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deletes expired subscription", func(t *testing.T) {
		p.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				return &http.Response{
					StatusCode: http.StatusGone,
					Body:       io.NopCloser(bytes.NewBufferString("")),
				}, nil
			},
		}

		mock.ExpectQuery(`SELECT \* FROM "push_subscriptions"`).
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "created_at", "alert_types"}).
				AddRow("https://example.com/expired", "k", "a", time.Now(), ""))
		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM "push_subscriptions" WHERE "push_subscriptions"."endpoint" = \$1`).
			WithArgs("https://example.com/expired").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		require.NoError(t, p.Deliver(ctx, Alert("", AlertDeviceConfirmTimeout, "confirm timeout")))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query failure is returned", func(t *testing.T) {
		mock.ExpectQuery(`SELECT \* FROM "push_subscriptions"`).
			WillReturnError(errors.New("connection refused"))

		err := p.Deliver(ctx, Alert("", AlertSerialError, "serial error"))
		require.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
