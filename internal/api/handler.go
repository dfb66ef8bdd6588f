package api

import (
	"context"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"parking-access-backend/internal/lane"
	"parking-access-backend/internal/payment"
	"parking-access-backend/internal/store"
)

// LaneSubmitter accepts frames for one lane.
type LaneSubmitter interface {
	Submit(f lane.Frame) error
}

// Reconciler settles a session without a payment terminal.
type Reconciler interface {
	Reconcile(ctx context.Context, plate string, amount *int64) (payment.Result, error)
}

// TextReader runs OCR on an image.
type TextReader interface {
	ReadText(ctx context.Context, image []byte) ([]string, error)
}

// LiveFeed upgrades a request to the live event websocket.
type LiveFeed interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
}

// Deps are the collaborators the API handlers use. Lanes, Reconciler, OCR and
// Live may be nil; the matching endpoints then report 503 or 404.
type Deps struct {
	Store      store.Store
	Webpush    *webpush.Options
	Lanes      map[string]LaneSubmitter
	Reconciler Reconciler
	OCR        TextReader
	Live       LiveFeed
	Logger     *zap.Logger
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store      store.Store
	webpush    *webpush.Options
	lanes      map[string]LaneSubmitter
	reconciler Reconciler
	ocr        TextReader
	live       LiveFeed
	log        *zap.Logger
	now        func() time.Time
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		store:      d.Store,
		webpush:    d.Webpush,
		lanes:      d.Lanes,
		reconciler: d.Reconciler,
		ocr:        d.OCR,
		live:       d.Live,
		log:        logger.Named("api"),
		now:        time.Now,
	}
}
