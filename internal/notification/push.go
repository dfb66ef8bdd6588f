package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"parking-access-backend/internal/model"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

type pushPayload struct {
	Title string    `json:"title"`
	Body  string    `json:"body"`
	Type  AlertType `json:"type"`
	Plate string    `json:"plate,omitempty"`
}

// Pusher sends alert events to operator browsers.
type Pusher struct {
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
	log     *zap.Logger
}

// NewPusher creates a Pusher using the real web push sender.
func NewPusher(db *gorm.DB, options *webpush.Options, logger *zap.Logger) *Pusher {
	return &Pusher{
		db:      db,
		webpush: options,
		sender:  &WebPushSender{},
		log:     logger.Named("push"),
	}
}

func (p *Pusher) Name() string { return "push" }

// Deliver pushes alerts to every subscription that wants the alert type.
// Other event kinds are ignored.
func (p *Pusher) Deliver(ctx context.Context, e Event) error {
	if e.Kind != KindAlert {
		return nil
	}

	var subscriptions []model.PushSubscription
	if err := p.db.WithContext(ctx).Find(&subscriptions).Error; err != nil {
		return fmt.Errorf("failed to fetch subscriptions: %w", err)
	}
	if len(subscriptions) == 0 {
		return nil
	}

	payload, err := json.Marshal(pushPayload{
		Title: "Parking alert",
		Body:  e.Message,
		Type:  e.AlertType,
		Plate: e.Plate,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal push payload: %w", err)
	}

	for _, sub := range subscriptions {
		if !sub.Wants(string(e.AlertType)) {
			continue
		}
		p.send(ctx, sub, payload)
	}
	return nil
}

// send sends a single web push notification.
func (p *Pusher) send(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := p.sender.Send(payload, wpSub, p.webpush)
	if err != nil {
		p.log.Warn("push send failed", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		p.log.Info("subscription expired, deleting", zap.String("endpoint", sub.Endpoint))
		if err := p.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			p.log.Error("failed to delete expired subscription", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		}
	}
}
