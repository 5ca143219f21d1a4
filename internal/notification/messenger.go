package notification

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"spot-presence-backend/internal/store"
)

// Messenger delivers a text message to a user. Implementations are
// fire-and-forget from the core's perspective: errors are logged by the
// caller and never block ledger state transitions.
type Messenger interface {
	Send(ctx context.Context, userID int64, text string) error
}

// PushSender defines the interface for sending a single web push message.
type PushSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// webPushSender is the real implementation using the webpush library.
type webPushSender struct{}

func (s *webPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WebPushMessenger delivers messages as web push notifications to every
// subscription the user has registered.
type WebPushMessenger struct {
	store   store.Store
	options *webpush.Options
	sender  PushSender
}

// NewWebPushMessenger creates a messenger backed by the given store and
// VAPID options.
func NewWebPushMessenger(s store.Store, options *webpush.Options) *WebPushMessenger {
	return &WebPushMessenger{
		store:   s,
		options: options,
		sender:  &webPushSender{},
	}
}

// Send pushes the text to all of the user's registered subscriptions.
// Delivery succeeds if at least one subscription accepted the message; a
// user with no subscriptions is not an error, just an unreachable recipient.
func (m *WebPushMessenger) Send(ctx context.Context, userID int64, text string) error {
	subs, err := m.store.SubscriptionsForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load subscriptions for user %d: %w", userID, err)
	}
	if len(subs) == 0 {
		return nil
	}

	var delivered int
	var lastErr error
	for _, sub := range subs {
		wpSub := &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys: webpush.Keys{
				P256dh: sub.P256DH,
				Auth:   sub.Auth,
			},
		}

		resp, err := m.sender.Send([]byte(text), wpSub, m.options)
		if err != nil {
			log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
			lastErr = err
			continue
		}
		resp.Body.Close()

		// Expired subscriptions are pruned on the spot.
		if resp.StatusCode == http.StatusGone {
			log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
			if err := m.store.DeletePushSubscription(ctx, sub.Endpoint); err != nil {
				log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
			}
			continue
		}
		delivered++
	}

	if delivered == 0 && lastErr != nil {
		return fmt.Errorf("all sends failed for user %d: %w", userID, lastErr)
	}
	return nil
}
