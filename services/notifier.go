package services

import (
	"context"
	"fmt"
	"log/slog"

	pubnub "github.com/pubnub/go/v7"

	"smartqueue/config"
	"smartqueue/models"
)

// Notifier delivers a message to a ticket holder. Delivery is
// fire-and-forget from the engine's point of view: failures are logged by
// the caller and never block or fail a queue operation.
type Notifier interface {
	Notify(ctx context.Context, ticketID string, channel models.NotificationChannel, message string) error
}

// PubNubNotifier publishes to a per-ticket channel; the holder's client
// subscribes to it while waiting.
type PubNubNotifier struct {
	pn *pubnub.PubNub
}

func NewPubNubNotifier(cfg *config.Config) *PubNubNotifier {
	pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId("smartqueue-server"))
	pnConfig.PublishKey = cfg.PubNubPublishKey
	pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
	pnConfig.SecretKey = cfg.PubNubSecretKey

	return &PubNubNotifier{pn: pubnub.NewPubNub(pnConfig)}
}

func (n *PubNubNotifier) Notify(ctx context.Context, ticketID string, channel models.NotificationChannel, message string) error {
	_, _, err := n.pn.Publish().
		Channel(fmt.Sprintf("ticket-%s", ticketID)).
		Message(map[string]any{
			"type":    "queue_notification",
			"channel": string(channel),
			"message": message,
		}).
		Execute()
	if err != nil {
		return fmt.Errorf("publish to ticket-%s: %w", ticketID, err)
	}
	return nil
}

// NoopNotifier is used when no PubNub keys are configured and in tests.
type NoopNotifier struct{}

func (NoopNotifier) Notify(ctx context.Context, ticketID string, channel models.NotificationChannel, message string) error {
	slog.Debug("notification suppressed", "ticket_id", ticketID, "channel", channel)
	return nil
}
