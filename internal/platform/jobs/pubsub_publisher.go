package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"
	"github.com/oklog/ulid/v2"

	"github.com/exambook-store/api/internal/services"
)

// PubSubNotificationPublisher publishes rendered notifications to the email
// and WhatsApp topics drained by the delivery workers.
type PubSubNotificationPublisher struct {
	email    *pubsub.Topic
	whatsapp *pubsub.Topic
	marshal  func(any) ([]byte, error)
	newID    func() string
}

var _ services.NotificationPublisher = (*PubSubNotificationPublisher)(nil)

// NewPubSubNotificationPublisher constructs a Pub/Sub backed notification publisher.
func NewPubSubNotificationPublisher(email, whatsapp *pubsub.Topic) (*PubSubNotificationPublisher, error) {
	if email == nil {
		return nil, errors.New("pubsub notification publisher: email topic is required")
	}
	if whatsapp == nil {
		return nil, errors.New("pubsub notification publisher: whatsapp topic is required")
	}
	return &PubSubNotificationPublisher{
		email:    email,
		whatsapp: whatsapp,
		marshal:  json.Marshal,
		newID:    func() string { return ulid.Make().String() },
	}, nil
}

// PublishEmail enqueues an email message.
func (p *PubSubNotificationPublisher) PublishEmail(ctx context.Context, msg services.EmailNotification) error {
	if p == nil || p.email == nil {
		return errors.New("pubsub notification publisher: not initialised")
	}
	if strings.TrimSpace(msg.To) == "" {
		return errors.New("pubsub notification publisher: email recipient is required")
	}
	return p.publish(ctx, p.email, msg, "email", msg.OrderID, string(msg.Kind))
}

// PublishWhatsApp enqueues a WhatsApp message.
func (p *PubSubNotificationPublisher) PublishWhatsApp(ctx context.Context, msg services.WhatsAppNotification) error {
	if p == nil || p.whatsapp == nil {
		return errors.New("pubsub notification publisher: not initialised")
	}
	if strings.TrimSpace(msg.Phone) == "" {
		return errors.New("pubsub notification publisher: whatsapp phone is required")
	}
	return p.publish(ctx, p.whatsapp, msg, "whatsapp", msg.OrderID, string(msg.Kind))
}

func (p *PubSubNotificationPublisher) publish(ctx context.Context, topic *pubsub.Topic, payload any, channel, orderID, kind string) error {
	data, err := p.marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s notification: %w", channel, err)
	}

	attrs := map[string]string{
		"eventId": p.newID(),
		"channel": channel,
	}
	setAttr(attrs, "orderId", orderID)
	setAttr(attrs, "kind", kind)

	result := topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish %s notification: %w", channel, err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
