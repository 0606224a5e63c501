package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/couture-field/checkout/internal/platform/textutil"
	"github.com/couture-field/checkout/internal/services"
)

// PubSubOrderEventPublisher publishes order lifecycle events to a Pub/Sub topic.
type PubSubOrderEventPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var _ services.OrderEventPublisher = (*PubSubOrderEventPublisher)(nil)

// NewPubSubOrderEventPublisher constructs a Pub/Sub backed order event publisher.
func NewPubSubOrderEventPublisher(topic *pubsub.Topic) (*PubSubOrderEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub order event publisher: topic is required")
	}
	return &PubSubOrderEventPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishOrderEvent publishes the event with its type and order id as attributes, so subscribers
// can filter without decoding the payload.
func (p *PubSubOrderEventPublisher) PublishOrderEvent(ctx context.Context, message services.OrderEventMessage) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub order event publisher: not initialised")
	}

	data, err := p.marshal(message)
	if err != nil {
		return "", fmt.Errorf("marshal order event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "type", message.Type)
	setAttr(attrs, "orderId", message.OrderID)
	setAttr(attrs, "userId", message.UserID)
	setAttr(attrs, "paymentMethod", message.PaymentMethod)

	return publish(ctx, p.topic, data, attrs, "order event")
}

// EmailJobMessage is the payload consumed by the mail worker.
type EmailJobMessage struct {
	Template  string            `json:"template"`
	Recipient string            `json:"recipient"`
	Vars      map[string]string `json:"vars,omitempty"`
	QueuedAt  time.Time         `json:"queuedAt"`
}

// PubSubEmailScheduler schedules transactional emails by publishing jobs for the mail worker.
// Delivery is at-least-once; the worker dedupes on the orderId variable.
type PubSubEmailScheduler struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
	clock   func() time.Time
}

var _ services.EmailScheduler = (*PubSubEmailScheduler)(nil)

// NewPubSubEmailScheduler constructs a Pub/Sub backed email scheduler.
func NewPubSubEmailScheduler(topic *pubsub.Topic, clock func() time.Time) (*PubSubEmailScheduler, error) {
	if topic == nil {
		return nil, errors.New("pubsub email scheduler: topic is required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &PubSubEmailScheduler{
		topic:   topic,
		marshal: json.Marshal,
		clock:   clock,
	}, nil
}

// ScheduleSend enqueues one email job.
func (s *PubSubEmailScheduler) ScheduleSend(ctx context.Context, templateKey, recipient string, vars map[string]string) error {
	if s == nil || s.topic == nil {
		return errors.New("pubsub email scheduler: not initialised")
	}
	templateKey = strings.TrimSpace(templateKey)
	recipient = strings.TrimSpace(recipient)
	if templateKey == "" || recipient == "" {
		return errors.New("pubsub email scheduler: template and recipient are required")
	}

	message := EmailJobMessage{
		Template:  templateKey,
		Recipient: recipient,
		Vars:      textutil.TemplateVars(vars),
		QueuedAt:  s.clock().UTC(),
	}
	data, err := s.marshal(message)
	if err != nil {
		return fmt.Errorf("marshal email job: %w", err)
	}

	attrs := map[string]string{"template": templateKey}
	setAttr(attrs, "orderId", message.Vars["orderId"])
	_, err = publish(ctx, s.topic, data, attrs, "email job")
	return err
}

func publish(ctx context.Context, topic *pubsub.Topic, data []byte, attrs map[string]string, what string) (string, error) {
	result := topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish %s: %w", what, err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
