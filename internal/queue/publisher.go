package queue

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher sends JSON messages to durable RabbitMQ queues.  Each publish
// dials its own connection, so a broker outage never wedges a shared
// channel; failed attempts are retried with exponential backoff since
// re-sending a message is idempotent for its consumers.
type Publisher struct {
	url      string
	attempts int
	backoff  time.Duration
	log      *zap.Logger
}

// NewPublisher returns a publisher for the broker at url.
func NewPublisher(url string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{url: url, attempts: 3, backoff: 200 * time.Millisecond, log: log}
}

// PublishReservation sends a reservation event.
func (p *Publisher) PublishReservation(ctx context.Context, ev ReservationEvent) error {
	return p.Publish(ctx, ReservationEventsQueue, ev)
}

// Notify sends an outbound notification.
func (p *Publisher) Notify(ctx context.Context, n Notification) error {
	if n.CreatedAt == "" {
		n.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	return p.Publish(ctx, NotificationsQueue, n)
}

// Publish marshals v and sends it as a persistent message on queue.
func (p *Publisher) Publish(ctx context.Context, queue string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}

	wait := p.backoff
	for attempt := 1; ; attempt++ {
		err = p.publishOnce(ctx, queue, body)
		if err == nil {
			return nil
		}
		p.log.Warn("rabbitmq publish failed",
			zap.String("queue", queue), zap.Int("attempt", attempt), zap.Error(err))
		if attempt >= p.attempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
}

func (p *Publisher) publishOnce(ctx context.Context, queue string, body []byte) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return err
	}

	return ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}
