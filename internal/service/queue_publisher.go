// Package service holds the outbound adapters of the booking core: the
// broker publisher that tells the rest of the system about bookings.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/edjs/theatre-booking/internal/lifecycle"
	"github.com/edjs/theatre-booking/internal/queue"
	"github.com/edjs/theatre-booking/internal/reservation"
)

// QueuePublisher publishes booking events to RabbitMQ. It is the
// notification collaborator of the reservation flow and the transition
// listener of the lifecycle service. Errors are logged and returned to
// allow callers to ignore failures without interrupting the main request
// flow.
type QueuePublisher struct {
	url     string
	timeout time.Duration
	log     zerolog.Logger
	now     func() time.Time
	send    func(ctx context.Context, queueName string, body []byte) error
}

var (
	_ reservation.Notifier = (*QueuePublisher)(nil)
	_ lifecycle.Listener   = (*QueuePublisher)(nil)
)

// NewQueuePublisher returns a publisher for the broker at url.
func NewQueuePublisher(url string, timeout time.Duration, log zerolog.Logger) *QueuePublisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	p := &QueuePublisher{url: url, timeout: timeout, log: log.With().Str("component", "publisher").Logger(), now: time.Now}
	p.send = p.dialAndPublish
	return p
}

// BookingSubmitted publishes a booking.submitted event.
func (p *QueuePublisher) BookingSubmitted(ctx context.Context, n reservation.Notification) error {
	return p.publish(ctx, queue.BookingEvent{
		Kind:       queue.BookingSubmittedQueue,
		Booking:    n,
		OccurredAt: p.now().UTC(),
	})
}

// StatusChanged publishes a booking.status_changed event. Failures are
// logged only.
func (p *QueuePublisher) StatusChanged(ctx context.Context, ch lifecycle.Change) {
	_ = p.publish(ctx, queue.BookingEvent{
		Kind:           queue.BookingStatusChangedQueue,
		Booking:        reservation.NotificationFor(ch.Booking, ch.Session),
		PreviousStatus: ch.From,
		Action:         string(ch.Action),
		ActorID:        ch.ActorID,
		OccurredAt:     p.now().UTC(),
	})
}

func (p *QueuePublisher) publish(ctx context.Context, ev queue.BookingEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		p.log.Error().Err(err).Msg("marshal event failed")
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.send(ctx, ev.Kind, body); err != nil {
		p.log.Error().Err(err).Str("queue", ev.Kind).Uint64("booking_id", ev.Booking.BookingID).Msg("publish failed")
		return err
	}
	return nil
}

// dialAndPublish opens a connection per message. Messages are marked as
// persistent.
func (p *QueuePublisher) dialAndPublish(ctx context.Context, queueName string, body []byte) error {
	conn, err := amqp.DialConfig(p.url, amqp.Config{Heartbeat: 10 * time.Second, Locale: "en_US", Dial: amqp.DefaultDial(p.timeout)})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		Timestamp:    p.now().UTC(),
		Body:         body,
	}
	// default exchange, routing key = queue name
	return ch.PublishWithContext(ctx, "", queueName, false, false, pub)
}
