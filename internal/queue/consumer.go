package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Handler processes one decoded booking event.
type Handler interface {
	HandleBookingEvent(ctx context.Context, ev BookingEvent) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev BookingEvent) error

func (f HandlerFunc) HandleBookingEvent(ctx context.Context, ev BookingEvent) error { return f(ctx, ev) }

// Consumer reads booking events from both booking queues and hands them
// to a Handler.
type Consumer struct {
	url     string
	handler Handler
	log     zerolog.Logger
}

// NewConsumer returns a Consumer for the broker at url.
func NewConsumer(url string, h Handler, log zerolog.Logger) *Consumer {
	return &Consumer{url: url, handler: h, log: log.With().Str("component", "booking-consumer").Logger()}
}

// Run connects to RabbitMQ, declares the booking queues (durable), and
// consumes until ctx is cancelled. Broker failures trigger a reconnect
// with exponential backoff; a message that cannot be handled is rejected
// without requeue so the consumer keeps going.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn().Err(err).Dur("retry_in", backoff).Msg("failed to dial broker")
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn().Err(err).Msg("consume loop ended; reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn().Err(err).Msg("set QoS failed")
	}

	deliveries := make(chan amqp.Delivery)
	done := make(chan struct{})
	defer close(done)
	for _, name := range []string{BookingSubmittedQueue, BookingStatusChangedQueue} {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", name, err)
		}
		msgs, err := ch.Consume(name, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume %s: %w", name, err)
		}
		go forward(done, msgs, deliveries)
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			if amqpErr != nil {
				return amqpErr
			}
			return errors.New("connection closed")
		case d := <-deliveries:
			if err := c.handle(ctx, d.Body); err != nil {
				c.log.Error().Err(err).Str("queue", d.RoutingKey).Msg("handle message failed")
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, body []byte) error {
	ev, err := Decode(body)
	if err != nil {
		return err
	}
	if err := c.handler.HandleBookingEvent(ctx, ev); err != nil {
		return fmt.Errorf("booking %d: %w", ev.Booking.BookingID, err)
	}
	c.log.Info().Str("kind", ev.Kind).Uint64("booking_id", ev.Booking.BookingID).Msg("booking event handled")
	return nil
}

// Decode parses a message body into a BookingEvent.
func Decode(body []byte) (BookingEvent, error) {
	var ev BookingEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return BookingEvent{}, fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Kind != BookingSubmittedQueue && ev.Kind != BookingStatusChangedQueue {
		return BookingEvent{}, fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	return ev, nil
}

func forward(done <-chan struct{}, in <-chan amqp.Delivery, out chan<- amqp.Delivery) {
	for d := range in {
		select {
		case out <- d:
		case <-done:
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
