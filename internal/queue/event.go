// Package queue defines message payloads exchanged over the message broker
// and the consumer that turns them into emails.
package queue

import (
	"time"

	"github.com/edjs/theatre-booking/internal/model"
	"github.com/edjs/theatre-booking/internal/reservation"
)

// Queue names. Routing keys equal queue names on the default exchange.
const (
	BookingSubmittedQueue     = "booking.submitted"
	BookingStatusChangedQueue = "booking.status_changed"
)

// BookingEvent is published when a booking is submitted or changes status.
// It carries enough for downstream consumers to notify the requester
// without querying the primary database.
type BookingEvent struct {
	Kind           string                   `json:"kind"`
	Booking        reservation.Notification `json:"booking"`
	PreviousStatus model.Status             `json:"previous_status,omitempty"`
	Action         string                   `json:"action,omitempty"`
	ActorID        uint64                   `json:"actor_id,omitempty"`
	OccurredAt     time.Time                `json:"occurred_at"`
}

// Submitted reports whether ev announces a new booking.
func (ev BookingEvent) Submitted() bool { return ev.Kind == BookingSubmittedQueue }
