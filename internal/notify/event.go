package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SeatStatus is the availability a seat moved to.
type SeatStatus string

const (
	SeatAvailable SeatStatus = "available"
	SeatReserved  SeatStatus = "reserved"
	SeatBooked    SeatStatus = "booked"
)

// SeatEvent is one availability change of one seat.
type SeatEvent struct {
	ScreeningID      uuid.UUID  `json:"screening_id"`
	SeatID           uuid.UUID  `json:"seat_id"`
	Status           SeatStatus `json:"status"`
	HolderID         *uuid.UUID `json:"holder_id,omitempty"`
	PreviousHolderID *uuid.UUID `json:"previous_holder_id,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	OccurredAt       time.Time  `json:"occurred_at"`
}

// MessageType tags messages pushed to subscribers.
type MessageType string

const MessageTypeSeatsUpdated MessageType = "seats_updated"

// Message is the wire envelope for a batch of events of one screening.
type Message struct {
	Type        MessageType `json:"type"`
	ScreeningID uuid.UUID   `json:"screening_id"`
	Seats       []SeatEvent `json:"seats"`
}

func NewMessage(screeningID uuid.UUID, events []SeatEvent) Message {
	return Message{
		Type:        MessageTypeSeatsUpdated,
		ScreeningID: screeningID,
		Seats:       events,
	}
}

// Publisher fans availability changes out to interested clients. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, screeningID uuid.UUID, events []SeatEvent) error
}
