package entity

import (
	"time"

	"github.com/google/uuid"
)

type TicketStatus string

const (
	TicketStatusPending   TicketStatus = "pending"
	TicketStatusConfirmed TicketStatus = "confirmed"
	TicketStatusCancelled TicketStatus = "cancelled"
)

type Ticket struct {
	ID          uuid.UUID    `db:"id"`
	ScreeningID uuid.UUID    `db:"screening_id"`
	SeatID      uuid.UUID    `db:"seat_id"`
	UserID      uuid.UUID    `db:"user_id"`
	Price       float64      `db:"price"`
	Status      TicketStatus `db:"status"`
	BookedAt    time.Time    `db:"booked_at"`
	ConfirmedAt *time.Time   `db:"confirmed_at"`
	PaymentRef  *string      `db:"payment_ref"`
	UpdatedAt   time.Time    `db:"updated_at"`
}

// HoldsSeat reports whether the ticket keeps its seat sold.
func (t *Ticket) HoldsSeat() bool {
	return t.Status == TicketStatusPending || t.Status == TicketStatusConfirmed
}
