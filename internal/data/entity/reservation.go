package entity

import (
	"time"

	"github.com/google/uuid"
)

type ReservationStatus string

const (
	ReservationStatusActive    ReservationStatus = "active"
	ReservationStatusExpired   ReservationStatus = "expired"
	ReservationStatusCancelled ReservationStatus = "cancelled"
	ReservationStatusBooked    ReservationStatus = "booked"
)

// Reservation is a time boxed hold on one seat of one screening.
// Status only moves forward: active -> expired | cancelled | booked.
type Reservation struct {
	BaseNoDelete
	ScreeningID uuid.UUID         `db:"screening_id"`
	SeatID      uuid.UUID         `db:"seat_id"`
	UserID      uuid.UUID         `db:"user_id"`
	Status      ReservationStatus `db:"status"`
	ExpiresAt   time.Time         `db:"expires_at"`
}

// IsLive reports whether the hold still blocks the seat at now.
func (r *Reservation) IsLive(now time.Time) bool {
	return r.Status == ReservationStatusActive && r.ExpiresAt.After(now)
}
