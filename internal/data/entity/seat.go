package entity

import (
	"fmt"

	"github.com/google/uuid"
)

type SeatType string

const (
	SeatTypeStandard SeatType = "standard"
	SeatTypeVIP      SeatType = "vip"
)

type Seat struct {
	ID         uuid.UUID `db:"id"`
	RoomID     uuid.UUID `db:"room_id"`
	RowLabel   string    `db:"row_label"`   // A, B, C, etc.
	SeatNumber int       `db:"seat_number"` // 1, 2, 3, etc.
	SeatType   SeatType  `db:"seat_type"`
}

// Label is the printed seat code, e.g. A1.
func (s *Seat) Label() string {
	return fmt.Sprintf("%s%d", s.RowLabel, s.SeatNumber)
}
