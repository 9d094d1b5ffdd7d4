package request

import (
	"fmt"

	"github.com/google/uuid"
)

// BookFromReservationRequest is sent by the payment callback once a payment succeeded.
type BookFromReservationRequest struct {
	ScreeningID    string   `json:"screening_id" validate:"required,uuid"`
	SeatIDs        []string `json:"seat_ids" validate:"required,min=1,max=20,dive,uuid"`
	IdempotencyKey string   `json:"idempotency_key" validate:"required,min=1,max=100"`
}

type BookDirectRequest struct {
	ScreeningID string   `json:"screening_id" validate:"required,uuid"`
	SeatIDs     []string `json:"seat_ids" validate:"required,min=1,max=20,dive,uuid"`
}

func (r BookFromReservationRequest) Parse() (uuid.UUID, []uuid.UUID, error) {
	return parseSeatSelection(r.ScreeningID, r.SeatIDs)
}

func (r BookDirectRequest) Parse() (uuid.UUID, []uuid.UUID, error) {
	return parseSeatSelection(r.ScreeningID, r.SeatIDs)
}

func parseSeatSelection(rawScreening string, rawSeats []string) (uuid.UUID, []uuid.UUID, error) {
	screeningID, err := uuid.Parse(rawScreening)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("invalid screening id: %w", err)
	}
	seatIDs, err := ParseIDs(rawSeats)
	if err != nil {
		return uuid.Nil, nil, err
	}
	return screeningID, seatIDs, nil
}
