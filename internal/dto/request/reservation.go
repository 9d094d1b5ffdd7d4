package request

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/google/uuid"
)

type ReserveSeatsRequest struct {
	ScreeningID string   `json:"screening_id" validate:"required,uuid"`
	SeatIDs     []string `json:"seat_ids" validate:"required,min=1,max=20,dive,uuid"`
}

type ToggleSeatRequest struct {
	ScreeningID string `json:"screening_id" validate:"required,uuid"`
	SeatID      string `json:"seat_id" validate:"required,uuid"`
}

// ExtendReservationsRequest selects holds by reservation_ids or by screening_id plus seat_ids.
type ExtendReservationsRequest struct {
	ReservationIDs    []string `json:"reservation_ids,omitempty" validate:"required_without=SeatIDs,excluded_with=SeatIDs,dive,uuid"`
	ScreeningID       string   `json:"screening_id,omitempty" validate:"required_with=SeatIDs,omitempty,uuid"`
	SeatIDs           []string `json:"seat_ids,omitempty" validate:"required_without=ReservationIDs,dive,uuid"`
	AdditionalMinutes int      `json:"additional_minutes,omitempty" validate:"omitempty,min=1"`
}

// CancelReservationsRequest cancels every hold of the caller on the screening when seat_ids is empty.
type CancelReservationsRequest struct {
	ScreeningID string   `json:"screening_id" validate:"required,uuid"`
	SeatIDs     []string `json:"seat_ids,omitempty" validate:"omitempty,dive,uuid"`
}

// ParseIDs parses ids and returns them de-duplicated in ascending order.
func ParseIDs(ids []string) ([]uuid.UUID, error) {
	parsed := make([]uuid.UUID, 0, len(ids))
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", raw, err)
		}
		parsed = append(parsed, id)
	}

	slices.SortFunc(parsed, func(a, b uuid.UUID) int {
		return bytes.Compare(a[:], b[:])
	})
	return slices.Compact(parsed), nil
}

func parseOptionalID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id %q: %w", raw, err)
	}
	return id, nil
}

func (r ReserveSeatsRequest) Parse() (uuid.UUID, []uuid.UUID, error) {
	return parseSeatSelection(r.ScreeningID, r.SeatIDs)
}

func (r ToggleSeatRequest) Parse() (uuid.UUID, uuid.UUID, error) {
	screeningID, err := uuid.Parse(r.ScreeningID)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid screening id: %w", err)
	}
	seatID, err := uuid.Parse(r.SeatID)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid seat id: %w", err)
	}
	return screeningID, seatID, nil
}

func (r ExtendReservationsRequest) Parse() (reservationIDs []uuid.UUID, screeningID uuid.UUID, seatIDs []uuid.UUID, err error) {
	if reservationIDs, err = ParseIDs(r.ReservationIDs); err != nil {
		return nil, uuid.Nil, nil, err
	}
	if screeningID, err = parseOptionalID(r.ScreeningID); err != nil {
		return nil, uuid.Nil, nil, err
	}
	if seatIDs, err = ParseIDs(r.SeatIDs); err != nil {
		return nil, uuid.Nil, nil, err
	}
	return reservationIDs, screeningID, seatIDs, nil
}

func (r CancelReservationsRequest) Parse() (uuid.UUID, []uuid.UUID, error) {
	return parseSeatSelection(r.ScreeningID, r.SeatIDs)
}
