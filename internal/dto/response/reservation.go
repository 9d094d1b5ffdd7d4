package response

import (
	"time"

	"cinema-reservation/internal/data/entity"
	"cinema-reservation/internal/notify"
	"cinema-reservation/internal/usecase"
)

type ReservationResponse struct {
	ID          string                   `json:"id"`
	ScreeningID string                   `json:"screening_id"`
	SeatID      string                   `json:"seat_id"`
	Status      entity.ReservationStatus `json:"status"`
	ExpiresAt   time.Time                `json:"expires_at"`
	CreatedAt   time.Time                `json:"created_at"`
}

type ReserveResponse struct {
	Reservations []ReservationResponse `json:"reservations"`
	ExpiresAt    time.Time             `json:"expires_at"`
}

type ToggleResponse struct {
	Action      usecase.ToggleAction `json:"action"`
	SeatID      string               `json:"seat_id"`
	Reservation *ReservationResponse `json:"reservation,omitempty"`
	ExpiresAt   *time.Time           `json:"expires_at,omitempty"`
}

type CancelResponse struct {
	Cancelled int      `json:"cancelled"`
	SeatIDs   []string `json:"seat_ids"`
}

type CleanupResponse struct {
	Expired    int                           `json:"expired"`
	Screenings map[string][]notify.SeatEvent `json:"screenings"`
	RanAt      time.Time                     `json:"ran_at"`
	DurationMs int64                         `json:"duration_ms"`
}

// Helper converters
func ReservationToResponse(res *entity.Reservation) ReservationResponse {
	return ReservationResponse{
		ID:          res.ID.String(),
		ScreeningID: res.ScreeningID.String(),
		SeatID:      res.SeatID.String(),
		Status:      res.Status,
		ExpiresAt:   res.ExpiresAt,
		CreatedAt:   res.CreatedAt,
	}
}

func ReservationsToResponse(reservations []*entity.Reservation) []ReservationResponse {
	out := make([]ReservationResponse, len(reservations))
	for i, res := range reservations {
		out[i] = ReservationToResponse(res)
	}
	return out
}

func ReserveResultToResponse(result *usecase.ReserveResult) ReserveResponse {
	return ReserveResponse{
		Reservations: ReservationsToResponse(result.Reservations),
		ExpiresAt:    result.ExpiresAt,
	}
}

func ToggleResultToResponse(result *usecase.ToggleResult) ToggleResponse {
	resp := ToggleResponse{
		Action:    result.Action,
		SeatID:    result.SeatID.String(),
		ExpiresAt: result.ExpiresAt,
	}
	if result.Reservation != nil {
		res := ReservationToResponse(result.Reservation)
		resp.Reservation = &res
	}
	return resp
}

func CancelResultToResponse(result *usecase.CancelResult) CancelResponse {
	ids := make([]string, len(result.SeatIDs))
	for i, id := range result.SeatIDs {
		ids[i] = id.String()
	}
	return CancelResponse{Cancelled: result.Cancelled, SeatIDs: ids}
}

func CleanupResultToResponse(result *usecase.CleanupResult) CleanupResponse {
	screenings := make(map[string][]notify.SeatEvent, len(result.Events))
	for id, events := range result.Events {
		screenings[id.String()] = events
	}
	return CleanupResponse{
		Expired:    result.Expired,
		Screenings: screenings,
		RanAt:      result.RanAt,
		DurationMs: result.Duration.Milliseconds(),
	}
}
