package response

import (
	"time"

	"cinema-reservation/internal/data/entity"
	"cinema-reservation/internal/usecase"
)

type SeatAvailabilityResponse struct {
	SeatID     string            `json:"seat_id"`
	Label      string            `json:"label"`
	RowLabel   string            `json:"row_label"`
	SeatNumber int               `json:"seat_number"`
	SeatType   entity.SeatType   `json:"seat_type"`
	Status     usecase.SeatState `json:"status"`
	HolderID   *string           `json:"holder_id,omitempty"`
	ExpiresAt  *time.Time        `json:"expires_at,omitempty"`
}

type AvailabilityResponse struct {
	ScreeningID string                     `json:"screening_id"`
	MovieTitle  string                     `json:"movie_title"`
	StartsAt    time.Time                  `json:"starts_at"`
	Price       float64                    `json:"price"`
	Seats       []SeatAvailabilityResponse `json:"seats"`
}

func AvailabilityToResponse(result *usecase.AvailabilityResult) AvailabilityResponse {
	seats := make([]SeatAvailabilityResponse, len(result.Seats))
	for i, s := range result.Seats {
		seat := SeatAvailabilityResponse{
			SeatID:     s.Seat.ID.String(),
			Label:      s.Seat.Label(),
			RowLabel:   s.Seat.RowLabel,
			SeatNumber: s.Seat.SeatNumber,
			SeatType:   s.Seat.SeatType,
			Status:     s.State,
			ExpiresAt:  s.ExpiresAt,
		}
		if s.HolderID != nil {
			holder := s.HolderID.String()
			seat.HolderID = &holder
		}
		seats[i] = seat
	}

	return AvailabilityResponse{
		ScreeningID: result.Screening.ID.String(),
		MovieTitle:  result.Screening.MovieTitle,
		StartsAt:    result.Screening.StartsAt,
		Price:       result.Screening.Price,
		Seats:       seats,
	}
}
