package response

import (
	"time"

	"cinema-reservation/internal/data/entity"
	"cinema-reservation/internal/usecase"
)

type TicketResponse struct {
	ID          string              `json:"id"`
	ScreeningID string              `json:"screening_id"`
	SeatID      string              `json:"seat_id"`
	Price       float64             `json:"price"`
	Status      entity.TicketStatus `json:"status"`
	PaymentRef  *string             `json:"payment_ref,omitempty"`
	BookedAt    time.Time           `json:"booked_at"`
	ConfirmedAt *time.Time          `json:"confirmed_at,omitempty"`
}

type BookingResponse struct {
	PaymentRef string           `json:"payment_ref"`
	TotalPrice float64          `json:"total_price"`
	Replayed   bool             `json:"replayed"`
	Tickets    []TicketResponse `json:"tickets"`
}

func TicketToResponse(ticket *entity.Ticket) TicketResponse {
	return TicketResponse{
		ID:          ticket.ID.String(),
		ScreeningID: ticket.ScreeningID.String(),
		SeatID:      ticket.SeatID.String(),
		Price:       ticket.Price,
		Status:      ticket.Status,
		PaymentRef:  ticket.PaymentRef,
		BookedAt:    ticket.BookedAt,
		ConfirmedAt: ticket.ConfirmedAt,
	}
}

func TicketsToResponse(tickets []*entity.Ticket) []TicketResponse {
	out := make([]TicketResponse, len(tickets))
	for i, t := range tickets {
		out[i] = TicketToResponse(t)
	}
	return out
}

func BookingResultToResponse(result *usecase.BookingResult) BookingResponse {
	return BookingResponse{
		PaymentRef: result.PaymentRef,
		TotalPrice: result.TotalPrice,
		Replayed:   result.Replayed,
		Tickets:    TicketsToResponse(result.Tickets),
	}
}
