package wire

import (
	"cinema-reservation/internal/adaptor"
	"cinema-reservation/internal/data/repository"
	"cinema-reservation/pkg/middleware"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func wireBooking(
	r chi.Router,
	bookingHandler *adaptor.BookingHandler,
	repo *repository.Repository,
	log *zap.Logger,
) {
	// ==================== PROTECTED ROUTES (require auth) ====================
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthSession(repo.Session, log))

		// POST /api/bookings/from-reservation - payment callback, safe to retry with the same key
		r.Post("/api/bookings/from-reservation", bookingHandler.BookFromReservation)

		// POST /api/bookings - reserve and book in one call
		r.Post("/api/bookings", bookingHandler.BookDirect)

		r.Get("/api/tickets/{id}", bookingHandler.GetTicket)
		r.Put("/api/tickets/{id}/cancel", bookingHandler.CancelTicket)
		r.Get("/api/tickets/payment/{ref}", bookingHandler.GetTicketsByPaymentRef)

		// GET /api/user/tickets - payment history
		r.Get("/api/user/tickets", bookingHandler.GetUserTickets)
	})
}
