package wire

import (
	"cinema-reservation/internal/adaptor"
	"cinema-reservation/internal/data/repository"
	"cinema-reservation/pkg/middleware"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func wireReservation(
	r chi.Router,
	reservationHandler *adaptor.ReservationHandler,
	repo *repository.Repository,
	log *zap.Logger,
) {
	// ==================== PUBLIC ROUTES ====================
	// Anonymous callers see the seat map; a valid session marks the caller's own holds
	r.With(middleware.OptionalAuthSession(repo.Session, log)).
		Get("/api/screenings/{id}/seats", reservationHandler.GetAvailability)

	// ==================== PROTECTED ROUTES (require auth) ====================
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthSession(repo.Session, log))

		r.Post("/api/reservations", reservationHandler.ReserveSeats)
		r.Post("/api/reservations/toggle", reservationHandler.ToggleSeat)
		r.Post("/api/reservations/extend", reservationHandler.ExtendReservations)
		r.Post("/api/reservations/cancel", reservationHandler.CancelReservations)

		r.Get("/api/user/reservations", reservationHandler.GetUserReservations)
	})

	// ==================== ADMIN ROUTES ====================
	r.Route("/api/admin/reservations", func(r chi.Router) {
		r.Use(middleware.AuthSession(repo.Session, log))
		r.Use(middleware.Admin(repo.User, log))

		// POST /api/admin/reservations/cleanup - same sweep the reaper runs
		r.Post("/cleanup", reservationHandler.CleanupExpired)
	})
}
