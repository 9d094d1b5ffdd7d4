package usecase

import (
	"cinema-reservation/internal/data/repository"
	"cinema-reservation/internal/notify"
	"cinema-reservation/pkg/utils"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

type Service struct {
	Reservation ReservationService
	Booking     BookingService
}

// NewService wires the services around one publisher. A nil publisher disables notifications.
func NewService(repo *repository.Repository, config *utils.Config, clock clockwork.Clock, publisher notify.Publisher, log *zap.Logger) *Service {
	dispatcher := notify.NewDispatcher(publisher, log)
	reservations := NewReservationService(repo, config.Reservation, clock, dispatcher, log)

	return &Service{
		Reservation: reservations,
		Booking:     NewBookingService(repo, reservations, clock, dispatcher, log),
	}
}
