package repository

import (
	"cinema-reservation/pkg/database"
	"cinema-reservation/pkg/utils"

	"go.uber.org/zap"
)

type Repository struct {
	Tx          database.Transactor
	User        UserRepository
	Session     SessionRepository
	Seat        SeatRepository
	Screening   ScreeningRepository
	Reservation ReservationRepository
	Ticket      TicketRepository
}

func NewRepository(db database.PgxIface, config utils.DatabaseConfig, log *zap.Logger) *Repository {
	return &Repository{
		Tx:          database.NewTxRunner(db, config.Isolation, config.LockTimeout),
		User:        NewUserRepository(db, log),
		Session:     NewSessionRepository(db, log),
		Seat:        NewSeatRepository(db, log),
		Screening:   NewScreeningRepository(db, log),
		Reservation: NewReservationRepository(db, log),
		Ticket:      NewTicketRepository(db, log),
	}
}
