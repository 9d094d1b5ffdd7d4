package usecase

import (
	"context"
	"fmt"
	"strings"

	"cinema-reservation/internal/data/entity"
	"cinema-reservation/internal/data/repository"
	"cinema-reservation/internal/dto/request"
	"cinema-reservation/internal/notify"
	"cinema-reservation/pkg/utils"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

type BookingResult struct {
	Tickets    []*entity.Ticket
	PaymentRef string
	TotalPrice float64
	// Replayed is set when the key had already produced these tickets.
	Replayed bool
	Events   []notify.SeatEvent
}

type TicketPage struct {
	Tickets []*entity.Ticket
	Total   int64
}

type BookingService interface {
	// BookFromReservation converts the caller's live holds into confirmed tickets.
	// Retrying with the same key returns the existing tickets.
	BookFromReservation(ctx context.Context, userID, screeningID uuid.UUID, seatIDs []uuid.UUID, idempotencyKey string) (*BookingResult, error)
	BookDirect(ctx context.Context, userID, screeningID uuid.UUID, seatIDs []uuid.UUID) (*BookingResult, error)
	CancelTicket(ctx context.Context, ticketID, userID uuid.UUID) (*entity.Ticket, error)

	GetTicket(ctx context.Context, ticketID, userID uuid.UUID) (*entity.Ticket, error)
	ListUserTickets(ctx context.Context, userID uuid.UUID, req *request.PaginatedRequest, includeCancelled bool) (*TicketPage, error)
	GetTicketsByPaymentRef(ctx context.Context, userID uuid.UUID, paymentRef string) ([]*entity.Ticket, error)
}

type bookingService struct {
	repo         *repository.Repository
	reservations ReservationService
	clock        clockwork.Clock
	notifier     *notify.Dispatcher
	log          *zap.Logger
}

func NewBookingService(
	repo *repository.Repository,
	reservations ReservationService,
	clock clockwork.Clock,
	notifier *notify.Dispatcher,
	log *zap.Logger,
) BookingService {
	return &bookingService{
		repo:         repo,
		reservations: reservations,
		clock:        clock,
		notifier:     notifier,
		log:          log.With(zap.String("service", "booking")),
	}
}

func (s *bookingService) BookFromReservation(ctx context.Context, userID, screeningID uuid.UUID, seatIDs []uuid.UUID, idempotencyKey string) (*BookingResult, error) {
	key := strings.TrimSpace(idempotencyKey)
	if key == "" {
		return nil, invalid("idempotency key is required")
	}

	seatIDs, err := sortedIDs(seatIDs, "seat id")
	if err != nil {
		return nil, err
	}

	// fast path, no locks for a plain retry
	if result, err := s.replay(ctx, userID, screeningID, seatIDs, key); result != nil || err != nil {
		return result, err
	}

	var result *BookingResult
	err = runTx(ctx, s.repo.Tx, func(ctx context.Context) error {
		now := s.clock.Now()

		screening, err := loadScreening(ctx, s.repo, screeningID)
		if err != nil {
			return err
		}

		seats, err := lockSeats(ctx, s.repo, screening, seatIDs)
		if err != nil {
			return err
		}

		// a concurrent retry may have committed while we waited on the locks
		if result, err = s.replay(ctx, userID, screeningID, seatIDs, key); result != nil || err != nil {
			return err
		}

		holds, err := s.repo.Reservation.FindActiveBySeatsForUpdate(ctx, screeningID, seatIDs)
		if err != nil {
			return fmt.Errorf("lock holds: %w", err)
		}

		bySeat := make(map[uuid.UUID]*entity.Reservation, len(holds))
		for _, h := range holds {
			if h.UserID == userID && h.IsLive(now) {
				bySeat[h.SeatID] = h
			}
		}

		var missing []uuid.UUID
		for _, id := range seatIDs {
			if _, ok := bySeat[id]; !ok {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			return invalidSeats(missing, "no valid reservation for seats: %s", seatLabels(seats, missing))
		}

		sold, err := s.repo.Ticket.FindLiveBySeats(ctx, screeningID, seatIDs)
		if err != nil {
			return fmt.Errorf("check tickets: %w", err)
		}
		if len(sold) > 0 {
			booked := make([]uuid.UUID, 0, len(sold))
			for _, t := range sold {
				booked = append(booked, t.SeatID)
			}
			return conflict(booked, "seats already booked: %s", seatLabels(seats, booked))
		}

		tickets := make([]*entity.Ticket, 0, len(seatIDs))
		holdIDs := make([]uuid.UUID, 0, len(seatIDs))
		events := make([]notify.SeatEvent, 0, len(seatIDs))
		for _, id := range seatIDs {
			confirmedAt := now
			ref := key
			ticket := &entity.Ticket{
				ID:          uuid.New(),
				ScreeningID: screeningID,
				SeatID:      id,
				UserID:      userID,
				Price:       screening.Price,
				Status:      entity.TicketStatusConfirmed,
				BookedAt:    now,
				ConfirmedAt: &confirmedAt,
				PaymentRef:  &ref,
				UpdatedAt:   now,
			}
			tickets = append(tickets, ticket)
			holdIDs = append(holdIDs, bySeat[id].ID)
			events = append(events, bookedEvent(ticket, now))
		}

		if err := s.repo.Ticket.CreateBatch(ctx, tickets); err != nil {
			return fmt.Errorf("create tickets: %w", err)
		}

		n, err := s.repo.Reservation.TransitionStatus(ctx, holdIDs,
			entity.ReservationStatusActive, entity.ReservationStatusBooked, now)
		if err != nil {
			return fmt.Errorf("mark holds booked: %w", err)
		}
		if int(n) != len(holdIDs) {
			return conflict(seatIDs, "reservations changed concurrently, refresh availability and retry")
		}

		result = &BookingResult{
			Tickets:    tickets,
			PaymentRef: key,
			TotalPrice: screening.Price * float64(len(tickets)),
			Events:     events,
		}
		return nil
	})
	if err != nil {
		s.logFailure("book from reservation", err, userID, screeningID, key)
		return nil, err
	}

	if result.Replayed {
		return result, nil
	}

	s.notifier.Dispatch(ctx, map[uuid.UUID][]notify.SeatEvent{screeningID: result.Events})

	s.log.Info("Seats booked",
		zap.String("user_id", userID.String()),
		zap.String("screening_id", screeningID.String()),
		zap.String("payment_ref", key),
		zap.Int("seat_count", len(result.Tickets)),
		zap.Float64("total_price", result.TotalPrice),
	)

	return result, nil
}

// replay returns the tickets already issued for key when they cover every requested seat.
// A key that belongs to another user or another seat set is a conflict. Nil, nil means the key is unused.
func (s *bookingService) replay(ctx context.Context, userID, screeningID uuid.UUID, seatIDs []uuid.UUID, key string) (*BookingResult, error) {
	existing, err := s.repo.Ticket.FindByPaymentRef(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("find tickets by payment ref: %w", err)
	}
	if len(existing) == 0 {
		return nil, nil
	}

	bySeat := make(map[uuid.UUID]*entity.Ticket, len(existing))
	for _, t := range existing {
		if t.UserID != userID || t.ScreeningID != screeningID {
			return nil, conflict(nil, "idempotency key %s was already used for another booking", key)
		}
		bySeat[t.SeatID] = t
	}

	tickets := make([]*entity.Ticket, 0, len(seatIDs))
	var total float64
	for _, id := range seatIDs {
		t, ok := bySeat[id]
		if !ok {
			return nil, conflict(nil, "idempotency key %s was already used for other seats", key)
		}
		tickets = append(tickets, t)
		total += t.Price
	}

	s.log.Info("Booking replayed",
		zap.String("user_id", userID.String()),
		zap.String("payment_ref", key),
		zap.Int("seat_count", len(tickets)),
	)

	return &BookingResult{
		Tickets:    tickets,
		PaymentRef: key,
		TotalPrice: total,
		Replayed:   true,
	}, nil
}

func (s *bookingService) BookDirect(ctx context.Context, userID, screeningID uuid.UUID, seatIDs []uuid.UUID) (*BookingResult, error) {
	reserved, err := s.reservations.ReserveSeats(ctx, userID, screeningID, seatIDs)
	if err != nil {
		return nil, err
	}

	held := make([]uuid.UUID, 0, len(reserved.Reservations))
	for _, res := range reserved.Reservations {
		held = append(held, res.SeatID)
	}

	result, err := s.BookFromReservation(ctx, userID, screeningID, held, utils.GenerateBookingRef(s.clock.Now()))
	if err == nil {
		return result, nil
	}

	// release the holds again, also when the caller already gave up
	if _, cerr := s.reservations.CancelReservations(context.WithoutCancel(ctx), userID, screeningID, held); cerr != nil {
		s.log.Error("Stranded hold after failed booking",
			zap.Error(cerr),
			zap.NamedError("booking_error", err),
			zap.String("user_id", userID.String()),
			zap.String("screening_id", screeningID.String()),
			zap.String("seat_ids", joinIDs(held)),
			zap.Time("expires_at", reserved.ExpiresAt),
		)
	}

	return nil, err
}

func (s *bookingService) CancelTicket(ctx context.Context, ticketID, userID uuid.UUID) (*entity.Ticket, error) {
	var (
		ticket *entity.Ticket
		event  notify.SeatEvent
	)
	err := runTx(ctx, s.repo.Tx, func(ctx context.Context) error {
		now := s.clock.Now()

		var err error
		ticket, err = s.repo.Ticket.FindByIDForUpdate(ctx, ticketID)
		if err != nil {
			return fmt.Errorf("find ticket %s: %w", ticketID, err)
		}
		if ticket == nil {
			return notFound("ticket %s not found", ticketID)
		}
		if ticket.UserID != userID {
			return forbidden("ticket %s belongs to another user", ticketID)
		}
		if ticket.Status == entity.TicketStatusCancelled {
			return stateConflict("ticket %s is already cancelled", ticketID)
		}

		ok, err := s.repo.Ticket.UpdateStatus(ctx, ticketID, ticket.Status, entity.TicketStatusCancelled, now)
		if err != nil {
			return fmt.Errorf("cancel ticket %s: %w", ticketID, err)
		}
		if !ok {
			return stateConflict("ticket %s changed concurrently", ticketID)
		}

		ticket.Status = entity.TicketStatusCancelled
		ticket.UpdatedAt = now
		event = releasedEvent(ticket.ScreeningID, ticket.SeatID, userID, now)
		return nil
	})
	if err != nil {
		s.logFailure("cancel ticket", err, userID, uuid.Nil, ticketID.String())
		return nil, err
	}

	s.notifier.Dispatch(ctx, map[uuid.UUID][]notify.SeatEvent{ticket.ScreeningID: {event}})

	s.log.Info("Ticket cancelled",
		zap.String("ticket_id", ticketID.String()),
		zap.String("user_id", userID.String()),
		zap.String("screening_id", ticket.ScreeningID.String()),
	)

	return ticket, nil
}

func (s *bookingService) GetTicket(ctx context.Context, ticketID, userID uuid.UUID) (*entity.Ticket, error) {
	ticket, err := s.repo.Ticket.FindByID(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("find ticket %s: %w", ticketID, err)
	}
	if ticket == nil {
		return nil, notFound("ticket %s not found", ticketID)
	}
	if ticket.UserID != userID {
		return nil, forbidden("ticket %s belongs to another user", ticketID)
	}
	return ticket, nil
}

func (s *bookingService) ListUserTickets(ctx context.Context, userID uuid.UUID, req *request.PaginatedRequest, includeCancelled bool) (*TicketPage, error) {
	tickets, err := s.repo.Ticket.FindByUserID(ctx, userID, includeCancelled, req.Limit(), req.Offset())
	if err != nil {
		s.log.Error("Failed to get user tickets",
			zap.Error(err),
			zap.String("user_id", userID.String()),
			zap.Int("page", req.Page),
			zap.Int("per_page", req.PerPage),
		)
		return nil, fmt.Errorf("get user tickets: %w", err)
	}

	total, err := s.repo.Ticket.CountByUserID(ctx, userID, includeCancelled)
	if err != nil {
		s.log.Error("Failed to count user tickets", zap.Error(err))
		return nil, fmt.Errorf("count user tickets: %w", err)
	}

	return &TicketPage{Tickets: tickets, Total: total}, nil
}

func (s *bookingService) GetTicketsByPaymentRef(ctx context.Context, userID uuid.UUID, paymentRef string) ([]*entity.Ticket, error) {
	tickets, err := s.repo.Ticket.FindByPaymentRef(ctx, paymentRef)
	if err != nil {
		return nil, fmt.Errorf("find tickets by payment ref: %w", err)
	}
	if len(tickets) == 0 {
		return nil, notFound("no tickets for payment reference %s", paymentRef)
	}
	for _, t := range tickets {
		if t.UserID != userID {
			return nil, forbidden("payment reference %s belongs to another user", paymentRef)
		}
	}
	return tickets, nil
}

func (s *bookingService) logFailure(operation string, err error, userID, screeningID uuid.UUID, ref string) {
	fields := []zap.Field{
		zap.Error(err),
		zap.String("user_id", userID.String()),
		zap.String("ref", ref),
	}
	if screeningID != uuid.Nil {
		fields = append(fields, zap.String("screening_id", screeningID.String()))
	}
	if ids := SeatIDsOf(err); len(ids) > 0 {
		fields = append(fields, zap.String("seat_ids", joinIDs(ids)))
	}

	if KindOf(err) != "" {
		s.log.Warn("Rejected: "+operation, fields...)
		return
	}
	s.log.Error("Failed to "+operation, fields...)
}
