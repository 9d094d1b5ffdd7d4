package usecase

import (
	"context"
	"fmt"
	"slices"
	"time"

	"cinema-reservation/internal/data/entity"
	"cinema-reservation/internal/data/repository"
	"cinema-reservation/internal/notify"
	"cinema-reservation/pkg/utils"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// SeatState is a seat's status in an availability snapshot.
type SeatState string

const (
	SeatStateAvailable    SeatState = "available"
	SeatStateReserved     SeatState = "reserved"
	SeatStateReservedByMe SeatState = "reserved_by_me"
	SeatStateBooked       SeatState = "booked"
)

type SeatAvailability struct {
	Seat      *entity.Seat
	State     SeatState
	HolderID  *uuid.UUID
	ExpiresAt *time.Time
}

type AvailabilityResult struct {
	Screening *entity.Screening
	Seats     []SeatAvailability
}

type ReserveResult struct {
	Reservations []*entity.Reservation
	ExpiresAt    time.Time
	Events       []notify.SeatEvent
}

type ToggleAction string

const (
	ToggleReserved   ToggleAction = "reserved"
	ToggleUnreserved ToggleAction = "unreserved"
)

type ToggleResult struct {
	Action      ToggleAction
	SeatID      uuid.UUID
	Reservation *entity.Reservation
	ExpiresAt   *time.Time
	Events      []notify.SeatEvent
}

// ExtendRequest selects reservations either by id or by screening and seats.
// AdditionalMinutes of zero means the configured default.
type ExtendRequest struct {
	ReservationIDs    []uuid.UUID
	ScreeningID       uuid.UUID
	SeatIDs           []uuid.UUID
	AdditionalMinutes int
}

type ExtendResult struct {
	Reservations []*entity.Reservation
	Events       []notify.SeatEvent
}

type CancelResult struct {
	Cancelled int
	SeatIDs   []uuid.UUID
	Events    []notify.SeatEvent
}

type CleanupResult struct {
	Expired  int
	Events   map[uuid.UUID][]notify.SeatEvent
	RanAt    time.Time
	Duration time.Duration
}

type ReservationService interface {
	GetAvailability(ctx context.Context, screeningID uuid.UUID, requester *uuid.UUID) (*AvailabilityResult, error)
	ReserveSeats(ctx context.Context, userID, screeningID uuid.UUID, seatIDs []uuid.UUID) (*ReserveResult, error)
	ToggleSeat(ctx context.Context, userID, screeningID, seatID uuid.UUID) (*ToggleResult, error)
	ExtendReservations(ctx context.Context, userID uuid.UUID, req ExtendRequest) (*ExtendResult, error)
	// CancelReservations cancels the caller's holds on seatIDs, or all of them for the screening when seatIDs is empty.
	CancelReservations(ctx context.Context, userID, screeningID uuid.UUID, seatIDs []uuid.UUID) (*CancelResult, error)
	CleanupExpired(ctx context.Context) (*CleanupResult, error)
	ListUserReservations(ctx context.Context, userID uuid.UUID, filter repository.ReservationFilter) ([]*entity.Reservation, error)
}

type reservationService struct {
	repo     *repository.Repository
	policy   utils.ReservationConfig
	clock    clockwork.Clock
	notifier *notify.Dispatcher
	log      *zap.Logger
}

func NewReservationService(
	repo *repository.Repository,
	policy utils.ReservationConfig,
	clock clockwork.Clock,
	notifier *notify.Dispatcher,
	log *zap.Logger,
) ReservationService {
	return &reservationService{
		repo:     repo,
		policy:   policy,
		clock:    clock,
		notifier: notifier,
		log:      log.With(zap.String("service", "reservation")),
	}
}

func (s *reservationService) GetAvailability(ctx context.Context, screeningID uuid.UUID, requester *uuid.UUID) (*AvailabilityResult, error) {
	screening, err := loadScreening(ctx, s.repo, screeningID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()

	// Sweep first so stale holds never show as blocking. The snapshot below
	// filters on expiry anyway, so a failed sweep only delays the events.
	var released []*entity.Reservation
	err = runTx(ctx, s.repo.Tx, func(ctx context.Context) error {
		var err error
		released, err = s.repo.Reservation.ExpireDue(ctx, now, repository.ExpireScope{ScreeningID: &screeningID})
		return err
	})
	if err != nil {
		s.log.Warn("Inline expiry sweep failed",
			zap.Error(err),
			zap.String("screening_id", screeningID.String()),
		)
	} else if len(released) > 0 {
		s.notifier.Dispatch(ctx, map[uuid.UUID][]notify.SeatEvent{screeningID: releasedEvents(released, now)})
	}

	seats, err := s.repo.Seat.FindByRoomID(ctx, screening.RoomID)
	if err != nil {
		return nil, fmt.Errorf("get seats of room %s: %w", screening.RoomID, err)
	}

	holds, err := s.repo.Reservation.FindLiveByScreening(ctx, screeningID, now)
	if err != nil {
		return nil, fmt.Errorf("get holds of screening %s: %w", screeningID, err)
	}

	tickets, err := s.repo.Ticket.FindLiveByScreening(ctx, screeningID)
	if err != nil {
		return nil, fmt.Errorf("get tickets of screening %s: %w", screeningID, err)
	}

	holdBySeat := make(map[uuid.UUID]*entity.Reservation, len(holds))
	for _, h := range holds {
		holdBySeat[h.SeatID] = h
	}
	sold := make(map[uuid.UUID]bool, len(tickets))
	for _, t := range tickets {
		sold[t.SeatID] = true
	}

	result := &AvailabilityResult{
		Screening: screening,
		Seats:     make([]SeatAvailability, 0, len(seats)),
	}
	for _, seat := range seats {
		entry := SeatAvailability{Seat: seat, State: SeatStateAvailable}

		if sold[seat.ID] {
			entry.State = SeatStateBooked
		} else if h, ok := holdBySeat[seat.ID]; ok {
			entry.State = SeatStateReserved
			if requester != nil && h.UserID == *requester {
				entry.State = SeatStateReservedByMe
			}
			holder, expires := h.UserID, h.ExpiresAt
			entry.HolderID = &holder
			entry.ExpiresAt = &expires
		}

		result.Seats = append(result.Seats, entry)
	}

	return result, nil
}

func (s *reservationService) ReserveSeats(ctx context.Context, userID, screeningID uuid.UUID, seatIDs []uuid.UUID) (*ReserveResult, error) {
	seatIDs, err := sortedIDs(seatIDs, "seat id")
	if err != nil {
		return nil, err
	}

	var (
		result   *ReserveResult
		released []notify.SeatEvent
	)
	err = runTx(ctx, s.repo.Tx, func(ctx context.Context) error {
		now := s.clock.Now()

		screening, err := loadScreening(ctx, s.repo, screeningID)
		if err != nil {
			return err
		}
		if err := checkBookable(screening, now); err != nil {
			return err
		}

		seats, err := lockSeats(ctx, s.repo, screening, seatIDs)
		if err != nil {
			return err
		}

		released, err = s.expireSeats(ctx, screeningID, seatIDs, now)
		if err != nil {
			return err
		}

		result, err = s.reserveLocked(ctx, userID, screening, seats, seatIDs, now)
		return err
	})
	if err != nil {
		s.logFailure("reserve seats", err, userID, screeningID)
		return nil, err
	}

	s.notifier.Dispatch(ctx, map[uuid.UUID][]notify.SeatEvent{
		screeningID: append(released, result.Events...),
	})

	s.log.Info("Seats reserved",
		zap.String("user_id", userID.String()),
		zap.String("screening_id", screeningID.String()),
		zap.Int("seat_count", len(result.Reservations)),
		zap.Time("expires_at", result.ExpiresAt),
	)

	return result, nil
}

// expireSeats retires stale holds on locked seats so they cannot block the checks that follow.
func (s *reservationService) expireSeats(ctx context.Context, screeningID uuid.UUID, seatIDs []uuid.UUID, now time.Time) ([]notify.SeatEvent, error) {
	expired, err := s.repo.Reservation.ExpireDue(ctx, now, repository.ExpireScope{
		ScreeningID: &screeningID,
		SeatIDs:     seatIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("expire stale holds: %w", err)
	}
	return releasedEvents(expired, now), nil
}

// reserveLocked runs the conflict checks and writes the holds. Seats must already be locked.
func (s *reservationService) reserveLocked(
	ctx context.Context,
	userID uuid.UUID,
	screening *entity.Screening,
	seats map[uuid.UUID]*entity.Seat,
	seatIDs []uuid.UUID,
	now time.Time,
) (*ReserveResult, error) {
	tickets, err := s.repo.Ticket.FindLiveBySeats(ctx, screening.ID, seatIDs)
	if err != nil {
		return nil, fmt.Errorf("check tickets: %w", err)
	}
	if len(tickets) > 0 {
		booked := make([]uuid.UUID, 0, len(tickets))
		for _, t := range tickets {
			booked = append(booked, t.SeatID)
		}
		return nil, conflict(booked, "seats already booked: %s", seatLabels(seats, booked))
	}

	holds, err := s.repo.Reservation.FindActiveBySeatsForUpdate(ctx, screening.ID, seatIDs)
	if err != nil {
		return nil, fmt.Errorf("check holds: %w", err)
	}

	var taken, superseded []uuid.UUID
	for _, h := range holds {
		if h.UserID != userID {
			taken = append(taken, h.SeatID)
			continue
		}
		superseded = append(superseded, h.ID)
	}
	if len(taken) > 0 {
		return nil, conflict(taken, "seats reserved by others: %s", seatLabels(seats, taken))
	}

	// re-reserving refreshes the clock with a new hold instead of failing
	if len(superseded) > 0 {
		if _, err := s.repo.Reservation.TransitionStatus(ctx, superseded,
			entity.ReservationStatusActive, entity.ReservationStatusCancelled, now); err != nil {
			return nil, fmt.Errorf("supersede own holds: %w", err)
		}
	}

	expiresAt := now.Add(s.policy.HoldDuration)
	reservations := make([]*entity.Reservation, 0, len(seatIDs))
	events := make([]notify.SeatEvent, 0, len(seatIDs))
	for _, seatID := range seatIDs {
		res := &entity.Reservation{
			BaseNoDelete: entity.BaseNoDelete{
				ID:        uuid.New(),
				CreatedAt: now,
				UpdatedAt: now,
			},
			ScreeningID: screening.ID,
			SeatID:      seatID,
			UserID:      userID,
			Status:      entity.ReservationStatusActive,
			ExpiresAt:   expiresAt,
		}
		reservations = append(reservations, res)
		events = append(events, reservedEvent(res, now))
	}

	if err := s.repo.Reservation.CreateBatch(ctx, reservations); err != nil {
		return nil, fmt.Errorf("create holds: %w", err)
	}

	return &ReserveResult{
		Reservations: reservations,
		ExpiresAt:    expiresAt,
		Events:       events,
	}, nil
}

func (s *reservationService) ToggleSeat(ctx context.Context, userID, screeningID, seatID uuid.UUID) (*ToggleResult, error) {
	if seatID == uuid.Nil {
		return nil, invalid("seat id is required")
	}
	seatIDs := []uuid.UUID{seatID}

	var (
		result   *ToggleResult
		released []notify.SeatEvent
	)
	err := runTx(ctx, s.repo.Tx, func(ctx context.Context) error {
		now := s.clock.Now()

		screening, err := loadScreening(ctx, s.repo, screeningID)
		if err != nil {
			return err
		}

		seats, err := lockSeats(ctx, s.repo, screening, seatIDs)
		if err != nil {
			return err
		}

		released, err = s.expireSeats(ctx, screeningID, seatIDs, now)
		if err != nil {
			return err
		}

		holds, err := s.repo.Reservation.FindActiveBySeatsForUpdate(ctx, screeningID, seatIDs)
		if err != nil {
			return fmt.Errorf("check holds: %w", err)
		}
		for _, h := range holds {
			if h.UserID != userID {
				continue
			}
			if _, err := s.repo.Reservation.TransitionStatus(ctx, []uuid.UUID{h.ID},
				entity.ReservationStatusActive, entity.ReservationStatusCancelled, now); err != nil {
				return fmt.Errorf("cancel hold: %w", err)
			}
			h.Status = entity.ReservationStatusCancelled
			h.UpdatedAt = now
			result = &ToggleResult{
				Action:      ToggleUnreserved,
				SeatID:      seatID,
				Reservation: h,
				Events:      []notify.SeatEvent{releasedEvent(screeningID, seatID, userID, now)},
			}
			return nil
		}

		if err := checkBookable(screening, now); err != nil {
			return err
		}

		reserved, err := s.reserveLocked(ctx, userID, screening, seats, seatIDs, now)
		if err != nil {
			return err
		}
		expiresAt := reserved.ExpiresAt
		result = &ToggleResult{
			Action:      ToggleReserved,
			SeatID:      seatID,
			Reservation: reserved.Reservations[0],
			ExpiresAt:   &expiresAt,
			Events:      reserved.Events,
		}
		return nil
	})
	if err != nil {
		s.logFailure("toggle seat", err, userID, screeningID)
		return nil, err
	}

	s.notifier.Dispatch(ctx, map[uuid.UUID][]notify.SeatEvent{
		screeningID: append(released, result.Events...),
	})

	s.log.Info("Seat toggled",
		zap.String("user_id", userID.String()),
		zap.String("screening_id", screeningID.String()),
		zap.String("seat_id", seatID.String()),
		zap.String("action", string(result.Action)),
	)

	return result, nil
}

func (s *reservationService) extension(minutes int) (time.Duration, error) {
	if minutes == 0 {
		return s.policy.DefaultExtension, nil
	}

	ext := time.Duration(minutes) * time.Minute
	if minutes < 0 || ext > s.policy.MaxExtension {
		return 0, invalid("additional minutes must be between 1 and %d", int(s.policy.MaxExtension/time.Minute))
	}
	return ext, nil
}

func (s *reservationService) ExtendReservations(ctx context.Context, userID uuid.UUID, req ExtendRequest) (*ExtendResult, error) {
	ext, err := s.extension(req.AdditionalMinutes)
	if err != nil {
		return nil, err
	}

	byID := len(req.ReservationIDs) > 0
	switch {
	case byID && (len(req.SeatIDs) > 0 || req.ScreeningID != uuid.Nil):
		return nil, invalid("reservation ids cannot be combined with screening and seat ids")
	case !byID && (req.ScreeningID == uuid.Nil || len(req.SeatIDs) == 0):
		return nil, invalid("either reservation ids or a screening with seat ids is required")
	}

	var result *ExtendResult
	err = runTx(ctx, s.repo.Tx, func(ctx context.Context) error {
		now := s.clock.Now()

		var (
			targets   []*entity.Reservation
			requested int
			err       error
		)
		if byID {
			targets, requested, err = s.lockByReservationIDs(ctx, req.ReservationIDs)
		} else {
			targets, requested, err = s.lockBySeats(ctx, req.ScreeningID, req.SeatIDs)
		}
		if err != nil {
			return err
		}

		valid := make([]*entity.Reservation, 0, len(targets))
		for _, res := range targets {
			if res.UserID == userID && res.IsLive(now) {
				valid = append(valid, res)
			}
		}
		if bad := requested - len(valid); bad > 0 {
			return invalid("cannot extend: %d reservations are invalid, expired, or not owned by you", bad)
		}

		events := make([]notify.SeatEvent, 0, len(valid))
		for _, res := range valid {
			expiresAt := res.ExpiresAt.Add(ext)
			if limit := res.CreatedAt.Add(s.policy.MaxHoldLifetime); expiresAt.After(limit) {
				expiresAt = limit
			}
			if expiresAt.Before(res.ExpiresAt) {
				expiresAt = res.ExpiresAt
			}

			if err := s.repo.Reservation.UpdateExpiry(ctx, res.ID, expiresAt, now); err != nil {
				return fmt.Errorf("extend hold: %w", err)
			}
			res.ExpiresAt = expiresAt
			res.UpdatedAt = now
			events = append(events, reservedEvent(res, now))
		}

		result = &ExtendResult{Reservations: valid, Events: events}
		return nil
	})
	if err != nil {
		s.logFailure("extend reservations", err, userID, req.ScreeningID)
		return nil, err
	}

	s.notifier.Dispatch(ctx, groupByScreening(result.Events))

	s.log.Info("Reservations extended",
		zap.String("user_id", userID.String()),
		zap.Int("count", len(result.Reservations)),
		zap.Duration("extension", ext),
	)

	return result, nil
}

// lockByReservationIDs resolves the seats first so seat locks are still taken before the reservation rows.
func (s *reservationService) lockByReservationIDs(ctx context.Context, ids []uuid.UUID) ([]*entity.Reservation, int, error) {
	ids, err := sortedIDs(ids, "reservation id")
	if err != nil {
		return nil, 0, err
	}

	found, err := s.repo.Reservation.FindByIDs(ctx, ids)
	if err != nil {
		return nil, 0, fmt.Errorf("find reservations: %w", err)
	}

	seatIDs := make([]uuid.UUID, 0, len(found))
	for _, res := range found {
		if !slices.Contains(seatIDs, res.SeatID) {
			seatIDs = append(seatIDs, res.SeatID)
		}
	}
	slices.SortFunc(seatIDs, compareIDs)

	if len(seatIDs) > 0 {
		if _, err := s.repo.Seat.LockByIDs(ctx, seatIDs); err != nil {
			return nil, 0, fmt.Errorf("lock seats: %w", err)
		}
	}

	locked, err := s.repo.Reservation.FindByIDsForUpdate(ctx, ids)
	if err != nil {
		return nil, 0, fmt.Errorf("lock reservations: %w", err)
	}

	return locked, len(ids), nil
}

func (s *reservationService) lockBySeats(ctx context.Context, screeningID uuid.UUID, seatIDs []uuid.UUID) ([]*entity.Reservation, int, error) {
	seatIDs, err := sortedIDs(seatIDs, "seat id")
	if err != nil {
		return nil, 0, err
	}

	if _, err := s.repo.Seat.LockByIDs(ctx, seatIDs); err != nil {
		return nil, 0, fmt.Errorf("lock seats: %w", err)
	}

	locked, err := s.repo.Reservation.FindActiveBySeatsForUpdate(ctx, screeningID, seatIDs)
	if err != nil {
		return nil, 0, fmt.Errorf("lock reservations: %w", err)
	}

	return locked, len(seatIDs), nil
}

func (s *reservationService) CancelReservations(ctx context.Context, userID, screeningID uuid.UUID, seatIDs []uuid.UUID) (*CancelResult, error) {
	var filter []uuid.UUID
	if len(seatIDs) > 0 {
		var err error
		if filter, err = sortedIDs(seatIDs, "seat id"); err != nil {
			return nil, err
		}
	}

	var released []notify.SeatEvent
	result := &CancelResult{}
	err := runTx(ctx, s.repo.Tx, func(ctx context.Context) error {
		now := s.clock.Now()

		owned, err := s.repo.Reservation.FindActiveByUser(ctx, userID, screeningID, filter)
		if err != nil {
			return fmt.Errorf("find holds: %w", err)
		}
		if len(owned) == 0 {
			return nil
		}

		held := make([]uuid.UUID, 0, len(owned))
		for _, res := range owned {
			held = append(held, res.SeatID)
		}
		slices.SortFunc(held, compareIDs)

		if _, err := s.repo.Seat.LockByIDs(ctx, held); err != nil {
			return fmt.Errorf("lock seats: %w", err)
		}

		// holds past their expiry retire as expired, not cancelled
		released, err = s.expireSeats(ctx, screeningID, held, now)
		if err != nil {
			return err
		}

		// re-read under the seat locks, a concurrent sweep may have retired some
		locked, err := s.repo.Reservation.FindActiveBySeatsForUpdate(ctx, screeningID, held)
		if err != nil {
			return fmt.Errorf("lock holds: %w", err)
		}

		ids := make([]uuid.UUID, 0, len(locked))
		for _, res := range locked {
			if res.UserID != userID {
				continue
			}
			ids = append(ids, res.ID)
			result.SeatIDs = append(result.SeatIDs, res.SeatID)
			result.Events = append(result.Events, releasedEvent(screeningID, res.SeatID, userID, now))
		}
		if len(ids) == 0 {
			return nil
		}

		n, err := s.repo.Reservation.TransitionStatus(ctx, ids,
			entity.ReservationStatusActive, entity.ReservationStatusCancelled, now)
		if err != nil {
			return fmt.Errorf("cancel holds: %w", err)
		}
		result.Cancelled = int(n)
		return nil
	})
	if err != nil {
		s.logFailure("cancel reservations", err, userID, screeningID)
		return nil, err
	}

	s.notifier.Dispatch(ctx, map[uuid.UUID][]notify.SeatEvent{screeningID: append(released, result.Events...)})

	s.log.Info("Reservations cancelled",
		zap.String("user_id", userID.String()),
		zap.String("screening_id", screeningID.String()),
		zap.Int("count", result.Cancelled),
	)

	return result, nil
}

func (s *reservationService) CleanupExpired(ctx context.Context) (*CleanupResult, error) {
	start := s.clock.Now()

	var expired []*entity.Reservation
	err := runTx(ctx, s.repo.Tx, func(ctx context.Context) error {
		var err error
		expired, err = s.repo.Reservation.ExpireDue(ctx, start, repository.ExpireScope{})
		return err
	})
	if err != nil {
		s.log.Error("Failed to clean up expired reservations", zap.Error(err))
		return nil, fmt.Errorf("clean up expired reservations: %w", err)
	}

	result := &CleanupResult{
		Expired: len(expired),
		Events:  groupByScreening(releasedEvents(expired, start)),
		RanAt:   start,
	}

	s.notifier.Dispatch(ctx, result.Events)
	result.Duration = s.clock.Since(start)

	if result.Expired > 0 {
		s.log.Info("Expired reservations released",
			zap.Int("count", result.Expired),
			zap.Int("screenings", len(result.Events)),
			zap.Duration("duration", result.Duration),
		)
	}

	return result, nil
}

func (s *reservationService) ListUserReservations(ctx context.Context, userID uuid.UUID, filter repository.ReservationFilter) ([]*entity.Reservation, error) {
	reservations, err := s.repo.Reservation.FindByUser(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("list reservations of user %s: %w", userID, err)
	}
	return reservations, nil
}

// logFailure keeps business rejections at Warn and everything else at Error.
func (s *reservationService) logFailure(operation string, err error, userID, screeningID uuid.UUID) {
	fields := []zap.Field{
		zap.Error(err),
		zap.String("user_id", userID.String()),
		zap.String("screening_id", screeningID.String()),
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
