package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"cinema-reservation/internal/data/entity"
	"cinema-reservation/internal/data/repository"
	"cinema-reservation/internal/notify"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReservationLifecycleScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u1, u2 := uuid.New(), uuid.New()

	result := f.reserve(t, u1, 1, 2, 3)
	assert.Len(t, result.Reservations, 3)
	assert.Equal(t, t0.Add(5*time.Minute), result.ExpiresAt)

	_, err := f.svc.Reservation.ReserveSeats(ctx, u2, f.screening.ID, f.seatIDs(2))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, f.seatIDs(2), SeatIDsOf(err))
	assert.Contains(t, err.Error(), "A2")

	cancelled, err := f.svc.Reservation.CancelReservations(ctx, u1, f.screening.ID, f.seatIDs(1))
	require.NoError(t, err)
	assert.Equal(t, 1, cancelled.Cancelled)

	mine := f.states(t, &u1)
	assert.Equal(t, SeatStateAvailable, mine[1])
	assert.Equal(t, SeatStateReservedByMe, mine[2])
	assert.Equal(t, SeatStateReservedByMe, mine[3])

	theirs := f.states(t, &u2)
	assert.Equal(t, SeatStateReserved, theirs[2])
	assert.Equal(t, SeatStateReserved, theirs[3])

	f.clock.Advance(5 * time.Minute)

	cleanup, err := f.svc.Reservation.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, cleanup.Expired)
	require.Len(t, cleanup.Events[f.screening.ID], 2)
	for _, ev := range cleanup.Events[f.screening.ID] {
		assert.Equal(t, notify.SeatAvailable, ev.Status)
		require.NotNil(t, ev.PreviousHolderID)
		assert.Equal(t, u1, *ev.PreviousHolderID)
	}

	for n, state := range f.states(t, &u1) {
		assert.Equal(t, SeatStateAvailable, state, "seat %d", n)
	}
}

func TestReserveSeats_AllOrNothing(t *testing.T) {
	f := newFixture(t)
	u1, u2 := uuid.New(), uuid.New()

	f.reserve(t, u2, 3)

	_, err := f.svc.Reservation.ReserveSeats(context.Background(), u1, f.screening.ID, f.seatIDs(1, 2, 3))
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, f.seatIDs(3), SeatIDsOf(err))

	assert.Empty(t, f.store.activeReservations(u1))
	assert.Len(t, f.store.activeReservations(u2), 1)
}

func TestReserveSeats_RereserveReplacesHold(t *testing.T) {
	f := newFixture(t)
	u1 := uuid.New()

	first := f.reserve(t, u1, 4)
	f.clock.Advance(time.Minute)
	second := f.reserve(t, u1, 4)

	assert.NotEqual(t, first.Reservations[0].ID, second.Reservations[0].ID)
	assert.Equal(t, t0.Add(6*time.Minute), second.ExpiresAt)

	active := f.store.activeReservations(u1)
	require.Len(t, active, 1)
	assert.Equal(t, second.Reservations[0].ID, active[0].ID)
	assert.Equal(t, entity.ReservationStatusCancelled, f.store.reservation(first.Reservations[0].ID).Status)
}

func TestReserveSeats_ExpiredHoldNeverBlocks(t *testing.T) {
	f := newFixture(t)
	u1, u2 := uuid.New(), uuid.New()

	stale := f.reserve(t, u2, 5)
	f.clock.Advance(6 * time.Minute)
	f.pub.reset()

	result := f.reserve(t, u1, 5)
	require.Len(t, result.Reservations, 1)
	assert.Equal(t, entity.ReservationStatusExpired, f.store.reservation(stale.Reservations[0].ID).Status)

	events := f.pub.events()
	require.Len(t, events, 2)
	assert.Equal(t, notify.SeatAvailable, events[0].Status)
	assert.Equal(t, u2, *events[0].PreviousHolderID)
	assert.Equal(t, notify.SeatReserved, events[1].Status)
	assert.Equal(t, u1, *events[1].HolderID)
}

func TestReserveSeats_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()

	otherRoomSeat := &entity.Seat{ID: uuid.New(), RoomID: uuid.New(), RowLabel: "Z", SeatNumber: 1}
	f.store.seats[otherRoomSeat.ID] = otherRoomSeat

	started := &entity.Screening{ID: uuid.New(), RoomID: f.screening.RoomID, StartsAt: t0.Add(-time.Minute), MovieReleaseStatus: entity.ReleaseStatusNowPlaying}
	f.store.screenings[started.ID] = started

	upcoming := &entity.Screening{ID: uuid.New(), RoomID: f.screening.RoomID, StartsAt: t0.Add(24 * time.Hour), MovieReleaseStatus: entity.ReleaseStatusComingSoon}
	f.store.screenings[upcoming.ID] = upcoming

	unknownSeat := uuid.New()

	tests := []struct {
		name        string
		screeningID uuid.UUID
		seatIDs     []uuid.UUID
		kind        Kind
		seats       []uuid.UUID
	}{
		{name: "no seats", screeningID: f.screening.ID, kind: KindInvalidRequest},
		{name: "duplicate seats", screeningID: f.screening.ID, seatIDs: f.seatIDs(1, 1), kind: KindInvalidRequest},
		{name: "nil seat", screeningID: f.screening.ID, seatIDs: []uuid.UUID{uuid.Nil}, kind: KindInvalidRequest},
		{name: "unknown screening", screeningID: uuid.New(), seatIDs: f.seatIDs(1), kind: KindNotFound},
		{name: "unknown seat", screeningID: f.screening.ID, seatIDs: []uuid.UUID{unknownSeat}, kind: KindNotFound, seats: []uuid.UUID{unknownSeat}},
		{name: "seat in another room", screeningID: f.screening.ID, seatIDs: []uuid.UUID{otherRoomSeat.ID}, kind: KindInvalidRequest, seats: []uuid.UUID{otherRoomSeat.ID}},
		{name: "screening started", screeningID: started.ID, seatIDs: f.seatIDs(1), kind: KindInvalidRequest},
		{name: "movie not released", screeningID: upcoming.ID, seatIDs: f.seatIDs(1), kind: KindInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Reservation.ReserveSeats(ctx, user, tt.screeningID, tt.seatIDs)
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
			if tt.seats != nil {
				assert.Equal(t, tt.seats, SeatIDsOf(err))
			}
		})
	}

	assert.Empty(t, f.store.activeReservations(user))
}

func TestReserveSeats_BookedSeatConflicts(t *testing.T) {
	f := newFixture(t)

	f.store.addTicket(&entity.Ticket{
		ID:          uuid.New(),
		ScreeningID: f.screening.ID,
		SeatID:      f.seats[6].ID,
		UserID:      uuid.New(),
		Status:      entity.TicketStatusConfirmed,
	})

	_, err := f.svc.Reservation.ReserveSeats(context.Background(), uuid.New(), f.screening.ID, f.seatIDs(6, 7))
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, f.seatIDs(7), SeatIDsOf(err))
	assert.Contains(t, err.Error(), "already booked")
}

func TestReserveSeats_ConcurrentRequestsHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	const contenders = 20

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   int
		conflicts int
	)
	for range contenders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Reservation.ReserveSeats(context.Background(), uuid.New(), f.screening.ID, f.seatIDs(8, 9))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, contenders-1, conflicts)

	states := f.states(t, nil)
	assert.Equal(t, SeatStateReserved, states[8])
	assert.Equal(t, SeatStateReserved, states[9])
}

func TestReserveSeats_PublisherFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errBoom
	user := uuid.New()

	result := f.reserve(t, user, 1)

	assert.Len(t, result.Reservations, 1)
	assert.Len(t, f.pub.events(), 1)
	assert.Len(t, f.store.activeReservations(user), 1)
}

func TestToggleSeat_Symmetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()
	seat := f.seats[2].ID

	on, err := f.svc.Reservation.ToggleSeat(ctx, user, f.screening.ID, seat)
	require.NoError(t, err)
	assert.Equal(t, ToggleReserved, on.Action)
	require.NotNil(t, on.ExpiresAt)
	assert.Equal(t, t0.Add(5*time.Minute), *on.ExpiresAt)

	off, err := f.svc.Reservation.ToggleSeat(ctx, user, f.screening.ID, seat)
	require.NoError(t, err)
	assert.Equal(t, ToggleUnreserved, off.Action)
	assert.Nil(t, off.ExpiresAt)

	assert.Empty(t, f.store.activeReservations(user))
	assert.Equal(t, SeatStateAvailable, f.states(t, &user)[3])

	events := f.pub.events()
	require.Len(t, events, 2)
	assert.Equal(t, notify.SeatReserved, events[0].Status)
	assert.Equal(t, notify.SeatAvailable, events[1].Status)
}

func TestToggleSeat_HeldByOtherUser(t *testing.T) {
	f := newFixture(t)
	f.reserve(t, uuid.New(), 3)

	_, err := f.svc.Reservation.ToggleSeat(context.Background(), uuid.New(), f.screening.ID, f.seats[2].ID)
	require.ErrorIs(t, err, ErrConflict)
}

func TestExtendReservations(t *testing.T) {
	ctx := context.Background()

	t.Run("default extension by seats", func(t *testing.T) {
		f := newFixture(t)
		user := uuid.New()
		f.reserve(t, user, 1, 2)

		result, err := f.svc.Reservation.ExtendReservations(ctx, user, ExtendRequest{
			ScreeningID: f.screening.ID,
			SeatIDs:     f.seatIDs(1, 2),
		})
		require.NoError(t, err)
		require.Len(t, result.Reservations, 2)
		for _, res := range result.Reservations {
			assert.Equal(t, t0.Add(10*time.Minute), res.ExpiresAt)
		}
		assert.Len(t, result.Events, 2)
	})

	t.Run("capped at max hold lifetime", func(t *testing.T) {
		f := newFixture(t)
		user := uuid.New()
		reserved := f.reserve(t, user, 1)
		ids := []uuid.UUID{reserved.Reservations[0].ID}

		_, err := f.svc.Reservation.ExtendReservations(ctx, user, ExtendRequest{ReservationIDs: ids, AdditionalMinutes: 10})
		require.NoError(t, err)

		result, err := f.svc.Reservation.ExtendReservations(ctx, user, ExtendRequest{ReservationIDs: ids, AdditionalMinutes: 5})
		require.NoError(t, err)
		assert.Equal(t, t0.Add(15*time.Minute), result.Reservations[0].ExpiresAt)
		assert.Equal(t, t0.Add(15*time.Minute), f.store.reservation(ids[0]).ExpiresAt)
	})

	t.Run("rejects foreign reservations for the whole batch", func(t *testing.T) {
		f := newFixture(t)
		u1, u2 := uuid.New(), uuid.New()
		mine := f.reserve(t, u1, 1).Reservations[0]
		theirs := f.reserve(t, u2, 2).Reservations[0]

		_, err := f.svc.Reservation.ExtendReservations(ctx, u1, ExtendRequest{
			ReservationIDs: []uuid.UUID{mine.ID, theirs.ID},
		})
		require.ErrorIs(t, err, ErrInvalidRequest)
		assert.Contains(t, err.Error(), "cannot extend: 1 reservations are invalid, expired, or not owned by you")
		assert.Equal(t, mine.ExpiresAt, f.store.reservation(mine.ID).ExpiresAt)
	})

	t.Run("rejects expired holds", func(t *testing.T) {
		f := newFixture(t)
		user := uuid.New()
		f.reserve(t, user, 1)
		f.clock.Advance(6 * time.Minute)

		_, err := f.svc.Reservation.ExtendReservations(ctx, user, ExtendRequest{
			ScreeningID: f.screening.ID,
			SeatIDs:     f.seatIDs(1),
		})
		require.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("rejects seats without a hold", func(t *testing.T) {
		f := newFixture(t)
		user := uuid.New()
		f.reserve(t, user, 1)

		_, err := f.svc.Reservation.ExtendReservations(ctx, user, ExtendRequest{
			ScreeningID: f.screening.ID,
			SeatIDs:     f.seatIDs(1, 2),
		})
		require.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("validates selector and minutes", func(t *testing.T) {
		f := newFixture(t)
		user := uuid.New()

		for _, req := range []ExtendRequest{
			{},
			{ScreeningID: f.screening.ID},
			{ReservationIDs: []uuid.UUID{uuid.New()}, SeatIDs: f.seatIDs(1), ScreeningID: f.screening.ID},
			{ReservationIDs: []uuid.UUID{uuid.New()}, AdditionalMinutes: 11},
			{ReservationIDs: []uuid.UUID{uuid.New()}, AdditionalMinutes: -1},
		} {
			_, err := f.svc.Reservation.ExtendReservations(ctx, user, req)
			assert.ErrorIs(t, err, ErrInvalidRequest, fmt.Sprintf("%+v", req))
		}
	})
}

func TestCancelReservations(t *testing.T) {
	ctx := context.Background()

	t.Run("empty seat list cancels every own hold", func(t *testing.T) {
		f := newFixture(t)
		u1, u2 := uuid.New(), uuid.New()
		f.reserve(t, u1, 1, 2, 3)
		f.reserve(t, u2, 4)

		result, err := f.svc.Reservation.CancelReservations(ctx, u1, f.screening.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, 3, result.Cancelled)
		assert.ElementsMatch(t, f.seatIDs(1, 2, 3), result.SeatIDs)
		for _, ev := range result.Events {
			assert.Equal(t, notify.SeatAvailable, ev.Status)
			assert.Equal(t, u1, *ev.PreviousHolderID)
		}

		assert.Empty(t, f.store.activeReservations(u1))
		assert.Len(t, f.store.activeReservations(u2), 1)
	})

	t.Run("never touches other users holds", func(t *testing.T) {
		f := newFixture(t)
		u1, u2 := uuid.New(), uuid.New()
		f.reserve(t, u2, 4)

		result, err := f.svc.Reservation.CancelReservations(ctx, u1, f.screening.ID, f.seatIDs(4))
		require.NoError(t, err)
		assert.Zero(t, result.Cancelled)
		assert.Len(t, f.store.activeReservations(u2), 1)
	})

	t.Run("stale holds retire as expired", func(t *testing.T) {
		f := newFixture(t)
		user := uuid.New()
		stale := f.reserve(t, user, 1).Reservations[0]
		f.clock.Advance(6 * time.Minute)
		fresh := f.reserve(t, user, 2).Reservations[0]
		f.pub.reset()

		result, err := f.svc.Reservation.CancelReservations(ctx, user, f.screening.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Cancelled)
		assert.Equal(t, f.seatIDs(2), result.SeatIDs)

		assert.Equal(t, entity.ReservationStatusExpired, f.store.reservation(stale.ID).Status)
		assert.Equal(t, entity.ReservationStatusCancelled, f.store.reservation(fresh.ID).Status)
		assert.Len(t, f.pub.events(), 2, "both seats are announced as available")
	})
}

func TestCleanupExpired_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.reserve(t, uuid.New(), 1)
	f.reserve(t, uuid.New(), 2)
	f.clock.Advance(10 * time.Minute)

	first, err := f.svc.Reservation.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Expired)
	assert.Equal(t, t0.Add(10*time.Minute), first.RanAt)

	second, err := f.svc.Reservation.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.Expired)
	assert.Empty(t, second.Events)
}

func TestGetAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u1, buyer := uuid.New(), uuid.New()

	f.reserve(t, u1, 1)
	f.store.addTicket(&entity.Ticket{
		ID:          uuid.New(),
		ScreeningID: f.screening.ID,
		SeatID:      f.seats[1].ID,
		UserID:      buyer,
		Status:      entity.TicketStatusConfirmed,
	})
	f.store.addTicket(&entity.Ticket{
		ID:          uuid.New(),
		ScreeningID: f.screening.ID,
		SeatID:      f.seats[2].ID,
		UserID:      buyer,
		Status:      entity.TicketStatusCancelled,
	})

	result, err := f.svc.Reservation.GetAvailability(ctx, f.screening.ID, nil)
	require.NoError(t, err)
	require.Len(t, result.Seats, 10)

	byNumber := make(map[int]SeatAvailability)
	for _, s := range result.Seats {
		byNumber[s.Seat.SeatNumber] = s
	}

	assert.Equal(t, SeatStateReserved, byNumber[1].State)
	require.NotNil(t, byNumber[1].HolderID)
	assert.Equal(t, u1, *byNumber[1].HolderID)
	assert.Equal(t, t0.Add(5*time.Minute), *byNumber[1].ExpiresAt)

	assert.Equal(t, SeatStateBooked, byNumber[2].State)
	assert.Nil(t, byNumber[2].HolderID)

	assert.Equal(t, SeatStateAvailable, byNumber[3].State)

	_, err = f.svc.Reservation.GetAvailability(ctx, uuid.New(), nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetAvailability_SweepsAndPublishes(t *testing.T) {
	f := newFixture(t)
	user := uuid.New()

	f.reserve(t, user, 1)
	f.clock.Advance(5 * time.Minute)
	f.pub.reset()

	assert.Equal(t, SeatStateAvailable, f.states(t, &user)[1])
	assert.Empty(t, f.store.activeReservations(user))

	events := f.pub.events()
	require.Len(t, events, 1)
	assert.Equal(t, notify.SeatAvailable, events[0].Status)
}

func TestListUserReservations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()

	f.reserve(t, user, 1, 2)
	_, err := f.svc.Reservation.CancelReservations(ctx, user, f.screening.ID, f.seatIDs(1))
	require.NoError(t, err)

	active, err := f.svc.Reservation.ListUserReservations(ctx, user, repository.ReservationFilter{})
	require.NoError(t, err)
	assert.Len(t, active, 1)

	all, err := f.svc.Reservation.ListUserReservations(ctx, user, repository.ReservationFilter{
		ScreeningID:     &f.screening.ID,
		IncludeInactive: true,
	})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

type txFunc func(ctx context.Context, fn func(ctx context.Context) error) error

func (f txFunc) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return f(ctx, fn)
}

func TestRunTx_MapsDatabaseConflicts(t *testing.T) {
	for _, code := range []string{"23505", "40001", "40P01", "55P03"} {
		tx := txFunc(func(context.Context, func(context.Context) error) error {
			return fmt.Errorf("commit: %w", &pgconn.PgError{Code: code})
		})

		err := runTx(context.Background(), tx, nil)
		assert.ErrorIs(t, err, ErrConflict, code)
	}

	plain := txFunc(func(context.Context, func(context.Context) error) error { return errBoom })
	err := runTx(context.Background(), plain, nil)
	assert.ErrorIs(t, err, errBoom)
	assert.Empty(t, KindOf(err))
}
