package usecase

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"cinema-reservation/internal/data/entity"
	"cinema-reservation/internal/data/repository"
	"cinema-reservation/internal/notify"
	"cinema-reservation/pkg/database"

	"github.com/google/uuid"
)

// Every mutating operation follows the same protocol inside one transaction:
// lock the seat rows in ascending id order, then validate, then write.
// Checks are only trusted once the locks are held.

// runTx maps lock timeouts, deadlocks, serialization failures and unique violations
// to a conflict the client can retry after refreshing availability.
func runTx(ctx context.Context, tx database.Transactor, fn func(ctx context.Context) error) error {
	err := tx.WithinTx(ctx, fn)
	if err != nil && KindOf(err) == "" && database.IsConcurrencyConflict(err) {
		return &Error{
			Kind:    KindConflict,
			Message: "seats changed concurrently, refresh availability and retry",
		}
	}
	return err
}

func compareIDs(a, b uuid.UUID) int {
	return bytes.Compare(a[:], b[:])
}

// sortedIDs returns a sorted copy, rejecting empty sets, nil ids and duplicates.
func sortedIDs(ids []uuid.UUID, what string) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, invalid("at least one %s is required", what)
	}

	sorted := slices.Clone(ids)
	slices.SortFunc(sorted, compareIDs)
	for i, id := range sorted {
		if id == uuid.Nil {
			return nil, invalid("%s must not be empty", what)
		}
		if i > 0 && sorted[i-1] == id {
			return nil, invalid("duplicate %s %s", what, id)
		}
	}

	return sorted, nil
}

func loadScreening(ctx context.Context, repo *repository.Repository, screeningID uuid.UUID) (*entity.Screening, error) {
	screening, err := repo.Screening.FindByID(ctx, screeningID)
	if err != nil {
		return nil, fmt.Errorf("load screening %s: %w", screeningID, err)
	}
	if screening == nil {
		return nil, notFound("screening %s not found", screeningID)
	}
	return screening, nil
}

// checkBookable rejects screenings that already started or whose movie is not released.
func checkBookable(screening *entity.Screening, now time.Time) error {
	if screening.HasStarted(now) {
		return invalid("screening %s has already started", screening.ID)
	}
	if screening.MovieReleaseStatus == entity.ReleaseStatusComingSoon {
		return invalid("movie %s is not released yet", screening.MovieTitle)
	}
	return nil
}

// lockSeats locks the seat rows and verifies they all exist in the screening's room.
func lockSeats(ctx context.Context, repo *repository.Repository, screening *entity.Screening, seatIDs []uuid.UUID) (map[uuid.UUID]*entity.Seat, error) {
	locked, err := repo.Seat.LockByIDs(ctx, seatIDs)
	if err != nil {
		return nil, fmt.Errorf("lock seats: %w", err)
	}

	seats := make(map[uuid.UUID]*entity.Seat, len(locked))
	for _, seat := range locked {
		seats[seat.ID] = seat
	}

	var missing, foreign []uuid.UUID
	for _, id := range seatIDs {
		seat, ok := seats[id]
		switch {
		case !ok:
			missing = append(missing, id)
		case seat.RoomID != screening.RoomID:
			foreign = append(foreign, id)
		}
	}

	if len(missing) > 0 {
		return nil, &Error{
			Kind:    KindNotFound,
			Message: fmt.Sprintf("seats not found: %s", joinIDs(missing)),
			SeatIDs: missing,
		}
	}
	if len(foreign) > 0 {
		return nil, invalidSeats(foreign, "seats %s are not in the screening's room", seatLabels(seats, foreign))
	}

	return seats, nil
}

func seatLabels(seats map[uuid.UUID]*entity.Seat, ids []uuid.UUID) string {
	labels := make([]string, 0, len(ids))
	for _, id := range ids {
		if seat, ok := seats[id]; ok {
			labels = append(labels, seat.Label())
		} else {
			labels = append(labels, id.String())
		}
	}
	return strings.Join(labels, ", ")
}

func joinIDs(ids []uuid.UUID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ", ")
}

func reservedEvent(res *entity.Reservation, now time.Time) notify.SeatEvent {
	holder := res.UserID
	expires := res.ExpiresAt
	return notify.SeatEvent{
		ScreeningID: res.ScreeningID,
		SeatID:      res.SeatID,
		Status:      notify.SeatReserved,
		HolderID:    &holder,
		ExpiresAt:   &expires,
		OccurredAt:  now,
	}
}

func releasedEvent(screeningID, seatID, previousHolder uuid.UUID, now time.Time) notify.SeatEvent {
	return notify.SeatEvent{
		ScreeningID:      screeningID,
		SeatID:           seatID,
		Status:           notify.SeatAvailable,
		PreviousHolderID: &previousHolder,
		OccurredAt:       now,
	}
}

func releasedEvents(reservations []*entity.Reservation, now time.Time) []notify.SeatEvent {
	events := make([]notify.SeatEvent, 0, len(reservations))
	for _, res := range reservations {
		events = append(events, releasedEvent(res.ScreeningID, res.SeatID, res.UserID, now))
	}
	return events
}

func bookedEvent(ticket *entity.Ticket, now time.Time) notify.SeatEvent {
	holder := ticket.UserID
	return notify.SeatEvent{
		ScreeningID: ticket.ScreeningID,
		SeatID:      ticket.SeatID,
		Status:      notify.SeatBooked,
		HolderID:    &holder,
		OccurredAt:  now,
	}
}

func groupByScreening(events []notify.SeatEvent) map[uuid.UUID][]notify.SeatEvent {
	grouped := make(map[uuid.UUID][]notify.SeatEvent)
	for _, ev := range events {
		grouped[ev.ScreeningID] = append(grouped[ev.ScreeningID], ev)
	}
	return grouped
}
