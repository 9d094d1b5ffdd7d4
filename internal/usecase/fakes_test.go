package usecase

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"cinema-reservation/internal/data/entity"
	"cinema-reservation/internal/data/repository"
	"cinema-reservation/internal/notify"
	"cinema-reservation/pkg/utils"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// memStore is an in-memory ledger. Transactions are serialized and roll back by
// restoring a snapshot, which is enough to observe all-or-nothing behaviour.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	seats        map[uuid.UUID]*entity.Seat
	screenings   map[uuid.UUID]*entity.Screening
	reservations []*entity.Reservation
	tickets      []*entity.Ticket

	failTicketCreate error
	failActiveByUser error
	failMarkBooked   error
}

func newMemStore() *memStore {
	return &memStore{
		seats:      make(map[uuid.UUID]*entity.Seat),
		screenings: make(map[uuid.UUID]*entity.Screening),
	}
}

func (s *memStore) repository() *repository.Repository {
	return &repository.Repository{
		Tx:          &memTx{s: s},
		Seat:        &memSeats{s: s},
		Screening:   &memScreenings{s: s},
		Reservation: &memReservations{s: s},
		Ticket:      &memTickets{s: s},
	}
}

func cloneReservation(r *entity.Reservation) *entity.Reservation {
	c := *r
	return &c
}

func cloneTicket(t *entity.Ticket) *entity.Ticket {
	c := *t
	return &c
}

func cloneReservations(in []*entity.Reservation) []*entity.Reservation {
	out := make([]*entity.Reservation, len(in))
	for i, r := range in {
		out[i] = cloneReservation(r)
	}
	return out
}

func cloneTickets(in []*entity.Ticket) []*entity.Ticket {
	out := make([]*entity.Ticket, len(in))
	for i, t := range in {
		out[i] = cloneTicket(t)
	}
	return out
}

// activeReservations returns the active rows of a user, for assertions.
func (s *memStore) activeReservations(userID uuid.UUID) []*entity.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*entity.Reservation
	for _, r := range s.reservations {
		if r.UserID == userID && r.Status == entity.ReservationStatusActive {
			out = append(out, cloneReservation(r))
		}
	}
	return out
}

func (s *memStore) reservation(id uuid.UUID) *entity.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.reservations {
		if r.ID == id {
			return cloneReservation(r)
		}
	}
	return nil
}

func (s *memStore) ticketCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tickets)
}

func (s *memStore) addTicket(t *entity.Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets = append(s.tickets, t)
}

func (s *memStore) addReservation(r *entity.Reservation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reservations = append(s.reservations, r)
}

type inTxKey struct{}

type memTx struct {
	s *memStore
}

func (t *memTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(inTxKey{}) != nil {
		return fn(ctx)
	}

	t.s.txMu.Lock()
	defer t.s.txMu.Unlock()

	t.s.mu.Lock()
	savedRes := cloneReservations(t.s.reservations)
	savedTickets := cloneTickets(t.s.tickets)
	t.s.mu.Unlock()

	if err := fn(context.WithValue(ctx, inTxKey{}, true)); err != nil {
		t.s.mu.Lock()
		t.s.reservations = savedRes
		t.s.tickets = savedTickets
		t.s.mu.Unlock()
		return err
	}
	return nil
}

type memSeats struct {
	s *memStore
}

func sortSeats(seats []*entity.Seat) {
	slices.SortFunc(seats, func(a, b *entity.Seat) int {
		return cmp.Or(cmp.Compare(a.RowLabel, b.RowLabel), cmp.Compare(a.SeatNumber, b.SeatNumber))
	})
}

func (r *memSeats) FindByRoomID(_ context.Context, roomID uuid.UUID) ([]*entity.Seat, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*entity.Seat
	for _, seat := range r.s.seats {
		if seat.RoomID == roomID {
			c := *seat
			out = append(out, &c)
		}
	}
	sortSeats(out)
	return out, nil
}

func (r *memSeats) LockByIDs(_ context.Context, ids []uuid.UUID) ([]*entity.Seat, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*entity.Seat
	for _, id := range ids {
		if seat, ok := r.s.seats[id]; ok {
			c := *seat
			out = append(out, &c)
		}
	}
	slices.SortFunc(out, func(a, b *entity.Seat) int { return compareIDs(a.ID, b.ID) })
	return out, nil
}

type memScreenings struct {
	s *memStore
}

func (r *memScreenings) FindByID(_ context.Context, id uuid.UUID) (*entity.Screening, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	sc, ok := r.s.screenings[id]
	if !ok {
		return nil, nil
	}
	c := *sc
	return &c, nil
}

type memReservations struct {
	s *memStore
}

func (r *memReservations) CreateBatch(_ context.Context, reservations []*entity.Reservation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, res := range reservations {
		for _, existing := range r.s.reservations {
			if existing.Status == entity.ReservationStatusActive &&
				existing.ScreeningID == res.ScreeningID && existing.SeatID == res.SeatID {
				return fmt.Errorf("insert reservation: %w", &pgconn.PgError{Code: "23505"})
			}
		}
		r.s.reservations = append(r.s.reservations, cloneReservation(res))
	}
	return nil
}

func (r *memReservations) find(match func(res *entity.Reservation) bool) []*entity.Reservation {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*entity.Reservation
	for _, res := range r.s.reservations {
		if match(res) {
			out = append(out, cloneReservation(res))
		}
	}
	return out
}

func bySeat(out []*entity.Reservation) []*entity.Reservation {
	slices.SortFunc(out, func(a, b *entity.Reservation) int { return compareIDs(a.SeatID, b.SeatID) })
	return out
}

func (r *memReservations) FindByIDs(_ context.Context, ids []uuid.UUID) ([]*entity.Reservation, error) {
	return r.find(func(res *entity.Reservation) bool { return slices.Contains(ids, res.ID) }), nil
}

func (r *memReservations) FindByIDsForUpdate(ctx context.Context, ids []uuid.UUID) ([]*entity.Reservation, error) {
	return r.FindByIDs(ctx, ids)
}

func (r *memReservations) FindActiveBySeatsForUpdate(_ context.Context, screeningID uuid.UUID, seatIDs []uuid.UUID) ([]*entity.Reservation, error) {
	return bySeat(r.find(func(res *entity.Reservation) bool {
		return res.ScreeningID == screeningID && res.Status == entity.ReservationStatusActive &&
			slices.Contains(seatIDs, res.SeatID)
	})), nil
}

func (r *memReservations) FindLiveByScreening(_ context.Context, screeningID uuid.UUID, now time.Time) ([]*entity.Reservation, error) {
	return r.find(func(res *entity.Reservation) bool {
		return res.ScreeningID == screeningID && res.IsLive(now)
	}), nil
}

func (r *memReservations) FindActiveByUser(_ context.Context, userID, screeningID uuid.UUID, seatIDs []uuid.UUID) ([]*entity.Reservation, error) {
	if r.s.failActiveByUser != nil {
		return nil, r.s.failActiveByUser
	}
	return bySeat(r.find(func(res *entity.Reservation) bool {
		return res.UserID == userID && res.ScreeningID == screeningID &&
			res.Status == entity.ReservationStatusActive &&
			(seatIDs == nil || slices.Contains(seatIDs, res.SeatID))
	})), nil
}

func (r *memReservations) FindByUser(_ context.Context, userID uuid.UUID, filter repository.ReservationFilter) ([]*entity.Reservation, error) {
	out := r.find(func(res *entity.Reservation) bool {
		return res.UserID == userID &&
			(filter.ScreeningID == nil || res.ScreeningID == *filter.ScreeningID) &&
			(filter.IncludeInactive || res.Status == entity.ReservationStatusActive)
	})
	slices.SortStableFunc(out, func(a, b *entity.Reservation) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (r *memReservations) ExpireDue(_ context.Context, now time.Time, scope repository.ExpireScope) ([]*entity.Reservation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*entity.Reservation
	for _, res := range r.s.reservations {
		if res.Status != entity.ReservationStatusActive || res.ExpiresAt.After(now) {
			continue
		}
		if scope.ScreeningID != nil && res.ScreeningID != *scope.ScreeningID {
			continue
		}
		if scope.SeatIDs != nil && !slices.Contains(scope.SeatIDs, res.SeatID) {
			continue
		}
		res.Status = entity.ReservationStatusExpired
		res.UpdatedAt = now
		out = append(out, cloneReservation(res))
	}
	return out, nil
}

func (r *memReservations) TransitionStatus(_ context.Context, ids []uuid.UUID, from, to entity.ReservationStatus, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if to == entity.ReservationStatusBooked && r.s.failMarkBooked != nil {
		return 0, r.s.failMarkBooked
	}

	var n int64
	for _, res := range r.s.reservations {
		if slices.Contains(ids, res.ID) && res.Status == from {
			res.Status = to
			res.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (r *memReservations) UpdateExpiry(_ context.Context, id uuid.UUID, expiresAt, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, res := range r.s.reservations {
		if res.ID == id && res.Status == entity.ReservationStatusActive {
			res.ExpiresAt = expiresAt
			res.UpdatedAt = now
			return nil
		}
	}
	return fmt.Errorf("active reservation %s not found", id)
}

type memTickets struct {
	s *memStore
}

func (r *memTickets) CreateBatch(_ context.Context, tickets []*entity.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.s.failTicketCreate != nil {
		return r.s.failTicketCreate
	}
	for _, t := range tickets {
		for _, existing := range r.s.tickets {
			if existing.HoldsSeat() && existing.ScreeningID == t.ScreeningID && existing.SeatID == t.SeatID {
				return &pgconn.PgError{Code: "23505"}
			}
		}
		r.s.tickets = append(r.s.tickets, cloneTicket(t))
	}
	return nil
}

func (r *memTickets) find(match func(t *entity.Ticket) bool) []*entity.Ticket {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*entity.Ticket
	for _, t := range r.s.tickets {
		if match(t) {
			out = append(out, cloneTicket(t))
		}
	}
	return out
}

func (r *memTickets) FindByID(_ context.Context, id uuid.UUID) (*entity.Ticket, error) {
	found := r.find(func(t *entity.Ticket) bool { return t.ID == id })
	if len(found) == 0 {
		return nil, nil
	}
	return found[0], nil
}

func (r *memTickets) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Ticket, error) {
	return r.FindByID(ctx, id)
}

func (r *memTickets) FindLiveBySeats(_ context.Context, screeningID uuid.UUID, seatIDs []uuid.UUID) ([]*entity.Ticket, error) {
	return r.find(func(t *entity.Ticket) bool {
		return t.ScreeningID == screeningID && t.HoldsSeat() && slices.Contains(seatIDs, t.SeatID)
	}), nil
}

func (r *memTickets) FindLiveByScreening(_ context.Context, screeningID uuid.UUID) ([]*entity.Ticket, error) {
	return r.find(func(t *entity.Ticket) bool { return t.ScreeningID == screeningID && t.HoldsSeat() }), nil
}

func (r *memTickets) FindByPaymentRef(_ context.Context, paymentRef string) ([]*entity.Ticket, error) {
	return r.find(func(t *entity.Ticket) bool { return t.PaymentRef != nil && *t.PaymentRef == paymentRef }), nil
}

func (r *memTickets) userTickets(userID uuid.UUID, includeCancelled bool) []*entity.Ticket {
	return r.find(func(t *entity.Ticket) bool {
		return t.UserID == userID && (includeCancelled || t.Status != entity.TicketStatusCancelled)
	})
}

func (r *memTickets) FindByUserID(_ context.Context, userID uuid.UUID, includeCancelled bool, limit, offset int) ([]*entity.Ticket, error) {
	out := r.userTickets(userID, includeCancelled)
	if offset >= len(out) {
		return nil, nil
	}
	return out[offset:min(offset+limit, len(out))], nil
}

func (r *memTickets) CountByUserID(_ context.Context, userID uuid.UUID, includeCancelled bool) (int64, error) {
	return int64(len(r.userTickets(userID, includeCancelled))), nil
}

func (r *memTickets) UpdateStatus(_ context.Context, id uuid.UUID, from, to entity.TicketStatus, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, t := range r.s.tickets {
		if t.ID == id && t.Status == from {
			t.Status = to
			t.UpdatedAt = now
			return true, nil
		}
	}
	return false, nil
}

// recordingPublisher keeps every batch it receives.
type recordingPublisher struct {
	mu       sync.Mutex
	err      error
	messages []notify.Message
}

func (p *recordingPublisher) Publish(_ context.Context, screeningID uuid.UUID, events []notify.SeatEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.messages = append(p.messages, notify.NewMessage(screeningID, events))
	return p.err
}

func (p *recordingPublisher) events() []notify.SeatEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []notify.SeatEvent
	for _, m := range p.messages {
		out = append(out, m.Seats...)
	}
	return out
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = nil
}

var t0 = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

type fixture struct {
	store     *memStore
	clock     *clockwork.FakeClock
	pub       *recordingPublisher
	svc       *Service
	screening *entity.Screening
	seats     []*entity.Seat
}

// newFixture seeds one screening two hours ahead in a room with seats A1..A10.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithLogger(t, zaptest.NewLogger(t))
}

func newFixtureWithLogger(t *testing.T, log *zap.Logger) *fixture {
	t.Helper()

	store := newMemStore()
	roomID := uuid.New()

	screening := &entity.Screening{
		ID:                 uuid.New(),
		MovieID:            uuid.New(),
		RoomID:             roomID,
		StartsAt:           t0.Add(2 * time.Hour),
		Price:              50000,
		MovieTitle:         "Heat",
		MovieReleaseStatus: entity.ReleaseStatusNowPlaying,
	}
	store.screenings[screening.ID] = screening

	seats := make([]*entity.Seat, 10)
	for i := range seats {
		seats[i] = &entity.Seat{
			ID:         uuid.New(),
			RoomID:     roomID,
			RowLabel:   "A",
			SeatNumber: i + 1,
			SeatType:   entity.SeatTypeStandard,
		}
		store.seats[seats[i].ID] = seats[i]
	}

	clock := clockwork.NewFakeClockAt(t0)
	pub := &recordingPublisher{}
	config := &utils.Config{Reservation: utils.DefaultReservationConfig()}

	return &fixture{
		store:     store,
		clock:     clock,
		pub:       pub,
		svc:       NewService(store.repository(), config, clock, pub, log),
		screening: screening,
		seats:     seats,
	}
}

// seatIDs returns the ids of seats by their 1-based number.
func (f *fixture) seatIDs(numbers ...int) []uuid.UUID {
	ids := make([]uuid.UUID, len(numbers))
	for i, n := range numbers {
		ids[i] = f.seats[n-1].ID
	}
	return ids
}

func (f *fixture) reserve(t *testing.T, userID uuid.UUID, numbers ...int) *ReserveResult {
	t.Helper()
	result, err := f.svc.Reservation.ReserveSeats(context.Background(), userID, f.screening.ID, f.seatIDs(numbers...))
	require.NoError(t, err)
	return result
}

// states maps seat number to its state as seen by requester.
func (f *fixture) states(t *testing.T, requester *uuid.UUID) map[int]SeatState {
	t.Helper()
	result, err := f.svc.Reservation.GetAvailability(context.Background(), f.screening.ID, requester)
	require.NoError(t, err)

	out := make(map[int]SeatState, len(result.Seats))
	for _, s := range result.Seats {
		out[s.Seat.SeatNumber] = s.State
	}
	return out
}

var errBoom = errors.New("boom")
