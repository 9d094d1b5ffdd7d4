package adaptor

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"cinema-reservation/internal/data/entity"
	"cinema-reservation/internal/data/repository"
	"cinema-reservation/internal/dto/request"
	"cinema-reservation/internal/usecase"
	"cinema-reservation/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockReservationService struct {
	mock.Mock
}

func (m *mockReservationService) GetAvailability(ctx context.Context, screeningID uuid.UUID, requester *uuid.UUID) (*usecase.AvailabilityResult, error) {
	args := m.Called(ctx, screeningID, requester)
	res, _ := args.Get(0).(*usecase.AvailabilityResult)
	return res, args.Error(1)
}

func (m *mockReservationService) ReserveSeats(ctx context.Context, userID, screeningID uuid.UUID, seatIDs []uuid.UUID) (*usecase.ReserveResult, error) {
	args := m.Called(ctx, userID, screeningID, seatIDs)
	res, _ := args.Get(0).(*usecase.ReserveResult)
	return res, args.Error(1)
}

func (m *mockReservationService) ToggleSeat(ctx context.Context, userID, screeningID, seatID uuid.UUID) (*usecase.ToggleResult, error) {
	args := m.Called(ctx, userID, screeningID, seatID)
	res, _ := args.Get(0).(*usecase.ToggleResult)
	return res, args.Error(1)
}

func (m *mockReservationService) ExtendReservations(ctx context.Context, userID uuid.UUID, req usecase.ExtendRequest) (*usecase.ExtendResult, error) {
	args := m.Called(ctx, userID, req)
	res, _ := args.Get(0).(*usecase.ExtendResult)
	return res, args.Error(1)
}

func (m *mockReservationService) CancelReservations(ctx context.Context, userID, screeningID uuid.UUID, seatIDs []uuid.UUID) (*usecase.CancelResult, error) {
	args := m.Called(ctx, userID, screeningID, seatIDs)
	res, _ := args.Get(0).(*usecase.CancelResult)
	return res, args.Error(1)
}

func (m *mockReservationService) CleanupExpired(ctx context.Context) (*usecase.CleanupResult, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).(*usecase.CleanupResult)
	return res, args.Error(1)
}

func (m *mockReservationService) ListUserReservations(ctx context.Context, userID uuid.UUID, filter repository.ReservationFilter) ([]*entity.Reservation, error) {
	args := m.Called(ctx, userID, filter)
	res, _ := args.Get(0).([]*entity.Reservation)
	return res, args.Error(1)
}

type mockBookingService struct {
	mock.Mock
}

func (m *mockBookingService) BookFromReservation(ctx context.Context, userID, screeningID uuid.UUID, seatIDs []uuid.UUID, idempotencyKey string) (*usecase.BookingResult, error) {
	args := m.Called(ctx, userID, screeningID, seatIDs, idempotencyKey)
	res, _ := args.Get(0).(*usecase.BookingResult)
	return res, args.Error(1)
}

func (m *mockBookingService) BookDirect(ctx context.Context, userID, screeningID uuid.UUID, seatIDs []uuid.UUID) (*usecase.BookingResult, error) {
	args := m.Called(ctx, userID, screeningID, seatIDs)
	res, _ := args.Get(0).(*usecase.BookingResult)
	return res, args.Error(1)
}

func (m *mockBookingService) CancelTicket(ctx context.Context, ticketID, userID uuid.UUID) (*entity.Ticket, error) {
	args := m.Called(ctx, ticketID, userID)
	res, _ := args.Get(0).(*entity.Ticket)
	return res, args.Error(1)
}

func (m *mockBookingService) GetTicket(ctx context.Context, ticketID, userID uuid.UUID) (*entity.Ticket, error) {
	args := m.Called(ctx, ticketID, userID)
	res, _ := args.Get(0).(*entity.Ticket)
	return res, args.Error(1)
}

func (m *mockBookingService) ListUserTickets(ctx context.Context, userID uuid.UUID, req *request.PaginatedRequest, includeCancelled bool) (*usecase.TicketPage, error) {
	args := m.Called(ctx, userID, req, includeCancelled)
	res, _ := args.Get(0).(*usecase.TicketPage)
	return res, args.Error(1)
}

func (m *mockBookingService) GetTicketsByPaymentRef(ctx context.Context, userID uuid.UUID, paymentRef string) ([]*entity.Ticket, error) {
	args := m.Called(ctx, userID, paymentRef)
	res, _ := args.Get(0).([]*entity.Ticket)
	return res, args.Error(1)
}

// envelope mirrors utils.Response with raw payloads.
type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  json.RawMessage `json:"errors"`
}

func newRequest(t *testing.T, method, target string, body any, userID *uuid.UUID) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, target, &buf)
	if userID != nil {
		req = req.WithContext(utils.SetUserContext(req.Context(), *userID, string(entity.RoleCustomer)))
	}
	return req
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}
