package adaptor

import (
	"net/http"

	"cinema-reservation/internal/dto/request"
	"cinema-reservation/internal/dto/response"
	"cinema-reservation/internal/usecase"
	"cinema-reservation/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type BookingHandler struct {
	service usecase.BookingService
	log     *zap.Logger
}

func NewBookingHandler(service usecase.BookingService, log *zap.Logger) *BookingHandler {
	return &BookingHandler{
		service: service,
		log:     log.With(zap.String("handler", "booking")),
	}
}

// BookFromReservation handles POST /api/bookings/from-reservation (protected)
func (h *BookingHandler) BookFromReservation(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	var req request.BookFromReservationRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	screeningID, seatIDs, err := req.Parse()
	if err != nil {
		utils.ResponseBadRequest(w, err.Error(), nil)
		return
	}

	result, err := h.service.BookFromReservation(r.Context(), userID, screeningID, seatIDs, req.IdempotencyKey)
	if err != nil {
		handleServiceError(w, h.log, err, "book from reservation")
		return
	}

	// a replay created nothing new
	if result.Replayed {
		utils.ResponseSuccess(w, "success", response.BookingResultToResponse(result))
		return
	}
	utils.ResponseCreated(w, "success", response.BookingResultToResponse(result))
}

// BookDirect handles POST /api/bookings (protected)
func (h *BookingHandler) BookDirect(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	var req request.BookDirectRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	screeningID, seatIDs, err := req.Parse()
	if err != nil {
		utils.ResponseBadRequest(w, err.Error(), nil)
		return
	}

	result, err := h.service.BookDirect(r.Context(), userID, screeningID, seatIDs)
	if err != nil {
		handleServiceError(w, h.log, err, "book direct")
		return
	}

	utils.ResponseCreated(w, "success", response.BookingResultToResponse(result))
}

// CancelTicket handles PUT /api/tickets/{id}/cancel (protected)
func (h *BookingHandler) CancelTicket(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	ticketID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		utils.ResponseBadRequest(w, "Invalid ticket ID", nil)
		return
	}

	ticket, err := h.service.CancelTicket(r.Context(), ticketID, userID)
	if err != nil {
		handleServiceError(w, h.log, err, "cancel ticket")
		return
	}

	utils.ResponseSuccess(w, "success", response.TicketToResponse(ticket))
}

// GetTicket handles GET /api/tickets/{id} (protected)
func (h *BookingHandler) GetTicket(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	ticketID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		utils.ResponseBadRequest(w, "Invalid ticket ID", nil)
		return
	}

	ticket, err := h.service.GetTicket(r.Context(), ticketID, userID)
	if err != nil {
		handleServiceError(w, h.log, err, "get ticket")
		return
	}

	utils.ResponseSuccess(w, "success", response.TicketToResponse(ticket))
}

// GetUserTickets handles GET /api/user/tickets (protected)
func (h *BookingHandler) GetUserTickets(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	query := r.URL.Query()
	req := &request.PaginatedRequest{
		Page:    utils.ParseInt(query.Get("page"), 1),
		PerPage: utils.ParseInt(query.Get("per_page"), 10),
	}
	includeCancelled := utils.ParseBool(query.Get("include_cancelled"))

	page, err := h.service.ListUserTickets(r.Context(), userID, req, includeCancelled)
	if err != nil {
		handleServiceError(w, h.log, err, "get user tickets")
		return
	}

	utils.ResponseSuccess(w, "success",
		response.NewPaginatedResponse(response.TicketsToResponse(page.Tickets), req.Page, req.Limit(), page.Total))
}

// GetTicketsByPaymentRef handles GET /api/tickets/payment/{ref} (protected)
func (h *BookingHandler) GetTicketsByPaymentRef(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	ref := chi.URLParam(r, "ref")
	if ref == "" {
		utils.ResponseBadRequest(w, "Payment reference is required", nil)
		return
	}

	tickets, err := h.service.GetTicketsByPaymentRef(r.Context(), userID, ref)
	if err != nil {
		handleServiceError(w, h.log, err, "get tickets by payment ref")
		return
	}

	utils.ResponseSuccess(w, "success", response.TicketsToResponse(tickets))
}
