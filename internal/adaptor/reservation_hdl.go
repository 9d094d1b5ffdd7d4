package adaptor

import (
	"encoding/json"
	"net/http"

	"cinema-reservation/internal/data/repository"
	"cinema-reservation/internal/dto/request"
	"cinema-reservation/internal/dto/response"
	"cinema-reservation/internal/usecase"
	"cinema-reservation/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ReservationHandler struct {
	service usecase.ReservationService
	log     *zap.Logger
}

func NewReservationHandler(service usecase.ReservationService, log *zap.Logger) *ReservationHandler {
	return &ReservationHandler{
		service: service,
		log:     log.With(zap.String("handler", "reservation")),
	}
}

// GetAvailability handles GET /api/screenings/{id}/seats (public, personalised when authenticated)
func (h *ReservationHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	screeningID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		utils.ResponseBadRequest(w, "Invalid screening ID", nil)
		return
	}

	var requester *uuid.UUID
	if userID, ok := utils.GetUserIDFromContext(r.Context()); ok {
		requester = &userID
	}

	result, err := h.service.GetAvailability(r.Context(), screeningID, requester)
	if err != nil {
		handleServiceError(w, h.log, err, "get availability")
		return
	}

	utils.ResponseSuccess(w, "success", response.AvailabilityToResponse(result))
}

// ReserveSeats handles POST /api/reservations (protected)
func (h *ReservationHandler) ReserveSeats(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	var req request.ReserveSeatsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	screeningID, seatIDs, err := req.Parse()
	if err != nil {
		utils.ResponseBadRequest(w, err.Error(), nil)
		return
	}

	result, err := h.service.ReserveSeats(r.Context(), userID, screeningID, seatIDs)
	if err != nil {
		handleServiceError(w, h.log, err, "reserve seats")
		return
	}

	utils.ResponseCreated(w, "success", response.ReserveResultToResponse(result))
}

// ToggleSeat handles POST /api/reservations/toggle (protected)
func (h *ReservationHandler) ToggleSeat(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	var req request.ToggleSeatRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	screeningID, seatID, err := req.Parse()
	if err != nil {
		utils.ResponseBadRequest(w, err.Error(), nil)
		return
	}

	result, err := h.service.ToggleSeat(r.Context(), userID, screeningID, seatID)
	if err != nil {
		handleServiceError(w, h.log, err, "toggle seat")
		return
	}

	utils.ResponseSuccess(w, "success", response.ToggleResultToResponse(result))
}

// ExtendReservations handles POST /api/reservations/extend (protected)
func (h *ReservationHandler) ExtendReservations(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	var req request.ExtendReservationsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	reservationIDs, screeningID, seatIDs, err := req.Parse()
	if err != nil {
		utils.ResponseBadRequest(w, err.Error(), nil)
		return
	}

	result, err := h.service.ExtendReservations(r.Context(), userID, usecase.ExtendRequest{
		ReservationIDs:    reservationIDs,
		ScreeningID:       screeningID,
		SeatIDs:           seatIDs,
		AdditionalMinutes: req.AdditionalMinutes,
	})
	if err != nil {
		handleServiceError(w, h.log, err, "extend reservations")
		return
	}

	utils.ResponseSuccess(w, "success", response.ReservationsToResponse(result.Reservations))
}

// CancelReservations handles POST /api/reservations/cancel (protected)
func (h *ReservationHandler) CancelReservations(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	var req request.CancelReservationsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	screeningID, seatIDs, err := req.Parse()
	if err != nil {
		utils.ResponseBadRequest(w, err.Error(), nil)
		return
	}

	result, err := h.service.CancelReservations(r.Context(), userID, screeningID, seatIDs)
	if err != nil {
		handleServiceError(w, h.log, err, "cancel reservations")
		return
	}

	utils.ResponseSuccess(w, "success", response.CancelResultToResponse(result))
}

// GetUserReservations handles GET /api/user/reservations (protected)
func (h *ReservationHandler) GetUserReservations(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	query := r.URL.Query()
	filter := repository.ReservationFilter{
		IncludeInactive: utils.ParseBool(query.Get("include_inactive")),
	}
	if raw := query.Get("screening_id"); raw != "" {
		screeningID, err := uuid.Parse(raw)
		if err != nil {
			utils.ResponseBadRequest(w, "Invalid screening ID", nil)
			return
		}
		filter.ScreeningID = &screeningID
	}

	reservations, err := h.service.ListUserReservations(r.Context(), userID, filter)
	if err != nil {
		handleServiceError(w, h.log, err, "get user reservations")
		return
	}

	utils.ResponseSuccess(w, "success", response.ReservationsToResponse(reservations))
}

// CleanupExpired handles POST /api/admin/reservations/cleanup (admin only)
func (h *ReservationHandler) CleanupExpired(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.CleanupExpired(r.Context())
	if err != nil {
		handleServiceError(w, h.log, err, "cleanup expired reservations")
		return
	}

	utils.ResponseSuccess(w, "success", response.CleanupResultToResponse(result))
}

// decodeAndValidate writes the 400 itself and reports whether the handler may continue.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return false
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return false
	}

	return true
}
