package adaptor

import (
	"net/http"

	"cinema-reservation/internal/usecase"
	"cinema-reservation/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Handler struct {
	Reservation *ReservationHandler
	Booking     *BookingHandler
}

func NewHandler(service *usecase.Service, log *zap.Logger) *Handler {
	return &Handler{
		Reservation: NewReservationHandler(service.Reservation, log),
		Booking:     NewBookingHandler(service.Booking, log),
	}
}

// seatErrors is the error body of responses that name the seats at fault.
type seatErrors struct {
	SeatIDs []uuid.UUID `json:"seat_ids"`
}

// handleServiceError maps error kinds to status codes. Infrastructure errors are hidden behind a 500.
func handleServiceError(w http.ResponseWriter, log *zap.Logger, err error, operation string) {
	var details any
	if ids := usecase.SeatIDsOf(err); len(ids) > 0 {
		details = seatErrors{SeatIDs: ids}
	}

	switch usecase.KindOf(err) {
	case usecase.KindNotFound:
		log.Warn(operation+" failed - not found", zap.Error(err))
		utils.ResponseJSON(w, http.StatusNotFound, false, err.Error(), nil, details)

	case usecase.KindInvalidRequest:
		log.Warn("Invalid input for "+operation, zap.Error(err))
		utils.ResponseBadRequest(w, err.Error(), details)

	case usecase.KindConflict:
		log.Warn(operation+" failed - conflict", zap.Error(err))
		utils.ResponseConflict(w, err.Error(), details)

	case usecase.KindStateConflict:
		log.Warn(operation+" failed - invalid state", zap.Error(err))
		utils.ResponseConflict(w, err.Error(), details)

	case usecase.KindForbidden:
		log.Warn(operation+" failed - forbidden", zap.Error(err))
		utils.ResponseForbidden(w, err.Error())

	default:
		log.Error("Failed to "+operation, zap.Error(err))
		utils.ResponseInternalError(w, "Internal server error")
	}
}
