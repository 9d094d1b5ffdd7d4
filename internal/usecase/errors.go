package usecase

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Kind classifies business failures so the transport can map them.
type Kind string

const (
	KindNotFound       Kind = "not_found"
	KindInvalidRequest Kind = "invalid_request"
	KindConflict       Kind = "conflict"
	KindForbidden      Kind = "forbidden"
	KindStateConflict  Kind = "state_conflict"
)

// Sentinels for errors.Is matching on kind.
var (
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrInvalidRequest = &Error{Kind: KindInvalidRequest}
	ErrConflict       = &Error{Kind: KindConflict}
	ErrForbidden      = &Error{Kind: KindForbidden}
	ErrStateConflict  = &Error{Kind: KindStateConflict}
)

// Error is a business failure. SeatIDs names the seats at fault when there are any.
type Error struct {
	Kind    Kind
	Message string
	SeatIDs []uuid.UUID
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of err, or "" for infrastructure errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// SeatIDsOf returns the seats named by a business error.
func SeatIDsOf(err error) []uuid.UUID {
	var e *Error
	if errors.As(err, &e) {
		return e.SeatIDs
	}
	return nil
}

func notFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func invalid(format string, args ...any) error {
	return &Error{Kind: KindInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

func invalidSeats(seatIDs []uuid.UUID, format string, args ...any) error {
	return &Error{Kind: KindInvalidRequest, Message: fmt.Sprintf(format, args...), SeatIDs: seatIDs}
}

func conflict(seatIDs []uuid.UUID, format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...), SeatIDs: seatIDs}
}

func forbidden(format string, args ...any) error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func stateConflict(format string, args ...any) error {
	return &Error{Kind: KindStateConflict, Message: fmt.Sprintf(format, args...)}
}
