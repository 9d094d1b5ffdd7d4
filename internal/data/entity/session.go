package entity

import (
	"time"

	"github.com/google/uuid"
)

// Session is a bearer token issued by the auth system. Only live sessions are ever loaded.
type Session struct {
	ID        uuid.UUID `db:"id"`
	UserID    uuid.UUID `db:"user_id"`
	ExpiresAt time.Time `db:"expires_at"`
}
