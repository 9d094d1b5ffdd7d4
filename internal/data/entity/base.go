package entity

import (
	"time"

	"github.com/google/uuid"
)

// BaseNoDelete is embedded by ledger rows, which are retired by status and never deleted.
type BaseNoDelete struct {
	ID        uuid.UUID `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
