package entity

import (
	"time"

	"github.com/google/uuid"
)

type ReleaseStatus string

const (
	ReleaseStatusNowPlaying ReleaseStatus = "now_playing"
	ReleaseStatusComingSoon ReleaseStatus = "coming_soon"
)

type Screening struct {
	ID       uuid.UUID `db:"id"`
	MovieID  uuid.UUID `db:"movie_id"`
	RoomID   uuid.UUID `db:"room_id"`
	StartsAt time.Time `db:"starts_at"`
	Price    float64   `db:"price"`

	// joined from movies
	MovieTitle         string        `db:"movie_title"`
	MovieReleaseStatus ReleaseStatus `db:"release_status"`
}

// HasStarted reports whether the screening is in the past at now.
func (s *Screening) HasStarted(now time.Time) bool {
	return !s.StartsAt.After(now)
}
