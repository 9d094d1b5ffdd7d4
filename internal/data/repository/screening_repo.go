package repository

import (
	"context"
	"errors"
	"fmt"

	"cinema-reservation/internal/data/entity"
	"cinema-reservation/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// ScreeningRepository reads screenings from the catalog.
type ScreeningRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Screening, error)
}

type screeningRepository struct {
	db  database.PgxIface
	log *zap.Logger
}

func NewScreeningRepository(db database.PgxIface, log *zap.Logger) ScreeningRepository {
	return &screeningRepository{
		db:  db,
		log: log.With(zap.String("repository", "screening")),
	}
}

func (r *screeningRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Screening, error) {
	query := `
		SELECT s.id, s.movie_id, s.room_id, s.starts_at, s.price,
		       m.title, m.release_status
		FROM screenings s
		JOIN movies m ON m.id = s.movie_id
		WHERE s.id = $1
	`

	var screening entity.Screening
	err := database.Conn(ctx, r.db).QueryRow(ctx, query, id).Scan(
		&screening.ID,
		&screening.MovieID,
		&screening.RoomID,
		&screening.StartsAt,
		&screening.Price,
		&screening.MovieTitle,
		&screening.MovieReleaseStatus,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find screening by ID",
			zap.Error(err),
			zap.String("screening_id", id.String()),
		)
		return nil, fmt.Errorf("find screening by ID %s: %w", id.String(), err)
	}

	return &screening, nil
}
