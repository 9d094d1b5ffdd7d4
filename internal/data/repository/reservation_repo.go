package repository

import (
	"context"
	"fmt"
	"time"

	"cinema-reservation/internal/data/entity"
	"cinema-reservation/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// ExpireScope narrows an expiry sweep. The zero value sweeps every screening.
type ExpireScope struct {
	ScreeningID *uuid.UUID
	SeatIDs     []uuid.UUID
}

// ReservationFilter selects a user's reservations.
type ReservationFilter struct {
	ScreeningID     *uuid.UUID
	IncludeInactive bool
}

// ReservationRepository is the Reservation Ledger. Rows are never deleted, they are
// retired through status transitions guarded on the current status.
type ReservationRepository interface {
	CreateBatch(ctx context.Context, reservations []*entity.Reservation) error
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*entity.Reservation, error)
	FindByIDsForUpdate(ctx context.Context, ids []uuid.UUID) ([]*entity.Reservation, error)
	// FindActiveBySeatsForUpdate returns active rows regardless of expiry.
	FindActiveBySeatsForUpdate(ctx context.Context, screeningID uuid.UUID, seatIDs []uuid.UUID) ([]*entity.Reservation, error)
	FindLiveByScreening(ctx context.Context, screeningID uuid.UUID, now time.Time) ([]*entity.Reservation, error)
	FindActiveByUser(ctx context.Context, userID, screeningID uuid.UUID, seatIDs []uuid.UUID) ([]*entity.Reservation, error)
	FindByUser(ctx context.Context, userID uuid.UUID, filter ReservationFilter) ([]*entity.Reservation, error)
	// ExpireDue flips active rows with expires_at <= now to expired and returns them.
	ExpireDue(ctx context.Context, now time.Time, scope ExpireScope) ([]*entity.Reservation, error)
	// TransitionStatus moves rows from one status to another and returns how many moved.
	TransitionStatus(ctx context.Context, ids []uuid.UUID, from, to entity.ReservationStatus, now time.Time) (int64, error)
	UpdateExpiry(ctx context.Context, id uuid.UUID, expiresAt, now time.Time) error
}

type reservationRepository struct {
	db  database.PgxIface
	log *zap.Logger
}

func NewReservationRepository(db database.PgxIface, log *zap.Logger) ReservationRepository {
	return &reservationRepository{
		db:  db,
		log: log.With(zap.String("repository", "reservation")),
	}
}

const reservationColumns = `id, screening_id, seat_id, user_id, status, created_at, expires_at, updated_at`

func (r *reservationRepository) CreateBatch(ctx context.Context, reservations []*entity.Reservation) error {
	query := `
		INSERT INTO reservations (id, screening_id, seat_id, user_id, status, created_at, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	conn := database.Conn(ctx, r.db)
	for _, res := range reservations {
		_, err := conn.Exec(ctx, query,
			res.ID,
			res.ScreeningID,
			res.SeatID,
			res.UserID,
			res.Status,
			res.CreatedAt,
			res.ExpiresAt,
			res.UpdatedAt,
		)
		if err != nil {
			r.log.Error("Failed to create reservation",
				zap.Error(err),
				zap.String("screening_id", res.ScreeningID.String()),
				zap.String("seat_id", res.SeatID.String()),
				zap.String("user_id", res.UserID.String()),
			)
			return fmt.Errorf("create reservation for seat %s: %w", res.SeatID.String(), err)
		}
	}

	return nil
}

func (r *reservationRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*entity.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ANY($1) ORDER BY id`

	rows, err := database.Conn(ctx, r.db).Query(ctx, query, ids)
	if err != nil {
		r.log.Error("Failed to find reservations by IDs", zap.Error(err), zap.Int("count", len(ids)))
		return nil, fmt.Errorf("find %d reservations: %w", len(ids), err)
	}

	return r.collect(rows)
}

func (r *reservationRepository) FindByIDsForUpdate(ctx context.Context, ids []uuid.UUID) ([]*entity.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ANY($1) ORDER BY id FOR UPDATE`

	rows, err := database.Conn(ctx, r.db).Query(ctx, query, ids)
	if err != nil {
		r.log.Error("Failed to lock reservations by IDs", zap.Error(err), zap.Int("count", len(ids)))
		return nil, fmt.Errorf("lock %d reservations: %w", len(ids), err)
	}

	return r.collect(rows)
}

func (r *reservationRepository) FindActiveBySeatsForUpdate(ctx context.Context, screeningID uuid.UUID, seatIDs []uuid.UUID) ([]*entity.Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE screening_id = $1 AND seat_id = ANY($2) AND status = 'active'
		ORDER BY seat_id
		FOR UPDATE
	`

	rows, err := database.Conn(ctx, r.db).Query(ctx, query, screeningID, seatIDs)
	if err != nil {
		r.log.Error("Failed to find active reservations by seats",
			zap.Error(err),
			zap.String("screening_id", screeningID.String()),
		)
		return nil, fmt.Errorf("find active reservations for screening %s: %w", screeningID.String(), err)
	}

	return r.collect(rows)
}

func (r *reservationRepository) FindLiveByScreening(ctx context.Context, screeningID uuid.UUID, now time.Time) ([]*entity.Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE screening_id = $1 AND status = 'active' AND expires_at > $2
	`

	rows, err := database.Conn(ctx, r.db).Query(ctx, query, screeningID, now)
	if err != nil {
		r.log.Error("Failed to find live reservations by screening",
			zap.Error(err),
			zap.String("screening_id", screeningID.String()),
		)
		return nil, fmt.Errorf("find live reservations for screening %s: %w", screeningID.String(), err)
	}

	return r.collect(rows)
}

func (r *reservationRepository) FindActiveByUser(ctx context.Context, userID, screeningID uuid.UUID, seatIDs []uuid.UUID) ([]*entity.Reservation, error) {
	// a NULL seat list means every seat
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE user_id = $1 AND screening_id = $2 AND status = 'active'
		  AND ($3::uuid[] IS NULL OR seat_id = ANY($3))
		ORDER BY seat_id
	`

	rows, err := database.Conn(ctx, r.db).Query(ctx, query, userID, screeningID, seatIDs)
	if err != nil {
		r.log.Error("Failed to find active reservations by user",
			zap.Error(err),
			zap.String("user_id", userID.String()),
			zap.String("screening_id", screeningID.String()),
		)
		return nil, fmt.Errorf("find active reservations for user %s: %w", userID.String(), err)
	}

	return r.collect(rows)
}

func (r *reservationRepository) FindByUser(ctx context.Context, userID uuid.UUID, filter ReservationFilter) ([]*entity.Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE user_id = $1
		  AND ($2::uuid IS NULL OR screening_id = $2)
		  AND ($3 OR status = 'active')
		ORDER BY created_at DESC
	`

	rows, err := database.Conn(ctx, r.db).Query(ctx, query, userID, filter.ScreeningID, filter.IncludeInactive)
	if err != nil {
		r.log.Error("Failed to find reservations by user",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		return nil, fmt.Errorf("find reservations for user %s: %w", userID.String(), err)
	}

	return r.collect(rows)
}

func (r *reservationRepository) ExpireDue(ctx context.Context, now time.Time, scope ExpireScope) ([]*entity.Reservation, error) {
	query := `
		UPDATE reservations
		SET status = 'expired', updated_at = $1
		WHERE status = 'active' AND expires_at <= $1
		  AND ($2::uuid IS NULL OR screening_id = $2)
		  AND ($3::uuid[] IS NULL OR seat_id = ANY($3))
		RETURNING ` + reservationColumns

	rows, err := database.Conn(ctx, r.db).Query(ctx, query, now, scope.ScreeningID, scope.SeatIDs)
	if err != nil {
		r.log.Error("Failed to expire reservations", zap.Error(err))
		return nil, fmt.Errorf("expire reservations: %w", err)
	}

	return r.collect(rows)
}

func (r *reservationRepository) TransitionStatus(ctx context.Context, ids []uuid.UUID, from, to entity.ReservationStatus, now time.Time) (int64, error) {
	query := `
		UPDATE reservations
		SET status = $3, updated_at = $4
		WHERE id = ANY($1) AND status = $2
	`

	result, err := database.Conn(ctx, r.db).Exec(ctx, query, ids, from, to, now)
	if err != nil {
		r.log.Error("Failed to transition reservations",
			zap.Error(err),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.Int("count", len(ids)),
		)
		return 0, fmt.Errorf("transition %d reservations from %s to %s: %w", len(ids), from, to, err)
	}

	return result.RowsAffected(), nil
}

func (r *reservationRepository) UpdateExpiry(ctx context.Context, id uuid.UUID, expiresAt, now time.Time) error {
	query := `
		UPDATE reservations
		SET expires_at = $2, updated_at = $3
		WHERE id = $1 AND status = 'active'
	`

	result, err := database.Conn(ctx, r.db).Exec(ctx, query, id, expiresAt, now)
	if err != nil {
		r.log.Error("Failed to update reservation expiry",
			zap.Error(err),
			zap.String("reservation_id", id.String()),
		)
		return fmt.Errorf("update reservation %s expiry: %w", id.String(), err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("active reservation %s not found", id.String())
	}

	return nil
}

func (r *reservationRepository) collect(rows pgx.Rows) ([]*entity.Reservation, error) {
	defer rows.Close()

	var reservations []*entity.Reservation
	for rows.Next() {
		var res entity.Reservation
		err := rows.Scan(
			&res.ID,
			&res.ScreeningID,
			&res.SeatID,
			&res.UserID,
			&res.Status,
			&res.CreatedAt,
			&res.ExpiresAt,
			&res.UpdatedAt,
		)
		if err != nil {
			r.log.Error("Failed to scan reservation row", zap.Error(err))
			return nil, fmt.Errorf("scan reservation row: %w", err)
		}
		reservations = append(reservations, &res)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reservation rows: %w", err)
	}

	return reservations, nil
}
