package repository

import (
	"context"
	"fmt"

	"cinema-reservation/internal/data/entity"
	"cinema-reservation/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// SeatRepository is the read-only Seat Store. LockByIDs is the only entry point
// for the per-seat row locks that serialize writers on the same seats.
type SeatRepository interface {
	FindByRoomID(ctx context.Context, roomID uuid.UUID) ([]*entity.Seat, error)
	// LockByIDs takes FOR UPDATE locks in ascending id order. Unknown ids are simply absent from the result.
	LockByIDs(ctx context.Context, ids []uuid.UUID) ([]*entity.Seat, error)
}

type seatRepository struct {
	db  database.PgxIface
	log *zap.Logger
}

func NewSeatRepository(db database.PgxIface, log *zap.Logger) SeatRepository {
	return &seatRepository{
		db:  db,
		log: log.With(zap.String("repository", "seat")),
	}
}

func (r *seatRepository) FindByRoomID(ctx context.Context, roomID uuid.UUID) ([]*entity.Seat, error) {
	query := `
		SELECT id, room_id, row_label, seat_number, seat_type
		FROM seats
		WHERE room_id = $1
		ORDER BY row_label, seat_number
	`

	rows, err := database.Conn(ctx, r.db).Query(ctx, query, roomID)
	if err != nil {
		r.log.Error("Failed to find seats by room",
			zap.Error(err),
			zap.String("room_id", roomID.String()),
		)
		return nil, fmt.Errorf("find seats by room %s: %w", roomID.String(), err)
	}

	return r.collect(rows)
}

func (r *seatRepository) LockByIDs(ctx context.Context, ids []uuid.UUID) ([]*entity.Seat, error) {
	query := `
		SELECT id, room_id, row_label, seat_number, seat_type
		FROM seats
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`

	rows, err := database.Conn(ctx, r.db).Query(ctx, query, ids)
	if err != nil {
		r.log.Error("Failed to lock seats",
			zap.Error(err),
			zap.Int("seat_count", len(ids)),
		)
		return nil, fmt.Errorf("lock %d seats: %w", len(ids), err)
	}

	return r.collect(rows)
}

func (r *seatRepository) collect(rows pgx.Rows) ([]*entity.Seat, error) {
	defer rows.Close()

	var seats []*entity.Seat
	for rows.Next() {
		var seat entity.Seat
		err := rows.Scan(
			&seat.ID,
			&seat.RoomID,
			&seat.RowLabel,
			&seat.SeatNumber,
			&seat.SeatType,
		)
		if err != nil {
			r.log.Error("Failed to scan seat row", zap.Error(err))
			return nil, fmt.Errorf("scan seat row: %w", err)
		}
		seats = append(seats, &seat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate seat rows: %w", err)
	}

	return seats, nil
}
