package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cinema-reservation/internal/data/entity"
	"cinema-reservation/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// TicketRepository is the Ticket Ledger. A seat counts as sold while a pending or
// confirmed ticket references it.
type TicketRepository interface {
	CreateBatch(ctx context.Context, tickets []*entity.Ticket) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Ticket, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Ticket, error)
	FindLiveBySeats(ctx context.Context, screeningID uuid.UUID, seatIDs []uuid.UUID) ([]*entity.Ticket, error)
	FindLiveByScreening(ctx context.Context, screeningID uuid.UUID) ([]*entity.Ticket, error)
	FindByPaymentRef(ctx context.Context, paymentRef string) ([]*entity.Ticket, error)
	FindByUserID(ctx context.Context, userID uuid.UUID, includeCancelled bool, limit, offset int) ([]*entity.Ticket, error)
	CountByUserID(ctx context.Context, userID uuid.UUID, includeCancelled bool) (int64, error)
	// UpdateStatus moves one ticket from one status to another and reports whether it moved.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to entity.TicketStatus, now time.Time) (bool, error)
}

type ticketRepository struct {
	db  database.PgxIface
	log *zap.Logger
}

func NewTicketRepository(db database.PgxIface, log *zap.Logger) TicketRepository {
	return &ticketRepository{
		db:  db,
		log: log.With(zap.String("repository", "ticket")),
	}
}

const ticketColumns = `id, screening_id, seat_id, user_id, price, status, booked_at, confirmed_at, payment_ref, updated_at`

func (r *ticketRepository) CreateBatch(ctx context.Context, tickets []*entity.Ticket) error {
	query := `
		INSERT INTO tickets (id, screening_id, seat_id, user_id, price, status, booked_at, confirmed_at, payment_ref, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	conn := database.Conn(ctx, r.db)
	for _, t := range tickets {
		_, err := conn.Exec(ctx, query,
			t.ID,
			t.ScreeningID,
			t.SeatID,
			t.UserID,
			t.Price,
			t.Status,
			t.BookedAt,
			t.ConfirmedAt,
			t.PaymentRef,
			t.UpdatedAt,
		)
		if err != nil {
			r.log.Error("Failed to create ticket",
				zap.Error(err),
				zap.String("screening_id", t.ScreeningID.String()),
				zap.String("seat_id", t.SeatID.String()),
				zap.String("user_id", t.UserID.String()),
			)
			return fmt.Errorf("create ticket for seat %s: %w", t.SeatID.String(), err)
		}
	}

	return nil
}

func (r *ticketRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1`
	return r.findOne(ctx, query, id)
}

func (r *ticketRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1 FOR UPDATE`
	return r.findOne(ctx, query, id)
}

func (r *ticketRepository) findOne(ctx context.Context, query string, id uuid.UUID) (*entity.Ticket, error) {
	ticket, err := scanTicket(database.Conn(ctx, r.db).QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find ticket by ID",
			zap.Error(err),
			zap.String("ticket_id", id.String()),
		)
		return nil, fmt.Errorf("find ticket by ID %s: %w", id.String(), err)
	}

	return ticket, nil
}

func (r *ticketRepository) FindLiveBySeats(ctx context.Context, screeningID uuid.UUID, seatIDs []uuid.UUID) ([]*entity.Ticket, error) {
	query := `
		SELECT ` + ticketColumns + `
		FROM tickets
		WHERE screening_id = $1 AND seat_id = ANY($2) AND status IN ('pending', 'confirmed')
		ORDER BY seat_id
	`

	rows, err := database.Conn(ctx, r.db).Query(ctx, query, screeningID, seatIDs)
	if err != nil {
		r.log.Error("Failed to find live tickets by seats",
			zap.Error(err),
			zap.String("screening_id", screeningID.String()),
		)
		return nil, fmt.Errorf("find live tickets for screening %s: %w", screeningID.String(), err)
	}

	return r.collect(rows)
}

func (r *ticketRepository) FindLiveByScreening(ctx context.Context, screeningID uuid.UUID) ([]*entity.Ticket, error) {
	query := `
		SELECT ` + ticketColumns + `
		FROM tickets
		WHERE screening_id = $1 AND status IN ('pending', 'confirmed')
	`

	rows, err := database.Conn(ctx, r.db).Query(ctx, query, screeningID)
	if err != nil {
		r.log.Error("Failed to find live tickets by screening",
			zap.Error(err),
			zap.String("screening_id", screeningID.String()),
		)
		return nil, fmt.Errorf("find live tickets for screening %s: %w", screeningID.String(), err)
	}

	return r.collect(rows)
}

func (r *ticketRepository) FindByPaymentRef(ctx context.Context, paymentRef string) ([]*entity.Ticket, error) {
	query := `
		SELECT ` + ticketColumns + `
		FROM tickets
		WHERE payment_ref = $1
		ORDER BY seat_id
	`

	rows, err := database.Conn(ctx, r.db).Query(ctx, query, paymentRef)
	if err != nil {
		r.log.Error("Failed to find tickets by payment reference",
			zap.Error(err),
			zap.String("payment_ref", paymentRef),
		)
		return nil, fmt.Errorf("find tickets by payment reference %s: %w", paymentRef, err)
	}

	return r.collect(rows)
}

func (r *ticketRepository) FindByUserID(ctx context.Context, userID uuid.UUID, includeCancelled bool, limit, offset int) ([]*entity.Ticket, error) {
	query := `
		SELECT ` + ticketColumns + `
		FROM tickets
		WHERE user_id = $1 AND ($2 OR status <> 'cancelled')
		ORDER BY booked_at DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := database.Conn(ctx, r.db).Query(ctx, query, userID, includeCancelled, limit, offset)
	if err != nil {
		r.log.Error("Failed to find tickets by user ID",
			zap.Error(err),
			zap.String("user_id", userID.String()),
			zap.Int("limit", limit),
			zap.Int("offset", offset),
		)
		return nil, fmt.Errorf("find tickets by user ID %s: %w", userID.String(), err)
	}

	return r.collect(rows)
}

func (r *ticketRepository) CountByUserID(ctx context.Context, userID uuid.UUID, includeCancelled bool) (int64, error) {
	query := `SELECT COUNT(*) FROM tickets WHERE user_id = $1 AND ($2 OR status <> 'cancelled')`

	var count int64
	err := database.Conn(ctx, r.db).QueryRow(ctx, query, userID, includeCancelled).Scan(&count)
	if err != nil {
		r.log.Error("Failed to count tickets by user ID",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		return 0, fmt.Errorf("count tickets by user ID %s: %w", userID.String(), err)
	}

	return count, nil
}

func (r *ticketRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to entity.TicketStatus, now time.Time) (bool, error) {
	query := `UPDATE tickets SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`

	result, err := database.Conn(ctx, r.db).Exec(ctx, query, id, from, to, now)
	if err != nil {
		r.log.Error("Failed to update ticket status",
			zap.Error(err),
			zap.String("ticket_id", id.String()),
			zap.String("status", string(to)),
		)
		return false, fmt.Errorf("update ticket %s status to %s: %w", id.String(), string(to), err)
	}

	return result.RowsAffected() == 1, nil
}

func (r *ticketRepository) collect(rows pgx.Rows) ([]*entity.Ticket, error) {
	defer rows.Close()

	var tickets []*entity.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			r.log.Error("Failed to scan ticket row", zap.Error(err))
			return nil, fmt.Errorf("scan ticket row: %w", err)
		}
		tickets = append(tickets, ticket)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ticket rows: %w", err)
	}

	return tickets, nil
}

func scanTicket(row pgx.Row) (*entity.Ticket, error) {
	var t entity.Ticket
	err := row.Scan(
		&t.ID,
		&t.ScreeningID,
		&t.SeatID,
		&t.UserID,
		&t.Price,
		&t.Status,
		&t.BookedAt,
		&t.ConfirmedAt,
		&t.PaymentRef,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
