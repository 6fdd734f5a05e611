package notification

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the Postgres error code raised by the unique index on
// (related_entity_id, kind).
const uniqueViolation = "23505"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) ExistsFor(ctx context.Context, appointmentID uuid.UUID, kind Kind) (bool, error) {
	var exists bool

	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM notifications
			WHERE related_entity_id = $1
			  AND kind = $2
		)
	`, appointmentID, kind).Scan(&exists)
	if err != nil {
		return false, err
	}

	return exists, nil
}

func (r *PgRepository) Create(ctx context.Context, n Notification) (*Notification, error) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (id, recipient_id, kind, title, message, related_entity_id, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, false, $7)
	`, n.ID, n.RecipientID, n.Kind, n.Title, n.Message, n.RelatedEntityID, n.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrAlreadyExists
		}
		return nil, err
	}

	return &n, nil
}
