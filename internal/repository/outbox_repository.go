package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/nzskirting/orderdesk/internal/database"
	"github.com/nzskirting/orderdesk/internal/models"
	"github.com/nzskirting/orderdesk/pkg/logger"
)

// OutboxRepository handles database operations for outbox messages
type OutboxRepository struct {
	db     *database.Database
	logger logger.Logger
}

// NewOutboxRepository creates a new OutboxRepository
func NewOutboxRepository(db *database.Database, logger logger.Logger) *OutboxRepository {
	return &OutboxRepository{
		db:     db,
		logger: logger,
	}
}

// CreateInTx creates a new outbox message within a transaction
func (r *OutboxRepository) CreateInTx(ctx context.Context, tx *sqlx.Tx, message *models.OutboxMessage) error {
	query := `
		INSERT INTO outbox_messages (
			aggregate_type, aggregate_id, event_type, payload,
			created_at, next_attempt_at, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	var id int64

	err := tx.QueryRowContext(
		ctx,
		query,
		message.AggregateType,
		message.AggregateID,
		message.EventType,
		message.Payload,
		message.CreatedAt,
		message.NextAttemptAt,
		message.Status,
	).Scan(&id)

	if err != nil {
		return fmt.Errorf("%w: failed to create outbox message: %v", ErrDatabase, err)
	}

	message.ID = id
	return nil
}

// GetPendingMessages retrieves pending messages that are due for an attempt
func (r *OutboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]*models.OutboxMessage, error) {
	query := `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at,
			processed_at, next_attempt_at, processing_attempts, last_error, status
		FROM outbox_messages
		WHERE status = $1 AND next_attempt_at <= $2
		ORDER BY created_at ASC
		LIMIT $3
	`

	messages := []*models.OutboxMessage{}

	err := r.db.DB.SelectContext(ctx, &messages, query, models.OutboxStatusPending, time.Now().UTC(), limit)

	if err != nil {
		r.logger.Error("Failed to get pending outbox messages", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return messages, nil
}

// MarkAsProcessing claims a message and counts the attempt
func (r *OutboxRepository) MarkAsProcessing(ctx context.Context, id int64) error {
	query := `
		UPDATE outbox_messages
		SET status = $1, processing_attempts = processing_attempts + 1
		WHERE id = $2
	`

	return r.exec(ctx, "processing", id, query, models.OutboxStatusProcessing, id)
}

// MarkAsCompleted records a successful publish
func (r *OutboxRepository) MarkAsCompleted(ctx context.Context, id int64) error {
	query := `
		UPDATE outbox_messages
		SET status = $1, processed_at = $2
		WHERE id = $3
	`

	return r.exec(ctx, "completed", id, query, models.OutboxStatusCompleted, time.Now().UTC(), id)
}

// ScheduleRetry returns a message to pending with a later attempt time
func (r *OutboxRepository) ScheduleRetry(ctx context.Context, id int64, next time.Time, errorMessage string) error {
	query := `
		UPDATE outbox_messages
		SET status = $1, next_attempt_at = $2, last_error = $3
		WHERE id = $4
	`

	return r.exec(ctx, "retry", id, query, models.OutboxStatusPending, next, errorMessage, id)
}

// MarkAsFailed parks a message permanently
func (r *OutboxRepository) MarkAsFailed(ctx context.Context, id int64, errorMessage string) error {
	query := `
		UPDATE outbox_messages
		SET status = $1, last_error = $2
		WHERE id = $3
	`

	return r.exec(ctx, "failed", id, query, models.OutboxStatusFailed, errorMessage, id)
}

// ReleaseProcessing returns messages left in processing by a crashed run to
// pending and reports how many were released
func (r *OutboxRepository) ReleaseProcessing(ctx context.Context) (int64, error) {
	query := `
		UPDATE outbox_messages
		SET status = $1, next_attempt_at = $2
		WHERE status = $3
	`

	res, err := r.db.DB.ExecContext(ctx, query, models.OutboxStatusPending, time.Now().UTC(), models.OutboxStatusProcessing)

	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return res.RowsAffected()
}

func (r *OutboxRepository) exec(ctx context.Context, op string, id int64, query string, args ...interface{}) error {
	if _, err := r.db.DB.ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("Failed to update outbox message", "op", op, "error", err, "messageID", id)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}
