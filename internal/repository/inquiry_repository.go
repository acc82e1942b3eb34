package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/nzskirting/orderdesk/internal/database"
	"github.com/nzskirting/orderdesk/internal/models"
	"github.com/nzskirting/orderdesk/pkg/logger"
)

const inquiryColumns = `id, first_name, last_name, email, phone, service, message, status,
	admin_notes, contacted_at, resolved_at, created_at, updated_at`

var inquiryUpdatable = map[string]bool{
	"status":       true,
	"admin_notes":  true,
	"contacted_at": true,
	"resolved_at":  true,
	"updated_at":   true,
}

// InquiryRepository handles database operations for contact inquiries
type InquiryRepository struct {
	db     *database.Database
	outbox *OutboxRepository
	logger logger.Logger
}

func NewInquiryRepository(db *database.Database, outbox *OutboxRepository, logger logger.Logger) *InquiryRepository {
	return &InquiryRepository{
		db:     db,
		outbox: outbox,
		logger: logger,
	}
}

// Create inserts a new inquiry together with its outbox event
func (r *InquiryRepository) Create(ctx context.Context, inquiry *models.Inquiry, event *models.OutboxMessage) error {
	query := `
		INSERT INTO inquiries (
			id, first_name, last_name, email, phone, service, message,
			status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(
			ctx,
			query,
			inquiry.ID,
			inquiry.FirstName,
			inquiry.LastName,
			inquiry.Email,
			inquiry.Phone,
			inquiry.Service,
			inquiry.Message,
			inquiry.Status,
			inquiry.CreatedAt,
			inquiry.UpdatedAt,
		)

		if err != nil {
			return fmt.Errorf("%w: %v", ErrDatabase, err)
		}

		if event == nil {
			return nil
		}

		return r.outbox.CreateInTx(ctx, tx, event)
	})

	if err != nil {
		r.logger.Error("Failed to create inquiry", "error", err, "inquiryID", inquiry.ID)
		return err
	}

	return nil
}

func (r *InquiryRepository) GetByID(ctx context.Context, id string) (*models.Inquiry, error) {
	query := `SELECT ` + inquiryColumns + ` FROM inquiries WHERE id = $1`

	var inquiry models.Inquiry
	err := r.db.DB.GetContext(ctx, &inquiry, query, id)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get inquiry by ID", "error", err, "inquiryID", id)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return &inquiry, nil
}

func (r *InquiryRepository) List(ctx context.Context, filter ListFilter) ([]*models.Inquiry, error) {
	filter = filter.normalized()

	query := `SELECT ` + inquiryColumns + ` FROM inquiries
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	inquiries := []*models.Inquiry{}
	err := r.db.DB.SelectContext(ctx, &inquiries, query, filter.Status, filter.Limit, filter.Offset)

	if err != nil {
		r.logger.Error("Failed to list inquiries", "error", err, "status", filter.Status)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return inquiries, nil
}

// ApplyUpdate writes the given column changes in a single statement
func (r *InquiryRepository) ApplyUpdate(ctx context.Context, id string, changes []Change) (*models.Inquiry, error) {
	query, args, err := buildUpdate("inquiries", inquiryColumns, inquiryUpdatable, id, changes)

	if err != nil {
		return nil, err
	}

	var inquiry models.Inquiry

	if err := r.db.DB.GetContext(ctx, &inquiry, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to update inquiry", "error", err, "inquiryID", id)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return &inquiry, nil
}
