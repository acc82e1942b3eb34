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

const orderColumns = `id, order_number, customer_name, customer_email, customer_phone,
	address, city, postal_code, notes, items, total_amount, status, payment_status,
	amount_paid, payment_method, transaction_reference, payment_date, payment_notes,
	admin_notes, contacted_at, confirmed_at, shipped_at, delivered_at, created_at, updated_at`

var orderUpdatable = map[string]bool{
	"status":                true,
	"payment_status":        true,
	"amount_paid":           true,
	"payment_method":        true,
	"transaction_reference": true,
	"payment_date":          true,
	"payment_notes":         true,
	"admin_notes":           true,
	"contacted_at":          true,
	"confirmed_at":          true,
	"shipped_at":            true,
	"delivered_at":          true,
	"updated_at":            true,
}

// OrderRepository handles database operations for orders
type OrderRepository struct {
	db     *database.Database
	outbox *OutboxRepository
	logger logger.Logger
}

// NewOrderRepository creates a new OrderRepository
func NewOrderRepository(db *database.Database, outbox *OutboxRepository, logger logger.Logger) *OrderRepository {
	return &OrderRepository{
		db:     db,
		outbox: outbox,
		logger: logger,
	}
}

// Create inserts a new order together with its outbox event in one transaction
func (r *OrderRepository) Create(ctx context.Context, order *models.Order, event *models.OutboxMessage) error {
	query := `
		INSERT INTO orders (
			id, order_number, customer_name, customer_email, customer_phone,
			address, city, postal_code, notes, items, total_amount,
			status, payment_status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(
			ctx,
			query,
			order.ID,
			order.OrderNumber,
			order.CustomerName,
			order.CustomerEmail,
			order.CustomerPhone,
			order.Address,
			order.City,
			order.PostalCode,
			order.Notes,
			order.Items,
			order.TotalAmount,
			order.Status,
			order.PaymentStatus,
			order.CreatedAt,
			order.UpdatedAt,
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
		r.logger.Error("Failed to create order", "error", err, "orderID", order.ID)
		return err
	}

	return nil
}

// GetByID retrieves an order by its ID
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	var order models.Order
	err := r.db.DB.GetContext(ctx, &order, query, id)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get order by ID", "error", err, "orderID", id)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return &order, nil
}

// List retrieves orders, newest first
func (r *OrderRepository) List(ctx context.Context, filter ListFilter) ([]*models.Order, error) {
	filter = filter.normalized()

	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	orders := []*models.Order{}
	err := r.db.DB.SelectContext(ctx, &orders, query, filter.Status, filter.Limit, filter.Offset)

	if err != nil {
		r.logger.Error("Failed to list orders", "error", err, "status", filter.Status)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return orders, nil
}

// ApplyUpdate writes the given column changes in a single statement and
// returns the full updated row
func (r *OrderRepository) ApplyUpdate(ctx context.Context, id string, changes []Change) (*models.Order, error) {
	query, args, err := buildUpdate("orders", orderColumns, orderUpdatable, id, changes)

	if err != nil {
		return nil, err
	}

	var order models.Order

	if err := r.db.DB.GetContext(ctx, &order, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to update order", "error", err, "orderID", id)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return &order, nil
}
