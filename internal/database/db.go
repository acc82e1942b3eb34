package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/nzskirting/orderdesk/internal/config"
	"github.com/nzskirting/orderdesk/pkg/logger"
)

// Database represents a database connection
type Database struct {
	DB     *sqlx.DB
	logger logger.Logger
}

// New creates a new database connection
func New(cfg *config.Config, logger logger.Logger) (*Database, error) {
	db, err := sqlx.Connect("postgres", cfg.DB.URL)

	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	db.SetMaxIdleConns(cfg.DB.MaxOpenConns / 2)
	db.SetConnMaxLifetime(5 * time.Minute)

	logger.Info("Connected to database")

	return &Database{
		DB:     db,
		logger: logger,
	}, nil
}

// Wrap builds a Database around an existing handle
func Wrap(db *sqlx.DB, logger logger.Logger) *Database {
	return &Database{DB: db, logger: logger}
}

// Ping checks the database connection
func (d *Database) Ping(ctx context.Context) error {
	return d.DB.PingContext(ctx)
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.DB.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	id VARCHAR(36) PRIMARY KEY,
	order_number VARCHAR(32) NOT NULL,
	customer_name TEXT NOT NULL,
	customer_email TEXT NOT NULL,
	customer_phone TEXT NOT NULL,
	address TEXT,
	city TEXT,
	postal_code TEXT,
	notes TEXT,
	items JSONB NOT NULL DEFAULT '[]',
	total_amount NUMERIC(12, 2) NOT NULL DEFAULT 0,
	status VARCHAR(20) NOT NULL DEFAULT 'pending'
		CHECK (status IN ('pending','contacted','confirmed','processing','shipped','delivered','cancelled')),
	payment_status VARCHAR(20) NOT NULL DEFAULT 'unpaid'
		CHECK (payment_status IN ('unpaid','partial','paid')),
	amount_paid NUMERIC(12, 2),
	payment_method TEXT,
	transaction_reference TEXT,
	payment_date DATE,
	payment_notes TEXT,
	admin_notes TEXT,
	contacted_at TIMESTAMPTZ,
	confirmed_at TIMESTAMPTZ,
	shipped_at TIMESTAMPTZ,
	delivered_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at);

CREATE TABLE IF NOT EXISTS inquiries (
	id VARCHAR(36) PRIMARY KEY,
	first_name TEXT NOT NULL,
	last_name TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL,
	phone TEXT,
	service VARCHAR(20) NOT NULL DEFAULT 'other'
		CHECK (service IN ('quote','installation','consultation','other')),
	message TEXT NOT NULL,
	status VARCHAR(20) NOT NULL DEFAULT 'new'
		CHECK (status IN ('new','contacted','resolved','archived')),
	admin_notes TEXT,
	contacted_at TIMESTAMPTZ,
	resolved_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_inquiries_status ON inquiries(status);

CREATE TABLE IF NOT EXISTS products (
	id VARCHAR(36) PRIMARY KEY,
	name TEXT NOT NULL,
	slug TEXT NOT NULL UNIQUE,
	images TEXT[] NOT NULL DEFAULT ARRAY['','','','',''],
	led VARCHAR(20) NOT NULL DEFAULT 'Without LED',
	height TEXT NOT NULL DEFAULT '',
	height_options DOUBLE PRECISION[] NOT NULL,
	price_per_meter NUMERIC(10, 2) NOT NULL DEFAULT 0,
	description TEXT NOT NULL DEFAULT '',
	category VARCHAR(20) NOT NULL
		CHECK (category IN ('residential','smart','commercial')),
	seo_title TEXT NOT NULL DEFAULT '',
	seo_description TEXT NOT NULL DEFAULT '',
	active BOOLEAN NOT NULL DEFAULT TRUE,
	in_stock BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS outbox_messages (
	id BIGSERIAL PRIMARY KEY,
	aggregate_type VARCHAR(50) NOT NULL,
	aggregate_id VARCHAR(50) NOT NULL,
	event_type VARCHAR(50) NOT NULL,
	payload JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	processed_at TIMESTAMPTZ,
	next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	processing_attempts INT NOT NULL DEFAULT 0,
	last_error TEXT,
	status VARCHAR(20) NOT NULL DEFAULT 'pending'
);

CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox_messages(status, next_attempt_at);
`

// RunMigrations creates the tables if they do not exist yet
func (d *Database) RunMigrations(ctx context.Context) error {
	if _, err := d.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.logger.Info("Database migrations completed successfully")
	return nil
}
