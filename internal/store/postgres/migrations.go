package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is applied in order on every start. Statements must stay idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL CHECK (category IN ('fruit', 'vegetable')),
		cost_price NUMERIC NOT NULL CHECK (cost_price >= 0),
		selling_price NUMERIC NOT NULL CHECK (selling_price >= 0),
		quantity NUMERIC NOT NULL CHECK (quantity >= 0),
		unit TEXT NOT NULL CHECK (unit IN ('kg', 'piece', 'box', 'bunch')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS receipts (
		id TEXT PRIMARY KEY,
		receipt_number TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL,
		created_by TEXT NOT NULL DEFAULT '',
		total_amount NUMERIC NOT NULL,
		total_profit NUMERIC NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sale_records (
		id TEXT PRIMARY KEY,
		receipt_id TEXT NOT NULL REFERENCES receipts(id) ON DELETE CASCADE,
		receipt_number TEXT NOT NULL,
		line_no INTEGER NOT NULL,
		product_id TEXT NOT NULL,
		product_name TEXT NOT NULL,
		unit TEXT NOT NULL,
		quantity NUMERIC NOT NULL CHECK (quantity > 0),
		selling_price NUMERIC NOT NULL,
		cost_price NUMERIC NOT NULL,
		total_amount NUMERIC NOT NULL,
		profit NUMERIC NOT NULL,
		sold_at TIMESTAMPTZ NOT NULL,
		UNIQUE (receipt_id, line_no)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sale_records_sold_at ON sale_records (sold_at DESC, receipt_number DESC, line_no DESC)`,
	`CREATE TABLE IF NOT EXISTS receipt_sequences (
		day TEXT PRIMARY KEY,
		last_value BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS expenses (
		id TEXT PRIMARY KEY,
		description TEXT NOT NULL,
		amount NUMERIC NOT NULL CHECK (amount > 0),
		expense_date TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_expenses_expense_date ON expenses (expense_date DESC)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id TEXT PRIMARY KEY,
		actor_username TEXT NOT NULL,
		actor_role TEXT NOT NULL,
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs (created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS app_users (
		username TEXT PRIMARY KEY,
		password TEXT NOT NULL,
		role TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Migrate creates the schema if it does not exist yet.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
