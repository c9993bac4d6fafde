package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/qrdine/internal/domain/pricing"
)

const (
	listActiveChargesSQL = `SELECT id, label, amount FROM extra_charges WHERE active = TRUE ORDER BY id`

	upsertChargeSQL = `INSERT INTO extra_charges (id, label, amount, active)
	VALUES ($1, $2, $3, TRUE)
	ON CONFLICT (id) DO UPDATE SET label = EXCLUDED.label, amount = EXCLUDED.amount, active = TRUE`

	upsertTableSQL = `INSERT INTO tables (uid, name) VALUES ($1, $2)
	ON CONFLICT (uid) DO UPDATE SET name = EXCLUDED.name`
)

var _ pricing.ChargeRepository = (*ChargeRepository)(nil)

// ChargeRepository serves the extra-charge schedule and the table registry.
type ChargeRepository struct {
	pool *pgxpool.Pool
}

// NewChargeRepository returns a ChargeRepository that uses the given pool.
func NewChargeRepository(pool *pgxpool.Pool) *ChargeRepository {
	return &ChargeRepository{pool: pool}
}

// ListActive returns the charges currently in effect.
func (r *ChargeRepository) ListActive(ctx context.Context) ([]pricing.Charge, error) {
	rows, err := r.pool.Query(ctx, listActiveChargesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing charges: %w", err)
	}
	charges, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (pricing.Charge, error) {
		var c pricing.Charge
		err := row.Scan(&c.ID, &c.Label, &c.Amount)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("listing charges: %w", err)
	}
	return charges, nil
}

// Upsert creates or replaces a charge and activates it.
func (r *ChargeRepository) Upsert(ctx context.Context, c pricing.Charge) error {
	if _, err := r.pool.Exec(ctx, upsertChargeSQL, c.ID, c.Label, c.Amount); err != nil {
		return fmt.Errorf("upserting charge %q: %w", c.ID, err)
	}
	return nil
}

// UpsertTable registers a table uid.
func (r *ChargeRepository) UpsertTable(ctx context.Context, uid, name string) error {
	if _, err := r.pool.Exec(ctx, upsertTableSQL, uid, name); err != nil {
		return fmt.Errorf("upserting table %q: %w", uid, err)
	}
	return nil
}
