package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/qrdine/internal/domain/order"
	"github.com/xenking/qrdine/internal/domain/payment"
)

const transactionColumns = `transaction_id, order_id, table_ref, amount, status, stage,
	order_details, created_at, updated_at`

// stageRankSQL orders saga stages so Advance never moves backward.
const stageRankSQL = `CASE %s WHEN 'intent-created' THEN 0 WHEN 'verified' THEN 1
	WHEN 'order-created' THEN 2 WHEN 'linked' THEN 3 ELSE -1 END`

var (
	createTransactionSQL = `INSERT INTO gateway_transactions
	(transaction_id, order_id, table_ref, amount, status, stage, order_details)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

	getTransactionSQL = `SELECT ` + transactionColumns + ` FROM gateway_transactions
	WHERE transaction_id = $1`

	updateTransactionStatusSQL = `UPDATE gateway_transactions SET status = $2, updated_at = now()
	WHERE transaction_id = $1`

	advanceTransactionSQL = `UPDATE gateway_transactions SET stage = $2, updated_at = now()
	WHERE transaction_id = $1 AND ` + fmt.Sprintf(stageRankSQL, "stage") + ` < ` + fmt.Sprintf(stageRankSQL, "$2::text")

	linkTransactionSQL = `UPDATE gateway_transactions
	SET order_id = $2, stage = 'linked', updated_at = now()
	WHERE transaction_id = $1 AND (order_id IS NULL OR order_id = $2)`

	transactionCompletedSQL = `SELECT EXISTS (SELECT 1 FROM gateway_transactions
	WHERE transaction_id = $1 AND status = 'COMPLETED')`

	transactionExistsSQL = `SELECT EXISTS (SELECT 1 FROM gateway_transactions WHERE transaction_id = $1)`

	listUnlinkedCompletedSQL = `SELECT ` + transactionColumns + ` FROM gateway_transactions
	WHERE status = 'COMPLETED' AND order_id IS NULL
	ORDER BY created_at LIMIT $1`

	listLinkedIDsSQL = `SELECT transaction_id FROM gateway_transactions WHERE order_id IS NOT NULL`
)

var (
	_ payment.Repository  = (*TransactionRepository)(nil)
	_ order.PaymentLedger = (*TransactionRepository)(nil)
)

// TransactionRepository persists gateway transactions and doubles as the
// order service's payment ledger.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository returns a TransactionRepository that uses the
// given pool.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

// Create inserts a transaction record.
func (r *TransactionRepository) Create(ctx context.Context, tx *payment.Transaction) error {
	var details []byte
	if tx.Details != nil {
		b, err := json.Marshal(tx.Details)
		if err != nil {
			return fmt.Errorf("marshaling order details: %w", err)
		}
		details = b
	}

	_, err := r.pool.Exec(ctx, createTransactionSQL,
		tx.ID, nullable(tx.OrderID), tx.Table, tx.Amount, string(tx.Status), string(tx.Stage), details,
	)
	if err != nil {
		return fmt.Errorf("creating transaction %q: %w", tx.ID, err)
	}
	return nil
}

// Get returns a transaction by id.
func (r *TransactionRepository) Get(ctx context.Context, id string) (*payment.Transaction, error) {
	rows, err := r.pool.Query(ctx, getTransactionSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting transaction %q: %w", id, err)
	}
	tx, err := pgx.CollectExactlyOneRow(rows, scanTransaction)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("getting transaction %q: %w", id, err)
	}
	return &tx, nil
}

// UpdateStatus sets the gateway status.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, id string, status payment.Status) error {
	return r.execOne(ctx, "updating status of", updateTransactionStatusSQL, id, string(status))
}

// Advance moves the saga stage forward. A stage at or behind the stored one
// is ignored.
func (r *TransactionRepository) Advance(ctx context.Context, id string, stage payment.Stage) error {
	tag, err := r.pool.Exec(ctx, advanceTransactionSQL, id, string(stage))
	if err != nil {
		return fmt.Errorf("advancing transaction %q: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	return r.mustExist(ctx, id)
}

// Link records the order a transaction produced. A transaction already
// linked to a different order yields payment.ErrAlreadyLinked.
func (r *TransactionRepository) Link(ctx context.Context, id, orderID string) error {
	tag, err := r.pool.Exec(ctx, linkTransactionSQL, id, orderID)
	if err != nil {
		return fmt.Errorf("linking transaction %q: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if err := r.mustExist(ctx, id); err != nil {
		return err
	}
	return payment.ErrAlreadyLinked
}

// IsCompleted reports whether the gateway confirmed the transaction.
func (r *TransactionRepository) IsCompleted(ctx context.Context, id string) (bool, error) {
	var ok bool
	if err := r.pool.QueryRow(ctx, transactionCompletedSQL, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("checking transaction %q: %w", id, err)
	}
	return ok, nil
}

// ListUnlinkedCompleted returns completed transactions without an order,
// oldest first.
func (r *TransactionRepository) ListUnlinkedCompleted(ctx context.Context, limit int) ([]payment.Transaction, error) {
	rows, err := r.pool.Query(ctx, listUnlinkedCompletedSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("listing unlinked transactions: %w", err)
	}
	txs, err := pgx.CollectRows(rows, scanTransaction)
	if err != nil {
		return nil, fmt.Errorf("listing unlinked transactions: %w", err)
	}
	return txs, nil
}

// EachLinkedID streams linked transaction ids without loading them all.
func (r *TransactionRepository) EachLinkedID(ctx context.Context, fn func(id string) error) error {
	rows, err := r.pool.Query(ctx, listLinkedIDsSQL)
	if err != nil {
		return fmt.Errorf("listing linked transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scanning linked transaction: %w", err)
		}
		if err := fn(id); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r *TransactionRepository) execOne(ctx context.Context, what, sql string, args ...any) error {
	id, _ := args[0].(string)
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("%s transaction %q: %w", what, id, err)
	}
	if tag.RowsAffected() == 0 {
		return payment.ErrTransactionNotFound
	}
	return nil
}

func (r *TransactionRepository) mustExist(ctx context.Context, id string) error {
	var ok bool
	if err := r.pool.QueryRow(ctx, transactionExistsSQL, id).Scan(&ok); err != nil {
		return fmt.Errorf("checking transaction %q: %w", id, err)
	}
	if !ok {
		return payment.ErrTransactionNotFound
	}
	return nil
}

func scanTransaction(row pgx.CollectableRow) (payment.Transaction, error) {
	var (
		tx      payment.Transaction
		orderID *string
		status  string
		stage   string
		details []byte
	)
	err := row.Scan(
		&tx.ID, &orderID, &tx.Table, &tx.Amount, &status, &stage,
		&details, &tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		return tx, err
	}
	tx.OrderID = deref(orderID)
	tx.Status = payment.Status(status)
	tx.Stage = payment.Stage(stage)
	if len(details) > 0 {
		tx.Details = &payment.Details{}
		if err := json.Unmarshal(details, tx.Details); err != nil {
			return tx, fmt.Errorf("unmarshaling details of transaction %q: %w", tx.ID, err)
		}
	}
	return tx, nil
}
