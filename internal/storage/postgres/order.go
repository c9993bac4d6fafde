package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/qrdine/internal/domain/order"
)

const orderColumns = `id, table_ref, items, extra_charges, customer_name, special_instructions,
	dining_option, subtotal, total, status, payment_status, payment_method, transaction_id,
	created_at, updated_at`

const (
	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	ON CONFLICT (transaction_id) DO NOTHING`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	findOrderByTransactionSQL = `SELECT ` + orderColumns + ` FROM orders WHERE transaction_id = $1`

	updateOrderStatusSQL = `UPDATE orders SET status = $3, updated_at = now()
	WHERE id = $1 AND status = $2
	RETURNING ` + orderColumns

	markOrderPaidSQL = `UPDATE orders SET payment_status = 'paid', payment_method = $2, updated_at = now()
	WHERE id = $1
	RETURNING ` + orderColumns

	attachTransactionSQL = `UPDATE orders SET transaction_id = $2, updated_at = now()
	WHERE id = $1 AND transaction_id IS NULL`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`
)

const orderTransactionKey = "orders_transaction_id_key"

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create inserts a new order. A conflicting transaction id leaves the
// existing row untouched and returns order.ErrDuplicateTransaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}
	chargesJSON, err := json.Marshal(nonNilCharges(o.ExtraCharges))
	if err != nil {
		return fmt.Errorf("marshaling order charges: %w", err)
	}

	tag, err := r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.Table, itemsJSON, chargesJSON, o.CustomerName, o.SpecialInstructions,
		string(o.DiningOption), o.Subtotal, o.Total, string(o.Status), string(o.PaymentStatus),
		string(o.PaymentMethod), nullable(o.TransactionID), o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrDuplicateTransaction
	}
	return nil
}

// GetByID returns an order by id.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.queryOne(ctx, getOrderSQL, id)
}

// FindByTransactionID returns the order created for a transaction id.
func (r *OrderRepository) FindByTransactionID(ctx context.Context, transactionID string) (*order.Order, error) {
	return r.queryOne(ctx, findOrderByTransactionSQL, transactionID)
}

// UpdateStatus moves the order from one status to another in a single
// compare-and-set statement.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to order.Status) (*order.Order, error) {
	o, err := r.queryOne(ctx, updateOrderStatusSQL, id, string(from), string(to))
	if !errors.Is(err, order.ErrNotFound) {
		return o, err
	}
	if exists, existsErr := r.exists(ctx, id); existsErr != nil {
		return nil, existsErr
	} else if exists {
		return nil, order.ErrStatusConflict
	}
	return nil, order.ErrNotFound
}

// MarkPaid sets the payment axis to paid.
func (r *OrderRepository) MarkPaid(ctx context.Context, id string, method order.PaymentMethod) (*order.Order, error) {
	return r.queryOne(ctx, markOrderPaidSQL, id, string(method))
}

// AttachTransaction sets the transaction id of an order that has none. An
// order that already carries an id is left unchanged.
func (r *OrderRepository) AttachTransaction(ctx context.Context, id, transactionID string) error {
	tag, err := r.pool.Exec(ctx, attachTransactionSQL, id, transactionID)
	if err != nil {
		if isUniqueViolation(err, orderTransactionKey) {
			return order.ErrDuplicateTransaction
		}
		return fmt.Errorf("attaching transaction to order %q: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	exists, err := r.exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return order.ErrNotFound
	}
	return nil
}

func (r *OrderRepository) exists(ctx context.Context, id string) (bool, error) {
	var ok bool
	if err := r.pool.QueryRow(ctx, orderExistsSQL, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("checking order %q: %w", id, err)
	}
	return ok, nil
}

func (r *OrderRepository) queryOne(ctx context.Context, sql string, args ...any) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying order: %w", err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("scanning order: %w", err)
	}
	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o             order.Order
		itemsJSON     []byte
		chargesJSON   []byte
		diningOption  string
		status        string
		paymentStatus string
		paymentMethod string
		transactionID *string
	)
	err := row.Scan(
		&o.ID, &o.Table, &itemsJSON, &chargesJSON, &o.CustomerName, &o.SpecialInstructions,
		&diningOption, &o.Subtotal, &o.Total, &status, &paymentStatus, &paymentMethod,
		&transactionID, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling items of order %q: %w", o.ID, err)
	}
	if err := json.Unmarshal(chargesJSON, &o.ExtraCharges); err != nil {
		return o, fmt.Errorf("unmarshaling charges of order %q: %w", o.ID, err)
	}
	o.DiningOption = order.DiningOption(diningOption)
	o.Status = order.Status(status)
	o.PaymentStatus = order.PaymentStatus(paymentStatus)
	o.PaymentMethod = order.PaymentMethod(paymentMethod)
	o.TransactionID = deref(transactionID)
	return o, nil
}

func nonNilCharges(c []order.Charge) []order.Charge {
	if c == nil {
		return []order.Charge{}
	}
	return c
}
