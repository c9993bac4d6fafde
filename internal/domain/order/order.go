package order

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Sentinel errors returned by repositories and the service.
var (
	ErrNotFound             = fmt.Errorf("order not found")
	ErrDuplicateTransaction = fmt.Errorf("order already exists for transaction")
	ErrStatusConflict       = fmt.Errorf("order status changed concurrently")
)

// Order is a persisted customer order. Status and payment status are
// independent axes.
type Order struct {
	ID                  string
	Table               string
	Items               []Item
	ExtraCharges        []Charge
	CustomerName        string
	SpecialInstructions string
	DiningOption        DiningOption
	Subtotal            decimal.Decimal
	Total               decimal.Decimal
	Status              Status
	PaymentStatus       PaymentStatus
	PaymentMethod       PaymentMethod
	TransactionID       string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Item is a materialized line item. The JSON form is the JSONB storage
// layout and the payload kept on gateway transactions for recreation.
type Item struct {
	ItemID    string          `json:"item_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// Charge is an extra charge as applied to an order.
type Charge struct {
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
}

// DiningOption says how the order leaves the kitchen.
type DiningOption string

const (
	DineIn   DiningOption = "dine-in"
	Takeaway DiningOption = "takeaway"
	Delivery DiningOption = "delivery"
)

// Valid reports whether o is a known dining option.
func (o DiningOption) Valid() bool {
	switch o {
	case DineIn, Takeaway, Delivery:
		return true
	}
	return false
}

// PaymentMethod is how the customer pays.
type PaymentMethod string

const (
	MethodCash    PaymentMethod = "cash"
	MethodCard    PaymentMethod = "card"
	MethodEsewa   PaymentMethod = "esewa"
	MethodKhalti  PaymentMethod = "khalti"
	MethodFonepay PaymentMethod = "fonepay"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodCard, MethodEsewa, MethodKhalti, MethodFonepay:
		return true
	}
	return false
}

// IsGateway reports whether m settles through an external redirect gateway.
func (m PaymentMethod) IsGateway() bool {
	switch m {
	case MethodEsewa, MethodKhalti, MethodFonepay:
		return true
	}
	return false
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create inserts a new order. It returns ErrDuplicateTransaction when an
	// order with the same transaction id already exists.
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	FindByTransactionID(ctx context.Context, transactionID string) (*Order, error)
	// UpdateStatus moves the order from one status to another and fails with
	// ErrStatusConflict if the stored status is no longer from.
	UpdateStatus(ctx context.Context, id string, from, to Status) (*Order, error)
	MarkPaid(ctx context.Context, id string, method PaymentMethod) (*Order, error)
	// AttachTransaction sets the transaction id on an order that has none.
	AttachTransaction(ctx context.Context, id, transactionID string) error
}

// PaymentLedger reports gateway settlement state. Only a completed gateway
// transaction lets an order be created as paid.
type PaymentLedger interface {
	IsCompleted(ctx context.Context, transactionID string) (bool, error)
}
