// Package payment tracks gateway transactions through the checkout saga:
// initiate, verify, create the order, link. A transaction record is durable
// server-side state, so a lost client intent can be recovered by replaying
// the stored order details.
package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/qrdine/internal/domain/order"
)

// Sentinel errors for gateway transactions.
var (
	ErrTransactionNotFound   = fmt.Errorf("transaction not found")
	ErrTransactionIDRequired = fmt.Errorf("transaction id required")
	ErrOrderRefRequired      = fmt.Errorf("order reference required")
	ErrInvalidAmount         = fmt.Errorf("amount must be greater than 0")
	ErrAlreadyCompleted      = fmt.Errorf("transaction already completed")
	ErrAlreadyLinked         = fmt.Errorf("transaction linked to another order")
	ErrOrderIDRequired       = fmt.Errorf("order id required")
)

// UnrecoverableError means the gateway holds money but no order can be
// rebuilt for the transaction. It needs a human, not a retry.
type UnrecoverableError struct {
	TransactionID string
	Reason        string
}

func (e *UnrecoverableError) Error() string {
	return fmt.Sprintf("cannot recreate order for transaction %s: %s", e.TransactionID, e.Reason)
}

// Status is the gateway-side verdict on a transaction.
type Status string

const (
	StatusInitiated Status = "INITIATED"
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusInitiated, StatusPending, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Stage is the durable checkout saga position. Stages only move forward.
type Stage string

const (
	StageIntentCreated Stage = "intent-created"
	StageVerified      Stage = "verified"
	StageOrderCreated  Stage = "order-created"
	StageLinked        Stage = "linked"
)

var stageRank = map[Stage]int{
	StageIntentCreated: 0,
	StageVerified:      1,
	StageOrderCreated:  2,
	StageLinked:        3,
}

// Before reports whether s comes earlier in the saga than other.
func (s Stage) Before(other Stage) bool {
	return stageRank[s] < stageRank[other]
}

// Transaction is the payment service's record of one gateway checkout.
type Transaction struct {
	ID        string
	OrderID   string
	Table     string
	Amount    decimal.Decimal
	Status    Status
	Stage     Stage
	Details   *Details
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Details is the purchase snapshot kept for order recreation.
type Details struct {
	Table               string              `json:"table"`
	CustomerName        string              `json:"customer_name"`
	Items               []order.Item        `json:"items"`
	ExtraCharges        []order.Charge      `json:"extra_charges"`
	DiningOption        order.DiningOption  `json:"dining_option"`
	SpecialInstructions string              `json:"special_instructions"`
	Method              order.PaymentMethod `json:"method"`
	TotalAmount         decimal.Decimal     `json:"total_amount"`
	TaxAmount           decimal.Decimal     `json:"tax_amount"`
	ServiceCharge       decimal.Decimal     `json:"service_charge"`
	DeliveryCharge      decimal.Decimal     `json:"delivery_charge"`
}

// Repository persists gateway transactions.
type Repository interface {
	Create(ctx context.Context, tx *Transaction) error
	Get(ctx context.Context, id string) (*Transaction, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
	// Advance moves the saga stage forward; moving backward is ignored.
	Advance(ctx context.Context, id string, stage Stage) error
	// Link records the order produced for the transaction and advances the
	// stage to linked.
	Link(ctx context.Context, id, orderID string) error
	IsCompleted(ctx context.Context, id string) (bool, error)
	ListUnlinkedCompleted(ctx context.Context, limit int) ([]Transaction, error)
	// EachLinkedID streams the ids of transactions that already have an order.
	EachLinkedID(ctx context.Context, fn func(id string) error) error
}

// Orders is the slice of the order service the payment flow needs. Every
// order it creates goes through CreateOrGet.
type Orders interface {
	CreateOrGet(ctx context.Context, req order.CreateRequest) (*order.CreateResult, error)
	Get(ctx context.Context, id string) (*order.Order, error)
	FindByTransaction(ctx context.Context, transactionID string) (*order.Order, error)
	MarkPaid(ctx context.Context, id string, method order.PaymentMethod) (*order.Order, error)
	AttachTransaction(ctx context.Context, id, transactionID string) error
}

// FormRequest is what the gateway needs to build a signed payment form.
type FormRequest struct {
	TransactionID  string
	Amount         decimal.Decimal
	TaxAmount      decimal.Decimal
	ServiceCharge  decimal.Decimal
	DeliveryCharge decimal.Decimal
	SuccessURL     string
	FailureURL     string
}

// FormField is one signed form field, kept in submission order.
type FormField struct {
	Name  string
	Value string
}

// Form is a signed redirect form descriptor.
type Form struct {
	RedirectURL string
	Fields      []FormField
}

// Field returns the value of the named field.
func (f *Form) Field(name string) string {
	for _, fld := range f.Fields {
		if fld.Name == name {
			return fld.Value
		}
	}
	return ""
}

// Callback is a decoded, signature-checked gateway callback.
type Callback struct {
	TransactionID string
	Status        string
	TotalAmount   string
	RefID         string
}

// Gateway builds payment forms and authenticates callbacks.
type Gateway interface {
	Method() order.PaymentMethod
	Form(req FormRequest) (*Form, error)
	DecodeCallback(data string) (*Callback, error)
}
