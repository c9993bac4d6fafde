// Package checkout runs the table side of an order: cash checkout, the
// gateway round trip and its recovery paths, and the review gate.
package checkout

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/qrdine/internal/client"
	"github.com/xenking/qrdine/internal/domain/order"
	"github.com/xenking/qrdine/internal/domain/pricing"
	"github.com/xenking/qrdine/internal/domain/txid"
	"github.com/xenking/qrdine/internal/wire"
)

// Checkout outcomes the caller must handle distinctly.
var (
	// ErrGatewayDeclined is terminal for the transaction id; a new attempt
	// needs a new checkout.
	ErrGatewayDeclined = errors.New("payment declined by gateway")
	// ErrPaymentPending means the gateway has not confirmed yet. Nothing
	// was created; verifying again later is safe.
	ErrPaymentPending = errors.New("payment not confirmed yet")
	// ErrOrderNotRecoverable means the gateway took the money but no order
	// can be found or rebuilt. Staff must resolve it.
	ErrOrderNotRecoverable = errors.New("order not found for this transaction, contact support")
	// ErrMissingTransaction means the return URL carries no transaction id.
	ErrMissingTransaction = errors.New("return url has no transaction id")
	// ErrEmptyCart is returned for a cart without items.
	ErrEmptyCart = errors.New("cart is empty")
)

// API is the part of the server API the checkout flow calls.
type API interface {
	CreateOrder(ctx context.Context, req *wire.CreateOrder) (*wire.Order, bool, error)
	FindOrder(ctx context.Context, transactionID string) (*wire.Order, error)
	GetOrder(ctx context.Context, id string) (*wire.Order, error)
	InitiatePayment(ctx context.Context, req *wire.InitiatePayment) (*wire.PaymentForm, error)
	VerifyPayment(ctx context.Context, transactionID, data string) (*wire.Verification, error)
	LinkPayment(ctx context.Context, transactionID, orderID string) error
	RecreateOrder(ctx context.Context, transactionID string) (orderID string, created bool, err error)
}

var _ API = (*client.Client)(nil)

// IntentStore keeps the order draft of a gateway checkout across the
// redirect. Load reports ok=false when nothing is stored.
type IntentStore interface {
	Save(ctx context.Context, transactionID string, draft *wire.CreateOrder) error
	Load(ctx context.Context, transactionID string) (draft *wire.CreateOrder, ok bool, err error)
	Clear(ctx context.Context, transactionID string) error
}

// Cart is what the customer has picked at the table.
type Cart struct {
	Table               string
	Items               []wire.Item
	Charges             []wire.Charge
	CustomerName        string
	SpecialInstructions string
	DiningOption        string
}

// Flow drives checkouts for one table client.
type Flow struct {
	api     API
	intents IntentStore
	now     func() time.Time

	linkFailures metric.Int64Counter
}

// Option configures a Flow.
type Option func(*Flow)

// WithMeterProvider records link failures with mp.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(f *Flow) {
		counter, err := mp.Meter("qrdine/checkout").Int64Counter("qrdine.checkout.link_failures",
			metric.WithDescription("Gateway transactions whose order link failed"),
		)
		if err == nil {
			f.linkFailures = counter
		}
	}
}

// WithClock overrides the clock used to mint cash transaction ids.
func WithClock(now func() time.Time) Option {
	return func(f *Flow) { f.now = now }
}

// New returns a Flow.
func New(api API, intents IntentStore, opts ...Option) *Flow {
	counter, _ := noop.NewMeterProvider().Meter("").Int64Counter("")
	f := &Flow{
		api:          api,
		intents:      intents,
		now:          time.Now,
		linkFailures: counter,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Totals prices a cart the same way the server will.
func Totals(cart Cart) (pricing.Totals, error) {
	lines := make([]pricing.Line, len(cart.Items))
	for i, it := range cart.Items {
		lines[i] = pricing.Line{ItemID: it.ItemID, Name: it.Name, UnitPrice: it.UnitPrice, Quantity: it.Quantity}
	}
	charges := make([]pricing.Charge, len(cart.Charges))
	for i, c := range cart.Charges {
		charges[i] = pricing.Charge{ID: c.ID, Label: c.Label, Amount: c.Amount}
	}
	return pricing.Calculate(lines, charges)
}

func draftOf(cart Cart, method order.PaymentMethod) (*wire.CreateOrder, error) {
	if len(cart.Items) == 0 {
		return nil, ErrEmptyCart
	}
	t, err := Totals(cart)
	if err != nil {
		return nil, errors.Wrap(err, "price cart")
	}
	return &wire.CreateOrder{
		Table:               cart.Table,
		Items:               cart.Items,
		ExtraCharges:        cart.Charges,
		CustomerName:        cart.CustomerName,
		SpecialInstructions: cart.SpecialInstructions,
		DiningOption:        cart.DiningOption,
		Total:               t.GrandTotal,
		PaymentStatus:       string(order.PaymentPending),
		PaymentMethod:       string(method),
	}, nil
}

// PrepareCash prices the cart and mints its cash transaction id. Submitting
// the same draft again after a failure cannot create a second order.
func (f *Flow) PrepareCash(cart Cart) (*wire.CreateOrder, error) {
	draft, err := draftOf(cart, order.MethodCash)
	if err != nil {
		return nil, err
	}
	draft.TransactionID = txid.NewCash(f.now())
	return draft, nil
}

// Submit creates the order for a prepared draft, or returns the one that
// already exists for its transaction id.
func (f *Flow) Submit(ctx context.Context, draft *wire.CreateOrder) (*wire.Order, error) {
	o, created, err := f.api.CreateOrder(ctx, draft)
	if err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("transaction_id", o.TransactionID),
		zap.Bool("created", created),
	)
	return o, nil
}

// CheckoutCash prepares and submits a cash order.
func (f *Flow) CheckoutCash(ctx context.Context, cart Cart) (*wire.Order, error) {
	draft, err := f.PrepareCash(cart)
	if err != nil {
		return nil, err
	}
	return f.Submit(ctx, draft)
}

// link tells the server which order a transaction produced. Failure is
// logged and counted, never returned: the order already exists.
func (f *Flow) link(ctx context.Context, transactionID, orderID string) {
	if err := f.api.LinkPayment(ctx, transactionID, orderID); err != nil {
		f.linkFailures.Add(ctx, 1)
		zctx.From(ctx).Warn("Link payment failed",
			zap.String("transaction_id", transactionID),
			zap.String("order_id", orderID),
			zap.Error(err),
		)
	}
}
