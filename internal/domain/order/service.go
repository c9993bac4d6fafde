package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/xenking/qrdine/internal/domain/pricing"
	"github.com/xenking/qrdine/internal/domain/txid"
)

// Sentinel errors for order validation.
var (
	ErrEmptyItems           = fmt.Errorf("items required")
	ErrTableRequired        = fmt.Errorf("table required")
	ErrInvalidPaymentMethod = fmt.Errorf("invalid payment method")
	ErrInvalidDiningOption  = fmt.Errorf("invalid dining option")
	ErrInvalidStatus        = fmt.Errorf("invalid status")
)

// TotalMismatchError indicates the submitted total differs from the total
// computed from the submitted items and charges.
type TotalMismatchError struct {
	Submitted decimal.Decimal
	Computed  decimal.Decimal
}

func (e *TotalMismatchError) Error() string {
	return fmt.Sprintf("total %s does not match computed total %s",
		e.Submitted.StringFixed(2), e.Computed.StringFixed(2))
}

// IsValidation reports whether err is caused by bad caller input.
func IsValidation(err error) bool {
	var (
		mismatch *TotalMismatchError
		quantity *pricing.InvalidQuantityError
	)
	switch {
	case errors.Is(err, ErrEmptyItems),
		errors.Is(err, ErrTableRequired),
		errors.Is(err, ErrInvalidPaymentMethod),
		errors.Is(err, ErrInvalidDiningOption),
		errors.Is(err, ErrInvalidStatus),
		errors.Is(err, pricing.ErrNegativeAmount),
		errors.As(err, &mismatch),
		errors.As(err, &quantity):
		return true
	}
	return false
}

// CreateRequest is the order payload submitted at checkout.
type CreateRequest struct {
	Table               string
	Items               []Item
	ExtraCharges        []Charge
	CustomerName        string
	SpecialInstructions string
	DiningOption        DiningOption
	// Total is the client-computed grand total. Zero skips the check.
	Total         decimal.Decimal
	PaymentStatus PaymentStatus
	PaymentMethod PaymentMethod
	TransactionID string
}

// CreateResult is the outcome of CreateOrGet. Created is false when an order
// for the transaction id already existed.
type CreateResult struct {
	Order   *Order
	Created bool
}

// Option configures a Service.
type Option func(*Service)

// WithMeterProvider records reconciliation outcomes on the given provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) {
		s.meter = mp.Meter("github.com/xenking/qrdine/internal/domain/order")
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service owns order creation and order lifecycle changes. CreateOrGet is
// the only way an order comes into existence.
type Service struct {
	orders Repository
	ledger PaymentLedger
	now    func() time.Time

	meter      metric.Meter
	reconciled metric.Int64Counter
}

// NewService creates an order Service.
func NewService(orders Repository, ledger PaymentLedger, opts ...Option) *Service {
	s := &Service{
		orders: orders,
		ledger: ledger,
		now:    time.Now,
		meter:  noop.NewMeterProvider().Meter(""),
	}
	for _, o := range opts {
		o(s)
	}

	counter, err := s.meter.Int64Counter("qrdine.orders.reconciled",
		metric.WithDescription("Order create-or-get calls by outcome"),
	)
	if err != nil {
		counter, _ = noop.NewMeterProvider().Meter("").Int64Counter("qrdine.orders.reconciled")
	}
	s.reconciled = counter
	return s
}

// CreateOrGet returns the order for req.TransactionID if one exists and
// otherwise creates it. At most one order ever exists per transaction id: the
// lookup avoids a wasted insert, and the storage unique index settles races
// between concurrent callers.
func (s *Service) CreateOrGet(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	req.TransactionID = txid.Normalize(req.TransactionID)

	if req.TransactionID != "" {
		existing, err := s.orders.FindByTransactionID(ctx, req.TransactionID)
		switch {
		case err == nil:
			s.record(ctx, "existing")
			return &CreateResult{Order: existing}, nil
		case !errors.Is(err, ErrNotFound):
			return nil, errors.Wrap(err, "find order by transaction")
		}
	}

	o, err := s.build(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := s.orders.Create(ctx, o); err != nil {
		if !errors.Is(err, ErrDuplicateTransaction) {
			return nil, errors.Wrap(err, "create order")
		}
		// Lost the race to a concurrent caller with the same transaction id.
		existing, err := s.orders.FindByTransactionID(ctx, req.TransactionID)
		if err != nil {
			return nil, errors.Wrap(err, "fetch order after duplicate insert")
		}
		s.record(ctx, "race")
		return &CreateResult{Order: existing}, nil
	}

	s.record(ctx, "created")
	return &CreateResult{Order: o, Created: true}, nil
}

func (s *Service) build(ctx context.Context, req CreateRequest) (*Order, error) {
	if req.Table == "" {
		return nil, ErrTableRequired
	}
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	if !req.PaymentMethod.Valid() {
		return nil, ErrInvalidPaymentMethod
	}
	if req.DiningOption == "" {
		req.DiningOption = DineIn
	}
	if !req.DiningOption.Valid() {
		return nil, ErrInvalidDiningOption
	}
	if req.PaymentStatus == "" {
		req.PaymentStatus = PaymentPending
	}
	if !req.PaymentStatus.Valid() {
		return nil, ErrInvalidStatus
	}

	totals, err := pricing.Calculate(toLines(req.Items), toCharges(req.ExtraCharges))
	if err != nil {
		return nil, err
	}
	if !req.Total.IsZero() && !req.Total.Round(2).Equal(totals.GrandTotal) {
		return nil, &TotalMismatchError{Submitted: req.Total, Computed: totals.GrandTotal}
	}

	paymentStatus := PaymentPending
	if req.PaymentStatus == PaymentPaid {
		paid, err := s.confirmedPaid(ctx, req)
		if err != nil {
			return nil, err
		}
		if paid {
			paymentStatus = PaymentPaid
		}
	}

	now := s.now()
	return &Order{
		ID:                  uuid.New().String(),
		Table:               req.Table,
		Items:               req.Items,
		ExtraCharges:        req.ExtraCharges,
		CustomerName:        req.CustomerName,
		SpecialInstructions: req.SpecialInstructions,
		DiningOption:        req.DiningOption,
		Subtotal:            totals.Subtotal.Round(2),
		Total:               totals.GrandTotal,
		Status:              StatusPending,
		PaymentStatus:       paymentStatus,
		PaymentMethod:       req.PaymentMethod,
		TransactionID:       req.TransactionID,
		CreatedAt:           now,
		UpdatedAt:           now,
	}, nil
}

// confirmedPaid honors a "paid" request only for gateway methods whose
// transaction the ledger reports as completed.
func (s *Service) confirmedPaid(ctx context.Context, req CreateRequest) (bool, error) {
	if !req.PaymentMethod.IsGateway() || req.TransactionID == "" || s.ledger == nil {
		return false, nil
	}
	ok, err := s.ledger.IsCompleted(ctx, req.TransactionID)
	if err != nil {
		return false, errors.Wrap(err, "check payment ledger")
	}
	return ok, nil
}

// Get returns an order by id.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.orders.GetByID(ctx, id)
}

// FindByTransaction returns the order created for a transaction id. The id is
// normalized first.
func (s *Service) FindByTransaction(ctx context.Context, transactionID string) (*Order, error) {
	id := txid.Normalize(transactionID)
	if id == "" {
		return nil, ErrNotFound
	}
	return s.orders.FindByTransactionID(ctx, id)
}

// UpdateStatus applies a lifecycle transition. Setting the current status
// again is a no-op.
func (s *Service) UpdateStatus(ctx context.Context, id string, to Status) (*Order, error) {
	if !to.Valid() {
		return nil, ErrInvalidStatus
	}

	current, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == to {
		return current, nil
	}
	if !CanTransition(current.Status, to) {
		return nil, &IllegalTransitionError{From: current.Status, To: to}
	}

	updated, err := s.orders.UpdateStatus(ctx, id, current.Status, to)
	if err != nil {
		return nil, errors.Wrapf(err, "update status of order %s", id)
	}
	return updated, nil
}

// MarkPaid sets the payment axis to paid. Paying twice is a no-op.
func (s *Service) MarkPaid(ctx context.Context, id string, method PaymentMethod) (*Order, error) {
	current, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.PaymentStatus == PaymentPaid {
		return current, nil
	}
	if method == "" {
		method = current.PaymentMethod
	}
	if !method.Valid() {
		return nil, ErrInvalidPaymentMethod
	}

	updated, err := s.orders.MarkPaid(ctx, id, method)
	if err != nil {
		return nil, errors.Wrapf(err, "mark order %s paid", id)
	}
	return updated, nil
}

// AttachTransaction records the transaction id on an order created without
// one.
func (s *Service) AttachTransaction(ctx context.Context, id, transactionID string) error {
	transactionID = txid.Normalize(transactionID)
	if transactionID == "" {
		return nil
	}
	if err := s.orders.AttachTransaction(ctx, id, transactionID); err != nil {
		return errors.Wrapf(err, "attach transaction to order %s", id)
	}
	return nil
}

func (s *Service) record(ctx context.Context, outcome string) {
	s.reconciled.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func toLines(items []Item) []pricing.Line {
	lines := make([]pricing.Line, len(items))
	for i, it := range items {
		lines[i] = pricing.Line{
			ItemID:    it.ItemID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
		}
	}
	return lines
}

func toCharges(charges []Charge) []pricing.Charge {
	out := make([]pricing.Charge, len(charges))
	for i, c := range charges {
		out[i] = pricing.Charge{Label: c.Label, Amount: c.Amount}
	}
	return out
}
