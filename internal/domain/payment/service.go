package payment

import (
	"context"
	"net/url"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/qrdine/internal/domain/order"
	"github.com/xenking/qrdine/internal/domain/txid"
)

// Outcome is the verification verdict reported to the client.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomePending Outcome = "pending"
)

// InitiateRequest starts a gateway payment. OrderRef is either an existing
// order id or a temporary reference minted with txid.Temp.
type InitiateRequest struct {
	Amount         decimal.Decimal
	TaxAmount      decimal.Decimal
	ServiceCharge  decimal.Decimal
	DeliveryCharge decimal.Decimal
	OrderRef       string
	TableRef       string
	// Draft carries the cart for temporary references so the order can be
	// rebuilt if the client loses it.
	Draft *Details
}

// Initiation is the result of Initiate.
type Initiation struct {
	TransactionID string
	Form          *Form
}

// Verification is the result of Verify.
type Verification struct {
	TransactionID string
	Outcome       Outcome
	OrderID       string
	PaymentStatus order.PaymentStatus
	Message       string
}

// Recreation is the result of RecreateOrder.
type Recreation struct {
	OrderID string
	Created bool
}

// Config holds non-dependency settings for the Service.
type Config struct {
	// PublicBaseURL is the table frontend origin that the gateway redirects
	// back to.
	PublicBaseURL string
}

// Service implements the gateway side of checkout.
type Service struct {
	txs     Repository
	orders  Orders
	gateway Gateway
	baseURL string
	newID   func() string
}

// NewService creates a payment Service.
func NewService(cfg Config, txs Repository, orders Orders, gateway Gateway) *Service {
	return &Service{
		txs:     txs,
		orders:  orders,
		gateway: gateway,
		baseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		newID:   txid.NewGateway,
	}
}

// Initiate records a new gateway transaction and returns the signed form
// the client must POST to the gateway.
func (s *Service) Initiate(ctx context.Context, req InitiateRequest) (*Initiation, error) {
	if req.OrderRef == "" {
		return nil, ErrOrderRefRequired
	}
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	for _, part := range []decimal.Decimal{req.TaxAmount, req.ServiceCharge, req.DeliveryCharge} {
		if part.IsNegative() {
			return nil, ErrInvalidAmount
		}
	}

	total := req.Amount.Add(req.TaxAmount).Add(req.ServiceCharge).Add(req.DeliveryCharge)
	id := s.newID()

	tx := &Transaction{
		ID:     id,
		Amount: total.Round(2),
		Status: StatusInitiated,
		Stage:  StageIntentCreated,
	}

	var successURL, failureURL string
	if table, ok := txid.TableFromTemp(req.OrderRef); ok {
		if table == "" {
			table = req.TableRef
		}
		details := &Details{}
		if req.Draft != nil {
			*details = *req.Draft
		}
		details.Table = table
		tx.Table = table
		tx.Details = s.withAmounts(details, req, total)

		successURL = s.link("/menu/order-status/temp", url.Values{"transaction_uuid": {id}})
		failureURL = s.link("/menu/payment-cancelled", url.Values{"transaction_uuid": {id}, "tableUid": {table}})
	} else {
		o, err := s.orders.Get(ctx, req.OrderRef)
		if err != nil {
			return nil, errors.Wrap(err, "get order")
		}
		tx.OrderID = o.ID
		tx.Table = o.Table
		tx.Details = s.withAmounts(&Details{
			Table:               o.Table,
			CustomerName:        o.CustomerName,
			Items:               o.Items,
			ExtraCharges:        o.ExtraCharges,
			DiningOption:        o.DiningOption,
			SpecialInstructions: o.SpecialInstructions,
		}, req, total)

		successURL = s.link("/menu/order-status/"+url.PathEscape(o.ID), url.Values{"transaction_uuid": {id}})
		failureURL = s.link("/menu/payment-cancelled", url.Values{"order_id": {o.ID}, "tableUid": {o.Table}})
	}

	form, err := s.gateway.Form(FormRequest{
		TransactionID:  id,
		Amount:         req.Amount,
		TaxAmount:      req.TaxAmount,
		ServiceCharge:  req.ServiceCharge,
		DeliveryCharge: req.DeliveryCharge,
		SuccessURL:     successURL,
		FailureURL:     failureURL,
	})
	if err != nil {
		return nil, errors.Wrap(err, "build gateway form")
	}

	if err := s.txs.Create(ctx, tx); err != nil {
		return nil, errors.Wrap(err, "create transaction")
	}

	zctx.From(ctx).Info("Gateway payment initiated",
		zap.String("transaction_id", id),
		zap.String("order_ref", req.OrderRef),
		zap.String("amount", tx.Amount.StringFixed(2)),
	)
	return &Initiation{TransactionID: id, Form: form}, nil
}

func (s *Service) withAmounts(d *Details, req InitiateRequest, total decimal.Decimal) *Details {
	if d.Method == "" {
		d.Method = s.gateway.Method()
	}
	if d.DiningOption == "" {
		d.DiningOption = order.DineIn
	}
	d.TotalAmount = total
	d.TaxAmount = req.TaxAmount
	d.ServiceCharge = req.ServiceCharge
	d.DeliveryCharge = req.DeliveryCharge
	return d
}

func (s *Service) link(path string, q url.Values) string {
	return s.baseURL + path + "?" + q.Encode()
}

// Verify reports the gateway verdict for a returning client. A completed or
// cancelled transaction answers from stored state. Otherwise the callback
// payload decides; without one the answer is pending, never success.
func (s *Service) Verify(ctx context.Context, transactionID, data string) (*Verification, error) {
	id := txid.Normalize(transactionID)
	if id == "" {
		return nil, ErrTransactionIDRequired
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("transaction.id", id))
	lg := zctx.From(ctx).With(zap.String("transaction_id", id))

	tx, err := s.txs.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch tx.Status {
	case StatusCompleted:
		return s.succeed(ctx, tx, "payment already verified")
	case StatusCancelled:
		return s.fail(tx, "payment was cancelled"), nil
	case StatusFailed:
		return s.fail(tx, "payment failed"), nil
	}

	if data != "" {
		cb, err := s.gateway.DecodeCallback(data)
		switch {
		case err != nil:
			lg.Warn("Rejected gateway callback", zap.Error(err))
		case txid.Normalize(cb.TransactionID) != id:
			lg.Warn("Gateway callback for another transaction",
				zap.String("callback_transaction_id", cb.TransactionID))
		case strings.EqualFold(cb.Status, "COMPLETE"):
			if err := s.txs.UpdateStatus(ctx, id, StatusCompleted); err != nil {
				return nil, errors.Wrap(err, "complete transaction")
			}
			tx.Status = StatusCompleted
			lg.Info("Gateway payment completed", zap.String("ref_id", cb.RefID))
			return s.succeed(ctx, tx, "payment verified")
		default:
			status := Status(strings.ToUpper(cb.Status))
			if !status.Valid() || status == StatusCompleted || status == StatusInitiated {
				status = StatusFailed
			}
			if err := s.txs.UpdateStatus(ctx, id, status); err != nil {
				return nil, errors.Wrap(err, "update transaction status")
			}
			tx.Status = status
			lg.Info("Gateway payment not completed", zap.String("gateway_status", cb.Status))
			if status == StatusPending {
				return s.pending(tx), nil
			}
			return s.fail(tx, "payment not completed"), nil
		}
	}

	return s.pending(tx), nil
}

func (s *Service) succeed(ctx context.Context, tx *Transaction, msg string) (*Verification, error) {
	if err := s.txs.Advance(ctx, tx.ID, StageVerified); err != nil {
		return nil, errors.Wrap(err, "advance stage")
	}
	if tx.OrderID != "" {
		if _, err := s.orders.MarkPaid(ctx, tx.OrderID, s.method(tx)); err != nil {
			return nil, errors.Wrap(err, "mark order paid")
		}
	}
	return &Verification{
		TransactionID: tx.ID,
		Outcome:       OutcomeSuccess,
		OrderID:       tx.OrderID,
		PaymentStatus: order.PaymentPaid,
		Message:       msg,
	}, nil
}

func (s *Service) fail(tx *Transaction, msg string) *Verification {
	return &Verification{
		TransactionID: tx.ID,
		Outcome:       OutcomeFailure,
		OrderID:       tx.OrderID,
		PaymentStatus: order.PaymentPending,
		Message:       msg,
	}
}

func (s *Service) pending(tx *Transaction) *Verification {
	return &Verification{
		TransactionID: tx.ID,
		Outcome:       OutcomePending,
		OrderID:       tx.OrderID,
		PaymentStatus: order.PaymentPending,
		Message:       "payment status is " + string(tx.Status) + ", waiting for confirmation",
	}
}

func (s *Service) method(tx *Transaction) order.PaymentMethod {
	if tx.Details != nil && tx.Details.Method != "" {
		return tx.Details.Method
	}
	return s.gateway.Method()
}

// Status returns the stored transaction.
func (s *Service) Status(ctx context.Context, transactionID string) (*Transaction, error) {
	id := txid.Normalize(transactionID)
	if id == "" {
		return nil, ErrTransactionIDRequired
	}
	return s.txs.Get(ctx, id)
}

// Cancel marks a transaction cancelled. A completed transaction cannot be
// cancelled.
func (s *Service) Cancel(ctx context.Context, transactionID string) (*Transaction, error) {
	tx, err := s.Status(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if tx.Status == StatusCompleted {
		return nil, ErrAlreadyCompleted
	}
	if tx.Status == StatusCancelled {
		return tx, nil
	}
	if err := s.txs.UpdateStatus(ctx, tx.ID, StatusCancelled); err != nil {
		return nil, errors.Wrap(err, "cancel transaction")
	}
	tx.Status = StatusCancelled
	return tx, nil
}

// Link associates a transaction with the order it produced. When the
// transaction is completed the order is marked paid.
func (s *Service) Link(ctx context.Context, transactionID, orderID string) error {
	id := txid.Normalize(transactionID)
	if id == "" {
		return ErrTransactionIDRequired
	}
	if orderID == "" {
		return ErrOrderIDRequired
	}
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("transaction.id", id),
		attribute.String("order.id", orderID),
	)

	tx, err := s.txs.Get(ctx, id)
	if err != nil {
		return err
	}
	if tx.OrderID != "" && tx.OrderID != orderID {
		return ErrAlreadyLinked
	}
	if _, err := s.orders.Get(ctx, orderID); err != nil {
		return errors.Wrap(err, "get order")
	}

	// The repository refuses a second order, so it goes first.
	if err := s.txs.Link(ctx, id, orderID); err != nil {
		return errors.Wrap(err, "link transaction")
	}
	if err := s.orders.AttachTransaction(ctx, orderID, id); err != nil {
		return errors.Wrap(err, "attach transaction")
	}
	if tx.Status == StatusCompleted {
		if _, err := s.orders.MarkPaid(ctx, orderID, s.method(tx)); err != nil {
			return errors.Wrap(err, "mark order paid")
		}
	}

	zctx.From(ctx).Info("Transaction linked",
		zap.String("transaction_id", id),
		zap.String("order_id", orderID),
	)
	return nil
}

// RecreateOrder rebuilds the order for a completed transaction from its
// stored details, resuming the saga from its last durable stage. The order is
// created through the order reconciler, so repeated calls return the same
// order.
func (s *Service) RecreateOrder(ctx context.Context, transactionID string) (*Recreation, error) {
	id := txid.Normalize(transactionID)
	if id == "" {
		return nil, ErrTransactionIDRequired
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("transaction.id", id))
	lg := zctx.From(ctx).With(zap.String("transaction_id", id))

	tx, err := s.txs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.OrderID != "" {
		return &Recreation{OrderID: tx.OrderID}, nil
	}

	existing, err := s.orders.FindByTransaction(ctx, id)
	switch {
	case err == nil:
		if err := s.txs.Link(ctx, id, existing.ID); err != nil {
			lg.Warn("Link existing order failed", zap.Error(err))
		}
		return &Recreation{OrderID: existing.ID}, nil
	case !errors.Is(err, order.ErrNotFound):
		return nil, errors.Wrap(err, "find order by transaction")
	}

	if tx.Status != StatusCompleted {
		return nil, &UnrecoverableError{TransactionID: id, Reason: "transaction is not completed"}
	}
	if tx.Details == nil || len(tx.Details.Items) == 0 || tx.Details.Table == "" {
		return nil, &UnrecoverableError{TransactionID: id, Reason: "order details not found in transaction"}
	}

	d := tx.Details
	res, err := s.orders.CreateOrGet(ctx, order.CreateRequest{
		Table:               d.Table,
		Items:               d.Items,
		ExtraCharges:        d.ExtraCharges,
		CustomerName:        d.CustomerName,
		SpecialInstructions: d.SpecialInstructions,
		DiningOption:        d.DiningOption,
		PaymentStatus:       order.PaymentPaid,
		PaymentMethod:       s.method(tx),
		TransactionID:       id,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create order from transaction")
	}

	if err := s.txs.Advance(ctx, id, StageOrderCreated); err != nil {
		lg.Warn("Advance stage failed", zap.Error(err))
	}
	if err := s.txs.Link(ctx, id, res.Order.ID); err != nil {
		lg.Warn("Link recreated order failed", zap.Error(err))
	}

	lg.Info("Order recreated from transaction",
		zap.String("order_id", res.Order.ID),
		zap.Bool("created", res.Created),
	)
	return &Recreation{OrderID: res.Order.ID, Created: res.Created}, nil
}

// Settle applies a gateway settlement verdict to a transaction that never
// received a callback. It reports whether the stored status changed.
func (s *Service) Settle(ctx context.Context, transactionID, gatewayStatus string) (bool, error) {
	tx, err := s.Status(ctx, transactionID)
	if err != nil {
		return false, err
	}
	if tx.Status == StatusCompleted || !strings.EqualFold(gatewayStatus, "COMPLETE") {
		return false, nil
	}
	if err := s.txs.UpdateStatus(ctx, tx.ID, StatusCompleted); err != nil {
		return false, errors.Wrap(err, "complete transaction")
	}
	tx.Status = StatusCompleted
	if _, err := s.succeed(ctx, tx, "settled"); err != nil {
		return true, err
	}
	return true, nil
}

// Unlinked lists completed transactions that have no order yet.
func (s *Service) Unlinked(ctx context.Context, limit int) ([]Transaction, error) {
	return s.txs.ListUnlinkedCompleted(ctx, limit)
}

// EachLinkedID streams ids of transactions that already have an order.
func (s *Service) EachLinkedID(ctx context.Context, fn func(id string) error) error {
	return s.txs.EachLinkedID(ctx, fn)
}
