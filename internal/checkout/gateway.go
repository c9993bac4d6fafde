package checkout

import (
	"context"
	"html/template"
	"io"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/qrdine/internal/client"
	"github.com/xenking/qrdine/internal/domain/order"
	"github.com/xenking/qrdine/internal/domain/txid"
	"github.com/xenking/qrdine/internal/wire"
)

// Redirect is a started gateway checkout: the signed form the browser posts
// to the gateway.
type Redirect struct {
	TransactionID string
	Form          *wire.PaymentForm
}

// Result is the order a completed gateway checkout produced.
type Result struct {
	Order *wire.Order
	// Created is false when the order already existed for the transaction.
	Created bool
	// Recovered is set when the order was found or rebuilt without the
	// local intent.
	Recovered bool
}

// BeginGateway prices the cart, asks the server for a signed form and keeps
// the draft under the returned transaction id until the customer is back.
// The full grand total is sent as the gateway amount.
func (f *Flow) BeginGateway(ctx context.Context, cart Cart, method order.PaymentMethod) (*Redirect, error) {
	if !method.IsGateway() {
		return nil, errors.Errorf("%q is not a gateway method", method)
	}
	draft, err := draftOf(cart, method)
	if err != nil {
		return nil, err
	}
	form, err := f.api.InitiatePayment(ctx, &wire.InitiatePayment{
		Amount:              draft.Total,
		TaxAmount:           decimal.Zero,
		ServiceCharge:       decimal.Zero,
		DeliveryCharge:      decimal.Zero,
		OrderID:             txid.Temp(cart.Table),
		TableRef:            cart.Table,
		CustomerName:        cart.CustomerName,
		Items:               cart.Items,
		DiningOption:        cart.DiningOption,
		SpecialInstructions: cart.SpecialInstructions,
		ExtraCharges:        cart.Charges,
	})
	if err != nil {
		return nil, errors.Wrap(err, "initiate payment")
	}
	id := txid.Normalize(form.TransactionID)
	if id == "" {
		return nil, errors.New("server returned no transaction id")
	}
	draft.TransactionID = id
	if err := f.intents.Save(ctx, id, draft); err != nil {
		// The server kept the draft too; recreate covers a lost intent.
		zctx.From(ctx).Warn("Save payment intent failed",
			zap.String("transaction_id", id),
			zap.Error(err),
		)
	}
	return &Redirect{TransactionID: id, Form: form}, nil
}

// Resume handles the return from the gateway. returnURL is the page URL the
// gateway redirected to, malformed query strings included.
//
// Verification comes first and is authoritative. On success the order is
// created from the local intent or, without one, found or rebuilt
// server-side. Link runs last and only once an order id exists.
func (f *Flow) Resume(ctx context.Context, returnURL string) (*Result, error) {
	id, data := txid.FromURL(returnURL)
	if id == "" {
		return nil, ErrMissingTransaction
	}
	lg := zctx.From(ctx).With(zap.String("transaction_id", id))

	v, err := f.api.VerifyPayment(ctx, id, data)
	if err != nil {
		return nil, errors.Wrap(err, "verify payment")
	}
	switch v.Status {
	case wire.StatusSuccess:
	case wire.StatusFailure:
		f.clear(ctx, id)
		if v.Message != "" {
			return nil, errors.Wrap(ErrGatewayDeclined, v.Message)
		}
		return nil, ErrGatewayDeclined
	default:
		return nil, ErrPaymentPending
	}

	if v.OrderID != "" {
		// Already linked by an earlier return.
		o, err := f.api.GetOrder(ctx, v.OrderID)
		if err != nil {
			return nil, errors.Wrap(err, "get linked order")
		}
		f.clear(ctx, id)
		return &Result{Order: o}, nil
	}

	draft, ok, err := f.intents.Load(ctx, id)
	if err != nil {
		lg.Warn("Load payment intent failed", zap.Error(err))
		ok = false
	}
	if !ok {
		lg.Info("No payment intent, recovering from server")
		return f.recover(ctx, id)
	}

	draft.TransactionID = id
	draft.PaymentStatus = string(order.PaymentPaid)
	o, created, err := f.api.CreateOrder(ctx, draft)
	if err != nil {
		// Intent kept: resuming again is safe.
		return nil, errors.Wrap(err, "create order")
	}
	f.link(ctx, id, o.ID)
	f.clear(ctx, id)
	return &Result{Order: o, Created: created}, nil
}

func (f *Flow) recover(ctx context.Context, id string) (*Result, error) {
	o, err := f.api.FindOrder(ctx, id)
	switch {
	case err == nil:
		return &Result{Order: o, Recovered: true}, nil
	case !errors.Is(err, client.ErrNotFound):
		return nil, errors.Wrap(err, "find order")
	}

	orderID, created, err := f.api.RecreateOrder(ctx, id)
	if err != nil {
		if errors.Is(err, client.ErrUnrecoverable) || errors.Is(err, client.ErrNotFound) {
			return nil, errors.Wrap(ErrOrderNotRecoverable, err.Error())
		}
		return nil, errors.Wrap(err, "recreate order")
	}
	o, err = f.api.GetOrder(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "get recreated order")
	}
	return &Result{Order: o, Created: created, Recovered: true}, nil
}

func (f *Flow) clear(ctx context.Context, id string) {
	if err := f.intents.Clear(ctx, id); err != nil {
		zctx.From(ctx).Warn("Clear payment intent failed",
			zap.String("transaction_id", id),
			zap.Error(err),
		)
	}
}

var redirectPage = template.Must(template.New("redirect").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Redirecting to payment</title></head>
<body onload="document.forms[0].submit()">
<form method="POST" action="{{.RedirectURL}}">
{{- range .Fields}}
<input type="hidden" name="{{.Name}}" value="{{.Value}}">
{{- end}}
<noscript><button type="submit">Continue to payment</button></noscript>
</form>
</body>
</html>
`))

// RenderRedirect writes an auto-submitting HTML page that posts form to the
// gateway.
func RenderRedirect(w io.Writer, form *wire.PaymentForm) error {
	if form == nil || form.RedirectURL == "" {
		return errors.New("empty payment form")
	}
	return redirectPage.Execute(w, form)
}
