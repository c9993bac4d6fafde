package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/xenking/qrdine/internal/wire"
)

// Charges fetches the active extra-charge schedule.
func (c *Client) Charges(ctx context.Context) ([]wire.Charge, error) {
	var out wire.Charges
	if _, err := c.do(ctx, http.MethodGet, "/api/charges", nil, nil, &out, false); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateOrder submits an order. created is false when the server already
// held an order for the transaction id and returned it.
func (c *Client) CreateOrder(ctx context.Context, req *wire.CreateOrder) (o *wire.Order, created bool, err error) {
	o = new(wire.Order)
	status, err := c.do(ctx, http.MethodPost, "/api/orders", nil, req, o, false)
	if err != nil {
		return nil, false, err
	}
	return o, status == http.StatusCreated, nil
}

// FindOrder looks an order up by transaction id. It returns ErrNotFound
// when none exists.
func (c *Client) FindOrder(ctx context.Context, transactionID string) (*wire.Order, error) {
	var out wire.Orders
	q := url.Values{"transactionId": {transactionID}}
	if _, err := c.do(ctx, http.MethodGet, "/api/orders", q, nil, &out, false); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return &out[0], nil
}

// GetOrder fetches one order.
func (c *Client) GetOrder(ctx context.Context, id string) (*wire.Order, error) {
	o := new(wire.Order)
	if _, err := c.do(ctx, http.MethodGet, "/api/orders/"+url.PathEscape(id), nil, nil, o, false); err != nil {
		return nil, err
	}
	return o, nil
}

// UpdateOrderStatus applies a staff status change. It needs an API key.
func (c *Client) UpdateOrderStatus(ctx context.Context, id string, upd *wire.StatusUpdate) (*wire.Order, error) {
	o := new(wire.Order)
	path := "/api/orders/" + url.PathEscape(id) + "/status"
	if _, err := c.do(ctx, http.MethodPost, path, nil, upd, o, true); err != nil {
		return nil, err
	}
	return o, nil
}

// InitiatePayment asks the server for a signed gateway form.
func (c *Client) InitiatePayment(ctx context.Context, req *wire.InitiatePayment) (*wire.PaymentForm, error) {
	f := new(wire.PaymentForm)
	if _, err := c.do(ctx, http.MethodPost, "/api/payments/gateway/initiate", nil, req, f, false); err != nil {
		return nil, err
	}
	return f, nil
}

// VerifyPayment asks for the gateway verdict. data is the callback payload
// from the return URL and may be empty.
func (c *Client) VerifyPayment(ctx context.Context, transactionID, data string) (*wire.Verification, error) {
	q := url.Values{"transactionId": {transactionID}}
	if data != "" {
		q.Set("data", data)
	}
	v := new(wire.Verification)
	if _, err := c.do(ctx, http.MethodGet, "/api/payments/gateway/verify", q, nil, v, false); err != nil {
		return nil, err
	}
	return v, nil
}

// PaymentStatus returns the server's record of a transaction.
func (c *Client) PaymentStatus(ctx context.Context, transactionID string) (*wire.TransactionStatus, error) {
	s := new(wire.TransactionStatus)
	q := url.Values{"transactionId": {transactionID}}
	if _, err := c.do(ctx, http.MethodGet, "/api/payments/gateway/status", q, nil, s, false); err != nil {
		return nil, err
	}
	return s, nil
}

// CancelPayment abandons a transaction that has not completed.
func (c *Client) CancelPayment(ctx context.Context, transactionID string) (*wire.TransactionStatus, error) {
	s := new(wire.TransactionStatus)
	body := &wire.TransactionRef{TransactionID: transactionID}
	if _, err := c.do(ctx, http.MethodPost, "/api/payments/gateway/cancel", nil, body, s, false); err != nil {
		return nil, err
	}
	return s, nil
}

// LinkPayment records which order a transaction produced.
func (c *Client) LinkPayment(ctx context.Context, transactionID, orderID string) error {
	body := &wire.LinkRequest{TransactionID: transactionID, OrderID: orderID}
	_, err := c.do(ctx, http.MethodPost, "/api/payments/gateway/link", nil, body, nil, false)
	return err
}

// RecreateOrder asks the server to rebuild the order of a completed
// transaction. It returns the order id, or ErrUnrecoverable.
func (c *Client) RecreateOrder(ctx context.Context, transactionID string) (orderID string, created bool, err error) {
	var res wire.Result
	body := &wire.TransactionRef{TransactionID: transactionID}
	if _, err := c.do(ctx, http.MethodPost, "/api/payments/gateway/recreate-order", nil, body, &res, false); err != nil {
		return "", false, err
	}
	if res.Status != wire.StatusSuccess || res.OrderID == "" {
		return "", false, ErrUnrecoverable
	}
	return res.OrderID, res.Created, nil
}

// SubmitReview posts a review. A second review for the same order fails
// with ErrAlreadyReviewed.
func (c *Client) SubmitReview(ctx context.Context, req *wire.ReviewRequest) (*wire.Review, error) {
	r := new(wire.Review)
	if _, err := c.do(ctx, http.MethodPost, "/api/reviews", nil, req, r, false); err != nil {
		return nil, err
	}
	return r, nil
}

// ListReviews returns the reviews of an order.
func (c *Client) ListReviews(ctx context.Context, orderID string) ([]wire.Review, error) {
	var out wire.Reviews
	q := url.Values{"order": {orderID}}
	if _, err := c.do(ctx, http.MethodGet, "/api/reviews", q, nil, &out, false); err != nil {
		return nil, err
	}
	return out, nil
}
