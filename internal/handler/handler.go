// Package handler serves the ordering and payment API over net/http.
package handler

import (
	"context"
	"net/http"

	"github.com/xenking/qrdine/internal/domain/auth"
	"github.com/xenking/qrdine/internal/domain/order"
	"github.com/xenking/qrdine/internal/domain/payment"
	"github.com/xenking/qrdine/internal/domain/pricing"
	"github.com/xenking/qrdine/internal/domain/review"
)

// Orders is the order service surface the API exposes.
type Orders interface {
	CreateOrGet(ctx context.Context, req order.CreateRequest) (*order.CreateResult, error)
	Get(ctx context.Context, id string) (*order.Order, error)
	FindByTransaction(ctx context.Context, transactionID string) (*order.Order, error)
	UpdateStatus(ctx context.Context, id string, to order.Status) (*order.Order, error)
	MarkPaid(ctx context.Context, id string, method order.PaymentMethod) (*order.Order, error)
}

// Payments is the gateway checkout surface the API exposes.
type Payments interface {
	Initiate(ctx context.Context, req payment.InitiateRequest) (*payment.Initiation, error)
	Verify(ctx context.Context, transactionID, data string) (*payment.Verification, error)
	Status(ctx context.Context, transactionID string) (*payment.Transaction, error)
	Cancel(ctx context.Context, transactionID string) (*payment.Transaction, error)
	Link(ctx context.Context, transactionID, orderID string) error
	RecreateOrder(ctx context.Context, transactionID string) (*payment.Recreation, error)
}

// Reviews is the review service surface the API exposes.
type Reviews interface {
	Submit(ctx context.Context, req review.SubmitRequest) (*review.Review, error)
	List(ctx context.Context, orderID string) ([]review.Review, error)
}

// Authenticator resolves staff API keys.
type Authenticator interface {
	Authenticate(ctx context.Context, key string) (*auth.APIKeyInfo, error)
}

// Handler serves every API route.
type Handler struct {
	orders   Orders
	payments Payments
	reviews  Reviews
	charges  pricing.ChargeRepository
	auth     Authenticator
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	orders Orders,
	payments Payments,
	reviews Reviews,
	charges pricing.ChargeRepository,
	authenticator Authenticator,
) *Handler {
	return &Handler{
		orders:   orders,
		payments: payments,
		reviews:  reviews,
		charges:  charges,
		auth:     authenticator,
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/charges", h.ListCharges)

	mux.HandleFunc("POST /api/orders", h.CreateOrder)
	mux.HandleFunc("GET /api/orders", h.FindOrders)
	mux.HandleFunc("GET /api/orders/{id}", h.GetOrder)
	mux.Handle("POST /api/orders/{id}/status", h.RequireAPIKey(auth.ScopeOrders, http.HandlerFunc(h.UpdateOrderStatus)))

	mux.HandleFunc("POST /api/payments/gateway/initiate", h.InitiatePayment)
	mux.HandleFunc("GET /api/payments/gateway/verify", h.VerifyPayment)
	mux.HandleFunc("GET /api/payments/gateway/status", h.PaymentStatus)
	mux.HandleFunc("POST /api/payments/gateway/cancel", h.CancelPayment)
	mux.HandleFunc("POST /api/payments/gateway/link", h.LinkPayment)
	mux.HandleFunc("POST /api/payments/gateway/recreate-order", h.RecreateOrder)

	mux.HandleFunc("POST /api/reviews", h.SubmitReview)
	mux.HandleFunc("GET /api/reviews", h.ListReviews)
}
