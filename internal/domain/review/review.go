// Package review enforces the one-review-per-order rule. The storage unique
// index on order_id is the final arbiter; the service pre-check only saves a
// round trip for the common duplicate case.
package review

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/qrdine/internal/domain/order"
)

// Sentinel errors for reviews.
var (
	ErrAlreadyReviewed = fmt.Errorf("already reviewed")
	ErrInvalidRating   = fmt.Errorf("rating must be between 1 and 5")
	ErrOrderIDRequired = fmt.Errorf("order id required")
)

// Rating bounds.
const (
	MinRating = 1
	MaxRating = 5
)

// Review is a customer's rating of one order.
type Review struct {
	ID        string
	OrderID   string
	Rating    int
	Comment   string
	CreatedAt time.Time
}

// Repository persists reviews.
type Repository interface {
	// Create inserts a review and returns ErrAlreadyReviewed when the order
	// already has one.
	Create(ctx context.Context, r *Review) error
	ListByOrder(ctx context.Context, orderID string) ([]Review, error)
}

// OrderGetter resolves orders so reviews cannot reference unknown ones.
type OrderGetter interface {
	Get(ctx context.Context, id string) (*order.Order, error)
}

// SubmitRequest is a new review.
type SubmitRequest struct {
	OrderID string
	Rating  int
	Comment string
}

// Service accepts and lists reviews.
type Service struct {
	reviews Repository
	orders  OrderGetter
	now     func() time.Time
}

// NewService creates a review Service.
func NewService(reviews Repository, orders OrderGetter) *Service {
	return &Service{reviews: reviews, orders: orders, now: time.Now}
}

// Submit stores the first review for an order.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Review, error) {
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return nil, ErrOrderIDRequired
	}
	if req.Rating < MinRating || req.Rating > MaxRating {
		return nil, ErrInvalidRating
	}

	if _, err := s.orders.Get(ctx, orderID); err != nil {
		return nil, errors.Wrap(err, "get order")
	}

	existing, err := s.reviews.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "list reviews")
	}
	if len(existing) > 0 {
		return nil, ErrAlreadyReviewed
	}

	r := &Review{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		Rating:    req.Rating,
		Comment:   strings.TrimSpace(req.Comment),
		CreatedAt: s.now(),
	}
	if err := s.reviews.Create(ctx, r); err != nil {
		if errors.Is(err, ErrAlreadyReviewed) {
			return nil, ErrAlreadyReviewed
		}
		return nil, errors.Wrap(err, "create review")
	}

	zctx.From(ctx).Info("Review submitted",
		zap.String("order_id", orderID),
		zap.Int("rating", r.Rating),
	)
	return r, nil
}

// List returns the reviews of an order, at most one.
func (s *Service) List(ctx context.Context, orderID string) ([]Review, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, ErrOrderIDRequired
	}
	return s.reviews.ListByOrder(ctx, orderID)
}
