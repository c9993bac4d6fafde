package checkout

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/qrdine/internal/client"
	"github.com/xenking/qrdine/internal/domain/order"
	"github.com/xenking/qrdine/internal/wire"
)

var (
	// ErrRatingRequired is returned before any request when no rating was
	// picked.
	ErrRatingRequired = errors.New("rating required")
	// ErrRatingOutOfRange is returned for ratings outside 1..5.
	ErrRatingOutOfRange = errors.New("rating must be between 1 and 5")
	// ErrAlreadyReviewed means the order has its review.
	ErrAlreadyReviewed = errors.New("order already reviewed")
)

// ReviewAPI is the part of the server API the review gate calls.
type ReviewAPI interface {
	SubmitReview(ctx context.Context, req *wire.ReviewRequest) (*wire.Review, error)
	ListReviews(ctx context.Context, orderID string) ([]wire.Review, error)
}

var _ ReviewAPI = (*client.Client)(nil)

// ReviewGate decides whether a review form is shown and submits it. The
// server has the final word on duplicates.
type ReviewGate struct {
	api ReviewAPI
}

// NewReviewGate returns a ReviewGate.
func NewReviewGate(api ReviewAPI) *ReviewGate {
	return &ReviewGate{api: api}
}

// CanReview reports whether the form should be shown for o: the order is
// completed and has no review yet.
func (g *ReviewGate) CanReview(ctx context.Context, o *wire.Order) (bool, error) {
	if order.Status(o.Status) != order.StatusCompleted {
		return false, nil
	}
	existing, err := g.api.ListReviews(ctx, o.ID)
	if err != nil {
		return false, errors.Wrap(err, "list reviews")
	}
	return len(existing) == 0, nil
}

// Submit sends the review.
func (g *ReviewGate) Submit(ctx context.Context, orderID string, rating int, comment string) (*wire.Review, error) {
	switch {
	case rating == 0:
		return nil, ErrRatingRequired
	case rating < 1 || rating > 5:
		return nil, ErrRatingOutOfRange
	}
	r, err := g.api.SubmitReview(ctx, &wire.ReviewRequest{OrderID: orderID, Rating: rating, Comment: comment})
	if err != nil {
		if errors.Is(err, client.ErrAlreadyReviewed) {
			return nil, ErrAlreadyReviewed
		}
		return nil, errors.Wrap(err, "submit review")
	}
	return r, nil
}
