package checkout

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/qrdine/internal/client"
	"github.com/xenking/qrdine/internal/wire"
)

type mockReviews struct {
	reviews   map[string][]wire.Review
	submitted int
	err       error
}

func (m *mockReviews) SubmitReview(_ context.Context, req *wire.ReviewRequest) (*wire.Review, error) {
	m.submitted++
	if len(m.reviews[req.OrderID]) > 0 {
		return nil, client.ErrAlreadyReviewed
	}
	if m.err != nil {
		return nil, m.err
	}
	r := wire.Review{ID: "r1", OrderID: req.OrderID, Rating: req.Rating, Comment: req.Comment}
	m.reviews[req.OrderID] = append(m.reviews[req.OrderID], r)
	return &r, nil
}

func (m *mockReviews) ListReviews(_ context.Context, orderID string) ([]wire.Review, error) {
	return m.reviews[orderID], m.err
}

func TestReviewGate(t *testing.T) {
	ctx := context.Background()
	api := &mockReviews{reviews: map[string][]wire.Review{}}
	g := NewReviewGate(api)

	can, err := g.CanReview(ctx, &wire.Order{ID: "o1", Status: "in-progress"})
	require.NoError(t, err)
	assert.False(t, can, "not completed")

	done := &wire.Order{ID: "o1", Status: "completed"}
	can, err = g.CanReview(ctx, done)
	require.NoError(t, err)
	assert.True(t, can)

	_, err = g.Submit(ctx, "o1", 0, "")
	require.ErrorIs(t, err, ErrRatingRequired)
	_, err = g.Submit(ctx, "o1", 6, "")
	require.ErrorIs(t, err, ErrRatingOutOfRange)
	assert.Zero(t, api.submitted, "rejected locally")

	r, err := g.Submit(ctx, "o1", 5, "great momo")
	require.NoError(t, err)
	assert.Equal(t, 5, r.Rating)

	can, err = g.CanReview(ctx, done)
	require.NoError(t, err)
	assert.False(t, can)

	_, err = g.Submit(ctx, "o1", 4, "again")
	require.ErrorIs(t, err, ErrAlreadyReviewed)
}

func TestReviewGate_GenericFailure(t *testing.T) {
	api := &mockReviews{reviews: map[string][]wire.Review{}, err: &client.TransportError{Op: "review", Err: errors.New("eof")}}
	_, err := NewReviewGate(api).Submit(context.Background(), "o1", 3, "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAlreadyReviewed)
	assert.True(t, client.IsRetryable(err))
}
