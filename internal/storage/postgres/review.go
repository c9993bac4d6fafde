package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/qrdine/internal/domain/review"
)

const (
	createReviewSQL = `INSERT INTO reviews (id, order_id, rating, comment, created_at)
	VALUES ($1, $2, $3, $4, $5)`

	listReviewsByOrderSQL = `SELECT id, order_id, rating, comment, created_at
	FROM reviews WHERE order_id = $1 ORDER BY created_at`

	reviewOrderKey = "reviews_order_id_key"
)

var _ review.Repository = (*ReviewRepository)(nil)

// ReviewRepository implements review.Repository backed by PostgreSQL.
type ReviewRepository struct {
	pool *pgxpool.Pool
}

// NewReviewRepository returns a ReviewRepository that uses the given pool.
func NewReviewRepository(pool *pgxpool.Pool) *ReviewRepository {
	return &ReviewRepository{pool: pool}
}

// Create inserts a review. The unique index on order_id turns a second
// review into review.ErrAlreadyReviewed.
func (r *ReviewRepository) Create(ctx context.Context, rv *review.Review) error {
	_, err := r.pool.Exec(ctx, createReviewSQL, rv.ID, rv.OrderID, rv.Rating, rv.Comment, rv.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, reviewOrderKey) {
			return review.ErrAlreadyReviewed
		}
		return fmt.Errorf("creating review for order %q: %w", rv.OrderID, err)
	}
	return nil
}

// ListByOrder returns the reviews of an order.
func (r *ReviewRepository) ListByOrder(ctx context.Context, orderID string) ([]review.Review, error) {
	rows, err := r.pool.Query(ctx, listReviewsByOrderSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing reviews for order %q: %w", orderID, err)
	}
	reviews, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (review.Review, error) {
		var (
			rv     review.Review
			rating int16
		)
		err := row.Scan(&rv.ID, &rv.OrderID, &rating, &rv.Comment, &rv.CreatedAt)
		rv.Rating = int(rating)
		return rv, err
	})
	if err != nil {
		return nil, fmt.Errorf("listing reviews for order %q: %w", orderID, err)
	}
	return reviews, nil
}
