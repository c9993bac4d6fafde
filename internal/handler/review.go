package handler

import (
	"net/http"

	"github.com/xenking/qrdine/internal/domain/review"
	"github.com/xenking/qrdine/internal/wire"
)

// SubmitReview stores the first review of an order. A second review is
// answered with 400 and error "already reviewed".
func (h *Handler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	var req wire.ReviewRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	rv, err := h.reviews.Submit(r.Context(), review.SubmitRequest{
		OrderID: req.OrderID,
		Rating:  req.Rating,
		Comment: req.Comment,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := toWireReview(rv)
	writeJSON(w, http.StatusCreated, &out)
}

// ListReviews returns the reviews of the order named by ?order=.
func (h *Handler) ListReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.reviews.List(r.Context(), r.URL.Query().Get("order"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make(wire.Reviews, len(reviews))
	for i := range reviews {
		out[i] = toWireReview(&reviews[i])
	}
	writeJSON(w, http.StatusOK, out)
}
