//go:build integration

package integration

import (
	"net/http"
	"net/url"
	"testing"
)

type reviewRequest struct {
	OrderID string `json:"orderId"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
}

func TestReview_OncePerOrder(t *testing.T) {
	o := createOrder(t, cashOrder("t2"))

	resp := doPost(t, "/api/reviews", reviewRequest{OrderID: o.ID, Rating: 5, Comment: "  Lovely momo  "})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	rv := decodeJSON[reviewResponse](t, resp)
	if rv.Rating != 5 || rv.Comment != "Lovely momo" {
		t.Errorf("review: got rating=%d comment=%q", rv.Rating, rv.Comment)
	}

	dup := doPost(t, "/api/reviews", reviewRequest{OrderID: o.ID, Rating: 3})
	defer dup.Body.Close()

	if dup.StatusCode != http.StatusBadRequest {
		t.Fatalf("duplicate: expected 400, got %d", dup.StatusCode)
	}
	if body := decodeJSON[errorResponse](t, dup); body.Error != "already reviewed" {
		t.Errorf("duplicate error: got %q, want %q", body.Error, "already reviewed")
	}

	list := doGet(t, "/api/reviews?order="+url.QueryEscape(o.ID))
	defer list.Body.Close()

	if reviews := decodeJSON[[]reviewResponse](t, list); len(reviews) != 1 {
		t.Fatalf("expected 1 review, got %d", len(reviews))
	}
}

func TestReview_Validation(t *testing.T) {
	o := createOrder(t, cashOrder("t2"))

	tests := []struct {
		name string
		req  reviewRequest
		want int
	}{
		{"rating too low", reviewRequest{OrderID: o.ID, Rating: 0}, http.StatusBadRequest},
		{"rating too high", reviewRequest{OrderID: o.ID, Rating: 6}, http.StatusBadRequest},
		{"missing order", reviewRequest{Rating: 4}, http.StatusBadRequest},
		{"unknown order", reviewRequest{OrderID: "00000000-0000-0000-0000-000000000000", Rating: 4}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doPost(t, "/api/reviews", tt.req)
			defer resp.Body.Close()

			if resp.StatusCode != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}
}
