package handler

import (
	"net/http"

	"github.com/go-faster/errors"

	"github.com/xenking/qrdine/internal/domain/order"
	"github.com/xenking/qrdine/internal/domain/txid"
	"github.com/xenking/qrdine/internal/wire"
)

var errPaymentReversal = errors.New("paid order cannot return to pending payment")

// ListCharges serves the active extra-charge schedule.
func (h *Handler) ListCharges(w http.ResponseWriter, r *http.Request) {
	charges, err := h.charges.ListActive(r.Context())
	if err != nil {
		writeError(w, r, errors.Wrap(err, "list charges"))
		return
	}
	out := make(wire.Charges, len(charges))
	for i, c := range charges {
		out[i] = wire.Charge{ID: c.ID, Label: c.Label, Amount: c.Amount}
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateOrder reconciles an order for the submitted transaction id: 201
// when it was created, 200 with the stored order when it already existed.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req wire.CreateOrder
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.orders.CreateOrGet(r.Context(), order.CreateRequest{
		Table:               req.Table,
		Items:               toDomainItems(req.Items),
		ExtraCharges:        toDomainCharges(req.ExtraCharges),
		CustomerName:        req.CustomerName,
		SpecialInstructions: req.SpecialInstructions,
		DiningOption:        order.DiningOption(req.DiningOption),
		Total:               req.Total,
		PaymentStatus:       order.PaymentStatus(req.PaymentStatus),
		PaymentMethod:       order.PaymentMethod(req.PaymentMethod),
		TransactionID:       req.TransactionID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, toWireOrder(res.Order))
}

// FindOrders looks an order up by transaction id. The result holds zero or
// one order.
func (h *Handler) FindOrders(w http.ResponseWriter, r *http.Request) {
	id, _ := txid.FromQuery(r.URL.RawQuery)
	if id == "" {
		writeError(w, r, &wire.Error{
			Code:    http.StatusBadRequest,
			Message: "transactionId query parameter is required",
			Kind:    wire.KindValidation,
		})
		return
	}

	o, err := h.orders.FindByTransaction(r.Context(), id)
	switch {
	case errors.Is(err, order.ErrNotFound):
		writeJSON(w, http.StatusOK, wire.Orders{})
	case err != nil:
		writeError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, wire.Orders{*toWireOrder(o)})
	}
}

// GetOrder returns one order.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWireOrder(o))
}

// UpdateOrderStatus applies a staff status and/or payment change.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req wire.StatusUpdate
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Status == "" && req.PaymentStatus == "" {
		writeError(w, r, &wire.Error{
			Code:    http.StatusBadRequest,
			Message: "status or paymentStatus is required",
			Kind:    wire.KindValidation,
		})
		return
	}

	ctx := r.Context()
	id := r.PathValue("id")

	o, err := h.orders.Get(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	// Both axes are checked before anything is written.
	if order.PaymentStatus(req.PaymentStatus) == order.PaymentPending && o.PaymentStatus == order.PaymentPaid {
		writeError(w, r, &wire.Error{
			Code:    http.StatusConflict,
			Message: errPaymentReversal.Error(),
			Kind:    wire.KindConflict,
		})
		return
	}

	if req.Status != "" {
		if o, err = h.orders.UpdateStatus(ctx, id, order.Status(req.Status)); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if order.PaymentStatus(req.PaymentStatus) == order.PaymentPaid {
		if o, err = h.orders.MarkPaid(ctx, id, ""); err != nil {
			writeError(w, r, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, toWireOrder(o))
}
