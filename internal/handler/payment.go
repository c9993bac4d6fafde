package handler

import (
	"net/http"

	"github.com/go-faster/errors"

	"github.com/xenking/qrdine/internal/domain/order"
	"github.com/xenking/qrdine/internal/domain/payment"
	"github.com/xenking/qrdine/internal/domain/txid"
	"github.com/xenking/qrdine/internal/wire"
)

// InitiatePayment records a gateway transaction and returns the signed form.
func (h *Handler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	var req wire.InitiatePayment
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	init, err := h.payments.Initiate(r.Context(), payment.InitiateRequest{
		Amount:         req.Amount,
		TaxAmount:      req.TaxAmount,
		ServiceCharge:  req.ServiceCharge,
		DeliveryCharge: req.DeliveryCharge,
		OrderRef:       req.OrderID,
		TableRef:       req.TableRef,
		Draft: &payment.Details{
			CustomerName:        req.CustomerName,
			Items:               toDomainItems(req.Items),
			ExtraCharges:        toDomainCharges(req.ExtraCharges),
			DiningOption:        order.DiningOption(req.DiningOption),
			SpecialInstructions: req.SpecialInstructions,
		},
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	form := &wire.PaymentForm{
		RedirectURL:   init.Form.RedirectURL,
		TransactionID: init.TransactionID,
		Fields:        make([]wire.FormField, len(init.Form.Fields)),
	}
	for i, f := range init.Form.Fields {
		form.Fields[i] = wire.FormField{Name: f.Name, Value: f.Value}
	}
	writeJSON(w, http.StatusOK, form)
}

// VerifyPayment reports the gateway verdict. The transaction id and the
// callback payload are read tolerantly from a possibly malformed query.
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	id, data := txid.FromQuery(r.URL.RawQuery)

	v, err := h.payments.Verify(r.Context(), id, data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &wire.Verification{
		Status:        string(v.Outcome),
		TransactionID: v.TransactionID,
		OrderID:       v.OrderID,
		PaymentStatus: string(v.PaymentStatus),
		Message:       v.Message,
	})
}

// PaymentStatus returns the stored transaction.
func (h *Handler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	id, _ := txid.FromQuery(r.URL.RawQuery)

	tx, err := h.payments.Status(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWireTransaction(tx))
}

// CancelPayment cancels a transaction that has not completed.
func (h *Handler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	var req wire.TransactionRef
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	tx, err := h.payments.Cancel(r.Context(), req.TransactionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWireTransaction(tx))
}

// LinkPayment records which order a transaction produced.
func (h *Handler) LinkPayment(w http.ResponseWriter, r *http.Request) {
	var req wire.LinkRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.payments.Link(r.Context(), req.TransactionID, req.OrderID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &wire.Result{Status: wire.StatusOK, OrderID: req.OrderID})
}

// RecreateOrder rebuilds the order of a completed transaction from the
// server's own record.
func (h *Handler) RecreateOrder(w http.ResponseWriter, r *http.Request) {
	var req wire.TransactionRef
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	rec, err := h.payments.RecreateOrder(r.Context(), req.TransactionID)
	var unErr *payment.UnrecoverableError
	switch {
	case errors.As(err, &unErr):
		writeJSON(w, http.StatusBadRequest, &wire.Result{
			Status:  wire.StatusFailure,
			Message: unErr.Error(),
			Error:   wire.KindUnrecoverable,
		})
	case err != nil:
		writeError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, &wire.Result{
			Status:  wire.StatusSuccess,
			OrderID: rec.OrderID,
			Created: rec.Created,
		})
	}
}
