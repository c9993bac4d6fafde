package handler

import (
	"github.com/xenking/qrdine/internal/domain/order"
	"github.com/xenking/qrdine/internal/domain/payment"
	"github.com/xenking/qrdine/internal/domain/review"
	"github.com/xenking/qrdine/internal/wire"
)

func toDomainItems(items []wire.Item) []order.Item {
	out := make([]order.Item, len(items))
	for i, it := range items {
		out[i] = order.Item{
			ItemID:    it.ItemID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
		}
	}
	return out
}

func toDomainCharges(charges []wire.Charge) []order.Charge {
	if len(charges) == 0 {
		return nil
	}
	out := make([]order.Charge, len(charges))
	for i, c := range charges {
		out[i] = order.Charge{Label: c.Label, Amount: c.Amount}
	}
	return out
}

func toWireOrder(o *order.Order) *wire.Order {
	items := make([]wire.Item, len(o.Items))
	for i, it := range o.Items {
		items[i] = wire.Item{
			ItemID:    it.ItemID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
		}
	}
	charges := make([]wire.Charge, len(o.ExtraCharges))
	for i, c := range o.ExtraCharges {
		charges[i] = wire.Charge{Label: c.Label, Amount: c.Amount}
	}
	return &wire.Order{
		ID:                  o.ID,
		Table:               o.Table,
		Items:               items,
		ExtraCharges:        charges,
		CustomerName:        o.CustomerName,
		SpecialInstructions: o.SpecialInstructions,
		DiningOption:        string(o.DiningOption),
		Subtotal:            o.Subtotal,
		Total:               o.Total,
		Status:              string(o.Status),
		PaymentStatus:       string(o.PaymentStatus),
		PaymentMethod:       string(o.PaymentMethod),
		TransactionID:       o.TransactionID,
		CreatedAt:           o.CreatedAt,
		UpdatedAt:           o.UpdatedAt,
	}
}

func toWireTransaction(tx *payment.Transaction) *wire.TransactionStatus {
	return &wire.TransactionStatus{
		TransactionID: tx.ID,
		Status:        string(tx.Status),
		Amount:        tx.Amount,
		Stage:         string(tx.Stage),
		OrderID:       tx.OrderID,
		CreatedAt:     tx.CreatedAt,
	}
}

func toWireReview(r *review.Review) wire.Review {
	return wire.Review{
		ID:        r.ID,
		OrderID:   r.OrderID,
		Rating:    r.Rating,
		Comment:   r.Comment,
		CreatedAt: r.CreatedAt,
	}
}
