// Package pricing computes cart totals from line items and an extra-charge
// schedule. Both the gateway amount and the order total come from Calculate,
// so the two can never disagree.
package pricing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrNegativeAmount is returned when a price or charge is below zero.
var ErrNegativeAmount = fmt.Errorf("amount must not be negative")

// Line is a single priced cart entry.
type Line struct {
	ItemID    string
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
}

// Charge is an extra charge applied on top of the item subtotal, such as a
// service charge or packaging fee.
type Charge struct {
	ID     string
	Label  string
	Amount decimal.Decimal
}

// Totals holds the computed amounts for a cart.
type Totals struct {
	Subtotal     decimal.Decimal
	ChargesTotal decimal.Decimal
	GrandTotal   decimal.Decimal
}

// InvalidQuantityError indicates a line with a non-positive quantity.
type InvalidQuantityError struct {
	ItemID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for item %s", e.ItemID)
}

// Calculate returns subtotal, charges total and grand total. Sums are exact;
// the grand total is rounded to two places once, after summation. The result
// does not depend on the order of lines or charges.
func Calculate(lines []Line, charges []Charge) (Totals, error) {
	subtotal := decimal.Zero
	for _, l := range lines {
		if l.Quantity <= 0 {
			return Totals{}, &InvalidQuantityError{ItemID: l.ItemID}
		}
		if l.UnitPrice.IsNegative() {
			return Totals{}, fmt.Errorf("item %s: %w", l.ItemID, ErrNegativeAmount)
		}
		subtotal = subtotal.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}

	chargesTotal := decimal.Zero
	for _, c := range charges {
		if c.Amount.IsNegative() {
			return Totals{}, fmt.Errorf("charge %q: %w", c.Label, ErrNegativeAmount)
		}
		chargesTotal = chargesTotal.Add(c.Amount)
	}

	return Totals{
		Subtotal:     subtotal,
		ChargesTotal: chargesTotal,
		GrandTotal:   subtotal.Add(chargesTotal).Round(2),
	}, nil
}

// ChargeRepository lists the charge schedule currently in effect.
type ChargeRepository interface {
	ListActive(ctx context.Context) ([]Charge, error)
}
