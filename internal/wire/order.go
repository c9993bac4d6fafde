package wire

import (
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// Item is an order line.
type Item struct {
	ItemID    string          `json:"itemId" validate:"required"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity" validate:"min=1"`
}

func (it *Item) Encode(e *jx.Encoder) {
	e.ObjStart()
	field(e, "itemId", it.ItemID)
	field(e, "name", it.Name)
	e.FieldStart("unitPrice")
	encodeDecimal(e, it.UnitPrice)
	e.FieldStart("quantity")
	e.Int(it.Quantity)
	e.ObjEnd()
}

func (it *Item) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "itemId", "item_id", "id":
			it.ItemID, err = decodeString(d)
		case "name":
			it.Name, err = decodeString(d)
		case "unitPrice", "unit_price", "price":
			it.UnitPrice, err = decodeDecimal(d)
		case "quantity":
			it.Quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		return fieldErr(err, key)
	})
}

// Charge is an extra charge. ID is set for schedule entries and empty for
// charges applied to an order.
type Charge struct {
	ID     string          `json:"id,omitempty"`
	Label  string          `json:"label" validate:"required"`
	Amount decimal.Decimal `json:"amount"`
}

func (c *Charge) Encode(e *jx.Encoder) {
	e.ObjStart()
	optStr(e, "id", c.ID)
	field(e, "label", c.Label)
	e.FieldStart("amount")
	encodeDecimal(e, c.Amount)
	e.ObjEnd()
}

func (c *Charge) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			c.ID, err = decodeString(d)
		case "label":
			c.Label, err = decodeString(d)
		case "amount":
			c.Amount, err = decodeDecimal(d)
		default:
			err = d.Skip()
		}
		return fieldErr(err, key)
	})
}

// Charges is the extra-charge schedule.
type Charges []Charge

func (cs Charges) Encode(e *jx.Encoder) {
	encodeCharges(e, cs)
}

func (cs *Charges) Decode(d *jx.Decoder) error {
	return decodeCharges(d, (*[]Charge)(cs))
}

func encodeItems(e *jx.Encoder, items []Item) {
	e.ArrStart()
	for i := range items {
		items[i].Encode(e)
	}
	e.ArrEnd()
}

func decodeItems(d *jx.Decoder, items *[]Item) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	return d.Arr(func(d *jx.Decoder) error {
		var it Item
		if err := it.Decode(d); err != nil {
			return err
		}
		*items = append(*items, it)
		return nil
	})
}

func encodeCharges(e *jx.Encoder, charges []Charge) {
	e.ArrStart()
	for i := range charges {
		charges[i].Encode(e)
	}
	e.ArrEnd()
}

func decodeCharges(d *jx.Decoder, charges *[]Charge) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	return d.Arr(func(d *jx.Decoder) error {
		var c Charge
		if err := c.Decode(d); err != nil {
			return err
		}
		*charges = append(*charges, c)
		return nil
	})
}

// CreateOrder is the body of POST /api/orders and the payment intent draft
// kept while the customer is at the gateway.
type CreateOrder struct {
	Table               string          `json:"table" validate:"required"`
	Items               []Item          `json:"items" validate:"required,min=1,dive"`
	CustomerName        string          `json:"customerName"`
	SpecialInstructions string          `json:"specialInstructions"`
	DiningOption        string          `json:"diningOption" validate:"omitempty,oneof=dine-in takeaway delivery"`
	ExtraCharges        []Charge        `json:"extraCharges" validate:"dive"`
	Total               decimal.Decimal `json:"total"`
	PaymentStatus       string          `json:"paymentStatus" validate:"omitempty,oneof=pending paid"`
	PaymentMethod       string          `json:"paymentMethod" validate:"required,oneof=cash card esewa khalti fonepay"`
	TransactionID       string          `json:"transactionId"`
}

func (o *CreateOrder) Encode(e *jx.Encoder) {
	e.ObjStart()
	field(e, "table", o.Table)
	e.FieldStart("items")
	encodeItems(e, o.Items)
	optStr(e, "customerName", o.CustomerName)
	optStr(e, "specialInstructions", o.SpecialInstructions)
	optStr(e, "diningOption", o.DiningOption)
	if len(o.ExtraCharges) > 0 {
		e.FieldStart("extraCharges")
		encodeCharges(e, o.ExtraCharges)
	}
	e.FieldStart("total")
	encodeDecimal(e, o.Total)
	optStr(e, "paymentStatus", o.PaymentStatus)
	field(e, "paymentMethod", o.PaymentMethod)
	optStr(e, "transactionId", o.TransactionID)
	e.ObjEnd()
}

func (o *CreateOrder) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "table":
			o.Table, err = decodeString(d)
		case "items":
			err = decodeItems(d, &o.Items)
		case "customerName":
			o.CustomerName, err = decodeString(d)
		case "specialInstructions":
			o.SpecialInstructions, err = decodeString(d)
		case "diningOption":
			o.DiningOption, err = decodeString(d)
		case "extraCharges":
			err = decodeCharges(d, &o.ExtraCharges)
		case "total":
			o.Total, err = decodeDecimal(d)
		case "paymentStatus":
			o.PaymentStatus, err = decodeString(d)
		case "paymentMethod":
			o.PaymentMethod, err = decodeString(d)
		case "transactionId":
			o.TransactionID, err = decodeString(d)
		default:
			err = d.Skip()
		}
		return fieldErr(err, key)
	})
}

// Order is a stored order as returned by the API.
type Order struct {
	ID                  string          `json:"id"`
	Table               string          `json:"table"`
	Items               []Item          `json:"items"`
	ExtraCharges        []Charge        `json:"extraCharges"`
	CustomerName        string          `json:"customerName"`
	SpecialInstructions string          `json:"specialInstructions"`
	DiningOption        string          `json:"diningOption"`
	Subtotal            decimal.Decimal `json:"subtotal"`
	Total               decimal.Decimal `json:"total"`
	Status              string          `json:"status"`
	PaymentStatus       string          `json:"paymentStatus"`
	PaymentMethod       string          `json:"paymentMethod"`
	TransactionID       string          `json:"transactionId,omitempty"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
}

func (o *Order) Encode(e *jx.Encoder) {
	e.ObjStart()
	field(e, "id", o.ID)
	field(e, "table", o.Table)
	e.FieldStart("items")
	encodeItems(e, o.Items)
	e.FieldStart("extraCharges")
	encodeCharges(e, o.ExtraCharges)
	field(e, "customerName", o.CustomerName)
	field(e, "specialInstructions", o.SpecialInstructions)
	field(e, "diningOption", o.DiningOption)
	e.FieldStart("subtotal")
	encodeDecimal(e, o.Subtotal)
	e.FieldStart("total")
	encodeDecimal(e, o.Total)
	field(e, "status", o.Status)
	field(e, "paymentStatus", o.PaymentStatus)
	field(e, "paymentMethod", o.PaymentMethod)
	optStr(e, "transactionId", o.TransactionID)
	e.FieldStart("createdAt")
	encodeTime(e, o.CreatedAt)
	e.FieldStart("updatedAt")
	encodeTime(e, o.UpdatedAt)
	e.ObjEnd()
}

func (o *Order) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			o.ID, err = decodeString(d)
		case "table":
			o.Table, err = decodeString(d)
		case "items":
			err = decodeItems(d, &o.Items)
		case "extraCharges":
			err = decodeCharges(d, &o.ExtraCharges)
		case "customerName":
			o.CustomerName, err = decodeString(d)
		case "specialInstructions":
			o.SpecialInstructions, err = decodeString(d)
		case "diningOption":
			o.DiningOption, err = decodeString(d)
		case "subtotal":
			o.Subtotal, err = decodeDecimal(d)
		case "total":
			o.Total, err = decodeDecimal(d)
		case "status":
			o.Status, err = decodeString(d)
		case "paymentStatus":
			o.PaymentStatus, err = decodeString(d)
		case "paymentMethod":
			o.PaymentMethod, err = decodeString(d)
		case "transactionId":
			o.TransactionID, err = decodeString(d)
		case "createdAt":
			o.CreatedAt, err = decodeTime(d)
		case "updatedAt":
			o.UpdatedAt, err = decodeTime(d)
		default:
			err = d.Skip()
		}
		return fieldErr(err, key)
	})
}

// Orders is the result of a transaction id lookup: zero or one order.
type Orders []Order

func (list Orders) Encode(e *jx.Encoder) {
	e.ArrStart()
	for i := range list {
		list[i].Encode(e)
	}
	e.ArrEnd()
}

func (list *Orders) Decode(d *jx.Decoder) error {
	return d.Arr(func(d *jx.Decoder) error {
		var o Order
		if err := o.Decode(d); err != nil {
			return err
		}
		*list = append(*list, o)
		return nil
	})
}

// StatusUpdate is the staff body of POST /api/orders/{id}/status.
type StatusUpdate struct {
	Status        string `json:"status" validate:"omitempty,oneof=pending in-progress completed cancelled"`
	PaymentStatus string `json:"paymentStatus" validate:"omitempty,oneof=pending paid"`
}

func (u *StatusUpdate) Encode(e *jx.Encoder) {
	e.ObjStart()
	optStr(e, "status", u.Status)
	optStr(e, "paymentStatus", u.PaymentStatus)
	e.ObjEnd()
}

func (u *StatusUpdate) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "status":
			u.Status, err = decodeString(d)
		case "paymentStatus":
			u.PaymentStatus, err = decodeString(d)
		default:
			err = d.Skip()
		}
		return fieldErr(err, key)
	})
}
