package wire

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// Verification and recreation outcomes.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusPending = "pending"
	StatusOK      = "ok"
)

// InitiatePayment is the body of POST /api/payments/gateway/initiate.
// OrderID is an existing order id or "temp-<tableUid>"; for the latter the
// draft fields are kept server-side for order recreation.
type InitiatePayment struct {
	Amount              decimal.Decimal `json:"amount"`
	TaxAmount           decimal.Decimal `json:"taxAmount"`
	ServiceCharge       decimal.Decimal `json:"serviceCharge"`
	DeliveryCharge      decimal.Decimal `json:"deliveryCharge"`
	OrderID             string          `json:"orderId" validate:"required"`
	TableRef            string          `json:"tableRef"`
	CustomerName        string          `json:"customerName"`
	Items               []Item          `json:"items" validate:"dive"`
	DiningOption        string          `json:"diningOption" validate:"omitempty,oneof=dine-in takeaway delivery"`
	SpecialInstructions string          `json:"specialInstructions"`
	ExtraCharges        []Charge        `json:"extraCharges" validate:"dive"`
}

func (p *InitiatePayment) Encode(e *jx.Encoder) {
	e.ObjStart()
	for _, f := range []struct {
		name string
		v    decimal.Decimal
	}{
		{"amount", p.Amount},
		{"taxAmount", p.TaxAmount},
		{"serviceCharge", p.ServiceCharge},
		{"deliveryCharge", p.DeliveryCharge},
	} {
		e.FieldStart(f.name)
		encodeDecimal(e, f.v)
	}
	field(e, "orderId", p.OrderID)
	optStr(e, "tableRef", p.TableRef)
	optStr(e, "customerName", p.CustomerName)
	if len(p.Items) > 0 {
		e.FieldStart("items")
		encodeItems(e, p.Items)
	}
	optStr(e, "diningOption", p.DiningOption)
	optStr(e, "specialInstructions", p.SpecialInstructions)
	if len(p.ExtraCharges) > 0 {
		e.FieldStart("extraCharges")
		encodeCharges(e, p.ExtraCharges)
	}
	e.ObjEnd()
}

func (p *InitiatePayment) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "amount":
			p.Amount, err = decodeDecimal(d)
		case "taxAmount":
			p.TaxAmount, err = decodeDecimal(d)
		case "serviceCharge":
			p.ServiceCharge, err = decodeDecimal(d)
		case "deliveryCharge":
			p.DeliveryCharge, err = decodeDecimal(d)
		case "orderId":
			p.OrderID, err = decodeString(d)
		case "tableRef":
			p.TableRef, err = decodeString(d)
		case "customerName":
			p.CustomerName, err = decodeString(d)
		case "items":
			err = decodeItems(d, &p.Items)
		case "diningOption":
			p.DiningOption, err = decodeString(d)
		case "specialInstructions":
			p.SpecialInstructions, err = decodeString(d)
		case "extraCharges":
			err = decodeCharges(d, &p.ExtraCharges)
		default:
			err = d.Skip()
		}
		return fieldErr(err, key)
	})
}

// FormField is one signed gateway form field.
type FormField struct {
	Name  string
	Value string
}

// PaymentForm is the signed form descriptor the client POSTs to the
// gateway. Fields keep their order on the wire.
type PaymentForm struct {
	RedirectURL   string      `json:"redirectUrl"`
	TransactionID string      `json:"transactionId"`
	Fields        []FormField `json:"fields"`
}

// Field returns the value of the named field.
func (f *PaymentForm) Field(name string) string {
	for _, fld := range f.Fields {
		if fld.Name == name {
			return fld.Value
		}
	}
	return ""
}

func (f *PaymentForm) Encode(e *jx.Encoder) {
	e.ObjStart()
	field(e, "redirectUrl", f.RedirectURL)
	field(e, "transactionId", f.TransactionID)
	e.FieldStart("fields")
	e.ObjStart()
	for _, fld := range f.Fields {
		field(e, fld.Name, fld.Value)
	}
	e.ObjEnd()
	e.ObjEnd()
}

func (f *PaymentForm) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "redirectUrl":
			f.RedirectURL, err = decodeString(d)
		case "transactionId":
			f.TransactionID, err = decodeString(d)
		case "fields":
			err = d.Obj(func(d *jx.Decoder, name string) error {
				v, err := scalarString(d)
				if err != nil {
					return errors.Wrap(err, name)
				}
				f.Fields = append(f.Fields, FormField{Name: name, Value: v})
				return nil
			})
		default:
			err = d.Skip()
		}
		return fieldErr(err, key)
	})
}

// scalarString reads a string or a number as its literal text.
func scalarString(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Number {
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return n.String(), nil
	}
	return decodeString(d)
}

// Verification is the verdict of GET /api/payments/gateway/verify.
type Verification struct {
	Status        string `json:"status"`
	TransactionID string `json:"transactionId"`
	OrderID       string `json:"orderId,omitempty"`
	PaymentStatus string `json:"paymentStatus"`
	Message       string `json:"message,omitempty"`
}

func (v *Verification) Encode(e *jx.Encoder) {
	e.ObjStart()
	field(e, "status", v.Status)
	field(e, "transactionId", v.TransactionID)
	optStr(e, "orderId", v.OrderID)
	field(e, "paymentStatus", v.PaymentStatus)
	optStr(e, "message", v.Message)
	e.ObjEnd()
}

func (v *Verification) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "status":
			v.Status, err = decodeString(d)
		case "transactionId":
			v.TransactionID, err = decodeString(d)
		case "orderId":
			v.OrderID, err = decodeString(d)
		case "paymentStatus":
			v.PaymentStatus, err = decodeString(d)
		case "message":
			v.Message, err = decodeString(d)
		default:
			err = d.Skip()
		}
		return fieldErr(err, key)
	})
}

// TransactionStatus is the stored state of a gateway transaction.
type TransactionStatus struct {
	TransactionID string          `json:"transactionId"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Stage         string          `json:"stage"`
	OrderID       string          `json:"orderId,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

func (s *TransactionStatus) Encode(e *jx.Encoder) {
	e.ObjStart()
	field(e, "transactionId", s.TransactionID)
	field(e, "status", s.Status)
	e.FieldStart("amount")
	encodeDecimal(e, s.Amount)
	field(e, "stage", s.Stage)
	optStr(e, "orderId", s.OrderID)
	e.FieldStart("createdAt")
	encodeTime(e, s.CreatedAt)
	e.ObjEnd()
}

func (s *TransactionStatus) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "transactionId":
			s.TransactionID, err = decodeString(d)
		case "status":
			s.Status, err = decodeString(d)
		case "amount":
			s.Amount, err = decodeDecimal(d)
		case "stage":
			s.Stage, err = decodeString(d)
		case "orderId":
			s.OrderID, err = decodeString(d)
		case "createdAt":
			s.CreatedAt, err = decodeTime(d)
		default:
			err = d.Skip()
		}
		return fieldErr(err, key)
	})
}

// TransactionRef names a transaction: the body of cancel and recreate-order.
type TransactionRef struct {
	TransactionID string `json:"transactionId" validate:"required"`
}

func (r *TransactionRef) Encode(e *jx.Encoder) {
	e.ObjStart()
	field(e, "transactionId", r.TransactionID)
	e.ObjEnd()
}

func (r *TransactionRef) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "transactionId", "transaction_uuid":
			r.TransactionID, err = decodeString(d)
		default:
			err = d.Skip()
		}
		return fieldErr(err, key)
	})
}

// LinkRequest is the body of POST /api/payments/gateway/link.
type LinkRequest struct {
	TransactionID string `json:"transactionId" validate:"required"`
	OrderID       string `json:"orderId" validate:"required"`
}

func (l *LinkRequest) Encode(e *jx.Encoder) {
	e.ObjStart()
	field(e, "transactionId", l.TransactionID)
	field(e, "orderId", l.OrderID)
	e.ObjEnd()
}

func (l *LinkRequest) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "transactionId":
			l.TransactionID, err = decodeString(d)
		case "orderId":
			l.OrderID, err = decodeString(d)
		default:
			err = d.Skip()
		}
		return fieldErr(err, key)
	})
}

// Result is a status/order/message reply, used by link and recreate-order.
type Result struct {
	Status  string `json:"status"`
	OrderID string `json:"orderId,omitempty"`
	Message string `json:"message,omitempty"`
	// Error is the error kind on failures.
	Error string `json:"error,omitempty"`
	// Created is set by recreate-order when the call inserted the order.
	Created bool `json:"created,omitempty"`
}

func (r *Result) Encode(e *jx.Encoder) {
	e.ObjStart()
	field(e, "status", r.Status)
	optStr(e, "orderId", r.OrderID)
	optStr(e, "message", r.Message)
	optStr(e, "error", r.Error)
	if r.Created {
		e.FieldStart("created")
		e.Bool(true)
	}
	e.ObjEnd()
}

func (r *Result) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "status":
			r.Status, err = decodeString(d)
		case "orderId":
			r.OrderID, err = decodeString(d)
		case "message":
			r.Message, err = decodeString(d)
		case "error":
			r.Error, err = decodeString(d)
		case "created":
			r.Created, err = d.Bool()
		default:
			err = d.Skip()
		}
		return fieldErr(err, key)
	})
}
