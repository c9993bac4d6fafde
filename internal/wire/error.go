package wire

import (
	"github.com/go-faster/jx"
)

// Error kinds carried in the "error" field of an Error body.
const (
	KindValidation      = "validation"
	KindNotFound        = "not_found"
	KindAlreadyReviewed = "already reviewed"
	KindGatewayDeclined = "gateway_declined"
	KindUnrecoverable   = "unrecoverable"
	KindConflict        = "conflict"
	KindUnauthorized    = "unauthorized"
	KindInternal        = "internal"
)

// Error is the body of every non-2xx response.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Kind    string `json:"error"`
	// Details maps request fields to validation messages.
	Details map[string]string `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Encode(enc *jx.Encoder) {
	enc.ObjStart()
	enc.FieldStart("code")
	enc.Int(e.Code)
	field(enc, "message", e.Message)
	field(enc, "error", e.Kind)
	if len(e.Details) > 0 {
		enc.FieldStart("details")
		enc.ObjStart()
		for k, v := range e.Details {
			field(enc, k, v)
		}
		enc.ObjEnd()
	}
	enc.ObjEnd()
}

func (e *Error) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			e.Code, err = d.Int()
		case "message":
			e.Message, err = decodeString(d)
		case "error":
			e.Kind, err = decodeString(d)
		case "details":
			e.Details = map[string]string{}
			err = d.Obj(func(d *jx.Decoder, k string) error {
				v, err := decodeString(d)
				e.Details[k] = v
				return fieldErr(err, k)
			})
			err = d.Obj(func(d *jx.Decoder, k string) error {
				v, err := decodeString(d)
				e.Details[k] = v
				return err
			})
		default:
			err = d.Skip()
		}
		return fieldErr(err, key)
	})
}
