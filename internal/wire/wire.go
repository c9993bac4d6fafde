// Package wire holds the JSON bodies exchanged between the table client and
// the API server. Encoding is hand-written on go-faster/jx; every type
// carries Encode and Decode methods and json tags that name the wire fields
// for request validation.
package wire

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// Encoder is a value that writes itself as JSON.
type Encoder interface {
	Encode(e *jx.Encoder)
}

// Decoder is a value that reads itself from JSON.
type Decoder interface {
	Decode(d *jx.Decoder) error
}

// Marshal encodes v.
func Marshal(v Encoder) []byte {
	var e jx.Encoder
	v.Encode(&e)
	return e.Bytes()
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v Decoder) error {
	if len(data) == 0 {
		return errors.New("empty body")
	}
	return v.Decode(jx.DecodeBytes(data))
}

// fieldErr names the object field a decode error came from. nil stays nil.
func fieldErr(err error, key string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, key)
}

// encodeDecimal writes a monetary amount as a JSON number with two decimals.
func encodeDecimal(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.StringFixed(2)))
}

// decodeDecimal accepts a number, a numeric string, or null.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		if s == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(n.String())
	case jx.Null:
		return decimal.Zero, d.Null()
	default:
		return decimal.Zero, errors.Errorf("unexpected %s for amount", d.Next())
	}
}

// decodeString accepts a string or null.
func decodeString(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339Nano))
}

func decodeTime(d *jx.Decoder) (time.Time, error) {
	s, err := decodeString(d)
	if err != nil || s == "" {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, s)
}

// optStr writes a string field only when it is set.
func optStr(e *jx.Encoder, name, v string) {
	if v == "" {
		return
	}
	e.FieldStart(name)
	e.Str(v)
}

func field(e *jx.Encoder, name string, v string) {
	e.FieldStart(name)
	e.Str(v)
}
