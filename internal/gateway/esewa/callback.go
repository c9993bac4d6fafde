package esewa

import (
	"crypto/hmac"
	"encoding/base64"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/qrdine/internal/domain/payment"
)

// Callback errors.
var (
	ErrMalformedCallback = errors.New("malformed esewa callback")
	ErrInvalidSignature  = errors.New("invalid esewa callback signature")
)

// DecodeCallback implements payment.Gateway. data is the base64 JSON the
// gateway appends to the success URL. The signature covers the fields named
// in signed_field_names, in that order.
func (c *Client) DecodeCallback(data string) (*payment.Callback, error) {
	// Unescaped '+' in a query string arrives as a space.
	data = strings.ReplaceAll(data, " ", "+")

	raw, err := decodeBase64(data)
	if err != nil {
		return nil, errors.Wrap(ErrMalformedCallback, err.Error())
	}

	fields, err := parseFields(raw)
	if err != nil {
		return nil, errors.Wrap(ErrMalformedCallback, err.Error())
	}

	names := fields["signed_field_names"]
	if names == "" || fields["signature"] == "" {
		return nil, errors.Wrap(ErrMalformedCallback, "missing signature")
	}

	var signed []field
	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(name)
		v, ok := fields[name]
		if !ok {
			return nil, errors.Wrapf(ErrMalformedCallback, "signed field %q missing", name)
		}
		signed = append(signed, field{name, v})
	}

	want := Sign(c.secret, message(signed))
	if !hmac.Equal([]byte(want), []byte(fields["signature"])) {
		return nil, ErrInvalidSignature
	}

	return &payment.Callback{
		TransactionID: fields["transaction_uuid"],
		Status:        fields["status"],
		TotalAmount:   fields["total_amount"],
		RefID:         fields["transaction_code"],
	}, nil
}

// EncodeCallback produces a signed callback payload in the gateway's format.
// It backs local simulation of a gateway return.
func (c *Client) EncodeCallback(cb payment.Callback) string {
	fields := []field{
		{"transaction_code", cb.RefID},
		{"status", cb.Status},
		{"total_amount", cb.TotalAmount},
		{"transaction_uuid", cb.TransactionID},
		{"product_code", c.productCode},
	}
	names := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		names = append(names, f.name)
	}
	names = append(names, "signed_field_names")
	signedNames := strings.Join(names, ",")
	signature := Sign(c.secret, message(append(fields, field{"signed_field_names", signedNames})))

	var e jx.Encoder
	e.ObjStart()
	for _, f := range fields {
		e.FieldStart(f.name)
		e.Str(f.value)
	}
	e.FieldStart("signed_field_names")
	e.Str(signedNames)
	e.FieldStart("signature")
	e.Str(signature)
	e.ObjEnd()

	return base64.StdEncoding.EncodeToString(e.Bytes())
}

func decodeBase64(s string) ([]byte, error) {
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	if b, err := base64.URLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

// parseFields flattens a callback object into raw string values. Numbers keep
// their literal text because the signature was computed over it.
func parseFields(raw []byte) (map[string]string, error) {
	fields := make(map[string]string)
	d := jx.DecodeBytes(raw)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch d.Next() {
		case jx.String:
			v, err := d.Str()
			if err != nil {
				return err
			}
			fields[key] = v
		case jx.Number:
			v, err := d.Num()
			if err != nil {
				return err
			}
			fields[key] = v.String()
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fields, nil
}
