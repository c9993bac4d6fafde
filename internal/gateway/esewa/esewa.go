// Package esewa implements the eSewa ePay v2 redirect protocol: a signed HTML
// form the browser POSTs to the gateway, and a base64 JSON callback appended
// to the success URL.
package esewa

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/qrdine/internal/domain/order"
	"github.com/xenking/qrdine/internal/domain/payment"
)

// Test environment defaults published by eSewa.
const (
	TestFormURL     = "https://rc-epay.esewa.com.np/api/epay/main/v2/form"
	TestProductCode = "EPAYTEST"
)

// signedFieldNames is the fixed signing order for outgoing forms.
const signedFieldNames = "total_amount,transaction_uuid,product_code"

// Config holds merchant credentials.
type Config struct {
	ProductCode string
	SecretKey   string
	FormURL     string
}

// Client builds forms and authenticates callbacks for one merchant.
type Client struct {
	productCode string
	secret      []byte
	formURL     string
}

var _ payment.Gateway = (*Client)(nil)

// New returns a Client. Empty product code and form URL fall back to the
// test environment.
func New(cfg Config) (*Client, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("esewa secret key is required")
	}
	if cfg.ProductCode == "" {
		cfg.ProductCode = TestProductCode
	}
	if cfg.FormURL == "" {
		cfg.FormURL = TestFormURL
	}
	return &Client{
		productCode: cfg.ProductCode,
		secret:      []byte(cfg.SecretKey),
		formURL:     cfg.FormURL,
	}, nil
}

// Method implements payment.Gateway.
func (c *Client) Method() order.PaymentMethod {
	return order.MethodEsewa
}

// Form implements payment.Gateway. eSewa accepts only integer strings, so each
// amount is truncated and the total is the sum of the truncated parts; the
// signed total therefore always matches the submitted parts.
func (c *Client) Form(req payment.FormRequest) (*payment.Form, error) {
	if req.TransactionID == "" {
		return nil, errors.New("transaction id is required")
	}

	amount := integral(req.Amount)
	tax := integral(req.TaxAmount)
	service := integral(req.ServiceCharge)
	delivery := integral(req.DeliveryCharge)
	total := amount.Add(tax).Add(service).Add(delivery)
	if !total.IsPositive() {
		return nil, errors.Errorf("total amount %s must be at least 1", total)
	}

	totalStr := total.String()
	signature := Sign(c.secret, message([]field{
		{"total_amount", totalStr},
		{"transaction_uuid", req.TransactionID},
		{"product_code", c.productCode},
	}))

	return &payment.Form{
		RedirectURL: c.formURL,
		Fields: []payment.FormField{
			{Name: "amount", Value: amount.String()},
			{Name: "tax_amount", Value: tax.String()},
			{Name: "product_service_charge", Value: service.String()},
			{Name: "product_delivery_charge", Value: delivery.String()},
			{Name: "total_amount", Value: totalStr},
			{Name: "transaction_uuid", Value: req.TransactionID},
			{Name: "product_code", Value: c.productCode},
			{Name: "success_url", Value: req.SuccessURL},
			{Name: "failure_url", Value: req.FailureURL},
			{Name: "signed_field_names", Value: signedFieldNames},
			{Name: "signature", Value: signature},
		},
	}, nil
}

// Sign returns base64(HMAC-SHA256(secret, message)).
func Sign(secret []byte, message string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

type field struct {
	name  string
	value string
}

// message joins fields as "name=value,name=value".
func message(fields []field) string {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(f.name)
		b.WriteByte('=')
		b.WriteString(f.value)
	}
	return b.String()
}

func integral(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(0)
}
