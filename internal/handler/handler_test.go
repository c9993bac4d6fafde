package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/qrdine/internal/domain/auth"
	"github.com/xenking/qrdine/internal/domain/order"
	"github.com/xenking/qrdine/internal/domain/payment"
	"github.com/xenking/qrdine/internal/domain/pricing"
	"github.com/xenking/qrdine/internal/domain/review"
)

// --- Mock implementations ---

type mockOrders struct {
	createRes  *order.CreateResult
	createErr  error
	lastCreate order.CreateRequest
	byID       map[string]*order.Order
	byTx       map[string]*order.Order
	updateErr  error
	lastStatus order.Status
	paid       []string
}

func (m *mockOrders) CreateOrGet(_ context.Context, req order.CreateRequest) (*order.CreateResult, error) {
	m.lastCreate = req
	return m.createRes, m.createErr
}

func (m *mockOrders) Get(_ context.Context, id string) (*order.Order, error) {
	if o, ok := m.byID[id]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, order.ErrNotFound
}

func (m *mockOrders) FindByTransaction(_ context.Context, id string) (*order.Order, error) {
	if o, ok := m.byTx[id]; ok {
		return o, nil
	}
	return nil, order.ErrNotFound
}

func (m *mockOrders) UpdateStatus(_ context.Context, id string, to order.Status) (*order.Order, error) {
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	m.lastStatus = to
	o := *m.byID[id]
	o.Status = to
	return &o, nil
}

func (m *mockOrders) MarkPaid(_ context.Context, id string, _ order.PaymentMethod) (*order.Order, error) {
	m.paid = append(m.paid, id)
	o := *m.byID[id]
	o.PaymentStatus = order.PaymentPaid
	return &o, nil
}

type mockPayments struct {
	initReq    payment.InitiateRequest
	verifyID   string
	verifyData string
	verify     *payment.Verification
	linkErr    error
	recreate   *payment.Recreation
	recErr     error
	tx         *payment.Transaction
	cancelErr  error
}

func (m *mockPayments) Initiate(_ context.Context, req payment.InitiateRequest) (*payment.Initiation, error) {
	m.initReq = req
	return &payment.Initiation{
		TransactionID: "T1",
		Form: &payment.Form{
			RedirectURL: "https://gateway.example/form",
			Fields: []payment.FormField{
				{Name: "total_amount", Value: "400"},
				{Name: "transaction_uuid", Value: "T1"},
			},
		},
	}, nil
}

func (m *mockPayments) Verify(_ context.Context, id, data string) (*payment.Verification, error) {
	m.verifyID, m.verifyData = id, data
	if m.verify == nil {
		return nil, payment.ErrTransactionNotFound
	}
	return m.verify, nil
}

func (m *mockPayments) Status(context.Context, string) (*payment.Transaction, error) {
	if m.tx == nil {
		return nil, payment.ErrTransactionNotFound
	}
	return m.tx, nil
}

func (m *mockPayments) Cancel(context.Context, string) (*payment.Transaction, error) {
	if m.cancelErr != nil {
		return nil, m.cancelErr
	}
	return m.tx, nil
}

func (m *mockPayments) Link(context.Context, string, string) error {
	return m.linkErr
}

func (m *mockPayments) RecreateOrder(context.Context, string) (*payment.Recreation, error) {
	return m.recreate, m.recErr
}

type mockReviews struct {
	submitErr error
	list      []review.Review
}

func (m *mockReviews) Submit(_ context.Context, req review.SubmitRequest) (*review.Review, error) {
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	return &review.Review{ID: "rv-1", OrderID: req.OrderID, Rating: req.Rating, Comment: req.Comment}, nil
}

func (m *mockReviews) List(context.Context, string) ([]review.Review, error) {
	return m.list, nil
}

type mockCharges struct {
	charges []pricing.Charge
	err     error
}

func (m *mockCharges) ListActive(context.Context) ([]pricing.Charge, error) {
	return m.charges, m.err
}

type mockAuth struct{}

func (mockAuth) Authenticate(_ context.Context, key string) (*auth.APIKeyInfo, error) {
	switch key {
	case "staff":
		return &auth.APIKeyInfo{ID: "k1", Scopes: []string{auth.ScopeOrders}}, nil
	case "readonly":
		return &auth.APIKeyInfo{ID: "k2"}, nil
	}
	return nil, auth.ErrUnauthorized
}

// --- Helpers ---

type fixture struct {
	orders   *mockOrders
	payments *mockPayments
	reviews  *mockReviews
	charges  *mockCharges
	mux      *http.ServeMux
}

func newFixture() *fixture {
	f := &fixture{
		orders:   &mockOrders{byID: map[string]*order.Order{}, byTx: map[string]*order.Order{}},
		payments: &mockPayments{},
		reviews:  &mockReviews{},
		charges:  &mockCharges{},
		mux:      http.NewServeMux(),
	}
	NewHandler(f.orders, f.payments, f.reviews, f.charges, mockAuth{}).Register(f.mux)
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string, headers ...string) (*http.Response, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)

	res := rec.Result()
	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	var out map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return res, out
}

func sampleOrder() *order.Order {
	return &order.Order{
		ID:            "ord-1",
		Table:         "table-7",
		Items:         []order.Item{{ItemID: "momo", Name: "Momo", UnitPrice: decimal.NewFromInt(150), Quantity: 2}},
		Subtotal:      decimal.NewFromInt(300),
		Total:         decimal.NewFromInt(300),
		Status:        order.StatusPending,
		PaymentStatus: order.PaymentPending,
		PaymentMethod: order.MethodCash,
		TransactionID: "cash-1-abc",
		CreatedAt:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

const createBody = `{"table":"table-7","items":[{"itemId":"momo","name":"Momo","unitPrice":150,"quantity":2}],
	"total":300,"paymentMethod":"cash","transactionId":"cash-1-abc"}`

// --- Tests ---

func TestCreateOrder_CreatedThenExisting(t *testing.T) {
	f := newFixture()

	f.orders.createRes = &order.CreateResult{Order: sampleOrder(), Created: true}
	res, body := f.do(t, http.MethodPost, "/api/orders", createBody)
	assert.Equal(t, http.StatusCreated, res.StatusCode)
	assert.Equal(t, "ord-1", body["id"])
	assert.Equal(t, "pending", body["paymentStatus"])
	assert.Equal(t, "cash-1-abc", f.orders.lastCreate.TransactionID)
	assert.True(t, decimal.NewFromInt(300).Equal(f.orders.lastCreate.Total))

	f.orders.createRes = &order.CreateResult{Order: sampleOrder()}
	res, body = f.do(t, http.MethodPost, "/api/orders", createBody)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "ord-1", body["id"])
}

func TestCreateOrder_Validation(t *testing.T) {
	f := newFixture()

	tests := []struct {
		name     string
		body     string
		err      error
		wantCode int
		wantKind string
	}{
		{
			name:     "malformed json",
			body:     `{"table":`,
			wantCode: http.StatusBadRequest,
			wantKind: "validation",
		},
		{
			name:     "missing items",
			body:     `{"table":"t","items":[],"paymentMethod":"cash"}`,
			wantCode: http.StatusBadRequest,
			wantKind: "validation",
		},
		{
			name:     "unknown payment method",
			body:     `{"table":"t","items":[{"itemId":"a","quantity":1}],"paymentMethod":"bitcoin"}`,
			wantCode: http.StatusBadRequest,
			wantKind: "validation",
		},
		{
			name:     "total mismatch",
			body:     createBody,
			err:      &order.TotalMismatchError{Submitted: decimal.NewFromInt(1), Computed: decimal.NewFromInt(300)},
			wantCode: http.StatusUnprocessableEntity,
			wantKind: "validation",
		},
		{
			name:     "internal failure",
			body:     createBody,
			err:      errors.New("db down"),
			wantCode: http.StatusInternalServerError,
			wantKind: "internal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.orders.createRes, f.orders.createErr = nil, tt.err
			res, body := f.do(t, http.MethodPost, "/api/orders", tt.body)
			assert.Equal(t, tt.wantCode, res.StatusCode)
			assert.Equal(t, tt.wantKind, body["error"])
			assert.EqualValues(t, tt.wantCode, body["code"])
		})
	}
}

func TestCreateOrder_ValidationDetails(t *testing.T) {
	f := newFixture()

	_, body := f.do(t, http.MethodPost, "/api/orders",
		`{"table":"t","items":[{"itemId":"a","quantity":0}],"paymentMethod":"cash"}`)
	details, ok := body["details"].(map[string]any)
	require.True(t, ok, body)
	assert.Equal(t, "must be at least 1", details["items[0].quantity"])
}

func TestFindOrders(t *testing.T) {
	f := newFixture()
	f.orders.byTx["T3"] = sampleOrder()

	// Malformed doubly-queried id still resolves.
	req := httptest.NewRequest(http.MethodGet, "/api/orders?transactionId=T3?foo=bar", nil)
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var found []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &found))
	require.Len(t, found, 1)
	assert.Equal(t, "ord-1", found[0]["id"])

	rec = httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders?transactionId=nope", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	res, _ := f.do(t, http.MethodGet, "/api/orders", "")
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestGetOrder(t *testing.T) {
	f := newFixture()
	f.orders.byID["ord-1"] = sampleOrder()

	res, body := f.do(t, http.MethodGet, "/api/orders/ord-1", "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "table-7", body["table"])
	assert.EqualValues(t, 300, body["total"])

	res, body = f.do(t, http.MethodGet, "/api/orders/missing", "")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "not_found", body["error"])
}

func TestUpdateOrderStatus(t *testing.T) {
	f := newFixture()
	f.orders.byID["ord-1"] = sampleOrder()
	const path = "/api/orders/ord-1/status"

	res, _ := f.do(t, http.MethodPost, path, `{"status":"in-progress"}`)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, _ = f.do(t, http.MethodPost, path, `{"status":"in-progress"}`, APIKeyHeader, "readonly")
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res, body := f.do(t, http.MethodPost, path, `{"status":"in-progress","paymentStatus":"paid"}`, APIKeyHeader, "staff")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, order.StatusInProgress, f.orders.lastStatus)
	assert.Equal(t, []string{"ord-1"}, f.orders.paid)
	assert.Equal(t, "paid", body["paymentStatus"])

	f.orders.updateErr = &order.IllegalTransitionError{From: order.StatusCompleted, To: order.StatusPending}
	res, body = f.do(t, http.MethodPost, path, `{"status":"pending"}`, APIKeyHeader, "staff")
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, "conflict", body["error"])

	res, _ = f.do(t, http.MethodPost, path, `{}`, APIKeyHeader, "staff")
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, _ = f.do(t, http.MethodPost, path, `{"status":"teleported"}`, APIKeyHeader, "staff")
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	f.orders.byID["ord-1"].PaymentStatus = order.PaymentPaid
	res, _ = f.do(t, http.MethodPost, path, `{"paymentStatus":"pending"}`, APIKeyHeader, "staff")
	assert.Equal(t, http.StatusConflict, res.StatusCode)
}

func TestUpdateOrderStatus_PaymentReversalWritesNothing(t *testing.T) {
	f := newFixture()
	paid := sampleOrder()
	paid.PaymentStatus = order.PaymentPaid
	f.orders.byID["ord-1"] = paid

	res, body := f.do(t, http.MethodPost, "/api/orders/ord-1/status",
		`{"status":"in-progress","paymentStatus":"pending"}`, APIKeyHeader, "staff")
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, "conflict", body["error"])
	assert.Empty(t, f.orders.lastStatus, "status must not change when the request is rejected")
	assert.Empty(t, f.orders.paid)
}

func TestInitiatePayment(t *testing.T) {
	f := newFixture()

	res, body := f.do(t, http.MethodPost, "/api/payments/gateway/initiate", `{
		"amount": 390.95, "taxAmount": "10.5", "serviceCharge": 0, "deliveryCharge": 0,
		"orderId": "temp-table-7", "customerName": "Asha",
		"items": [{"itemId": "momo", "name": "Momo", "unitPrice": 150, "quantity": 2}]
	}`)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "T1", body["transactionId"])
	assert.Equal(t, "https://gateway.example/form", body["redirectUrl"])
	assert.Equal(t, map[string]any{"total_amount": "400", "transaction_uuid": "T1"}, body["fields"])

	assert.Equal(t, "temp-table-7", f.payments.initReq.OrderRef)
	assert.True(t, decimal.RequireFromString("390.95").Equal(f.payments.initReq.Amount))
	require.NotNil(t, f.payments.initReq.Draft)
	assert.Equal(t, "Asha", f.payments.initReq.Draft.CustomerName)
	assert.Len(t, f.payments.initReq.Draft.Items, 1)

	res, _ = f.do(t, http.MethodPost, "/api/payments/gateway/initiate", `{"amount": 10}`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestVerifyPayment(t *testing.T) {
	f := newFixture()
	f.payments.verify = &payment.Verification{
		TransactionID: "T3",
		Outcome:       payment.OutcomeSuccess,
		OrderID:       "ord-1",
		PaymentStatus: order.PaymentPaid,
	}

	res, body := f.do(t, http.MethodGet, "/api/payments/gateway/verify?transaction_uuid=T3?data=eyJhIjoxfQ==", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "paid", body["paymentStatus"])
	assert.Equal(t, "T3", f.payments.verifyID)
	assert.Equal(t, "eyJhIjoxfQ==", f.payments.verifyData)

	f.payments.verify = nil
	res, body = f.do(t, http.MethodGet, "/api/payments/gateway/verify?transactionId=unknown", "")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "not_found", body["error"])
}

func TestPaymentStatusAndCancel(t *testing.T) {
	f := newFixture()
	f.payments.tx = &payment.Transaction{
		ID:     "T1",
		Amount: decimal.RequireFromString("330.75"),
		Status: payment.StatusCancelled,
		Stage:  payment.StageIntentCreated,
	}

	res, body := f.do(t, http.MethodGet, "/api/payments/gateway/status?transactionId=T1", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "CANCELLED", body["status"])
	assert.Equal(t, 330.75, body["amount"])
	assert.Equal(t, "intent-created", body["stage"])

	res, _ = f.do(t, http.MethodPost, "/api/payments/gateway/cancel", `{"transactionId":"T1"}`)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	f.payments.cancelErr = payment.ErrAlreadyCompleted
	res, body = f.do(t, http.MethodPost, "/api/payments/gateway/cancel", `{"transactionId":"T1"}`)
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, "conflict", body["error"])
}

func TestLinkPayment(t *testing.T) {
	f := newFixture()

	res, body := f.do(t, http.MethodPost, "/api/payments/gateway/link", `{"transactionId":"T1","orderId":"ord-1"}`)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "ok", body["status"])

	f.payments.linkErr = payment.ErrAlreadyLinked
	res, _ = f.do(t, http.MethodPost, "/api/payments/gateway/link", `{"transactionId":"T1","orderId":"ord-2"}`)
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	res, _ = f.do(t, http.MethodPost, "/api/payments/gateway/link", `{"transactionId":"T1"}`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestRecreateOrder(t *testing.T) {
	f := newFixture()
	const path = "/api/payments/gateway/recreate-order"

	f.payments.recreate = &payment.Recreation{OrderID: "ord-9", Created: true}
	res, body := f.do(t, http.MethodPost, path, `{"transactionId":"T2"}`)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "ord-9", body["orderId"])
	assert.Equal(t, true, body["created"])

	f.payments.recreate = &payment.Recreation{OrderID: "ord-9"}
	_, body = f.do(t, http.MethodPost, path, `{"transactionId":"T2"}`)
	assert.NotContains(t, body, "created")

	f.payments.recreate, f.payments.recErr = nil, &payment.UnrecoverableError{TransactionID: "T2", Reason: "order details not found in transaction"}
	res, body = f.do(t, http.MethodPost, path, `{"transactionId":"T2"}`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "failure", body["status"])
	assert.Equal(t, "unrecoverable", body["error"])
	assert.Contains(t, body["message"], "order details not found")

	f.payments.recErr = payment.ErrTransactionNotFound
	res, _ = f.do(t, http.MethodPost, path, `{"transactionId":"T404"}`)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestReviews(t *testing.T) {
	f := newFixture()

	res, body := f.do(t, http.MethodPost, "/api/reviews", `{"orderId":"ord-1","rating":5,"comment":"great"}`)
	assert.Equal(t, http.StatusCreated, res.StatusCode)
	assert.Equal(t, "rv-1", body["id"])

	f.reviews.submitErr = review.ErrAlreadyReviewed
	res, body = f.do(t, http.MethodPost, "/api/reviews", `{"orderId":"ord-1","rating":4}`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "already reviewed", body["error"])

	f.reviews.submitErr = nil
	res, body = f.do(t, http.MethodPost, "/api/reviews", `{"orderId":"ord-1"}`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "validation", body["error"])

	f.reviews.list = []review.Review{{ID: "rv-1", OrderID: "ord-1", Rating: 5}}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reviews?order=ord-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.EqualValues(t, 5, list[0]["rating"])
}

func TestListCharges(t *testing.T) {
	f := newFixture()
	f.charges.charges = []pricing.Charge{{ID: "svc", Label: "Service charge", Amount: decimal.RequireFromString("10.5")}}

	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/charges", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":"svc","label":"Service charge","amount":10.50}]`, rec.Body.String())

	f.charges.err = errors.New("db down")
	res, body := f.do(t, http.MethodGet, "/api/charges", "")
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.Equal(t, "Internal Server Error", body["message"])
}
