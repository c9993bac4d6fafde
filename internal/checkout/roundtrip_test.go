package checkout

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/qrdine/internal/client"
	"github.com/xenking/qrdine/internal/domain/order"
	"github.com/xenking/qrdine/internal/domain/payment"
	"github.com/xenking/qrdine/internal/gateway/esewa"
	"github.com/xenking/qrdine/internal/handler"
	"github.com/xenking/qrdine/internal/wire"
)

// memOrderRepo is an order.Repository with the unique transaction index the
// database enforces.
type memOrderRepo struct {
	mu   sync.Mutex
	byID map[string]order.Order
	byTx map[string]string
}

func (m *memOrderRepo) Create(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byTx[o.TransactionID]; ok && o.TransactionID != "" {
		return order.ErrDuplicateTransaction
	}
	m.byID[o.ID] = *o
	if o.TransactionID != "" {
		m.byTx[o.TransactionID] = o.ID
	}
	return nil
}

func (m *memOrderRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

func (m *memOrderRepo) GetByID(_ context.Context, id string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return &o, nil
}

func (m *memOrderRepo) FindByTransactionID(ctx context.Context, transactionID string) (*order.Order, error) {
	m.mu.Lock()
	id, ok := m.byTx[transactionID]
	m.mu.Unlock()
	if !ok {
		return nil, order.ErrNotFound
	}
	return m.GetByID(ctx, id)
}

func (m *memOrderRepo) UpdateStatus(_ context.Context, id string, from, to order.Status) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	if o.Status != from {
		return nil, order.ErrStatusConflict
	}
	o.Status = to
	m.byID[id] = o
	return &o, nil
}

func (m *memOrderRepo) MarkPaid(_ context.Context, id string, method order.PaymentMethod) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	o.PaymentStatus = order.PaymentPaid
	o.PaymentMethod = method
	m.byID[id] = o
	return &o, nil
}

func (m *memOrderRepo) AttachTransaction(_ context.Context, id, transactionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return order.ErrNotFound
	}
	if o.TransactionID == "" {
		o.TransactionID = transactionID
		m.byID[id] = o
		m.byTx[transactionID] = id
	}
	return nil
}

// memTxRepo is a payment.Repository that also serves as the order
// service's payment ledger.
type memTxRepo struct {
	mu  sync.Mutex
	txs map[string]payment.Transaction
}

func (m *memTxRepo) Create(_ context.Context, tx *payment.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs[tx.ID] = *tx
	return nil
}

func (m *memTxRepo) Get(_ context.Context, id string) (*payment.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[id]
	if !ok {
		return nil, payment.ErrTransactionNotFound
	}
	return &tx, nil
}

func (m *memTxRepo) update(id string, fn func(tx *payment.Transaction) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[id]
	if !ok {
		return payment.ErrTransactionNotFound
	}
	if err := fn(&tx); err != nil {
		return err
	}
	m.txs[id] = tx
	return nil
}

func (m *memTxRepo) UpdateStatus(_ context.Context, id string, status payment.Status) error {
	return m.update(id, func(tx *payment.Transaction) error {
		tx.Status = status
		return nil
	})
}

func (m *memTxRepo) Advance(_ context.Context, id string, stage payment.Stage) error {
	return m.update(id, func(tx *payment.Transaction) error {
		if tx.Stage.Before(stage) {
			tx.Stage = stage
		}
		return nil
	})
}

func (m *memTxRepo) Link(_ context.Context, id, orderID string) error {
	return m.update(id, func(tx *payment.Transaction) error {
		if tx.OrderID != "" && tx.OrderID != orderID {
			return payment.ErrAlreadyLinked
		}
		tx.OrderID = orderID
		tx.Stage = payment.StageLinked
		return nil
	})
}

func (m *memTxRepo) IsCompleted(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.txs[id].Status == payment.StatusCompleted, nil
}

func (m *memTxRepo) ListUnlinkedCompleted(context.Context, int) ([]payment.Transaction, error) {
	return nil, nil
}

func (m *memTxRepo) EachLinkedID(context.Context, func(string) error) error {
	return nil
}

type roundTrip struct {
	api     *client.Client
	gateway *esewa.Client
	orders  *memOrderRepo
	txs     *memTxRepo
}

func newRoundTrip(t *testing.T) *roundTrip {
	t.Helper()

	gw, err := esewa.New(esewa.Config{SecretKey: "round-trip-secret"})
	require.NoError(t, err)

	rt := &roundTrip{
		gateway: gw,
		orders:  &memOrderRepo{byID: map[string]order.Order{}, byTx: map[string]string{}},
		txs:     &memTxRepo{txs: map[string]payment.Transaction{}},
	}
	orders := order.NewService(rt.orders, rt.txs)
	payments := payment.NewService(payment.Config{PublicBaseURL: "http://table.local"}, rt.txs, orders, gw)

	mux := http.NewServeMux()
	handler.NewHandler(orders, payments, nil, nil, nil).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	rt.api, err = client.New(srv.URL)
	require.NoError(t, err)
	return rt
}

// returnURL is the page the gateway sends the customer back to after a
// completed payment.
func (rt *roundTrip) returnURL(t *testing.T, r *Redirect, sep string) string {
	t.Helper()
	data := rt.gateway.EncodeCallback(payment.Callback{
		TransactionID: r.TransactionID,
		Status:        "COMPLETE",
		TotalAmount:   r.Form.Field("total_amount"),
		RefID:         "000AWEO",
	})
	return r.Form.Field("success_url") + sep + "data=" + url.QueryEscape(data)
}

func roundTripCart() Cart {
	return Cart{
		Table:        "table-7",
		Items:        []wire.Item{{ItemID: "momo", Name: "Momo", UnitPrice: decimal.NewFromInt(150), Quantity: 2}},
		Charges:      []wire.Charge{{Label: "Service", Amount: decimal.NewFromInt(15)}},
		CustomerName: "Asha",
	}
}

func TestRoundTrip_GatewayDoubleSubmitCreatesOneOrder(t *testing.T) {
	rt := newRoundTrip(t)
	ctx := context.Background()
	intents := NewMemoryIntents()
	flow := New(rt.api, intents)

	redirect, err := flow.BeginGateway(ctx, roundTripCart(), order.MethodEsewa)
	require.NoError(t, err)
	draft, ok, err := intents.Load(ctx, redirect.TransactionID)
	require.NoError(t, err)
	require.True(t, ok)

	// The gateway appends its payload with a second '?'.
	res, err := flow.Resume(ctx, rt.returnURL(t, redirect, "?"))
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.False(t, res.Recovered)
	assert.Equal(t, redirect.TransactionID, res.Order.TransactionID)
	assert.True(t, decimal.NewFromInt(315).Equal(res.Order.Total), res.Order.Total.String())

	// A double click submits the same draft again.
	draft.TransactionID = redirect.TransactionID
	draft.PaymentStatus = string(order.PaymentPaid)
	again, created, err := rt.api.CreateOrder(ctx, draft)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, res.Order.ID, again.ID)

	// So does a second return to the success page.
	replay, err := flow.Resume(ctx, rt.returnURL(t, redirect, "?"))
	require.NoError(t, err)
	assert.Equal(t, res.Order.ID, replay.Order.ID)
	assert.False(t, replay.Created)

	assert.Equal(t, 1, rt.orders.count())
	got, err := rt.api.GetOrder(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, string(order.PaymentPaid), got.PaymentStatus)
	assert.Equal(t, string(order.MethodEsewa), got.PaymentMethod)

	status, err := rt.api.PaymentStatus(ctx, redirect.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, string(payment.StageLinked), status.Stage)
	assert.Equal(t, res.Order.ID, status.OrderID)

	_, ok, err = intents.Load(ctx, redirect.TransactionID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRoundTrip_LostIntentRecreatesOrder(t *testing.T) {
	rt := newRoundTrip(t)
	ctx := context.Background()

	redirect, err := New(rt.api, NewMemoryIntents()).BeginGateway(ctx, roundTripCart(), order.MethodEsewa)
	require.NoError(t, err)

	// The page reloaded: a new flow with nothing stored.
	flow := New(rt.api, NewMemoryIntents())
	res, err := flow.Resume(ctx, rt.returnURL(t, redirect, "&"))
	require.NoError(t, err)
	assert.True(t, res.Recovered)
	assert.True(t, res.Created)

	o := res.Order
	assert.Equal(t, "table-7", o.Table)
	assert.Equal(t, "Asha", o.CustomerName)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "momo", o.Items[0].ItemID)
	assert.Equal(t, 2, o.Items[0].Quantity)
	assert.True(t, decimal.NewFromInt(315).Equal(o.Total), o.Total.String())
	assert.Equal(t, string(order.PaymentPaid), o.PaymentStatus)

	// Later submissions for the transaction land on the same order.
	draft, err := draftOf(roundTripCart(), order.MethodEsewa)
	require.NoError(t, err)
	draft.TransactionID = redirect.TransactionID
	again, created, err := rt.api.CreateOrder(ctx, draft)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, o.ID, again.ID)

	orderID, created, err := rt.api.RecreateOrder(ctx, redirect.TransactionID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, o.ID, orderID)

	replay, err := flow.Resume(ctx, rt.returnURL(t, redirect, "&"))
	require.NoError(t, err)
	assert.Equal(t, o.ID, replay.Order.ID)
	assert.False(t, replay.Created)

	assert.Equal(t, 1, rt.orders.count())
}
