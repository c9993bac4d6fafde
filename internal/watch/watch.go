// Package watch polls an order until it reaches a terminal status.
package watch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/qrdine/internal/client"
	"github.com/xenking/qrdine/internal/domain/order"
	"github.com/xenking/qrdine/internal/wire"
)

// DefaultInterval is the poll period when none is configured.
const DefaultInterval = 60 * time.Second

// Fetcher loads the current state of an order.
type Fetcher interface {
	GetOrder(ctx context.Context, id string) (*wire.Order, error)
}

var _ Fetcher = (*client.Client)(nil)

// Watcher observes one order. Polls never overlap: a poll that would start
// while another is in flight is dropped, not queued.
type Watcher struct {
	api      Fetcher
	orderID  string
	interval time.Duration
	onUpdate func(*wire.Order)

	inFlight atomic.Bool
	visible  atomic.Bool
	wake     chan struct{}

	mu       sync.Mutex
	last     *wire.Order
	terminal chan struct{}
	once     sync.Once
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithInterval sets the poll period.
func WithInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// OnUpdate registers fn to receive every accepted observation.
func OnUpdate(fn func(*wire.Order)) Option {
	return func(w *Watcher) { w.onUpdate = fn }
}

// New returns a Watcher for orderID. It starts visible.
func New(api Fetcher, orderID string, opts ...Option) *Watcher {
	w := &Watcher{
		api:      api,
		orderID:  orderID,
		interval: DefaultInterval,
		onUpdate: func(*wire.Order) {},
		wake:     make(chan struct{}, 1),
		terminal: make(chan struct{}),
	}
	w.visible.Store(true)
	for _, o := range opts {
		o(w)
	}
	return w
}

// Last returns the last accepted observation, or nil.
func (w *Watcher) Last() *wire.Order {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// SetVisible suspends timed polls while hidden. Becoming visible again
// polls right away.
func (w *Watcher) SetVisible(visible bool) {
	if w.visible.Swap(visible) == visible || !visible {
		return
	}
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Refresh polls now, bypassing the timer. It reports false when a poll was
// already in flight and nothing was done.
func (w *Watcher) Refresh(ctx context.Context) (bool, error) {
	return w.poll(ctx)
}

// Run polls until the order is completed or cancelled, or ctx is done. It
// returns the last accepted observation.
func (w *Watcher) Run(ctx context.Context) (*wire.Order, error) {
	lg := zctx.From(ctx).With(zap.String("order_id", w.orderID))

	tick := func() {
		if _, err := w.poll(ctx); err != nil && ctx.Err() == nil {
			lg.Warn("Poll order failed", zap.Error(err))
		}
	}
	tick()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.terminal:
			return w.Last(), nil
		case <-ctx.Done():
			return w.Last(), ctx.Err()
		case <-ticker.C:
			if w.visible.Load() {
				tick()
			}
		case <-w.wake:
			tick()
			ticker.Reset(w.interval)
		}
	}
}

func (w *Watcher) poll(ctx context.Context) (bool, error) {
	if !w.inFlight.CompareAndSwap(false, true) {
		return false, nil
	}
	defer w.inFlight.Store(false)

	select {
	case <-w.terminal:
		return true, nil
	default:
	}

	o, err := w.api.GetOrder(ctx, w.orderID)
	if err != nil {
		return true, errors.Wrap(err, "get order")
	}
	w.observe(ctx, o)
	return true, nil
}

// observe accepts o unless it moves backwards from the last accepted state.
func (w *Watcher) observe(ctx context.Context, o *wire.Order) {
	w.mu.Lock()
	prev := w.last
	if prev != nil && !legal(prev, o) {
		w.mu.Unlock()
		zctx.From(ctx).Warn("Ignoring illegal order transition",
			zap.String("order_id", w.orderID),
			zap.String("from", prev.Status),
			zap.String("to", o.Status),
			zap.String("payment_from", prev.PaymentStatus),
			zap.String("payment_to", o.PaymentStatus),
		)
		return
	}
	w.last = o
	w.mu.Unlock()

	w.onUpdate(o)
	if order.Status(o.Status).Terminal() {
		w.once.Do(func() { close(w.terminal) })
	}
}

func legal(prev, next *wire.Order) bool {
	if !order.Reachable(order.Status(prev.Status), order.Status(next.Status)) {
		return false
	}
	return !(prev.PaymentStatus == string(order.PaymentPaid) && next.PaymentStatus != string(order.PaymentPaid))
}
