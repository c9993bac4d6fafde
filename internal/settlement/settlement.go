// Package settlement reconciles gateway transactions that never saw their
// callback. It reads the gateway's gzip settlement exports, completes the
// transactions the gateway settled and recreates orders for completed
// transactions that have none.
package settlement

import (
	"context"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/qrdine/internal/domain/payment"
)

const (
	defaultCapacity   = 1_000_000
	defaultFPR        = 0.001
	defaultSweepLimit = 500
	defaultWorkers    = 4
	progressEvery     = 100_000
)

// Payments is the part of the payment service the reconciler drives.
type Payments interface {
	Status(ctx context.Context, transactionID string) (*payment.Transaction, error)
	Settle(ctx context.Context, transactionID, gatewayStatus string) (bool, error)
	Unlinked(ctx context.Context, limit int) ([]payment.Transaction, error)
	EachLinkedID(ctx context.Context, fn func(id string) error) error
	RecreateOrder(ctx context.Context, transactionID string) (*payment.Recreation, error)
}

var _ Payments = (*payment.Service)(nil)

// Config tunes a Reconciler.
type Config struct {
	// Workers bounds how many files are scanned at once.
	Workers int
	// SweepLimit caps the unlinked transactions handled per run.
	SweepLimit int
	// Capacity and FPR size the linked-id filter.
	Capacity uint
	FPR      float64
}

func (c *Config) setDefaults() {
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.SweepLimit <= 0 {
		c.SweepLimit = defaultSweepLimit
	}
	if c.Capacity == 0 {
		c.Capacity = defaultCapacity
	}
	if c.FPR <= 0 || c.FPR >= 1 {
		c.FPR = defaultFPR
	}
}

// Report counts what a run did.
type Report struct {
	Files         int
	Lines         int64
	Malformed     int64
	Settled       int64
	AlreadyLinked int64
	Unknown       int64
	Recreated     int
	Existing      int
	Unrecoverable []string
}

type counters struct {
	lines, malformed, settled, linked, unknown atomic.Int64
}

// Reconciler runs settlement passes.
type Reconciler struct {
	payments Payments
	cfg      Config
}

// New returns a Reconciler.
func New(payments Payments, cfg Config) *Reconciler {
	cfg.setDefaults()
	return &Reconciler{payments: payments, cfg: cfg}
}

// Run settles every file, then recreates orders for completed transactions
// still missing one. Unrecoverable transactions are reported, not failed.
func (r *Reconciler) Run(ctx context.Context, files []string) (*Report, error) {
	lg := zctx.From(ctx)

	linked, err := r.linkedFilter(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load linked transactions")
	}

	var c counters
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for _, path := range files {
		g.Go(func() error {
			return r.settleFile(gctx, path, linked, &c)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rep := &Report{
		Files:         len(files),
		Lines:         c.lines.Load(),
		Malformed:     c.malformed.Load(),
		Settled:       c.settled.Load(),
		AlreadyLinked: c.linked.Load(),
		Unknown:       c.unknown.Load(),
	}
	lg.Info("Settlement files applied",
		zap.Int("files", rep.Files),
		zap.Int64("lines", rep.Lines),
		zap.Int64("settled", rep.Settled),
		zap.Int64("already_linked", rep.AlreadyLinked),
		zap.Int64("unknown", rep.Unknown),
		zap.Int64("malformed", rep.Malformed),
	)

	if err := r.Sweep(ctx, rep); err != nil {
		return rep, err
	}
	return rep, nil
}

// linkedFilter loads every linked transaction id into a bloom filter. A
// miss proves the id is unlinked; a hit is confirmed against the store.
func (r *Reconciler) linkedFilter(ctx context.Context) (*bloom.BloomFilter, error) {
	f := bloom.NewWithEstimates(r.cfg.Capacity, r.cfg.FPR)
	var n int
	err := r.payments.EachLinkedID(ctx, func(id string) error {
		f.AddString(id)
		n++
		return nil
	})
	if err != nil {
		return nil, err
	}
	zctx.From(ctx).Info("Linked transactions loaded", zap.Int("count", n))
	return f, nil
}

func (r *Reconciler) settleFile(ctx context.Context, path string, linked *bloom.BloomFilter, c *counters) error {
	lg := zctx.From(ctx).With(zap.String("file", path))
	var n int64
	err := scanFile(ctx, path, func(l Line, lineErr error) error {
		n++
		c.lines.Add(1)
		if n%progressEvery == 0 {
			lg.Info("Settlement progress", zap.Int64("lines", n))
		}
		if lineErr != nil {
			c.malformed.Add(1)
			lg.Warn("Skipping malformed line", zap.Int64("line", n), zap.Error(lineErr))
			return nil
		}
		if !l.Complete() {
			return nil
		}
		return r.settleLine(ctx, l, linked, c)
	})
	if err != nil {
		return errors.Wrapf(err, "settle %s", path)
	}
	lg.Info("Settlement file done", zap.Int64("lines", n))
	return nil
}

func (r *Reconciler) settleLine(ctx context.Context, l Line, linked *bloom.BloomFilter, c *counters) error {
	lg := zctx.From(ctx).With(zap.String("transaction_id", l.TransactionID))
	if linked.TestString(l.TransactionID) {
		tx, err := r.payments.Status(ctx, l.TransactionID)
		switch {
		case errors.Is(err, payment.ErrTransactionNotFound):
			c.unknown.Add(1)
			return nil
		case err != nil:
			return errors.Wrap(err, "get transaction")
		case tx.OrderID != "" && tx.Status == payment.StatusCompleted:
			c.linked.Add(1)
			return nil
		}
	}

	changed, err := r.payments.Settle(ctx, l.TransactionID, l.Status)
	switch {
	case errors.Is(err, payment.ErrTransactionNotFound):
		c.unknown.Add(1)
		lg.Warn("Settled transaction is unknown", zap.String("amount", l.Amount.StringFixed(2)))
		return nil
	case err != nil:
		return errors.Wrapf(err, "settle %s", l.TransactionID)
	}
	if changed {
		c.settled.Add(1)
		lg.Info("Transaction settled")
	}
	return nil
}

// Sweep recreates orders for completed transactions without one.
func (r *Reconciler) Sweep(ctx context.Context, rep *Report) error {
	lg := zctx.From(ctx)
	txs, err := r.payments.Unlinked(ctx, r.cfg.SweepLimit)
	if err != nil {
		return errors.Wrap(err, "list unlinked transactions")
	}
	for _, tx := range txs {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := r.payments.RecreateOrder(ctx, tx.ID)
		if err != nil {
			var unrecoverable *payment.UnrecoverableError
			if errors.As(err, &unrecoverable) {
				rep.Unrecoverable = append(rep.Unrecoverable, tx.ID)
				lg.Error("Transaction needs manual resolution",
					zap.String("transaction_id", tx.ID),
					zap.String("reason", unrecoverable.Reason),
				)
				continue
			}
			return errors.Wrapf(err, "recreate order for %s", tx.ID)
		}
		if res.Created {
			rep.Recreated++
		} else {
			rep.Existing++
		}
	}
	lg.Info("Unlinked sweep done",
		zap.Int("transactions", len(txs)),
		zap.Int("recreated", rep.Recreated),
		zap.Int("existing", rep.Existing),
		zap.Int("unrecoverable", len(rep.Unrecoverable)),
	)
	return nil
}
