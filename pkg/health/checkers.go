package health

import (
	"context"
	"runtime"
	"time"

	"github.com/go-faster/errors"
)

// Pinger is anything with a connectivity check: *pgxpool.Pool and the
// Redis client both qualify.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck probes a dependency by pinging it.
func PingCheck(name string, p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return errors.Wrapf(err, "ping %s", name)
		}
		return nil
	}
}

// GoroutineCountCheck fails once the process holds more than threshold
// goroutines, the usual sign of a leak.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// StaleCheck fails when last reports a time older than maxAge. Zero time
// means the job never ran and passes.
func StaleCheck(last func() time.Time, maxAge time.Duration) CheckFunc {
	return func(context.Context) error {
		t := last()
		if t.IsZero() {
			return nil
		}
		if age := time.Since(t); age > maxAge {
			return errors.Errorf("last run %s ago exceeds %s", age.Round(time.Second), maxAge)
		}
		return nil
	}
}
