package redis

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// ErrNoTable is returned when a cooldown is requested without a table.
var ErrNoTable = errors.New("table uid required")

// Cooldown rate-limits waiter calls per table with SET NX PX.
type Cooldown struct {
	c      *Client
	period time.Duration
	now    func() time.Time
}

// NewCooldown returns a Cooldown with the given period.
func NewCooldown(c *Client, period time.Duration) *Cooldown {
	return &Cooldown{c: c, period: period, now: time.Now}
}

// Acquire starts the cooldown for a table. When one is already running it
// returns false and the time left.
func (cd *Cooldown) Acquire(ctx context.Context, tableUID string) (ok bool, remaining time.Duration, err error) {
	if strings.TrimSpace(tableUID) == "" {
		return false, 0, ErrNoTable
	}
	k := key("waiter-call", tableUID)
	ok, err = cd.c.store.SetNX(ctx, k, cd.now().UnixMilli(), cd.period).Result()
	if err != nil {
		return false, 0, errors.Wrap(err, "acquire cooldown")
	}
	if ok {
		return true, 0, nil
	}

	remaining, err = cd.c.store.PTTL(ctx, k).Result()
	if err != nil {
		return false, 0, errors.Wrap(err, "read cooldown")
	}
	if remaining < 0 {
		// Key vanished between the two calls or has no expiry.
		remaining = 0
	}
	return false, remaining, nil
}

// Reset ends the cooldown for a table.
func (cd *Cooldown) Reset(ctx context.Context, tableUID string) error {
	if strings.TrimSpace(tableUID) == "" {
		return ErrNoTable
	}
	if err := cd.c.store.Del(ctx, key("waiter-call", tableUID)).Err(); err != nil {
		return errors.Wrap(err, "reset cooldown")
	}
	return nil
}
