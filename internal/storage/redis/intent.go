package redis

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/qrdine/internal/domain/txid"
	"github.com/xenking/qrdine/internal/wire"
)

// DefaultIntentTTL bounds how long an abandoned intent lingers.
const DefaultIntentTTL = 24 * time.Hour

// ErrNoTransactionID is returned for ids that normalize to nothing.
var ErrNoTransactionID = errors.New("transaction id required")

// IntentStore keeps the cart draft of a checkout while the customer is at
// the gateway. It is best-effort: the server-side transaction record is the
// source of truth, so a missing intent is a normal outcome.
type IntentStore struct {
	c   *Client
	ttl time.Duration
}

// NewIntentStore returns an IntentStore. A non-positive ttl uses
// DefaultIntentTTL.
func NewIntentStore(c *Client, ttl time.Duration) *IntentStore {
	if ttl <= 0 {
		ttl = DefaultIntentTTL
	}
	return &IntentStore{c: c, ttl: ttl}
}

func intentKey(transactionID string) string {
	return key("intent", txid.Normalize(transactionID))
}

// Save stores the draft under the transaction id.
func (s *IntentStore) Save(ctx context.Context, transactionID string, draft *wire.CreateOrder) error {
	if txid.Normalize(transactionID) == "" {
		return ErrNoTransactionID
	}
	if err := s.c.store.Set(ctx, intentKey(transactionID), wire.Marshal(draft), s.ttl).Err(); err != nil {
		return errors.Wrap(err, "save intent")
	}
	return nil
}

// Load returns the draft for a transaction id. ok is false when none is
// stored.
func (s *IntentStore) Load(ctx context.Context, transactionID string) (draft *wire.CreateOrder, ok bool, err error) {
	if txid.Normalize(transactionID) == "" {
		return nil, false, ErrNoTransactionID
	}
	raw, err := s.c.store.Get(ctx, intentKey(transactionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, "load intent")
	}
	draft = &wire.CreateOrder{}
	if err := wire.Unmarshal(raw, draft); err != nil {
		return nil, false, errors.Wrap(err, "decode intent")
	}
	return draft, true, nil
}

// Clear removes the draft. Clearing a missing intent is not an error.
func (s *IntentStore) Clear(ctx context.Context, transactionID string) error {
	if txid.Normalize(transactionID) == "" {
		return ErrNoTransactionID
	}
	if err := s.c.store.Del(ctx, intentKey(transactionID)).Err(); err != nil {
		return errors.Wrap(err, "clear intent")
	}
	return nil
}
