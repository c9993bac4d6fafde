package checkout

import (
	"context"
	"sync"

	"github.com/xenking/qrdine/internal/domain/txid"
	"github.com/xenking/qrdine/internal/wire"
)

// MemoryIntents is an in-process IntentStore. It does not survive a
// restart; use the redis store when the flow spans processes.
type MemoryIntents struct {
	mu     sync.Mutex
	drafts map[string]wire.CreateOrder
}

// NewMemoryIntents returns an empty MemoryIntents.
func NewMemoryIntents() *MemoryIntents {
	return &MemoryIntents{drafts: make(map[string]wire.CreateOrder)}
}

func (m *MemoryIntents) Save(_ context.Context, transactionID string, draft *wire.CreateOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts[txid.Normalize(transactionID)] = *draft
	return nil
}

func (m *MemoryIntents) Load(_ context.Context, transactionID string) (*wire.CreateOrder, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[txid.Normalize(transactionID)]
	if !ok {
		return nil, false, nil
	}
	return &d, true, nil
}

func (m *MemoryIntents) Clear(_ context.Context, transactionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drafts, txid.Normalize(transactionID))
	return nil
}
