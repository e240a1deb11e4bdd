package storage

import (
	"context"
	"sync"
)

// MemoryAdapter is a mutex-guarded in-memory Adapter. It is the default
// adapter when persistence is enabled, and the usual choice in tests.
type MemoryAdapter struct {
	cfg adapterConfig

	mu      sync.RWMutex
	records map[string]envelope
}

// NewMemoryAdapter constructs an empty in-memory adapter.
func NewMemoryAdapter(opts ...AdapterOption) *MemoryAdapter {
	return &MemoryAdapter{
		cfg:     applyAdapterOptions(opts),
		records: map[string]envelope{},
	}
}

// Get returns the record stored under key. Expired records are removed and
// reported as not found.
func (a *MemoryAdapter) Get(_ context.Context, key string) (Record, bool, error) {
	a.mu.RLock()
	env, ok := a.records[key]
	a.mu.RUnlock()
	if !ok {
		return Record{}, false, nil
	}

	if env.expired(a.cfg.now()) {
		a.mu.Lock()
		delete(a.records, key)
		a.mu.Unlock()
		return Record{}, false, nil
	}

	record, err := openEnvelope(env, a.cfg)
	if err != nil {
		return Record{}, false, err
	}
	return record, true, nil
}

// Set stores the record under key, applying TTL stamping and obfuscation.
func (a *MemoryAdapter) Set(_ context.Context, key string, record Record, opts SetOptions) error {
	env, err := sealRecord(record, opts, a.cfg)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.records[key] = env
	a.mu.Unlock()
	return nil
}

// Remove deletes the record under key. Removing a missing key is not an error.
func (a *MemoryAdapter) Remove(_ context.Context, key string) error {
	a.mu.Lock()
	delete(a.records, key)
	a.mu.Unlock()
	return nil
}

// Len reports the number of stored records, expired or not.
func (a *MemoryAdapter) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.records)
}
