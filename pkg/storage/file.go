package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
)

// FileAdapter persists one JSON file per key under a base directory, so
// records survive process restarts. Writes go through a temp file plus
// rename to stay crash-consistent.
type FileAdapter struct {
	cfg      adapterConfig
	basePath string
}

// NewFileAdapter creates the base directory if needed and returns a ready
// adapter.
func NewFileAdapter(basePath string, opts ...AdapterOption) (*FileAdapter, error) {
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve base path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("storage: create base directory: %w", err)
	}
	return &FileAdapter{
		cfg:      applyAdapterOptions(opts),
		basePath: abs,
	}, nil
}

// Get reads the record stored under key. Expired records are removed and
// reported as not found.
func (a *FileAdapter) Get(_ context.Context, key string) (Record, bool, error) {
	raw, err := os.ReadFile(a.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("storage: read record: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Record{}, false, fmt.Errorf("storage: corrupt record file: %w", err)
	}

	if env.expired(a.cfg.now()) {
		_ = os.Remove(a.path(key))
		return Record{}, false, nil
	}

	record, err := openEnvelope(env, a.cfg)
	if err != nil {
		return Record{}, false, err
	}
	return record, true, nil
}

// Set stores the record under key, applying TTL stamping and obfuscation.
func (a *FileAdapter) Set(_ context.Context, key string, record Record, opts SetOptions) error {
	env, err := sealRecord(record, opts, a.cfg)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("storage: marshal envelope: %w", err)
	}

	target := a.path(key)
	tmp, err := os.CreateTemp(a.basePath, ".rssm-*")
	if err != nil {
		return fmt.Errorf("storage: create temp file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("storage: write record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("storage: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("storage: replace record: %w", err)
	}
	return nil
}

// Remove deletes the record under key. Removing a missing key is not an error.
func (a *FileAdapter) Remove(_ context.Context, key string) error {
	if err := os.Remove(a.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: remove record: %w", err)
	}
	return nil
}

func (a *FileAdapter) path(key string) string {
	return filepath.Join(a.basePath, url.PathEscape(key)+".json")
}
