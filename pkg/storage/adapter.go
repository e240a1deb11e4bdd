package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrEncryptorRequired reports an encrypted write or read against an adapter
// with no configured encryptor.
var ErrEncryptorRequired = errors.New("storage: encryptor not configured")

// Record is the durable representation of one machine's state snapshot.
type Record struct {
	Data    json.RawMessage `json:"data"`
	Loading bool            `json:"loading"`
	Error   string          `json:"error,omitempty"`
	Meta    Meta            `json:"meta,omitempty"`
}

// Meta is storage-owned metadata used for trace and audit.
type Meta struct {
	SnapshotID string    `json:"snapshot_id,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

// SetOptions carries per-write policy. TTL of zero means no expiry.
type SetOptions struct {
	TTL     time.Duration
	Encrypt bool
}

// Adapter is the three-operation contract the synchronizer depends on.
// Implementations check TTL expiry lazily on Get and must treat an expired
// record as not found.
type Adapter interface {
	Get(ctx context.Context, key string) (Record, bool, error)
	Set(ctx context.Context, key string, record Record, opts SetOptions) error
	Remove(ctx context.Context, key string) error
}

// AdapterOption configures an adapter at construction time.
type AdapterOption func(*adapterConfig)

type adapterConfig struct {
	encryptor Encryptor
	now       func() time.Time
}

func applyAdapterOptions(opts []AdapterOption) adapterConfig {
	cfg := adapterConfig{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithEncryptor supplies the encryptor used for obfuscated records.
func WithEncryptor(enc Encryptor) AdapterOption {
	return func(cfg *adapterConfig) {
		cfg.encryptor = enc
	}
}

// WithClock overrides the time source used for TTL stamping and expiry.
func WithClock(now func() time.Time) AdapterOption {
	return func(cfg *adapterConfig) {
		if now != nil {
			cfg.now = now
		}
	}
}

// envelope is the stored wrapper around a record: either the plain JSON
// payload or its ciphertext, plus the expiry stamp.
type envelope struct {
	Payload   json.RawMessage `json:"payload,omitempty"`
	Cipher    string          `json:"cipher,omitempty"`
	Encrypted bool            `json:"encrypted,omitempty"`
	ExpiresAt time.Time       `json:"expires_at,omitempty"`
}

func (e envelope) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

func sealRecord(record Record, opts SetOptions, cfg adapterConfig) (envelope, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return envelope{}, fmt.Errorf("storage: marshal record: %w", err)
	}

	env := envelope{}
	if opts.TTL > 0 {
		env.ExpiresAt = cfg.now().Add(opts.TTL)
	}
	if opts.Encrypt {
		if cfg.encryptor == nil {
			return envelope{}, ErrEncryptorRequired
		}
		cipher, err := cfg.encryptor.Encrypt(string(raw))
		if err != nil {
			return envelope{}, fmt.Errorf("storage: encrypt record: %w", err)
		}
		env.Cipher = cipher
		env.Encrypted = true
		return env, nil
	}
	env.Payload = raw
	return env, nil
}

func openEnvelope(env envelope, cfg adapterConfig) (Record, error) {
	raw := env.Payload
	if env.Encrypted {
		if cfg.encryptor == nil {
			return Record{}, ErrEncryptorRequired
		}
		plain, err := cfg.encryptor.Decrypt(env.Cipher)
		if err != nil {
			return Record{}, fmt.Errorf("storage: decrypt record: %w", err)
		}
		raw = json.RawMessage(plain)
	}

	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return Record{}, fmt.Errorf("storage: unmarshal record: %w", err)
	}
	return record, nil
}
