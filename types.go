package rssm

import (
	"time"

	"github.com/yowainwright/rssm/pkg/activity"
	"github.com/yowainwright/rssm/pkg/storage"
)

// State is the single mutable value a machine manages. Data is nil when no
// payload is present; Error is empty when no error has been recorded. Loading
// and Error are advisory flags owned by calling code.
type State[T any] struct {
	Data    *T     `json:"data"`
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
}

// ActionType identifies one transition in the closed action vocabulary.
type ActionType string

const (
	ActionCreate     ActionType = "create"
	ActionRead       ActionType = "read"
	ActionUpdate     ActionType = "update"
	ActionDestroy    ActionType = "destroy"
	ActionSetLoading ActionType = "set_loading"
	ActionSetError   ActionType = "set_error"
	ActionReset      ActionType = "reset"
)

// Action is a tagged transition request. Which payload field is meaningful
// depends on Type: Data for create/read, Patch for update, Loading for
// set_loading, Error for set_error. Destroy and reset carry no payload.
type Action[T any] struct {
	Type    ActionType
	Data    *T
	Patch   map[string]any
	Loading bool
	Error   string
}

// Schema validates a candidate value and returns its typed form. Parse must
// fail on mismatch; the machine only ever inspects whether it failed.
type Schema[T any] interface {
	Parse(value any) (T, error)
}

// SchemaFunc adapts a plain function to Schema.
type SchemaFunc[T any] func(value any) (T, error)

// Parse implements Schema.
func (f SchemaFunc[T]) Parse(value any) (T, error) {
	if f == nil {
		var zero T
		return zero, nil
	}
	return f(value)
}

// DefaultDebounceDelay is the quiescence window for coalesced writes.
const DefaultDebounceDelay = 500 * time.Millisecond

// Option configures a machine at construction time. Configuration is captured
// once; changing it requires constructing a new machine.
type Option[T any] func(*machineConfig[T])

type machineConfig[T any] struct {
	initial       *T
	schema        Schema[T]
	persist       bool
	adapter       storage.Adapter
	ttl           time.Duration
	encrypt       bool
	logging       bool
	logger        Logger
	debounceDelay time.Duration
	activityHooks activity.Hooks
}

func applyOptions[T any](opts []Option[T]) machineConfig[T] {
	cfg := machineConfig[T]{
		persist:       true,
		debounceDelay: DefaultDebounceDelay,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithInitialData sets the starting payload used when no persisted record is
// adopted at construction.
func WithInitialData[T any](data T) Option[T] {
	return func(cfg *machineConfig[T]) {
		cloned := cloneData(data)
		cfg.initial = &cloned
	}
}

// WithSchema attaches the advisory validator. Validation failures are logged
// and never block a transition.
func WithSchema[T any](schema Schema[T]) Option[T] {
	return func(cfg *machineConfig[T]) {
		cfg.schema = schema
	}
}

// WithPersistence toggles durable storage for the machine. Enabled by default.
func WithPersistence[T any](enabled bool) Option[T] {
	return func(cfg *machineConfig[T]) {
		cfg.persist = enabled
	}
}

// WithAdapter selects the durable storage adapter. Machines sharing a name
// must share an adapter to observe each other's records.
func WithAdapter[T any](adapter storage.Adapter) Option[T] {
	return func(cfg *machineConfig[T]) {
		cfg.adapter = adapter
	}
}

// WithTTL bounds the lifetime of the persisted record. Zero means no expiry.
func WithTTL[T any](ttl time.Duration) Option[T] {
	return func(cfg *machineConfig[T]) {
		cfg.ttl = ttl
	}
}

// WithEncryption toggles obfuscation of persisted payloads. The configured
// adapter must carry an encryptor for writes to succeed.
func WithEncryption[T any](enabled bool) Option[T] {
	return func(cfg *machineConfig[T]) {
		cfg.encrypt = enabled
	}
}

// WithLogging enables advisory logging. When no logger is configured the
// machine falls back to a console logger.
func WithLogging[T any](enabled bool) Option[T] {
	return func(cfg *machineConfig[T]) {
		cfg.logging = enabled
	}
}

// WithLogger supplies the logger used when logging is enabled.
func WithLogger[T any](logger Logger) Option[T] {
	return func(cfg *machineConfig[T]) {
		cfg.logger = logger
	}
}

// WithDebounceDelay overrides the coalescing window for deferred writes.
func WithDebounceDelay[T any](delay time.Duration) Option[T] {
	return func(cfg *machineConfig[T]) {
		if delay > 0 {
			cfg.debounceDelay = delay
		}
	}
}

// WithActivityHooks attaches transition observers. Hooks are cloned and nil
// entries dropped to preserve immutability.
func WithActivityHooks[T any](hooks activity.Hooks) Option[T] {
	normalized := cloneActivityHooks(hooks)
	return func(cfg *machineConfig[T]) {
		cfg.activityHooks = normalized
	}
}

func cloneActivityHooks(hooks activity.Hooks) activity.Hooks {
	if len(hooks) == 0 {
		return nil
	}
	normalized := make([]activity.Hook, 0, len(hooks))
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		normalized = append(normalized, hook)
	}
	if len(normalized) == 0 {
		return nil
	}
	return activity.Hooks(normalized)
}
