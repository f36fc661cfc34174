package docportal

import (
	"context"
	"errors"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/docportal/internal/audit"
)

// Builder assembles a Store.
//
// Builder instances are configured during start-up and used once.
type Builder struct {
	config    Config
	backend   Backend
	storage   CredentialStorage
	auditSink AuditSink
	logger    *slog.Logger
	clock     func() time.Time

	built bool
}

// New returns a Builder preloaded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration with a copy of cfg.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithBackend sets the backend capability. Required.
func (b *Builder) WithBackend(backend Backend) *Builder {
	b.backend = backend
	return b
}

// WithStorage sets the credential storage inspected for markers. Required.
func (b *Builder) WithStorage(storage CredentialStorage) *Builder {
	b.storage = storage
	return b
}

// WithAuditSink sets the audit destination and enables auditing.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	if sink != nil {
		b.config.Audit.Enabled = true
	}
	return b
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides the time source used for expiry and budget checks.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration, creates the Store and subscribes it to
// the backend's auth events. The returned Store is resolving until
// Initialize runs.
func (b *Builder) Build() (*Store, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.backend == nil {
		return nil, errors.New("backend required")
	}
	if b.storage == nil {
		return nil, errors.New("credential storage required")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	now := b.clock
	if now == nil {
		now = time.Now
	}

	s := &Store{
		cfg:      cfg,
		backend:  b.backend,
		storage:  b.storage,
		logger:   logger.With("component", "session_store"),
		metrics:  NewMetrics(cfg.Metrics),
		now:      now,
		watchers: make(map[uint64]chan Snapshot),
		state: Snapshot{
			Role:           RoleUnknown,
			Status:         StatusResolving,
			ResolvingSince: now(),
		},
	}
	s.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	s.unsubscribe = b.backend.Subscribe(func(ev AuthEvent) {
		s.HandleAuthEvent(context.Background(), ev)
	})

	b.built = true
	return s, nil
}
