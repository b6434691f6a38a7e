package cadence

import (
	"context"
	"log/slog"
)

// Option configures a Sequencer.
type Option func(*Sequencer) error

// Storer is the minimal store interface held by the Sequencer. It covers
// lifecycle operations only. The full job store contract (job.Store) is
// used in subsystem layers that don't create import cycles; backends
// implement both.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// sweepRunner is an internal interface for the periodic sweep lifecycle.
type sweepRunner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// hookEmitter is an internal interface for lifecycle shutdown events.
type hookEmitter interface {
	EmitShutdown(ctx context.Context)
}

// Sequencer is the central coordinator for sequence scheduling, dispatch,
// and sweeping.
//
// Create one with New() and functional options. The Sequencer holds
// references to subsystem components via internal interfaces to avoid
// import cycles. Use engine.Build to wire everything together.
type Sequencer struct {
	config Config
	logger *slog.Logger
	store  Storer
	clock  Clock
	hooks  hookEmitter
	runner sweepRunner

	// started tracks whether Start has been called.
	started bool
}

// New creates a new Sequencer with the given options.
func New(opts ...Option) (*Sequencer, error) {
	s := &Sequencer{
		config: DefaultConfig(),
		logger: slog.Default(),
		clock:  SystemClock{},
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Logger returns the sequencer's logger.
func (s *Sequencer) Logger() *slog.Logger { return s.logger }

// Store returns the sequencer's store.
func (s *Sequencer) Store() Storer { return s.store }

// Clock returns the sequencer's clock.
func (s *Sequencer) Clock() Clock { return s.clock }

// Config returns a copy of the sequencer's configuration.
func (s *Sequencer) Config() Config { return s.config }

// SetRunner sets the periodic sweep runner (called by the engine package).
func (s *Sequencer) SetRunner(r sweepRunner) { s.runner = r }

// SetHooks sets the hook emitter (called by the engine package).
func (s *Sequencer) SetHooks(h hookEmitter) { s.hooks = h }

// Start begins periodic sweeping.
func (s *Sequencer) Start(ctx context.Context) error {
	if s.runner == nil {
		return ErrNoStore
	}
	if err := s.runner.Start(ctx); err != nil {
		return err
	}
	s.started = true
	return nil
}

// Stop gracefully shuts down the sequencer.
func (s *Sequencer) Stop(ctx context.Context) error {
	if s.runner != nil && s.started {
		if err := s.runner.Stop(ctx); err != nil {
			s.logger.Error("sweep runner stop error", "error", err)
		}
	}
	if s.hooks != nil {
		s.hooks.EmitShutdown(ctx)
	}
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

// WithStore sets the persistence backend for the sequencer. The store
// must implement Storer at minimum; typically it will also implement
// job.Store.
func WithStore(st Storer) Option {
	return func(s *Sequencer) error {
		s.store = st
		return nil
	}
}

// WithLogger sets the structured logger for the sequencer.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sequencer) error {
		s.logger = l
		return nil
	}
}

// WithClock sets the clock used for trigger capture and due checks.
// Tests inject a fake clock here.
func WithClock(c Clock) Option {
	return func(s *Sequencer) error {
		s.clock = c
		return nil
	}
}

// WithMaxAttempts sets the delivery attempt ceiling per job.
func WithMaxAttempts(n int) Option {
	return func(s *Sequencer) error {
		s.config.MaxAttempts = n
		return nil
	}
}

// WithConfig replaces the entire configuration.
func WithConfig(c Config) Option {
	return func(s *Sequencer) error {
		s.config = c
		return nil
	}
}
