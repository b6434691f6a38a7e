package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/outreachlab/cadence"
	"github.com/outreachlab/cadence/backoff"
	"github.com/outreachlab/cadence/dispatcher"
	"github.com/outreachlab/cadence/hook"
	"github.com/outreachlab/cadence/id"
	"github.com/outreachlab/cadence/job"
	mw "github.com/outreachlab/cadence/middleware"
	"github.com/outreachlab/cadence/provider"
	"github.com/outreachlab/cadence/resolver"
	"github.com/outreachlab/cadence/scheduler"
	"github.com/outreachlab/cadence/sequence"
	"github.com/outreachlab/cadence/sweep"
)

// Status is an operator-facing snapshot of the job queue.
//
// Jobs held in the transient Sending substate are reported under
// Pending, so Total == Pending + Sent + Failed always holds.
type Status struct {
	Total   int64 `json:"total"`
	Pending int64 `json:"pending"`
	Sent    int64 `json:"sent"`
	Failed  int64 `json:"failed"`
}

// Engine wraps a Sequencer with fully wired subsystems.
// Use Build() to create one.
type Engine struct {
	s        *cadence.Sequencer
	jobStore job.Store
	catalog  *sequence.Catalog
	prov     provider.Provider
	res      resolver.Resolver
	hooks    *hook.Registry
	bo       backoff.Strategy
	mws      []mw.Middleware

	disp    *dispatcher.Dispatcher
	sched   *scheduler.Scheduler
	sweeper *sweep.Sweeper
	runner  *sweep.Runner

	sweepCron string

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithCatalog sets the sequence catalog. Without it the builtin
// sequences are loaded.
func WithCatalog(c *sequence.Catalog) Option {
	return func(eng *Engine) { eng.catalog = c }
}

// WithProvider sets the delivery provider. Without it messages go to
// the log provider.
func WithProvider(p provider.Provider) Option {
	return func(eng *Engine) { eng.prov = p }
}

// WithResolver sets the entity resolver consulted at dispatch time.
func WithResolver(r resolver.Resolver) Option {
	return func(eng *Engine) { eng.res = r }
}

// WithHook registers a lifecycle hook with the engine.
func WithHook(h hook.Hook) Option {
	return func(eng *Engine) { eng.hooks.Register(h) }
}

// WithMiddleware adds middleware to the engine's delivery chain.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) { eng.mws = append(eng.mws, m) }
}

// WithBackoff sets the retry delay strategy. If not set,
// backoff.DefaultStrategy() (retry on the next sweep) is used.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) { eng.bo = b }
}

// WithSweepCron sets a five-field cron expression for the periodic
// sweep instead of the configured fixed interval.
func WithSweepCron(spec string) Option {
	return func(eng *Engine) { eng.sweepCron = spec }
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) { eng.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) { eng.meterProvider = mp }
}

// Build creates an Engine from an existing Sequencer.
// The Sequencer's store must implement job.Store.
func Build(s *cadence.Sequencer, opts ...Option) (*Engine, error) {
	logger := s.Logger()
	store := s.Store()

	if store == nil {
		return nil, cadence.ErrNoStore
	}
	js, ok := store.(job.Store)
	if !ok {
		return nil, fmt.Errorf("cadence: store does not implement job.Store")
	}

	eng := &Engine{
		s:        s,
		jobStore: js,
		hooks:    hook.NewRegistry(logger),
	}

	for _, opt := range opts {
		opt(eng)
	}

	if eng.catalog == nil {
		catalog, err := sequence.DefaultCatalog()
		if err != nil {
			return nil, fmt.Errorf("load builtin sequences: %w", err)
		}
		eng.catalog = catalog
	}
	if eng.prov == nil {
		eng.prov = provider.NewLog(logger)
	}
	if eng.bo == nil {
		eng.bo = backoff.DefaultStrategy()
	}

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracer := eng.tracerProvider.Tracer("github.com/outreachlab/cadence")
		tracingMw = mw.TracingWithTracer(tracer)
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/outreachlab/cadence")
		metricsMw = mw.MetricsWithMeter(meter)
	} else {
		metricsMw = mw.Metrics()
	}

	config := s.Config()

	// Default middleware stack: recover → tracing → metrics → logging → timeout.
	allMws := []mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
		mw.Timeout(config.DispatchTimeout),
	}
	allMws = append(allMws, eng.mws...)

	dispOpts := []dispatcher.Option{
		dispatcher.WithBackoff(eng.bo),
		dispatcher.WithMiddleware(allMws...),
		dispatcher.WithHooks(eng.hooks),
		dispatcher.WithClock(s.Clock()),
		dispatcher.WithLogger(logger),
	}
	if eng.res != nil {
		dispOpts = append(dispOpts, dispatcher.WithResolver(eng.res))
	}
	eng.disp = dispatcher.New(js, eng.catalog, eng.prov, dispOpts...)

	eng.sched = scheduler.New(js, eng.catalog, eng.disp,
		scheduler.WithClock(s.Clock()),
		scheduler.WithHooks(eng.hooks),
		scheduler.WithLogger(logger),
		scheduler.WithMaxAttempts(config.MaxAttempts),
	)

	eng.sweeper = sweep.New(js, eng.disp,
		sweep.WithHooks(eng.hooks),
		sweep.WithLogger(logger),
	)

	runnerOpts := []sweep.RunnerOption{
		sweep.WithInterval(config.SweepInterval),
		sweep.WithRunnerClock(s.Clock()),
		sweep.WithRunnerLogger(logger),
	}
	if eng.sweepCron != "" {
		runnerOpts = append(runnerOpts, sweep.WithCronSpec(eng.sweepCron))
	}
	eng.runner = sweep.NewRunner(eng.sweeper, runnerOpts...)

	// Wire back into the Sequencer.
	s.SetRunner(eng.runner)
	s.SetHooks(eng.hooks)

	return eng, nil
}

// StartSequence triggers a sequence for an entity, scheduling one job
// per step and delivering zero-delay steps before returning.
func (eng *Engine) StartSequence(ctx context.Context, sequenceID, entityID string, bindings map[string]string) ([]id.JobID, error) {
	return eng.sched.StartSequence(ctx, sequenceID, entityID, bindings)
}

// Process runs one sweep, dispatching every job due at the given
// instant, and returns how many were processed.
func (eng *Engine) Process(ctx context.Context, now time.Time) (int, error) {
	return eng.sweeper.Process(ctx, now)
}

// Sweep runs one sweep as of the engine clock's current instant.
func (eng *Engine) Sweep(ctx context.Context) (int, error) {
	return eng.sweeper.Process(ctx, eng.s.Clock().Now())
}

// Status returns a snapshot of the job queue. Sending jobs are counted
// as pending: they are in flight, not yet delivered.
func (eng *Engine) Status(ctx context.Context) (Status, error) {
	counts, err := eng.jobStore.CountJobs(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Total:   counts.Total,
		Pending: counts.Pending + counts.Sending,
		Sent:    counts.Sent,
		Failed:  counts.Failed,
	}, nil
}

// PurgeSent deletes delivered jobs and returns how many were removed.
func (eng *Engine) PurgeSent(ctx context.Context) (int64, error) {
	return eng.jobStore.PurgeSent(ctx)
}

// Jobs lists jobs matching the given options.
func (eng *Engine) Jobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	return eng.jobStore.ListJobs(ctx, opts)
}

// Job retrieves a single job by ID.
func (eng *Engine) Job(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return eng.jobStore.GetJob(ctx, jobID)
}

// Start begins periodic sweeping via the underlying Sequencer.
func (eng *Engine) Start(ctx context.Context) error {
	return eng.s.Start(ctx)
}

// Stop gracefully shuts down the engine.
func (eng *Engine) Stop(ctx context.Context) error {
	return eng.s.Stop(ctx)
}

// Catalog returns the sequence catalog.
func (eng *Engine) Catalog() *sequence.Catalog { return eng.catalog }

// Hooks returns the lifecycle hook registry.
func (eng *Engine) Hooks() *hook.Registry { return eng.hooks }

// Sequencer returns the underlying Sequencer.
func (eng *Engine) Sequencer() *cadence.Sequencer { return eng.s }

// Dispatcher returns the underlying dispatcher.
func (eng *Engine) Dispatcher() *dispatcher.Dispatcher { return eng.disp }
