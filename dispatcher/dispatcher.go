// Package dispatcher turns a due job into a delivered notification.
//
// Dispatch reserves the job through compare-and-set, resolves entity
// bindings, renders the step templates, and hands the message to the
// configured provider. The CAS reservation is the only send-gate: of
// any number of concurrent sweeps, exactly one wins the Pending→Sending
// transition and proceeds to deliver.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/outreachlab/cadence"
	"github.com/outreachlab/cadence/backoff"
	"github.com/outreachlab/cadence/hook"
	"github.com/outreachlab/cadence/job"
	"github.com/outreachlab/cadence/middleware"
	"github.com/outreachlab/cadence/provider"
	"github.com/outreachlab/cadence/render"
	"github.com/outreachlab/cadence/resolver"
	"github.com/outreachlab/cadence/sequence"
)

// BindingRecipient is the binding key that carries the destination
// address. A job without it cannot be delivered and stays on the retry
// path until the resolver supplies one or attempts run out.
const BindingRecipient = "email"

// Outcome describes what Dispatch did with a job.
type Outcome string

const (
	// OutcomeSent: the provider accepted the message and the job is Sent.
	OutcomeSent Outcome = "sent"
	// OutcomeRetry: delivery failed transiently; the job is Pending again.
	OutcomeRetry Outcome = "retry"
	// OutcomeFailed: the job reached a terminal Failed state.
	OutcomeFailed Outcome = "failed"
	// OutcomeSkipped: another sweep holds the job; nothing was done.
	OutcomeSkipped Outcome = "skipped"
)

// Dispatcher delivers individual jobs. Safe for concurrent use.
type Dispatcher struct {
	store    job.Store
	catalog  *sequence.Catalog
	provider provider.Provider
	resolver resolver.Resolver

	strategy backoff.Strategy
	chain    middleware.Middleware
	hooks    *hook.Registry
	clock    cadence.Clock
	logger   *slog.Logger
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithResolver sets the entity resolver consulted at dispatch time.
// Without one, jobs rely entirely on bindings captured at trigger time.
func WithResolver(r resolver.Resolver) Option {
	return func(d *Dispatcher) { d.resolver = r }
}

// WithBackoff sets the retry delay strategy.
func WithBackoff(s backoff.Strategy) Option {
	return func(d *Dispatcher) { d.strategy = s }
}

// WithMiddleware sets the middleware chain wrapped around delivery.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(d *Dispatcher) { d.chain = middleware.Chain(mws...) }
}

// WithHooks sets the lifecycle hook registry.
func WithHooks(h *hook.Registry) Option {
	return func(d *Dispatcher) { d.hooks = h }
}

// WithClock sets the time source.
func WithClock(c cadence.Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// New creates a Dispatcher.
func New(store job.Store, catalog *sequence.Catalog, p provider.Provider, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:    store,
		catalog:  catalog,
		provider: p,
		strategy: backoff.DefaultStrategy(),
		clock:    cadence.SystemClock{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.hooks == nil {
		d.hooks = hook.NewRegistry(d.logger)
	}
	return d
}

// Dispatch delivers one job. It is idempotent under concurrent sweeps:
// only the caller that wins the Pending→Sending reservation proceeds,
// every other caller gets OutcomeSkipped.
func (d *Dispatcher) Dispatch(ctx context.Context, j *job.Job) (Outcome, error) {
	won, err := d.store.TransitionJob(ctx, j.ID, job.StatePending, job.StateSending)
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("reserve job %s: %w", j.ID, err)
	}
	if !won {
		return OutcomeSkipped, nil
	}

	step, err := d.lookupStep(j)
	if err != nil {
		// The catalog entry is gone; retrying cannot help.
		return d.fail(ctx, j, err)
	}

	start := d.clock.Now()
	deliver := func(ctx context.Context) error {
		return d.deliver(ctx, j, step)
	}
	if d.chain != nil {
		err = d.chain(ctx, j, deliver)
	} else {
		err = deliver(ctx)
	}
	if err != nil {
		return d.retryOrFail(ctx, j, err)
	}

	now := d.clock.Now()
	if err := d.store.MarkSent(ctx, j.ID, now); err != nil {
		return OutcomeSkipped, fmt.Errorf("mark sent %s: %w", j.ID, err)
	}
	if _, err := d.store.TransitionJob(ctx, j.ID, job.StateSending, job.StateSent); err != nil {
		return OutcomeSkipped, fmt.Errorf("finish job %s: %w", j.ID, err)
	}
	d.hooks.EmitJobSent(ctx, j, now.Sub(start))
	return OutcomeSent, nil
}

// lookupStep finds the step definition behind a job.
func (d *Dispatcher) lookupStep(j *job.Job) (*sequence.Step, error) {
	def, err := d.catalog.Get(j.SequenceID)
	if err != nil {
		return nil, err
	}
	step, ok := def.Step(j.StepID)
	if !ok {
		return nil, fmt.Errorf("sequence %q step %q: %w", j.SequenceID, j.StepID, cadence.ErrStepNotFound)
	}
	return step, nil
}

// deliver resolves bindings, renders the step, and calls the provider.
func (d *Dispatcher) deliver(ctx context.Context, j *job.Job, step *sequence.Step) error {
	bindings, err := d.resolveBindings(ctx, j)
	if err != nil {
		return err
	}

	to := bindings[BindingRecipient]
	if to == "" {
		return fmt.Errorf("job %s: no %q binding for entity %s", j.ID, BindingRecipient, j.EntityID)
	}

	msg := provider.Message{
		To:      to,
		Subject: render.Render(step.Subject, bindings),
		HTML:    render.Render(step.HTML, bindings),
		Text:    render.Render(step.Text, bindings),
	}
	return d.provider.Send(ctx, msg)
}

// resolveBindings merges resolver output with the literal bindings
// captured at trigger time. Literal bindings win.
func (d *Dispatcher) resolveBindings(ctx context.Context, j *job.Job) (map[string]string, error) {
	if d.resolver == nil {
		return j.Bindings, nil
	}
	resolved, err := d.resolver.Resolve(ctx, j.EntityID)
	if err != nil {
		// NotFound is transient: the entity record may simply not have
		// landed yet. Any resolver error takes the retry path.
		return nil, fmt.Errorf("resolve entity %s: %w", j.EntityID, err)
	}
	return render.Merge(resolved, j.Bindings), nil
}

// retryOrFail routes a delivery error to the retry path or, when the
// attempt budget is spent, to the terminal Failed state.
func (d *Dispatcher) retryOrFail(ctx context.Context, j *job.Job, deliverErr error) (Outcome, error) {
	attempt := j.Attempts + 1
	nextFireAt := d.clock.Now().Add(d.strategy.Delay(attempt))

	attempts, err := d.store.RecordAttempt(ctx, j.ID, deliverErr.Error(), nextFireAt)
	if err != nil {
		return OutcomeSkipped, errors.Join(deliverErr, err)
	}

	if attempts < j.MaxAttempts {
		if _, err := d.store.TransitionJob(ctx, j.ID, job.StateSending, job.StatePending); err != nil {
			return OutcomeSkipped, errors.Join(deliverErr, err)
		}
		d.logger.Warn("delivery failed, will retry",
			slog.String("job_id", j.ID.String()),
			slog.String("step", j.StepID),
			slog.Int("attempt", attempts),
			slog.Int("max_attempts", j.MaxAttempts),
			slog.Time("next_fire_at", nextFireAt),
			slog.String("error", deliverErr.Error()),
		)
		d.hooks.EmitJobRetrying(ctx, j, attempts, nextFireAt)
		return OutcomeRetry, nil
	}

	return d.fail(ctx, j, fmt.Errorf("%w: %w", cadence.ErrMaxAttemptsExceeded, deliverErr))
}

// fail moves a Sending job to the terminal Failed state.
func (d *Dispatcher) fail(ctx context.Context, j *job.Job, cause error) (Outcome, error) {
	if _, err := d.store.TransitionJob(ctx, j.ID, job.StateSending, job.StateFailed); err != nil {
		return OutcomeSkipped, errors.Join(cause, err)
	}
	d.logger.Error("job failed",
		slog.String("job_id", j.ID.String()),
		slog.String("sequence", j.SequenceID),
		slog.String("step", j.StepID),
		slog.String("error", cause.Error()),
	)
	d.hooks.EmitJobFailed(ctx, j, cause)
	return OutcomeFailed, cause
}
