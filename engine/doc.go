// Package engine wires all cadence subsystems together and provides the
// primary application-level API for triggering sequences and sweeping
// the queue.
//
// The engine package exists to break a fundamental import cycle: the
// root cadence package defines Entity and Clock (imported by job,
// sequence, etc.) and therefore cannot import those packages back.
// Engine sits above all subsystem packages and below the application
// layer.
//
// # Building an Engine
//
//	seq, err := cadence.New(
//	    cadence.WithStore(memory.New()),
//	    cadence.WithMaxAttempts(5),
//	)
//
//	eng, err := engine.Build(seq,
//	    engine.WithCatalog(catalog),
//	    engine.WithProvider(provider.NewSMTP(smtpCfg)),
//	    engine.WithResolver(crmResolver),
//	    engine.WithHook(auditHook),
//	)
//
// # Triggering and Sweeping
//
//	jobIDs, err := eng.StartSequence(ctx, "trial-nurture", "lead-42", map[string]string{
//	    "product": "Acme CRM",
//	})
//
//	processed, err := eng.Process(ctx, time.Now())
//
// # Options
//
//   - [WithCatalog] — set the sequence catalog (defaults to the builtins)
//   - [WithProvider] — set the delivery provider (defaults to the log provider)
//   - [WithResolver] — set the entity resolver
//   - [WithHook] — register a lifecycle hook
//   - [WithMiddleware] — add a middleware to the delivery chain
//   - [WithBackoff] — set the retry delay strategy
//   - [WithSweepCron] — sweep on a cron expression instead of a fixed interval
//   - [WithTracerProvider] — set the OpenTelemetry tracer provider
//   - [WithMeterProvider] — set the OpenTelemetry meter provider
package engine
