package orchestrator

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/arena/internal/log"
	"github.com/zjrosen/arena/internal/statestore"
	"github.com/zjrosen/arena/internal/tracing"
)

// Outcome is the result of a timed wait.
type Outcome int

const (
	// OutcomeContinue means the full duration elapsed.
	OutcomeContinue Outcome = iota
	// OutcomeEarlyExit means the stimulus ended before its window closed.
	OutcomeEarlyExit
	// OutcomeAbort means the experiment sentinel vanished or ctx was cancelled.
	OutcomeAbort
)

func (o Outcome) String() string {
	switch o {
	case OutcomeContinue:
		return "continue"
	case OutcomeEarlyExit:
		return "early_exit"
	case OutcomeAbort:
		return "abort"
	default:
		return "unknown"
	}
}

func (o *Orchestrator) wait(ctx context.Context, phase Phase, d time.Duration, watchApp bool) Outcome {
	ctx, span := o.deps.Tracer.Start(ctx, tracing.SpanWait, trace.WithAttributes(
		attribute.String(tracing.AttrWaitPhase, phase.String()),
		attribute.Int64(tracing.AttrWaitDuration, d.Milliseconds()),
		attribute.Int(tracing.AttrTrialNumber, o.CurrentTrial()),
	))
	defer span.End()

	outcome := o.poll(ctx, d, watchApp)
	span.SetAttributes(attribute.String(tracing.AttrWaitOutcome, outcome.String()))
	if outcome != OutcomeContinue {
		log.Debug(log.CatOrch, "wait ended", "phase", phase, "outcome", outcome)
	}
	return outcome
}

// poll sleeps for d in increments of at most PollInterval. Before each
// increment it checks the experiment sentinel and, when watchApp is set, the
// stimulus sentinels. It never returns before d has elapsed unless it reports
// an abort or an early exit.
func (o *Orchestrator) poll(ctx context.Context, d time.Duration, watchApp bool) Outcome {
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return OutcomeContinue
		}
		if !o.present(ctx, statestore.KeyExperimentName) {
			return OutcomeAbort
		}
		if watchApp && (!o.present(ctx, statestore.KeyAppOn) || !o.present(ctx, statestore.KeyTrialOn)) {
			return OutcomeEarlyExit
		}

		step := min(o.opts.PollInterval, remaining)
		if !sleep(ctx, step) {
			return OutcomeAbort
		}
	}
}

// present reports whether key exists. A failing store is not proof of
// absence, so errors count as present.
func (o *Orchestrator) present(ctx context.Context, key string) bool {
	_, ok, err := o.deps.Store.Get(ctx, key)
	if err != nil {
		if ctx.Err() == nil {
			log.ErrorErr(log.CatOrch, "reading sentinel", err, "key", key)
		}
		return true
	}
	return ok
}
