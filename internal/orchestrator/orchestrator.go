// Package orchestrator sequences an experiment run: trial phases, timed waits
// that poll the shared store for external abort or early stimulus end, the
// per-trial background workers, and guaranteed cleanup of every sentinel on
// every exit path.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/arena/internal/bus"
	"github.com/zjrosen/arena/internal/display"
	"github.com/zjrosen/arena/internal/experiment"
	"github.com/zjrosen/arena/internal/history"
	"github.com/zjrosen/arena/internal/log"
	"github.com/zjrosen/arena/internal/statestore"
	"github.com/zjrosen/arena/internal/touchlog"
	"github.com/zjrosen/arena/internal/tracing"
	"github.com/zjrosen/arena/internal/worker"
)

// ErrAlreadyStarted is returned by Run on an orchestrator that already ran.
var ErrAlreadyStarted = errors.New("experiment already started")

// Defaults for Options.
const (
	DefaultPollInterval       = 2 * time.Second
	DefaultGracePeriod        = 3 * time.Second
	DefaultEndExperimentDelay = 3 * time.Second
)

// SummaryReader reduces a trial's touch log to counts.
type SummaryReader interface {
	Read(trialPath string) (touchlog.Summary, error)
}

// History persists run and trial outcomes.
type History interface {
	RunStarted(ctx context.Context, run history.Run) error
	TrialFinished(ctx context.Context, runID string, t history.Trial) error
	RunFinished(ctx context.Context, runID string, status history.Status, at time.Time) error
}

// TrialInfo is handed to the WorkerFactory when a trial starts.
type TrialInfo struct {
	Number     int
	Path       string
	VideosPath string
	// Duration is the full recording window: stimulus plus pre- and post-roll.
	Duration time.Duration
	Config   experiment.Config
	// Log writes a ">> Trial N" line to the experiment log.
	Log func(msg string)
}

// WorkerFactory builds the background workers for one trial.
type WorkerFactory func(TrialInfo) []worker.Worker

// Deps are the collaborators of a run. Store and Bus are required.
type Deps struct {
	Store     statestore.Store
	Bus       bus.Bus
	Summaries SummaryReader
	Display   display.Display
	Workers   WorkerFactory
	History   History
	Tracer    trace.Tracer
	// Output receives the human-readable experiment log.
	Output io.Writer
}

// Options tune a run.
type Options struct {
	ExperimentsDir string
	PollInterval   time.Duration
	GracePeriod    time.Duration
	// EndExperimentDelay is slept before end_experiment is published; zero skips it.
	EndExperimentDelay time.Duration
	Topics             bus.Topics
	ManagementURL      string
	// ConfigLog is written verbatim to config.log; empty skips the file.
	ConfigLog string
}

// DefaultOptions returns the timing used on the rig.
func DefaultOptions() Options {
	return Options{
		PollInterval:       DefaultPollInterval,
		GracePeriod:        DefaultGracePeriod,
		EndExperimentDelay: DefaultEndExperimentDelay,
		Topics:             bus.DefaultTopics(),
	}
}

// Orchestrator runs one experiment. It is single use.
type Orchestrator struct {
	cfg   experiment.Config
	deps  Deps
	opts  Options
	runID string

	started      atomic.Bool
	phase        atomic.Int32
	currentTrial atomic.Int32

	// Run state, owned by the goroutine executing Run.
	coordinator *worker.Coordinator
	trialActive bool
	trialStart  time.Time
	earlyExit   bool
	summary     strings.Builder

	outMu sync.Mutex
}

// New validates cfg and the dependencies. Nothing is touched until Run.
func New(cfg experiment.Config, deps Deps, opts Options) (*Orchestrator, error) {
	switch {
	case cfg.Name == "":
		return nil, fmt.Errorf("%w: experiment has no name", experiment.ErrInvalidConfig)
	case cfg.NumTrials < 1:
		return nil, fmt.Errorf("%w: num_trials must be at least 1, got %d", experiment.ErrInvalidConfig, cfg.NumTrials)
	case cfg.TrialDuration <= 0:
		return nil, fmt.Errorf("%w: trial_duration must be positive", experiment.ErrInvalidConfig)
	case cfg.ITI < 0 || cfg.ExtraTimeRecording < 0:
		return nil, fmt.Errorf("%w: iti and extra_time_recording must not be negative", experiment.ErrInvalidConfig)
	case opts.ExperimentsDir == "":
		return nil, fmt.Errorf("%w: experiments directory is required", experiment.ErrInvalidConfig)
	case deps.Store == nil:
		return nil, errors.New("orchestrator requires a state store")
	case deps.Bus == nil:
		return nil, errors.New("orchestrator requires a command bus")
	}

	if deps.Summaries == nil {
		deps.Summaries = touchlog.NewReader("")
	}
	if deps.Display == nil {
		deps.Display = display.Noop{}
	}
	if deps.Tracer == nil {
		deps.Tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if deps.Output == nil {
		deps.Output = io.Discard
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.Topics == (bus.Topics{}) {
		opts.Topics = bus.DefaultTopics()
	}

	return &Orchestrator{
		cfg:   cfg,
		deps:  deps,
		opts:  opts,
		runID: uuid.NewString(),
	}, nil
}

// RunID identifies this run in the history database.
func (o *Orchestrator) RunID() string { return o.runID }

// Config returns the experiment being run.
func (o *Orchestrator) Config() experiment.Config { return o.cfg }

// Phase reports the current state of the run.
func (o *Orchestrator) Phase() Phase { return Phase(o.phase.Load()) }

// CurrentTrial is the 1-indexed trial being run, or 0 before the first trial.
func (o *Orchestrator) CurrentTrial() int { return int(o.currentTrial.Load()) }

func (o *Orchestrator) setPhase(p Phase) {
	o.phase.Store(int32(p))
	log.Debug(log.CatOrch, "phase", "experiment", o.cfg.Name, "trial", o.CurrentTrial(), "phase", p)
}

// Run executes the experiment and returns the run summary: the configuration
// echo followed by one block per completed trial. An external abort is not an
// error; the partial summary is returned with a nil error and Phase reports
// PhaseAborted. Errors are reserved for failures to set up the run's files or
// experiment sentinels.
func (o *Orchestrator) Run(ctx context.Context) (string, error) {
	if !o.started.CompareAndSwap(false, true) {
		return "", ErrAlreadyStarted
	}

	ctx, span := o.deps.Tracer.Start(ctx, tracing.SpanRun, trace.WithAttributes(
		attribute.String(tracing.AttrExperimentName, o.cfg.Name),
		attribute.String(tracing.AttrAnimalID, o.cfg.AnimalID),
		attribute.String(tracing.AttrKind, string(o.cfg.Kind)),
		attribute.Int(tracing.AttrNumTrials, o.cfg.NumTrials),
		attribute.String(tracing.AttrRunID, o.runID),
	))
	defer span.End()

	// Cleanup must reach the store and bus even after ctx is cancelled.
	cleanupCtx := context.WithoutCancel(ctx)

	o.setPhase(PhaseInitializing)
	o.log(ctx, fmt.Sprintf(">> Experiment %s started\n", o.cfg.Name))

	if err := o.writeArtifacts(); err != nil {
		return o.fail(cleanupCtx, span, err)
	}
	o.summary.WriteString(o.cfg.String())

	if err := o.initExperimentSentinels(ctx); err != nil {
		o.clearExperimentSentinels(cleanupCtx)
		return o.fail(cleanupCtx, span, err)
	}
	defer o.clearExperimentSentinels(cleanupCtx)

	o.recordRunStarted(ctx)
	o.clearAppContent(ctx)

	for i := 1; i <= o.cfg.NumTrials; i++ {
		o.currentTrial.Store(int32(i))

		outcome := OutcomeContinue
		if i > 1 {
			o.setPhase(PhaseInterTrial)
			outcome = o.wait(ctx, PhaseInterTrial, o.cfg.ITI, false)
		}
		if outcome != OutcomeAbort {
			var err error
			outcome, err = o.runTrial(ctx, i)
			if err != nil {
				o.clearAppContent(cleanupCtx)
				o.endTrial(cleanupCtx, false)
				return o.fail(cleanupCtx, span, err)
			}
		}
		if outcome == OutcomeAbort {
			return o.abort(cleanupCtx, span), nil
		}
	}

	if o.opts.EndExperimentDelay > 0 && !sleep(ctx, o.opts.EndExperimentDelay) {
		return o.abort(cleanupCtx, span), nil
	}
	o.command(ctx, bus.CmdEndExperiment, "")

	o.setPhase(PhaseCompleted)
	o.recordRunFinished(cleanupCtx, history.StatusCompleted)
	span.SetAttributes(attribute.String(tracing.AttrRunStatus, string(history.StatusCompleted)))
	span.SetStatus(codes.Ok, "")
	return o.summary.String(), nil
}

// abort performs the forced cleanup of an externally stopped run and returns
// the summary of the trials completed so far.
func (o *Orchestrator) abort(ctx context.Context, span trace.Span) string {
	span.AddEvent(tracing.EventAbortObserved)

	o.clearAppContent(ctx)
	if o.trialActive {
		if err := o.deps.Display.Off(ctx); err != nil {
			log.ErrorErr(log.CatOrch, "turning display off", err)
		}
	}
	o.endTrial(ctx, false)
	o.log(ctx, ">> experiment was stopped externally")

	o.setPhase(PhaseAborted)
	o.recordRunFinished(ctx, history.StatusAborted)
	span.SetAttributes(attribute.String(tracing.AttrRunStatus, string(history.StatusAborted)))
	return o.summary.String()
}

func (o *Orchestrator) fail(ctx context.Context, span trace.Span, err error) (string, error) {
	log.ErrorErr(log.CatOrch, "Experiment failed", err, "experiment", o.cfg.Name)
	o.setPhase(PhaseFailed)
	if o.coordinator != nil || o.trialActive {
		o.endTrial(ctx, false)
	}
	o.recordRunFinished(ctx, history.StatusFailed)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return o.summary.String(), err
}

func (o *Orchestrator) initExperimentSentinels(ctx context.Context) error {
	ttl := o.cfg.ExperimentTTL()
	if err := o.deps.Store.Set(ctx, statestore.KeyExperimentName, o.cfg.Name, ttl); err != nil {
		return fmt.Errorf("publishing experiment sentinel: %w", err)
	}
	if err := o.deps.Store.Set(ctx, statestore.KeyExperimentPath, o.cfg.ExperimentPath(o.opts.ExperimentsDir), ttl); err != nil {
		return fmt.Errorf("publishing experiment path: %w", err)
	}
	if o.cfg.IsAlwaysReward() {
		if err := o.deps.Store.Set(ctx, statestore.KeyAlwaysReward, "1", ttl); err != nil {
			return fmt.Errorf("publishing reward policy: %w", err)
		}
	}
	return nil
}

func (o *Orchestrator) clearExperimentSentinels(ctx context.Context) {
	err := o.deps.Store.Delete(ctx,
		statestore.KeyExperimentName,
		statestore.KeyExperimentPath,
		statestore.KeyAlwaysReward,
	)
	if err != nil {
		log.ErrorErr(log.CatOrch, "deleting experiment sentinels", err)
	}
}

// log writes a line to the experiment log: the run's output, the bus and the
// debug log. Worker goroutines call it too.
func (o *Orchestrator) log(ctx context.Context, msg string) {
	o.outMu.Lock()
	_, _ = fmt.Fprintln(o.deps.Output, msg)
	o.outMu.Unlock()

	if err := o.deps.Bus.PublishEvent(ctx, o.opts.Topics.ExperimentLog, msg); err != nil {
		log.ErrorErr(log.CatOrch, "publishing experiment log", err)
	}
	log.Info(log.CatOrch, strings.TrimSpace(msg), "experiment", o.cfg.Name)
}

func (o *Orchestrator) trialLog(ctx context.Context, n int, msg string) {
	o.log(ctx, fmt.Sprintf(">> Trial %d %s", n, msg))
}

// command publishes a front-end command. Delivery is not confirmed, so
// failures are logged and the timeline carries on.
func (o *Orchestrator) command(ctx context.Context, name, payload string) {
	if err := o.deps.Bus.PublishCommand(ctx, name, payload); err != nil {
		log.ErrorErr(log.CatOrch, "publishing command", err, "command", name)
	}
}

func (o *Orchestrator) recordRunStarted(ctx context.Context) {
	if o.deps.History == nil {
		return
	}
	err := o.deps.History.RunStarted(ctx, history.Run{
		ID:        o.runID,
		Name:      o.cfg.Name,
		AnimalID:  o.cfg.AnimalID,
		Kind:      string(o.cfg.Kind),
		NumTrials: o.cfg.NumTrials,
		Path:      o.cfg.ExperimentPath(o.opts.ExperimentsDir),
		Config:    o.cfg.String(),
		StartedAt: time.Now(),
	})
	if err != nil {
		log.ErrorErr(log.CatHistory, "recording run start", err, "run", o.runID)
	}
}

func (o *Orchestrator) recordRunFinished(ctx context.Context, status history.Status) {
	if o.deps.History == nil {
		return
	}
	if err := o.deps.History.RunFinished(ctx, o.runID, status, time.Now()); err != nil {
		log.ErrorErr(log.CatHistory, "recording run end", err, "run", o.runID, "status", status)
	}
}

// sleep waits for d and reports whether it ran to completion.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
