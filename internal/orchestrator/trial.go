package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/arena/internal/bus"
	"github.com/zjrosen/arena/internal/history"
	"github.com/zjrosen/arena/internal/log"
	"github.com/zjrosen/arena/internal/statestore"
	"github.com/zjrosen/arena/internal/touchlog"
	"github.com/zjrosen/arena/internal/tracing"
	"github.com/zjrosen/arena/internal/worker"
)

// runTrial runs trial n. On OutcomeAbort the trial is left active for the
// caller's forced cleanup; otherwise the trial is fully wrapped up.
func (o *Orchestrator) runTrial(ctx context.Context, n int) (Outcome, error) {
	ctx, span := o.deps.Tracer.Start(ctx, tracing.SpanTrial, trace.WithAttributes(
		attribute.Int(tracing.AttrTrialNumber, n),
		attribute.String(tracing.AttrTrialPath, o.cfg.TrialPath(o.opts.ExperimentsDir, n)),
	))
	defer span.End()

	if err := o.initTrial(ctx, n); err != nil {
		return OutcomeAbort, err
	}
	if err := o.startWorkers(ctx, n); err != nil {
		return OutcomeAbort, err
	}

	o.setPhase(PhasePreRoll)
	if o.wait(ctx, PhasePreRoll, o.cfg.ExtraTimeRecording, false) == OutcomeAbort {
		return OutcomeAbort, nil
	}

	if err := o.startApp(ctx, n); err != nil {
		return OutcomeAbort, err
	}
	span.AddEvent(tracing.EventStimulusStarted)

	o.setPhase(PhaseStimulus)
	switch o.wait(ctx, PhaseStimulus, o.cfg.TrialDuration, true) {
	case OutcomeAbort:
		return OutcomeAbort, nil
	case OutcomeEarlyExit:
		o.earlyExit = true
		o.trialLog(ctx, n, "Reward Bug catch")
	}

	o.endApp(ctx, n)
	span.AddEvent(tracing.EventStimulusStopped)

	o.setPhase(PhasePostRoll)
	if o.wait(ctx, PhasePostRoll, o.cfg.ExtraTimeRecording, false) == OutcomeAbort {
		return OutcomeAbort, nil
	}

	o.setPhase(PhaseWrapUp)
	sum, found := o.endTrial(ctx, true)
	span.SetAttributes(
		attribute.Int(tracing.AttrTouches, sum.Touches),
		attribute.Int(tracing.AttrHits, sum.Hits),
	)
	if found && sum.Hits > 0 && !o.cfg.IsAlwaysReward() {
		span.AddEvent(tracing.EventRewardSent)
	}
	return OutcomeContinue, nil
}

func (o *Orchestrator) initTrial(ctx context.Context, n int) error {
	path := o.cfg.TrialPath(o.opts.ExperimentsDir, n)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("creating trial directory: %w", err)
	}
	o.trialActive = true
	o.trialStart = time.Now()
	o.earlyExit = false

	if err := o.deps.Display.On(ctx); err != nil {
		log.ErrorErr(log.CatOrch, "turning display on", err, "trial", n)
	}
	o.command(ctx, bus.CmdLEDLight, bus.LEDOn)

	ttl := o.cfg.TrialTTL()
	if err := o.deps.Store.Set(ctx, statestore.KeyTrialOn, "1", ttl); err != nil {
		log.ErrorErr(log.CatOrch, "setting trial sentinel", err, "trial", n)
	}
	if err := o.deps.Store.Set(ctx, statestore.KeyTrialPath, path, ttl); err != nil {
		log.ErrorErr(log.CatOrch, "publishing trial path", err, "trial", n)
	}
	return nil
}

// startWorkers creates this trial's coordinator; one coordinator serves
// exactly one trial.
func (o *Orchestrator) startWorkers(ctx context.Context, n int) error {
	var workers []worker.Worker
	if o.deps.Workers != nil {
		workers = o.deps.Workers(TrialInfo{
			Number:     n,
			Path:       o.cfg.TrialPath(o.opts.ExperimentsDir, n),
			VideosPath: o.cfg.VideosPath(o.opts.ExperimentsDir, n),
			Duration:   o.cfg.OverallTrialDuration(),
			Config:     o.cfg,
			Log:        func(msg string) { o.trialLog(ctx, n, msg) },
		})
	}
	o.coordinator = worker.NewCoordinator(o.opts.GracePeriod, workers...)
	if err := o.coordinator.Start(ctx); err != nil {
		return fmt.Errorf("starting workers: %w", err)
	}
	return nil
}

func (o *Orchestrator) startApp(ctx context.Context, n int) error {
	if o.cfg.IsMedia() {
		payload, err := o.cfg.MediaOptions(o.opts.ManagementURL)
		if err != nil {
			return err
		}
		o.command(ctx, bus.CmdInitMedia, payload)
	} else {
		payload, err := o.cfg.BugOptions()
		if err != nil {
			return err
		}
		o.command(ctx, bus.CmdInitBugs, payload)
	}

	if err := o.deps.Store.Set(ctx, statestore.KeyAppOn, "1", o.cfg.TrialTTL()); err != nil {
		log.ErrorErr(log.CatOrch, "setting app sentinel", err, "trial", n)
	}
	o.trialLog(ctx, n, fmt.Sprintf("%s initiated", o.cfg.Kind))
	return nil
}

func (o *Orchestrator) endApp(ctx context.Context, n int) {
	o.clearAppContent(ctx)
	o.command(ctx, bus.CmdEndAppWait, "")
	o.trialLog(ctx, n, fmt.Sprintf("%s stopped", o.cfg.Kind))
	if err := o.deps.Display.Off(ctx); err != nil {
		log.ErrorErr(log.CatOrch, "turning display off", err, "trial", n)
	}
}

func (o *Orchestrator) clearAppContent(ctx context.Context) {
	if o.cfg.IsMedia() {
		o.command(ctx, bus.CmdHideMedia, "")
		return
	}
	o.command(ctx, bus.CmdHideBugs, "")
}

// endTrial turns the LED off, stops the workers and deletes the trial
// sentinels. It is safe to call when no trial is active. When summarize is
// set the trial summary is computed, logged and recorded.
func (o *Orchestrator) endTrial(ctx context.Context, summarize bool) (touchlog.Summary, bool) {
	n := o.CurrentTrial()
	if o.trialActive {
		o.command(ctx, bus.CmdLEDLight, bus.LEDOff)
	}
	o.stopWorkers(ctx)

	err := o.deps.Store.Delete(ctx, statestore.KeyTrialOn, statestore.KeyTrialPath, statestore.KeyAppOn)
	if err != nil {
		log.ErrorErr(log.CatOrch, "deleting trial sentinels", err, "trial", n)
	}

	wasActive := o.trialActive
	o.trialActive = false
	if !summarize || !wasActive {
		return touchlog.Summary{}, false
	}
	return o.summarizeTrial(ctx, n)
}

func (o *Orchestrator) stopWorkers(ctx context.Context) {
	if o.coordinator == nil {
		return
	}
	if !o.coordinator.Stop() {
		for _, s := range o.coordinator.Statuses() {
			if s.Status == worker.StatusAbandoned {
				log.Warn(log.CatOrch, "worker abandoned", "worker", s.Name, "trial", o.CurrentTrial())
			}
		}
	}
	trace.SpanFromContext(ctx).AddEvent(tracing.EventWorkersStopped)
	o.coordinator = nil
}

// summarizeTrial renders the trial's touch-log counts into the run summary
// and the experiment log, and sends the end-of-trial reward when earned.
func (o *Orchestrator) summarizeTrial(ctx context.Context, n int) (touchlog.Summary, bool) {
	path := o.cfg.TrialPath(o.opts.ExperimentsDir, n)

	sum, err := o.deps.Summaries.Read(path)
	found := err == nil
	if err != nil && !errors.Is(err, touchlog.ErrNoTouchLog) {
		log.ErrorErr(log.CatOrch, "reading touch log", err, "trial", n)
	}

	text := FormatTrialSummary(n, sum, found)
	o.log(ctx, text)
	o.summary.WriteString(text)
	if err := o.appendExperimentLog(text); err != nil {
		log.ErrorErr(log.CatOrch, "appending experiment log", err, "trial", n)
	}

	if found && sum.Hits > 0 && !o.cfg.IsAlwaysReward() {
		if err := o.deps.Bus.PublishEvent(ctx, o.opts.Topics.Reward, ""); err != nil {
			log.ErrorErr(log.CatOrch, "publishing reward", err, "trial", n)
		}
	}

	if o.deps.History != nil {
		err := o.deps.History.TrialFinished(ctx, o.runID, history.Trial{
			Number:       n,
			Touches:      sum.Touches,
			Hits:         sum.Hits,
			RewardedHits: sum.RewardedHits,
			HasTouchLog:  found,
			EarlyExit:    o.earlyExit,
			StartedAt:    o.trialStart,
			EndedAt:      time.Now(),
		})
		if err != nil {
			log.ErrorErr(log.CatHistory, "recording trial", err, "run", o.runID, "trial", n)
		}
	}
	return sum, found
}
