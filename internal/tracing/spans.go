package tracing

// Span names.
const (
	SpanRun   = "experiment.run"
	SpanTrial = "experiment.trial"
	SpanWait  = "experiment.wait"
)

// Span attribute keys.
const (
	AttrExperimentName = "experiment.name"
	AttrAnimalID       = "experiment.animal_id"
	AttrKind           = "experiment.kind"
	AttrNumTrials      = "experiment.num_trials"
	AttrRunID          = "run.id"
	AttrRunStatus      = "run.status"

	AttrTrialNumber = "trial.number"
	AttrTrialPath   = "trial.path"
	AttrTouches     = "trial.touches"
	AttrHits        = "trial.hits"

	AttrWaitPhase    = "wait.phase"
	AttrWaitDuration = "wait.duration_ms"
	AttrWaitOutcome  = "wait.outcome"
)

// Span event names.
const (
	EventStimulusStarted = "stimulus.started"
	EventStimulusStopped = "stimulus.stopped"
	EventWorkersStopped  = "workers.stopped"
	EventRewardSent      = "reward.sent"
	EventAbortObserved   = "abort.observed"
)
