package orchestrator

// Phase is the state of a run.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseInitializing
	PhaseInterTrial
	PhasePreRoll
	PhaseStimulus
	PhasePostRoll
	PhaseWrapUp
	PhaseCompleted
	PhaseAborted
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseInitializing:
		return "initializing"
	case PhaseInterTrial:
		return "inter_trial"
	case PhasePreRoll:
		return "pre_roll"
	case PhaseStimulus:
		return "stimulus"
	case PhasePostRoll:
		return "post_roll"
	case PhaseWrapUp:
		return "wrap_up"
	case PhaseCompleted:
		return "completed"
	case PhaseAborted:
		return "aborted"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the run has ended.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseAborted || p == PhaseFailed
}
