package orchestrator

import (
	"context"
	"fmt"

	"github.com/zjrosen/arena/internal/statestore"
)

// RequestAbort stops the running experiment by deleting its sentinel. The
// orchestrator notices within one poll interval.
func RequestAbort(ctx context.Context, store statestore.Store) error {
	if err := store.Delete(ctx, statestore.KeyExperimentName); err != nil {
		return fmt.Errorf("deleting %s: %w", statestore.KeyExperimentName, err)
	}
	return nil
}

// EndStimulus ends the current stimulus window early, as the front end does
// when the animal catches the reward bug.
func EndStimulus(ctx context.Context, store statestore.Store) error {
	if err := store.Delete(ctx, statestore.KeyAppOn, statestore.KeyTrialOn); err != nil {
		return fmt.Errorf("deleting stimulus sentinels: %w", err)
	}
	return nil
}

// Status is what the shared store says about the rig.
type Status struct {
	Experiment     string
	ExperimentPath string
	TrialPath      string
	TrialOn        bool
	AppOn          bool
	AlwaysReward   bool
}

// Running reports whether an experiment holds the rig.
func (s Status) Running() bool { return s.Experiment != "" }

func (s Status) String() string {
	switch {
	case !s.Running():
		return "idle"
	case s.AppOn:
		return fmt.Sprintf("%s: stimulus on", s.Experiment)
	case s.TrialOn:
		return fmt.Sprintf("%s: recording", s.Experiment)
	default:
		return fmt.Sprintf("%s: between trials", s.Experiment)
	}
}

// ReadStatus reads every sentinel from store.
func ReadStatus(ctx context.Context, store statestore.Store) (Status, error) {
	var s Status
	for _, f := range []struct {
		key   string
		value *string
		flag  *bool
	}{
		{statestore.KeyExperimentName, &s.Experiment, nil},
		{statestore.KeyExperimentPath, &s.ExperimentPath, nil},
		{statestore.KeyTrialPath, &s.TrialPath, nil},
		{statestore.KeyTrialOn, nil, &s.TrialOn},
		{statestore.KeyAppOn, nil, &s.AppOn},
		{statestore.KeyAlwaysReward, nil, &s.AlwaysReward},
	} {
		v, ok, err := store.Get(ctx, f.key)
		if err != nil {
			return Status{}, fmt.Errorf("reading %s: %w", f.key, err)
		}
		if f.value != nil {
			*f.value = v
		}
		if f.flag != nil {
			*f.flag = ok
		}
	}
	return s, nil
}
