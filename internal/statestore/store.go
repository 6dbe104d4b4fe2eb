// Package statestore is the shared key/value store used for liveness sentinels
// and as a bulletin board for the other processes of the rig (front end,
// detector, management UI). Presence of a sentinel key, not its value, is what
// carries meaning.
package statestore

import (
	"context"
	"time"
)

// Sentinel and metadata keys shared with the rest of the rig.
const (
	// KeyExperimentName exists for the whole run; deleting it aborts the experiment.
	KeyExperimentName = "experiment_name"
	// KeyExperimentPath publishes the run directory.
	KeyExperimentPath = "experiment_path"
	// KeyAlwaysReward tells the front end to reward every hit immediately.
	KeyAlwaysReward = "always_reward"
	// KeyTrialOn exists while a trial is running; deleting it ends the stimulus early.
	KeyTrialOn = "trial_on"
	// KeyTrialPath publishes the current trial directory.
	KeyTrialPath = "trial_path"
	// KeyAppOn exists while the stimulus app is shown; the front end deletes it
	// when the animal finishes the stimulus.
	KeyAppOn = "app_on"
)

// Store is the subset of key/value operations the orchestrator relies on.
// A ttl of zero or less means the key never expires.
type Store interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, keys ...string) error
	Close() error
}
