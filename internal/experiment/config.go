// Package experiment defines the immutable description of an experiment run:
// identity, trial shape, experiment kind and its kind-specific parameters,
// together with the pure functions derived from it (durations, TTLs, paths,
// front-end payloads and the configuration echo).
package experiment

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"
)

// ErrInvalidConfig wraps every validation failure returned by New.
var ErrInvalidConfig = errors.New("invalid experiment configuration")

// NameTimeLayout is appended to the experiment name when a run is created.
const NameTimeLayout = "20060102T150405"

// SentinelBuffer is added to every sentinel TTL so keys outlive their scope
// by a margin before self-expiring.
const SentinelBuffer = 10 * time.Second

// Kind selects the front-end stimulus application.
type Kind string

const (
	KindBugs  Kind = "bugs"
	KindMedia Kind = "media"
)

// RewardPolicy decides when a successful hit triggers a reward.
type RewardPolicy string

const (
	RewardEndTrial RewardPolicy = "end_trial"
	RewardAlways   RewardPolicy = "always"
)

// Params is the caller-facing input for an experiment. Durations are in seconds
// and list fields accept comma-separated strings, matching the CLI and YAML files.
type Params struct {
	Name               string  `yaml:"name" mapstructure:"name"`
	AnimalID           string  `yaml:"animal_id" mapstructure:"animal_id"`
	Cameras            string  `yaml:"cameras" mapstructure:"cameras"`
	BugTypes           string  `yaml:"bug_types" mapstructure:"bug_types"`
	TrialDuration      float64 `yaml:"trial_duration" mapstructure:"trial_duration"`
	NumTrials          int     `yaml:"num_trials" mapstructure:"num_trials"`
	ITI                float64 `yaml:"iti" mapstructure:"iti"`
	ExperimentType     string  `yaml:"experiment_type" mapstructure:"experiment_type"`
	BugSpeed           int     `yaml:"bug_speed" mapstructure:"bug_speed"`
	MovementType       string  `yaml:"movement_type" mapstructure:"movement_type"`
	IsUsePredictions   bool    `yaml:"is_use_predictions" mapstructure:"is_use_predictions"`
	TimeBetweenBugs    int     `yaml:"time_between_bugs" mapstructure:"time_between_bugs"`
	RewardType         string  `yaml:"reward_type" mapstructure:"reward_type"`
	RewardBugs         string  `yaml:"reward_bugs" mapstructure:"reward_bugs"`
	IsAnticlockwise    bool    `yaml:"is_anticlockwise" mapstructure:"is_anticlockwise"`
	TargetDrift        string  `yaml:"target_drift" mapstructure:"target_drift"`
	MediaURL           string  `yaml:"media_url" mapstructure:"media_url"`
	ExtraTimeRecording float64 `yaml:"extra_time_recording" mapstructure:"extra_time_recording"`
}

// DefaultParams mirrors the defaults of the experiment command line.
func DefaultParams() Params {
	return Params{
		TrialDuration:      60,
		NumTrials:          1,
		ITI:                10,
		ExperimentType:     string(KindBugs),
		RewardType:         string(RewardEndTrial),
		ExtraTimeRecording: 5,
	}
}

// Config is the validated, immutable experiment description.
// It is passed by value; nothing mutates it once a run starts.
type Config struct {
	Name               string
	AnimalID           string
	Cameras            []string
	TrialDuration      time.Duration
	NumTrials          int
	ITI                time.Duration
	ExtraTimeRecording time.Duration
	Kind               Kind

	// Bugs experiments
	BugTypes         []string
	BugSpeed         int
	MovementType     string
	IsUsePredictions bool
	TimeBetweenBugs  int
	RewardPolicy     RewardPolicy
	RewardBugs       []string
	IsAnticlockwise  bool
	TargetDrift      string

	// Media experiments
	MediaURL string
}

// New validates p and builds a Config whose name carries the start timestamp.
func New(p Params, now time.Time) (Config, error) {
	if err := Validate(p); err != nil {
		return Config{}, err
	}

	cfg := Config{
		Name:               fmt.Sprintf("%s_%s", p.Name, now.Format(NameTimeLayout)),
		AnimalID:           p.AnimalID,
		Cameras:            splitList(p.Cameras),
		TrialDuration:      seconds(p.TrialDuration),
		NumTrials:          p.NumTrials,
		ITI:                seconds(p.ITI),
		ExtraTimeRecording: seconds(p.ExtraTimeRecording),
		Kind:               kindOrDefault(p.ExperimentType),
		BugTypes:           splitList(p.BugTypes),
		BugSpeed:           p.BugSpeed,
		MovementType:       p.MovementType,
		IsUsePredictions:   p.IsUsePredictions,
		TimeBetweenBugs:    p.TimeBetweenBugs,
		RewardPolicy:       rewardOrDefault(p.RewardType),
		RewardBugs:         splitList(p.RewardBugs),
		IsAnticlockwise:    p.IsAnticlockwise,
		TargetDrift:        p.TargetDrift,
		MediaURL:           p.MediaURL,
	}
	if len(cfg.RewardBugs) == 0 {
		cfg.RewardBugs = append([]string(nil), cfg.BugTypes...)
	}
	return cfg, nil
}

// Validate checks experiment parameters. Every failure wraps ErrInvalidConfig.
func Validate(p Params) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	if strings.ContainsAny(p.Name, `/\`) || p.Name == "." || p.Name == ".." {
		return fmt.Errorf("%w: name %q must not contain path separators", ErrInvalidConfig, p.Name)
	}
	if p.NumTrials < 1 {
		return fmt.Errorf("%w: num_trials must be at least 1, got %d", ErrInvalidConfig, p.NumTrials)
	}
	if p.TrialDuration <= 0 {
		return fmt.Errorf("%w: trial_duration must be positive, got %v", ErrInvalidConfig, p.TrialDuration)
	}
	if p.ITI < 0 {
		return fmt.Errorf("%w: iti must not be negative, got %v", ErrInvalidConfig, p.ITI)
	}
	if p.ExtraTimeRecording < 0 {
		return fmt.Errorf("%w: extra_time_recording must not be negative, got %v", ErrInvalidConfig, p.ExtraTimeRecording)
	}

	switch kindOrDefault(p.ExperimentType) {
	case KindBugs:
		if len(splitList(p.BugTypes)) == 0 {
			return fmt.Errorf("%w: bug_types is required for bugs experiments", ErrInvalidConfig)
		}
		switch rewardOrDefault(p.RewardType) {
		case RewardEndTrial, RewardAlways:
		default:
			return fmt.Errorf("%w: reward_type must be %q or %q, got %q", ErrInvalidConfig, RewardEndTrial, RewardAlways, p.RewardType)
		}
		if p.BugSpeed < 0 {
			return fmt.Errorf("%w: bug_speed must not be negative, got %d", ErrInvalidConfig, p.BugSpeed)
		}
	case KindMedia:
		if strings.TrimSpace(p.MediaURL) == "" {
			return fmt.Errorf("%w: media_url is required for media experiments", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: experiment_type must be %q or %q, got %q", ErrInvalidConfig, KindBugs, KindMedia, p.ExperimentType)
	}
	return nil
}

// OverallTrialDuration is the stimulus window plus pre- and post-roll.
func (c Config) OverallTrialDuration() time.Duration {
	return c.TrialDuration + 2*c.ExtraTimeRecording
}

// TotalDuration is the nominal wall time of the whole run.
func (c Config) TotalDuration() time.Duration {
	n := time.Duration(c.NumTrials)
	return n*c.OverallTrialDuration() + (n-1)*c.ITI
}

// ExperimentTTL sizes the experiment-scope sentinels: one and a half times the
// nominal run, rounded to the second, plus SentinelBuffer.
func (c Config) ExperimentTTL() time.Duration {
	secs := math.Round(c.TotalDuration().Seconds() * 1.5)
	return time.Duration(secs)*time.Second + SentinelBuffer
}

// TrialTTL sizes the trial-scope sentinels: a full trial window plus the ITI.
func (c Config) TrialTTL() time.Duration {
	return c.OverallTrialDuration() + c.ITI + SentinelBuffer
}

// ExperimentPath is the run directory below root.
func (c Config) ExperimentPath(root string) string {
	return filepath.Join(root, c.Name)
}

// TrialPath is the directory of trial n (1-indexed).
func (c Config) TrialPath(root string, n int) string {
	return filepath.Join(c.ExperimentPath(root), fmt.Sprintf("trial%d", n))
}

// VideosPath is where the recording worker writes trial n's videos.
func (c Config) VideosPath(root string, n int) string {
	return filepath.Join(c.TrialPath(root, n), "videos")
}

// IsMedia reports whether the run shows media instead of bugs.
func (c Config) IsMedia() bool {
	return c.Kind == KindMedia
}

// IsAlwaysReward reports whether every hit is rewarded immediately by the front end.
func (c Config) IsAlwaysReward() bool {
	return c.RewardPolicy == RewardAlways
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func kindOrDefault(s string) Kind {
	if s == "" {
		return KindBugs
	}
	return Kind(s)
}

func rewardOrDefault(s string) RewardPolicy {
	if s == "" {
		return RewardEndTrial
	}
	return RewardPolicy(s)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
