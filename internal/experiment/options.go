package experiment

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// BugOptions is the init_bugs payload understood by the front end.
type BugOptions struct {
	NumOfBugs       int      `json:"numOfBugs"`
	Speed           int      `json:"speed"`
	BugTypes        []string `json:"bugTypes"`
	RewardBugs      []string `json:"rewardBugs"`
	MovementType    string   `json:"movementType"`
	TimeBetweenBugs int      `json:"timeBetweenBugs"`
	IsStopOnReward  bool     `json:"isStopOnReward"`
	IsLogTrajectory bool     `json:"isLogTrajectory"`
	IsAntiClockWise bool     `json:"isAntiClockWise"`
	TargetDrift     string   `json:"targetDrift"`
}

// MediaOptions is the init_media payload.
type MediaOptions struct {
	URL string `json:"url"`
}

// BugOptions returns the init_bugs JSON payload.
func (c Config) BugOptions() (string, error) {
	b, err := json.Marshal(BugOptions{
		NumOfBugs:       1,
		Speed:           c.BugSpeed,
		BugTypes:        nonNil(c.BugTypes),
		RewardBugs:      nonNil(c.RewardBugs),
		MovementType:    c.MovementType,
		TimeBetweenBugs: c.TimeBetweenBugs,
		IsStopOnReward:  c.IsAlwaysReward(),
		IsLogTrajectory: true,
		IsAntiClockWise: c.IsAnticlockwise,
		TargetDrift:     c.TargetDrift,
	})
	if err != nil {
		return "", fmt.Errorf("encoding bug options: %w", err)
	}
	return string(b), nil
}

// MediaOptions returns the init_media JSON payload; media is served by the
// management server below /media.
func (c Config) MediaOptions(managementURL string) (string, error) {
	b, err := json.Marshal(MediaOptions{
		URL: fmt.Sprintf("%s/media/%s", strings.TrimRight(managementURL, "/"), c.MediaURL),
	})
	if err != nil {
		return "", fmt.Errorf("encoding media options: %w", err)
	}
	return string(b), nil
}

// String renders the configuration echo written to experiment.log and
// returned at the head of every run summary. Bug-only fields are left out
// of media runs.
func (c Config) String() string {
	type field struct {
		name  string
		value string
		bugs  bool
	}
	fields := []field{
		{"name", c.Name, false},
		{"animal_id", c.AnimalID, false},
		{"cameras", strings.Join(c.Cameras, ","), false},
		{"bug_types", strings.Join(c.BugTypes, ","), true},
		{"trial_duration", formatSeconds(c.TrialDuration), false},
		{"num_trials", strconv.Itoa(c.NumTrials), false},
		{"iti", formatSeconds(c.ITI), false},
		{"experiment_type", string(c.Kind), false},
		{"bug_speed", strconv.Itoa(c.BugSpeed), true},
		{"movement_type", c.MovementType, true},
		{"is_use_predictions", formatBool(c.IsUsePredictions), true},
		{"time_between_bugs", strconv.Itoa(c.TimeBetweenBugs), true},
		{"reward_type", string(c.RewardPolicy), true},
		{"reward_bugs", strings.Join(c.RewardBugs, ","), true},
		{"is_anticlockwise", formatBool(c.IsAnticlockwise), true},
		{"target_drift", c.TargetDrift, true},
		{"media_url", c.MediaURL, false},
		{"extra_time_recording", formatSeconds(c.ExtraTimeRecording), false},
	}

	var sb strings.Builder
	for _, f := range fields {
		if f.bugs && c.IsMedia() {
			continue
		}
		fmt.Fprintf(&sb, "%s: %s\n", f.name, f.value)
	}
	return sb.String()
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
