package experiment

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var startedAt = time.Date(2021, 3, 14, 9, 26, 53, 0, time.UTC)

func bugsParams() Params {
	p := DefaultParams()
	p.Name = "pogona"
	p.AnimalID = "PV42"
	p.Cameras = "left, right"
	p.BugTypes = "cockroach,worm"
	p.BugSpeed = 5
	p.MovementType = "circle"
	p.NumTrials = 3
	p.TrialDuration = 5
	p.ITI = 10
	p.ExtraTimeRecording = 2
	return p
}

func TestNew_NameAndLists(t *testing.T) {
	cfg, err := New(bugsParams(), startedAt)
	require.NoError(t, err)

	require.Equal(t, "pogona_20210314T092653", cfg.Name)
	require.Equal(t, []string{"left", "right"}, cfg.Cameras)
	require.Equal(t, []string{"cockroach", "worm"}, cfg.BugTypes)
	require.Equal(t, cfg.BugTypes, cfg.RewardBugs, "reward_bugs defaults to bug_types")
	require.Equal(t, KindBugs, cfg.Kind)
	require.Equal(t, RewardEndTrial, cfg.RewardPolicy)
	require.Equal(t, 5*time.Second, cfg.TrialDuration)
}

func TestNew_ExplicitRewardBugs(t *testing.T) {
	p := bugsParams()
	p.RewardBugs = "worm"

	cfg, err := New(p, startedAt)
	require.NoError(t, err)
	require.Equal(t, []string{"worm"}, cfg.RewardBugs)
}

func TestValidate_Rejections(t *testing.T) {
	cases := map[string]struct {
		mutate func(*Params)
		want   string
	}{
		"missing name":         {func(p *Params) { p.Name = " " }, "name is required"},
		"path in name":         {func(p *Params) { p.Name = "a/b" }, "path separators"},
		"zero trials":          {func(p *Params) { p.NumTrials = 0 }, "num_trials must be at least 1"},
		"zero duration":        {func(p *Params) { p.TrialDuration = 0 }, "trial_duration must be positive"},
		"negative iti":         {func(p *Params) { p.ITI = -1 }, "iti must not be negative"},
		"negative extra":       {func(p *Params) { p.ExtraTimeRecording = -1 }, "extra_time_recording"},
		"unknown kind":         {func(p *Params) { p.ExperimentType = "movie" }, "experiment_type must be"},
		"no bug types":         {func(p *Params) { p.BugTypes = " , " }, "bug_types is required"},
		"unknown reward":       {func(p *Params) { p.RewardType = "sometimes" }, "reward_type must be"},
		"media without url":    {func(p *Params) { p.ExperimentType = "media" }, "media_url is required"},
		"negative bug speed":   {func(p *Params) { p.BugSpeed = -3 }, "bug_speed"},
		"dot dot is not a dir": {func(p *Params) { p.Name = ".." }, "path separators"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			p := bugsParams()
			tc.mutate(&p)
			_, err := New(p, startedAt)
			require.ErrorIs(t, err, ErrInvalidConfig)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestDurationsAndTTLs(t *testing.T) {
	cfg, err := New(bugsParams(), startedAt)
	require.NoError(t, err)

	require.Equal(t, 9*time.Second, cfg.OverallTrialDuration())
	// 3*(2+5+2) + 2*10 = 47
	require.Equal(t, 47*time.Second, cfg.TotalDuration())
	// round(47 * 1.5) = 71 (70.5 rounds away from zero)
	require.Equal(t, 71*time.Second+SentinelBuffer, cfg.ExperimentTTL())
	require.Equal(t, 19*time.Second+SentinelBuffer, cfg.TrialTTL())
}

func TestPaths(t *testing.T) {
	cfg, err := New(bugsParams(), startedAt)
	require.NoError(t, err)

	require.Equal(t, "/data/experiments/pogona_20210314T092653", cfg.ExperimentPath("/data/experiments"))
	require.Equal(t, "/data/experiments/pogona_20210314T092653/trial2", cfg.TrialPath("/data/experiments", 2))
	require.Equal(t, "/data/experiments/pogona_20210314T092653/trial2/videos", cfg.VideosPath("/data/experiments", 2))
}

func TestBugOptions_Fields(t *testing.T) {
	p := bugsParams()
	p.RewardType = "always"
	p.IsAnticlockwise = true
	p.TargetDrift = "left"
	p.TimeBetweenBugs = 4
	cfg, err := New(p, startedAt)
	require.NoError(t, err)

	payload, err := cfg.BugOptions()
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(payload), &got))
	require.Equal(t, float64(1), got["numOfBugs"])
	require.Equal(t, float64(5), got["speed"])
	require.Equal(t, []any{"cockroach", "worm"}, got["bugTypes"])
	require.Equal(t, []any{"cockroach", "worm"}, got["rewardBugs"])
	require.Equal(t, "circle", got["movementType"])
	require.Equal(t, float64(4), got["timeBetweenBugs"])
	require.Equal(t, true, got["isStopOnReward"])
	require.Equal(t, true, got["isLogTrajectory"])
	require.Equal(t, true, got["isAntiClockWise"])
	require.Equal(t, "left", got["targetDrift"])
}

func TestMediaOptions_URL(t *testing.T) {
	p := DefaultParams()
	p.Name = "movie"
	p.ExperimentType = "media"
	p.MediaURL = "clip.mp4"
	cfg, err := New(p, startedAt)
	require.NoError(t, err)

	payload, err := cfg.MediaOptions("http://localhost:5000/")
	require.NoError(t, err)
	require.JSONEq(t, `{"url":"http://localhost:5000/media/clip.mp4"}`, payload)
}

func TestString_BugsEcho(t *testing.T) {
	cfg, err := New(bugsParams(), startedAt)
	require.NoError(t, err)

	echo := cfg.String()
	require.True(t, strings.HasPrefix(echo, "name: pogona_20210314T092653\nanimal_id: PV42\ncameras: left,right\n"))
	require.Contains(t, echo, "bug_types: cockroach,worm\n")
	require.Contains(t, echo, "trial_duration: 5\n")
	require.Contains(t, echo, "reward_type: end_trial\n")
	require.Contains(t, echo, "is_anticlockwise: False\n")
	require.True(t, strings.HasSuffix(echo, "extra_time_recording: 2\n"))
}

func TestString_MediaOmitsBugFields(t *testing.T) {
	p := DefaultParams()
	p.Name = "movie"
	p.ExperimentType = "media"
	p.MediaURL = "clip.mp4"
	p.ITI = 0.5
	cfg, err := New(p, startedAt)
	require.NoError(t, err)

	echo := cfg.String()
	for _, field := range []string{"bug_types", "bug_speed", "movement_type", "is_use_predictions",
		"time_between_bugs", "reward_type", "reward_bugs", "is_anticlockwise", "target_drift"} {
		require.NotContains(t, echo, field+":")
	}
	require.Contains(t, echo, "media_url: clip.mp4\n")
	require.Contains(t, echo, "iti: 0.5\n")
}

// TestTTLs_CoverTheirScope checks that sentinels never expire while their
// scope can still be running.
func TestTTLs_CoverTheirScope(t *testing.T) {
	rapid.Check(t, func(r *rapid.T) {
		p := bugsParams()
		p.NumTrials = rapid.IntRange(1, 50).Draw(r, "numTrials")
		p.TrialDuration = float64(rapid.IntRange(1, 600).Draw(r, "trialDuration"))
		p.ITI = float64(rapid.IntRange(0, 600).Draw(r, "iti"))
		p.ExtraTimeRecording = float64(rapid.IntRange(0, 60).Draw(r, "extra"))

		cfg, err := New(p, startedAt)
		require.NoError(r, err)

		require.Greater(r, cfg.ExperimentTTL(), cfg.TotalDuration())
		require.Greater(r, cfg.TrialTTL(), cfg.OverallTrialDuration())
		require.GreaterOrEqual(r, cfg.ExperimentTTL(), cfg.TrialTTL()-cfg.ITI)
	})
}
