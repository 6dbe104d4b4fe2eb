package presentation

import (
	"time"

	"github.com/zjrosen/arena/internal/history"
	"github.com/zjrosen/arena/internal/orchestrator"
)

// RunDTO represents an experiment run for presentation
type RunDTO struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	AnimalID   string     `json:"animal_id,omitempty"`
	Kind       string     `json:"kind"`
	NumTrials  int        `json:"num_trials"`
	Path       string     `json:"path"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Trials     []TrialDTO `json:"trials,omitempty"`
}

// TrialDTO represents one trial outcome
type TrialDTO struct {
	Number       int       `json:"number"`
	Touches      int       `json:"touches"`
	Hits         int       `json:"hits"`
	RewardedHits int       `json:"rewarded_hits"`
	HasTouchLog  bool      `json:"has_touch_log"`
	EarlyExit    bool      `json:"early_exit"`
	StartedAt    time.Time `json:"started_at"`
	EndedAt      time.Time `json:"ended_at"`
}

// StatusDTO represents the sentinels of the shared store
type StatusDTO struct {
	State          string `json:"state"`
	Experiment     string `json:"experiment,omitempty"`
	ExperimentPath string `json:"experiment_path,omitempty"`
	TrialPath      string `json:"trial_path,omitempty"`
	TrialOn        bool   `json:"trial_on"`
	AppOn          bool   `json:"app_on"`
	AlwaysReward   bool   `json:"always_reward"`
}

// FromRun converts a history run and its trials to a DTO
func FromRun(run history.Run, trials []history.Trial) RunDTO {
	dto := RunDTO{
		ID:        run.ID,
		Name:      run.Name,
		AnimalID:  run.AnimalID,
		Kind:      run.Kind,
		NumTrials: run.NumTrials,
		Path:      run.Path,
		Status:    string(run.Status),
		StartedAt: run.StartedAt,
	}
	if !run.FinishedAt.IsZero() {
		finished := run.FinishedAt
		dto.FinishedAt = &finished
	}
	for _, t := range trials {
		dto.Trials = append(dto.Trials, TrialDTO(t))
	}
	return dto
}

// FromRuns converts a slice of runs without their trials
func FromRuns(runs []history.Run) []RunDTO {
	dtos := make([]RunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = FromRun(run, nil)
	}
	return dtos
}

// FromStatus converts a store status
func FromStatus(s orchestrator.Status) StatusDTO {
	state := "idle"
	switch {
	case s.AppOn:
		state = "stimulus"
	case s.TrialOn:
		state = "trial"
	case s.Running():
		state = "inter_trial"
	}
	return StatusDTO{
		State:          state,
		Experiment:     s.Experiment,
		ExperimentPath: s.ExperimentPath,
		TrialPath:      s.TrialPath,
		TrialOn:        s.TrialOn,
		AppOn:          s.AppOn,
		AlwaysReward:   s.AlwaysReward,
	}
}
