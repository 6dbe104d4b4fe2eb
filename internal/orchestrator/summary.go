package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/zjrosen/arena/internal/touchlog"
)

// Artifact file names inside the experiment directory.
const (
	ExperimentLogFile = "experiment.log"
	ConfigLogFile     = "config.log"
)

// NoStrikesMessage replaces the counts when a trial has no touch log.
const NoStrikesMessage = "No screen strikes were recorded."

// FormatTrialSummary renders one trial's block of the run summary.
func FormatTrialSummary(n int, s touchlog.Summary, found bool) string {
	text := fmt.Sprintf("Summary of Trial %d:\n", n)
	if found {
		text += fmt.Sprintf("  Number of touches on the screen: %d\n", s.Touches)
		text += fmt.Sprintf("  Number of successful hits: %d\n", s.Hits)
		text += fmt.Sprintf("  Number of Rewarded hits: %d", s.RewardedHits)
	} else {
		text += NoStrikesMessage
	}
	return text + "\n\n"
}

// writeArtifacts creates the experiment directory with the configuration echo
// in experiment.log and the resolved settings in config.log.
func (o *Orchestrator) writeArtifacts() error {
	dir := o.cfg.ExperimentPath(o.opts.ExperimentsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating experiment directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ExperimentLogFile), []byte(o.cfg.String()), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", ExperimentLogFile, err)
	}
	if o.opts.ConfigLog != "" {
		if err := os.WriteFile(filepath.Join(dir, ConfigLogFile), []byte(o.opts.ConfigLog), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", ConfigLogFile, err)
		}
	}
	return nil
}

func (o *Orchestrator) appendExperimentLog(text string) error {
	path := filepath.Join(o.cfg.ExperimentPath(o.opts.ExperimentsDir), ExperimentLogFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644) //nolint:gosec // inside the experiment directory
	if err != nil {
		return err
	}
	if _, err := f.WriteString(text); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
