package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/zjrosen/arena/internal/log"
	"github.com/zjrosen/arena/internal/monitor"
	"github.com/zjrosen/arena/internal/orchestrator"
	"github.com/zjrosen/arena/internal/watcher"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor [experiment-dir]",
	Short: "Follow a running experiment",
	Long: `Follow a running experiment's log and sentinels in the terminal.

Without an argument the directory of the experiment currently published in
the shared store is used. Keys: a aborts the run, s ends the current stimulus,
q quits.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	dir := ""
	if len(args) == 1 {
		dir = args[0]
	} else {
		lookupCtx, cancel := context.WithTimeout(ctx, controlTimeout)
		status, err := orchestrator.ReadStatus(lookupCtx, store)
		cancel()
		if err != nil {
			return err
		}
		if status.ExperimentPath == "" {
			return errors.New("no experiment is running; pass an experiment directory")
		}
		dir = status.ExperimentPath
	}

	logPath := filepath.Join(dir, orchestrator.ExperimentLogFile)
	w, err := watcher.New(watcher.DefaultConfig(logPath))
	if err != nil {
		return fmt.Errorf("watching %s: %w", logPath, err)
	}
	changes, err := w.Start()
	if err != nil {
		return fmt.Errorf("watching %s: %w", logPath, err)
	}
	defer func() {
		if err := w.Stop(); err != nil {
			log.ErrorErr(log.CatMonitor, "stopping watcher failed", err)
		}
	}()

	model := monitor.New(monitor.Config{
		LogPath: logPath,
		Changes: changes,
		Store:   store,
		Refresh: time.Second,
	})
	_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}
