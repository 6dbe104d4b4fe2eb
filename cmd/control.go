package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/arena/internal/orchestrator"
	"github.com/zjrosen/arena/internal/presentation"
	"github.com/zjrosen/arena/internal/statestore"
)

const controlTimeout = 5 * time.Second

var statusJSON bool

var abortCmd = &cobra.Command{
	Use:   "abort",
	Short: "Abort the running experiment",
	Long: `Abort the running experiment by removing its experiment_name sentinel.

The orchestrator notices within one poll interval, hides the stimulus, turns
the LED off and stops the trial's workers before exiting.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, store statestore.Store) error {
			status, err := orchestrator.ReadStatus(ctx, store)
			if err != nil {
				return err
			}
			if !status.Running() {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No experiment is running.")
				return nil
			}
			if err := orchestrator.RequestAbort(ctx, store); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Abort requested for %s\n", status.Experiment)
			return nil
		})
	},
}

var skipCmd = &cobra.Command{
	Use:   "skip",
	Short: "End the current stimulus early",
	Long: `End the current trial's stimulus window early. Recording continues
through the post-roll and the run moves on to the next trial.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, store statestore.Store) error {
			status, err := orchestrator.ReadStatus(ctx, store)
			if err != nil {
				return err
			}
			if !status.TrialOn && !status.AppOn {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No stimulus is showing.")
				return nil
			}
			if err := orchestrator.EndStimulus(ctx, store); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Stimulus ended.")
			return nil
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the rig",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, store statestore.Store) error {
			status, err := orchestrator.ReadStatus(ctx, store)
			if err != nil {
				return err
			}
			if statusJSON {
				return presentation.NewFormatter(cmd.OutOrStdout()).FormatJSON(presentation.FromStatus(status))
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), status)
			if status.TrialPath != "" {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "trial: %s\n", status.TrialPath)
			}
			return nil
		})
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(abortCmd, skipCmd, statusCmd)
}

func withStore(parent context.Context, fn func(context.Context, statestore.Store) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, controlTimeout)
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return fn(ctx, store)
}
