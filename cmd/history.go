package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zjrosen/arena/internal/history"
	"github.com/zjrosen/arena/internal/presentation"
)

var (
	historyLimit int
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List past experiment runs",
	Long: `List past experiment runs, most recent first, or show the trials of one
run. A run can be named by any unique prefix of its id.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to list (0 for all)")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	if !cfg.History.Enabled {
		return errors.New("run history is disabled (history.enabled: false)")
	}
	db, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	ctx := cmd.Context()
	f := presentation.NewFormatter(cmd.OutOrStdout())

	if len(args) == 0 {
		runs, err := db.ListRuns(ctx, historyLimit)
		if err != nil {
			return err
		}
		dtos := presentation.FromRuns(runs)
		if historyJSON {
			return f.FormatJSON(dtos)
		}
		return f.FormatRunsTable(dtos)
	}

	run, err := findRun(ctx, db, args[0])
	if err != nil {
		return err
	}
	trials, err := db.Trials(ctx, run.ID)
	if err != nil {
		return err
	}
	dto := presentation.FromRun(run, trials)
	if historyJSON {
		return f.FormatJSON(dto)
	}
	return f.FormatRunDetail(dto)
}

// findRun resolves an exact id first and then a unique id prefix.
func findRun(ctx context.Context, db *history.DB, id string) (history.Run, error) {
	run, err := db.GetRun(ctx, id)
	if err == nil || !errors.Is(err, history.ErrRunNotFound) {
		return run, err
	}

	runs, err := db.ListRuns(ctx, 0)
	if err != nil {
		return history.Run{}, err
	}
	var matches []history.Run
	for _, r := range runs {
		if strings.HasPrefix(r.ID, id) {
			matches = append(matches, r)
		}
	}
	switch len(matches) {
	case 0:
		return history.Run{}, fmt.Errorf("%w: %s", history.ErrRunNotFound, id)
	case 1:
		return matches[0], nil
	default:
		return history.Run{}, fmt.Errorf("run id %q is ambiguous (%d matches)", id, len(matches))
	}
}
