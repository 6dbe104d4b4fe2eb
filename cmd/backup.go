package cmd

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/zjrosen/arena/internal/backup"
)

var (
	backupTarget    string
	backupNoConvert bool
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Copy finished experiments to backup storage",
	Long: `Copy finished experiments from experiments_dir to the backup target.

Experiments already listed in the backup cache or present at the target are
skipped. Directories whose name starts with "delete" are removed instead of
copied. Unless disabled, .avi videos are converted to HEVC .mp4 with ffmpeg
before copying.`,
	Args: cobra.NoArgs,
	RunE: runBackup,
}

func init() {
	backupCmd.Flags().StringVarP(&backupTarget, "target", "t", "", "backup directory (default: backup.target)")
	backupCmd.Flags().BoolVar(&backupNoConvert, "no-convert", false, "copy videos without converting them")
	rootCmd.AddCommand(backupCmd)
}

func backupConfig() backup.Config {
	bc := backup.Config{
		Origin:        cfg.ExperimentsDir,
		Target:        cfg.Backup.Target,
		CacheFile:     cfg.Backup.CacheFile,
		ConvertVideos: cfg.Backup.ConvertVideos && !backupNoConvert,
	}
	if backupTarget != "" {
		bc.Target = backupTarget
	}
	if bc.CacheFile != "" && !filepath.IsAbs(bc.CacheFile) {
		bc.CacheFile = filepath.Join(cfg.ExperimentsDir, bc.CacheFile)
	}
	return bc
}

func runBackup(cmd *cobra.Command, _ []string) error {
	job, err := backup.New(backupConfig(), nil)
	if err != nil {
		return err
	}
	report, err := job.Run(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, name := range report.Copied {
		_, _ = fmt.Fprintf(out, "copied   %s\n", name)
	}
	for _, name := range report.Deleted {
		_, _ = fmt.Fprintf(out, "deleted  %s\n", name)
	}
	failed := make([]string, 0, len(report.Failed))
	for name := range report.Failed {
		failed = append(failed, name)
	}
	sort.Strings(failed)
	for _, name := range failed {
		_, _ = fmt.Fprintf(out, "failed   %s: %v\n", name, report.Failed[name])
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d experiment(s) failed to back up", len(failed))
	}
	return nil
}
