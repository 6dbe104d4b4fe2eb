// Package backup copies finished experiment directories to long-term storage,
// optionally transcoding their videos on the way.
package backup

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/zjrosen/arena/internal/log"
)

// ExperimentPattern matches the directory names created by experiment runs.
var ExperimentPattern = regexp.MustCompile(`^\w+_\d{8}T\d{6}`)

// DeletePrefix marks experiment directories the operator wants discarded.
const DeletePrefix = "delete"

// Config configures a backup job.
type Config struct {
	// Origin is the experiments directory.
	Origin string
	// Target is where experiments are copied to.
	Target string
	// CacheFile lists experiments already backed up, one per line.
	CacheFile string
	// TmpDir stages each experiment while its videos are converted.
	TmpDir string
	// ConvertVideos transcodes .avi files to .mp4 before copying.
	ConvertVideos bool
}

// Converter transcodes one video file.
type Converter interface {
	Convert(ctx context.Context, src, dst string) error
}

// FFmpeg converts videos with the ffmpeg binary (HEVC video, E-AC-3 audio).
type FFmpeg struct {
	// Path is the ffmpeg binary; empty means "ffmpeg" on PATH.
	Path string
}

// Args returns the ffmpeg arguments for one conversion.
func (FFmpeg) Args(src, dst string) []string {
	return []string{
		"-i", src,
		"-c:v", "libx265", "-preset", "fast", "-crf", "28", "-tag:v", "hvc1",
		"-c:a", "eac3", "-b:a", "224k",
		dst,
	}
}

// Convert runs ffmpeg.
func (f FFmpeg) Convert(ctx context.Context, src, dst string) error {
	bin := f.Path
	if bin == "" {
		bin = "ffmpeg"
	}
	out, err := exec.CommandContext(ctx, bin, f.Args(src, dst)...).CombinedOutput() //nolint:gosec // configured binary
	if err != nil {
		return fmt.Errorf("ffmpeg %s: %w: %s", filepath.Base(src), err, lastLine(string(out)))
	}
	return nil
}

// Report summarises a backup run.
type Report struct {
	Copied  []string
	Deleted []string
	Failed  map[string]error
}

// Job is one backup pass over Origin.
type Job struct {
	cfg       Config
	converter Converter
}

// New creates a backup job. A nil converter uses FFmpeg.
func New(cfg Config, converter Converter) (*Job, error) {
	if cfg.Origin == "" || cfg.Target == "" {
		return nil, errors.New("backup requires an origin and a target")
	}
	if cfg.CacheFile == "" {
		cfg.CacheFile = filepath.Join(cfg.Origin, ".backup_cache")
	}
	if cfg.TmpDir == "" {
		cfg.TmpDir = filepath.Join(os.TempDir(), "arena-backup")
	}
	if converter == nil {
		converter = FFmpeg{}
	}
	return &Job{cfg: cfg, converter: converter}, nil
}

// Run backs up every experiment that is neither cached nor already present at
// the target. A failing experiment is reported and the pass continues.
func (j *Job) Run(ctx context.Context) (Report, error) {
	log.Info(log.CatBackup, "Start backup of experiments", "origin", j.cfg.Origin, "target", j.cfg.Target)
	report := Report{Failed: map[string]error{}}

	cached, err := loadCache(j.cfg.CacheFile)
	if err != nil {
		return report, err
	}
	entries, err := os.ReadDir(j.cfg.Origin)
	if err != nil {
		return report, fmt.Errorf("listing experiments: %w", err)
	}
	if err := os.MkdirAll(j.cfg.Target, 0o755); err != nil {
		return report, fmt.Errorf("creating backup target: %w", err)
	}
	if err := os.MkdirAll(j.cfg.TmpDir, 0o755); err != nil {
		return report, fmt.Errorf("creating staging directory: %w", err)
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		name := e.Name()
		if !e.IsDir() || !ExperimentPattern.MatchString(name) || cached[name] || exists(filepath.Join(j.cfg.Target, name)) {
			continue
		}

		if strings.HasPrefix(name, DeletePrefix) {
			if err := os.RemoveAll(filepath.Join(j.cfg.Origin, name)); err != nil {
				log.ErrorErr(log.CatBackup, "Error deleting experiment", err, "experiment", name)
				report.Failed[name] = err
				continue
			}
			log.Info(log.CatBackup, "deleted experiment", "experiment", name)
			report.Deleted = append(report.Deleted, name)
			continue
		}

		if err := j.backup(ctx, name); err != nil {
			log.ErrorErr(log.CatBackup, "Error backing up experiment", err, "experiment", name)
			report.Failed[name] = err
			continue
		}
		log.Info(log.CatBackup, "experiment copied", "experiment", name, "target", j.cfg.Target)
		report.Copied = append(report.Copied, name)
	}
	return report, nil
}

func (j *Job) backup(ctx context.Context, name string) error {
	staged := filepath.Join(j.cfg.TmpDir, name)
	if err := os.RemoveAll(staged); err != nil {
		return fmt.Errorf("clearing staging directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(staged) }()

	if err := os.CopyFS(staged, os.DirFS(filepath.Join(j.cfg.Origin, name))); err != nil {
		return fmt.Errorf("staging: %w", err)
	}
	if j.cfg.ConvertVideos {
		j.convertVideos(ctx, staged)
	}
	if err := os.CopyFS(filepath.Join(j.cfg.Target, name), os.DirFS(staged)); err != nil {
		return fmt.Errorf("copying to target: %w", err)
	}
	return appendCache(j.cfg.CacheFile, name)
}

// convertVideos replaces every .avi below dir with an .mp4. A video that fails
// to convert is kept as is.
func (j *Job) convertVideos(ctx context.Context, dir string) {
	var videos []string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".avi") {
			videos = append(videos, path)
		}
		return nil
	})
	sort.Strings(videos)

	for _, src := range videos {
		dst := strings.TrimSuffix(src, filepath.Ext(src)) + ".mp4"
		if err := j.converter.Convert(ctx, src, dst); err != nil {
			log.ErrorErr(log.CatBackup, "Error converting video", err, "video", filepath.Base(src))
			_ = os.Remove(dst)
			continue
		}
		if err := os.Remove(src); err != nil {
			log.ErrorErr(log.CatBackup, "removing converted video", err, "video", src)
		}
	}
}

func loadCache(path string) (map[string]bool, error) {
	cached := map[string]bool{}
	f, err := os.Open(path) //nolint:gosec // configured cache file
	if errors.Is(err, os.ErrNotExist) {
		return cached, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading backup cache: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Split(bufio.ScanWords)
	for sc.Scan() {
		cached[sc.Text()] = true
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading backup cache: %w", err)
	}
	return cached, nil
}

func appendCache(path, name string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // configured cache file
	if err != nil {
		return fmt.Errorf("updating backup cache: %w", err)
	}
	if _, err := f.WriteString(name + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("updating backup cache: %w", err)
	}
	return f.Close()
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}
