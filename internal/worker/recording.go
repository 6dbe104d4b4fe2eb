package worker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/zjrosen/arena/internal/log"
)

// RecordRequest describes one trial's video capture.
type RecordRequest struct {
	Cameras        []string
	OutputDir      string
	Duration       time.Duration
	UsePredictions bool
}

// Recorder captures video for the duration of a request or until ctx is cancelled.
type Recorder interface {
	Record(ctx context.Context, req RecordRequest) error
}

// RecordingWorker records the cameras for one trial.
type RecordingWorker struct {
	recorder Recorder
	req      RecordRequest
	notify   func(string)
}

// NewRecordingWorker creates the recording worker. notify, when set, receives
// "recording started" and "recording ended".
func NewRecordingWorker(recorder Recorder, req RecordRequest, notify func(string)) *RecordingWorker {
	if notify == nil {
		notify = func(string) {}
	}
	return &RecordingWorker{recorder: recorder, req: req, notify: notify}
}

func (w *RecordingWorker) Name() string { return "recording" }

func (w *RecordingWorker) Run(ctx context.Context) error {
	if w.req.OutputDir != "" {
		if err := os.MkdirAll(w.req.OutputDir, 0o755); err != nil {
			return fmt.Errorf("creating videos directory: %w", err)
		}
	}

	w.notify("recording started")
	defer w.notify("recording ended")

	if err := w.recorder.Record(ctx, w.req); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("recording: %w", err)
	}
	return nil
}

// IdleRecorder waits out the recording window without capturing anything.
// Used in debug mode on machines without cameras.
type IdleRecorder struct{}

func (IdleRecorder) Record(ctx context.Context, req RecordRequest) error {
	timer := time.NewTimer(req.Duration)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CommandRecorder runs an external capture program. The program is interrupted
// with SIGINT on cancellation so it can finalise its video files.
type CommandRecorder struct {
	Argv      []string
	WaitDelay time.Duration
}

// Args builds the capture program's command line for req.
func (r *CommandRecorder) Args(req RecordRequest) []string {
	args := append([]string(nil), r.Argv[1:]...)
	args = append(args,
		"--cameras", strings.Join(req.Cameras, ","),
		"--output", req.OutputDir,
		"--record_time", strconv.FormatFloat(req.Duration.Seconds(), 'f', -1, 64),
	)
	if req.UsePredictions {
		args = append(args, "--is_use_predictions")
	}
	return args
}

func (r *CommandRecorder) Record(ctx context.Context, req RecordRequest) error {
	if len(r.Argv) == 0 {
		return fmt.Errorf("no recording command configured")
	}

	out := NewOutputBuffer(50)
	w := &lineWriter{buf: out}

	cmd := exec.CommandContext(ctx, r.Argv[0], r.Args(req)...) //nolint:gosec // argv comes from operator config
	cmd.Stdout = w
	cmd.Stderr = w
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = 5 * time.Second
	}

	log.Debug(log.CatWorker, "Starting recorder", "argv", cmd.Args)
	err := cmd.Run()
	w.Flush()
	if err != nil {
		tail := strings.Join(out.LastN(5), "\n")
		return fmt.Errorf("%s: %w: %s", r.Argv[0], err, tail)
	}
	return nil
}
