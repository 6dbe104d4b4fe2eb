// Package display turns the arena's touch screen on and off around each trial.
package display

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/zjrosen/arena/internal/log"
)

// Display powers the stimulus screen.
type Display interface {
	On(ctx context.Context) error
	Off(ctx context.Context) error
}

// Noop ignores every request; used when no display commands are configured.
type Noop struct{}

func (Noop) On(context.Context) error  { return nil }
func (Noop) Off(context.Context) error { return nil }

// Command runs an external program (xset, vcgencmd, ddcutil...) for each transition.
type Command struct {
	on  []string
	off []string
}

// NewCommand returns a Display running onArgv and offArgv. If both are empty
// it returns Noop.
func NewCommand(onArgv, offArgv []string) Display {
	if len(onArgv) == 0 && len(offArgv) == 0 {
		return Noop{}
	}
	return &Command{on: onArgv, off: offArgv}
}

func (c *Command) On(ctx context.Context) error {
	return run(ctx, "on", c.on)
}

func (c *Command) Off(ctx context.Context) error {
	return run(ctx, "off", c.off)
}

func run(ctx context.Context, state string, argv []string) error {
	if len(argv) == 0 {
		return nil
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) //nolint:gosec // argv comes from operator config
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("turning display %s: %w: %s", state, err, strings.TrimSpace(string(out)))
	}
	log.Debug(log.CatOrch, "display switched", "state", state)
	return nil
}
