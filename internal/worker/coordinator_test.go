package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// funcWorker adapts a function to the Worker interface.
type funcWorker struct {
	name string
	run  func(ctx context.Context) error
}

func (w funcWorker) Name() string                  { return w.name }
func (w funcWorker) Run(ctx context.Context) error { return w.run(ctx) }

func untilCancelled(name string) funcWorker {
	return funcWorker{name: name, run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
}

func statusOf(t *testing.T, c *Coordinator, name string) Status {
	t.Helper()
	for _, s := range c.Statuses() {
		if s.Name == name {
			return s.Status
		}
	}
	t.Fatalf("worker %s not found", name)
	return ""
}

func TestCoordinator_StartStop(t *testing.T) {
	c := NewCoordinator(time.Second, untilCancelled("recording"), untilCancelled("temperature"))
	require.Equal(t, StatusPending, statusOf(t, c, "recording"))

	require.NoError(t, c.Start(context.Background()))
	require.True(t, c.Active())
	require.Equal(t, 2, c.Running())

	require.True(t, c.Stop())
	require.False(t, c.Active())
	require.Equal(t, StatusStopped, statusOf(t, c, "recording"))
	require.Equal(t, StatusStopped, statusOf(t, c, "temperature"))
}

func TestCoordinator_StartTwice(t *testing.T) {
	c := NewCoordinator(time.Second, untilCancelled("recording"))
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	require.ErrorIs(t, c.Start(context.Background()), ErrAlreadyStarted)
}

func TestCoordinator_StopIsIdempotent(t *testing.T) {
	c := NewCoordinator(time.Second, untilCancelled("recording"))
	require.NoError(t, c.Start(context.Background()))

	require.True(t, c.Stop())
	require.True(t, c.Stop())
}

func TestCoordinator_StopBeforeStart(t *testing.T) {
	c := NewCoordinator(time.Second, untilCancelled("recording"))
	require.True(t, c.Stop())
	require.Equal(t, StatusPending, statusOf(t, c, "recording"))
}

func TestCoordinator_StragglerIsAbandoned(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	stubborn := funcWorker{name: "stubborn", run: func(context.Context) error {
		<-release
		return nil
	}}
	c := NewCoordinator(50*time.Millisecond, stubborn, untilCancelled("polite"))
	require.NoError(t, c.Start(context.Background()))

	start := time.Now()
	require.False(t, c.Stop())
	require.Less(t, time.Since(start), time.Second, "stop is bounded by the grace period")

	require.Equal(t, StatusAbandoned, statusOf(t, c, "stubborn"))
	require.Equal(t, StatusStopped, statusOf(t, c, "polite"))
	require.False(t, c.Stop(), "repeated stop reports the first result")
}

func TestCoordinator_FailureIsIsolated(t *testing.T) {
	failing := funcWorker{name: "sensor", run: func(context.Context) error {
		return errors.New("port busy")
	}}
	c := NewCoordinator(time.Second, failing, untilCancelled("recording"))
	require.NoError(t, c.Start(context.Background()))

	require.Eventually(t, func() bool { return statusOf(t, c, "sensor") == StatusFailed }, time.Second, 5*time.Millisecond)
	require.Equal(t, StatusRunning, statusOf(t, c, "recording"))

	require.True(t, c.Stop())
	for _, s := range c.Statuses() {
		if s.Name == "sensor" {
			require.EqualError(t, s.Err, "port busy")
		}
	}
}

func TestCoordinator_PanicIsRecovered(t *testing.T) {
	panicky := funcWorker{name: "panicky", run: func(context.Context) error {
		panic("boom")
	}}
	c := NewCoordinator(time.Second, panicky, untilCancelled("recording"))
	require.NoError(t, c.Start(context.Background()))

	require.Eventually(t, func() bool { return statusOf(t, c, "panicky") == StatusFailed }, time.Second, 5*time.Millisecond)
	require.True(t, c.Stop())
	require.Equal(t, StatusStopped, statusOf(t, c, "recording"))
}

func TestCoordinator_WorkerFinishesOnItsOwn(t *testing.T) {
	var ran atomic.Bool
	short := funcWorker{name: "short", run: func(context.Context) error {
		ran.Store(true)
		return nil
	}}
	c := NewCoordinator(time.Second, short)
	require.NoError(t, c.Start(context.Background()))

	require.Eventually(t, func() bool { return !c.Active() }, time.Second, 5*time.Millisecond)
	require.True(t, ran.Load())
	require.Equal(t, StatusStopped, statusOf(t, c, "short"))
	require.True(t, c.Stop())
}

func TestCoordinator_ParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := NewCoordinator(time.Second, untilCancelled("recording"))
	require.NoError(t, c.Start(ctx))

	cancel()
	require.Eventually(t, func() bool { return !c.Active() }, time.Second, 5*time.Millisecond)
	require.Equal(t, StatusStopped, statusOf(t, c, "recording"))
}

func TestStatus_IsDone(t *testing.T) {
	require.False(t, StatusPending.IsDone())
	require.False(t, StatusRunning.IsDone())
	require.True(t, StatusStopped.IsDone())
	require.True(t, StatusFailed.IsDone())
	require.True(t, StatusAbandoned.IsDone())
}
