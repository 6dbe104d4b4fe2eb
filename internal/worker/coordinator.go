// Package worker runs the per-trial background tasks (camera recording,
// temperature sampling) alongside the experiment timeline and stops them
// cooperatively when the trial ends.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/zjrosen/arena/internal/log"
)

// ErrAlreadyStarted is returned when Start is called twice on one Coordinator.
var ErrAlreadyStarted = errors.New("coordinator already started")

// DefaultGracePeriod bounds how long Stop waits for workers to return.
const DefaultGracePeriod = 3 * time.Second

// Worker is a long-running task that must return promptly once ctx is cancelled.
type Worker interface {
	Name() string
	Run(ctx context.Context) error
}

// Status is the lifecycle state of one worker.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusStopped   Status = "stopped"
	StatusFailed    Status = "failed"
	StatusAbandoned Status = "abandoned"
)

// IsDone reports whether the status is terminal.
func (s Status) IsDone() bool {
	return s == StatusStopped || s == StatusFailed || s == StatusAbandoned
}

// WorkerStatus is a snapshot of one worker.
type WorkerStatus struct {
	Name   string
	Status Status
	Err    error
}

// Coordinator owns the workers of a single trial. It is not reusable: create
// a new one for every trial.
type Coordinator struct {
	workers []Worker
	grace   time.Duration

	mu       sync.Mutex
	statuses []WorkerStatus
	started  bool
	stopped  bool
	clean    bool
	cancel   context.CancelFunc

	wg   sync.WaitGroup
	done chan struct{}
}

// NewCoordinator creates a coordinator for workers. A non-positive grace
// uses DefaultGracePeriod.
func NewCoordinator(grace time.Duration, workers ...Worker) *Coordinator {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	statuses := make([]WorkerStatus, len(workers))
	for i, w := range workers {
		statuses[i] = WorkerStatus{Name: w.Name(), Status: StatusPending}
	}
	return &Coordinator{
		workers:  workers,
		grace:    grace,
		statuses: statuses,
		done:     make(chan struct{}),
	}
}

// Start launches every worker in its own goroutine. The stop signal exists
// before any worker runs, so a worker can never observe a missing signal.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return ErrAlreadyStarted
	}
	c.started = true

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	for i := range c.statuses {
		c.statuses[i].Status = StatusRunning
	}

	c.wg.Add(len(c.workers))
	for i, w := range c.workers {
		go c.run(runCtx, i, w)
	}
	go func() {
		c.wg.Wait()
		close(c.done)
	}()

	log.Debug(log.CatWorker, "Workers started", "count", len(c.workers))
	return nil
}

func (c *Coordinator) run(ctx context.Context, i int, w Worker) {
	defer c.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Error(log.CatWorker, "Worker panic recovered",
				"worker", w.Name(),
				"panic", r,
				"stack", string(debug.Stack()))
			c.finish(i, StatusFailed, fmt.Errorf("worker %s panicked: %v", w.Name(), r))
		}
	}()

	err := w.Run(ctx)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		c.finish(i, StatusStopped, nil)
	default:
		log.ErrorErr(log.CatWorker, "Worker failed", err, "worker", w.Name())
		c.finish(i, StatusFailed, err)
	}
}

// finish records a terminal status. Only running workers transition, so a
// worker marked abandoned stays abandoned when it eventually returns.
func (c *Coordinator) finish(i int, status Status, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.statuses[i].Status != StatusRunning {
		return
	}
	c.statuses[i].Status = status
	c.statuses[i].Err = err
}

// Stop signals every worker and waits up to the grace period for them to
// return. Workers still running afterwards are marked abandoned; their
// goroutines are left to exit on their own. Stop reports whether every worker
// returned in time and is idempotent.
func (c *Coordinator) Stop() bool {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return true
	}
	if c.stopped {
		clean := c.clean
		c.mu.Unlock()
		return clean
	}
	c.stopped = true
	c.cancel()
	c.mu.Unlock()

	timer := time.NewTimer(c.grace)
	defer timer.Stop()

	clean := true
	select {
	case <-c.done:
	case <-timer.C:
		clean = false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !clean {
		for i := range c.statuses {
			if c.statuses[i].Status == StatusRunning {
				c.statuses[i].Status = StatusAbandoned
				log.Warn(log.CatWorker, "Worker did not stop within grace period",
					"worker", c.statuses[i].Name,
					"grace", c.grace)
			}
		}
	}
	c.clean = clean
	return clean
}

// Active reports whether any worker is still running.
func (c *Coordinator) Active() bool {
	return c.Running() > 0
}

// Running counts the workers that have not returned.
func (c *Coordinator) Running() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, s := range c.statuses {
		if s.Status == StatusRunning {
			n++
		}
	}
	return n
}

// Statuses returns a snapshot in worker order.
func (c *Coordinator) Statuses() []WorkerStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]WorkerStatus(nil), c.statuses...)
}
