package orchestrator

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/arena/internal/bus"
	"github.com/zjrosen/arena/internal/experiment"
	"github.com/zjrosen/arena/internal/statestore"
)

var startedAt = time.Date(2021, 3, 14, 9, 26, 53, 0, time.UTC)

type published struct {
	name    string
	payload string
}

// recordingBus records every publish in order.
type recordingBus struct {
	mu       sync.Mutex
	commands []published
	events   []published
}

func (b *recordingBus) PublishCommand(_ context.Context, name, payload string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.commands = append(b.commands, published{name, payload})
	return nil
}

func (b *recordingBus) PublishEvent(_ context.Context, topic, payload string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, published{topic, payload})
	return nil
}

func (b *recordingBus) Close() error { return nil }

func (b *recordingBus) commandNames() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, len(b.commands))
	for i, c := range b.commands {
		names[i] = c.name
		if c.name == bus.CmdLEDLight {
			names[i] += ":" + c.payload
		}
	}
	return names
}

func (b *recordingBus) command(name string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.commands {
		if c.name == name {
			return c.payload, true
		}
	}
	return "", false
}

func (b *recordingBus) eventsOn(topic string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, e := range b.events {
		if e.name == topic {
			out = append(out, e.payload)
		}
	}
	return out
}

// syncBuffer is an output writer safe to read while a run is in progress.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

type fixture struct {
	store *statestore.Memory
	bus   *recordingBus
	out   *syncBuffer
	dir   string
}

// testConfig is two short bugs trials.
func testConfig(t *testing.T, mutate func(*experiment.Params)) experiment.Config {
	t.Helper()
	p := experiment.DefaultParams()
	p.Name = "pogona"
	p.AnimalID = "PV42"
	p.Cameras = "left"
	p.BugTypes = "cockroach"
	p.NumTrials = 2
	p.TrialDuration = 0.06
	p.ITI = 0.03
	p.ExtraTimeRecording = 0.02
	if mutate != nil {
		mutate(&p)
	}
	cfg, err := experiment.New(p, startedAt)
	require.NoError(t, err)
	return cfg
}

func newTestOrchestrator(t *testing.T, cfg experiment.Config, mutate func(*Deps, *Options)) (*Orchestrator, *fixture) {
	t.Helper()
	f := &fixture{
		store: statestore.NewMemory(),
		bus:   &recordingBus{},
		out:   &syncBuffer{},
		dir:   t.TempDir(),
	}
	deps := Deps{Store: f.store, Bus: f.bus, Output: f.out}
	opts := Options{
		ExperimentsDir: f.dir,
		PollInterval:   5 * time.Millisecond,
		GracePeriod:    200 * time.Millisecond,
		Topics:         bus.DefaultTopics(),
		ManagementURL:  "http://mgmt:5000",
	}
	if mutate != nil {
		mutate(&deps, &opts)
	}
	o, err := New(cfg, deps, opts)
	require.NoError(t, err)
	return o, f
}

// watch calls step every millisecond until it returns true or the test ends.
func watch(t *testing.T, step func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	t.Cleanup(func() {
		cancel()
		<-done
	})
	go func() {
		defer close(done)
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if step() {
					return
				}
			}
		}
	}()
}

// when runs action once, as soon as cond holds.
func when(t *testing.T, cond func() bool, action func()) {
	t.Helper()
	watch(t, func() bool {
		if !cond() {
			return false
		}
		action()
		return true
	})
}

func present(store statestore.Store, key string) bool {
	_, ok, _ := store.Get(context.Background(), key)
	return ok
}

func requireKeysAbsent(t *testing.T, store statestore.Store, keys ...string) {
	t.Helper()
	for _, key := range keys {
		_, ok, err := store.Get(context.Background(), key)
		require.NoError(t, err)
		require.False(t, ok, "%s should be deleted", key)
	}
}

var allKeys = []string{
	statestore.KeyExperimentName,
	statestore.KeyExperimentPath,
	statestore.KeyAlwaysReward,
	statestore.KeyTrialOn,
	statestore.KeyTrialPath,
	statestore.KeyAppOn,
}
