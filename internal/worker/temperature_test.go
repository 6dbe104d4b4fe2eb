package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/arena/internal/sensor"
)

type scriptedReader struct {
	mu     sync.Mutex
	lines  []string
	errs   []error
	closed bool
}

func (r *scriptedReader) ReadLine() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.lines) == 0 {
		return "", nil
	}
	line, err := r.lines[0], r.errs[0]
	r.lines, r.errs = r.lines[1:], r.errs[1:]
	return line, err
}

func (r *scriptedReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

type recordedValues struct {
	mu     sync.Mutex
	values []string
}

func (v *recordedValues) publish(_ context.Context, value string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.values = append(v.values, value)
	return nil
}

func (v *recordedValues) get() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.values...)
}

func TestTemperatureWorker_PublishesMatches(t *testing.T) {
	reader := &scriptedReader{
		lines: []string{"Temperature is: 27.5", "garbage", "", "Temperature is: 30"},
		errs:  []error{nil, nil, errors.New("read failed"), nil},
	}
	var got recordedValues

	w := NewTemperatureWorker(func() (sensor.LineReader, error) { return reader, nil }, got.publish, time.Millisecond)
	require.Equal(t, "temperature", w.Name())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return len(got.get()) == 2 }, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"27.5", "30"}, got.get())

	cancel()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
	reader.mu.Lock()
	defer reader.mu.Unlock()
	require.True(t, reader.closed)
}

func TestTemperatureWorker_StopsDuringInterval(t *testing.T) {
	reader := &scriptedReader{}
	var got recordedValues
	w := NewTemperatureWorker(func() (sensor.LineReader, error) { return reader, nil }, got.publish, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := w.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), time.Second)
}

func TestTemperatureWorker_OpenFailure(t *testing.T) {
	w := NewTemperatureWorker(func() (sensor.LineReader, error) {
		return nil, errors.New("no such port")
	}, func(context.Context, string) error { return nil }, time.Millisecond)

	err := w.Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "no such port")
}

func TestTemperaturePattern(t *testing.T) {
	m := TemperaturePattern.FindStringSubmatch("DHT: Temperature is: 26.40 C")
	require.Equal(t, "26.40", m[1])
	require.Nil(t, TemperaturePattern.FindStringSubmatch("Humidity is: 40"))
}
