package worker

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/zjrosen/arena/internal/log"
	"github.com/zjrosen/arena/internal/sensor"
)

// TemperaturePattern extracts the reading from the sensor's output line.
var TemperaturePattern = regexp.MustCompile(`Temperature is: ([\d.]+)`)

// DefaultTemperatureInterval is the pause between two sensor reads.
const DefaultTemperatureInterval = 5 * time.Second

// TemperatureWorker samples the arena temperature and publishes each reading.
type TemperatureWorker struct {
	open     func() (sensor.LineReader, error)
	publish  func(ctx context.Context, value string) error
	interval time.Duration
}

// NewTemperatureWorker creates the worker. open is called once per run;
// publish receives the matched value.
func NewTemperatureWorker(open func() (sensor.LineReader, error), publish func(ctx context.Context, value string) error, interval time.Duration) *TemperatureWorker {
	if interval <= 0 {
		interval = DefaultTemperatureInterval
	}
	return &TemperatureWorker{open: open, publish: publish, interval: interval}
}

func (w *TemperatureWorker) Name() string { return "temperature" }

// Run reads until ctx is cancelled. Read and publish failures are logged and
// the loop carries on.
func (w *TemperatureWorker) Run(ctx context.Context) error {
	reader, err := w.open()
	if err != nil {
		return fmt.Errorf("opening temperature sensor: %w", err)
	}
	defer reader.Close()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.readOnce(ctx, reader)

		timer := time.NewTimer(w.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (w *TemperatureWorker) readOnce(ctx context.Context, reader sensor.LineReader) {
	line, err := reader.ReadLine()
	if err != nil {
		log.ErrorErr(log.CatSensor, "Error in read_temp", err)
		return
	}
	m := TemperaturePattern.FindStringSubmatch(line)
	if m == nil {
		return
	}
	if err := w.publish(ctx, m[1]); err != nil {
		log.ErrorErr(log.CatSensor, "publishing temperature", err, "value", m[1])
	}
}
