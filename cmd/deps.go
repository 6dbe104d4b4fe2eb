package cmd

import (
	"context"
	"fmt"

	"github.com/zjrosen/arena/internal/bus"
	"github.com/zjrosen/arena/internal/config"
	"github.com/zjrosen/arena/internal/history"
	"github.com/zjrosen/arena/internal/log"
	"github.com/zjrosen/arena/internal/orchestrator"
	"github.com/zjrosen/arena/internal/sensor"
	"github.com/zjrosen/arena/internal/statestore"
	"github.com/zjrosen/arena/internal/worker"
)

// openStore connects the configured shared state store.
func openStore(ctx context.Context, c config.Config) (statestore.Store, error) {
	if c.Store.Backend == config.StoreMemory {
		log.Warn(log.CatStore, "using in-process store; other rig processes will not see sentinels")
		return statestore.NewMemory(), nil
	}
	store, err := statestore.NewRedis(ctx, c.Store.StoreOptions())
	if err != nil {
		return nil, fmt.Errorf("connecting to redis at %s: %w", c.Store.Redis.Addr, err)
	}
	return store, nil
}

// openBus connects the configured command bus.
func openBus(c config.Config) (bus.Bus, error) {
	if c.Bus.Backend == config.BusLocal {
		return bus.NewLocal(nil, c.Bus.CommandPrefix), nil
	}
	b, err := bus.NewMQTT(c.Bus.BusOptions())
	if err != nil {
		return nil, fmt.Errorf("connecting to mqtt broker %s: %w", c.Bus.MQTT.Broker, err)
	}
	return b, nil
}

// openHistory opens the run history, or returns nil when it is disabled.
func openHistory(c config.Config) (*history.DB, error) {
	if !c.History.Enabled {
		return nil, nil
	}
	db, err := history.NewDB(c.History.Path)
	if err != nil {
		return nil, fmt.Errorf("opening run history: %w", err)
	}
	return db, nil
}

// workerFactory builds the per-trial workers: camera recording always, and
// temperature polling when a sensor port is configured.
func workerFactory(c config.Config, b bus.Bus) orchestrator.WorkerFactory {
	var recorder worker.Recorder = &worker.CommandRecorder{Argv: c.Recording.Command}
	if c.DebugMode {
		recorder = worker.IdleRecorder{}
	}

	return func(info orchestrator.TrialInfo) []worker.Worker {
		workers := []worker.Worker{
			worker.NewRecordingWorker(recorder, worker.RecordRequest{
				Cameras:        info.Config.Cameras,
				OutputDir:      info.VideosPath,
				Duration:       info.Duration,
				UsePredictions: info.Config.IsUsePredictions,
			}, info.Log),
		}

		if c.Sensor.Port != "" {
			serial := c.Sensor.SerialOptions()
			topic := c.Bus.Topics.Temperature
			workers = append(workers, worker.NewTemperatureWorker(
				func() (sensor.LineReader, error) { return sensor.OpenSerial(serial) },
				func(ctx context.Context, value string) error { return b.PublishEvent(ctx, topic, value) },
				c.Sensor.Interval,
			))
		}
		return workers
	}
}
