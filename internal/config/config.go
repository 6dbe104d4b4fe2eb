// Package config provides configuration types and defaults for arena.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zjrosen/arena/internal/bus"
	"github.com/zjrosen/arena/internal/log"
	"github.com/zjrosen/arena/internal/sensor"
	"github.com/zjrosen/arena/internal/statestore"
	"github.com/zjrosen/arena/internal/touchlog"
	"github.com/zjrosen/arena/internal/tracing"
)

// Backend names.
const (
	StoreRedis  = "redis"
	StoreMemory = "memory"
	BusMQTT     = "mqtt"
	BusLocal    = "local"
)

// Config holds all configuration options for arena.
type Config struct {
	ExperimentsDir string `mapstructure:"experiments_dir" yaml:"experiments_dir"`
	ManagementURL  string `mapstructure:"management_url" yaml:"management_url"`
	// DebugMode replaces the capture program with a recorder that only waits.
	DebugMode bool `mapstructure:"debug_mode" yaml:"debug_mode"`

	Timing    TimingConfig    `mapstructure:"timing" yaml:"timing"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Bus       BusConfig       `mapstructure:"bus" yaml:"bus"`
	Recording RecordingConfig `mapstructure:"recording" yaml:"recording"`
	Sensor    SensorConfig    `mapstructure:"sensor" yaml:"sensor"`
	Display   DisplayConfig   `mapstructure:"display" yaml:"display"`
	TouchLog  TouchLogConfig  `mapstructure:"touch_log" yaml:"touch_log"`
	History   HistoryConfig   `mapstructure:"history" yaml:"history"`
	Tracing   tracing.Config  `mapstructure:"tracing" yaml:"tracing"`
	Backup    BackupConfig    `mapstructure:"backup" yaml:"backup"`
}

// TimingConfig holds the orchestrator's timing knobs.
type TimingConfig struct {
	PollInterval       time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	GracePeriod        time.Duration `mapstructure:"grace_period" yaml:"grace_period"`
	EndExperimentDelay time.Duration `mapstructure:"end_experiment_delay" yaml:"end_experiment_delay"`
	// ExtraTimeRecording is the default pre- and post-roll of every trial.
	ExtraTimeRecording time.Duration `mapstructure:"extra_time_recording" yaml:"extra_time_recording"`
}

// StoreConfig selects the shared state store.
type StoreConfig struct {
	Backend string      `mapstructure:"backend" yaml:"backend"` // "redis" (default) or "memory"
	Redis   RedisConfig `mapstructure:"redis" yaml:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr"`
	Password  string `mapstructure:"password" yaml:"password,omitempty"`
	DB        int    `mapstructure:"db" yaml:"db"`
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix,omitempty"`
}

// BusConfig selects the command bus.
type BusConfig struct {
	Backend       string     `mapstructure:"backend" yaml:"backend"` // "mqtt" (default) or "local"
	MQTT          MQTTConfig `mapstructure:"mqtt" yaml:"mqtt"`
	CommandPrefix string     `mapstructure:"command_prefix" yaml:"command_prefix"`
	Topics        bus.Topics `mapstructure:"topics" yaml:"topics"`
}

// MQTTConfig holds MQTT broker settings.
type MQTTConfig struct {
	Broker         string        `mapstructure:"broker" yaml:"broker"`
	ClientID       string        `mapstructure:"client_id" yaml:"client_id,omitempty"`
	QoS            int           `mapstructure:"qos" yaml:"qos"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout" yaml:"publish_timeout"`
}

// RecordingConfig configures the external capture program.
type RecordingConfig struct {
	Command []string `mapstructure:"command" yaml:"command"`
}

// SensorConfig configures the serial temperature sensor. An empty port
// disables the temperature worker.
type SensorConfig struct {
	Port        string        `mapstructure:"port" yaml:"port"`
	BaudRate    int           `mapstructure:"baud_rate" yaml:"baud_rate"`
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	Interval    time.Duration `mapstructure:"interval" yaml:"interval"`
}

// DisplayConfig holds the argv that power the arena screen on and off.
type DisplayConfig struct {
	OnCommand  []string `mapstructure:"on_command" yaml:"on_command"`
	OffCommand []string `mapstructure:"off_command" yaml:"off_command"`
}

// TouchLogConfig names the front end's per-trial touch log.
type TouchLogConfig struct {
	FileName string `mapstructure:"file_name" yaml:"file_name"`
}

// HistoryConfig controls the SQLite run history.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// BackupConfig configures `arena backup`.
type BackupConfig struct {
	Target        string `mapstructure:"target" yaml:"target"`
	CacheFile     string `mapstructure:"cache_file" yaml:"cache_file"`
	ConvertVideos bool   `mapstructure:"convert_videos" yaml:"convert_videos"`
}

// StoreOptions converts the Redis settings for statestore.NewRedis.
func (s StoreConfig) StoreOptions() statestore.RedisConfig {
	return statestore.RedisConfig{
		Addr:      s.Redis.Addr,
		Password:  s.Redis.Password,
		DB:        s.Redis.DB,
		KeyPrefix: s.Redis.KeyPrefix,
	}
}

// BusOptions converts the MQTT settings for bus.NewMQTT.
func (b BusConfig) BusOptions() bus.MQTTConfig {
	return bus.MQTTConfig{
		Broker:         b.MQTT.Broker,
		ClientID:       b.MQTT.ClientID,
		QoS:            byte(b.MQTT.QoS), //nolint:gosec // validated to 0..2
		ConnectTimeout: b.MQTT.ConnectTimeout,
		PublishTimeout: b.MQTT.PublishTimeout,
		CommandPrefix:  b.CommandPrefix,
	}
}

// SerialOptions converts the sensor settings for sensor.OpenSerial.
func (s SensorConfig) SerialOptions() sensor.SerialConfig {
	return sensor.SerialConfig{
		Port:        s.Port,
		BaudRate:    s.BaudRate,
		ReadTimeout: s.ReadTimeout,
	}
}

// DefaultConfigDir returns ~/.config/arena or empty string if home dir unavailable.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "arena")
}

// DefaultHistoryPath returns the default location of the run history database.
func DefaultHistoryPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "history.db")
}

// DefaultTracesFilePath returns the default path for trace file export.
func DefaultTracesFilePath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "traces", "traces.jsonl")
}

// Defaults returns a Config with the values used on the rig.
func Defaults() Config {
	tr := tracing.DefaultConfig()
	tr.FilePath = DefaultTracesFilePath()

	return Config{
		ExperimentsDir: "/data/Pogona_Pursuit/Arena/experiments",
		ManagementURL:  "http://localhost:5000",
		Timing: TimingConfig{
			PollInterval:       2 * time.Second,
			GracePeriod:        3 * time.Second,
			EndExperimentDelay: 3 * time.Second,
			ExtraTimeRecording: 5 * time.Second,
		},
		Store: StoreConfig{
			Backend: StoreRedis,
			Redis:   RedisConfig{Addr: "localhost:6379"},
		},
		Bus: BusConfig{
			Backend: BusMQTT,
			MQTT: MQTTConfig{
				Broker:         "tcp://localhost:1883",
				QoS:            0,
				ConnectTimeout: 10 * time.Second,
				PublishTimeout: 5 * time.Second,
			},
			CommandPrefix: bus.DefaultCommandPrefix,
			Topics:        bus.DefaultTopics(),
		},
		Recording: RecordingConfig{
			Command: []string{"python", "record_cameras.py"},
		},
		Sensor: SensorConfig{
			BaudRate:    9600,
			ReadTimeout: time.Second,
			Interval:    5 * time.Second,
		},
		TouchLog: TouchLogConfig{FileName: touchlog.DefaultFileName},
		History: HistoryConfig{
			Enabled: true,
			Path:    DefaultHistoryPath(),
		},
		Tracing: tr,
		Backup: BackupConfig{
			CacheFile:     ".backup_cache",
			ConvertVideos: true,
		},
	}
}

// Validate checks the configuration for errors before anything runs.
func Validate(cfg Config) error {
	if cfg.ExperimentsDir == "" {
		return fmt.Errorf("experiments_dir is required")
	}
	if err := ValidateTiming(cfg.Timing); err != nil {
		return err
	}
	if err := ValidateStore(cfg.Store); err != nil {
		return err
	}
	if err := ValidateBus(cfg.Bus); err != nil {
		return err
	}
	if err := ValidateSensor(cfg.Sensor); err != nil {
		return err
	}
	if cfg.History.Enabled && cfg.History.Path == "" {
		return fmt.Errorf("history.path is required when history is enabled")
	}
	if err := ValidateTracing(cfg.Tracing); err != nil {
		return err
	}
	return nil
}

// ValidateTiming checks the orchestrator timing.
func ValidateTiming(t TimingConfig) error {
	if t.PollInterval <= 0 {
		return fmt.Errorf("timing.poll_interval must be positive, got %s", t.PollInterval)
	}
	if t.GracePeriod <= 0 {
		return fmt.Errorf("timing.grace_period must be positive, got %s", t.GracePeriod)
	}
	if t.EndExperimentDelay < 0 {
		return fmt.Errorf("timing.end_experiment_delay must not be negative, got %s", t.EndExperimentDelay)
	}
	if t.ExtraTimeRecording < 0 {
		return fmt.Errorf("timing.extra_time_recording must not be negative, got %s", t.ExtraTimeRecording)
	}
	return nil
}

// ValidateStore checks the state store backend.
func ValidateStore(s StoreConfig) error {
	switch s.Backend {
	case StoreMemory:
	case StoreRedis, "":
		if s.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("store.backend must be %q or %q, got %q", StoreRedis, StoreMemory, s.Backend)
	}
	return nil
}

// ValidateBus checks the command bus backend.
func ValidateBus(b BusConfig) error {
	switch b.Backend {
	case BusLocal:
	case BusMQTT, "":
		if b.MQTT.Broker == "" {
			return fmt.Errorf("bus.mqtt.broker is required for the mqtt backend")
		}
		if b.MQTT.QoS < 0 || b.MQTT.QoS > 2 {
			return fmt.Errorf("bus.mqtt.qos must be 0, 1 or 2, got %d", b.MQTT.QoS)
		}
	default:
		return fmt.Errorf("bus.backend must be %q or %q, got %q", BusMQTT, BusLocal, b.Backend)
	}
	if b.Topics.ExperimentLog == "" || b.Topics.Reward == "" || b.Topics.Temperature == "" {
		return fmt.Errorf("bus.topics must name experiment_log, reward and temperature")
	}
	return nil
}

// ValidateSensor checks the serial sensor settings.
func ValidateSensor(s SensorConfig) error {
	if s.Port == "" {
		return nil
	}
	if s.BaudRate <= 0 {
		return fmt.Errorf("sensor.baud_rate must be positive, got %d", s.BaudRate)
	}
	if s.Interval <= 0 {
		return fmt.Errorf("sensor.interval must be positive, got %s", s.Interval)
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tc tracing.Config) error {
	if tc.SampleRate < 0.0 || tc.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tc.SampleRate)
	}

	if tc.Exporter != "" {
		switch tc.Exporter {
		case tracing.ExporterNone, tracing.ExporterFile, tracing.ExporterStdout, tracing.ExporterOTLP:
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tc.Exporter)
		}
	}

	// Only validate path requirements when tracing is enabled
	if tc.Enabled {
		if tc.Exporter == tracing.ExporterFile && tc.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if tc.Exporter == tracing.ExporterOTLP && tc.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}

	return nil
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# Arena Configuration

# Root directory for experiment output; each run gets <experiments_dir>/<name>_<timestamp>
experiments_dir: /data/Pogona_Pursuit/Arena/experiments

# Management server; media files are served below <management_url>/media
management_url: http://localhost:5000

# Simulate recording instead of running the capture program
debug_mode: false

timing:
  poll_interval: 2s          # How often waits check for abort / early end
  grace_period: 3s           # How long stopping workers may take
  end_experiment_delay: 3s   # Pause before end_experiment is published
  extra_time_recording: 5s   # Default pre- and post-roll per trial

# Shared state store: redis (default) or memory (single process only)
store:
  backend: redis
  redis:
    addr: localhost:6379
    db: 0
    # password: secret
    # key_prefix: arena1/

# Command bus: mqtt (default) or local (single process only)
bus:
  backend: mqtt
  mqtt:
    broker: tcp://localhost:1883
    qos: 0
    connect_timeout: 10s
    publish_timeout: 5s
  command_prefix: cmd/visual_app
  topics:
    experiment_log: event/log/experiment
    reward: event/command/reward
    temperature: log/metric/temperature

# Capture program; receives --cameras --output --record_time [--is_use_predictions]
recording:
  command: [python, record_cameras.py]

# Serial temperature sensor (leave port empty to disable)
sensor:
  # port: /dev/ttyACM0
  baud_rate: 9600
  read_timeout: 1s
  interval: 5s

# Commands that power the arena screen (empty = do nothing)
# display:
#   on_command: [xset, -display, ":0", dpms, force, "on"]
#   off_command: [xset, -display, ":0", dpms, force, "off"]

touch_log:
  file_name: screen_touches.csv

# SQLite record of every run and trial (arena history)
history:
  enabled: true
  # path: ~/.config/arena/history.db

# Distributed tracing of runs, trials and waits
# tracing:
#   enabled: false                 # Enable/disable tracing (default: false)
#   exporter: file                 # Export backend: none, file, stdout, otlp (default: file)
#   file_path: ~/.config/arena/traces/traces.jsonl
#   otlp_endpoint: localhost:4317
#   sample_rate: 1.0

# arena backup
backup:
  # target: /mnt/nas/experiments
  cache_file: .backup_cache
  convert_videos: true
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
