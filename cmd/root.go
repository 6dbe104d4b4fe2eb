package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/arena/internal/config"
	"github.com/zjrosen/arena/internal/log"
)

var (
	version   = "dev"
	cfgFile   string
	debugFlag bool
	cfg       config.Config
	cfgErr    error

	logCleanup func()
)

var rootCmd = &cobra.Command{
	Use:   "arena",
	Short: "Run behavioral experiments on the arena rig",
	Long: `arena drives behavioral experiments on the arena rig: it sequences trials,
starts camera recording and sensor polling, commands the touch-screen front end
over MQTT and coordinates with the rest of the rig through Redis.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) {
		if logCleanup != nil {
			logCleanup()
		}
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ~/.config/arena/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false,
		"write debug logs (also enabled by ARENA_DEBUG)")
}

func initConfig() {
	v := viper.GetViper()
	setDefaults(v, config.Defaults())
	bindEnv(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .arena/config.yaml (current directory)
		// 2. ~/.config/arena/config.yaml (user config)
		if _, err := os.Stat(".arena/config.yaml"); err == nil {
			v.SetConfigFile(".arena/config.yaml")
		} else {
			v.AddConfigPath(config.DefaultConfigDir())
			v.SetConfigName("config")
			v.SetConfigType("yaml")
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			cfgErr = fmt.Errorf("reading config: %w", err)
			return
		}
		// No config file found anywhere - create the default one
		if dir := config.DefaultConfigDir(); dir != "" {
			defaultPath := filepath.Join(dir, "config.yaml")
			if writeErr := config.WriteDefaultConfig(defaultPath); writeErr == nil {
				v.SetConfigFile(defaultPath)
				_ = v.ReadInConfig()
			}
		}
	}

	cfg = config.Defaults()
	if err := v.Unmarshal(&cfg); err != nil {
		cfgErr = fmt.Errorf("decoding config: %w", err)
	}
}

// bindEnv maps ARENA_STORE_BACKEND and friends onto config keys.
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("ARENA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// setDefaults registers every key so environment variables can override
// keys that are absent from the config file.
func setDefaults(v *viper.Viper, d config.Config) {
	v.SetDefault("experiments_dir", d.ExperimentsDir)
	v.SetDefault("management_url", d.ManagementURL)
	v.SetDefault("debug_mode", d.DebugMode)

	v.SetDefault("timing.poll_interval", d.Timing.PollInterval)
	v.SetDefault("timing.grace_period", d.Timing.GracePeriod)
	v.SetDefault("timing.end_experiment_delay", d.Timing.EndExperimentDelay)
	v.SetDefault("timing.extra_time_recording", d.Timing.ExtraTimeRecording)

	v.SetDefault("store.backend", d.Store.Backend)
	v.SetDefault("store.redis.addr", d.Store.Redis.Addr)
	v.SetDefault("store.redis.password", d.Store.Redis.Password)
	v.SetDefault("store.redis.db", d.Store.Redis.DB)
	v.SetDefault("store.redis.key_prefix", d.Store.Redis.KeyPrefix)

	v.SetDefault("bus.backend", d.Bus.Backend)
	v.SetDefault("bus.mqtt.broker", d.Bus.MQTT.Broker)
	v.SetDefault("bus.mqtt.client_id", d.Bus.MQTT.ClientID)
	v.SetDefault("bus.mqtt.qos", d.Bus.MQTT.QoS)
	v.SetDefault("bus.mqtt.connect_timeout", d.Bus.MQTT.ConnectTimeout)
	v.SetDefault("bus.mqtt.publish_timeout", d.Bus.MQTT.PublishTimeout)
	v.SetDefault("bus.command_prefix", d.Bus.CommandPrefix)
	v.SetDefault("bus.topics.experiment_log", d.Bus.Topics.ExperimentLog)
	v.SetDefault("bus.topics.reward", d.Bus.Topics.Reward)
	v.SetDefault("bus.topics.temperature", d.Bus.Topics.Temperature)

	v.SetDefault("recording.command", d.Recording.Command)

	v.SetDefault("sensor.port", d.Sensor.Port)
	v.SetDefault("sensor.baud_rate", d.Sensor.BaudRate)
	v.SetDefault("sensor.read_timeout", d.Sensor.ReadTimeout)
	v.SetDefault("sensor.interval", d.Sensor.Interval)

	v.SetDefault("display.on_command", d.Display.OnCommand)
	v.SetDefault("display.off_command", d.Display.OffCommand)

	v.SetDefault("touch_log.file_name", d.TouchLog.FileName)

	v.SetDefault("history.enabled", d.History.Enabled)
	v.SetDefault("history.path", d.History.Path)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)

	v.SetDefault("backup.target", d.Backup.Target)
	v.SetDefault("backup.cache_file", d.Backup.CacheFile)
	v.SetDefault("backup.convert_videos", d.Backup.ConvertVideos)
}

// setup initializes logging and validates the loaded configuration.
func setup(cmd *cobra.Command, _ []string) error {
	if debugFlag || os.Getenv("ARENA_DEBUG") != "" {
		logPath := os.Getenv("ARENA_LOG")
		if logPath == "" {
			logPath = "arena-debug.log"
		}
		cleanup, err := log.Init(logPath)
		if err != nil {
			return fmt.Errorf("initializing debug log: %w", err)
		}
		logCleanup = cleanup
		if lvl := os.Getenv("ARENA_LOG_LEVEL"); lvl != "" {
			log.SetMinLevel(log.ParseLevel(lvl))
		}
		log.Info(log.CatConfig, "arena starting", "command", cmd.Name(), "config", viper.ConfigFileUsed())
	}

	if cfgErr != nil {
		return cfgErr
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
