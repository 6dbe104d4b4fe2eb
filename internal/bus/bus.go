// Package bus publishes named commands to the front end and events to
// other listeners of the rig. Delivery is fire-and-forget: nothing waits
// for an acknowledgement.
package bus

import (
	"context"
	"strings"
)

// Command names understood by the front end and the arena controller.
const (
	CmdLEDLight      = "led_light"
	CmdInitBugs      = "init_bugs"
	CmdInitMedia     = "init_media"
	CmdHideBugs      = "hide_bugs"
	CmdHideMedia     = "hide_media"
	CmdEndAppWait    = "end_app_wait"
	CmdEndExperiment = "end_experiment"
)

// LED payloads.
const (
	LEDOn  = "on"
	LEDOff = "off"
)

// DefaultCommandPrefix is prepended to every command name to form its topic.
const DefaultCommandPrefix = "cmd/visual_app"

// Topics names the event topics the orchestrator publishes on.
type Topics struct {
	ExperimentLog string `mapstructure:"experiment_log" yaml:"experiment_log"`
	Reward        string `mapstructure:"reward" yaml:"reward"`
	Temperature   string `mapstructure:"temperature" yaml:"temperature"`
}

// DefaultTopics returns the topics used by the rest of the rig.
func DefaultTopics() Topics {
	return Topics{
		ExperimentLog: "event/log/experiment",
		Reward:        "event/command/reward",
		Temperature:   "log/metric/temperature",
	}
}

// Bus is a fire-and-forget publisher of commands and events.
type Bus interface {
	PublishCommand(ctx context.Context, name, payload string) error
	PublishEvent(ctx context.Context, topic, payload string) error
	Close() error
}

// CommandTopic joins prefix and command name.
func CommandTopic(prefix, name string) string {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
