package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/zjrosen/arena/internal/config"
	"github.com/zjrosen/arena/internal/display"
	"github.com/zjrosen/arena/internal/experiment"
	"github.com/zjrosen/arena/internal/log"
	"github.com/zjrosen/arena/internal/orchestrator"
	"github.com/zjrosen/arena/internal/touchlog"
	"github.com/zjrosen/arena/internal/tracing"
)

var (
	runFile       string
	runFlagParams = experiment.DefaultParams()
	runParamFlags map[string]func(*experiment.Params)
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an experiment",
	Long: `Run an experiment of one or more trials.

Parameters come from flags, from an experiment file (--file), or both; flags
win over the file. The run can be stopped from anywhere on the rig with
'arena abort', and the current stimulus ended early with 'arena skip'.

Examples:
  arena run --name pogona --animal_id PV42 --cameras left,right \
    --bug_types cockroach --num_trials 5 --trial_duration 60 --iti 30

  arena run --file experiments/media.yaml --num_trials 2`,
	Args: cobra.NoArgs,
	RunE: runExperiment,
}

func init() {
	runParamFlags = bindParamFlags(runCmd.Flags(), &runFlagParams)
	runCmd.Flags().StringVarP(&runFile, "file", "f", "", "read experiment parameters from a YAML file")
	rootCmd.AddCommand(runCmd)
}

// bindParamFlags registers one flag per experiment parameter, named as in the
// experiment file. The returned map copies a flag's value into a Params.
func bindParamFlags(fs *pflag.FlagSet, p *experiment.Params) map[string]func(*experiment.Params) {
	fs.StringVar(&p.Name, "name", p.Name, "experiment name (a timestamp is appended)")
	fs.StringVar(&p.AnimalID, "animal_id", p.AnimalID, "animal identifier")
	fs.StringVar(&p.Cameras, "cameras", p.Cameras, "comma-separated cameras to record")
	fs.StringVar(&p.BugTypes, "bug_types", p.BugTypes, "comma-separated bug types")
	fs.Float64Var(&p.TrialDuration, "trial_duration", p.TrialDuration, "stimulus window in seconds")
	fs.IntVar(&p.NumTrials, "num_trials", p.NumTrials, "number of trials")
	fs.Float64Var(&p.ITI, "iti", p.ITI, "inter-trial interval in seconds")
	fs.StringVar(&p.ExperimentType, "experiment_type", p.ExperimentType, "bugs or media")
	fs.IntVar(&p.BugSpeed, "bug_speed", p.BugSpeed, "bug speed")
	fs.StringVar(&p.MovementType, "movement_type", p.MovementType, "bug movement type")
	fs.BoolVar(&p.IsUsePredictions, "is_use_predictions", p.IsUsePredictions, "let the recorder run predictions")
	fs.IntVar(&p.TimeBetweenBugs, "time_between_bugs", p.TimeBetweenBugs, "seconds between bugs")
	fs.StringVar(&p.RewardType, "reward_type", p.RewardType, "end_trial or always")
	fs.StringVar(&p.RewardBugs, "reward_bugs", p.RewardBugs, "comma-separated rewarded bug types (default: bug_types)")
	fs.BoolVar(&p.IsAnticlockwise, "is_anticlockwise", p.IsAnticlockwise, "move bugs anticlockwise")
	fs.StringVar(&p.TargetDrift, "target_drift", p.TargetDrift, "bug target drift")
	fs.StringVar(&p.MediaURL, "media_url", p.MediaURL, "media file served by the management server")
	fs.Float64Var(&p.ExtraTimeRecording, "extra_time_recording", p.ExtraTimeRecording,
		"pre- and post-roll in seconds (default: timing.extra_time_recording)")

	return map[string]func(*experiment.Params){
		"name":                 func(d *experiment.Params) { d.Name = p.Name },
		"animal_id":            func(d *experiment.Params) { d.AnimalID = p.AnimalID },
		"cameras":              func(d *experiment.Params) { d.Cameras = p.Cameras },
		"bug_types":            func(d *experiment.Params) { d.BugTypes = p.BugTypes },
		"trial_duration":       func(d *experiment.Params) { d.TrialDuration = p.TrialDuration },
		"num_trials":           func(d *experiment.Params) { d.NumTrials = p.NumTrials },
		"iti":                  func(d *experiment.Params) { d.ITI = p.ITI },
		"experiment_type":      func(d *experiment.Params) { d.ExperimentType = p.ExperimentType },
		"bug_speed":            func(d *experiment.Params) { d.BugSpeed = p.BugSpeed },
		"movement_type":        func(d *experiment.Params) { d.MovementType = p.MovementType },
		"is_use_predictions":   func(d *experiment.Params) { d.IsUsePredictions = p.IsUsePredictions },
		"time_between_bugs":    func(d *experiment.Params) { d.TimeBetweenBugs = p.TimeBetweenBugs },
		"reward_type":          func(d *experiment.Params) { d.RewardType = p.RewardType },
		"reward_bugs":          func(d *experiment.Params) { d.RewardBugs = p.RewardBugs },
		"is_anticlockwise":     func(d *experiment.Params) { d.IsAnticlockwise = p.IsAnticlockwise },
		"target_drift":         func(d *experiment.Params) { d.TargetDrift = p.TargetDrift },
		"media_url":            func(d *experiment.Params) { d.MediaURL = p.MediaURL },
		"extra_time_recording": func(d *experiment.Params) { d.ExtraTimeRecording = p.ExtraTimeRecording },
	}
}

// resolveParams layers the experiment file and then the changed flags over
// the defaults.
func resolveParams(fs *pflag.FlagSet, flags map[string]func(*experiment.Params), c config.Config, file string) (experiment.Params, error) {
	params := experiment.DefaultParams()
	params.ExtraTimeRecording = c.Timing.ExtraTimeRecording.Seconds()

	if file != "" {
		var err error
		if params, err = config.LoadExperiment(file, params); err != nil {
			return params, err
		}
	}
	for name, apply := range flags {
		if fs.Changed(name) {
			apply(&params)
		}
	}
	return params, nil
}

func runExperiment(cmd *cobra.Command, _ []string) error {
	params, err := resolveParams(cmd.Flags(), runParamFlags, cfg, runFile)
	if err != nil {
		return err
	}
	expCfg, err := experiment.New(params, time.Now())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	b, err := openBus(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()

	tp, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}()

	deps := orchestrator.Deps{
		Store:     store,
		Bus:       b,
		Summaries: touchlog.NewReader(cfg.TouchLog.FileName),
		Display:   display.NewCommand(cfg.Display.OnCommand, cfg.Display.OffCommand),
		Workers:   workerFactory(cfg, b),
		Tracer:    tp.Tracer(),
		Output:    cmd.OutOrStdout(),
	}
	db, err := openHistory(cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer func() { _ = db.Close() }()
		deps.History = db
	}

	configLog, err := config.Render(cfg)
	if err != nil {
		return err
	}

	o, err := orchestrator.New(expCfg, deps, orchestrator.Options{
		ExperimentsDir:     cfg.ExperimentsDir,
		PollInterval:       cfg.Timing.PollInterval,
		GracePeriod:        cfg.Timing.GracePeriod,
		EndExperimentDelay: cfg.Timing.EndExperimentDelay,
		Topics:             cfg.Bus.Topics,
		ManagementURL:      cfg.ManagementURL,
		ConfigLog:          configLog,
	})
	if err != nil {
		return err
	}

	log.Info(log.CatOrch, "starting experiment", "name", expCfg.Name, "run", o.RunID())
	summary, err := o.Run(ctx)
	if err != nil {
		return fmt.Errorf("experiment %s: %w", expCfg.Name, err)
	}

	_, _ = fmt.Fprint(cmd.OutOrStdout(), "\n"+summary)
	if o.Phase() == orchestrator.PhaseAborted {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "experiment %s was aborted\n", expCfg.Name)
	}
	return nil
}
