package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zerotouch/qa-runner/internal/browser"
	"github.com/zerotouch/qa-runner/internal/config"
	"github.com/zerotouch/qa-runner/internal/heal"
	"github.com/zerotouch/qa-runner/internal/llm"
	"github.com/zerotouch/qa-runner/internal/report"
	"github.com/zerotouch/qa-runner/internal/runner"
	"github.com/zerotouch/qa-runner/internal/scenario"
)

type cliOptions struct {
	scenarioPath string
	outDir       string
	headless     bool
	healEnabled  bool
	maxAttempts  int
	verbose      bool
}

func main() {
	_ = godotenv.Load()

	var opts cliOptions

	root := &cobra.Command{
		Use:           "qarunner",
		Short:         "Self-healing browser scenario runner",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	run := &cobra.Command{
		Use:   "run",
		Short: "Execute a scenario file against a live browser",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(cmd, opts)
		},
	}
	run.Flags().StringVarP(&opts.scenarioPath, "scenario", "s", "test_scenario.json", "Scenario file (json or yaml)")
	run.Flags().StringVarP(&opts.outDir, "out", "o", "run_artifacts", "Output directory for logs, report and screenshots")
	run.Flags().BoolVar(&opts.headless, "headless", true, "Run the browser headless")
	run.Flags().BoolVar(&opts.healEnabled, "heal", true, "Allow model-assisted healing (fallbacks and candidate search always run)")
	run.Flags().IntVar(&opts.maxAttempts, "max-attempts", 0, "Override heal attempts per step (0 keeps env/default)")
	run.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Debug logging")

	root.AddCommand(run)

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("run finished with error")
		os.Exit(1)
	}
}

func runScenario(cmd *cobra.Command, opts cliOptions) error {
	setupLogging(opts.verbose)

	cfg := config.FromEnv()
	if cmd.Flags().Changed("headless") {
		cfg.Headless = opts.headless
	}
	if cmd.Flags().Changed("heal") {
		cfg.HealEnabled = opts.healEnabled
	}
	if opts.maxAttempts > 0 {
		cfg.MaxHealAttempts = opts.maxAttempts
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	steps, err := scenario.Load(opts.scenarioPath)
	if err != nil {
		return err
	}

	workspace, err := report.NewWorkspace(opts.outDir, log.With().Str("comp", "report").Logger())
	if err != nil {
		return err
	}
	log.Info().Str("run_id", workspace.RunID()).Str("out", workspace.Dir()).Msg("workspace ready")

	// A missing API key only matters when model healing is on; fallback
	// substitution and candidate search work without a model.
	var client llm.Client
	if cfg.HealEnabled {
		client, err = llm.NewClientFromEnv(log.With().Str("comp", "llm").Logger())
		if err != nil {
			log.Warn().Err(err).Msg("model healing unavailable, continuing without it")
			client = nil
		}
	}

	launcher, err := browser.NewLauncher(ctx, cfg)
	if err != nil {
		return fmt.Errorf("browser init: %w", err)
	}
	defer launcher.Close()

	session, err := launcher.NewSession(ctx)
	if err != nil {
		return fmt.Errorf("browser session: %w", err)
	}
	// Close with a fresh context: after SIGINT the signal-bound ctx is
	// already cancelled and would turn shutdown into a no-op.
	defer session.Close(context.Background())

	healer := heal.NewController(cfg, client, log.With().Str("comp", "heal").Logger())
	engine := runner.New(cfg, session, healer, workspace, log.With().Str("comp", "runner").Logger())

	records, healedSteps, runErr := engine.Execute(ctx, steps)

	// Artifacts are written even for failed runs; a healed scenario from
	// a partial run is still worth keeping.
	if err := workspace.WriteHealedScenario(healedSteps); err != nil {
		log.Error().Err(err).Msg("write healed scenario")
	}
	if err := workspace.WriteHTMLReport(records); err != nil {
		log.Error().Err(err).Msg("write html report")
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			log.Warn().Msg("run interrupted")
		}
		return runErr
	}
	log.Info().Int("steps", len(records)).Msg("scenario passed")
	return nil
}

func setupLogging(verbose bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
