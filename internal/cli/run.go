package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/bip/internal/compiler"
	"github.com/roach88/bip/internal/config"
	"github.com/roach88/bip/internal/engine"
	"github.com/roach88/bip/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Config   string
	Rounds   int64

	// RunIDs allows overriding the run id generator (for testing).
	// If nil, the engine's UUIDv7 generator is used.
	RunIDs engine.RunIDGenerator
}

// RunSummary describes a finished run.
type RunSummary struct {
	RunID    string `json:"run_id"`
	Rounds   int64  `json:"rounds"`
	Firings  int    `json:"firings"`
	Database string `json:"database"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <specs-dir>",
		Short: "Run the interaction engine over compiled specs",
		Long: `Run the interaction engine over the components and glue in a spec
directory.

Every component instance is registered, the glue is installed and rounds run
until --rounds is reached or the process is interrupted. Status events and
firings are journaled to the SQLite database, which is created if needed.

Example:
  bipctl run --db ./bip.db ./specs
  bipctl run --db ./bip.db --rounds 100 ./specs
  bipctl run --config ./bip.yaml ./specs --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.Flags().StringVar(&opts.Config, "config", "", "path to YAML engine configuration")
	cmd.Flags().Int64Var(&opts.Rounds, "rounds", 0, "stop after this many rounds (0 runs until interrupted)")

	return cmd
}

func runEngine(opts *RunOptions, specsDir string, cmd *cobra.Command) error {
	cfg := config.Default()
	if opts.Config != "" {
		var err error
		if cfg, err = config.Load(opts.Config); err != nil {
			return WrapExitError(ExitCommandError, "failed to load config", err)
		}
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	if opts.Rounds < 0 {
		return NewExitError(ExitCommandError, "--rounds cannot be negative")
	}
	if opts.Rounds > 0 {
		cfg.MaxRounds = opts.Rounds
	}
	if cfg.Database == "" {
		return NewExitError(ExitCommandError, "a database is required: pass --db or set database in the config")
	}

	// Config was validated, so the level parses.
	level, _ := config.ParseLevel(cfg.LogLevel)
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	logger.Info("compiling specs", "dir", specsDir)
	project, err := loadProject(specsDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to compile specs", err)
	}
	logger.Info("specs compiled", "component_types", len(project.Components))

	logger.Info("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	engineOpts := append(cfg.EngineOptions(), engine.WithStore(st), engine.WithLogger(logger))
	if opts.RunIDs != nil {
		engineOpts = append(engineOpts, engine.WithRunIDGenerator(opts.RunIDs))
	}
	eng := engine.New(engineOpts...)
	defer eng.Close()

	if err := deploy(eng, project); err != nil {
		return WrapExitError(ExitCommandError, "failed to set up engine", err)
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Info("engine starting", "db", cfg.Database, "specs_dir", specsDir, "max_rounds", cfg.MaxRounds)
	if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "engine error", err)
	}

	// The run context may be canceled; the journal is read regardless.
	firings, err := st.ReadFirings(context.WithoutCancel(ctx), eng.RunID())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read firings", err)
	}
	summary := RunSummary{
		RunID:    eng.RunID(),
		Rounds:   eng.Rounds(),
		Firings:  len(firings),
		Database: cfg.Database,
	}
	logger.Info("engine stopped", "run_id", summary.RunID, "rounds", summary.Rounds)

	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if formatter.JSON() {
		return formatter.Respond(CLIResponse{Status: "ok", Data: summary, RunID: summary.RunID})
	}
	fmt.Fprintf(formatter.Writer, "Run %s stopped after %d round(s), %d interaction(s) fired\n",
		summary.RunID, summary.Rounds, summary.Firings)
	return nil
}

// deploy registers every component instance of p, installs its glue and
// starts the engine. Components get no code bindings: guards read local
// values and transitions only apply their set assignments.
func deploy(eng *engine.Engine, p *compiler.Project) error {
	specs, err := p.Specs(nil)
	if err != nil {
		return err
	}
	ids := p.InstanceIDs()
	for _, c := range p.Components {
		typ := c.Descriptor.Type
		for _, id := range ids[typ] {
			if _, err := eng.Register(specs[typ], id, false); err != nil {
				return fmt.Errorf("register %s: %w", id, err)
			}
		}
	}
	if err := eng.SpecifyGlue(p.Glue); err != nil {
		return fmt.Errorf("install glue: %w", err)
	}
	return eng.Start()
}
