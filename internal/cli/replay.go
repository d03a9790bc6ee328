package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/bip/internal/compiler"
	"github.com/roach88/bip/internal/engine"
	"github.com/roach88/bip/internal/ir"
	"github.com/roach88/bip/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - specific run only
}

// ReplayRunResult holds the replay result for a single run.
type ReplayRunResult struct {
	RunID         string `json:"run_id"`
	Rounds        int64  `json:"rounds"`
	Firings       int    `json:"firings"`
	GlueMatches   bool   `json:"glue_matches"`
	Deterministic bool   `json:"deterministic"`
	Divergence    string `json:"divergence,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Runs             []ReplayRunResult `json:"runs"`
	TotalRuns        int               `json:"total_runs"`
	AllDeterministic bool              `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <specs-dir>",
		Short: "Re-run journaled runs and verify determinism",
		Long: `Re-run journaled runs against the specs and verify determinism.

Each run is executed again in memory for the number of rounds it recorded.
The firings of every round must match the journal exactly, and the glue
fingerprint must match the one the run was started with. Runs that received
spontaneous events from outside cannot be reproduced this way.

Exit codes:
  0 - All runs are deterministic
  1 - Determinism verification failed (differences detected)
  2 - Command error (database not found, etc.)

Examples:
  bipctl replay --db ./bip.db ./specs
  bipctl replay --db ./bip.db --run 0192f0c1-... ./specs
  bipctl replay --db ./bip.db ./specs --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "replay specific run only")

	return cmd
}

func runReplay(opts *ReplayOptions, specsDir string, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	project, err := loadProject(specsDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to compile specs", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	var runs []ir.RunRecord
	if opts.RunID != "" {
		run, err := st.ReadRun(ctx, opts.RunID)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to read run %s", opts.RunID), err)
		}
		runs = []ir.RunRecord{run}
	} else if runs, err = st.Runs(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	result := ReplayResult{
		Runs:             make([]ReplayRunResult, 0, len(runs)),
		TotalRuns:        len(runs),
		AllDeterministic: true,
	}
	for _, run := range runs {
		formatter.VerboseLog("Replaying run %s (%d round(s))", run.ID, run.Rounds)
		runResult, err := replayAndVerifyRun(ctx, st, project, run)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay run %s", run.ID), err)
		}
		result.Runs = append(result.Runs, runResult)
		if !runResult.Deterministic {
			result.AllDeterministic = false
		}
	}

	if formatter.JSON() {
		return outputReplayJSON(formatter, result)
	}
	return outputReplayText(formatter, result)
}

// replayAndVerifyRun executes project again for the rounds run recorded and
// compares the firings round by round.
func replayAndVerifyRun(ctx context.Context, st *store.Store, project *compiler.Project, run ir.RunRecord) (ReplayRunResult, error) {
	recorded, err := st.ReadFirings(ctx, run.ID)
	if err != nil {
		return ReplayRunResult{}, err
	}
	res := ReplayRunResult{
		RunID:       run.ID,
		Rounds:      run.Rounds,
		Firings:     len(recorded),
		GlueMatches: run.GlueFingerprint == project.Glue.Fingerprint(),
	}
	if !res.GlueMatches {
		res.Divergence = "glue fingerprint differs from the recorded run"
		return res, nil
	}
	// A run that never finished has no round count; its last firing bounds it.
	rounds := run.Rounds
	for _, f := range recorded {
		rounds = max(rounds, f.Round)
	}
	if rounds == 0 {
		res.Deterministic = true
		return res, nil
	}

	replayed, err := executeInMemory(ctx, project, run.ID, rounds)
	if err != nil {
		return ReplayRunResult{}, err
	}
	res.Divergence = compareFirings(recorded, replayed)
	res.Deterministic = res.Divergence == ""
	return res, nil
}

// executeInMemory runs project for rounds against a scratch in-memory
// journal and returns its firings.
func executeInMemory(ctx context.Context, project *compiler.Project, runID string, rounds int64) ([]ir.FiringRecord, error) {
	scratch, err := store.Open(store.MemoryPath)
	if err != nil {
		return nil, err
	}
	defer scratch.Close()

	eng := engine.New(
		engine.WithStore(scratch),
		engine.WithRunIDGenerator(engine.NewFixedGenerator(runID)),
		engine.WithMaxRounds(rounds),
		engine.WithIdleInterval(time.Millisecond),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	defer eng.Close()

	if err := deploy(eng, project); err != nil {
		return nil, err
	}
	if err := eng.Run(ctx); err != nil {
		return nil, err
	}
	return scratch.ReadFirings(ctx, runID)
}

// compareFirings describes the first difference between two firing logs,
// or returns "" when they match.
func compareFirings(recorded, replayed []ir.FiringRecord) string {
	for i := 0; i < max(len(recorded), len(replayed)); i++ {
		switch {
		case i >= len(recorded):
			return fmt.Sprintf("round %d: replay fired %s, journal has nothing", replayed[i].Round, firingKey(replayed[i]))
		case i >= len(replayed):
			return fmt.Sprintf("round %d: journal has %s, replay fired nothing", recorded[i].Round, firingKey(recorded[i]))
		}
		a, b := recorded[i], replayed[i]
		if a.Round != b.Round || a.ID != b.ID || !slices.Equal(a.Ports, b.Ports) {
			return fmt.Sprintf("round %d: journal has %s, replay fired %s in round %d",
				a.Round, firingKey(a), firingKey(b), b.Round)
		}
	}
	return ""
}

func firingKey(f ir.FiringRecord) string {
	return strings.Join(f.Ports, ",")
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(formatter *OutputFormatter, result ReplayResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	if !result.AllDeterministic {
		response.Status = "error"
		response.Error = &CLIError{Code: "E_DETERMINISM", Message: "determinism verification failed"}
	}
	if err := formatter.Respond(response); err != nil {
		return err
	}
	if !result.AllDeterministic {
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(formatter *OutputFormatter, result ReplayResult) error {
	w := formatter.Writer
	if result.TotalRuns == 0 {
		fmt.Fprintln(w, "No runs found in database.")
		return nil
	}

	fmt.Fprintf(w, "Replay Summary: %d run(s)\n", result.TotalRuns)
	fmt.Fprintln(w)

	for _, run := range result.Runs {
		status := "✓"
		if !run.Deterministic {
			status = "✗"
		}
		fmt.Fprintf(w, "%s Run: %s\n", status, run.RunID)
		fmt.Fprintf(w, "  Rounds: %d, firings: %d\n", run.Rounds, run.Firings)
		if run.Divergence != "" {
			fmt.Fprintf(w, "  Divergence: %s\n", run.Divergence)
		}
		fmt.Fprintln(w)
	}

	if result.AllDeterministic {
		fmt.Fprintln(w, "✓ All runs verified deterministic")
		return nil
	}
	fmt.Fprintln(w, "✗ Determinism verification failed")
	return NewExitError(ExitFailure, "determinism verification failed")
}
