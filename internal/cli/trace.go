package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/bip/internal/ir"
	"github.com/roach88/bip/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database  string
	RunID     string
	Kind      string // optional - filter to one event kind
	Component string // optional - filter to one component instance
}

// TraceResult holds the complete trace output of one run.
type TraceResult struct {
	Run      ir.RunRecord      `json:"run"`
	Timeline []ir.StatusEvent  `json:"timeline"`
	Firings  []ir.FiringRecord `json:"firings"`
	Stats    TraceStats        `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents int            `json:"total_events"`
	Firings     int            `json:"firings"`
	ByKind      map[string]int `json:"by_kind"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the journaled trace of a run",
		Long: `Show the journaled status events and firings of a run.

Without --run, lists the runs in the database. With --run, prints the
timeline of status events in seq order, every fired interaction and a count
of events per kind.

Examples:
  bipctl trace --db ./bip.db
  bipctl trace --db ./bip.db --run 0192f0c1-...
  bipctl trace --db ./bip.db --run 0192f0c1-... --kind fire_failed
  bipctl trace --db ./bip.db --run 0192f0c1-... --component door --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to trace")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "filter to one event kind")
	cmd.Flags().StringVar(&opts.Component, "component", "", "filter to one component instance")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.RunID == "" {
		runs, err := st.Runs(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		if formatter.JSON() {
			return formatter.Respond(CLIResponse{Status: "ok", Data: runs})
		}
		outputRunsText(formatter.Writer, runs)
		return nil
	}

	run, err := st.ReadRun(ctx, opts.RunID)
	if errors.Is(err, store.ErrRunNotFound) {
		return NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", opts.RunID))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}
	events, err := st.ReadEvents(ctx, opts.RunID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}
	firings, err := st.ReadFirings(ctx, opts.RunID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read firings", err)
	}

	result := buildTrace(run, events, firings, opts.Kind, opts.Component)
	if formatter.JSON() {
		return formatter.Respond(CLIResponse{Status: "ok", Data: result, RunID: run.ID})
	}
	outputTraceText(formatter.Writer, result, opts.Verbose)
	return nil
}

// buildTrace filters the timeline. Stats always cover the whole run.
func buildTrace(run ir.RunRecord, events []ir.StatusEvent, firings []ir.FiringRecord, kind, component string) TraceResult {
	result := TraceResult{
		Run:      run,
		Timeline: []ir.StatusEvent{},
		Firings:  firings,
		Stats: TraceStats{
			TotalEvents: len(events),
			Firings:     len(firings),
			ByKind:      make(map[string]int),
		},
	}
	for _, ev := range events {
		result.Stats.ByKind[string(ev.Kind)]++
		if kind != "" && string(ev.Kind) != kind {
			continue
		}
		if component != "" && !eventInvolves(ev, component) {
			continue
		}
		result.Timeline = append(result.Timeline, ev)
	}
	return result
}

// eventInvolves reports whether ev is about component, either directly or
// through an interaction it takes part in.
func eventInvolves(ev ir.StatusEvent, component string) bool {
	if ev.Component == component {
		return true
	}
	for _, port := range strings.Split(ev.Interaction, ",") {
		if i := strings.LastIndex(port, "."); i > 0 && port[:i] == component {
			return true
		}
	}
	return false
}

func outputRunsText(w io.Writer, runs []ir.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found in database.")
		return
	}
	fmt.Fprintf(w, "%d run(s):\n", len(runs))
	for _, r := range runs {
		fmt.Fprintf(w, "  %s  %d component(s), %d round(s), glue %s\n",
			r.ID, r.Components, r.Rounds, truncateID(r.GlueFingerprint))
	}
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) {
	fmt.Fprintf(w, "Trace for Run: %s\n", result.Run.ID)
	fmt.Fprintf(w, "Components: %d, rounds: %d\n", result.Run.Components, result.Run.Rounds)
	if verbose {
		fmt.Fprintf(w, "Glue: %s\n", result.Run.GlueFingerprint)
		fmt.Fprintf(w, "Engine: %s, IR: %s\n", result.Run.EngineVersion, result.Run.IRVersion)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, ev := range result.Timeline {
		formatTimelineEvent(w, ev, verbose)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events: %d\n", result.Stats.TotalEvents)
	fmt.Fprintf(w, "  Firings:      %d\n", result.Stats.Firings)
	kinds := make([]string, 0, len(result.Stats.ByKind))
	for k := range result.Stats.ByKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(w, "  %-22s %d\n", k+":", result.Stats.ByKind[k])
	}
}

// formatTimelineEvent formats a single status event for text output.
func formatTimelineEvent(w io.Writer, ev ir.StatusEvent, verbose bool) {
	fmt.Fprintf(w, "  [%d] r%d %s", ev.Seq, ev.Round, ev.Kind)
	switch {
	case ev.Interaction != "":
		fmt.Fprintf(w, " %s", ev.Interaction)
	case ev.Component != "":
		fmt.Fprintf(w, " %s", ev.Component)
		if ev.Port != "" {
			fmt.Fprintf(w, ".%s", ev.Port)
		}
	}
	if ev.Code != "" {
		fmt.Fprintf(w, " [%s]", ev.Code)
	}
	fmt.Fprintln(w)
	if verbose && ev.Message != "" {
		fmt.Fprintf(w, "       %s\n", ev.Message)
	}
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
