package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/bip/internal/behavior"
	"github.com/roach88/bip/internal/compiler"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompiledComponent is a component type as written by compile.
type CompiledComponent struct {
	behavior.Descriptor
	Instances int `json:"instances"`
}

// CompiledGlue is the glue set in its written form. Ports are "Type.port".
type CompiledGlue struct {
	Fingerprint string                `json:"fingerprint"`
	Ports       []string              `json:"ports"`
	Requires    map[string][][]string `json:"requires,omitempty"`
	Accepts     map[string][][]string `json:"accepts,omitempty"`
	Priorities  []CompiledPattern     `json:"priorities,omitempty"`
	Wires       []CompiledWire        `json:"wires,omitempty"`
}

// CompiledPattern is a weighted interaction pattern.
type CompiledPattern struct {
	Name   string   `json:"name"`
	Ports  []string `json:"ports"`
	Weight int      `json:"weight"`
}

// CompiledWire routes a data-out to a data-in.
type CompiledWire struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// CompilationResult holds the compiled component types and glue.
type CompilationResult struct {
	Components []CompiledComponent `json:"components"`
	Glue       CompiledGlue        `json:"glue"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <specs-dir>",
		Short: "Compile CUE specs to component descriptors and glue",
		Long: `Compile CUE component specs and glue.

The compiler parses every CUE file in the directory, unifies them, and
writes the component descriptors and the glue constraint set as JSON.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, specsDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	loadResult, loadErrors := LoadSpecs(specsDir, LoadModeCollectAll)
	if loadResult == nil && len(loadErrors) > 0 {
		code, message := parseLoadError(loadErrors[0])
		return outputCompileError(formatter, code, message)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, specsDir)
	if len(loadErrors) > 0 {
		return outputCompileErrors(formatter, loadErrors)
	}

	result := buildCompilationResult(loadResult.Project)
	for _, c := range result.Components {
		formatter.VerboseLog("Compiled component: %s (%d instance(s))", c.Type, c.Instances)
	}

	if opts.Output != "" {
		if err := writeResultToFile(result, opts.Output); err != nil {
			return outputCompileError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err))
		}
	}

	return outputCompileSuccess(formatter, result, opts.Output)
}

func buildCompilationResult(p *compiler.Project) *CompilationResult {
	result := &CompilationResult{}
	for _, c := range p.Components {
		result.Components = append(result.Components, CompiledComponent{Descriptor: c.Descriptor, Instances: c.Instances})
	}

	set := p.Glue
	g := CompiledGlue{Fingerprint: set.Fingerprint(), Ports: []string{}}
	for _, ref := range set.Ports() {
		key := ref.String()
		g.Ports = append(g.Ports, key)
		for _, ps := range set.Requires(ref) {
			if g.Requires == nil {
				g.Requires = make(map[string][][]string)
			}
			g.Requires[key] = append(g.Requires[key], ps.Strings())
		}
		for _, ps := range set.Accepts(ref) {
			if g.Accepts == nil {
				g.Accepts = make(map[string][][]string)
			}
			g.Accepts[key] = append(g.Accepts[key], ps.Strings())
		}
	}
	for _, pat := range set.Patterns() {
		g.Priorities = append(g.Priorities, CompiledPattern{Name: pat.Name, Ports: pat.Ports.Strings(), Weight: pat.Weight})
	}
	for _, w := range set.Wires() {
		g.Wires = append(g.Wires, CompiledWire{From: w.From.String(), To: w.To.String()})
	}
	result.Glue = g
	return result
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, outputFile string) error {
	if formatter.JSON() {
		return formatter.Respond(CLIResponse{Status: "ok", Data: result})
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %d component type(s), %d glue port(s)\n\n", len(result.Components), len(result.Glue.Ports))

	fmt.Fprintln(w, "Components:")
	for _, c := range result.Components {
		fmt.Fprintf(w, "  %s: %d port(s), %d transition(s), %d instance(s)\n",
			c.Type, len(c.Ports), len(c.Transitions), c.Instances)
	}
	fmt.Fprintln(w)

	if len(result.Glue.Wires) > 0 {
		fmt.Fprintln(w, "Wires:")
		for _, wire := range result.Glue.Wires {
			fmt.Fprintf(w, "  %s → %s\n", wire.From, wire.To)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "Glue fingerprint: %s\n", result.Glue.Fingerprint)

	if outputFile != "" {
		fmt.Fprintf(w, "Wrote compiled specs to %s\n", outputFile)
	}
	return nil
}

// outputCompileError outputs a single compilation error.
func outputCompileError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputCompileErrors outputs multiple compilation errors.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	cliErrors := make([]CLIError, len(errs))
	for i, err := range errs {
		code, message := parseLoadError(err)
		cliErrors[i] = CLIError{Code: code, Message: message}
	}

	if formatter.JSON() {
		if err := formatter.Respond(CLIResponse{Status: "error", Error: &cliErrors[0], Data: cliErrors}); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
		fmt.Fprintln(formatter.Writer)
		for _, e := range cliErrors {
			fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", e.Code, e.Message)
		}
	}
	return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}

// parseLoadError extracts error code and message from an error.
func parseLoadError(err error) (string, string) {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	return ErrCodeGeneric, err.Error()
}

// writeResultToFile writes the compilation result as indented JSON.
func writeResultToFile(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
