package harness

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/bip/internal/ir"
)

// canonicalMap converts an event to a map[string]any for canonical JSON
// serialization. Empty fields are left out.
func (ev TraceEvent) canonicalMap() map[string]any {
	m := map[string]any{
		"round": ev.Round,
		"seq":   ev.Seq,
		"kind":  ev.Kind,
	}
	for k, v := range map[string]string{
		"phase":       ev.Phase,
		"component":   ev.Component,
		"port":        ev.Port,
		"interaction": ev.Interaction,
		"code":        ev.Code,
		"message":     ev.Message,
	} {
		if v != "" {
			m[k] = v
		}
	}
	return m
}

// MarshalTrace renders a trace as one canonical JSON object per line.
func MarshalTrace(trace []TraceEvent) ([]byte, error) {
	var buf bytes.Buffer
	for _, ev := range trace {
		line, err := ir.MarshalCanonical(ev.canonicalMap())
		if err != nil {
			return nil, err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := MarshalTrace(result.Trace)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
