package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/doorbell.yaml")
	require.NoError(t, err)

	assert.Equal(t, "doorbell", s.Name)
	assert.Equal(t, int64(2), s.Rounds)
	assert.Equal(t, []string{filepath.Join("testdata", "specs", "doorbell")}, s.Specs)
	require.Len(t, s.Informs, 1)
	assert.Equal(t, InformStep{Component: "door", Port: "knock", Data: map[string]any{"visitor": "alice"}}, s.Informs[0])
	require.Len(t, s.Assertions, 3)
	assert.Equal(t, AssertFireOrder, s.Assertions[0].Type)
	assert.Equal(t, map[string]any{"welcomed": true}, s.Assertions[1].Values)
}

func TestLoadScenario_Errors(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{"missing file", "testdata/scenarios/nope.yaml", "failed to read scenario file"},
		{"missing rounds", "testdata/invalid/missing_rounds.yaml", "rounds must be positive"},
		{"unknown field", "testdata/invalid/typo.yaml", "field assertion not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(tt.path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "spec.cue"), []byte("component: A: {}\n"), 0o644))
	path := filepath.Join(dir, "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestValidateAssertions(t *testing.T) {
	const head = "name: s\ndescription: d\nspecs: [spec.cue]\nrounds: 1\n"
	tests := []struct {
		name string
		body string
		want string
	}{
		{"no assertions", head, "assertions list is required"},
		{"no type", head + "assertions: [{count: 1}]\n", "type is required"},
		{"unknown type", head + "assertions: [{type: nope}]\n", `unknown assertion type "nope"`},
		{"fired_count", head + "assertions: [{type: fired_count}]\n", "interaction is required"},
		{"never_fired", head + "assertions: [{type: never_fired}]\n", "interaction or component is required"},
		{"fire_order", head + "assertions: [{type: fire_order}]\n", "interactions list is required"},
		{"final_state", head + "assertions: [{type: final_state, component: a}]\n", "state or values is required"},
		{"event kind", head + "assertions: [{type: event_count, kind: exploded}]\n", `unknown event kind "exploded"`},
		{"inform port", head + "informs: [{component: a}]\nassertions: [{type: never_fired, component: a}]\n", "informs[0]: port is required"},
		{"missing spec", "name: s\ndescription: d\nspecs: [gone.cue]\nrounds: 1\nassertions: [{type: never_fired, component: a}]\n", "spec file not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenarioWithBasePath(t *testing.T) {
	s, err := LoadScenarioWithBasePath("testdata/scenarios/rendezvous.yaml", "testdata/scenarios")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join("testdata", "specs", "rendezvous")}, s.Specs)
}
