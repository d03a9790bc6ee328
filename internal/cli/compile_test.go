package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feederSpecs = `
component: Feeder: {
	initial: "full"
	states: ["full", "empty"]
	ports: giveY: "enforceable"
	transitions: [{port: "giveY", from: "full", to: "empty"}]
	data: y: {type: "int", access: ["giveY"], value: 42}
}

component: Eater: {
	initial: "hungry"
	states: ["hungry", "fed"]
	instances: 2
	ports: eat: "enforceable"
	transitions: [{port: "eat", from: "hungry", to: "fed", data_in: ["y"]}]
}

glue: {
	synchron: [["Feeder.giveY", "Eater.eat"]]
	priority: feed: {weight: 2, ports: ["Feeder.giveY", "Eater.eat"]}
	data: [{from: "Feeder.y", to: "Eater.y"}]
}
`

func TestCompile_Text(t *testing.T) {
	dir := writeSpecs(t, map[string]string{"system.cue": feederSpecs})

	out, err := execute(t, "compile", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Compiled 2 component type(s), 2 glue port(s)")
	assert.Contains(t, out, "Eater: 1 port(s), 1 transition(s), 2 instance(s)")
	assert.Contains(t, out, "Feeder.y → Eater.y")
	assert.Contains(t, out, "Glue fingerprint:")
}

func TestCompile_JSONAndOutputFile(t *testing.T) {
	dir := writeSpecs(t, map[string]string{"system.cue": feederSpecs})
	outFile := filepath.Join(t.TempDir(), "compiled.json")

	out, err := execute(t, "compile", dir, "--format", "json", "-o", outFile)
	require.NoError(t, err)

	var resp struct {
		Status string            `json:"status"`
		Data   CompilationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Components, 2)
	assert.Equal(t, "Eater", resp.Data.Components[0].Type)
	assert.Equal(t, 2, resp.Data.Components[0].Instances)
	assert.Equal(t, []string{"Eater.eat", "Feeder.giveY"}, resp.Data.Glue.Ports)
	require.Len(t, resp.Data.Glue.Priorities, 1)
	assert.Equal(t, 2, resp.Data.Glue.Priorities[0].Weight)
	assert.Equal(t, []CompiledWire{{From: "Feeder.y", To: "Eater.y"}}, resp.Data.Glue.Wires)

	written, err := os.ReadFile(outFile)
	require.NoError(t, err)
	var fromFile CompilationResult
	require.NoError(t, json.Unmarshal(written, &fromFile))
	assert.Equal(t, resp.Data.Glue.Fingerprint, fromFile.Glue.Fingerprint)
}

func TestCompile_Errors(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		out, err := execute(t, "compile", filepath.Join(t.TempDir(), "nope"))
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, out, ErrCodeNotFound)
	})

	t.Run("no cue files", func(t *testing.T) {
		out, err := execute(t, "compile", writeSpecs(t, map[string]string{"README": "x"}))
		require.Error(t, err)
		assert.Contains(t, out, ErrCodeNoFiles)
	})

	t.Run("syntax error", func(t *testing.T) {
		out, err := execute(t, "compile", writeSpecs(t, map[string]string{"bad.cue": "component: {"}))
		require.Error(t, err)
		assert.Contains(t, out, ErrCodeLoadFailed)
	})

	t.Run("compile errors are collected", func(t *testing.T) {
		dir := writeSpecs(t, map[string]string{"bad.cue": `
component: A: {ports: p: "enforceable", transitions: []}
component: B: {ports: p: "enforceable", transitions: []}
`})
		out, err := execute(t, "compile", dir)
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, err.Error(), "compilation failed with 2 error(s)")
		assert.Contains(t, out, "initial state is required")
	})
}
