package cli

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bip/internal/compiler"
)

func TestValidate_Valid(t *testing.T) {
	dir := writeSpecs(t, map[string]string{"system.cue": pingPong})

	out, err := execute(t, "validate", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ All specs valid")
	assert.NotContains(t, out, "warning")
}

func TestValidate_WarningsDoNotFail(t *testing.T) {
	lost := strings.Replace(pingPong, `states: ["ready"]`, `states: ["ready", "lost"]`, 1)
	dir := writeSpecs(t, map[string]string{"system.cue": lost})

	out, err := execute(t, "validate", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "1 warning(s)")
	assert.Contains(t, out, compiler.ErrUnreachableState)
}

func TestValidate_GlueErrors(t *testing.T) {
	broken := strings.Replace(pingPong, `"Pong.back"]]`, `"Pong.missing"]]`, 1)
	dir := writeSpecs(t, map[string]string{"system.cue": broken})

	out, err := execute(t, "validate", dir, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.NotEmpty(t, resp.Data.Errors)
	assert.Equal(t, compiler.ErrGlueUnknownPort, resp.Data.Errors[0].Code)
	assert.Equal(t, compiler.ErrGlueUnknownPort, resp.Error.Code)
}

func TestValidate_CompileErrorsAreFindings(t *testing.T) {
	dir := writeSpecs(t, map[string]string{
		"system.cue": pingPong,
		"bad.cue":    `component: Bad: {ports: p: "enforceable", transitions: []}`,
	})

	out, err := execute(t, "validate", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, ErrCodeCompileFailed)
}

func TestValidate_MissingDirectory(t *testing.T) {
	_, err := execute(t, "validate", "/nonexistent/specs")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "specs directory not found")
}
