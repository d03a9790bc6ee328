package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bip/internal/engine"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bip.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, `
round_timeout: 2s
idle_interval: 100ms
max_rounds: 50
database: journal.db
log_level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Duration(2*time.Second), cfg.RoundTimeout)
	assert.Equal(t, Duration(100*time.Millisecond), cfg.IdleInterval)
	assert.Equal(t, int64(50), cfg.MaxRounds)
	assert.Equal(t, "journal.db", cfg.Database)
	assert.Equal(t, "debug", cfg.LogLevel)

	// Untouched keys keep their defaults.
	assert.Equal(t, engine.DefaultSearchBudget, cfg.SearchBudget)
	assert.Equal(t, engine.DefaultMaxInteractionSize, cfg.MaxInteractionSize)
	assert.Len(t, cfg.EngineOptions(), 5)
}

func TestLoad_Empty(t *testing.T) {
	cfg, err := Load(writeFile(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown key", "rounds: 3\n", "field rounds not found"},
		{"bad duration", "round_timeout: soon\n", "invalid duration"},
		{"negative", "max_rounds: -1\n", "max_rounds cannot be negative"},
		{"bad level", "log_level: loud\n", "log_level \"loud\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
