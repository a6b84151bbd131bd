package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, defaultPort, cfg.Port.Value)
	assert.Equal(t, SourceDefault, cfg.Port.Source)
	assert.Equal(t, defaultThreads, cfg.Analysis.Threads.Value)
}

func TestLoadReadsFileValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("analysis:\n  threads: 8\nserver:\n  port: 9090\n"), 0o644))

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port.Value)
	assert.Equal(t, SourceFile, cfg.Port.Source)
	assert.Equal(t, 8, cfg.Analysis.Threads.Value)
	assert.Equal(t, SourceFile, cfg.Analysis.Threads.Source)
}

func TestEnvOverridesFileAndIsNotEditable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("analysis:\n  threads: 8\n"), 0o644))
	t.Setenv("FSPULSE_ANALYSIS_THREADS", "16")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Analysis.Threads.Value)
	assert.Equal(t, SourceEnv, cfg.Analysis.Threads.Source)
	assert.False(t, cfg.Analysis.Threads.Editable())
}

func TestUpdateAnalysisThreadsRejectsOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	err := UpdateAnalysisThreads(path, 0)
	assert.Error(t, err)

	err = UpdateAnalysisThreads(path, 25)
	assert.Error(t, err)
}

func TestUpdateAnalysisThreadsPreservesOtherKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\nanalysis:\n  threads: 4\n"), 0o644))

	require.NoError(t, UpdateAnalysisThreads(path, 12))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Analysis.Threads.Value)
	assert.Equal(t, 9090, cfg.Port.Value)
}

func TestFileThreadsIgnoresEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("analysis:\n  threads: 8\n"), 0o644))
	t.Setenv("FSPULSE_ANALYSIS_THREADS", "16")

	got, err := FileThreads(path)

	require.NoError(t, err)
	assert.Equal(t, 8, got)
}
