package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	content := `
logging:
  level: debug
scheduler:
  batch_size: 100
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 100, cfg.Scheduler.BatchSize)
	// Untouched fields keep their defaults.
	assert.Equal(t, "./reports", cfg.Scan.OutputDir)
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	require.NoError(t, os.Setenv("CLASSIC_TEST_OUTPUT_DIR", "/tmp/custom-reports"))
	defer os.Unsetenv("CLASSIC_TEST_OUTPUT_DIR")

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	content := "scan:\n  output_dir: ${CLASSIC_TEST_OUTPUT_DIR}\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom-reports", cfg.Scan.OutputDir)
}

func TestSettings_Validate(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())

	cfg.Scan.OutputDir = ""
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Scheduler.BatchSize = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Scheduler.MaxConcurrent = -1
	assert.Error(t, cfg.Validate())
}

func TestSettings_SaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "warn"

	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", loaded.Logging.Level)
}
