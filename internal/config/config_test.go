package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesEnvOverride(t *testing.T) {
	t.Setenv("MAX_REPAIR_ATTEMPTS", "12")
	cfg := Load()
	require.Equal(t, 12, cfg.MaxRepairAttempts)
}

func TestLoadClampsOutOfRangeValue(t *testing.T) {
	t.Setenv("MAX_REPAIR_ATTEMPTS", "9999")
	cfg := Load()
	require.Equal(t, 12, cfg.MaxRepairAttempts)
}

func TestLoadIgnoresUnparsableValue(t *testing.T) {
	t.Setenv("MAX_REPAIR_ATTEMPTS", "not-a-number")
	cfg := Load()
	require.Equal(t, Default().MaxRepairAttempts, cfg.MaxRepairAttempts)
}

func TestEnvBoolDefaultsWhenUnset(t *testing.T) {
	require.NoError(t, os.Unsetenv("ENABLE_STRUCTURAL_REPAIR_MODE"))
	require.True(t, envBool("ENABLE_STRUCTURAL_REPAIR_MODE", true))
}

func TestLoadFileMissingReturnsDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadFileOverlaysYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "circuitforge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_repair_attempts: 9\nminor_relief_passes: 3\n"), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, 9, cfg.MaxRepairAttempts)
	require.Equal(t, 3, cfg.MinorReliefPasses)
	require.Equal(t, Default().CompileValidateTimeoutMS, cfg.CompileValidateTimeoutMS)
}

func TestLoadFileMalformedReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_repair_attempts: [this is not an int"), 0o644))

	_, err := LoadFile(path)
	require.Error(t, err)
}

func TestLoadUsesConfigFileEnvVar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "circuitforge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("minor_relief_passes: 3\n"), 0o644))
	t.Setenv("CIRCUITFORGE_CONFIG_FILE", path)

	cfg := Load()
	require.Equal(t, 3, cfg.MinorReliefPasses)
}
