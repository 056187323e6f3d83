// Package config holds the orchestrator's runtime tuning knobs, loaded
// from environment variables with the same clamp-don't-error posture the
// rest of this system uses for out-of-range operator input.
package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/codenerd-labs/circuitforge/internal/logging"
	"github.com/codenerd-labs/circuitforge/internal/stopcheck"
)

// RuntimeConfig holds every tunable the stop evaluator, repair planner,
// and attempt runner read at session start.
type RuntimeConfig struct {
	MaxRepairAttempts          int `yaml:"max_repair_attempts"`
	RetryStagnationLimit       int `yaml:"retry_stagnation_limit"`
	SignatureRepeatLimit       int `yaml:"signature_repeat_limit"`
	AutorouterStallLimit       int `yaml:"autorouter_stall_limit"`
	StructuralRepairTrigger    int `yaml:"structural_repair_trigger"`
	MaxStructuralRepairAttempts int `yaml:"max_structural_repair_attempts"`
	MinorBoardGrowthCapPct     int `yaml:"minor_board_growth_cap_pct"`
	MinorComponentShiftMM      int `yaml:"minor_component_shift_mm"`
	MinorReliefPasses          int `yaml:"minor_relief_passes"`
	CompileValidateTimeoutMS   int `yaml:"compile_validate_timeout_ms"`
	StatusPulseMS              int `yaml:"status_pulse_ms"`
	EnableConnectivityPreflight bool `yaml:"enable_connectivity_preflight"`
	EnableStructuralRepairMode bool `yaml:"enable_structural_repair_mode"`
}

// bound pins a value between lo and hi, clamping rather than erroring —
// an operator's typo in an env var degrades to the nearest valid setting
// instead of refusing to boot.
func bound(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Default returns the baseline configuration before any environment
// overrides are applied.
func Default() RuntimeConfig {
	return RuntimeConfig{
		MaxRepairAttempts:           6,
		RetryStagnationLimit:        4,
		SignatureRepeatLimit:        3,
		AutorouterStallLimit:        4,
		StructuralRepairTrigger:     2,
		MaxStructuralRepairAttempts: 3,
		MinorBoardGrowthCapPct:      20,
		MinorComponentShiftMM:       3,
		MinorReliefPasses:           2,
		CompileValidateTimeoutMS:    240000,
		StatusPulseMS:               8000,
		EnableConnectivityPreflight: true,
		EnableStructuralRepairMode:  true,
	}
}

// TestDefaults returns the "test" column of the runtime configuration
// table: the same shape as Default but with the tighter bounds the
// scenario suite is written against (fewer attempts, smaller streaks).
// It returns fixed values: no env overrides or clamps are applied.
func TestDefaults() RuntimeConfig {
	cfg := Default()
	cfg.MaxRepairAttempts = 3
	cfg.RetryStagnationLimit = 3
	cfg.SignatureRepeatLimit = 2
	cfg.AutorouterStallLimit = 2
	cfg.MaxStructuralRepairAttempts = 1
	return cfg
}

var bootOnce sync.Once

// LoadFile reads a YAML base layer over Default, the same optional-file
// posture as the teacher's config loader: a missing file is not an error
// (defaults stand), but a present, malformed file is.
func LoadFile(path string) (RuntimeConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Load builds the runtime configuration from an optional YAML base file
// (CIRCUITFORGE_CONFIG_FILE) overlaid with environment variables, clamping
// every bounded field and logging the resolved values once.
func Load() RuntimeConfig {
	cfg := Default()
	if path := os.Getenv("CIRCUITFORGE_CONFIG_FILE"); path != "" {
		fileCfg, err := LoadFile(path)
		if err != nil {
			logging.Get(logging.CategoryBoot).Error("config: %v, falling back to defaults", err)
		} else {
			cfg = fileCfg
		}
	}

	cfg.MaxRepairAttempts = bound(envInt("MAX_REPAIR_ATTEMPTS", cfg.MaxRepairAttempts), 1, 12)
	cfg.RetryStagnationLimit = bound(envInt("RETRY_STAGNATION_LIMIT", cfg.RetryStagnationLimit), 1, 10)
	cfg.SignatureRepeatLimit = bound(envInt("SIGNATURE_REPEAT_LIMIT", cfg.SignatureRepeatLimit), 1, 10)
	cfg.AutorouterStallLimit = bound(envInt("AUTOROUTER_STALL_LIMIT", cfg.AutorouterStallLimit), 1, 12)
	cfg.StructuralRepairTrigger = bound(envInt("STRUCTURAL_REPAIR_TRIGGER", cfg.StructuralRepairTrigger), 1, 6)
	cfg.MaxStructuralRepairAttempts = bound(envInt("MAX_STRUCTURAL_REPAIR_ATTEMPTS", cfg.MaxStructuralRepairAttempts), 0, 3)
	cfg.MinorBoardGrowthCapPct = bound(envInt("MINOR_BOARD_GROWTH_CAP_PCT", cfg.MinorBoardGrowthCapPct), 5, 60)
	cfg.MinorComponentShiftMM = bound(envInt("MINOR_COMPONENT_SHIFT_MM", cfg.MinorComponentShiftMM), 1, 10)
	cfg.MinorReliefPasses = bound(envInt("MINOR_RELIEF_PASSES", cfg.MinorReliefPasses), 1, 4)
	cfg.CompileValidateTimeoutMS = bound(envInt("COMPILE_VALIDATE_TIMEOUT_MS", cfg.CompileValidateTimeoutMS), 10000, 600000)
	cfg.StatusPulseMS = bound(envInt("STATUS_PULSE_MS", cfg.StatusPulseMS), 3000, 30000)
	cfg.EnableConnectivityPreflight = envBool("ENABLE_CONNECTIVITY_PREFLIGHT", cfg.EnableConnectivityPreflight)
	cfg.EnableStructuralRepairMode = envBool("ENABLE_STRUCTURAL_REPAIR_MODE", cfg.EnableStructuralRepairMode)

	bootOnce.Do(func() {
		boot := logging.Get(logging.CategoryBoot)
		boot.Info("runtime config resolved: max_attempts=%d stagnation_limit=%d signature_repeat_limit=%d structural_repair=%v",
			cfg.MaxRepairAttempts, cfg.RetryStagnationLimit, cfg.SignatureRepeatLimit, cfg.EnableStructuralRepairMode)
	})

	return cfg
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// StopcheckConfig projects the fields the stop evaluator reads.
func (c RuntimeConfig) StopcheckConfig() stopcheck.Config {
	return stopcheck.Config{
		MaxAttempts:                 c.MaxRepairAttempts,
		AutorouterStallLimit:        c.AutorouterStallLimit,
		StructuralRepairTrigger:     c.StructuralRepairTrigger,
		SignatureRepeatLimit:        c.SignatureRepeatLimit,
		RetryStagnationLimit:        c.RetryStagnationLimit,
		MinorReliefPasses:           c.MinorReliefPasses,
		MaxStructuralRepairAttempts: c.MaxStructuralRepairAttempts,
		EnableStructuralRepairMode:  c.EnableStructuralRepairMode,
	}
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
