// Package arqonconfig loads and validates the YAML configuration bundle
// for the optimizer core: parameter bounds, guardrails, SPSA constants and
// safe-mode policy. Structure and validation style follow
// internal/config/config.go in the teacher repo: one sub-struct per
// subsystem, explicit Defaults(), accumulated validation errors.
package arqonconfig

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/octoreflex/arqon/internal/arqonerr"
	"github.com/octoreflex/arqon/internal/paramreg"
)

// ParamConfig describes one tunable parameter's name and bounds.
type ParamConfig struct {
	Name        string  `yaml:"name"`
	Min         float64 `yaml:"min"`
	Max         float64 `yaml:"max"`
	MaxAbsDelta float64 `yaml:"max_abs_delta"`
	MaxCumulativeDeltaPerMin float64 `yaml:"max_cumulative_delta_per_minute"`
	Initial     float64 `yaml:"initial"`
}

// GuardrailsConfig is the shared immutable guardrails bundle (spec §3).
type GuardrailsConfig struct {
	MaxUpdatesPerSecond float64       `yaml:"max_updates_per_second"`
	DirectionFlipLimit  int           `yaml:"direction_flip_limit"`
	CooldownAfterFlip   time.Duration `yaml:"cooldown_after_flip"`
	RegressionCountLimit int          `yaml:"regression_count_limit"`
	RegressionEpsilon   float64       `yaml:"regression_epsilon"`
}

// SPSAConfig holds the step-size schedule constants and run seed.
type SPSAConfig struct {
	RunSeed     int64         `yaml:"run_seed"`
	Alpha       float64       `yaml:"alpha"`
	Gamma       float64       `yaml:"gamma"`
	A           float64       `yaml:"a"`
	SmallA      float64       `yaml:"small_a"`
	SmallC      float64       `yaml:"small_c"`
	EvalTimeout time.Duration `yaml:"eval_timeout"`
}

// OrchestratorConfig holds the scheduling policy knobs.
type OrchestratorConfig struct {
	IterBudget      time.Duration `yaml:"iter_budget"`
	MaxAuditDrain   int           `yaml:"max_audit_drain"`
	TelemetryRingCapacity int     `yaml:"telemetry_ring_capacity"`
	AuditQueueCapacity    int     `yaml:"audit_queue_capacity"`
}

// ObservabilityConfig controls the ambient logging/metrics stack.
type ObservabilityConfig struct {
	DevelopmentLogging bool   `yaml:"development_logging"`
	MetricsNamespace   string `yaml:"metrics_namespace"`
}

// Config is the top-level configuration tree.
type Config struct {
	Params        []ParamConfig       `yaml:"params"`
	Guardrails    GuardrailsConfig    `yaml:"guardrails"`
	SPSA          SPSAConfig          `yaml:"spsa"`
	Orchestrator  OrchestratorConfig  `yaml:"orchestrator"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// Defaults returns a Config with every field set to a reasonable default,
// matching the teacher's Defaults()/Load() split: Load always starts from
// Defaults() and overlays the file contents.
func Defaults() *Config {
	return &Config{
		Guardrails: GuardrailsConfig{
			MaxUpdatesPerSecond:  1000,
			DirectionFlipLimit:   3,
			CooldownAfterFlip:    2 * time.Second,
			RegressionCountLimit: 5,
			RegressionEpsilon:    1e-6,
		},
		SPSA: SPSAConfig{
			RunSeed: 42, Alpha: 0.602, Gamma: 0.101, A: 10, SmallA: 0.05, SmallC: 0.05,
			EvalTimeout: 10 * time.Millisecond,
		},
		Orchestrator: OrchestratorConfig{
			IterBudget: time.Millisecond, MaxAuditDrain: 256,
			TelemetryRingCapacity: 1024, AuditQueueCapacity: 1024,
		},
		Observability: ObservabilityConfig{
			DevelopmentLogging: false,
			MetricsNamespace:   "arqon",
		},
	}
}

// Load reads and parses the YAML file at path, overlaying it onto
// Defaults(), then validates the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("arqonconfig: read %s: %w", path, err)
	}
	cfg := Defaults()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("arqonconfig: parse %s: %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate accumulates every configuration error found and returns them
// joined into a single error, matching internal/config/config.go's style.
func Validate(cfg *Config) error {
	var errs []string

	if len(cfg.Params) == 0 {
		errs = append(errs, "params: must declare at least one parameter")
	}
	if len(cfg.Params) > paramreg.MaxParams {
		errs = append(errs, fmt.Sprintf("params: %d parameters exceed the maximum of %d", len(cfg.Params), paramreg.MaxParams))
	}
	seen := make(map[string]bool, len(cfg.Params))
	for _, p := range cfg.Params {
		if p.Name == "" {
			errs = append(errs, "params: name must not be empty")
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Sprintf("params: duplicate name %q", p.Name))
		}
		seen[p.Name] = true
		if p.Min > p.Max {
			errs = append(errs, fmt.Sprintf("params[%s]: min %.6g > max %.6g", p.Name, p.Min, p.Max))
		}
		if p.MaxAbsDelta <= 0 {
			errs = append(errs, fmt.Sprintf("params[%s]: max_abs_delta must be positive", p.Name))
		}
		if p.MaxCumulativeDeltaPerMin <= 0 {
			errs = append(errs, fmt.Sprintf("params[%s]: max_cumulative_delta_per_minute must be positive", p.Name))
		}
		if p.Initial < p.Min || p.Initial > p.Max {
			errs = append(errs, fmt.Sprintf("params[%s]: initial %.6g out of bounds [%.6g, %.6g]", p.Name, p.Initial, p.Min, p.Max))
		}
	}

	if cfg.Guardrails.MaxUpdatesPerSecond <= 0 {
		errs = append(errs, "guardrails: max_updates_per_second must be positive")
	}
	if cfg.Guardrails.DirectionFlipLimit <= 0 {
		errs = append(errs, "guardrails: direction_flip_limit must be positive")
	}
	if cfg.Guardrails.RegressionCountLimit <= 0 {
		errs = append(errs, "guardrails: regression_count_limit must be positive")
	}

	if cfg.SPSA.EvalTimeout <= 0 {
		errs = append(errs, "spsa: eval_timeout must be positive")
	}

	if cfg.Orchestrator.IterBudget <= 0 {
		errs = append(errs, "orchestrator: iter_budget must be positive")
	}
	if cfg.Orchestrator.TelemetryRingCapacity <= 0 {
		errs = append(errs, "orchestrator: telemetry_ring_capacity must be positive")
	}
	if cfg.Orchestrator.AuditQueueCapacity <= 0 {
		errs = append(errs, "orchestrator: audit_queue_capacity must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", arqonerr.ErrInvalidConfig, joinStrings(errs, "; "))
	}
	return nil
}

func joinStrings(parts []string, sep string) string {
	return strings.Join(parts, sep)
}
