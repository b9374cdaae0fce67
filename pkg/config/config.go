// Package config loads the settings snapshot the orchestrator is
// constructed with. Loading YAML, merging defaults, and expanding
// environment variables are ambient concerns the core still owns (per
// SPEC_FULL.md A2); the GUI/CLI layer that actually reads flags from argv
// remains an external collaborator that only hands the core a Settings
// value.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings is the configured snapshot the Orchestrator is built from. It
// never changes during a run.
type Settings struct {
	Logging   LoggingSettings   `yaml:"logging"`
	Scan      ScanSettings      `yaml:"scan"`
	Scheduler SchedulerSettings `yaml:"scheduler"`
	Cache     CacheSettings     `yaml:"cache"`
	Report    ReportSettings    `yaml:"report"`
}

// LoggingSettings controls pkg/logging.
type LoggingSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ScanSettings carries the feature flags spec.md §3 lists on ScanRequest
// that are process-wide defaults rather than per-invocation overrides.
type ScanSettings struct {
	ModsPath        string `yaml:"mods_path"`
	OutputDir       string `yaml:"output_dir"`
	FCXMode         bool   `yaml:"fcx_mode"`
	Simplify        bool   `yaml:"simplify"`
	ShowFormIDs     bool   `yaml:"show_formid_values"`
	MoveUnsolved    bool   `yaml:"move_unsolved"`
	BackupDir       string `yaml:"backup_dir"`
	ContinueOnError bool   `yaml:"continue_on_error"`
}

// SchedulerSettings carries C7's tunable knobs.
type SchedulerSettings struct {
	PreferredMode    string        `yaml:"preferred_mode"`
	MaxConcurrent    int           `yaml:"max_concurrent"`
	BatchSize        int           `yaml:"batch_size"`
	PerLogTimeout    time.Duration `yaml:"per_log_timeout"`
	MemoryCeilingMB  int           `yaml:"memory_ceiling_mb"`
	SampleInterval   time.Duration `yaml:"sample_interval"`
}

// CacheSettings controls C9.
type CacheSettings struct {
	Enabled     bool          `yaml:"enabled"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// ReportSettings controls C8.
type ReportSettings struct {
	OutputDir     string `yaml:"output_dir"`
	KeepLastN     int    `yaml:"keep_last_n"`
	TopNConflicts int    `yaml:"top_n_conflicts"`
}

// Default returns a Settings value with the defaults the reference CLI
// falls back to when no config file is present.
func Default() *Settings {
	return &Settings{
		Logging: LoggingSettings{
			Level:  "info",
			Format: "text",
		},
		Scan: ScanSettings{
			OutputDir:       "./reports",
			BackupDir:       "./Backups/unsolved",
			ContinueOnError: true,
		},
		Scheduler: SchedulerSettings{
			PreferredMode:   "adaptive",
			MaxConcurrent:   0,
			BatchSize:       25,
			MemoryCeilingMB: 2048,
			SampleInterval:  2 * time.Second,
		},
		Cache: CacheSettings{
			Enabled:     true,
			IdleTimeout: 10 * time.Minute,
		},
		Report: ReportSettings{
			OutputDir:     "./reports",
			KeepLastN:     50,
			TopNConflicts: 10,
		},
	}
}

// Load reads a YAML settings file, falling back to Default() fields for
// anything the file omits. Environment variables of the form ${VAR} or
// $VAR are expanded before parsing, matching the teacher's config loader.
func Load(path string) (*Settings, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings file %q: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse settings file %q: %w", path, err)
	}

	return cfg, nil
}

// Save writes the settings snapshot back to a YAML file.
func (s *Settings) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write settings file %q: %w", path, err)
	}
	return nil
}

// Validate checks the numeric and path fields the orchestrator depends on
// being sane before a run starts.
func (s *Settings) Validate() error {
	if s.Scan.OutputDir == "" {
		return fmt.Errorf("scan.output_dir is required")
	}
	if s.Scheduler.BatchSize < 1 {
		return fmt.Errorf("scheduler.batch_size must be at least 1")
	}
	if s.Scheduler.MaxConcurrent < 0 {
		return fmt.Errorf("scheduler.max_concurrent must not be negative")
	}
	if s.Report.KeepLastN < 0 {
		return fmt.Errorf("report.keep_last_n must not be negative")
	}
	return nil
}
