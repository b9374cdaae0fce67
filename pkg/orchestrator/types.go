// Package orchestrator implements C10: the top-level sequence that
// validates a ScanRequest, optionally reformats logs, asks the
// scheduler for a strategy, runs the per-log analysis pipeline, writes
// reports, and aggregates a ScanResult. Grounded on the teacher's
// core/orchestrator/orchestrator.go: a staged state machine
// (transitionState/executeX per stage), deferred cleanup, and a
// fail-fast helper — generalized from a chaos-test lifecycle to a
// crash-log batch scan.
package orchestrator

import (
	"time"

	"github.com/classic-analyzer/classic-core/pkg/conflict"
	"github.com/classic-analyzer/classic-core/pkg/crashlog"
	"github.com/classic-analyzer/classic-core/pkg/plugin"
	"github.com/classic-analyzer/classic-core/pkg/report"
	"github.com/classic-analyzer/classic-core/pkg/scheduler"
	"github.com/classic-analyzer/classic-core/pkg/suspect"
)

// State is one stage of the orchestrator's run, mirroring the
// teacher's TestState enum shape.
type State int

const (
	StateValidate State = iota
	StateReformat
	StateSchedule
	StateAnalyze
	StateAggregate
	StateReport
	StateArchive
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateValidate:
		return "VALIDATE"
	case StateReformat:
		return "REFORMAT"
	case StateSchedule:
		return "SCHEDULE"
	case StateAnalyze:
		return "ANALYZE"
	case StateAggregate:
		return "AGGREGATE"
	case StateReport:
		return "REPORT"
	case StateArchive:
		return "ARCHIVE"
	case StateCompleted:
		return "COMPLETED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// ScanRequest is the orchestrator's input, per spec.md §3.
type ScanRequest struct {
	LogPaths        []string
	OutputDir       string
	ModsPath        string
	FCXMode         bool
	Simplify        bool
	ShowFormIDValues bool
	MoveUnsolved    bool
	PreferredMode   scheduler.Mode
	BatchSize       int
	MaxConcurrent   int
	ContinueOnError bool
	PerLogTimeout   time.Duration
	Reformat        bool
	BackupDir       string
}

// FailedScan is one log's terminal failure, recorded instead of
// aborting the run when ContinueOnError is set.
type FailedScan struct {
	Path string
	Err  error
}

// DetailedResult is one log's full per-log outcome, the unit
// ScanResult.DetailedResults collects, sorted by Path for determinism
// (spec.md §5).
type DetailedResult struct {
	Path            string
	Log             *crashlog.CrashLog
	Suspects        []suspect.DetectedSuspect
	Findings        []conflict.ModFinding
	PluginAnalysis  plugin.Analysis
	ResolvedFormIDs []report.ResolvedFormID
	ReportPath      string
	Succeeded       bool
	Duration        time.Duration
}

// ScanResult is the orchestrator's output, per spec.md §3: aggregated
// counts, histograms, messages, generated report paths.
type ScanResult struct {
	RunID string

	DetailedResults []DetailedResult
	Failed          []FailedScan

	SuccessfulCount int
	FailedCount     int
	PartialCount    int

	ConflictHistogram map[string]int
	GameHistogram     map[string]int

	Warnings []string
	Errors   []string

	ReportPaths []string
	SummaryPath string

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	State     State
	Cancelled bool
}
