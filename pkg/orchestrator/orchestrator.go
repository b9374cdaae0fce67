package orchestrator

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/classic-analyzer/classic-core/pkg/cache"
	"github.com/classic-analyzer/classic-core/pkg/config"
	"github.com/classic-analyzer/classic-core/pkg/conflict"
	"github.com/classic-analyzer/classic-core/pkg/control"
	"github.com/classic-analyzer/classic-core/pkg/crashlog"
	"github.com/classic-analyzer/classic-core/pkg/plugin"
	"github.com/classic-analyzer/classic-core/pkg/progress"
	"github.com/classic-analyzer/classic-core/pkg/report"
	"github.com/classic-analyzer/classic-core/pkg/rules"
	"github.com/classic-analyzer/classic-core/pkg/scheduler"
	"github.com/classic-analyzer/classic-core/pkg/suspect"
)

// Orchestrator coordinates a single batch scan's lifecycle, per
// spec.md §4.10's six-step sequence. Grounded on the teacher's
// Orchestrator.Execute: transitionState per stage, deferred cleanup,
// fail-fast on validation, continue-on-error for per-log failures.
type Orchestrator struct {
	settings *config.Settings
	token    *control.Token
	sink     progress.Sink

	scanner *suspect.Scanner
	detector *conflict.Detector
	cache   *cache.Cache
	sched   *scheduler.Scheduler

	currentState State
}

// New builds an Orchestrator from a loaded settings snapshot, a main
// rule store, an optional game-specific rule store, and a
// cancellation token. sink may be nil, in which case a NopSink is
// used (spec.md §9: the orchestrator holds no reference to UI types,
// only the Sink interface).
func New(settings *config.Settings, main, game *rules.Store, token *control.Token, sink progress.Sink) *Orchestrator {
	if sink == nil {
		sink = progress.NopSink{}
	}
	if token == nil {
		token = control.New(context.Background())
	}

	db := rules.LoadDatabase(main, game)

	var c *cache.Cache
	if settings.Cache.Enabled {
		c = cache.New(settings.Cache.IdleTimeout)
	}

	return &Orchestrator{
		settings:  settings,
		token:     token,
		sink:      sink,
		scanner:   suspect.New(db),
		detector:  conflict.New(db),
		cache:     c,
		sched:     scheduler.New(settings.Scheduler.SampleInterval),
		currentState: StateValidate,
	}
}

// Run executes the full pipeline for req, per spec.md §4.10's steps:
// validate, optional reformat, schedule, dispatch+analyze, write
// reports+aggregate, archive unsolved logs.
func (o *Orchestrator) Run(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	result := &ScanResult{
		RunID:             uuid.NewString(),
		StartTime:         time.Now(),
		ConflictHistogram: make(map[string]int),
		GameHistogram:     make(map[string]int),
	}

	if o.cache != nil {
		o.cache.StartEviction(ctx)
		defer o.cache.Stop()
	}

	o.transition(StateValidate)
	if err := o.validate(req); err != nil {
		return o.fail(result, err)
	}

	logPaths := req.LogPaths
	if req.Reformat {
		o.transition(StateReformat)
		reformatted, err := o.reformatAll(req)
		if err != nil {
			return o.fail(result, err)
		}
		logPaths = reformatted
	}

	o.transition(StateSchedule)
	o.sink.Publish(progress.ProgressEvent{Kind: progress.EventStageStarted, Timestamp: time.Now(), Stage: "schedule"})

	schedReq := scheduler.Request{
		LogPaths:        logPaths,
		PreferredMode:   req.PreferredMode,
		BatchSize:       req.BatchSize,
		MaxConcurrent:   req.MaxConcurrent,
		PerLogTimeout:   req.PerLogTimeout,
		ContinueOnError: req.ContinueOnError,
	}

	o.transition(StateAnalyze)

	var mu sync.Mutex
	detailsByPath := make(map[string]DetailedResult)

	analyze := func(runCtx context.Context, logPath string) scheduler.LogOutcome {
		o.sink.Publish(progress.ProgressEvent{Kind: progress.EventLogStarted, Timestamp: time.Now(), LogPath: logPath})
		detail, err := o.analyzeOne(runCtx, req, logPath)

		mu.Lock()
		detailsByPath[logPath] = detail
		mu.Unlock()

		o.sink.Publish(progress.ProgressEvent{Kind: progress.EventLogCompleted, Timestamp: time.Now(), LogPath: logPath})

		if err != nil {
			return scheduler.LogOutcome{Path: logPath, Status: scheduler.OutcomeFailed, Err: err}
		}
		if !detail.Succeeded {
			return scheduler.LogOutcome{Path: logPath, Status: scheduler.OutcomePartial}
		}
		return scheduler.LogOutcome{Path: logPath, Status: scheduler.OutcomeSuccess}
	}

	schedResult := o.sched.Run(o.token.Context(), schedReq, analyze)
	result.Cancelled = schedResult.Cancelled

	o.transition(StateAggregate)
	for _, outcome := range schedResult.Outcomes {
		detail, ok := detailsByPath[outcome.Path]
		if !ok {
			detail = DetailedResult{Path: outcome.Path, Succeeded: false}
		}
		result.DetailedResults = append(result.DetailedResults, detail)

		switch outcome.Status {
		case scheduler.OutcomeSuccess:
			result.SuccessfulCount++
		case scheduler.OutcomePartial:
			result.PartialCount++
		default:
			result.FailedCount++
			result.Failed = append(result.Failed, FailedScan{Path: outcome.Path, Err: outcome.Err})
			if outcome.Err != nil {
				result.Errors = append(result.Errors, outcome.Err.Error())
			}
			if !req.ContinueOnError {
				return o.fail(result, fmt.Errorf("analysis failed for %s: %w", outcome.Path, outcome.Err))
			}
		}

		for _, f := range detail.Findings {
			result.ConflictHistogram[f.Description]++
		}
		if detail.Log != nil {
			result.GameHistogram[detail.Log.GameVersion]++
		}
	}

	sort.Slice(result.DetailedResults, func(i, j int) bool {
		return result.DetailedResults[i].Path < result.DetailedResults[j].Path
	})

	o.transition(StateReport)
	if err := o.writeReports(req, result); err != nil {
		result.Warnings = append(result.Warnings, err.Error())
	}

	o.transition(StateArchive)
	if req.MoveUnsolved {
		o.archiveUnsolved(req, result)
	}

	o.transition(StateCompleted)
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	result.State = StateCompleted

	return result, nil
}

func (o *Orchestrator) transition(s State) {
	o.currentState = s
}

func (o *Orchestrator) fail(result *ScanResult, err error) (*ScanResult, error) {
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	result.State = StateFailed
	result.Errors = append(result.Errors, err.Error())
	return result, err
}

// validate checks req per spec.md §4.10 step 1: paths exist, output
// directory writable, numeric fields in range.
func (o *Orchestrator) validate(req ScanRequest) error {
	if len(req.LogPaths) == 0 {
		return fmt.Errorf("scan request has no log paths")
	}
	for _, p := range req.LogPaths {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("log path %q: %w", p, err)
		}
	}
	if req.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return fmt.Errorf("output directory %q not writable: %w", req.OutputDir, err)
	}
	if req.BatchSize < 0 {
		return fmt.Errorf("batch size must not be negative")
	}
	if req.MaxConcurrent < 0 {
		return fmt.Errorf("max concurrent must not be negative")
	}
	return nil
}

// reformatAll applies a line-filter to each log, writing a sibling
// ".reformatted" copy, per spec.md §4.10 step 2. The filter here only
// converts CRLF line endings to LF; trailing whitespace is left as is,
// and the orchestrator never mutates the original file.
func (o *Orchestrator) reformatAll(req ScanRequest) ([]string, error) {
	out := make([]string, 0, len(req.LogPaths))
	for _, p := range req.LogPaths {
		reformatted, err := reformatLog(p)
		if err != nil {
			if req.ContinueOnError {
				o.sink.Publish(progress.ProgressEvent{Kind: progress.EventWarning, Timestamp: time.Now(), Message: fmt.Sprintf("reformat failed for %s: %v", p, err)})
				out = append(out, p)
				continue
			}
			return nil, err
		}
		out = append(out, reformatted)
	}
	return out, nil
}

func reformatLog(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %q: %w", path, err)
	}

	dest := path + ".reformatted"
	if err := os.WriteFile(dest, normalizeLineEndings(data), 0o644); err != nil {
		return "", fmt.Errorf("write reformatted copy %q: %w", dest, err)
	}
	return dest, nil
}

func normalizeLineEndings(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			continue
		}
		out = append(out, data[i])
	}
	return out
}

// resolveFormIDs extracts every explicit FormID reference from the
// call-stack segment and resolves each against the log's plugin list,
// per spec.md §4.5 and the ShowFormIDValues request flag.
func resolveFormIDs(log *crashlog.CrashLog) []report.ResolvedFormID {
	ids := plugin.ExtractFormIDs(log.CallStackText())
	if len(ids) == 0 {
		return nil
	}

	out := make([]report.ResolvedFormID, 0, len(ids))
	for _, id := range ids {
		filename, ok := id.Resolve(log.Plugins)
		out = append(out, report.ResolvedFormID{
			Hex:      fmt.Sprintf("%08X", uint32(id)),
			Filename: filename,
			Resolved: ok,
		})
	}
	return out
}

// analyzeOne runs the fixed-order per-log pipeline spec.md §5
// specifies: parse → suspects → conflicts → plugins → formids.
func (o *Orchestrator) analyzeOne(ctx context.Context, req ScanRequest, logPath string) (DetailedResult, error) {
	start := time.Now()

	var cacheKey string
	if o.cache != nil {
		if raw, err := os.ReadFile(logPath); err == nil {
			cacheKey = cache.HashContent(raw)
			if cached, ok := o.cache.Get(cacheKey); ok {
				if detail, ok := cached.(DetailedResult); ok {
					detail.Duration = time.Since(start)
					return detail, nil
				}
			}
		}
	}

	parser := crashlog.New()
	log, err := parser.ParseFile(logPath)
	if err != nil {
		return DetailedResult{Path: logPath, Succeeded: false}, err
	}

	suspects := o.scanner.Scan(log)
	findings := o.detector.Detect(log)
	pluginAnalysis := plugin.Analyze(log.Plugins)

	var resolvedFormIDs []report.ResolvedFormID
	if req.ShowFormIDValues {
		resolvedFormIDs = resolveFormIDs(log)
	}

	detail := DetailedResult{
		Path:            logPath,
		Log:             log,
		Suspects:        suspects,
		Findings:        findings,
		PluginAnalysis:  pluginAnalysis,
		ResolvedFormIDs: resolvedFormIDs,
		Succeeded:       true,
		Duration:        time.Since(start),
	}

	if o.cache != nil && cacheKey != "" {
		o.cache.Put(cacheKey, detail)
	}

	select {
	case <-ctx.Done():
		detail.Succeeded = false
		return detail, ctx.Err()
	default:
	}

	return detail, nil
}

// writeReports renders one markdown report per successfully analyzed
// log plus a batch summary, per spec.md §4.8. Reports are namespaced
// under a per-run subdirectory keyed by result.RunID, so concurrent or
// back-to-back runs against the same output directory never overwrite
// each other's reports.
func (o *Orchestrator) writeReports(req ScanRequest, result *ScanResult) error {
	outputDir := req.OutputDir
	if outputDir == "" {
		outputDir = o.settings.Report.OutputDir
	}
	gen := report.New(filepath.Join(outputDir, result.RunID))

	var firstErr error
	var totalElapsed time.Duration
	var entries []report.BatchEntry

	for i := range result.DetailedResults {
		d := &result.DetailedResults[i]
		totalElapsed += d.Duration
		entries = append(entries, report.BatchEntry{
			Path:      d.Path,
			Succeeded: d.Succeeded,
			Suspects:  d.Suspects,
			Findings:  d.Findings,
			Duration:  d.Duration,
		})

		if !d.Succeeded || d.Log == nil {
			continue
		}

		path, err := gen.WriteLogReport(report.LogReport{
			Log:             d.Log,
			Suspects:        d.Suspects,
			Findings:        d.Findings,
			PluginAnalysis:  d.PluginAnalysis,
			ResolvedFormIDs: d.ResolvedFormIDs,
		})
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		d.ReportPath = path
		result.ReportPaths = append(result.ReportPaths, path)
	}

	summaryPath, err := gen.WriteBatchSummary(report.BatchSummary{
		Entries:      entries,
		TotalElapsed: totalElapsed,
		TopN:         o.settings.Report.TopNConflicts,
	})
	if err != nil {
		if firstErr == nil {
			firstErr = err
		}
	} else {
		result.SummaryPath = summaryPath
	}

	return firstErr
}

// archiveUnsolved moves logs with no successful report into req.BackupDir,
// per spec.md §4.10 step 5's "move semantics; cross-device falls back to
// copy + delete".
func (o *Orchestrator) archiveUnsolved(req ScanRequest, result *ScanResult) {
	backupDir := req.BackupDir
	if backupDir == "" {
		backupDir = o.settings.Scan.BackupDir
	}
	if backupDir == "" {
		return
	}
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("archive unsolved: %v", err))
		return
	}

	for _, d := range result.DetailedResults {
		if d.Succeeded && d.ReportPath != "" {
			continue
		}
		dest := filepath.Join(backupDir, filepath.Base(d.Path))
		if err := moveFile(d.Path, dest); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("archive %s: %v", d.Path, err))
		}
	}
}

// moveFile renames src to dst, falling back to copy+delete when the
// rename fails across filesystem boundaries (EXDEV).
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
