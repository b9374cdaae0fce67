// Package report implements the markdown report generator (C8): a
// per-log diagnostic report in a stable heading order, and a batch
// summary with top-N conflicts and threshold-derived recommendations.
// Grounded on the teacher's reporting/formatter.go (template-driven
// report generation, format-specific render functions) and
// reporting/storage.go (atomic write; no retention cleanup), adapted
// from an HTML/JSON/text test report to a markdown crash-analysis
// report and summary.
package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/classic-analyzer/classic-core/pkg/conflict"
	"github.com/classic-analyzer/classic-core/pkg/crashlog"
	"github.com/classic-analyzer/classic-core/pkg/plugin"
	"github.com/classic-analyzer/classic-core/pkg/suspect"
)

// thresholds for batch-summary recommendations, spec.md §4.8's worked
// examples ("failure rate > 20%, ≥ 10 conflicts, ≥ 10 minutes runtime").
const (
	failureRateThreshold = 0.20
	conflictCountThreshold = 10
	runtimeThreshold       = 10 * time.Minute
)

// LogReport is the per-log material a Generator renders into one
// markdown file, assembled by the orchestrator after running the
// analyzer pipeline on a single CrashLog.
type LogReport struct {
	Log              *crashlog.CrashLog
	Suspects         []suspect.DetectedSuspect
	Findings         []conflict.ModFinding
	PluginAnalysis   plugin.Analysis
	ResolvedFormIDs  []ResolvedFormID
	Warnings         []string
}

// ResolvedFormID is one FormID the orchestrator resolved against the
// log's plugin list, surfaced in the report's FormIDs section.
type ResolvedFormID struct {
	Hex      string
	Filename string
	Resolved bool
}

// BatchEntry is one completed log's outcome, the unit the batch
// summary aggregates over.
type BatchEntry struct {
	Path      string
	Succeeded bool
	Suspects  []suspect.DetectedSuspect
	Findings  []conflict.ModFinding
	Duration  time.Duration
}

// BatchSummary is the aggregate material for the batch-level report.
type BatchSummary struct {
	Entries      []BatchEntry
	TotalElapsed time.Duration
	TopN         int
}

// Generator renders LogReports and BatchSummaries to markdown files
// under OutputDir, writing atomically per spec.md §4.8.
type Generator struct {
	OutputDir string
}

// New creates a Generator writing under outputDir.
func New(outputDir string) *Generator {
	return &Generator{OutputDir: outputDir}
}

var logReportTemplate = template.Must(template.New("log").Funcs(template.FuncMap{
	"severityBadge": severityBadge,
}).Parse(logReportTemplateText))

const logReportTemplateText = `# Crash Analysis: {{.Log.FileName}}

## Basic Information

| Field | Value |
| --- | --- |
| File | {{.Log.FileName}} |
| Game Version | {{.Log.GameVersion}} |
| Crash Generator Version | {{.Log.CrashgenVersion}} |
| Created | {{.Log.CreatedAt.Format "2006-01-02 15:04:05"}} |

## Main Error

` + "```" + `
{{.Log.MainError}}
` + "```" + `

## Identified Mods

{{if .PluginAnalysis.Issues}}{{range .PluginAnalysis.Issues}}- **{{.Type}}** ({{.Severity}}): {{.Plugin}} — {{.Message}}
{{end}}{{else}}No plugin-count or duplicate issues detected.
{{end}}
Regular plugins: {{.PluginAnalysis.RegularCount}} · Light plugins: {{.PluginAnalysis.LightCount}}

## Suspects

{{if .Suspects}}{{range .Suspects}}- {{severityBadge .Severity}} **{{.Name}}** (confidence {{printf "%.2f" .Confidence}})
{{range .RecommendedSolutions}}  - {{.}}
{{end}}{{end}}{{else}}No suspects matched.
{{end}}

## Mod Conflicts

{{if .Findings}}{{range .Findings}}- [{{.Kind}}] {{.Description}}{{if .RemediationURL}} ({{.RemediationURL}}){{end}}
{{end}}{{else}}No mod-conflict findings.
{{end}}

## FormIDs

{{if .ResolvedFormIDs}}{{range .ResolvedFormIDs}}- {{.Hex}}: {{if .Resolved}}{{.Filename}}{{else}}unresolved{{end}}
{{end}}{{else}}No FormIDs referenced.
{{end}}

## Recommendations

{{if .Warnings}}{{range .Warnings}}- {{.}}
{{end}}{{else}}None.
{{end}}
`

func severityBadge(severity int) string {
	switch {
	case severity >= 5:
		return "🔴 CRITICAL"
	case severity >= 3:
		return "🟠 HIGH"
	default:
		return "🟡 LOW"
	}
}

// WriteLogReport renders r into <OutputDir>/<log-basename>.md, written
// atomically (temp file then rename) per spec.md §4.8.
func (g *Generator) WriteLogReport(r LogReport) (string, error) {
	var buf bytes.Buffer
	if err := logReportTemplate.Execute(&buf, r); err != nil {
		return "", fmt.Errorf("render log report: %w", err)
	}

	name := strings.TrimSuffix(filepath.Base(r.Log.FileName), filepath.Ext(r.Log.FileName)) + ".md"
	dest := filepath.Join(g.OutputDir, name)
	if err := atomicWrite(dest, buf.Bytes()); err != nil {
		return "", err
	}
	return dest, nil
}

// WriteBatchSummary renders a batch-level markdown summary: counts,
// top-N conflicts (by occurrence across entries), and
// threshold-derived recommendations.
func (g *Generator) WriteBatchSummary(s BatchSummary) (string, error) {
	var buf bytes.Buffer

	total := len(s.Entries)
	failed := 0
	allFindings := make(map[string]int)
	for _, e := range s.Entries {
		if !e.Succeeded {
			failed++
		}
		for _, f := range e.Findings {
			allFindings[f.Description]++
		}
	}

	failureRate := 0.0
	if total > 0 {
		failureRate = float64(failed) / float64(total)
	}

	buf.WriteString("# Batch Summary\n\n")
	buf.WriteString("## Counts\n\n")
	fmt.Fprintf(&buf, "- Total logs: %d\n", total)
	fmt.Fprintf(&buf, "- Failed: %d (%.1f%%)\n", failed, failureRate*100)
	fmt.Fprintf(&buf, "- Total elapsed: %s\n\n", s.TotalElapsed)

	buf.WriteString("## Top Conflicts\n\n")
	top := topNConflicts(allFindings, s.TopN)
	if len(top) == 0 {
		buf.WriteString("None detected.\n\n")
	} else {
		table := tablewriter.NewWriter(&buf)
		table.SetHeader([]string{"Conflict", "Occurrences"})
		for _, entry := range top {
			table.Append([]string{entry.key, fmt.Sprint(entry.count)})
		}
		table.Render()
		buf.WriteString("\n")
	}

	buf.WriteString("## Recommendations\n\n")
	recs := recommendations(failureRate, len(allFindings), s.TotalElapsed)
	if len(recs) == 0 {
		buf.WriteString("No threshold-triggered recommendations.\n")
	} else {
		for _, r := range recs {
			fmt.Fprintf(&buf, "- %s\n", r)
		}
	}

	dest := filepath.Join(g.OutputDir, "summary.md")
	if err := atomicWrite(dest, buf.Bytes()); err != nil {
		return "", err
	}
	return dest, nil
}

type conflictCount struct {
	key   string
	count int
}

func topNConflicts(counts map[string]int, n int) []conflictCount {
	if n <= 0 {
		n = 10
	}
	entries := make([]conflictCount, 0, len(counts))
	for k, c := range counts {
		entries = append(entries, conflictCount{k, c})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].key < entries[j].key
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

// recommendations derives threshold-based advice per spec.md §4.8's
// worked thresholds: failure rate > 20%, ≥ 10 conflicts, ≥ 10 minutes
// runtime.
func recommendations(failureRate float64, conflictCount int, elapsed time.Duration) []string {
	var recs []string
	if failureRate > failureRateThreshold {
		recs = append(recs, fmt.Sprintf("failure rate %.1f%% exceeds 20%% — investigate recurring crash patterns before continuing", failureRate*100))
	}
	if conflictCount >= conflictCountThreshold {
		recs = append(recs, fmt.Sprintf("%d distinct mod conflicts detected — consider resolving load-order or patch conflicts first", conflictCount))
	}
	if elapsed >= runtimeThreshold {
		recs = append(recs, fmt.Sprintf("batch runtime %s exceeded 10 minutes — consider a smaller batch size or a leaner scheduling mode", elapsed.Round(time.Second)))
	}
	return recs
}

// atomicWrite writes data to a temp file in dest's directory, then
// renames it over dest, per spec.md §4.8 ("written atomically: write to
// temp file, rename on success") — the same shape as
// pkg/rules.Store.persist.
func atomicWrite(dest string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}

	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp report: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("rename report into place: %w", err)
	}
	return nil
}
