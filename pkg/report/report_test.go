package report

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classic-analyzer/classic-core/pkg/conflict"
	"github.com/classic-analyzer/classic-core/pkg/crashlog"
	"github.com/classic-analyzer/classic-core/pkg/suspect"
)

func TestWriteLogReport_ContainsExpectedSections(t *testing.T) {
	dir := t.TempDir()
	g := New(dir)

	r := LogReport{
		Log: &crashlog.CrashLog{
			FileName:    "crash-2024-01-01.log",
			GameVersion: "Fallout 4 v1.10.984",
			MainError:   "EXCEPTION_STACK_OVERFLOW",
			CreatedAt:   time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		},
		Suspects: []suspect.DetectedSuspect{
			{Name: "Stack Overflow Crash", Severity: 5, Confidence: 1.0},
		},
		Findings: []conflict.ModFinding{
			{Kind: conflict.Conflict, Description: "campfire vs subsistence"},
		},
	}

	path, err := g.WriteLogReport(r)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "crash-2024-01-01.md"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)

	assert.Contains(t, content, "## Basic Information")
	assert.Contains(t, content, "## Main Error")
	assert.Contains(t, content, "## Identified Mods")
	assert.Contains(t, content, "## Suspects")
	assert.Contains(t, content, "## Mod Conflicts")
	assert.Contains(t, content, "## FormIDs")
	assert.Contains(t, content, "## Recommendations")
	assert.Contains(t, content, "Stack Overflow Crash")
	assert.Contains(t, content, "campfire vs subsistence")

	// Heading order must be stable.
	basicIdx := indexOf(content, "## Basic Information")
	mainIdx := indexOf(content, "## Main Error")
	suspectsIdx := indexOf(content, "## Suspects")
	assert.True(t, basicIdx < mainIdx)
	assert.True(t, mainIdx < suspectsIdx)
}

func TestWriteLogReport_RendersResolvedFormIDs(t *testing.T) {
	dir := t.TempDir()
	g := New(dir)

	r := LogReport{
		Log: &crashlog.CrashLog{
			FileName:  "crash-2024-01-02.log",
			MainError: "EXCEPTION_ACCESS_VIOLATION",
			CreatedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		},
		ResolvedFormIDs: []ResolvedFormID{
			{Hex: "00001234", Filename: "Fallout4.esm", Resolved: true},
			{Hex: "050000AB", Resolved: false},
		},
	}

	path, err := g.WriteLogReport(r)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)

	assert.Contains(t, content, "00001234: Fallout4.esm")
	assert.Contains(t, content, "050000AB: unresolved")
	assert.NotContains(t, content, "No FormIDs referenced.")
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func TestWriteBatchSummary_Recommendations(t *testing.T) {
	dir := t.TempDir()
	g := New(dir)

	var entries []BatchEntry
	for i := 0; i < 10; i++ {
		entries = append(entries, BatchEntry{Path: "log.log", Succeeded: i < 7})
	}

	summary := BatchSummary{Entries: entries, TotalElapsed: 11 * time.Minute, TopN: 5}
	path, err := g.WriteBatchSummary(summary)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)

	assert.Contains(t, content, "Total logs: 10")
	assert.Contains(t, content, "Failed: 3")
	assert.Contains(t, content, "exceeded 10 minutes")
}

func TestWriteBatchSummary_NoRecommendationsBelowThresholds(t *testing.T) {
	dir := t.TempDir()
	g := New(dir)

	summary := BatchSummary{
		Entries:      []BatchEntry{{Succeeded: true}},
		TotalElapsed: time.Minute,
	}
	path, err := g.WriteBatchSummary(summary)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "No threshold-triggered recommendations.")
}

func TestTopNConflicts_OrdersByCountThenKey(t *testing.T) {
	counts := map[string]int{"b conflict": 3, "a conflict": 3, "c conflict": 5}
	top := topNConflicts(counts, 2)

	require.Len(t, top, 2)
	assert.Equal(t, "c conflict", top[0].key)
	assert.Equal(t, "a conflict", top[1].key, "ties break alphabetically")
}

func TestSeverityBadge(t *testing.T) {
	assert.Equal(t, "🔴 CRITICAL", severityBadge(5))
	assert.Equal(t, "🟠 HIGH", severityBadge(3))
	assert.Equal(t, "🟡 LOW", severityBadge(1))
}
