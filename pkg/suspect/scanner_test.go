package suspect

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classic-analyzer/classic-core/pkg/crashlog"
	"github.com/classic-analyzer/classic-core/pkg/rules"
)

const scannerFixtureYAML = `
crashlog_error_check:
  "5 | Stack Overflow Crash": "EXCEPTION_STACK_OVERFLOW"
crashlog_stack_check:
  "4 | Bad Havok Physics":
    - "ME-REQ|access violation"
    - "havok.dll"
    - "ME-OPT|physics"
  "3 | Low Confidence Pattern":
    - "rarely.dll"
    - "seldom.dll"
`

func loadScannerDatabase(t *testing.T) *rules.Database {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "main.yaml")
	require.NoError(t, os.WriteFile(path, []byte(scannerFixtureYAML), 0o644))
	store, err := rules.New(rules.Main, path)
	require.NoError(t, err)
	return rules.LoadDatabase(store, nil)
}

func logWith(mainError string, callStack ...string) *crashlog.CrashLog {
	return &crashlog.CrashLog{
		MainError: mainError,
		Segments: map[string][]string{
			crashlog.SegmentCallStack: callStack,
		},
	}
}

func TestScan_ErrorSignalMatch(t *testing.T) {
	s := New(loadScannerDatabase(t))
	log := logWith("Unhandled exception \"EXCEPTION_STACK_OVERFLOW\" at 0x1234")

	suspects := s.Scan(log)
	require.NotEmpty(t, suspects)
	assert.Equal(t, "Stack Overflow Crash", suspects[0].Name)
	assert.Equal(t, 1.0, suspects[0].Confidence)
}

func TestScan_StackSignalRequiresMainErrorGate(t *testing.T) {
	s := New(loadScannerDatabase(t))
	// No "access violation" in the main error, so the ME-REQ gate fails
	// regardless of how much of the call stack matches.
	log := logWith("some other crash", "havok.dll", "havok.dll", "physics")

	suspects := s.Scan(log)
	for _, sp := range suspects {
		assert.NotEqual(t, "Bad Havok Physics", sp.Name)
	}
}

func TestScan_StackSignalSatisfiedThreshold(t *testing.T) {
	s := New(loadScannerDatabase(t))
	log := logWith("access violation at 0x1234", "havok.dll crashed")

	suspects := s.Scan(log)
	var found *DetectedSuspect
	for i := range suspects {
		if suspects[i].Name == "Bad Havok Physics" {
			found = &suspects[i]
		}
	}
	require.NotNil(t, found)
	assert.Contains(t, found.MatchedSignals, "ME-REQ|access violation")
}

func TestScan_OccurrenceCapDoesNotInflateConfidence(t *testing.T) {
	s := New(loadScannerDatabase(t))
	// "rarely.dll" repeated far past the occurrence cap must still only
	// contribute 1.0 toward the satisfied-signal total, per the capped
	// per-signal contribution rule.
	stack := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		stack = append(stack, "rarely.dll")
	}
	log := logWith("unrelated main error", stack...)

	suspects := s.Scan(log)
	var found *DetectedSuspect
	for i := range suspects {
		if suspects[i].Name == "Low Confidence Pattern" {
			found = &suspects[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, 0.5, found.Confidence, "one of two non-required signals satisfied => 0.5 confidence")
}

func TestScan_SortedBySeverityThenConfidenceThenName(t *testing.T) {
	s := New(loadScannerDatabase(t))
	log := logWith(
		"Unhandled exception \"EXCEPTION_STACK_OVERFLOW\" access violation at 0x1234",
		"havok.dll crashed", "physics engine fault",
	)

	suspects := s.Scan(log)
	require.Len(t, suspects, 2)
	// "Stack Overflow Crash" (severity 5) outranks "Bad Havok Physics" (severity 4).
	assert.Equal(t, "Stack Overflow Crash", suspects[0].Name)
	assert.Equal(t, "Bad Havok Physics", suspects[1].Name)
}
