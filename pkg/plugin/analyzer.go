// Package plugin implements the plugin list and FormID analyzers (C5).
// Field and issue-type naming here is grounded on the mod-troubleshooter
// reference's plugin/loadorder types, adapted to this spec's plugin-list
// and FormID-resolution contract rather than a full plugin-header parse.
package plugin

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/classic-analyzer/classic-core/pkg/crashlog"
)

// regularAdvisoryThreshold is the regular-slot count above which a
// non-critical warning is raised; regularCap is the hard ceiling on
// regular-slot plugins and combinedCriticalCap the critical ceiling on
// the combined count.
const (
	regularAdvisoryThreshold = 200
	regularCap               = 255
	combinedCriticalCap      = 255
)

// IssueType classifies a load-order Issue.
type IssueType string

const (
	IssueMissingMaster    IssueType = "missing_master"
	IssueDuplicatePlugin  IssueType = "duplicate_plugin"
	IssuePluginLimit      IssueType = "plugin_limit_exceeded"
)

// IssueSeverity indicates how serious an Issue is.
type IssueSeverity string

const (
	SeverityAdvisory IssueSeverity = "advisory"
	SeverityCritical IssueSeverity = "critical"
)

// Issue is one detected plugin-list problem.
type Issue struct {
	Type     IssueType
	Severity IssueSeverity
	Plugin   string
	Message  string
}

// Analysis is C5's plugin-analyzer output.
type Analysis struct {
	RegularCount   int
	LightCount     int
	MissingMasters []string
	Duplicates     []string
	Issues         []Issue
}

// Analyze computes plugin counts and load-order issues from a parsed
// plugin list, per spec.md §4.5 and the invariant in §8 that
// RegularCount must never silently exceed 255 without a critical
// warning.
func Analyze(plugins []crashlog.PluginEntry) Analysis {
	a := Analysis{}

	seen := make(map[string]int) // lowercased filename -> occurrence count
	var order []string

	for _, p := range plugins {
		if p.IsLight() {
			a.LightCount++
		} else {
			a.RegularCount++
		}

		key := strings.ToLower(p.Filename)
		if seen[key] == 0 {
			order = append(order, key)
		}
		seen[key]++

		if p.Status == crashlog.PluginMissingMaster {
			a.MissingMasters = append(a.MissingMasters, p.Filename)
		}
	}

	for _, key := range order {
		if seen[key] > 1 {
			a.Duplicates = append(a.Duplicates, key)
			a.Issues = append(a.Issues, Issue{
				Type:     IssueDuplicatePlugin,
				Severity: SeverityAdvisory,
				Plugin:   key,
				Message:  fmt.Sprintf("%s appears %d times in the plugin list", key, seen[key]),
			})
		}
	}
	sort.Strings(a.Duplicates)
	sort.Strings(a.MissingMasters)

	if a.RegularCount > regularAdvisoryThreshold {
		a.Issues = append(a.Issues, Issue{
			Type:     IssuePluginLimit,
			Severity: SeverityAdvisory,
			Message:  fmt.Sprintf("regular plugin count %d exceeds the advisory threshold of %d", a.RegularCount, regularAdvisoryThreshold),
		})
	}
	if a.RegularCount+a.LightCount > combinedCriticalCap || a.RegularCount > regularCap {
		a.Issues = append(a.Issues, Issue{
			Type:     IssuePluginLimit,
			Severity: SeverityCritical,
			Message:  "Plugin Limit Exceeded",
		})
	}

	return a
}

// FormID is the 32-bit identifier spec.md §3 describes: the high byte
// identifies the owning plugin's load index, the low 24 bits are the
// in-plugin record ID. For light plugins the high byte is the literal
// 0xFE, the next 12 bits are the sub-plugin index, and the remaining 12
// bits are the record ID.
type FormID uint32

// ParseFormID parses an 8-hex-digit FormID string.
func ParseFormID(hex string) (FormID, error) {
	hex = strings.TrimPrefix(strings.TrimSpace(hex), "0x")
	if len(hex) != 8 {
		return 0, fmt.Errorf("formid %q must be 8 hex digits", hex)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("formid %q is not valid hex: %w", hex, err)
	}
	return FormID(v), nil
}

// IsLight reports whether this FormID's high byte is the light-plugin
// marker 0xFE.
func (f FormID) IsLight() bool {
	return (f >> 24) == 0xFE
}

// LoadIndex returns the two-hex-digit load index for a non-light FormID,
// or "FE" for a light one.
func (f FormID) LoadIndex() string {
	high := byte(f >> 24)
	return fmt.Sprintf("%02X", high)
}

// SubIndex returns the three-hex-digit light-plugin sub-index, valid
// only when IsLight() is true.
func (f FormID) SubIndex() string {
	return fmt.Sprintf("%03X", (f>>12)&0xFFF)
}

// RecordID returns the in-plugin record portion of the FormID: the low
// 24 bits for a regular FormID, the low 12 bits for a light one.
func (f FormID) RecordID() uint32 {
	if f.IsLight() {
		return uint32(f) & 0xFFF
	}
	return uint32(f) & 0xFFFFFF
}

// Resolve maps a FormID to the plugin filename that owns it, per
// spec.md §4.5. Resolution fails with ok=false if no plugin occupies
// the FormID's load index (a missing master).
func (f FormID) Resolve(plugins []crashlog.PluginEntry) (filename string, ok bool) {
	if f.IsLight() {
		sub := f.SubIndex()
		for _, p := range plugins {
			if p.IsLight() && p.SubIndex == sub {
				return p.Filename, true
			}
		}
		return "", false
	}

	index := f.LoadIndex()
	for _, p := range plugins {
		if !p.IsLight() && p.LoadIndex == index {
			return p.Filename, true
		}
	}
	return "", false
}

// formIDReference matches an explicit "Form ID: 0xXXXXXXXX" (or
// "FormID 0xXXXXXXXX") annotation, the form a crash log's call stack
// or module list uses to call out a record reference.
var formIDReference = regexp.MustCompile(`(?i)form\s*id\s*[:\s]\s*0x([0-9A-Fa-f]{8})`)

// ExtractFormIDs scans text (typically a CrashLog's call-stack segment)
// for explicit FormID references and returns the distinct IDs found, in
// first-seen order.
func ExtractFormIDs(text string) []FormID {
	matches := formIDReference.FindAllStringSubmatch(text, -1)
	if matches == nil {
		return nil
	}

	seen := make(map[FormID]bool, len(matches))
	out := make([]FormID, 0, len(matches))
	for _, m := range matches {
		id, err := ParseFormID(m[1])
		if err != nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
