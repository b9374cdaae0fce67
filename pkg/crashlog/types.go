// Package crashlog implements the segmented crash-log parser (C1): it
// tokenizes one Buffout4/Crash-Logger-style crash log into a header, a
// main error, a set of named segments, and a parsed plugin list.
package crashlog

import "time"

// Recognized segment header names. A segment is the ordered run of lines
// between one of these headers and the next header (or end of file).
const (
	SegmentCallStack   = "PROBABLE CALL STACK"
	SegmentModules     = "MODULES"
	SegmentF4SEPlugins = "F4SE PLUGINS"
	SegmentPlugins     = "PLUGINS"
	SegmentSystemSpecs = "SYSTEM SPECS"
)

// PluginStatus classifies a PluginEntry after load-order analysis.
type PluginStatus string

const (
	PluginRegular        PluginStatus = "regular"
	PluginLight          PluginStatus = "light"
	PluginMissingMaster  PluginStatus = "missing-master"
	PluginDisabled       PluginStatus = "disabled"
)

// PluginEntry is one line of the PLUGINS segment.
//
// LoadIndex is the two-hex-digit index ("00".."FF"), or the literal "FE"
// for light plugins; SubIndex is the three-hex-digit sub-index present
// only for light plugins ("FE xxx"). Indices are unique within one log;
// FE xxx entries count toward the 4096 light-plugin cap, all others
// toward the 255 regular-plugin cap.
type PluginEntry struct {
	LoadIndex string
	SubIndex  string
	Filename  string
	Status    PluginStatus
	// Type classifies the plugin by filename extension (esm/esp/esl),
	// independent of LoadIndex — report-display only, per SPEC_FULL.md §3.
	Type string
}

// IsLight reports whether this entry occupies the light-plugin (FE xxx)
// index space rather than a regular two-hex-digit slot.
func (p PluginEntry) IsLight() bool {
	return p.LoadIndex == "FE"
}

// CrashLog is the immutable result of parsing one crash-log file. It is
// borrowed (never mutated) by every downstream analyzer.
type CrashLog struct {
	FileName        string
	FilePath        string
	CreatedAt       time.Time
	GameVersion     string
	CrashgenVersion string
	MainError       string

	// RawLines is every line of the file in original order, including
	// lines consumed into a segment and any unrecognized leading or
	// trailing content.
	RawLines []string

	// Segments maps a recognized segment name to its ordered lines. Every
	// key here is one of the Segment* constants above.
	Segments map[string][]string

	// Plugins is the ordered, parsed PLUGINS segment.
	Plugins []PluginEntry

	// Warnings accumulates non-fatal issues encountered while parsing
	// (e.g. a PLUGINS line that didn't match "<index> <filename>").
	Warnings []string
}

// Segment returns the lines of the named segment, or nil if the log
// carried no such section.
func (c *CrashLog) Segment(name string) []string {
	return c.Segments[name]
}

// CallStackText concatenates the call-stack segment's lines with "\n",
// the form the suspect scanner's bare-signal occurrence counting (§4.3)
// operates on.
func (c *CrashLog) CallStackText() string {
	lines := c.Segments[SegmentCallStack]
	return joinLines(lines)
}

func joinLines(lines []string) string {
	total := 0
	for _, l := range lines {
		total += len(l) + 1
	}
	buf := make([]byte, 0, total)
	for i, l := range lines {
		if i > 0 {
			buf = append(buf, '\n')
		}
		buf = append(buf, l...)
	}
	return string(buf)
}

// SystemSpecsText concatenates the SYSTEM SPECS segment, used to detect
// the primary GPU vendor string for C4's GPU-gated rules.
func (c *CrashLog) SystemSpecsText() string {
	return joinLines(c.Segments[SegmentSystemSpecs])
}
