package crashlog

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"
)

// utf8BOM is the three-byte UTF-8 byte-order mark some crash loggers
// prepend. No pack library does BOM-aware decoding better than this
// manual check (see DESIGN.md).
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// headerLine matches crash-generator lines of the form
// "Buffout 4 v1.30.1 ... Fallout 4 v1.10.984".
var headerLine = regexp.MustCompile(`^(.+?)\s+v([0-9][\w.]*)\b.*?\b([A-Za-z][\w ]*?)\s+v([0-9][\w.]*)\s*$`)

// segmentHeader matches an uppercase section header terminated by ':' on
// its own line, e.g. "PROBABLE CALL STACK:".
var segmentHeader = regexp.MustCompile(`^([A-Z][A-Z0-9 /_]*):\s*$`)

var recognizedSegments = map[string]bool{
	SegmentCallStack:   true,
	SegmentModules:     true,
	SegmentF4SEPlugins: true,
	SegmentPlugins:     true,
	SegmentSystemSpecs: true,
}

// pluginLine matches "[XX] Name.esp" and "[FE YYY] Name.esl" entries of
// the PLUGINS segment.
var pluginLine = regexp.MustCompile(`^\[([0-9A-Fa-f]{2}|FE)(?:\s+([0-9A-Fa-f]{3}))?\]\s+(.+?)\s*$`)

// Parser tokenizes crash-log files into CrashLog values.
type Parser struct{}

// New returns a Parser. It carries no configuration; every field of the
// parse is derived from the file content itself.
func New() *Parser {
	return &Parser{}
}

// ParseFile reads path and parses it, per C1's contract:
// parse(path) → CrashLog | ParseError.
func (p *Parser) ParseFile(path string) (*CrashLog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, newParseError(KindEncoding, path, fmt.Errorf("read file: %w", err))
	}
	return p.parseBytes(path, raw)
}

func (p *Parser) parseBytes(path string, raw []byte) (*CrashLog, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)

	if !utf8.Valid(raw) {
		return nil, newParseError(KindEncoding, path, fmt.Errorf("invalid UTF-8 after BOM strip"))
	}

	lines := splitLines(raw)
	if len(lines) < 2 {
		return nil, newParseError(KindTruncated, path, fmt.Errorf("file has %d line(s), need at least 2", len(lines)))
	}

	crashgen, gameName, gameVersion, ok := parseHeaderLine(lines[0])
	if !ok {
		return nil, newParseError(KindMalformedHeader, path, fmt.Errorf("line 1 %q does not match crash-generator header format", lines[0]))
	}

	log := &CrashLog{
		FileName:        baseName(path),
		FilePath:        path,
		CrashgenVersion: crashgen,
		GameVersion:     gameName + " v" + gameVersion,
		MainError:       lines[1],
		RawLines:        lines,
		Segments:        make(map[string][]string),
	}

	p.groupSegments(log, lines[2:])

	if plugins, ok := log.Segments[SegmentPlugins]; ok {
		log.Plugins, log.Warnings = parsePlugins(plugins)
	}

	return log, nil
}

// groupSegments walks lines after the header+main-error and assigns runs
// of lines to the segment introduced by the most recent recognized
// header. A header line is itself excluded from its segment's lines.
func (p *Parser) groupSegments(log *CrashLog, lines []string) {
	var current string
	var buf []string

	flush := func() {
		if current != "" {
			log.Segments[current] = append(log.Segments[current], buf...)
		}
		buf = nil
	}

	for _, line := range lines {
		if name, ok := matchSegmentHeader(line); ok {
			flush()
			current = name
			continue
		}
		if current == "" {
			continue // unrecognized leading content stays only in RawLines
		}
		buf = append(buf, line)
	}
	flush()
}

func matchSegmentHeader(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	m := segmentHeader.FindStringSubmatch(trimmed)
	if m == nil {
		return "", false
	}
	name := strings.TrimSpace(m[1])
	if !recognizedSegments[name] {
		return "", false
	}
	return name, true
}

func parseHeaderLine(line string) (crashgen, game, version string, ok bool) {
	m := headerLine.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return "", "", "", false
	}
	return strings.TrimSpace(m[1]) + " v" + m[2], strings.TrimSpace(m[3]), m[4], true
}

// parsePlugins parses the PLUGINS segment's lines into PluginEntry
// records. Lines that don't match "<index> <filename>" are discarded
// with a warning, per spec.md §4.1 step 4.
func parsePlugins(lines []string) ([]PluginEntry, []string) {
	entries := make([]PluginEntry, 0, len(lines))
	var warnings []string

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		m := pluginLine.FindStringSubmatch(trimmed)
		if m == nil {
			warnings = append(warnings, fmt.Sprintf("unrecognized PLUGINS line: %q", line))
			continue
		}

		index := strings.ToUpper(m[1])
		entry := PluginEntry{
			LoadIndex: index,
			SubIndex:  strings.ToUpper(m[2]),
			Filename:  m[3],
			Type:      pluginTypeFromFilename(m[3]),
		}
		if index == "FE" {
			entry.Status = PluginLight
		} else {
			entry.Status = PluginRegular
		}
		entries = append(entries, entry)
	}

	return entries, warnings
}

func pluginTypeFromFilename(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".esm"):
		return "esm"
	case strings.HasSuffix(lower, ".esl"):
		return "esl"
	case strings.HasSuffix(lower, ".esp"):
		return "esp"
	default:
		return ""
	}
}

func splitLines(raw []byte) []string {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}

func baseName(path string) string {
	idx := strings.LastIndexAny(path, `/\`)
	if idx < 0 {
		return path
	}
	return path[idx+1:]
}
