// Package conflict implements the mod-conflict detector (C4): four
// sequential passes over a crash log's plugin list that flag missing
// essential mods, known-unstable mods, conflicting mod pairs, and
// documented solutions.
package conflict

import (
	"sort"
	"strings"

	"github.com/classic-analyzer/classic-core/pkg/crashlog"
	"github.com/classic-analyzer/classic-core/pkg/rules"
)

// FindingKind classifies a ModFinding, per spec.md §4.4.
type FindingKind string

const (
	Recommendation FindingKind = "Recommendation"
	Warning        FindingKind = "Warning"
	Conflict       FindingKind = "Conflict"
	Info           FindingKind = "Info"
)

// ModFinding is one emitted result of a conflict-detection pass.
type ModFinding struct {
	Kind            FindingKind
	RuleKey         string
	Description     string
	MatchedPlugins  []string
	RemediationURL  string
}

// Detector evaluates a Database's mod rules against crash logs.
type Detector struct {
	db *rules.Database
}

// New builds a Detector from a rule Database.
func New(db *rules.Database) *Detector {
	return &Detector{db: db}
}

// Detect implements C4's contract: detect(CrashLog, ModRuleSet) →
// sequence of ModFinding. The four passes run in the fixed order
// spec.md §4.4 specifies; within each pass, rules are iterated in the
// stable alphabetical key order rules.LoadDatabase already sorted them
// into.
func (d *Detector) Detect(log *crashlog.CrashLog) []ModFinding {
	filenames := lowerFilenames(log.Plugins)
	gpuVendor := detectGPUVendor(log.SystemSpecsText())

	var findings []ModFinding
	findings = append(findings, d.essentialAbsent(filenames, gpuVendor)...)
	findings = append(findings, d.frequentCrasher(filenames, gpuVendor)...)
	findings = append(findings, d.conflictingPairs(filenames)...)
	findings = append(findings, d.knownSolution(filenames, gpuVendor)...)
	return findings
}

func lowerFilenames(plugins []crashlog.PluginEntry) []string {
	out := make([]string, len(plugins))
	for i, p := range plugins {
		out[i] = strings.ToLower(p.Filename)
	}
	sort.Strings(out)
	return out
}

// detectGPUVendor extracts the primary GPU vendor string from the
// SYSTEM SPECS segment text. Missing SYSTEM SPECS (empty text) yields
// "unknown", per spec.md §9's Open Question decision: GPU-gated rules
// are then never gated off by vendor.
func detectGPUVendor(systemSpecs string) string {
	upper := strings.ToUpper(systemSpecs)
	switch {
	case strings.Contains(upper, "NVIDIA"):
		return "NVIDIA"
	case strings.Contains(upper, "AMD") || strings.Contains(upper, "RADEON"):
		return "AMD"
	default:
		return "unknown"
	}
}

// matchIdentifier reports whether identifier (optionally negated with a
// leading '!') matches any plugin filename via case-insensitive
// containment.
func matchIdentifier(identifier string, filenames []string) (string, bool) {
	negate := strings.HasPrefix(identifier, "!")
	needle := strings.ToLower(strings.TrimPrefix(identifier, "!"))

	for _, fn := range filenames {
		if strings.Contains(fn, needle) {
			if negate {
				return "", false
			}
			return fn, true
		}
	}
	if negate {
		return identifier, true
	}
	return "", false
}

// gpuGated reports whether a rule with the given GPU-vendor constraint
// should be skipped for the detected vendor. An absent constraint or an
// undetermined vendor never gates off (spec.md §9's Open Question
// decision 3).
func gpuGated(ruleVendor, gpuVendor string) bool {
	return ruleVendor != "" && gpuVendor != "unknown" && ruleVendor != gpuVendor
}

func anyMatch(identifiers []string, filenames []string) []string {
	var matched []string
	for _, id := range identifiers {
		if fn, ok := matchIdentifier(id, filenames); ok {
			matched = append(matched, fn)
		}
	}
	sort.Strings(matched)
	return matched
}

func (d *Detector) essentialAbsent(filenames []string, gpuVendor string) []ModFinding {
	var out []ModFinding
	for _, rule := range d.db.Essential {
		if gpuGated(rule.GPUVendor, gpuVendor) {
			continue
		}
		if len(anyMatch(rule.Identifiers, filenames)) == 0 {
			out = append(out, ModFinding{
				Kind:        Recommendation,
				RuleKey:     rule.Key,
				Description: rule.Description,
			})
		}
	}
	return out
}

func (d *Detector) frequentCrasher(filenames []string, gpuVendor string) []ModFinding {
	var out []ModFinding
	for _, rule := range d.db.Frequent {
		if gpuGated(rule.GPUVendor, gpuVendor) {
			continue
		}
		matched := anyMatch(rule.Identifiers, filenames)
		if len(matched) == 0 {
			continue
		}
		out = append(out, ModFinding{
			Kind:           Warning,
			RuleKey:        rule.Key,
			Description:    rule.Description,
			MatchedPlugins: matched,
		})
	}
	return out
}

func (d *Detector) conflictingPairs(filenames []string) []ModFinding {
	var out []ModFinding
	for _, rule := range d.db.Conflicts {
		matchedA := anyMatch(rule.GroupA, filenames)
		matchedB := anyMatch(rule.GroupB, filenames)
		if len(matchedA) == 0 || len(matchedB) == 0 {
			continue
		}
		matched := append(append([]string{}, matchedA...), matchedB...)
		sort.Strings(matched)
		out = append(out, ModFinding{
			Kind:           Conflict,
			RuleKey:        rule.Key,
			Description:    rule.Description,
			MatchedPlugins: matched,
		})
	}
	return out
}

// extractURL returns description itself if it looks like a link
// (carries "http"), since a SolutionPatch rule's description doubles as
// its remediation reference in the YAML rule database.
func extractURL(description string) string {
	if strings.Contains(description, "http://") || strings.Contains(description, "https://") {
		return description
	}
	return ""
}

func (d *Detector) knownSolution(filenames []string, gpuVendor string) []ModFinding {
	var out []ModFinding
	for _, rule := range d.db.Solutions {
		if gpuGated(rule.GPUVendor, gpuVendor) {
			continue
		}
		matched := anyMatch(rule.Identifiers, filenames)
		if len(matched) == 0 {
			continue
		}
		out = append(out, ModFinding{
			Kind:           Info,
			RuleKey:        rule.Key,
			Description:    rule.Description,
			MatchedPlugins: matched,
			RemediationURL: extractURL(rule.Description),
		})
	}
	return out
}
