// Package suspect implements the suspect scanner (C3): it applies the
// error-signal and stack-signal rule families to a parsed crash log and
// produces a ranked list of detected suspects.
package suspect

import (
	"sort"
	"strings"

	"github.com/classic-analyzer/classic-core/pkg/crashlog"
	"github.com/classic-analyzer/classic-core/pkg/rules"
)

// occurrenceCap bounds the occurrence count taken for a bare stack
// signal; whatever the count, a matched bare signal adds exactly one to
// a StackSignal rule's satisfied-signal total.
const occurrenceCap = 3

// DetectedSuspect is one ranked match, per spec.md §3.
type DetectedSuspect struct {
	Name             string
	Severity         int
	Confidence       float64
	MatchedSignals   []string
	RecommendedSolutions []string
	DocumentationURL string
}

// Scanner evaluates a Database's suspect rules against crash logs.
type Scanner struct {
	db       *rules.Database
	Warnings []string
}

// New builds a Scanner from a rule Database. Malformed rules already
// recorded in db.Malformed are surfaced through Warnings.
func New(db *rules.Database) *Scanner {
	s := &Scanner{db: db}
	for _, m := range db.Malformed {
		s.Warnings = append(s.Warnings, "skipped rule "+m.Key+": "+m.Reason)
	}
	return s
}

// Scan implements C3's contract: scan(CrashLog) → ordered sequence of
// DetectedSuspect, sorted by (severity desc, confidence desc, name asc).
func (s *Scanner) Scan(log *crashlog.CrashLog) []DetectedSuspect {
	mainError := strings.ToLower(log.MainError)
	callStack := strings.ToLower(log.CallStackText())

	var out []DetectedSuspect

	for _, rule := range s.db.ErrorRules {
		if strings.Contains(mainError, strings.ToLower(rule.Literal)) {
			out = append(out, DetectedSuspect{
				Name:       rule.Name,
				Severity:   rule.Severity,
				Confidence: 1.0,
				MatchedSignals: []string{rule.Literal},
			})
		}
	}

	for _, rule := range s.db.StackRules {
		if suspect, matched := evaluateStackRule(rule, mainError, callStack); matched {
			out = append(out, suspect)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Severity != out[j].Severity {
			return out[i].Severity > out[j].Severity
		}
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Name < out[j].Name
	})

	return out
}

// evaluateStackRule implements spec.md §4.3's StackSignal evaluation:
// every ME-REQ signal must be present; the satisfied-signal total
// (ME-OPT presence + matched bare signals) must reach at least
// max(1, half of the non-required signal count), or zero when the rule
// has only ME-REQ signals.
func evaluateStackRule(rule rules.SuspectRule, mainError, callStack string) (DetectedSuspect, bool) {
	nonRequired := 0
	satisfied := 0
	var matched []string

	for _, sig := range rule.Signals {
		switch sig.Kind {
		case rules.SignalMainErrorRequired:
			if !strings.Contains(mainError, strings.ToLower(sig.Text)) {
				return DetectedSuspect{}, false
			}
			matched = append(matched, "ME-REQ|"+sig.Text)

		case rules.SignalMainErrorOptional:
			nonRequired++
			if strings.Contains(mainError, strings.ToLower(sig.Text)) {
				satisfied++
				matched = append(matched, "ME-OPT|"+sig.Text)
			}

		case rules.SignalStackOccurrence:
			nonRequired++
			count := countOccurrences(callStack, strings.ToLower(sig.Text))
			if count > occurrenceCap {
				count = occurrenceCap
			}
			if count > 0 {
				satisfied++ // per-signal contribution capped at 1.0, not multiplied by occurrence count
				matched = append(matched, sig.Text)
			}
		}
	}

	threshold := nonRequired / 2
	if threshold < 1 {
		threshold = 1
	}
	if nonRequired == 0 {
		threshold = 0
	}

	if satisfied < threshold {
		return DetectedSuspect{}, false
	}

	confidence := 1.0
	if nonRequired > 0 {
		confidence = float64(satisfied) / float64(nonRequired)
	}
	if confidence > 1.0 {
		confidence = 1.0
	}
	if confidence < 0 {
		confidence = 0
	}

	return DetectedSuspect{
		Name:           rule.Name,
		Severity:       rule.Severity,
		Confidence:     confidence,
		MatchedSignals: matched,
	}, true
}

func countOccurrences(haystack, needle string) int {
	if needle == "" {
		return 0
	}
	count := 0
	idx := 0
	for {
		pos := strings.Index(haystack[idx:], needle)
		if pos < 0 {
			break
		}
		count++
		idx += pos + len(needle)
	}
	return count
}
