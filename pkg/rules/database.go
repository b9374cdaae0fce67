package rules

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// SignalKind distinguishes the three forms a StackSignal rule's signal
// can take, per spec.md §3/§4.3.
type SignalKind int

const (
	SignalStackOccurrence SignalKind = iota // bare "<substr>"
	SignalMainErrorRequired                 // "ME-REQ|<substr>"
	SignalMainErrorOptional                 // "ME-OPT|<substr>"
)

// Signal is one element of a StackSignal rule.
type Signal struct {
	Kind SignalKind
	Text string
}

// RuleKind distinguishes SuspectRule's tagged-union variants.
type RuleKind int

const (
	KindErrorSignal RuleKind = iota
	KindStackSignal
)

// SuspectRule is the tagged union spec.md §3 describes: an ErrorSignal
// rule carries a single literal; a StackSignal rule carries an ordered
// list of Signal values.
type SuspectRule struct {
	Name     string
	Severity int
	Kind     RuleKind
	Literal  string   // set when Kind == KindErrorSignal
	Signals  []Signal // set when Kind == KindStackSignal
}

// ModRuleKind distinguishes the four ModRule variants spec.md §3 names.
type ModRuleKind int

const (
	KindEssential ModRuleKind = iota
	KindFrequentCrasher
	KindConflictingPair
	KindSolutionPatch
)

// ModRule is one entry from mods_core/mods_freq/mods_conf/mods_solu.
type ModRule struct {
	Key         string // the rule's name, parsed from "name | description"
	Kind        ModRuleKind
	Identifiers []string // single identifier set (Essential, FrequentCrasher, SolutionPatch)
	GroupA      []string // "A" identifier set for ConflictingPair
	GroupB      []string // "B" identifier set for ConflictingPair
	GPUVendor   string   // "NVIDIA", "AMD", or "" (no constraint)
	Description string
}

// modRuleMapping is the shape a YAML mapping-valued mod rule entry
// decodes into via mapstructure, used when the rule's value is a mapping
// rather than a plain string (spec.md §6).
type modRuleMapping struct {
	GPUConstraint string `mapstructure:"gpu_constraint"`
	Description   string `mapstructure:"description"`
	Identifiers   string `mapstructure:"identifiers"`
}

// malformed is recorded rather than returned, since a broken rule entry
// is skipped with a warning and scanning of other rules proceeds
// (spec.md §4.3/§4.4's failure semantics).
type malformed struct {
	Key    string
	Reason string
}

// Database is the merged, typed view over the MAIN and GAME static
// stores: the suspect-pattern rules (C3 consumes) and the mod-conflict
// rules (C4 consumes).
type Database struct {
	ErrorRules []SuspectRule
	StackRules []SuspectRule
	Essential  []ModRule
	Frequent   []ModRule
	Conflicts  []ModRule
	Solutions  []ModRule
	Malformed  []malformed
}

// LoadDatabase merges the MAIN store with an optional GAME override
// store (GAME entries are appended after MAIN's; both are kept, and the
// stable sort by name/key leaves a MAIN rule ahead of a GAME rule with
// the same key) and returns the typed rule Database.
func LoadDatabase(main *Store, game *Store) *Database {
	db := &Database{}

	for _, store := range []*Store{main, game} {
		if store == nil {
			continue
		}
		db.loadErrorRules(store)
		db.loadStackRules(store)
		db.loadModRules(store, "mods_core", KindEssential)
		db.loadModRules(store, "mods_freq", KindFrequentCrasher)
		db.loadModRules(store, "mods_conf", KindConflictingPair)
		db.loadModRules(store, "mods_solu", KindSolutionPatch)
	}

	sortRules(db.ErrorRules)
	sortRules(db.StackRules)
	sortModRules(db.Essential)
	sortModRules(db.Frequent)
	sortModRules(db.Conflicts)
	sortModRules(db.Solutions)

	return db
}

func sortRules(rules []SuspectRule) {
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Name < rules[j].Name })
}

func sortModRules(rules []ModRule) {
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Key < rules[j].Key })
}

func (db *Database) loadErrorRules(store *Store) {
	section, ok := store.Section("crashlog_error_check")
	if !ok {
		return
	}
	for key, val := range section {
		severity, name, err := parseRuleKey(key)
		if err != nil {
			db.Malformed = append(db.Malformed, malformed{Key: key, Reason: err.Error()})
			continue
		}
		literal, ok := val.(string)
		if !ok {
			db.Malformed = append(db.Malformed, malformed{Key: key, Reason: "error-check value is not a string"})
			continue
		}
		db.ErrorRules = append(db.ErrorRules, SuspectRule{
			Name:     name,
			Severity: severity,
			Kind:     KindErrorSignal,
			Literal:  literal,
		})
	}
}

func (db *Database) loadStackRules(store *Store) {
	section, ok := store.Section("crashlog_stack_check")
	if !ok {
		return
	}
	for key, val := range section {
		severity, name, err := parseRuleKey(key)
		if err != nil {
			db.Malformed = append(db.Malformed, malformed{Key: key, Reason: err.Error()})
			continue
		}

		seq, ok := val.([]interface{})
		if !ok {
			db.Malformed = append(db.Malformed, malformed{Key: key, Reason: "stack-check value is not a sequence"})
			continue
		}

		signals := make([]Signal, 0, len(seq))
		malformedSignal := false
		for _, el := range seq {
			s, ok := el.(string)
			if !ok {
				malformedSignal = true
				break
			}
			signals = append(signals, parseSignal(s))
		}
		if malformedSignal {
			db.Malformed = append(db.Malformed, malformed{Key: key, Reason: "stack-check sequence contains a non-string signal"})
			continue
		}

		db.StackRules = append(db.StackRules, SuspectRule{
			Name:     name,
			Severity: severity,
			Kind:     KindStackSignal,
			Signals:  signals,
		})
	}
}

// parseRuleKey splits a "severity | name" rule key.
func parseRuleKey(key string) (severity int, name string, err error) {
	parts := strings.SplitN(key, "|", 2)
	if len(parts) != 2 {
		return 0, "", fmt.Errorf("rule key %q missing '|' separator", key)
	}
	severity, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, "", fmt.Errorf("rule key %q has non-numeric severity: %w", key, err)
	}
	if severity < 1 || severity > 6 {
		return 0, "", fmt.Errorf("rule key %q has severity %d out of range [1,6]", key, severity)
	}
	return severity, strings.TrimSpace(parts[1]), nil
}

// parseSignal classifies one stack-check signal string.
func parseSignal(s string) Signal {
	switch {
	case strings.HasPrefix(s, "ME-REQ|"):
		return Signal{Kind: SignalMainErrorRequired, Text: strings.TrimPrefix(s, "ME-REQ|")}
	case strings.HasPrefix(s, "ME-OPT|"):
		return Signal{Kind: SignalMainErrorOptional, Text: strings.TrimPrefix(s, "ME-OPT|")}
	default:
		return Signal{Kind: SignalStackOccurrence, Text: s}
	}
}

func (db *Database) loadModRules(store *Store, sectionKey string, kind ModRuleKind) {
	section, ok := store.Section(sectionKey)
	if !ok {
		return
	}

	var out *[]ModRule
	switch kind {
	case KindEssential:
		out = &db.Essential
	case KindFrequentCrasher:
		out = &db.Frequent
	case KindConflictingPair:
		out = &db.Conflicts
	case KindSolutionPatch:
		out = &db.Solutions
	}

	for key, val := range section {
		ruleKey, description := splitKeyDescription(key)

		rule := ModRule{Key: ruleKey, Kind: kind, Description: description}

		switch v := val.(type) {
		case string:
			rule.Identifiers = splitIdentifiers(v)
		case map[string]interface{}:
			var mapping modRuleMapping
			if err := mapstructure.Decode(v, &mapping); err != nil {
				db.Malformed = append(db.Malformed, malformed{Key: key, Reason: fmt.Sprintf("decode mapping: %v", err)})
				continue
			}
			if mapping.Description != "" {
				rule.Description = mapping.Description
			}
			rule.GPUVendor = normalizeGPUVendor(mapping.GPUConstraint)
			if kind == KindConflictingPair {
				a, b, ok := splitPair(mapping.Identifiers)
				if !ok {
					db.Malformed = append(db.Malformed, malformed{Key: key, Reason: "conflicting-pair mapping missing 'A|B' identifiers"})
					continue
				}
				rule.GroupA = a
				rule.GroupB = b
			} else {
				rule.Identifiers = splitIdentifiers(mapping.Identifiers)
			}
		default:
			db.Malformed = append(db.Malformed, malformed{Key: key, Reason: "mod-rule value is neither a string nor a mapping"})
			continue
		}

		if kind == KindConflictingPair && rule.GroupA == nil && rule.GroupB == nil {
			a, b, ok := splitPair(strings.Join(rule.Identifiers, ","))
			if !ok {
				db.Malformed = append(db.Malformed, malformed{Key: key, Reason: "conflicting-pair rule missing 'A|B' identifier split"})
				continue
			}
			rule.GroupA = a
			rule.GroupB = b
			rule.Identifiers = nil
		}

		*out = append(*out, rule)
	}
}

// splitKeyDescription parses the "name | description" shape the
// pipe-separated rule key may carry, per spec.md §4.4.
func splitKeyDescription(key string) (name, description string) {
	parts := strings.SplitN(key, "|", 2)
	if len(parts) == 2 {
		return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	}
	return strings.TrimSpace(key), ""
}

// splitIdentifiers splits a comma-separated identifier list.
func splitIdentifiers(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitPair splits a conflicting-pair identifiers string of the form
// "idA1,idA2 | idB1,idB2" into its two identifier groups.
func splitPair(v string) (a, b []string, ok bool) {
	parts := strings.SplitN(v, "|", 2)
	if len(parts) != 2 {
		return nil, nil, false
	}
	return splitIdentifiers(parts[0]), splitIdentifiers(parts[1]), true
}

func normalizeGPUVendor(v string) string {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "NVIDIA":
		return "NVIDIA"
	case "AMD":
		return "AMD"
	default:
		return ""
	}
}
