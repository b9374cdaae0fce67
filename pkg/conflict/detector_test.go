package conflict

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classic-analyzer/classic-core/pkg/crashlog"
	"github.com/classic-analyzer/classic-core/pkg/rules"
)

const conflictFixtureYAML = `
mods_core:
  "Address Library | Required by most F4SE plugins": "address library.esm"
  "WeaponDebrisCrashFix | Fixes a weapon-debris crash on NVIDIA cards":
    gpu_constraint: "NVIDIA"
    identifiers: "weapon debris crash fix.esp"
mods_freq:
  "Grass Mod": "grass rendering fix.esp"
  "NVIDIA Only Crasher":
    gpu_constraint: "NVIDIA"
    description: "crashes with some NVIDIA drivers"
    identifiers: "nvidia only.esp"
mods_conf:
  "Camp vs Subsistence": "campfire.esp|subsistence.esp"
mods_solu:
  "Buffout Patch": "https://example.test/patch, patchable.esp"
  "NVIDIA Only Solution":
    gpu_constraint: "NVIDIA"
    identifiers: "nvidia solution.esp"
`

func loadConflictDatabase(t *testing.T) *rules.Database {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "main.yaml")
	require.NoError(t, os.WriteFile(path, []byte(conflictFixtureYAML), 0o644))
	store, err := rules.New(rules.Main, path)
	require.NoError(t, err)
	return rules.LoadDatabase(store, nil)
}

func pluginLog(filenames ...string) *crashlog.CrashLog {
	log := &crashlog.CrashLog{Segments: map[string][]string{}}
	for _, f := range filenames {
		log.Plugins = append(log.Plugins, crashlog.PluginEntry{Filename: f})
	}
	return log
}

func TestDetect_EssentialAbsent(t *testing.T) {
	d := New(loadConflictDatabase(t))
	log := pluginLog("Fallout4.esm")

	findings := d.Detect(log)
	var sawEssential bool
	for _, f := range findings {
		if f.Kind == Recommendation {
			sawEssential = true
		}
	}
	assert.True(t, sawEssential, "a missing essential mod must produce a Recommendation finding")
}

func TestDetect_EssentialGPUGatedRecommendationFiresOnMatchingVendor(t *testing.T) {
	d := New(loadConflictDatabase(t))

	log := pluginLog("Fallout4.esm", "Address Library.esm")
	log.Segments[crashlog.SegmentSystemSpecs] = []string{"GPU #1: Nvidia GeForce RTX 3080"}

	findings := d.Detect(log)
	var fired bool
	for _, f := range findings {
		if f.RuleKey == "WeaponDebrisCrashFix" {
			fired = true
		}
	}
	assert.True(t, fired, "a missing NVIDIA-gated essential mod must still recommend itself on an NVIDIA system")
}

func TestDetect_EssentialGPUGatedRecommendationOmittedOnOtherVendor(t *testing.T) {
	d := New(loadConflictDatabase(t))

	log := pluginLog("Fallout4.esm", "Address Library.esm")
	log.Segments[crashlog.SegmentSystemSpecs] = []string{"GPU #1: AMD Radeon RX 6800"}

	findings := d.Detect(log)
	for _, f := range findings {
		assert.NotEqual(t, "WeaponDebrisCrashFix", f.RuleKey, "an NVIDIA-gated essential recommendation must be omitted on AMD")
	}
}

func TestDetect_KnownSolutionGPUGated(t *testing.T) {
	d := New(loadConflictDatabase(t))

	log := pluginLog("Address Library.esm", "nvidia solution.esp")
	log.Segments[crashlog.SegmentSystemSpecs] = []string{"GPU #1: AMD Radeon RX 6800"}

	findings := d.Detect(log)
	for _, f := range findings {
		assert.NotEqual(t, "NVIDIA Only Solution", f.RuleKey, "an NVIDIA-gated solution must not fire on an AMD system")
	}
}

func TestDetect_FrequentCrasherGPUGated(t *testing.T) {
	d := New(loadConflictDatabase(t))

	log := pluginLog("Address Library.esm", "NVIDIA Only.esp")
	log.Segments[crashlog.SegmentSystemSpecs] = []string{"GPU #1: AMD Radeon RX 6800"}

	findings := d.Detect(log)
	for _, f := range findings {
		assert.NotEqual(t, "NVIDIA Only Crasher", f.RuleKey, "an NVIDIA-gated rule must not fire on an AMD system")
	}
}

func TestDetect_FrequentCrasherFiresOnMatchingGPU(t *testing.T) {
	d := New(loadConflictDatabase(t))

	log := pluginLog("Address Library.esm", "NVIDIA Only.esp")
	log.Segments[crashlog.SegmentSystemSpecs] = []string{"GPU #1: Nvidia GeForce RTX 3080"}

	findings := d.Detect(log)
	var fired bool
	for _, f := range findings {
		if f.RuleKey == "NVIDIA Only Crasher" {
			fired = true
		}
	}
	assert.True(t, fired)
}

func TestDetect_FrequentCrasherUnknownGPUNeverGatedOff(t *testing.T) {
	d := New(loadConflictDatabase(t))

	// No SYSTEM SPECS segment at all -> detectGPUVendor returns "unknown".
	log := pluginLog("Address Library.esm", "NVIDIA Only.esp")

	findings := d.Detect(log)
	var fired bool
	for _, f := range findings {
		if f.RuleKey == "NVIDIA Only Crasher" {
			fired = true
		}
	}
	assert.True(t, fired, "a GPU-gated rule must still fire when SYSTEM SPECS is absent (vendor=unknown)")
}

func TestDetect_ConflictingPair(t *testing.T) {
	d := New(loadConflictDatabase(t))
	log := pluginLog("Address Library.esm", "campfire.esp", "subsistence.esp")

	findings := d.Detect(log)
	var sawConflict bool
	for _, f := range findings {
		if f.Kind == Conflict {
			sawConflict = true
			assert.ElementsMatch(t, []string{"campfire.esp", "subsistence.esp"}, f.MatchedPlugins)
		}
	}
	assert.True(t, sawConflict)
}

func TestDetect_ConflictingPairRequiresBothSides(t *testing.T) {
	d := New(loadConflictDatabase(t))
	log := pluginLog("Address Library.esm", "campfire.esp")

	findings := d.Detect(log)
	for _, f := range findings {
		assert.NotEqual(t, Conflict, f.Kind)
	}
}

func TestDetect_KnownSolutionURLOnlyFromDescription(t *testing.T) {
	d := New(loadConflictDatabase(t))
	log := pluginLog("Address Library.esm", "patchable.esp")

	findings := d.Detect(log)
	var found *ModFinding
	for i := range findings {
		if findings[i].Kind == Info {
			found = &findings[i]
		}
	}
	require.NotNil(t, found)
	assert.Empty(t, found.RemediationURL, "the URL sits in the rule's identifier list, not its description, so RemediationURL is empty here")
}
