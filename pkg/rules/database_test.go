package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const databaseFixtureYAML = `
crashlog_error_check:
  "5 | Stack Overflow Crash": "EXCEPTION_STACK_OVERFLOW"
crashlog_stack_check:
  "4 | Bad Havok Settings":
    - "ME-REQ|access violation"
    - "havok"
    - "ME-OPT|physics"
mods_core:
  "Address Library | Required by most F4SE plugins": "version-1-10-984-0.csv"
mods_freq:
  "Unofficial Patch":
    gpu_constraint: "NVIDIA"
    description: "known to crash with some NVIDIA drivers"
    identifiers: "unofficial fallout 4 patch.esp"
mods_conf:
  "Campfire vs Subsistence": "camp.esp,campfire.esp|subsist.esp"
mods_solu:
  "Buffout 4 NG": "https://example.test/buffout4ng, buffout4.dll"
bad_section:
  "not | valid": 12345
`

func loadFixtureDatabase(t *testing.T) *Database {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "main.yaml")
	require.NoError(t, os.WriteFile(path, []byte(databaseFixtureYAML), 0o644))
	store, err := New(Main, path)
	require.NoError(t, err)
	return LoadDatabase(store, nil)
}

func TestLoadDatabase_ErrorAndStackRules(t *testing.T) {
	db := loadFixtureDatabase(t)

	require.Len(t, db.ErrorRules, 1)
	assert.Equal(t, "Stack Overflow Crash", db.ErrorRules[0].Name)
	assert.Equal(t, 5, db.ErrorRules[0].Severity)

	require.Len(t, db.StackRules, 1)
	rule := db.StackRules[0]
	assert.Equal(t, "Bad Havok Settings", rule.Name)
	require.Len(t, rule.Signals, 3)
	assert.Equal(t, SignalMainErrorRequired, rule.Signals[0].Kind)
	assert.Equal(t, SignalStackOccurrence, rule.Signals[1].Kind)
	assert.Equal(t, SignalMainErrorOptional, rule.Signals[2].Kind)
}

func TestLoadDatabase_ModRules(t *testing.T) {
	db := loadFixtureDatabase(t)

	require.Len(t, db.Essential, 1)
	assert.Equal(t, "Address Library", db.Essential[0].Key)

	require.Len(t, db.Frequent, 1)
	assert.Equal(t, "NVIDIA", db.Frequent[0].GPUVendor)

	require.Len(t, db.Conflicts, 1)
	assert.ElementsMatch(t, []string{"camp.esp", "campfire.esp"}, db.Conflicts[0].GroupA)
	assert.ElementsMatch(t, []string{"subsist.esp"}, db.Conflicts[0].GroupB)

	require.Len(t, db.Solutions, 1)
}

func TestLoadDatabase_MalformedSectionSkipped(t *testing.T) {
	db := loadFixtureDatabase(t)
	// "bad_section" isn't one of the recognized section keys, so it's
	// simply ignored rather than surfaced as malformed.
	assert.Empty(t, db.Malformed)
}

func TestLoadDatabase_MalformedRuleKeyRecorded(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.yaml")
	content := `
crashlog_error_check:
  "not-a-severity | Bad Key": "SOMETHING"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	store, err := New(Main, path)
	require.NoError(t, err)

	db := LoadDatabase(store, nil)
	assert.Empty(t, db.ErrorRules)
	require.Len(t, db.Malformed, 1)
}

func TestLoadDatabase_GameOverridesAppendAfterMain(t *testing.T) {
	mainPath := writeFixture(t, `
mods_core:
  "Main Mod": "main.esp"
`)
	dir := t.TempDir()
	gamePath := filepath.Join(dir, "game.yaml")
	require.NoError(t, os.WriteFile(gamePath, []byte(`
mods_core:
  "Game Mod": "game.esp"
`), 0o644))

	main, err := New(Main, mainPath)
	require.NoError(t, err)
	game, err := New(Game, gamePath)
	require.NoError(t, err)

	db := LoadDatabase(main, game)
	require.Len(t, db.Essential, 2)
}
