// Package rules implements the YAML rule store (C2): it loads and
// indexes the suspect-pattern and mod-conflict rule databases, resolves
// dotted key paths, and separates static (read-only) stores from
// user-mutable ones.
package rules

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"
)

// Name identifies one of the closed set of logical stores spec.md §4.2
// names.
type Name string

const (
	Main      Name = "MAIN"       // rule database, static, read-only
	Game      Name = "GAME"       // game-specific rule overrides, static
	Settings  Name = "SETTINGS"   // user settings, writable
	Ignore    Name = "IGNORE"     // user exclusions, writable
	GameLocal Name = "GAME_LOCAL" // writable
	Test      Name = "TEST"       // in-memory, writable, no backing file
)

func (n Name) static() bool {
	return n == Main || n == Game
}

// Store is one loaded YAML document, addressable by dotted key path.
// Static stores are parsed once and kept; writable stores are re-read
// when the backing file's modification time changes.
type Store struct {
	name Name
	path string

	mu      sync.RWMutex
	data    map[string]interface{}
	modTime time.Time

	// fileLock is the single writer lock used when persisting a writable
	// store, matching spec.md §4.2's "a single writer lock when mutating".
	// nil for the in-memory TEST store.
	fileLock *flock.Flock
}

// New loads the store named by name from path. For the TEST store, path
// may be empty — it starts as an empty in-memory map.
func New(name Name, path string) (*Store, error) {
	s := &Store{
		name: name,
		path: path,
		data: make(map[string]interface{}),
	}

	if name != Test && path != "" {
		s.fileLock = flock.New(path + ".lock")
		if err := s.reload(); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Name returns the store's logical name.
func (s *Store) Name() Name { return s.name }

// reload re-parses the backing file if its ModTime changed since the
// last load, or unconditionally on first call. Callers must hold no lock.
func (s *Store) reload() error {
	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.mu.Lock()
			s.data = make(map[string]interface{})
			s.mu.Unlock()
			return nil
		}
		return fmt.Errorf("stat rule store %s (%s): %w", s.name, s.path, err)
	}

	s.mu.RLock()
	unchanged := !info.ModTime().After(s.modTime) && s.modTime != (time.Time{})
	s.mu.RUnlock()
	if unchanged {
		return nil
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read rule store %s (%s): %w", s.name, s.path, err)
	}

	var doc map[string]interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse rule store %s (%s): %w", s.name, s.path, err)
	}
	if doc == nil {
		doc = make(map[string]interface{})
	}

	s.mu.Lock()
	s.data = normalizeKeys(doc)
	s.modTime = info.ModTime()
	s.mu.Unlock()

	return nil
}

// refreshIfWritable re-reads a writable store's backing file before a
// read, so concurrent external edits are observed; static stores never
// re-read after their initial load.
func (s *Store) refreshIfWritable() {
	if s.name.static() || s.name == Test {
		return
	}
	_ = s.reload()
}

// normalizeKeys converts YAML's map[string]interface{} sub-maps (which
// yaml.v3 sometimes decodes as map[string]interface{} already, but
// nested sequences of maps need no change) recursively so dotted-key
// navigation always finds map[string]interface{} at each level.
func normalizeKeys(v interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	m, ok := v.(map[string]interface{})
	if !ok {
		return out
	}
	for k, val := range m {
		if sub, ok := val.(map[string]interface{}); ok {
			out[k] = normalizeKeys(sub)
		} else {
			out[k] = val
		}
	}
	return out
}

// Raw looks up the dotted key and returns the stored value exactly as
// parsed, with no type coercion. Missing intermediate keys return
// (nil, false).
func (s *Store) Raw(dottedKey string) (interface{}, bool) {
	s.refreshIfWritable()

	s.mu.RLock()
	defer s.mu.RUnlock()

	return navigateGet(s.data, strings.Split(dottedKey, "."))
}

func navigateGet(m map[string]interface{}, parts []string) (interface{}, bool) {
	if len(parts) == 0 {
		return nil, false
	}
	v, ok := m[parts[0]]
	if !ok {
		return nil, false
	}
	if len(parts) == 1 {
		return v, true
	}
	sub, ok := v.(map[string]interface{})
	if !ok {
		return nil, false
	}
	return navigateGet(sub, parts[1:])
}

// PutRaw writes value at dottedKey, auto-creating any missing
// intermediate map levels. Returns an error if the store is static.
func (s *Store) PutRaw(dottedKey string, value interface{}) error {
	if s.name.static() {
		return fmt.Errorf("store %s is static, read-only", s.name)
	}

	if s.fileLock != nil {
		locked, err := s.fileLock.TryLock()
		if err != nil {
			return fmt.Errorf("acquire writer lock for store %s: %w", s.name, err)
		}
		if !locked {
			return fmt.Errorf("store %s is locked by another writer", s.name)
		}
		defer s.fileLock.Unlock()
	}

	s.mu.Lock()
	navigatePut(s.data, strings.Split(dottedKey, "."), value)
	s.mu.Unlock()

	if s.name == Test || s.path == "" {
		return nil
	}
	return s.persist()
}

func navigatePut(m map[string]interface{}, parts []string, value interface{}) {
	if len(parts) == 1 {
		m[parts[0]] = value
		return
	}
	sub, ok := m[parts[0]].(map[string]interface{})
	if !ok {
		sub = make(map[string]interface{})
		m[parts[0]] = sub
	}
	navigatePut(sub, parts[1:], value)
}

// persist writes the store's current contents back to its backing file.
func (s *Store) persist() error {
	s.mu.RLock()
	data, err := yaml.Marshal(s.data)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal store %s: %w", s.name, err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file for store %s: %w", s.name, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename temp file for store %s: %w", s.name, err)
	}

	info, err := os.Stat(s.path)
	if err == nil {
		s.mu.Lock()
		s.modTime = info.ModTime()
		s.mu.Unlock()
	}
	return nil
}

// The explicit per-target-type coercion table (spec.md §9's
// reflection-replacement redesign note). Each GetX rejects values it
// cannot coerce by returning ok=false rather than panicking.

// GetString coerces the value at dottedKey to a string.
func (s *Store) GetString(dottedKey string) (string, bool) {
	v, ok := s.Raw(dottedKey)
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case fmt.Stringer:
		return t.String(), true
	default:
		return "", false
	}
}

// GetBool coerces the value at dottedKey to a bool using a fixed truthy
// set: "true", "yes", "1", "on" (case-insensitive) are true; "false",
// "no", "0", "off" are false.
func (s *Store) GetBool(dottedKey string) (bool, bool) {
	v, ok := s.Raw(dottedKey)
	if !ok {
		return false, false
	}
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		return coerceTruthy(t)
	}
	return false, false
}

func coerceTruthy(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1", "on":
		return true, true
	case "false", "no", "0", "off":
		return false, true
	default:
		return false, false
	}
}

// GetInt coerces the value at dottedKey to an int.
func (s *Store) GetInt(dottedKey string) (int, bool) {
	v, ok := s.Raw(dottedKey)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// GetPath coerces the value at dottedKey to a filesystem path string
// (file or directory); it performs no existence check, only the string
// coercion spec.md §4.2 names.
func (s *Store) GetPath(dottedKey string) (string, bool) {
	return s.GetString(dottedKey)
}

// GetStringSlice coerces a YAML sequence at dottedKey into a
// []string via per-element string coercion, skipping elements that
// don't coerce.
func (s *Store) GetStringSlice(dottedKey string) ([]string, bool) {
	v, ok := s.Raw(dottedKey)
	if !ok {
		return nil, false
	}
	seq, ok := v.([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(seq))
	for _, el := range seq {
		if str, ok := el.(string); ok {
			out = append(out, str)
		}
	}
	return out, true
}

// Keys returns the top-level keys of the store, sorted is the caller's
// responsibility.
func (s *Store) Keys() []string {
	s.refreshIfWritable()
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}

// Section returns the raw map at a top-level key, used by LoadDatabase
// to walk entire rule families
// (crashlog_error_check, mods_core, ...) rather than one key at a time.
func (s *Store) Section(key string) (map[string]interface{}, bool) {
	s.refreshIfWritable()
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]interface{})
	return m, ok
}
