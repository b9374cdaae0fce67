package gamefile

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, content, 0o644))
	return p
}

func ddsHeader(width, height uint32) []byte {
	h := make([]byte, 20)
	copy(h[0:4], "DDS ")
	binary.LittleEndian.PutUint32(h[12:16], width)
	binary.LittleEndian.PutUint32(h[16:20], height)
	return h
}

func TestCategoryForPath(t *testing.T) {
	cat, ok := CategoryForPath("textures/foo.dds")
	require.True(t, ok)
	assert.Equal(t, CategoryDDS, cat)

	cat, ok = CategoryForPath("textures/foo.tga")
	require.True(t, ok, "a mismatched texture extension still maps to its validator category")
	assert.Equal(t, CategoryDDS, cat)

	_, ok = CategoryForPath("readme.txt")
	assert.False(t, ok)
}

func TestValidateDDS_PowerOfTwoDimensions(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "tex.dds", ddsHeader(1024, 512))

	result, err := Validate(CategoryDDS, path, "textures/tex.dds", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusValid, result.Status)
	assert.Equal(t, "1024", result.Properties["Width"])
	assert.Equal(t, "512", result.Properties["Height"])
}

func TestValidateDDS_NonPowerOfTwoWarns(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "tex.dds", ddsHeader(1000, 500))

	result, err := Validate(CategoryDDS, path, "textures/tex.dds", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusWarning, result.Status)
	assert.Equal(t, "non-power-of-two-dimensions", result.Issue)
}

func TestValidateDDS_AsymmetricDimensionsNotSwapped(t *testing.T) {
	// Regression guard: width and height live at distinct header offsets
	// (12 and 16) and must not be read swapped.
	dir := t.TempDir()
	path := writeFile(t, dir, "tex.dds", ddsHeader(2048, 256))

	result, err := Validate(CategoryDDS, path, "textures/tex.dds", nil)
	require.NoError(t, err)
	assert.Equal(t, "2048", result.Properties["Width"])
	assert.Equal(t, "256", result.Properties["Height"])
}

func TestValidateDDS_InvalidSignature(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "tex.dds", []byte("not a dds file at all but long enough"))

	result, err := Validate(CategoryDDS, path, "textures/tex.dds", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusError, result.Status)
	assert.Equal(t, "invalid-signature", result.Issue)
}

func TestValidateDDS_MismatchedExtensionExempt(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "tex.tga", []byte("irrelevant"))

	result, err := Validate(CategoryDDS, path, "textures/special/tex.tga", []string{"textures/special/*"})
	require.NoError(t, err)
	assert.Equal(t, StatusValid, result.Status)
}

func TestValidateDDS_MismatchedExtensionNotExempt(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "tex.tga", []byte("irrelevant"))

	result, err := Validate(CategoryDDS, path, "textures/tex.tga", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusWarning, result.Status)
	assert.Equal(t, "format-mismatch", result.Issue)
}

func TestValidateBA2_ValidGNRL(t *testing.T) {
	dir := t.TempDir()
	header := append([]byte("BTDX"), make([]byte, 4)...)
	header = append(header, []byte("GNRL")...)
	path := writeFile(t, dir, "archive.ba2", header)

	result, err := Validate(CategoryBA2, path, "archive.ba2", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusValid, result.Status)
	assert.Equal(t, "GNRL", result.Properties["ArchiveType"])
}

func TestValidateBA2_InvalidArchiveType(t *testing.T) {
	dir := t.TempDir()
	header := append([]byte("BTDX"), make([]byte, 4)...)
	header = append(header, []byte("ZZZZ")...)
	path := writeFile(t, dir, "archive.ba2", header)

	result, err := Validate(CategoryBA2, path, "archive.ba2", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusError, result.Status)
	assert.Equal(t, "invalid-archive-type", result.Issue)
}

func TestValidateBA2_InvalidSignature(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "archive.ba2", []byte("not a valid archive header"))

	result, err := Validate(CategoryBA2, path, "archive.ba2", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusError, result.Status)
	assert.Equal(t, "invalid-signature", result.Issue)
}

func wavHeader(sampleRate uint32, channels uint16) []byte {
	h := make([]byte, 28)
	copy(h[0:4], "RIFF")
	copy(h[8:12], "WAVE")
	binary.LittleEndian.PutUint16(h[22:24], channels)
	binary.LittleEndian.PutUint32(h[24:28], sampleRate)
	return h
}

func TestValidateWAV_Valid(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "sound.wav", wavHeader(44100, 2))

	result, err := Validate(CategoryWAV, path, "sound/sound.wav", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusValid, result.Status)
	assert.Equal(t, "2", result.Properties["Channels"])
}

func TestValidateWAV_SampleRateTooHighWarns(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "sound.wav", wavHeader(96000, 2))

	result, err := Validate(CategoryWAV, path, "sound/sound.wav", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusWarning, result.Status)
	assert.Equal(t, "sample-rate-too-high", result.Issue)
}

func TestValidatePEX_TooSmall(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "script.pex", []byte{0x01})

	result, err := Validate(CategoryPEX, path, "scripts/script.pex", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusError, result.Status)
	assert.Equal(t, "truncated", result.Issue)
	assert.NotEmpty(t, result.Properties["SHA256"])
}

func TestValidatePEX_ScriptExtenderConflict(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "f4se_loader.exe", []byte("xxxx"))

	result, err := Validate(CategoryPEX, path, "Data/f4se_loader.exe", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusWarning, result.Status)
	assert.Equal(t, "script-extender-conflict", result.Issue)
}

func TestValidate_UnknownCategory(t *testing.T) {
	_, err := Validate(Category("XYZ"), "", "", nil)
	assert.Error(t, err)
}
