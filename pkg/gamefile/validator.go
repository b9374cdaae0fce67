// Package gamefile implements the binary game-file validators (C6):
// header/structure checks for DDS textures, BA2 archives, WAV/audio
// files, and PEX/PSC script files. Dispatch is a tagged Category switch,
// per spec.md §9's redesign note replacing "an inheritance hierarchy of
// file-operation strategies" — grounded on the teacher's
// injection.Injector.InjectFault type-switch dispatcher.
package gamefile

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Category is the tagged variant selecting which validator runs.
type Category string

const (
	CategoryDDS Category = "DDS"
	CategoryBA2 Category = "BA2"
	CategoryWAV Category = "WAV"
	CategoryPEX Category = "PEX"
)

// categoryExtensions is the static per-category table spec.md §9's
// redesign note calls for: the file-pattern list lives alongside the
// tag, not in a class hierarchy.
var categoryExtensions = map[Category][]string{
	CategoryDDS: {".dds"},
	CategoryBA2: {".ba2"},
	CategoryWAV: {".wav", ".xwm", ".fuz"},
	CategoryPEX: {".pex", ".psc"},
}

// mismatchedExtensions lists, per category, the extensions that
// indicate a texture/audio file was saved under the wrong format.
var mismatchedExtensions = map[Category][]string{
	CategoryDDS: {".tga", ".png", ".jpg", ".bmp"},
	CategoryWAV: {".mp3", ".m4a", ".ogg", ".flac", ".aac", ".wma"},
}

// scriptExtenderOwned is the fixed list of filenames that, when present
// outside an exempt path, indicate a script-extender/PEX conflict.
var scriptExtenderOwned = []string{
	"f4se_loader.exe", "f4se_steam_loader.dll", "f4se_1_10_984.dll",
	"skse64_loader.exe", "skse64_steam_loader.dll",
}

// Status is a ValidationResult's outcome.
type Status string

const (
	StatusValid    Status = "Valid"
	StatusWarning  Status = "Warning"
	StatusError    Status = "Error"
	StatusCritical Status = "Critical"
)

// ValidationResult is C6's per-format contract return value.
type ValidationResult struct {
	Status         Status
	Format         string
	Issue          string
	Description    string
	Recommendation string
	Properties     map[string]string
}

// CategoryForPath returns the Category a file path belongs to by
// extension, and whether it matched any recognized category.
func CategoryForPath(p string) (Category, bool) {
	ext := strings.ToLower(path.Ext(p))
	for cat, exts := range categoryExtensions {
		for _, e := range exts {
			if e == ext {
				return cat, true
			}
		}
	}
	for cat, exts := range mismatchedExtensions {
		for _, e := range exts {
			if e == ext {
				return cat, true
			}
		}
	}
	return "", false
}

// Validate dispatches to the validator for category. relPath is the
// file's path relative to the mods directory root, checked against
// exemptGlobs (doublestar patterns) for the format-mismatch exemption
// spec.md §4.6 describes.
func Validate(category Category, filePath, relPath string, exemptGlobs []string) (ValidationResult, error) {
	switch category {
	case CategoryDDS:
		return validateDDS(filePath, relPath, exemptGlobs)
	case CategoryBA2:
		return validateBA2(filePath)
	case CategoryWAV:
		return validateWAV(filePath, relPath, exemptGlobs)
	case CategoryPEX:
		return validatePEX(filePath, relPath, exemptGlobs)
	default:
		return ValidationResult{}, fmt.Errorf("gamefile: unknown category %q", category)
	}
}

func isExempt(relPath string, exemptGlobs []string) bool {
	normalized := filepathToSlash(relPath)
	for _, g := range exemptGlobs {
		if strings.Contains(normalized, g) {
			return true
		}
		if ok, _ := doublestar.Match(g, normalized); ok {
			return true
		}
	}
	return false
}

func filepathToSlash(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}

// readHeader reads up to n bytes from the start of the file. Buffers are
// sized exactly to the header the caller needs; every read is
// bounds-checked by comparing the returned length, per spec.md §4.6's
// "all binary reads are bounds-checked".
func readHeader(filePath string, n int) ([]byte, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filePath, err)
	}
	defer f.Close()

	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("read header of %s: %w", filePath, err)
	}
	return buf[:read], nil
}

func isPowerOfTwo(v uint32) bool {
	return v != 0 && (v&(v-1)) == 0
}

func validateDDS(filePath, relPath string, exemptGlobs []string) (ValidationResult, error) {
	ext := strings.ToLower(path.Ext(filePath))
	if _, mismatched := containsString(mismatchedExtensions[CategoryDDS], ext); mismatched {
		if isExempt(relPath, exemptGlobs) {
			return ValidationResult{Status: StatusValid, Format: "DDS"}, nil
		}
		return ValidationResult{
			Status:         StatusWarning,
			Format:         "DDS",
			Issue:          "format-mismatch",
			Description:    fmt.Sprintf("texture file %s has extension %s, expected .dds", relPath, ext),
			Recommendation: "convert the texture to DDS format or verify the mod is intentionally using this format",
		}, nil
	}

	header, err := readHeader(filePath, 20)
	if err != nil {
		return ValidationResult{}, err
	}
	if len(header) < 20 || string(header[0:4]) != "DDS " {
		return ValidationResult{
			Status:      StatusError,
			Format:      "DDS",
			Issue:       "invalid-signature",
			Description: "Invalid DDS file: Invalid signature",
		}, nil
	}

	width := binary.LittleEndian.Uint32(header[12:16])
	height := binary.LittleEndian.Uint32(header[16:20])
	pow2 := isPowerOfTwo(width) && isPowerOfTwo(height)

	result := ValidationResult{
		Status: StatusValid,
		Format: "DDS",
		Properties: map[string]string{
			"Width":        fmt.Sprint(width),
			"Height":       fmt.Sprint(height),
			"IsPowerOfTwo": fmt.Sprint(pow2),
		},
	}
	if !pow2 {
		result.Status = StatusWarning
		result.Issue = "non-power-of-two-dimensions"
		result.Description = fmt.Sprintf("texture dimensions %dx%d are not powers of two", width, height)
		result.Recommendation = "resize the texture to power-of-two dimensions for best engine compatibility"
	}
	return result, nil
}

func validateBA2(filePath string) (ValidationResult, error) {
	header, err := readHeader(filePath, 12)
	if err != nil {
		return ValidationResult{}, err
	}
	if len(header) < 12 || string(header[0:4]) != "BTDX" {
		return ValidationResult{
			Status:      StatusError,
			Format:      "BA2",
			Issue:       "invalid-signature",
			Description: "Invalid BA2 file: Invalid signature",
		}, nil
	}

	archiveType := string(header[8:12])
	if archiveType != "DX10" && archiveType != "GNRL" {
		return ValidationResult{
			Status:      StatusError,
			Format:      "BA2",
			Issue:       "invalid-archive-type",
			Description: fmt.Sprintf("Invalid BA2 file: unrecognized archive type %q", archiveType),
		}, nil
	}

	return ValidationResult{
		Status:     StatusValid,
		Format:     "BA2",
		Properties: map[string]string{"ArchiveType": archiveType},
	}, nil
}

func validateWAV(filePath, relPath string, exemptGlobs []string) (ValidationResult, error) {
	ext := strings.ToLower(path.Ext(filePath))
	if _, mismatched := containsString(mismatchedExtensions[CategoryWAV], ext); mismatched {
		if isExempt(relPath, exemptGlobs) {
			return ValidationResult{Status: StatusValid, Format: "WAV"}, nil
		}
		return ValidationResult{
			Status:         StatusWarning,
			Format:         "WAV",
			Issue:          "format-mismatch",
			Description:    fmt.Sprintf("audio file %s has extension %s, expected an engine-supported format", relPath, ext),
			Recommendation: "convert the audio to WAV/XWM using the game's audio tools",
		}, nil
	}

	header, err := readHeader(filePath, 28)
	if err != nil {
		return ValidationResult{}, err
	}
	if len(header) < 28 || string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return ValidationResult{
			Status:      StatusError,
			Format:      "WAV",
			Issue:       "invalid-signature",
			Description: "Invalid WAV file: Invalid signature",
		}, nil
	}

	channels := binary.LittleEndian.Uint16(header[22:24])
	sampleRate := binary.LittleEndian.Uint32(header[24:28])

	result := ValidationResult{
		Status: StatusValid,
		Format: "WAV",
		Properties: map[string]string{
			"Channels":   fmt.Sprint(channels),
			"SampleRate": fmt.Sprint(sampleRate),
		},
	}
	if sampleRate > 48000 {
		result.Status = StatusWarning
		result.Issue = "sample-rate-too-high"
		result.Description = fmt.Sprintf("sample rate %d Hz exceeds the 48000 Hz ceiling", sampleRate)
		result.Recommendation = "resample the audio to 48000 Hz or lower"
	}
	return result, nil
}

func validatePEX(filePath, relPath string, exemptGlobs []string) (ValidationResult, error) {
	base := strings.ToLower(path.Base(filePath))
	if _, owned := containsString(scriptExtenderOwned, base); owned && !isExempt(relPath, exemptGlobs) {
		return ValidationResult{
			Status:         StatusWarning,
			Format:         "PEX",
			Issue:          "script-extender-conflict",
			Description:    fmt.Sprintf("%s shadows a script-extender-owned file outside an exempt location", relPath),
			Recommendation: "remove or relocate the conflicting file",
		}, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("read %s: %w", filePath, err)
	}

	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])

	if len(data) < 4 {
		return ValidationResult{
			Status:      StatusError,
			Format:      "PEX",
			Issue:       "truncated",
			Description: "PEX/PSC file is too small to contain a valid header",
			Properties:  map[string]string{"SHA256": digest},
		}, nil
	}

	return ValidationResult{
		Status:     StatusValid,
		Format:     "PEX",
		Properties: map[string]string{"SHA256": digest},
	}, nil
}

func containsString(list []string, v string) (int, bool) {
	for i, s := range list {
		if s == v {
			return i, true
		}
	}
	return -1, false
}
