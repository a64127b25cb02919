package storage

import (
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"
)

// SupersedeLayout is the timestamp appended to a file that gets replaced.
const SupersedeLayout = "20060102_150405"

// maxNameLength caps stored names so the supersede suffix still fits in
// the common 255-byte filename limit.
const maxNameLength = 255 - len("_"+SupersedeLayout+"_99")

// SplitExt splits name into stem and extension. Leading dots do not start
// an extension, so ".env" has none.
func SplitExt(name string) (stem, ext string) {
	ext = filepath.Ext(strings.TrimLeft(name, "."))
	return name[:len(name)-len(ext)], ext
}

// SupersedeName returns the name a replaced file is moved to:
// notes.txt -> notes_20240102_150405.txt
func SupersedeName(name string, at time.Time) string {
	stem, ext := SplitExt(name)
	return stem + "_" + at.Format(SupersedeLayout) + ext
}

// SanitizeBaseName reduces a user supplied name to its last path element.
// It returns "" when nothing usable is left.
func SanitizeBaseName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\x00", "")
	// Normalize Windows-style backslashes before filepath.Base.
	name = strings.ReplaceAll(name, "\\", "/")
	if name == "" {
		return ""
	}

	name = filepath.Base(name)
	if name == "." || name == ".." || name == "/" {
		return ""
	}

	return truncateName(name)
}

// truncateName shortens name to maxNameLength bytes, keeping the
// extension and cutting the stem on a rune boundary.
func truncateName(name string) string {
	if len(name) <= maxNameLength {
		return name
	}

	stem, ext := SplitExt(name)
	if len(ext) >= maxNameLength/2 {
		stem, ext = name, ""
	}

	n := maxNameLength - len(ext)
	for n > 0 && !utf8.RuneStart(stem[n]) {
		n--
	}
	return stem[:n] + ext
}

// ResolveName picks the stored name for an uploaded file. A custom base
// name keeps the original extension; without one the original name is
// used verbatim.
func ResolveName(baseName, original string) string {
	baseName = SanitizeBaseName(baseName)
	if baseName == "" {
		return original
	}

	_, ext := SplitExt(original)
	if !strings.HasSuffix(baseName, ext) {
		baseName += ext
	}
	return truncateName(baseName)
}

// ArchiveName picks the stored name for a zip bundle.
func ArchiveName(baseName, fallback string) string {
	baseName = SanitizeBaseName(baseName)
	if baseName == "" {
		baseName = fallback
	}
	return truncateName(baseName + ".zip")
}
