// Package ms models measurement-set artifacts and the naming conventions
// used to pair them with calibration tables.
package ms

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Band is a frequency-band tag embedded in observation file names,
// e.g. "73MHz" in 20250917_200002_73MHz.ms.
type Band string

// bandPattern matches the first digits-plus-MHz token in a name. The match
// is greedy, so "123MHz" never truncates to "23MHz".
var bandPattern = regexp.MustCompile(`[0-9]+MHz`)

// ParseBand extracts the band tag from a file name. The second return is
// false when the name carries no digits+MHz token; callers must not build
// caltable paths from an absent band.
func ParseBand(name string) (Band, bool) {
	m := bandPattern.FindString(name)
	if m == "" {
		return "", false
	}
	return Band(m), true
}

// Artifact is one measurement set (a directory bundle on disk).
type Artifact struct {
	Path string
	Band Band
}

// Base returns the file name without the .ms suffix. It names derived
// outputs and the per-artifact log file.
func (a Artifact) Base() string {
	name := filepath.Base(a.Path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// Name returns the bare file name including the .ms suffix.
func (a Artifact) Name() string {
	return filepath.Base(a.Path)
}

// New builds an Artifact from a path, extracting the band tag from the
// file name when present.
func New(path string) Artifact {
	band, _ := ParseBand(filepath.Base(path))
	return Artifact{Path: path, Band: band}
}
