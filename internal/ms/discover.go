package ms

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// List returns the measurement sets directly under dir, sorted by name.
// Measurement sets are directory bundles whose name ends in .ms.
func List(dir string) ([]Artifact, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read source dir: %w", err)
	}

	var artifacts []Artifact
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".ms") {
			continue
		}
		artifacts = append(artifacts, New(filepath.Join(dir, e.Name())))
	}
	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Path < artifacts[j].Path })
	return artifacts, nil
}

// FindCaltable returns the newest bandpass table in dir for the given band.
// Tables follow the <timestamp>_<band>.bcal convention, so the
// lexicographically last match is the most recent.
func FindCaltable(dir string, band Band) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read caltable dir: %w", err)
	}

	var matches []string
	suffix := fmt.Sprintf("_%s.bcal", band)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), suffix) {
			matches = append(matches, e.Name())
		}
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no caltable for band %s in %s", band, dir)
	}
	sort.Strings(matches)
	return filepath.Join(dir, matches[len(matches)-1]), nil
}

// NewestObservation walks the <root>/<date>/<hour>/ layout the recorder
// writes and returns the most recent entry: largest date dir, largest hour
// dir, last file by name.
func NewestObservation(root string) (string, error) {
	datePath, err := newestSubdir(root)
	if err != nil {
		return "", err
	}
	hourPath, err := newestSubdir(datePath)
	if err != nil {
		return "", err
	}

	entries, err := os.ReadDir(hourPath)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", hourPath, err)
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("no observations in %s", hourPath)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	sort.Strings(names)
	return filepath.Join(hourPath, names[len(names)-1]), nil
}

func newestSubdir(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no subdirectories in %s", dir)
	}
	sort.Strings(names)
	return filepath.Join(dir, names[len(names)-1]), nil
}

// CommonParent returns the deepest directory containing both paths. It is
// the host directory mounted into the container when a stage reads one MS
// and writes another.
func CommonParent(a, b string) string {
	pa := strings.Split(filepath.Clean(a), string(filepath.Separator))
	pb := strings.Split(filepath.Clean(b), string(filepath.Separator))

	var common []string
	for i := 0; i < len(pa) && i < len(pb); i++ {
		if pa[i] != pb[i] {
			break
		}
		common = append(common, pa[i])
	}
	joined := filepath.Join(common...)
	if strings.HasPrefix(filepath.Clean(a), string(filepath.Separator)) {
		joined = string(filepath.Separator) + joined
	}
	return joined
}
