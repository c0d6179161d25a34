package watchtree

import (
	"path/filepath"
	"strings"
)

// DefaultExclusions covers version-control metadata, OS metadata and
// editor temporary/backup files.
var DefaultExclusions = []string{".git", ".~", ".DS_Store", "~$", ".swp"}

// Excluder decides whether a file or directory name is ignored.
type Excluder struct {
	markers []string
}

// NewExcluder returns an Excluder for the given markers. Empty markers are
// dropped.
func NewExcluder(markers []string) *Excluder {
	out := make([]string, 0, len(markers))
	for _, m := range markers {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return &Excluder{markers: out}
}

// Match reports whether the base name of name contains any marker.
func (e *Excluder) Match(name string) bool {
	if e == nil {
		return false
	}
	base := filepath.Base(name)
	for _, m := range e.markers {
		if strings.Contains(base, m) {
			return true
		}
	}
	return false
}
