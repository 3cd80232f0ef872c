package pipeline

import (
	"time"

	"github.com/minakit/mina/internal/entry"
)

// Stats describes a finished build.
type Stats struct {
	Registrations []entry.Registration
	Chunks        []ChunkStats

	// Assets lists every output file, written or, in a dry run, not.
	Assets []string

	DryRun   bool
	Duration time.Duration
}

// ChunkStats records how one chunk was rendered.
type ChunkStats struct {
	Name     string
	File     string
	Template string
	Original string
	Rendered string
}

// Changed reports whether rendering altered the chunk source.
func (cs ChunkStats) Changed() bool {
	return cs.Original != cs.Rendered
}

// EntryCount returns the number of single-file registrations.
func (s *Stats) EntryCount() int {
	n := 0
	for _, r := range s.Registrations {
		if !r.Multi {
			n++
		}
	}
	return n
}

// InjectedCount returns the number of chunks whose source was rewritten.
func (s *Stats) InjectedCount() int {
	n := 0
	for _, c := range s.Chunks {
		if c.Changed() {
			n++
		}
	}
	return n
}
