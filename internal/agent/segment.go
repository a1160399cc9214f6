// Package agent implements the Satori Agent: supervision of a transcoder
// child process, timestamped indexing of its rolling HLS playlist, and
// an HTTP surface serving time-windowed playlists, segments, and frames.
package agent

import (
	"sort"
	"sync"
	"time"
)

// Segment is one immutable MPEG-TS file written by the transcoder.
// Identity within a camera is Filename.
type Segment struct {
	Filename string
	Duration time.Duration
	Start    time.Time
}

// End returns the segment's end timestamp, Start plus Duration.
func (s Segment) End() time.Time {
	return s.Start.Add(s.Duration)
}

// Overlaps reports whether the segment's [Start, End) interval overlaps
// the half-open window [since, until): segment.end > since && segment.start < until.
func (s Segment) Overlaps(since, until time.Time) bool {
	if !since.IsZero() && !s.End().After(since) {
		return false
	}
	if !until.IsZero() && !s.Start.Before(until) {
		return false
	}
	return true
}

// Index is the in-memory, ordered Segment Index for one camera. The
// watcher is the sole writer; HTTP handlers are readers and must
// tolerate the index shifting between calls.
type Index struct {
	mu       sync.RWMutex
	segments []Segment
}

// NewIndex returns an empty Index.
func NewIndex() *Index {
	return &Index{}
}

// Sync replaces the index contents with the given segments, which MUST
// already be sorted ascending by Start. Called by the watcher after
// reconciling a playlist change.
func (idx *Index) Sync(segments []Segment) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.segments = segments
}

// All returns a snapshot of every indexed segment, ascending by Start.
func (idx *Index) All() []Segment {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]Segment, len(idx.segments))
	copy(out, idx.segments)
	return out
}

// Window returns the segments overlapping [since, until), ascending by
// Start. A zero since/until is treated as unbounded on that side.
func (idx *Index) Window(since, until time.Time) []Segment {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]Segment, 0, len(idx.segments))
	for _, s := range idx.segments {
		if s.Overlaps(since, until) {
			out = append(out, s)
		}
	}
	return out
}

// Get returns the segment with the given filename, if present.
func (idx *Index) Get(filename string) (Segment, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	for _, s := range idx.segments {
		if s.Filename == filename {
			return s, true
		}
	}
	return Segment{}, false
}

// sortSegments sorts in place ascending by Start, the invariant the
// watcher must restore before calling Sync.
func sortSegments(segments []Segment) {
	sort.Slice(segments, func(i, j int) bool {
		return segments[i].Start.Before(segments[j].Start)
	})
}
