package agent

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bluenviron/gohlslib/v2/pkg/playlist"
)

// Watcher polls the ffmpeg-written playlist file on disk and reconciles
// it into the Index. It is the Index's sole writer.
//
// Algorithm: the start timestamp of a freshly appearing segment is the
// wall-clock time at which the watcher first observed it, minus that
// segment's declared duration; subsequent segments chain forward by
// their durations relative to the first. This gives +/- one poll-interval
// accuracy, which HLS's relative-duration-only format cannot improve on.
type Watcher struct {
	playlistPath string
	pollInterval time.Duration
	index        *Index
	logger       *slog.Logger

	known map[string]Segment // filename -> timestamped segment, carried across polls
}

// NewWatcher returns a Watcher for the playlist at videoDir/stream.m3u8.
func NewWatcher(videoDir string, index *Index, pollInterval time.Duration, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	if pollInterval == 0 {
		pollInterval = 1 * time.Second
	}
	return &Watcher{
		playlistPath: filepath.Join(videoDir, "stream.m3u8"),
		pollInterval: pollInterval,
		index:        index,
		logger:       logger,
		known:        make(map[string]Segment),
	}
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *Watcher) poll() {
	data, err := os.ReadFile(w.playlistPath)
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Warn("reading playlist", "path", w.playlistPath, "error", err)
		}
		return
	}

	parsed, err := playlist.Unmarshal(data)
	if err != nil {
		w.logger.Warn("parsing playlist", "path", w.playlistPath, "error", err)
		return
	}
	media, ok := parsed.(*playlist.Media)
	if !ok {
		w.logger.Warn("playlist is not a media playlist", "path", w.playlistPath)
		return
	}

	now := time.Now().UTC()
	observed := make(map[string]bool, len(media.Segments))
	resolved := make([]Segment, 0, len(media.Segments))
	var chainEnd time.Time

	for _, seg := range media.Segments {
		if seg == nil || seg.URI == "" {
			continue
		}
		observed[seg.URI] = true
		duration := time.Duration(seg.Duration * float64(time.Second))

		if existing, ok := w.known[seg.URI]; ok {
			resolved = append(resolved, existing)
			chainEnd = existing.End()
			continue
		}

		var start time.Time
		if !chainEnd.IsZero() {
			start = chainEnd
		} else {
			start = now.Add(-duration)
		}
		s := Segment{Filename: seg.URI, Duration: duration, Start: start}
		resolved = append(resolved, s)
		chainEnd = s.End()
	}

	// Drop segments evicted from the playlist head.
	for name := range w.known {
		if !observed[name] {
			delete(w.known, name)
		}
	}
	for _, s := range resolved {
		w.known[s.Filename] = s
	}

	sortSegments(resolved)
	w.index.Sync(resolved)
}
