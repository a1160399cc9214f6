package archiver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bluenviron/gohlslib/v2/pkg/playlist"
	"golang.org/x/sync/errgroup"

	"github.com/satori-nvr/satori/internal/errs"
	"github.com/satori-nvr/satori/internal/wire"
	"github.com/satori-nvr/satori/pkg/httpclient"
)

const maxConcurrentSegmentFetches = 4

// Worker scans the queue each tick and processes due entries. A
// permanently-failing entry is left in place with an advanced
// next_attempt and never blocks entries behind it.
type Worker struct {
	queue      *Queue
	store      Store
	agentURLs  map[string]string
	allowlist  map[string]bool // nil means allow every camera
	httpClient *httpclient.Client
	interval   time.Duration
	logger     *slog.Logger
}

// NewWorker returns a Worker. An empty cameras allow-list means every
// camera is accepted.
func NewWorker(queue *Queue, store Store, agentURLs map[string]string, cameras []string, interval time.Duration, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	var allow map[string]bool
	if len(cameras) > 0 {
		allow = make(map[string]bool, len(cameras))
		for _, c := range cameras {
			allow[c] = true
		}
	}
	return &Worker{
		queue:      queue,
		store:      store,
		agentURLs:  agentURLs,
		allowlist:  allow,
		httpClient: httpclient.NewWithDefaults(),
		interval:   interval,
		logger:     logger,
	}
}

// Accepts reports whether camera passes the allow-list filter.
func (w *Worker) Accepts(camera string) bool {
	if w.allowlist == nil {
		return true
	}
	return w.allowlist[camera]
}

// Run scans the queue at the configured interval until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.scan(ctx)
		}
	}
}

func (w *Worker) scan(ctx context.Context) {
	now := time.Now().UTC()
	for _, entry := range w.queue.Due(now) {
		var err error
		switch entry.Kind {
		case "", wire.ArchiveCommandKind:
			err = w.fetchAndStoreSegments(ctx, entry.Segments)
		case wire.EventMetadataKind:
			err = w.storeEventMetadata(ctx, entry.Metadata)
		default:
			w.logger.Error("unknown queue entry kind, dropping", "kind", entry.Kind, "id", entry.ID)
			_ = w.queue.Succeed(entry.ID)
			continue
		}

		if err != nil {
			w.logger.Warn("queue entry failed, will retry", "id", entry.ID, "attempts", entry.Attempts+1, "error", err)
			if ferr := w.queue.Fail(entry.ID, now); ferr != nil {
				w.logger.Error("persisting queue failure", "error", ferr)
			}
			continue
		}

		if serr := w.queue.Succeed(entry.ID); serr != nil {
			w.logger.Error("persisting queue success", "error", serr)
		}
	}
}

// fetchAndStoreSegments enumerates the candidate segments over
// [cmd.Start, cmd.End) from the owning agent's playlist and downloads
// each independently, storing at content-addressed key <camera>/<file>.
func (w *Worker) fetchAndStoreSegments(ctx context.Context, cmd *wire.ArchiveCommand) error {
	baseURL, ok := w.agentURLs[cmd.Camera]
	if !ok {
		return errs.NewConfigError(fmt.Sprintf("no agent_urls entry for camera %q", cmd.Camera), nil)
	}

	playlistURL := fmt.Sprintf("%s/hls?since=%s&until=%s",
		baseURL,
		url.QueryEscape(cmd.Start.Format(time.RFC3339)),
		url.QueryEscape(cmd.End.Format(time.RFC3339)),
	)

	resp, err := w.httpClient.Get(ctx, playlistURL)
	if err != nil {
		return errs.NewTransientIO("fetch playlist", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.NewTransientIO("read playlist body", err)
	}

	parsed, err := playlist.Unmarshal(body)
	if err != nil {
		return errs.NewTransientIO("parse playlist", err)
	}
	media, ok := parsed.(*playlist.Media)
	if !ok {
		return errs.NewTransientIO("parse playlist", fmt.Errorf("not a media playlist"))
	}

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(maxConcurrentSegmentFetches)

	var mu sync.Mutex
	stored := make([]archiveSegment, 0, len(media.Segments))

	for _, seg := range media.Segments {
		seg := seg
		if seg == nil || seg.URI == "" {
			continue
		}
		group.Go(func() error {
			filename, err := w.fetchAndStoreSegment(gctx, baseURL, cmd.Camera, seg.URI)
			if err != nil {
				return err
			}
			if filename == "" {
				return nil
			}
			mu.Lock()
			stored = append(stored, archiveSegment{filename: filename, duration: seg.Duration})
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}

	if len(stored) == 0 {
		return nil
	}

	return w.mergeArchivePlaylist(ctx, cmd.Camera, stored)
}

// archiveSegment is one entry of a per-camera archival playlist.
type archiveSegment struct {
	filename string
	duration float64
}

// mergeArchivePlaylist merges newly stored segments into the camera's
// monotonically-growing archival index at <camera>/archive.m3u8: the
// result is sorted by filename (ffmpeg's zero-padded sequence numbers
// sort chronologically) and deduplicated, never dropping an entry that
// was already present.
func (w *Worker) mergeArchivePlaylist(ctx context.Context, camera string, newSegs []archiveSegment) error {
	key := camera + "/archive.m3u8"

	merged := make(map[string]float64, len(newSegs))

	existing, err := w.store.Get(ctx, key)
	if err != nil {
		var notFound *errs.NotFound
		if !errors.As(err, &notFound) {
			return errs.NewTransientIO("read archive playlist", err)
		}
	} else if len(existing) > 0 {
		parsed, perr := playlist.Unmarshal(existing)
		if perr != nil {
			return errs.NewTransientIO("parse archive playlist", perr)
		}
		if media, ok := parsed.(*playlist.Media); ok {
			for _, seg := range media.Segments {
				if seg == nil || seg.URI == "" {
					continue
				}
				merged[seg.URI] = seg.Duration
			}
		}
	}

	for _, s := range newSegs {
		merged[s.filename] = s.duration
	}

	filenames := make([]string, 0, len(merged))
	for f := range merged {
		filenames = append(filenames, f)
	}
	sort.Strings(filenames)

	target := 0
	for _, d := range merged {
		if rounded := int(d + 0.5); rounded > target {
			target = rounded
		}
	}
	if target == 0 {
		target = 6
	}

	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", target)
	b.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")
	b.WriteString("#EXT-X-PLAYLIST-TYPE:VOD\n")
	for _, f := range filenames {
		fmt.Fprintf(&b, "#EXTINF:%.3f,\n%s\n", merged[f], f)
	}
	b.WriteString("#EXT-X-ENDLIST\n")

	return w.store.Put(ctx, key, []byte(b.String()))
}

func (w *Worker) fetchAndStoreSegment(ctx context.Context, baseURL, camera, filename string) (string, error) {
	segURL := baseURL + "/" + filename
	resp, err := w.httpClient.Get(ctx, segURL)
	if err != nil {
		return "", errs.NewTransientIO("fetch segment "+filename, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// Evicted between playlist generation and fetch: tolerated,
		// not an entry-level failure per the Agent's documented contract.
		w.logger.Info("segment evicted before fetch, skipping", "camera", camera, "segment", filename)
		return "", nil
	}

	if resp.StatusCode != http.StatusOK {
		return "", errs.NewTransientIO("fetch segment "+filename, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errs.NewTransientIO("read segment body "+filename, err)
	}

	key := camera + "/" + filename
	if err := w.store.Put(ctx, key, data); err != nil {
		return "", err
	}
	return filename, nil
}

func (w *Worker) storeEventMetadata(ctx context.Context, event *wire.EventDescriptor) error {
	data, err := json.Marshal(event)
	if err != nil {
		return errs.NewTransientIO("marshal event metadata", err)
	}
	key := "events/" + event.ID + ".json"
	return w.store.Put(ctx, key, data)
}
