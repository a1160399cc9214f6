package agent

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/v4/disk"

	"github.com/satori-nvr/satori/internal/config"
	satorihttp "github.com/satori-nvr/satori/internal/http"
)

// Handlers serves the Agent's playback surface: a rolling playlist over
// [since, until) or the last N seconds, individual segment bytes, the
// latest still frame, a minimal player page, and a health check.
type Handlers struct {
	camera         string
	videoDirectory string
	index          *Index
	startTime      time.Time
	logger         *slog.Logger
}

// NewHandlers returns Handlers for the given camera's index and video directory.
func NewHandlers(camera, videoDirectory string, index *Index, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		camera:         camera,
		videoDirectory: videoDirectory,
		index:          index,
		startTime:      time.Now(),
		logger:         logger,
	}
}

// Register wires every route onto server. Playlist, segment, and frame
// routes are registered directly on the chi router rather than through
// huma: their responses are raw M3U8/TS/JPEG bodies, not JSON.
func (h *Handlers) Register(server *satorihttp.Server) {
	router := server.Router()

	router.Get("/hls", h.servePlaylist)
	router.Get("/stream.m3u8", h.servePlaylist)
	router.Get("/frame.jpg", h.serveFrame)
	router.Get("/player", h.servePlayer)
	router.Get("/{segment}.ts", h.serveSegment)

	h.registerHealth(server.API())
}

// servePlaylist writes a hand-rolled M3U8 playlist covering the
// requested window. since/until/last are mutually exclusive except
// that since+until may be combined; last conflicts with either.
func (h *Handlers) servePlaylist(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sinceParam := q.Get("since")
	untilParam := q.Get("until")
	lastParam := q.Get("last")

	if lastParam != "" && (sinceParam != "" || untilParam != "") {
		http.Error(w, "last is mutually exclusive with since/until", http.StatusBadRequest)
		return
	}

	var since, until time.Time
	var err error

	if lastParam != "" {
		d, perr := config.ParseDuration(lastParam)
		if perr != nil || d.Duration() <= 0 {
			http.Error(w, "last must be a positive duration (e.g. 30s, 5m, 1h)", http.StatusBadRequest)
			return
		}
		// last = D is sugar for since = now - D, until unbounded.
		since = time.Now().UTC().Add(-d.Duration())
	} else {
		if since, err = parseTimeParam(sinceParam); err != nil {
			http.Error(w, "invalid since: "+err.Error(), http.StatusBadRequest)
			return
		}
		if until, err = parseTimeParam(untilParam); err != nil {
			http.Error(w, "invalid until: "+err.Error(), http.StatusBadRequest)
			return
		}
		if !since.IsZero() && !until.IsZero() && !since.Before(until) {
			http.Error(w, "since must be before until", http.StatusBadRequest)
			return
		}
	}

	segments := h.index.Window(since, until)

	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	b.WriteString(fmt.Sprintf("#EXT-X-TARGETDURATION:%d\n", targetDuration(segments)))
	b.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")
	b.WriteString("#EXT-X-PLAYLIST-TYPE:EVENT\n")

	for _, s := range segments {
		b.WriteString(fmt.Sprintf("#EXTINF:%.3f,\n", s.Duration.Seconds()))
		b.WriteString(s.Filename)
		b.WriteString("\n")
	}
	b.WriteString("#EXT-X-ENDLIST\n")

	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(b.String()))
}

func targetDuration(segments []Segment) int {
	max := 0
	for _, s := range segments {
		if d := int(s.Duration.Seconds() + 0.5); d > max {
			max = d
		}
	}
	if max == 0 {
		max = 6
	}
	return max
}

func parseTimeParam(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}

// serveSegment streams one MPEG-TS file by filename, verifying it is
// still present in the index before touching the filesystem so a
// request can't reach outside the video directory or outlive eviction.
func (h *Handlers) serveSegment(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "segment") + ".ts"
	if _, ok := h.index.Get(name); !ok {
		http.NotFound(w, r)
		return
	}

	path := filepath.Join(h.videoDirectory, name)
	w.Header().Set("Content-Type", "video/mp2t")
	http.ServeFile(w, r, path)
}

// serveFrame streams the most recently captured still frame.
func (h *Handlers) serveFrame(w http.ResponseWriter, r *http.Request) {
	path := filepath.Join(h.videoDirectory, "frame.jpg")
	if _, err := os.Stat(path); err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	http.ServeFile(w, r, path)
}

const playerPage = `<!DOCTYPE html>
<html>
<head><title>%s</title></head>
<body>
<video controls autoplay muted style="width:100%%;max-width:960px" src="/hls"></video>
</body>
</html>
`

// servePlayer returns a minimal HTML page for manual verification.
func (h *Handlers) servePlayer(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, playerPage, h.camera)
}

// HealthInput is the input for the health check endpoint.
type HealthInput struct{}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// HealthResponse reports agent liveness and video directory disk pressure.
type HealthResponse struct {
	Status        string  `json:"status"`
	Camera        string  `json:"camera"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	SegmentCount  int     `json:"segment_count"`
	DiskFreeBytes uint64  `json:"disk_free_bytes"`
	DiskUsedPct   float64 `json:"disk_used_pct"`
}

func (h *Handlers) registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getAgentHealth",
		Method:      "GET",
		Path:        "/healthz",
		Summary:     "Health check",
		Description: "Reports ffmpeg supervision liveness and video directory disk pressure",
		Tags:        []string{"System"},
	}, h.getHealth)
}

func (h *Handlers) getHealth(_ context.Context, _ *HealthInput) (*HealthOutput, error) {
	status := "healthy"
	var free uint64
	var usedPct float64

	usage, err := disk.Usage(h.videoDirectory)
	if err != nil {
		h.logger.Warn("disk usage check failed", "path", h.videoDirectory, "error", err)
		status = "degraded"
	} else {
		free = usage.Free
		usedPct = usage.UsedPercent
		if usedPct > 95 {
			status = "degraded"
		}
	}

	return &HealthOutput{
		Body: HealthResponse{
			Status:        status,
			Camera:        h.camera,
			UptimeSeconds: time.Since(h.startTime).Seconds(),
			SegmentCount:  len(h.index.All()),
			DiskFreeBytes: free,
			DiskUsedPct:   usedPct,
		},
	}, nil
}
