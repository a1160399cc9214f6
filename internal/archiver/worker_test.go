package archiver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satori-nvr/satori/internal/satoriconfig"
	"github.com/satori-nvr/satori/internal/wire"
)

const testPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:6
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:6.000,
seg_00000001.ts
#EXTINF:6.000,
seg_00000002.ts
#EXT-X-ENDLIST
`

func newFakeAgent(t *testing.T, missing map[string]bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/hls":
			w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
			_, _ = w.Write([]byte(testPlaylist))
		case missing[filepath.Base(r.URL.Path)]:
			w.WriteHeader(http.StatusNotFound)
		default:
			_, _ = w.Write([]byte("segment-bytes:" + filepath.Base(r.URL.Path)))
		}
	}))
}

func TestWorker_FetchAndStoreSegments(t *testing.T) {
	agent := newFakeAgent(t, nil)
	defer agent.Close()

	q, err := LoadQueue(filepath.Join(t.TempDir(), "queue.json"), time.Hour)
	require.NoError(t, err)
	store, err := newLocalStore(satoriconfig.StorageConfig{BaseDir: t.TempDir()})
	require.NoError(t, err)
	w := NewWorker(q, store, map[string]string{"front": agent.URL}, nil, time.Second, nil)

	cmd := &wire.ArchiveCommand{Camera: "front", Start: time.Now(), End: time.Now()}
	require.NoError(t, w.fetchAndStoreSegments(context.Background(), cmd))

	got, err := store.Get(context.Background(), "front/seg_00000001.ts")
	require.NoError(t, err)
	assert.Equal(t, "segment-bytes:seg_00000001.ts", string(got))
}

func TestWorker_FetchAndStoreSegments_ToleratesEvictedSegment(t *testing.T) {
	agent := newFakeAgent(t, map[string]bool{"seg_00000002.ts": true})
	defer agent.Close()

	q, err := LoadQueue(filepath.Join(t.TempDir(), "queue.json"), time.Hour)
	require.NoError(t, err)
	store, err := newLocalStore(satoriconfig.StorageConfig{BaseDir: t.TempDir()})
	require.NoError(t, err)
	w := NewWorker(q, store, map[string]string{"front": agent.URL}, nil, time.Second, nil)

	cmd := &wire.ArchiveCommand{Camera: "front", Start: time.Now(), End: time.Now()}
	err = w.fetchAndStoreSegments(context.Background(), cmd)
	assert.NoError(t, err, "a 404 on one segment must not fail the whole entry")

	_, err = store.Get(context.Background(), "front/seg_00000001.ts")
	assert.NoError(t, err)
}

func TestWorker_FetchAndStoreSegments_UnknownCameraIsConfigError(t *testing.T) {
	q, err := LoadQueue(filepath.Join(t.TempDir(), "queue.json"), time.Hour)
	require.NoError(t, err)
	store, err := newLocalStore(satoriconfig.StorageConfig{BaseDir: t.TempDir()})
	require.NoError(t, err)
	w := NewWorker(q, store, map[string]string{}, nil, time.Second, nil)

	err = w.fetchAndStoreSegments(context.Background(), &wire.ArchiveCommand{Camera: "unknown"})
	assert.Error(t, err)
}

func TestWorker_FetchAndStoreSegments_WritesArchivePlaylist(t *testing.T) {
	agent := newFakeAgent(t, nil)
	defer agent.Close()

	q, err := LoadQueue(filepath.Join(t.TempDir(), "queue.json"), time.Hour)
	require.NoError(t, err)
	store, err := newLocalStore(satoriconfig.StorageConfig{BaseDir: t.TempDir()})
	require.NoError(t, err)
	w := NewWorker(q, store, map[string]string{"front": agent.URL}, nil, time.Second, nil)

	cmd := &wire.ArchiveCommand{Camera: "front", Start: time.Now(), End: time.Now()}
	require.NoError(t, w.fetchAndStoreSegments(context.Background(), cmd))

	data, err := store.Get(context.Background(), "front/archive.m3u8")
	require.NoError(t, err)
	body := string(data)
	assert.Contains(t, body, "seg_00000001.ts")
	assert.Contains(t, body, "seg_00000002.ts")
	assert.Contains(t, body, "#EXT-X-ENDLIST")
}

func TestWorker_FetchAndStoreSegments_MergeIsMonotonicAndDeduplicated(t *testing.T) {
	agent := newFakeAgent(t, nil)
	defer agent.Close()

	q, err := LoadQueue(filepath.Join(t.TempDir(), "queue.json"), time.Hour)
	require.NoError(t, err)
	store, err := newLocalStore(satoriconfig.StorageConfig{BaseDir: t.TempDir()})
	require.NoError(t, err)
	w := NewWorker(q, store, map[string]string{"front": agent.URL}, nil, time.Second, nil)

	cmd := &wire.ArchiveCommand{Camera: "front", Start: time.Now(), End: time.Now()}
	require.NoError(t, w.fetchAndStoreSegments(context.Background(), cmd))
	// Same command delivered a second time (at-least-once delivery, S5).
	require.NoError(t, w.fetchAndStoreSegments(context.Background(), cmd))

	data, err := store.Get(context.Background(), "front/archive.m3u8")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "#EXTINF"), "duplicate delivery must not duplicate archive.m3u8 entries")
}

func TestWorker_FetchAndStoreSegments_PreservesOlderEntriesOnMerge(t *testing.T) {
	store, err := newLocalStore(satoriconfig.StorageConfig{BaseDir: t.TempDir()})
	require.NoError(t, err)
	q, err := LoadQueue(filepath.Join(t.TempDir(), "queue.json"), time.Hour)
	require.NoError(t, err)
	w := NewWorker(q, store, nil, nil, time.Second, nil)

	require.NoError(t, store.Put(context.Background(), "front/archive.m3u8", []byte(
		"#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:6\n#EXT-X-MEDIA-SEQUENCE:0\n"+
			"#EXTINF:6.000,\nseg_00000001.ts\n#EXT-X-ENDLIST\n")))

	require.NoError(t, w.mergeArchivePlaylist(context.Background(), "front", []archiveSegment{
		{filename: "seg_00000002.ts", duration: 6},
	}))

	data, err := store.Get(context.Background(), "front/archive.m3u8")
	require.NoError(t, err)
	body := string(data)
	assert.Contains(t, body, "seg_00000001.ts", "merge must not drop a previously archived segment")
	assert.Contains(t, body, "seg_00000002.ts")
	assert.Equal(t, 2, strings.Count(body, "#EXTINF"))
}

func TestWorker_FetchAndStoreSegment_NonOKStatusIsTransientError(t *testing.T) {
	agent := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/hls":
			_, _ = w.Write([]byte(testPlaylist))
		default:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("internal error"))
		}
	}))
	defer agent.Close()

	q, err := LoadQueue(filepath.Join(t.TempDir(), "queue.json"), time.Hour)
	require.NoError(t, err)
	store, err := newLocalStore(satoriconfig.StorageConfig{BaseDir: t.TempDir()})
	require.NoError(t, err)
	w := NewWorker(q, store, map[string]string{"front": agent.URL}, nil, time.Second, nil)

	cmd := &wire.ArchiveCommand{Camera: "front", Start: time.Now(), End: time.Now()}
	err = w.fetchAndStoreSegments(context.Background(), cmd)
	assert.Error(t, err, "a 500 on a segment fetch must fail the entry for retry")

	_, getErr := store.Get(context.Background(), "front/seg_00000001.ts")
	assert.Error(t, getErr, "error-page body must never be stored as segment bytes")
}

func TestWorker_StoreEventMetadata(t *testing.T) {
	q, err := LoadQueue(filepath.Join(t.TempDir(), "queue.json"), time.Hour)
	require.NoError(t, err)
	store, err := newLocalStore(satoriconfig.StorageConfig{BaseDir: t.TempDir()})
	require.NoError(t, err)
	w := NewWorker(q, store, nil, nil, time.Second, nil)

	event := &wire.EventDescriptor{ID: "evt1", Cameras: []string{"front"}}
	require.NoError(t, w.storeEventMetadata(context.Background(), event))

	_, err = store.Get(context.Background(), "events/evt1.json")
	assert.NoError(t, err)
}
