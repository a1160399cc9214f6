// Package archiver implements the Satori Archiver: MQTT archive
// command ingestion into a durable retry queue, fetching segments from
// agents over HTTP, and writing them into a pluggable object store.
package archiver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio/v2"

	"github.com/satori-nvr/satori/internal/errs"
	"github.com/satori-nvr/satori/internal/ids"
	"github.com/satori-nvr/satori/internal/wire"
)

// Queue is the Archiver's persistent, ordered work queue. Entries are
// processed head-to-tail, skipping any not yet due; a permanently
// failing entry never blocks entries behind it.
type Queue struct {
	mu         sync.Mutex
	path       string
	maxBackoff time.Duration
	entries    []*wire.QueueEntry
}

// LoadQueue reads path, or starts empty if it does not exist. A file
// that fails to parse is quarantined (renamed aside with a ".corrupt-"
// suffix, logged at error level) and the queue starts from empty state
// rather than refusing to boot.
func LoadQueue(path string, maxBackoff time.Duration) (*Queue, error) {
	q := &Queue{path: path, maxBackoff: maxBackoff}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return q, nil
	}
	if err != nil {
		return nil, errs.NewTransientIO("read queue file", err)
	}

	var entries []*wire.QueueEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		quarantine(path, errs.NewStateCorruption(path, err))
		return q, nil
	}
	q.entries = entries
	return q, nil
}

// quarantine renames a corrupt queue file aside for operator inspection
// and logs at error level. A failure to rename is itself only logged:
// starting from empty state must never be blocked by a second
// filesystem error.
func quarantine(path string, cause error) {
	dest := fmt.Sprintf("%s.corrupt-%d", path, time.Now().UnixNano())
	if err := os.Rename(path, dest); err != nil {
		slog.Default().Error("queue file corrupt and could not be renamed aside, starting from empty state", "path", path, "error", err)
		return
	}
	slog.Default().Error("queue file corrupt, renamed aside and starting from empty state", "path", path, "quarantined", dest, "cause", cause)
}

// EnqueueSegments appends a FetchAndStoreSegments entry and persists the queue.
func (q *Queue) EnqueueSegments(cmd wire.ArchiveCommand) error {
	return q.enqueue(&wire.QueueEntry{
		ID:       ids.New().String(),
		Kind:     wire.ArchiveCommandKind,
		Segments: &cmd,
		Enqueued: time.Now().UTC(),
	})
}

// EnqueueMetadata appends a StoreEventMetadata entry and persists the queue.
func (q *Queue) EnqueueMetadata(event wire.EventDescriptor) error {
	return q.enqueue(&wire.QueueEntry{
		ID:       ids.New().String(),
		Kind:     wire.EventMetadataKind,
		Metadata: &event,
		Enqueued: time.Now().UTC(),
	})
}

func (q *Queue) enqueue(entry *wire.QueueEntry) error {
	q.mu.Lock()
	q.entries = append(q.entries, entry)
	q.mu.Unlock()
	return q.persist()
}

// Len returns the number of entries currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Due returns a snapshot of entries whose next_attempt has passed,
// in queue order.
func (q *Queue) Due(now time.Time) []*wire.QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	due := make([]*wire.QueueEntry, 0, len(q.entries))
	for _, e := range q.entries {
		if !e.NextAttempt.After(now) {
			due = append(due, e)
		}
	}
	return due
}

// Succeed removes an entry by id and persists the queue.
func (q *Queue) Succeed(id string) error {
	q.mu.Lock()
	out := q.entries[:0]
	for _, e := range q.entries {
		if e.ID != id {
			out = append(out, e)
		}
	}
	q.entries = out
	q.mu.Unlock()
	return q.persist()
}

// Fail increments the entry's attempt counter and sets its next
// attempt using exponential backoff capped at maxBackoff, then
// persists the queue. The entry is left in place for indefinite retry.
func (q *Queue) Fail(id string, now time.Time) error {
	q.mu.Lock()
	for _, e := range q.entries {
		if e.ID == id {
			e.Attempts++
			e.NextAttempt = now.Add(backoff(e.Attempts, q.maxBackoff))
			break
		}
	}
	q.mu.Unlock()
	return q.persist()
}

// backoff returns 2^(attempts-1) seconds, capped at max.
func backoff(attempts int, max time.Duration) time.Duration {
	d := time.Duration(math.Pow(2, float64(attempts-1))) * time.Second
	if d > max || d <= 0 {
		return max
	}
	return d
}

func (q *Queue) persist() error {
	q.mu.Lock()
	entries := make([]*wire.QueueEntry, len(q.entries))
	copy(entries, q.entries)
	q.mu.Unlock()

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return errs.NewTransientIO("marshal queue file", err)
	}
	if err := os.MkdirAll(filepath.Dir(q.path), 0o750); err != nil {
		return errs.NewTransientIO("create queue file directory", err)
	}
	if err := renameio.WriteFile(q.path, data, 0o640); err != nil {
		return errs.NewTransientIO("write queue file", err)
	}
	return nil
}
