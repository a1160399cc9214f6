package eventd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satori-nvr/satori/internal/config"
	"github.com/satori-nvr/satori/internal/satoriconfig"
	"github.com/satori-nvr/satori/internal/wire"
)

type fakePublisher struct {
	mu       sync.Mutex
	payloads [][]byte
	failNext bool
}

func (f *fakePublisher) Publish(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return assert.AnError
	}
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func newTestProcessor(t *testing.T) (*Processor, *fakePublisher) {
	t.Helper()
	cfg := &satoriconfig.EventdConfig{
		EventFile: filepath.Join(t.TempDir(), "events.json"),
		Interval:  config.Duration(time.Second),
		EventTTL:  config.Duration(time.Hour),
		Triggers: satoriconfig.TriggersConfig{
			Fallback: satoriconfig.TriggerTemplate{
				Cameras: []string{"front"},
				Reason:  "unspecified",
				Pre:     5,
				Post:    5,
			},
		},
	}
	pub := &fakePublisher{}
	p, err := New(cfg, pub, nil)
	require.NoError(t, err)
	return p, pub
}

func TestProcessor_HandleTrigger_CreatesEvent(t *testing.T) {
	p, _ := newTestProcessor(t)
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, p.HandleTrigger(wire.Trigger{Timestamp: ts}))

	assert.Len(t, p.events, 1)
	for _, e := range p.events {
		assert.Equal(t, ts.Add(-5*time.Second), e.Start)
		assert.Equal(t, ts.Add(5*time.Second), e.End)
	}
}

func TestProcessor_HandleTrigger_CoalescesMatchingEvents(t *testing.T) {
	p, _ := newTestProcessor(t)
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, p.HandleTrigger(wire.Trigger{Timestamp: ts}))
	require.NoError(t, p.HandleTrigger(wire.Trigger{Timestamp: ts.Add(2 * time.Second)}))

	assert.Len(t, p.events, 1, "matching cameras+reason must coalesce into one event")
}

func TestProcessor_HandleTrigger_NoCamerasIsDroppedNotError(t *testing.T) {
	cfg := &satoriconfig.EventdConfig{
		EventFile: filepath.Join(t.TempDir(), "events.json"),
		Interval:  config.Duration(time.Second),
		EventTTL:  config.Duration(time.Hour),
		Triggers:  satoriconfig.TriggersConfig{}, // empty fallback, no cameras
	}
	p, err := New(cfg, &fakePublisher{}, nil)
	require.NoError(t, err)

	err = p.HandleTrigger(wire.Trigger{})
	assert.NoError(t, err)
	assert.Empty(t, p.events)
}

func TestProcessor_Tick_DispatchesEligibleEventsAndPersists(t *testing.T) {
	p, pub := newTestProcessor(t)
	past := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, p.HandleTrigger(wire.Trigger{Timestamp: past}))

	p.tick(time.Now().UTC())

	assert.Equal(t, 2, pub.count(), "one archive command per camera plus one metadata command")

	data, err := os.ReadFile(p.eventFile)
	require.NoError(t, err)
	var persisted []wire.EventDescriptor
	require.NoError(t, json.Unmarshal(data, &persisted))
	require.Len(t, persisted, 1)
	assert.True(t, persisted[0].Dispatched)
}

func TestProcessor_Tick_EvictsExpiredEvents(t *testing.T) {
	p, _ := newTestProcessor(t)
	longAgo := time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, p.HandleTrigger(wire.Trigger{Timestamp: longAgo}))

	p.tick(time.Now().UTC())
	assert.Empty(t, p.events, "event past its ttl_deadline must be evicted")
}

func TestProcessor_New_CorruptEventFileQuarantinesAndStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.json")
	require.NoError(t, os.WriteFile(path, []byte("not valid json"), 0o640))

	cfg := &satoriconfig.EventdConfig{
		EventFile: path,
		Interval:  config.Duration(time.Second),
		EventTTL:  config.Duration(time.Hour),
	}
	p, err := New(cfg, &fakePublisher{}, nil)
	require.NoError(t, err, "a corrupt event file must not prevent eventd from starting")
	assert.Empty(t, p.events)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "the corrupt file must be renamed aside, not left in place")

	matches, err := filepath.Glob(path + ".corrupt-*")
	require.NoError(t, err)
	assert.Len(t, matches, 1, "the corrupt file must be quarantined under a .corrupt- suffix")
}

func TestProcessor_Tick_ConcurrentMergeDoesNotRaceSnapshot(t *testing.T) {
	p, _ := newTestProcessor(t)
	past := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, p.HandleTrigger(wire.Trigger{Timestamp: past}))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			p.tick(time.Now().UTC().Add(-time.Hour))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_ = p.HandleTrigger(wire.Trigger{Timestamp: past.Add(time.Duration(i) * time.Millisecond)})
		}
	}()
	wg.Wait()
	// Run under `go test -race`: the snapshot clone in tick() must
	// prevent persist/dispatch from reading fields concurrently
	// mutated by HandleTrigger's merge().
}

func TestProcessor_Tick_PublishFailureLeavesUndispatchedForRetry(t *testing.T) {
	p, pub := newTestProcessor(t)
	past := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, p.HandleTrigger(wire.Trigger{Timestamp: past}))

	pub.failNext = true
	p.tick(time.Now().UTC())

	for _, e := range p.events {
		assert.False(t, e.Dispatched, "a failed publish must not mark the event dispatched")
	}
}
