// Package eventd implements the Satori Event Processor: trigger
// ingestion, template resolution, and the durable event coalescing
// state machine that emits archive commands once an event's post-roll
// window has elapsed.
package eventd

import (
	"sort"
	"strings"
	"time"

	"github.com/satori-nvr/satori/internal/ids"
	"github.com/satori-nvr/satori/internal/wire"
)

// Event is a durable, in-progress archival intent. Identity for
// coalescing is (cameras-set, reason); see identityKey.
type Event struct {
	ID          ids.ULID
	Cameras     []string
	Reason      string
	Start       time.Time
	End         time.Time
	TTLDeadline time.Time
	Dispatched  bool
}

// identityKey returns the coalescing key: sorted cameras joined with
// the reason, so cameras order never creates spurious distinct events.
func identityKey(cameras []string, reason string) string {
	sorted := append([]string(nil), cameras...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",") + "|" + reason
}

func (e *Event) key() string {
	return identityKey(e.Cameras, e.Reason)
}

// clone returns a deep copy safe to read without holding the owning
// Processor's lock, independent of later merge() mutation of e.
func (e *Event) clone() *Event {
	c := *e
	c.Cameras = append([]string(nil), e.Cameras...)
	return &c
}

// merge widens the event to cover a newly-coalesced trigger window and
// refreshes its TTL deadline. cameras-set only grows via union.
func (e *Event) merge(cameras []string, start, end time.Time, ttl time.Duration) {
	if start.Before(e.Start) {
		e.Start = start
	}
	if end.After(e.End) {
		e.End = end
		e.Dispatched = false // a widened window needs re-dispatch of the new tail
	}
	e.Cameras = unionCameras(e.Cameras, cameras)
	e.TTLDeadline = e.End.Add(ttl)
}

func unionCameras(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, c := range append(append([]string{}, a...), b...) {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

// expired reports whether the event's TTL has passed as of now.
func (e *Event) expired(now time.Time) bool {
	return now.After(e.TTLDeadline)
}

// eligible reports whether the event's post-roll window has fully
// elapsed and it has not yet been dispatched.
func (e *Event) eligible(now time.Time) bool {
	return !e.Dispatched && now.After(e.End)
}

func (e *Event) toDescriptor() wire.EventDescriptor {
	return wire.EventDescriptor{
		Kind:        wire.EventMetadataKind,
		ID:          e.ID.String(),
		Cameras:     e.Cameras,
		Reason:      e.Reason,
		Start:       e.Start,
		End:         e.End,
		Dispatched:  e.Dispatched,
		TTLDeadline: e.TTLDeadline,
	}
}

func fromDescriptor(d wire.EventDescriptor) (*Event, error) {
	id, err := ids.Parse(d.ID)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:          id,
		Cameras:     d.Cameras,
		Reason:      d.Reason,
		Start:       d.Start,
		End:         d.End,
		Dispatched:  d.Dispatched,
		TTLDeadline: d.TTLDeadline,
	}, nil
}
