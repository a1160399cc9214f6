package eventd

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/satori-nvr/satori/internal/errs"
	"github.com/satori-nvr/satori/internal/ids"
	"github.com/satori-nvr/satori/internal/satoriconfig"
	"github.com/satori-nvr/satori/internal/wire"
)

// Publisher delivers a serialized archive command to the bus. Delivery
// is at-least-once from the processor's point of view.
type Publisher interface {
	Publish(payload []byte) error
}

// Processor owns the durable, in-memory event set and the tick loop
// that promotes eligible events into archive commands.
type Processor struct {
	mu     sync.Mutex
	events map[string]*Event // keyed by identityKey

	eventFile string
	interval  time.Duration
	eventTTL  time.Duration
	templates satoriconfig.TriggersConfig

	publisher Publisher
	logger    *slog.Logger
}

// New loads any persisted events from cfg.EventFile and returns a ready
// Processor. A corrupt event file is logged and treated as empty state.
func New(cfg *satoriconfig.EventdConfig, publisher Publisher, logger *slog.Logger) (*Processor, error) {
	if logger == nil {
		logger = slog.Default()
	}

	p := &Processor{
		events:    make(map[string]*Event),
		eventFile: cfg.EventFile,
		interval:  cfg.Interval.Duration(),
		eventTTL:  cfg.EventTTL.Duration(),
		templates: cfg.Triggers,
		publisher: publisher,
		logger:    logger,
	}

	events, err := load(cfg.EventFile)
	if err != nil {
		var corrupt *errs.StateCorruption
		if errors.As(err, &corrupt) {
			quarantine(corrupt.Path, logger)
			events = nil
		} else {
			return nil, err
		}
	}
	for _, e := range events {
		p.events[e.key()] = e
	}

	return p, nil
}

// HandleTrigger resolves t against the template table and merges it
// into the event state machine. A trigger resolving to no cameras is
// dropped with a warning; this is not an error.
func (p *Processor) HandleTrigger(t wire.Trigger) error {
	r := resolve(t, p.templates)
	if len(r.cameras) == 0 {
		p.logger.Warn("dropping trigger with no resolved cameras", "trigger_id", t.ID)
		return nil
	}

	start := r.timestamp.Add(-r.pre)
	end := r.timestamp.Add(r.post)

	p.mu.Lock()
	defer p.mu.Unlock()

	key := identityKey(r.cameras, r.reason)
	if existing, ok := p.events[key]; ok {
		existing.merge(r.cameras, start, end, p.eventTTL)
		return nil
	}

	p.events[key] = &Event{
		ID:          ids.New(),
		Cameras:     r.cameras,
		Reason:      r.reason,
		Start:       start,
		End:         end,
		TTLDeadline: end.Add(p.eventTTL),
	}
	return nil
}

// Run ticks at the configured interval until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(time.Now().UTC())
		}
	}
}

// tick dispatches archive commands for every eligible undispatched
// event, persists the resulting event set, and evicts expired events.
//
// Events are cloned under the lock before it is released: dispatch and
// persist both run lock-free against the clones while HandleTrigger
// may concurrently merge into the live events, and must never observe
// a torn read of Start/End/Cameras.
func (p *Processor) tick(now time.Time) {
	p.mu.Lock()
	snapshot := make([]*Event, 0, len(p.events))
	for _, e := range p.events {
		snapshot = append(snapshot, e.clone())
	}
	p.mu.Unlock()

	for _, e := range snapshot {
		if !e.eligible(now) {
			continue
		}
		if err := p.dispatch(e); err != nil {
			p.logger.Error("dispatching archive commands", "event_id", e.ID.String(), "error", err)
			continue // leave dispatched=false, retried next tick
		}
		e.Dispatched = true

		p.mu.Lock()
		if live, ok := p.events[e.key()]; ok && live.End.Equal(e.End) {
			live.Dispatched = true
		}
		p.mu.Unlock()
	}

	if err := persist(p.eventFile, snapshot); err != nil {
		p.logger.Error("persisting event file", "error", err)
		// in-memory state remains authoritative; retried next tick.
	}

	p.mu.Lock()
	for key, e := range p.events {
		if e.expired(now) {
			delete(p.events, key)
		}
	}
	p.mu.Unlock()
}

// dispatch publishes one archive command per camera plus one
// event-metadata command. A publish failure part-way leaves the event
// dispatched=false; redelivery of the already-published commands is
// tolerated by the archiver's idempotent key scheme.
func (p *Processor) dispatch(e *Event) error {
	for _, camera := range e.Cameras {
		cmd := wire.ArchiveCommand{
			Kind:   wire.ArchiveCommandKind,
			Camera: camera,
			Start:  e.Start,
			End:    e.End,
			Reason: e.Reason,
		}
		payload, err := json.Marshal(cmd)
		if err != nil {
			return err
		}
		if err := p.publisher.Publish(payload); err != nil {
			return err
		}
	}

	metadata, err := json.Marshal(e.toDescriptor())
	if err != nil {
		return err
	}
	return p.publisher.Publish(metadata)
}
