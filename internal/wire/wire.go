// Package wire defines the JSON payloads exchanged between Satori
// services: triggers posted to the Event Processor, archive commands
// published over MQTT, event descriptors persisted and written to
// object storage, and archiver queue entries persisted to disk.
package wire

import "time"

// Trigger is the body of POST /trigger.
type Trigger struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Cameras   []string  `json:"cameras,omitempty"`
	Pre       int       `json:"pre,omitempty"`
	Post      int       `json:"post,omitempty"`
}

// ArchiveCommandKind and EventMetadataKind are the two MQTT payload
// variants published on the configured archive topic.
const (
	ArchiveCommandKind = "archive_segments"
	EventMetadataKind  = "event_metadata"
)

// ArchiveCommand requests that an Archiver fetch and store a camera's
// segments spanning [Start, End).
type ArchiveCommand struct {
	Kind   string    `json:"kind"`
	Camera string    `json:"camera"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Reason string    `json:"reason,omitempty"`
}

// EventDescriptor is the full event record, published alongside its
// per-camera ArchiveCommands and persisted to events/<event-id>.json
// in every configured object store.
type EventDescriptor struct {
	Kind       string    `json:"kind"`
	ID         string    `json:"id"`
	Cameras    []string  `json:"cameras"`
	Reason     string    `json:"reason,omitempty"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Dispatched bool      `json:"dispatched"`
	TTLDeadline time.Time `json:"ttl_deadline"`
}

// QueueEntry is one pending archive operation persisted by the
// Archiver. Entries are retried with exponential backoff until an
// operator purges them; Attempts and NextAttempt drive that schedule.
// Exactly one of Segments or Metadata is set, matching Kind.
type QueueEntry struct {
	ID          string           `json:"id"`
	Kind        string           `json:"kind"`
	Segments    *ArchiveCommand  `json:"segments,omitempty"`
	Metadata    *EventDescriptor `json:"metadata,omitempty"`
	Attempts    int              `json:"attempts"`
	NextAttempt time.Time        `json:"next_attempt"`
	Enqueued    time.Time        `json:"enqueued"`
}
