package archiver

import (
	"encoding/json"
	"log/slog"

	"github.com/satori-nvr/satori/internal/wire"
)

// Subscriber is the narrow mqttutil.Client surface the ingest loop
// needs, letting tests substitute a fake.
type Subscriber interface {
	Subscribe(handler func(payload []byte)) error
}

// Ingest subscribes to the archive command topic and enqueues durable
// work. Handler MUST tolerate duplicate deliveries: paho redelivers
// unacknowledged QoS 1/2 messages after reconnect, and re-enqueuing an
// already-queued command is harmless because Put is idempotent on key.
func Ingest(sub Subscriber, queue *Queue, worker *Worker, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	return sub.Subscribe(func(payload []byte) {
		var envelope struct {
			Kind string `json:"kind"`
		}
		if err := json.Unmarshal(payload, &envelope); err != nil {
			logger.Error("malformed archive command payload, dropping", "error", err)
			return
		}

		switch envelope.Kind {
		case wire.ArchiveCommandKind:
			var cmd wire.ArchiveCommand
			if err := json.Unmarshal(payload, &cmd); err != nil {
				logger.Error("malformed archive segments command, dropping", "error", err)
				return
			}
			if !worker.Accepts(cmd.Camera) {
				logger.Debug("camera not in allow-list, dropping", "camera", cmd.Camera)
				return
			}
			if err := queue.EnqueueSegments(cmd); err != nil {
				logger.Error("enqueueing segments command", "error", err)
			}

		case wire.EventMetadataKind:
			var event wire.EventDescriptor
			if err := json.Unmarshal(payload, &event); err != nil {
				logger.Error("malformed event metadata command, dropping", "error", err)
				return
			}
			if err := queue.EnqueueMetadata(event); err != nil {
				logger.Error("enqueueing metadata command", "error", err)
			}

		default:
			logger.Warn("unknown archive command kind, dropping", "kind", envelope.Kind)
		}
	})
}
