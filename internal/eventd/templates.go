package eventd

import (
	"time"

	"github.com/satori-nvr/satori/internal/satoriconfig"
	"github.com/satori-nvr/satori/internal/wire"
)

// resolved is the concrete (cameras, reason, pre, post, timestamp)
// tuple a Trigger yields after template merging.
type resolved struct {
	cameras   []string
	reason    string
	pre       time.Duration
	post      time.Duration
	timestamp time.Time
}

// resolve merges a Trigger against the template table. Fields present
// on the trigger override the base template's fields; the base is the
// named template if trigger.ID matches one, else fallback.
func resolve(t wire.Trigger, templates satoriconfig.TriggersConfig) resolved {
	base := templates.Fallback
	if t.ID != "" {
		if named, ok := templates.Templates[t.ID]; ok {
			base = named
		}
	}

	r := resolved{
		cameras: base.Cameras,
		reason:  base.Reason,
		pre:     time.Duration(base.Pre) * time.Second,
		post:    time.Duration(base.Post) * time.Second,
	}

	if len(t.Cameras) > 0 {
		r.cameras = t.Cameras
	}
	if t.Reason != "" {
		r.reason = t.Reason
	}
	if t.Pre > 0 {
		r.pre = time.Duration(t.Pre) * time.Second
	}
	if t.Post > 0 {
		r.post = time.Duration(t.Post) * time.Second
	}

	r.timestamp = t.Timestamp
	if r.timestamp.IsZero() {
		r.timestamp = time.Now().UTC()
	}

	return r
}
