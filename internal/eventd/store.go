package eventd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"

	"github.com/satori-nvr/satori/internal/errs"
	"github.com/satori-nvr/satori/internal/wire"
)

// persist writes every event to path atomically (write-tmp-then-rename),
// so a crash mid-write never leaves a partially-written event file.
func persist(path string, events []*Event) error {
	descriptors := make([]wire.EventDescriptor, 0, len(events))
	for _, e := range events {
		descriptors = append(descriptors, e.toDescriptor())
	}

	data, err := json.MarshalIndent(descriptors, "", "  ")
	if err != nil {
		return errs.NewTransientIO("marshal event file", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return errs.NewTransientIO("create event file directory", err)
	}
	if err := renameio.WriteFile(path, data, 0o640); err != nil {
		return errs.NewTransientIO("write event file", err)
	}
	return nil
}

// load reads the event file. A missing file is an empty, fresh event
// set, not an error. A file that fails to parse is StateCorruption;
// the caller is expected to rename it aside and start from empty state.
func load(path string) ([]*Event, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.NewTransientIO("read event file", err)
	}

	var descriptors []wire.EventDescriptor
	if err := json.Unmarshal(data, &descriptors); err != nil {
		return nil, errs.NewStateCorruption(path, err)
	}

	events := make([]*Event, 0, len(descriptors))
	for _, d := range descriptors {
		e, err := fromDescriptor(d)
		if err != nil {
			return nil, errs.NewStateCorruption(path, err)
		}
		events = append(events, e)
	}
	return events, nil
}

// quarantine renames a corrupt state file aside so an operator can
// inspect it later, then logs at error level. Failure to rename is
// itself only logged: starting from empty state must never be blocked
// by a second filesystem error.
func quarantine(path string, logger *slog.Logger) {
	dest := fmt.Sprintf("%s.corrupt-%d", path, time.Now().UnixNano())
	if err := os.Rename(path, dest); err != nil {
		logger.Error("event file corrupt and could not be renamed aside, starting from empty state", "path", path, "error", err)
		return
	}
	logger.Error("event file corrupt, renamed aside and starting from empty state", "path", path, "quarantined", dest)
}
