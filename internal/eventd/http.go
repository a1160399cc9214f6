package eventd

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/satori-nvr/satori/internal/wire"
)

// Handlers exposes the Event Processor's trigger ingestion endpoint.
type Handlers struct {
	processor *Processor
}

// NewHandlers returns Handlers bound to processor.
func NewHandlers(processor *Processor) *Handlers {
	return &Handlers{processor: processor}
}

// Register wires the trigger endpoint onto api.
func (h *Handlers) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "postTrigger",
		Method:      "POST",
		Path:        "/trigger",
		Summary:     "Submit a trigger",
		Description: "Resolves the trigger against the template table and merges it into the event state machine. Acknowledges once the event is durably merged, not once it is archived.",
		Tags:        []string{"Triggers"},
	}, h.postTrigger)
}

// TriggerInput is the input for POST /trigger.
type TriggerInput struct {
	Body wire.Trigger
}

// TriggerOutput is the output for POST /trigger.
type TriggerOutput struct {
	Body struct {
		Accepted bool `json:"accepted"`
	}
}

func (h *Handlers) postTrigger(_ context.Context, input *TriggerInput) (*TriggerOutput, error) {
	if err := h.processor.HandleTrigger(input.Body); err != nil {
		return nil, huma.Error500InternalServerError("failed to process trigger", err)
	}

	out := &TriggerOutput{}
	out.Body.Accepted = true
	return out, nil
}
