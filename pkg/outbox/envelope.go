package outbox

import (
	"encoding/json"
	"time"
)

// Source identifies the sync job that produced the event.
type Source struct {
	Service string `json:"service"`
	Job     string `json:"job,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Source     *Source         `json:"source,omitempty"`
	Data       json.RawMessage `json:"data"`
}
