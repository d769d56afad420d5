package notify

import (
	"encoding/json"
	"time"
)

const (
	EventCommandSucceeded  = "CommandSucceeded"
	EventCommandFailed     = "CommandFailed"
	EventRedirectRequested = "RedirectRequested"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"` // target id, usually the order id
	Payload       json.RawMessage `json:"payload"`
}

func eventType(r Result) string {
	switch {
	case r.RedirectURL != "":
		return EventRedirectRequested
	case r.OK:
		return EventCommandSucceeded
	}
	return EventCommandFailed
}

// PartitionKey keeps every event of one actor in order.
func PartitionKey(actor string) []byte { return []byte(actor) }
