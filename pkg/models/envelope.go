package models

import (
	"encoding/json"
	"time"
)

const (
	KindSubmission = "submission"
	KindDecision   = "decision"
)

// Envelope is the wire format of every message on the broker. Payload holds
// a Submission or a DecisionEvent depending on Kind.
type Envelope struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Metadata  Metadata        `json:"metadata"`
}

type Metadata struct {
	TraceID    string      `json:"trace_id,omitempty"`
	DeadLetter *DeadLetter `json:"dead_letter,omitempty"`
}

// DeadLetter is attached to an envelope before it is parked on the DLQ topic.
type DeadLetter struct {
	Reason      string    `json:"reason"`
	SourceTopic string    `json:"source_topic"`
	FailedAt    time.Time `json:"failed_at"`
}

// Decode unmarshals the payload into v.
func (e *Envelope) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}
