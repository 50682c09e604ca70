package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EnvelopeBuilder struct {
	envelope *Envelope
	payload  interface{}
}

func NewEnvelopeBuilder(kind string) *EnvelopeBuilder {
	return &EnvelopeBuilder{
		envelope: &Envelope{Kind: kind},
	}
}

func (b *EnvelopeBuilder) WithID(id string) *EnvelopeBuilder {
	b.envelope.ID = id
	return b
}

func (b *EnvelopeBuilder) WithSource(source string) *EnvelopeBuilder {
	b.envelope.Source = source
	return b
}

func (b *EnvelopeBuilder) WithTimestamp(timestamp time.Time) *EnvelopeBuilder {
	b.envelope.Timestamp = timestamp
	return b
}

func (b *EnvelopeBuilder) WithPayload(payload interface{}) *EnvelopeBuilder {
	b.payload = payload
	return b
}

func (b *EnvelopeBuilder) WithTraceID(traceID string) *EnvelopeBuilder {
	b.envelope.Metadata.TraceID = traceID
	return b
}

// Build marshals the payload and fills a random ID and the current time when
// they were not set.
func (b *EnvelopeBuilder) Build() (*Envelope, error) {
	if b.envelope.ID == "" {
		b.envelope.ID = uuid.NewString()
	}
	if b.envelope.Timestamp.IsZero() {
		b.envelope.Timestamp = time.Now()
	}
	if b.payload != nil {
		raw, err := json.Marshal(b.payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", b.envelope.Kind, err)
		}
		b.envelope.Payload = raw
	}
	return b.envelope, nil
}
