package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeBuilder(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	env, err := NewEnvelopeBuilder(KindDecision).
		WithSource("moderation-service").
		WithTimestamp(at).
		WithTraceID("trace-1").
		WithPayload(DecisionEvent{SubmissionID: "abc", Verdict: "allowed"}).
		Build()
	require.NoError(t, err)

	assert.NotEmpty(t, env.ID)
	assert.Equal(t, at, env.Timestamp)
	assert.Equal(t, "trace-1", env.Metadata.TraceID)
	require.NoError(t, ValidateEnvelope(env, KindDecision))

	var decoded DecisionEvent
	require.NoError(t, env.Decode(&decoded))
	assert.Equal(t, "abc", decoded.SubmissionID)
	assert.Equal(t, "allowed", decoded.Verdict)
}

func TestValidateEnvelope(t *testing.T) {
	tests := []struct {
		name  string
		env   *Envelope
		field string
	}{
		{name: "nil", env: nil, field: "envelope"},
		{name: "missing id", env: &Envelope{Kind: KindSubmission, Payload: []byte(`{}`)}, field: "id"},
		{name: "wrong kind", env: &Envelope{ID: "1", Kind: KindDecision, Payload: []byte(`{}`)}, field: "kind"},
		{name: "null payload", env: &Envelope{ID: "1", Kind: KindSubmission, Payload: []byte(`null`)}, field: "payload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEnvelope(tt.env, KindSubmission)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}
