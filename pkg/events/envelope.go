// Package events defines the event envelope carried inside entry fields:
// an event type for handler dispatch, an opaque JSON payload, a wall-clock
// timestamp, and a correlation ID. The log store never inspects any of it.
package events

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/rzbill/evpipe/pkg/logstore"
)

// Envelope field keys inside logstore.Fields.
const (
	FieldType          = "eventType"
	FieldPayload       = "payload"
	FieldTimestamp     = "timestamp"
	FieldCorrelationID = "correlationId"
)

// Envelope is the typed event shape producers append and workers decode.
type Envelope struct {
	EventType     string
	Payload       json.RawMessage
	TimestampMs   int64
	CorrelationID string
}

// New returns an envelope stamped with the current time and a fresh
// correlation ID.
func New(eventType string, payload json.RawMessage) Envelope {
	return Envelope{
		EventType:     eventType,
		Payload:       payload,
		TimestampMs:   time.Now().UnixMilli(),
		CorrelationID: uuid.NewString(),
	}
}

// Marshal renders the envelope as ordered entry fields.
func (e Envelope) Marshal() logstore.Fields {
	return logstore.Fields{
		{K: FieldType, V: e.EventType},
		{K: FieldPayload, V: string(e.Payload)},
		{K: FieldTimestamp, V: strconv.FormatInt(e.TimestampMs, 10)},
		{K: FieldCorrelationID, V: e.CorrelationID},
	}
}

// FromFields decodes an envelope from entry fields. The event type is
// required; the remaining fields are best-effort so foreign entries still
// dispatch.
func FromFields(fields logstore.Fields) (Envelope, error) {
	var e Envelope
	t, ok := fields.Get(FieldType)
	if !ok || t == "" {
		return e, fmt.Errorf("missing %s field", FieldType)
	}
	e.EventType = t
	if p, ok := fields.Get(FieldPayload); ok {
		e.Payload = json.RawMessage(p)
	}
	if ts, ok := fields.Get(FieldTimestamp); ok {
		if ms, err := strconv.ParseInt(ts, 10, 64); err == nil {
			e.TimestampMs = ms
		}
	}
	e.CorrelationID, _ = fields.Get(FieldCorrelationID)
	return e, nil
}
