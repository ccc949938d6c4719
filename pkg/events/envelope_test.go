package events

import (
	"encoding/json"
	"testing"

	"github.com/rzbill/evpipe/pkg/logstore"
)

func TestNewStampsEnvelope(t *testing.T) {
	e := New("order.created", json.RawMessage(`{"n":1}`))
	if e.EventType != "order.created" {
		t.Fatalf("type %q", e.EventType)
	}
	if e.TimestampMs <= 0 {
		t.Fatalf("timestamp not stamped")
	}
	if e.CorrelationID == "" {
		t.Fatalf("correlation id not stamped")
	}
	e2 := New("order.created", nil)
	if e2.CorrelationID == e.CorrelationID {
		t.Fatalf("correlation ids should be unique")
	}
}

func TestMarshalFromFieldsRoundTrip(t *testing.T) {
	e := New("order.created", json.RawMessage(`{"n":1,"s":"x"}`))
	fields := e.Marshal()
	if len(fields) != 4 {
		t.Fatalf("expected 4 fields, got %d", len(fields))
	}
	if fields[0].K != FieldType {
		t.Fatalf("event type must lead: %q", fields[0].K)
	}

	back, err := FromFields(fields)
	if err != nil {
		t.Fatalf("from fields: %v", err)
	}
	if back.EventType != e.EventType {
		t.Fatalf("type %q", back.EventType)
	}
	if string(back.Payload) != string(e.Payload) {
		t.Fatalf("payload %q", back.Payload)
	}
	if back.TimestampMs != e.TimestampMs {
		t.Fatalf("timestamp %d != %d", back.TimestampMs, e.TimestampMs)
	}
	if back.CorrelationID != e.CorrelationID {
		t.Fatalf("correlation %q", back.CorrelationID)
	}
}

func TestFromFieldsRequiresType(t *testing.T) {
	if _, err := FromFields(logstore.Fields{{K: FieldPayload, V: "{}"}}); err == nil {
		t.Fatalf("expected error without event type")
	}
	if _, err := FromFields(logstore.Fields{{K: FieldType, V: ""}}); err == nil {
		t.Fatalf("expected error for empty event type")
	}
}

func TestFromFieldsTolerantOfExtras(t *testing.T) {
	fields := logstore.Fields{
		{K: FieldType, V: "ping"},
		{K: "custom", V: "x"},
	}
	e, err := FromFields(fields)
	if err != nil {
		t.Fatalf("from fields: %v", err)
	}
	if e.EventType != "ping" || len(e.Payload) != 0 {
		t.Fatalf("unexpected envelope: %+v", e)
	}
}
