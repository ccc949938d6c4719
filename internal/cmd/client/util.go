package client

import (
	"encoding/json"
	"os"

	clientpkg "github.com/rzbill/evpipe/pkg/client"
	"github.com/rzbill/evpipe/pkg/events"
	"github.com/rzbill/evpipe/pkg/logstore"
)

// addrFromEnv returns the wire server address from EVPIPE_ADDR or a default.
func addrFromEnv() string {
	if addr := os.Getenv("EVPIPE_ADDR"); addr != "" {
		return addr
	}
	return "127.0.0.1:7070"
}

// withClient dials the wire endpoint and ensures the connection is closed.
func withClient(fn func(*clientpkg.Client) error) error {
	cli, err := clientpkg.Dial(clientpkg.Options{Addr: addrFromEnv()})
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()
	return fn(cli)
}

// entryView returns the printable form of an entry: the decoded envelope
// with the payload as JSON when it parses, as text otherwise. Entries that
// are not envelopes fall back to their raw fields.
func entryView(e logstore.Entry) map[string]any {
	out := map[string]any{"id": e.ID.String()}
	ev, err := events.FromFields(e.Fields)
	if err != nil {
		fm := map[string]string{}
		for _, f := range e.Fields {
			if _, ok := fm[f.K]; !ok {
				fm[f.K] = f.V
			}
		}
		out["fields"] = fm
		return out
	}
	out["event_type"] = ev.EventType
	if ev.TimestampMs != 0 {
		out["ts_ms"] = ev.TimestampMs
	}
	if ev.CorrelationID != "" {
		out["correlation_id"] = ev.CorrelationID
	}
	if len(ev.Payload) > 0 {
		var v any
		if json.Unmarshal(ev.Payload, &v) == nil {
			out["payload"] = v
		} else {
			out["payload_text"] = string(ev.Payload)
		}
	}
	return out
}

// entryViews maps entryView over a batch.
func entryViews(entries []logstore.Entry) []map[string]any {
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryView(e))
	}
	return out
}
