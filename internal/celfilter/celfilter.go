// Package celfilter compiles CEL expressions into entry predicates. The
// HTTP tail endpoint and the CLI consume command share it so both surfaces
// accept the same expression language.
package celfilter

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/rzbill/evpipe/pkg/events"
	"github.com/rzbill/evpipe/pkg/logstore"
)

// Filter wraps a compiled CEL program. When disabled, Eval always returns
// true.
type Filter struct {
	prog    cel.Program
	enabled bool
}

// New compiles expr against the entry variable set. An empty expression
// yields a disabled filter that matches everything.
func New(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Filter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("event_type", cel.StringType),
		cel.Variable("ts_ms", cel.IntType),
		cel.Variable("correlation_id", cel.StringType),
		cel.Variable("size", cel.IntType),
		cel.Variable("text", cel.StringType),
		// Parsed JSON payload (map/list/values) for field filtering
		cel.Variable("json", cel.DynType),
		// Raw entry fields, for entries that are not envelopes
		cel.Variable("fields", cel.MapType(cel.StringType, cel.StringType)),
		// Current time in ms for windowed filters
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return Filter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return Filter{}, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return Filter{}, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return Filter{}, err
	}
	return Filter{prog: prog, enabled: true}, nil
}

// Eval evaluates the compiled expression against an entry. When disabled it
// returns true; evaluation errors count as no match. Envelope decoding is
// best-effort so foreign entries still filter on id and fields.
func (f Filter) Eval(e logstore.Entry) bool {
	if !f.enabled {
		return true
	}
	ev, _ := events.FromFields(e.Fields)
	var jsonObj any
	_ = json.Unmarshal(ev.Payload, &jsonObj)
	fm := make(map[string]string, len(e.Fields))
	for _, fd := range e.Fields {
		if _, ok := fm[fd.K]; !ok {
			fm[fd.K] = fd.V
		}
	}
	out, _, err := f.prog.Eval(map[string]any{
		"id":             e.ID.String(),
		"event_type":     ev.EventType,
		"ts_ms":          ev.TimestampMs,
		"correlation_id": ev.CorrelationID,
		"size":           int64(len(ev.Payload)),
		"text":           string(ev.Payload),
		"json":           jsonObj,
		"fields":         fm,
		"now_ms":         time.Now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
