package httpserver

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rzbill/evpipe/internal/celfilter"
	"github.com/rzbill/evpipe/pkg/events"
	"github.com/rzbill/evpipe/pkg/id"
	logpkg "github.com/rzbill/evpipe/pkg/log"
	"github.com/rzbill/evpipe/pkg/logstore"
)

const (
	tailBatch = 64
	tailBlock = 10 * time.Second
)

// tailEvent is the SSE frame body: the decoded envelope view of an entry.
// Entries without an envelope carry only the ID.
type tailEvent struct {
	ID            id.ID           `json:"id"`
	EventType     string          `json:"event_type,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	TimestampMs   int64           `json:"ts_ms,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

// handleTail streams entries as SSE data events until the client hangs up.
// `from` is an inclusive start cursor; without it the tail begins at the
// next entry appended. `filter` is an optional CEL expression; non-matching
// entries advance the cursor silently.
func (s *Server) handleTail(c *gin.Context) {
	logName := c.Param("log")
	filter, err := celfilter.New(c.Query("filter"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cursor, err := s.tailStart(c, logName)
	if err != nil {
		c.JSON(httpStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		if ctx.Err() != nil {
			return
		}
		entries, err := s.svc.BlockingRead(ctx, logName, cursor, tailBatch, tailBlock)
		if err != nil {
			s.logger.Warn("http.tail read failed", logpkg.Str("log", logName), logpkg.Err(err))
			return
		}
		for _, e := range entries {
			cursor = e.ID.Succ()
			if !filter.Eval(e) {
				continue
			}
			if err := writeSSE(c.Writer, tailView(e)); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}

// tailStart resolves the initial cursor: an explicit from, or just past the
// log's last entry so only new appends stream.
func (s *Server) tailStart(c *gin.Context, logName string) (id.ID, error) {
	if v := c.Query("from"); v != "" {
		return id.Parse(v)
	}
	st, err := s.svc.Stats(c.Request.Context(), logName)
	if err != nil {
		return id.ID{}, err
	}
	return st.LastID.Succ(), nil
}

func tailView(e logstore.Entry) tailEvent {
	te := tailEvent{ID: e.ID}
	ev, err := events.FromFields(e.Fields)
	if err != nil {
		return te
	}
	te.EventType = ev.EventType
	te.TimestampMs = ev.TimestampMs
	te.CorrelationID = ev.CorrelationID
	switch {
	case json.Valid(ev.Payload):
		te.Payload = ev.Payload
	case len(ev.Payload) > 0:
		// Entries appended over the wire may carry non-JSON payloads;
		// re-encode them as a JSON string so the frame stays parseable.
		b, _ := json.Marshal(string(ev.Payload))
		te.Payload = b
	}
	return te
}

func writeSSE(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return err
	}
	_, err = w.Write([]byte("\n\n"))
	return err
}
