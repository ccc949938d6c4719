package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rzbill/evpipe/pkg/id"
	"github.com/rzbill/evpipe/pkg/logstore"
	"github.com/rzbill/evpipe/pkg/producer"
)

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.svc.CheckHealth(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_serving"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type publishRequest struct {
	EventType string          `json:"event_type" binding:"required"`
	Payload   json.RawMessage `json:"payload"`
}

func (s *Server) handlePublish(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	eid, err := s.prod.Append(c.Request.Context(), c.Param("log"), req.EventType, req.Payload)
	if err != nil {
		c.JSON(httpStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": eid})
}

type batchEvent struct {
	Log       string          `json:"log"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

type batchRequest struct {
	Events []batchEvent `json:"events" binding:"required"`
}

// handlePublishBatch appends a batch and reports per-event outcomes in input
// order. Failures never hide successes: the response is always 200 with one
// result per event.
func (s *Server) handlePublishBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	evs := make([]producer.Event, len(req.Events))
	for i, e := range req.Events {
		evs[i] = producer.Event{Log: e.Log, EventType: e.EventType, Payload: e.Payload}
	}
	results := s.prod.AppendBatch(c.Request.Context(), evs)
	out := make([]gin.H, len(results))
	for i, r := range results {
		if r.Err != nil {
			out[i] = gin.H{"error": r.Err.Error()}
			continue
		}
		out[i] = gin.H{"id": r.ID}
	}
	c.JSON(http.StatusOK, gin.H{"results": out})
}

func (s *Server) handleEntries(c *gin.Context) {
	from := id.Zero
	if v := c.Query("from"); v != "" {
		parsed, err := id.Parse(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		from = parsed
	}
	count := queryInt(c, "count", 100)
	entries, err := s.svc.Read(c.Request.Context(), c.Param("log"), from, count)
	if err != nil {
		c.JSON(httpStatus(err), gin.H{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []logstore.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *Server) handleStats(c *gin.Context) {
	st, err := s.svc.Stats(c.Request.Context(), c.Param("log"))
	if err != nil {
		c.JSON(httpStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) handleGroups(c *gin.Context) {
	st, err := s.svc.Stats(c.Request.Context(), c.Param("log"))
	if err != nil {
		c.JSON(httpStatus(err), gin.H{"error": err.Error()})
		return
	}
	groups := st.Groups
	if groups == nil {
		groups = []logstore.GroupInfo{}
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

func (s *Server) handlePending(c *gin.Context) {
	count := queryInt(c, "count", 100)
	infos, err := s.svc.Pending(c.Request.Context(), c.Param("log"), c.Param("group"), count)
	if err != nil {
		c.JSON(httpStatus(err), gin.H{"error": err.Error()})
		return
	}
	if infos == nil {
		infos = []logstore.PendingInfo{}
	}
	c.JSON(http.StatusOK, gin.H{"pending": infos})
}

type reclaimRequest struct {
	Consumer  string `json:"consumer" binding:"required"`
	MinIdleMs int64  `json:"min_idle_ms"`
	Count     int    `json:"count"`
}

func (s *Server) handleReclaim(c *gin.Context) {
	var req reclaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	entries, err := s.svc.Reclaim(
		c.Request.Context(),
		c.Param("log"), c.Param("group"), req.Consumer,
		time.Duration(req.MinIdleMs)*time.Millisecond, req.Count,
	)
	if err != nil {
		c.JSON(httpStatus(err), gin.H{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []logstore.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
