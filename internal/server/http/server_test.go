package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	cfgpkg "github.com/rzbill/evpipe/internal/config"
	"github.com/rzbill/evpipe/internal/runtime"
	"github.com/rzbill/evpipe/internal/service"
	pebblestore "github.com/rzbill/evpipe/internal/storage/pebble"
	logpkg "github.com/rzbill/evpipe/pkg/log"
	"github.com/rzbill/evpipe/pkg/logstore"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	rt, err := runtime.Open(runtime.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways, Config: cfgpkg.Default()})
	if err != nil {
		t.Fatalf("runtime open: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	logger, _ := logpkg.ApplyConfig(&logpkg.Config{Level: "error", Format: "text"})
	return NewWithLogger(service.New(rt), logger)
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/v1/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("status = %q, want ok", body["status"])
	}
}

func TestPublishAndReadEntries(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/v1/logs/orders/events", `{"event_type":"order.created","payload":{"n":1}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("publish status = %d, body %s", w.Code, w.Body.String())
	}
	var pub struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &pub); err != nil {
		t.Fatalf("unmarshal publish: %v", err)
	}
	if pub.ID == "" {
		t.Fatal("publish returned empty id")
	}

	w = doJSON(t, s, http.MethodGet, "/v1/logs/orders/entries", "")
	if w.Code != http.StatusOK {
		t.Fatalf("entries status = %d", w.Code)
	}
	var rd struct {
		Entries []logstore.Entry `json:"entries"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &rd); err != nil {
		t.Fatalf("unmarshal entries: %v", err)
	}
	if len(rd.Entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(rd.Entries))
	}
	if got := rd.Entries[0].ID.String(); got != pub.ID {
		t.Fatalf("entry id = %s, want %s", got, pub.ID)
	}
	if et, _ := rd.Entries[0].Fields.Get("eventType"); et != "order.created" {
		t.Fatalf("eventType field = %q", et)
	}
}

func TestPublishRequiresEventType(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodPost, "/v1/logs/orders/events", `{"payload":{"n":1}}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestPublishBatchPartialFailure(t *testing.T) {
	s := newTestServer(t)
	body := `{"events":[
		{"log":"orders","event_type":"order.created","payload":{"n":1}},
		{"log":"orders","payload":{"n":2}},
		{"log":"audit","event_type":"audit.login","payload":{"n":3}}
	]}`
	w := doJSON(t, s, http.MethodPost, "/v1/events/batch", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Results []struct {
			ID    string `json:"id"`
			Error string `json:"error"`
		} `json:"results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Results) != 3 {
		t.Fatalf("results = %d, want 3", len(resp.Results))
	}
	if resp.Results[0].ID == "" || resp.Results[0].Error != "" {
		t.Fatalf("result 0 = %+v, want id", resp.Results[0])
	}
	if resp.Results[1].Error == "" {
		t.Fatalf("result 1 = %+v, want error", resp.Results[1])
	}
	if resp.Results[2].ID == "" {
		t.Fatalf("result 2 = %+v, want id", resp.Results[2])
	}
}

func TestEntriesUnknownLog(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/v1/logs/nope/entries", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestEntriesRejectsBadFrom(t *testing.T) {
	s := newTestServer(t)
	doJSON(t, s, http.MethodPost, "/v1/logs/orders/events", `{"event_type":"a","payload":{}}`)
	w := doJSON(t, s, http.MethodGet, "/v1/logs/orders/entries?from=bogus", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestStatsAndGroups(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	doJSON(t, s, http.MethodPost, "/v1/logs/orders/events", `{"event_type":"a","payload":{"n":1}}`)
	doJSON(t, s, http.MethodPost, "/v1/logs/orders/events", `{"event_type":"b","payload":{"n":2}}`)
	if err := s.svc.CreateGroup(ctx, "orders", "workers", logstore.StartBegin); err != nil {
		t.Fatalf("create group: %v", err)
	}
	if _, err := s.svc.GroupClaim(ctx, "orders", "workers", "c1", 1, 0); err != nil {
		t.Fatalf("claim: %v", err)
	}

	w := doJSON(t, s, http.MethodGet, "/v1/logs/orders/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("stats status = %d", w.Code)
	}
	var st logstore.LogStats
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("unmarshal stats: %v", err)
	}
	if st.Length != 2 {
		t.Fatalf("length = %d, want 2", st.Length)
	}
	if len(st.Groups) != 1 || st.Groups[0].Name != "workers" || st.Groups[0].Pending != 1 {
		t.Fatalf("groups = %+v", st.Groups)
	}

	w = doJSON(t, s, http.MethodGet, "/v1/logs/orders/groups", "")
	if w.Code != http.StatusOK {
		t.Fatalf("groups status = %d", w.Code)
	}
	var gr struct {
		Groups []logstore.GroupInfo `json:"groups"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &gr); err != nil {
		t.Fatalf("unmarshal groups: %v", err)
	}
	if len(gr.Groups) != 1 || gr.Groups[0].Name != "workers" {
		t.Fatalf("groups = %+v", gr.Groups)
	}
}

func TestPendingEndpoint(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	doJSON(t, s, http.MethodPost, "/v1/logs/orders/events", `{"event_type":"a","payload":{"n":1}}`)
	if err := s.svc.CreateGroup(ctx, "orders", "workers", logstore.StartBegin); err != nil {
		t.Fatalf("create group: %v", err)
	}
	if _, err := s.svc.GroupClaim(ctx, "orders", "workers", "c1", 10, 0); err != nil {
		t.Fatalf("claim: %v", err)
	}

	w := doJSON(t, s, http.MethodGet, "/v1/logs/orders/groups/workers/pending", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Pending []logstore.PendingInfo `json:"pending"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Pending) != 1 || resp.Pending[0].Consumer != "c1" {
		t.Fatalf("pending = %+v", resp.Pending)
	}

	if w := doJSON(t, s, http.MethodGet, "/v1/logs/orders/groups/ghosts/pending", ""); w.Code != http.StatusNotFound {
		t.Fatalf("unknown group status = %d, want 404", w.Code)
	}
}

func TestReclaimEndpoint(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	doJSON(t, s, http.MethodPost, "/v1/logs/orders/events", `{"event_type":"a","payload":{"n":1}}`)
	if err := s.svc.CreateGroup(ctx, "orders", "workers", logstore.StartBegin); err != nil {
		t.Fatalf("create group: %v", err)
	}
	if _, err := s.svc.GroupClaim(ctx, "orders", "workers", "c1", 10, 0); err != nil {
		t.Fatalf("claim: %v", err)
	}

	w := doJSON(t, s, http.MethodPost, "/v1/logs/orders/groups/workers/reclaim", `{"consumer":"c2","min_idle_ms":0,"count":10}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Entries []logstore.Entry `json:"entries"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(resp.Entries))
	}

	if w := doJSON(t, s, http.MethodPost, "/v1/logs/orders/groups/workers/reclaim", `{"min_idle_ms":0}`); w.Code != http.StatusBadRequest {
		t.Fatalf("missing consumer status = %d, want 400", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "evpipe_") {
		t.Fatal("metrics body missing evpipe_ families")
	}
}

func TestTailStreamsMatchingEvents(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.srv.Handler)
	defer ts.Close()

	doJSON(t, s, http.MethodPost, "/v1/logs/orders/events", `{"event_type":"order.created","payload":{"n":1}}`)
	doJSON(t, s, http.MethodPost, "/v1/logs/orders/events", `{"event_type":"audit.noise","payload":{"n":2}}`)
	doJSON(t, s, http.MethodPost, "/v1/logs/orders/events", `{"event_type":"order.created","payload":{"n":3}}`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	u := ts.URL + "/v1/logs/orders/tail?from=0-0&filter=" + url.QueryEscape(`event_type == "order.created"`)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type = %q", ct)
	}

	var got []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev struct {
			EventType string          `json:"event_type"`
			Payload   json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("unmarshal frame %q: %v", line, err)
		}
		got = append(got, ev.EventType)
		if len(got) == 2 {
			break
		}
	}
	if len(got) != 2 {
		t.Fatalf("frames = %v, want 2 (scan err %v)", got, sc.Err())
	}
	for _, et := range got {
		if et != "order.created" {
			t.Fatalf("filter leaked event type %q", et)
		}
	}
}

func TestTailRejectsBadFilter(t *testing.T) {
	s := newTestServer(t)
	doJSON(t, s, http.MethodPost, "/v1/logs/orders/events", `{"event_type":"a","payload":{}}`)
	w := doJSON(t, s, http.MethodGet, "/v1/logs/orders/tail?filter="+url.QueryEscape("event_type ==="), "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestTailUnknownLog(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/v1/logs/nope/tail", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}
