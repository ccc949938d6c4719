package wire

import (
	"github.com/rzbill/evpipe/pkg/id"
	"github.com/rzbill/evpipe/pkg/logstore"
)

// Request and response bodies are JSON. Entry IDs travel in their
// "<ms>-<seq>" text form via id.ID's text marshaling.

// AppendRequest appends one entry. A non-zero IDHint asks for that exact ID;
// it must be strictly greater than every existing ID of the log.
type AppendRequest struct {
	Log    string          `json:"log"`
	IDHint id.ID           `json:"id_hint"`
	Fields logstore.Fields `json:"fields"`
}

type AppendResponse struct {
	ID id.ID `json:"id"`
}

// ReadRequest serves both plain and blocking reads: BlockMs > 0 asks the
// server to wait that long for new entries before returning empty.
type ReadRequest struct {
	Log     string `json:"log"`
	From    id.ID  `json:"from"`
	Count   int    `json:"count"`
	BlockMs int64  `json:"block_ms,omitempty"`
}

type EntriesResponse struct {
	Entries []logstore.Entry `json:"entries"`
}

type CreateGroupRequest struct {
	Log   string `json:"log"`
	Group string `json:"group"`
	Start string `json:"start"`
}

type ClaimRequest struct {
	Log      string `json:"log"`
	Group    string `json:"group"`
	Consumer string `json:"consumer"`
	Count    int    `json:"count"`
	BlockMs  int64  `json:"block_ms,omitempty"`
}

type AckRequest struct {
	Log   string `json:"log"`
	Group string `json:"group"`
	ID    id.ID  `json:"id"`
}

type AckResponse struct {
	Acked int `json:"acked"`
}

type ReclaimRequest struct {
	Log       string `json:"log"`
	Group     string `json:"group"`
	Consumer  string `json:"consumer"`
	MinIdleMs int64  `json:"min_idle_ms"`
	Count     int    `json:"count"`
}

type PendingRequest struct {
	Log   string `json:"log"`
	Group string `json:"group"`
	Count int    `json:"count"`
}

type PendingResponse struct {
	Pending []logstore.PendingInfo `json:"pending"`
}

type StatsRequest struct {
	Log string `json:"log"`
}

type StatsResponse struct {
	Stats logstore.LogStats `json:"stats"`
}

type LogsResponse struct {
	Logs []string `json:"logs"`
}

type TrimRequest struct {
	Log    string `json:"log"`
	Before id.ID  `json:"before"`
}

type TrimResponse struct {
	Deleted int `json:"deleted"`
}

type FlushRequest struct {
	Log string `json:"log"`
}
