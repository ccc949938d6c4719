package groups

import (
	"encoding/binary"
	"encoding/json"
)

// pelRecord is the stored value of one pending entry.
type pelRecord struct {
	Consumer   string `json:"consumer"`
	Deliveries int    `json:"deliveries"`
	LastMs     int64  `json:"last_ms"`
}

func encodePEL(r pelRecord) []byte {
	b, _ := json.Marshal(r)
	return b
}

func decodePEL(b []byte) (pelRecord, bool) {
	var r pelRecord
	if err := json.Unmarshal(b, &r); err != nil {
		return pelRecord{}, false
	}
	return r, true
}

// consumerRecord tracks when a consumer was last active in the group.
type consumerRecord struct {
	FirstSeenMs int64 `json:"first_seen_ms"`
	LastSeenMs  int64 `json:"last_seen_ms"`
}

func encodeConsumer(r consumerRecord) []byte {
	b, _ := json.Marshal(r)
	return b
}

func decodeConsumer(b []byte) (consumerRecord, bool) {
	var r consumerRecord
	if err := json.Unmarshal(b, &r); err != nil {
		return consumerRecord{}, false
	}
	return r, true
}

// Stats value: [8B delivered][8B acked], big-endian.
type groupStats struct {
	Delivered uint64
	Acked     uint64
}

func encodeStats(s groupStats) []byte {
	out := make([]byte, 16)
	binary.BigEndian.PutUint64(out[:8], s.Delivered)
	binary.BigEndian.PutUint64(out[8:], s.Acked)
	return out
}

func decodeStats(b []byte) (groupStats, bool) {
	if len(b) < 16 {
		return groupStats{}, false
	}
	return groupStats{
		Delivered: binary.BigEndian.Uint64(b[:8]),
		Acked:     binary.BigEndian.Uint64(b[8:16]),
	}, true
}
