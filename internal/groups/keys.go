package groups

import (
	"strings"

	"github.com/rzbill/evpipe/pkg/id"
)

// Key prefixes for consumer group state.
//
// Layout (byte-wise, lexicographically sortable):
// - grp/{log}/{group}/c                 cursor: last delivered ID (16B)
// - grp/{log}/{group}/s                 stats: delivered(8BE) | acked(8BE)
// - grp/{log}/{group}/p/{id_be16}       pending entry record (JSON)
// - grp/{log}/{group}/cons/{consumer}   consumer record (JSON)
//
// PEL keys embed the big-endian entry ID, so a prefix scan yields pending
// entries in delivery order.
const (
	prefixGroup    = "grp/"
	suffixCursor   = "/c"
	suffixStats    = "/s"
	segPending     = "/p/"
	segConsumer    = "/cons/"
	groupSeparator = "/"
)

func groupPrefix(log, group string) string {
	return prefixGroup + log + groupSeparator + group
}

// CursorKey returns the cursor key for a group.
func CursorKey(log, group string) []byte {
	return []byte(groupPrefix(log, group) + suffixCursor)
}

// StatsKey returns the stats key for a group.
func StatsKey(log, group string) []byte {
	return []byte(groupPrefix(log, group) + suffixStats)
}

// PendingKey returns the PEL key for one entry.
func PendingKey(log, group string, eid id.ID) []byte {
	prefix := groupPrefix(log, group) + segPending
	key := make([]byte, len(prefix)+16)
	copy(key, prefix)
	copy(key[len(prefix):], eid[:])
	return key
}

// PendingPrefix returns the scan prefix of a group's PEL.
func PendingPrefix(log, group string) []byte {
	return []byte(groupPrefix(log, group) + segPending)
}

// ConsumerKey returns the consumer record key.
func ConsumerKey(log, group, consumer string) []byte {
	return []byte(groupPrefix(log, group) + segConsumer + consumer)
}

// ConsumerPrefix returns the scan prefix of a group's consumer records.
func ConsumerPrefix(log, group string) []byte {
	return []byte(groupPrefix(log, group) + segConsumer)
}

// LogGroupsPrefix returns the scan prefix covering all groups of a log.
func LogGroupsPrefix(log string) []byte {
	return []byte(prefixGroup + log + groupSeparator)
}

// keyRange returns start and exclusive end keys covering every key with the
// given prefix. The end key is the prefix's byte-wise successor, so keys
// whose byte after the prefix is 0xFF are still in range. An all-0xFF prefix
// yields a nil end, which pebble treats as unbounded.
func keyRange(prefix []byte) ([]byte, []byte) {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xFF {
			end[i]++
			return prefix, end[:i+1]
		}
	}
	return prefix, nil
}

// groupFromCursorKey extracts the group name from a cursor key under the
// given log, or "" when the key is not a cursor key.
func groupFromCursorKey(key []byte, log string) string {
	s := string(key)
	prefix := prefixGroup + log + groupSeparator
	if !strings.HasPrefix(s, prefix) || !strings.HasSuffix(s, suffixCursor) {
		return ""
	}
	name := s[len(prefix) : len(s)-len(suffixCursor)]
	if strings.Contains(name, groupSeparator) {
		return ""
	}
	return name
}

// entryIDFromPendingKey extracts the 16-byte ID suffix of a PEL key.
func entryIDFromPendingKey(key []byte) (id.ID, bool) {
	if len(key) < 16 {
		return id.ID{}, false
	}
	return id.FromBytes(key[len(key)-16:])
}

// consumerFromKey extracts the consumer name from a consumer record key.
func consumerFromKey(key []byte, log, group string) string {
	prefix := groupPrefix(log, group) + segConsumer
	s := string(key)
	if !strings.HasPrefix(s, prefix) {
		return ""
	}
	return s[len(prefix):]
}
