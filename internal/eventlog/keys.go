package eventlog

import (
	"github.com/rzbill/evpipe/pkg/id"
)

// Keyspace helpers for Pebble keys.
//
// Layout (byte-wise, lexicographically sortable):
// - log/{name}/m
// - log/{name}/e/{id_be16}
//
// Entry IDs are 16-byte big-endian (ms, seq), so byte order equals append
// order within a log.

var (
	logPrefix  = []byte("log/")
	metaSuffix = []byte("/m")
	entrySeg   = []byte("/e/")
)

// KeyLogMeta builds the log metadata key.
func KeyLogMeta(name string) []byte {
	k := make([]byte, 0, len(logPrefix)+len(name)+len(metaSuffix))
	k = append(k, logPrefix...)
	k = append(k, name...)
	k = append(k, metaSuffix...)
	return k
}

// KeyLogEntry builds the entry key for one ID.
func KeyLogEntry(name string, eid id.ID) []byte {
	k := KeyEntryPrefix(name)
	k = append(k, eid[:]...)
	return k
}

// KeyEntryPrefix returns the common prefix of all entry keys of a log.
func KeyEntryPrefix(name string) []byte {
	k := make([]byte, 0, len(logPrefix)+len(name)+len(entrySeg)+16)
	k = append(k, logPrefix...)
	k = append(k, name...)
	k = append(k, entrySeg...)
	return k
}

// KeyEntryUpperBound returns the exclusive upper bound of the entry range.
func KeyEntryUpperBound(name string) []byte {
	k := KeyLogEntry(name, id.Max)
	return append(k, 0x00)
}

// EntryIDFromKey extracts the 16-byte ID suffix of an entry key.
func EntryIDFromKey(key []byte) (id.ID, bool) {
	if len(key) < 16 {
		return id.ID{}, false
	}
	return id.FromBytes(key[len(key)-16:])
}
