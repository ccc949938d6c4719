package runtime

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/rzbill/evpipe/internal/storage/pebble"
)

// Meta holds registry metadata for one log.
type Meta struct {
	Name        string `json:"name"`
	CreatedAtMs int64  `json:"createdAtMs"`
}

var logMetaPrefix = []byte("logmeta/")

// logMetaKey builds the registry key for a log name.
func logMetaKey(name string) []byte {
	k := make([]byte, 0, len(logMetaPrefix)+len(name))
	k = append(k, logMetaPrefix...)
	k = append(k, name...)
	return k
}

// ensureLogMeta creates a registry record if absent, returning the effective
// meta. Idempotent: returns existing if already present.
func ensureLogMeta(db *pebblestore.DB, name string) (Meta, error) {
	key := logMetaKey(name)
	if b, err := db.Get(key); err == nil && len(b) > 0 {
		var m Meta
		if err := json.Unmarshal(b, &m); err == nil {
			return m, nil
		}
		// fallthrough to rewrite if corrupted
	}
	m := Meta{Name: name, CreatedAtMs: time.Now().UnixMilli()}
	bytes, err := json.Marshal(m)
	if err != nil {
		return Meta{}, err
	}
	if err := db.Set(key, bytes); err != nil {
		return Meta{}, err
	}
	return m, nil
}

func logMetaExists(db *pebblestore.DB, name string) bool {
	b, err := db.Get(logMetaKey(name))
	return err == nil && len(b) > 0
}

// listLogMeta scans the registry and returns every log name. Iteration is
// byte-ordered, so names come back sorted.
func listLogMeta(db *pebblestore.DB) ([]string, error) {
	upper := make([]byte, len(logMetaPrefix))
	copy(upper, logMetaPrefix)
	upper[len(upper)-1]++
	it, err := db.NewIter(&pebble.IterOptions{LowerBound: logMetaPrefix, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var names []string
	for ok := it.First(); ok; ok = it.Next() {
		names = append(names, string(it.Key()[len(logMetaPrefix):]))
	}
	return names, nil
}
