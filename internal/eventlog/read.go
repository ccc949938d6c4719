package eventlog

import (
	"github.com/cockroachdb/pebble"

	"github.com/rzbill/evpipe/pkg/id"
	"github.com/rzbill/evpipe/pkg/logstore"
)

// ReadOptions controls a range read.
type ReadOptions struct {
	// Start is the first ID to include. Zero begins at the first entry.
	Start id.ID
	// Limit caps the number of items; 0 means no cap.
	Limit int
	// Reverse scans descending from Start (or from the last entry when
	// Start is zero).
	Reverse bool
}

// Item is one decoded entry.
type Item struct {
	ID     id.ID
	Fields logstore.Fields
}

// Read returns up to Limit items starting at Start (inclusive), plus the ID
// to pass as Start for the next page (zero when the scan is exhausted).
// Records that fail checksum verification are skipped; iterator failures
// are returned so callers never mistake an I/O error for an empty log.
func (l *Log) Read(opts ReadOptions) ([]Item, id.ID, error) {
	iter, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: KeyEntryPrefix(l.name),
		UpperBound: KeyEntryUpperBound(l.name),
	})
	if err != nil {
		return nil, id.ID{}, err
	}
	defer iter.Close()

	items := make([]Item, 0, defaultCap(opts.Limit))
	var next id.ID

	var ok bool
	if opts.Reverse {
		if opts.Start.IsZero() {
			ok = iter.Last()
		} else {
			ok = iter.SeekLT(KeyEntryUpperBoundAt(l.name, opts.Start))
		}
		for ok && (opts.Limit == 0 || len(items) < opts.Limit) {
			if it, okIt := decodeIterItem(iter); okIt {
				items = append(items, it)
			}
			ok = iter.Prev()
		}
	} else {
		if opts.Start.IsZero() {
			ok = iter.First()
		} else {
			ok = iter.SeekGE(KeyLogEntry(l.name, opts.Start))
		}
		for ok && (opts.Limit == 0 || len(items) < opts.Limit) {
			if it, okIt := decodeIterItem(iter); okIt {
				items = append(items, it)
			}
			ok = iter.Next()
		}
	}
	if ok {
		if eid, okID := EntryIDFromKey(iter.Key()); okID {
			next = eid
		}
	}
	if err := iter.Error(); err != nil {
		return nil, id.ID{}, err
	}
	return items, next, nil
}

// FirstID returns the lowest live entry ID; the bool is false when the log
// is empty.
func (l *Log) FirstID() (id.ID, bool, error) {
	items, _, err := l.Read(ReadOptions{Limit: 1})
	if err != nil || len(items) == 0 {
		return id.ID{}, false, err
	}
	return items[0].ID, true, nil
}

// KeyEntryUpperBoundAt returns the exclusive upper bound for entries with
// ID <= eid, i.e. the key just past eid.
func KeyEntryUpperBoundAt(name string, eid id.ID) []byte {
	k := KeyLogEntry(name, eid)
	return append(k, 0x00)
}

func decodeIterItem(iter *pebble.Iterator) (Item, bool) {
	eid, ok := EntryIDFromKey(iter.Key())
	if !ok {
		return Item{}, false
	}
	fields, ok := DecodeRecord(iter.Value())
	if !ok {
		return Item{}, false
	}
	return Item{ID: eid, Fields: fields}, true
}

func defaultCap(limit int) int {
	if limit > 0 {
		return limit
	}
	return 1
}
