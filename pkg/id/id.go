package id

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ID is a 128-bit, lexicographically sortable entry identifier encoded as
// 16 bytes big-endian: [8 bytes ms_timestamp][8 bytes sequence].
type ID [16]byte

// Zero is the lowest possible ID ("0-0").
var Zero ID

// Max is the highest possible ID; useful as an exclusive upper bound.
var Max = ID{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// Make builds an ID from a millisecond timestamp and a sequence number.
func Make(ms int64, seq uint64) ID {
	var i ID
	binary.BigEndian.PutUint64(i[0:8], uint64(ms))
	binary.BigEndian.PutUint64(i[8:16], seq)
	return i
}

// FromBytes decodes a 16-byte representation. Returns false if b is not
// exactly 16 bytes.
func FromBytes(b []byte) (ID, bool) {
	var i ID
	if len(b) != 16 {
		return i, false
	}
	copy(i[:], b)
	return i, true
}

// Parse decodes the "<ms>-<seq>" textual form produced by String.
func Parse(s string) (ID, error) {
	msPart, seqPart, found := strings.Cut(s, "-")
	if !found {
		return ID{}, fmt.Errorf("invalid id %q: expected <ms>-<seq>", s)
	}
	ms, err := strconv.ParseInt(msPart, 10, 64)
	if err != nil || ms < 0 {
		return ID{}, fmt.Errorf("invalid id %q: bad timestamp", s)
	}
	seq, err := strconv.ParseUint(seqPart, 10, 64)
	if err != nil {
		return ID{}, fmt.Errorf("invalid id %q: bad sequence", s)
	}
	return Make(ms, seq), nil
}

// Bytes returns the raw 16-byte representation.
func (i ID) Bytes() []byte { b := make([]byte, 16); copy(b, i[:]); return b }

// Ms returns the millisecond timestamp half.
func (i ID) Ms() int64 { return int64(binary.BigEndian.Uint64(i[0:8])) }

// Seq returns the per-millisecond sequence half.
func (i ID) Seq() uint64 { return binary.BigEndian.Uint64(i[8:16]) }

// String renders the ID as "<ms>-<seq>", e.g. "1726833600000-4".
func (i ID) String() string {
	return strconv.FormatInt(i.Ms(), 10) + "-" + strconv.FormatUint(i.Seq(), 10)
}

// IsZero reports whether the ID is the zero value.
func (i ID) IsZero() bool { return i == Zero }

// MarshalText implements encoding.TextMarshaler using the String form, so
// IDs travel through JSON as "<ms>-<seq>" strings.
func (i ID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Compare returns -1, 0, 1 based on lexical comparison, which matches
// chronological order by construction.
func (i ID) Compare(other ID) int {
	for idx := 0; idx < 16; idx++ {
		if i[idx] < other[idx] {
			return -1
		}
		if i[idx] > other[idx] {
			return 1
		}
	}
	return 0
}

// Succ returns the smallest ID strictly greater than i. Used to turn an
// inclusive cursor into an exclusive lower bound for range reads.
func (i ID) Succ() ID {
	ms, seq := i.Ms(), i.Seq()
	if seq == math.MaxUint64 {
		return Make(ms+1, 0)
	}
	return Make(ms, seq+1)
}

// Generator produces monotonically increasing IDs for a single log.
type Generator struct {
	mu       sync.Mutex
	lastMs   int64
	sequence uint64
}

// NewGenerator creates a Generator starting fresh.
func NewGenerator() *Generator { return &Generator{} }

// NewGeneratorFrom creates a Generator that continues after last, so IDs
// stay strictly increasing across process restarts.
func NewGeneratorFrom(last ID) *Generator {
	return &Generator{lastMs: last.Ms(), sequence: last.Seq()}
}

// NowMs returns current time in milliseconds since Unix epoch.
var NowMs = func() int64 { return time.Now().UnixMilli() }

// Next returns a new ID. If the clock goes backwards, it pins to lastMs and
// increments the sequence. If the sequence overflows within the same
// millisecond, it waits for the next ms.
func (g *Generator) Next() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := NowMs()
	if ms < g.lastMs {
		ms = g.lastMs
	}

	if ms == g.lastMs {
		if g.sequence == math.MaxUint64 {
			// wait until next ms to avoid overflow
			for {
				ms = NowMs()
				if ms > g.lastMs {
					break
				}
				time.Sleep(time.Millisecond / 8)
			}
			g.sequence = 0
		} else {
			g.sequence++
		}
	} else {
		g.sequence = 0
	}

	g.lastMs = ms
	return Make(ms, g.sequence)
}
