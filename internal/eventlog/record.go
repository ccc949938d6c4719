package eventlog

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/rzbill/evpipe/pkg/logstore"
)

// Record encoding: varint fieldCount | (varint kLen | k | varint vLen | v)* |
// crc32c(body). Field order is preserved byte-for-byte.

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func appendUvarint(dst []byte, v uint64) []byte {
	var tmp [10]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(dst, tmp[:n]...)
}

// EncodeRecord serializes an ordered field list.
func EncodeRecord(fields logstore.Fields) []byte {
	size := 10
	for _, f := range fields {
		size += 20 + len(f.K) + len(f.V)
	}
	out := make([]byte, 0, size+4)
	out = appendUvarint(out, uint64(len(fields)))
	for _, f := range fields {
		out = appendUvarint(out, uint64(len(f.K)))
		out = append(out, f.K...)
		out = appendUvarint(out, uint64(len(f.V)))
		out = append(out, f.V...)
	}

	crc := crc32.Update(0, castagnoli, out)
	var crcb [4]byte
	binary.BigEndian.PutUint32(crcb[:], crc)
	return append(out, crcb[:]...)
}

// DecodeRecord deserializes a record, verifying the checksum. Returns false
// on any truncation, overrun, or checksum mismatch.
func DecodeRecord(b []byte) (logstore.Fields, bool) {
	if len(b) < 1+4 {
		return nil, false
	}
	body, crcb := b[:len(b)-4], b[len(b)-4:]
	if crc32.Update(0, castagnoli, body) != binary.BigEndian.Uint32(crcb) {
		return nil, false
	}

	count, n := binary.Uvarint(body)
	if n <= 0 {
		return nil, false
	}
	rest := body[n:]
	fields := make(logstore.Fields, 0, count)
	for i := uint64(0); i < count; i++ {
		var k, v string
		var ok bool
		if k, rest, ok = readString(rest); !ok {
			return nil, false
		}
		if v, rest, ok = readString(rest); !ok {
			return nil, false
		}
		fields = append(fields, logstore.Field{K: k, V: v})
	}
	if len(rest) != 0 {
		return nil, false
	}
	return fields, true
}

func readString(b []byte) (string, []byte, bool) {
	slen, n := binary.Uvarint(b)
	if n <= 0 || uint64(len(b)-n) < slen {
		return "", nil, false
	}
	return string(b[n : n+int(slen)]), b[n+int(slen):], true
}
