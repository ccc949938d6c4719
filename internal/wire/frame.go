package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Request opcodes (client → server). The opcode is the first header byte of
// a request frame.
const (
	OpAppend      byte = 1
	OpRead        byte = 2
	OpCreateGroup byte = 3
	OpClaim       byte = 4
	OpAck         byte = 5
	OpReclaim     byte = 6
	OpPending     byte = 7
	OpStats       byte = 8
	OpLogs        byte = 9
	OpTrim        byte = 10
	OpFlush       byte = 11
)

// Response frame types (server → client).
const (
	FrameResponse byte = 0
	FrameError    byte = 1
)

// OpName returns a stable lowercase name for an opcode, for logs and metric
// labels.
func OpName(op byte) string {
	switch op {
	case OpAppend:
		return "append"
	case OpRead:
		return "read"
	case OpCreateGroup:
		return "create_group"
	case OpClaim:
		return "claim"
	case OpAck:
		return "ack"
	case OpReclaim:
		return "reclaim"
	case OpPending:
		return "pending"
	case OpStats:
		return "stats"
	case OpLogs:
		return "logs"
	case OpTrim:
		return "trim"
	case OpFlush:
		return "flush"
	default:
		return "unknown"
	}
}

// MaxFrameBytes bounds a frame body. Reads reject anything larger so a
// corrupt header cannot trigger a giant allocation.
const MaxFrameBytes = 16 << 20

// WriteFrame writes one frame: [1B type][4B BE body length][body].
func WriteFrame(w io.Writer, typ byte, body []byte) error {
	var hdr [5]byte
	hdr[0] = typ
	binary.BigEndian.PutUint32(hdr[1:], uint32(len(body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	_, err := w.Write(body)
	return err
}

// ReadFrame reads one frame written by WriteFrame.
func ReadFrame(r io.Reader) (typ byte, body []byte, err error) {
	var hdr [5]byte
	if _, err = io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	typ = hdr[0]
	sz := binary.BigEndian.Uint32(hdr[1:])
	if sz > MaxFrameBytes {
		return 0, nil, fmt.Errorf("frame too large: %d bytes", sz)
	}
	if sz == 0 {
		return typ, nil, nil
	}
	body = make([]byte, sz)
	if _, err = io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}
	return typ, body, nil
}
