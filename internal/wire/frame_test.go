package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/evpipe/pkg/id"
	"github.com/rzbill/evpipe/pkg/logstore"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	body := []byte(`{"log":"orders"}`)
	require.NoError(t, WriteFrame(&buf, OpAppend, body))

	typ, got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, OpAppend, typ)
	assert.Equal(t, body, got)
}

func TestFrameEmptyBody(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, FrameResponse, nil))

	typ, body, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, FrameResponse, typ)
	assert.Nil(t, body)
}

func TestFrameSequence(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, OpRead, []byte("a")))
	require.NoError(t, WriteFrame(&buf, OpAck, []byte("bb")))

	typ, body, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, OpRead, typ)
	assert.Equal(t, []byte("a"), body)

	typ, body, err = ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, OpAck, typ)
	assert.Equal(t, []byte("bb"), body)
}

func TestFrameTruncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, OpAppend, []byte("hello")))
	raw := buf.Bytes()[:buf.Len()-2]

	_, _, err := ReadFrame(bytes.NewReader(raw))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestFrameTooLarge(t *testing.T) {
	var hdr [5]byte
	hdr[0] = OpAppend
	binary.BigEndian.PutUint32(hdr[1:], MaxFrameBytes+1)

	_, _, err := ReadFrame(bytes.NewReader(hdr[:]))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame too large")
}

func TestEntryIDTextOnWire(t *testing.T) {
	req := AppendRequest{Log: "orders", Fields: logstore.Fields{{K: "type", V: "created"}}}
	b, err := json.Marshal(req)
	require.NoError(t, err)

	var back AppendRequest
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, req, back)

	resp := AppendResponse{ID: id.Make(1234, 5)}
	rb, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(rb), `"1234-5"`)

	var rback AppendResponse
	require.NoError(t, json.Unmarshal(rb, &rback))
	assert.Equal(t, resp.ID, rback.ID)
}
