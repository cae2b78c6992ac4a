package message

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanmaster/lanmaster/protocol/identity"
)

var sender = identity.NodeIdentity{
	HardwareAddr: [6]byte{0x02, 0x42, 0xac, 0x11, 0x00, 0x02},
	ProcessID:    4242,
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  *Message
	}{
		{name: "who is master", msg: NewMessage(WhoIsMaster, sender)},
		{name: "i am master", msg: NewMessage(IAmMaster, sender)},
		{name: "please wait", msg: NewMessage(PleaseWait, sender)},
		{name: "control request", msg: NewMessage(ControlRequest, sender)},
		{name: "control response", msg: NewControlResponse(sender, 512, -7)},
		{name: "control set", msg: NewControlSet(sender, 80, "avg_temp=21 nodes=3")},
		{name: "control set empty text", msg: NewControlSet(sender, 0, "")},
		{name: "control set max text", msg: NewControlSet(sender, -1, strings.Repeat("x", MaxTextLen))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, MaxSize)
			n, err := Encode(buf, tt.msg)
			require.NoError(t, err)
			assert.Equal(t, tt.msg.Size(), n)

			got, err := Decode(buf[:n])
			require.NoError(t, err)
			assert.Equal(t, tt.msg, got)
		})
	}
}

func TestWireLayout(t *testing.T) {
	data, err := Marshal(NewControlResponse(sender, 1, 2))
	require.NoError(t, err)
	require.Len(t, data, HeaderSize+8)

	assert.Equal(t, uint32(ControlResponse), binary.BigEndian.Uint32(data[0:4]))
	assert.Equal(t, uint32(4242), binary.BigEndian.Uint32(data[4:8]))
	assert.Equal(t, sender.HardwareAddr[:], data[8:14])
	assert.Equal(t, uint32(1), binary.BigEndian.Uint32(data[14:18]))
	assert.Equal(t, uint32(2), binary.BigEndian.Uint32(data[18:22]))
}

func TestEncodeBufferTooSmall(t *testing.T) {
	tests := []struct {
		name string
		msg  *Message
		size int
	}{
		{name: "header does not fit", msg: NewMessage(WhoIsMaster, sender), size: HeaderSize - 1},
		{name: "response payload does not fit", msg: NewControlResponse(sender, 1, 1), size: HeaderSize + 4},
		{name: "text tail does not fit", msg: NewControlSet(sender, 1, "hello"), size: HeaderSize + 4 + 4},
		{name: "oversized text", msg: NewControlSet(sender, 1, strings.Repeat("x", MaxTextLen+1)), size: MaxSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(make([]byte, tt.size), tt.msg)
			assert.ErrorIs(t, err, ErrBufferTooSmall)
		})
	}
}

func TestDecodeTruncated(t *testing.T) {
	full, err := Marshal(NewMessage(IAmMaster, sender))
	require.NoError(t, err)

	for n := 0; n < HeaderSize; n++ {
		// Copy into an exact-length slice so any read past it would panic.
		data := append([]byte(nil), full[:n]...)
		_, err := Decode(data)
		assert.ErrorIs(t, err, ErrTruncated, "length %d", n)
	}
}

func TestDecodeTruncatedPayload(t *testing.T) {
	resp, err := Marshal(NewControlResponse(sender, 10, 20))
	require.NoError(t, err)
	for n := HeaderSize; n < len(resp); n++ {
		_, err := Decode(append([]byte(nil), resp[:n]...))
		assert.ErrorIs(t, err, ErrTruncated, "length %d", n)
	}

	set, err := Marshal(NewControlSet(sender, 10, ""))
	require.NoError(t, err)
	_, err = Decode(set[:HeaderSize+2])
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestDecodeUnknownType(t *testing.T) {
	data, err := Marshal(NewMessage(WhoIsMaster, sender))
	require.NoError(t, err)
	binary.BigEndian.PutUint32(data, 99)

	_, err = Decode(data)
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestDecodeIgnoresTrailingBytesForFixedTypes(t *testing.T) {
	data, err := Marshal(NewMessage(PleaseWait, sender))
	require.NoError(t, err)
	data = append(data, 0xde, 0xad)

	msg, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, PleaseWait, msg.Type)
	assert.Equal(t, sender, msg.Sender)
}
