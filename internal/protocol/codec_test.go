package protocol

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEncodeDecodeRoundTrip verifies that encoding and decoding are inverse
// operations for all message types and a range of payload sizes.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	testCases := []struct {
		name  string
		frame *Frame
	}{
		{
			name:  "SYN with JSON payload",
			frame: &Frame{Type: TypeSyn, Seq: 0, Payload: []byte(`{"operation_mode":"burst","max_size":64}`)},
		},
		{
			name:  "ACK with no payload",
			frame: &Frame{Type: TypeAck, Seq: 7, Payload: nil},
		},
		{
			name:  "DATA with small payload",
			frame: &Frame{Type: TypeData, Seq: 42, Payload: []byte("hello world")},
		},
		{
			name:  "DATA with empty payload",
			frame: &Frame{Type: TypeData, Seq: 55, Payload: []byte{}},
		},
		{
			name:  "DATA with 1KiB payload",
			frame: &Frame{Type: TypeData, Seq: 999, Payload: bytes.Repeat([]byte{0xAB}, 1024)},
		},
		{
			name:  "DISCONNECT at max sequence",
			frame: &Frame{Type: TypeDisconnect, Seq: 65535, Payload: nil},
		},
		{
			name:  "NACK",
			frame: &Frame{Type: TypeNack, Seq: 3, Payload: nil},
		},
		{
			name:  "CHANNEL_ERROR marker",
			frame: &Frame{Type: TypeChannelError, Seq: 0, Payload: []byte("integrity fault")},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			encoded := Encode(tc.frame)
			require.Len(t, encoded, HeaderSize+len(tc.frame.Payload))

			decoded, err := Decode(encoded)
			require.NoError(t, err)
			assert.Equal(t, tc.frame.Type, decoded.Type)
			assert.Equal(t, tc.frame.Seq, decoded.Seq)
			assert.Equal(t, append([]byte{}, tc.frame.Payload...), decoded.Payload)
		})
	}
}

// TestHeaderLayout pins the exact wire layout: big-endian
// length(4) | type(1) | seq(2) | checksum(4).
func TestHeaderLayout(t *testing.T) {
	payload := []byte("abc")
	encoded := Encode(&Frame{Type: TypeData, Seq: 0x0102, Payload: payload})

	require.Len(t, encoded, HeaderSize+3)
	assert.Equal(t, uint32(3), binary.BigEndian.Uint32(encoded[0:4]))
	assert.Equal(t, TypeData, encoded[4])
	assert.Equal(t, uint16(0x0102), binary.BigEndian.Uint16(encoded[5:7]))

	sum := Checksum(payload)
	assert.Equal(t, sum[:], encoded[7:11])
	assert.Equal(t, payload, encoded[11:])
}

// TestChecksumSensitivity flips every single payload byte of an encoded
// frame and requires the decoder to report ChecksumMismatch, with the
// header fields still recoverable for NACK purposes.
func TestChecksumSensitivity(t *testing.T) {
	frame := &Frame{Type: TypeData, Seq: 17, Payload: []byte("some payload under test")}
	encoded := Encode(frame)

	for i := HeaderSize; i < len(encoded); i++ {
		corrupted := append([]byte{}, encoded...)
		corrupted[i] ^= 0x01

		decoded, err := Decode(corrupted)
		require.Error(t, err, "flipped byte %d", i)
		assert.True(t, IsDecodeKind(err, ChecksumMismatch), "flipped byte %d: got %v", i, err)

		// The partially decoded frame keeps the header so the receiver
		// can NACK the right sequence number.
		require.NotNil(t, decoded)
		assert.Equal(t, frame.Seq, decoded.Seq)
		assert.Equal(t, frame.Type, decoded.Type)
	}
}

func TestDecodeBounds(t *testing.T) {
	t.Run("short header", func(t *testing.T) {
		_, err := Decode([]byte{0x00, 0x01, 0x02})
		assert.True(t, IsDecodeKind(err, IncompleteFrame))
	})

	t.Run("truncated payload", func(t *testing.T) {
		encoded := Encode(&Frame{Type: TypeData, Seq: 1, Payload: []byte("full payload")})
		_, err := Decode(encoded[:len(encoded)-4])
		assert.True(t, IsDecodeKind(err, IncompleteFrame))
	})

	t.Run("hostile payload length", func(t *testing.T) {
		encoded := Encode(&Frame{Type: TypeData, Seq: 1, Payload: []byte("x")})
		binary.BigEndian.PutUint32(encoded[0:4], 0xFFFFFFFF)
		_, err := Decode(encoded)
		assert.True(t, IsDecodeKind(err, IncompleteFrame))
	})

	t.Run("unknown message type", func(t *testing.T) {
		encoded := Encode(&Frame{Type: TypeData, Seq: 1, Payload: nil})
		encoded[4] = 0x42
		_, err := Decode(encoded)
		assert.True(t, IsDecodeKind(err, UnknownMessageType))
	})
}

// TestReadWriteFrameStream round-trips several frames through a byte stream,
// making sure the reader consumes exactly one frame per call.
func TestReadWriteFrameStream(t *testing.T) {
	frames := []*Frame{
		{Type: TypeSyn, Seq: 0, Payload: []byte(`{"max_size":32}`)},
		{Type: TypeData, Seq: 1, Payload: []byte("first")},
		{Type: TypeData, Seq: 2, Payload: []byte("second")},
		{Type: TypeAck, Seq: 2, Payload: nil},
	}

	var buf bytes.Buffer
	for _, f := range frames {
		require.NoError(t, WriteFrame(&buf, f))
	}

	for _, want := range frames {
		got, err := ReadFrame(&buf)
		require.NoError(t, err)
		assert.Equal(t, want.Type, got.Type)
		assert.Equal(t, want.Seq, got.Seq)
		assert.Equal(t, len(want.Payload), len(got.Payload))
	}
	assert.Zero(t, buf.Len())
}

// TestReadFrameHostileLength rejects a stream header announcing a payload
// beyond the frame limit before allocating for it.
func TestReadFrameHostileLength(t *testing.T) {
	header := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(header[0:4], MaxFrameSize)
	header[4] = TypeData

	_, err := ReadFrame(bytes.NewReader(header))
	assert.True(t, IsDecodeKind(err, IncompleteFrame))
}
