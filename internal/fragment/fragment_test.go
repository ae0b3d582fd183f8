package fragment

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSplitReassembleIdempotence checks reassemble(fragment(M)) == M across
// message and chunk-size combinations.
func TestSplitReassembleIdempotence(t *testing.T) {
	testCases := []struct {
		name     string
		msg      []byte
		maxChunk int
	}{
		{name: "empty message", msg: nil, maxChunk: 3},
		{name: "single byte chunks", msg: []byte("hello world"), maxChunk: 1},
		{name: "three byte chunks", msg: []byte("abcdefgh"), maxChunk: 3},
		{name: "exact multiple", msg: []byte("abcdef"), maxChunk: 3},
		{name: "chunk larger than message", msg: []byte("hi"), maxChunk: 1024},
		{name: "1KiB binary", msg: bytes.Repeat([]byte{0x00, 0xFF}, 512), maxChunk: 64},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			chunks := Split(tc.msg, tc.maxChunk)
			require.NotEmpty(t, chunks)

			var asm Assembler
			for i, chunk := range chunks {
				msg, done, err := asm.Feed(chunk)
				require.NoError(t, err)

				if i < len(chunks)-1 {
					assert.False(t, done, "chunk %d must not complete the message", i)
				} else {
					require.True(t, done, "final chunk must complete the message")
					assert.Equal(t, append([]byte{}, tc.msg...), msg)
				}
			}
			assert.Zero(t, asm.Pending(), "assembler must reset after completion")
		})
	}
}

func TestSplitChunkSizing(t *testing.T) {
	msg := []byte("0123456789")
	chunks := Split(msg, 4)

	require.Len(t, chunks, 3)
	for i, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk)-envelopeSize, 4, "chunk %d exceeds max_size", i)
		if i < len(chunks)-1 {
			assert.Zero(t, chunk[0]&flagLast, "only the final chunk is last-marked")
		}
	}
	assert.Equal(t, byte(flagLast), chunks[2][0]&flagLast)
}

func TestSplitEmptyMessage(t *testing.T) {
	chunks := Split(nil, 8)
	require.Len(t, chunks, 1)
	assert.Equal(t, []byte{flagLast}, chunks[0])
}

func TestAssemblerBackToBackMessages(t *testing.T) {
	var asm Assembler

	for _, want := range []string{"first message", "", "third"} {
		var got []byte
		for _, chunk := range Split([]byte(want), 5) {
			msg, done, err := asm.Feed(chunk)
			require.NoError(t, err)
			if done {
				got = msg
			}
		}
		assert.Equal(t, want, string(got))
	}
}

func TestAssemblerRejectsMissingEnvelope(t *testing.T) {
	var asm Assembler
	_, _, err := asm.Feed(nil)
	assert.ErrorIs(t, err, ErrMissingEnvelope)
}
