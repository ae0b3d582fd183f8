// Package fragment splits outbound application messages into chunk payloads
// sized by the negotiated max_size and reassembles inbound chunk sequences
// into complete messages.
//
// Each DATA payload is one chunk prefixed by a single flag byte; bit0 marks
// the final chunk of a message. max_size counts application bytes per chunk,
// so the wire payload is one byte larger.
package fragment

import (
	"bytes"
	"errors"
)

const (
	envelopeSize = 1
	flagLast     = 0x01
)

// ErrMissingEnvelope reports a DATA payload too short to carry the flag byte.
var ErrMissingEnvelope = errors.New("fragment: payload missing envelope byte")

// Split breaks a message into ordered DATA payloads of at most maxChunk
// application bytes each. An empty message yields exactly one empty
// last-marked chunk, preserving send-one-frame semantics.
func Split(msg []byte, maxChunk int) [][]byte {
	if maxChunk < 1 {
		maxChunk = 1
	}

	if len(msg) == 0 {
		return [][]byte{{flagLast}}
	}

	var chunks [][]byte
	for len(msg) > 0 {
		n := len(msg)
		if n > maxChunk {
			n = maxChunk
		}

		chunk := make([]byte, envelopeSize+n)
		copy(chunk[envelopeSize:], msg[:n])
		msg = msg[n:]

		if len(msg) == 0 {
			chunk[0] = flagLast
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

// Assembler reconstructs messages from chunks delivered in sequence order by
// the reliability engine. It is connection-local and needs no locking.
type Assembler struct {
	buf bytes.Buffer
}

// Feed consumes one in-order chunk payload. While the message is incomplete
// it returns (nil, false, nil); when the last-marked chunk arrives it returns
// the completed message and resets for the next one.
func (a *Assembler) Feed(payload []byte) (msg []byte, done bool, err error) {
	if len(payload) < envelopeSize {
		return nil, false, ErrMissingEnvelope
	}

	a.buf.Write(payload[envelopeSize:])
	if payload[0]&flagLast == 0 {
		return nil, false, nil
	}

	msg = make([]byte, a.buf.Len())
	copy(msg, a.buf.Bytes())
	a.buf.Reset()
	return msg, true, nil
}

// Pending returns the number of message bytes buffered for the message
// currently being reassembled.
func (a *Assembler) Pending() int {
	return a.buf.Len()
}
