package protocol

import (
	"errors"
	"fmt"
)

// DecodeKind classifies frame decoding failures.
type DecodeKind int

const (
	IncompleteFrame DecodeKind = iota
	ChecksumMismatch
	UnknownMessageType
)

func (k DecodeKind) String() string {
	switch k {
	case IncompleteFrame:
		return "incomplete frame"
	case ChecksumMismatch:
		return "checksum mismatch"
	case UnknownMessageType:
		return "unknown message type"
	default:
		return "unknown decode error"
	}
}

// DecodeError reports a frame that could not be decoded. Decoding failures
// are local and non-fatal: the frame is discarded and the reliability layer
// decides whether to re-ACK, NACK, or ignore.
type DecodeError struct {
	Kind   DecodeKind
	Detail string
}

func (e *DecodeError) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// IsDecodeKind reports whether err is a DecodeError of the given kind.
func IsDecodeKind(err error, kind DecodeKind) bool {
	var de *DecodeError
	return errors.As(err, &de) && de.Kind == kind
}

// Fatal connection errors surfaced to the application layer.
var (
	// ErrSessionMismatch: the ACK_FINAL carried a session_id that does not
	// match the pending session. The server closes the socket rather than
	// guessing.
	ErrSessionMismatch = errors.New("session id mismatch")

	// ErrPeerUnresponsive: the retransmission retry bound was exhausted
	// without an acknowledgment.
	ErrPeerUnresponsive = errors.New("peer unresponsive")

	// ErrChannelFault: a CHANNEL_ERROR marker was seen. Integrity faults are
	// fatal; the peer must re-run the handshake to resume.
	ErrChannelFault = errors.New("channel integrity fault")

	// ErrClosed: the connection was already closed locally.
	ErrClosed = errors.New("connection closed")
)

// HandshakeError is fatal to the connection attempt; no session survives it.
type HandshakeError struct {
	Reason string
	Err    error
}

func (e *HandshakeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("handshake failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("handshake failed: %s", e.Reason)
}

func (e *HandshakeError) Unwrap() error { return e.Err }
