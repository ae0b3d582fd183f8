// Package transport provides frame-oriented connections over TCP, WebSocket,
// and WebRTC data channels, plus an in-memory pipe for tests.
//
// Every transport carries one encoded frame per message. TCP is a byte
// stream, so frames are delimited by the length field in their own header;
// WebSocket and DataChannel messages map one-to-one onto frames.
package transport

import (
	"github.com/MigueldsBatista/projeto-redes/internal/protocol"
)

// Conn is a frame-oriented connection to one peer.
//
// ReadFrame blocks until a frame arrives, the connection closes, or the
// peer sends bytes that fail to decode. A checksum failure is returned
// together with the partially decoded frame so the caller can still react
// to its sequence number.
type Conn interface {
	ReadFrame() (*protocol.Frame, error)
	WriteFrame(f *protocol.Frame) error

	// WriteRaw sends an already encoded frame unchanged. The channel
	// simulator uses it to put tampered bytes on the wire.
	WriteRaw(b []byte) error

	RemoteAddr() string
	Close() error
}

// Listener accepts inbound frame connections.
type Listener interface {
	Accept() (Conn, error)
	Addr() string
	Close() error
}
