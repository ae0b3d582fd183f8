package transport

import (
	"sync"

	"github.com/MigueldsBatista/projeto-redes/internal/protocol"
)

const pipeBuffer = 64

// Pipe returns two connected in-memory connections. Frames written to one
// end become readable on the other. Closing either end unblocks both.
// It exists for tests and carries encoded bytes, so a channel simulator
// wrapped around one end behaves exactly as it would on a real transport.
func Pipe() (Conn, Conn) {
	ab := make(chan []byte, pipeBuffer)
	ba := make(chan []byte, pipeBuffer)
	done := make(chan struct{})
	once := &sync.Once{}

	a := &pipeConn{in: ba, out: ab, done: done, once: once, addr: "pipe:a"}
	b := &pipeConn{in: ab, out: ba, done: done, once: once, addr: "pipe:b"}
	return a, b
}

type pipeConn struct {
	in   <-chan []byte
	out  chan<- []byte
	done chan struct{}
	once *sync.Once
	addr string
}

func (p *pipeConn) ReadFrame() (*protocol.Frame, error) {
	// Frames written before the close must still be readable.
	select {
	case b := <-p.in:
		return protocol.Decode(b)
	default:
	}
	select {
	case b := <-p.in:
		return protocol.Decode(b)
	case <-p.done:
		return nil, protocol.ErrClosed
	}
}

func (p *pipeConn) WriteFrame(f *protocol.Frame) error {
	return p.WriteRaw(protocol.Encode(f))
}

func (p *pipeConn) WriteRaw(b []byte) error {
	buf := append([]byte(nil), b...)
	select {
	case p.out <- buf:
		return nil
	case <-p.done:
		return protocol.ErrClosed
	}
}

func (p *pipeConn) RemoteAddr() string {
	return p.addr
}

func (p *pipeConn) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
