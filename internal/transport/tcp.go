package transport

import (
	"bufio"
	"context"
	"net"
	"sync"

	"github.com/MigueldsBatista/projeto-redes/internal/protocol"
)

// tcpConn carries frames over a plain TCP stream. Frames are self
// delimiting through the length field in their header.
type tcpConn struct {
	c   net.Conn
	br  *bufio.Reader
	wmu sync.Mutex
}

func newTCPConn(c net.Conn) *tcpConn {
	return &tcpConn{c: c, br: bufio.NewReader(c)}
}

// DialTCP connects to a listening peer at addr.
func DialTCP(ctx context.Context, addr string) (Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return newTCPConn(c), nil
}

// ListenTCP starts accepting frame connections on addr.
func ListenTCP(addr string) (Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &tcpListener{ln: ln}, nil
}

func (t *tcpConn) ReadFrame() (*protocol.Frame, error) {
	return protocol.ReadFrame(t.br)
}

func (t *tcpConn) WriteFrame(f *protocol.Frame) error {
	return t.WriteRaw(protocol.Encode(f))
}

func (t *tcpConn) WriteRaw(b []byte) error {
	t.wmu.Lock()
	defer t.wmu.Unlock()
	_, err := t.c.Write(b)
	return err
}

func (t *tcpConn) RemoteAddr() string {
	return t.c.RemoteAddr().String()
}

func (t *tcpConn) Close() error {
	return t.c.Close()
}

type tcpListener struct {
	ln net.Listener
}

func (l *tcpListener) Accept() (Conn, error) {
	c, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return newTCPConn(c), nil
}

func (l *tcpListener) Addr() string {
	return l.ln.Addr().String()
}

func (l *tcpListener) Close() error {
	return l.ln.Close()
}
