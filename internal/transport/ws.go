package transport

import (
	"context"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/MigueldsBatista/projeto-redes/internal/protocol"
	"github.com/MigueldsBatista/projeto-redes/internal/util"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConn carries one encoded frame per binary WebSocket message.
type wsConn struct {
	c   *websocket.Conn
	wmu sync.Mutex
}

// DialWS connects to a WebSocket endpoint, e.g. ws://host:port/session.
func DialWS(ctx context.Context, url string) (Conn, error) {
	c, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{c: c}, nil
}

func (w *wsConn) ReadFrame() (*protocol.Frame, error) {
	for {
		kind, data, err := w.c.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		return protocol.Decode(data)
	}
}

func (w *wsConn) WriteFrame(f *protocol.Frame) error {
	return w.WriteRaw(protocol.Encode(f))
}

func (w *wsConn) WriteRaw(b []byte) error {
	w.wmu.Lock()
	defer w.wmu.Unlock()
	return w.c.WriteMessage(websocket.BinaryMessage, b)
}

func (w *wsConn) RemoteAddr() string {
	return w.c.RemoteAddr().String()
}

func (w *wsConn) Close() error {
	return w.c.Close()
}

// wsListener upgrades inbound HTTP requests and hands the resulting
// connections to Accept through a channel.
type wsListener struct {
	srv   *http.Server
	addr  string
	conns chan Conn

	closeOnce sync.Once
	done      chan struct{}
}

// ListenWS serves WebSocket upgrades for path on addr.
func ListenWS(addr, path string) (Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	l := &wsListener{
		addr:  ln.Addr().String(),
		conns: make(chan Conn, 8),
		done:  make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, l.handleWS)
	l.srv = &http.Server{Handler: mux}

	go func() {
		if err := l.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			util.LogError("websocket listener stopped: %v", err)
		}
	}()

	return l, nil
}

func (l *wsListener) handleWS(w http.ResponseWriter, r *http.Request) {
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		util.LogWarning("websocket upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}
	select {
	case l.conns <- &wsConn{c: c}:
	case <-l.done:
		c.Close()
	}
}

func (l *wsListener) Accept() (Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, protocol.ErrClosed
	}
}

func (l *wsListener) Addr() string {
	return l.addr
}

func (l *wsListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.srv.Close()
	})
	return err
}
