package signaling

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
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

// wsServer is the host side of the signaling channel. It admits one
// client at a time, gated by the PIN.
type wsServer struct {
	pin    string
	laddr  string
	srv    *http.Server
	connCh chan *websocket.Conn

	closeOnce sync.Once
	done      chan struct{}
}

func newWSServer(addr, pin string) (*wsServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("signaling listen: %w", err)
	}

	s := &wsServer{
		pin:    pin,
		laddr:  ln.Addr().String(),
		connCh: make(chan *websocket.Conn, 1),
		done:   make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/signal", s.handleWS)
	s.srv = &http.Server{Handler: mux}

	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			util.LogError("signaling server stopped: %v", err)
		}
	}()

	return s, nil
}

func (s *wsServer) handleWS(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("pin") != s.pin {
		util.LogWarning("[SIGNALING] %s presented a wrong pin", r.RemoteAddr)
		http.Error(w, "invalid pin", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	// One exchange at a time.
	select {
	case s.connCh <- conn:
		util.LogInfo("[SIGNALING] client %s connected", r.RemoteAddr)
	default:
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "already connected"))
		conn.Close()
	}
}

func (s *wsServer) waitForClient() (*websocket.Conn, error) {
	select {
	case conn := <-s.connCh:
		return conn, nil
	case <-s.done:
		return nil, protocol.ErrClosed
	}
}

func (s *wsServer) addr() string { return s.laddr }

func (s *wsServer) close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.srv.Close()
	})
	return err
}

// connect dials the signaling endpoint as the client.
func connect(ctx context.Context, url string) (*websocket.Conn, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, errors.New("server refused the pin")
		}
		return nil, err
	}
	return conn, nil
}

// generatePIN returns a random numeric PIN of the given length.
func generatePIN(length int) string {
	digits := make([]byte, length)
	for i := range digits {
		n, _ := rand.Int(rand.Reader, big.NewInt(10))
		digits[i] = byte('0') + byte(n.Int64())
	}
	return string(digits)
}
