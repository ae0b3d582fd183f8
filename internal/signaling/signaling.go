// Package signaling pairs two peers over a WebSocket side channel and
// bootstraps a WebRTC DataChannel between them. The host publishes a
// numeric PIN; the client presents the PIN, the two sides exchange SDP
// descriptions and trickle ICE candidates, and once the DataChannel
// opens both ends get a transport.Conn carrying protocol frames.
package signaling

import (
	"context"
	"fmt"
	"time"

	"github.com/MigueldsBatista/projeto-redes/internal/transport"
	"github.com/MigueldsBatista/projeto-redes/internal/util"
)

const (
	pinLength = 6

	// Upper bound on the whole SDP/ICE exchange. NAT traversal either
	// succeeds within seconds or not at all.
	exchangeTimeout = 30 * time.Second
)

// Listen starts the signaling server on addr. Each Accept call waits for
// one client to present the PIN, runs the SDP exchange with it, and
// returns the established DataChannel as a transport.Conn.
func Listen(addr string) (transport.Listener, error) {
	srv, err := newWSServer(addr, generatePIN(pinLength))
	if err != nil {
		return nil, err
	}
	util.LogInfo("[SIGNALING] listening on %s (pin %s)", srv.addr(), srv.pin)
	return &rtcListener{srv: srv}, nil
}

// Dial connects to the signaling server at addr, presents the PIN and
// completes the SDP exchange as the answering side.
func Dial(ctx context.Context, addr, pin string) (transport.Conn, error) {
	ws, err := connect(ctx, fmt.Sprintf("ws://%s/signal?pin=%s", addr, pin))
	if err != nil {
		return nil, fmt.Errorf("signaling connect: %w", err)
	}
	defer ws.Close()

	rtc, err := transport.NewRTC()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()
	if err := clientExchange(ctx, ws, rtc); err != nil {
		rtc.Close()
		return nil, err
	}
	util.LogSuccess("[SIGNALING] data channel open")
	return rtc.Conn(), nil
}

type rtcListener struct {
	srv *wsServer
}

func (l *rtcListener) Accept() (transport.Conn, error) {
	ws, err := l.srv.waitForClient()
	if err != nil {
		return nil, err
	}
	defer ws.Close()

	rtc, err := transport.NewRTC()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), exchangeTimeout)
	defer cancel()
	if err := hostExchange(ctx, ws, rtc); err != nil {
		rtc.Close()
		return nil, err
	}
	util.LogSuccess("[SIGNALING] data channel open")
	return rtc.Conn(), nil
}

func (l *rtcListener) Addr() string {
	return l.srv.addr()
}

func (l *rtcListener) Close() error {
	return l.srv.close()
}
