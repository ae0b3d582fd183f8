// Package app contains the top-level orchestration for the server and
// client roles: transport selection, peer lifecycle, and the interactive
// client menu.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MigueldsBatista/projeto-redes/internal/config"
	"github.com/MigueldsBatista/projeto-redes/internal/handshake"
	"github.com/MigueldsBatista/projeto-redes/internal/peer"
	"github.com/MigueldsBatista/projeto-redes/internal/protocol"
	"github.com/MigueldsBatista/projeto-redes/internal/session"
	"github.com/MigueldsBatista/projeto-redes/internal/signaling"
	"github.com/MigueldsBatista/projeto-redes/internal/transport"
	"github.com/MigueldsBatista/projeto-redes/internal/util"
)

// wsPath is the upgrade endpoint of the WebSocket transport.
const wsPath = "/session"

// RunServer accepts connections until ctx ends. Every connection gets its
// own responder peer and goroutine; reassembled messages are logged as they
// complete.
func RunServer(ctx context.Context, cfg config.ServerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ln, err := listen(cfg)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Addr, err)
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	table := session.NewTable()
	util.StartStatsReporter(ctx)
	util.LogInfo("server listening on %s (%s)", ln.Addr(), cfg.Transport)

	caps := handshake.Caps{
		MaxSize:       cfg.MaxSize,
		MaxWindow:     cfg.MaxWindow,
		DefaultWindow: cfg.DefaultWindow,
	}
	policy := handshake.RetryPolicy{Timeout: cfg.RetryTimeout, MaxRetries: cfg.MaxRetries}
	opts := peer.Options{
		RetryTimeout:   cfg.RetryTimeout,
		MaxRetries:     cfg.MaxRetries,
		DisconnectWait: cfg.DisconnectWait,
		CorruptLimit:   cfg.CorruptLimit,
		Table:          table,
	}

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, protocol.ErrClosed) {
				break
			}
			util.LogWarning("accept failed: %v", err)
			continue
		}

		util.LogInfo("connection from %s", conn.RemoteAddr())
		wg.Add(1)
		go func() {
			defer wg.Done()
			serve(ctx, conn, caps, policy, opts)
		}()
	}

	wg.Wait()
	util.LogInfo("server stopped, %d session(s) left in table", table.Len())
	return nil
}

func listen(cfg config.ServerConfig) (transport.Listener, error) {
	switch cfg.Transport {
	case config.TransportTCP:
		return transport.ListenTCP(cfg.Addr)
	case config.TransportWS:
		return transport.ListenWS(cfg.Addr, wsPath)
	case config.TransportWebRTC:
		return signaling.Listen(cfg.Addr)
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// serve owns one client connection from handshake to teardown.
func serve(ctx context.Context, conn transport.Conn, caps handshake.Caps, policy handshake.RetryPolicy, opts peer.Options) {
	addr := conn.RemoteAddr()
	p, err := peer.NewResponder(ctx, conn, caps, policy, opts)
	if err != nil {
		util.LogWarning("handshake with %s failed: %v", addr, err)
		return
	}

	for {
		select {
		case msg := <-p.Messages():
			util.LogSuccess("[RECONSTRUCTED] full message from %s: %s", addr, msg)
		case <-p.Done():
			if err := p.Err(); err != nil {
				util.LogWarning("session with %s ended: %v", addr, err)
			}
			return
		}
	}
}
