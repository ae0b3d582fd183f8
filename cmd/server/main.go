// Server — the responder side of the reliable transfer protocol.
//
// Accepts client sessions over TCP, WebSocket, or a WebRTC DataChannel,
// negotiates the session parameters in a three-way handshake, and logs
// every fully reassembled message.
//
// It can be launched non-interactively via CLI flags (-addr, -transport,
// -max-size, ...) or fall back to an interactive transport prompt.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/pterm/pterm"

	"github.com/MigueldsBatista/projeto-redes/internal/app"
	"github.com/MigueldsBatista/projeto-redes/internal/config"
	"github.com/MigueldsBatista/projeto-redes/internal/util"
)

var version = "dev"

func main() {
	// Root context — cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := config.DefaultServer()

	addr := flag.String("addr", cfg.Addr, "listen address")
	transportFlag := flag.String("transport", "", "transport: tcp, ws or webrtc (empty = interactive)")
	maxSize := flag.Int("max-size", cfg.MaxSize, "fragment size cap granted to clients")
	maxWindow := flag.Int("max-window", cfg.MaxWindow, "largest window granted to clients")
	timeout := flag.Duration("timeout", cfg.RetryTimeout, "retransmission timeout")
	retries := flag.Int("retries", cfg.MaxRetries, "retries before a peer is declared unresponsive")
	debugMode := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	if *debugMode {
		util.EnableDebug()
		cfg.Debug = true
	}

	pterm.Info.Println(fmt.Sprintf("Transfer server — v%s", version))
	pterm.Println()

	cfg.Addr = *addr
	cfg.MaxSize = *maxSize
	cfg.MaxWindow = *maxWindow
	cfg.RetryTimeout = *timeout
	cfg.MaxRetries = *retries

	cfg.Transport = *transportFlag
	if cfg.Transport == "" {
		cfg.Transport = askTransport()
	}

	if err := app.RunServer(ctx, cfg); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
	util.LogInfo("server shut down")
}

// askTransport prompts for the transport when no -transport flag is given.
func askTransport() string {
	choice, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{config.TransportTCP, config.TransportWS, config.TransportWebRTC}).
		WithDefaultText("Select the transport").
		Show()
	pterm.Println()
	return choice
}
