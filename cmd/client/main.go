// Client — the initiator side of the reliable transfer protocol.
//
// Connects to the server over TCP, WebSocket, or a WebRTC DataChannel,
// negotiates operation mode, fragment size, reliability protocol
// (Go-Back-N or Selective Repeat) and window size, then offers an
// interactive menu: send messages or bursts, tweak the channel simulator,
// inspect the session, or disconnect.
//
// Every negotiable parameter has a flag; parameters left unset fall back
// to interactive prompts.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/pterm/pterm"

	"github.com/MigueldsBatista/projeto-redes/internal/app"
	"github.com/MigueldsBatista/projeto-redes/internal/config"
	"github.com/MigueldsBatista/projeto-redes/internal/protocol"
	"github.com/MigueldsBatista/projeto-redes/internal/util"
)

var version = "dev"

func main() {
	// Root context — cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := config.DefaultClient()

	addr := flag.String("addr", cfg.Addr, "server address")
	transportFlag := flag.String("transport", "", "transport: tcp, ws or webrtc (empty = interactive)")
	pin := flag.String("pin", "", "signaling pin shown by the server (webrtc only)")
	mode := flag.String("mode", "", "operation mode: burst or step-by-step (empty = interactive)")
	proto := flag.String("protocol", "", "reliability protocol: gbn or sr (empty = interactive)")
	maxSize := flag.Int("max-size", cfg.MaxSize, "requested fragment size")
	window := flag.Int("window", cfg.Window, "requested window size")
	clientID := flag.String("id", "", "client identifier sent in the handshake")
	timeout := flag.Duration("timeout", cfg.RetryTimeout, "retransmission timeout")
	retries := flag.Int("retries", cfg.MaxRetries, "retries before the server is declared unresponsive")
	debugMode := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	if *debugMode {
		util.EnableDebug()
		cfg.Debug = true
	}

	pterm.Info.Println(fmt.Sprintf("Transfer client — v%s", version))
	pterm.Println()

	cfg.Addr = *addr
	cfg.MaxSize = *maxSize
	cfg.Window = *window
	cfg.ClientID = *clientID
	cfg.RetryTimeout = *timeout
	cfg.MaxRetries = *retries

	cfg.Transport = pick(*transportFlag, "Select the transport",
		[]string{config.TransportTCP, config.TransportWS, config.TransportWebRTC})
	if cfg.Transport == config.TransportWebRTC {
		cfg.Pin = askPin(*pin)
	}
	cfg.Mode = pick(*mode, "Select the operation mode",
		[]string{protocol.ModeBurst, protocol.ModeStepByStep})
	cfg.Protocol = pick(*proto, "Select the reliability protocol",
		[]string{protocol.ProtoGBN, protocol.ProtoSR})

	if err := app.RunClient(ctx, cfg); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
	util.LogInfo("client closed")
}

// ---------------------------------------------------------------------------
// Prompt helpers
// ---------------------------------------------------------------------------

// pick returns the flag value when given, otherwise prompts for one of the
// options.
func pick(flagValue, prompt string, options []string) string {
	if flagValue != "" {
		return flagValue
	}
	choice, _ := pterm.DefaultInteractiveSelect.
		WithOptions(options).
		WithDefaultText(prompt).
		Show()
	pterm.Println()
	return choice
}

// askPin prompts for the signaling pin until a non-empty one is entered.
func askPin(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Signaling pin shown by the server").
			Show()

		if pin := strings.TrimSpace(raw); pin != "" {
			pterm.Println()
			return pin
		}
		util.LogWarning("the pin cannot be empty")
	}
}
