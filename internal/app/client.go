package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/MigueldsBatista/projeto-redes/internal/channel"
	"github.com/MigueldsBatista/projeto-redes/internal/config"
	"github.com/MigueldsBatista/projeto-redes/internal/handshake"
	"github.com/MigueldsBatista/projeto-redes/internal/peer"
	"github.com/MigueldsBatista/projeto-redes/internal/protocol"
	"github.com/MigueldsBatista/projeto-redes/internal/signaling"
	"github.com/MigueldsBatista/projeto-redes/internal/transport"
	"github.com/MigueldsBatista/projeto-redes/internal/util"
)

// Menu entries of the client loop.
const (
	menuSend       = "Send message"
	menuBurst      = "Send burst"
	menuChannel    = "Configure channel simulator"
	menuInfo       = "Session info"
	menuAbort      = "Simulate channel error"
	menuDisconnect = "Disconnect"
)

// RunClient dials the server, negotiates a session, and drops into the
// interactive menu until the user disconnects or the session dies. All
// outbound frames pass through the channel simulator, configurable from
// the menu.
func RunClient(ctx context.Context, cfg config.ClientConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	conn, err := dial(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", cfg.Addr, err)
	}

	sim := channel.New(channel.Config{})
	req := protocol.SynPayload{
		OperationMode: cfg.Mode,
		MaxSize:       cfg.MaxSize,
		Protocol:      cfg.Protocol,
		WindowSize:    cfg.Window,
		ClientID:      cfg.ClientID,
	}
	policy := handshake.RetryPolicy{Timeout: cfg.RetryTimeout, MaxRetries: cfg.MaxRetries}
	opts := peer.Options{
		RetryTimeout:   cfg.RetryTimeout,
		MaxRetries:     cfg.MaxRetries,
		DisconnectWait: cfg.DisconnectWait,
		CorruptLimit:   cfg.CorruptLimit,
	}

	p, err := peer.NewInitiator(ctx, channel.Wrap(conn, sim), req, policy, opts)
	if err != nil {
		return fmt.Errorf("handshake with %s: %w", cfg.Addr, err)
	}

	util.StartStatsReporter(ctx)
	go drainInbound(p)

	menuLoop(ctx, p, sim)
	return nil
}

func dial(ctx context.Context, cfg config.ClientConfig) (transport.Conn, error) {
	switch cfg.Transport {
	case config.TransportTCP:
		return transport.DialTCP(ctx, cfg.Addr)
	case config.TransportWS:
		return transport.DialWS(ctx, fmt.Sprintf("ws://%s%s", cfg.Addr, wsPath))
	case config.TransportWebRTC:
		return signaling.Dial(ctx, cfg.Addr, cfg.Pin)
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// drainInbound logs anything the server pushes. The server does not
// normally send data, but the protocol is symmetric.
func drainInbound(p *peer.Peer) {
	for {
		select {
		case msg := <-p.Messages():
			util.LogSuccess("[RECONSTRUCTED] full message from %s: %s", p.Session().Addr, msg)
		case <-p.Done():
			return
		}
	}
}

func menuLoop(ctx context.Context, p *peer.Peer, sim *channel.Simulator) {
	for {
		select {
		case <-p.Done():
			return
		default:
		}

		choice, _ := pterm.DefaultInteractiveSelect.
			WithOptions([]string{menuSend, menuBurst, menuChannel, menuInfo, menuAbort, menuDisconnect}).
			WithDefaultText("Session menu").
			Show()
		pterm.Println()

		switch choice {
		case menuSend:
			sendOne(ctx, p)
		case menuBurst:
			sendBurst(ctx, p)
		case menuChannel:
			configureChannel(sim)
		case menuInfo:
			showInfo(p)
		case menuAbort:
			p.Abort()
			return
		case menuDisconnect:
			p.Disconnect()
			return
		}
		pterm.Println()
	}
}

func sendOne(ctx context.Context, p *peer.Peer) {
	text, _ := pterm.DefaultInteractiveTextInput.
		WithDefaultText("Message").
		Show()
	if strings.TrimSpace(text) == "" {
		return
	}
	deliver(ctx, p, text)
}

func sendBurst(ctx context.Context, p *peer.Peer) {
	text, _ := pterm.DefaultInteractiveTextInput.
		WithDefaultText("Base message").
		Show()
	if strings.TrimSpace(text) == "" {
		return
	}
	count := askInt("How many messages (1 ~ 100)", 1, 100)
	for i := 1; i <= count; i++ {
		if !deliver(ctx, p, fmt.Sprintf("%s #%d", text, i)) {
			util.LogWarning("burst stopped at message %d/%d", i, count)
			return
		}
	}
	util.LogSuccess("burst of %d message(s) delivered", count)
}

// deliver sends one message and waits for full acknowledgment.
func deliver(ctx context.Context, p *peer.Peer, msg string) bool {
	if err := p.Send(ctx, []byte(msg)); err != nil {
		util.LogError("send failed: %v", err)
		return false
	}
	util.LogSuccess("message delivered (%d bytes)", len(msg))
	return true
}

func configureChannel(sim *channel.Simulator) {
	choice, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"Set fault rates", "Drop next data frame", "Corrupt next data frame", "Back"}).
		WithDefaultText("Channel simulator").
		Show()
	pterm.Println()

	switch choice {
	case "Set fault rates":
		cfg := channel.Config{
			LossRate:    askRate("Loss rate (0 ~ 1)"),
			CorruptRate: askRate("Corruption rate (0 ~ 1)"),
			DelayRate:   askRate("Delay rate (0 ~ 1)"),
		}
		if cfg.DelayRate > 0 {
			cfg.Delay = time.Duration(askInt("Delay in milliseconds (1 ~ 10000)", 1, 10000)) * time.Millisecond
		}
		sim.SetConfig(cfg)
		util.LogInfo("[CONFIG] channel simulator: loss=%.2f corrupt=%.2f delay=%.2f (%s)",
			cfg.LossRate, cfg.CorruptRate, cfg.DelayRate, cfg.Delay)
	case "Drop next data frame":
		sim.DropNext()
		util.LogInfo("[CONFIG] next data frame will be dropped")
	case "Corrupt next data frame":
		sim.CorruptNext()
		util.LogInfo("[CONFIG] next data frame will be corrupted")
	}
}

func showInfo(p *peer.Peer) {
	sess := p.Session()
	base, next, inFlight := p.WindowInfo()
	util.LogInfo("session %s with %s (%s)", sess.ID, sess.Addr, sess.State())
	util.LogInfo("  mode=%s proto=%s max_size=%d window=%d",
		sess.Params.Mode, sess.Params.Protocol, sess.Params.MaxSize, sess.Params.Window)
	util.LogInfo("  send window [%d, %d), %d frame(s) in flight", base, next, inFlight)
	util.LogInfo("  established %s ago", time.Since(sess.CreatedAt).Round(time.Second))
}

// ---------------------------------------------------------------------------
// Prompt helpers
// ---------------------------------------------------------------------------

// askInt prompts until the user enters an integer in [lo, hi].
func askInt(prompt string, lo, hi int) int {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText(prompt).
			Show()

		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err == nil && n >= lo && n <= hi {
			return n
		}
		util.LogWarning("invalid number: must be %d ~ %d", lo, hi)
	}
}

// askRate prompts until the user enters a probability in [0, 1].
func askRate(prompt string) float64 {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText(prompt).
			Show()

		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err == nil && v >= 0 && v <= 1 {
			return v
		}
		util.LogWarning("invalid rate: must be between 0 and 1")
	}
}
