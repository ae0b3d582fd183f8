// Package handshake implements the three-way session negotiation: SYN,
// SYN-ACK riding an ACK frame, and ACK_FINAL. The initiator proposes
// operation mode, fragment size, reliability protocol, and window size; the
// responder clamps them against its own capabilities or rejects outright.
package handshake

import (
	"context"
	"fmt"
	"time"

	"github.com/MigueldsBatista/projeto-redes/internal/protocol"
	"github.com/MigueldsBatista/projeto-redes/internal/session"
)

// Caps bounds what a responder is willing to grant.
type Caps struct {
	MaxSize       int // largest fragment payload per frame
	MaxWindow     int // largest window the responder accepts
	DefaultWindow int // window assigned when the initiator names none
}

// RetryPolicy bounds how long each side waits for the other's next step.
type RetryPolicy struct {
	Timeout    time.Duration
	MaxRetries int
}

// Outcome is a completed negotiation.
type Outcome struct {
	SessionID string
	ClientID  string
	Params    session.Params
}

// FrameSource yields inbound frames. The peer's read loop feeds it; Next
// returns when a frame arrives or ctx ends.
type FrameSource interface {
	Next(ctx context.Context) (*protocol.Frame, error)
}

// FrameWriter writes one frame toward the peer.
type FrameWriter interface {
	WriteFrame(f *protocol.Frame) error
}

// Negotiate clamps a SYN request against the responder's capabilities.
// A non-empty second return is the rejection reason.
func Negotiate(req protocol.SynPayload, caps Caps) (session.Params, string) {
	var p session.Params

	switch req.OperationMode {
	case protocol.ModeStepByStep, protocol.ModeBurst:
	default:
		return p, fmt.Sprintf("unsupported operation mode %q", req.OperationMode)
	}
	switch req.Protocol {
	case protocol.ProtoGBN, protocol.ProtoSR:
	default:
		return p, fmt.Sprintf("unsupported protocol %q", req.Protocol)
	}
	if req.MaxSize <= 0 {
		return p, fmt.Sprintf("invalid max_size %d", req.MaxSize)
	}

	window := req.WindowSize
	if window <= 0 {
		window = caps.DefaultWindow
	}
	window = min(window, caps.MaxWindow)
	if req.OperationMode == protocol.ModeStepByStep {
		window = 1
	}

	p = session.Params{
		Mode:     req.OperationMode,
		Protocol: req.Protocol,
		MaxSize:  min(req.MaxSize, caps.MaxSize),
		Window:   window,
	}
	return p, ""
}
