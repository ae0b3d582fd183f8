// Package arq implements the reliability engine: sliding-window senders and
// receivers with Go-Back-N and Selective Repeat retransmission strategies.
//
// A Sender owns the transmit window for one direction of an established
// session: it assigns sequence numbers, enforces the window invariant
// [base, base+window), runs the retransmission timers, and blocks callers
// until their frames are acknowledged. A Receiver owns the receive window:
// it decides which DATA frames to accept, which control frames to send
// back, and releases payloads in sequence order.
//
// The strategy is bound once, at session establishment, and never changes.
package arq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MigueldsBatista/projeto-redes/internal/protocol"
)

// WriteFunc transmits one frame toward the peer. Implementations must be
// safe for concurrent use: initial sends and timer-driven retransmissions
// run on different goroutines.
type WriteFunc func(*protocol.Frame) error

// SenderConfig carries the negotiated parameters the sender operates under.
type SenderConfig struct {
	Window     int
	Timeout    time.Duration
	MaxRetries int
	Write      WriteFunc
	// OnFail is invoked once, outside any sender lock, when the retry bound
	// is exhausted or a write fails from a timer goroutine.
	OnFail func(error)
}

// Sender is the transmit side of a reliability strategy.
type Sender interface {
	// Send fragments one message's payloads into DATA frames, assigns
	// sequence numbers, and blocks until every frame is acknowledged.
	// Messages are serialized: concurrent calls queue behind each other.
	Send(ctx context.Context, payloads [][]byte) error

	// HandleAck processes an acknowledgment from the peer. GBN treats the
	// sequence number as cumulative, SR as individual.
	HandleAck(seq uint16)

	// HandleNack triggers an immediate retransmission without consuming a
	// retry: a NACK proves the peer is alive.
	HandleNack(seq uint16)

	// InFlight returns the number of sequence slots between base and next.
	InFlight() int

	// Window returns the current window bounds [base, next).
	Window() (base, next uint16)

	// Fail poisons the sender: pending and future Sends return err and all
	// timers stop. Unlike a timer-driven failure it does not fire OnFail.
	Fail(err error)

	// Close cancels all timers and releases any blocked Send with ErrClosed.
	// Safe to call more than once.
	Close()
}

// Result is the receiver's reaction to one inbound frame: control frames to
// write back to the peer and payloads that became deliverable in order.
type Result struct {
	Replies []*protocol.Frame
	Deliver [][]byte
}

// Receiver is the receive side of a reliability strategy. It is driven by a
// single reader goroutine and needs no locking.
type Receiver interface {
	// Accept processes a valid DATA frame.
	Accept(f *protocol.Frame) Result

	// AcceptCorrupt processes a DATA frame whose payload failed the
	// checksum but whose header survived (the payload digest does not
	// cover the header), so the sequence number can still be NACKed.
	AcceptCorrupt(seq uint16) Result

	// Expected returns the next in-order sequence number.
	Expected() uint16

	// Buffered lists out-of-order sequence numbers held for reordering
	// (always empty for GBN).
	Buffered() []uint16
}

// NewSender binds a transmit strategy by its negotiated protocol name.
func NewSender(proto string, cfg SenderConfig) (Sender, error) {
	switch proto {
	case protocol.ProtoGBN:
		return newGbnSender(cfg), nil
	case protocol.ProtoSR:
		return newSrSender(cfg), nil
	default:
		return nil, fmt.Errorf("unknown reliability protocol %q", proto)
	}
}

// NewReceiver binds a receive strategy by its negotiated protocol name.
func NewReceiver(proto string, window int) (Receiver, error) {
	switch proto {
	case protocol.ProtoGBN:
		return newGbnReceiver(), nil
	case protocol.ProtoSR:
		return newSrReceiver(window), nil
	default:
		return nil, fmt.Errorf("unknown reliability protocol %q", proto)
	}
}

func ack(seq uint16) *protocol.Frame {
	return &protocol.Frame{Type: protocol.TypeAck, Seq: seq}
}

func nack(seq uint16) *protocol.Frame {
	return &protocol.Frame{Type: protocol.TypeNack, Seq: seq}
}

// senderState is the lifecycle core shared by both strategies: the state
// lock, the window-admission condition, and sticky failure.
type senderState struct {
	mu     sync.Mutex
	cond   *sync.Cond
	sendMu sync.Mutex
	err    error
	closed bool
	onFail func(error)
}

func (s *senderState) init(onFail func(error)) {
	s.cond = sync.NewCond(&s.mu)
	s.onFail = onFail
}

// doneErrLocked reports why a blocked Send should stop waiting, or nil.
func (s *senderState) doneErrLocked(ctx context.Context) error {
	switch {
	case s.err != nil:
		return s.err
	case s.closed:
		return protocol.ErrClosed
	default:
		return ctx.Err()
	}
}

func (s *senderState) failLocked(err error) {
	if s.err == nil {
		s.err = err
	}
	s.cond.Broadcast()
}

// asyncFail records a failure raised on a timer goroutine and reports it
// through OnFail exactly once.
func (s *senderState) asyncFail(err error) {
	s.mu.Lock()
	already := s.err != nil || s.closed
	s.failLocked(err)
	s.mu.Unlock()
	if !already && s.onFail != nil {
		s.onFail(err)
	}
}
