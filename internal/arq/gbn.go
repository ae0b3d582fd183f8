package arq

import (
	"context"
	"time"

	"github.com/MigueldsBatista/projeto-redes/internal/protocol"
)

// ─────────────────────────────── sender ───────────────────────────────

// gbnSender keeps a single retransmission timer for the oldest unacked
// frame. A timeout resends the whole window and consumes a retry; a NACK
// or a duplicate cumulative ACK resends without touching the retry budget,
// since either one proves the peer is alive.
type gbnSender struct {
	senderState

	window     int
	timeout    time.Duration
	maxRetries int
	write      WriteFunc

	base    uint16
	next    uint16
	frames  map[uint16]*protocol.Frame
	retries int
	timer   *time.Timer
	armed   bool
}

func newGbnSender(cfg SenderConfig) *gbnSender {
	s := &gbnSender{
		window:     cfg.Window,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		write:      cfg.Write,
		frames:     make(map[uint16]*protocol.Frame),
	}
	s.init(cfg.OnFail)
	return s
}

func (s *gbnSender) Send(ctx context.Context, payloads [][]byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	for _, p := range payloads {
		s.mu.Lock()
		for s.err == nil && !s.closed && ctx.Err() == nil && seqDist(s.base, s.next) >= s.window {
			s.cond.Wait()
		}
		if err := s.doneErrLocked(ctx); err != nil {
			s.mu.Unlock()
			return err
		}
		f := &protocol.Frame{Type: protocol.TypeData, Seq: s.next, Payload: p}
		s.frames[s.next] = f
		s.next++
		s.armTimerLocked()
		s.mu.Unlock()

		if err := s.write(f); err != nil {
			s.mu.Lock()
			s.failLocked(err)
			s.mu.Unlock()
			return err
		}
	}

	// Wait for the peer to acknowledge everything sent above.
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.err == nil && !s.closed && ctx.Err() == nil && s.base != s.next {
		s.cond.Wait()
	}
	return s.doneErrLocked(ctx)
}

func (s *gbnSender) HandleAck(seq uint16) {
	s.mu.Lock()
	if s.err != nil || s.closed {
		s.mu.Unlock()
		return
	}
	inFlight := seqDist(s.base, s.next)
	if inFlight == 0 {
		s.mu.Unlock()
		return
	}
	if seqDist(s.base, seq) >= inFlight {
		// The receiver rejected a frame and restated its cumulative
		// position. Go back and resend the window; the duplicate ACK is
		// an answer, so no retry is consumed.
		frames := make([]*protocol.Frame, 0, inFlight)
		for q := s.base; q != s.next; q++ {
			frames = append(frames, s.frames[q])
		}
		s.rearmTimerLocked()
		s.mu.Unlock()
		s.writeAll(frames)
		return
	}
	for s.base != seq+1 {
		delete(s.frames, s.base)
		s.base++
	}
	s.retries = 0
	if s.base == s.next {
		s.stopTimerLocked()
	} else {
		s.rearmTimerLocked()
	}
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *gbnSender) HandleNack(seq uint16) {
	s.mu.Lock()
	if s.err != nil || s.closed || !inWindow(s.base, seq, seqDist(s.base, s.next)) {
		s.mu.Unlock()
		return
	}
	// Go back: resend from the rejected frame through the end of the
	// window. The peer answered, so no retry is consumed.
	frames := make([]*protocol.Frame, 0, seqDist(seq, s.next))
	for q := seq; q != s.next; q++ {
		frames = append(frames, s.frames[q])
	}
	s.rearmTimerLocked()
	s.mu.Unlock()
	s.writeAll(frames)
}

func (s *gbnSender) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return seqDist(s.base, s.next)
}

func (s *gbnSender) Window() (uint16, uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base, s.next
}

func (s *gbnSender) Fail(err error) {
	s.mu.Lock()
	s.failLocked(err)
	s.stopTimerLocked()
	s.mu.Unlock()
}

func (s *gbnSender) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		s.stopTimerLocked()
		s.cond.Broadcast()
	}
	s.mu.Unlock()
}

func (s *gbnSender) onTimeout() {
	s.mu.Lock()
	if s.err != nil || s.closed || s.base == s.next {
		s.armed = false
		s.mu.Unlock()
		return
	}
	s.retries++
	if s.retries > s.maxRetries {
		s.mu.Unlock()
		s.asyncFail(protocol.ErrPeerUnresponsive)
		return
	}
	frames := make([]*protocol.Frame, 0, seqDist(s.base, s.next))
	for q := s.base; q != s.next; q++ {
		frames = append(frames, s.frames[q])
	}
	s.rearmTimerLocked()
	s.mu.Unlock()
	s.writeAll(frames)
}

func (s *gbnSender) writeAll(frames []*protocol.Frame) {
	for _, f := range frames {
		if err := s.write(f); err != nil {
			s.asyncFail(err)
			return
		}
	}
}

// armTimerLocked starts the timer if it is not already running. The timer
// tracks the oldest unacked frame, so later sends must not restart it.
func (s *gbnSender) armTimerLocked() {
	if !s.armed {
		s.rearmTimerLocked()
	}
}

// rearmTimerLocked restarts the interval after the base moved or the window
// was resent.
func (s *gbnSender) rearmTimerLocked() {
	s.armed = true
	if s.timer == nil {
		s.timer = time.AfterFunc(s.timeout, s.onTimeout)
	} else {
		s.timer.Reset(s.timeout)
	}
}

func (s *gbnSender) stopTimerLocked() {
	s.armed = false
	if s.timer != nil {
		s.timer.Stop()
	}
}

// ────────────────────────────── receiver ──────────────────────────────

// gbnReceiver accepts frames strictly in order and keeps no reorder buffer.
type gbnReceiver struct {
	expected uint16
	acked    bool
	lastAck  uint16
}

func newGbnReceiver() *gbnReceiver {
	return &gbnReceiver{}
}

func (r *gbnReceiver) Accept(f *protocol.Frame) Result {
	if f.Seq != r.expected {
		return r.reject()
	}
	r.lastAck = f.Seq
	r.acked = true
	r.expected++
	return Result{
		Replies: []*protocol.Frame{ack(f.Seq)},
		Deliver: [][]byte{f.Payload},
	}
}

func (r *gbnReceiver) AcceptCorrupt(uint16) Result {
	return r.reject()
}

// reject restates the cumulative position: a duplicate of the last ACK, or
// a NACK for the first frame while nothing has been accepted yet.
func (r *gbnReceiver) reject() Result {
	if r.acked {
		return Result{Replies: []*protocol.Frame{ack(r.lastAck)}}
	}
	return Result{Replies: []*protocol.Frame{nack(r.expected)}}
}

func (r *gbnReceiver) Expected() uint16 {
	return r.expected
}

func (r *gbnReceiver) Buffered() []uint16 {
	return nil
}
