package arq

import (
	"context"
	"sort"
	"time"

	"github.com/MigueldsBatista/projeto-redes/internal/protocol"
)

// ─────────────────────────────── sender ───────────────────────────────

type srEntry struct {
	frame   *protocol.Frame
	timer   *time.Timer
	retries int
	acked   bool
}

// srSender runs one retransmission timer per outstanding frame. A timeout
// or NACK resends only the frame it names; the window slides past the
// longest acknowledged prefix.
type srSender struct {
	senderState

	window     int
	timeout    time.Duration
	maxRetries int
	write      WriteFunc

	base    uint16
	next    uint16
	entries map[uint16]*srEntry
}

func newSrSender(cfg SenderConfig) *srSender {
	s := &srSender{
		window:     cfg.Window,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		write:      cfg.Write,
		entries:    make(map[uint16]*srEntry),
	}
	s.init(cfg.OnFail)
	return s
}

func (s *srSender) Send(ctx context.Context, payloads [][]byte) error {
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
		seq := s.next
		f := &protocol.Frame{Type: protocol.TypeData, Seq: seq, Payload: p}
		e := &srEntry{frame: f}
		e.timer = time.AfterFunc(s.timeout, func() { s.onTimeout(seq) })
		s.entries[seq] = e
		s.next++
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

func (s *srSender) HandleAck(seq uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil || s.closed {
		return
	}
	e, ok := s.entries[seq]
	if !ok || e.acked {
		return
	}
	e.acked = true
	e.timer.Stop()
	for {
		head, ok := s.entries[s.base]
		if !ok || !head.acked {
			break
		}
		delete(s.entries, s.base)
		s.base++
	}
	s.cond.Broadcast()
}

func (s *srSender) HandleNack(seq uint16) {
	s.mu.Lock()
	e, ok := s.entries[seq]
	if s.err != nil || s.closed || !ok || e.acked {
		s.mu.Unlock()
		return
	}
	// The peer answered, so no retry is consumed.
	f := e.frame
	e.timer.Reset(s.timeout)
	s.mu.Unlock()
	s.writeOne(f)
}

func (s *srSender) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return seqDist(s.base, s.next)
}

func (s *srSender) Window() (uint16, uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base, s.next
}

func (s *srSender) Fail(err error) {
	s.mu.Lock()
	s.failLocked(err)
	for _, e := range s.entries {
		e.timer.Stop()
	}
	s.mu.Unlock()
}

func (s *srSender) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		for _, e := range s.entries {
			e.timer.Stop()
		}
		s.cond.Broadcast()
	}
	s.mu.Unlock()
}

func (s *srSender) onTimeout(seq uint16) {
	s.mu.Lock()
	e, ok := s.entries[seq]
	if s.err != nil || s.closed || !ok || e.acked {
		s.mu.Unlock()
		return
	}
	e.retries++
	if e.retries > s.maxRetries {
		s.mu.Unlock()
		s.asyncFail(protocol.ErrPeerUnresponsive)
		return
	}
	f := e.frame
	e.timer.Reset(s.timeout)
	s.mu.Unlock()
	s.writeOne(f)
}

func (s *srSender) writeOne(f *protocol.Frame) {
	if err := s.write(f); err != nil {
		s.asyncFail(err)
	}
}

// ────────────────────────────── receiver ──────────────────────────────

// srReceiver buffers out-of-order frames inside [expected, expected+window)
// and releases contiguous runs as the gaps close. Every accepted frame is
// ACKed individually, duplicates included.
type srReceiver struct {
	window   int
	expected uint16
	buffer   map[uint16][]byte
}

func newSrReceiver(window int) *srReceiver {
	return &srReceiver{window: window, buffer: make(map[uint16][]byte)}
}

func (r *srReceiver) Accept(f *protocol.Frame) Result {
	switch {
	case seqBehind(r.expected, f.Seq):
		// Already delivered; the ACK must have been lost. Restate it.
		return Result{Replies: []*protocol.Frame{ack(f.Seq)}}
	case !inWindow(r.expected, f.Seq, r.window):
		// Beyond the receive window, drop without acknowledging.
		return Result{}
	}
	if _, dup := r.buffer[f.Seq]; !dup {
		r.buffer[f.Seq] = f.Payload
	}
	res := Result{Replies: []*protocol.Frame{ack(f.Seq)}}
	if _, have := r.buffer[r.expected]; !have {
		// A gap just showed: ask for the missing head of the window.
		res.Replies = append(res.Replies, nack(r.expected))
	}
	res.Deliver = r.drain()
	return res
}

func (r *srReceiver) AcceptCorrupt(seq uint16) Result {
	return Result{Replies: []*protocol.Frame{nack(seq)}}
}

func (r *srReceiver) Expected() uint16 {
	return r.expected
}

func (r *srReceiver) Buffered() []uint16 {
	if len(r.buffer) == 0 {
		return nil
	}
	out := make([]uint16, 0, len(r.buffer))
	for seq := range r.buffer {
		out = append(out, seq)
	}
	sort.Slice(out, func(i, j int) bool {
		return seqDist(r.expected, out[i]) < seqDist(r.expected, out[j])
	})
	return out
}

// drain releases the contiguous run starting at expected.
func (r *srReceiver) drain() [][]byte {
	var out [][]byte
	for {
		p, ok := r.buffer[r.expected]
		if !ok {
			break
		}
		delete(r.buffer, r.expected)
		r.expected++
		out = append(out, p)
	}
	return out
}
