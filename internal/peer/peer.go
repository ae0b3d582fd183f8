// Package peer composes a transport connection, the handshake, the
// reliability engine, and the fragmenter into one full-duplex session
// endpoint. A Peer is created as the initiator (client) or the responder
// (server) of exactly one session and dies with it.
package peer

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MigueldsBatista/projeto-redes/internal/arq"
	"github.com/MigueldsBatista/projeto-redes/internal/fragment"
	"github.com/MigueldsBatista/projeto-redes/internal/handshake"
	"github.com/MigueldsBatista/projeto-redes/internal/protocol"
	"github.com/MigueldsBatista/projeto-redes/internal/session"
	"github.com/MigueldsBatista/projeto-redes/internal/transport"
	"github.com/MigueldsBatista/projeto-redes/internal/util"
)

// EventKind classifies session lifecycle events.
type EventKind int

const (
	EventEstablished EventKind = iota
	EventClosed
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventEstablished:
		return "established"
	case EventClosed:
		return "closed"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event reports a lifecycle transition. Err is set for EventFailed.
type Event struct {
	Kind EventKind
	Err  error
}

// Options are the local, non-negotiated knobs of a peer.
type Options struct {
	RetryTimeout   time.Duration // retransmission timer interval
	MaxRetries     int           // retries before the peer is declared unresponsive
	DisconnectWait time.Duration // how long to wait for the DISCONNECT ack
	CorruptLimit   int           // consecutive corrupted frames before giving up on the channel
	Table          *session.Table
}

// item is one read-loop observation: a frame, possibly one that failed its
// checksum but kept a readable header.
type item struct {
	f       *protocol.Frame
	corrupt bool
}

// Peer is one endpoint of an established session.
type Peer struct {
	conn transport.Conn
	opts Options
	tag  uint32

	sess     *session.Session
	sender   arq.Sender
	receiver arq.Receiver
	asm      *fragment.Assembler

	inbox    chan item
	messages chan []byte
	events   chan Event

	ctx    context.Context
	cancel context.CancelFunc

	established   atomic.Bool
	disconnecting atomic.Bool
	discAck       chan struct{}
	discAckOnce   sync.Once
	closeOnce     sync.Once

	// Owned by the inbox consumer (handshake, then dispatch loop).
	corruptStreak int

	// New DATA sends carry strictly increasing sequence numbers; anything
	// else on the write path is a retransmission.
	sentMu  sync.Mutex
	sentAny bool
	nextSeq uint16

	errMu    sync.Mutex
	lastFail error
}

// NewInitiator dials one session as the client side: it starts the read
// loop, runs the handshake, and returns an established peer.
func NewInitiator(ctx context.Context, conn transport.Conn, req protocol.SynPayload, policy handshake.RetryPolicy, opts Options) (*Peer, error) {
	p := newPeer(ctx, conn, opts)
	go p.readLoop()

	out, err := handshake.Initiate(p.ctx, conn, p, req, policy)
	if err != nil {
		p.abandon()
		return nil, err
	}
	if err := p.establish(out); err != nil {
		p.abandon()
		return nil, err
	}
	return p, nil
}

// NewResponder answers one inbound connection as the server side.
func NewResponder(ctx context.Context, conn transport.Conn, caps handshake.Caps, policy handshake.RetryPolicy, opts Options) (*Peer, error) {
	p := newPeer(ctx, conn, opts)
	go p.readLoop()

	out, err := handshake.Respond(p.ctx, conn, p, caps, uuid.NewString, policy)
	if err != nil {
		p.abandon()
		return nil, err
	}
	if err := p.establish(out); err != nil {
		p.abandon()
		return nil, err
	}
	return p, nil
}

func newPeer(ctx context.Context, conn transport.Conn, opts Options) *Peer {
	pCtx, cancel := context.WithCancel(ctx)
	return &Peer{
		conn:     conn,
		opts:     opts,
		tag:      util.PeerTag(conn.RemoteAddr()),
		inbox:    make(chan item, 64),
		messages: make(chan []byte, 16),
		events:   make(chan Event, 8),
		discAck:  make(chan struct{}),
		ctx:      pCtx,
		cancel:   cancel,
	}
}

// Next feeds the handshake choreography from the read loop. Corrupted
// frames are worthless before a session exists and are dropped here.
func (p *Peer) Next(ctx context.Context) (*protocol.Frame, error) {
	for {
		select {
		case it := <-p.inbox:
			if it.corrupt {
				util.LogDebug("[%08x] dropping corrupted frame during handshake", p.tag)
				continue
			}
			return it.f, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.ctx.Done():
			return nil, protocol.ErrClosed
		}
	}
}

// establish builds the reliability engine from the negotiated parameters
// and hands the inbox over to the dispatch loop.
func (p *Peer) establish(out *handshake.Outcome) error {
	sess := session.NewWithID(out.SessionID, p.conn.RemoteAddr(), out.Params)
	sess.ClientID = out.ClientID
	sess.SetState(session.StateEstablished)
	p.sess = sess

	snd, err := arq.NewSender(out.Params.Protocol, arq.SenderConfig{
		Window:     out.Params.Window,
		Timeout:    p.opts.RetryTimeout,
		MaxRetries: p.opts.MaxRetries,
		Write: func(f *protocol.Frame) error {
			p.trackSent(f.Seq)
			return p.writeFrame(f)
		},
		OnFail: func(err error) { p.shutdown(err) },
	})
	if err != nil {
		return err
	}
	rcv, err := arq.NewReceiver(out.Params.Protocol, out.Params.Window)
	if err != nil {
		snd.Close()
		return err
	}

	p.sender = snd
	p.receiver = rcv
	p.asm = &fragment.Assembler{}
	p.established.Store(true)

	if p.opts.Table != nil {
		p.opts.Table.Register(sess)
	}
	util.Stats.AddSession()
	util.LogSuccess("[%08x] session %s established: mode=%s proto=%s max_size=%d window=%d",
		p.tag, sess.ID, sess.Params.Mode, sess.Params.Protocol, sess.Params.MaxSize, sess.Params.Window)
	p.emit(Event{Kind: EventEstablished})

	go p.dispatchLoop()

	// A cancelled parent context must still release the connection, or the
	// read loop would stay parked on a dead transport.
	go func() {
		<-p.ctx.Done()
		p.close(Event{Kind: EventClosed})
	}()
	return nil
}

// ─────────────────────────────── sending ───────────────────────────────

// Send fragments one message and blocks until the peer acknowledged all of
// it, or the session dies.
func (p *Peer) Send(ctx context.Context, msg []byte) error {
	if !p.established.Load() || p.ctx.Err() != nil {
		return protocol.ErrClosed
	}
	chunks := fragment.Split(msg, p.sess.Params.MaxSize)
	util.LogDebug("[%08x] sending %d byte message in %d fragment(s)", p.tag, len(msg), len(chunks))

	if err := p.sender.Send(ctx, chunks); err != nil {
		return err
	}
	util.Stats.AddSent(len(msg))
	return nil
}

// Disconnect ends the session politely: stop sending, announce the
// disconnect, and give the peer a moment to acknowledge it.
func (p *Peer) Disconnect() {
	if !p.established.Load() {
		p.abandon()
		return
	}
	p.disconnecting.Store(true)
	p.sender.Close()

	util.LogInfo("[%08x] disconnecting from session %s", p.tag, p.sess.ID)
	if err := p.writeFrame(&protocol.Frame{Type: protocol.TypeDisconnect}); err == nil {
		select {
		case <-p.discAck:
			util.LogInfo("[%08x] disconnect acknowledged", p.tag)
		case <-time.After(p.opts.DisconnectWait):
			util.LogWarning("[%08x] no disconnect ack after %s, closing anyway", p.tag, p.opts.DisconnectWait)
		case <-p.ctx.Done():
		}
	}
	p.close(Event{Kind: EventClosed})
}

// Abort declares the channel hopeless: it warns the peer with a channel
// error marker and kills the session on the spot.
func (p *Peer) Abort() {
	util.LogWarning("[%08x] aborting session, notifying peer of channel failure", p.tag)
	p.writeFrame(&protocol.Frame{Type: protocol.TypeChannelError})
	p.shutdown(protocol.ErrChannelFault)
}

// ─────────────────────────────── receiving ───────────────────────────────

func (p *Peer) readLoop() {
	for {
		f, err := p.conn.ReadFrame()
		switch {
		case err == nil:
			select {
			case p.inbox <- item{f: f}:
			case <-p.ctx.Done():
				return
			}
		case protocol.IsDecodeKind(err, protocol.ChecksumMismatch) && f != nil:
			select {
			case p.inbox <- item{f: f, corrupt: true}:
			case <-p.ctx.Done():
				return
			}
		default:
			if p.ctx.Err() == nil {
				util.LogDebug("[%08x] read loop ending: %v", p.tag, err)
			}
			p.shutdown(err)
			return
		}
	}
}

func (p *Peer) dispatchLoop() {
	for {
		select {
		case it := <-p.inbox:
			if it.corrupt {
				p.handleCorrupt(it.f)
				continue
			}
			p.corruptStreak = 0
			p.dispatch(it.f)
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Peer) dispatch(f *protocol.Frame) {
	util.Stats.AddFrameRecv()
	switch f.Type {
	case protocol.TypeData:
		p.handleData(f)
	case protocol.TypeAck:
		if len(f.Payload) > 0 {
			p.handleLateSynAck(f)
			return
		}
		if p.disconnecting.Load() {
			p.discAckOnce.Do(func() { close(p.discAck) })
			return
		}
		p.sender.HandleAck(f.Seq)
	case protocol.TypeNack:
		util.Stats.AddNack()
		util.LogDebug("[%08x] nack for seq=%d", p.tag, f.Seq)
		p.sender.HandleNack(f.Seq)
	case protocol.TypeAckFinal, protocol.TypeSyn:
		// Stale handshake traffic, e.g. a replayed SYN or a duplicate
		// ACK_FINAL. Harmless.
		util.LogDebug("[%08x] ignoring stale %s frame", p.tag, protocol.TypeName(f.Type))
	case protocol.TypeDisconnect:
		util.LogInfo("[%08x] peer disconnected from session %s", p.tag, p.sess.ID)
		p.writeFrame(&protocol.Frame{Type: protocol.TypeAck, Seq: f.Seq})
		p.close(Event{Kind: EventClosed})
	case protocol.TypeChannelError:
		util.LogError("[%08x] peer reports an unusable channel, dropping session %s", p.tag, p.sess.ID)
		p.shutdown(protocol.ErrChannelFault)
	}
}

func (p *Peer) handleData(f *protocol.Frame) {
	res := p.receiver.Accept(f)
	for _, r := range res.Replies {
		p.writeFrame(r)
	}
	util.LogDebug("[WINDOW] [%08x] expected=%d buffered=%v", p.tag, p.receiver.Expected(), p.receiver.Buffered())

	for _, payload := range res.Deliver {
		msg, done, err := p.asm.Feed(payload)
		if err != nil {
			util.LogError("[%08x] fragment stream broken: %v", p.tag, err)
			p.shutdown(err)
			return
		}
		if !done {
			continue
		}
		util.Stats.AddRecv(len(msg))
		select {
		case p.messages <- msg:
		case <-p.ctx.Done():
			return
		}
	}
}

// handleCorrupt reacts to a frame whose payload failed the checksum. One
// bad frame is the receiver's cue to NACK; a long streak means the channel
// itself is broken and the session cannot survive on it.
func (p *Peer) handleCorrupt(f *protocol.Frame) {
	util.Stats.AddCorrupt()
	if f.Type != protocol.TypeData {
		util.LogDebug("[%08x] corrupted %s frame dropped", p.tag, protocol.TypeName(f.Type))
		return
	}

	p.corruptStreak++
	util.LogWarning("[%08x] checksum mismatch on seq=%d (%d consecutive)", p.tag, f.Seq, p.corruptStreak)
	if p.corruptStreak >= p.opts.CorruptLimit {
		util.LogError("[%08x] %d consecutive corrupted frames, declaring channel unusable", p.tag, p.corruptStreak)
		p.writeFrame(&protocol.Frame{Type: protocol.TypeChannelError})
		p.shutdown(protocol.ErrChannelFault)
		return
	}

	res := p.receiver.AcceptCorrupt(f.Seq)
	for _, r := range res.Replies {
		p.writeFrame(r)
	}
}

// handleLateSynAck fields a retransmitted SYN-ACK after establishment: the
// responder never saw our ACK_FINAL, so send it again.
func (p *Peer) handleLateSynAck(f *protocol.Frame) {
	var resp protocol.SynAckPayload
	if err := json.Unmarshal(f.Payload, &resp); err != nil || resp.SessionID == "" {
		util.LogDebug("[%08x] ignoring stray handshake frame", p.tag)
		return
	}
	if resp.SessionID != p.sess.ID {
		util.LogError("[%08x] syn-ack for foreign session %s, expected %s", p.tag, resp.SessionID, p.sess.ID)
		p.shutdown(protocol.ErrSessionMismatch)
		return
	}
	body, err := json.Marshal(protocol.AckFinalPayload{SessionID: p.sess.ID, Message: "connection established"})
	if err != nil {
		return
	}
	p.writeFrame(&protocol.Frame{Type: protocol.TypeAckFinal, Payload: body})
}

// ─────────────────────────────── plumbing ───────────────────────────────

func (p *Peer) writeFrame(f *protocol.Frame) error {
	err := p.conn.WriteFrame(f)
	if err != nil {
		if p.ctx.Err() == nil {
			util.LogDebug("[%08x] write failed: %v", p.tag, err)
		}
		return err
	}
	util.Stats.AddFrameSent()
	return nil
}

func (p *Peer) trackSent(seq uint16) {
	p.sentMu.Lock()
	if !p.sentAny || seq == p.nextSeq {
		p.sentAny = true
		p.nextSeq = seq + 1
	} else {
		util.Stats.AddRetransmit()
	}
	p.sentMu.Unlock()
}

func (p *Peer) emit(e Event) {
	select {
	case p.events <- e:
	default:
		util.LogDebug("[%08x] event feed full, dropping %s", p.tag, e.Kind)
	}
}

// shutdown kills the session because of err.
func (p *Peer) shutdown(err error) {
	p.close(Event{Kind: EventFailed, Err: err})
}

// abandon drops a connection that never became a session.
func (p *Peer) abandon() {
	p.closeOnce.Do(func() {
		p.cancel()
		p.conn.Close()
	})
}

func (p *Peer) close(e Event) {
	p.closeOnce.Do(func() {
		p.errMu.Lock()
		p.lastFail = e.Err
		p.errMu.Unlock()
		if p.sess != nil {
			p.sess.SetState(session.StateClosed)
			if p.opts.Table != nil {
				p.opts.Table.Remove(p.sess.Addr)
			}
			util.Stats.RemoveSession()
		}
		if p.sender != nil {
			if e.Err != nil {
				p.sender.Fail(e.Err)
			} else {
				p.sender.Close()
			}
		}
		p.cancel()
		p.conn.Close()

		if e.Kind == EventFailed && e.Err != nil {
			util.LogError("[%08x] session ended: %v", p.tag, e.Err)
		} else {
			util.LogInfo("[%08x] session closed", p.tag)
		}
		p.emit(e)
	})
}

// ─────────────────────────────── accessors ───────────────────────────────

// Messages yields fully reassembled inbound messages. The channel is never
// closed; select against Done.
func (p *Peer) Messages() <-chan []byte {
	return p.messages
}

// Events yields lifecycle transitions.
func (p *Peer) Events() <-chan Event {
	return p.events
}

// Done is closed when the session is over.
func (p *Peer) Done() <-chan struct{} {
	return p.ctx.Done()
}

// Err reports why the session ended, or nil after a clean close.
func (p *Peer) Err() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.lastFail
}

// Session exposes the negotiated session entity.
func (p *Peer) Session() *session.Session {
	return p.sess
}

// WindowInfo reports the sender window for display purposes.
func (p *Peer) WindowInfo() (base, next uint16, inFlight int) {
	base, next = p.sender.Window()
	return base, next, p.sender.InFlight()
}
