package transport

import (
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/MigueldsBatista/projeto-redes/internal/protocol"
	"github.com/MigueldsBatista/projeto-redes/internal/util"
)

// STUN servers for ICE candidate gathering. No TURN — the transport is
// meant for direct peer connectivity with zero infrastructure cost.
var stunServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

const (
	highWaterMark = 256 * 1024 // pause sending when bufferedAmount exceeds this
	lowWaterMark  = 64 * 1024  // resume sending when bufferedAmount drops below this
	rtcInboxSize  = 256        // inbound message channel capacity
)

// RTC wraps a single PeerConnection + DataChannel pair. The signaling
// package drives the SDP/ICE exchange through the exposed methods; once the
// DataChannel opens, Conn() yields the frame connection the session runs on.
//
// The DataChannel is ordered and reliable. Loss and corruption are the
// business of the channel simulator, not of the wire.
type RTC struct {
	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel

	inbox chan []byte
	ready chan struct{}
	done  chan struct{}

	drainSignal chan struct{}
	closeOnce   sync.Once
}

// NewRTC creates a PeerConnection with a pre-negotiated DataChannel. Using
// negotiated mode (ID 0) lets both sides create the channel independently
// without relying on OnDataChannel.
func NewRTC() (*RTC, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: stunServers}},
	})
	if err != nil {
		return nil, err
	}

	ordered := true
	negotiated := true
	id := uint16(0)
	dc, err := pc.CreateDataChannel("session", &webrtc.DataChannelInit{
		Ordered:    &ordered,
		Negotiated: &negotiated,
		ID:         &id,
	})
	if err != nil {
		pc.Close()
		return nil, err
	}

	r := &RTC{
		pc:          pc,
		dc:          dc,
		inbox:       make(chan []byte, rtcInboxSize),
		ready:       make(chan struct{}),
		done:        make(chan struct{}),
		drainSignal: make(chan struct{}, 1),
	}

	// DC open gate.
	var openOnce sync.Once
	dc.OnOpen(func() {
		openOnce.Do(func() { close(r.ready) })
	})

	dc.OnClose(func() {
		util.LogDebug("data channel closed")
		r.closeOnce.Do(func() { close(r.done) })
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		buf := append([]byte(nil), msg.Data...)
		select {
		case r.inbox <- buf:
		case <-r.done:
		}
	})

	dc.SetBufferedAmountLowThreshold(uint64(lowWaterMark))
	dc.OnBufferedAmountLow(func() {
		select {
		case r.drainSignal <- struct{}{}:
		default:
		}
	})

	// Informational only: DC state drives the lifecycle.
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("peer connection state: %s", state.String())
	})

	return r, nil
}

// Ready returns a channel that is closed when the DataChannel is open.
func (r *RTC) Ready() <-chan struct{} {
	return r.ready
}

// Done returns a channel that is closed when the DataChannel shuts down.
func (r *RTC) Done() <-chan struct{} {
	return r.done
}

// Conn returns the frame connection over the opened DataChannel.
func (r *RTC) Conn() Conn {
	return (*rtcConn)(r)
}

// Close shuts down the DataChannel and PeerConnection.
func (r *RTC) Close() error {
	r.closeOnce.Do(func() { close(r.done) })
	dcErr := r.dc.Close()
	pcErr := r.pc.Close()
	if dcErr != nil {
		return dcErr
	}
	return pcErr
}

// ---------------------------------------------------------------------------
// Signaling surface
// ---------------------------------------------------------------------------

// CreateOffer generates an SDP offer.
func (r *RTC) CreateOffer() (webrtc.SessionDescription, error) {
	return r.pc.CreateOffer(nil)
}

// CreateAnswer generates an SDP answer.
func (r *RTC) CreateAnswer() (webrtc.SessionDescription, error) {
	return r.pc.CreateAnswer(nil)
}

// SetLocalDescription applies the local SDP.
func (r *RTC) SetLocalDescription(sdp webrtc.SessionDescription) error {
	return r.pc.SetLocalDescription(sdp)
}

// SetRemoteDescription applies the remote SDP.
func (r *RTC) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	return r.pc.SetRemoteDescription(sdp)
}

// OnICECandidate registers a callback invoked whenever a new local ICE
// candidate is gathered. A nil candidate signals the end of gathering.
func (r *RTC) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	r.pc.OnICECandidate(fn)
}

// AddICECandidate adds a remote ICE candidate received through signaling.
func (r *RTC) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return r.pc.AddICECandidate(candidate)
}

// ---------------------------------------------------------------------------
// Frame connection
// ---------------------------------------------------------------------------

// rtcConn is the Conn view of an RTC pair.
type rtcConn RTC

func (c *rtcConn) ReadFrame() (*protocol.Frame, error) {
	// Messages received before the close must still be readable.
	select {
	case b := <-c.inbox:
		return protocol.Decode(b)
	default:
	}
	select {
	case b := <-c.inbox:
		return protocol.Decode(b)
	case <-c.done:
		return nil, protocol.ErrClosed
	}
}

func (c *rtcConn) WriteFrame(f *protocol.Frame) error {
	return c.WriteRaw(protocol.Encode(f))
}

func (c *rtcConn) WriteRaw(b []byte) error {
	select {
	case <-c.ready:
	case <-c.done:
		return protocol.ErrClosed
	}

	// Backpressure: wait for the buffered amount to drain before piling on.
	if c.dc.BufferedAmount() > uint64(highWaterMark) {
		select {
		case <-c.drainSignal:
		case <-c.done:
			return protocol.ErrClosed
		}
	}
	return c.dc.Send(b)
}

func (c *rtcConn) RemoteAddr() string {
	return "webrtc:" + c.dc.Label()
}

func (c *rtcConn) Close() error {
	return (*RTC)(c).Close()
}
