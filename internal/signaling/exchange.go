package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/MigueldsBatista/projeto-redes/internal/transport"
	"github.com/MigueldsBatista/projeto-redes/internal/util"
)

// message is the JSON structure exchanged over the WebSocket.
type message struct {
	Type      string `json:"type"`
	SDP       string `json:"sdp,omitempty"`
	Candidate string `json:"candidate,omitempty"` // JSON-encoded ICECandidateInit
}

const (
	msgTypeOffer     = "offer"
	msgTypeAnswer    = "answer"
	msgTypeCandidate = "candidate"
)

// hostExchange performs the SDP/ICE exchange on the offering side:
//   - Create an offer and send it over the WebSocket
//   - Receive the answer and remote ICE candidates
//   - Block until the DataChannel opens or an error occurs
func hostExchange(ctx context.Context, wsConn *websocket.Conn, rtc *transport.RTC) error {
	wsSend := sender(wsConn, rtc)
	trickleICE(rtc, wsSend)

	offer, err := rtc.CreateOffer()
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := rtc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	wsSend(message{Type: msgTypeOffer, SDP: offer.SDP})
	util.LogDebug("[SIGNALING] offer sent, waiting for answer")

	errCh := make(chan error, 1)
	go func() {
		for {
			var msg message
			if err := wsConn.ReadJSON(&msg); err != nil {
				errCh <- err
				return
			}
			switch msg.Type {
			case msgTypeAnswer:
				if err := rtc.SetRemoteDescription(webrtc.SessionDescription{
					Type: webrtc.SDPTypeAnswer,
					SDP:  msg.SDP,
				}); err != nil {
					util.LogWarning("[SIGNALING] set remote description: %v", err)
				}
			case msgTypeCandidate:
				addCandidate(rtc, msg.Candidate)
			}
		}
	}()

	return waitReady(ctx, rtc, errCh)
}

// clientExchange performs the SDP/ICE exchange on the answering side:
//   - Receive the offer
//   - Create an answer and send it over the WebSocket
//   - Exchange ICE candidates
//   - Block until the DataChannel opens or an error occurs
func clientExchange(ctx context.Context, wsConn *websocket.Conn, rtc *transport.RTC) error {
	wsSend := sender(wsConn, rtc)
	trickleICE(rtc, wsSend)

	errCh := make(chan error, 1)
	go func() {
		for {
			var msg message
			if err := wsConn.ReadJSON(&msg); err != nil {
				errCh <- err
				return
			}
			switch msg.Type {
			case msgTypeOffer:
				if err := rtc.SetRemoteDescription(webrtc.SessionDescription{
					Type: webrtc.SDPTypeOffer,
					SDP:  msg.SDP,
				}); err != nil {
					util.LogWarning("[SIGNALING] set remote description: %v", err)
					continue
				}
				answer, err := rtc.CreateAnswer()
				if err != nil {
					util.LogWarning("[SIGNALING] create answer: %v", err)
					continue
				}
				if err := rtc.SetLocalDescription(answer); err != nil {
					util.LogWarning("[SIGNALING] set local description: %v", err)
					continue
				}
				wsSend(message{Type: msgTypeAnswer, SDP: answer.SDP})
				util.LogDebug("[SIGNALING] answer sent")

			case msgTypeCandidate:
				addCandidate(rtc, msg.Candidate)
			}
		}
	}()

	return waitReady(ctx, rtc, errCh)
}

// sender returns a mutex-guarded JSON writer for the WebSocket. Send
// failures after the DataChannel opened are expected: the other side
// drops the side channel as soon as it sees the channel come up.
func sender(wsConn *websocket.Conn, rtc *transport.RTC) func(message) {
	var mu sync.Mutex
	return func(msg message) {
		mu.Lock()
		defer mu.Unlock()
		if err := wsConn.WriteJSON(msg); err != nil {
			select {
			case <-rtc.Ready():
			default:
				util.LogWarning("[SIGNALING] send failed: %v", err)
			}
		}
	}
}

// trickleICE forwards local ICE candidates to the peer as they are
// gathered. A nil candidate marks the end of gathering.
func trickleICE(rtc *transport.RTC, wsSend func(message)) {
	rtc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		data, _ := json.Marshal(c.ToJSON())
		wsSend(message{Type: msgTypeCandidate, Candidate: string(data)})
	})
}

func addCandidate(rtc *transport.RTC, raw string) {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(raw), &init); err != nil {
		return
	}
	if err := rtc.AddICECandidate(init); err != nil {
		util.LogWarning("[SIGNALING] add ice candidate: %v", err)
	}
}

func waitReady(ctx context.Context, rtc *transport.RTC, errCh <-chan error) error {
	select {
	case <-rtc.Ready():
		return nil
	case err := <-errCh:
		// A read error after the channel opened just means the peer
		// hung up the side channel.
		select {
		case <-rtc.Ready():
			return nil
		default:
			return fmt.Errorf("signaling read: %w", err)
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}
