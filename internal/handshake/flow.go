package handshake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MigueldsBatista/projeto-redes/internal/protocol"
	"github.com/MigueldsBatista/projeto-redes/internal/session"
	"github.com/MigueldsBatista/projeto-redes/internal/util"
)

// Initiate runs the client side: send SYN, wait for the SYN-ACK, answer
// with ACK_FINAL. A lost SYN or SYN-ACK is covered by retransmitting the
// SYN up to policy.MaxRetries times.
func Initiate(ctx context.Context, w FrameWriter, src FrameSource, req protocol.SynPayload, policy RetryPolicy) (*Outcome, error) {
	synBody, err := json.Marshal(req)
	if err != nil {
		return nil, &protocol.HandshakeError{Reason: "encode syn", Err: err}
	}

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			util.LogWarning("[HANDSHAKE] no syn-ack yet, retransmitting syn (attempt %d/%d)", attempt, policy.MaxRetries)
		}
		if err := w.WriteFrame(&protocol.Frame{Type: protocol.TypeSyn, Payload: synBody}); err != nil {
			return nil, &protocol.HandshakeError{Reason: "send syn", Err: err}
		}

		synAck, err := waitFor(ctx, src, policy, protocol.TypeAck)
		if errors.Is(err, context.DeadlineExceeded) {
			continue
		}
		if err != nil {
			return nil, &protocol.HandshakeError{Reason: "wait syn-ack", Err: err}
		}

		var resp protocol.SynAckPayload
		if err := json.Unmarshal(synAck.Payload, &resp); err != nil {
			return nil, &protocol.HandshakeError{Reason: "malformed syn-ack", Err: err}
		}
		if resp.Status != protocol.StatusOK {
			return nil, &protocol.HandshakeError{Reason: fmt.Sprintf("rejected by responder: %s", resp.Message)}
		}

		ackBody, err := json.Marshal(protocol.AckFinalPayload{
			SessionID: resp.SessionID,
			Message:   "connection established",
		})
		if err != nil {
			return nil, &protocol.HandshakeError{Reason: "encode ack-final", Err: err}
		}
		if err := w.WriteFrame(&protocol.Frame{Type: protocol.TypeAckFinal, Payload: ackBody}); err != nil {
			return nil, &protocol.HandshakeError{Reason: "send ack-final", Err: err}
		}

		return &Outcome{SessionID: resp.SessionID, ClientID: req.ClientID, Params: paramsFromSynAck(resp)}, nil
	}

	return nil, &protocol.HandshakeError{Reason: "no syn-ack", Err: protocol.ErrPeerUnresponsive}
}

// Respond runs the server side: wait for a SYN, negotiate, send the
// SYN-ACK, and wait for the matching ACK_FINAL. A lost SYN-ACK or
// ACK_FINAL is covered by retransmitting the SYN-ACK.
//
// assignID mints the session id once the request is acceptable.
func Respond(ctx context.Context, w FrameWriter, src FrameSource, caps Caps, assignID func() string, policy RetryPolicy) (*Outcome, error) {
	// Bound the wait for the opening SYN so a silent connection cannot
	// hold a half-open slot forever.
	synWait := RetryPolicy{Timeout: policy.Timeout * time.Duration(policy.MaxRetries+1)}
	syn, err := waitFor(ctx, src, synWait, protocol.TypeSyn)
	if err != nil {
		return nil, &protocol.HandshakeError{Reason: "wait syn", Err: err}
	}

	var req protocol.SynPayload
	if err := json.Unmarshal(syn.Payload, &req); err != nil {
		reject(w, "malformed syn")
		return nil, &protocol.HandshakeError{Reason: "malformed syn", Err: err}
	}

	params, reason := Negotiate(req, caps)
	if reason != "" {
		reject(w, reason)
		return nil, &protocol.HandshakeError{Reason: reason}
	}

	id := assignID()
	accept, err := json.Marshal(protocol.SynAckPayload{
		Status:        protocol.StatusOK,
		OperationMode: params.Mode,
		MaxSize:       params.MaxSize,
		Protocol:      params.Protocol,
		SessionID:     id,
		WindowSize:    params.Window,
		Message:       "parameters accepted",
	})
	if err != nil {
		return nil, &protocol.HandshakeError{Reason: "encode syn-ack", Err: err}
	}

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			util.LogWarning("[HANDSHAKE] no ack-final yet, retransmitting syn-ack (attempt %d/%d)", attempt, policy.MaxRetries)
		}
		if err := w.WriteFrame(&protocol.Frame{Type: protocol.TypeAck, Payload: accept}); err != nil {
			return nil, &protocol.HandshakeError{Reason: "send syn-ack", Err: err}
		}

		fin, err := waitFor(ctx, src, policy, protocol.TypeAckFinal, protocol.TypeSyn)
		if errors.Is(err, context.DeadlineExceeded) {
			continue
		}
		if err != nil {
			return nil, &protocol.HandshakeError{Reason: "wait ack-final", Err: err}
		}
		if fin.Type == protocol.TypeSyn {
			// The initiator never saw our SYN-ACK. Send it again.
			continue
		}

		var fp protocol.AckFinalPayload
		if err := json.Unmarshal(fin.Payload, &fp); err != nil {
			return nil, &protocol.HandshakeError{Reason: "malformed ack-final", Err: err}
		}
		if fp.SessionID != id {
			return nil, protocol.ErrSessionMismatch
		}

		return &Outcome{SessionID: id, ClientID: req.ClientID, Params: params}, nil
	}

	return nil, &protocol.HandshakeError{Reason: "no ack-final", Err: protocol.ErrPeerUnresponsive}
}

// waitFor reads frames until one of the wanted types shows up or the
// policy timeout passes. Other frame types are noise at this stage and are
// dropped with a log line.
func waitFor(ctx context.Context, src FrameSource, policy RetryPolicy, want ...uint8) (*protocol.Frame, error) {
	waitCtx, cancel := context.WithTimeout(ctx, policy.Timeout)
	defer cancel()

	for {
		f, err := src.Next(waitCtx)
		if err != nil {
			return nil, err
		}
		for _, t := range want {
			if f.Type == t {
				return f, nil
			}
		}
		util.LogDebug("[HANDSHAKE] ignoring unexpected %s frame", protocol.TypeName(f.Type))
	}
}

// reject tells the initiator why the request was refused. Failures here do
// not matter: the session is over either way.
func reject(w FrameWriter, reason string) {
	body, err := json.Marshal(protocol.SynAckPayload{
		Status:  protocol.StatusRejected,
		Message: reason,
	})
	if err != nil {
		return
	}
	if err := w.WriteFrame(&protocol.Frame{Type: protocol.TypeAck, Payload: body}); err != nil {
		util.LogDebug("[HANDSHAKE] could not deliver rejection: %v", err)
	}
}

func paramsFromSynAck(resp protocol.SynAckPayload) session.Params {
	return session.Params{
		Mode:     resp.OperationMode,
		Protocol: resp.Protocol,
		MaxSize:  resp.MaxSize,
		Window:   resp.WindowSize,
	}
}
