package handshake

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MigueldsBatista/projeto-redes/internal/protocol"
	"github.com/MigueldsBatista/projeto-redes/internal/session"
)

// scriptEnd is a FrameSource/FrameWriter whose traffic the test controls.
type scriptEnd struct {
	in  chan *protocol.Frame
	out chan *protocol.Frame
}

func newScriptEnd() *scriptEnd {
	return &scriptEnd{
		in:  make(chan *protocol.Frame, 16),
		out: make(chan *protocol.Frame, 16),
	}
}

func (e *scriptEnd) Next(ctx context.Context) (*protocol.Frame, error) {
	select {
	case f := <-e.in:
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *scriptEnd) WriteFrame(f *protocol.Frame) error {
	e.out <- f
	return nil
}

// linkedEnds wires two ends back to back for full exchanges.
func linkedEnds() (*scriptEnd, *scriptEnd) {
	ab := make(chan *protocol.Frame, 16)
	ba := make(chan *protocol.Frame, 16)
	a := &scriptEnd{in: ba, out: ab}
	b := &scriptEnd{in: ab, out: ba}
	return a, b
}

func expectFrame(t *testing.T, e *scriptEnd, wantType uint8) *protocol.Frame {
	t.Helper()
	select {
	case f := <-e.out:
		require.Equal(t, wantType, f.Type, "got %s", protocol.TypeName(f.Type))
		return f
	case <-time.After(time.Second):
		t.Fatalf("no %s frame arrived", protocol.TypeName(wantType))
		return nil
	}
}

var testCaps = Caps{MaxSize: 1024, MaxWindow: 5, DefaultWindow: 4}

func testPolicy() RetryPolicy {
	return RetryPolicy{Timeout: 200 * time.Millisecond, MaxRetries: 3}
}

func TestNegotiate(t *testing.T) {
	cases := []struct {
		name   string
		req    protocol.SynPayload
		want   session.Params
		reject string
	}{
		{
			name: "burst window clamped",
			req:  protocol.SynPayload{OperationMode: protocol.ModeBurst, MaxSize: 500, Protocol: protocol.ProtoGBN, WindowSize: 10},
			want: session.Params{Mode: protocol.ModeBurst, Protocol: protocol.ProtoGBN, MaxSize: 500, Window: 5},
		},
		{
			name: "max size clamped",
			req:  protocol.SynPayload{OperationMode: protocol.ModeBurst, MaxSize: 4096, Protocol: protocol.ProtoSR, WindowSize: 3},
			want: session.Params{Mode: protocol.ModeBurst, Protocol: protocol.ProtoSR, MaxSize: 1024, Window: 3},
		},
		{
			name: "window defaults when absent",
			req:  protocol.SynPayload{OperationMode: protocol.ModeBurst, MaxSize: 64, Protocol: protocol.ProtoSR},
			want: session.Params{Mode: protocol.ModeBurst, Protocol: protocol.ProtoSR, MaxSize: 64, Window: 4},
		},
		{
			name: "step-by-step forces window one",
			req:  protocol.SynPayload{OperationMode: protocol.ModeStepByStep, MaxSize: 64, Protocol: protocol.ProtoGBN, WindowSize: 8},
			want: session.Params{Mode: protocol.ModeStepByStep, Protocol: protocol.ProtoGBN, MaxSize: 64, Window: 1},
		},
		{
			name:   "unknown mode rejected",
			req:    protocol.SynPayload{OperationMode: "turbo", MaxSize: 64, Protocol: protocol.ProtoGBN},
			reject: `unsupported operation mode "turbo"`,
		},
		{
			name:   "unknown protocol rejected",
			req:    protocol.SynPayload{OperationMode: protocol.ModeBurst, MaxSize: 64, Protocol: "tcp"},
			reject: `unsupported protocol "tcp"`,
		},
		{
			name:   "non-positive max size rejected",
			req:    protocol.SynPayload{OperationMode: protocol.ModeBurst, MaxSize: 0, Protocol: protocol.ProtoGBN},
			reject: "invalid max_size 0",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, reason := Negotiate(tc.req, testCaps)
			require.Equal(t, tc.reject, reason)
			if tc.reject == "" {
				require.Equal(t, tc.want, got)
			}
		})
	}
}

func TestHandshakeFullExchange(t *testing.T) {
	initEnd, respEnd := linkedEnds()

	respDone := make(chan *Outcome, 1)
	go func() {
		out, err := Respond(context.Background(), respEnd, respEnd, testCaps,
			func() string { return "sess-1" }, testPolicy())
		require.NoError(t, err)
		respDone <- out
	}()

	req := protocol.SynPayload{
		OperationMode: protocol.ModeBurst,
		MaxSize:       2048,
		Protocol:      protocol.ProtoSR,
		WindowSize:    10,
		ClientID:      "client-a",
	}
	got, err := Initiate(context.Background(), initEnd, initEnd, req, testPolicy())
	require.NoError(t, err)

	var respOut *Outcome
	select {
	case respOut = <-respDone:
	case <-time.After(time.Second):
		t.Fatal("responder never finished")
	}

	// Both sides agree on the clamped parameters and the session id.
	require.Equal(t, "sess-1", got.SessionID)
	require.Equal(t, respOut.SessionID, got.SessionID)
	require.Equal(t, respOut.Params, got.Params)
	require.Equal(t, 1024, got.Params.MaxSize)
	require.Equal(t, 5, got.Params.Window)
}

func TestHandshakeRejectionReachesInitiator(t *testing.T) {
	initEnd, respEnd := linkedEnds()

	go Respond(context.Background(), respEnd, respEnd, testCaps,
		func() string { return "sess-1" }, testPolicy())

	req := protocol.SynPayload{OperationMode: "turbo", MaxSize: 64, Protocol: protocol.ProtoGBN}
	_, err := Initiate(context.Background(), initEnd, initEnd, req, testPolicy())

	var hs *protocol.HandshakeError
	require.ErrorAs(t, err, &hs)
	require.Contains(t, hs.Reason, "unsupported operation mode")
}

func TestInitiateRetransmitsSynOnSilence(t *testing.T) {
	end := newScriptEnd()

	policy := RetryPolicy{Timeout: 20 * time.Millisecond, MaxRetries: 2}
	req := protocol.SynPayload{OperationMode: protocol.ModeBurst, MaxSize: 64, Protocol: protocol.ProtoGBN}
	_, err := Initiate(context.Background(), end, end, req, policy)

	require.ErrorIs(t, err, protocol.ErrPeerUnresponsive)
	// Initial SYN plus one per retry.
	require.Len(t, end.out, 3)
}

func TestRespondRetransmitsSynAckUntilAckFinal(t *testing.T) {
	end := newScriptEnd()
	policy := RetryPolicy{Timeout: 30 * time.Millisecond, MaxRetries: 3}

	done := make(chan *Outcome, 1)
	go func() {
		out, err := Respond(context.Background(), end, end, testCaps,
			func() string { return "sess-9" }, policy)
		require.NoError(t, err)
		done <- out
	}()

	syn, _ := json.Marshal(protocol.SynPayload{
		OperationMode: protocol.ModeBurst, MaxSize: 64, Protocol: protocol.ProtoSR, WindowSize: 2,
	})
	end.in <- &protocol.Frame{Type: protocol.TypeSyn, Payload: syn}

	// First SYN-ACK goes unanswered; the responder must try again.
	first := expectFrame(t, end, protocol.TypeAck)
	second := expectFrame(t, end, protocol.TypeAck)
	require.Equal(t, first.Payload, second.Payload)

	fin, _ := json.Marshal(protocol.AckFinalPayload{SessionID: "sess-9"})
	end.in <- &protocol.Frame{Type: protocol.TypeAckFinal, Payload: fin}

	select {
	case out := <-done:
		require.Equal(t, "sess-9", out.SessionID)
		require.Equal(t, 2, out.Params.Window)
	case <-time.After(time.Second):
		t.Fatal("responder never finished")
	}
}

func TestRespondDuplicateSynResendsSynAck(t *testing.T) {
	end := newScriptEnd()
	policy := testPolicy()

	done := make(chan error, 1)
	go func() {
		_, err := Respond(context.Background(), end, end, testCaps,
			func() string { return "sess-2" }, policy)
		done <- err
	}()

	syn, _ := json.Marshal(protocol.SynPayload{
		OperationMode: protocol.ModeBurst, MaxSize: 64, Protocol: protocol.ProtoGBN,
	})
	end.in <- &protocol.Frame{Type: protocol.TypeSyn, Payload: syn}
	expectFrame(t, end, protocol.TypeAck)

	// The initiator missed the SYN-ACK and sent its SYN again.
	end.in <- &protocol.Frame{Type: protocol.TypeSyn, Payload: syn}
	expectFrame(t, end, protocol.TypeAck)

	fin, _ := json.Marshal(protocol.AckFinalPayload{SessionID: "sess-2"})
	end.in <- &protocol.Frame{Type: protocol.TypeAckFinal, Payload: fin}
	require.NoError(t, <-done)
}

func TestRespondSessionMismatchIsFatal(t *testing.T) {
	end := newScriptEnd()

	done := make(chan error, 1)
	go func() {
		_, err := Respond(context.Background(), end, end, testCaps,
			func() string { return "sess-3" }, testPolicy())
		done <- err
	}()

	syn, _ := json.Marshal(protocol.SynPayload{
		OperationMode: protocol.ModeBurst, MaxSize: 64, Protocol: protocol.ProtoGBN,
	})
	end.in <- &protocol.Frame{Type: protocol.TypeSyn, Payload: syn}
	expectFrame(t, end, protocol.TypeAck)

	fin, _ := json.Marshal(protocol.AckFinalPayload{SessionID: "someone-else"})
	end.in <- &protocol.Frame{Type: protocol.TypeAckFinal, Payload: fin}

	require.ErrorIs(t, <-done, protocol.ErrSessionMismatch)
}

func TestRespondTimesOutHalfOpenSession(t *testing.T) {
	end := newScriptEnd()
	policy := RetryPolicy{Timeout: 20 * time.Millisecond, MaxRetries: 1}

	_, err := Respond(context.Background(), end, end, testCaps,
		func() string { return "sess-4" }, policy)

	var hs *protocol.HandshakeError
	require.ErrorAs(t, err, &hs)
	require.Equal(t, "wait syn", hs.Reason)
}
