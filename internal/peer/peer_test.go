package peer_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MigueldsBatista/projeto-redes/internal/channel"
	"github.com/MigueldsBatista/projeto-redes/internal/handshake"
	"github.com/MigueldsBatista/projeto-redes/internal/peer"
	"github.com/MigueldsBatista/projeto-redes/internal/protocol"
	"github.com/MigueldsBatista/projeto-redes/internal/session"
	"github.com/MigueldsBatista/projeto-redes/internal/transport"
)

var testCaps = handshake.Caps{MaxSize: 1024, MaxWindow: 8, DefaultWindow: 4}

func testPolicy() handshake.RetryPolicy {
	return handshake.RetryPolicy{Timeout: 300 * time.Millisecond, MaxRetries: 3}
}

func testOpts() peer.Options {
	return peer.Options{
		RetryTimeout:   100 * time.Millisecond,
		MaxRetries:     5,
		DisconnectWait: 500 * time.Millisecond,
		CorruptLimit:   10,
	}
}

// startPair establishes a client/server peer pair over an in-memory pipe,
// optionally with a channel simulator on the client's write path.
func startPair(t *testing.T, req protocol.SynPayload, sim *channel.Simulator, clientOpts, serverOpts peer.Options) (*peer.Peer, *peer.Peer) {
	t.Helper()

	a, b := transport.Pipe()
	srvCh := make(chan *peer.Peer, 1)
	errCh := make(chan error, 1)
	go func() {
		srv, err := peer.NewResponder(context.Background(), b, testCaps, testPolicy(), serverOpts)
		if err != nil {
			errCh <- err
			return
		}
		srvCh <- srv
	}()

	cli, err := peer.NewInitiator(context.Background(), channel.Wrap(a, sim), req, testPolicy(), clientOpts)
	require.NoError(t, err)

	select {
	case srv := <-srvCh:
		return cli, srv
	case err := <-errCh:
		t.Fatalf("responder failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("responder never established")
	}
	return nil, nil
}

func recvMessage(t *testing.T, p *peer.Peer) []byte {
	t.Helper()
	select {
	case msg := <-p.Messages():
		return msg
	case <-p.Done():
		t.Fatalf("session died before a message arrived: %v", p.Err())
	case <-time.After(3 * time.Second):
		t.Fatal("no message arrived")
	}
	return nil
}

func waitEvent(t *testing.T, p *peer.Peer, want peer.EventKind) peer.Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case e := <-p.Events():
			if e.Kind == want {
				return e
			}
		case <-deadline:
			t.Fatalf("no %s event arrived", want)
		}
	}
}

func burstReq(proto string) protocol.SynPayload {
	return protocol.SynPayload{
		OperationMode: protocol.ModeBurst,
		MaxSize:       16,
		Protocol:      proto,
		WindowSize:    4,
		ClientID:      "test-client",
	}
}

func TestPeerDeliversMultiFragmentMessage(t *testing.T) {
	for _, proto := range []string{protocol.ProtoGBN, protocol.ProtoSR} {
		t.Run(proto, func(t *testing.T) {
			cli, srv := startPair(t, burstReq(proto), nil, testOpts(), testOpts())
			defer cli.Disconnect()

			waitEvent(t, cli, peer.EventEstablished)
			waitEvent(t, srv, peer.EventEstablished)
			require.Equal(t, cli.Session().ID, srv.Session().ID)
			require.Equal(t, "test-client", srv.Session().ClientID)

			// 100 bytes across 16-byte fragments: seven frames.
			msg := bytes.Repeat([]byte("0123456789"), 10)
			require.NoError(t, cli.Send(context.Background(), msg))
			require.Equal(t, msg, recvMessage(t, srv))
		})
	}
}

func TestPeerBackToBackMessages(t *testing.T) {
	cli, srv := startPair(t, burstReq(protocol.ProtoSR), nil, testOpts(), testOpts())
	defer cli.Disconnect()

	sent := [][]byte{
		[]byte("first"),
		[]byte("a second message that spans several fragments easily"),
		{},
		[]byte("fourth"),
	}
	for _, m := range sent {
		require.NoError(t, cli.Send(context.Background(), m))
	}
	for _, want := range sent {
		got := recvMessage(t, srv)
		require.Equal(t, append([]byte{}, want...), append([]byte{}, got...))
	}
}

func TestPeerRecoversFromLoss(t *testing.T) {
	for _, proto := range []string{protocol.ProtoGBN, protocol.ProtoSR} {
		t.Run(proto, func(t *testing.T) {
			sim := channel.New(channel.Config{})
			cli, srv := startPair(t, burstReq(proto), sim, testOpts(), testOpts())
			defer cli.Disconnect()

			// The very first DATA frame disappears; the retransmission
			// timer must recover the message.
			sim.DropNext()
			msg := []byte("survives a lost frame")
			require.NoError(t, cli.Send(context.Background(), msg))
			require.Equal(t, msg, recvMessage(t, srv))
		})
	}
}

func TestPeerRecoversFromCorruption(t *testing.T) {
	for _, proto := range []string{protocol.ProtoGBN, protocol.ProtoSR} {
		t.Run(proto, func(t *testing.T) {
			sim := channel.New(channel.Config{})
			cli, srv := startPair(t, burstReq(proto), sim, testOpts(), testOpts())
			defer cli.Disconnect()

			sim.CorruptNext()
			msg := []byte("survives a corrupted frame")
			require.NoError(t, cli.Send(context.Background(), msg))
			require.Equal(t, msg, recvMessage(t, srv))
		})
	}
}

func TestPeerStepByStepMode(t *testing.T) {
	req := protocol.SynPayload{
		OperationMode: protocol.ModeStepByStep,
		MaxSize:       8,
		Protocol:      protocol.ProtoGBN,
		WindowSize:    9, // must be forced down to 1
	}
	cli, srv := startPair(t, req, nil, testOpts(), testOpts())
	defer cli.Disconnect()

	require.Equal(t, 1, cli.Session().Params.Window)
	require.Equal(t, 1, srv.Session().Params.Window)

	msg := []byte("one fragment at a time, acknowledged one by one")
	require.NoError(t, cli.Send(context.Background(), msg))
	require.Equal(t, msg, recvMessage(t, srv))
}

func TestPeerDisconnectFlow(t *testing.T) {
	table := session.NewTable()
	srvOpts := testOpts()
	srvOpts.Table = table

	cli, srv := startPair(t, burstReq(protocol.ProtoGBN), nil, testOpts(), srvOpts)

	require.NoError(t, cli.Send(context.Background(), []byte("goodbye after this")))
	recvMessage(t, srv)
	require.Equal(t, 1, table.Len())

	cli.Disconnect()

	waitEvent(t, cli, peer.EventClosed)
	waitEvent(t, srv, peer.EventClosed)
	require.NoError(t, cli.Err())
	require.NoError(t, srv.Err())
	require.Equal(t, 0, table.Len())
	require.Equal(t, session.StateClosed, srv.Session().State())

	// Sending on a closed session must fail immediately.
	require.Error(t, cli.Send(context.Background(), []byte("too late")))
}

func TestPeerCorruptionStreakKillsSession(t *testing.T) {
	sim := channel.New(channel.Config{CorruptRate: 1})
	opts := testOpts()
	opts.CorruptLimit = 5

	cli, srv := startPair(t, burstReq(protocol.ProtoSR), sim, opts, opts)

	// Every copy of every frame arrives corrupted, so the server's streak
	// counter must hit the limit and both ends must fail.
	err := cli.Send(context.Background(), []byte("never arrives"))
	require.ErrorIs(t, err, protocol.ErrChannelFault)

	e := waitEvent(t, srv, peer.EventFailed)
	require.ErrorIs(t, e.Err, protocol.ErrChannelFault)
	require.ErrorIs(t, cli.Err(), protocol.ErrChannelFault)
}

func TestPeerAbortNotifiesRemote(t *testing.T) {
	cli, srv := startPair(t, burstReq(protocol.ProtoGBN), nil, testOpts(), testOpts())

	cli.Abort()

	e := waitEvent(t, srv, peer.EventFailed)
	require.ErrorIs(t, e.Err, protocol.ErrChannelFault)
	<-cli.Done()
}

func TestPeerSurvivesPeerVanishing(t *testing.T) {
	a, b := transport.Pipe()
	srvCh := make(chan *peer.Peer, 1)
	go func() {
		srv, err := peer.NewResponder(context.Background(), b, testCaps, testPolicy(), testOpts())
		if err == nil {
			srvCh <- srv
		}
	}()

	opts := testOpts()
	opts.RetryTimeout = 50 * time.Millisecond
	opts.MaxRetries = 2
	cli, err := peer.NewInitiator(context.Background(), a, burstReq(protocol.ProtoGBN), testPolicy(), opts)
	require.NoError(t, err)

	srv := <-srvCh
	// The server dies without a disconnect. The pipe reports closure to
	// the client, whose session must fail rather than hang.
	srv.Abort()

	require.Error(t, cli.Send(context.Background(), []byte("into the void")))
	<-cli.Done()
}

func TestPeerRejectedHandshake(t *testing.T) {
	a, b := transport.Pipe()
	go peer.NewResponder(context.Background(), b, testCaps, testPolicy(), testOpts())

	req := protocol.SynPayload{OperationMode: "warp", MaxSize: 16, Protocol: protocol.ProtoGBN}
	_, err := peer.NewInitiator(context.Background(), a, req, testPolicy(), testOpts())

	var hs *protocol.HandshakeError
	require.ErrorAs(t, err, &hs)
	require.Contains(t, hs.Reason, "unsupported operation mode")
}
