package channel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MigueldsBatista/projeto-redes/internal/protocol"
	"github.com/MigueldsBatista/projeto-redes/internal/transport"
)

func dataFrame(seq uint16, payload string) *protocol.Frame {
	return &protocol.Frame{Type: protocol.TypeData, Seq: seq, Payload: []byte(payload)}
}

func TestSimulatorDropsEveryFrameAtFullLossRate(t *testing.T) {
	a, b := transport.Pipe()
	defer a.Close()

	sim := New(Config{LossRate: 1})
	c := Wrap(a, sim)

	require.NoError(t, c.WriteFrame(dataFrame(0, "gone")))

	read := make(chan struct{}, 1)
	go func() {
		b.ReadFrame()
		read <- struct{}{}
	}()
	select {
	case <-read:
		t.Fatal("dropped frame reached the other end")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSimulatorCorruptionTriggersChecksumMismatch(t *testing.T) {
	a, b := transport.Pipe()
	defer a.Close()

	sim := New(Config{CorruptRate: 1})
	c := Wrap(a, sim)

	require.NoError(t, c.WriteFrame(dataFrame(5, "payload")))

	got, err := b.ReadFrame()
	require.True(t, protocol.IsDecodeKind(err, protocol.ChecksumMismatch))
	require.NotNil(t, got)
	require.EqualValues(t, 5, got.Seq)
	require.Equal(t, protocol.TypeData, got.Type)
}

func TestSimulatorLeavesControlFramesAlone(t *testing.T) {
	a, b := transport.Pipe()
	defer a.Close()

	sim := New(Config{LossRate: 1, CorruptRate: 1})
	c := Wrap(a, sim)

	require.NoError(t, c.WriteFrame(&protocol.Frame{Type: protocol.TypeAck, Seq: 2}))

	got, err := b.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, protocol.TypeAck, got.Type)
	require.EqualValues(t, 2, got.Seq)
}

func TestSimulatorDelayHoldsFrameBack(t *testing.T) {
	a, b := transport.Pipe()
	defer a.Close()

	sim := New(Config{DelayRate: 1, Delay: 60 * time.Millisecond})
	c := Wrap(a, sim)

	start := time.Now()
	require.NoError(t, c.WriteFrame(dataFrame(1, "late")))

	got, err := b.ReadFrame()
	require.NoError(t, err)
	require.EqualValues(t, 1, got.Seq)
	require.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestSimulatorOneShotActions(t *testing.T) {
	a, b := transport.Pipe()
	defer a.Close()

	sim := New(Config{})
	c := Wrap(a, sim)

	// Exactly one frame is swallowed.
	sim.DropNext()
	require.NoError(t, c.WriteFrame(dataFrame(0, "lost")))
	require.NoError(t, c.WriteFrame(dataFrame(1, "kept")))

	got, err := b.ReadFrame()
	require.NoError(t, err)
	require.EqualValues(t, 1, got.Seq)

	// Exactly one frame is tampered with.
	sim.CorruptNext()
	require.NoError(t, c.WriteFrame(dataFrame(2, "bad")))
	require.NoError(t, c.WriteFrame(dataFrame(3, "good")))

	_, err = b.ReadFrame()
	require.True(t, protocol.IsDecodeKind(err, protocol.ChecksumMismatch))
	got, err = b.ReadFrame()
	require.NoError(t, err)
	require.EqualValues(t, 3, got.Seq)
}

func TestSimulatorConfigSwap(t *testing.T) {
	a, b := transport.Pipe()
	defer a.Close()

	sim := New(Config{LossRate: 1})
	c := Wrap(a, sim)

	require.NoError(t, c.WriteFrame(dataFrame(0, "lost")))

	sim.SetConfig(Config{})
	require.NoError(t, c.WriteFrame(dataFrame(1, "kept")))

	got, err := b.ReadFrame()
	require.NoError(t, err)
	require.EqualValues(t, 1, got.Seq)
	require.Equal(t, Config{}, sim.Config())
}
