// Package channel simulates an unreliable link. A Simulator wrapped around
// a transport connection drops, corrupts, or delays outbound DATA frames
// according to configured probabilities, leaving control traffic untouched.
//
// Corruption happens after encoding: the payload byte at seq%len is flipped
// while the header and its stale checksum stay intact, so the receiving
// codec reports a checksum mismatch on an otherwise parseable frame.
package channel

import (
	"math/rand"
	"sync"
	"time"

	"github.com/MigueldsBatista/projeto-redes/internal/protocol"
	"github.com/MigueldsBatista/projeto-redes/internal/transport"
	"github.com/MigueldsBatista/projeto-redes/internal/util"
)

// Config holds the fault probabilities. Rates are in [0, 1]; a rate of 1
// makes the fault deterministic, which is what the tests rely on.
type Config struct {
	LossRate    float64
	CorruptRate float64
	DelayRate   float64
	Delay       time.Duration
}

type action int

const (
	actPass action = iota
	actDrop
	actCorrupt
	actDelay
)

// Simulator decides the fate of each outbound DATA frame. Safe for
// concurrent use; the configuration can be swapped while traffic flows.
type Simulator struct {
	mu  sync.Mutex
	cfg Config
	rng *rand.Rand

	dropNext    bool
	corruptNext bool
}

// New creates a Simulator with the given fault configuration.
func New(cfg Config) *Simulator {
	return &Simulator{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetConfig replaces the fault configuration.
func (s *Simulator) SetConfig(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

// Config returns the current fault configuration.
func (s *Simulator) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// DropNext makes the simulator swallow exactly one upcoming DATA frame.
func (s *Simulator) DropNext() {
	s.mu.Lock()
	s.dropNext = true
	s.mu.Unlock()
}

// CorruptNext makes the simulator tamper with exactly one upcoming DATA frame.
func (s *Simulator) CorruptNext() {
	s.mu.Lock()
	s.corruptNext = true
	s.mu.Unlock()
}

// verdict picks the fate of one frame. One-shot requests win over the
// configured probabilities; loss is checked before corruption, corruption
// before delay.
func (s *Simulator) verdict() (action, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.dropNext:
		s.dropNext = false
		return actDrop, 0
	case s.corruptNext:
		s.corruptNext = false
		return actCorrupt, 0
	case s.cfg.LossRate > 0 && s.rng.Float64() < s.cfg.LossRate:
		return actDrop, 0
	case s.cfg.CorruptRate > 0 && s.rng.Float64() < s.cfg.CorruptRate:
		return actCorrupt, 0
	case s.cfg.DelayRate > 0 && s.rng.Float64() < s.cfg.DelayRate:
		return actDelay, s.cfg.Delay
	}
	return actPass, 0
}

// Wrap layers the simulator over a transport connection. A nil simulator
// returns the connection unchanged.
func Wrap(c transport.Conn, s *Simulator) transport.Conn {
	if s == nil {
		return c
	}
	return &simConn{Conn: c, sim: s}
}

type simConn struct {
	transport.Conn
	sim *Simulator
}

func (c *simConn) WriteFrame(f *protocol.Frame) error {
	if f.Type != protocol.TypeData {
		return c.Conn.WriteFrame(f)
	}

	act, delay := c.sim.verdict()
	switch act {
	case actDrop:
		util.LogWarning("[CHANNEL] dropped frame seq=%d", f.Seq)
		return nil
	case actCorrupt:
		b := protocol.Encode(f)
		idx := corruptIndex(f)
		b[idx] ^= 0xFF
		util.LogWarning("[CHANNEL] corrupted frame seq=%d at byte %d", f.Seq, idx)
		return c.Conn.WriteRaw(b)
	case actDelay:
		util.LogWarning("[CHANNEL] delaying frame seq=%d by %s", f.Seq, delay)
		time.Sleep(delay)
	}
	return c.Conn.WriteFrame(f)
}

// corruptIndex picks the encoded byte to flip: seq%len into the payload, or
// a checksum byte when the payload is empty. Either way the header remains
// parseable and only the digest check fails.
func corruptIndex(f *protocol.Frame) int {
	if len(f.Payload) == 0 {
		return 7 + int(f.Seq)%protocol.ChecksumSize
	}
	return protocol.HeaderSize + int(f.Seq)%len(f.Payload)
}
