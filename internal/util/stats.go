package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide protocol counter.
var Stats = &stats{}

type stats struct {
	Sessions      atomic.Int64 // cumulative count of established sessions
	ClosedSess    atomic.Int64 // cumulative count of closed sessions
	FramesSent    atomic.Int64 // frames written to the wire, retransmissions included
	FramesRecv    atomic.Int64 // frames read from the wire
	Retransmits   atomic.Int64 // frames written more than once
	NacksRecv     atomic.Int64 // NACK frames received
	CorruptFrames atomic.Int64 // inbound frames that failed the checksum
	BytesSent     atomic.Int64 // cumulative payload bytes written
	BytesRecv     atomic.Int64 // cumulative payload bytes read
}

func (s *stats) AddSession()     { s.Sessions.Add(1) }
func (s *stats) RemoveSession()  { s.ClosedSess.Add(1) }
func (s *stats) AddFrameSent()   { s.FramesSent.Add(1) }
func (s *stats) AddFrameRecv()   { s.FramesRecv.Add(1) }
func (s *stats) AddRetransmit()  { s.Retransmits.Add(1) }
func (s *stats) AddNack()        { s.NacksRecv.Add(1) }
func (s *stats) AddCorrupt()     { s.CorruptFrames.Add(1) }
func (s *stats) AddSent(n int)   { s.BytesSent.Add(int64(n)) }
func (s *stats) AddRecv(n int)   { s.BytesRecv.Add(int64(n)) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs traffic statistics
// every 10 seconds. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		var prevSent, prevRecv, prevFrames, prevRetrans int64
		for {
			select {
			case <-ticker.C:
				sent := Stats.BytesSent.Load()
				recv := Stats.BytesRecv.Load()
				frames := Stats.FramesSent.Load() + Stats.FramesRecv.Load()
				retrans := Stats.Retransmits.Load()

				outS := float64(sent-prevSent) / 10.0
				inS := float64(recv-prevRecv) / 10.0
				frameC := frames - prevFrames
				retransC := retrans - prevRetrans

				if frameC > 0 || inS > 10 || outS > 10 {
					pterm.DefaultLogger.Info(formatStats(inS, outS, frameC, retransC))
				}

				prevSent = sent
				prevRecv = recv
				prevFrames = frames
				prevRetrans = retrans

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(inS, outS float64, frameC, retransC int64) string {
	return fmt.Sprintf("In: %s/s | Out: %s/s | Frames: %3d | Retrans: %2d",
		formatBytes(inS),
		formatBytes(outS),
		frameC,
		retransC,
	)
}
