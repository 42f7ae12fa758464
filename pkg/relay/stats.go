// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Stats counts event outcomes for the lifetime of the process.
type Stats struct {
	received   atomic.Int64
	forwarded  atomic.Int64
	suppressed atomic.Int64
	failed     atomic.Int64
	startedAt  time.Time
}

// NewStats creates a Stats anchored at the current time.
func NewStats() *Stats {
	return &Stats{startedAt: time.Now()}
}

func (s *Stats) countOutcome(o Outcome) {
	switch o {
	case OutcomeForwarded:
		s.forwarded.Add(1)
	case OutcomeSuppressed:
		s.suppressed.Add(1)
	case OutcomeFailed:
		s.failed.Add(1)
	}
}

// Log writes a stats summary to the given logger.
func (s *Stats) Log(log zerolog.Logger) {
	log.Info().
		Int64("received", s.received.Load()).
		Int64("forwarded", s.forwarded.Load()).
		Int64("suppressed", s.suppressed.Load()).
		Int64("failed", s.failed.Load()).
		Str("uptime", time.Since(s.startedAt).Round(time.Second).String()).
		Msg("Relay statistics")
}

// LogPeriodically logs a stats summary every interval until ctx is done.
func (s *Stats) LogPeriodically(ctx context.Context, log zerolog.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Log(log)
		}
	}
}
