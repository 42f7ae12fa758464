// Copyright 2024-2026 Aiku AI

package relay

import "sync"

// DefaultFreeSampleRate mirrors every 10th signal to the free channel.
const DefaultFreeSampleRate = 10

// SignalSequencer hands out strictly increasing signal numbers and decides
// which signals are sampled to the free channel. The counter is seeded once
// from the store's persisted maximum at startup; only the store write after
// allocation is durable. A crash between Allocate and the store write can
// make the next run reuse a number, which is an accepted bounded risk of
// the allocate-then-persist ordering.
type SignalSequencer struct {
	mu         sync.Mutex
	next       int64
	sampleRate int64
}

// NewSignalSequencer creates a sequencer that will allocate maxExisting+1
// next. A non-positive sampleRate falls back to DefaultFreeSampleRate.
func NewSignalSequencer(maxExisting int64, sampleRate int) *SignalSequencer {
	if sampleRate <= 0 {
		sampleRate = DefaultFreeSampleRate
	}
	return &SignalSequencer{
		next:       maxExisting + 1,
		sampleRate: int64(sampleRate),
	}
}

// Allocate returns the next signal number. Numbers are strictly increasing
// and gapless under the single-writer discipline the router maintains.
func (s *SignalSequencer) Allocate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.next
	s.next++
	return n
}

// SampleToFree reports whether signal n is mirrored to the free channel:
// every sampleRate-th signal, including the first multiple.
func (s *SignalSequencer) SampleToFree(n int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return n%s.sampleRate == 0
}
