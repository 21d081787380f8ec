// Package playback schedules decoded audio buffers for gapless playback
// with rate adjustment and immediate interruption.
package playback

import (
	"log/slog"
	"sync"
	"time"

	"github.com/fluentvoice/platform/internal/codec"
)

// Clock abstracts the scheduler timebase so tests can control it.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Handle is a scheduled-but-not-finished playback that can be stopped.
type Handle interface {
	Stop()
}

// Sink performs the actual audio output. ScheduleAt plays buf starting at
// startAt with the given speed multiplier and invokes onDone exactly once
// when playback finishes naturally (not when stopped). onDone must be
// invoked asynchronously, after ScheduleAt has returned.
type Sink interface {
	ScheduleAt(buf *codec.Buffer, startAt time.Time, rate float64, onDone func()) (Handle, error)
	Close() error
}

// Scheduler lines up buffers back-to-back on a shared clock. Buffers arrive
// from the network at irregular times; additive scheduling keeps playback
// gapless across them.
type Scheduler struct {
	sink  Sink
	clock Clock

	mu        sync.Mutex
	nextStart time.Time
	pending   map[Handle]struct{}
	tornDown  bool

	teardownOnce sync.Once
}

// NewScheduler creates a scheduler against the real clock.
func NewScheduler(sink Sink) *Scheduler {
	return NewSchedulerWithClock(sink, realClock{})
}

// NewSchedulerWithClock creates a scheduler with an explicit clock.
func NewSchedulerWithClock(sink Sink, clock Clock) *Scheduler {
	return &Scheduler{
		sink:    sink,
		clock:   clock,
		pending: make(map[Handle]struct{}),
	}
}

// Enqueue schedules buf directly after the last scheduled buffer, or
// immediately when playback has drained. The rate multiplier applies to
// this buffer only.
func (s *Scheduler) Enqueue(buf *codec.Buffer, rate float64) error {
	if rate <= 0 {
		rate = 1
	}

	s.mu.Lock()
	if s.tornDown {
		s.mu.Unlock()
		slog.Debug("enqueue after teardown, dropping buffer")
		return nil
	}

	// Never schedule in the past, never leave a gap while running.
	now := s.clock.Now()
	startAt := s.nextStart
	if startAt.Before(now) {
		startAt = now
	}

	var handle Handle
	done := func() {
		s.mu.Lock()
		delete(s.pending, handle)
		s.mu.Unlock()
	}

	h, err := s.sink.ScheduleAt(buf, startAt, rate, done)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	handle = h
	s.pending[handle] = struct{}{}
	s.nextStart = startAt.Add(time.Duration(float64(buf.Duration()) / rate))
	s.mu.Unlock()

	return nil
}

// Interrupt stops every scheduled buffer and resets the clock origin so the
// next Enqueue starts immediately. Used on barge-in.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	handles := make([]Handle, 0, len(s.pending))
	for h := range s.pending {
		handles = append(handles, h)
	}
	s.pending = make(map[Handle]struct{})
	s.nextStart = s.clock.Now()
	s.mu.Unlock()

	for _, h := range handles {
		h.Stop()
	}
}

// Pending returns the number of scheduled-but-unfinished buffers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Teardown stops all playback and releases the output device. Idempotent.
func (s *Scheduler) Teardown() {
	s.teardownOnce.Do(func() {
		s.Interrupt()
		s.mu.Lock()
		s.tornDown = true
		s.mu.Unlock()
		if err := s.sink.Close(); err != nil {
			slog.Debug("sink close error", "error", err)
		}
	})
}
