// Package scheduler provides deadline signals for wait-condition timeouts.
// Deadlines are tracked on a hashed timing wheel so thousands of pending
// timeouts cost a single goroutine instead of one timer each.
package scheduler

import (
	"sync"
	"time"

	"github.com/RussellLuo/timingwheel"

	"github.com/flowmesh/sagaflow/internal/idgen"
)

// Service schedules one-shot callbacks identified by a schedule id. The
// wait-condition coordinator stores the id alongside the condition so a
// resolved join can cancel its pending timeout.
type Service struct {
	wheel  *timingwheel.TimingWheel
	mu     sync.Mutex
	timers map[string]*timingwheel.Timer
}

// New creates a scheduler with the given tick resolution and wheel size.
// The wheel starts ticking immediately; call Stop when done.
func New(tick time.Duration, wheelSize int64) *Service {
	ret := &Service{
		wheel:  timingwheel.NewTimingWheel(tick, wheelSize),
		timers: make(map[string]*timingwheel.Timer),
	}
	ret.wheel.Start()
	return ret
}

// Default returns a scheduler with 10ms resolution, suitable for both
// production timeouts and fast-running tests.
func Default() *Service {
	return New(10*time.Millisecond, 512)
}

// Stop halts the wheel. Pending callbacks are dropped.
func (s *Service) Stop() {
	s.wheel.Stop()
}

// Schedule registers fn to run once after delay and returns the schedule id.
func (s *Service) Schedule(delay time.Duration, fn func()) string {
	id := idgen.New()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers[id] = s.wheel.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, id)
		s.mu.Unlock()
		fn()
	})
	return id
}

// Cancel stops a pending schedule. It returns false when the schedule has
// already fired or is unknown.
func (s *Service) Cancel(id string) bool {
	s.mu.Lock()
	timer, ok := s.timers[id]
	delete(s.timers, id)
	s.mu.Unlock()
	if !ok {
		return false
	}
	return timer.Stop()
}
