package engine

import (
	"sync"
	"time"
)

// scheduler is a single deferred, cancellable timer. Scheduling replaces any
// pending schedule. A replaced or cancelled callback does not start once
// schedule or cancel has returned, even if its timer already fired and was
// waiting for the scheduler's mutex. A callback that already started may
// still be blocked on the caller's own lock; callers that need exclusion
// recheck their state there.
type scheduler struct {
	mutex   sync.Mutex
	timer   *time.Timer
	gen     uint64
	pending bool
}

// schedule arms fn to run after d in a timer goroutine.
func (s *scheduler) schedule(d time.Duration, fn func()) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.pending = true
	s.timer = time.AfterFunc(d, func() {
		s.mutex.Lock()
		if gen != s.gen {
			s.mutex.Unlock()
			return
		}
		s.pending = false
		s.mutex.Unlock()
		fn()
	})
}

// cancel discards the pending schedule, if any.
func (s *scheduler) cancel() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
	s.pending = false
}

// isPending reports whether a callback is scheduled and has not started.
func (s *scheduler) isPending() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.pending
}
