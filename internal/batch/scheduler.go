package batch

import (
	"sync"
	"time"
)

// timerName identifies one of the racing timers a scope may hold.
type timerName string

const (
	timerFlush     timerName = "flush"     // silence debounce
	timerBackstop  timerName = "backstop"  // hard latency bound
	timerFallback  timerName = "fallback"  // missed typing-stop guard
	timerIndicator timerName = "indicator" // composing-indicator delay
)

// Scheduler manages named, cancellable delayed tasks per scope key.
// Re-arming a name atomically cancels any prior timer of that name, so
// callers never have to remember to clear the old one first.
type Scheduler struct {
	mu     sync.Mutex
	timers map[string]map[timerName]*time.Timer
}

func NewScheduler() *Scheduler {
	return &Scheduler{timers: make(map[string]map[timerName]*time.Timer)}
}

// Schedule arms (or re-arms) the named timer for key. fn runs on its own
// goroutine when the delay elapses.
func (s *Scheduler) Schedule(key string, name timerName, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byName, ok := s.timers[key]
	if !ok {
		byName = make(map[timerName]*time.Timer)
		s.timers[key] = byName
	}
	if prev, ok := byName[name]; ok {
		prev.Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if byName, ok := s.timers[key]; ok && byName[name] == t {
			delete(byName, name)
			if len(byName) == 0 {
				delete(s.timers, key)
			}
		}
		s.mu.Unlock()
		fn()
	})
	byName[name] = t
}

// Cancel stops the named timer for key if armed.
func (s *Scheduler) Cancel(key string, name timerName) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byName, ok := s.timers[key]
	if !ok {
		return
	}
	if t, ok := byName[name]; ok {
		t.Stop()
		delete(byName, name)
	}
	if len(byName) == 0 {
		delete(s.timers, key)
	}
}

// CancelAll stops every timer armed for key.
func (s *Scheduler) CancelAll(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byName, ok := s.timers[key]
	if !ok {
		return
	}
	for _, t := range byName {
		t.Stop()
	}
	delete(s.timers, key)
}

// armed reports whether the named timer is currently pending (for tests).
func (s *Scheduler) armed(key string, name timerName) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	byName, ok := s.timers[key]
	if !ok {
		return false
	}
	_, ok = byName[name]
	return ok
}
