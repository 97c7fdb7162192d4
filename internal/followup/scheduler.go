package followup

import (
	"sync"
	"time"
)

// Scheduler runs fn once after delay. Scheduling a key that is already
// pending replaces the earlier trigger.
type Scheduler interface {
	Schedule(key string, delay time.Duration, fn func())
	Cancel(key string) bool
}

// TimerScheduler is the in-process Scheduler backed by time.AfterFunc.
type TimerScheduler struct {
	mu     sync.Mutex
	timers map[string]*pendingTimer
	gen    uint64
}

type pendingTimer struct {
	timer *time.Timer
	gen   uint64
}

func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{timers: make(map[string]*pendingTimer)}
}

func (s *TimerScheduler) Schedule(key string, delay time.Duration, fn func()) {
	if delay < 0 {
		delay = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.timers[key]; ok {
		p.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timers[key] = &pendingTimer{
		gen: gen,
		timer: time.AfterFunc(delay, func() {
			s.mu.Lock()
			p, ok := s.timers[key]
			if !ok || p.gen != gen {
				// Replaced or cancelled after the timer already fired.
				s.mu.Unlock()
				return
			}
			delete(s.timers, key)
			s.mu.Unlock()
			fn()
		}),
	}
}

func (s *TimerScheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.timers[key]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(s.timers, key)
	return true
}

func (s *TimerScheduler) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[key]
	return ok
}

func (s *TimerScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every pending trigger.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, p := range s.timers {
		p.timer.Stop()
		delete(s.timers, key)
	}
}
