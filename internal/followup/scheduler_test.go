package followup

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTimerSchedulerRunsOnce(t *testing.T) {
	s := NewTimerScheduler()
	defer s.Stop()

	done := make(chan struct{}, 2)
	s.Schedule("followup:1", 10*time.Millisecond, func() { done <- struct{}{} })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled fn did not run")
	}
	if s.Pending("followup:1") {
		t.Fatal("expected key to be cleared after firing")
	}
	select {
	case <-done:
		t.Fatal("fn ran twice")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTimerSchedulerReplaceKeepsLatest(t *testing.T) {
	s := NewTimerScheduler()
	defer s.Stop()

	var first, second atomic.Int32
	done := make(chan struct{})
	s.Schedule("k", 20*time.Millisecond, func() { first.Add(1) })
	s.Schedule("k", 30*time.Millisecond, func() { second.Add(1); close(done) })

	if s.Len() != 1 {
		t.Fatalf("expected one pending trigger after replace, got %d", s.Len())
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("replacement fn did not run")
	}
	time.Sleep(30 * time.Millisecond)
	if first.Load() != 0 || second.Load() != 1 {
		t.Fatalf("expected only the replacement to run, got first=%d second=%d", first.Load(), second.Load())
	}
}

func TestTimerSchedulerCancel(t *testing.T) {
	s := NewTimerScheduler()
	defer s.Stop()

	var ran atomic.Bool
	s.Schedule("k", 20*time.Millisecond, func() { ran.Store(true) })
	if !s.Cancel("k") {
		t.Fatal("expected Cancel to report a pending trigger")
	}
	if s.Cancel("k") {
		t.Fatal("second Cancel should report nothing pending")
	}
	time.Sleep(60 * time.Millisecond)
	if ran.Load() {
		t.Fatal("cancelled fn ran")
	}
}

func TestTimerSchedulerNegativeDelayRunsImmediately(t *testing.T) {
	s := NewTimerScheduler()
	defer s.Stop()

	done := make(chan struct{})
	s.Schedule("k", -time.Hour, func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("overdue fn did not run")
	}
}
