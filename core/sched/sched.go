package sched

import (
	"sync"
	"time"
)

// Timer runs a task at a fixed interval. Start and Stop are idempotent;
// stopping clears the timer but never interrupts a run already started.
type Timer struct {
	mu       sync.Mutex
	stop     chan struct{}
	interval time.Duration
	task     func()
}

// NewTimer creates a stopped timer for the given task.
func NewTimer(task func()) *Timer {
	return &Timer{task: task}
}

// Start begins periodic execution at the given interval. A running timer is
// restarted with the new interval. Intervals below one minute are rejected
// by returning false.
func (t *Timer) Start(interval time.Duration) bool {
	if interval < time.Minute {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stop != nil {
		close(t.stop)
	}
	t.stop = make(chan struct{})
	t.interval = interval

	go t.loop(t.stop, interval)
	return true
}

// Stop clears the timer. Safe to call on a stopped timer.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stop != nil {
		close(t.stop)
		t.stop = nil
		t.interval = 0
	}
}

// Running reports whether the timer is active and at what interval.
func (t *Timer) Running() (bool, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stop != nil, t.interval
}

func (t *Timer) loop(stop chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.task()
		}
	}
}
