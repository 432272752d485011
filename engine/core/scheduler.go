package core

import (
	"sort"
	"time"
)

// TimerID identifies a scheduled callback. The zero value never refers to a timer.
type TimerID uint64

type timer struct {
	id       TimerID
	due      time.Duration
	interval time.Duration
	fn       func(now time.Duration)
}

// Scheduler runs delayed and repeating callbacks against engine time. It is
// advanced once per tick from the engine goroutine and is not safe for
// concurrent use. Callbacks fire at the first tick at or after their due time,
// so they drift by up to one frame.
type Scheduler struct {
	now    time.Duration
	nextID TimerID
	timers map[TimerID]*timer
}

func NewScheduler() *Scheduler {
	return &Scheduler{timers: make(map[TimerID]*timer)}
}

// Now is the time of the last Advance.
func (s *Scheduler) Now() time.Duration {
	return s.now
}

// After runs fn once, delay after the current time.
func (s *Scheduler) After(delay time.Duration, fn func(now time.Duration)) TimerID {
	return s.add(delay, 0, fn)
}

// Every runs fn every interval until cancelled.
func (s *Scheduler) Every(interval time.Duration, fn func(now time.Duration)) TimerID {
	if interval <= 0 {
		interval = time.Millisecond
	}
	return s.add(interval, interval, fn)
}

func (s *Scheduler) add(delay, interval time.Duration, fn func(now time.Duration)) TimerID {
	s.nextID++
	id := s.nextID
	s.timers[id] = &timer{id: id, due: s.now + delay, interval: interval, fn: fn}
	return id
}

// Cancel removes a pending timer. Cancelling an unknown or fired timer is a no-op.
func (s *Scheduler) Cancel(id TimerID) bool {
	if _, ok := s.timers[id]; !ok {
		return false
	}
	delete(s.timers, id)
	return true
}

// Pending reports whether the timer is still scheduled.
func (s *Scheduler) Pending(id TimerID) bool {
	_, ok := s.timers[id]
	return ok
}

// Len returns the number of scheduled timers.
func (s *Scheduler) Len() int {
	return len(s.timers)
}

// Advance moves time to now and fires every due timer in due order.
// Timers scheduled by a callback for a time already passed fire in the same call.
func (s *Scheduler) Advance(now time.Duration) {
	if now > s.now {
		s.now = now
	}
	for {
		due := s.due()
		if len(due) == 0 {
			return
		}
		for _, t := range due {
			// an earlier callback in this batch may have cancelled it
			if _, ok := s.timers[t.id]; !ok {
				continue
			}
			if t.interval > 0 {
				t.due += t.interval
			} else {
				delete(s.timers, t.id)
			}
			t.fn(s.now)
		}
	}
}

func (s *Scheduler) due() []*timer {
	var out []*timer
	for _, t := range s.timers {
		if t.due <= s.now {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].due == out[j].due {
			return out[i].id < out[j].id
		}
		return out[i].due < out[j].due
	})
	return out
}
