package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSchedulerAfterFiresOnce(t *testing.T) {
	s := NewScheduler()
	var fired []time.Duration
	s.After(150*time.Millisecond, func(now time.Duration) { fired = append(fired, now) })

	s.Advance(100 * time.Millisecond)
	assert.Empty(t, fired)

	s.Advance(160 * time.Millisecond)
	s.Advance(400 * time.Millisecond)
	assert.Equal(t, []time.Duration{160 * time.Millisecond}, fired)
	assert.Equal(t, 0, s.Len())
}

func TestSchedulerEveryAndCancel(t *testing.T) {
	s := NewScheduler()
	count := 0
	id := s.Every(120*time.Millisecond, func(time.Duration) { count++ })

	for now := time.Duration(0); now <= 600*time.Millisecond; now += 10 * time.Millisecond {
		s.Advance(now)
	}
	assert.Equal(t, 5, count)

	assert.True(t, s.Cancel(id))
	assert.False(t, s.Cancel(id))
	s.Advance(2 * time.Second)
	assert.Equal(t, 5, count)
}

func TestSchedulerOrderAndNestedScheduling(t *testing.T) {
	s := NewScheduler()
	var order []string
	s.After(20*time.Millisecond, func(time.Duration) { order = append(order, "b") })
	s.After(10*time.Millisecond, func(time.Duration) {
		order = append(order, "a")
		s.After(0, func(time.Duration) { order = append(order, "nested") })
	})

	s.Advance(30 * time.Millisecond)
	assert.Equal(t, []string{"a", "b", "nested"}, order)
}

func TestSchedulerCancelFromCallback(t *testing.T) {
	s := NewScheduler()
	fired := false
	var second TimerID
	s.After(10*time.Millisecond, func(time.Duration) { s.Cancel(second) })
	second = s.After(10*time.Millisecond, func(time.Duration) { fired = true })

	s.Advance(time.Second)
	assert.False(t, fired)
}
