package gaze

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/marionette/engine/math"
)

type fixedViewpoint struct {
	position math.Vec3
}

func (v fixedViewpoint) GetPosition() math.Vec3 {
	return v.position
}

// Ray looks straight down -Z from a point shifted by (x, y).
func (v fixedViewpoint) Ray(x, y float32) math.Ray {
	return math.Ray{
		Origin:    v.position.Add(math.NewVec3(x, y, 0)),
		Direction: math.NewVec3(0, 0, -1),
	}
}

func TestPointerDebounceAdoptsAfterDelay(t *testing.T) {
	d := NewPointerDebouncer(60 * time.Millisecond)

	_, _, ok := d.Update(0)
	assert.False(t, ok)

	d.Move(0.5, 0.25, 0)
	_, _, ok = d.Update(30 * time.Millisecond)
	assert.False(t, ok)
	assert.True(t, d.Pending())

	x, y, ok := d.Update(60 * time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, float32(0.5), x)
	assert.Equal(t, float32(0.25), y)

	// keeps moving: the old sample stays until the pointer rests
	d.Move(-0.5, 0, 100*time.Millisecond)
	d.Move(-0.75, 0, 140*time.Millisecond)
	x, _, _ = d.Update(190 * time.Millisecond)
	assert.Equal(t, float32(0.5), x)
	x, _, _ = d.Update(200 * time.Millisecond)
	assert.Equal(t, float32(-0.75), x)
}

func TestGlanceWindowsWithinBounds(t *testing.T) {
	min, max, hold := 6*time.Second, 14*time.Second, 1200*time.Millisecond
	g := NewGlanceScheduler(min, max, hold, math.NewRand(9))
	g.Reset(0)
	assert.GreaterOrEqual(t, g.NextAt(), min)
	assert.LessOrEqual(t, g.NextAt(), max)

	var opened []time.Duration
	var closedAt time.Duration
	wasActive := false
	for now := time.Duration(0); now < 3*time.Minute; now += 10 * time.Millisecond {
		active := g.Update(now)
		if active && !wasActive {
			if len(opened) > 0 {
				gap := now - closedAt
				assert.GreaterOrEqual(t, gap, min-10*time.Millisecond)
				assert.LessOrEqual(t, gap, max+10*time.Millisecond)
			}
			opened = append(opened, now)
		}
		if !active && wasActive {
			closedAt = now
			assert.InDelta(t, hold.Seconds(), (now - opened[len(opened)-1]).Seconds(), 0.011)
		}
		wasActive = active
	}
	assert.GreaterOrEqual(t, len(opened), 8)
}

func TestResolverPrecedence(t *testing.T) {
	vp := fixedViewpoint{position: math.NewVec3(0, 1.6, 3)}
	anchor := math.NewVec3(0, 1.6, 0)
	glance := NewGlanceScheduler(time.Hour, time.Hour, time.Second, math.NewRand(1))
	glance.Reset(0)
	r := NewTargetResolver(NewPointerDebouncer(60*time.Millisecond), glance)

	assert.Nil(t, r.Resolve(0, false, vp, anchor))
	assert.Equal(t, SourceNone, r.Source())

	r.Pointer().Move(0.2, 0, 0)
	assert.Nil(t, r.Resolve(30*time.Millisecond, false, vp, anchor))

	got := r.Resolve(60*time.Millisecond, false, vp, anchor)
	require.NotNil(t, got)
	assert.Equal(t, SourcePointer, r.Source())
	assert.True(t, got.Compare(math.NewVec3(0.2, 1.6, 0), 1e-4), "%v", *got)

	got = r.Resolve(70*time.Millisecond, true, vp, anchor)
	require.NotNil(t, got)
	assert.Equal(t, SourceCamera, r.Source())
	assert.Equal(t, vp.position, *got)

	assert.Nil(t, r.Resolve(80*time.Millisecond, false, nil, anchor))
}

func TestResolverGlanceBeatsPointer(t *testing.T) {
	vp := fixedViewpoint{position: math.NewVec3(0, 1.6, 3)}
	glance := NewGlanceScheduler(time.Second, time.Second, 500*time.Millisecond, math.NewRand(1))
	glance.Reset(0)
	r := NewTargetResolver(NewPointerDebouncer(0), glance)
	r.Pointer().Move(0.1, 0.1, 0)

	r.Resolve(500*time.Millisecond, false, vp, math.NewVec3(0, 1.6, 0))
	assert.Equal(t, SourcePointer, r.Source())

	got := r.Resolve(time.Second, false, vp, math.NewVec3(0, 1.6, 0))
	require.NotNil(t, got)
	assert.Equal(t, SourceGlance, r.Source())
	assert.Equal(t, vp.position, *got)

	r.Resolve(1600*time.Millisecond, false, vp, math.NewVec3(0, 1.6, 0))
	assert.Equal(t, SourcePointer, r.Source())
}
