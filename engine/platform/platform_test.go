package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeCursor(t *testing.T) {
	x, y := normalizeCursor(400, 300, 800, 600)
	assert.InDelta(t, 0, x, 1e-6)
	assert.InDelta(t, 0, y, 1e-6)

	x, y = normalizeCursor(0, 0, 800, 600)
	assert.InDelta(t, -1, x, 1e-6)
	assert.InDelta(t, 1, y, 1e-6, "top of the window is +1")

	x, y = normalizeCursor(800, 600, 800, 600)
	assert.InDelta(t, 1, x, 1e-6)
	assert.InDelta(t, -1, y, 1e-6)

	x, y = normalizeCursor(10, 10, 0, 0)
	assert.Zero(t, x)
	assert.Zero(t, y)
}

func TestDragDelta(t *testing.T) {
	dyaw, dpitch := dragDelta(100, -20)
	assert.InDelta(t, -0.5, dyaw, 1e-6)
	assert.InDelta(t, 0.1, dpitch, 1e-6)
}
