package math

import (
	"time"

	"golang.org/x/exp/rand"
)

// Rand is a seedable source for every randomized timer and offset in the
// engine. It is not safe for concurrent use; each controller owns its own.
type Rand struct {
	r *rand.Rand
}

func NewRand(seed uint64) *Rand {
	return &Rand{r: rand.New(rand.NewSource(seed))}
}

// Range returns a uniform value in [min, max].
func (r *Rand) Range(min, max float32) float32 {
	if max <= min {
		return min
	}
	return min + r.r.Float32()*(max-min)
}

// Duration returns a uniform duration in [min, max].
func (r *Rand) Duration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(r.r.Int63n(int64(max-min)+1))
}

// Intn returns a uniform int in [0, n).
func (r *Rand) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return r.r.Intn(n)
}

// Float64 returns a uniform value in [0, 1).
func (r *Rand) Float64() float64 {
	return r.r.Float64()
}
