package pizzeria

import (
	"math/rand"
	"time"
)

// uniformJitter samples uniformly from [lo, hi]. Callers hold their
// component's lock; a *rand.Rand is not safe for concurrent use.
func uniformJitter(rng *rand.Rand, lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rng.Int63n(int64(hi-lo)+1))
}

// uniformFloat samples uniformly from [lo, hi).
func uniformFloat(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}
