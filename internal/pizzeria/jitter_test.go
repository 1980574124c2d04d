package pizzeria

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUniformJitter_StaysWithinBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	lo, hi := -20*time.Second, 40*time.Second
	for i := 0; i < 1000; i++ {
		d := uniformJitter(rng, lo, hi)
		assert.GreaterOrEqual(t, d, lo)
		assert.LessOrEqual(t, d, hi)
	}
}

func TestUniformJitter_DegenerateRange(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	assert.Equal(t, 5*time.Second, uniformJitter(rng, 5*time.Second, 5*time.Second))
	assert.Equal(t, 5*time.Second, uniformJitter(rng, 5*time.Second, time.Second))
}

func TestUniformFloat_StaysWithinBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 1000; i++ {
		v := uniformFloat(rng, 20, 50)
		assert.GreaterOrEqual(t, v, 20.0)
		assert.Less(t, v, 50.0)
	}
}
