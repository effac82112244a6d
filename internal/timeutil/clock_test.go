package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMockClock(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	assert.Equal(t, start, c.Now())

	c.Advance(50 * time.Millisecond)
	assert.Equal(t, 50*time.Millisecond, c.Now().Sub(start))

	c.Advance(time.Hour)
	assert.Equal(t, time.Hour+50*time.Millisecond, c.Now().Sub(start))
}

func TestRealClockMonotonic(t *testing.T) {
	var c Clock = RealClock{}
	t0 := c.Now()
	assert.False(t, c.Now().Before(t0))
}
