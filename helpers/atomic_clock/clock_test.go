package atomic_clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClock(t *testing.T) {
	t.Parallel()
	var c Clock
	assert.True(t, c.IsZero())
	c.SetNowIfZero()
	assert.False(t, c.IsZero())
	first := c.Micros()
	c.SetIfZero(42)
	assert.Equal(t, first, c.Micros())
	time.Sleep(2 * time.Millisecond)
	assert.True(t, Since(&c) >= 2*time.Millisecond)
	later := Now()
	assert.True(t, later.Sub(&c) > 0)
	assert.True(t, later.Micros() > first)
}

func TestSourceNonZero(t *testing.T) {
	t.Parallel()
	assert.NotEqual(t, int64(0), Source())
}
