package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualClock_AdvanceMovesForward(t *testing.T) {
	c := NewManualClock()
	start := c.Now()

	c.Advance(5 * time.Second)

	assert.Equal(t, start.Add(5*time.Second), c.Now())
}

func TestManualClock_NowIsStableBetweenAdvances(t *testing.T) {
	c := NewManualClock()

	assert.Equal(t, c.Now(), c.Now())
}

func TestManualClock_Set(t *testing.T) {
	c := NewManualClock()
	target := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	c.Set(target)

	assert.Equal(t, target, c.Now())
}
