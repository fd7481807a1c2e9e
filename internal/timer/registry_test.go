package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drain executes queued callbacks until n have run or the timeout lapses.
func drain(t *testing.T, r *Registry, n int, timeout time.Duration) int {
	t.Helper()
	deadline := time.After(timeout)
	ran := 0
	for ran < n {
		select {
		case fn := <-r.C():
			fn()
			ran++
		case <-deadline:
			return ran
		}
	}
	return ran
}

func TestRegistry_ScheduledCallbackFires(t *testing.T) {
	r := New(8)

	fired := false
	r.Schedule(5*time.Millisecond, func() { fired = true })

	require.Equal(t, 1, drain(t, r, 1, time.Second))
	assert.True(t, fired)
	assert.Zero(t, r.Pending())
}

func TestRegistry_CancelledHandleNeverFires(t *testing.T) {
	r := New(8)

	fired := false
	h := r.Schedule(10*time.Millisecond, func() { fired = true })
	require.True(t, r.Cancel(h))

	assert.Zero(t, drain(t, r, 1, 50*time.Millisecond))
	assert.False(t, fired)
}

func TestRegistry_CancelAfterFireBeforeExecution(t *testing.T) {
	r := New(8)

	fired := false
	h := r.Schedule(time.Millisecond, func() { fired = true })

	// Wait until the timer has fired and queued its callback.
	var fn func()
	select {
	case fn = <-r.C():
	case <-time.After(time.Second):
		t.Fatal("callback never queued")
	}

	// Cancel between queueing and execution: the callback must be inert.
	r.Cancel(h)
	fn()
	assert.False(t, fired)
}

func TestRegistry_ClearAfterFireBeforeExecution(t *testing.T) {
	r := New(8)

	fired := false
	r.Schedule(time.Millisecond, func() { fired = true })

	var fn func()
	select {
	case fn = <-r.C():
	case <-time.After(time.Second):
		t.Fatal("callback never queued")
	}

	// A mode switch clears cosmetic timers; one that fired but has not
	// executed yet must be aborted too.
	r.ClearNonCritical()
	fn()
	assert.False(t, fired)
	assert.Zero(t, r.Pending())
}

func TestRegistry_CancelUnknownHandle(t *testing.T) {
	r := New(8)
	assert.False(t, r.Cancel(Handle(99)))
}

func TestRegistry_ClearDropsEverything(t *testing.T) {
	r := New(8)

	var fired int
	r.Schedule(20*time.Millisecond, func() { fired++ })
	r.ScheduleCritical(20*time.Millisecond, func() { fired++ })
	require.Equal(t, 2, r.Pending())

	r.Clear()

	assert.Zero(t, r.Pending())
	assert.Zero(t, drain(t, r, 1, 60*time.Millisecond))
	assert.Zero(t, fired)
}

func TestRegistry_ClearNonCriticalKeepsCriticalArmed(t *testing.T) {
	r := New(8)

	var cosmetic, critical bool
	r.Schedule(10*time.Millisecond, func() { cosmetic = true })
	r.ScheduleCritical(10*time.Millisecond, func() { critical = true })

	r.ClearNonCritical()
	require.Equal(t, 1, r.Pending())

	require.Equal(t, 1, drain(t, r, 1, time.Second))
	assert.False(t, cosmetic)
	assert.True(t, critical)
}

func TestRegistry_HandlesAreUnique(t *testing.T) {
	r := New(8)

	h1 := r.Schedule(time.Hour, func() {})
	h2 := r.Schedule(time.Hour, func() {})

	assert.NotEqual(t, h1, h2)
	r.Clear()
}
