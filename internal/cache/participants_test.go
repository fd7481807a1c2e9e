package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skeinlabs/skein/internal/graph"
	"github.com/skeinlabs/skein/internal/testutil"
)

func TestParticipants_TTLReuse(t *testing.T) {
	clock := testutil.NewManualClock()
	var calls int
	fetch := func(ctx context.Context) ([]Participant, error) {
		calls++
		return []Participant{{PID: "alice"}}, nil
	}
	c := NewParticipants(fetch, nil,
		WithParticipantsClock(clock),
		WithParticipantsTTL(30*time.Second))

	_, err := c.Get(context.Background())
	require.NoError(t, err)
	_, err = c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "second call within TTL must reuse")

	clock.Advance(31 * time.Second)
	_, err = c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "call after TTL must refetch")
}

func TestParticipants_EpochRaceLaterDispatchWins(t *testing.T) {
	clock := testutil.NewManualClock()

	entered := make(chan int, 2)
	release := [2]chan []Participant{make(chan []Participant), make(chan []Participant)}
	var mu sync.Mutex
	call := 0
	fetch := func(ctx context.Context) ([]Participant, error) {
		mu.Lock()
		idx := call
		call++
		mu.Unlock()
		entered <- idx
		return <-release[idx], nil
	}
	c := NewParticipants(fetch, nil, WithParticipantsClock(clock))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.Get(context.Background())
	}()
	<-entered // fetch 0 dispatched first
	go func() {
		defer wg.Done()
		c.Get(context.Background())
	}()
	<-entered // fetch 1 dispatched second

	// Resolve the second dispatch first, then the first. The first's
	// late result must be discarded.
	release[1] <- []Participant{{PID: "second"}}
	release[0] <- []Participant{{PID: "first"}}
	wg.Wait()

	data, ok := c.Cached()
	require.True(t, ok)
	require.Len(t, data, 1)
	assert.Equal(t, "second", data[0].PID)
}

func TestParticipants_EmptyFetchDoesNotOverwriteNonEmpty(t *testing.T) {
	clock := testutil.NewManualClock()
	results := [][]Participant{{{PID: "alice"}, {PID: "bob"}}, {}}
	var calls int
	fetch := func(ctx context.Context) ([]Participant, error) {
		r := results[calls]
		calls++
		return r, nil
	}
	c := NewParticipants(fetch, nil, WithParticipantsClock(clock))

	first, err := c.Get(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 2)

	clock.Advance(time.Minute)
	second, err := c.Get(context.Background())
	require.NoError(t, err)

	assert.Len(t, second, 2, "empty result must not clobber cached list")
	assert.NotEmpty(t, c.LastError())
}

func TestParticipants_EmptyFetchAcceptedWhenNothingCached(t *testing.T) {
	fetch := func(ctx context.Context) ([]Participant, error) {
		return []Participant{}, nil
	}
	c := NewParticipants(fetch, nil)

	got, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)

	_, ok := c.Cached()
	assert.True(t, ok)
}

func TestParticipants_SnapshotFallbackWhenNeverFetched(t *testing.T) {
	fetch := func(ctx context.Context) ([]Participant, error) {
		return nil, errors.New("engine unreachable")
	}
	fallback := func() []*graph.Node {
		return []*graph.Node{{ID: "alice", Label: "Alice", Kind: "person"}}
	}
	c := NewParticipants(fetch, fallback)

	got, err := c.Get(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "alice", got[0].PID)
	assert.Equal(t, "Alice", got[0].Label)
	assert.NotEmpty(t, c.LastError())
}

func TestParticipants_StaleDataPreferredOverFetchError(t *testing.T) {
	clock := testutil.NewManualClock()
	var calls int
	fetch := func(ctx context.Context) ([]Participant, error) {
		calls++
		if calls == 1 {
			return []Participant{{PID: "alice"}}, nil
		}
		return nil, errors.New("flaky backend")
	}
	c := NewParticipants(fetch, nil, WithParticipantsClock(clock))

	_, err := c.Get(context.Background())
	require.NoError(t, err)

	clock.Advance(time.Minute)
	got, err := c.Get(context.Background())
	require.NoError(t, err, "stale-but-usable beats a surfaced error")
	require.Len(t, got, 1)
	assert.Equal(t, "alice", got[0].PID)
}

func TestParticipants_ErrorSurfacedWhenNoFallback(t *testing.T) {
	fetch := func(ctx context.Context) ([]Participant, error) {
		return nil, errors.New("engine unreachable")
	}
	c := NewParticipants(fetch, nil)

	_, err := c.Get(context.Background())
	assert.Error(t, err)
}

func TestParticipants_LoadingRefcounted(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{}, 2)
	fetch := func(ctx context.Context) ([]Participant, error) {
		started <- struct{}{}
		<-block
		return nil, nil
	}
	c := NewParticipants(fetch, nil)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Get(context.Background())
		}()
		<-started
	}

	assert.True(t, c.Loading())
	block <- struct{}{}
	// One fetch done, one still in flight: the flag must stay true until
	// the last completes, so poll briefly.
	assert.Eventually(t, c.Loading, time.Second, time.Millisecond)
	block <- struct{}{}
	wg.Wait()
	assert.False(t, c.Loading())
}
