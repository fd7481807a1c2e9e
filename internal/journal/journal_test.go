package journal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open()
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournal_RecordEventIdempotent(t *testing.T) {
	j := newJournal(t)
	ctx := context.Background()

	fresh, err := j.RecordEvent(ctx, "e1", 100, "tx.updated", `{"x":1}`)
	require.NoError(t, err)
	assert.True(t, fresh)

	// Replay after a reconnect: same id, silently dropped.
	fresh, err = j.RecordEvent(ctx, "e1", 100, "tx.updated", `{"x":1}`)
	require.NoError(t, err)
	assert.False(t, fresh)

	events, err := j.RecentEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "e1", events[0].EventID)
}

func TestJournal_RecentEventsNewestFirst(t *testing.T) {
	j := newJournal(t)
	ctx := context.Background()

	_, err := j.RecordEvent(ctx, "a", 100, "run_status", "{}")
	require.NoError(t, err)
	_, err = j.RecordEvent(ctx, "b", 300, "tx.updated", "{}")
	require.NoError(t, err)
	_, err = j.RecordEvent(ctx, "c", 200, "tx.failed", "{}")
	require.NoError(t, err)

	events, err := j.RecentEvents(ctx, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "b", events[0].EventID)
	assert.Equal(t, "c", events[1].EventID)
}

func TestJournal_RecentEventsEmpty(t *testing.T) {
	j := newJournal(t)

	events, err := j.RecentEvents(context.Background(), 5)
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}

func TestJournal_ActionLifecycle(t *testing.T) {
	j := newJournal(t)
	ctx := context.Background()

	err := j.RecordAction(ctx, ActionEntry{
		ActionID: "act-1", Kind: "payment", TxID: "tx-9",
		Status: "accepted", SubmittedAt: 100,
	})
	require.NoError(t, err)

	status, ok, err := j.ActionStatus(ctx, "act-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "accepted", status)

	require.NoError(t, j.SetActionStatus(ctx, "act-1", "settled"))
	status, ok, err = j.ActionStatus(ctx, "act-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "settled", status)

	// Unknown id reports absence, not an error.
	_, ok, err = j.ActionStatus(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJournal_RecordActionIdempotent(t *testing.T) {
	j := newJournal(t)
	ctx := context.Background()

	first := ActionEntry{ActionID: "act-1", Kind: "payment", Status: "accepted", SubmittedAt: 100}
	require.NoError(t, j.RecordAction(ctx, first))
	// Retried submission must not overwrite the original record.
	require.NoError(t, j.RecordAction(ctx, ActionEntry{
		ActionID: "act-1", Kind: "payment", Status: "rejected", SubmittedAt: 200,
	}))

	actions, err := j.Actions(ctx)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "accepted", actions[0].Status)
	assert.EqualValues(t, 100, actions[0].SubmittedAt)
}
