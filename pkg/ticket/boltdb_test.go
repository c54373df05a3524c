package ticket

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/pkg/types"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func violation(name, entity string) *types.Violation {
	now := time.Now()
	return &types.Violation{
		Name:      name,
		Message:   "something is wrong",
		EntityID:  entity,
		Severity:  types.SeverityCritical,
		FirstSeen: now.Add(-time.Minute),
		LastSeen:  now,
		Metrics:   map[string]float64{"latency_ms": 512},
	}
}

func TestUpsertCreatesOpenTicket(t *testing.T) {
	store := newTestStore(t)

	tk, created, err := store.Upsert(violation("node_down", "tikv-2"), "batch-1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, tk.ID)
	assert.Equal(t, "node_down:tikv-2", tk.ViolationKey)
	assert.Equal(t, types.TicketStatusOpen, tk.Status)
	assert.Equal(t, 1, tk.OccurrenceCount)
	assert.Equal(t, "batch-1", tk.BatchKey)
	assert.False(t, tk.Held)
	assert.Nil(t, tk.ResolvedAt)
}

func TestUpsertDeduplicatesByKey(t *testing.T) {
	store := newTestStore(t)

	first, created, err := store.Upsert(violation("node_down", "tikv-2"), "batch-1")
	require.NoError(t, err)
	require.True(t, created)

	v := violation("node_down", "tikv-2")
	v.Message = "still down"
	v.Severity = types.SeverityWarning
	second, created, err := store.Upsert(v, "batch-2")
	require.NoError(t, err)
	assert.False(t, created)

	// Same row, refreshed: occurrence count up, latest message wins
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.OccurrenceCount)
	assert.Equal(t, "still down", second.Message)
	assert.Equal(t, types.SeverityWarning, second.Severity)

	tickets, err := store.List("")
	require.NoError(t, err)
	assert.Len(t, tickets, 1)
}

func TestReconcileAutoResolves(t *testing.T) {
	store := newTestStore(t)

	tk, _, err := store.Upsert(violation("node_down", "tikv-2"), "batch-1")
	require.NoError(t, err)

	// Violation gone this cycle: ticket resolves
	resolved, err := store.Reconcile(map[string]bool{})
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, tk.ID, resolved[0].ID)
	assert.Equal(t, types.TicketStatusResolved, resolved[0].Status)
	require.NotNil(t, resolved[0].ResolvedAt)

	// The dedup index no longer covers the resolved row
	_, err = store.GetOpenByKey("node_down:tikv-2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReconcileKeepsActiveTickets(t *testing.T) {
	store := newTestStore(t)

	_, _, err := store.Upsert(violation("node_down", "tikv-2"), "batch-1")
	require.NoError(t, err)
	_, _, err = store.Upsert(violation("high_latency", "tikv-1"), "batch-1")
	require.NoError(t, err)

	resolved, err := store.Reconcile(map[string]bool{"node_down:tikv-2": true})
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, "high_latency:tikv-1", resolved[0].ViolationKey)

	still, err := store.GetOpenByKey("node_down:tikv-2")
	require.NoError(t, err)
	assert.Equal(t, types.TicketStatusOpen, still.Status)
}

func TestHeldTicketNeverAutoResolves(t *testing.T) {
	store := newTestStore(t)

	tk, _, err := store.Upsert(violation("node_down", "tikv-2"), "batch-1")
	require.NoError(t, err)
	_, err = store.SetHeld(tk.ID, true)
	require.NoError(t, err)

	// Several clean cycles: the hold wins every time
	for i := 0; i < 3; i++ {
		resolved, err := store.Reconcile(map[string]bool{})
		require.NoError(t, err)
		assert.Empty(t, resolved)
	}

	got, err := store.Get(tk.ID)
	require.NoError(t, err)
	assert.False(t, got.Resolved())

	// Releasing the hold makes it eligible again
	_, err = store.SetHeld(tk.ID, false)
	require.NoError(t, err)
	resolved, err := store.Reconcile(map[string]bool{})
	require.NoError(t, err)
	assert.Len(t, resolved, 1)
}

func TestResolvedKeyOpensNewTicket(t *testing.T) {
	store := newTestStore(t)

	first, _, err := store.Upsert(violation("node_down", "tikv-2"), "batch-1")
	require.NoError(t, err)
	_, err = store.Reconcile(map[string]bool{})
	require.NoError(t, err)

	// Fresh occurrence after resolution: new row, not a reopen
	second, created, err := store.Upsert(violation("node_down", "tikv-2"), "batch-9")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 1, second.OccurrenceCount)

	tickets, err := store.List("")
	require.NoError(t, err)
	assert.Len(t, tickets, 2)
}

func TestAcknowledgeTransitions(t *testing.T) {
	store := newTestStore(t)

	tk, _, err := store.Upsert(violation("node_down", "tikv-2"), "batch-1")
	require.NoError(t, err)

	acked, err := store.Acknowledge(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TicketStatusAcknowledged, acked.Status)

	// Acknowledge is only valid from open
	_, err = store.Acknowledge(tk.ID)
	assert.Error(t, err)
}

func TestAttachDiagnosis(t *testing.T) {
	store := newTestStore(t)

	tk, _, err := store.Upsert(violation("node_down", "tikv-2"), "batch-1")
	require.NoError(t, err)

	diagnosed, err := store.AttachDiagnosis(tk.ID, "store process OOM-killed")
	require.NoError(t, err)
	assert.Equal(t, types.TicketStatusDiagnosed, diagnosed.Status)
	assert.Equal(t, "store process OOM-killed", diagnosed.Diagnosis)

	// Diagnosed tickets still auto-resolve
	resolved, err := store.Reconcile(map[string]bool{})
	require.NoError(t, err)
	require.Len(t, resolved, 1)

	// But a resolved ticket rejects further mutation
	_, err = store.AttachDiagnosis(tk.ID, "late diagnosis")
	assert.Error(t, err)
	_, err = store.SetHeld(tk.ID, true)
	assert.Error(t, err)
}

func TestGetNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get("no-such-id")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListFiltersByStatus(t *testing.T) {
	store := newTestStore(t)

	_, _, err := store.Upsert(violation("node_down", "tikv-1"), "b")
	require.NoError(t, err)
	tk2, _, err := store.Upsert(violation("node_down", "tikv-2"), "b")
	require.NoError(t, err)
	_, err = store.Acknowledge(tk2.ID)
	require.NoError(t, err)

	open, err := store.List(types.TicketStatusOpen)
	require.NoError(t, err)
	assert.Len(t, open, 1)

	acked, err := store.List(types.TicketStatusAcknowledged)
	require.NoError(t, err)
	assert.Len(t, acked, 1)

	all, err := store.List("")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestOccurrenceCountScenario(t *testing.T) {
	store := newTestStore(t)

	// Three consecutive cycles with the same violation
	for i := 0; i < 3; i++ {
		_, _, err := store.Upsert(violation("node_down", "tikv-2"), "b")
		require.NoError(t, err)
		_, err = store.Reconcile(map[string]bool{"node_down:tikv-2": true})
		require.NoError(t, err)
	}

	tk, err := store.GetOpenByKey("node_down:tikv-2")
	require.NoError(t, err)
	assert.Equal(t, 3, tk.OccurrenceCount)

	// Cycle 4: node back up, violation absent
	resolved, err := store.Reconcile(map[string]bool{})
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, 3, resolved[0].OccurrenceCount)
	assert.Equal(t, types.TicketStatusResolved, resolved[0].Status)
}
