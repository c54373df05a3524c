package client

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/pkg/api"
	"github.com/wardenhq/warden/pkg/ratelimit"
	"github.com/wardenhq/warden/pkg/ticket"
	"github.com/wardenhq/warden/pkg/types"
)

func newTicketAPI(t *testing.T) (*Client, *ticket.BoltStore) {
	t.Helper()
	store, err := ticket.NewBoltStore(t.TempDir())
	require.NoError(t, err)

	srv := httptest.NewServer(api.NewServer(store, nil).Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = store.Close()
	})
	return New(srv.URL), store
}

func newLimiterAPI(t *testing.T) *Client {
	t.Helper()
	limiter, err := ratelimit.NewLimiter(t.TempDir(), 100, time.Minute)
	require.NoError(t, err)

	srv := httptest.NewServer(ratelimit.NewServer(limiter).Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = limiter.Close()
	})
	return New(srv.URL)
}

func seedTicket(t *testing.T, store *ticket.BoltStore) *types.Ticket {
	t.Helper()
	now := time.Now()
	tk, _, err := store.Upsert(&types.Violation{
		Name:      "node_down",
		Message:   "node is down",
		EntityID:  "tikv-2",
		Severity:  types.SeverityCritical,
		FirstSeen: now,
		LastSeen:  now,
	}, "batch-1")
	require.NoError(t, err)
	return tk
}

func TestTicketLifecycleViaClient(t *testing.T) {
	c, store := newTicketAPI(t)
	tk := seedTicket(t, store)

	tickets, err := c.ListTickets("")
	require.NoError(t, err)
	assert.Len(t, tickets, 1)

	got, err := c.GetTicket(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, tk.ID, got.ID)

	acked, err := c.Acknowledge(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TicketStatusAcknowledged, acked.Status)

	diagnosed, err := c.Diagnose(tk.ID, "disk failure")
	require.NoError(t, err)
	assert.Equal(t, "disk failure", diagnosed.Diagnosis)

	held, err := c.SetHeld(tk.ID, true)
	require.NoError(t, err)
	assert.True(t, held.Held)

	// Server-side errors surface as plain errors with the API message
	_, err = c.GetTicket("no-such-id")
	assert.ErrorContains(t, err, "not found")
}

func TestLimiterViaClient(t *testing.T) {
	c := newLimiterAPI(t)

	res, err := c.CheckLimit("client-1", 2, 60000)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	_, err = c.CheckLimit("client-1", 2, 60000)
	require.NoError(t, err)

	// Denial is a result, not an error
	res, err = c.CheckLimit("client-1", 2, 60000)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfterSeconds, 0.0)

	require.NoError(t, c.SetLimit("client-1", 5, 30000))

	reset, err := c.ResetCounter("client-1")
	require.NoError(t, err)
	assert.True(t, reset)

	reset, err = c.ResetCounter("client-1")
	require.NoError(t, err)
	assert.False(t, reset)

	// Invalid override rejected by the server
	assert.Error(t, c.SetLimit("client-1", 0, 0))
}
