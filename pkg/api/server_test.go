package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/pkg/ticket"
	"github.com/wardenhq/warden/pkg/types"
)

func newTestAPI(t *testing.T) (*httptest.Server, *ticket.BoltStore) {
	t.Helper()
	store, err := ticket.NewBoltStore(t.TempDir())
	require.NoError(t, err)

	srv := httptest.NewServer(NewServer(store, nil).Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = store.Close()
	})
	return srv, store
}

func openTicket(t *testing.T, store *ticket.BoltStore, entity string) *types.Ticket {
	t.Helper()
	now := time.Now()
	tk, _, err := store.Upsert(&types.Violation{
		Name:      "node_down",
		Message:   "node is down",
		EntityID:  entity,
		Severity:  types.SeverityCritical,
		FirstSeen: now,
		LastSeen:  now,
	}, "batch-1")
	require.NoError(t, err)
	return tk
}

func TestListTickets(t *testing.T) {
	srv, store := newTestAPI(t)
	openTicket(t, store, "tikv-1")
	openTicket(t, store, "tikv-2")

	resp, err := http.Get(srv.URL + "/tickets")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var tickets []*types.Ticket
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tickets))
	assert.Len(t, tickets, 2)
}

func TestListTicketsEmptyIsArray(t *testing.T) {
	srv, _ := newTestAPI(t)

	resp, err := http.Get(srv.URL + "/tickets")
	require.NoError(t, err)
	defer resp.Body.Close()

	var tickets []*types.Ticket
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tickets))
	assert.NotNil(t, tickets)
	assert.Empty(t, tickets)
}

func TestListTicketsStatusFilter(t *testing.T) {
	srv, store := newTestAPI(t)
	tk := openTicket(t, store, "tikv-1")
	openTicket(t, store, "tikv-2")
	_, err := store.Acknowledge(tk.ID)
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/tickets?status=acknowledged")
	require.NoError(t, err)
	defer resp.Body.Close()

	var tickets []*types.Ticket
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tickets))
	require.Len(t, tickets, 1)
	assert.Equal(t, tk.ID, tickets[0].ID)

	resp2, err := http.Get(srv.URL + "/tickets?status=bogus")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestGetTicket(t *testing.T) {
	srv, store := newTestAPI(t)
	tk := openTicket(t, store, "tikv-1")

	resp, err := http.Get(srv.URL + "/tickets/" + tk.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got types.Ticket
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, tk.ID, got.ID)
	assert.Equal(t, "node_down:tikv-1", got.ViolationKey)

	resp2, err := http.Get(srv.URL + "/tickets/no-such-id")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestAcknowledgeEndpoint(t *testing.T) {
	srv, store := newTestAPI(t)
	tk := openTicket(t, store, "tikv-1")

	resp, err := http.Post(srv.URL+"/tickets/"+tk.ID+"/ack", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got types.Ticket
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, types.TicketStatusAcknowledged, got.Status)

	// Second ack is an invalid transition
	resp2, err := http.Post(srv.URL+"/tickets/"+tk.ID+"/ack", "application/json", nil)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusConflict, resp2.StatusCode)
}

func TestDiagnosisEndpoint(t *testing.T) {
	srv, store := newTestAPI(t)
	tk := openTicket(t, store, "tikv-1")

	body := []byte(`{"text": "disk controller failure"}`)
	resp, err := http.Post(srv.URL+"/tickets/"+tk.ID+"/diagnosis", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got types.Ticket
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, types.TicketStatusDiagnosed, got.Status)
	assert.Equal(t, "disk controller failure", got.Diagnosis)

	// Empty diagnosis text is rejected before touching the store
	resp2, err := http.Post(srv.URL+"/tickets/"+tk.ID+"/diagnosis", "application/json",
		bytes.NewReader([]byte(`{"text": ""}`)))
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestHoldEndpoint(t *testing.T) {
	srv, store := newTestAPI(t)
	tk := openTicket(t, store, "tikv-1")

	resp, err := http.Post(srv.URL+"/tickets/"+tk.ID+"/hold", "application/json",
		bytes.NewReader([]byte(`{"held": true}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got types.Ticket
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.True(t, got.Held)

	resp2, err := http.Post(srv.URL+"/tickets/"+tk.ID+"/hold", "application/json",
		bytes.NewReader([]byte(`{"held": false}`)))
	require.NoError(t, err)
	defer resp2.Body.Close()

	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&got))
	assert.False(t, got.Held)
}

func TestEventsWithoutBroker(t *testing.T) {
	srv, _ := newTestAPI(t)

	resp, err := http.Get(srv.URL + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestAPI(t)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
