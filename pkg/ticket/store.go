package ticket

import (
	"errors"

	"github.com/wardenhq/warden/pkg/types"
)

// ErrNotFound is returned when no ticket matches a lookup
var ErrNotFound = errors.New("ticket not found")

// Store defines the interface for ticket persistence.
// The monitor loop is the only writer of Upsert/Reconcile; the
// remaining operations serve concurrent readers and external actors
// (diagnosis workers, CLIs).
type Store interface {
	// Upsert records one violation. An existing non-resolved ticket
	// with the same violation key is refreshed (occurrence count,
	// last seen, latest message/severity/metrics); otherwise a new
	// open ticket is created. Returns the ticket and whether it was
	// newly created.
	Upsert(v *types.Violation, batchKey string) (*types.Ticket, bool, error)

	// Reconcile auto-resolves every non-resolved, non-held ticket
	// whose violation key is absent from the active set. Returns the
	// tickets resolved in this pass.
	Reconcile(activeKeys map[string]bool) ([]*types.Ticket, error)

	// Get retrieves a ticket by ID
	Get(id string) (*types.Ticket, error)

	// List returns tickets, optionally filtered by status ("" = all)
	List(status types.TicketStatus) ([]*types.Ticket, error)

	// GetOpenByKey returns the non-resolved ticket for a violation key
	GetOpenByKey(key string) (*types.Ticket, error)

	// Acknowledge transitions an open ticket to acknowledged
	Acknowledge(id string) (*types.Ticket, error)

	// AttachDiagnosis attaches diagnosis text and marks the ticket
	// diagnosed; rejected for resolved tickets
	AttachDiagnosis(id, text string) (*types.Ticket, error)

	// SetHeld flips the manual hold flag; a held ticket is never
	// auto-resolved
	SetHeld(id string, held bool) (*types.Ticket, error)

	// Close releases the underlying database
	Close() error
}
