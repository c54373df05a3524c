package ticket

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/wardenhq/warden/pkg/log"
	"github.com/wardenhq/warden/pkg/types"
)

var (
	// Bucket names
	bucketTickets = []byte("tickets")

	// bucketOpenKeys maps violation key -> ticket ID for non-resolved
	// tickets only. It is the dedup index: an entry is added on
	// insert and removed on resolution, so a fresh violation of a
	// resolved key opens a new ticket row.
	bucketOpenKeys = []byte("open_keys")
)

// BoltStore implements Store using BoltDB. Every mutation runs inside
// a single Update transaction, so concurrent readers see either the
// old or the new row, never a torn one, and the insert-vs-update
// decision cannot race with another writer.
type BoltStore struct {
	db  *bolt.DB
	now func() time.Time
}

// NewBoltStore creates a new BoltDB-backed ticket store. Bucket
// creation is idempotent, equivalent to a schema-init migration.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "warden.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketTickets,
			bucketOpenKeys,
		}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, now: time.Now}, nil
}

// WithClock overrides the store's time source (used by tests)
func (s *BoltStore) WithClock(now func() time.Time) *BoltStore {
	s.now = now
	return s
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Upsert records one violation, deduplicating by violation key
func (s *BoltStore) Upsert(v *types.Violation, batchKey string) (*types.Ticket, bool, error) {
	var ticket *types.Ticket
	var created bool

	err := s.db.Update(func(tx *bolt.Tx) error {
		tickets := tx.Bucket(bucketTickets)
		index := tx.Bucket(bucketOpenKeys)
		key := v.Key()
		now := s.now()

		if id := index.Get([]byte(key)); id != nil {
			data := tickets.Get(id)
			if data != nil {
				var existing types.Ticket
				if err := json.Unmarshal(data, &existing); err != nil {
					return fmt.Errorf("failed to decode ticket %s: %w", id, err)
				}
				if !existing.Resolved() {
					existing.LastSeenAt = v.LastSeen
					existing.OccurrenceCount++
					existing.Message = v.Message
					existing.Severity = v.Severity
					existing.MetricSnapshot = v.Metrics
					existing.UpdatedAt = now
					ticket = &existing
					return putTicket(tickets, &existing)
				}
			}
			// Stale index entry (missing or already-resolved row):
			// fall through and insert a fresh ticket, repairing the
			// index in the same transaction
		}

		fresh := &types.Ticket{
			ID:              uuid.New().String(),
			ViolationKey:    key,
			InvariantName:   v.Name,
			EntityID:        v.EntityID,
			Status:          types.TicketStatusOpen,
			BatchKey:        batchKey,
			OccurrenceCount: 1,
			FirstSeenAt:     v.FirstSeen,
			LastSeenAt:      v.LastSeen,
			Message:         v.Message,
			Severity:        v.Severity,
			MetricSnapshot:  v.Metrics,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := putTicket(tickets, fresh); err != nil {
			return err
		}
		if err := index.Put([]byte(key), []byte(fresh.ID)); err != nil {
			return err
		}
		ticket = fresh
		created = true
		return nil
	})

	return ticket, created, err
}

// Reconcile auto-resolves tickets whose violation key is no longer
// active. A decode failure on one ticket is logged and skipped so the
// remaining tickets are still processed; the row is retried on the
// next cycle.
func (s *BoltStore) Reconcile(activeKeys map[string]bool) ([]*types.Ticket, error) {
	var resolved []*types.Ticket

	err := s.db.Update(func(tx *bolt.Tx) error {
		tickets := tx.Bucket(bucketTickets)
		index := tx.Bucket(bucketOpenKeys)
		now := s.now()

		type stale struct {
			key []byte
			t   *types.Ticket
		}
		var toResolve []stale
		var orphaned [][]byte

		c := index.Cursor()
		for k, id := c.First(); k != nil; k, id = c.Next() {
			if activeKeys[string(k)] {
				continue
			}
			data := tickets.Get(id)
			if data == nil {
				orphaned = append(orphaned, append([]byte(nil), k...))
				continue
			}
			var t types.Ticket
			if err := json.Unmarshal(data, &t); err != nil {
				log.Logger.Error().Err(err).Str("ticket_id", string(id)).
					Msg("skipping undecodable ticket during reconcile")
				continue
			}
			if t.Held || t.Resolved() {
				continue
			}
			toResolve = append(toResolve, stale{key: append([]byte(nil), k...), t: &t})
		}

		for _, k := range orphaned {
			if err := index.Delete(k); err != nil {
				return err
			}
		}

		for _, st := range toResolve {
			st.t.Status = types.TicketStatusResolved
			resolvedAt := now
			st.t.ResolvedAt = &resolvedAt
			st.t.UpdatedAt = now
			if err := putTicket(tickets, st.t); err != nil {
				return err
			}
			if err := index.Delete(st.key); err != nil {
				return err
			}
			resolved = append(resolved, st.t)
		}
		return nil
	})

	return resolved, err
}

// Get retrieves a ticket by ID
func (s *BoltStore) Get(id string) (*types.Ticket, error) {
	var ticket types.Ticket
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTickets)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &ticket)
	})
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// List returns tickets filtered by status, newest first
func (s *BoltStore) List(status types.TicketStatus) ([]*types.Ticket, error) {
	var tickets []*types.Ticket
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTickets)
		return b.ForEach(func(k, v []byte) error {
			var t types.Ticket
			if err := json.Unmarshal(v, &t); err != nil {
				return err
			}
			if status != "" && t.Status != status {
				return nil
			}
			tickets = append(tickets, &t)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(tickets, func(i, j int) bool {
		if tickets[i].CreatedAt.Equal(tickets[j].CreatedAt) {
			return tickets[i].ID < tickets[j].ID
		}
		return tickets[i].CreatedAt.After(tickets[j].CreatedAt)
	})
	return tickets, nil
}

// GetOpenByKey returns the non-resolved ticket for a violation key
func (s *BoltStore) GetOpenByKey(key string) (*types.Ticket, error) {
	var ticket types.Ticket
	err := s.db.View(func(tx *bolt.Tx) error {
		index := tx.Bucket(bucketOpenKeys)
		id := index.Get([]byte(key))
		if id == nil {
			return fmt.Errorf("%w: no open ticket for key %s", ErrNotFound, key)
		}
		data := tx.Bucket(bucketTickets).Get(id)
		if data == nil {
			return fmt.Errorf("%w: no open ticket for key %s", ErrNotFound, key)
		}
		return json.Unmarshal(data, &ticket)
	})
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// Acknowledge transitions an open ticket to acknowledged
func (s *BoltStore) Acknowledge(id string) (*types.Ticket, error) {
	return s.mutate(id, func(t *types.Ticket) error {
		if t.Status != types.TicketStatusOpen {
			return fmt.Errorf("cannot acknowledge ticket %s in status %s", t.ID, t.Status)
		}
		t.Status = types.TicketStatusAcknowledged
		return nil
	})
}

// AttachDiagnosis attaches diagnosis text and marks the ticket diagnosed
func (s *BoltStore) AttachDiagnosis(id, text string) (*types.Ticket, error) {
	return s.mutate(id, func(t *types.Ticket) error {
		if t.Resolved() {
			return fmt.Errorf("cannot diagnose resolved ticket %s", t.ID)
		}
		t.Diagnosis = text
		t.Status = types.TicketStatusDiagnosed
		return nil
	})
}

// SetHeld flips the manual hold flag
func (s *BoltStore) SetHeld(id string, held bool) (*types.Ticket, error) {
	return s.mutate(id, func(t *types.Ticket) error {
		if t.Resolved() {
			return fmt.Errorf("cannot change hold on resolved ticket %s", t.ID)
		}
		t.Held = held
		return nil
	})
}

// mutate applies fn to one ticket row inside a single transaction
func (s *BoltStore) mutate(id string, fn func(*types.Ticket) error) (*types.Ticket, error) {
	var ticket types.Ticket
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTickets)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err := json.Unmarshal(data, &ticket); err != nil {
			return fmt.Errorf("failed to decode ticket %s: %w", id, err)
		}
		if err := fn(&ticket); err != nil {
			return err
		}
		ticket.UpdatedAt = s.now()
		return putTicket(b, &ticket)
	})
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func putTicket(b *bolt.Bucket, t *types.Ticket) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return b.Put([]byte(t.ID), data)
}
