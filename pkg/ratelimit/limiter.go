package ratelimit

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/wardenhq/warden/pkg/log"
	"github.com/wardenhq/warden/pkg/metrics"
	"github.com/wardenhq/warden/pkg/types"
)

var (
	// bucketCounters maps limiter key -> JSON array of request
	// timestamps (unix nanos), oldest first
	bucketCounters = []byte("counters")

	// bucketLimits maps limiter key -> per-key limit override
	bucketLimits = []byte("limits")
)

// Limit is a per-key override of the service defaults
type Limit struct {
	Limit    int   `json:"limit"`
	WindowMS int64 `json:"window_ms"`
}

// Stats summarizes the limiter's current window state
type Stats struct {
	TrackedKeys     int `json:"tracked_keys"`
	KeysAtLimit     int `json:"keys_at_limit"`
	EntriesInWindow int `json:"entries_in_window"`
}

// Limiter is a sliding-window rate limiter backed by BoltDB. The
// prune-insert-count step of Check runs inside a single write
// transaction; BoltDB serializes writers, so concurrent checks on the
// same key cannot race between counting and inserting. Under N
// concurrent checks with limit L inside one window, exactly min(N, L)
// are allowed.
//
// Store failures fail open: rate limiting is a protective layer, not
// a correctness-critical one, so a broken store lets traffic through
// with a logged warning rather than taking the service down with it.
type Limiter struct {
	db            *bolt.DB
	defaultLimit  int
	defaultWindow time.Duration
	now           func() time.Time
}

// NewLimiter opens the limiter's counter store under dataDir. Bucket
// creation is idempotent.
func NewLimiter(dataDir string, defaultLimit int, defaultWindow time.Duration) (*Limiter, error) {
	dbPath := filepath.Join(dataDir, "limiter.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open counter store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketCounters, bucketLimits} {
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

	return &Limiter{
		db:            db,
		defaultLimit:  defaultLimit,
		defaultWindow: defaultWindow,
		now:           time.Now,
	}, nil
}

// WithClock overrides the limiter's time source (used by tests)
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Close closes the counter store
func (l *Limiter) Close() error {
	return l.db.Close()
}

// Check atomically records a request for key and decides whether it
// is allowed. Explicit limit/window values from the caller take
// precedence; zero values fall back to the per-key override and then
// to the service defaults.
func (l *Limiter) Check(key string, limit int, windowMS int64) types.RateLimitResult {
	var res types.RateLimitResult

	err := l.db.Update(func(tx *bolt.Tx) error {
		limit, windowMS = l.resolveLimits(tx, key, limit, windowMS)
		window := time.Duration(windowMS) * time.Millisecond
		now := l.now()
		cutoff := now.Add(-window).UnixNano()

		counters := tx.Bucket(bucketCounters)
		entries, err := loadEntries(counters, key)
		if err != nil {
			return err
		}

		// Prune, insert, count: one indivisible step
		pruned := entries[:0]
		for _, ts := range entries {
			if ts >= cutoff {
				pruned = append(pruned, ts)
			}
		}
		pruned = append(pruned, now.UnixNano())
		count := len(pruned)

		if err := storeEntries(counters, key, pruned); err != nil {
			return err
		}

		res.CurrentCount = count
		if count <= limit {
			res.Allowed = true
			res.Remaining = limit - count
		} else {
			res.Allowed = false
			res.Remaining = 0
			oldest := time.Unix(0, pruned[0])
			res.RetryAfterSeconds = oldest.Add(window).Sub(now).Seconds()
			if res.RetryAfterSeconds < 0 {
				res.RetryAfterSeconds = 0
			}
		}
		return nil
	})

	if err != nil {
		// Fail open: documented policy, see package doc
		log.Logger.Warn().Err(err).Str("key", key).
			Msg("counter store unavailable, allowing request")
		metrics.LimiterStoreFailures.Inc()
		if limit <= 0 {
			limit = l.defaultLimit
		}
		return types.RateLimitResult{Allowed: true, Remaining: limit}
	}

	if res.Allowed {
		metrics.LimiterChecksTotal.WithLabelValues("allowed").Inc()
	} else {
		metrics.LimiterChecksTotal.WithLabelValues("denied").Inc()
	}
	return res
}

// GetCounter reports the current in-window count for key without
// recording a request.
func (l *Limiter) GetCounter(key string) (int, error) {
	var count int
	err := l.db.View(func(tx *bolt.Tx) error {
		_, windowMS := l.resolveLimits(tx, key, 0, 0)
		cutoff := l.now().Add(-time.Duration(windowMS) * time.Millisecond).UnixNano()

		entries, err := loadEntries(tx.Bucket(bucketCounters), key)
		if err != nil {
			return err
		}
		for _, ts := range entries {
			if ts >= cutoff {
				count++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ResetCounter deletes all entries for key. Idempotent; reports
// whether anything was deleted.
func (l *Limiter) ResetCounter(key string) (bool, error) {
	var existed bool
	err := l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCounters)
		existed = b.Get([]byte(key)) != nil
		return b.Delete([]byte(key))
	})
	if err != nil {
		return false, err
	}
	return existed, nil
}

// UpdateLimit sets a per-key override that takes precedence over the
// service defaults.
func (l *Limiter) UpdateLimit(key string, limit int, windowMS int64) error {
	if limit <= 0 || windowMS <= 0 {
		return fmt.Errorf("limit and window must be positive, got limit=%d window_ms=%d", limit, windowMS)
	}
	return l.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(Limit{Limit: limit, WindowMS: windowMS})
		if err != nil {
			return err
		}
		return tx.Bucket(bucketLimits).Put([]byte(key), data)
	})
}

// GetLimit returns the effective limit for key, falling back to the
// service defaults when no override exists.
func (l *Limiter) GetLimit(key string) (Limit, error) {
	var lim Limit
	err := l.db.View(func(tx *bolt.Tx) error {
		limit, windowMS := l.resolveLimits(tx, key, 0, 0)
		lim = Limit{Limit: limit, WindowMS: windowMS}
		return nil
	})
	if err != nil {
		return Limit{}, err
	}
	return lim, nil
}

// Stats summarizes window state across all tracked keys
func (l *Limiter) Stats() (Stats, error) {
	var stats Stats
	err := l.db.View(func(tx *bolt.Tx) error {
		now := l.now()
		b := tx.Bucket(bucketCounters)
		return b.ForEach(func(k, v []byte) error {
			var entries []int64
			if err := json.Unmarshal(v, &entries); err != nil {
				return err
			}
			limit, windowMS := l.resolveLimits(tx, string(k), 0, 0)
			cutoff := now.Add(-time.Duration(windowMS) * time.Millisecond).UnixNano()

			inWindow := 0
			for _, ts := range entries {
				if ts >= cutoff {
					inWindow++
				}
			}
			if inWindow == 0 {
				return nil
			}
			stats.TrackedKeys++
			stats.EntriesInWindow += inWindow
			if inWindow >= limit {
				stats.KeysAtLimit++
			}
			return nil
		})
	})
	if err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// resolveLimits applies the precedence order: explicit caller values,
// then per-key override, then service defaults.
func (l *Limiter) resolveLimits(tx *bolt.Tx, key string, limit int, windowMS int64) (int, int64) {
	if limit > 0 && windowMS > 0 {
		return limit, windowMS
	}

	var override Limit
	if data := tx.Bucket(bucketLimits).Get([]byte(key)); data != nil {
		if err := json.Unmarshal(data, &override); err == nil {
			if limit <= 0 {
				limit = override.Limit
			}
			if windowMS <= 0 {
				windowMS = override.WindowMS
			}
		}
	}
	if limit <= 0 {
		limit = l.defaultLimit
	}
	if windowMS <= 0 {
		windowMS = l.defaultWindow.Milliseconds()
	}
	return limit, windowMS
}

func loadEntries(b *bolt.Bucket, key string) ([]int64, error) {
	data := b.Get([]byte(key))
	if data == nil {
		return nil, nil
	}
	var entries []int64
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode counter %s: %w", key, err)
	}
	return entries, nil
}

func storeEntries(b *bolt.Bucket, key string, entries []int64) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}
