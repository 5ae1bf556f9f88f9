package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/roach88/prdash/internal/clock"
)

const (
	// DefaultMaxAge is how long an entry stays fresh.
	DefaultMaxAge = 30 * time.Minute

	// DefaultMaxSize is the total byte budget for one namespace.
	DefaultMaxSize int64 = 5 * 1024 * 1024

	// DefaultPrefix namespaces every key the Store writes.
	DefaultPrefix = "github-"
)

// Infinite is the age reported for absent or unreadable entries.
const Infinite time.Duration = math.MaxInt64

var errCorrupt = errors.New("corrupted cache entry")

// Entry is the persisted envelope around a payload.
type Entry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"` // creation, unix milliseconds
	Size      int             `json:"size"`      // byte length of Data
}

// Stats is a read-only snapshot of a namespace.
type Stats struct {
	// TotalSize sums the payload sizes (Entry.Size). The size budget is
	// checked against stored envelope bytes, which are somewhat larger.
	TotalSize      int64         `json:"total_size"`
	EntryCount     int           `json:"entry_count"`
	OldestEntryAge time.Duration `json:"oldest_entry_age"`
}

// Store is a TTL and size-bounded cache over a Medium.
//
// Keys passed to Store methods must carry the namespace prefix (see Key);
// the Store only enumerates, evicts, and clears keys under its prefix.
//
// Thread-safety: all methods are safe for concurrent use. Operations on
// the same key are serialized; eviction passes are serialized with each
// other.
type Store struct {
	medium  Medium
	clock   clock.Clock
	log     *slog.Logger
	maxAge  time.Duration
	maxSize int64
	prefix  string

	locks   keyLocks
	evictMu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithMaxAge sets the freshness window.
func WithMaxAge(d time.Duration) Option {
	return func(s *Store) { s.maxAge = d }
}

// WithMaxSize sets the namespace byte budget.
func WithMaxSize(n int64) Option {
	return func(s *Store) { s.maxSize = n }
}

// WithPrefix sets the key namespace.
func WithPrefix(p string) Option {
	return func(s *Store) { s.prefix = p }
}

// WithClock overrides the time source (tests).
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithLogger sets the logger used for write failures and eviction notices.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// New creates a Store over m.
func New(m Medium, opts ...Option) *Store {
	s := &Store{
		medium:  m,
		clock:   clock.Real{},
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxAge:  DefaultMaxAge,
		maxSize: DefaultMaxSize,
		prefix:  DefaultPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key builds a namespaced key.
func (s *Store) Key(name string) string {
	return s.prefix + name
}

// MaxAge returns the configured freshness window.
func (s *Store) MaxAge() time.Duration {
	return s.maxAge
}

// Set stores payload under key.
//
// If the write would push the namespace over its budget, the oldest half
// of the tracked entries is evicted first. Set reports false when the
// payload cannot be serialized, when the entry alone exceeds the budget,
// or when the medium rejects the write; the failure is logged, never
// returned.
func (s *Store) Set(ctx context.Context, key string, payload any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error("failed to serialize cache payload", "key", key, "error", err)
		return false
	}

	entry := Entry{
		Data:      data,
		Timestamp: s.clock.Now().UnixMilli(),
		Size:      len(data),
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		s.log.Error("failed to serialize cache entry", "key", key, "error", err)
		return false
	}
	if int64(len(raw)) > s.maxSize {
		s.log.Warn("cache entry exceeds size budget", "key", key, "size", len(raw), "max", s.maxSize)
		return false
	}

	unlock := s.locks.lock(key)
	defer unlock()

	total, err := s.totalSize(ctx)
	if err != nil {
		s.log.Warn("failed to measure cache size", "error", err)
	} else if total+int64(len(raw)) > s.maxSize {
		s.log.Warn("cache size limit reached, clearing old entries",
			"total", total, "incoming", len(raw), "max", s.maxSize)
		s.evictOldest(ctx)
	}

	if err := s.medium.Put(ctx, key, string(raw)); err != nil {
		s.log.Error("failed to cache data", "key", key, "error", err)
		return false
	}
	return true
}

// Get decodes the payload under key into dst.
//
// It reports false when the key is missing, the entry is corrupted, or the
// entry is older than the max age. Corrupted and expired entries are
// deleted as a side effect.
func (s *Store) Get(ctx context.Context, key string, dst any) bool {
	unlock := s.locks.lock(key)
	defer unlock()

	entry, err := s.read(ctx, key)
	switch {
	case errors.Is(err, ErrNotFound):
		return false
	case errors.Is(err, errCorrupt):
		s.log.Warn("dropping corrupted cache entry", "key", key, "error", err)
		s.delete(ctx, key)
		return false
	case err != nil:
		s.log.Error("failed to read cache entry", "key", key, "error", err)
		return false
	}

	age := s.age(entry)
	if age > s.maxAge {
		s.delete(ctx, key)
		return false
	}

	if err := json.Unmarshal(entry.Data, dst); err != nil {
		s.log.Warn("dropping undecodable cache entry", "key", key, "error", err)
		s.delete(ctx, key)
		return false
	}

	if age > s.maxAge/2 {
		s.log.Debug("cache is getting stale, consider background refresh", "key", key, "age", age)
	}
	return true
}

// IsStale reports whether key is absent, unreadable, or expired.
// It never mutates the medium.
func (s *Store) IsStale(ctx context.Context, key string) bool {
	entry, err := s.read(ctx, key)
	if err != nil {
		return true
	}
	return s.age(entry) > s.maxAge
}

// NeedsRefresh reports whether key is past half its max age (or stale).
func (s *Store) NeedsRefresh(ctx context.Context, key string) bool {
	entry, err := s.read(ctx, key)
	if err != nil {
		return true
	}
	return s.age(entry) > s.maxAge/2
}

// Age returns how long ago key was written, or Infinite when the entry is
// absent or unreadable.
func (s *Store) Age(ctx context.Context, key string) time.Duration {
	entry, err := s.read(ctx, key)
	if err != nil {
		return Infinite
	}
	return s.age(entry)
}

// Clear removes every entry in the namespace. Keys outside it are untouched.
func (s *Store) Clear(ctx context.Context) error {
	keys, err := s.medium.Keys(ctx, s.prefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := s.medium.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// Stats summarizes the namespace. Corrupted entries are skipped.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	keys, err := s.medium.Keys(ctx, s.prefix)
	if err != nil {
		return Stats{}, err
	}

	var st Stats
	now := s.clock.Now().UnixMilli()
	oldest := now
	for _, k := range keys {
		entry, err := s.read(ctx, k)
		if err != nil {
			continue
		}
		st.TotalSize += int64(entry.Size)
		st.EntryCount++
		if entry.Timestamp > 0 && entry.Timestamp < oldest {
			oldest = entry.Timestamp
		}
	}
	st.OldestEntryAge = time.Duration(now-oldest) * time.Millisecond
	return st, nil
}

func (s *Store) read(ctx context.Context, key string) (Entry, error) {
	raw, err := s.medium.Get(ctx, key)
	if err != nil {
		return Entry{}, err
	}
	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", errCorrupt, err)
	}
	return entry, nil
}

func (s *Store) age(e Entry) time.Duration {
	return time.Duration(s.clock.Now().UnixMilli()-e.Timestamp) * time.Millisecond
}

func (s *Store) delete(ctx context.Context, key string) {
	if err := s.medium.Delete(ctx, key); err != nil {
		s.log.Warn("failed to delete cache entry", "key", key, "error", err)
	}
}

// totalSize sums the stored byte length of every namespaced entry.
func (s *Store) totalSize(ctx context.Context) (int64, error) {
	keys, err := s.medium.Keys(ctx, s.prefix)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, k := range keys {
		raw, err := s.medium.Get(ctx, k)
		if err != nil {
			continue
		}
		total += int64(len(raw))
	}
	return total, nil
}

// evictOldest removes the oldest ceil(n/2) namespaced entries and any
// corrupted entries found along the way.
func (s *Store) evictOldest(ctx context.Context) {
	s.evictMu.Lock()
	defer s.evictMu.Unlock()

	keys, err := s.medium.Keys(ctx, s.prefix)
	if err != nil {
		s.log.Warn("eviction skipped", "error", err)
		return
	}

	type tracked struct {
		key       string
		timestamp int64
	}
	entries := make([]tracked, 0, len(keys))
	for _, k := range keys {
		entry, err := s.read(ctx, k)
		if errors.Is(err, errCorrupt) {
			s.delete(ctx, k)
			continue
		}
		if err != nil {
			continue
		}
		entries = append(entries, tracked{key: k, timestamp: entry.Timestamp})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].timestamp < entries[j].timestamp
	})

	// Other keys are not locked; each delete is one medium operation.
	n := (len(entries) + 1) / 2
	for _, e := range entries[:n] {
		s.delete(ctx, e.key)
	}
	s.log.Info("evicted cache entries", "removed", n, "tracked", len(entries))
}
