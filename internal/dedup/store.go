// ABOUTME: Bounded, globally FIFO-evicted store of content hashes seen by a receiver.
// ABOUTME: Lookup keys on (message type, hash); client scope is kept only for provenance.

package dedup

import (
	"container/list"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/courier/internal/metrics"
	"github.com/2389/courier/internal/wire"
)

// Scope identifies a logical sending stream. It groups entries in snapshots
// and never takes part in lookups.
type Scope struct {
	Type    uint8
	ScopeID uint32
}

// identity is the lookup key: the same hash under another type is a miss.
type identity struct {
	typ  uint8
	hash wire.Hash
}

// entry is one retained hash. It is never mutated after insertion.
type entry struct {
	id         identity
	group      *group
	insertedAt int64 // unix millis
	elem       *list.Element
}

// group holds the provenance of entries recorded under one scope.
type group struct {
	scope   Scope
	entries map[wire.Hash]*entry
	elem    *list.Element
}

// Store is safe for concurrent use. A single capacity bound applies across all
// scopes: when full, the oldest entry from any scope is evicted first, so a
// busy scope can push out a quiet scope's entries.
type Store struct {
	mu       sync.Mutex
	capacity int
	index    map[identity]*entry
	order    *list.List // *entry, oldest at front
	groups   map[Scope]*group
	groupSeq *list.List // *group, first-seen order

	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Dedup
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now for insertion timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records inserts, evictions, and size on m.
func WithMetrics(m *metrics.Dedup) Option {
	return func(s *Store) { s.metrics = m }
}

// New creates an empty store holding at most capacity entries. A capacity
// below 1 is treated as 1.
func New(capacity int, opts ...Option) *Store {
	if capacity < 1 {
		capacity = 1
	}
	s := &Store{
		capacity: capacity,
		now:      time.Now,
		logger:   slog.Default(),
	}
	s.reset()
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "dedup")
	return s
}

// reset clears all contents. Must be called with mu held (or before sharing).
func (s *Store) reset() {
	s.index = make(map[identity]*entry)
	s.order = list.New()
	s.groups = make(map[Scope]*group)
	s.groupSeq = list.New()
}

// Add records hash as seen now under the (msgType, scopeID) group. It returns
// false and changes nothing when (msgType, hash) is already retained.
func (s *Store) Add(msgType uint8, scopeID uint32, hash wire.Hash) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(Scope{Type: msgType, ScopeID: scopeID}, hash, s.now().UnixMilli())
}

// Contains reports whether hash is retained for msgType, under any scope.
func (s *Store) Contains(msgType uint8, hash wire.Hash) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[identity{typ: msgType, hash: hash}]
	return ok
}

// CheckAndAdd atomically tests for hash and records it if absent. It returns
// true when the hash was already retained.
func (s *Store) CheckAndAdd(msgType uint8, scopeID uint32, hash wire.Hash) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.addLocked(Scope{Type: msgType, ScopeID: scopeID}, hash, s.now().UnixMilli())
}

// Len returns the number of retained entries across all scopes.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}

// Capacity returns the configured bound.
func (s *Store) Capacity() int {
	return s.capacity
}

// GroupInfo summarises one scope's retained entries.
type GroupInfo struct {
	Scope   Scope
	Entries int
}

// Groups lists scopes with retained entries in first-seen order.
func (s *Store) Groups() []GroupInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]GroupInfo, 0, len(s.groups))
	for e := s.groupSeq.Front(); e != nil; e = e.Next() {
		g := e.Value.(*group)
		out = append(out, GroupInfo{Scope: g.scope, Entries: len(g.entries)})
	}
	return out
}

func (s *Store) addLocked(scope Scope, hash wire.Hash, at int64) bool {
	id := identity{typ: scope.Type, hash: hash}
	if _, exists := s.index[id]; exists {
		return false
	}

	if len(s.index) >= s.capacity {
		s.evictOldest()
	}

	g, ok := s.groups[scope]
	if !ok {
		g = &group{scope: scope, entries: make(map[wire.Hash]*entry)}
		g.elem = s.groupSeq.PushBack(g)
		s.groups[scope] = g
	}

	e := &entry{id: id, group: g, insertedAt: at}
	e.elem = s.order.PushBack(e)
	g.entries[hash] = e
	s.index[id] = e

	s.metrics.Insert(len(s.index))
	return true
}

// evictOldest removes the globally oldest entry. Must be called with mu held.
func (s *Store) evictOldest() {
	front := s.order.Front()
	if front == nil {
		return
	}
	e := front.Value.(*entry)
	s.order.Remove(front)
	delete(s.index, e.id)

	g := e.group
	delete(g.entries, e.id.hash)
	if len(g.entries) == 0 {
		s.groupSeq.Remove(g.elem)
		delete(s.groups, g.scope)
	}

	s.metrics.Evict()
	s.logger.Debug("evicted dedup entry",
		"type", e.id.typ,
		"scope_id", g.scope.ScopeID,
		"hash", e.id.hash.String(),
	)
}
