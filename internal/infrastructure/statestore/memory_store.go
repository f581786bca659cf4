package statestore

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// MemoryStore is the in-process fallback tier. It reproduces the shared
// tier's key/TTL semantics so velocity classification is identical at the
// documented thresholds, but it is explicitly weaker: state is not shared
// across processes and does not survive a restart.
type MemoryStore struct {
	mu       sync.Mutex
	values   map[string]memEntry
	lists    map[string]memList
	handlers map[string]Handler

	// now is swappable for tests.
	now func() time.Time
}

type memEntry struct {
	value     string
	expiresAt time.Time
}

type memList struct {
	items     []string
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values:   make(map[string]memEntry),
		lists:    make(map[string]memList),
		handlers: make(map[string]Handler),
		now:      time.Now,
	}
}

// Available always reports true: the process can always reach its own maps.
func (s *MemoryStore) Available() bool { return true }

func (e memEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.values[key]
	if !ok || e.expired(s.now()) {
		delete(s.values, key)
		return "", false
	}
	return e.value, true
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exp time.Time
	if ttl > 0 {
		exp = s.now().Add(ttl)
	}
	s.values[key] = memEntry{value: value, expiresAt: exp}
	return true
}

func (s *MemoryStore) IncrWithTTL(_ context.Context, key string, ttl time.Duration) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.values[key]
	if !ok || e.expired(now) {
		// Fresh counter: TTL starts now, matching EXPIRE NX semantics.
		s.values[key] = memEntry{value: "1", expiresAt: now.Add(ttl)}
		return 1, true
	}
	n, _ := strconv.ParseInt(e.value, 10, 64)
	n++
	e.value = strconv.FormatInt(n, 10)
	s.values[key] = e
	return n, true
}

func (s *MemoryStore) AcquireLock(_ context.Context, key, value string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.values[key]; ok && !e.expired(now) {
		return false
	}
	s.values[key] = memEntry{value: value, expiresAt: now.Add(ttl)}
	return true
}

func (s *MemoryStore) PushList(_ context.Context, key, value string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	l, ok := s.lists[key]
	if !ok || (!l.expiresAt.IsZero() && now.After(l.expiresAt)) {
		l = memList{}
	}
	l.items = append([]string{value}, l.items...)
	l.expiresAt = now.Add(ttl)
	s.lists[key] = l
	return true
}

// Publish delivers synchronously to the registered handler, which makes the
// in-process store a usable single-process pub/sub.
func (s *MemoryStore) Publish(_ context.Context, channel string, payload []byte) bool {
	s.mu.Lock()
	h, ok := s.handlers[channel]
	s.mu.Unlock()

	if !ok {
		return false
	}
	h(payload)
	return true
}

func (s *MemoryStore) Subscribe(channel string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[channel] = h
}

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
