package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time // zero means no expiry
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore is the in-process fallback Store. Expiry is lazy: entries past
// their TTL are dropped when touched, no background sweeper runs, and no
// entry is ever returned past its expiry.
//
// Every operation holds one process-wide mutex, so counters and sets are
// atomic within this process only. State is not persisted across restarts.
type MemoryStore struct {
	mu    sync.Mutex
	codec Codec
	log   *zap.Logger
	items map[string]memoryEntry
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryCodec sets the codec used for values. Defaults to JSONCodec.
func WithMemoryCodec(c Codec) MemoryOption {
	return func(s *MemoryStore) { s.codec = c }
}

// WithMemoryLogger sets the logger used for codec failures.
func WithMemoryLogger(log *zap.Logger) MemoryOption {
	return func(s *MemoryStore) { s.log = log }
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{codec: JSONCodec{}, log: zap.NewNop(), items: make(map[string]memoryEntry)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// live returns the entry at key if present and unexpired, dropping it
// otherwise. Callers must hold s.mu.
func (s *MemoryStore) live(key string) (memoryEntry, bool) {
	e, ok := s.items[key]
	if !ok {
		return memoryEntry{}, false
	}
	if e.expired(time.Now()) {
		delete(s.items, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (s *MemoryStore) put(key string, value any, ttl time.Duration) error {
	data, err := s.codec.Marshal(value)
	if err != nil {
		s.log.Error("encode failed", zap.String("key", key), zap.Error(err))
		return err
	}
	e := memoryEntry{data: data}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	s.items[key] = e
	return nil
}

// Get implements Store.Get.
func (s *MemoryStore) Get(ctx context.Context, key string, out any) (bool, error) {
	s.mu.Lock()
	e, ok := s.live(key)
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := s.codec.Unmarshal(e.data, out); err != nil {
		s.log.Error("decode failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
	return true, nil
}

// Set implements Store.Set.
func (s *MemoryStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(key, value, ttl)
}

// SetNX implements Store.SetNX.
func (s *MemoryStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live(key); ok {
		return false, nil
	}
	if err := s.put(key, value, ttl); err != nil {
		return false, err
	}
	return true, nil
}

// Delete implements Store.Delete.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}

// IncrBy implements Store.IncrBy. The read-modify-write runs under the
// store mutex, which is what makes it atomic within the process.
func (s *MemoryStore) IncrBy(ctx context.Context, name string, amount int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var current int64
	if e, ok := s.live(name); ok {
		if err := s.codec.Unmarshal(e.data, &current); err != nil {
			return 0, err
		}
	}
	current += amount
	if err := s.put(name, current, 0); err != nil {
		return 0, err
	}
	return current, nil
}

func (s *MemoryStore) members(name string) (map[string]struct{}, error) {
	set := make(map[string]struct{})
	e, ok := s.live(name)
	if !ok {
		return set, nil
	}
	var list []string
	if err := s.codec.Unmarshal(e.data, &list); err != nil {
		return nil, err
	}
	for _, m := range list {
		set[m] = struct{}{}
	}
	return set, nil
}

func (s *MemoryStore) storeMembers(name string, set map[string]struct{}) error {
	list := make([]string, 0, len(set))
	for m := range set {
		list = append(list, m)
	}
	sort.Strings(list)
	return s.put(name, list, 0)
}

// SAdd implements Store.SAdd. The set is materialized as a serialized list
// under the same key, mutated whole under the store mutex.
func (s *MemoryStore) SAdd(ctx context.Context, name, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, err := s.members(name)
	if err != nil {
		return err
	}
	set[member] = struct{}{}
	return s.storeMembers(name, set)
}

// SRem implements Store.SRem.
func (s *MemoryStore) SRem(ctx context.Context, name, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, err := s.members(name)
	if err != nil {
		return err
	}
	delete(set, member)
	return s.storeMembers(name, set)
}

// SMembers implements Store.SMembers.
func (s *MemoryStore) SMembers(ctx context.Context, name string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, err := s.members(name)
	if err != nil {
		return nil, err
	}
	list := make([]string, 0, len(set))
	for m := range set {
		list = append(list, m)
	}
	sort.Strings(list)
	return list, nil
}

// Size implements Store.Size. Expired entries still waiting for a lazy drop
// are not counted.
func (s *MemoryStore) Size(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var n int64
	for k, e := range s.items {
		if e.expired(now) {
			delete(s.items, k)
			continue
		}
		n++
	}
	return n, nil
}

// Backend implements Store.Backend.
func (s *MemoryStore) Backend() string { return "memory" }
