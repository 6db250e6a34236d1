package session

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Fixed keys shared by every tab.
const (
	TokenKey        = "portal.token"
	RoleKey         = "portal.role"
	UserScopePrefix = "user:"
)

// OriginExternal marks events detected by Watch rather than written by a tab.
const OriginExternal = "external"

// StorageEvent is broadcast to every tab except the writer.
// NewValue is empty when the key was removed.
type StorageEvent struct {
	Key      string `json:"key"`
	OldValue string `json:"oldValue"`
	NewValue string `json:"newValue"`
}

func (e StorageEvent) Removed() bool { return e.NewValue == "" }

// Backend is the shared key/value store behind every tab's Storage.
type Backend interface {
	Get(key string) (string, bool, error)
	Put(key, value string) error
	Delete(key string) error
	Keys(prefix string) ([]string, error)
}

// Bus fans storage events out to subscribed tabs.
type Bus struct {
	mu   sync.RWMutex
	next int
	subs map[int]subscriber
}

type subscriber struct {
	origin string
	fn     func(StorageEvent)
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]subscriber)}
}

// Subscribe registers fn for events not originating from origin.
// fn runs on the publisher's goroutine and must not block.
func (b *Bus) Subscribe(origin string, fn func(StorageEvent)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = subscriber{origin: origin, fn: fn}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

func (b *Bus) Publish(origin string, ev StorageEvent) {
	b.mu.RLock()
	ids := make([]int, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	targets := make([]func(StorageEvent), 0, len(ids))
	for _, id := range ids {
		s := b.subs[id]
		if s.origin == origin {
			continue
		}
		targets = append(targets, s.fn)
	}
	b.mu.RUnlock()

	for _, fn := range targets {
		fn(ev)
	}
}

// Storage is one tab's view of the shared backend.
type Storage struct {
	backend Backend
	bus     *Bus
	origin  string

	mu   sync.Mutex
	seen map[string]string
}

func NewStorage(backend Backend, bus *Bus) *Storage {
	return &Storage{
		backend: backend,
		bus:     bus,
		origin:  uuid.NewString(),
		seen:    make(map[string]string),
	}
}

func (s *Storage) Origin() string { return s.origin }

func (s *Storage) Subscribe(fn func(StorageEvent)) func() {
	return s.bus.Subscribe(s.origin, fn)
}

func (s *Storage) Get(key string) (string, error) {
	v, _, err := s.backend.Get(key)
	return v, err
}

// Set writes value; an empty value removes the key.
func (s *Storage) Set(key, value string) error {
	if value == "" {
		return s.Remove(key)
	}
	old, _, err := s.backend.Get(key)
	if err != nil {
		return err
	}
	if old == value {
		return nil
	}
	if err := s.backend.Put(key, value); err != nil {
		return err
	}
	s.remember(key, value)
	s.bus.Publish(s.origin, StorageEvent{Key: key, OldValue: old, NewValue: value})
	return nil
}

func (s *Storage) Remove(key string) error {
	old, ok, err := s.backend.Get(key)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := s.backend.Delete(key); err != nil {
		return err
	}
	s.remember(key, "")
	s.bus.Publish(s.origin, StorageEvent{Key: key, OldValue: old})
	return nil
}

func (s *Storage) RemovePrefix(prefix string) error {
	keys, err := s.backend.Keys(prefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := s.Remove(k); err != nil {
			return err
		}
	}
	return nil
}

func (s *Storage) remember(key, value string) {
	s.mu.Lock()
	s.seen[key] = value
	s.mu.Unlock()
}

// Watch polls keys and publishes changes made outside this process
// (another portalctl invocation sharing the same bolt file).
func (s *Storage) Watch(ctx context.Context, every time.Duration, keys ...string) {
	for _, k := range keys {
		v, _, _ := s.backend.Get(k)
		s.remember(k, v)
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for _, k := range keys {
				s.poll(k)
			}
		}
	}
}

func (s *Storage) poll(key string) {
	cur, _, err := s.backend.Get(key)
	if err != nil {
		return
	}
	s.mu.Lock()
	old := s.seen[key]
	if old == cur {
		s.mu.Unlock()
		return
	}
	s.seen[key] = cur
	s.mu.Unlock()
	s.bus.Publish(OriginExternal, StorageEvent{Key: key, OldValue: old, NewValue: cur})
}

// MemoryBackend keeps values in process memory; tabs sharing it behave like
// browser tabs sharing localStorage.
type MemoryBackend struct {
	mu sync.RWMutex
	m  map[string]string
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{m: make(map[string]string)}
}

func (b *MemoryBackend) Get(key string) (string, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.m[key]
	return v, ok, nil
}

func (b *MemoryBackend) Put(key, value string) error {
	b.mu.Lock()
	b.m[key] = value
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) Delete(key string) error {
	b.mu.Lock()
	delete(b.m, key)
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) Keys(prefix string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []string
	for k := range b.m {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}
