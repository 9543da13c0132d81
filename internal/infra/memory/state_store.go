package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"live-quiz-service/internal/domain"
)

// StateStore is the in-memory implementation of the ephemeral state
// capability, including pub/sub, for running without Redis and for tests.
type StateStore struct {
	mu      sync.RWMutex
	strings map[string]stringEntry
	hashes  map[string]map[string]string
	sets    map[string]map[string]struct{}
	subs    map[string]map[chan []byte]struct{}
	clock   func() time.Time
}

type stringEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func NewStateStore() *StateStore {
	return &StateStore{
		strings: make(map[string]stringEntry),
		hashes:  make(map[string]map[string]string),
		sets:    make(map[string]map[string]struct{}),
		subs:    make(map[string]map[chan []byte]struct{}),
		clock:   time.Now,
	}
}

func (s *StateStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.strings[key]
	if !ok {
		return "", domain.ErrKeyNotFound
	}
	if !entry.expiresAt.IsZero() && !entry.expiresAt.After(s.clock()) {
		delete(s.strings, key)
		return "", domain.ErrKeyNotFound
	}
	return entry.value, nil
}

func (s *StateStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := stringEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = s.clock().Add(ttl)
	}
	s.strings[key] = entry
	return nil
}

func (s *StateStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.strings, key)
		delete(s.hashes, key)
		delete(s.sets, key)
	}
	return nil
}

func (s *StateStore) HSet(_ context.Context, key, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	hash, ok := s.hashes[key]
	if !ok {
		hash = make(map[string]string)
		s.hashes[key] = hash
	}
	hash[field] = value
	return nil
}

func (s *StateStore) HGet(_ context.Context, key, field string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.hashes[key][field]
	if !ok {
		return "", domain.ErrKeyNotFound
	}
	return value, nil
}

func (s *StateStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.hashes[key]))
	for field, value := range s.hashes[key] {
		out[field] = value
	}
	return out, nil
}

func (s *StateStore) HLen(_ context.Context, key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.hashes[key])), nil
}

func (s *StateStore) Incr(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := int64(0)
	if entry, ok := s.strings[key]; ok {
		parsed, err := strconv.ParseInt(entry.value, 10, 64)
		if err != nil {
			return 0, err
		}
		current = parsed
	}
	current++
	s.strings[key] = stringEntry{value: strconv.FormatInt(current, 10)}
	return current, nil
}

func (s *StateStore) HIncrBy(_ context.Context, key, field string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hash, ok := s.hashes[key]
	if !ok {
		hash = make(map[string]string)
		s.hashes[key] = hash
	}
	current := int64(0)
	if raw, ok := hash[field]; ok {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, err
		}
		current = parsed
	}
	current += delta
	hash[field] = strconv.FormatInt(current, 10)
	return current, nil
}

func (s *StateStore) SAdd(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{})
		s.sets[key] = set
	}
	for _, member := range members {
		set[member] = struct{}{}
	}
	return nil
}

// Publish fans a payload out to every subscriber of the channel. A slow
// subscriber has its oldest pending message dropped rather than blocking
// the publisher.
func (s *StateStore) Publish(_ context.Context, channel string, payload []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for ch := range s.subs[channel] {
		select {
		case ch <- payload:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- payload:
			default:
			}
		}
	}
	return nil
}

// Subscribe registers a channel listener; the cancel function removes it.
func (s *StateStore) Subscribe(_ context.Context, channel string) (<-chan []byte, func(), error) {
	ch := make(chan []byte, 16)

	s.mu.Lock()
	listeners, ok := s.subs[channel]
	if !ok {
		listeners = make(map[chan []byte]struct{})
		s.subs[channel] = listeners
	}
	listeners[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if listeners, ok := s.subs[channel]; ok {
			if _, present := listeners[ch]; present {
				delete(listeners, ch)
				close(ch)
			}
			if len(listeners) == 0 {
				delete(s.subs, channel)
			}
		}
	}
	return ch, cancel, nil
}
