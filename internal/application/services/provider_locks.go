package services

import (
	"sort"
	"sync"
)

const (
	providerLockPrefix = "provider:"
	patientLockPrefix  = "patient:"
)

// ProviderLocks hands out per-key read/write locks. Keys are acquired in sorted order,
// so callers locking several queues at once can never deadlock one another.
// Every patient key sorts before every provider key.
type ProviderLocks struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.RWMutex
	refs int
}

// NewProviderLocks creates an empty lock table
func NewProviderLocks() *ProviderLocks {
	return &ProviderLocks{locks: make(map[string]*refLock)}
}

func providerKey(providerID string) string { return providerLockPrefix + providerID }

func patientKey(patientID string) string { return patientLockPrefix + patientID }

// Lock exclusively acquires every key and returns the function that releases them
func (l *ProviderLocks) Lock(keys ...string) (unlock func()) {
	keys = sortedUnique(keys)
	held := make([]*refLock, 0, len(keys))
	for _, k := range keys {
		lk := l.acquire(k)
		lk.Lock()
		held = append(held, lk)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
			l.release(keys[i])
		}
	}
}

// RLock acquires a shared lock on one key
func (l *ProviderLocks) RLock(key string) (unlock func()) {
	lk := l.acquire(key)
	lk.RLock()
	return func() {
		lk.RUnlock()
		l.release(key)
	}
}

func (l *ProviderLocks) acquire(key string) *refLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	lk, ok := l.locks[key]
	if !ok {
		lk = &refLock{}
		l.locks[key] = lk
	}
	lk.refs++
	return lk
}

func (l *ProviderLocks) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lk, ok := l.locks[key]
	if !ok {
		return
	}
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, key)
	}
}

// size reports the number of live lock entries
func (l *ProviderLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func sortedUnique(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
