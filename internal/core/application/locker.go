package application

import (
	"slices"
	"strconv"
	"strings"
	"sync"
)

// Locker serializes operations touching the same asset or lien across services.
// Lock always acquires the mint and asset keys before lien keys, each group in lexical order,
// so two callers never wait on each other in a cycle.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*keyLock)}
}

// Lock acquires the given keys, skipping duplicates, and returns the release func.
// Keys nobody holds or waits for are dropped on release.
func (l *Locker) Lock(keys ...string) func() {
	ordered := slices.Clone(keys)
	slices.SortFunc(ordered, compareKeys)
	ordered = slices.Compact(ordered)

	held := make([]string, 0, len(ordered))
	for _, key := range ordered {
		l.acquire(key)
		held = append(held, key)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.release(held[i])
		}
	}
}

func (l *Locker) acquire(key string) {
	l.mu.Lock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &keyLock{}
		l.locks[key] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.Lock()
}

func (l *Locker) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock := l.locks[key]
	lock.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, key)
	}
}

func (l *Locker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func compareKeys(a, b string) int {
	if rank, other := keyRank(a), keyRank(b); rank != other {
		return rank - other
	}
	return strings.Compare(a, b)
}

func keyRank(key string) int {
	switch {
	case key == mintKey:
		return 0
	case strings.HasPrefix(key, "asset:"):
		return 1
	default:
		return 2
	}
}

func assetKey(id uint64) string {
	return "asset:" + strconv.FormatUint(id, 10)
}

func lienKey(id string) string {
	return "lien:" + id
}

const mintKey = "registry:mint"
