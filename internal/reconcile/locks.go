package reconcile

import (
	"sort"
	"sync"
)

// keyedMutex serialises work on arbitrary string keys. Entries are reference
// counted and dropped once nobody holds or waits for them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[string]*keyLock{}}
}

// Lock acquires every key in sorted order and returns the release function.
// Sorting keeps two callers with overlapping key sets from deadlocking.
func (k *keyedMutex) Lock(keys []string) func() {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	var held []string
	for i, key := range sorted {
		if i > 0 && key == sorted[i-1] {
			continue
		}
		k.mu.Lock()
		l, ok := k.locks[key]
		if !ok {
			l = &keyLock{}
			k.locks[key] = l
		}
		l.refs++
		k.mu.Unlock()

		l.mu.Lock()
		held = append(held, key)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			k.unlock(held[i])
		}
	}
}

func (k *keyedMutex) unlock(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l := k.locks[key]
	l.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}
