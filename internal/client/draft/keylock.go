package draft

import "sync"

// keyLocks serializes operations per storage key. Locks are reference
// counted and dropped once nobody holds or waits for them, so the map only
// grows with the number of keys in flight.
type keyLocks struct {
	locks map[string]*keyLock
	mu    sync.Mutex
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*keyLock)}
}

// lock блокирует key и возвращает функцию разблокировки
func (k *keyLocks) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// size возвращает число ключей с активными блокировками
func (k *keyLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()

	return len(k.locks)
}
