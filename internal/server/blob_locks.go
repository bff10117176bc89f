package server

import "sync"

// blobLocks serializes work on one blob key. Upload holds a key from the
// moment its bytes are confirmed until the media row references them; GC
// holds it across deleting the row and the bytes.
type blobLocks struct {
	mu    sync.Mutex
	locks map[string]*blobLock
}

type blobLock struct {
	sync.Mutex
	refs int
}

// lock blocks until key is free and returns the matching unlock.
func (b *blobLocks) lock(key string) func() {
	b.mu.Lock()
	if b.locks == nil {
		b.locks = map[string]*blobLock{}
	}
	l, ok := b.locks[key]
	if !ok {
		l = &blobLock{}
		b.locks[key] = l
	}
	l.refs++
	b.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		b.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(b.locks, key)
		}
		b.mu.Unlock()
	}
}
