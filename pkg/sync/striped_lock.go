package sync

import (
	"sort"
	base "sync"
)

const (
	hashEntriesPerLock = 200
)

// StripedLock is a partitioned locking mechanism that consistently maps a key
// space to a set of locks. This provides concurrent data access while also
// limiting the total memory footprint.
type StripedLock struct {
	locks    []base.RWMutex
	hashRing *ring
}

// KeyAccess names a key and whether the holder intends to write to it.
type KeyAccess struct {
	Key      []byte
	Writable bool
}

// NewStripedLock returns a new StripedLock with a static number of stripes.
func NewStripedLock(stripes uint) *StripedLock {
	if stripes == 0 {
		stripes = 1
	}

	return &StripedLock{
		locks:    make([]base.RWMutex, stripes),
		hashRing: newRing(int(stripes), hashEntriesPerLock),
	}
}

// LockAll acquires every stripe covering keys and returns a function that
// releases them. A stripe is write locked when any key mapping to it is
// writable and read locked otherwise. Stripes are always acquired in index
// order, so concurrent callers with overlapping key sets cannot deadlock.
func (l *StripedLock) LockAll(keys ...KeyAccess) (unlock func()) {
	writable := make(map[int]bool)
	for _, k := range keys {
		stripe := l.stripe(k.Key)
		writable[stripe] = writable[stripe] || k.Writable
	}

	stripes := make([]int, 0, len(writable))
	for stripe := range writable {
		stripes = append(stripes, stripe)
	}
	sort.Ints(stripes)

	for _, stripe := range stripes {
		if writable[stripe] {
			l.locks[stripe].Lock()
		} else {
			l.locks[stripe].RLock()
		}
	}

	var once base.Once
	return func() {
		once.Do(func() {
			for i := len(stripes) - 1; i >= 0; i-- {
				stripe := stripes[i]
				if writable[stripe] {
					l.locks[stripe].Unlock()
				} else {
					l.locks[stripe].RUnlock()
				}
			}
		})
	}
}

func (l *StripedLock) stripe(key []byte) int {
	return l.hashRing.shard(key)
}
