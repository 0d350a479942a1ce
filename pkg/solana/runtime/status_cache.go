package runtime

import (
	"crypto/rand"
	"crypto/sha256"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/code-payments/code-runtime/pkg/solana"
)

const (
	estimatedSignaturesPerBlockhash = 10000
	signatureFilterErrRate          = 0.01
)

// statusEntry tracks the signatures processed against a single blockhash. The
// bloom filter answers most negative lookups without touching the exact set.
type statusEntry struct {
	filter     *bloom.BloomFilter
	signatures map[solana.Signature]struct{}
}

func newStatusEntry() *statusEntry {
	return &statusEntry{
		filter:     bloom.NewWithEstimates(estimatedSignaturesPerBlockhash, signatureFilterErrRate),
		signatures: make(map[solana.Signature]struct{}),
	}
}

func (e *statusEntry) contains(sig solana.Signature) bool {
	if !e.filter.Test(sig[:]) {
		return false
	}
	_, ok := e.signatures[sig]
	return ok
}

func (e *statusEntry) add(sig solana.Signature) {
	e.filter.Add(sig[:])
	e.signatures[sig] = struct{}{}
}

// statusCache is a bounded queue of recent blockhashes, each with the
// signatures of transactions processed against it. Once a blockhash falls
// out of the queue, transactions referencing it are rejected, so its
// signatures no longer need to be remembered.
type statusCache struct {
	mu        sync.Mutex
	maxHashes int
	queue     []solana.Blockhash
	entries   map[solana.Blockhash]*statusEntry
}

func newStatusCache(maxHashes int) *statusCache {
	if maxHashes < 1 {
		maxHashes = 1
	}

	c := &statusCache{
		maxHashes: maxHashes,
		entries:   make(map[solana.Blockhash]*statusEntry),
	}
	c.mint()
	return c
}

func (c *statusCache) latest() solana.Blockhash {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.queue[len(c.queue)-1]
}

// expire mints a new latest blockhash, evicting the oldest one when the
// queue is full.
func (c *statusCache) expire() solana.Blockhash {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.mint()
}

func (c *statusCache) mint() solana.Blockhash {
	var seed [32]byte
	_, _ = rand.Read(seed[:])

	var bh solana.Blockhash
	if len(c.queue) > 0 {
		prev := c.queue[len(c.queue)-1]
		bh = sha256.Sum256(append(prev[:], seed[:]...))
	} else {
		bh = sha256.Sum256(seed[:])
	}

	c.queue = append(c.queue, bh)
	c.entries[bh] = newStatusEntry()

	for len(c.queue) > c.maxHashes {
		delete(c.entries, c.queue[0])
		c.queue = c.queue[1:]
	}

	return bh
}

func (c *statusCache) isRecent(bh solana.Blockhash) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[bh]
	return ok
}

// reserve records sig against bh, or against the latest blockhash when bh is
// not recent. It returns false if sig was already recorded against any
// recent blockhash.
func (c *statusCache) reserve(bh solana.Blockhash, sig solana.Signature) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, entry := range c.entries {
		if entry.contains(sig) {
			return false
		}
	}

	entry, ok := c.entries[bh]
	if !ok {
		entry = c.entries[c.queue[len(c.queue)-1]]
	}
	entry.add(sig)
	return true
}

// release forgets a reserved signature. The bloom filter cannot forget, so
// only the exact set is updated.
func (c *statusCache) release(sig solana.Signature) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, entry := range c.entries {
		delete(entry.signatures, sig)
	}
}
