package library

import (
	"bytes"
	"slices"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/nspcc-dev/tonlib-go/pkg/tl"
)

// Dependencies remembers libraries used by contract code. Sets only grow
// until the entry expires.
type Dependencies struct {
	lock  sync.Mutex
	cache *expirable.LRU[tl.Hash, []tl.Hash]
}

// NewDependencies creates a Dependencies cache, zero capacity and ttl are
// replaced with DefaultCapacity and DefaultTTL.
func NewDependencies(capacity int, ttl time.Duration) *Dependencies {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Dependencies{
		cache: expirable.NewLRU[tl.Hash, []tl.Hash](capacity, nil, ttl),
	}
}

// Get returns libraries known for the code hash in ascending order.
func (d *Dependencies) Get(code tl.Hash) []tl.Hash {
	d.lock.Lock()
	defer d.lock.Unlock()
	libs, _ := d.cache.Get(code)
	return slices.Clone(libs)
}

// Update adds libraries to the code set. It returns true if the set has
// changed.
func (d *Dependencies) Update(code tl.Hash, libs ...tl.Hash) bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	cur, ok := d.cache.Get(code)
	next := slices.Clone(cur)
	for _, l := range libs {
		i, found := slices.BinarySearchFunc(next, l, compareHashes)
		if !found {
			next = slices.Insert(next, i, l)
		}
	}
	if ok && len(next) == len(cur) {
		return false
	}
	d.cache.Add(code, next)
	return len(next) != len(cur)
}

func compareHashes(a, b tl.Hash) int {
	return bytes.Compare(a[:], b[:])
}
