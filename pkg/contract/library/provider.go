/*
Package library implements a cache of library cells referenced by contract
code. Libraries are immutable, so cached entries are only bounded by capacity
and age.
*/
package library

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/nspcc-dev/tonlib-go/pkg/rpcclient"
	"github.com/nspcc-dev/tonlib-go/pkg/tl"
	"go.uber.org/zap"
)

// Provider defaults.
const (
	DefaultCapacity = 300
	DefaultTTL      = time.Hour
	// MaxBatch is the maximum number of libraries requested at once.
	MaxBatch = 255
)

// ErrNotFound is returned when the node doesn't know the library.
var ErrNotFound = errors.New("library not found")

// Loader fetches libraries by their hashes. Unknown libraries are omitted
// from the result.
type Loader interface {
	LoadLibraries(ctx context.Context, hashes []tl.Hash) ([]tl.SmcLibraryEntry, error)
}

// BlockchainLoader loads libraries from the node.
type BlockchainLoader struct {
	api rpcclient.API
}

// NewBlockchainLoader creates a loader sending smc.getLibraries via inv.
func NewBlockchainLoader(inv rpcclient.Invoker) *BlockchainLoader {
	return &BlockchainLoader{api: rpcclient.NewAPI(inv)}
}

// LoadLibraries implements the Loader interface, hashes are requested in
// batches of at most MaxBatch.
func (l *BlockchainLoader) LoadLibraries(ctx context.Context, hashes []tl.Hash) ([]tl.SmcLibraryEntry, error) {
	var res []tl.SmcLibraryEntry
	for len(hashes) > 0 {
		n := min(len(hashes), MaxBatch)
		r, err := l.api.SmcGetLibraries(ctx, hashes[:n])
		if err != nil {
			return nil, err
		}
		res = append(res, r.Result...)
		hashes = hashes[n:]
	}
	return res, nil
}

// Options are Provider options.
type Options struct {
	// Capacity is DefaultCapacity if not set.
	Capacity int
	// TTL is DefaultTTL if not set.
	TTL time.Duration
	Log *zap.Logger
}

// Provider is a library cache. Concurrent requests of the same library
// share a single load.
type Provider struct {
	loader Loader
	cache  *expirable.LRU[tl.Hash, []byte]
	log    *zap.Logger

	lock     sync.Mutex
	inflight map[tl.Hash]*flight
}

type flight struct {
	done chan struct{}
	data []byte
	err  error
}

// NewProvider creates a Provider over the given loader.
func NewProvider(loader Loader, opts Options) *Provider {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &Provider{
		loader:   loader,
		cache:    expirable.NewLRU[tl.Hash, []byte](opts.Capacity, nil, opts.TTL),
		log:      opts.Log,
		inflight: make(map[tl.Hash]*flight),
	}
}

// GetOrLoad returns libraries for the given hashes taking them from the cache
// or loading misses. Libraries unknown to the node are missing from the
// result. Returned data must not be modified.
func (p *Provider) GetOrLoad(ctx context.Context, hashes []tl.Hash) (map[tl.Hash][]byte, error) {
	var (
		res  = make(map[tl.Hash][]byte, len(hashes))
		own  = make(map[tl.Hash]*flight)
		wait = make(map[tl.Hash]*flight)
		miss []tl.Hash
	)
	p.lock.Lock()
	for _, h := range hashes {
		if _, ok := res[h]; ok {
			continue
		}
		if _, ok := own[h]; ok {
			continue
		}
		if _, ok := wait[h]; ok {
			continue
		}
		if data, ok := p.cache.Get(h); ok {
			res[h] = data
			continue
		}
		if f, ok := p.inflight[h]; ok {
			wait[h] = f
			continue
		}
		f := &flight{done: make(chan struct{})}
		p.inflight[h] = f
		own[h] = f
		miss = append(miss, h)
	}
	p.lock.Unlock()

	if len(miss) > 0 {
		p.log.Debug("loading libraries",
			zap.Int("requested", len(hashes)),
			zap.Int("missing", len(miss)))
		if err := p.load(ctx, miss, own, res); err != nil {
			return nil, err
		}
	}
	for h, f := range wait {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-f.done:
		}
		if f.err != nil {
			return nil, f.err
		}
		if f.data != nil {
			res[h] = f.data
		}
	}
	return res, nil
}

// GetLibrary returns a single library, ErrNotFound is returned if the node
// doesn't have it.
func (p *Provider) GetLibrary(ctx context.Context, h tl.Hash) ([]byte, error) {
	res, err := p.GetOrLoad(ctx, []tl.Hash{h})
	if err != nil {
		return nil, err
	}
	data, ok := res[h]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, h)
	}
	return data, nil
}

// Len returns the number of cached libraries.
func (p *Provider) Len() int {
	return p.cache.Len()
}

// load fetches miss in batches and completes flights of this call.
func (p *Provider) load(ctx context.Context, miss []tl.Hash, flights map[tl.Hash]*flight, res map[tl.Hash][]byte) error {
	var loadErr error
	for i := 0; i < len(miss); i += MaxBatch {
		entries, err := p.loader.LoadLibraries(ctx, miss[i:min(i+MaxBatch, len(miss))])
		if err != nil {
			loadErr = fmt.Errorf("failed to load libraries: %w", err)
			break
		}
		for _, e := range entries {
			f, ok := flights[e.Hash]
			if !ok || f.data != nil {
				continue
			}
			f.data = e.Data
			p.cache.Add(e.Hash, e.Data)
			res[e.Hash] = e.Data
		}
	}

	p.lock.Lock()
	for h, f := range flights {
		delete(p.inflight, h)
		if loadErr != nil {
			f.err = loadErr
		}
		close(f.done)
	}
	p.lock.Unlock()
	return loadErr
}
