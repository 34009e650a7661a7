package library

import (
	"context"
	"crypto/sha256"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/nspcc-dev/tonlib-go/internal/fakenode"
	"github.com/nspcc-dev/tonlib-go/pkg/rpcclient"
	"github.com/nspcc-dev/tonlib-go/pkg/tl"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

// lruCleaner is the expiration goroutine of expirable caches, it never
// exits.
var lruCleaner = goleak.IgnoreAnyFunction("github.com/hashicorp/golang-lru/v2/expirable.NewLRU[...].func1")

type fakeLoader struct {
	lock    sync.Mutex
	libs    map[tl.Hash][]byte
	batches [][]tl.Hash
	err     error
	// gate blocks loads until closed if set.
	gate chan struct{}
}

func newFakeLoader(n int) (*fakeLoader, []tl.Hash) {
	l := &fakeLoader{libs: make(map[tl.Hash][]byte)}
	hashes := make([]tl.Hash, n)
	for i := range n {
		data := []byte("lib" + strconv.Itoa(i))
		hashes[i] = sha256.Sum256(data)
		l.libs[hashes[i]] = data
	}
	return l, hashes
}

func (l *fakeLoader) LoadLibraries(ctx context.Context, hashes []tl.Hash) ([]tl.SmcLibraryEntry, error) {
	if l.gate != nil {
		select {
		case <-l.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	l.batches = append(l.batches, append([]tl.Hash(nil), hashes...))
	if l.err != nil {
		return nil, l.err
	}
	var res []tl.SmcLibraryEntry
	for _, h := range hashes {
		if d, ok := l.libs[h]; ok {
			res = append(res, tl.SmcLibraryEntry{Hash: h, Data: d})
		}
	}
	return res, nil
}

func (l *fakeLoader) requested() [][]tl.Hash {
	l.lock.Lock()
	defer l.lock.Unlock()
	return append([][]tl.Hash(nil), l.batches...)
}

func TestProviderGetOrLoad(t *testing.T) {
	defer goleak.VerifyNone(t, lruCleaner)

	loader, hashes := newFakeLoader(600)
	p := NewProvider(loader, Options{Capacity: 1000, Log: zaptest.NewLogger(t)})

	res, err := p.GetOrLoad(context.Background(), hashes[:300])
	require.NoError(t, err)
	require.Len(t, res, 300)
	for _, h := range hashes[:300] {
		require.Equal(t, loader.libs[h], res[h])
	}
	batches := loader.requested()
	require.Len(t, batches, 2)
	require.Len(t, batches[0], MaxBatch)
	require.Len(t, batches[1], 300-MaxBatch)

	// Half cached, duplicates are requested once.
	req := append(append([]tl.Hash(nil), hashes[150:450]...), hashes[400:450]...)
	res, err = p.GetOrLoad(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res, 300)
	batches = loader.requested()
	require.Len(t, batches, 3)
	require.ElementsMatch(t, hashes[300:450], batches[2])
	require.Equal(t, 450, p.Len())
}

func TestProviderMissing(t *testing.T) {
	defer goleak.VerifyNone(t, lruCleaner)

	loader, hashes := newFakeLoader(2)
	p := NewProvider(loader, Options{})
	unknown := tl.Hash{1, 2, 3}

	res, err := p.GetOrLoad(context.Background(), []tl.Hash{hashes[0], unknown})
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Contains(t, res, hashes[0])

	_, err = p.GetLibrary(context.Background(), unknown)
	require.ErrorIs(t, err, ErrNotFound)
	// Not cached, so it's requested every time.
	require.Len(t, loader.requested(), 2)

	data, err := p.GetLibrary(context.Background(), hashes[0])
	require.NoError(t, err)
	require.Equal(t, []byte("lib0"), data)
	require.Len(t, loader.requested(), 2)
}

func TestProviderError(t *testing.T) {
	defer goleak.VerifyNone(t, lruCleaner)

	loader, hashes := newFakeLoader(3)
	loader.err = errors.New("boom")
	p := NewProvider(loader, Options{})

	_, err := p.GetOrLoad(context.Background(), hashes)
	require.ErrorIs(t, err, loader.err)
	require.Zero(t, p.Len())

	loader.lock.Lock()
	loader.err = nil
	loader.lock.Unlock()
	res, err := p.GetOrLoad(context.Background(), hashes)
	require.NoError(t, err)
	require.Len(t, res, 3)
}

func TestProviderSharedLoad(t *testing.T) {
	defer goleak.VerifyNone(t, lruCleaner)

	loader, hashes := newFakeLoader(10)
	loader.gate = make(chan struct{})
	p := NewProvider(loader, Options{})

	const callers = 8
	var (
		wg      sync.WaitGroup
		results = make([]map[tl.Hash][]byte, callers)
		errs    = make([]error, callers)
	)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = p.GetOrLoad(context.Background(), hashes)
		}()
	}
	require.Eventually(t, func() bool {
		p.lock.Lock()
		defer p.lock.Unlock()
		return len(p.inflight) == len(hashes)
	}, time.Second, time.Millisecond)
	// Let every caller reach the in-flight table.
	time.Sleep(20 * time.Millisecond)
	close(loader.gate)
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		require.Len(t, results[i], len(hashes))
	}
	var total int
	for _, b := range loader.requested() {
		total += len(b)
	}
	require.Equal(t, len(hashes), total)
}

func TestProviderWaitContext(t *testing.T) {
	defer goleak.VerifyNone(t, lruCleaner)

	loader, hashes := newFakeLoader(1)
	loader.gate = make(chan struct{})
	p := NewProvider(loader, Options{})

	done := make(chan error, 1)
	go func() {
		_, err := p.GetOrLoad(context.Background(), hashes)
		done <- err
	}()
	require.Eventually(t, func() bool {
		p.lock.Lock()
		defer p.lock.Unlock()
		return len(p.inflight) == 1
	}, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := p.GetOrLoad(ctx, hashes)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(loader.gate)
	require.NoError(t, <-done)
}

func TestBlockchainLoader(t *testing.T) {
	defer goleak.VerifyNone(t, lruCleaner)

	chain := fakenode.NewChain()
	var hashes []tl.Hash
	for i := range 300 {
		hashes = append(hashes, chain.AddLibrary([]byte("library "+strconv.Itoa(i))))
	}
	d := fakenode.NewDialer(chain.Handle)
	c, err := rpcclient.New(context.Background(), rpcclient.Options{
		PoolSize: 1,
		Params:   rpcclient.DefaultConnectionParams(),
		Connection: rpcclient.ConnectionOptions{
			Dialer:      d.Dial,
			PollTimeout: 10 * time.Millisecond,
		},
	})
	require.NoError(t, err)
	defer c.Close()

	p := NewProvider(NewBlockchainLoader(c), Options{})
	res, err := p.GetOrLoad(context.Background(), append(hashes, tl.Hash{0xff}))
	require.NoError(t, err)
	require.Len(t, res, 300)
	require.Equal(t, []byte("library 7"), res[hashes[7]])
	require.Equal(t, 2, chain.Calls("smc.getLibraries"))

	entries, err := NewBlockchainLoader(c).LoadLibraries(context.Background(), hashes)
	require.NoError(t, err)
	require.Len(t, entries, 300)
	require.Equal(t, 4, chain.Calls("smc.getLibraries"))
}
