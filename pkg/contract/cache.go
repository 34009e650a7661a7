package contract

import (
	"context"
	"errors"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/nspcc-dev/tonlib-go/pkg/rpcclient"
	"github.com/nspcc-dev/tonlib-go/pkg/rpcclient/blockstream"
	"github.com/nspcc-dev/tonlib-go/pkg/tl"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// FactoryCache defaults.
const (
	DefaultAccountStateCapacity = 100_000
	DefaultAccountStateTTL      = time.Hour
	DefaultTxIDCapacity         = 100_000
	DefaultTxIDTTL              = 30 * time.Minute
	DefaultPresyncBlocks        = 50
	DefaultRetryInterval        = 100 * time.Millisecond
	DefaultLoadTimeout          = time.Minute
)

const lockStripes = 64

// errStale is returned by a load that raced with an invalidation.
var errStale = errors.New("stale state")

// CacheOptions are FactoryCache parameters, zero values are replaced with
// defaults.
type CacheOptions struct {
	// AccountStateCapacity and AccountStateTTL bound both account state and
	// contract state caches.
	AccountStateCapacity int
	AccountStateTTL      time.Duration
	TxIDCapacity         int
	TxIDTTL              time.Duration
	// PresyncBlocks is the number of masterchain blocks before the current
	// head to start invalidation from. Negative value disables presync.
	PresyncBlocks int32
	// RetryInterval is the delay after failed upstream requests of the
	// invalidation loop.
	RetryInterval time.Duration
	// PollInterval is passed to the block stream.
	PollInterval time.Duration
	// LoadTimeout limits a single cache load, loads aren't interrupted when
	// the caller leaves.
	LoadTimeout time.Duration
	Log         *zap.Logger
}

// CacheStats contains counters of a single cache.
type CacheStats struct {
	Entries   int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// FactoryCacheStats is a FactoryCache snapshot.
type FactoryCacheStats struct {
	AccountState CacheStats
	SmcState     CacheStats
	TxID         CacheStats
	// LastSeqno is the last processed masterchain block.
	LastSeqno int32
}

type cacheCounters struct {
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

func (c *cacheCounters) stats(entries int) CacheStats {
	return CacheStats{
		Entries:   entries,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

// FactoryCache caches account and contract states. Entries are invalidated
// by the background goroutine following the chain: whenever a block touches
// an account, its latest transaction ID is remembered and cached states are
// dropped. Subsequent loads fetch the state as of that transaction, so a
// lagging node can't return an older state.
type FactoryCache struct {
	client rpcclient.ConnInvoker
	api    rpcclient.API
	opts   CacheOptions
	log    *zap.Logger

	accounts *expirable.LRU[tl.Address, *tl.RawFullAccountState]
	smcs     *expirable.LRU[tl.Address, *SmcState]
	txIDs    *expirable.LRU[tl.Address, tl.InternalTransactionID]
	// locks serialize stores with invalidations of the same address.
	locks  [lockStripes]sync.Mutex
	closed bool
	loads  singleflight.Group

	accountStats cacheCounters
	smcStats     cacheCounters
	txIDStats    cacheCounters
	seqno        atomic.Int32

	releases  sync.WaitGroup
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewFactoryCache creates a cache and starts its invalidation loop, Close
// must be called to stop it.
func NewFactoryCache(client rpcclient.ConnInvoker, opts CacheOptions) *FactoryCache {
	if opts.AccountStateCapacity <= 0 {
		opts.AccountStateCapacity = DefaultAccountStateCapacity
	}
	if opts.AccountStateTTL <= 0 {
		opts.AccountStateTTL = DefaultAccountStateTTL
	}
	if opts.TxIDCapacity <= 0 {
		opts.TxIDCapacity = DefaultTxIDCapacity
	}
	if opts.TxIDTTL <= 0 {
		opts.TxIDTTL = DefaultTxIDTTL
	}
	if opts.PresyncBlocks == 0 {
		opts.PresyncBlocks = DefaultPresyncBlocks
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = DefaultLoadTimeout
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	fc := &FactoryCache{
		client: client,
		api:    rpcclient.NewAPI(client),
		opts:   opts,
		log:    opts.Log,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	fc.accounts = expirable.NewLRU[tl.Address, *tl.RawFullAccountState](opts.AccountStateCapacity,
		func(tl.Address, *tl.RawFullAccountState) { fc.accountStats.evictions.Inc() },
		opts.AccountStateTTL)
	fc.smcs = expirable.NewLRU[tl.Address, *SmcState](opts.AccountStateCapacity,
		func(_ tl.Address, s *SmcState) {
			fc.smcStats.evictions.Inc()
			fc.release(s)
		},
		opts.AccountStateTTL)
	fc.txIDs = expirable.NewLRU[tl.Address, tl.InternalTransactionID](opts.TxIDCapacity,
		func(tl.Address, tl.InternalTransactionID) { fc.txIDStats.evictions.Inc() },
		opts.TxIDTTL)
	go fc.run(ctx)
	return fc
}

// GetAccountState returns the cached account state or loads it. The result
// is shared and must not be modified.
func (fc *FactoryCache) GetAccountState(ctx context.Context, addr tl.Address) (*tl.RawFullAccountState, error) {
	if st, ok := fc.accounts.Get(addr); ok {
		fc.accountStats.hits.Inc()
		return st, nil
	}
	fc.accountStats.misses.Inc()
	txID, hasTx := fc.lastTxID(addr)
	v, err := fc.load(ctx, flightKey("account", addr, txID, hasTx), func(ctx context.Context) (any, error) {
		var (
			st  *tl.RawFullAccountState
			err error
		)
		if hasTx {
			st, err = fc.api.RawGetAccountStateByTransaction(ctx, addr, txID)
		} else {
			st, err = fc.api.RawGetAccountState(ctx, addr)
		}
		if err != nil {
			return nil, err
		}
		fc.storeIfUnchanged(addr, txID, hasTx, func() { fc.accounts.Add(addr, st) })
		return st, nil
	})
	if err == nil {
		return v.(*tl.RawFullAccountState), nil
	}
	if !hasTx || !isHashMismatch(err) {
		return nil, &CacheError{Address: addr, Err: err}
	}
	fc.log.Debug("falling back to the latest account state",
		zap.Stringer("address", addr),
		zap.Stringer("transaction", txID))
	st, err := fc.api.RawGetAccountState(ctx, addr)
	if err != nil {
		return nil, &CacheError{Address: addr, Err: err}
	}
	return st, nil
}

// GetSmcState returns the cached contract state or loads it. The caller owns
// a reference and must Release it.
func (fc *FactoryCache) GetSmcState(ctx context.Context, addr tl.Address) (*SmcState, error) {
	if s, ok := fc.smcs.Get(addr); ok && s.tryAcquire() {
		fc.smcStats.hits.Inc()
		return s, nil
	}
	fc.smcStats.misses.Inc()
	txID, hasTx := fc.lastTxID(addr)
	v, err := fc.load(ctx, flightKey("smc", addr, txID, hasTx), func(ctx context.Context) (any, error) {
		var tx *tl.InternalTransactionID
		if hasTx {
			tx = &txID
		}
		s, err := loadSmcState(ctx, fc.client, addr, tx, fc.log)
		if err != nil {
			return nil, err
		}
		if !fc.storeIfUnchanged(addr, txID, hasTx, func() { fc.putSmc(addr, s) }) {
			s.Release()
			return nil, errStale
		}
		return s, nil
	})
	if err == nil {
		if s := v.(*SmcState); s.tryAcquire() {
			return s, nil
		}
	} else if !errors.Is(err, errStale) && (!hasTx || !isHashMismatch(err)) {
		return nil, &CacheError{Address: addr, Err: err}
	}
	s, err := loadSmcState(ctx, fc.client, addr, nil, fc.log)
	if err != nil {
		return nil, &CacheError{Address: addr, Err: err}
	}
	return s, nil
}

// LastTransactionID returns the latest transaction of the account seen by
// the invalidation loop.
func (fc *FactoryCache) LastTransactionID(addr tl.Address) (tl.InternalTransactionID, bool) {
	return fc.txIDs.Peek(addr)
}

// Stats returns cache counters.
func (fc *FactoryCache) Stats() FactoryCacheStats {
	return FactoryCacheStats{
		AccountState: fc.accountStats.stats(fc.accounts.Len()),
		SmcState:     fc.smcStats.stats(fc.smcs.Len()),
		TxID:         fc.txIDStats.stats(fc.txIDs.Len()),
		LastSeqno:    fc.seqno.Load(),
	}
}

// Close stops the invalidation loop and releases all cached contract
// states.
func (fc *FactoryCache) Close() {
	fc.closeOnce.Do(func() {
		fc.cancel()
		<-fc.done
		for i := range fc.locks {
			fc.locks[i].Lock()
		}
		fc.closed = true
		for i := range fc.locks {
			fc.locks[i].Unlock()
		}
		fc.smcs.Purge()
		fc.accounts.Purge()
		fc.txIDs.Purge()
		fc.releases.Wait()
	})
}

func (fc *FactoryCache) lastTxID(addr tl.Address) (tl.InternalTransactionID, bool) {
	id, ok := fc.txIDs.Get(addr)
	if ok {
		fc.txIDStats.hits.Inc()
	} else {
		fc.txIDStats.misses.Inc()
	}
	return id, ok
}

func (fc *FactoryCache) lock(addr tl.Address) *sync.Mutex {
	return &fc.locks[int(addr.Hash[0])%lockStripes]
}

// load runs fn once for all concurrent callers with the same key. fn isn't
// cancelled when callers leave.
func (fc *FactoryCache) load(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	ch := fc.loads.DoChan(key, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fc.opts.LoadTimeout)
		defer cancel()
		return fn(lctx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.Val, r.Err
	}
}

// storeIfUnchanged calls store if the latest transaction of the account is
// still the one the load was made for.
func (fc *FactoryCache) storeIfUnchanged(addr tl.Address, txID tl.InternalTransactionID, hasTx bool, store func()) bool {
	mu := fc.lock(addr)
	mu.Lock()
	defer mu.Unlock()
	if fc.closed {
		return false
	}
	cur, ok := fc.txIDs.Peek(addr)
	if ok != hasTx || (ok && !cur.Equal(txID)) {
		return false
	}
	store()
	return true
}

func (fc *FactoryCache) putSmc(addr tl.Address, s *SmcState) {
	old, ok := fc.smcs.Peek(addr)
	fc.smcs.Add(addr, s)
	// Replaced values don't go through the eviction callback.
	if ok && old != s {
		fc.release(old)
	}
}

func (fc *FactoryCache) release(s *SmcState) {
	fc.releases.Add(1)
	go func() {
		defer fc.releases.Done()
		s.Release()
	}()
}

// invalidate remembers the new latest transaction and drops cached states.
func (fc *FactoryCache) invalidate(addr tl.Address, txID tl.InternalTransactionID) {
	mu := fc.lock(addr)
	mu.Lock()
	defer mu.Unlock()
	if cur, ok := fc.txIDs.Peek(addr); ok && cur.LT >= txID.LT {
		return
	}
	fc.txIDs.Add(addr, txID)
	fc.accounts.Remove(addr)
	fc.smcs.Remove(addr)
}

func (fc *FactoryCache) run(ctx context.Context) {
	defer close(fc.done)

	var head int32
	for {
		info, err := fc.api.GetMasterchainInfo(ctx)
		if err == nil {
			head = info.Last.Seqno
			break
		}
		if !fc.pause(ctx, "failed to get chain head", err) {
			return
		}
	}
	start := head
	if fc.opts.PresyncBlocks > 0 {
		start = max(head-fc.opts.PresyncBlocks, 1)
	}
	fc.log.Info("starting cache invalidation",
		zap.Int32("head", head),
		zap.Int32("start", start))

	stream := blockstream.New(fc.client, start, blockstream.Options{
		PollInterval: fc.opts.PollInterval,
		Log:          fc.log,
	})
	for {
		item, err := stream.Next(ctx)
		if err != nil {
			if !fc.pause(ctx, "failed to get next block", err) {
				return
			}
			continue
		}
		for {
			err = fc.process(ctx, item)
			if err == nil {
				break
			}
			if !fc.pause(ctx, "failed to process block", err) {
				return
			}
		}
	}
}

// pause logs err and waits for the retry interval. It returns false if ctx
// is done.
func (fc *FactoryCache) pause(ctx context.Context, msg string, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	fc.log.Warn(msg, zap.Error(err))
	t := time.NewTimer(fc.opts.RetryInterval)
	select {
	case <-ctx.Done():
		t.Stop()
		return false
	case <-t.C:
		return true
	}
}

// process invalidates all accounts touched by the block.
func (fc *FactoryCache) process(ctx context.Context, item *blockstream.Item) error {
	blocks := append(slices.Clone(item.Shards), item.MasterBlock)
	res, err := fc.api.GetShardsTxIDs(ctx, blocks)
	if err != nil {
		return err
	}
	latest := make(map[tl.Address]tl.InternalTransactionID)
	for _, b := range res {
		for _, tx := range b.TxIDs {
			if cur, ok := latest[tx.Address]; !ok || tx.ID.LT > cur.LT {
				latest[tx.Address] = tx.ID
			}
		}
	}
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for addr, id := range latest {
		g.Go(func() error {
			fc.invalidate(addr, id)
			return nil
		})
	}
	_ = g.Wait()
	fc.seqno.Store(item.MasterBlock.Seqno)
	fc.log.Debug("block processed",
		zap.Int32("seqno", item.MasterBlock.Seqno),
		zap.Int("accounts", len(latest)))
	return nil
}

func flightKey(kind string, addr tl.Address, txID tl.InternalTransactionID, hasTx bool) string {
	if !hasTx {
		return kind + "/" + addr.String() + "/latest"
	}
	return kind + "/" + addr.String() + "/" + txID.String()
}
