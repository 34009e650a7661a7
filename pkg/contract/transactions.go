package contract

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/nspcc-dev/tonlib-go/pkg/rpcclient"
	"github.com/nspcc-dev/tonlib-go/pkg/tl"
	"go.uber.org/zap"
)

// DefaultTransactionsBatch is the initial number of transactions requested
// at once.
const DefaultTransactionsBatch = 16

// TransactionsOptions are TransactionsCache options.
type TransactionsOptions struct {
	// Capacity is the maximum number of cached transactions, it must be
	// positive.
	Capacity int
	// SoftLimit makes sync return whatever was loaded on errors. Overloaded
	// node replies shrink the batch instead.
	SoftLimit bool
	// MaxAge excludes transactions older than that if set.
	MaxAge time.Duration
	// Batch is DefaultTransactionsBatch if not set.
	Batch int32
}

// TransactionsCache keeps the latest transactions of an account ordered by
// LT descending. It catches up with the chain on every Get.
type TransactionsCache struct {
	contract *Contract
	opts     TransactionsOptions
	now      func() time.Time

	lock sync.Mutex
	txs  []tl.RawTransaction
}

func newTransactionsCache(c *Contract, opts TransactionsOptions) (*TransactionsCache, error) {
	if opts.Capacity <= 0 {
		return nil, illegalArgument("non-positive capacity %d", opts.Capacity)
	}
	if opts.Batch <= 0 {
		opts.Batch = DefaultTransactionsBatch
	}
	return &TransactionsCache{
		contract: c,
		opts:     opts,
		now:      time.Now,
	}, nil
}

// Get returns up to limit latest transactions, limit can't exceed the
// capacity.
func (tc *TransactionsCache) Get(ctx context.Context, limit int) ([]tl.RawTransaction, error) {
	if limit < 0 || limit > tc.opts.Capacity {
		return nil, illegalArgument("limit %d is out of [0, %d]", limit, tc.opts.Capacity)
	}
	tc.lock.Lock()
	defer tc.lock.Unlock()
	if err := tc.sync(ctx); err != nil {
		return nil, err
	}
	return slices.Clone(tc.txs[:min(limit, len(tc.txs))]), nil
}

// GetAll returns all cached transactions.
func (tc *TransactionsCache) GetAll(ctx context.Context) ([]tl.RawTransaction, error) {
	return tc.Get(ctx, tc.opts.Capacity)
}

// sync loads transactions newer than the cached ones. It must be called
// with the lock held.
func (tc *TransactionsCache) sync(ctx context.Context) error {
	st, err := tc.contract.GetAccountState(ctx)
	if err != nil {
		return err
	}
	var (
		addr     = tc.contract.addr
		synced   = tl.NullTransactionID
		next     = st.LastTransactionID
		batch    = tc.opts.Batch
		cutoff   int64
		loaded   []tl.RawTransaction
		finished bool
	)
	if len(tc.txs) > 0 {
		synced = tc.txs[0].TransactionID
	}
	if tc.opts.MaxAge > 0 {
		cutoff = tc.now().Add(-tc.opts.MaxAge).Unix()
	}
	for !finished && next.LT != 0 && next.LT > synced.LT {
		res, err := tc.contract.factory.api.RawGetTransactionsV2(ctx, addr, next, batch, false)
		if err != nil {
			if !tc.opts.SoftLimit {
				return &MethodError{Method: "raw.getTransactionsV2", Address: addr, Err: err}
			}
			if !rpcclient.IsTonlibError(err, rpcclient.CodeOverloaded) {
				tc.contract.factory.log.Debug("transactions sync interrupted",
					zap.Stringer("address", addr), zap.Error(err))
				break
			}
			batch /= 2
			if batch == 0 {
				break
			}
			continue
		}
		for _, tx := range res.Transactions {
			if len(loaded) >= tc.opts.Capacity || tx.TransactionID.LT <= synced.LT || tx.Utime < cutoff {
				finished = true
				break
			}
			if n := len(loaded); n > 0 && tx.TransactionID.LT >= loaded[n-1].TransactionID.LT {
				finished = true
				break
			}
			loaded = append(loaded, tx)
		}
		if len(res.Transactions) == 0 {
			break
		}
		next = res.PreviousTransactionID
	}

	tc.txs = append(loaded, tc.txs...)
	if len(tc.txs) > tc.opts.Capacity {
		tc.txs = tc.txs[:tc.opts.Capacity]
	}
	if cutoff > 0 {
		i := slices.IndexFunc(tc.txs, func(tx tl.RawTransaction) bool { return tx.Utime < cutoff })
		if i >= 0 {
			tc.txs = tc.txs[:i]
		}
	}
	return nil
}
