/*
Package contract provides contract handles over the node client: account and
contract state loading with an optional chain-following cache, get-method
execution, recent transactions and library resolution.
*/
package contract

import (
	"context"
	"crypto/sha256"
	"sync"

	"github.com/nspcc-dev/tonlib-go/pkg/contract/library"
	"github.com/nspcc-dev/tonlib-go/pkg/rpcclient"
	"github.com/nspcc-dev/tonlib-go/pkg/tl"
	"go.uber.org/zap"
)

// FactoryOptions are Factory options.
type FactoryOptions struct {
	// Cache enables state caching if set.
	Cache *CacheOptions
	// Libraries is created over the client with default options if not set.
	Libraries *library.Provider
	Log       *zap.Logger
}

// Factory creates contract handles sharing the client, caches and the
// library provider.
type Factory struct {
	client rpcclient.ConnInvoker
	api    rpcclient.API
	cache  *FactoryCache
	libs   *library.Provider
	deps   *library.Dependencies
	log    *zap.Logger

	configLock sync.Mutex
	config     []byte
}

// NewFactory creates a Factory. If caching is enabled, Close must be called
// to stop the cache.
func NewFactory(client rpcclient.ConnInvoker, opts FactoryOptions) *Factory {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Libraries == nil {
		opts.Libraries = library.NewProvider(library.NewBlockchainLoader(client), library.Options{Log: opts.Log})
	}
	f := &Factory{
		client: client,
		api:    rpcclient.NewAPI(client),
		libs:   opts.Libraries,
		deps:   library.NewDependencies(0, 0),
		log:    opts.Log,
	}
	if opts.Cache != nil {
		c := *opts.Cache
		if c.Log == nil {
			c.Log = opts.Log
		}
		f.cache = NewFactoryCache(client, c)
	}
	return f
}

// Client returns the underlying client.
func (f *Factory) Client() rpcclient.ConnInvoker {
	return f.client
}

// Libraries returns the library provider.
func (f *Factory) Libraries() *library.Provider {
	return f.libs
}

// Contract returns a handle for the given address.
func (f *Factory) Contract(addr tl.Address) *Contract {
	return &Contract{factory: f, addr: addr}
}

// Config returns the blockchain config cell. It's requested once, failed
// requests are repeated on the next call.
func (f *Factory) Config(ctx context.Context) ([]byte, error) {
	f.configLock.Lock()
	defer f.configLock.Unlock()
	if f.config != nil {
		return f.config, nil
	}
	res, err := f.api.GetConfigAll(ctx, 0)
	if err != nil {
		return nil, err
	}
	f.config = res.Config.Bytes
	return f.config, nil
}

// GetAccountState returns the latest account state, it's taken from the
// cache if it's enabled.
func (f *Factory) GetAccountState(ctx context.Context, addr tl.Address) (*tl.RawFullAccountState, error) {
	if f.cache != nil {
		return f.cache.GetAccountState(ctx, addr)
	}
	st, err := f.api.RawGetAccountState(ctx, addr)
	if err != nil {
		return nil, &MethodError{Method: "raw.getAccountState", Address: addr, Err: err}
	}
	return st, nil
}

// GetAccountStateByTransaction returns account state as of the given
// transaction, it's never cached.
func (f *Factory) GetAccountStateByTransaction(ctx context.Context, addr tl.Address, txID tl.InternalTransactionID) (*tl.RawFullAccountState, error) {
	st, err := f.api.RawGetAccountStateByTransaction(ctx, addr, txID)
	if err != nil {
		return nil, &MethodError{Method: "raw.getAccountStateByTransaction", Address: addr, Err: err}
	}
	return st, nil
}

// GetSmcState loads the latest contract state, it's taken from the cache if
// it's enabled. The state must be released after use.
func (f *Factory) GetSmcState(ctx context.Context, addr tl.Address) (*SmcState, error) {
	if f.cache != nil {
		return f.cache.GetSmcState(ctx, addr)
	}
	s, err := loadSmcState(ctx, f.client, addr, nil, f.log)
	if err != nil {
		return nil, &MethodError{Method: "smc.load", Address: addr, Err: err}
	}
	return s, nil
}

// GetSmcStateByTransaction loads contract state as of the given transaction.
// The state must be released after use.
func (f *Factory) GetSmcStateByTransaction(ctx context.Context, addr tl.Address, txID tl.InternalTransactionID) (*SmcState, error) {
	s, err := loadSmcState(ctx, f.client, addr, &txID, f.log)
	if err != nil {
		return nil, &MethodError{Method: "smc.loadByTransaction", Address: addr, Err: err}
	}
	return s, nil
}

// CodeLibraries returns libraries used by the code. Newly discovered
// libraries are remembered for the code and returned along with the
// previously known ones.
func (f *Factory) CodeLibraries(ctx context.Context, code []byte, discovered ...tl.Hash) (map[tl.Hash][]byte, error) {
	key := tl.Hash(sha256.Sum256(code))
	if f.deps.Update(key, discovered...) {
		f.log.Debug("new code libraries",
			zap.Stringer("code", key),
			zap.Int("libraries", len(f.deps.Get(key))))
	}
	libs := f.deps.Get(key)
	if len(libs) == 0 {
		return map[tl.Hash][]byte{}, nil
	}
	return f.libs.GetOrLoad(ctx, libs)
}

// Stats returns cache counters, it's zero if caching is disabled.
func (f *Factory) Stats() FactoryCacheStats {
	if f.cache == nil {
		return FactoryCacheStats{}
	}
	return f.cache.Stats()
}

// Close stops the cache if it's enabled. It doesn't close the client.
func (f *Factory) Close() {
	if f.cache != nil {
		f.cache.Close()
	}
}
