package contract

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/nspcc-dev/tonlib-go/internal/fakenode"
	"github.com/nspcc-dev/tonlib-go/pkg/rpcclient"
	"github.com/nspcc-dev/tonlib-go/pkg/tl"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestFactoryNoCache(t *testing.T) {
	defer goleak.VerifyNone(t, lruCleaner)

	var (
		chain = fakenode.NewChain()
		addr  = testAddress(1)
		first = addBlock(chain, 10, addr)[0]
	)
	addBlock(chain, 20, addr)
	c := newTestClient(t, chain)
	defer c.Close()
	f := NewFactory(c, FactoryOptions{Log: zaptest.NewLogger(t)})
	defer f.Close()
	ct := f.Contract(addr)
	require.Equal(t, addr, ct.Address())

	for range 2 {
		st, err := ct.GetAccountState(context.Background())
		require.NoError(t, err)
		require.EqualValues(t, 20, st.Balance)
	}
	require.Equal(t, 2, chain.Calls("raw.getAccountState"))
	require.Equal(t, FactoryCacheStats{}, f.Stats())

	st, err := ct.GetAccountStateByTransaction(context.Background(), first)
	require.NoError(t, err)
	require.EqualValues(t, 10, st.Balance)

	code, err := ct.GetCode(context.Background())
	require.NoError(t, err)
	require.Equal(t, []byte("code:"+addr.String()), code)
	data, err := ct.GetData(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 20, binary.BigEndian.Uint64(data))

	s, err := f.GetSmcStateByTransaction(context.Background(), addr, first)
	require.NoError(t, err)
	data, err = s.GetData(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 10, binary.BigEndian.Uint64(data))
	s.Release()
	require.Equal(t, []int64{s.ID()}, chain.Forgotten())

	_, err = f.GetAccountStateByTransaction(context.Background(), testAddress(2), first)
	var me *MethodError
	require.ErrorAs(t, err, &me)
	require.Equal(t, "raw.getAccountStateByTransaction", me.Method)
	require.True(t, rpcclient.IsTonlibError(err, fakenode.CodeNotFound))
}

func TestContractRunGetMethod(t *testing.T) {
	defer goleak.VerifyNone(t, lruCleaner)

	var (
		chain = fakenode.NewChain()
		addr  = testAddress(1)
	)
	last := addBlock(chain, 42, addr)[0]
	c := newTestClient(t, chain)
	defer c.Close()
	f := NewFactory(c, FactoryOptions{})
	ct := f.Contract(addr)

	res, err := ct.RunGetMethod(context.Background(), "last_lt", nil)
	require.NoError(t, err)
	n, err := res.Stack[0].TryNumber()
	require.NoError(t, err)
	require.Equal(t, last.LT, n.Int64())
	require.Len(t, chain.Forgotten(), 1)

	_, err = ct.RunGetMethod(context.Background(), "seqno", nil)
	var te *TVMError
	require.ErrorAs(t, err, &te)
	require.EqualValues(t, 11, te.ExitCode)
	require.EqualValues(t, 100, te.GasUsed)
	require.Equal(t, "seqno", te.Method)
	require.Len(t, chain.Forgotten(), 2)
	require.Zero(t, chain.Loaded())

	reqs := chain.Requests("smc.runGetMethod")
	require.Len(t, reqs, 2)
	require.Equal(t, tl.SmcMethodID{Name: "seqno"}, reqs[1].(*tl.SmcRunGetMethod).MethodID)
	require.NotNil(t, reqs[1].(*tl.SmcRunGetMethod).Stack)
}

func TestFactoryWithCache(t *testing.T) {
	defer goleak.VerifyNone(t, lruCleaner)

	var (
		chain = fakenode.NewChain()
		addr  = testAddress(1)
	)
	addBlock(chain, 10, addr)
	c := newTestClient(t, chain)
	defer c.Close()
	f := NewFactory(c, FactoryOptions{
		Cache: &CacheOptions{PollInterval: time.Millisecond, RetryInterval: time.Millisecond},
		Log:   zaptest.NewLogger(t),
	})
	defer f.Close()
	waitSynced(t, f.cache, chain)

	ct := f.Contract(addr)
	for range 3 {
		res, err := ct.RunGetMethod(context.Background(), "balance", nil)
		require.NoError(t, err)
		n, err := res.Stack[0].TryNumber()
		require.NoError(t, err)
		require.EqualValues(t, 10, n.Int64())
	}
	require.Equal(t, 1, chain.Calls("smc.loadByTransaction"))
	require.Empty(t, chain.Forgotten())

	stats := f.Stats()
	require.EqualValues(t, 2, stats.SmcState.Hits)
	require.EqualValues(t, 1, stats.SmcState.Misses)
	require.Equal(t, chain.Head().Seqno, stats.LastSeqno)

	f.Close()
	require.Len(t, chain.Forgotten(), 1)
}

func TestFactoryConfig(t *testing.T) {
	defer goleak.VerifyNone(t, lruCleaner)

	chain := fakenode.NewChain()
	c := newTestClient(t, chain)
	defer c.Close()
	f := NewFactory(c, FactoryOptions{})

	chain.FailNext("getConfigAll", &tl.Error{Code: fakenode.CodeNotFound, Message: "no state"}, 1)
	_, err := f.Config(context.Background())
	require.True(t, rpcclient.IsTonlibError(err, fakenode.CodeNotFound))

	for range 3 {
		cfg, err := f.Config(context.Background())
		require.NoError(t, err)
		require.Equal(t, []byte("config"), cfg)
	}
	require.Equal(t, 2, chain.Calls("getConfigAll"))
	reqs := chain.Requests("getConfigAll")
	require.Zero(t, reqs[1].(*tl.GetConfigAll).Mode)
}

func TestFactoryCodeLibraries(t *testing.T) {
	defer goleak.VerifyNone(t, lruCleaner)

	chain := fakenode.NewChain()
	var (
		lib1 = chain.AddLibrary([]byte("lib1"))
		lib2 = chain.AddLibrary([]byte("lib2"))
		code = []byte("contract code")
	)
	c := newTestClient(t, chain)
	defer c.Close()
	f := NewFactory(c, FactoryOptions{})

	libs, err := f.CodeLibraries(context.Background(), code)
	require.NoError(t, err)
	require.Empty(t, libs)
	require.Zero(t, chain.Calls("smc.getLibraries"))

	libs, err = f.CodeLibraries(context.Background(), code, lib1)
	require.NoError(t, err)
	require.Equal(t, map[tl.Hash][]byte{lib1: []byte("lib1")}, libs)

	// Known libraries are remembered and cached.
	libs, err = f.CodeLibraries(context.Background(), code)
	require.NoError(t, err)
	require.Len(t, libs, 1)
	require.Equal(t, 1, chain.Calls("smc.getLibraries"))

	libs, err = f.CodeLibraries(context.Background(), code, lib2)
	require.NoError(t, err)
	require.Len(t, libs, 2)
	require.Equal(t, 2, chain.Calls("smc.getLibraries"))
	require.Equal(t, 2, f.Libraries().Len())

	libs, err = f.CodeLibraries(context.Background(), []byte("other code"))
	require.NoError(t, err)
	require.Empty(t, libs)
}

func TestContractGetTransactions(t *testing.T) {
	defer goleak.VerifyNone(t, lruCleaner)

	var (
		chain = fakenode.NewChain()
		addr  = testAddress(1)
		ids   []tl.InternalTransactionID
	)
	for i := range 5 {
		ids = append(ids, addBlock(chain, int64(i), addr)[0])
	}
	c := newTestClient(t, chain)
	defer c.Close()
	ct := NewFactory(c, FactoryOptions{}).Contract(addr)

	txs, prev, err := ct.GetTransactions(context.Background(), ids[4], 3)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	require.True(t, txs[0].TransactionID.Equal(ids[4]))
	require.True(t, txs[2].TransactionID.Equal(ids[2]))
	require.True(t, prev.Equal(ids[1]))

	txs, prev, err = ct.GetTransactions(context.Background(), prev, 3)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	require.True(t, prev.Equal(tl.NullTransactionID))

	_, _, err = NewFactory(c, FactoryOptions{}).Contract(testAddress(9)).GetTransactions(context.Background(), ids[0], 1)
	require.True(t, rpcclient.IsTonlibError(err, fakenode.CodeNotFound))
}
