package contract

import (
	"context"
	"testing"
	"time"

	"github.com/nspcc-dev/tonlib-go/internal/fakenode"
	"github.com/nspcc-dev/tonlib-go/pkg/rpcclient"
	"github.com/nspcc-dev/tonlib-go/pkg/tl"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// newTransactionsTest creates an account with n transactions, utime of the
// i-th one is 600+10*i.
func newTransactionsTest(t *testing.T, n int) (*fakenode.Chain, *Contract, []tl.InternalTransactionID) {
	var (
		chain = fakenode.NewChain()
		addr  = testAddress(1)
		ids   []tl.InternalTransactionID
	)
	for i := range n {
		ids = append(ids, chain.AddTransaction(tl.BlockIDExt{}, addr, int32(600+10*i), int64(i)))
	}
	d := fakenode.NewDialer(chain.Handle)
	c, err := rpcclient.New(context.Background(), rpcclient.Options{
		Params: rpcclient.DefaultConnectionParams(),
		Connection: rpcclient.ConnectionOptions{
			Dialer:      d.Dial,
			Log:         zaptest.NewLogger(t),
			PollTimeout: 10 * time.Millisecond,
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return chain, NewFactory(c, FactoryOptions{}).Contract(addr), ids
}

func requireDescending(t *testing.T, txs []tl.RawTransaction) {
	for i := 1; i < len(txs); i++ {
		require.Greater(t, txs[i-1].TransactionID.LT, txs[i].TransactionID.LT)
	}
}

func TestTransactionsCacheGet(t *testing.T) {
	chain, ct, ids := newTransactionsTest(t, 40)
	tc, err := ct.NewTransactionsCache(TransactionsOptions{Capacity: 30})
	require.NoError(t, err)

	txs, err := tc.Get(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, txs, 10)
	requireDescending(t, txs)
	require.True(t, txs[0].TransactionID.Equal(ids[39]))
	reqs := chain.Requests("raw.getTransactionsV2")
	require.Len(t, reqs, 2)
	require.EqualValues(t, DefaultTransactionsBatch, reqs[0].(*tl.RawGetTransactionsV2).Count)
	require.True(t, reqs[0].(*tl.RawGetTransactionsV2).FromTransactionID.Equal(ids[39]))

	txs, err = tc.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, txs, 30)
	requireDescending(t, txs)
	require.True(t, txs[29].TransactionID.Equal(ids[10]))
	require.Len(t, chain.Requests("raw.getTransactionsV2"), 2)

	for range 3 {
		ids = append(ids, chain.AddTransaction(tl.BlockIDExt{}, ct.Address(), 1000, 0))
	}
	txs, err = tc.Get(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, txs, 5)
	require.True(t, txs[0].TransactionID.Equal(ids[42]))
	require.True(t, txs[3].TransactionID.Equal(ids[39]))
	require.Len(t, chain.Requests("raw.getTransactionsV2"), 3)

	txs, err = tc.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, txs, 30)
	requireDescending(t, txs)
	require.True(t, txs[29].TransactionID.Equal(ids[13]))

	// Results are copies.
	txs[0].Utime = 0
	txs, err = tc.Get(context.Background(), 1)
	require.NoError(t, err)
	require.EqualValues(t, 1000, txs[0].Utime)
}

func TestTransactionsCacheArguments(t *testing.T) {
	_, ct, _ := newTransactionsTest(t, 1)

	_, err := ct.NewTransactionsCache(TransactionsOptions{})
	require.ErrorIs(t, err, rpcclient.ErrIllegalArgument)

	tc, err := ct.NewTransactionsCache(TransactionsOptions{Capacity: 5})
	require.NoError(t, err)
	_, err = tc.Get(context.Background(), 6)
	require.ErrorIs(t, err, rpcclient.ErrIllegalArgument)

	txs, err := tc.Get(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, txs, 1)
}

func TestTransactionsCacheEmptyAccount(t *testing.T) {
	chain, ct, _ := newTransactionsTest(t, 0)
	tc, err := ct.NewTransactionsCache(TransactionsOptions{Capacity: 5})
	require.NoError(t, err)
	txs, err := tc.GetAll(context.Background())
	require.NoError(t, err)
	require.Empty(t, txs)
	require.Zero(t, chain.Calls("raw.getTransactionsV2"))
}

func TestTransactionsCacheSoftLimit(t *testing.T) {
	overloaded := &tl.Error{Code: rpcclient.CodeOverloaded, Message: "overloaded"}

	t.Run("halving", func(t *testing.T) {
		chain, ct, _ := newTransactionsTest(t, 40)
		tc, err := ct.NewTransactionsCache(TransactionsOptions{Capacity: 20, SoftLimit: true})
		require.NoError(t, err)

		chain.FailNext("raw.getTransactionsV2", overloaded, 1)
		txs, err := tc.GetAll(context.Background())
		require.NoError(t, err)
		require.Len(t, txs, 20)
		requireDescending(t, txs)

		reqs := chain.Requests("raw.getTransactionsV2")
		require.Len(t, reqs, 4)
		require.EqualValues(t, 16, reqs[0].(*tl.RawGetTransactionsV2).Count)
		for _, r := range reqs[1:] {
			require.EqualValues(t, 8, r.(*tl.RawGetTransactionsV2).Count)
		}
	})
	t.Run("exhausted", func(t *testing.T) {
		chain, ct, _ := newTransactionsTest(t, 40)
		tc, err := ct.NewTransactionsCache(TransactionsOptions{Capacity: 20, SoftLimit: true})
		require.NoError(t, err)

		chain.FailNext("raw.getTransactionsV2", overloaded, 5)
		txs, err := tc.GetAll(context.Background())
		require.NoError(t, err)
		require.Empty(t, txs)
		require.Equal(t, 5, chain.Calls("raw.getTransactionsV2"))

		txs, err = tc.GetAll(context.Background())
		require.NoError(t, err)
		require.Len(t, txs, 20)
	})
	t.Run("other error", func(t *testing.T) {
		chain, ct, _ := newTransactionsTest(t, 40)
		tc, err := ct.NewTransactionsCache(TransactionsOptions{Capacity: 20, SoftLimit: true})
		require.NoError(t, err)

		chain.Hook("raw.getTransactionsV2", func(fn tl.Function) tl.Result {
			f := fn.(*tl.RawGetTransactionsV2)
			if f.FromTransactionID.LT < 30 {
				return &tl.Error{Code: fakenode.CodeNotFound, Message: "pruned"}
			}
			return &tl.RawTransactions{
				Transactions:          []tl.RawTransaction{{TransactionID: f.FromTransactionID, Utime: 1}},
				PreviousTransactionID: tl.InternalTransactionID{LT: f.FromTransactionID.LT - 1},
			}
		})
		txs, err := tc.GetAll(context.Background())
		require.NoError(t, err)
		require.Len(t, txs, 11)
		requireDescending(t, txs)
	})
	t.Run("hard", func(t *testing.T) {
		chain, ct, _ := newTransactionsTest(t, 40)
		tc, err := ct.NewTransactionsCache(TransactionsOptions{Capacity: 20})
		require.NoError(t, err)

		chain.FailNext("raw.getTransactionsV2", overloaded, 1)
		_, err = tc.GetAll(context.Background())
		require.True(t, rpcclient.IsTonlibError(err, rpcclient.CodeOverloaded))
		var me *MethodError
		require.ErrorAs(t, err, &me)

		txs, err := tc.GetAll(context.Background())
		require.NoError(t, err)
		require.Len(t, txs, 20)
	})
}

func TestTransactionsCacheMaxAge(t *testing.T) {
	chain, ct, ids := newTransactionsTest(t, 40)
	tc, err := ct.NewTransactionsCache(TransactionsOptions{Capacity: 30, MaxAge: 100 * time.Second})
	require.NoError(t, err)
	now := time.Unix(1000, 0)
	tc.now = func() time.Time { return now }

	txs, err := tc.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, txs, 10)
	require.True(t, txs[9].TransactionID.Equal(ids[30]))
	require.Len(t, chain.Requests("raw.getTransactionsV2"), 1)

	now = time.Unix(1050, 0)
	last := chain.AddTransaction(tl.BlockIDExt{}, ct.Address(), 1040, 0)
	txs, err = tc.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, txs, 6)
	require.True(t, txs[0].TransactionID.Equal(last))
	require.True(t, txs[5].TransactionID.Equal(ids[35]))
}

func TestTransactionsCacheConcurrent(t *testing.T) {
	_, ct, _ := newTransactionsTest(t, 20)
	tc, err := ct.NewTransactionsCache(TransactionsOptions{Capacity: 10})
	require.NoError(t, err)

	done := make(chan []tl.RawTransaction, 4)
	for range 4 {
		go func() {
			txs, err := tc.GetAll(context.Background())
			if err != nil {
				txs = nil
			}
			done <- txs
		}()
	}
	for range 4 {
		txs := <-done
		require.Len(t, txs, 10)
		requireDescending(t, txs)
	}
}
