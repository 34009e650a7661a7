package contract

import (
	"context"

	"github.com/nspcc-dev/tonlib-go/pkg/tl"
)

// Contract is a handle of a single account.
type Contract struct {
	factory *Factory
	addr    tl.Address
}

// Address returns the contract address.
func (c *Contract) Address() tl.Address {
	return c.addr
}

// GetAccountState returns the latest account state.
func (c *Contract) GetAccountState(ctx context.Context) (*tl.RawFullAccountState, error) {
	return c.factory.GetAccountState(ctx, c.addr)
}

// GetAccountStateByTransaction returns account state as of the given
// transaction.
func (c *Contract) GetAccountStateByTransaction(ctx context.Context, txID tl.InternalTransactionID) (*tl.RawFullAccountState, error) {
	return c.factory.GetAccountStateByTransaction(ctx, c.addr, txID)
}

// GetSmcState loads the latest contract state, it must be released after
// use.
func (c *Contract) GetSmcState(ctx context.Context) (*SmcState, error) {
	return c.factory.GetSmcState(ctx, c.addr)
}

// RunGetMethod loads the latest contract state and executes get-method on
// it.
func (c *Contract) RunGetMethod(ctx context.Context, method string, stack []tl.StackEntry) (*tl.SmcRunResult, error) {
	s, err := c.factory.GetSmcState(ctx, c.addr)
	if err != nil {
		return nil, err
	}
	defer s.Release()
	return s.RunGetMethod(ctx, method, stack)
}

// GetCode returns the latest contract code.
func (c *Contract) GetCode(ctx context.Context) ([]byte, error) {
	st, err := c.factory.GetAccountState(ctx, c.addr)
	if err != nil {
		return nil, err
	}
	return st.Code, nil
}

// GetData returns the latest contract data.
func (c *Contract) GetData(ctx context.Context) ([]byte, error) {
	st, err := c.factory.GetAccountState(ctx, c.addr)
	if err != nil {
		return nil, err
	}
	return st.Data, nil
}

// GetTransactions returns up to count transactions starting from the given
// one backwards and the ID of the one preceding them.
func (c *Contract) GetTransactions(ctx context.Context, from tl.InternalTransactionID, count int32) ([]tl.RawTransaction, tl.InternalTransactionID, error) {
	res, err := c.factory.api.RawGetTransactionsV2(ctx, c.addr, from, count, false)
	if err != nil {
		return nil, tl.InternalTransactionID{}, &MethodError{Method: "raw.getTransactionsV2", Address: c.addr, Err: err}
	}
	return res.Transactions, res.PreviousTransactionID, nil
}

// NewTransactionsCache creates a cache of the latest contract transactions.
func (c *Contract) NewTransactionsCache(opts TransactionsOptions) (*TransactionsCache, error) {
	return newTransactionsCache(c, opts)
}
