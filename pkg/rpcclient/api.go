package rpcclient

import (
	"context"

	"github.com/nspcc-dev/tonlib-go/pkg/tl"
)

// Invoker sends requests to the node.
type Invoker interface {
	Invoke(ctx context.Context, fn tl.Function) (tl.Result, error)
}

// ConnInvoker is an Invoker that can tell which connection served the
// request. It's needed for requests that refer to per-connection node state
// like loaded contracts.
type ConnInvoker interface {
	Invoker
	InvokeOnConnection(ctx context.Context, fn tl.Function) (tl.Result, *Connection, error)
}

var (
	_ ConnInvoker = (*Connection)(nil)
	_ ConnInvoker = (*Client)(nil)
)

// API implements typed node methods over some Invoker. Both Connection and
// Client embed it.
type API struct {
	inv Invoker
}

// NewAPI creates API over the given Invoker.
func NewAPI(inv Invoker) API {
	return API{inv: inv}
}

// invokeAs invokes fn and checks the result type.
func invokeAs[T tl.Result](ctx context.Context, inv Invoker, fn tl.Function) (T, error) {
	var zero T
	res, err := inv.Invoke(ctx, fn)
	if err != nil {
		return zero, err
	}
	r, ok := res.(T)
	if !ok {
		actual := "nil"
		if res != nil {
			actual = res.Type()
		}
		return zero, &UnexpectedResultError{Actual: actual, Expected: zero.Type()}
	}
	return r, nil
}

func invokeOk(ctx context.Context, inv Invoker, fn tl.Function) error {
	_, err := invokeAs[*tl.Ok](ctx, inv, fn)
	return err
}

// Init initializes the node client, it's done by NewConnection.
func (a API) Init(ctx context.Context, opts tl.Options) (*tl.OptionsInfo, error) {
	return invokeAs[*tl.OptionsInfo](ctx, a.inv, &tl.Init{Options: opts})
}

// Sync waits for the node to be synchronized and returns the latest
// masterchain block.
func (a API) Sync(ctx context.Context) (*tl.BlockIDExt, error) {
	return invokeAs[*tl.BlockIDExt](ctx, a.inv, &tl.Sync{})
}

// RawGetAccountState returns the latest account state.
func (a API) RawGetAccountState(ctx context.Context, addr tl.Address) (*tl.RawFullAccountState, error) {
	return invokeAs[*tl.RawFullAccountState](ctx, a.inv, &tl.RawGetAccountState{
		AccountAddress: tl.NewAccountAddress(addr),
	})
}

// RawGetAccountStateByTransaction returns account state right after the
// given transaction.
func (a API) RawGetAccountStateByTransaction(ctx context.Context, addr tl.Address, txID tl.InternalTransactionID) (*tl.RawFullAccountState, error) {
	return invokeAs[*tl.RawFullAccountState](ctx, a.inv, &tl.RawGetAccountStateByTransaction{
		AccountAddress: tl.NewAccountAddress(addr),
		TransactionID:  txID,
	})
}

// RawGetTransactions returns a page of account transactions starting from
// the given one.
func (a API) RawGetTransactions(ctx context.Context, addr tl.Address, from tl.InternalTransactionID) (*tl.RawTransactions, error) {
	return invokeAs[*tl.RawTransactions](ctx, a.inv, &tl.RawGetTransactions{
		AccountAddress:    tl.NewAccountAddress(addr),
		FromTransactionID: from,
	})
}

// RawGetTransactionsV2 returns up to count account transactions starting
// from the given one.
func (a API) RawGetTransactionsV2(ctx context.Context, addr tl.Address, from tl.InternalTransactionID, count int32, tryDecodeMessages bool) (*tl.RawTransactions, error) {
	return invokeAs[*tl.RawTransactions](ctx, a.inv, &tl.RawGetTransactionsV2{
		AccountAddress:    tl.NewAccountAddress(addr),
		FromTransactionID: from,
		Count:             count,
		TryDecodeMessages: tryDecodeMessages,
	})
}

// RawSendMessage sends serialized external message.
func (a API) RawSendMessage(ctx context.Context, body []byte) error {
	return invokeOk(ctx, a.inv, &tl.RawSendMessage{Body: body})
}

// RawSendMessageReturnHash sends serialized external message and returns
// its hash.
func (a API) RawSendMessageReturnHash(ctx context.Context, body []byte) (*tl.RawExtMessageInfo, error) {
	return invokeAs[*tl.RawExtMessageInfo](ctx, a.inv, &tl.RawSendMessageReturnHash{Body: body})
}

// GetAccountState returns parsed account state.
func (a API) GetAccountState(ctx context.Context, addr tl.Address) (*tl.FullAccountState, error) {
	return invokeAs[*tl.FullAccountState](ctx, a.inv, &tl.GetAccountState{
		AccountAddress: tl.NewAccountAddress(addr),
	})
}

// GetConfigParam returns a single blockchain config parameter.
func (a API) GetConfigParam(ctx context.Context, mode, param int32) (*tl.ConfigInfo, error) {
	return invokeAs[*tl.ConfigInfo](ctx, a.inv, &tl.GetConfigParam{Mode: mode, Param: param})
}

// GetConfigAll returns the whole blockchain config.
func (a API) GetConfigAll(ctx context.Context, mode int32) (*tl.ConfigInfo, error) {
	return invokeAs[*tl.ConfigInfo](ctx, a.inv, &tl.GetConfigAll{Mode: mode})
}

// SmcLoad loads latest contract state into the node memory.
func (a API) SmcLoad(ctx context.Context, addr tl.Address) (*tl.SmcInfo, error) {
	return invokeAs[*tl.SmcInfo](ctx, a.inv, &tl.SmcLoad{AccountAddress: tl.NewAccountAddress(addr)})
}

// SmcLoadByTransaction loads contract state as of the given transaction.
func (a API) SmcLoadByTransaction(ctx context.Context, addr tl.Address, txID tl.InternalTransactionID) (*tl.SmcInfo, error) {
	return invokeAs[*tl.SmcInfo](ctx, a.inv, &tl.SmcLoadByTransaction{
		AccountAddress: tl.NewAccountAddress(addr),
		TransactionID:  txID,
	})
}

// SmcForget frees contract state loaded into the node memory.
func (a API) SmcForget(ctx context.Context, id int64) error {
	return invokeOk(ctx, a.inv, &tl.SmcForget{ID: id})
}

// SmcGetCode returns code of the loaded contract.
func (a API) SmcGetCode(ctx context.Context, id int64) (*tl.TvmCell, error) {
	return invokeAs[*tl.TvmCell](ctx, a.inv, &tl.SmcGetCode{ID: id})
}

// SmcGetData returns data of the loaded contract.
func (a API) SmcGetData(ctx context.Context, id int64) (*tl.TvmCell, error) {
	return invokeAs[*tl.TvmCell](ctx, a.inv, &tl.SmcGetData{ID: id})
}

// SmcGetState returns state of the loaded contract.
func (a API) SmcGetState(ctx context.Context, id int64) (*tl.TvmCell, error) {
	return invokeAs[*tl.TvmCell](ctx, a.inv, &tl.SmcGetState{ID: id})
}

// SmcRunGetMethod runs get-method of the loaded contract.
func (a API) SmcRunGetMethod(ctx context.Context, id int64, method tl.SmcMethodID, stack []tl.StackEntry) (*tl.SmcRunResult, error) {
	if stack == nil {
		stack = []tl.StackEntry{}
	}
	return invokeAs[*tl.SmcRunResult](ctx, a.inv, &tl.SmcRunGetMethod{ID: id, MethodID: method, Stack: stack})
}

// SmcGetLibraries returns library cells by their hashes.
func (a API) SmcGetLibraries(ctx context.Context, hashes []tl.Hash) (*tl.SmcLibraryResult, error) {
	return invokeAs[*tl.SmcLibraryResult](ctx, a.inv, &tl.SmcGetLibraries{LibraryList: hashes})
}

// GetMasterchainInfo returns the latest known masterchain block.
func (a API) GetMasterchainInfo(ctx context.Context) (*tl.BlocksMasterchainInfo, error) {
	return invokeAs[*tl.BlocksMasterchainInfo](ctx, a.inv, &tl.BlocksGetMasterchainInfo{})
}

// GetBlockShards returns shard blocks referenced by the masterchain block.
func (a API) GetBlockShards(ctx context.Context, id tl.BlockIDExt) (*tl.BlocksShards, error) {
	return invokeAs[*tl.BlocksShards](ctx, a.inv, &tl.BlocksGetShards{ID: id})
}

// LookupBlock finds block by seqno, lt or utime depending on mode.
func (a API) LookupBlock(ctx context.Context, mode int32, id tl.BlockID, lt int64, utime int32) (*tl.BlockIDExt, error) {
	return invokeAs[*tl.BlockIDExt](ctx, a.inv, &tl.BlocksLookupBlock{Mode: mode, ID: id, LT: lt, Utime: utime})
}

// GetBlockTransactions returns a page of short transaction IDs of the block.
func (a API) GetBlockTransactions(ctx context.Context, id tl.BlockIDExt, mode, count int32, after tl.BlocksAccountTransactionID) (*tl.BlocksTransactions, error) {
	return invokeAs[*tl.BlocksTransactions](ctx, a.inv, &tl.BlocksGetTransactions{
		ID:    id,
		Mode:  mode,
		Count: count,
		After: after,
	})
}

// GetBlockHeader returns block header.
func (a API) GetBlockHeader(ctx context.Context, id tl.BlockIDExt) (*tl.BlocksHeader, error) {
	return invokeAs[*tl.BlocksHeader](ctx, a.inv, &tl.BlocksGetBlockHeader{ID: id})
}

// GetLiteServerInfo returns lite server information.
func (a API) GetLiteServerInfo(ctx context.Context) (*tl.LiteServerInfo, error) {
	return invokeAs[*tl.LiteServerInfo](ctx, a.inv, &tl.LiteServerGetInfo{})
}

// GetLogVerbosityLevel returns node log verbosity.
func (a API) GetLogVerbosityLevel(ctx context.Context) (*tl.LogVerbosityLevel, error) {
	return invokeAs[*tl.LogVerbosityLevel](ctx, a.inv, &tl.GetLogVerbosityLevel{})
}
