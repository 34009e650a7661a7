package fakenode

import (
	"bytes"
	"cmp"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math/big"
	"slices"
	"sync"

	"github.com/nspcc-dev/tonlib-go/pkg/tl"
)

// Error codes used by Chain.
const (
	CodeNotFound    = 404
	CodeNotReady    = 500
	CodeBadRequest  = 400
	CodeUnsupported = 12
)

// MaxLibraries is the maximum number of libraries per smc.getLibraries.
const MaxLibraries = 255

type (
	// Chain is a simulated blockchain. Masterchain block N references the
	// shard blocks given to AddMasterBlock, every shard block has a header
	// with links to its predecessors. Accounts change only via
	// AddTransaction. Chain is safe for concurrent use.
	Chain struct {
		lock      sync.Mutex
		masters   []tl.BlockIDExt
		shards    map[int32][]tl.BlockIDExt
		headers   map[tl.BlockIDExt]*tl.BlocksHeader
		blockTxs  map[tl.BlockIDExt][]tl.BlocksShortTxID
		accounts  map[tl.Address]*account
		libraries map[tl.Hash][]byte
		loaded    map[int64]loadedState
		nextSmc   int64
		lt        int64
		calls     map[string]int
		requests  []tl.Function
		forgotten []int64
		failures  map[string][]*tl.Error
		hooks     map[string]Handler
	}

	account struct {
		// Ascending by LT.
		txs []accountTx
	}

	accountTx struct {
		id      tl.InternalTransactionID
		utime   int32
		balance int64
		block   tl.BlockIDExt
	}

	loadedState struct {
		addr  tl.Address
		state tl.RawFullAccountState
	}
)

// NewChain creates a chain with masterchain block 1 referencing workchain 0
// shard block 1.
func NewChain() *Chain {
	c := &Chain{
		shards:    make(map[int32][]tl.BlockIDExt),
		headers:   make(map[tl.BlockIDExt]*tl.BlocksHeader),
		blockTxs:  make(map[tl.BlockIDExt][]tl.BlocksShortTxID),
		accounts:  make(map[tl.Address]*account),
		libraries: make(map[tl.Hash][]byte),
		loaded:    make(map[int64]loadedState),
		calls:     make(map[string]int),
		failures:  make(map[string][]*tl.Error),
		hooks:     make(map[string]Handler),
	}
	first := c.AddShardBlock(0, tl.ShardFull, 1)
	c.AddMasterBlock(first)
	return c
}

// BlockID creates block identifier with deterministic hashes.
func BlockID(wc int32, shard int64, seqno int32) tl.BlockIDExt {
	h := sha256.Sum256([]byte(fmt.Sprintf("%d:%x:%d", wc, uint64(shard), seqno)))
	f := sha256.Sum256(h[:])
	return tl.BlockIDExt{
		Workchain: wc,
		Shard:     shard,
		Seqno:     seqno,
		RootHash:  base64.StdEncoding.EncodeToString(h[:]),
		FileHash:  base64.StdEncoding.EncodeToString(f[:]),
	}
}

// AddShardBlock registers a shard block with the given predecessors.
func (c *Chain) AddShardBlock(wc int32, shard int64, seqno int32, prev ...tl.BlockIDExt) tl.BlockIDExt {
	id := BlockID(wc, shard, seqno)
	c.lock.Lock()
	defer c.lock.Unlock()
	c.headers[id] = &tl.BlocksHeader{
		ID:         id,
		AfterMerge: len(prev) > 1,
		StartLT:    c.lt,
		EndLT:      c.lt,
		PrevBlocks: slices.Clone(prev),
	}
	return id
}

// AddMasterBlock adds the next masterchain block referencing the given
// shard blocks.
func (c *Chain) AddMasterBlock(shards ...tl.BlockIDExt) tl.BlockIDExt {
	c.lock.Lock()
	defer c.lock.Unlock()
	seqno := int32(len(c.masters) + 1)
	id := BlockID(tl.MasterchainID, tl.ShardFull, seqno)
	h := &tl.BlocksHeader{ID: id, StartLT: c.lt, EndLT: c.lt}
	if seqno > 1 {
		h.PrevBlocks = []tl.BlockIDExt{c.masters[seqno-2]}
	}
	c.headers[id] = h
	c.masters = append(c.masters, id)
	c.shards[seqno] = slices.Clone(shards)
	return id
}

// Head returns the latest masterchain block.
func (c *Chain) Head() tl.BlockIDExt {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.masters[len(c.masters)-1]
}

// Shards returns shard blocks referenced by the latest masterchain block.
func (c *Chain) Shards() []tl.BlockIDExt {
	c.lock.Lock()
	defer c.lock.Unlock()
	return slices.Clone(c.shards[int32(len(c.masters))])
}

// Advance creates a new block in every current shard and a masterchain
// block referencing them. It returns the new shard blocks.
func (c *Chain) Advance() []tl.BlockIDExt {
	var next []tl.BlockIDExt
	for _, s := range c.Shards() {
		next = append(next, c.AddShardBlock(s.Workchain, s.Shard, s.Seqno+1, s))
	}
	c.AddMasterBlock(next...)
	return next
}

// AddTransaction adds a transaction to the account setting its balance. If
// block is not zero, the transaction is listed in it. It returns the new
// transaction ID.
func (c *Chain) AddTransaction(block tl.BlockIDExt, addr tl.Address, utime int32, balance int64) tl.InternalTransactionID {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.lt++
	var buf = make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(c.lt))
	h := sha256.Sum256(append(addr.Hash[:], buf...))
	id := tl.InternalTransactionID{LT: c.lt, Hash: h[:]}
	acc := c.accounts[addr]
	if acc == nil {
		acc = new(account)
		c.accounts[addr] = acc
	}
	acc.txs = append(acc.txs, accountTx{id: id, utime: utime, balance: balance, block: block})
	if block != (tl.BlockIDExt{}) {
		c.blockTxs[block] = append(c.blockTxs[block], tl.BlocksShortTxID{
			Mode:    tl.TxModeAll,
			Account: slices.Clone(addr.Hash[:]),
			LT:      id.LT,
			Hash:    id.Hash,
		})
	}
	return id
}

// AddLibrary stores library cell data, its hash is returned.
func (c *Chain) AddLibrary(data []byte) tl.Hash {
	h := tl.Hash(sha256.Sum256(data))
	c.lock.Lock()
	c.libraries[h] = slices.Clone(data)
	c.lock.Unlock()
	return h
}

// FailNext makes the next n calls of method return e.
func (c *Chain) FailNext(method string, e *tl.Error, n int) {
	c.lock.Lock()
	defer c.lock.Unlock()
	for range n {
		c.failures[method] = append(c.failures[method], e)
	}
}

// Hook overrides method handling, h is called without Chain lock held.
func (c *Chain) Hook(method string, h Handler) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.hooks[method] = h
}

// Calls returns the number of method calls.
func (c *Chain) Calls(method string) int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.calls[method]
}

// Requests returns requests of the given method in order of arrival.
func (c *Chain) Requests(method string) []tl.Function {
	c.lock.Lock()
	defer c.lock.Unlock()
	var res []tl.Function
	for _, r := range c.requests {
		if r.Method() == method {
			res = append(res, r)
		}
	}
	return res
}

// Forgotten returns IDs of contract states released by smc.forget.
func (c *Chain) Forgotten() []int64 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return slices.Clone(c.forgotten)
}

// Loaded returns the number of contract states currently loaded.
func (c *Chain) Loaded() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.loaded)
}

// Handle is a Handler answering from the chain.
func (c *Chain) Handle(fn tl.Function) tl.Result {
	c.lock.Lock()
	m := fn.Method()
	c.calls[m]++
	c.requests = append(c.requests, fn)
	if f := c.failures[m]; len(f) > 0 {
		c.failures[m] = f[1:]
		c.lock.Unlock()
		return f[0]
	}
	if h := c.hooks[m]; h != nil {
		c.lock.Unlock()
		return h(fn)
	}
	defer c.lock.Unlock()
	return c.handle(fn)
}

func (c *Chain) handle(fn tl.Function) tl.Result {
	switch f := fn.(type) {
	case *tl.Init:
		return &tl.OptionsInfo{}
	case *tl.Sync:
		head := c.masters[len(c.masters)-1]
		return &head
	case *tl.GetLogVerbosityLevel:
		return &tl.LogVerbosityLevel{VerbosityLevel: 1}
	case *tl.SetLogVerbosityLevel:
		return &tl.Ok{}
	case *tl.BlocksGetMasterchainInfo:
		return &tl.BlocksMasterchainInfo{
			Last: c.masters[len(c.masters)-1],
			Init: c.masters[0],
		}
	case *tl.BlocksLookupBlock:
		return c.lookupBlock(f)
	case *tl.BlocksGetShards:
		if f.ID.Workchain != tl.MasterchainID {
			return &tl.Error{Code: CodeBadRequest, Message: "not a masterchain block"}
		}
		shards, ok := c.shards[f.ID.Seqno]
		if !ok {
			return &tl.Error{Code: CodeNotFound, Message: "block not found"}
		}
		return &tl.BlocksShards{Shards: slices.Clone(shards)}
	case *tl.BlocksGetBlockHeader:
		h, ok := c.headers[f.ID]
		if !ok {
			return &tl.Error{Code: CodeNotFound, Message: "block not found"}
		}
		res := *h
		res.PrevBlocks = slices.Clone(h.PrevBlocks)
		return &res
	case *tl.BlocksGetTransactions:
		return c.blockTransactions(f)
	case *tl.RawGetAccountState:
		return c.accountState(f.AccountAddress, nil)
	case *tl.RawGetAccountStateByTransaction:
		return c.accountState(f.AccountAddress, &f.TransactionID)
	case *tl.RawGetTransactionsV2:
		return c.transactions(f.AccountAddress, f.FromTransactionID, int(f.Count))
	case *tl.RawGetTransactions:
		return c.transactions(f.AccountAddress, f.FromTransactionID, 10)
	case *tl.SmcLoad:
		return c.smcLoad(f.AccountAddress, nil)
	case *tl.SmcLoadByTransaction:
		return c.smcLoad(f.AccountAddress, &f.TransactionID)
	case *tl.SmcForget:
		if _, ok := c.loaded[f.ID]; !ok {
			return &tl.Error{Code: CodeNotFound, Message: "unknown smc id"}
		}
		delete(c.loaded, f.ID)
		c.forgotten = append(c.forgotten, f.ID)
		return &tl.Ok{}
	case *tl.SmcGetCode:
		if s, ok := c.loaded[f.ID]; ok {
			return &tl.TvmCell{Bytes: s.state.Code}
		}
		return &tl.Error{Code: CodeNotFound, Message: "unknown smc id"}
	case *tl.SmcGetData:
		if s, ok := c.loaded[f.ID]; ok {
			return &tl.TvmCell{Bytes: s.state.Data}
		}
		return &tl.Error{Code: CodeNotFound, Message: "unknown smc id"}
	case *tl.SmcGetState:
		if s, ok := c.loaded[f.ID]; ok {
			return &tl.TvmCell{Bytes: append(slices.Clone(s.state.Code), s.state.Data...)}
		}
		return &tl.Error{Code: CodeNotFound, Message: "unknown smc id"}
	case *tl.SmcRunGetMethod:
		return c.runGetMethod(f)
	case *tl.SmcGetLibraries:
		if len(f.LibraryList) > MaxLibraries {
			return &tl.Error{Code: CodeBadRequest, Message: "too many libraries requested"}
		}
		res := &tl.SmcLibraryResult{Result: []tl.SmcLibraryEntry{}}
		for _, h := range f.LibraryList {
			if data, ok := c.libraries[h]; ok {
				res.Result = append(res.Result, tl.SmcLibraryEntry{Hash: h, Data: slices.Clone(data)})
			}
		}
		return res
	case *tl.GetConfigAll:
		return &tl.ConfigInfo{Config: tl.TvmCell{Bytes: []byte("config")}}
	case *tl.GetConfigParam:
		return &tl.ConfigInfo{Config: tl.TvmCell{Bytes: []byte{byte(f.Param)}}}
	case *tl.LiteServerGetInfo:
		return &tl.LiteServerInfo{Version: 0x101}
	default:
		return &tl.Error{Code: CodeUnsupported, Message: "unsupported request " + fn.Method()}
	}
}

func (c *Chain) lookupBlock(f *tl.BlocksLookupBlock) tl.Result {
	if f.Mode != tl.LookupBySeqno {
		return &tl.Error{Code: CodeBadRequest, Message: "only seqno lookups are supported"}
	}
	if f.ID.Workchain == tl.MasterchainID {
		if f.ID.Seqno < 1 || int(f.ID.Seqno) > len(c.masters) {
			return &tl.Error{Code: CodeNotFound, Message: "block is not applied"}
		}
		id := c.masters[f.ID.Seqno-1]
		return &id
	}
	id := BlockID(f.ID.Workchain, f.ID.Shard, f.ID.Seqno)
	if _, ok := c.headers[id]; !ok {
		return &tl.Error{Code: CodeNotFound, Message: "block is not applied"}
	}
	return &id
}

func (c *Chain) blockTransactions(f *tl.BlocksGetTransactions) tl.Result {
	if _, ok := c.headers[f.ID]; !ok {
		return &tl.Error{Code: CodeNotFound, Message: "block not found"}
	}
	txs := slices.Clone(c.blockTxs[f.ID])
	slices.SortFunc(txs, func(a, b tl.BlocksShortTxID) int {
		if r := bytes.Compare(a.Account, b.Account); r != 0 {
			return r
		}
		return cmp.Compare(a.LT, b.LT)
	})
	start := 0
	if f.Mode&tl.TxModeAfter != 0 {
		start = len(txs)
		for i, tx := range txs {
			r := bytes.Compare(tx.Account, f.After.Account)
			if r > 0 || (r == 0 && tx.LT > f.After.LT) {
				start = i
				break
			}
		}
	}
	end := min(start+int(f.Count), len(txs))
	return &tl.BlocksTransactions{
		ID:           f.ID,
		ReqCount:     f.Count,
		Incomplete:   end < len(txs),
		Transactions: txs[start:end],
	}
}

func (c *Chain) parse(a tl.AccountAddress) (tl.Address, *tl.Error) {
	addr, err := tl.ParseAddress(a.AccountAddress)
	if err != nil {
		return tl.Address{}, &tl.Error{Code: CodeBadRequest, Message: err.Error()}
	}
	return addr, nil
}

// stateAt returns account state after txID or the latest one.
func (c *Chain) stateAt(a tl.AccountAddress, txID *tl.InternalTransactionID) (tl.Address, *tl.RawFullAccountState, *tl.Error) {
	addr, e := c.parse(a)
	if e != nil {
		return addr, nil, e
	}
	state := &tl.RawFullAccountState{
		LastTransactionID: tl.NullTransactionID,
		BlockID:           c.masters[len(c.masters)-1],
	}
	acc := c.accounts[addr]
	if acc == nil {
		if txID != nil {
			return addr, nil, &tl.Error{Code: CodeNotFound, Message: "transaction not found"}
		}
		return addr, state, nil
	}
	idx := len(acc.txs) - 1
	if txID != nil {
		idx = slices.IndexFunc(acc.txs, func(t accountTx) bool { return t.id.LT == txID.LT })
		if idx < 0 {
			return addr, nil, &tl.Error{Code: CodeNotFound, Message: "transaction not found"}
		}
		if !acc.txs[idx].id.Equal(*txID) {
			return addr, nil, &tl.Error{Code: CodeBadRequest, Message: "transaction hash mismatch"}
		}
	}
	tx := acc.txs[idx]
	state.Balance = tx.balance
	state.Code = []byte("code:" + addr.String())
	state.Data = binary.BigEndian.AppendUint64(nil, uint64(tx.balance))
	state.LastTransactionID = tx.id
	return addr, state, nil
}

func (c *Chain) accountState(a tl.AccountAddress, txID *tl.InternalTransactionID) tl.Result {
	_, state, e := c.stateAt(a, txID)
	if e != nil {
		return e
	}
	return state
}

func (c *Chain) smcLoad(a tl.AccountAddress, txID *tl.InternalTransactionID) tl.Result {
	addr, state, e := c.stateAt(a, txID)
	if e != nil {
		return e
	}
	c.nextSmc++
	c.loaded[c.nextSmc] = loadedState{addr: addr, state: *state}
	return &tl.SmcInfo{ID: c.nextSmc}
}

// runGetMethod supports "balance" and "last_lt" methods returning a single
// number.
func (c *Chain) runGetMethod(f *tl.SmcRunGetMethod) tl.Result {
	s, ok := c.loaded[f.ID]
	if !ok {
		return &tl.Error{Code: CodeNotFound, Message: "unknown smc id"}
	}
	var n int64
	switch f.MethodID.Name {
	case "balance":
		n = s.state.Balance
	case "last_lt":
		n = s.state.LastTransactionID.LT
	default:
		return &tl.SmcRunResult{GasUsed: 100, ExitCode: 11, Stack: []tl.StackEntry{}}
	}
	return &tl.SmcRunResult{
		GasUsed:  500,
		Stack:    []tl.StackEntry{tl.NewNumberEntry(big.NewInt(n))},
		ExitCode: 0,
	}
}

// transactions returns up to count transactions starting from the given one
// backwards.
func (c *Chain) transactions(a tl.AccountAddress, from tl.InternalTransactionID, count int) tl.Result {
	addr, e := c.parse(a)
	if e != nil {
		return e
	}
	acc := c.accounts[addr]
	if acc == nil {
		return &tl.Error{Code: CodeNotFound, Message: "account not found"}
	}
	idx := slices.IndexFunc(acc.txs, func(t accountTx) bool { return t.id.LT == from.LT })
	if idx < 0 {
		return &tl.Error{Code: CodeNotFound, Message: "transaction not found"}
	}
	if !acc.txs[idx].id.Equal(from) {
		return &tl.Error{Code: CodeBadRequest, Message: "transaction hash mismatch"}
	}
	res := &tl.RawTransactions{PreviousTransactionID: tl.NullTransactionID}
	for i := idx; i >= 0 && len(res.Transactions) < count; i-- {
		tx := acc.txs[i]
		res.Transactions = append(res.Transactions, tl.RawTransaction{
			Address:       tl.NewAccountAddress(addr),
			Utime:         int64(tx.utime),
			TransactionID: tx.id,
			OutMsgs:       []tl.RawMessage{},
		})
		if i > 0 {
			res.PreviousTransactionID = acc.txs[i-1].id
		} else {
			res.PreviousTransactionID = tl.NullTransactionID
		}
	}
	return res
}
