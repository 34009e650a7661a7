package rpcclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/nspcc-dev/tonlib-go/pkg/tl"
	"golang.org/x/sync/errgroup"
)

// blockTxPageSize is the number of transactions requested per page.
const blockTxPageSize = 256

// ErrEmptyPage is returned when the node reports more block transactions
// without returning any, paging can't advance then.
var ErrEmptyPage = errors.New("incomplete transactions page is empty")

// ShardTxIDs is the list of transactions of some block.
type ShardTxIDs struct {
	Block tl.BlockIDExt
	TxIDs []tl.TxID
}

// GetShardTxIDs returns IDs of all transactions of the given block.
func (a API) GetShardTxIDs(ctx context.Context, block tl.BlockIDExt) ([]tl.TxID, error) {
	var (
		after = tl.NullBlocksAccountTransactionID
		res   []tl.TxID
	)
	for {
		mode := tl.TxModeAll
		if after.LT != 0 {
			mode = tl.TxModeAllAfter
		}
		txs, err := a.GetBlockTransactions(ctx, block, mode, blockTxPageSize, after)
		if err != nil {
			return nil, err
		}
		n := len(txs.Transactions)
		if n == 0 && txs.Incomplete {
			return nil, fmt.Errorf("block %d:%d: %w", block.Workchain, block.Seqno, ErrEmptyPage)
		}
		if n > 0 {
			last := txs.Transactions[n-1]
			after = tl.BlocksAccountTransactionID{Account: last.Account, LT: last.LT}
		}
		for _, tx := range txs.Transactions {
			id, err := tl.NewTxID(block.Workchain, tx)
			if err != nil {
				return nil, err
			}
			res = append(res, id)
		}
		if !txs.Incomplete {
			return res, nil
		}
	}
}

// GetShardsTxIDs returns transaction IDs of every given block. Blocks are
// processed concurrently, results keep the order of blocks.
func (a API) GetShardsTxIDs(ctx context.Context, blocks []tl.BlockIDExt) ([]ShardTxIDs, error) {
	var (
		res     = make([]ShardTxIDs, len(blocks))
		g, gctx = errgroup.WithContext(ctx)
	)
	for i, b := range blocks {
		g.Go(func() error {
			ids, err := a.GetShardTxIDs(gctx, b)
			if err != nil {
				return err
			}
			res[i] = ShardTxIDs{Block: b, TxIDs: ids}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}
