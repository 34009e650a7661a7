/*
Package blockstream implements sequential masterchain block iteration. Every
step returns the next masterchain block together with all shard blocks
finalized in it, so that a contiguous run of steps covers every shard block
exactly once.
*/
package blockstream

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/nspcc-dev/tonlib-go/pkg/rpcclient"
	"github.com/nspcc-dev/tonlib-go/pkg/tl"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultPollInterval is the default interval between chain head requests
// while waiting for the next block.
const DefaultPollInterval = 100 * time.Millisecond

// Item is a single stream step.
type Item struct {
	MasterBlock tl.BlockIDExt
	// Shards are the shard blocks finalized in MasterBlock, sorted by
	// workchain, shard and seqno.
	Shards []tl.BlockIDExt
}

// Options are Stream options.
type Options struct {
	// PollInterval is DefaultPollInterval if not set.
	PollInterval time.Duration
	Log          *zap.Logger
}

// Stream is a cursor over masterchain blocks. It's not safe for concurrent
// use.
type Stream struct {
	client rpcclient.ConnInvoker
	api    rpcclient.API
	poll   time.Duration
	log    *zap.Logger

	nextSeqno int32
	started   bool
	// Shards of the previous masterchain block.
	prev map[tl.BlockID]struct{}
}

// New creates a stream which starts from the masterchain block nextSeqno.
func New(client rpcclient.ConnInvoker, nextSeqno int32, opts Options) *Stream {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &Stream{
		client:    client,
		api:       rpcclient.NewAPI(client),
		poll:      opts.PollInterval,
		log:       opts.Log,
		nextSeqno: nextSeqno,
	}
}

// NextSeqno returns the seqno of the masterchain block Next will return.
func (s *Stream) NextSeqno() int32 {
	return s.nextSeqno
}

// Next waits for the next masterchain block and returns it with all shard
// blocks finalized since the previous one. The stream doesn't advance on
// error, so Next can be retried.
func (s *Stream) Next(ctx context.Context) (*Item, error) {
	if !s.started {
		prev := make(map[tl.BlockID]struct{})
		if s.nextSeqno > 1 {
			shards, _, err := masterBlockShards(ctx, s.api, s.nextSeqno-1)
			if err != nil {
				return nil, fmt.Errorf("baseline block %d: %w", s.nextSeqno-1, err)
			}
			for _, b := range shards {
				prev[b.BlockID()] = struct{}{}
			}
		}
		s.prev = prev
		s.started = true
	}
	conn, err := s.waitFor(ctx, s.nextSeqno)
	if err != nil {
		return nil, err
	}
	shards, master, err := masterBlockShards(ctx, conn, s.nextSeqno)
	if err != nil {
		return nil, fmt.Errorf("block %d: %w", s.nextSeqno, err)
	}

	var (
		seen    = make(map[tl.BlockIDExt]struct{})
		pending = shards
		res     []tl.BlockIDExt
	)
	for len(pending) > 0 {
		var level []tl.BlockIDExt
		for _, b := range pending {
			if _, ok := s.prev[b.BlockID()]; ok {
				continue
			}
			if _, ok := seen[b]; ok {
				continue
			}
			seen[b] = struct{}{}
			level = append(level, b)
		}
		headers, err := s.headers(ctx, conn, level)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", s.nextSeqno, err)
		}
		res = append(res, level...)
		pending = nil
		for _, h := range headers {
			pending = append(pending, h.PrevBlocks...)
		}
	}
	slices.SortFunc(res, compareBlocks)

	prev := make(map[tl.BlockID]struct{}, len(shards))
	for _, b := range shards {
		prev[b.BlockID()] = struct{}{}
	}
	s.prev = prev
	s.nextSeqno++
	s.log.Debug("new block",
		zap.Int32("seqno", master.Seqno),
		zap.Int("shards", len(res)))
	return &Item{MasterBlock: master, Shards: res}, nil
}

// waitFor polls the chain head until it reaches seqno and returns the API of
// the connection that reported it.
func (s *Stream) waitFor(ctx context.Context, seqno int32) (rpcclient.API, error) {
	for {
		res, conn, err := s.client.InvokeOnConnection(ctx, &tl.BlocksGetMasterchainInfo{})
		if err != nil {
			return rpcclient.API{}, fmt.Errorf("chain head: %w", err)
		}
		info, ok := res.(*tl.BlocksMasterchainInfo)
		if !ok {
			return rpcclient.API{}, &rpcclient.UnexpectedResultError{Actual: res.Type(), Expected: tl.TypeBlocksMasterchainInfo}
		}
		if info.Last.Seqno >= seqno {
			if conn == nil {
				return s.api, nil
			}
			return conn.API, nil
		}
		timer := time.NewTimer(s.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return rpcclient.API{}, ctx.Err()
		case <-timer.C:
		}
	}
}

// headers fetches block headers concurrently using conn, every failed
// request is repeated once via the whole client.
func (s *Stream) headers(ctx context.Context, conn rpcclient.API, blocks []tl.BlockIDExt) ([]*tl.BlocksHeader, error) {
	var (
		res     = make([]*tl.BlocksHeader, len(blocks))
		g, gctx = errgroup.WithContext(ctx)
	)
	for i, b := range blocks {
		g.Go(func() error {
			h, err := conn.GetBlockHeader(gctx, b)
			if err != nil {
				s.log.Debug("falling back to pool for block header",
					zap.Stringer("block", b), zap.Error(err))
				h, err = s.api.GetBlockHeader(gctx, b)
				if err != nil {
					return err
				}
			}
			res[i] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

func masterBlockShards(ctx context.Context, api rpcclient.API, seqno int32) ([]tl.BlockIDExt, tl.BlockIDExt, error) {
	master, err := api.LookupBlock(ctx, tl.LookupBySeqno, tl.MasterBlockID(seqno), 0, 0)
	if err != nil {
		return nil, tl.BlockIDExt{}, err
	}
	shards, err := api.GetBlockShards(ctx, *master)
	if err != nil {
		return nil, tl.BlockIDExt{}, err
	}
	return shards.Shards, *master, nil
}

func compareBlocks(a, b tl.BlockIDExt) int {
	if r := cmp.Compare(a.Workchain, b.Workchain); r != 0 {
		return r
	}
	if r := cmp.Compare(uint64(a.Shard), uint64(b.Shard)); r != 0 {
		return r
	}
	return cmp.Compare(a.Seqno, b.Seqno)
}
