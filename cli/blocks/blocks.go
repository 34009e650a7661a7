package blocks

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nspcc-dev/tonlib-go/cli/options"
	"github.com/nspcc-dev/tonlib-go/pkg/rpcclient"
	"github.com/nspcc-dev/tonlib-go/pkg/rpcclient/blockstream"
	"github.com/nspcc-dev/tonlib-go/pkg/services/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli"
	"go.uber.org/zap"
)

// NewCommands returns 'blocks' command.
func NewCommands() []cli.Command {
	streamFlags := append([]cli.Flag{
		cli.IntFlag{
			Name:  "from",
			Usage: "Masterchain block to start from, the latest one by default",
		},
		cli.IntFlag{
			Name:  "count, n",
			Usage: "Number of masterchain blocks to print, unlimited by default",
		},
		cli.BoolFlag{
			Name:  "txs",
			Usage: "Print transactions of every block",
		},
	}, options.Node...)
	return []cli.Command{{
		Name:  "blocks",
		Usage: "Follow the chain",
		Subcommands: []cli.Command{
			{
				Name:      "stream",
				Usage:     "Print new masterchain blocks with their shard blocks",
				UsageText: "tonlib-go blocks stream -e endpoint [--from seqno] [-n count] [--txs]",
				Action:    streamBlocks,
				Flags:     streamFlags,
			},
		},
	}}
}

func streamBlocks(ctx *cli.Context) error {
	count := ctx.Int("count")
	if count < 0 || ctx.Int("from") < 0 {
		return cli.NewExitError("negative --from or --count", 1)
	}
	cfg, err := options.GetConfigFromContext(ctx)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	log, _, logCloser, err := options.HandleLoggingParams(ctx.Bool("debug"), cfg.Logger)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer func() { _ = logCloser() }()

	gctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var reg prometheus.Registerer
	if cfg.Prometheus.Enabled {
		reg = prometheus.DefaultRegisterer
	}
	opts, err := options.ClientOptions(cfg, log, reg)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	c, err := rpcclient.New(gctx, opts)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer c.Close()

	services := []*metrics.Service{
		metrics.NewPrometheusService(cfg.Prometheus, nil, log),
		metrics.NewPprofService(cfg.Pprof, log),
	}
	for _, s := range services {
		if err := s.Start(); err != nil {
			return cli.NewExitError(err, 1)
		}
		defer s.ShutDown()
	}

	from := int32(ctx.Int("from"))
	if from == 0 {
		info, err := c.GetMasterchainInfo(gctx)
		if err != nil {
			return cli.NewExitError(err, 1)
		}
		from = info.Last.Seqno
	}
	s := blockstream.New(c, from, blockstream.Options{
		PollInterval: cfg.Cache.PollInterval,
		Log:          log,
	})
	for i := 0; count == 0 || i < count; i++ {
		item, err := s.Next(gctx)
		if err != nil {
			if gctx.Err() != nil {
				log.Info("interrupted", zap.Int32("next", s.NextSeqno()))
				return nil
			}
			return cli.NewExitError(err, 1)
		}
		shards := make([]string, 0, len(item.Shards))
		for _, b := range item.Shards {
			shards = append(shards, b.String())
		}
		_, _ = fmt.Fprintf(ctx.App.Writer, "%s: %s\n", item.MasterBlock, strings.Join(shards, " "))
		if !ctx.Bool("txs") {
			continue
		}
		txs, err := c.GetShardsTxIDs(gctx, append(item.Shards, item.MasterBlock))
		if err != nil {
			return cli.NewExitError(err, 1)
		}
		for _, block := range txs {
			for _, tx := range block.TxIDs {
				_, _ = fmt.Fprintf(ctx.App.Writer, "  %s %s %s\n", block.Block, tx.Address, tx.ID)
			}
		}
	}
	return nil
}
