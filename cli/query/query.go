package query

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"math/big"
	"text/tabwriter"
	"time"

	"github.com/nspcc-dev/tonlib-go/cli/options"
	"github.com/nspcc-dev/tonlib-go/pkg/contract"
	"github.com/nspcc-dev/tonlib-go/pkg/tl"
	"github.com/urfave/cli"
)

// NewCommands returns 'query' command.
func NewCommands() []cli.Command {
	accountFlags := append([]cli.Flag{
		cli.StringFlag{
			Name:  "transaction, tx",
			Usage: "Account state as of the given transaction (lt:hash)",
		},
	}, options.Node...)
	txFlags := append([]cli.Flag{
		cli.IntFlag{
			Name:  "count, n",
			Value: 10,
			Usage: "Maximum number of transactions to print",
		},
		cli.DurationFlag{
			Name:  "max-age",
			Usage: "Skip transactions older than that",
		},
		cli.BoolFlag{
			Name:  "soft",
			Usage: "Print whatever was loaded if the node fails",
		},
	}, options.Node...)
	return []cli.Command{{
		Name:  "query",
		Usage: "Query the node",
		Subcommands: []cli.Command{
			{
				Name:      "account",
				Usage:     "Print account state",
				UsageText: "tonlib-go query account -e endpoint [--tx lt:hash] [--] <address>",
				Action:    queryAccount,
				Flags:     accountFlags,
			},
			{
				Name:      "transactions",
				Usage:     "Print latest account transactions",
				UsageText: "tonlib-go query transactions -e endpoint [-n count] [--max-age age] [--soft] [--] <address>",
				Action:    queryTransactions,
				Flags:     txFlags,
			},
			{
				Name:      "run",
				Usage:     "Run get-method of the contract",
				UsageText: "tonlib-go query run -e endpoint [--] <address> <method> [integer arguments...]",
				Action:    runGetMethod,
				Flags:     options.Node,
			},
			{
				Name:      "libraries",
				Usage:     "Load library cells",
				UsageText: "tonlib-go query libraries -e endpoint <hash> [<hash>...]",
				Action:    queryLibraries,
				Flags:     options.Node,
			},
			{
				Name:      "config",
				Usage:     "Print blockchain config",
				UsageText: "tonlib-go query config -e endpoint",
				Action:    queryConfig,
				Flags:     options.Node,
			},
			{
				Name:      "master",
				Usage:     "Print the latest masterchain block",
				UsageText: "tonlib-go query master -e endpoint",
				Action:    queryMaster,
				Flags:     options.Node,
			},
		},
	}}
}

func parseAddress(ctx *cli.Context) (tl.Address, error) {
	args := ctx.Args()
	if len(args) == 0 {
		return tl.Address{}, cli.NewExitError("address is missing", 1)
	}
	addr, err := tl.ParseAddress(args[0])
	if err != nil {
		return tl.Address{}, cli.NewExitError(fmt.Errorf("invalid address %s: %w", args[0], err), 1)
	}
	return addr, nil
}

func queryAccount(ctx *cli.Context) error {
	addr, err := parseAddress(ctx)
	if err != nil {
		return err
	}
	var txID *tl.InternalTransactionID
	if s := ctx.String("transaction"); s != "" {
		id, err := tl.ParseInternalTransactionID(s)
		if err != nil {
			return cli.NewExitError(err, 1)
		}
		txID = &id
	}

	gctx, cancel := options.GetTimeoutContext(ctx)
	defer cancel()
	c, log, exitErr := options.GetClient(gctx, ctx)
	if exitErr != nil {
		return exitErr
	}
	defer func() { _ = log.Sync() }()
	defer c.Close()

	f := contract.NewFactory(c, contract.FactoryOptions{Log: log})
	defer f.Close()
	var st *tl.RawFullAccountState
	if txID != nil {
		st, err = f.GetAccountStateByTransaction(gctx, addr, *txID)
	} else {
		st, err = f.GetAccountState(gctx, addr)
	}
	if err != nil {
		return cli.NewExitError(err, 1)
	}

	buf := bytes.NewBuffer(nil)
	// Ignore the errors below because `Write` to buffer doesn't return error.
	tw := tabwriter.NewWriter(buf, 0, 4, 4, '\t', 0)
	_, _ = fmt.Fprintf(tw, "Address:\t%s\n", addr)
	_, _ = fmt.Fprintf(tw, "Friendly:\t%s\n", addr.Friendly(true, false))
	_, _ = fmt.Fprintf(tw, "Balance:\t%d\n", st.Balance)
	_, _ = fmt.Fprintf(tw, "LastTransaction:\t%s\n", st.LastTransactionID)
	_, _ = fmt.Fprintf(tw, "Block:\t%s\n", st.BlockID)
	_, _ = fmt.Fprintf(tw, "SyncTime:\t%s\n", time.Unix(st.SyncUtime, 0).UTC().Format(time.RFC3339))
	_, _ = fmt.Fprintf(tw, "CodeSize:\t%d\n", len(st.Code))
	_, _ = fmt.Fprintf(tw, "DataSize:\t%d\n", len(st.Data))
	_ = tw.Flush()
	_, _ = fmt.Fprint(ctx.App.Writer, buf.String())
	return nil
}

func queryTransactions(ctx *cli.Context) error {
	addr, err := parseAddress(ctx)
	if err != nil {
		return err
	}
	count := ctx.Int("count")
	if count <= 0 {
		return cli.NewExitError("count must be positive", 1)
	}

	gctx, cancel := options.GetTimeoutContext(ctx)
	defer cancel()
	c, log, exitErr := options.GetClient(gctx, ctx)
	if exitErr != nil {
		return exitErr
	}
	defer func() { _ = log.Sync() }()
	defer c.Close()

	tc, err := contract.NewFactory(c, contract.FactoryOptions{Log: log}).Contract(addr).NewTransactionsCache(contract.TransactionsOptions{
		Capacity:  count,
		SoftLimit: ctx.Bool("soft"),
		MaxAge:    ctx.Duration("max-age"),
	})
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	txs, err := tc.GetAll(gctx)
	if err != nil {
		return cli.NewExitError(err, 1)
	}

	buf := bytes.NewBuffer(nil)
	tw := tabwriter.NewWriter(buf, 0, 4, 4, '\t', 0)
	for _, tx := range txs {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\n", tx.TransactionID,
			time.Unix(tx.Utime, 0).UTC().Format(time.RFC3339), tx.Fee)
	}
	_ = tw.Flush()
	_, _ = fmt.Fprint(ctx.App.Writer, buf.String())
	return nil
}

func runGetMethod(ctx *cli.Context) error {
	addr, err := parseAddress(ctx)
	if err != nil {
		return err
	}
	args := ctx.Args()
	if len(args) < 2 {
		return cli.NewExitError("method is missing", 1)
	}
	method := args[1]
	stack := make([]tl.StackEntry, 0, len(args)-2)
	for _, a := range args[2:] {
		n, ok := new(big.Int).SetString(a, 0)
		if !ok {
			return cli.NewExitError(fmt.Sprintf("invalid integer argument %s", a), 1)
		}
		stack = append(stack, tl.NewNumberEntry(n))
	}

	gctx, cancel := options.GetTimeoutContext(ctx)
	defer cancel()
	c, log, exitErr := options.GetClient(gctx, ctx)
	if exitErr != nil {
		return exitErr
	}
	defer func() { _ = log.Sync() }()
	defer c.Close()

	res, err := contract.NewFactory(c, contract.FactoryOptions{Log: log}).Contract(addr).RunGetMethod(gctx, method, stack)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	_, _ = fmt.Fprintf(ctx.App.Writer, "GasUsed: %d\n", res.GasUsed)
	for i, e := range res.Stack {
		_, _ = fmt.Fprintf(ctx.App.Writer, "%d: %s\n", i, formatStackEntry(e))
	}
	return nil
}

func formatStackEntry(e tl.StackEntry) string {
	switch e.Kind {
	case tl.StackNumber:
		return e.Number.String()
	case tl.StackCell:
		return "cell " + base64.StdEncoding.EncodeToString(e.Bytes)
	case tl.StackSlice:
		return "slice " + base64.StdEncoding.EncodeToString(e.Bytes)
	default:
		return string(e.Raw)
	}
}

func queryLibraries(ctx *cli.Context) error {
	args := ctx.Args()
	if len(args) == 0 {
		return cli.NewExitError("library hash is missing", 1)
	}
	hashes := make([]tl.Hash, 0, len(args))
	for _, a := range args {
		h, err := tl.HashFromHex(a)
		if err != nil {
			return cli.NewExitError(fmt.Errorf("invalid hash %s: %w", a, err), 1)
		}
		hashes = append(hashes, h)
	}

	gctx, cancel := options.GetTimeoutContext(ctx)
	defer cancel()
	c, log, exitErr := options.GetClient(gctx, ctx)
	if exitErr != nil {
		return exitErr
	}
	defer func() { _ = log.Sync() }()
	defer c.Close()

	libs, err := contract.NewFactory(c, contract.FactoryOptions{Log: log}).Libraries().GetOrLoad(gctx, hashes)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	for _, h := range hashes {
		data, ok := libs[h]
		if !ok {
			_, _ = fmt.Fprintf(ctx.App.Writer, "%s: not found\n", h)
			continue
		}
		_, _ = fmt.Fprintf(ctx.App.Writer, "%s: %s\n", h, base64.StdEncoding.EncodeToString(data))
	}
	return nil
}

func queryConfig(ctx *cli.Context) error {
	gctx, cancel := options.GetTimeoutContext(ctx)
	defer cancel()
	c, log, exitErr := options.GetClient(gctx, ctx)
	if exitErr != nil {
		return exitErr
	}
	defer func() { _ = log.Sync() }()
	defer c.Close()

	cfg, err := contract.NewFactory(c, contract.FactoryOptions{Log: log}).Config(gctx)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	_, _ = fmt.Fprintln(ctx.App.Writer, base64.StdEncoding.EncodeToString(cfg))
	return nil
}

func queryMaster(ctx *cli.Context) error {
	gctx, cancel := options.GetTimeoutContext(ctx)
	defer cancel()
	c, log, exitErr := options.GetClient(gctx, ctx)
	if exitErr != nil {
		return exitErr
	}
	defer func() { _ = log.Sync() }()
	defer c.Close()

	info, err := c.GetMasterchainInfo(gctx)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	_, _ = fmt.Fprintf(ctx.App.Writer, "%d %s\n", info.Last.Seqno, info.Last)
	return nil
}
