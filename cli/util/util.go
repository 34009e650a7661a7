package util

import (
	"fmt"
	"strconv"

	"github.com/nspcc-dev/tonlib-go/cli/options"
	"github.com/nspcc-dev/tonlib-go/pkg/tl"
	"github.com/urfave/cli"
)

// NewCommands returns 'util' command.
func NewCommands() []cli.Command {
	return []cli.Command{{
		Name:  "util",
		Usage: "Various helper commands",
		Subcommands: []cli.Command{
			{
				Name:      "verbosity",
				Usage:     "Get or set node log verbosity level",
				UsageText: "tonlib-go util verbosity -e endpoint [level]",
				Action:    handleVerbosity,
				Flags:     options.Node,
			},
			{
				Name:      "address",
				Usage:     "Print all forms of the address",
				UsageText: "tonlib-go util address [-t] [--] <address>",
				Description: `Masterchain raw addresses (like -1:3333...) start with a dash,
   put '--' before them so that they're not taken for flags.`,
				Action: handleAddress,
				Flags: []cli.Flag{
					cli.BoolFlag{
						Name:  "testnet, t",
						Usage: "Print test-only friendly forms",
					},
				},
			},
		},
	}}
}

func handleVerbosity(ctx *cli.Context) error {
	var (
		args  = ctx.Args()
		level int64
		err   error
	)
	if len(args) > 1 {
		return cli.NewExitError("too many arguments", 1)
	}
	if len(args) == 1 {
		level, err = strconv.ParseInt(args[0], 10, 32)
		if err != nil || level < 0 {
			return cli.NewExitError(fmt.Sprintf("invalid verbosity level %s", args[0]), 1)
		}
	}

	gctx, cancel := options.GetTimeoutContext(ctx)
	defer cancel()
	c, log, exitErr := options.GetClient(gctx, ctx)
	if exitErr != nil {
		return exitErr
	}
	defer func() { _ = log.Sync() }()
	defer c.Close()

	if len(args) == 1 {
		if err := c.SetLogVerbosityLevel(gctx, int32(level)); err != nil {
			return cli.NewExitError(err, 1)
		}
		return nil
	}
	res, err := c.GetLogVerbosityLevel(gctx)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	_, _ = fmt.Fprintln(ctx.App.Writer, res.VerbosityLevel)
	return nil
}

func handleAddress(ctx *cli.Context) error {
	args := ctx.Args()
	if len(args) != 1 {
		return cli.NewExitError("address is missing", 1)
	}
	addr, err := tl.ParseAddress(args[0])
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	testOnly := ctx.Bool("testnet")
	_, _ = fmt.Fprintf(ctx.App.Writer, "Raw: %s\nBounceable: %s\nNon-bounceable: %s\n",
		addr, addr.Friendly(true, testOnly), addr.Friendly(false, testOnly))
	return nil
}
