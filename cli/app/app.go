package app

import (
	"fmt"
	"os"
	"runtime"

	"github.com/nspcc-dev/tonlib-go/cli/blocks"
	"github.com/nspcc-dev/tonlib-go/cli/query"
	"github.com/nspcc-dev/tonlib-go/cli/util"
	"github.com/nspcc-dev/tonlib-go/pkg/config"
	"github.com/urfave/cli"
)

func versionPrinter(c *cli.Context) {
	_, _ = fmt.Fprintf(c.App.Writer, "tonlib-go\nVersion: %s\nGoVersion: %s\n",
		config.Version,
		runtime.Version(),
	)
}

// New creates a tonlib-go instance of [cli.App] with all commands included.
func New() *cli.App {
	cli.VersionPrinter = versionPrinter
	ctl := cli.NewApp()
	ctl.Name = "tonlib-go"
	ctl.Version = config.Version
	ctl.Usage = "Go client for TON node bridges"
	ctl.ErrWriter = os.Stdout

	ctl.Commands = append(ctl.Commands, query.NewCommands()...)
	ctl.Commands = append(ctl.Commands, blocks.NewCommands()...)
	ctl.Commands = append(ctl.Commands, util.NewCommands()...)
	return ctl
}
