package blocks_test

import (
	"testing"

	"github.com/nspcc-dev/tonlib-go/internal/testcli"
	"github.com/nspcc-dev/tonlib-go/pkg/tl"
)

func TestStream(t *testing.T) {
	var (
		e    = testcli.NewExecutor(t)
		addr = tl.Address{Hash: tl.Hash{7}}
	)
	shards := e.Chain.Advance()
	tx := e.Chain.AddTransaction(shards[0], addr, 1, 1)
	master := e.Chain.Head()

	args := append([]string{"tonlib-go", "blocks", "stream"}, e.NodeFlags()...)
	e.Run(t, append(args, "--from", "2", "-n", "1", "--txs")...)
	e.CheckNextLine(t, master.String()+": "+shards[0].String())
	e.CheckNextLine(t, "  "+shards[0].String()+" "+addr.String()+" "+tx.String())
	e.CheckEOF(t)

	// The latest block by default.
	next := e.Chain.Advance()
	e.Run(t, append(args, "-n", "1")...)
	e.CheckNextLine(t, e.Chain.Head().String()+": "+next[0].String())
	e.CheckEOF(t)

	e.RunWithErrorCheck(t, "negative", append(args, "-n", "-1")...)
}
