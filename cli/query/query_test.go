package query_test

import (
	"encoding/base64"
	"strconv"
	"strings"
	"testing"

	"github.com/nspcc-dev/tonlib-go/internal/testcli"
	"github.com/nspcc-dev/tonlib-go/pkg/tl"
	"github.com/stretchr/testify/require"
)

var testAddr = tl.Address{Hash: tl.Hash{1, 0xaa}}

func cmd(e *testcli.Executor, name string, args ...string) []string {
	return append(append([]string{"tonlib-go", "query", name}, e.NodeFlags()...), args...)
}

func TestQueryAccount(t *testing.T) {
	e := testcli.NewExecutor(t)
	first := e.Chain.AddTransaction(tl.BlockIDExt{}, testAddr, 100, 10)
	e.Chain.AddTransaction(tl.BlockIDExt{}, testAddr, 200, 42)

	e.Run(t, cmd(e, "account", testAddr.String())...)
	out := e.Out.String()
	require.Contains(t, out, testAddr.String())
	require.Contains(t, out, testAddr.Friendly(true, false))
	require.Regexp(t, `Balance:\s+42\n`, out)

	e.Run(t, cmd(e, "account", "--tx", first.String(), testAddr.Friendly(false, false))...)
	require.Regexp(t, `Balance:\s+10\n`, e.Out.String())
	require.Regexp(t, `LastTransaction:\s+`+first.String(), e.Out.String())

	t.Run("errors", func(t *testing.T) {
		e.RunWithErrorCheck(t, "address is missing", cmd(e, "account")...)
		e.RunWithErrorCheck(t, "invalid address", cmd(e, "account", "not-an-address")...)
		e.RunWithError(t, cmd(e, "account", "--tx", "bad", testAddr.String())...)
		e.RunWithErrorCheck(t, "transaction hash mismatch", cmd(e, "account", "--tx", strconv.FormatInt(first.LT, 10)+":"+strings.Repeat("00", 32), testAddr.String())...)
		e.RunWithErrorCheck(t, "no node endpoint", "tonlib-go", "query", "account", testAddr.String())
	})
}

func TestQueryTransactions(t *testing.T) {
	e := testcli.NewExecutor(t)
	var ids []tl.InternalTransactionID
	for i := range 5 {
		ids = append(ids, e.Chain.AddTransaction(tl.BlockIDExt{}, testAddr, int32(1000+i), int64(i)))
	}

	e.Run(t, cmd(e, "transactions", "-n", "3", testAddr.String())...)
	for i := 4; i > 1; i-- {
		e.CheckNextLine(t, ids[i].String())
	}
	e.CheckEOF(t)

	e.Run(t, cmd(e, "transactions", testAddr.String())...)
	require.Equal(t, 5, strings.Count(e.Out.String(), "\n"))

	e.RunWithErrorCheck(t, "count must be positive", cmd(e, "transactions", "-n", "0", testAddr.String())...)
}

func TestQueryRun(t *testing.T) {
	e := testcli.NewExecutor(t)
	e.Chain.AddTransaction(tl.BlockIDExt{}, testAddr, 100, 42)

	e.Run(t, cmd(e, "run", testAddr.String(), "balance")...)
	e.CheckNextLine(t, "GasUsed: 500")
	e.CheckNextLine(t, "0: 42")
	e.CheckEOF(t)

	e.Run(t, cmd(e, "run", testAddr.String(), "balance", "1", "0x10")...)
	reqs := e.Chain.Requests("smc.runGetMethod")
	stack := reqs[len(reqs)-1].(*tl.SmcRunGetMethod).Stack
	require.Len(t, stack, 2)
	require.EqualValues(t, 16, stack[1].Number.Int64())

	// Negative arguments follow '--'.
	e.Run(t, cmd(e, "run", "--", testAddr.String(), "balance", "-5")...)
	reqs = e.Chain.Requests("smc.runGetMethod")
	stack = reqs[len(reqs)-1].(*tl.SmcRunGetMethod).Stack
	require.Len(t, stack, 1)
	require.EqualValues(t, -5, stack[0].Number.Int64())

	e.RunWithErrorCheck(t, "exit code 11", cmd(e, "run", testAddr.String(), "seqno")...)
	e.RunWithErrorCheck(t, "method is missing", cmd(e, "run", testAddr.String())...)
	e.RunWithErrorCheck(t, "invalid integer argument", cmd(e, "run", testAddr.String(), "balance", "one")...)
	require.Zero(t, e.Chain.Loaded())
}

func TestQueryLibraries(t *testing.T) {
	e := testcli.NewExecutor(t)
	lib := e.Chain.AddLibrary([]byte("library cell"))
	unknown := tl.Hash{0xff}

	e.Run(t, cmd(e, "libraries", lib.String(), unknown.String())...)
	e.CheckNextLine(t, lib.String()+": "+base64.StdEncoding.EncodeToString([]byte("library cell")))
	e.CheckNextLine(t, unknown.String()+": not found")
	e.CheckEOF(t)

	e.RunWithErrorCheck(t, "library hash is missing", cmd(e, "libraries")...)
	e.RunWithErrorCheck(t, "invalid hash", cmd(e, "libraries", "xyz")...)
}

func TestQueryConfig(t *testing.T) {
	e := testcli.NewExecutor(t)
	e.Run(t, cmd(e, "config")...)
	e.CheckNextLine(t, base64.StdEncoding.EncodeToString([]byte("config")))
	e.CheckEOF(t)
}

func TestQueryMaster(t *testing.T) {
	e := testcli.NewExecutor(t)
	e.Chain.Advance()
	e.Run(t, cmd(e, "master")...)
	e.CheckNextLine(t, strconv.Itoa(int(e.Chain.Head().Seqno))+" "+e.Chain.Head().String())
}
