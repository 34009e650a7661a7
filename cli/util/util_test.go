package util_test

import (
	"testing"

	"github.com/nspcc-dev/tonlib-go/internal/testcli"
	"github.com/nspcc-dev/tonlib-go/pkg/tl"
	"github.com/stretchr/testify/require"
)

func TestVerbosity(t *testing.T) {
	e := testcli.NewExecutor(t)
	args := append([]string{"tonlib-go", "util", "verbosity"}, e.NodeFlags()...)

	e.Run(t, args...)
	e.CheckNextLine(t, "1")
	e.CheckEOF(t)

	e.Run(t, append(args, "3")...)
	e.CheckEOF(t)
	reqs := e.Chain.Requests("setLogVerbosityLevel")
	require.Len(t, reqs, 1)
	require.EqualValues(t, 3, reqs[0].(*tl.SetLogVerbosityLevel).NewVerbosityLevel)

	e.RunWithErrorCheck(t, "invalid verbosity level", append(args, "loud")...)
	e.RunWithErrorCheck(t, "too many arguments", append(args, "1", "2")...)
}

func TestAddress(t *testing.T) {
	e := testcli.NewExecutor(t)
	addr := tl.Address{Workchain: -1, Hash: tl.Hash{1, 2, 3}}

	e.Run(t, "tonlib-go", "util", "address", addr.Friendly(true, false))
	e.CheckNextLine(t, "Raw: "+addr.String())
	e.CheckNextLine(t, "Bounceable: "+addr.Friendly(true, false))
	e.CheckNextLine(t, "Non-bounceable: "+addr.Friendly(false, false))
	e.CheckEOF(t)

	e.Run(t, "tonlib-go", "util", "address", "-t", "--", addr.String())
	e.CheckNextLine(t, "Raw: "+addr.String())
	e.CheckNextLine(t, "Bounceable: "+addr.Friendly(true, true))
	e.CheckNextLine(t, "Non-bounceable: "+addr.Friendly(false, true))
	e.CheckEOF(t)

	e.Run(t, "tonlib-go", "util", "address", "--", addr.String())
	e.CheckNextLine(t, "Raw: "+addr.String())
	e.CheckNextLine(t, "Bounceable: "+addr.Friendly(true, false))

	e.RunWithErrorCheck(t, "address is missing", "tonlib-go", "util", "address")
	e.RunWithError(t, "tonlib-go", "util", "address", "0:xyz")
}
