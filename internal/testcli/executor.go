/*
Package testcli runs CLI commands against an in-memory node for tests.
*/
package testcli

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nspcc-dev/tonlib-go/cli/app"
	"github.com/nspcc-dev/tonlib-go/internal/fakenode"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"
)

// Executor represents context for a test instance.
// It can be safely used in multiple tests, but not in parallel.
type Executor struct {
	// CLI is a program for executing commands.
	CLI *cli.App
	// Chain is the simulated chain behind the node.
	Chain *fakenode.Chain
	// Node is the websocket bridge serving Chain.
	Node *httptest.Server
	// Out contains command output.
	Out *bytes.Buffer
	// Err contains command errors.
	Err *bytes.Buffer
	// ConfigFile is a client configuration with short timeouts and quiet
	// logging.
	ConfigFile string
}

const testConfig = `Connection:
  PollTimeout: 10ms
Logger:
  LogLevel: error
`

// NewExecutor creates an executor with a fresh chain.
func NewExecutor(t *testing.T) *Executor {
	chain := fakenode.NewChain()
	e := &Executor{
		CLI:   app.New(),
		Chain: chain,
		Node:  fakenode.NewWSServer(chain.Handle),
		Out:   bytes.NewBuffer(nil),
		Err:   bytes.NewBuffer(nil),
	}
	e.ConfigFile = filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(e.ConfigFile, []byte(testConfig), 0o644))
	e.CLI.Writer = e.Out
	e.CLI.ErrWriter = e.Err
	e.CLI.ExitErrHandler = func(*cli.Context, error) {}
	t.Cleanup(e.Node.Close)
	return e
}

// NodeFlags returns flags connecting to the test node, they must precede
// command arguments.
func (e *Executor) NodeFlags() []string {
	return []string{"--endpoint", fakenode.WSEndpoint(e.Node), "--config-file", e.ConfigFile}
}

// Run executes the command and checks that it succeeded.
func (e *Executor) Run(t *testing.T, args ...string) {
	require.NoError(t, e.run(args...))
}

// RunWithError executes the command and checks that it failed with an error.
func (e *Executor) RunWithError(t *testing.T, args ...string) {
	require.Error(t, e.run(args...))
}

// RunWithErrorCheck executes the command and checks that the error message
// contains msg.
func (e *Executor) RunWithErrorCheck(t *testing.T, msg string, args ...string) {
	err := e.run(args...)
	require.Error(t, err)
	require.Contains(t, err.Error(), msg)
}

func (e *Executor) run(args ...string) error {
	e.Out.Reset()
	e.Err.Reset()
	return e.CLI.Run(args)
}

// GetNextLine returns the next line from the output.
func (e *Executor) GetNextLine(t *testing.T) string {
	line, err := e.Out.ReadString('\n')
	require.NoError(t, err)
	return strings.TrimSuffix(line, "\n")
}

// CheckNextLine takes the next line from the output and checks that it
// contains expected.
func (e *Executor) CheckNextLine(t *testing.T, expected string) {
	require.Contains(t, e.GetNextLine(t), expected)
}

// CheckEOF checks that there is no more output.
func (e *Executor) CheckEOF(t *testing.T) {
	_, err := e.Out.ReadByte()
	require.Error(t, err)
}
