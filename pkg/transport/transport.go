/*
Package transport provides synchronous handles to the node. A handle is owned
by exactly one connection which drives its Receive loop, so implementations
only need to make Send and Execute safe for concurrent use.
*/
package transport

import (
	"context"
	"errors"
	"time"

	"github.com/nspcc-dev/tonlib-go/pkg/tl"
)

// ErrClosed is returned from operations on a closed transport.
var ErrClosed = errors.New("transport is closed")

// Message is a single message received from the node. Err is set when the
// message couldn't be decoded, Result is nil then. Extra is the correlation
// tag echoed by the node, nil for unsolicited messages.
type Message struct {
	Result tl.Result
	Err    error
	Extra  *string
}

// Transport is a synchronous handle to the node.
type Transport interface {
	// Send enqueues fn tagged with extra, the reply is delivered via Receive.
	Send(fn tl.Function, extra string) error
	// Receive waits up to timeout for the next message. It returns false
	// if there was none.
	Receive(timeout time.Duration) (*Message, bool)
	// Execute performs a blocking round trip bypassing Receive. It's only
	// suitable for static requests that don't need an initialized client.
	Execute(fn tl.Function) (tl.Result, error)
	// Close releases the handle, it's safe to call it more than once.
	Close() error
	// Done is closed once the handle is dead, either closed or broken.
	// Messages received before that can still be drained with Receive.
	Done() <-chan struct{}
}

// Dialer creates fresh transports, each call must return a new independent
// handle.
type Dialer func(ctx context.Context) (Transport, error)
