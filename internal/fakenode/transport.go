/*
Package fakenode provides an in-memory node for tests: a transport answering
requests with a handler and a simulated chain to build handlers from.
*/
package fakenode

import (
	"context"
	"sync"
	"time"

	"github.com/nspcc-dev/tonlib-go/pkg/tl"
	"github.com/nspcc-dev/tonlib-go/pkg/transport"
	"go.uber.org/atomic"
)

// Handler answers node requests. A nil result leaves the request unanswered.
type Handler func(fn tl.Function) tl.Result

// Transport is an in-memory transport.Transport.
type Transport struct {
	handler Handler
	in      chan *transport.Message
	done    chan struct{}
	once    sync.Once
	closed  atomic.Bool
}

var _ transport.Transport = (*Transport)(nil)

// NewTransport creates a transport answering with h.
func NewTransport(h Handler) *Transport {
	return &Transport{
		handler: h,
		in:      make(chan *transport.Message, 4096),
		done:    make(chan struct{}),
	}
}

// Send implements the transport.Transport interface.
func (t *Transport) Send(fn tl.Function, extra string) error {
	if t.closed.Load() {
		return transport.ErrClosed
	}
	if res := t.handler(fn); res != nil {
		t.push(&transport.Message{Result: res, Extra: &extra})
	}
	return nil
}

// Notify sends an unsolicited message.
func (t *Transport) Notify(res tl.Result) {
	t.push(&transport.Message{Result: res})
}

func (t *Transport) push(m *transport.Message) {
	select {
	case t.in <- m:
	case <-t.done:
	}
}

// Receive implements the transport.Transport interface.
func (t *Transport) Receive(timeout time.Duration) (*transport.Message, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case m := <-t.in:
		return m, true
	case <-timer.C:
		return nil, false
	case <-t.done:
		return nil, false
	}
}

// Execute implements the transport.Transport interface.
func (t *Transport) Execute(fn tl.Function) (tl.Result, error) {
	if t.closed.Load() {
		return nil, transport.ErrClosed
	}
	return t.handler(fn), nil
}

// Close implements the transport.Transport interface.
func (t *Transport) Close() error {
	t.once.Do(func() {
		t.closed.Store(true)
		close(t.done)
	})
	return nil
}

// Done implements the transport.Transport interface.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Closed tells whether Close was called.
func (t *Transport) Closed() bool {
	return t.closed.Load()
}

// Dialer creates transports sharing the same handler.
type Dialer struct {
	handler Handler

	lock       sync.Mutex
	transports []*Transport
}

// NewDialer creates a Dialer for h.
func NewDialer(h Handler) *Dialer {
	return &Dialer{handler: h}
}

// Dial is a transport.Dialer.
func (d *Dialer) Dial(context.Context) (transport.Transport, error) {
	t := NewTransport(d.handler)
	d.lock.Lock()
	d.transports = append(d.transports, t)
	d.lock.Unlock()
	return t, nil
}

// Transports returns all dialed transports.
func (d *Dialer) Transports() []*Transport {
	d.lock.Lock()
	defer d.lock.Unlock()
	return append([]*Transport(nil), d.transports...)
}
