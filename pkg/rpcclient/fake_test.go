package rpcclient

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nspcc-dev/tonlib-go/pkg/tl"
	"github.com/nspcc-dev/tonlib-go/pkg/transport"
	"go.uber.org/atomic"
)

// fakeTransport is an in-memory node. Replies are produced by handler, nil
// reply means the request is left unanswered.
type fakeTransport struct {
	sendErr  func(fn tl.Function) error
	in       chan *transport.Message
	done     chan struct{}
	once     sync.Once
	sent     atomic.Int32
	executed atomic.Int32
	closed   atomic.Bool

	lock    sync.Mutex
	handler func(fn tl.Function) tl.Result
	reqs    []sentRequest
}

type sentRequest struct {
	fn    tl.Function
	extra string
}

func newFakeTransport(handler func(fn tl.Function) tl.Result) *fakeTransport {
	if handler == nil {
		handler = defaultHandler
	}
	return &fakeTransport{
		handler: handler,
		in:      make(chan *transport.Message, 1024),
		done:    make(chan struct{}),
	}
}

func defaultHandler(fn tl.Function) tl.Result {
	switch f := fn.(type) {
	case *tl.Init:
		return &tl.OptionsInfo{}
	case *tl.GetLogVerbosityLevel:
		return &tl.LogVerbosityLevel{VerbosityLevel: 1}
	case *tl.SetLogVerbosityLevel:
		return &tl.Ok{}
	case *tl.GetConfigParam:
		return &tl.ConfigInfo{Config: tl.TvmCell{Bytes: []byte{byte(f.Param)}}}
	case *tl.BlocksGetMasterchainInfo:
		return &tl.BlocksMasterchainInfo{Last: tl.BlockIDExt{Workchain: -1, Shard: tl.ShardFull, Seqno: 10}}
	case *tl.BlocksGetBlockHeader:
		return &tl.BlocksHeader{ID: f.ID}
	case *tl.Sync:
		return &tl.BlockIDExt{Workchain: -1, Shard: tl.ShardFull, Seqno: 10}
	case *tl.BlocksLookupBlock:
		return &tl.BlockIDExt{Workchain: f.ID.Workchain, Shard: f.ID.Shard, Seqno: f.ID.Seqno}
	default:
		return &tl.Error{Code: 400, Message: "not implemented"}
	}
}

func (t *fakeTransport) Send(fn tl.Function, extra string) error {
	if t.closed.Load() {
		return transport.ErrClosed
	}
	if t.sendErr != nil {
		if err := t.sendErr(fn); err != nil {
			return err
		}
	}
	t.lock.Lock()
	t.reqs = append(t.reqs, sentRequest{fn: fn, extra: extra})
	h := t.handler
	t.lock.Unlock()
	t.sent.Inc()
	if res := h(fn); res != nil {
		t.push(res, &extra)
	}
	return nil
}

// setHandler replaces the handler for subsequent requests.
func (t *fakeTransport) setHandler(h func(fn tl.Function) tl.Result) {
	t.lock.Lock()
	t.handler = h
	t.lock.Unlock()
}

func (t *fakeTransport) getHandler() func(fn tl.Function) tl.Result {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.handler
}

func (t *fakeTransport) push(res tl.Result, extra *string) {
	select {
	case t.in <- &transport.Message{Result: res, Extra: extra}:
	case <-t.done:
	}
}

func (t *fakeTransport) pushMessage(m *transport.Message) {
	select {
	case t.in <- m:
	case <-t.done:
	}
}

func (t *fakeTransport) lastExtra() string {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.reqs[len(t.reqs)-1].extra
}

func (t *fakeTransport) requests() []sentRequest {
	t.lock.Lock()
	defer t.lock.Unlock()
	return append([]sentRequest(nil), t.reqs...)
}

func (t *fakeTransport) Receive(timeout time.Duration) (*transport.Message, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case m := <-t.in:
		return m, true
	case <-timer.C:
		return nil, false
	case <-t.done:
		select {
		case m := <-t.in:
			return m, true
		default:
			return nil, false
		}
	}
}

func (t *fakeTransport) Done() <-chan struct{} {
	return t.done
}

func (t *fakeTransport) Execute(fn tl.Function) (tl.Result, error) {
	if t.closed.Load() {
		return nil, transport.ErrClosed
	}
	t.executed.Inc()
	return t.getHandler()(fn), nil
}

func (t *fakeTransport) Close() error {
	t.once.Do(func() {
		t.closed.Store(true)
		close(t.done)
	})
	return nil
}

// fakeDialer creates transports with the given handlers, the last one is
// reused when they're exhausted.
type fakeDialer struct {
	lock       sync.Mutex
	handlers   []func(fn tl.Function) tl.Result
	failFirst  int
	failures   int
	transports []*fakeTransport
}

func (d *fakeDialer) dial(context.Context) (transport.Transport, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.failures < d.failFirst {
		d.failures++
		return nil, errDial
	}
	var h func(fn tl.Function) tl.Result
	if len(d.handlers) > 0 {
		i := min(len(d.transports), len(d.handlers)-1)
		h = d.handlers[i]
	}
	t := newFakeTransport(h)
	d.transports = append(d.transports, t)
	return t, nil
}

func (d *fakeDialer) dialed() []*fakeTransport {
	d.lock.Lock()
	defer d.lock.Unlock()
	return append([]*fakeTransport(nil), d.transports...)
}

var errDial = errors.New("dial failed")

// countingCallback counts every event.
type countingCallback struct {
	invokes       atomic.Int32
	results       atomic.Int32
	errors        atomic.Int32
	cancelled     atomic.Int32
	notifications atomic.Int32
	parseErrors   atomic.Int32
	starts        atomic.Int32
	exits         atomic.Int32
}

func (c *countingCallback) OnInvoke(string, uint32, tl.Function) { c.invokes.Inc() }
func (c *countingCallback) OnInvokeResult(_ string, _ uint32, _ string, _ time.Duration, _ tl.Result, err error) {
	c.results.Inc()
	if err != nil {
		c.errors.Inc()
	}
}

func (c *countingCallback) OnCancelledInvoke(string, uint32, string, time.Duration) {
	c.cancelled.Inc()
}

func (c *countingCallback) OnNotification(string, tl.Notification)               { c.notifications.Inc() }
func (c *countingCallback) OnResultParseError(string, *string, tl.Result, error) { c.parseErrors.Inc() }
func (c *countingCallback) OnIdle(string)                                        {}
func (c *countingCallback) OnConnectionLoopStart(string)                         { c.starts.Inc() }
func (c *countingCallback) OnConnectionLoopExit(string)                          { c.exits.Inc() }
