package rpcclient

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/nspcc-dev/tonlib-go/pkg/tl"
	"github.com/nspcc-dev/tonlib-go/pkg/transport"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultNotificationQueueLength is the default subscription buffer size.
	DefaultNotificationQueueLength = 10000
	// DefaultConcurrencyLimit is the default number of requests a single
	// connection can have in flight.
	DefaultConcurrencyLimit = 100

	defaultPollTimeout = time.Second
)

// connCounter numbers connections of the process for tags.
var connCounter atomic.Uint32

var errEmptyMessage = errors.New("message with neither result nor error")

// ConnectionParams are node connection parameters.
type ConnectionParams struct {
	// Config is the node network config (JSON).
	Config                 string
	BlockchainName         string
	UseCallbacksForNetwork bool
	IgnoreCache            bool
	// KeystoreDir is the node keystore directory, in-memory keystore is
	// used if it's empty.
	KeystoreDir string
	// NotificationQueueLength is the subscription buffer size.
	NotificationQueueLength int
	// ConcurrencyLimit limits the number of requests in flight, 0 means
	// no limit.
	ConcurrencyLimit int
}

// DefaultConnectionParams returns parameters with default queue and
// concurrency limits and no node config.
func DefaultConnectionParams() ConnectionParams {
	return ConnectionParams{
		NotificationQueueLength: DefaultNotificationQueueLength,
		ConcurrencyLimit:        DefaultConcurrencyLimit,
	}
}

// ConnectionOptions are connection dependencies.
type ConnectionOptions struct {
	// Dialer creates transports, it's mandatory.
	Dialer transport.Dialer
	// Callback is NoopCallback if not set.
	Callback Callback
	Log      *zap.Logger
	// ExternalDataProvider, if set, is asked first for every request.
	ExternalDataProvider ExternalDataProvider
	// MaxConnectAttempts limits the number of nodes tried to find one
	// passing the ConnectionCheck, 0 means no limit (until the context is
	// done).
	MaxConnectAttempts int
	// PollTimeout is the transport Receive timeout, 1s by default.
	PollTimeout time.Duration
}

// ExternalDataProvider can serve requests instead of the node. Handle returns
// false if it doesn't know anything about fn.
type ExternalDataProvider interface {
	Handle(ctx context.Context, fn tl.Function) (tl.Result, bool, error)
}

// Connection multiplexes concurrent requests over a single node transport.
// Replies are matched to requests by tags, unsolicited messages are
// broadcast to subscribers. It's safe for concurrent use.
type Connection struct {
	API

	tag         string
	tr          transport.Transport
	cb          Callback
	log         *zap.Logger
	edp         ExternalDataProvider
	sem         *semaphore.Weighted
	pollTimeout time.Duration

	reqID   atomic.Uint32
	pending *pendingTable
	notify  *broadcaster

	shutdown  chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewConnection dials and initializes a new connection. If check is not
// CheckNone, nodes failing it are dropped and new ones are dialed until
// one passes, ctx is done or MaxConnectAttempts are made.
func NewConnection(ctx context.Context, check ConnectionCheck, params ConnectionParams, opts ConnectionOptions) (*Connection, error) {
	if opts.Dialer == nil {
		return nil, fmt.Errorf("%w: no dialer", ErrIllegalArgument)
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	for attempt := 1; ; attempt++ {
		c, err := connect(ctx, params, opts)
		if err != nil {
			return nil, err
		}
		err = c.Check(ctx, check)
		if err == nil {
			return c, nil
		}
		c.log.Info("dropping connection", zap.Stringer("check", check), zap.Error(err))
		_ = c.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if opts.MaxConnectAttempts > 0 && attempt >= opts.MaxConnectAttempts {
			return nil, fmt.Errorf("no node passed %s check in %d attempts: %w", check, attempt, err)
		}
	}
}

func connect(ctx context.Context, params ConnectionParams, opts ConnectionOptions) (*Connection, error) {
	tr, err := opts.Dialer(ctx)
	if err != nil {
		return nil, err
	}
	c := newConnection(tr, params, opts)
	_, err = c.Init(ctx, tl.Options{
		Config: tl.Config{
			Config:                 params.Config,
			BlockchainName:         params.BlockchainName,
			UseCallbacksForNetwork: params.UseCallbacksForNetwork,
			IgnoreCache:            params.IgnoreCache,
		},
		KeystoreType: tl.KeystoreType{Directory: params.KeystoreDir},
	})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("%s init failed: %w", c.tag, err)
	}
	return c, nil
}

// newConnection creates a connection over tr and starts its loop, it's not
// initialized.
func newConnection(tr transport.Transport, params ConnectionParams, opts ConnectionOptions) *Connection {
	tag := "ton-conn-" + strconv.FormatUint(uint64(connCounter.Inc()-1), 10)
	if opts.Callback == nil {
		opts.Callback = NoopCallback{}
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = defaultPollTimeout
	}
	c := &Connection{
		tag:         tag,
		tr:          tr,
		cb:          opts.Callback,
		log:         opts.Log.With(zap.String("tag", tag)),
		edp:         opts.ExternalDataProvider,
		pollTimeout: opts.PollTimeout,
		pending:     newPendingTable(),
		notify:      newBroadcaster(params.NotificationQueueLength),
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}),
	}
	if params.ConcurrencyLimit > 0 {
		c.sem = semaphore.NewWeighted(int64(params.ConcurrencyLimit))
	}
	c.API = NewAPI(c)
	go c.loop()
	return c
}

// Tag returns connection tag used in logs and callbacks.
func (c *Connection) Tag() string {
	return c.tag
}

// Invoke sends fn to the node and waits for the reply. If ctx is done
// before, the request is abandoned and ctx error is returned.
func (c *Connection) Invoke(ctx context.Context, fn tl.Function) (tl.Result, error) {
	if c.edp != nil {
		res, ok, err := c.edp.Handle(ctx, fn)
		if ok {
			return res, err
		}
	}
	if c.sem != nil {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer c.sem.Release(1)
	}
	var (
		method = fn.Method()
		p      = newPendingRequest(method)
		id     uint32
	)
	for {
		id = c.reqID.Inc()
		ok, closed := c.pending.add(id, p)
		if closed {
			return nil, ErrConnectionClosed
		}
		if ok {
			break
		}
	}
	c.cb.OnInvoke(c.tag, id, fn)
	if err := c.tr.Send(fn, strconv.FormatUint(uint64(id), 10)); err != nil {
		// Removal fails only if the connection was closed concurrently
		// and the request was dropped already.
		if c.pending.remove(id) != nil {
			err = &TransportError{Method: method, Err: err}
			c.cb.OnInvokeResult(c.tag, id, method, time.Since(p.start), nil, err)
			p.deliver(reply{err: err})
		}
	}
	select {
	case r, ok := <-p.ch:
		return c.unpack(r, ok)
	case <-ctx.Done():
		if p.cancel() {
			return nil, ctx.Err()
		}
		r, ok := <-p.ch
		return c.unpack(r, ok)
	}
}

func (c *Connection) unpack(r reply, ok bool) (tl.Result, error) {
	if !ok {
		select {
		case <-c.shutdown:
			return nil, ErrConnectionClosed
		default:
			return nil, ErrReplyChannelClosed
		}
	}
	return r.res, r.err
}

// InvokeOnConnection is the same as Invoke, it also returns c for
// compatibility with the Client interface.
func (c *Connection) InvokeOnConnection(ctx context.Context, fn tl.Function) (tl.Result, *Connection, error) {
	res, err := c.Invoke(ctx, fn)
	if err != nil {
		return nil, nil, err
	}
	return res, c, nil
}

// Execute performs synchronous fn call bypassing the request queue, it's
// only suitable for static requests like log verbosity management.
func (c *Connection) Execute(fn tl.Function) (tl.Result, error) {
	res, err := c.tr.Execute(fn)
	if err != nil {
		return nil, &TransportError{Method: fn.Method(), Err: err}
	}
	if e, ok := res.(*tl.Error); ok {
		return nil, &TonlibError{Method: fn.Method(), Code: e.Code, Message: e.Message}
	}
	return res, nil
}

// Subscribe returns a new notification subscription.
func (c *Connection) Subscribe() *Subscription {
	return c.notify.subscribe()
}

// Close stops the connection loop, fails all pending requests and closes
// the transport. It's safe to call it more than once.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		close(c.shutdown)
		<-c.done
	})
	return c.closeErr
}

func (c *Connection) loop() {
	// Receive blocks, it gets a thread of its own.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(c.done)

	c.cb.OnConnectionLoopStart(c.tag)
	for {
		select {
		case <-c.shutdown:
			c.cb.OnConnectionLoopExit(c.tag)
			for _, p := range c.pending.closeAll() {
				p.drop()
			}
			c.notify.closeAll()
			c.closeErr = c.tr.Close()
			return
		default:
		}
		m, ok := c.tr.Receive(c.pollTimeout)
		if ok {
			c.handleMessage(m)
			continue
		}
		select {
		case <-c.tr.Done():
			c.fail()
			return
		default:
		}
		c.cb.OnIdle(c.tag)
	}
}

// fail handles transport death: every pending request gets a TransportError
// and no new ones are accepted.
func (c *Connection) fail() {
	c.log.Warn("transport is dead, closing connection")
	c.cb.OnConnectionLoopExit(c.tag)
	for id, p := range c.pending.closeAll() {
		err := &TransportError{Method: p.method, Err: transport.ErrClosed}
		c.cb.OnInvokeResult(c.tag, id, p.method, time.Since(p.start), nil, err)
		if !p.deliver(reply{err: err}) {
			c.cb.OnCancelledInvoke(c.tag, id, p.method, time.Since(p.start))
		}
	}
	c.notify.closeAll()
	c.closeErr = c.tr.Close()
}

// dead tells whether the connection loop has exited.
func (c *Connection) dead() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Connection) handleMessage(m *transport.Message) {
	var (
		id uint32
		p  *pendingRequest
	)
	if m.Extra != nil {
		n, err := strconv.ParseUint(*m.Extra, 10, 32)
		if err == nil {
			id = uint32(n)
			p = c.pending.remove(id)
		}
	}
	if p != nil {
		elapsed := time.Since(p.start)
		res, err := resultOf(p.method, m)
		c.cb.OnInvokeResult(c.tag, id, p.method, elapsed, res, err)
		if !p.deliver(reply{res: res, err: err}) {
			c.cb.OnCancelledInvoke(c.tag, id, p.method, elapsed)
		}
		return
	}

	res, err := resultOf(UnknownMethod, m)
	if err != nil {
		c.cb.OnResultParseError(c.tag, m.Extra, m.Result, err)
		return
	}
	n, ok := tl.NotificationFromResult(res)
	if !ok {
		c.cb.OnResultParseError(c.tag, m.Extra, res, nil)
		return
	}
	c.cb.OnNotification(c.tag, n)
	c.notify.send(n)
}

func resultOf(method string, m *transport.Message) (tl.Result, error) {
	switch {
	case m.Err != nil:
		return nil, &TransportError{Method: method, Err: m.Err}
	case m.Result == nil:
		return nil, &TransportError{Method: method, Err: errEmptyMessage}
	}
	if e, ok := m.Result.(*tl.Error); ok {
		return nil, &TonlibError{Method: method, Code: e.Code, Message: e.Message}
	}
	return m.Result, nil
}
