package rpcclient

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nspcc-dev/tonlib-go/pkg/tl"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultRetryInterval   = 5 * time.Millisecond
	defaultRetryMaxRetries = 10
)

// RetryStrategy is a constant interval retry policy. Only node overload
// errors (CodeOverloaded) are retried.
type RetryStrategy struct {
	Interval time.Duration
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
}

// DefaultRetryStrategy returns 10 retries with 5ms interval.
func DefaultRetryStrategy() RetryStrategy {
	return RetryStrategy{Interval: defaultRetryInterval, MaxRetries: defaultRetryMaxRetries}
}

// Options defines Client options.
type Options struct {
	// PoolSize is the number of connections, 1 by default.
	PoolSize int
	// Params are used for every connection, KeystoreDir (if set) is
	// extended with connection index.
	Params ConnectionParams
	Retry  RetryStrategy
	// Check is performed for every new connection.
	Check ConnectionCheck
	// Lazy defers connection establishment until the first request routed
	// to it.
	Lazy       bool
	Connection ConnectionOptions
}

// Client is a pool of connections. Every request goes to a random connection
// and is retried there if the node is overloaded. Client is thread-safe and
// can be used from multiple goroutines.
type Client struct {
	API

	opts   Options
	log    *zap.Logger
	slots  []*poolSlot
	closed atomic.Bool
}

// poolSlot is a lazily (re)established connection.
type poolSlot struct {
	index  int
	params ConnectionParams

	lock sync.Mutex
	conn *Connection
	// dialing is closed when the connection attempt in progress is over.
	dialing chan struct{}
}

// New creates a new Client. Unless opts.Lazy is set all connections are
// established before return.
func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.PoolSize <= 0 {
		opts.PoolSize = 1
	}
	if opts.Connection.Dialer == nil {
		return nil, fmt.Errorf("%w: no dialer", ErrIllegalArgument)
	}
	if opts.Connection.Log == nil {
		opts.Connection.Log = zap.NewNop()
	}
	if opts.Retry.MaxRetries < 0 {
		return nil, fmt.Errorf("%w: negative retry count", ErrIllegalArgument)
	}
	c := &Client{
		opts:  opts,
		log:   opts.Connection.Log,
		slots: make([]*poolSlot, opts.PoolSize),
	}
	c.API = NewAPI(c)
	for i := range c.slots {
		p := opts.Params
		if p.KeystoreDir != "" {
			p.KeystoreDir = filepath.Join(p.KeystoreDir, strconv.Itoa(i))
			if err := os.MkdirAll(p.KeystoreDir, 0o700); err != nil {
				return nil, fmt.Errorf("can't create keystore: %w", err)
			}
		}
		c.slots[i] = &poolSlot{index: i, params: p}
	}
	if opts.Lazy {
		return c, nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range c.slots {
		g.Go(func() error {
			_, err := s.get(gctx, c)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// get returns the slot connection establishing it if needed. Only one
// caller dials at a time, others wait for it or for their ctx.
func (s *poolSlot) get(ctx context.Context, c *Client) (*Connection, error) {
	for {
		s.lock.Lock()
		if c.closed.Load() {
			s.lock.Unlock()
			return nil, ErrConnectionClosed
		}
		if s.conn != nil {
			if !s.conn.dead() {
				conn := s.conn
				s.lock.Unlock()
				return conn, nil
			}
			c.log.Info("dropping dead connection", zap.Int("index", s.index), zap.String("tag", s.conn.Tag()))
			_ = s.conn.Close()
			s.conn = nil
		}
		if wait := s.dialing; wait != nil {
			s.lock.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		wait := make(chan struct{})
		s.dialing = wait
		s.lock.Unlock()

		conn, err := NewConnection(ctx, c.opts.Check, s.params, c.opts.Connection)

		s.lock.Lock()
		s.dialing = nil
		close(wait)
		if err == nil && c.closed.Load() {
			s.lock.Unlock()
			_ = conn.Close()
			return nil, ErrConnectionClosed
		}
		if err == nil {
			s.conn = conn
		}
		s.lock.Unlock()
		if err != nil {
			return nil, fmt.Errorf("connection %d: %w", s.index, err)
		}
		c.log.Debug("connection established", zap.Int("index", s.index), zap.String("tag", conn.Tag()))
		return conn, nil
	}
}

// reset drops broken conn, the next request reconnects.
func (s *poolSlot) reset(conn *Connection) {
	s.lock.Lock()
	if s.conn != conn {
		s.lock.Unlock()
		return
	}
	s.conn = nil
	s.lock.Unlock()
	_ = conn.Close()
}

func (s *poolSlot) close() {
	s.lock.Lock()
	conn := s.conn
	s.conn = nil
	s.lock.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (c *Client) randomSlot() *poolSlot {
	return c.slots[rand.IntN(len(c.slots))]
}

// GetConnection returns a random pool connection.
func (c *Client) GetConnection(ctx context.Context) (*Connection, error) {
	return c.randomSlot().get(ctx, c)
}

// Invoke implements the Invoker interface.
func (c *Client) Invoke(ctx context.Context, fn tl.Function) (tl.Result, error) {
	res, _, err := c.InvokeOnConnection(ctx, fn)
	return res, err
}

type invokeResult struct {
	res  tl.Result
	conn *Connection
}

// InvokeOnConnection sends fn to a random connection retrying it there
// according to the retry strategy. It returns the connection that served
// the request.
func (c *Client) InvokeOnConnection(ctx context.Context, fn tl.Function) (tl.Result, *Connection, error) {
	var (
		slot     = c.randomSlot()
		lastConn *Connection
		b        = backoff.WithContext(
			backoff.WithMaxRetries(backoff.NewConstantBackOff(c.opts.Retry.Interval), uint64(c.opts.Retry.MaxRetries)),
			ctx)
	)
	r, err := backoff.RetryWithData(func() (invokeResult, error) {
		conn, err := slot.get(ctx, c)
		if err != nil {
			return invokeResult{}, backoff.Permanent(err)
		}
		lastConn = conn
		res, err := conn.Invoke(ctx, fn)
		if err != nil {
			if !isRetryable(err) {
				return invokeResult{}, backoff.Permanent(err)
			}
			return invokeResult{}, err
		}
		return invokeResult{res: res, conn: conn}, nil
	}, b)
	if err != nil {
		var te *TransportError
		if lastConn != nil && errors.As(err, &te) {
			c.log.Info("dropping connection after transport failure",
				zap.String("tag", lastConn.Tag()), zap.Error(err))
			slot.reset(lastConn)
		}
		return nil, nil, err
	}
	return r.res, r.conn, nil
}

// SetLogVerbosityLevel sets node log verbosity level using a random
// connection.
func (c *Client) SetLogVerbosityLevel(ctx context.Context, level int32) error {
	conn, err := c.GetConnection(ctx)
	if err != nil {
		return err
	}
	_, err = conn.Execute(&tl.SetLogVerbosityLevel{NewVerbosityLevel: level})
	return err
}

// Close closes all connections. Client can't be used after that.
func (c *Client) Close() error {
	c.closed.Store(true)
	for _, s := range c.slots {
		s.close()
	}
	return nil
}
