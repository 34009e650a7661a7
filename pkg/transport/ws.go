package transport

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nspcc-dev/tonlib-go/pkg/tl"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const (
	// Message limit for receiving side.
	wsReadLimit = 64 * 1024 * 1024

	// Disconnection timeout.
	wsPongLimit = 60 * time.Second

	// Ping period for connection liveness check.
	wsPingPeriod = wsPongLimit / 2

	// Write deadline.
	wsWriteLimit = wsPingPeriod / 2

	// Correlation tags of Execute calls, they never reach Receive.
	execPrefix = "exec-"

	defaultQueueLength    = 1024
	defaultExecuteTimeout = 10 * time.Second
)

// WSOptions are websocket transport options.
type WSOptions struct {
	// DialTimeout is the websocket handshake timeout.
	DialTimeout time.Duration
	// ExecuteTimeout limits Execute round trips, 10s by default.
	ExecuteTimeout time.Duration
	// QueueLength is the size of the incoming message buffer. The reader
	// blocks when it's full, so it's the amount of messages the node can
	// push ahead of the connection loop.
	QueueLength int
	Log         *zap.Logger
}

// WS is a websocket transport to a node JSON bridge. Every text frame is a
// single tonlib JSON object in both directions.
type WS struct {
	ws   *websocket.Conn
	opts WSOptions
	log  *zap.Logger

	writeLock sync.Mutex
	incoming  chan *Message
	shutdown  chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	execID    atomic.Uint64
	execLock  sync.Mutex
	execWaits map[string]chan *Message
}

// NewWSDialer returns a Dialer connecting to the given websocket endpoint
// (like `ws://127.0.0.1:8081/tonlib`).
func NewWSDialer(endpoint string, opts WSOptions) Dialer {
	return func(ctx context.Context) (Transport, error) {
		return DialWS(ctx, endpoint, opts)
	}
}

// DialWS establishes a new websocket transport.
func DialWS(ctx context.Context, endpoint string, opts WSOptions) (*WS, error) {
	if opts.ExecuteTimeout <= 0 {
		opts.ExecuteTimeout = defaultExecuteTimeout
	}
	if opts.QueueLength <= 0 {
		opts.QueueLength = defaultQueueLength
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	dialer := websocket.Dialer{HandshakeTimeout: opts.DialTimeout}
	ws, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", endpoint, err)
	}
	t := &WS{
		ws:        ws,
		opts:      opts,
		log:       opts.Log.With(zap.String("endpoint", endpoint)),
		incoming:  make(chan *Message, opts.QueueLength),
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		execWaits: make(map[string]chan *Message),
	}
	go t.wsReader()
	go t.wsPinger()
	return t, nil
}

// Send implements the Transport interface.
func (t *WS) Send(fn tl.Function, extra string) error {
	if strings.HasPrefix(extra, execPrefix) {
		return fmt.Errorf("tag %q is reserved", extra)
	}
	return t.write(fn, extra)
}

func (t *WS) write(fn tl.Function, extra string) error {
	data, err := tl.MarshalFunction(fn, extra)
	if err != nil {
		return fmt.Errorf("can't serialize %s: %w", fn.Method(), err)
	}
	select {
	case <-t.done:
		return ErrClosed
	default:
	}
	t.writeLock.Lock()
	defer t.writeLock.Unlock()
	_ = t.ws.SetWriteDeadline(time.Now().Add(wsWriteLimit))
	if err := t.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send %s: %w", fn.Method(), err)
	}
	return nil
}

// Receive implements the Transport interface.
func (t *WS) Receive(timeout time.Duration) (*Message, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case m := <-t.incoming:
		return m, true
	case <-timer.C:
		return nil, false
	case <-t.done:
		// Drain whatever was read before the connection died.
		select {
		case m := <-t.incoming:
			return m, true
		default:
			return nil, false
		}
	}
}

// Done implements the Transport interface.
func (t *WS) Done() <-chan struct{} {
	return t.done
}

// Execute implements the Transport interface.
func (t *WS) Execute(fn tl.Function) (tl.Result, error) {
	var (
		tag = execPrefix + strconv.FormatUint(t.execID.Inc(), 10)
		ch  = make(chan *Message, 1)
	)
	t.execLock.Lock()
	t.execWaits[tag] = ch
	t.execLock.Unlock()
	defer func() {
		t.execLock.Lock()
		delete(t.execWaits, tag)
		t.execLock.Unlock()
	}()

	if err := t.write(fn, tag); err != nil {
		return nil, err
	}
	timer := time.NewTimer(t.opts.ExecuteTimeout)
	defer timer.Stop()
	select {
	case m := <-ch:
		if m.Err != nil {
			return nil, m.Err
		}
		return m.Result, nil
	case <-timer.C:
		return nil, fmt.Errorf("%s: execute timeout", fn.Method())
	case <-t.done:
		return nil, ErrClosed
	}
}

// Close implements the Transport interface.
func (t *WS) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.shutdown)
		t.writeLock.Lock()
		_ = t.ws.SetWriteDeadline(time.Now().Add(wsWriteLimit))
		_ = t.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		t.writeLock.Unlock()
		err = t.ws.Close()
		<-t.done
	})
	return err
}

func (t *WS) wsReader() {
	defer close(t.done)
	t.ws.SetReadLimit(wsReadLimit)
	t.ws.SetPongHandler(func(string) error { return t.ws.SetReadDeadline(time.Now().Add(wsPongLimit)) })
	for {
		_ = t.ws.SetReadDeadline(time.Now().Add(wsPongLimit))
		_, data, err := t.ws.ReadMessage()
		if err != nil {
			select {
			case <-t.shutdown:
			default:
				if !errors.Is(err, websocket.ErrCloseSent) {
					t.log.Warn("websocket read failed", zap.Error(err))
				}
			}
			return
		}
		res, extra, err := tl.UnmarshalResult(data)
		m := &Message{Result: res, Err: err, Extra: extra}
		if extra != nil && strings.HasPrefix(*extra, execPrefix) {
			t.execLock.Lock()
			ch, ok := t.execWaits[*extra]
			t.execLock.Unlock()
			if ok {
				select {
				case ch <- m:
				default:
				}
				continue
			}
		}
		select {
		case t.incoming <- m:
		case <-t.shutdown:
			return
		}
	}
}

func (t *WS) wsPinger() {
	pingTicker := time.NewTicker(wsPingPeriod)
	defer pingTicker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-pingTicker.C:
			t.writeLock.Lock()
			_ = t.ws.SetWriteDeadline(time.Now().Add(wsWriteLimit))
			err := t.ws.WriteMessage(websocket.PingMessage, []byte{})
			t.writeLock.Unlock()
			if err != nil {
				return
			}
		}
	}
}
