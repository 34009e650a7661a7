package rpcclient

import (
	"time"

	"github.com/nspcc-dev/tonlib-go/pkg/tl"
	"go.uber.org/zap"
)

// Callback observes connection lifecycle events. All methods are called from
// the connection goroutines, so they must be fast and must not call back into
// the connection. Embed NoopCallback to implement only some of them.
type Callback interface {
	// OnInvoke is called before the request is sent.
	OnInvoke(tag string, reqID uint32, fn tl.Function)
	// OnInvokeResult is called for every completed request, including the
	// ones failed to be sent. Exactly one of res and err is not nil.
	OnInvokeResult(tag string, reqID uint32, method string, elapsed time.Duration, res tl.Result, err error)
	// OnCancelledInvoke is called when the reply arrives for a request whose
	// caller has already gone.
	OnCancelledInvoke(tag string, reqID uint32, method string, elapsed time.Duration)
	// OnNotification is called for every notification before it's broadcast.
	OnNotification(tag string, n tl.Notification)
	// OnResultParseError is called for unsolicited messages that are not
	// notifications. res is nil if the message couldn't be decoded at all.
	OnResultParseError(tag string, extra *string, res tl.Result, err error)
	// OnIdle is called when there were no messages during the poll interval.
	OnIdle(tag string)
	OnConnectionLoopStart(tag string)
	OnConnectionLoopExit(tag string)
}

// NoopCallback does nothing.
type NoopCallback struct{}

var _ Callback = NoopCallback{}

func (NoopCallback) OnInvoke(string, uint32, tl.Function)                                   {}
func (NoopCallback) OnInvokeResult(string, uint32, string, time.Duration, tl.Result, error) {}
func (NoopCallback) OnCancelledInvoke(string, uint32, string, time.Duration)                {}
func (NoopCallback) OnNotification(string, tl.Notification)                                 {}
func (NoopCallback) OnResultParseError(string, *string, tl.Result, error)                   {}
func (NoopCallback) OnIdle(string)                                                          {}
func (NoopCallback) OnConnectionLoopStart(string)                                           {}
func (NoopCallback) OnConnectionLoopExit(string)                                            {}

// LoggingCallback logs every event. Successful requests are logged at debug
// level, failed and cancelled ones are warnings.
type LoggingCallback struct {
	NoopCallback
	log *zap.Logger
}

// NewLoggingCallback creates a LoggingCallback writing to the given logger.
func NewLoggingCallback(log *zap.Logger) *LoggingCallback {
	if log == nil {
		log = zap.NewNop()
	}
	return &LoggingCallback{log: log}
}

// OnInvoke implements the Callback interface.
func (l *LoggingCallback) OnInvoke(tag string, reqID uint32, fn tl.Function) {
	l.log.Debug("sending request",
		zap.String("tag", tag),
		zap.Uint32("id", reqID),
		zap.String("method", fn.Method()))
}

// OnInvokeResult implements the Callback interface.
func (l *LoggingCallback) OnInvokeResult(tag string, reqID uint32, method string, elapsed time.Duration, res tl.Result, err error) {
	if err != nil {
		l.log.Warn("request failed",
			zap.String("tag", tag),
			zap.Uint32("id", reqID),
			zap.String("method", method),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return
	}
	l.log.Debug("request completed",
		zap.String("tag", tag),
		zap.Uint32("id", reqID),
		zap.String("method", method),
		zap.Duration("elapsed", elapsed),
		zap.String("result", res.Type()))
}

// OnCancelledInvoke implements the Callback interface.
func (l *LoggingCallback) OnCancelledInvoke(tag string, reqID uint32, method string, elapsed time.Duration) {
	l.log.Warn("reply to cancelled request",
		zap.String("tag", tag),
		zap.Uint32("id", reqID),
		zap.String("method", method),
		zap.Duration("elapsed", elapsed))
}

// OnNotification implements the Callback interface.
func (l *LoggingCallback) OnNotification(tag string, n tl.Notification) {
	l.log.Debug("notification", zap.String("tag", tag), zap.String("type", n.Type()))
}

// OnResultParseError implements the Callback interface.
func (l *LoggingCallback) OnResultParseError(tag string, extra *string, res tl.Result, err error) {
	var fields = []zap.Field{zap.String("tag", tag)}
	if extra != nil {
		fields = append(fields, zap.String("extra", *extra))
	}
	if res != nil {
		fields = append(fields, zap.String("type", res.Type()))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	l.log.Error("unexpected message", fields...)
}

// OnConnectionLoopStart implements the Callback interface.
func (l *LoggingCallback) OnConnectionLoopStart(tag string) {
	l.log.Info("connection loop started", zap.String("tag", tag))
}

// OnConnectionLoopExit implements the Callback interface.
func (l *LoggingCallback) OnConnectionLoopExit(tag string) {
	l.log.Info("connection loop exited", zap.String("tag", tag))
}

// MultiCallback calls all of its callbacks in order.
type MultiCallback []Callback

var _ Callback = MultiCallback(nil)

// NewMultiCallback combines callbacks, nil ones are skipped.
func NewMultiCallback(cbs ...Callback) MultiCallback {
	m := make(MultiCallback, 0, len(cbs))
	for _, cb := range cbs {
		if cb != nil {
			m = append(m, cb)
		}
	}
	return m
}

// OnInvoke implements the Callback interface.
func (m MultiCallback) OnInvoke(tag string, reqID uint32, fn tl.Function) {
	for _, cb := range m {
		cb.OnInvoke(tag, reqID, fn)
	}
}

// OnInvokeResult implements the Callback interface.
func (m MultiCallback) OnInvokeResult(tag string, reqID uint32, method string, elapsed time.Duration, res tl.Result, err error) {
	for _, cb := range m {
		cb.OnInvokeResult(tag, reqID, method, elapsed, res, err)
	}
}

// OnCancelledInvoke implements the Callback interface.
func (m MultiCallback) OnCancelledInvoke(tag string, reqID uint32, method string, elapsed time.Duration) {
	for _, cb := range m {
		cb.OnCancelledInvoke(tag, reqID, method, elapsed)
	}
}

// OnNotification implements the Callback interface.
func (m MultiCallback) OnNotification(tag string, n tl.Notification) {
	for _, cb := range m {
		cb.OnNotification(tag, n)
	}
}

// OnResultParseError implements the Callback interface.
func (m MultiCallback) OnResultParseError(tag string, extra *string, res tl.Result, err error) {
	for _, cb := range m {
		cb.OnResultParseError(tag, extra, res, err)
	}
}

// OnIdle implements the Callback interface.
func (m MultiCallback) OnIdle(tag string) {
	for _, cb := range m {
		cb.OnIdle(tag)
	}
}

// OnConnectionLoopStart implements the Callback interface.
func (m MultiCallback) OnConnectionLoopStart(tag string) {
	for _, cb := range m {
		cb.OnConnectionLoopStart(tag)
	}
}

// OnConnectionLoopExit implements the Callback interface.
func (m MultiCallback) OnConnectionLoopExit(tag string) {
	for _, cb := range m {
		cb.OnConnectionLoopExit(tag)
	}
}
