package rpcclient

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nspcc-dev/tonlib-go/pkg/tl"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type orderCallback struct {
	NoopCallback
	name  string
	order *[]string
}

func (o orderCallback) OnIdle(string) { *o.order = append(*o.order, o.name) }

func TestMultiCallback(t *testing.T) {
	var order []string
	m := NewMultiCallback(orderCallback{name: "a", order: &order}, nil, orderCallback{name: "b", order: &order})
	require.Len(t, m, 2)
	m.OnIdle("tag")
	m.OnIdle("tag")
	require.Equal(t, []string{"a", "b", "a", "b"}, order)

	cnt := new(countingCallback)
	m = NewMultiCallback(cnt, NoopCallback{})
	m.OnInvoke("tag", 1, &tl.Sync{})
	m.OnInvokeResult("tag", 1, "sync", time.Second, nil, errors.New("bad"))
	m.OnCancelledInvoke("tag", 2, "sync", time.Second)
	m.OnNotification("tag", &tl.UpdateSyncState{})
	m.OnResultParseError("tag", nil, nil, errors.New("bad"))
	m.OnConnectionLoopStart("tag")
	m.OnConnectionLoopExit("tag")
	require.EqualValues(t, 1, cnt.invokes.Load())
	require.EqualValues(t, 1, cnt.errors.Load())
	require.EqualValues(t, 1, cnt.cancelled.Load())
	require.EqualValues(t, 1, cnt.notifications.Load())
	require.EqualValues(t, 1, cnt.parseErrors.Load())
	require.EqualValues(t, 1, cnt.starts.Load())
	require.EqualValues(t, 1, cnt.exits.Load())
}

func TestLoggingCallback(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewLoggingCallback(zap.New(core))

	l.OnInvoke("ton-conn-1", 1, &tl.Sync{})
	l.OnInvokeResult("ton-conn-1", 1, "sync", time.Millisecond, &tl.BlockIDExt{}, nil)
	l.OnInvokeResult("ton-conn-1", 2, "sync", time.Millisecond, nil, &TonlibError{Method: "sync", Code: 500})
	l.OnCancelledInvoke("ton-conn-1", 3, "sync", time.Millisecond)
	extra := "42"
	l.OnResultParseError("ton-conn-1", &extra, &tl.Ok{}, nil)
	l.OnIdle("ton-conn-1")

	entries := logs.AllUntimed()
	require.Len(t, entries, 5)
	require.Equal(t, zapcore.DebugLevel, entries[0].Level)
	require.Equal(t, zapcore.DebugLevel, entries[1].Level)
	require.Equal(t, zapcore.WarnLevel, entries[2].Level)
	require.Equal(t, zapcore.WarnLevel, entries[3].Level)
	require.Equal(t, zapcore.ErrorLevel, entries[4].Level)
	require.Equal(t, "42", entries[4].ContextMap()["extra"])
	require.Equal(t, "ok", entries[4].ContextMap()["type"])
	for _, e := range entries {
		require.Equal(t, "ton-conn-1", e.ContextMap()["tag"])
	}

	require.NotPanics(t, func() { NewLoggingCallback(nil).OnConnectionLoopStart("x") })
}

func TestMetricsCallback(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	m, err := NewMetricsCallback(reg)
	require.NoError(t, err)

	m.OnInvoke("tag", 1, &tl.Sync{})
	m.OnInvoke("tag", 2, &tl.Sync{})
	m.OnInvoke("tag", 3, &tl.Sync{})
	m.OnInvokeResult("tag", 1, "sync", time.Millisecond, &tl.BlockIDExt{}, nil)
	m.OnInvokeResult("tag", 2, "sync", time.Millisecond, nil, errors.New("bad"))
	m.OnCancelledInvoke("tag", 3, "sync", time.Millisecond)
	m.OnNotification("tag", &tl.UpdateSyncState{})
	m.OnResultParseError("tag", nil, nil, errors.New("bad"))

	require.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("sync", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("sync", "error")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.inFlight))
	require.Equal(t, 1.0, testutil.ToFloat64(m.cancelled.WithLabelValues("sync")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues(tl.TypeUpdateSyncState)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.parseErrors))

	err = testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP tonlib_parse_errors_total Number of unexpected unsolicited messages
# TYPE tonlib_parse_errors_total counter
tonlib_parse_errors_total 1
`), "tonlib_parse_errors_total")
	require.NoError(t, err)

	_, err = NewMetricsCallback(reg)
	require.Error(t, err)
}
