package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nspcc-dev/tonlib-go/pkg/tl"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// bridge is a fake node bridge answering every request with its own log
// verbosity level and pushing a notification before every reply.
func bridge(t *testing.T) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			_, extra, err := tl.UnmarshalResult(data)
			if err != nil {
				return
			}
			var res tl.Result = &tl.LogVerbosityLevel{VerbosityLevel: 3}
			if strings.Contains(string(data), `"@type":"sync"`) {
				res = &tl.Error{Code: 400, Message: "bad"}
			}
			note, _ := tl.MarshalResult(&tl.UpdateSyncState{SyncState: tl.SyncState{Done: true}}, nil)
			reply, _ := tl.MarshalResult(res, extra)
			if ws.WriteMessage(websocket.TextMessage, note) != nil ||
				ws.WriteMessage(websocket.TextMessage, reply) != nil {
				return
			}
		}
	}))
}

func TestWS(t *testing.T) {
	defer goleak.VerifyNone(t)

	srv := bridge(t)
	defer srv.Close()

	dial := NewWSDialer("ws"+strings.TrimPrefix(srv.URL, "http"), WSOptions{DialTimeout: time.Second})
	tr, err := dial(context.Background())
	require.NoError(t, err)

	t.Run("send and receive", func(t *testing.T) {
		require.NoError(t, tr.Send(&tl.GetLogVerbosityLevel{}, "1"))

		m, ok := tr.Receive(time.Second)
		require.True(t, ok)
		require.Nil(t, m.Extra)
		_, isNote := tl.NotificationFromResult(m.Result)
		require.True(t, isNote)

		m, ok = tr.Receive(time.Second)
		require.True(t, ok)
		require.NoError(t, m.Err)
		require.Equal(t, "1", *m.Extra)
		require.Equal(t, &tl.LogVerbosityLevel{VerbosityLevel: 3}, m.Result)
	})
	t.Run("receive timeout", func(t *testing.T) {
		_, ok := tr.Receive(10 * time.Millisecond)
		require.False(t, ok)
	})
	t.Run("execute", func(t *testing.T) {
		res, err := tr.Execute(&tl.SetLogVerbosityLevel{NewVerbosityLevel: 1})
		require.NoError(t, err)
		require.Equal(t, &tl.LogVerbosityLevel{VerbosityLevel: 3}, res)

		res, err = tr.Execute(&tl.Sync{})
		require.NoError(t, err)
		require.Equal(t, &tl.Error{Code: 400, Message: "bad"}, res)

		// Execute replies never reach Receive, notifications do.
		for range 2 {
			m, ok := tr.Receive(time.Second)
			require.True(t, ok)
			require.Nil(t, m.Extra)
		}
		_, ok := tr.Receive(10 * time.Millisecond)
		require.False(t, ok)
	})
	t.Run("reserved tag", func(t *testing.T) {
		require.Error(t, tr.Send(&tl.Sync{}, execPrefix+"1"))
	})

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	require.ErrorIs(t, tr.Send(&tl.Sync{}, "2"), ErrClosed)
	_, err = tr.Execute(&tl.Sync{})
	require.ErrorIs(t, err, ErrClosed)
}

func TestWSRemoteClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_, _, _ = ws.ReadMessage()
		_ = ws.Close()
	}))
	defer srv.Close()

	tr, err := DialWS(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"), WSOptions{DialTimeout: time.Second})
	require.NoError(t, err)
	defer tr.Close()

	require.NoError(t, tr.Send(&tl.Sync{}, "1"))
	select {
	case <-tr.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("transport is still alive")
	}
	// Dead transport doesn't wait for the timeout.
	start := time.Now()
	_, ok := tr.Receive(time.Minute)
	require.False(t, ok)
	require.Less(t, time.Since(start), time.Second)
}

func TestWSDialFail(t *testing.T) {
	_, err := DialWS(context.Background(), "ws://127.0.0.1:1/none", WSOptions{DialTimeout: 100 * time.Millisecond})
	require.Error(t, err)
}
