package fakenode

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/nspcc-dev/tonlib-go/pkg/tl"
)

// NewWSServer starts a websocket node bridge answering with h, requests are
// handled concurrently. Use WSEndpoint to get its address.
func NewWSServer(h Handler) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		var (
			writeLock sync.Mutex
			wg        sync.WaitGroup
		)
		defer wg.Wait()
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				fn, extra, err := tl.UnmarshalFunction(data)
				var res tl.Result
				if err != nil {
					res = &tl.Error{Code: CodeBadRequest, Message: err.Error()}
				} else {
					res = h(fn)
				}
				if res == nil {
					return
				}
				var tag *string
				if extra != "" {
					tag = &extra
				}
				reply, err := tl.MarshalResult(res, tag)
				if err != nil {
					return
				}
				writeLock.Lock()
				_ = ws.WriteMessage(websocket.TextMessage, reply)
				writeLock.Unlock()
			}()
		}
	}))
}

// WSEndpoint returns the websocket address of a NewWSServer server.
func WSEndpoint(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}
