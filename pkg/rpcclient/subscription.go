package rpcclient

import (
	"sync"

	"github.com/nspcc-dev/tonlib-go/pkg/tl"
)

// Subscription receives connection notifications. A subscriber that doesn't
// keep up loses the oldest notifications, it never blocks the connection.
type Subscription struct {
	ch chan tl.Notification
	b  *broadcaster
}

// C returns notification channel. It's closed after Unsubscribe or when the
// connection is closed.
func (s *Subscription) C() <-chan tl.Notification {
	return s.ch
}

// Unsubscribe stops notification delivery.
func (s *Subscription) Unsubscribe() {
	s.b.remove(s)
}

type broadcaster struct {
	lock   sync.Mutex
	size   int
	closed bool
	subs   map[*Subscription]struct{}
}

func newBroadcaster(size int) *broadcaster {
	if size <= 0 {
		size = 1
	}
	return &broadcaster{
		size: size,
		subs: make(map[*Subscription]struct{}),
	}
}

func (b *broadcaster) subscribe() *Subscription {
	s := &Subscription{ch: make(chan tl.Notification, b.size), b: b}
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.closed {
		close(s.ch)
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

func (b *broadcaster) remove(s *Subscription) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.ch)
	}
}

// send delivers n to every subscriber, it's only called from the connection
// loop.
func (b *broadcaster) send(n tl.Notification) {
	b.lock.Lock()
	defer b.lock.Unlock()
	for s := range b.subs {
		for {
			select {
			case s.ch <- n:
			default:
				// Full, drop the oldest one and retry.
				select {
				case <-s.ch:
				default:
				}
				continue
			}
			break
		}
	}
}

func (b *broadcaster) closeAll() {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.closed = true
	for s := range b.subs {
		close(s.ch)
	}
	b.subs = nil
}
