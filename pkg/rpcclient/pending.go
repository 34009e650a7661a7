package rpcclient

import (
	"sync"
	"time"

	"github.com/nspcc-dev/tonlib-go/pkg/tl"
	"go.uber.org/atomic"
)

const pendingShards = 16

// Pending request states.
const (
	statePending uint32 = iota
	stateDelivered
	stateCancelled
)

type reply struct {
	res tl.Result
	err error
}

// pendingRequest is a request waiting for its reply. It's removed from the
// table exactly once, by the connection loop when the reply arrives, by the
// sender if sending has failed, or on connection shutdown.
type pendingRequest struct {
	method string
	start  time.Time
	state  atomic.Uint32
	ch     chan reply
}

func newPendingRequest(method string) *pendingRequest {
	return &pendingRequest{
		method: method,
		start:  time.Now(),
		ch:     make(chan reply, 1),
	}
}

// deliver passes the reply to the caller. It returns false if the caller has
// cancelled the request.
func (p *pendingRequest) deliver(r reply) bool {
	if !p.state.CompareAndSwap(statePending, stateDelivered) {
		return false
	}
	p.ch <- r
	return true
}

// drop completes the request without any reply.
func (p *pendingRequest) drop() {
	if p.state.CompareAndSwap(statePending, stateDelivered) {
		close(p.ch)
	}
}

// cancel marks the request as abandoned by the caller. It returns false if
// the reply has already been delivered.
func (p *pendingRequest) cancel() bool {
	return p.state.CompareAndSwap(statePending, stateCancelled)
}

type pendingShard struct {
	lock     sync.Mutex
	closed   bool
	requests map[uint32]*pendingRequest
}

// pendingTable is the request correlation table. Tags are spread over shards
// each guarded by its own lock.
type pendingTable struct {
	shards [pendingShards]pendingShard
}

func newPendingTable() *pendingTable {
	t := new(pendingTable)
	for i := range t.shards {
		t.shards[i].requests = make(map[uint32]*pendingRequest)
	}
	return t
}

func (t *pendingTable) shard(id uint32) *pendingShard {
	return &t.shards[id%pendingShards]
}

// add registers p under id. It fails if the id is in use or the table is
// closed, closed is true in the latter case.
func (t *pendingTable) add(id uint32, p *pendingRequest) (ok bool, closed bool) {
	s := t.shard(id)
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return false, true
	}
	if _, ok := s.requests[id]; ok {
		return false, false
	}
	s.requests[id] = p
	return true, false
}

func (t *pendingTable) remove(id uint32) *pendingRequest {
	s := t.shard(id)
	s.lock.Lock()
	defer s.lock.Unlock()
	p, ok := s.requests[id]
	if !ok {
		return nil
	}
	delete(s.requests, id)
	return p
}

func (t *pendingTable) len() int {
	var n int
	for i := range t.shards {
		s := &t.shards[i]
		s.lock.Lock()
		n += len(s.requests)
		s.lock.Unlock()
	}
	return n
}

// closeAll closes the table and returns all requests left in it.
func (t *pendingTable) closeAll() map[uint32]*pendingRequest {
	reqs := make(map[uint32]*pendingRequest)
	for i := range t.shards {
		s := &t.shards[i]
		s.lock.Lock()
		s.closed = true
		for id, p := range s.requests {
			reqs[id] = p
		}
		s.requests = make(map[uint32]*pendingRequest)
		s.lock.Unlock()
	}
	return reqs
}
