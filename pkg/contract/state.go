package contract

import (
	"context"
	"strconv"
	"time"

	"github.com/nspcc-dev/tonlib-go/pkg/rpcclient"
	"github.com/nspcc-dev/tonlib-go/pkg/tl"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// forgetTimeout limits smc.forget requests sent on release.
const forgetTimeout = 10 * time.Second

// SmcState is a contract state loaded into the memory of some node. Its
// requests are always sent via the connection that loaded it. SmcState is
// reference counted, the node copy is freed when the last reference is
// released.
type SmcState struct {
	api  rpcclient.API
	addr tl.Address
	txID tl.InternalTransactionID
	id   int64
	log  *zap.Logger
	refs atomic.Int32
}

// loadSmcState loads the latest contract state or the state as of txID if
// it's not nil.
func loadSmcState(ctx context.Context, client rpcclient.ConnInvoker, addr tl.Address, txID *tl.InternalTransactionID, log *zap.Logger) (*SmcState, error) {
	var fn tl.Function = &tl.SmcLoad{AccountAddress: tl.NewAccountAddress(addr)}
	if txID != nil {
		fn = &tl.SmcLoadByTransaction{AccountAddress: tl.NewAccountAddress(addr), TransactionID: *txID}
	}
	res, conn, err := client.InvokeOnConnection(ctx, fn)
	if err != nil {
		return nil, err
	}
	info, ok := res.(*tl.SmcInfo)
	if !ok {
		return nil, &rpcclient.UnexpectedResultError{Actual: res.Type(), Expected: tl.TypeSmcInfo}
	}
	s := &SmcState{
		api:  rpcclient.NewAPI(client),
		addr: addr,
		id:   info.ID,
		log:  log,
	}
	if conn != nil {
		s.api = conn.API
	}
	if txID != nil {
		s.txID = *txID
	}
	s.refs.Store(1)
	return s, nil
}

// ID returns the node-side contract ID.
func (s *SmcState) ID() int64 {
	return s.id
}

// Address returns the contract address.
func (s *SmcState) Address() tl.Address {
	return s.addr
}

// TransactionID returns the transaction the state was loaded as of. It's
// zero for the latest state.
func (s *SmcState) TransactionID() tl.InternalTransactionID {
	return s.txID
}

// Acquire adds a reference, every Acquire must be paired with Release.
func (s *SmcState) Acquire() *SmcState {
	s.refs.Inc()
	return s
}

// tryAcquire adds a reference unless the state is already released.
func (s *SmcState) tryAcquire() bool {
	for {
		n := s.refs.Load()
		if n <= 0 {
			return false
		}
		if s.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Release drops a reference. The last one sends smc.forget, its error is only
// logged.
func (s *SmcState) Release() {
	if s.refs.Dec() != 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), forgetTimeout)
	defer cancel()
	if err := s.api.SmcForget(ctx, s.id); err != nil {
		s.log.Debug("failed to forget contract state",
			zap.Stringer("address", s.addr),
			zap.Int64("id", s.id),
			zap.Error(err))
	}
}

// RunGetMethod executes get-method by name. Exit codes 0 and 1 mean success,
// any other one is returned as *TVMError.
func (s *SmcState) RunGetMethod(ctx context.Context, method string, stack []tl.StackEntry) (*tl.SmcRunResult, error) {
	return s.run(ctx, tl.SmcMethodID{Name: method}, method, stack)
}

// RunGetMethodByID executes get-method by its numeric ID.
func (s *SmcState) RunGetMethodByID(ctx context.Context, id int32, stack []tl.StackEntry) (*tl.SmcRunResult, error) {
	return s.run(ctx, tl.SmcMethodID{Number: id}, "#"+strconv.Itoa(int(id)), stack)
}

func (s *SmcState) run(ctx context.Context, m tl.SmcMethodID, name string, stack []tl.StackEntry) (*tl.SmcRunResult, error) {
	if stack == nil {
		stack = []tl.StackEntry{}
	}
	res, err := s.api.SmcRunGetMethod(ctx, s.id, m, stack)
	if err != nil {
		return nil, &MethodError{Method: "smc.runGetMethod", Address: s.addr, Err: err}
	}
	if res.ExitCode != 0 && res.ExitCode != 1 {
		return nil, &TVMError{
			Method:   name,
			ExitCode: res.ExitCode,
			GasUsed:  res.GasUsed,
			Stack:    res.Stack,
		}
	}
	return res, nil
}

// GetCode returns contract code cell.
func (s *SmcState) GetCode(ctx context.Context) ([]byte, error) {
	c, err := s.api.SmcGetCode(ctx, s.id)
	if err != nil {
		return nil, &MethodError{Method: "smc.getCode", Address: s.addr, Err: err}
	}
	return c.Bytes, nil
}

// GetData returns contract data cell.
func (s *SmcState) GetData(ctx context.Context) ([]byte, error) {
	c, err := s.api.SmcGetData(ctx, s.id)
	if err != nil {
		return nil, &MethodError{Method: "smc.getData", Address: s.addr, Err: err}
	}
	return c.Bytes, nil
}

// GetState returns contract state cell.
func (s *SmcState) GetState(ctx context.Context) ([]byte, error) {
	c, err := s.api.SmcGetState(ctx, s.id)
	if err != nil {
		return nil, &MethodError{Method: "smc.getState", Address: s.addr, Err: err}
	}
	return c.Bytes, nil
}
