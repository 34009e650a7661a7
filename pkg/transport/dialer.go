package transport

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/atomic"
)

// ErrNoEndpoints is returned from a rotating dialer without dialers.
var ErrNoEndpoints = errors.New("no endpoints")

// NewRotatingDialer returns a Dialer trying the given dialers in turn. Every
// call starts from the dialer following the one the previous call started
// from, it fails once every dialer failed.
func NewRotatingDialer(dialers ...Dialer) Dialer {
	var next atomic.Uint32
	return func(ctx context.Context) (Transport, error) {
		if len(dialers) == 0 {
			return nil, ErrNoEndpoints
		}
		var (
			start = int(next.Inc()-1) % len(dialers)
			tries int
			tr    Transport
		)
		b := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(len(dialers)-1)), ctx)
		err := backoff.Retry(func() error {
			d := dialers[(start+tries)%len(dialers)]
			tries++
			var err error
			tr, err = d(ctx)
			return err
		}, b)
		if err != nil {
			return nil, err
		}
		return tr, nil
	}
}

// NewWSRotatingDialer is NewRotatingDialer over websocket endpoints.
func NewWSRotatingDialer(endpoints []string, opts WSOptions) Dialer {
	dialers := make([]Dialer, len(endpoints))
	for i, e := range endpoints {
		dialers[i] = NewWSDialer(e, opts)
	}
	return NewRotatingDialer(dialers...)
}
