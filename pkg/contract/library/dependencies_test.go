package library

import (
	"testing"

	"github.com/nspcc-dev/tonlib-go/pkg/tl"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestDependencies(t *testing.T) {
	defer goleak.VerifyNone(t, lruCleaner)

	var (
		d    = NewDependencies(0, 0)
		code = tl.Hash{0xc0}
		a    = tl.Hash{0xa}
		b    = tl.Hash{0xb}
	)
	require.Empty(t, d.Get(code))

	require.True(t, d.Update(code, b))
	require.True(t, d.Update(code, a, b))
	require.False(t, d.Update(code, a))
	require.False(t, d.Update(code))
	require.Equal(t, []tl.Hash{a, b}, d.Get(code))

	got := d.Get(code)
	got[0] = tl.Hash{}
	require.Equal(t, []tl.Hash{a, b}, d.Get(code))

	require.False(t, d.Update(tl.Hash{0xc1}))
	require.Empty(t, d.Get(tl.Hash{0xc1}))
}

func TestDependenciesCapacity(t *testing.T) {
	defer goleak.VerifyNone(t, lruCleaner)

	d := NewDependencies(2, 0)
	for i := range 3 {
		require.True(t, d.Update(tl.Hash{byte(i)}, tl.Hash{0xff}))
	}
	require.Empty(t, d.Get(tl.Hash{0}))
	require.Len(t, d.Get(tl.Hash{2}), 1)
}
