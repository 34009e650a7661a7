package tl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddress(t *testing.T) {
	const raw = "0:83dfd552e63729b472fcbcc8c45ebcc6691702558b68ec7527e1ba403a0f31a8"

	a, err := ParseAddress(raw)
	require.NoError(t, err)
	require.Equal(t, int32(0), a.Workchain)
	require.Equal(t, raw, a.String())

	t.Run("friendly", func(t *testing.T) {
		b := a.Friendly(true, false)
		require.Len(t, b, 48)
		require.Equal(t, "EQ", b[:2])
		nb := a.Friendly(false, false)
		require.Equal(t, "UQ", nb[:2])

		for _, s := range []string{b, nb, a.Friendly(true, true)} {
			parsed, err := ParseAddress(s)
			require.NoError(t, err)
			require.Equal(t, a, parsed)
		}
	})
	t.Run("masterchain", func(t *testing.T) {
		m := Address{Workchain: MasterchainID, Hash: a.Hash}
		parsed, err := ParseAddress(m.Friendly(true, false))
		require.NoError(t, err)
		require.Equal(t, m, parsed)
		require.Equal(t, "-1:"+raw[2:], m.String())
	})
	t.Run("bad checksum", func(t *testing.T) {
		s := []byte(a.Friendly(true, false))
		s[10] = 'A' + (s[10]-'A'+1)%26
		_, err := ParseAddress(string(s))
		require.ErrorIs(t, err, ErrInvalidAddress)
	})
	t.Run("bad", func(t *testing.T) {
		for _, s := range []string{"", "0:12", "x:" + raw[2:], "abc", raw + "00"} {
			_, err := ParseAddress(s)
			require.ErrorIs(t, err, ErrInvalidAddress, s)
		}
	})
	t.Run("text", func(t *testing.T) {
		var b Address
		require.NoError(t, b.UnmarshalText([]byte(raw)))
		txt, err := b.MarshalText()
		require.NoError(t, err)
		require.Equal(t, raw, string(txt))
		require.Equal(t, raw, NewAccountAddress(b).AccountAddress)
	})
}
