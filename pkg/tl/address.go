package tl

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Address is an account address: workchain plus the 256-bit account ID. It's
// comparable and is used as a cache key.
type Address struct {
	Workchain int32
	Hash      Hash
}

// ErrInvalidAddress is returned when address can't be parsed.
var ErrInvalidAddress = errors.New("invalid address")

const (
	friendlyLen      = 36
	flagBounceable   = 0x11
	flagNonBounce    = 0x51
	flagTestOnly     = 0x80
	crc16Polynomial  = 0x1021
	friendlyB64Chars = 48
)

// ParseAddress accepts both raw ("wc:hex") and user-friendly (48 base64
// characters, standard or URL alphabet) address forms.
func ParseAddress(s string) (Address, error) {
	if strings.Contains(s, ":") {
		return parseRawAddress(s)
	}
	if len(s) == friendlyB64Chars {
		return parseFriendlyAddress(s)
	}
	return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
}

// MustParseAddress is like ParseAddress, but panics on error. Useful for
// tests and constants.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

func parseRawAddress(s string) (Address, error) {
	wcStr, hashStr, _ := strings.Cut(s, ":")
	wc, err := strconv.ParseInt(wcStr, 10, 32)
	if err != nil {
		return Address{}, fmt.Errorf("%w: bad workchain in %q", ErrInvalidAddress, s)
	}
	h, err := HashFromHex(hashStr)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %q: %w", ErrInvalidAddress, s, err)
	}
	return Address{Workchain: int32(wc), Hash: h}, nil
}

func parseFriendlyAddress(s string) (Address, error) {
	enc := base64.StdEncoding
	if strings.ContainsAny(s, "-_") {
		enc = base64.URLEncoding
	}
	b, err := enc.DecodeString(s)
	if err != nil || len(b) != friendlyLen {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	if crc16(b[:34]) != binary.BigEndian.Uint16(b[34:]) {
		return Address{}, fmt.Errorf("%w: checksum mismatch in %q", ErrInvalidAddress, s)
	}
	switch b[0] &^ flagTestOnly {
	case flagBounceable, flagNonBounce:
	default:
		return Address{}, fmt.Errorf("%w: unknown tag %#x in %q", ErrInvalidAddress, b[0], s)
	}
	var a = Address{Workchain: int32(int8(b[1]))}
	copy(a.Hash[:], b[2:34])
	return a, nil
}

// String returns raw address form.
func (a Address) String() string {
	return strconv.FormatInt(int64(a.Workchain), 10) + ":" + hex.EncodeToString(a.Hash[:])
}

// Friendly returns URL-safe user-friendly address form.
func (a Address) Friendly(bounceable, testOnly bool) string {
	var b = make([]byte, friendlyLen)
	b[0] = flagNonBounce
	if bounceable {
		b[0] = flagBounceable
	}
	if testOnly {
		b[0] |= flagTestOnly
	}
	b[1] = byte(int8(a.Workchain))
	copy(b[2:], a.Hash[:])
	binary.BigEndian.PutUint16(b[34:], crc16(b[:34]))
	return base64.URLEncoding.EncodeToString(b)
}

// MarshalText implements the encoding.TextMarshaler interface.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (a *Address) UnmarshalText(text []byte) error {
	res, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = res
	return nil
}

// crc16 is CRC-16/XMODEM.
func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for range 8 {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ crc16Polynomial
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
