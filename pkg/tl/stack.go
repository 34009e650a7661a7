package tl

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
)

// StackEntryType is a kind of TVM stack entry.
type StackEntryType byte

// Supported stack entry kinds. Everything else is kept as raw JSON.
const (
	StackNumber StackEntryType = iota
	StackCell
	StackSlice
	StackUnsupported
)

// StackEntry is a single TVM stack item passed to or returned from get-methods.
type StackEntry struct {
	Kind   StackEntryType
	Number *big.Int
	Bytes  []byte
	Raw    json.RawMessage
}

// ErrWrongStackEntry is returned by typed getters for entries of other kinds.
var ErrWrongStackEntry = errors.New("wrong stack entry type")

// NewNumberEntry creates a number stack entry.
func NewNumberEntry(n *big.Int) StackEntry {
	return StackEntry{Kind: StackNumber, Number: n}
}

// NewCellEntry creates a cell stack entry from serialized BoC.
func NewCellEntry(boc []byte) StackEntry {
	return StackEntry{Kind: StackCell, Bytes: boc}
}

// NewSliceEntry creates a slice stack entry from serialized BoC.
func NewSliceEntry(boc []byte) StackEntry {
	return StackEntry{Kind: StackSlice, Bytes: boc}
}

// TryNumber returns the number if the entry is a number.
func (e StackEntry) TryNumber() (*big.Int, error) {
	if e.Kind != StackNumber {
		return nil, fmt.Errorf("%w: expected number", ErrWrongStackEntry)
	}
	return e.Number, nil
}

// TryBytes returns serialized BoC if the entry is a cell or a slice.
func (e StackEntry) TryBytes() ([]byte, error) {
	if e.Kind != StackCell && e.Kind != StackSlice {
		return nil, fmt.Errorf("%w: expected cell or slice", ErrWrongStackEntry)
	}
	return e.Bytes, nil
}

type (
	numberAux struct {
		Type   string `json:"@type"`
		Number struct {
			Number string `json:"number"`
		} `json:"number"`
	}
	cellAux struct {
		Type string `json:"@type"`
		Cell struct {
			Bytes []byte `json:"bytes"`
		} `json:"cell"`
	}
	sliceAux struct {
		Type  string `json:"@type"`
		Slice struct {
			Bytes []byte `json:"bytes"`
		} `json:"slice"`
	}
)

const (
	stackEntryNumber = "tvm.stackEntryNumber"
	stackEntryCell   = "tvm.stackEntryCell"
	stackEntrySlice  = "tvm.stackEntrySlice"
)

// MarshalJSON implements the json.Marshaler interface.
func (e StackEntry) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case StackNumber:
		var aux = numberAux{Type: stackEntryNumber}
		if e.Number == nil {
			return nil, errors.New("nil number in stack entry")
		}
		aux.Number.Number = e.Number.String()
		return json.Marshal(aux)
	case StackCell:
		var aux = cellAux{Type: stackEntryCell}
		aux.Cell.Bytes = e.Bytes
		return json.Marshal(aux)
	case StackSlice:
		var aux = sliceAux{Type: stackEntrySlice}
		aux.Slice.Bytes = e.Bytes
		return json.Marshal(aux)
	default:
		if len(e.Raw) == 0 {
			return nil, errors.New("empty unsupported stack entry")
		}
		return e.Raw, nil
	}
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (e *StackEntry) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	switch env.Type {
	case stackEntryNumber:
		var aux numberAux
		if err := json.Unmarshal(data, &aux); err != nil {
			return err
		}
		n, ok := new(big.Int).SetString(aux.Number.Number, 10)
		if !ok {
			return fmt.Errorf("bad stack number %q", aux.Number.Number)
		}
		*e = NewNumberEntry(n)
	case stackEntryCell:
		var aux cellAux
		if err := json.Unmarshal(data, &aux); err != nil {
			return err
		}
		*e = NewCellEntry(aux.Cell.Bytes)
	case stackEntrySlice:
		var aux sliceAux
		if err := json.Unmarshal(data, &aux); err != nil {
			return err
		}
		*e = NewSliceEntry(aux.Slice.Bytes)
	default:
		*e = StackEntry{Kind: StackUnsupported, Raw: append(json.RawMessage(nil), data...)}
	}
	return nil
}
