package tl

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// MasterchainID is the workchain number of the masterchain.
	MasterchainID int32 = -1
	// ShardFull is the shard prefix covering the whole workchain.
	ShardFull int64 = math.MinInt64
)

// HashSize is the size of all hashes used by the chain.
const HashSize = 32

// Hash is a 256-bit hash. It's serialized as standard base64 on the wire
// and printed as hex.
type Hash [HashSize]byte

// ErrInvalidHash is returned for hashes of wrong length or encoding.
var ErrInvalidHash = errors.New("invalid hash")

// HashFromBytes creates a Hash from a 32-byte slice.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, fmt.Errorf("%w: length %d", ErrInvalidHash, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// HashFromHex decodes a hex string into a Hash.
func HashFromHex(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("%w: %w", ErrInvalidHash, err)
	}
	return HashFromBytes(b)
}

// String implements the fmt.Stringer interface.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// MarshalJSON implements the json.Marshaler interface.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(base64.StdEncoding.EncodeToString(h[:]))
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidHash, err)
	}
	*h, err = HashFromBytes(b)
	return err
}

// BlockID identifies a block without its content hashes.
type BlockID struct {
	Workchain int32 `json:"workchain"`
	Shard     int64 `json:"shard,string"`
	Seqno     int32 `json:"seqno"`
}

// String implements the fmt.Stringer interface.
func (b BlockID) String() string {
	return fmt.Sprintf("(%d,%016x,%d)", b.Workchain, uint64(b.Shard), b.Seqno)
}

// MasterBlockID returns the ID of the masterchain block with the given seqno.
func MasterBlockID(seqno int32) BlockID {
	return BlockID{Workchain: MasterchainID, Shard: ShardFull, Seqno: seqno}
}

// BlockIDExt uniquely identifies a block. Hashes are kept in their wire
// (base64) form so that the struct stays comparable.
type BlockIDExt struct {
	Workchain int32  `json:"workchain"`
	Shard     int64  `json:"shard,string"`
	Seqno     int32  `json:"seqno"`
	RootHash  string `json:"root_hash"`
	FileHash  string `json:"file_hash"`
}

// Type implements the Result interface.
func (*BlockIDExt) Type() string { return TypeBlockIDExt }

// BlockID strips hashes from the identifier.
func (b BlockIDExt) BlockID() BlockID {
	return BlockID{Workchain: b.Workchain, Shard: b.Shard, Seqno: b.Seqno}
}

// String implements the fmt.Stringer interface.
func (b BlockIDExt) String() string {
	return b.BlockID().String()
}

// AccountAddress is the wire wrapper for account addresses.
type AccountAddress struct {
	AccountAddress string `json:"account_address"`
}

// NewAccountAddress wraps a into the wire structure.
func NewAccountAddress(a Address) AccountAddress {
	return AccountAddress{AccountAddress: a.String()}
}

// InternalTransactionID points to a specific transaction of some account.
type InternalTransactionID struct {
	LT   int64  `json:"lt,string"`
	Hash []byte `json:"hash"`
}

// NullTransactionID is the zero transaction ID used as "nothing before".
var NullTransactionID = InternalTransactionID{LT: 0, Hash: make([]byte, HashSize)}

// ErrInvalidTransactionID is returned by ParseInternalTransactionID.
var ErrInvalidTransactionID = errors.New("invalid transaction id")

// ParseInternalTransactionID parses "lt:hash" strings where hash is either hex
// (64 characters) or base64 (standard or URL alphabet, padded or not).
func ParseInternalTransactionID(s string) (InternalTransactionID, error) {
	ltStr, hashStr, ok := strings.Cut(s, ":")
	if !ok || strings.Contains(hashStr, ":") {
		return InternalTransactionID{}, fmt.Errorf("%w: wrong format %q", ErrInvalidTransactionID, s)
	}
	lt, err := strconv.ParseInt(ltStr, 10, 64)
	if err != nil {
		return InternalTransactionID{}, fmt.Errorf("%w: wrong format %q", ErrInvalidTransactionID, s)
	}
	hash, err := decodeHashString(hashStr)
	if err != nil {
		return InternalTransactionID{}, fmt.Errorf("%w: %q: %w", ErrInvalidTransactionID, s, err)
	}
	return InternalTransactionID{LT: lt, Hash: hash}, nil
}

func decodeHashString(s string) ([]byte, error) {
	var (
		b   []byte
		err error
	)
	if len(s) == 2*HashSize {
		b, err = hex.DecodeString(s)
	} else {
		enc := base64.StdEncoding
		if strings.ContainsAny(s, "-_") {
			enc = base64.URLEncoding
		}
		if !strings.HasSuffix(s, "=") {
			enc = enc.WithPadding(base64.NoPadding)
		}
		b, err = enc.Strict().DecodeString(s)
	}
	if err != nil {
		return nil, err
	}
	if len(b) != HashSize {
		return nil, fmt.Errorf("hash length is %d", len(b))
	}
	return b, nil
}

// String renders the ID as "lt:hex".
func (t InternalTransactionID) String() string {
	return strconv.FormatInt(t.LT, 10) + ":" + hex.EncodeToString(t.Hash)
}

// Equal checks whether two IDs point to the same transaction.
func (t InternalTransactionID) Equal(o InternalTransactionID) bool {
	return t.LT == o.LT && bytes.Equal(t.Hash, o.Hash)
}

// BlocksAccountTransactionID is a pagination cursor for blocks.getTransactions.
type BlocksAccountTransactionID struct {
	Account []byte `json:"account"`
	LT      int64  `json:"lt,string"`
}

// NullBlocksAccountTransactionID starts the pagination from the first
// transaction of the block.
var NullBlocksAccountTransactionID = BlocksAccountTransactionID{Account: make([]byte, HashSize)}

// BlocksShortTxID is a short transaction reference inside a block.
type BlocksShortTxID struct {
	Mode    int32  `json:"mode"`
	Account []byte `json:"account"`
	LT      int64  `json:"lt,string"`
	Hash    []byte `json:"hash"`
}

// TxID is a transaction ID together with its account address.
type TxID struct {
	Address Address
	ID      InternalTransactionID
}

// NewTxID builds TxID from a short block transaction reference.
func NewTxID(workchain int32, tx BlocksShortTxID) (TxID, error) {
	h, err := HashFromBytes(tx.Account)
	if err != nil {
		return TxID{}, fmt.Errorf("bad account in transaction %d: %w", tx.LT, err)
	}
	return TxID{
		Address: Address{Workchain: workchain, Hash: h},
		ID:      InternalTransactionID{LT: tx.LT, Hash: tx.Hash},
	}, nil
}
