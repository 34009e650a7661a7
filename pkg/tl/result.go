package tl

import (
	"encoding/json"
	"fmt"
)

// Result type discriminators.
const (
	TypeError                 = "error"
	TypeOk                    = "ok"
	TypeOptionsInfo           = "options.info"
	TypeBlockIDExt            = "ton.blockIdExt"
	TypeRawFullAccountState   = "raw.fullAccountState"
	TypeRawTransactions       = "raw.transactions"
	TypeRawExtMessageInfo     = "raw.extMessageInfo"
	TypeFullAccountState      = "fullAccountState"
	TypeSmcInfo               = "smc.info"
	TypeSmcRunResult          = "smc.runResult"
	TypeSmcLibraryResult      = "smc.libraryResult"
	TypeUpdateSyncState       = "updateSyncState"
	TypeLiteServerInfo        = "liteServer.info"
	TypeLogVerbosityLevel     = "logVerbosityLevel"
	TypeBlocksMasterchainInfo = "blocks.masterchainInfo"
	TypeBlocksShards          = "blocks.shards"
	TypeBlocksTransactions    = "blocks.transactions"
	TypeBlocksHeader          = "blocks.header"
	TypeConfigInfo            = "configInfo"
	TypeTvmCell               = "tvm.cell"
)

// Error is an explicit error reply of the node.
type Error struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
}

// Ok is an empty successful reply.
type Ok struct{}

// OptionsInfo is the reply to Init.
type OptionsInfo struct {
	ConfigInfo OptionsConfigInfo `json:"config_info"`
}

// OptionsConfigInfo contains wallet defaults derived from the node config.
type OptionsConfigInfo struct {
	DefaultWalletID             int64  `json:"default_wallet_id,string"`
	DefaultRwalletInitPublicKey string `json:"default_rwallet_init_public_key"`
}

// RawFullAccountState is a raw account state.
type RawFullAccountState struct {
	Balance           int64                 `json:"balance,string"`
	Code              []byte                `json:"code"`
	Data              []byte                `json:"data"`
	LastTransactionID InternalTransactionID `json:"last_transaction_id"`
	BlockID           BlockIDExt            `json:"block_id"`
	FrozenHash        []byte                `json:"frozen_hash"`
	SyncUtime         int64                 `json:"sync_utime"`
}

// RawMessage is a message of some transaction.
type RawMessage struct {
	Source      AccountAddress  `json:"source"`
	Destination AccountAddress  `json:"destination"`
	Value       int64           `json:"value,string"`
	FwdFee      int64           `json:"fwd_fee,string"`
	IhrFee      int64           `json:"ihr_fee,string"`
	CreatedLT   int64           `json:"created_lt,string"`
	BodyHash    []byte          `json:"body_hash"`
	MsgData     json.RawMessage `json:"msg_data,omitempty"`
}

// RawTransaction is a transaction with its messages.
type RawTransaction struct {
	Address       AccountAddress        `json:"address"`
	Utime         int64                 `json:"utime"`
	Data          []byte                `json:"data"`
	TransactionID InternalTransactionID `json:"transaction_id"`
	Fee           int64                 `json:"fee,string"`
	StorageFee    int64                 `json:"storage_fee,string"`
	OtherFee      int64                 `json:"other_fee,string"`
	InMsg         *RawMessage           `json:"in_msg,omitempty"`
	OutMsgs       []RawMessage          `json:"out_msgs"`
}

// RawTransactions is a page of account transactions ordered by LT descending.
// PreviousTransactionID points to the next page, it's NullTransactionID-like
// (zero LT) when there are no more transactions.
type RawTransactions struct {
	Transactions          []RawTransaction      `json:"transactions"`
	PreviousTransactionID InternalTransactionID `json:"previous_transaction_id"`
}

// RawExtMessageInfo contains hash of the sent message.
type RawExtMessageInfo struct {
	Hash []byte `json:"hash"`
}

// FullAccountState is a parsed account state. AccountState is kept raw, it
// depends on the contract type.
type FullAccountState struct {
	Address           AccountAddress        `json:"address"`
	Balance           int64                 `json:"balance,string"`
	LastTransactionID InternalTransactionID `json:"last_transaction_id"`
	BlockID           BlockIDExt            `json:"block_id"`
	SyncUtime         int64                 `json:"sync_utime"`
	AccountState      json.RawMessage       `json:"account_state,omitempty"`
	Revision          int32                 `json:"revision"`
}

// SmcInfo is a handle of the contract state loaded into the node memory.
type SmcInfo struct {
	ID int64 `json:"id"`
}

// SmcRunResult is a get-method execution result.
type SmcRunResult struct {
	GasUsed  int64        `json:"gas_used"`
	Stack    []StackEntry `json:"stack"`
	ExitCode int32        `json:"exit_code"`
}

// SmcLibraryEntry is a single library cell.
type SmcLibraryEntry struct {
	Hash Hash   `json:"hash"`
	Data []byte `json:"data"`
}

// SmcLibraryResult is the reply to SmcGetLibraries. Libraries unknown to the
// node are omitted.
type SmcLibraryResult struct {
	Result []SmcLibraryEntry `json:"result"`
}

// LiteServerInfo describes the lite server the node is talking to.
type LiteServerInfo struct {
	Now          int64 `json:"now"`
	Version      int32 `json:"version"`
	Capabilities int64 `json:"capabilities,string"`
}

// LogVerbosityLevel is the node log verbosity.
type LogVerbosityLevel struct {
	VerbosityLevel int32 `json:"verbosity_level"`
}

// BlocksMasterchainInfo describes the latest known masterchain block.
type BlocksMasterchainInfo struct {
	Last          BlockIDExt `json:"last"`
	StateRootHash string     `json:"state_root_hash"`
	Init          BlockIDExt `json:"init"`
}

// BlocksShards lists shard blocks referenced by some masterchain block.
type BlocksShards struct {
	Shards []BlockIDExt `json:"shards"`
}

// BlocksTransactions is a page of short transaction IDs of some block.
type BlocksTransactions struct {
	ID           BlockIDExt        `json:"id"`
	ReqCount     int32             `json:"req_count"`
	Incomplete   bool              `json:"incomplete"`
	Transactions []BlocksShortTxID `json:"transactions"`
}

// BlocksHeader is a block header.
type BlocksHeader struct {
	ID                     BlockIDExt   `json:"id"`
	GlobalID               int32        `json:"global_id"`
	Version                int32        `json:"version"`
	Flags                  int32        `json:"flags"`
	AfterMerge             bool         `json:"after_merge"`
	AfterSplit             bool         `json:"after_split"`
	BeforeSplit            bool         `json:"before_split"`
	WantMerge              bool         `json:"want_merge"`
	WantSplit              bool         `json:"want_split"`
	ValidatorListHashShort int32        `json:"validator_list_hash_short"`
	CatchainSeqno          int32        `json:"catchain_seqno"`
	MinRefMcSeqno          int32        `json:"min_ref_mc_seqno"`
	IsKeyBlock             bool         `json:"is_key_block"`
	PrevKeyBlockSeqno      int32        `json:"prev_key_block_seqno"`
	StartLT                int64        `json:"start_lt,string"`
	EndLT                  int64        `json:"end_lt,string"`
	GenUtime               int64        `json:"gen_utime"`
	VertSeqno              int32        `json:"vert_seqno"`
	PrevBlocks             []BlockIDExt `json:"prev_blocks"`
}

// ConfigInfo contains the blockchain config cell.
type ConfigInfo struct {
	Config TvmCell `json:"config"`
}

// TvmCell is a serialized bag of cells.
type TvmCell struct {
	Bytes []byte `json:"bytes"`
}

func (*Error) Type() string                 { return TypeError }
func (*Ok) Type() string                    { return TypeOk }
func (*OptionsInfo) Type() string           { return TypeOptionsInfo }
func (*RawFullAccountState) Type() string   { return TypeRawFullAccountState }
func (*RawTransactions) Type() string       { return TypeRawTransactions }
func (*RawExtMessageInfo) Type() string     { return TypeRawExtMessageInfo }
func (*FullAccountState) Type() string      { return TypeFullAccountState }
func (*SmcInfo) Type() string               { return TypeSmcInfo }
func (*SmcRunResult) Type() string          { return TypeSmcRunResult }
func (*SmcLibraryResult) Type() string      { return TypeSmcLibraryResult }
func (*LiteServerInfo) Type() string        { return TypeLiteServerInfo }
func (*LogVerbosityLevel) Type() string     { return TypeLogVerbosityLevel }
func (*BlocksMasterchainInfo) Type() string { return TypeBlocksMasterchainInfo }
func (*BlocksShards) Type() string          { return TypeBlocksShards }
func (*BlocksTransactions) Type() string    { return TypeBlocksTransactions }
func (*BlocksHeader) Type() string          { return TypeBlocksHeader }
func (*ConfigInfo) Type() string            { return TypeConfigInfo }
func (*TvmCell) Type() string               { return TypeTvmCell }

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("node error %d: %s", e.Code, e.Message)
}
