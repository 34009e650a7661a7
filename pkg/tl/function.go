package tl

import (
	"encoding/json"
)

// Config is the node configuration passed on Init.
type Config struct {
	Config                 string `json:"config"`
	BlockchainName         string `json:"blockchain_name"`
	UseCallbacksForNetwork bool   `json:"use_callbacks_for_network"`
	IgnoreCache            bool   `json:"ignore_cache"`
}

// KeystoreType selects where the node keeps its keys. Empty Directory means
// in-memory keystore.
type KeystoreType struct {
	Directory string
}

// MarshalJSON implements the json.Marshaler interface.
func (k KeystoreType) MarshalJSON() ([]byte, error) {
	if k.Directory == "" {
		return []byte(`{"@type":"keyStoreTypeInMemory"}`), nil
	}
	return json.Marshal(struct {
		Type      string `json:"@type"`
		Directory string `json:"directory"`
	}{"keyStoreTypeDirectory", k.Directory})
}

// Options is the set of node options passed on Init.
type Options struct {
	Config       Config       `json:"config"`
	KeystoreType KeystoreType `json:"keystore_type"`
}

// SmcMethodID identifies a get-method either by name or by number. Name takes
// precedence if both are set.
type SmcMethodID struct {
	Name   string
	Number int32
}

// MarshalJSON implements the json.Marshaler interface.
func (m SmcMethodID) MarshalJSON() ([]byte, error) {
	if m.Name != "" {
		return json.Marshal(struct {
			Type string `json:"@type"`
			Name string `json:"name"`
		}{"smc.methodIdName", m.Name})
	}
	return json.Marshal(struct {
		Type   string `json:"@type"`
		Number int32  `json:"number"`
	}{"smc.methodIdNumber", m.Number})
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (m *SmcMethodID) UnmarshalJSON(data []byte) error {
	var aux struct {
		Name   string `json:"name"`
		Number int32  `json:"number"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	m.Name, m.Number = aux.Name, aux.Number
	return nil
}

// Lookup modes for BlocksLookupBlock, can be combined.
const (
	LookupBySeqno int32 = 1
	LookupByLT    int32 = 2
	LookupByUtime int32 = 4
)

// Transaction listing modes for BlocksGetTransactions.
const (
	TxModeAccount  int32 = 1
	TxModeLT       int32 = 2
	TxModeHash     int32 = 4
	TxModeAll            = TxModeAccount | TxModeLT | TxModeHash
	TxModeAfter    int32 = 128
	TxModeAllAfter       = TxModeAll | TxModeAfter
)

type (
	// Init initializes the node client, it must be the first request.
	Init struct {
		Options Options `json:"options"`
	}
	// Sync waits for the node to be synchronized with the network.
	Sync struct{}

	// RawGetAccountState gets latest raw account state.
	RawGetAccountState struct {
		AccountAddress AccountAddress `json:"account_address"`
	}
	// RawGetAccountStateByTransaction gets raw account state as of some transaction.
	RawGetAccountStateByTransaction struct {
		AccountAddress AccountAddress        `json:"account_address"`
		TransactionID  InternalTransactionID `json:"transaction_id"`
	}
	// RawGetTransactions lists account transactions starting from the given one backwards.
	RawGetTransactions struct {
		AccountAddress    AccountAddress        `json:"account_address"`
		FromTransactionID InternalTransactionID `json:"from_transaction_id"`
	}
	// RawGetTransactionsV2 is RawGetTransactions with explicit count.
	RawGetTransactionsV2 struct {
		AccountAddress    AccountAddress        `json:"account_address"`
		FromTransactionID InternalTransactionID `json:"from_transaction_id"`
		Count             int32                 `json:"count"`
		TryDecodeMessages bool                  `json:"try_decode_messages"`
	}
	// RawSendMessage sends serialized external message.
	RawSendMessage struct {
		Body []byte `json:"body"`
	}
	// RawSendMessageReturnHash sends serialized external message returning its hash.
	RawSendMessageReturnHash struct {
		Body []byte `json:"body"`
	}
	// GetAccountState gets parsed account state.
	GetAccountState struct {
		AccountAddress AccountAddress `json:"account_address"`
	}
	// GetConfigParam gets single blockchain config parameter.
	GetConfigParam struct {
		Mode  int32 `json:"mode"`
		Param int32 `json:"param"`
	}
	// GetConfigAll gets the whole blockchain config.
	GetConfigAll struct {
		Mode int32 `json:"mode"`
	}

	// SmcLoad loads latest contract state into the node memory.
	SmcLoad struct {
		AccountAddress AccountAddress `json:"account_address"`
	}
	// SmcLoadByTransaction loads contract state as of some transaction.
	SmcLoadByTransaction struct {
		AccountAddress AccountAddress        `json:"account_address"`
		TransactionID  InternalTransactionID `json:"transaction_id"`
	}
	// SmcForget frees the loaded contract state.
	SmcForget struct {
		ID int64 `json:"id"`
	}
	// SmcGetCode gets code of the loaded contract.
	SmcGetCode struct {
		ID int64 `json:"id"`
	}
	// SmcGetData gets data of the loaded contract.
	SmcGetData struct {
		ID int64 `json:"id"`
	}
	// SmcGetState gets state of the loaded contract.
	SmcGetState struct {
		ID int64 `json:"id"`
	}
	// SmcRunGetMethod executes get-method of the loaded contract.
	SmcRunGetMethod struct {
		ID       int64        `json:"id"`
		MethodID SmcMethodID  `json:"method"`
		Stack    []StackEntry `json:"stack"`
	}
	// SmcGetLibraries gets library cells by their hashes.
	SmcGetLibraries struct {
		LibraryList []Hash `json:"library_list"`
	}

	// BlocksGetMasterchainInfo gets the latest known masterchain block.
	BlocksGetMasterchainInfo struct{}
	// BlocksGetShards gets shard blocks referenced by masterchain block.
	BlocksGetShards struct {
		ID BlockIDExt `json:"id"`
	}
	// BlocksLookupBlock finds block by seqno, lt or utime depending on Mode.
	BlocksLookupBlock struct {
		Mode  int32   `json:"mode"`
		ID    BlockID `json:"id"`
		LT    int64   `json:"lt,string"`
		Utime int32   `json:"utime"`
	}
	// BlocksGetTransactions lists short transaction IDs of the block.
	BlocksGetTransactions struct {
		ID    BlockIDExt                 `json:"id"`
		Mode  int32                      `json:"mode"`
		Count int32                      `json:"count"`
		After BlocksAccountTransactionID `json:"after"`
	}
	// BlocksGetBlockHeader gets block header.
	BlocksGetBlockHeader struct {
		ID BlockIDExt `json:"id"`
	}

	// LiteServerGetInfo gets information about the lite server.
	LiteServerGetInfo struct{}
	// SetLogVerbosityLevel sets node log verbosity.
	SetLogVerbosityLevel struct {
		NewVerbosityLevel int32 `json:"new_verbosity_level"`
	}
	// GetLogVerbosityLevel gets node log verbosity.
	GetLogVerbosityLevel struct{}
)

func (*Init) Method() string                            { return "init" }
func (*Sync) Method() string                            { return "sync" }
func (*RawGetAccountState) Method() string              { return "raw.getAccountState" }
func (*RawGetAccountStateByTransaction) Method() string { return "raw.getAccountStateByTransaction" }
func (*RawGetTransactions) Method() string              { return "raw.getTransactions" }
func (*RawGetTransactionsV2) Method() string            { return "raw.getTransactionsV2" }
func (*RawSendMessage) Method() string                  { return "raw.sendMessage" }
func (*RawSendMessageReturnHash) Method() string        { return "raw.sendMessageReturnHash" }
func (*GetAccountState) Method() string                 { return "getAccountState" }
func (*GetConfigParam) Method() string                  { return "getConfigParam" }
func (*GetConfigAll) Method() string                    { return "getConfigAll" }
func (*SmcLoad) Method() string                         { return "smc.load" }
func (*SmcLoadByTransaction) Method() string            { return "smc.loadByTransaction" }
func (*SmcForget) Method() string                       { return "smc.forget" }
func (*SmcGetCode) Method() string                      { return "smc.getCode" }
func (*SmcGetData) Method() string                      { return "smc.getData" }
func (*SmcGetState) Method() string                     { return "smc.getState" }
func (*SmcRunGetMethod) Method() string                 { return "smc.runGetMethod" }
func (*SmcGetLibraries) Method() string                 { return "smc.getLibraries" }
func (*BlocksGetMasterchainInfo) Method() string        { return "blocks.getMasterchainInfo" }
func (*BlocksGetShards) Method() string                 { return "blocks.getShards" }
func (*BlocksLookupBlock) Method() string               { return "blocks.lookupBlock" }
func (*BlocksGetTransactions) Method() string           { return "blocks.getTransactions" }
func (*BlocksGetBlockHeader) Method() string            { return "blocks.getBlockHeader" }
func (*LiteServerGetInfo) Method() string               { return "liteServer.getInfo" }
func (*SetLogVerbosityLevel) Method() string            { return "setLogVerbosityLevel" }
func (*GetLogVerbosityLevel) Method() string            { return "getLogVerbosityLevel" }
