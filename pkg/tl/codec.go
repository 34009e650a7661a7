package tl

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Function is a request to the node. Method returns its "@type" discriminator.
type Function interface {
	Method() string
}

// Result is a reply (or a notification) from the node. Type returns its "@type"
// discriminator.
type Result interface {
	Type() string
}

// ErrNotAnObject is returned when a function or result doesn't serialize into
// a JSON object.
var ErrNotAnObject = errors.New("not a JSON object")

// envelope is used to peek at the discriminator and the correlation tag.
type envelope struct {
	Type  string  `json:"@type"`
	Extra *string `json:"@extra,omitempty"`
}

var results = map[string]func() Result{
	TypeError:                 func() Result { return new(Error) },
	TypeOk:                    func() Result { return new(Ok) },
	TypeOptionsInfo:           func() Result { return new(OptionsInfo) },
	TypeBlockIDExt:            func() Result { return new(BlockIDExt) },
	TypeRawFullAccountState:   func() Result { return new(RawFullAccountState) },
	TypeRawTransactions:       func() Result { return new(RawTransactions) },
	TypeRawExtMessageInfo:     func() Result { return new(RawExtMessageInfo) },
	TypeFullAccountState:      func() Result { return new(FullAccountState) },
	TypeSmcInfo:               func() Result { return new(SmcInfo) },
	TypeSmcRunResult:          func() Result { return new(SmcRunResult) },
	TypeSmcLibraryResult:      func() Result { return new(SmcLibraryResult) },
	TypeUpdateSyncState:       func() Result { return new(UpdateSyncState) },
	TypeLiteServerInfo:        func() Result { return new(LiteServerInfo) },
	TypeLogVerbosityLevel:     func() Result { return new(LogVerbosityLevel) },
	TypeBlocksMasterchainInfo: func() Result { return new(BlocksMasterchainInfo) },
	TypeBlocksShards:          func() Result { return new(BlocksShards) },
	TypeBlocksTransactions:    func() Result { return new(BlocksTransactions) },
	TypeBlocksHeader:          func() Result { return new(BlocksHeader) },
	TypeConfigInfo:            func() Result { return new(ConfigInfo) },
	TypeTvmCell:               func() Result { return new(TvmCell) },
}

var functions = map[string]func() Function{
	"init":                             func() Function { return new(Init) },
	"sync":                             func() Function { return new(Sync) },
	"raw.getAccountState":              func() Function { return new(RawGetAccountState) },
	"raw.getAccountStateByTransaction": func() Function { return new(RawGetAccountStateByTransaction) },
	"raw.getTransactions":              func() Function { return new(RawGetTransactions) },
	"raw.getTransactionsV2":            func() Function { return new(RawGetTransactionsV2) },
	"raw.sendMessage":                  func() Function { return new(RawSendMessage) },
	"raw.sendMessageReturnHash":        func() Function { return new(RawSendMessageReturnHash) },
	"getAccountState":                  func() Function { return new(GetAccountState) },
	"getConfigParam":                   func() Function { return new(GetConfigParam) },
	"getConfigAll":                     func() Function { return new(GetConfigAll) },
	"smc.load":                         func() Function { return new(SmcLoad) },
	"smc.loadByTransaction":            func() Function { return new(SmcLoadByTransaction) },
	"smc.forget":                       func() Function { return new(SmcForget) },
	"smc.getCode":                      func() Function { return new(SmcGetCode) },
	"smc.getData":                      func() Function { return new(SmcGetData) },
	"smc.getState":                     func() Function { return new(SmcGetState) },
	"smc.runGetMethod":                 func() Function { return new(SmcRunGetMethod) },
	"smc.getLibraries":                 func() Function { return new(SmcGetLibraries) },
	"blocks.getMasterchainInfo":        func() Function { return new(BlocksGetMasterchainInfo) },
	"blocks.getShards":                 func() Function { return new(BlocksGetShards) },
	"blocks.lookupBlock":               func() Function { return new(BlocksLookupBlock) },
	"blocks.getTransactions":           func() Function { return new(BlocksGetTransactions) },
	"blocks.getBlockHeader":            func() Function { return new(BlocksGetBlockHeader) },
	"liteServer.getInfo":               func() Function { return new(LiteServerGetInfo) },
	"setLogVerbosityLevel":             func() Function { return new(SetLogVerbosityLevel) },
	"getLogVerbosityLevel":             func() Function { return new(GetLogVerbosityLevel) },
}

// MarshalFunction serializes fn adding its "@type" and, if not empty, the
// "@extra" correlation tag.
func MarshalFunction(fn Function, extra string) ([]byte, error) {
	var tag *string
	if extra != "" {
		tag = &extra
	}
	return marshalTagged(fn.Method(), tag, fn)
}

// MarshalResult serializes r the way the node does, it's the counterpart of
// UnmarshalResult. A nil extra means no correlation tag.
func MarshalResult(r Result, extra *string) ([]byte, error) {
	if u, ok := r.(*Unknown); ok {
		return u.Raw, nil
	}
	return marshalTagged(r.Type(), extra, r)
}

// UnmarshalResult decodes a node reply. It returns the result and the
// correlation tag if there was any. Unknown "@type" values are not an error,
// they're returned as *Unknown.
func UnmarshalResult(data []byte) (Result, *string, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, nil, fmt.Errorf("malformed reply: %w", err)
	}
	ctor, ok := results[env.Type]
	if !ok {
		return &Unknown{TypeName: env.Type, Raw: append(json.RawMessage(nil), data...)}, env.Extra, nil
	}
	r := ctor()
	if err := json.Unmarshal(data, r); err != nil {
		return nil, env.Extra, fmt.Errorf("can't decode %s: %w", env.Type, err)
	}
	return r, env.Extra, nil
}

// UnmarshalFunction decodes a request, it's the counterpart of
// MarshalFunction for node-side code. It returns the request and its
// correlation tag, unknown methods are an error.
func UnmarshalFunction(data []byte) (Function, string, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, "", fmt.Errorf("malformed request: %w", err)
	}
	var extra string
	if env.Extra != nil {
		extra = *env.Extra
	}
	ctor, ok := functions[env.Type]
	if !ok {
		return nil, extra, fmt.Errorf("unknown method %q", env.Type)
	}
	fn := ctor()
	if err := json.Unmarshal(data, fn); err != nil {
		return nil, extra, fmt.Errorf("can't decode %s: %w", env.Type, err)
	}
	return fn, extra, nil
}

func marshalTagged(typ string, extra *string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("%s: %w", typ, ErrNotAnObject)
	}
	var b bytes.Buffer
	b.Grow(len(body) + len(typ) + 32)
	b.WriteString(`{"@type":`)
	t, _ := json.Marshal(typ)
	b.Write(t)
	if extra != nil {
		b.WriteString(`,"@extra":`)
		e, _ := json.Marshal(*extra)
		b.Write(e)
	}
	if len(body) > 2 {
		b.WriteByte(',')
	}
	b.Write(body[1:])
	return b.Bytes(), nil
}

// Unknown is a result of a type this package doesn't know about.
type Unknown struct {
	TypeName string
	Raw      json.RawMessage
}

// Type implements the Result interface.
func (u *Unknown) Type() string { return u.TypeName }
