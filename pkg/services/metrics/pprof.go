package metrics

import (
	"net/http"
	"net/http/pprof"

	"github.com/nspcc-dev/tonlib-go/pkg/config"
	"go.uber.org/zap"
)

// PprofPath is the prefix of profiling endpoints.
const PprofPath = "/debug/pprof/"

// NewPprofService creates a service exposing runtime profiles of the client
// process (goroutines of connection loops and block streams included).
func NewPprofService(cfg config.BasicService, log *zap.Logger) *Service {
	mux := http.NewServeMux()
	// Named profiles (heap, goroutine, block, ...) are served by Index.
	mux.HandleFunc(PprofPath, pprof.Index)
	for name, h := range map[string]http.HandlerFunc{
		"cmdline": pprof.Cmdline,
		"profile": pprof.Profile,
		"symbol":  pprof.Symbol,
		"trace":   pprof.Trace,
	} {
		mux.HandleFunc(PprofPath+name, h)
	}
	return newHTTPService("Pprof", cfg, mux, log)
}
