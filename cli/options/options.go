/*
Package options contains a set of common CLI options and helper functions to use them.
*/
package options

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nspcc-dev/tonlib-go/pkg/config"
	"github.com/nspcc-dev/tonlib-go/pkg/contract"
	"github.com/nspcc-dev/tonlib-go/pkg/contract/library"
	"github.com/nspcc-dev/tonlib-go/pkg/rpcclient"
	"github.com/nspcc-dev/tonlib-go/pkg/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultTimeout is the default timeout used for node requests.
const DefaultTimeout = 10 * time.Second

// EndpointFlag is a long flag name for node endpoints. It can be used to
// check for flag presence in the context.
const EndpointFlag = "endpoint"

// Node is a set of flags used for node connections.
var Node = []cli.Flag{
	cli.StringSliceFlag{
		Name:  EndpointFlag + ", e",
		Usage: "node bridge websocket address (overrides configuration, can be repeated)",
	},
	cli.DurationFlag{
		Name:  "timeout, s",
		Value: DefaultTimeout,
		Usage: "Timeout for the operation",
	},
	ConfigFile,
	Debug,
}

// ConfigFile is a flag for commands that use client configuration.
var ConfigFile = cli.StringFlag{
	Name:  "config-file, c",
	Usage: "path to the client configuration file",
}

// Debug is a flag for commands that allow debug logging.
var Debug = cli.BoolFlag{
	Name:  "debug, d",
	Usage: "enable debug logging (LOTS of output, overrides configuration)",
}

var errNoEndpoint = errors.New("no node endpoint specified, use option '--" + EndpointFlag + "' or '-e' or configuration file")

// GetTimeoutContext returns a context.Context with the default or a user-set timeout.
func GetTimeoutContext(ctx *cli.Context) (context.Context, func()) {
	dur := ctx.Duration("timeout")
	if dur == 0 {
		dur = DefaultTimeout
	}
	return context.WithTimeout(context.Background(), dur)
}

// GetConfigFromContext loads the configuration file if it's given and applies
// command line overrides.
func GetConfigFromContext(ctx *cli.Context) (config.Config, error) {
	var (
		cfg = config.Default()
		err error
	)
	if configFile := ctx.String("config-file"); len(configFile) != 0 {
		cfg, err = config.LoadFile(configFile)
		if err != nil {
			return config.Config{}, err
		}
	}
	if endpoints := ctx.StringSlice(EndpointFlag); len(endpoints) != 0 {
		cfg.Endpoints = endpoints
	}
	return cfg, nil
}

// GetClient returns a node client for the given Context, the client is
// configured from the configuration file and flags. The logger returned
// should be synced by the caller.
func GetClient(gctx context.Context, ctx *cli.Context) (*rpcclient.Client, *zap.Logger, cli.ExitCoder) {
	cfg, err := GetConfigFromContext(ctx)
	if err != nil {
		return nil, nil, cli.NewExitError(err, 1)
	}
	log, _, _, err := HandleLoggingParams(ctx.Bool("debug"), cfg.Logger)
	if err != nil {
		return nil, nil, cli.NewExitError(err, 1)
	}
	opts, err := ClientOptions(cfg, log, nil)
	if err != nil {
		return nil, nil, cli.NewExitError(err, 1)
	}
	c, err := rpcclient.New(gctx, opts)
	if err != nil {
		return nil, nil, cli.NewExitError(err, 1)
	}
	return c, log, nil
}

// ClientOptions converts configuration into client options. Request metrics
// are registered with reg if it's not nil.
func ClientOptions(cfg config.Config, log *zap.Logger, reg prometheus.Registerer) (rpcclient.Options, error) {
	if len(cfg.Endpoints) == 0 {
		return rpcclient.Options{}, errNoEndpoint
	}
	check, err := rpcclient.ParseConnectionCheck(cfg.ConnectionCheck)
	if err != nil {
		return rpcclient.Options{}, err
	}
	params := rpcclient.ConnectionParams{
		BlockchainName:          cfg.Connection.BlockchainName,
		UseCallbacksForNetwork:  cfg.Connection.UseCallbacksForNetwork,
		IgnoreCache:             cfg.Connection.IgnoreCache,
		KeystoreDir:             cfg.Connection.KeystoreDir,
		NotificationQueueLength: cfg.Connection.NotificationQueueLength,
		ConcurrencyLimit:        cfg.Connection.ConcurrencyLimit,
	}
	if cfg.Connection.NetworkConfigFile != "" {
		data, err := os.ReadFile(cfg.Connection.NetworkConfigFile)
		if err != nil {
			return rpcclient.Options{}, fmt.Errorf("can't read network config: %w", err)
		}
		params.Config = string(data)
	}

	var callbacks []rpcclient.Callback
	if cfg.Connection.LogRequests {
		callbacks = append(callbacks, rpcclient.NewLoggingCallback(log))
	}
	if reg != nil {
		m, err := rpcclient.NewMetricsCallback(reg)
		if err != nil {
			return rpcclient.Options{}, fmt.Errorf("can't register metrics: %w", err)
		}
		callbacks = append(callbacks, m)
	}
	var callback rpcclient.Callback
	if len(callbacks) != 0 {
		callback = rpcclient.NewMultiCallback(callbacks...)
	}

	return rpcclient.Options{
		PoolSize: cfg.PoolSize,
		Params:   params,
		Retry: rpcclient.RetryStrategy{
			Interval:   cfg.Retry.Interval,
			MaxRetries: cfg.Retry.MaxRetries,
		},
		Check: check,
		Lazy:  cfg.Lazy,
		Connection: rpcclient.ConnectionOptions{
			Dialer: transport.NewWSRotatingDialer(cfg.Endpoints, transport.WSOptions{
				DialTimeout:    cfg.Connection.DialTimeout,
				ExecuteTimeout: cfg.Connection.ExecuteTimeout,
				Log:            log,
			}),
			Callback:           callback,
			Log:                log,
			MaxConnectAttempts: cfg.Connection.MaxConnectAttempts,
			PollTimeout:        cfg.Connection.PollTimeout,
		},
	}, nil
}

// FactoryOptions converts cache configuration into contract factory options
// for the given client.
func FactoryOptions(c *rpcclient.Client, cfg config.Cache, log *zap.Logger) contract.FactoryOptions {
	opts := contract.FactoryOptions{
		Libraries: library.NewProvider(library.NewBlockchainLoader(c), library.Options{
			Capacity: cfg.LibraryCapacity,
			TTL:      cfg.LibraryTTL,
			Log:      log,
		}),
		Log: log,
	}
	if cfg.Enabled {
		opts.Cache = &contract.CacheOptions{
			AccountStateCapacity: cfg.AccountStateCapacity,
			AccountStateTTL:      cfg.AccountStateTTL,
			TxIDCapacity:         cfg.TxIDCapacity,
			TxIDTTL:              cfg.TxIDTTL,
			PresyncBlocks:        cfg.PresyncBlocks,
			RetryInterval:        cfg.RetryInterval,
			PollInterval:         cfg.PollInterval,
			LoadTimeout:          cfg.LoadTimeout,
		}
	}
	return opts
}

// HandleLoggingParams reads logging parameters.
// If a user selected debug level -- function enables it.
// If logPath is configured -- function creates a dir and a file for logging.
func HandleLoggingParams(debug bool, cfg config.Logger) (*zap.Logger, *zap.AtomicLevel, func() error, error) {
	var (
		level = zapcore.InfoLevel
		err   error
	)
	if len(cfg.LogLevel) > 0 {
		level, err = zapcore.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("log setting: %w", err)
		}
	}
	if debug {
		level = zapcore.DebugLevel
	}

	cc := zap.NewProductionConfig()
	cc.DisableCaller = true
	cc.DisableStacktrace = true
	cc.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	cc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cc.Encoding = "console"
	if cfg.LogEncoding != "" {
		cc.Encoding = cfg.LogEncoding
	}
	cc.Level = zap.NewAtomicLevelAt(level)
	cc.Sampling = nil

	if logPath := cfg.LogPath; logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
			return nil, nil, nil, fmt.Errorf("could not create dir for logger: %w", err)
		}
		cc.OutputPaths = []string{logPath}
	}

	log, err := cc.Build()
	if err != nil {
		return nil, nil, nil, err
	}
	return log, &cc.Level, log.Sync, nil
}
