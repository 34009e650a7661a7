package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Version is the version of the client, set at build time.
var Version string

const (
	// DefaultPoolSize is the default number of node connections.
	DefaultPoolSize = 1
	// DefaultLogLevel is used when Logger.LogLevel is empty.
	DefaultLogLevel = "info"
)

// Config is the top level client configuration.
type Config struct {
	// Endpoints are node addresses, connections pick them in turn.
	Endpoints []string `yaml:"Endpoints"`
	PoolSize  int      `yaml:"PoolSize"`
	// ConnectionCheck is one of "none", "health" or "archive".
	ConnectionCheck string       `yaml:"ConnectionCheck"`
	Lazy            bool         `yaml:"Lazy"`
	Connection      Connection   `yaml:"Connection"`
	Retry           Retry        `yaml:"Retry"`
	Cache           Cache        `yaml:"Cache"`
	Logger          Logger       `yaml:"Logger"`
	Prometheus      BasicService `yaml:"Prometheus"`
	Pprof           BasicService `yaml:"Pprof"`
}

// Connection contains per-connection settings.
type Connection struct {
	// NetworkConfigFile is a path to the node network config (JSON).
	NetworkConfigFile       string        `yaml:"NetworkConfigFile"`
	BlockchainName          string        `yaml:"BlockchainName"`
	UseCallbacksForNetwork  bool          `yaml:"UseCallbacksForNetwork"`
	IgnoreCache             bool          `yaml:"IgnoreCache"`
	KeystoreDir             string        `yaml:"KeystoreDir"`
	NotificationQueueLength int           `yaml:"NotificationQueueLength"`
	ConcurrencyLimit        int           `yaml:"ConcurrencyLimit"`
	MaxConnectAttempts      int           `yaml:"MaxConnectAttempts"`
	PollTimeout             time.Duration `yaml:"PollTimeout"`
	DialTimeout             time.Duration `yaml:"DialTimeout"`
	ExecuteTimeout          time.Duration `yaml:"ExecuteTimeout"`
	// LogRequests enables per-request debug logging.
	LogRequests bool `yaml:"LogRequests"`
}

// Retry is the overload retry policy of the pool.
type Retry struct {
	Interval   time.Duration `yaml:"Interval"`
	MaxRetries int           `yaml:"MaxRetries"`
}

// Cache contains contract factory cache settings. Zero values mean library
// defaults.
type Cache struct {
	Enabled              bool          `yaml:"Enabled"`
	AccountStateCapacity int           `yaml:"AccountStateCapacity"`
	AccountStateTTL      time.Duration `yaml:"AccountStateTTL"`
	TxIDCapacity         int           `yaml:"TxIDCapacity"`
	TxIDTTL              time.Duration `yaml:"TxIDTTL"`
	PresyncBlocks        int32         `yaml:"PresyncBlocks"`
	RetryInterval        time.Duration `yaml:"RetryInterval"`
	PollInterval         time.Duration `yaml:"PollInterval"`
	LoadTimeout          time.Duration `yaml:"LoadTimeout"`
	LibraryCapacity      int           `yaml:"LibraryCapacity"`
	LibraryTTL           time.Duration `yaml:"LibraryTTL"`
}

// Logger contains logging settings.
type Logger struct {
	LogLevel string `yaml:"LogLevel"`
	// LogPath is a file to write logs to, stderr is used if it's empty.
	LogPath string `yaml:"LogPath"`
	// LogEncoding is "console" (default) or "json".
	LogEncoding string `yaml:"LogEncoding"`
}

// Default returns configuration with all defaults set explicitly.
func Default() Config {
	return Config{
		PoolSize:        DefaultPoolSize,
		ConnectionCheck: "none",
		Connection: Connection{
			NotificationQueueLength: 10000,
			ConcurrencyLimit:        100,
			PollTimeout:             time.Second,
			DialTimeout:             5 * time.Second,
			ExecuteTimeout:          10 * time.Second,
		},
		Retry: Retry{
			Interval:   5 * time.Millisecond,
			MaxRetries: 10,
		},
		Logger: Logger{
			LogLevel:    DefaultLogLevel,
			LogEncoding: "console",
		},
	}
}

// LoadFile loads configuration from the given YAML file, unset fields keep
// their Default values.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("unable to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration over Default and validates it. Unknown
// fields are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks configuration consistency.
func (c Config) Validate() error {
	if c.PoolSize < 0 {
		return fmt.Errorf("negative PoolSize %d", c.PoolSize)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("negative Retry.MaxRetries %d", c.Retry.MaxRetries)
	}
	switch c.Logger.LogEncoding {
	case "", "console", "json":
	default:
		return fmt.Errorf("unknown Logger.LogEncoding %q", c.Logger.LogEncoding)
	}
	if c.Prometheus.Enabled && len(c.Prometheus.Addresses) == 0 {
		return errors.New("prometheus service is enabled without Addresses")
	}
	if c.Pprof.Enabled && len(c.Pprof.Addresses) == 0 {
		return errors.New("pprof service is enabled without Addresses")
	}
	return nil
}
