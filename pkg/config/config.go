package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values are written as duration
// strings ("30s", "5m") instead of bare nanosecond counts.
type Duration time.Duration

// UnmarshalYAML parses a duration string. Values without a unit are
// rejected.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string such as \"30s\": %w", err)
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}

	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in its string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the root of the tool configuration tree. DefaultConfig returns
// a fully populated instance; Load merges a YAML file over those defaults.
type Config struct {
	Registry  RegistrySettings  `yaml:"registry"`
	Policies  PolicySettings    `yaml:"policies"`
	Limits    LimitSettings     `yaml:"limits"`
	Compiler  CompilerSettings  `yaml:"compiler"`
	Store     StoreSettings     `yaml:"store"`
	Server    ServerSettings    `yaml:"server"`
	Telemetry TelemetrySettings `yaml:"telemetry"`
	Compose   ComposeSettings   `yaml:"compose"`
	Publish   PublishSettings   `yaml:"publish"`
}

// RegistrySettings controls where primitive definitions come from.
type RegistrySettings struct {
	// PrimitivesDir points at a directory of primitive definition files.
	// Empty means the embedded built-in catalog.
	PrimitivesDir string `yaml:"primitives_dir"`

	// Watch reloads the catalog when files under PrimitivesDir change.
	Watch bool `yaml:"watch"`
}

// PolicySettings controls the policy stage of validation.
type PolicySettings struct {
	// Paths lists directories or files with additional Rego policies,
	// loaded on top of the built-in set.
	Paths []string `yaml:"paths"`

	// Disabled names built-in or loaded policies to skip.
	Disabled []string `yaml:"disabled"`
}

// LimitSettings bounds accepted plan graphs.
type LimitSettings struct {
	MaxNodes int `yaml:"max_nodes" validate:"gte=0"`
	MaxEdges int `yaml:"max_edges" validate:"gte=0"`
}

// CompilerSettings controls compilation defaults.
type CompilerSettings struct {
	// DefaultTarget is used when a request names no target.
	DefaultTarget string `yaml:"default_target" validate:"required"`

	// PluginsDir points at a directory of WASM target adapters. Empty
	// disables plugin loading.
	PluginsDir string `yaml:"plugins_dir"`
}

// StoreSettings controls the submission history store.
type StoreSettings struct {
	// Enabled turns history recording on. The CLI validates without a
	// store; the server records submissions when one is configured.
	Enabled bool `yaml:"enabled"`

	// Path is the SQLite database file.
	Path string `yaml:"path" validate:"required_if=Enabled true"`

	MaxOpenConns    int      `yaml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int      `yaml:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime" validate:"gte=0"`

	// RetentionDays prunes submissions older than this many days while
	// the server runs. Zero keeps everything.
	RetentionDays int `yaml:"retention_days" validate:"gte=0"`
}

// ServerSettings controls the HTTP API.
type ServerSettings struct {
	ListenAddress   string   `yaml:"listen_address" validate:"required"`
	MaxBodyBytes    int64    `yaml:"max_body_bytes" validate:"gt=0"`
	ReadTimeout     Duration `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout    Duration `yaml:"write_timeout" validate:"gte=0"`
	IdleTimeout     Duration `yaml:"idle_timeout" validate:"gte=0"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout" validate:"gte=0"`

	// HistoryPageSize is the default page size for the history endpoint.
	HistoryPageSize int `yaml:"history_page_size" validate:"gt=0"`
}

// TelemetrySettings selects logging, metrics, tracing and event output.
type TelemetrySettings struct {
	ServiceName string `yaml:"service_name" validate:"required"`
	Environment string `yaml:"environment" validate:"required,oneof=development staging production"`

	Logging LoggingSettings `yaml:"logging"`
	Metrics MetricsSettings `yaml:"metrics"`
	Tracing TracingSettings `yaml:"tracing"`
	Events  EventsSettings  `yaml:"events"`
}

// LoggingSettings controls the zerolog output.
type LoggingSettings struct {
	Level  string `yaml:"level" validate:"required,oneof=trace debug info warn error fatal"`
	Format string `yaml:"format" validate:"required,oneof=console json"`
	Output string `yaml:"output" validate:"required"`
}

// MetricsSettings controls the Prometheus endpoint.
type MetricsSettings struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address" validate:"required_if=Enabled true"`
	Path          string `yaml:"path" validate:"required_if=Enabled true"`
}

// TracingSettings controls OpenTelemetry trace export.
type TracingSettings struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter" validate:"omitempty,oneof=otlp stdout none"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate" validate:"gte=0,lte=1"`
	Insecure     bool    `yaml:"insecure"`
}

// EventsSettings controls the structured event stream.
type EventsSettings struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size" validate:"gte=0"`
}

// ComposeSettings bounds Starlark composition scripts.
type ComposeSettings struct {
	// Timeout aborts scripts that run longer than this.
	Timeout Duration `yaml:"timeout" validate:"gt=0"`
}

// PublishSettings controls artifact publishing.
type PublishSettings struct {
	// Transport selects where artifacts go: "local" writes into
	// Directory, "sftp" uploads to Host.
	Transport string `yaml:"transport" validate:"required,oneof=local sftp"`

	// Directory receives artifacts for the local transport.
	Directory string `yaml:"directory" validate:"required_if=Transport local"`

	Host string `yaml:"host" validate:"required_if=Transport sftp"`
	Port int    `yaml:"port" validate:"gte=0,lte=65535"`
	User string `yaml:"user" validate:"required_if=Transport sftp"`

	// RemoteDir is the upload directory on the SFTP host.
	RemoteDir string `yaml:"remote_dir"`

	// AuthMethod is "key" or "password". Passwords are never read from
	// this file; the caller supplies them from the environment.
	AuthMethod string `yaml:"auth_method" validate:"omitempty,oneof=password key"`

	PrivateKeyPath        string   `yaml:"private_key_path"`
	KnownHostsPath        string   `yaml:"known_hosts_path"`
	StrictHostKeyChecking bool     `yaml:"strict_host_key_checking"`
	ConnectionTimeout     Duration `yaml:"connection_timeout" validate:"gte=0"`
}

// DefaultConfig returns the configuration used when no file is given.
// Every subsystem default here matches the default that subsystem applies
// on its own, so a config file is never required.
func DefaultConfig() *Config {
	return &Config{
		Registry: RegistrySettings{},
		Policies: PolicySettings{},
		Limits: LimitSettings{
			MaxNodes: 200,
			MaxEdges: 500,
		},
		Compiler: CompilerSettings{
			DefaultTarget: "n8n",
		},
		Store: StoreSettings{
			Enabled:         false,
			Path:            "maicrosoft.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: Duration(5 * time.Minute),
		},
		Server: ServerSettings{
			ListenAddress:   "127.0.0.1:8080",
			MaxBodyBytes:    1 << 20,
			ReadTimeout:     Duration(10 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			IdleTimeout:     Duration(60 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
			HistoryPageSize: 50,
		},
		Telemetry: TelemetrySettings{
			ServiceName: "maicrosoft",
			Environment: "development",
			Logging: LoggingSettings{
				Level:  "info",
				Format: "console",
				Output: "stderr",
			},
			Metrics: MetricsSettings{
				Enabled:       true,
				ListenAddress: ":9090",
				Path:          "/metrics",
			},
			Tracing: TracingSettings{
				Enabled:      false,
				Exporter:     "none",
				SamplingRate: 1.0,
				Insecure:     true,
			},
			Events: EventsSettings{
				Enabled:    true,
				BufferSize: 1000,
			},
		},
		Compose: ComposeSettings{
			Timeout: Duration(30 * time.Second),
		},
		Publish: PublishSettings{
			Transport:             "local",
			Directory:             "artifacts",
			Port:                  22,
			RemoteDir:             "artifacts",
			AuthMethod:            "key",
			StrictHostKeyChecking: true,
			ConnectionTimeout:     Duration(30 * time.Second),
		},
	}
}

var structValidator = validator.New()

// Validate checks the configuration tree. It is called by Load; callers
// building a Config programmatically should call it themselves.
func (c *Config) Validate() error {
	if err := structValidator.Struct(c); err != nil {
		return fmt.Errorf("configuration failed validation: %w", err)
	}

	if c.Telemetry.Tracing.Enabled && c.Telemetry.Tracing.Exporter == "otlp" && c.Telemetry.Tracing.Endpoint == "" {
		return fmt.Errorf("telemetry.tracing.endpoint is required when the otlp exporter is enabled")
	}

	if c.Publish.Transport == "sftp" && c.Publish.AuthMethod == "key" && c.Publish.PrivateKeyPath == "" {
		return fmt.Errorf("publish.private_key_path is required for key authentication")
	}

	return nil
}
