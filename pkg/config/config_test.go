package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "maicrosoft.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Expected default config to validate, got: %v", err)
	}

	if cfg.Compiler.DefaultTarget != "n8n" {
		t.Errorf("Expected default target n8n, got %s", cfg.Compiler.DefaultTarget)
	}
	if cfg.Limits.MaxNodes != 200 || cfg.Limits.MaxEdges != 500 {
		t.Errorf("Expected limits 200/500, got %d/%d", cfg.Limits.MaxNodes, cfg.Limits.MaxEdges)
	}
	if cfg.Store.Enabled {
		t.Error("Expected store disabled by default")
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfigFile(t, `
registry:
  primitives_dir: ./primitives
  watch: true

limits:
  max_nodes: 100

store:
  enabled: true
  retention_days: 30

telemetry:
  logging:
    level: debug

compose:
  timeout: 5s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.Registry.PrimitivesDir != "./primitives" {
		t.Errorf("Expected primitives dir ./primitives, got %s", cfg.Registry.PrimitivesDir)
	}
	if !cfg.Registry.Watch {
		t.Error("Expected watch enabled")
	}
	if cfg.Limits.MaxNodes != 100 {
		t.Errorf("Expected max_nodes 100, got %d", cfg.Limits.MaxNodes)
	}
	if cfg.Limits.MaxEdges != 500 {
		t.Errorf("Expected max_edges to keep its default 500, got %d", cfg.Limits.MaxEdges)
	}
	if !cfg.Store.Enabled {
		t.Error("Expected store enabled")
	}
	if cfg.Store.Path != "maicrosoft.db" {
		t.Errorf("Expected store path to keep its default, got %s", cfg.Store.Path)
	}
	if cfg.Store.RetentionDays != 30 {
		t.Errorf("Expected retention_days 30, got %d", cfg.Store.RetentionDays)
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("Expected log level debug, got %s", cfg.Telemetry.Logging.Level)
	}
	if cfg.Telemetry.Logging.Format != "console" {
		t.Errorf("Expected log format to keep its default, got %s", cfg.Telemetry.Logging.Format)
	}
	if cfg.Compose.Timeout.Std() != 5*time.Second {
		t.Errorf("Expected compose timeout 5s, got %v", cfg.Compose.Timeout.Std())
	}
	if cfg.Server.ListenAddress != "127.0.0.1:8080" {
		t.Errorf("Expected server address to keep its default, got %s", cfg.Server.ListenAddress)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{
			name: "bad log level",
			content: `
telemetry:
  logging:
    level: verbose
`,
		},
		{
			name: "bad log format",
			content: `
telemetry:
  logging:
    format: xml
`,
		},
		{
			name: "bad transport",
			content: `
publish:
  transport: ftp
`,
		},
		{
			name: "store enabled without path",
			content: `
store:
  enabled: true
  path: ""
`,
		},
		{
			name: "otlp without endpoint",
			content: `
telemetry:
  tracing:
    enabled: true
    exporter: otlp
`,
		},
		{
			name: "sftp key auth without key path",
			content: `
publish:
  transport: sftp
  host: artifacts.example.com
  user: deploy
`,
		},
		{
			name: "duration without unit",
			content: `
compose:
  timeout: 30
`,
		},
		{
			name: "negative body limit",
			content: `
server:
  max_body_bytes: -1
`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfigFile(t, tc.content)
			if _, err := Load(path); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected error for missing file, got nil")
	}
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault("")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.Server.ListenAddress != "127.0.0.1:8080" {
		t.Errorf("Expected default server address, got %s", cfg.Server.ListenAddress)
	}

	if _, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for named missing file, got nil")
	}
}

func TestDurationStrings(t *testing.T) {
	var out struct {
		Timeout Duration `yaml:"timeout"`
	}

	if err := yaml.Unmarshal([]byte("timeout: 250ms\n"), &out); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if out.Timeout.Std() != 250*time.Millisecond {
		t.Errorf("Expected 250ms, got %v", out.Timeout.Std())
	}

	if err := yaml.Unmarshal([]byte("timeout: fast\n"), &out); err == nil {
		t.Error("Expected error for unparseable duration, got nil")
	}

	data, err := yaml.Marshal(map[string]Duration{"timeout": Duration(90 * time.Second)})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if string(data) != "timeout: 1m30s\n" {
		t.Errorf("Expected marshaled duration string, got %q", string(data))
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.ListenAddress = "127.0.0.1:9999"
	cfg.Compose.Timeout = Duration(5 * time.Second)
	cfg.Policies.Disabled = []string{"node-budget"}

	path := filepath.Join(t.TempDir(), "saved.yaml")
	if err := cfg.Save(path); err != nil {
		t.Fatalf("failed to save config: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load saved config: %v", err)
	}

	if loaded.Server.ListenAddress != "127.0.0.1:9999" {
		t.Errorf("Expected saved server address, got %s", loaded.Server.ListenAddress)
	}
	if loaded.Compose.Timeout.Std() != 5*time.Second {
		t.Errorf("Expected saved compose timeout, got %v", loaded.Compose.Timeout.Std())
	}
	if len(loaded.Policies.Disabled) != 1 || loaded.Policies.Disabled[0] != "node-budget" {
		t.Errorf("Expected saved disabled policies, got %v", loaded.Policies.Disabled)
	}
}

func TestEngineOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Registry.PrimitivesDir = "./primitives"
	cfg.Policies.Paths = []string{"./policies"}
	cfg.Compiler.PluginsDir = "./plugins"

	opts := cfg.EngineOptions()
	if opts.PrimitivesDir != "./primitives" {
		t.Errorf("Expected primitives dir, got %s", opts.PrimitivesDir)
	}
	if len(opts.PolicyPaths) != 1 || opts.PolicyPaths[0] != "./policies" {
		t.Errorf("Expected policy paths, got %v", opts.PolicyPaths)
	}
	if opts.PluginsDir != "./plugins" {
		t.Errorf("Expected plugins dir, got %s", opts.PluginsDir)
	}
	if opts.MaxNodes != 200 || opts.MaxEdges != 500 {
		t.Errorf("Expected limits 200/500, got %d/%d", opts.MaxNodes, opts.MaxEdges)
	}
	if opts.DefaultTarget != "n8n" {
		t.Errorf("Expected default target n8n, got %s", opts.DefaultTarget)
	}
}

func TestStoreConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.Path = "/tmp/history.db"

	sc := cfg.StoreConfig()
	if sc.Path != "/tmp/history.db" {
		t.Errorf("Expected store path, got %s", sc.Path)
	}
	if sc.MaxOpenConns != 25 || sc.MaxIdleConns != 5 {
		t.Errorf("Expected conn defaults 25/5, got %d/%d", sc.MaxOpenConns, sc.MaxIdleConns)
	}
	if sc.ConnMaxLifetime != 5*time.Minute {
		t.Errorf("Expected conn lifetime 5m, got %v", sc.ConnMaxLifetime)
	}

	cfg.Store.RetentionDays = 7
	if cfg.Retention() != 7*24*time.Hour {
		t.Errorf("Expected 7 day retention, got %v", cfg.Retention())
	}
}

func TestServerConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.MaxBodyBytes = 2048
	cfg.Server.ReadTimeout = Duration(3 * time.Second)

	sc := cfg.ServerConfig()
	if sc.ListenAddress != "127.0.0.1:8080" {
		t.Errorf("Expected listen address, got %s", sc.ListenAddress)
	}
	if sc.MaxBodyBytes != 2048 {
		t.Errorf("Expected body limit 2048, got %d", sc.MaxBodyBytes)
	}
	if sc.ReadTimeout != 3*time.Second {
		t.Errorf("Expected read timeout 3s, got %v", sc.ReadTimeout)
	}
	if sc.HistoryPageSize != 50 {
		t.Errorf("Expected history page size 50, got %d", sc.HistoryPageSize)
	}
}

func TestTelemetryConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Telemetry.ServiceName = "maicrosoft-test"
	cfg.Telemetry.Logging.Level = "warn"
	cfg.Telemetry.Logging.Format = "json"
	cfg.Telemetry.Metrics.Enabled = false
	cfg.Telemetry.Tracing.Enabled = true
	cfg.Telemetry.Tracing.Exporter = "stdout"

	tc := cfg.TelemetryConfig()
	if tc.ServiceName != "maicrosoft-test" {
		t.Errorf("Expected service name, got %s", tc.ServiceName)
	}
	if tc.Logging.Level != "warn" || tc.Logging.Format != "json" {
		t.Errorf("Expected logging warn/json, got %s/%s", tc.Logging.Level, tc.Logging.Format)
	}
	if tc.Metrics.Enabled {
		t.Error("Expected metrics disabled")
	}
	if !tc.Tracing.Enabled || tc.Tracing.Exporter != "stdout" {
		t.Errorf("Expected stdout tracing, got %v/%s", tc.Tracing.Enabled, tc.Tracing.Exporter)
	}
	if tc.Metrics.Namespace == "" {
		t.Error("Expected metrics namespace to keep its package default")
	}
}

func TestPublishSFTPConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Publish.Transport = "sftp"
	cfg.Publish.Host = "artifacts.example.com"
	cfg.Publish.User = "deploy"
	cfg.Publish.Port = 2222
	cfg.Publish.RemoteDir = "/srv/artifacts"
	cfg.Publish.PrivateKeyPath = "/home/deploy/.ssh/id_ed25519"

	pc := cfg.PublishSFTPConfig()
	if pc.Host != "artifacts.example.com" || pc.User != "deploy" {
		t.Errorf("Expected host/user mapping, got %s/%s", pc.Host, pc.User)
	}
	if pc.Port != 2222 {
		t.Errorf("Expected port 2222, got %d", pc.Port)
	}
	if pc.RemoteDir != "/srv/artifacts" {
		t.Errorf("Expected remote dir, got %s", pc.RemoteDir)
	}
	if pc.PrivateKeyPath != "/home/deploy/.ssh/id_ed25519" {
		t.Errorf("Expected key path, got %s", pc.PrivateKeyPath)
	}
	if !pc.StrictHostKeyChecking {
		t.Error("Expected strict host key checking on")
	}
}
