package config

import (
	"time"

	"github.com/vizi2000/maicrosoft/pkg/engine"
	"github.com/vizi2000/maicrosoft/pkg/publish"
	"github.com/vizi2000/maicrosoft/pkg/server"
	"github.com/vizi2000/maicrosoft/pkg/stores"
	"github.com/vizi2000/maicrosoft/pkg/telemetry"
)

// EngineOptions translates the tree into engine options.
func (c *Config) EngineOptions() engine.Options {
	return engine.Options{
		PrimitivesDir: c.Registry.PrimitivesDir,
		PolicyPaths:   c.Policies.Paths,
		PluginsDir:    c.Compiler.PluginsDir,
		MaxNodes:      c.Limits.MaxNodes,
		MaxEdges:      c.Limits.MaxEdges,
		DefaultTarget: c.Compiler.DefaultTarget,
	}
}

// StoreConfig translates the store section for stores.NewSQLiteStore.
func (c *Config) StoreConfig() stores.Config {
	return stores.Config{
		Path:            c.Store.Path,
		MaxOpenConns:    c.Store.MaxOpenConns,
		MaxIdleConns:    c.Store.MaxIdleConns,
		ConnMaxLifetime: c.Store.ConnMaxLifetime.Std(),
	}
}

// Retention returns the submission retention window, or zero when
// retention pruning is off.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Store.RetentionDays) * 24 * time.Hour
}

// ServerConfig translates the server section for server.New.
func (c *Config) ServerConfig() server.Config {
	return server.Config{
		ListenAddress:   c.Server.ListenAddress,
		MaxBodyBytes:    c.Server.MaxBodyBytes,
		ReadTimeout:     c.Server.ReadTimeout.Std(),
		WriteTimeout:    c.Server.WriteTimeout.Std(),
		IdleTimeout:     c.Server.IdleTimeout.Std(),
		ShutdownTimeout: c.Server.ShutdownTimeout.Std(),
		HistoryPageSize: c.Server.HistoryPageSize,
	}
}

// TelemetryConfig translates the telemetry section for telemetry.NewTelemetry.
// It starts from the telemetry package defaults so fields this tree does not
// expose (sampling, batch sizes, histogram buckets) keep sensible values.
func (c *Config) TelemetryConfig() *telemetry.Config {
	out := telemetry.DefaultConfig()
	out.ServiceName = c.Telemetry.ServiceName
	out.Environment = c.Telemetry.Environment

	out.Logging.Level = c.Telemetry.Logging.Level
	out.Logging.Format = c.Telemetry.Logging.Format
	out.Logging.Output = c.Telemetry.Logging.Output

	out.Metrics.Enabled = c.Telemetry.Metrics.Enabled
	out.Metrics.ListenAddress = c.Telemetry.Metrics.ListenAddress
	out.Metrics.Path = c.Telemetry.Metrics.Path

	out.Tracing.Enabled = c.Telemetry.Tracing.Enabled
	out.Tracing.Exporter = c.Telemetry.Tracing.Exporter
	out.Tracing.Endpoint = c.Telemetry.Tracing.Endpoint
	out.Tracing.SamplingRate = c.Telemetry.Tracing.SamplingRate
	out.Tracing.Insecure = c.Telemetry.Tracing.Insecure

	out.Events.Enabled = c.Telemetry.Events.Enabled
	if c.Telemetry.Events.BufferSize > 0 {
		out.Events.BufferSize = c.Telemetry.Events.BufferSize
	}

	return out
}

// PublishSFTPConfig translates the publish section for publish.NewSFTPTransport.
// Only meaningful when Transport is "sftp"; password material is supplied by
// the caller, never from the file.
func (c *Config) PublishSFTPConfig() *publish.Config {
	out := publish.DefaultConfig(c.Publish.Host, c.Publish.User)
	if c.Publish.Port != 0 {
		out.Port = c.Publish.Port
	}
	if c.Publish.RemoteDir != "" {
		out.RemoteDir = c.Publish.RemoteDir
	}
	if c.Publish.AuthMethod != "" {
		out.AuthMethod = publish.AuthMethod(c.Publish.AuthMethod)
	}
	out.PrivateKeyPath = c.Publish.PrivateKeyPath
	out.KnownHostsPath = c.Publish.KnownHostsPath
	out.StrictHostKeyChecking = c.Publish.StrictHostKeyChecking
	if d := c.Publish.ConnectionTimeout.Std(); d > 0 {
		out.ConnectionTimeout = d
	}
	return out
}
