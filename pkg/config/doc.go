// Package config loads and validates the tool configuration shared by the
// maicrosoft CLI and server.
//
// Configuration lives in a single YAML file. Every field has a working
// default, so an empty file (or no file at all) yields a usable setup that
// validates plans against the built-in catalog and compiles for the default
// target. A populated file overrides only the keys it names; everything else
// keeps its default.
//
// # File format
//
//	registry:
//	  primitives_dir: ./primitives
//	  watch: true
//
//	policies:
//	  paths:
//	    - ./policies
//	  disabled:
//	    - node-budget
//
//	limits:
//	  max_nodes: 200
//	  max_edges: 500
//
//	compiler:
//	  default_target: n8n
//	  plugins_dir: ./plugins
//
//	store:
//	  enabled: true
//	  path: ./maicrosoft.db
//	  retention_days: 30
//
//	server:
//	  listen_address: 127.0.0.1:8080
//	  max_body_bytes: 1048576
//	  read_timeout: 10s
//
//	telemetry:
//	  logging:
//	    level: info
//	    format: console
//	  metrics:
//	    enabled: true
//	    listen_address: ":9090"
//	  tracing:
//	    enabled: false
//	    exporter: none
//
//	compose:
//	  timeout: 30s
//
//	publish:
//	  transport: local
//	  directory: ./artifacts
//
// Durations are written as Go duration strings ("30s", "5m"). Bare numbers
// are rejected so a unit is always explicit.
//
// # Loading
//
//	cfg, err := config.Load("maicrosoft.yaml")
//	if err != nil {
//		return err
//	}
//	eng, err := engine.New(ctx, cfg.EngineOptions(), logger)
//
// Load merges the file over DefaultConfig and validates the result. The
// converter methods (EngineOptions, StoreConfig, ServerConfig,
// TelemetryConfig, PublishSFTPConfig) translate the validated tree into the
// option structs each subsystem consumes, so callers never assemble those
// by hand.
//
// Secrets are deliberately absent from the file format. SFTP password
// authentication reads the password from the environment at the call site
// rather than from disk.
package config
