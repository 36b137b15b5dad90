package wasm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/vizi2000/maicrosoft/pkg/targets"
)

// Host discovers plugin directories, loads their modules, and owns the
// lifecycle of every plugin it produced.
type Host struct {
	config  *Config
	logger  zerolog.Logger
	plugins []*Plugin
}

// NewHost creates a plugin host. A nil config uses DefaultConfig.
func NewHost(config *Config, logger zerolog.Logger) *Host {
	if config == nil {
		config = DefaultConfig()
	}
	return &Host{
		config: config,
		logger: logger.With().Str("component", "wasm").Logger(),
	}
}

// Load reads one plugin from its manifest path: the manifest is validated,
// the module bytes are read from the resolved entrypoint, and the checksum
// is verified when the manifest states one.
func (h *Host) Load(manifestPath string) (*Plugin, error) {
	loader := NewLoader(filepath.Dir(manifestPath))
	manifest, err := loader.LoadFile(manifestPath)
	if err != nil {
		return nil, err
	}

	wasmModule, err := os.ReadFile(manifest.WasmPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read module for %s: %w", manifest.Metadata.Name, err)
	}
	if err := VerifyChecksum(manifest, wasmModule); err != nil {
		return nil, err
	}

	plugin := NewPlugin(manifest, wasmModule, h.config, h.logger)
	h.plugins = append(h.plugins, plugin)

	h.logger.Info().
		Str("plugin", manifest.Metadata.Name).
		Str("version", manifest.Metadata.Version).
		Str("target", manifest.Target.Name).
		Msg("Loaded target plugin")
	return plugin, nil
}

// Discover loads every plugin under dir. Each immediate subdirectory holding
// a manifest.yaml is one plugin; anything else is skipped. A missing dir
// yields no plugins, so a deployment without plugins needs no configuration.
func (h *Host) Discover(dir string) ([]*Plugin, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan plugin directory %s: %w", dir, err)
	}

	var plugins []*Plugin
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		manifestPath := filepath.Join(dir, entry.Name(), ManifestFileName)
		if _, err := os.Stat(manifestPath); err != nil {
			continue
		}
		plugin, err := h.Load(manifestPath)
		if err != nil {
			return nil, fmt.Errorf("plugin %s: %w", entry.Name(), err)
		}
		plugins = append(plugins, plugin)
	}
	return plugins, nil
}

// RegisterAll registers every loaded plugin with the target registry.
func (h *Host) RegisterAll(reg *targets.Registry) error {
	for _, plugin := range h.plugins {
		if err := reg.Register(plugin); err != nil {
			return err
		}
	}
	return nil
}

// Plugins returns every plugin the host has loaded.
func (h *Host) Plugins() []*Plugin {
	return h.plugins
}

// Close releases every loaded plugin. The first error wins, but every
// plugin is still closed.
func (h *Host) Close(ctx context.Context) error {
	var firstErr error
	for _, plugin := range h.plugins {
		if err := plugin.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	h.plugins = nil
	return firstErr
}
