package wasm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ManifestFileName is the file a plugin directory must contain to be
// discovered.
const ManifestFileName = "manifest.yaml"

// Wildcard in a manifest primitive list declares support for every
// primitive in the catalog.
const Wildcard = "*"

// Manifest describes a compiled target adapter shipped as a WASM module.
// It is the unit of trust for out-of-tree adapters: the engine refuses to
// load a module whose manifest is incomplete or whose checksum does not
// match the module bytes.
type Manifest struct {
	Metadata   ManifestMetadata `yaml:"metadata"`
	Target     TargetSpec       `yaml:"target"`
	Entrypoint string           `yaml:"entrypoint"`
	Checksum   string           `yaml:"checksum,omitempty"`

	// path is the manifest file location, empty when parsed from bytes.
	path string
	// wasmPath is the resolved entrypoint location.
	wasmPath string
}

// ManifestMetadata identifies the plugin and its author.
type ManifestMetadata struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Author      string `yaml:"author"`
	License     string `yaml:"license"`
	Description string `yaml:"description,omitempty"`
}

// TargetSpec declares the compilation target the plugin provides.
type TargetSpec struct {
	// Name is the target name the plugin registers under.
	Name string `yaml:"name"`

	// Format is the artifact format the plugin emits, "json" when empty.
	Format string `yaml:"format,omitempty"`

	// Primitives lists the primitive IDs the plugin can compile.
	// A single "*" entry means all of them.
	Primitives []string `yaml:"primitives"`
}

// Path returns the manifest file location, empty when parsed from bytes.
func (m *Manifest) Path() string {
	return m.path
}

// WasmPath returns the resolved entrypoint location. It is only set after
// loading through a Loader.
func (m *Manifest) WasmPath() string {
	return m.wasmPath
}

// SupportsPrimitive reports whether the manifest declares the primitive.
func (m *Manifest) SupportsPrimitive(id string) bool {
	for _, p := range m.Target.Primitives {
		if p == Wildcard || p == id {
			return true
		}
	}
	return false
}

// Validate checks that every required manifest field is present.
func (m *Manifest) Validate() error {
	if m.Metadata.Name == "" {
		return fmt.Errorf("manifest metadata name is required")
	}
	if m.Metadata.Version == "" {
		return fmt.Errorf("manifest metadata version is required")
	}
	if m.Metadata.Author == "" {
		return fmt.Errorf("manifest metadata author is required")
	}
	if m.Metadata.License == "" {
		return fmt.Errorf("manifest metadata license is required")
	}
	if m.Target.Name == "" {
		return fmt.Errorf("manifest target name is required")
	}
	if len(m.Target.Primitives) == 0 {
		return fmt.Errorf("manifest target primitives list is required")
	}
	if m.Entrypoint == "" {
		return fmt.Errorf("manifest entrypoint is required")
	}
	return nil
}

// Loader reads and validates plugin manifests from disk.
type Loader struct {
	// baseDir is the fallback directory for resolving entrypoints that are
	// not found next to the manifest.
	baseDir string
}

// NewLoader creates a manifest loader with the given base directory.
func NewLoader(baseDir string) *Loader {
	return &Loader{baseDir: baseDir}
}

// Parse decodes and validates a manifest from raw YAML. The entrypoint is
// not resolved; use LoadFile for manifests backed by a plugin directory.
func (l *Loader) Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if m.Target.Format == "" {
		m.Target.Format = "json"
	}
	return &m, nil
}

// LoadFile reads a manifest from disk, validates it, and resolves the
// entrypoint to an existing WASM module file.
func (l *Loader) LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	m, err := l.Parse(data)
	if err != nil {
		return nil, err
	}
	m.path = path

	wasmPath, err := l.resolveEntrypoint(m.Entrypoint, filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	m.wasmPath = wasmPath

	return m, nil
}

// resolveEntrypoint locates the WASM module, first next to the manifest and
// then under the loader base directory.
func (l *Loader) resolveEntrypoint(entrypoint, manifestDir string) (string, error) {
	if filepath.IsAbs(entrypoint) {
		if _, err := os.Stat(entrypoint); err != nil {
			return "", fmt.Errorf("entrypoint %s not found: %w", entrypoint, err)
		}
		return entrypoint, nil
	}

	candidates := []string{filepath.Join(manifestDir, entrypoint)}
	if l.baseDir != "" && l.baseDir != manifestDir {
		candidates = append(candidates, filepath.Join(l.baseDir, entrypoint))
	}

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("entrypoint %s not found near %s", entrypoint, manifestDir)
}

// VerifyChecksum compares the manifest checksum against the module bytes.
// Manifests without a checksum pass; a stated checksum must match exactly.
func VerifyChecksum(m *Manifest, module []byte) error {
	if m.Checksum == "" {
		return nil
	}
	sum := sha256.Sum256(module)
	actual := hex.EncodeToString(sum[:])
	if actual != m.Checksum {
		return fmt.Errorf("checksum mismatch for %s: manifest says %s, module is %s",
			m.Metadata.Name, m.Checksum, actual)
	}
	return nil
}
