// Package wasm loads out-of-tree target adapters compiled to WebAssembly.
//
// A plugin is a directory holding a manifest.yaml and a WASM module. The
// manifest names the target, the primitives it can compile, and the module
// entrypoint; the module exports a single compile function behind a small
// byte-oriented ABI:
//
//	malloc(size u32) -> u32
//	free(ptr u32, size u32)
//	compile_plan(input_ptr u32, input_len u32) -> u64
//
// The input is the plan document as JSON. The return value packs the output
// location as (ptr << 32) | len; the output is a JSON envelope with either a
// "content" field carrying the compiled workflow or an "error" field. Modules
// run under a no-capability runtime: WASI is instantiated so compiled
// languages link, but no host functions are registered, so a plugin can
// compute and nothing else.
package wasm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/vizi2000/maicrosoft/pkg/plan"
	"github.com/vizi2000/maicrosoft/pkg/registry"
	"github.com/vizi2000/maicrosoft/pkg/targets"
)

// compileFunction is the export every plugin module must provide.
const compileFunction = "compile_plan"

// Config controls the runtime each plugin module executes under.
type Config struct {
	// MemoryLimitPages caps module memory in 64KiB pages.
	MemoryLimitPages uint32

	// CompileTimeout bounds a single compile call.
	CompileTimeout time.Duration
}

// DefaultConfig returns the default plugin runtime limits: 4MiB of memory
// and ten seconds per compile call.
func DefaultConfig() *Config {
	return &Config{
		MemoryLimitPages: 64,
		CompileTimeout:   10 * time.Second,
	}
}

// compileResponse is the envelope a plugin writes back from compile_plan.
type compileResponse struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

// Plugin is a WASM-backed compilation target. It satisfies the same target
// contract as the built-in adapters, so a registered plugin is
// indistinguishable from in-tree code to the rest of the engine.
//
// The module is instantiated lazily on the first compile call and its
// memory is single-threaded, so calls are serialized.
type Plugin struct {
	manifest   *Manifest
	wasmModule []byte
	config     *Config
	logger     zerolog.Logger

	mu      sync.Mutex
	runtime wazero.Runtime
	module  api.Module
	malloc  api.Function
	free    api.Function
	compile api.Function
	loaded  bool
	closed  bool
}

// NewPlugin wraps a validated manifest and its module bytes. The module is
// not instantiated until the first compile call.
func NewPlugin(manifest *Manifest, wasmModule []byte, config *Config, logger zerolog.Logger) *Plugin {
	if config == nil {
		config = DefaultConfig()
	}
	return &Plugin{
		manifest:   manifest,
		wasmModule: wasmModule,
		config:     config,
		logger: logger.With().
			Str("component", "wasm").
			Str("plugin", manifest.Metadata.Name).
			Logger(),
	}
}

// Name returns the target name the plugin registers under.
func (p *Plugin) Name() string {
	return p.manifest.Target.Name
}

// Manifest returns the plugin manifest.
func (p *Plugin) Manifest() *Manifest {
	return p.manifest
}

// Supports reports whether the manifest declares the primitive.
func (p *Plugin) Supports(prim *registry.Primitive) bool {
	if prim == nil {
		return false
	}
	return p.manifest.SupportsPrimitive(prim.ID())
}

// Compile marshals the plan to JSON, hands it to the module, and wraps the
// returned workflow in an artifact.
func (p *Plugin) Compile(ctx context.Context, pl *plan.Plan) (*targets.Artifact, error) {
	doc, err := json.Marshal(pl)
	if err != nil {
		return nil, fmt.Errorf("failed to encode plan for plugin %s: %w", p.Name(), err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, p.config.CompileTimeout)
	defer cancel()

	start := time.Now()
	raw, err := p.call(callCtx, doc)
	if err != nil {
		return nil, fmt.Errorf("plugin %s: %w", p.Name(), err)
	}

	var resp compileResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &targets.ContractError{
			Target: p.Name(),
			Reason: fmt.Sprintf("plugin returned malformed output: %v", err),
		}
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("plugin %s: compile failed: %s", p.Name(), resp.Error)
	}
	if resp.Content == "" {
		return nil, &targets.ContractError{
			Target: p.Name(),
			Reason: "plugin returned neither content nor an error",
		}
	}

	p.logger.Debug().
		Str("plan", pl.Metadata.ID).
		Dur("duration", time.Since(start)).
		Int("bytes", len(resp.Content)).
		Msg("Plugin compile complete")

	return targets.NewArtifact(p.Name(), pl, p.manifest.Target.Format, []byte(resp.Content)), nil
}

// Close releases the module and its runtime. The plugin cannot be used
// afterwards.
func (p *Plugin) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || !p.loaded {
		p.closed = true
		return nil
	}
	p.closed = true

	var firstErr error
	if p.module != nil {
		if err := p.module.Close(ctx); err != nil {
			firstErr = fmt.Errorf("failed to close module: %w", err)
		}
	}
	if p.runtime != nil {
		if err := p.runtime.Close(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close runtime: %w", err)
		}
	}
	return firstErr
}

// ensureLoaded instantiates the runtime and module on first use.
// Callers hold p.mu.
func (p *Plugin) ensureLoaded(ctx context.Context) error {
	if p.closed {
		return fmt.Errorf("plugin %s is closed", p.Name())
	}
	if p.loaded {
		return nil
	}

	runtimeConfig := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(p.config.MemoryLimitPages).
		WithCloseOnContextDone(true)
	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeConfig)

	// WASI is needed by most compiled languages at link time. No host
	// module is registered beyond it, so a plugin has no access to the
	// host.
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		runtime.Close(ctx)
		return fmt.Errorf("failed to instantiate WASI for plugin %s: %w", p.Name(), err)
	}

	module, err := runtime.Instantiate(ctx, p.wasmModule)
	if err != nil {
		runtime.Close(ctx)
		return fmt.Errorf("failed to instantiate plugin %s: %w", p.Name(), err)
	}

	if module.Memory() == nil {
		module.Close(ctx)
		runtime.Close(ctx)
		return fmt.Errorf("plugin %s does not export memory", p.Name())
	}
	required := map[string]*api.Function{
		"malloc":        &p.malloc,
		"free":          &p.free,
		compileFunction: &p.compile,
	}
	for name, fn := range required {
		exported := module.ExportedFunction(name)
		if exported == nil {
			module.Close(ctx)
			runtime.Close(ctx)
			return fmt.Errorf("plugin %s does not export %s", p.Name(), name)
		}
		*fn = exported
	}

	p.runtime = runtime
	p.module = module
	p.loaded = true

	p.logger.Debug().
		Str("version", p.manifest.Metadata.Version).
		Int("module_bytes", len(p.wasmModule)).
		Msg("Plugin instantiated")
	return nil
}

// call runs the compile export with the given input bytes and returns the
// output bytes. Callers hold p.mu.
func (p *Plugin) call(ctx context.Context, input []byte) ([]byte, error) {
	memory := p.module.Memory()
	inputLen := uint64(len(input))

	results, err := p.malloc.Call(ctx, inputLen)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate plugin memory: %w", err)
	}
	inputPtr := uint32(results[0])
	defer p.free.Call(ctx, uint64(inputPtr), inputLen)

	if !memory.Write(inputPtr, input) {
		return nil, fmt.Errorf("failed to write input to plugin memory")
	}

	results, err = p.compile.Call(ctx, uint64(inputPtr), inputLen)
	if err != nil {
		return nil, fmt.Errorf("compile call failed: %w", err)
	}

	outputPtr, outputLen := unpackResult(results[0])
	if outputLen == 0 {
		return []byte("{}"), nil
	}

	view, ok := memory.Read(outputPtr, outputLen)
	if !ok {
		return nil, fmt.Errorf("failed to read plugin output at %d+%d", outputPtr, outputLen)
	}
	// The view aliases module memory, which free may recycle.
	output := make([]byte, len(view))
	copy(output, view)

	p.free.Call(ctx, uint64(outputPtr), uint64(outputLen))
	return output, nil
}

// unpackResult splits a packed compile result into pointer and length.
func unpackResult(packed uint64) (ptr, length uint32) {
	return uint32(packed >> 32), uint32(packed)
}
