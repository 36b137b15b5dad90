// Package targets holds the compilation target registry and the
// adapter contract every target implements.
//
// A target turns one validated plan into one artifact for an external
// workflow engine. Per-target differences (trigger encoding, node
// shape, expression syntax) live entirely inside the adapter; the
// validator and the dependency analyzer never see them. Adding a
// target means implementing Target and registering it, nothing else.
package targets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vizi2000/maicrosoft/pkg/plan"
	"github.com/vizi2000/maicrosoft/pkg/registry"
)

// ErrUnknownTarget is returned when a target name is not registered.
var ErrUnknownTarget = errors.New("unknown compilation target")

// ContractError reports a broken invariant between the validator and a
// compiler, such as a primitive that passed the compatibility stage but
// has no mapping. It marks a defect in the engine, never in the
// submitted plan, and compilation that hits one produces no output.
type ContractError struct {
	// Target is the adapter that detected the break.
	Target string

	// Reason describes the broken invariant.
	Reason string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("target %s: compiler contract violated: %s", e.Target, e.Reason)
}

// Artifact is one compiled workflow document.
type Artifact struct {
	// Target is the adapter that produced the artifact.
	Target string `json:"target"`

	// PlanID is the compiled plan's id.
	PlanID string `json:"plan_id"`

	// PlanVersion is the compiled plan's version.
	PlanVersion string `json:"plan_version"`

	// Format is the serialization format, such as "json" or "dot".
	Format string `json:"format"`

	// Checksum is the hex SHA-256 of Content. Two compiles of the same
	// plan must produce the same checksum.
	Checksum string `json:"checksum"`

	// Content is the serialized workflow document.
	Content []byte `json:"content"`
}

// NewArtifact fills the artifact envelope around serialized content.
func NewArtifact(target string, p *plan.Plan, format string, content []byte) *Artifact {
	sum := sha256.Sum256(content)
	return &Artifact{
		Target:      target,
		PlanID:      p.Metadata.ID,
		PlanVersion: p.Metadata.Version,
		Format:      format,
		Checksum:    hex.EncodeToString(sum[:]),
		Content:     content,
	}
}

// Target is one compilation adapter.
type Target interface {
	// Name is the registry key callers request the target by.
	Name() string

	// Supports reports whether the adapter can compile nodes using the
	// given primitive.
	Supports(p *registry.Primitive) bool

	// Compile turns a validated plan into an artifact. It assumes
	// structural soundness; discovering otherwise is a ContractError.
	Compile(ctx context.Context, p *plan.Plan) (*Artifact, error)
}

// Registry is the set of available compilation targets. Registration
// happens at startup; lookups are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	targets map[string]Target
	logger  zerolog.Logger
}

// NewRegistry creates an empty target registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		targets: make(map[string]Target),
		logger:  logger.With().Str("component", "targets").Logger(),
	}
}

// Register adds a target. Duplicate names are rejected.
func (r *Registry) Register(t Target) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if _, exists := r.targets[name]; exists {
		return fmt.Errorf("target %s already registered", name)
	}
	r.targets[name] = t

	r.logger.Debug().Str("target", name).Msg("Compilation target registered")
	return nil
}

// Get returns a target by name.
func (r *Registry) Get(name string) (Target, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.targets[name]
	return t, ok
}

// Has reports whether a target name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Supports reports whether the named target can compile the primitive.
// An unknown target supports nothing.
func (r *Registry) Supports(name string, p *registry.Primitive) bool {
	t, ok := r.Get(name)
	if !ok {
		return false
	}
	return t.Supports(p)
}

// Names returns the registered target names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.targets))
	for name := range r.targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Compile dispatches to the named target.
func (r *Registry) Compile(ctx context.Context, name string, p *plan.Plan) (*Artifact, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, name)
	}
	return t.Compile(ctx, p)
}
