package registry

import (
	"fmt"
	"strings"
	"time"
)

// PrimitiveType represents the composition tier of a primitive
type PrimitiveType string

const (
	TypeParticle PrimitiveType = "particle"
	TypeAtom     PrimitiveType = "atom"
	TypeMolecule PrimitiveType = "molecule"
	TypeOrganism PrimitiveType = "organism"
)

// TypeForID derives the primitive type from the id prefix letter.
func TypeForID(id string) (PrimitiveType, error) {
	if id == "" {
		return "", fmt.Errorf("empty primitive id")
	}
	switch id[0] {
	case 'P':
		return TypeParticle, nil
	case 'A':
		return TypeAtom, nil
	case 'M':
		return TypeMolecule, nil
	case 'O':
		return TypeOrganism, nil
	default:
		return "", fmt.Errorf("invalid primitive id prefix: %s", id)
	}
}

// Status represents the lifecycle status of a primitive
type Status string

const (
	StatusDraft      Status = "draft"
	StatusStable     Status = "stable"
	StatusDeprecated Status = "deprecated"
)

// Category groups primitives by the concern they address
type Category string

const (
	CategoryData          Category = "data"
	CategoryTransform     Category = "transform"
	CategoryControl       Category = "control"
	CategoryStorage       Category = "storage"
	CategoryMessaging     Category = "messaging"
	CategoryAI            Category = "ai"
	CategoryObservability Category = "observability"
	CategoryNotify        Category = "notify"
)

// FieldType represents the declared type of an interface field
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldObject  FieldType = "object"
	FieldArray   FieldType = "array"
	FieldAny     FieldType = "any"
	FieldEnum    FieldType = "enum"
)

// InputField describes one input a primitive accepts
type InputField struct {
	Name        string                 `yaml:"name" json:"name" validate:"required"`
	Type        FieldType              `yaml:"type" json:"type" validate:"required,oneof=string number boolean object array any enum"`
	EnumValues  []string               `yaml:"enum_values,omitempty" json:"enum_values,omitempty"`
	Required    bool                   `yaml:"required,omitempty" json:"required"`
	Default     interface{}            `yaml:"default,omitempty" json:"default,omitempty"`
	Description string                 `yaml:"description,omitempty" json:"description,omitempty"`
	Validation  map[string]interface{} `yaml:"validation,omitempty" json:"validation,omitempty"`
}

// OutputField describes one output a primitive produces
type OutputField struct {
	Name        string    `yaml:"name" json:"name" validate:"required"`
	Type        FieldType `yaml:"type" json:"type" validate:"required,oneof=string number boolean object array any enum"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`
}

// ErrorDef describes one error a primitive can raise
type ErrorDef struct {
	Code        string `yaml:"code" json:"code" validate:"required"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Retryable   bool   `yaml:"retryable,omitempty" json:"retryable"`
}

// Interface is the declared contract of a primitive
type Interface struct {
	Inputs  []InputField  `yaml:"inputs" json:"inputs"`
	Outputs []OutputField `yaml:"outputs" json:"outputs"`
	Errors  []ErrorDef    `yaml:"errors,omitempty" json:"errors,omitempty"`
}

// Input returns the input field with the given name, nil if absent.
func (i *Interface) Input(name string) *InputField {
	for idx := range i.Inputs {
		if i.Inputs[idx].Name == name {
			return &i.Inputs[idx]
		}
	}
	return nil
}

// Output returns the output field with the given name, nil if absent.
func (i *Interface) Output(name string) *OutputField {
	for idx := range i.Outputs {
		if i.Outputs[idx].Name == name {
			return &i.Outputs[idx]
		}
	}
	return nil
}

// CompilationTarget holds per-target compilation hints for a primitive
type CompilationTarget struct {
	NodeType  string `yaml:"node_type,omitempty" json:"node_type,omitempty"`
	Operation string `yaml:"operation,omitempty" json:"operation,omitempty"`
	Version   string `yaml:"version,omitempty" json:"version,omitempty"`
	Module    string `yaml:"module,omitempty" json:"module,omitempty"`
	Function  string `yaml:"function,omitempty" json:"function,omitempty"`
	Activity  string `yaml:"activity,omitempty" json:"activity,omitempty"`
}

// Constraints bound how a compiled primitive may run
type Constraints struct {
	Timeout    string `yaml:"timeout,omitempty" json:"timeout"`
	RetryCount int    `yaml:"retry_count,omitempty" json:"retry_count" validate:"gte=0,lte=10"`
	Idempotent bool   `yaml:"idempotent,omitempty" json:"idempotent"`
}

// PrimitiveMetadata identifies and classifies a primitive
type PrimitiveMetadata struct {
	ID            string        `yaml:"id" json:"id" validate:"required"`
	Name          string        `yaml:"name" json:"name" validate:"required"`
	Type          PrimitiveType `yaml:"type" json:"type" validate:"required,oneof=particle atom molecule organism"`
	Version       string        `yaml:"version" json:"version" validate:"required"`
	Status        Status        `yaml:"status" json:"status" validate:"required,oneof=draft stable deprecated"`
	Description   string        `yaml:"description" json:"description" validate:"required"`
	Category      Category      `yaml:"category,omitempty" json:"category,omitempty"`
	Tags          []string      `yaml:"tags,omitempty" json:"tags,omitempty"`
	GeneratedFrom []string      `yaml:"generated_from,omitempty" json:"generated_from,omitempty"`
	DependsOn     []string      `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
}

// CompositionStep is one step in composing a higher-tier primitive
// from lower-tier ones
type CompositionStep struct {
	Particle string                 `yaml:"particle" json:"particle" validate:"required"`
	Inputs   map[string]interface{} `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Outputs  map[string]interface{} `yaml:"outputs,omitempty" json:"outputs,omitempty"`
}

// Example is a documented usage sample for a primitive
type Example struct {
	Name            string                 `yaml:"name" json:"name"`
	Inputs          map[string]interface{} `yaml:"inputs" json:"inputs"`
	ExpectedOutputs map[string]interface{} `yaml:"expected_outputs,omitempty" json:"expected_outputs,omitempty"`
}

// Primitive is one catalogued building block: a vetted capability a
// plan node can reference by id. Instances handed out by the registry
// are shared across callers and must be treated as read-only.
type Primitive struct {
	Metadata           PrimitiveMetadata            `yaml:"metadata" json:"metadata" validate:"required"`
	Interface          Interface                    `yaml:"interface" json:"interface"`
	CompilationTargets map[string]CompilationTarget `yaml:"compilation_targets,omitempty" json:"compilation_targets,omitempty"`
	Constraints        Constraints                  `yaml:"constraints,omitempty" json:"constraints"`
	Composition        []CompositionStep            `yaml:"composition,omitempty" json:"composition,omitempty"`
	Examples           []Example                    `yaml:"examples,omitempty" json:"examples,omitempty"`
}

// ID returns the primitive id.
func (p *Primitive) ID() string { return p.Metadata.ID }

// IsStable reports whether the primitive has stable status.
func (p *Primitive) IsStable() bool { return p.Metadata.Status == StatusStable }

// HasTag reports whether the primitive carries the given tag,
// case-insensitively.
func (p *Primitive) HasTag(tag string) bool {
	for _, t := range p.Metadata.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// DeclaresTarget reports whether the primitive declares compilation
// support for the named target.
func (p *Primitive) DeclaresTarget(target string) bool {
	_, ok := p.CompilationTargets[target]
	return ok
}

// IndexEntry is one row in the registry index file, pointing at a
// primitive definition on disk
type IndexEntry struct {
	ID          string   `yaml:"id" json:"id" validate:"required"`
	Name        string   `yaml:"name" json:"name"`
	Path        string   `yaml:"path" json:"path" validate:"required"`
	Category    Category `yaml:"category,omitempty" json:"category,omitempty"`
	Status      Status   `yaml:"status,omitempty" json:"status,omitempty"`
	Tags        []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
}

// Index is the registry index file: one section per primitive tier
type Index struct {
	Version   string       `yaml:"version" json:"version"`
	Particles []IndexEntry `yaml:"particles" json:"particles"`
	Atoms     []IndexEntry `yaml:"atoms" json:"atoms"`
	Molecules []IndexEntry `yaml:"molecules" json:"molecules"`
	Organisms []IndexEntry `yaml:"organisms" json:"organisms"`
}

// Entries returns all index entries in tier order.
func (ix *Index) Entries() []IndexEntry {
	out := make([]IndexEntry, 0, len(ix.Particles)+len(ix.Atoms)+len(ix.Molecules)+len(ix.Organisms))
	out = append(out, ix.Particles...)
	out = append(out, ix.Atoms...)
	out = append(out, ix.Molecules...)
	out = append(out, ix.Organisms...)
	return out
}

// ListFilter narrows List results. Zero-value fields do not filter.
type ListFilter struct {
	Type     PrimitiveType `json:"type,omitempty"`
	Category Category      `json:"category,omitempty"`
	Status   Status        `json:"status,omitempty"`
}

// Summary is the lightweight listing form of a primitive
type Summary struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Type        PrimitiveType `json:"type"`
	Version     string        `json:"version"`
	Status      Status        `json:"status"`
	Category    Category      `json:"category,omitempty"`
	Description string        `json:"description"`
	Tags        []string      `json:"tags,omitempty"`
}

// SearchResult is one scored hit from Search
type SearchResult struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Score       int      `json:"score"`
	Tags        []string `json:"tags,omitempty"`
}

// Snapshot is one immutable view of the loaded catalog. The registry
// swaps the whole snapshot on reload; readers holding an old snapshot
// keep a consistent view.
type Snapshot struct {
	primitives map[string]*Primitive
	order      []string
	LoadedAt   time.Time
	Source     string
}

// Get returns the primitive with the given id, nil if absent.
func (s *Snapshot) Get(id string) *Primitive {
	return s.primitives[id]
}

// Has reports whether the snapshot contains the given id.
func (s *Snapshot) Has(id string) bool {
	_, ok := s.primitives[id]
	return ok
}

// Len returns the number of primitives in the snapshot.
func (s *Snapshot) Len() int { return len(s.primitives) }

// All returns every primitive in index order.
func (s *Snapshot) All() []*Primitive {
	out := make([]*Primitive, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.primitives[id])
	}
	return out
}
