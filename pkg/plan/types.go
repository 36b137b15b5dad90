// Package plan defines the plan document model: the declarative graph
// an agent composes out of catalogued primitives, plus the parsed form
// of every input value and the derived dependency graph. The package is
// I/O-free; parsing, value analysis, and graph construction are pure
// functions over in-memory documents.
package plan

import (
	"fmt"
	"regexp"
	"strings"
)

// PrimitiveIDPattern is the shape of a catalogue id: a kind letter
// (P=particle, A=atom, M=molecule, O=organism) followed by three digits.
var PrimitiveIDPattern = regexp.MustCompile(`^(P|A|M|O)[0-9]{3}$`)

// RiskLevel describes the blast radius a plan author claims for a plan.
type RiskLevel string

const (
	// RiskLow is the default for read-mostly automations.
	RiskLow RiskLevel = "low"

	// RiskMedium marks plans that mutate external systems.
	RiskMedium RiskLevel = "medium"

	// RiskHigh marks plans that touch production-critical systems.
	// High-risk plans are subject to stricter policy rules.
	RiskHigh RiskLevel = "high"
)

// Validate checks that the risk level is a known value.
func (r RiskLevel) Validate() error {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return nil
	default:
		return fmt.Errorf("invalid risk level: %s", string(r))
	}
}

// TriggerType enumerates how a compiled workflow is started.
type TriggerType string

const (
	// TriggerWebhook starts the workflow on an inbound HTTP call.
	TriggerWebhook TriggerType = "webhook"

	// TriggerSchedule starts the workflow on a cron-style schedule.
	TriggerSchedule TriggerType = "schedule"

	// TriggerManual starts the workflow by explicit operator action.
	TriggerManual TriggerType = "manual"

	// TriggerEvent starts the workflow on an external event bus message.
	TriggerEvent TriggerType = "event"
)

// Validate checks that the trigger type is a known value.
func (t TriggerType) Validate() error {
	switch t {
	case TriggerWebhook, TriggerSchedule, TriggerManual, TriggerEvent:
		return nil
	default:
		return fmt.Errorf("invalid trigger type: %s", string(t))
	}
}

// FallbackLanguage enumerates the languages permitted inside a fallback
// block. The set is closed; anything else is rejected outright.
type FallbackLanguage string

const (
	// LanguageJavaScript is inline JavaScript executed by the target.
	LanguageJavaScript FallbackLanguage = "javascript"

	// LanguagePython is inline Python executed by the target.
	LanguagePython FallbackLanguage = "python"
)

// Validate checks that the language is in the allowed set.
func (l FallbackLanguage) Validate() error {
	switch l {
	case LanguageJavaScript, LanguagePython:
		return nil
	default:
		return fmt.Errorf("invalid fallback language: %s", string(l))
	}
}

// MaxFallbackCodeLen is the hard upper bound on fallback code length.
const MaxFallbackCodeLen = 500

// Metadata identifies a plan document.
type Metadata struct {
	// ID is the caller-assigned plan identifier.
	ID string `yaml:"id" json:"id" validate:"required"`

	// Name is the human-readable plan name.
	Name string `yaml:"name" json:"name" validate:"required"`

	// Version is the plan document version, defaulting to 1.0.0.
	Version string `yaml:"version" json:"version"`

	// Description explains what the plan automates.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Settings carries the plan-wide switches the validator consults.
type Settings struct {
	// AllowFallback permits nodes to carry inline-code fallback blocks.
	// When false, any node without a primitive id is rejected.
	AllowFallback bool `yaml:"allow_fallback" json:"allow_fallback"`

	// AllowUnstable permits references to primitives whose status is not
	// "stable". Off by default; draft and deprecated primitives are
	// otherwise rejected.
	AllowUnstable bool `yaml:"allow_unstable" json:"allow_unstable"`

	// RiskLevel is the author-declared risk classification.
	RiskLevel RiskLevel `yaml:"risk_level" json:"risk_level"`
}

// Trigger declares how the compiled workflow starts.
type Trigger struct {
	// Type is the trigger kind (webhook, schedule, manual, event).
	Type TriggerType `yaml:"type" json:"type" validate:"required"`

	// Config holds trigger-specific settings, such as a cron expression
	// for schedule triggers or a path for webhook triggers.
	Config map[string]interface{} `yaml:"config,omitempty" json:"config,omitempty"`
}

// ConfigValue looks up a dotted path in the trigger config, descending
// through nested mappings.
func (t *Trigger) ConfigValue(path string) (interface{}, bool) {
	var current interface{} = t.Config
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Fallback is the constrained inline-code escape hatch a node may carry
// when no catalogued primitive fits. It is length- and capability-
// restricted and always subject to the compatibility checks.
type Fallback struct {
	// Language is the inline code language (javascript or python).
	Language FallbackLanguage `yaml:"language" json:"language" validate:"required"`

	// Code is the inline source, at most MaxFallbackCodeLen characters.
	Code string `yaml:"code" json:"code" validate:"required"`

	// Description explains why a primitive could not be used.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// InputsSchema declares the names and types the code consumes.
	InputsSchema map[string]string `yaml:"inputs_schema,omitempty" json:"inputs_schema,omitempty"`

	// OutputsSchema declares the names and types the code produces.
	OutputsSchema map[string]string `yaml:"outputs_schema,omitempty" json:"outputs_schema,omitempty"`

	// Review flags the block for human review before deployment.
	// Defaults to true when omitted.
	Review *bool `yaml:"review,omitempty" json:"review,omitempty"`
}

// ReviewRequired reports whether the block must be human-reviewed.
// Omitted means yes.
func (f *Fallback) ReviewRequired() bool {
	if f.Review == nil {
		return true
	}
	return *f.Review
}

// Node is one step of a plan. Either PrimitiveID names a catalogued
// primitive, or it is null and the node must carry a Fallback block.
type Node struct {
	// ID is the node identifier, unique within the plan.
	ID string `yaml:"id" json:"id" validate:"required"`

	// PrimitiveID names the primitive this node invokes. A nil value
	// means the node relies on its fallback block instead.
	PrimitiveID *string `yaml:"primitive_id" json:"primitive_id"`

	// Inputs maps input names to values. Each value is parsed once into
	// a tagged variant (literal, reference, or template); see Value.
	Inputs map[string]Value `yaml:"inputs,omitempty" json:"inputs,omitempty"`

	// Fallback is the inline-code block used when PrimitiveID is nil.
	Fallback *Fallback `yaml:"fallback,omitempty" json:"fallback,omitempty"`
}

// Edge is a declared, directed dependency: ToNode runs after FromNode.
type Edge struct {
	// FromNode is the upstream node id.
	FromNode string `yaml:"from_node" json:"from_node" validate:"required"`

	// ToNode is the downstream node id.
	ToNode string `yaml:"to_node" json:"to_node" validate:"required"`

	// Condition optionally gates the edge on an upstream result.
	Condition string `yaml:"condition,omitempty" json:"condition,omitempty"`
}

// Plan is the complete document: metadata, settings, one trigger, an
// ordered node sequence, and an ordered edge sequence. Declaration
// order of nodes and edges is significant; it breaks ordering ties
// everywhere the engine needs determinism.
type Plan struct {
	// Metadata identifies the plan.
	Metadata Metadata `yaml:"metadata" json:"metadata"`

	// Settings are the plan-wide validation switches.
	Settings Settings `yaml:"settings" json:"settings"`

	// Trigger declares how the compiled workflow starts.
	Trigger Trigger `yaml:"trigger" json:"trigger"`

	// Nodes is the ordered node sequence.
	Nodes []Node `yaml:"nodes" json:"nodes"`

	// Edges is the ordered declared-dependency sequence.
	Edges []Edge `yaml:"edges" json:"edges"`
}

// Normalize fills the documented defaults on a freshly parsed plan:
// version 1.0.0 and risk level low. It never overwrites explicit values.
func (p *Plan) Normalize() {
	if p.Metadata.Version == "" {
		p.Metadata.Version = "1.0.0"
	}
	if p.Settings.RiskLevel == "" {
		p.Settings.RiskLevel = RiskLow
	}
}

// NodeByID returns the node with the given id, or nil.
func (p *Plan) NodeByID(id string) *Node {
	for i := range p.Nodes {
		if p.Nodes[i].ID == id {
			return &p.Nodes[i]
		}
	}
	return nil
}

// NodeIndex returns the declaration index of a node id, or -1.
func (p *Plan) NodeIndex(id string) int {
	for i := range p.Nodes {
		if p.Nodes[i].ID == id {
			return i
		}
	}
	return -1
}

// FallbackCount returns how many nodes carry a fallback block.
func (p *Plan) FallbackCount() int {
	n := 0
	for i := range p.Nodes {
		if p.Nodes[i].Fallback != nil {
			n++
		}
	}
	return n
}
