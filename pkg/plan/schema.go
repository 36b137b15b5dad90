package plan

import (
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// SchemaIssue is one structural defect found by the document schema,
// with a path pointer into the document.
type SchemaIssue struct {
	// Path points at the offending field, such as "nodes.2.id".
	Path string `json:"path,omitempty"`

	// Message describes the defect.
	Message string `json:"message"`
}

func (i SchemaIssue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return fmt.Sprintf("%s: %s", i.Path, i.Message)
}

// Schema validates plan documents against the embedded CUE schema.
// Compile the schema once and share it; Check is safe for concurrent
// use.
type Schema struct {
	mu  sync.Mutex
	ctx *cue.Context
	def cue.Value
}

// NewSchema compiles the built-in plan document schema.
func NewSchema() (*Schema, error) {
	ctx := cuecontext.New()
	val := ctx.CompileString(planDocumentSchema)
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile plan schema: %w", err)
	}
	def := val.LookupPath(cue.ParsePath("#Plan"))
	if err := def.Err(); err != nil {
		return nil, fmt.Errorf("plan schema missing #Plan definition: %w", err)
	}
	return &Schema{ctx: ctx, def: def}, nil
}

// Check unifies a decoded document (or a *Plan) with the schema and
// returns every structural defect found, empty when the document
// conforms.
func (s *Schema) Check(doc interface{}) []SchemaIssue {
	s.mu.Lock()
	defer s.mu.Unlock()

	val := s.ctx.Encode(doc)
	if err := val.Err(); err != nil {
		return []SchemaIssue{{Message: fmt.Sprintf("document not encodable: %v", err)}}
	}

	unified := s.def.Unify(val)
	err := unified.Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}
	return convertCUEErrors(err)
}

// convertCUEErrors flattens a CUE error list into schema issues with
// dotted path pointers.
func convertCUEErrors(err error) []SchemaIssue {
	var issues []SchemaIssue
	for _, e := range cueerrors.Errors(err) {
		issue := SchemaIssue{
			Path:    strings.Join(e.Path(), "."),
			Message: e.Error(),
		}
		// The rendered error often repeats the path; keep the bare
		// message when CUE provides one.
		if format, args := e.Msg(); format != "" {
			issue.Message = fmt.Sprintf(format, args...)
		}
		issues = append(issues, issue)
	}
	if len(issues) == 0 {
		issues = append(issues, SchemaIssue{Message: err.Error()})
	}
	return issues
}

// planDocumentSchema is the structural contract for a plan document:
// the five top-level sections with their field shapes and enums.
// Cross-field rules (id uniqueness, edge endpoints, graph shape) are
// the validator's business, not the schema's.
const planDocumentSchema = `
#Plan: {
	// Metadata identifies the plan
	metadata: #Metadata

	// Settings are the plan-wide validation switches
	settings: #Settings

	// Trigger declares how the workflow starts
	trigger: #Trigger

	// Nodes is the ordered step sequence
	nodes: [...#Node]

	// Edges is the ordered declared-dependency sequence
	edges: [...#Edge]
}

#Metadata: {
	// ID is the caller-assigned plan identifier
	id: string & !=""

	// Name is the human-readable plan name
	name: string & !=""

	// Version is the plan document version
	version?: string

	// Description explains what the plan automates
	description?: string
}

#Settings: {
	// AllowFallback permits inline-code fallback blocks
	allow_fallback?: bool

	// AllowUnstable permits non-stable primitive references
	allow_unstable?: bool

	// RiskLevel is the author-declared risk classification
	risk_level?: "low" | "medium" | "high"
}

#Trigger: {
	// Type is the trigger kind
	type: "webhook" | "schedule" | "manual" | "event"

	// Config holds trigger-specific settings
	config?: {...}
}

#Node: {
	// ID is the node identifier, unique within the plan
	id: string & !=""

	// PrimitiveID names the catalogued primitive, or null for fallback
	primitive_id?: (string & =~"^(P|A|M|O)[0-9]{3}$") | null

	// Inputs maps input names to literal or expression values
	inputs?: {[string]: _}

	// Fallback is the constrained inline-code block
	fallback?: #Fallback
}

#Fallback: {
	// Language is the inline code language
	language: "javascript" | "python"

	// Code is the inline source
	code: string & !=""

	// Description explains why no primitive fits
	description?: string

	// InputsSchema declares consumed names and types
	inputs_schema?: {[string]: string}

	// OutputsSchema declares produced names and types
	outputs_schema?: {[string]: string}

	// Review flags the block for human review
	review?: bool
}

#Edge: {
	// FromNode is the upstream node id
	from_node: string & !=""

	// ToNode is the downstream node id
	to_node: string & !=""

	// Condition optionally gates the edge
	condition?: string
}
`
