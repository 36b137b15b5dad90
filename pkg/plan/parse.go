package plan

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// Parse decodes a plan document from YAML or JSON bytes. Input values
// are parsed into their tagged variants during decoding. The returned
// plan has its defaults filled in.
//
// A non-nil error means the document could not be turned into a
// node/edge list at all; shape problems beyond that are the schema
// validator's business, not Parse's.
func Parse(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode plan document: %w", err)
	}
	p.Normalize()
	return &p, nil
}

// ParseFile reads and decodes a plan document, routing on extension:
// .yaml/.yml/.json decode directly, .cue is evaluated first.
func ParseFile(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return ParseCUE(data, filepath.Base(path))
	default:
		return Parse(data)
	}
}

// ParseCUE evaluates CUE source into a concrete plan document. The
// source must evaluate to a single concrete struct; unresolved fields
// are reported as parse errors.
func ParseCUE(data []byte, filename string) (*Plan, error) {
	ctx := cuecontext.New()
	val := ctx.CompileBytes(data, cue.Filename(filename))
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile plan source: %w", err)
	}
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("plan source is not concrete: %w", err)
	}

	encoded, err := val.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to export plan source: %w", err)
	}
	return Parse(encoded)
}

// Document re-decodes a plan document into its generic form for schema
// validation: the same shape the CUE schema constrains.
func Document(data []byte) (interface{}, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return raw, nil
}
