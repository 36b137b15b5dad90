package plan

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValueKind tags the parsed form of a node input value.
type ValueKind string

const (
	// ValueLiteral is a plain value: scalar, mapping, or sequence.
	ValueLiteral ValueKind = "literal"

	// ValueReference is a string that is exactly one reference
	// expression, such as "{{ ref: fetch.body }}".
	ValueReference ValueKind = "reference"

	// ValueTemplate is a string mixing text and embedded expressions.
	ValueTemplate ValueKind = "template"
)

// RefKind is the namespace a reference expression resolves in.
type RefKind string

const (
	// RefNode references another node's output: {{ ref: node.field }}.
	RefNode RefKind = "ref"

	// RefConfig references a workflow configuration value.
	RefConfig RefKind = "config"

	// RefInput references a workflow input parameter.
	RefInput RefKind = "input"

	// RefItem references the current loop item; valid only on nodes
	// downstream of a loop primitive.
	RefItem RefKind = "item"
)

// Ref is one parsed reference expression.
type Ref struct {
	// Kind is the expression namespace.
	Kind RefKind `json:"kind"`

	// Target is the referenced node id. Set only for RefNode.
	Target string `json:"target,omitempty"`

	// Field is the referenced field. For RefNode it may be empty, in
	// which case the target decides the default output field.
	Field string `json:"field,omitempty"`

	// Raw is the original expression text including braces.
	Raw string `json:"raw"`
}

// MalformedRef records an expression the scanner could not parse.
type MalformedRef struct {
	// Raw is the offending text.
	Raw string `json:"raw"`

	// Reason says why it failed to parse.
	Reason string `json:"reason"`
}

// Segment is one piece of a template string: literal text or a
// reference expression, never both.
type Segment struct {
	Text string
	Ref  *Ref
}

// Value is a node input parsed once into a tagged variant, so every
// later stage (interface checks, dependency analysis, resolution) reads
// the same structure instead of re-scanning raw text.
type Value struct {
	// Kind tags the variant.
	Kind ValueKind

	// Literal is the decoded value for ValueLiteral, including whole
	// mappings and sequences.
	Literal interface{}

	// Raw is the original string for reference and template kinds.
	Raw string

	// Ref is the single expression for ValueReference.
	Ref *Ref

	// Segments is the ordered text/expression split for ValueTemplate.
	Segments []Segment

	refs      []Ref
	malformed []MalformedRef
}

// Refs returns every well-formed reference expression in the value,
// including expressions nested inside mappings and sequences. Order is
// deterministic: left to right within strings, sorted keys across
// mappings.
func (v Value) Refs() []Ref {
	return v.refs
}

// Malformed returns every expression that failed to parse.
func (v Value) Malformed() []MalformedRef {
	return v.malformed
}

// IsExpression reports whether the value contains at least one
// reference expression, well-formed or not. Type checks are skipped
// for such values: the referenced type is unknowable before resolution.
func (v Value) IsExpression() bool {
	return len(v.refs) > 0 || len(v.malformed) > 0
}

// LiteralValue returns a plain value for ValueReference and
// ValueTemplate (the raw string) or the decoded literal otherwise.
func (v Value) LiteralValue() interface{} {
	if v.Kind == ValueLiteral {
		return v.Literal
	}
	return v.Raw
}

// Literal wraps a plain Go value as a literal input value, scanning
// nested strings for expressions the same way parsing does.
func Literal(raw interface{}) Value {
	return ParseValue(raw)
}

// Expression builds a Value from a string that may contain reference
// expressions.
func Expression(s string) Value {
	return ParseValue(s)
}

// ParseValue builds the tagged variant from a decoded document value.
func ParseValue(raw interface{}) Value {
	switch t := raw.(type) {
	case string:
		return parseString(t)
	case map[string]interface{}:
		v := Value{Kind: ValueLiteral, Literal: t}
		collectNested(t, &v.refs, &v.malformed)
		return v
	case []interface{}:
		v := Value{Kind: ValueLiteral, Literal: t}
		collectNested(t, &v.refs, &v.malformed)
		return v
	default:
		return Value{Kind: ValueLiteral, Literal: raw}
	}
}

// parseString classifies one string as literal, single reference, or
// template, keeping the segment split for the resolver.
func parseString(s string) Value {
	segments, refs, malformed := scanExpressions(s)

	if len(refs) == 0 && len(malformed) == 0 {
		return Value{Kind: ValueLiteral, Literal: s}
	}

	if len(segments) == 1 && segments[0].Ref != nil {
		return Value{
			Kind:      ValueReference,
			Raw:       s,
			Ref:       segments[0].Ref,
			Segments:  segments,
			refs:      refs,
			malformed: malformed,
		}
	}

	return Value{
		Kind:      ValueTemplate,
		Raw:       s,
		Segments:  segments,
		refs:      refs,
		malformed: malformed,
	}
}

// collectNested walks mappings and sequences gathering expressions from
// every nested string. Mapping keys are visited in sorted order so the
// collected list is deterministic.
func collectNested(raw interface{}, refs *[]Ref, malformed *[]MalformedRef) {
	switch t := raw.(type) {
	case string:
		_, r, m := scanExpressions(t)
		*refs = append(*refs, r...)
		*malformed = append(*malformed, m...)
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			collectNested(t[k], refs, malformed)
		}
	case []interface{}:
		for _, item := range t {
			collectNested(item, refs, malformed)
		}
	}
}

// scanExpressions splits a string into text and expression segments.
// Anything between "{{" and the next "}}" is parsed as an expression;
// a "{{" without a closing "}}", a nested "{{", or an unknown prefix is
// recorded as malformed and kept as text in the segment stream.
func scanExpressions(s string) ([]Segment, []Ref, []MalformedRef) {
	var (
		segments  []Segment
		refs      []Ref
		malformed []MalformedRef
	)

	rest := s
	for {
		open := strings.Index(rest, "{{")
		if open < 0 {
			if rest != "" {
				segments = append(segments, Segment{Text: rest})
			}
			break
		}
		if open > 0 {
			segments = append(segments, Segment{Text: rest[:open]})
		}

		end := strings.Index(rest[open:], "}}")
		if end < 0 {
			malformed = append(malformed, MalformedRef{
				Raw:    rest[open:],
				Reason: "unbalanced braces",
			})
			segments = append(segments, Segment{Text: rest[open:]})
			break
		}
		end += open

		raw := rest[open : end+2]
		inner := strings.TrimSpace(rest[open+2 : end])
		if strings.Contains(inner, "{{") {
			malformed = append(malformed, MalformedRef{
				Raw:    raw,
				Reason: "unbalanced braces",
			})
			segments = append(segments, Segment{Text: raw})
			rest = rest[end+2:]
			continue
		}

		ref, err := parseExpression(inner, raw)
		if err != nil {
			malformed = append(malformed, MalformedRef{Raw: raw, Reason: err.Error()})
			segments = append(segments, Segment{Text: raw})
		} else {
			refs = append(refs, *ref)
			segments = append(segments, Segment{Ref: ref})
		}
		rest = rest[end+2:]
	}

	return segments, refs, malformed
}

// parseExpression parses the inside of one {{ ... }} pair.
func parseExpression(inner, raw string) (*Ref, error) {
	if after, ok := strings.CutPrefix(inner, "ref:"); ok {
		target := strings.TrimSpace(after)
		if target == "" {
			return nil, fmt.Errorf("empty reference target")
		}
		field := ""
		if dot := strings.Index(target, "."); dot >= 0 {
			field = target[dot+1:]
			target = target[:dot]
		}
		if target == "" {
			return nil, fmt.Errorf("empty reference target")
		}
		return &Ref{Kind: RefNode, Target: target, Field: field, Raw: raw}, nil
	}

	for _, kind := range []RefKind{RefConfig, RefInput, RefItem} {
		prefix := string(kind) + "."
		if after, ok := strings.CutPrefix(inner, prefix); ok {
			field := strings.TrimSpace(after)
			if field == "" {
				return nil, fmt.Errorf("empty %s field", kind)
			}
			return &Ref{Kind: kind, Field: field, Raw: raw}, nil
		}
	}

	return nil, fmt.Errorf("unknown prefix in %q", inner)
}

// UnmarshalYAML decodes a YAML value and parses it into the variant.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	var raw interface{}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*v = ParseValue(raw)
	return nil
}

// MarshalYAML writes the value back in its document form.
func (v Value) MarshalYAML() (interface{}, error) {
	if v.Kind == ValueLiteral {
		return v.Literal, nil
	}
	return v.Raw, nil
}

// UnmarshalJSON decodes a JSON value and parses it into the variant.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = ParseValue(raw)
	return nil
}

// MarshalJSON writes the value back in its document form.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Kind == ValueLiteral {
		return json.Marshal(v.Literal)
	}
	return json.Marshal(v.Raw)
}
