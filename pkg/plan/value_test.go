package plan

import (
	"encoding/json"
	"testing"
)

func TestParseValue_LiteralScalars(t *testing.T) {
	v := ParseValue("plain text")
	if v.Kind != ValueLiteral {
		t.Fatalf("Expected literal kind, got %s", v.Kind)
	}
	if v.Literal != "plain text" {
		t.Errorf("Expected literal to round-trip, got %v", v.Literal)
	}
	if v.IsExpression() {
		t.Errorf("Plain string should not be an expression")
	}

	v = ParseValue(42)
	if v.Kind != ValueLiteral || v.Literal != 42 {
		t.Errorf("Expected numeric literal, got %s %v", v.Kind, v.Literal)
	}

	v = ParseValue(true)
	if v.Kind != ValueLiteral || v.Literal != true {
		t.Errorf("Expected boolean literal, got %s %v", v.Kind, v.Literal)
	}
}

func TestParseValue_SingleReference(t *testing.T) {
	v := ParseValue("{{ ref: fetch.body }}")
	if v.Kind != ValueReference {
		t.Fatalf("Expected reference kind, got %s", v.Kind)
	}
	if v.Ref == nil {
		t.Fatal("Expected parsed ref")
	}
	if v.Ref.Kind != RefNode {
		t.Errorf("Expected node ref, got %s", v.Ref.Kind)
	}
	if v.Ref.Target != "fetch" || v.Ref.Field != "body" {
		t.Errorf("Expected fetch.body, got %s.%s", v.Ref.Target, v.Ref.Field)
	}
	if len(v.Refs()) != 1 {
		t.Errorf("Expected 1 ref, got %d", len(v.Refs()))
	}
}

func TestParseValue_ReferenceWithoutField(t *testing.T) {
	v := ParseValue("{{ ref: fetch }}")
	if v.Kind != ValueReference {
		t.Fatalf("Expected reference kind, got %s", v.Kind)
	}
	if v.Ref.Target != "fetch" || v.Ref.Field != "" {
		t.Errorf("Expected bare target fetch, got %s.%s", v.Ref.Target, v.Ref.Field)
	}
}

func TestParseValue_ConfigInputItemPrefixes(t *testing.T) {
	cases := map[string]RefKind{
		"{{ config.api_url }}": RefConfig,
		"{{ input.user_id }}":  RefInput,
		"{{ item.email }}":     RefItem,
	}
	for raw, want := range cases {
		v := ParseValue(raw)
		if v.Kind != ValueReference {
			t.Errorf("%s: expected reference kind, got %s", raw, v.Kind)
			continue
		}
		if v.Ref.Kind != want {
			t.Errorf("%s: expected kind %s, got %s", raw, want, v.Ref.Kind)
		}
	}
}

func TestParseValue_Template(t *testing.T) {
	v := ParseValue("Hello {{ ref: fetch.name }}, welcome to {{ config.site }}")
	if v.Kind != ValueTemplate {
		t.Fatalf("Expected template kind, got %s", v.Kind)
	}
	if len(v.Refs()) != 2 {
		t.Fatalf("Expected 2 refs, got %d", len(v.Refs()))
	}
	if v.Refs()[0].Target != "fetch" {
		t.Errorf("Expected first ref target fetch, got %s", v.Refs()[0].Target)
	}
	if v.Refs()[1].Kind != RefConfig {
		t.Errorf("Expected second ref kind config, got %s", v.Refs()[1].Kind)
	}
	if len(v.Segments) != 4 {
		t.Errorf("Expected 4 segments, got %d", len(v.Segments))
	}
	if v.Segments[0].Text != "Hello " {
		t.Errorf("Expected leading text segment, got %q", v.Segments[0].Text)
	}
}

func TestParseValue_UnbalancedBraces(t *testing.T) {
	v := ParseValue("{{ ref: fetch.body")
	if len(v.Malformed()) != 1 {
		t.Fatalf("Expected 1 malformed expression, got %d", len(v.Malformed()))
	}
	if v.Malformed()[0].Reason != "unbalanced braces" {
		t.Errorf("Expected unbalanced braces reason, got %q", v.Malformed()[0].Reason)
	}
	if !v.IsExpression() {
		t.Errorf("Malformed expression should still count as an expression")
	}
}

func TestParseValue_UnknownPrefix(t *testing.T) {
	v := ParseValue("{{ secrets.token }}")
	if len(v.Malformed()) != 1 {
		t.Fatalf("Expected 1 malformed expression, got %d", len(v.Malformed()))
	}
	if len(v.Refs()) != 0 {
		t.Errorf("Unknown prefix must not produce a ref")
	}
}

func TestParseValue_EmptyReferenceTarget(t *testing.T) {
	v := ParseValue("{{ ref: }}")
	if len(v.Malformed()) != 1 {
		t.Fatalf("Expected 1 malformed expression, got %d", len(v.Malformed()))
	}
}

func TestParseValue_NestedContainerRefs(t *testing.T) {
	raw := map[string]interface{}{
		"url":  "{{ ref: fetch.url }}",
		"body": map[string]interface{}{"name": "{{ ref: lookup.name }}"},
	}
	v := ParseValue(raw)
	if v.Kind != ValueLiteral {
		t.Fatalf("Container should stay a literal, got %s", v.Kind)
	}
	refs := v.Refs()
	if len(refs) != 2 {
		t.Fatalf("Expected 2 nested refs, got %d", len(refs))
	}
	// Keys are walked sorted, so "body" comes before "url".
	if refs[0].Target != "lookup" || refs[1].Target != "fetch" {
		t.Errorf("Expected deterministic nested order [lookup fetch], got [%s %s]",
			refs[0].Target, refs[1].Target)
	}
}

func TestValue_JSONRoundTrip(t *testing.T) {
	var v Value
	if err := json.Unmarshal([]byte(`"{{ ref: a.b }}"`), &v); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if v.Kind != ValueReference {
		t.Fatalf("Expected reference kind, got %s", v.Kind)
	}

	out, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if string(out) != `"{{ ref: a.b }}"` {
		t.Errorf("Expected document form to round-trip, got %s", out)
	}
}

func TestValue_LiteralValue(t *testing.T) {
	v := ParseValue(7)
	if v.LiteralValue() != 7 {
		t.Errorf("Expected literal 7, got %v", v.LiteralValue())
	}
	v = ParseValue("{{ ref: a.b }}")
	if v.LiteralValue() != "{{ ref: a.b }}" {
		t.Errorf("Expected raw string for reference, got %v", v.LiteralValue())
	}
}
