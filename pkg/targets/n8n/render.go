package n8n

import "fmt"

// renderer emits n8n expression syntax for the reference resolver.
// References address upstream nodes by their compiled display name,
// which is what n8n's $node lookup keys on.
type renderer struct{}

// NodeRef reads an upstream node's output. An empty field falls back
// to "body", the default output field of the built-in particles.
func (renderer) NodeRef(nodeID, field string) string {
	if field == "" {
		field = "body"
	}
	return fmt.Sprintf("$node[%q].json.%s", displayName(nodeID), field)
}

// InputRef reads the trigger payload of the current execution.
func (renderer) InputRef(field string) string {
	return "$json." + field
}

// ItemRef reads the current loop item inside a splitInBatches body.
func (renderer) ItemRef(field string) string {
	return "$json." + field
}

// WrapExpression marks a parameter as a whole-value expression.
func (renderer) WrapExpression(expr string) string {
	return "={{ " + expr + " }}"
}

// EmbedExpression interpolates an expression into surrounding text.
func (renderer) EmbedExpression(expr string) string {
	return "{{ " + expr + " }}"
}

// WrapTemplate marks a mixed text/expression parameter as an
// expression string.
func (renderer) WrapTemplate(s string) string {
	return "=" + s
}
