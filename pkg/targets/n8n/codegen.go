package n8n

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vizi2000/maicrosoft/pkg/plan"
	"github.com/vizi2000/maicrosoft/pkg/resolve"
)

// Code node bodies. Each %s is filled from resolved inputs.
const (
	transformMapJS = `// Transform: Map operation
const items = %s;
const results = items.map(item => {
  return %s;
});
return results.map(json => ({json}));`

	transformFilterJS = `// Transform: Filter operation
const items = %s;
const results = items.filter(item => {
  return %s;
});
return results.map(json => ({json}));`

	transformReduceJS = `// Transform: Reduce operation
const items = %s;
const result = items.reduce((acc, item) => {
  %s
}, %s);
return [{json: result}];`

	transformFlattenJS = `// Transform: Flatten operation
const items = %s;
const results = items.flat();
return results.map(json => ({json}));`

	transformPassJS = `// Transform: %s
const items = %s;
return items.map(json => ({json}));`

	logJS = `// Log: %s
console.log('%s: %s');
console.log('Data:', %s);

// Pass through input data
return $input.all();`
)

func codeParameters(code string) map[string]interface{} {
	return map[string]interface{}{
		"mode":   "runOnceForAllItems",
		"jsCode": code,
	}
}

func transformParameters(inputs resolve.NodeInputs) map[string]interface{} {
	operation := stringInput(inputs, "operation", "map")
	source := jsExpression(inputs, "source", "$input.all()")
	template := stringInput(inputs, "template", "")
	condition := stringInput(inputs, "condition", "true")

	var code string
	switch operation {
	case "map":
		expr := template
		if expr == "" {
			expr = "item"
		}
		code = fmt.Sprintf(transformMapJS, source, expr)
	case "filter":
		code = fmt.Sprintf(transformFilterJS, source, condition)
	case "reduce":
		body := template
		if body == "" {
			body = "return acc;"
		}
		code = fmt.Sprintf(transformReduceJS, source, body, jsExpression(inputs, "initial", "{}"))
	case "flatten":
		code = fmt.Sprintf(transformFlattenJS, source)
	default:
		code = fmt.Sprintf(transformPassJS, operation, source)
	}

	return codeParameters(code)
}

func branchParameters(inputs resolve.NodeInputs) map[string]interface{} {
	return map[string]interface{}{
		"conditions": map[string]interface{}{
			"options": map[string]interface{}{
				"caseSensitive": true,
				"leftValue":     "",
			},
			"conditions": []interface{}{
				map[string]interface{}{
					"leftValue":  valueInput(inputs, "condition", "={{ $json }}"),
					"rightValue": "",
					"operator": map[string]interface{}{
						"type":      "boolean",
						"operation": "true",
					},
				},
			},
			"combinator": "and",
		},
	}
}

func loopParameters(inputs resolve.NodeInputs) map[string]interface{} {
	return map[string]interface{}{
		"batchSize": valueInput(inputs, "batch_size", 1),
		"options":   map[string]interface{}{},
	}
}

func llmParameters(inputs resolve.NodeInputs) map[string]interface{} {
	return map[string]interface{}{
		"resource":  "chat",
		"operation": "message",
		"model":     valueInput(inputs, "model", "gpt-4"),
		"messages": map[string]interface{}{
			"values": []interface{}{
				map[string]interface{}{
					"role":    "system",
					"content": valueInput(inputs, "system_prompt", ""),
				},
				map[string]interface{}{
					"role":    "user",
					"content": valueInput(inputs, "prompt", ""),
				},
			},
		},
		"options": map[string]interface{}{
			"temperature": valueInput(inputs, "temperature", 0.7),
			"maxTokens":   valueInput(inputs, "max_tokens", 1000),
		},
	}
}

func logParameters(inputs resolve.NodeInputs) map[string]interface{} {
	level := strings.ToUpper(stringInput(inputs, "level", "info"))
	message := stringInput(inputs, "message", "")
	data := valueInput(inputs, "data", map[string]interface{}{})

	return codeParameters(fmt.Sprintf(logJS, level, level, message, compactJSON(data)))
}

func fallbackParameters(f *plan.Fallback) map[string]interface{} {
	return codeParameters(wrapFallbackCode(f))
}

// wrapFallbackCode frames validated fallback code for the Code node.
// JavaScript runs as written under a provenance header. Python cannot
// run inside n8n, so it ships as a string constant for an external
// execution service, with the items passed through untouched.
func wrapFallbackCode(f *plan.Fallback) string {
	switch f.Language {
	case plan.LanguageJavaScript:
		return fmt.Sprintf(`// Maicrosoft Fallback Code: %s
// Inputs: %s
// Outputs: %s

%s`, f.Description, schemaJSON(f.InputsSchema), schemaJSON(f.OutputsSchema), f.Code)
	case plan.LanguagePython:
		return fmt.Sprintf(`// Maicrosoft Fallback: Python code (requires external execution)
// Description: %s
// WARNING: Python fallback not directly executable in N8N

const pythonCode = %s;
// TODO: Send to Python execution service
return $input.all();`, f.Description, "`"+f.Code+"`")
	default:
		return f.Code
	}
}

// stringInput returns the named input when it resolved to a string.
func stringInput(inputs resolve.NodeInputs, name, def string) string {
	if v, ok := inputs[name].(string); ok {
		return v
	}
	return def
}

// valueInput returns the named input in whatever form it resolved to.
func valueInput(inputs resolve.NodeInputs, name string, def interface{}) interface{} {
	if v, ok := inputs[name]; ok {
		return v
	}
	return def
}

// jsExpression returns the named input as a bare JavaScript expression
// for embedding in generated code. A whole-value target expression
// loses its parameter wrapping, since inside a Code node the runtime
// objects are addressed directly. Non-strings embed as JSON.
func jsExpression(inputs resolve.NodeInputs, name, def string) string {
	v, ok := inputs[name]
	if !ok {
		return def
	}
	s, isString := v.(string)
	if !isString {
		return compactJSON(v)
	}
	if inner, found := strings.CutPrefix(s, "={{ "); found {
		if expr, whole := strings.CutSuffix(inner, " }}"); whole && !strings.Contains(expr, "{{") {
			return expr
		}
	}
	return s
}

func schemaJSON(schema map[string]string) string {
	if schema == nil {
		schema = map[string]string{}
	}
	return compactJSON(schema)
}

// compactJSON serializes without HTML escaping, map keys sorted.
func compactJSON(v interface{}) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "null"
	}
	return strings.TrimRight(buf.String(), "\n")
}
