// Package compose evaluates Starlark scripts that assemble plan
// documents. Scripts run sandboxed with a bounded execution time and no
// access to the filesystem or network. A script builds nodes, edges,
// and a trigger using the helper builtins and assigns the finished
// document to a global named "plan".
package compose

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/vizi2000/maicrosoft/pkg/plan"
)

// Result is the outcome of one composition run.
type Result struct {
	// Plan is the composed document with defaults filled in.
	Plan *plan.Plan `json:"plan,omitempty"`

	// Document is the composed document encoded as JSON.
	Document json.RawMessage `json:"document,omitempty"`

	// ExecutionTime is how long the script took to execute.
	ExecutionTime time.Duration `json:"execution_time"`

	// Error is any error that occurred.
	Error string `json:"error,omitempty"`
}

// Evaluator executes composition scripts safely.
type Evaluator struct {
	timeout time.Duration
}

// NewEvaluator creates a new script evaluator.
func NewEvaluator(timeout time.Duration) *Evaluator {
	if timeout == 0 {
		timeout = 30 * time.Second // Default timeout
	}
	return &Evaluator{
		timeout: timeout,
	}
}

// Compose executes a composition script with the given input and
// returns the plan it produced. Input values are exposed to the script
// as predeclared variables.
func (e *Evaluator) Compose(ctx context.Context, script string, input map[string]interface{}) (*Result, error) {
	startTime := time.Now()

	evalCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	thread := &starlark.Thread{
		Name: "compose",
		Print: func(_ *starlark.Thread, _ string) {
			// print output is discarded
		},
	}

	resultCh := make(chan *Result, 1)
	errCh := make(chan error, 1)

	go func() {
		result, err := e.evaluateSync(thread, script, input)
		if err != nil {
			errCh <- err
		} else {
			resultCh <- result
		}
	}()

	select {
	case <-evalCtx.Done():
		thread.Cancel("composition timeout")
		return &Result{
			ExecutionTime: time.Since(startTime),
			Error:         fmt.Sprintf("execution timeout after %v", e.timeout),
		}, fmt.Errorf("composition timed out after %v", e.timeout)
	case err := <-errCh:
		return &Result{
			ExecutionTime: time.Since(startTime),
			Error:         err.Error(),
		}, err
	case result := <-resultCh:
		result.ExecutionTime = time.Since(startTime)
		return result, nil
	}
}

// ComposeFile reads a composition script from disk and executes it.
func (e *Evaluator) ComposeFile(ctx context.Context, path string, input map[string]interface{}) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read composition script: %w", err)
	}
	return e.Compose(ctx, string(data), input)
}

// evaluateSync performs the actual Starlark evaluation synchronously.
func (e *Evaluator) evaluateSync(thread *starlark.Thread, script string, input map[string]interface{}) (*Result, error) {
	// Build predeclared environment with the plan builtins and input
	predeclared := starlark.StringDict{
		"struct":   starlarkstruct.Default,
		"node":     starlark.NewBuiltin("node", builtinNode),
		"edge":     starlark.NewBuiltin("edge", builtinEdge),
		"trigger":  starlark.NewBuiltin("trigger", builtinTrigger),
		"fallback": starlark.NewBuiltin("fallback", builtinFallback),
	}

	for key, val := range input {
		starlarkVal, err := toStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert input %s: %w", key, err)
		}
		predeclared[key] = starlarkVal
	}

	globals, err := starlark.ExecFile(thread, "compose.star", script, predeclared)
	if err != nil {
		return nil, fmt.Errorf("starlark execution failed: %w", err)
	}

	planVal, ok := globals["plan"]
	if !ok {
		return nil, fmt.Errorf("script does not define a global named plan")
	}

	doc, err := fromStarlarkValue(planVal)
	if err != nil {
		return nil, fmt.Errorf("failed to convert plan: %w", err)
	}

	encoded, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode plan document: %w", err)
	}

	composed, err := plan.Parse(encoded)
	if err != nil {
		return nil, err
	}

	return &Result{
		Plan:     composed,
		Document: encoded,
	}, nil
}

// toStarlarkValue converts a Go value to a Starlark value.
func toStarlarkValue(v interface{}) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []interface{}:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			starlarkItem, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = starlarkItem
		}
		return starlark.NewList(list), nil
	case map[string]interface{}:
		dict := starlark.NewDict(len(val))
		for k, v := range val {
			starlarkVal, err := toStarlarkValue(v)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), starlarkVal); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// fromStarlarkValue converts a Starlark value to a Go value.
func fromStarlarkValue(v starlark.Value) (interface{}, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case starlark.Tuple:
		list := make([]interface{}, len(val))
		for i, item := range val {
			converted, err := fromStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = converted
		}
		return list, nil
	case *starlark.List:
		list := make([]interface{}, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := fromStarlarkValue(val.Index(i))
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	case *starlark.Dict:
		dict := make(map[string]interface{})
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string")
			}
			value, err := fromStarlarkValue(item[1])
			if err != nil {
				return nil, err
			}
			dict[string(key)] = value
		}
		return dict, nil
	case *starlarkstruct.Struct:
		dict := make(map[string]interface{})
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			value, err := fromStarlarkValue(attr)
			if err != nil {
				return nil, err
			}
			dict[name] = value
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}
