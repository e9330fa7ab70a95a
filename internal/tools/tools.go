// Package tools provides the tool catalogue and execution layer for the
// Archie agent. Each tool declares a name, a description, and a JSON-schema
// input contract; the executor validates arguments against that contract
// before invoking the tool and runs one dispatch round with bounded
// concurrency, preserving request order in the aggregated results.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// Tool defines the interface all agent tools implement.
type Tool interface {
	// Name returns the tool identifier used in the prompt and in tool calls.
	Name() string

	// Description explains what the tool does, for the prompt.
	Description() string

	// InputSchema returns the JSON-schema document for the tool's arguments.
	InputSchema() json.RawMessage

	// Invoke executes the tool. Implementations honour ctx cancellation and
	// deadlines; retry policy is the tool's own concern.
	Invoke(ctx context.Context, args map[string]any) (map[string]any, error)
}

// Registry is the declared tool catalogue. Tool order is stable: the order
// of declaration, which keeps prompt construction deterministic.
type Registry struct {
	ordered []Tool
	byName  map[string]Tool
}

// NewRegistry builds a registry from the given tools. Duplicate names are a
// configuration error.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{byName: make(map[string]Tool, len(tools))}
	for _, tool := range tools {
		name := tool.Name()
		if _, exists := r.byName[name]; exists {
			return nil, fmt.Errorf("tool %q already registered", name)
		}
		r.byName[name] = tool
		r.ordered = append(r.ordered, tool)
	}
	return r, nil
}

// List returns all tools in stable declared order.
func (r *Registry) List() []Tool {
	out := make([]Tool, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Get returns a registered tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Names returns the registered tool names in declared order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.ordered))
	for _, t := range r.ordered {
		names = append(names, t.Name())
	}
	return names
}

// Call is one tool invocation requested by the reasoning step.
type Call struct {
	// ID correlates the call with its result in the trace.
	ID string `json:"id"`
	// Name of the tool to invoke.
	Name string `json:"name"`
	// Arguments as produced by the model; validated before execution.
	Arguments map[string]any `json:"arguments"`
}

// Result is the outcome of executing one Call. Errors are values here, not
// pipeline failures: a failed tool result is folded into the next reasoning
// pass so the model can recover.
type Result struct {
	CallID   string         `json:"call_id"`
	Name     string         `json:"name"`
	Output   map[string]any `json:"output,omitempty"`
	Error    string         `json:"error,omitempty"`
	TimedOut bool           `json:"timed_out,omitempty"`
}

// OK reports whether the call produced a usable output.
func (r Result) OK() bool {
	return r.Error == "" && !r.TimedOut
}

// Summary renders the result as a compact string for the follow-up prompt.
// Map keys are sorted by the JSON encoder, so output is deterministic.
func (r Result) Summary() string {
	if r.TimedOut {
		return fmt.Sprintf("%s: error: timed out", r.Name)
	}
	if r.Error != "" {
		return fmt.Sprintf("%s: error: %s", r.Name, r.Error)
	}
	payload, err := json.Marshal(sortedCopy(r.Output))
	if err != nil {
		return fmt.Sprintf("%s: error: unencodable output", r.Name)
	}
	return fmt.Sprintf("%s: %s", r.Name, payload)
}

func sortedCopy(m map[string]any) map[string]any {
	// json.Marshal already sorts map keys; the copy just guards the caller's
	// map from mutation elsewhere.
	out := make(map[string]any, len(m))
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out[k] = m[k]
	}
	return out
}
