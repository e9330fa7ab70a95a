// Package reason runs the structured-output reasoning loop: it sends the
// built prompt to the model, holds the reply to a strict JSON schema, and
// drives the single-round tool dispatch state machine.
package reason

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/archielabs/archie/internal/tools"
	"github.com/archielabs/archie/internal/trace"
	"github.com/archielabs/archie/internal/ui"
)

var (
	// ErrModelUnavailable means the model could not be reached after all
	// transport retries.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrSchemaInvalid means the model output still violated the response
	// schema after the corrective retry.
	ErrSchemaInvalid = errors.New("model output failed schema validation")

	// ErrToolLoopExceeded means the model requested a second tool round.
	ErrToolLoopExceeded = errors.New("tool dispatch round already used")
)

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	Name      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
	Reason    string         `json:"reason,omitempty"`
}

// Output is one validated model response. Every output carries a reasoning
// trace; tool requests additionally carry ToolCalls and leave Answer empty.
type Output struct {
	Trace     trace.Trace  `json:"trace"`
	ToolCalls []ToolCall   `json:"tool_calls,omitempty"`
	Answer    string       `json:"answer"`
	Metadata  *ui.Metadata `json:"metadata,omitempty"`

	// Raw is the schema-validated model text this output was parsed from.
	Raw json.RawMessage `json:"-"`
}

// WantsTools reports whether this output is a tool request.
func (o *Output) WantsTools() bool {
	return len(o.ToolCalls) > 0
}

// Calls converts the requested tool calls into executor calls, assigning
// positional ids so results can be matched back in order.
func (o *Output) Calls() []tools.Call {
	calls := make([]tools.Call, len(o.ToolCalls))
	for i, tc := range o.ToolCalls {
		calls[i] = tools.Call{
			ID:        fmt.Sprintf("call_%d", i+1),
			Name:      tc.Name,
			Arguments: tc.Arguments,
		}
	}
	return calls
}

// ResponseSchema is the JSON schema every model response must satisfy. It is
// sent with the request as a structured-output constraint and enforced again
// locally before the output is trusted.
var ResponseSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"trace": {
			"type": "object",
			"properties": {
				"routing": {
					"type": "object",
					"properties": {
						"intent": {
							"type": "string",
							"enum": ["answer_general", "weather", "currency", "web_search", "clarify", "out_of_scope", "tool_dispatch"]
						},
						"rationale": {"type": "string"}
					},
					"required": ["intent", "rationale"]
				},
				"evidence": {
					"type": "array",
					"items": {
						"type": "object",
						"properties": {
							"claim": {"type": "string"},
							"support": {"type": "string", "enum": ["supported", "contradicted", "uncertain"]},
							"source_ids": {"type": "array", "items": {"type": "integer"}}
						},
						"required": ["claim", "support"]
					}
				},
				"sources": {
					"type": "array",
					"items": {
						"type": "object",
						"properties": {
							"id": {"type": "integer"},
							"url": {"type": "string"},
							"title": {"type": "string"},
							"snippet": {"type": "string"}
						},
						"required": ["id"]
					}
				},
				"verification": {"type": "string", "enum": ["verified", "unverified", "contradicted"]},
				"reasoning": {"type": "string"}
			},
			"required": ["routing", "verification"]
		},
		"tool_calls": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"tool": {"type": "string"},
					"arguments": {"type": "object"},
					"reason": {"type": "string"}
				},
				"required": ["tool", "arguments"]
			}
		},
		"answer": {"type": "string"},
		"metadata": {
			"type": "object",
			"properties": {
				"cards": {"type": "array"},
				"buttons": {"type": "array"},
				"navigation_card": {"type": "object"},
				"contact_card": {"type": "object"},
				"table": {"type": "object"},
				"elements": {"type": "array"}
			}
		}
	},
	"required": ["trace", "answer"]
}`)
