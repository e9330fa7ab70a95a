// Package prompt turns an assembled conversation context into the exact
// system prompt and message list sent to the model. Building is pure and
// deterministic: the same persona, context, and user text always produce
// byte-identical output, so prompts can be diffed and replayed.
package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/archielabs/archie/internal/conversation"
	"github.com/archielabs/archie/internal/llm"
	"github.com/archielabs/archie/internal/persona"
	"github.com/archielabs/archie/internal/tools"
)

// Answer format hints. The format travels with the request and ends up on
// the response as TextFormat.
const (
	FormatPlain    = "plain"
	FormatMarkdown = "markdown"
	FormatUI       = "ui"
)

// ValidFormat reports whether f is a recognised answer format.
func ValidFormat(f string) bool {
	switch f {
	case FormatPlain, FormatMarkdown, FormatUI:
		return true
	}
	return false
}

// Request carries everything the builder needs for one prompt.
type Request struct {
	Persona  *persona.Persona
	Context  *conversation.Context
	UserText string
	Format   string
}

// Prompt is the fully rendered model input.
type Prompt struct {
	System   string
	Messages []llm.Message
}

// Builder renders prompts. Tool declarations come from the registry in its
// stable declared order.
type Builder struct {
	registry *tools.Registry
}

// NewBuilder builds a prompt builder. registry may be nil when no tools are
// available; the tool section is then omitted.
func NewBuilder(registry *tools.Registry) *Builder {
	return &Builder{registry: registry}
}

// Build renders the system prompt and message list for one request.
func (b *Builder) Build(req Request) (Prompt, error) {
	if req.Persona == nil {
		return Prompt{}, fmt.Errorf("build prompt: persona is required")
	}
	if req.Context == nil {
		return Prompt{}, fmt.Errorf("build prompt: context is required")
	}
	format := req.Format
	if format == "" {
		format = FormatPlain
	}
	if !ValidFormat(format) {
		return Prompt{}, fmt.Errorf("build prompt: unknown format %q", req.Format)
	}

	system, err := b.renderSystem(req, format)
	if err != nil {
		return Prompt{}, err
	}

	messages := make([]llm.Message, 0, len(req.Context.Turns)+1)
	for _, turn := range req.Context.Turns {
		messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Text})
	}
	messages = append(messages, llm.Message{Role: "user", Content: req.UserText})

	return Prompt{System: system, Messages: messages}, nil
}

func (b *Builder) renderSystem(req Request, format string) (string, error) {
	ctx := req.Context
	personaText, err := req.Persona.Render(persona.RenderData{
		UserName:       ctx.Facts.DisplayName,
		Locale:         ctx.Facts.Locale,
		Timezone:       ctx.Facts.Timezone,
		Units:          ctx.Facts.Units,
		Currency:       ctx.Facts.Currency,
		DefaultCity:    ctx.Facts.DefaultCity,
		DefaultCountry: ctx.Facts.DefaultCountry,
		CurrentDate:    ctx.Now.Format("2006-01-02"),
		CurrentTime:    ctx.Now.Format("15:04"),
		Weekday:        ctx.Now.Weekday().String(),
	})
	if err != nil {
		return "", fmt.Errorf("render persona %q: %w", req.Persona.Key, err)
	}

	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(personaText))
	sb.WriteString("\n\n")
	sb.WriteString(outputContract)
	sb.WriteString("\n\n")
	sb.WriteString(formatInstructions(format))

	if b.registry != nil {
		if section := b.toolSection(); section != "" {
			sb.WriteString("\n\n")
			sb.WriteString(section)
		}
	}

	if ctx.HistoryDegraded {
		sb.WriteString("\n\nEarlier turns of this conversation could not be loaded. Answer from the current message alone and do not pretend to remember prior context.")
	}

	return sb.String(), nil
}

// toolSection lists the available tools with their JSON schemas. Schemas are
// compacted so rendering is stable regardless of how they were declared.
func (b *Builder) toolSection() string {
	list := b.registry.List()
	if len(list) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## Available tools\n\n")
	sb.WriteString("You may request ONE round of tool calls when the answer requires live data. After tool results arrive you must produce a final answer; a second round is not allowed. If no tool is needed, answer directly.\n")
	for _, tool := range list {
		sb.WriteString("\n### ")
		sb.WriteString(tool.Name())
		sb.WriteString("\n")
		sb.WriteString(tool.Description())
		sb.WriteString("\nArguments schema: ")
		sb.WriteString(compactJSON(tool.InputSchema()))
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func compactJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

func formatInstructions(format string) string {
	switch format {
	case FormatMarkdown:
		return "## Answer format\n\nWrite the answer in Markdown. Use headings and lists only where they genuinely aid reading."
	case FormatUI:
		return "## Answer format\n\nThe client renders rich UI. Keep the answer text short and put structured data (locations, contacts, tabular figures) into the ui metadata fields instead of repeating it in the text."
	default:
		return "## Answer format\n\nWrite the answer as plain text without Markdown syntax."
	}
}

// outputContract describes the required response shape. The model is also
// held to it mechanically through a strict JSON schema on the request.
const outputContract = `## Response contract

Respond with a single JSON object and nothing else. Work through the fields in order:

1. "trace.routing": classify the request first. Pick one intent (answer_general, weather, currency, web_search, clarify, out_of_scope, tool_dispatch) and state your confidence and rationale in one or two sentences.
2. "trace.evidence": list the facts your answer rests on, and for each whether the available context supports, contradicts, or leaves it uncertain.
3. "trace.sources": reference where each piece of evidence came from (conversation history, tool result, or general knowledge).
4. "trace.verification": "verified" only when every evidence item is supported; "contradicted" when any item conflicts; otherwise "unverified".
5. "trace.reasoning": a short working-through of how the evidence leads to the answer.
6. "tool_calls": only when the intent is tool_dispatch and you have not received tool results yet. Each call names a tool, its arguments, and why it is needed.
7. "answer": the final reply to the user. Leave it empty when requesting tools.
8. "metadata": optional UI elements. Never restate in the answer text what the metadata already shows.

The reasoning trace is mandatory on every response, including tool requests and refusals.`
