package reason

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/archielabs/archie/internal/llm"
	"github.com/archielabs/archie/internal/prompt"
)

const (
	defaultMaxAttempts  = 3
	defaultRetryBackoff = 500 * time.Millisecond
)

// Engine produces schema-validated outputs from a model provider.
//
// Transport failures are retried up to MaxAttempts with doubling backoff
// before the request fails with ErrModelUnavailable. A schema-invalid reply
// gets exactly one corrective retry carrying the validation errors; a second
// invalid reply fails with ErrSchemaInvalid.
type Engine struct {
	provider    llm.Provider
	model       string
	maxAttempts int
	backoff     time.Duration
	temperature float64
	maxTokens   int
	sleep       func(context.Context, time.Duration) error
	log         zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxAttempts sets how many transport attempts each model call gets.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithRetryBackoff sets the initial backoff between transport retries.
func WithRetryBackoff(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.backoff = d
		}
	}
}

// WithTemperature sets the sampling temperature sent to the provider.
func WithTemperature(t float64) Option {
	return func(e *Engine) { e.temperature = t }
}

// WithMaxTokens caps the response length.
func WithMaxTokens(n int) Option {
	return func(e *Engine) { e.maxTokens = n }
}

// NewEngine builds a reasoning engine on the given provider.
func NewEngine(provider llm.Provider, model string, log zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		provider:    provider,
		model:       model,
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultRetryBackoff,
		sleep:       sleepCtx,
		log:         log.With().Str("component", "reason").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Generate runs one model call against the prompt and returns the validated
// output. The prompt is not mutated.
func (e *Engine) Generate(ctx context.Context, p prompt.Prompt) (*Output, error) {
	content, err := e.chat(ctx, p.System, p.Messages)
	if err != nil {
		return nil, err
	}

	result, err := validateOutput(content)
	if err != nil {
		return nil, err
	}
	if !result.Valid() {
		e.log.Warn().
			Str("model", e.model).
			Strs("violations", violationList(result)).
			Msg("model output failed schema validation, retrying once")

		corrective := append(append([]llm.Message{}, p.Messages...),
			llm.Message{Role: "assistant", Content: content},
			llm.Message{Role: "user", Content: correctiveInstruction(result)},
		)
		content, err = e.chat(ctx, p.System, corrective)
		if err != nil {
			return nil, err
		}
		result, err = validateOutput(content)
		if err != nil {
			return nil, err
		}
		if !result.Valid() {
			return nil, fmt.Errorf("%w: %s", ErrSchemaInvalid, strings.Join(violationList(result), "; "))
		}
	}

	var out Output
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("%w: decode output: %v", ErrSchemaInvalid, err)
	}
	out.Trace.Normalize()
	out.Raw = json.RawMessage(content)
	return &out, nil
}

// chat calls the provider with transport retries and doubling backoff.
func (e *Engine) chat(ctx context.Context, system string, messages []llm.Message) (string, error) {
	req := &llm.ChatRequest{
		Model:          e.model,
		SystemPrompt:   system,
		Messages:       messages,
		ResponseName:   "agent_response",
		ResponseSchema: ResponseSchema,
		MaxTokens:      e.maxTokens,
		Temperature:    e.temperature,
	}

	var lastErr error
	wait := e.backoff
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		resp, err := e.provider.Chat(ctx, req)
		if err == nil {
			return resp.Content, nil
		}
		lastErr = err
		e.log.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", e.maxAttempts).
			Msg("model call failed")

		if attempt == e.maxAttempts {
			break
		}
		if err := e.sleep(ctx, wait); err != nil {
			return "", fmt.Errorf("%w: %v", ErrModelUnavailable, err)
		}
		wait *= 2
	}
	return "", fmt.Errorf("%w: %d attempts: %v", ErrModelUnavailable, e.maxAttempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var responseSchemaLoader = gojsonschema.NewBytesLoader(ResponseSchema)

func validateOutput(content string) (*gojsonschema.Result, error) {
	result, err := gojsonschema.Validate(responseSchemaLoader, gojsonschema.NewStringLoader(content))
	if err != nil {
		// Not valid JSON at all; treat as a schema violation rather than a
		// transport failure so the corrective retry path applies.
		return invalidJSONResult(content)
	}
	return result, nil
}

func invalidJSONResult(content string) (*gojsonschema.Result, error) {
	// Validating a bare string against an object schema yields a regular
	// invalid result carrying a type violation.
	quoted, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("inspect model output: %w", err)
	}
	return gojsonschema.Validate(responseSchemaLoader, gojsonschema.NewBytesLoader(quoted))
}

func violationList(result *gojsonschema.Result) []string {
	errs := result.Errors()
	list := make([]string, len(errs))
	for i, e := range errs {
		list[i] = e.String()
	}
	return list
}

func correctiveInstruction(result *gojsonschema.Result) string {
	var sb strings.Builder
	sb.WriteString("Your previous response did not satisfy the required JSON schema:\n")
	for _, v := range violationList(result) {
		sb.WriteString("- ")
		sb.WriteString(v)
		sb.WriteString("\n")
	}
	sb.WriteString("Respond again with a single JSON object that satisfies the schema exactly. Do not include any text outside the JSON object.")
	return sb.String()
}
