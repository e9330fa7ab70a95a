// Package agent wires the request pipeline together: persona lookup, context
// assembly, prompt building, the reasoning rounds with their optional tool
// dispatch, response composition, and the backend sync.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/archielabs/archie/internal/backend"
	"github.com/archielabs/archie/internal/compose"
	"github.com/archielabs/archie/internal/conversation"
	"github.com/archielabs/archie/internal/logging"
	"github.com/archielabs/archie/internal/persona"
	"github.com/archielabs/archie/internal/prompt"
	"github.com/archielabs/archie/internal/reason"
	"github.com/archielabs/archie/internal/tools"
	"github.com/archielabs/archie/internal/trace"
)

const defaultSyncTimeout = 5 * time.Second

// Backend is the slice of the backend client the pipeline writes through.
type Backend interface {
	CreateConversation(ctx context.Context) (string, error)
	SaveTurn(ctx context.Context, conversationID string, rec backend.TurnRecord) error
}

// TraceArchive persists reasoning traces. Optional.
type TraceArchive interface {
	Save(ctx context.Context, conversationID, messageID string, t *trace.Trace) error
}

// Request is one user message to process.
type Request struct {
	// ConversationID continues an existing conversation. Empty starts a
	// new one.
	ConversationID string

	// Persona selects the persona template. Empty uses the default.
	Persona string

	// Format is the requested answer format. Empty uses the default.
	Format string

	// Text is the user's message.
	Text string
}

// Pipeline processes requests end to end.
type Pipeline struct {
	personas  *persona.Registry
	assembler *conversation.Assembler
	builder   *prompt.Builder
	engine    *reason.Engine
	executor  *tools.Executor
	composer  *compose.Composer
	backend   Backend
	archive   TraceArchive

	defaultPersona string
	defaultFormat  string
	syncTimeout    time.Duration
	now            func() time.Time
	log            zerolog.Logger
}

// Options configures optional pipeline behaviour.
type Options struct {
	DefaultPersona string
	DefaultFormat  string
	SyncTimeout    time.Duration

	// Archive receives every finalized trace. Nil disables archiving.
	Archive TraceArchive
}

// New builds a pipeline. backend may be nil for a fully offline run; the
// response then carries a sync warning.
func New(
	personas *persona.Registry,
	assembler *conversation.Assembler,
	builder *prompt.Builder,
	engine *reason.Engine,
	executor *tools.Executor,
	composer *compose.Composer,
	be Backend,
	opts Options,
	log zerolog.Logger,
) *Pipeline {
	p := &Pipeline{
		personas:       personas,
		assembler:      assembler,
		builder:        builder,
		engine:         engine,
		executor:       executor,
		composer:       composer,
		backend:        be,
		archive:        opts.Archive,
		defaultPersona: opts.DefaultPersona,
		defaultFormat:  opts.DefaultFormat,
		syncTimeout:    opts.SyncTimeout,
		now:            time.Now,
		log:            log.With().Str("component", "agent").Logger(),
	}
	if p.defaultPersona == "" {
		p.defaultPersona = "business"
	}
	if p.defaultFormat == "" {
		p.defaultFormat = prompt.FormatPlain
	}
	if p.syncTimeout <= 0 {
		p.syncTimeout = defaultSyncTimeout
	}
	return p
}

// Handle processes one request and returns the composed response.
//
// Hard failures are persona lookup, prompt building, and the reasoning
// rounds. History reads and the final backend sync never fail the request:
// the former degrades onto the trace, the latter becomes a response warning.
func (p *Pipeline) Handle(ctx context.Context, req Request) (*compose.AgentResponse, error) {
	receivedAt := p.now().UTC()

	personaKey := req.Persona
	if personaKey == "" {
		personaKey = p.defaultPersona
	}
	pers, err := p.personas.Get(personaKey)
	if err != nil {
		return nil, err
	}

	format := req.Format
	if format == "" {
		format = p.defaultFormat
	}
	if !prompt.ValidFormat(format) {
		return nil, fmt.Errorf("unknown format %q", req.Format)
	}

	convCtx, err := p.assembler.Assemble(ctx, req.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("assemble context: %w", err)
	}

	built, err := p.builder.Build(prompt.Request{
		Persona:  pers,
		Context:  convCtx,
		UserText: req.Text,
		Format:   format,
	})
	if err != nil {
		return nil, err
	}

	out, err := p.reasonRounds(ctx, built)
	if err != nil {
		return nil, err
	}
	if convCtx.HistoryDegraded {
		out.Trace.MarkDegradedHistory()
	}

	conversationID, convWarning := p.ensureConversation(ctx, req.ConversationID)

	resp := p.composer.Compose(conversationID, format, out)
	if convWarning != "" {
		resp.Warnings = append(resp.Warnings, convWarning)
	}

	p.archiveTrace(ctx, resp)
	p.sync(ctx, resp, req.Text, receivedAt)

	p.log.Info().
		Str("conversation_id", conversationID).
		Str("message_id", resp.MessageID).
		Str("persona", personaKey).
		Str("intent", string(resp.Trace.Routing.Intent)).
		Int("warnings", len(resp.Warnings)).
		Msg("request handled")
	return resp, nil
}

// reasonRounds runs the drafting round and, when requested, the single tool
// round plus the final round.
func (p *Pipeline) reasonRounds(ctx context.Context, built prompt.Prompt) (*reason.Output, error) {
	sess := reason.NewSession(p.engine, built)

	out, err := sess.Step(ctx)
	if err != nil {
		return nil, err
	}
	if !out.WantsTools() {
		return out, nil
	}

	calls := out.Calls()
	p.log.Debug().Int("calls", len(calls)).Msg("executing tool round")
	results := p.executor.ExecuteRound(ctx, calls)
	if err := sess.FoldResults(results); err != nil {
		return nil, err
	}
	return sess.Step(ctx)
}

// ensureConversation resolves the conversation id for the response. For a
// new conversation the backend assigns the id; if it cannot, a local id is
// used and the degradation is reported as a warning.
func (p *Pipeline) ensureConversation(ctx context.Context, requested string) (string, string) {
	if requested != "" {
		return requested, ""
	}
	if p.backend != nil && ctx.Err() == nil {
		id, err := p.backend.CreateConversation(ctx)
		if err == nil {
			return id, ""
		}
		p.log.Warn().Err(err).Msg("backend conversation create failed, using local id")
	}
	return "conv_" + uuid.New().String(), fmt.Sprintf("%v: conversation created locally", ErrBackendSyncFailed)
}

func (p *Pipeline) archiveTrace(ctx context.Context, resp *compose.AgentResponse) {
	if p.archive == nil {
		return
	}
	if err := p.archive.Save(ctx, resp.ConversationID, resp.MessageID, &resp.Trace); err != nil {
		p.log.Warn().Err(err).Str("message_id", resp.MessageID).Msg("trace archive write failed")
	}
}

// sync persists both turns of the exchange. It runs on a detached context so
// a caller cancellation that lands after the answer was produced cannot tear
// the write down; a cancellation that arrived earlier skips the sync. Sync
// failure is a response warning, never an error.
func (p *Pipeline) sync(ctx context.Context, resp *compose.AgentResponse, userText string, receivedAt time.Time) {
	if p.backend == nil {
		resp.Warnings = append(resp.Warnings, fmt.Sprintf("%v: no backend configured", ErrBackendSyncFailed))
		return
	}
	if ctx.Err() != nil {
		resp.Warnings = append(resp.Warnings, fmt.Sprintf("%v: request cancelled before sync", ErrBackendSyncFailed))
		return
	}

	detached, cancel := logging.DetachContextWithTimeout(ctx, p.syncTimeout)
	defer cancel()

	userRec := backend.TurnRecord{
		MessageID: backend.NewMessageID(),
		Role:      "user",
		Text:      userText,
		CreatedAt: receivedAt,
	}
	if err := p.backend.SaveTurn(detached, resp.ConversationID, userRec); err != nil {
		p.log.Warn().Err(err).Msg("user turn sync failed")
		resp.Warnings = append(resp.Warnings, fmt.Sprintf("%v: user turn not persisted", ErrBackendSyncFailed))
		return
	}

	var md json.RawMessage
	if resp.Metadata != nil {
		if raw, err := json.Marshal(resp.Metadata); err == nil {
			md = raw
		}
	}
	assistantRec := backend.TurnRecord{
		MessageID:  resp.MessageID,
		Role:       resp.Role,
		Text:       resp.Text,
		TextFormat: resp.TextFormat,
		Metadata:   md,
		CreatedAt:  resp.CreatedAt,
	}
	if err := p.backend.SaveTurn(detached, resp.ConversationID, assistantRec); err != nil {
		p.log.Warn().Err(err).Msg("assistant turn sync failed")
		resp.Warnings = append(resp.Warnings, fmt.Sprintf("%v: assistant turn not persisted", ErrBackendSyncFailed))
	}
}
