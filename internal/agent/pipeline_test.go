package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archielabs/archie/internal/backend"
	"github.com/archielabs/archie/internal/compose"
	"github.com/archielabs/archie/internal/conversation"
	"github.com/archielabs/archie/internal/llm"
	"github.com/archielabs/archie/internal/persona"
	"github.com/archielabs/archie/internal/prompt"
	"github.com/archielabs/archie/internal/reason"
	"github.com/archielabs/archie/internal/tools"
	"github.com/archielabs/archie/internal/trace"
)

const finalAnswer = `{"trace":{"routing":{"intent":"answer_general","rationale":"plain question"},"verification":"unverified","reasoning":"direct"},"answer":"All done."}`

const weatherToolRequest = `{"trace":{"routing":{"intent":"tool_dispatch","rationale":"needs live weather"},"verification":"unverified"},"tool_calls":[{"tool":"weather","arguments":{"city":"Paris"},"reason":"current conditions"}],"answer":""}`

type scriptedProvider struct {
	replies  []string
	errs     []error
	requests []*llm.ChatRequest
}

func (p *scriptedProvider) Chat(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	p.requests = append(p.requests, req)
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		return nil, err
	}
	if len(p.replies) == 0 {
		return nil, errors.New("no scripted reply")
	}
	content := p.replies[0]
	p.replies = p.replies[1:]
	return &llm.ChatResponse{Content: content}, nil
}

func (p *scriptedProvider) Name() string { return "scripted" }

type fakeHistory struct {
	turns []conversation.Turn
	err   error
	calls int
}

func (f *fakeHistory) RecentTurns(context.Context, string, int) ([]conversation.Turn, error) {
	f.calls++
	return f.turns, f.err
}

type fakeBackend struct {
	createID   string
	createErr  error
	saveErr    error
	saved      []backend.TurnRecord
	savedConvs []string
}

func (f *fakeBackend) CreateConversation(context.Context) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	if f.createID == "" {
		return "conv_new", nil
	}
	return f.createID, nil
}

func (f *fakeBackend) SaveTurn(_ context.Context, conversationID string, rec backend.TurnRecord) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, rec)
	f.savedConvs = append(f.savedConvs, conversationID)
	return nil
}

type echoTool struct {
	name    string
	invoked int
}

func (e *echoTool) Name() string        { return e.name }
func (e *echoTool) Description() string { return "Echo tool." }
func (e *echoTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {"city": {"type": "string"}}}`)
}

func (e *echoTool) Invoke(_ context.Context, args map[string]any) (map[string]any, error) {
	e.invoked++
	out := map[string]any{"echo": e.name}
	for k, v := range args {
		out[k] = v
	}
	return out, nil
}

type fixture struct {
	pipeline *Pipeline
	provider *scriptedProvider
	history  *fakeHistory
	backend  *fakeBackend
	tool     *echoTool
}

func newFixture(t *testing.T, replies []string, errs []error) *fixture {
	t.Helper()

	personas, err := persona.Load()
	require.NoError(t, err)

	history := &fakeHistory{}
	assembler := conversation.NewAssembler(history, conversation.UserFacts{DisplayName: "Dana"}, 20, zerolog.Nop())

	tool := &echoTool{name: "weather"}
	registry, err := tools.NewRegistry(tool)
	require.NoError(t, err)

	provider := &scriptedProvider{replies: replies, errs: errs}
	engine := reason.NewEngine(provider, "test-model", zerolog.Nop(),
		reason.WithMaxAttempts(1))

	be := &fakeBackend{}
	p := New(
		personas,
		assembler,
		prompt.NewBuilder(registry),
		engine,
		tools.NewExecutor(registry, zerolog.Nop()),
		compose.NewComposer(zerolog.Nop()),
		be,
		Options{SyncTimeout: time.Second},
		zerolog.Nop(),
	)
	return &fixture{pipeline: p, provider: provider, history: history, backend: be, tool: tool}
}

func TestHandleDirectAnswer(t *testing.T) {
	f := newFixture(t, []string{finalAnswer}, nil)

	resp, err := f.pipeline.Handle(context.Background(), Request{
		ConversationID: "conv_1",
		Text:           "hello",
	})
	require.NoError(t, err)

	assert.Equal(t, "conv_1", resp.ConversationID)
	assert.Equal(t, "assistant", resp.Role)
	assert.Equal(t, "All done.", resp.Text)
	assert.Equal(t, "plain", resp.TextFormat)
	assert.Empty(t, resp.Warnings)
	assert.Equal(t, trace.IntentAnswerGeneral, resp.Trace.Routing.Intent)

	// both turns synced, user first
	require.Len(t, f.backend.saved, 2)
	assert.Equal(t, "user", f.backend.saved[0].Role)
	assert.Equal(t, "hello", f.backend.saved[0].Text)
	assert.Equal(t, "assistant", f.backend.saved[1].Role)
	assert.Equal(t, resp.MessageID, f.backend.saved[1].MessageID)
}

func TestHandleToolRound(t *testing.T) {
	f := newFixture(t, []string{weatherToolRequest, finalAnswer}, nil)

	resp, err := f.pipeline.Handle(context.Background(), Request{
		ConversationID: "conv_1",
		Text:           "weather in Paris?",
	})
	require.NoError(t, err)

	assert.Equal(t, "All done.", resp.Text)
	assert.Equal(t, 1, f.tool.invoked)
	require.Len(t, f.provider.requests, 2)
	// the second model call sees the tool results
	last := f.provider.requests[1].Messages
	assert.Contains(t, last[len(last)-1].Content, "Tool results:")
}

func TestHandleUnknownPersonaNoModelCall(t *testing.T) {
	f := newFixture(t, []string{finalAnswer}, nil)

	_, err := f.pipeline.Handle(context.Background(), Request{
		ConversationID: "conv_1",
		Persona:        "pirate",
		Text:           "hi",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersonaNotFound)
	assert.Empty(t, f.provider.requests)
	assert.Empty(t, f.backend.saved)
}

func TestHandleUnknownFormat(t *testing.T) {
	f := newFixture(t, []string{finalAnswer}, nil)

	_, err := f.pipeline.Handle(context.Background(), Request{
		ConversationID: "conv_1",
		Format:         "xml",
		Text:           "hi",
	})
	require.Error(t, err)
	assert.Empty(t, f.provider.requests)
}

func TestHandleDegradedHistory(t *testing.T) {
	f := newFixture(t, []string{finalAnswer}, nil)
	f.history.err = backend.ErrUnavailable

	resp, err := f.pipeline.Handle(context.Background(), Request{
		ConversationID: "conv_1",
		Text:           "hi",
	})
	require.NoError(t, err)

	assert.Contains(t, resp.Trace.Evidence[len(resp.Trace.Evidence)-1].Claim, "history unavailable")
	assert.Equal(t, trace.Unverified, resp.Trace.Verification)
}

func TestHandleModelUnavailable(t *testing.T) {
	f := newFixture(t, nil, []error{errors.New("connection refused")})

	_, err := f.pipeline.Handle(context.Background(), Request{
		ConversationID: "conv_1",
		Text:           "hi",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.Empty(t, f.backend.saved)
}

func TestHandleToolLoopExceeded(t *testing.T) {
	f := newFixture(t, []string{weatherToolRequest, weatherToolRequest}, nil)

	_, err := f.pipeline.Handle(context.Background(), Request{
		ConversationID: "conv_1",
		Text:           "weather?",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrToolLoopExceeded)
	assert.Equal(t, 1, f.tool.invoked)
	assert.Empty(t, f.backend.saved)
}

func TestHandleNewConversationGetsBackendID(t *testing.T) {
	f := newFixture(t, []string{finalAnswer}, nil)
	f.backend.createID = "conv_fresh"

	resp, err := f.pipeline.Handle(context.Background(), Request{Text: "hi"})
	require.NoError(t, err)

	assert.Equal(t, "conv_fresh", resp.ConversationID)
	// no history fetch for a brand new conversation
	assert.Equal(t, 0, f.history.calls)
	require.Len(t, f.backend.savedConvs, 2)
	assert.Equal(t, "conv_fresh", f.backend.savedConvs[0])
}

func TestHandleConversationCreateFailureFallsBackLocally(t *testing.T) {
	f := newFixture(t, []string{finalAnswer}, nil)
	f.backend.createErr = backend.ErrUnavailable

	resp, err := f.pipeline.Handle(context.Background(), Request{Text: "hi"})
	require.NoError(t, err)

	assert.Contains(t, resp.ConversationID, "conv_")
	require.NotEmpty(t, resp.Warnings)
	assert.Contains(t, resp.Warnings[0], "conversation created locally")
}

func TestHandleSyncFailureIsWarningNotError(t *testing.T) {
	f := newFixture(t, []string{finalAnswer}, nil)
	f.backend.saveErr = backend.ErrUnavailable

	resp, err := f.pipeline.Handle(context.Background(), Request{
		ConversationID: "conv_1",
		Text:           "hi",
	})
	require.NoError(t, err)

	assert.Equal(t, "All done.", resp.Text)
	require.Len(t, resp.Warnings, 1)
	assert.Contains(t, resp.Warnings[0], "backend sync failed")
}

func TestHandleCancelledContextSkipsSync(t *testing.T) {
	f := newFixture(t, []string{finalAnswer}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The model call itself ignores the scripted provider's context, so the
	// pipeline reaches the sync stage with a cancelled context.
	resp, err := f.pipeline.Handle(ctx, Request{ConversationID: "conv_1", Text: "hi"})
	require.NoError(t, err)

	assert.Empty(t, f.backend.saved)
	require.NotEmpty(t, resp.Warnings)
	assert.Contains(t, resp.Warnings[0], "cancelled before sync")
}

func TestHandleArchivesTrace(t *testing.T) {
	f := newFixture(t, []string{finalAnswer}, nil)

	archive := &recordingArchive{}
	f.pipeline.archive = archive

	resp, err := f.pipeline.Handle(context.Background(), Request{ConversationID: "conv_1", Text: "hi"})
	require.NoError(t, err)

	require.Len(t, archive.saves, 1)
	assert.Equal(t, "conv_1", archive.saves[0].conversationID)
	assert.Equal(t, resp.MessageID, archive.saves[0].messageID)
}

type archiveSave struct {
	conversationID string
	messageID      string
}

type recordingArchive struct {
	saves []archiveSave
}

func (r *recordingArchive) Save(_ context.Context, conversationID, messageID string, _ *trace.Trace) error {
	r.saves = append(r.saves, archiveSave{conversationID, messageID})
	return nil
}
