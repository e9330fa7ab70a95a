package reason

import (
	"context"
	"fmt"
	"strings"

	"github.com/archielabs/archie/internal/llm"
	"github.com/archielabs/archie/internal/prompt"
	"github.com/archielabs/archie/internal/tools"
)

// State is the lifecycle phase of a reasoning session.
type State string

const (
	// StateDrafting means the session is ready for a model call.
	StateDrafting State = "drafting"

	// StateToolsPending means the model requested tools and the session is
	// waiting for their results to be folded back in.
	StateToolsPending State = "tools_pending"

	// StateFinalized means a final answer was produced.
	StateFinalized State = "finalized"

	// StateFailed means the session hit an unrecoverable error.
	StateFailed State = "failed"
)

// Session drives the reasoning rounds for one request. A session allows at
// most one tool dispatch round: the first tool request moves it to
// StateToolsPending, and a tool request on any later round fails the
// session with ErrToolLoopExceeded.
type Session struct {
	engine     *Engine
	prompt     prompt.Prompt
	state      State
	dispatched bool
}

// NewSession starts a session over the built prompt.
func NewSession(engine *Engine, p prompt.Prompt) *Session {
	// Own the message slice so folded tool results never alias the
	// caller's prompt.
	p.Messages = append([]llm.Message{}, p.Messages...)
	return &Session{engine: engine, prompt: p, state: StateDrafting}
}

// State returns the current session state.
func (s *Session) State() State {
	return s.state
}

// Step runs one model call. It returns the validated output and moves the
// session to StateToolsPending, StateFinalized, or StateFailed.
func (s *Session) Step(ctx context.Context) (*Output, error) {
	if s.state != StateDrafting {
		return nil, fmt.Errorf("reasoning step in state %q", s.state)
	}

	out, err := s.engine.Generate(ctx, s.prompt)
	if err != nil {
		s.state = StateFailed
		return nil, err
	}

	if out.WantsTools() {
		if s.dispatched {
			s.state = StateFailed
			return nil, fmt.Errorf("%w: model requested %d more calls after the tool round", ErrToolLoopExceeded, len(out.ToolCalls))
		}
		s.dispatched = true
		s.state = StateToolsPending
		s.prompt.Messages = append(s.prompt.Messages, llm.Message{Role: "assistant", Content: string(out.Raw)})
		return out, nil
	}

	s.state = StateFinalized
	return out, nil
}

// FoldResults feeds tool results back into the conversation and returns the
// session to StateDrafting for the final model call. Results are rendered in
// the order they were requested.
func (s *Session) FoldResults(results []tools.Result) error {
	if s.state != StateToolsPending {
		return fmt.Errorf("fold results in state %q", s.state)
	}

	var sb strings.Builder
	sb.WriteString("Tool results:\n")
	for _, res := range results {
		sb.WriteString("- ")
		sb.WriteString(res.Summary())
		sb.WriteString("\n")
	}
	sb.WriteString("Produce the final answer now. Further tool calls are not allowed.")

	s.prompt.Messages = append(s.prompt.Messages, llm.Message{Role: "user", Content: sb.String()})
	s.state = StateDrafting
	return nil
}
