// Package conversation assembles the per-request context for the reasoning
// pipeline: prior turns fetched from the external backend plus user facts and
// the current time. The assembled Context is owned by one request and never
// shared.
package conversation

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Turn is one prior message in a conversation.
type Turn struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// UserFacts are the process-wide user profile facts injected into prompts.
type UserFacts struct {
	DisplayName    string
	Timezone       string
	Locale         string
	Units          string
	Currency       string
	DefaultCity    string
	DefaultCountry string
}

// Context is the assembled request context handed to the prompt builder.
type Context struct {
	ConversationID string
	Turns          []Turn // oldest to newest
	Facts          UserFacts
	Now            time.Time

	// HistoryDegraded is set when the backend read failed and the request
	// proceeds with empty history. The pipeline records this on the trace.
	HistoryDegraded bool
}

// HistorySource fetches recent turns for a conversation. The external
// backend client implements this; tests substitute fakes.
type HistorySource interface {
	RecentTurns(ctx context.Context, conversationID string, limit int) ([]Turn, error)
}

// Assembler gathers conversation history and user facts for one request.
type Assembler struct {
	history HistorySource
	facts   UserFacts
	window  int
	now     func() time.Time
	log     zerolog.Logger
}

// NewAssembler builds an assembler. window bounds how many recent turns are
// fetched per request; now is injectable for tests and defaults to time.Now.
func NewAssembler(history HistorySource, facts UserFacts, window int, log zerolog.Logger) *Assembler {
	return &Assembler{
		history: history,
		facts:   facts,
		window:  window,
		now:     time.Now,
		log:     log,
	}
}

// WithClock overrides the time source.
func (a *Assembler) WithClock(now func() time.Time) *Assembler {
	a.now = now
	return a
}

// Assemble builds the request context. A backend read failure does not abort
// the request: the context degrades to empty history and the degradation is
// flagged for the trace.
func (a *Assembler) Assemble(ctx context.Context, conversationID string) (*Context, error) {
	out := &Context{
		ConversationID: conversationID,
		Facts:          a.facts,
		Now:            a.now(),
	}

	if conversationID == "" || a.window == 0 {
		return out, nil
	}

	turns, err := a.history.RecentTurns(ctx, conversationID, a.window)
	if err != nil {
		// Degrade to a fresh conversation rather than failing the request.
		a.log.Warn().Err(err).
			Str("conversation", conversationID).
			Msg("history fetch failed, degrading to empty history")
		out.HistoryDegraded = true
		return out, nil
	}

	out.Turns = turns
	return out, nil
}
