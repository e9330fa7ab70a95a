// Package compose turns a finalized reasoning output into the response
// returned to the caller. The composer owns the no-duplication rule between
// UI metadata and answer text: any metadata element whose textual content is
// already fully present in the answer is dropped and noted on the trace.
package compose

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/archielabs/archie/internal/reason"
	"github.com/archielabs/archie/internal/trace"
	"github.com/archielabs/archie/internal/ui"
)

// AgentResponse is the final, caller-facing result of one request.
type AgentResponse struct {
	MessageID      string       `json:"message_id"`
	ConversationID string       `json:"conversation_id"`
	Role           string       `json:"role"`
	Text           string       `json:"text"`
	TextFormat     string       `json:"text_format"`
	Metadata       *ui.Metadata `json:"metadata,omitempty"`
	Trace          trace.Trace  `json:"trace"`
	CreatedAt      time.Time    `json:"created_at"`

	// Warnings carries operational notes that are not part of the answer,
	// such as a failed backend sync.
	Warnings []string `json:"warnings,omitempty"`
}

// Composer assembles agent responses.
type Composer struct {
	now func() time.Time
	log zerolog.Logger
}

// NewComposer builds a composer.
func NewComposer(log zerolog.Logger) *Composer {
	return &Composer{
		now: time.Now,
		log: log.With().Str("component", "compose").Logger(),
	}
}

// WithClock overrides the time source.
func (c *Composer) WithClock(now func() time.Time) *Composer {
	c.now = now
	return c
}

// Compose builds the response for a finalized output. The output's metadata
// is filtered against the answer text; the output itself is not modified.
func (c *Composer) Compose(conversationID, format string, out *reason.Output) *AgentResponse {
	tr := out.Trace
	md := c.filterMetadata(out.Answer, out.Metadata, &tr)

	return &AgentResponse{
		MessageID:      "msg_" + uuid.New().String(),
		ConversationID: conversationID,
		Role:           "assistant",
		Text:           out.Answer,
		TextFormat:     format,
		Metadata:       md,
		Trace:          tr,
		CreatedAt:      c.now().UTC(),
	}
}

// filterMetadata enforces the no-duplication rule. A prose field already
// contained in the answer is blanked; an element whose entire textual
// content duplicates the answer is dropped. Contact cards and tables are
// all-or-nothing since blanking individual identity fields or cells would
// leave them incoherent. Comparison is case-insensitive with whitespace
// collapsed.
func (c *Composer) filterMetadata(answer string, md *ui.Metadata, tr *trace.Trace) *ui.Metadata {
	if md == nil {
		return nil
	}
	norm := normalize(answer)

	kept := &ui.Metadata{Buttons: md.Buttons}

	for _, card := range md.Cards {
		if containedIn(norm, card.Title, card.Text) {
			c.drop(tr, "card", card.Title)
			continue
		}
		card.Title = c.stripField(norm, tr, "card title", card.Title)
		card.Text = c.stripField(norm, tr, "card text", card.Text)
		kept.Cards = append(kept.Cards, card)
	}

	if nav := md.NavigationCard; nav != nil {
		if containedIn(norm, nav.Title, nav.Description) {
			c.drop(tr, "navigation card", nav.Title)
		} else {
			cp := *nav
			cp.Title = c.stripField(norm, tr, "navigation card title", cp.Title)
			cp.Description = c.stripField(norm, tr, "navigation card description", cp.Description)
			kept.NavigationCard = &cp
		}
	}

	if contact := md.ContactCard; contact != nil {
		if containedIn(norm, contact.Name, contact.Email, contact.Phone) {
			c.drop(tr, "contact card", contact.Name)
		} else {
			kept.ContactCard = contact
		}
	}

	if table := md.Table; table != nil {
		cells := append([]string{}, table.Headers...)
		for _, row := range table.Rows {
			cells = append(cells, row...)
		}
		if containedIn(norm, cells...) {
			c.drop(tr, "table", strings.Join(table.Headers, ", "))
		} else {
			kept.Table = table
		}
	}

	for _, el := range md.Elements {
		if containedIn(norm, el.Title, el.Value) {
			c.drop(tr, "element", el.Title)
			continue
		}
		el.Title = c.stripField(norm, tr, "element title", el.Title)
		el.Value = c.stripField(norm, tr, "element value", el.Value)
		kept.Elements = append(kept.Elements, el)
	}

	if kept.Empty() {
		return nil
	}
	return kept
}

// stripField blanks a single field whose content the answer already carries.
func (c *Composer) stripField(normAnswer string, tr *trace.Trace, kind, value string) string {
	n := normalize(value)
	if n == "" || !strings.Contains(normAnswer, n) {
		return value
	}
	c.drop(tr, kind, value)
	return ""
}

func (c *Composer) drop(tr *trace.Trace, kind, label string) {
	msg := fmt.Sprintf("dropped %s %q: content duplicates the answer text", kind, label)
	c.log.Debug().Str("kind", kind).Str("label", label).Msg("metadata element duplicates answer")
	tr.AddWarning(msg)
}

// containedIn reports whether every non-empty fragment already appears in
// the normalized answer. Elements with no text at all are kept.
func containedIn(normAnswer string, fragments ...string) bool {
	any := false
	for _, frag := range fragments {
		n := normalize(frag)
		if n == "" {
			continue
		}
		any = true
		if !strings.Contains(normAnswer, n) {
			return false
		}
	}
	return any
}

// normalize lowercases and collapses all whitespace runs to single spaces.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
