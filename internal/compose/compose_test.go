package compose

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archielabs/archie/internal/reason"
	"github.com/archielabs/archie/internal/trace"
	"github.com/archielabs/archie/internal/ui"
)

func testOutput(answer string, md *ui.Metadata) *reason.Output {
	return &reason.Output{
		Trace: trace.Trace{
			Routing:      trace.RoutingDecision{Intent: trace.IntentAnswerGeneral, Rationale: "test"},
			Verification: trace.Unverified,
		},
		Answer:   answer,
		Metadata: md,
	}
}

func newTestComposer() *Composer {
	fixed := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	return NewComposer(zerolog.Nop()).WithClock(func() time.Time { return fixed })
}

func TestComposeBasicResponse(t *testing.T) {
	resp := newTestComposer().Compose("conv_1", "plain", testOutput("Hello there.", nil))

	assert.True(t, len(resp.MessageID) > 4 && resp.MessageID[:4] == "msg_")
	assert.Equal(t, "conv_1", resp.ConversationID)
	assert.Equal(t, "assistant", resp.Role)
	assert.Equal(t, "Hello there.", resp.Text)
	assert.Equal(t, "plain", resp.TextFormat)
	assert.Nil(t, resp.Metadata)
	assert.Equal(t, time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC), resp.CreatedAt)
	assert.Empty(t, resp.Warnings)
}

func TestComposeDropsDuplicatedCard(t *testing.T) {
	md := &ui.Metadata{
		Cards: []ui.Card{
			{Title: "Weather", Text: "18 degrees and sunny"},
			{Title: "Forecast", Text: "rain expected tomorrow"},
		},
	}
	out := testOutput("It is currently 18   degrees and SUNNY in Paris.", md)
	resp := newTestComposer().Compose("conv_1", "ui", out)

	require.NotNil(t, resp.Metadata)
	require.Len(t, resp.Metadata.Cards, 1)
	assert.Equal(t, "Forecast", resp.Metadata.Cards[0].Title)
	require.Len(t, resp.Trace.Warnings, 1)
	assert.Contains(t, resp.Trace.Warnings[0], "duplicates the answer text")
	// the input output is untouched
	assert.Len(t, out.Metadata.Cards, 2)
	assert.Empty(t, out.Trace.Warnings)
}

func TestComposeDropsDuplicatedCardTitleOnly(t *testing.T) {
	// A card whose only text is its title, restated in the answer.
	md := &ui.Metadata{Cards: []ui.Card{{Title: "Eiffel Tower"}}}
	resp := newTestComposer().Compose("c", "ui", testOutput("Visit the Eiffel Tower today.", md))
	assert.Nil(t, resp.Metadata)
}

func TestComposeStripsDuplicatedFieldKeepsElement(t *testing.T) {
	// Title appears in the answer but the card body adds new content: the
	// card survives with the duplicated title blanked.
	md := &ui.Metadata{Cards: []ui.Card{{Title: "Eiffel Tower", Text: "Open 09:00 to 23:45"}}}
	out := testOutput("The Eiffel Tower is worth a visit.", md)
	resp := newTestComposer().Compose("c", "ui", out)

	require.NotNil(t, resp.Metadata)
	require.Len(t, resp.Metadata.Cards, 1)
	assert.Empty(t, resp.Metadata.Cards[0].Title)
	assert.Equal(t, "Open 09:00 to 23:45", resp.Metadata.Cards[0].Text)
	require.Len(t, resp.Trace.Warnings, 1)
	assert.Contains(t, resp.Trace.Warnings[0], "card title")
	// the input card is untouched
	assert.Equal(t, "Eiffel Tower", out.Metadata.Cards[0].Title)
}

func TestComposeStripsDuplicatedElementValue(t *testing.T) {
	md := &ui.Metadata{Elements: []ui.Element{{Title: "Temperature", Value: "18 degrees"}}}
	resp := newTestComposer().Compose("c", "ui", testOutput("Currently 18 degrees outside.", md))

	require.NotNil(t, resp.Metadata)
	require.Len(t, resp.Metadata.Elements, 1)
	assert.Equal(t, "Temperature", resp.Metadata.Elements[0].Title)
	assert.Empty(t, resp.Metadata.Elements[0].Value)
	assert.Len(t, resp.Trace.Warnings, 1)
}

func TestComposeNavigationAndContactCards(t *testing.T) {
	md := &ui.Metadata{
		NavigationCard: &ui.NavigationCard{Title: "Alexanderplatz", Buttons: ui.DefaultNavigationButtons()},
		ContactCard:    &ui.ContactCard{Name: "Dana Smith", Phone: "+49 30 1234567", Buttons: ui.DefaultContactButtons()},
	}
	out := testOutput("Alexanderplatz is 2 km away.", md)
	resp := newTestComposer().Compose("c", "ui", out)

	require.NotNil(t, resp.Metadata)
	// navigation card title duplicates the answer, contact card does not
	assert.Nil(t, resp.Metadata.NavigationCard)
	require.NotNil(t, resp.Metadata.ContactCard)
	assert.Equal(t, "Dana Smith", resp.Metadata.ContactCard.Name)
	assert.Len(t, resp.Trace.Warnings, 1)
}

func TestComposeDropsFullyDuplicatedTable(t *testing.T) {
	md := &ui.Metadata{Table: &ui.Table{
		Headers: []string{"Currency", "Rate"},
		Rows:    [][]string{{"USD", "1.08"}},
	}}
	out := testOutput("Currency rate today: 1 EUR buys 1.08 USD.", md)
	resp := newTestComposer().Compose("c", "ui", out)
	assert.Nil(t, resp.Metadata)
	assert.Len(t, resp.Trace.Warnings, 1)
}

func TestComposeKeepsButtonsAlways(t *testing.T) {
	md := &ui.Metadata{Buttons: []ui.ButtonOption{{Text: "Show on map", Command: ui.CommandShowOnMap}}}
	resp := newTestComposer().Compose("c", "ui", testOutput("Show on map", md))
	require.NotNil(t, resp.Metadata)
	assert.Len(t, resp.Metadata.Buttons, 1)
}

func TestComposeEmptyMetadataBecomesNil(t *testing.T) {
	resp := newTestComposer().Compose("c", "plain", testOutput("hi", &ui.Metadata{}))
	assert.Nil(t, resp.Metadata)
}
