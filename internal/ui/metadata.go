// Package ui defines the structured metadata elements an agent response may
// carry alongside its free-text answer: cards, tables, navigation and contact
// shortcuts. Metadata is renderable by the caller and is kept strictly
// disjoint from the answer text (the composer enforces that).
package ui

// Button command vocabulary. Callers map these to concrete actions; the
// reasoning step may only emit commands from this set.
const (
	CommandShowOnMap = "show_on_map"
	CommandRoute     = "route"
	CommandCall      = "call"
	CommandEmail     = "email"
	CommandMessage   = "message"
)

// ButtonOption is a labelled action button.
type ButtonOption struct {
	Text    string `json:"text"`
	Command string `json:"command"`
}

// Card is a generic content card with optional action buttons.
type Card struct {
	Title   string         `json:"title,omitempty"`
	Text    string         `json:"text"`
	Buttons []ButtonOption `json:"buttons,omitempty"`
}

// NavigationCard points at a place or route.
type NavigationCard struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	URL         string         `json:"url,omitempty"`
	Buttons     []ButtonOption `json:"buttons,omitempty"`
}

// DefaultNavigationButtons returns the fixed button set for navigation cards.
func DefaultNavigationButtons() []ButtonOption {
	return []ButtonOption{
		{Text: "Show on map", Command: CommandShowOnMap},
		{Text: "Route", Command: CommandRoute},
	}
}

// ContactCard carries contact details with the fixed contact actions.
type ContactCard struct {
	Name    string         `json:"name"`
	Email   string         `json:"email,omitempty"`
	Phone   string         `json:"phone,omitempty"`
	Buttons []ButtonOption `json:"buttons,omitempty"`
}

// DefaultContactButtons returns the fixed button set for contact cards.
func DefaultContactButtons() []ButtonOption {
	return []ButtonOption{
		{Text: "Call", Command: CommandCall},
		{Text: "Email", Command: CommandEmail},
		{Text: "Message", Command: CommandMessage},
	}
}

// Table is a simple header/rows table.
type Table struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// Element is a titled key/value pair for compact fact lists.
type Element struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

// Metadata is the full set of UI elements attached to a response.
type Metadata struct {
	Cards          []Card          `json:"cards,omitempty"`
	Buttons        []ButtonOption  `json:"buttons,omitempty"`
	NavigationCard *NavigationCard `json:"navigation_card,omitempty"`
	ContactCard    *ContactCard    `json:"contact_card,omitempty"`
	Table          *Table          `json:"table,omitempty"`
	Elements       []Element       `json:"elements,omitempty"`
}

// Empty reports whether the metadata carries no elements at all.
func (m *Metadata) Empty() bool {
	if m == nil {
		return true
	}
	return len(m.Cards) == 0 && len(m.Buttons) == 0 &&
		m.NavigationCard == nil && m.ContactCard == nil &&
		m.Table == nil && len(m.Elements) == 0
}
