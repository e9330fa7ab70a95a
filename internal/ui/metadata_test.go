package ui

import "testing"

func TestEmpty(t *testing.T) {
	var m *Metadata
	if !m.Empty() {
		t.Error("nil metadata should be empty")
	}
	if !(&Metadata{}).Empty() {
		t.Error("zero metadata should be empty")
	}
	if (&Metadata{Buttons: []ButtonOption{{Text: "Call", Command: CommandCall}}}).Empty() {
		t.Error("metadata with buttons should not be empty")
	}
	if (&Metadata{Table: &Table{Headers: []string{"a"}}}).Empty() {
		t.Error("metadata with a table should not be empty")
	}
}

func TestDefaultButtonSets(t *testing.T) {
	nav := DefaultNavigationButtons()
	if len(nav) == 0 {
		t.Fatal("no navigation buttons")
	}
	for _, b := range nav {
		if b.Command != CommandShowOnMap && b.Command != CommandRoute {
			t.Errorf("unexpected navigation command %q", b.Command)
		}
	}

	contact := DefaultContactButtons()
	if len(contact) == 0 {
		t.Fatal("no contact buttons")
	}
	for _, b := range contact {
		switch b.Command {
		case CommandCall, CommandEmail, CommandMessage:
		default:
			t.Errorf("unexpected contact command %q", b.Command)
		}
	}
}
