package agenda

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bryan-buckman/confsync/internal/model"
)

func TestClassifyCascade(t *testing.T) {
	numbered := at(13, 0)
	nt := BuildNumbering([]model.Event{
		sessionEvent("1", "A", at(9, 30)),
		sessionEvent("2", "B", at(9, 30)),
		sessionEvent("3", "C", numbered),
		sessionEvent("4", "D", numbered),
		sessionEvent("5", "E", numbered),
	}, testLoc)

	cases := []struct {
		name  string
		ev    model.Event
		title string
		typ   model.DisplayType
	}{
		{"break", model.Event{Title: "Afternoon Break", SessionTypeLabel: "Break"}, "Afternoon Break", model.DisplayFood},
		{"plenary", model.Event{Title: "IETF Plenary", SessionTypeLabel: "Plenary"}, "IETF Plenary", model.DisplayFood},
		{"hackathon", model.Event{Title: "Hackathon Kick-off", SessionTypeLabel: "Other"}, "Hackathon Kick-off", model.DisplayHackathon},
		{"hackathon results", model.Event{Title: "Hackathon Results Presentations"}, "Hackathon Results Presentations", model.DisplayOfficeHours},
		{"noc", model.Event{Title: "NOC Helpdesk"}, "NOC Helpdesk", model.DisplayNOCHelpdesk},
		{"help desk", model.Event{Title: "Meetecho Help Desk"}, "Meetecho Help Desk", model.DisplayNOCHelpdesk},
		{"staff office hours", model.Event{Title: "IAB Office Hours", Group: "IAB"}, "IAB Office Hours", model.DisplayOfficeHours},
		{"ad office hours", model.Event{Title: "SEC AD Office Hours", Group: "iesg"}, "SEC AD Office Hours", model.DisplayNOCHelpdesk},
		{"liaison office hours", model.Event{Title: "Liaison Office Hours", Group: "foo"}, "Liaison Office Hours", model.DisplayOfficeHours},
		{"wg office hours fall through", model.Event{Title: "QUIC Office Hours", Group: "quic", SessionTypeLabel: "Session", Start: at(18, 0)}, "QUIC Office Hours", model.DisplayOfficeHours},
		{"registration", model.Event{Title: "IETF 120 Registration", SessionTypeLabel: "None"}, RegistrationTitle, model.DisplayOfficeHours},
		{"none", model.Event{Title: "Side thing", SessionTypeLabel: "None"}, UnnamedTitle, model.DisplaySession},
		{"numbered", model.Event{Title: "Tuesday Afternoon Session I", SessionTypeLabel: "session", Start: numbered}, "Tue Session II", model.DisplaySession},
		{"iepg", model.Event{Title: "IEPG Meeting", SessionTypeLabel: "Session", Start: at(7, 30)}, "IEPG Meeting", model.DisplayNOCHelpdesk},
		{"social", model.Event{Title: "Host Reception", SessionTypeLabel: "Session", Start: at(19, 0)}, "Host Reception", model.DisplayFood},
		{"program", model.Event{Title: "Newcomers' Orientation", SessionTypeLabel: "Session", Start: at(16, 0)}, "Newcomers' Orientation", model.DisplayOfficeHours},
		{"evening wg", model.Event{Title: "Evening BoF", SessionTypeLabel: "Session", Start: at(20, 0)}, "Evening BoF", model.DisplaySession},
		{"fallback type", model.Event{Title: "Whatever", SessionTypeLabel: "Other"}, "Other", model.DisplaySession},
		{"fallback title", model.Event{Title: "Whatever"}, "Whatever", model.DisplaySession},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(DefaultRules, tc.ev, nt)
			assert.Equal(t, tc.title, got.Title)
			assert.Equal(t, tc.typ, got.Type)
		})
	}
}

func TestClassifyNilNumberingTable(t *testing.T) {
	got := Classify(DefaultRules, model.Event{Title: "WG", SessionTypeLabel: "Session", Start: at(9, 0)}, nil)
	assert.Equal(t, "WG", got.Title)
	assert.Equal(t, model.DisplaySession, got.Type)
}

func TestClassifyCustomRuleOrder(t *testing.T) {
	// With the plenary rule first, a plenary break lands in FOOD via plenary.
	rules := []Rule{{Name: "plenary", Match: titleRule("plenary", model.DisplayHackathon)}}
	rules = append(rules, DefaultRules...)
	got := Classify(rules, model.Event{Title: "Plenary Break"}, nil)
	assert.Equal(t, model.DisplayHackathon, got.Type)
}
