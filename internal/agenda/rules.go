package agenda

import (
	"strings"

	"github.com/bryan-buckman/confsync/internal/model"
)

// RegistrationTitle is the block title used for every registration slot.
const RegistrationTitle = "Registration"

// UnnamedTitle is the block title for events whose type is "None".
const UnnamedTitle = "..."

// staffGroups may hold office hours that get their own column.
var staffGroups = map[string]bool{
	"iesg":        true,
	"iab":         true,
	"irtf":        true,
	"iana":        true,
	"ietf":        true,
	"llc":         true,
	"rfceditor":   true,
	"secretariat": true,
}

var socialKeywords = []string{
	"reception", "social", "dinner", "lunch", "happy hour", "game night", "networking",
}

var programKeywords = []string{
	"education", "outreach", "tutorial", "newcomer", "new participant", "tools",
	"chairs", "forum", "program", "series", "sprint", "hotrfc", "lightning talk",
	"office hours",
}

// Classification is the display decision for one event.
type Classification struct {
	Title string
	Type  model.DisplayType
}

// Rule is one step of the classification cascade.
type Rule struct {
	Name  string
	Match func(ev model.Event, nt *NumberingTable) (Classification, bool)
}

// DefaultRules is the cascade in priority order; the first match wins.
// IEPG is checked inside the session rule before generic special-event
// bucketing so it keeps its own column.
var DefaultRules = []Rule{
	{Name: "break", Match: titleRule("break", model.DisplayFood)},
	{Name: "plenary", Match: titleRule("plenary", model.DisplayFood)},
	{Name: "hackathon", Match: matchHackathon},
	{Name: "noc", Match: matchNOC},
	{Name: "office-hours", Match: matchOfficeHours},
	{Name: "registration", Match: matchRegistration},
	{Name: "none", Match: matchNone},
	{Name: "session", Match: matchSession},
	{Name: "fallback", Match: matchFallback},
}

// Classify runs rules in order and returns the first match.
func Classify(rules []Rule, ev model.Event, nt *NumberingTable) Classification {
	for _, r := range rules {
		if c, ok := r.Match(ev, nt); ok {
			return c
		}
	}
	return Classification{Title: ev.Title, Type: model.DisplayUnknown}
}

func lower(s string) string { return strings.ToLower(s) }

func titleRule(kw string, typ model.DisplayType) func(model.Event, *NumberingTable) (Classification, bool) {
	return func(ev model.Event, _ *NumberingTable) (Classification, bool) {
		if !hasKeyword(lower(ev.Title), kw) {
			return Classification{}, false
		}
		return Classification{Title: ev.Title, Type: typ}, true
	}
}

func matchHackathon(ev model.Event, _ *NumberingTable) (Classification, bool) {
	title := lower(ev.Title)
	if !strings.Contains(title, "hackathon") {
		return Classification{}, false
	}
	// Results/presentations sit inside the main hackathon block.
	if strings.Contains(title, "results") || strings.Contains(title, "presentations") {
		return Classification{Title: ev.Title, Type: model.DisplayOfficeHours}, true
	}
	return Classification{Title: ev.Title, Type: model.DisplayHackathon}, true
}

func matchNOC(ev model.Event, _ *NumberingTable) (Classification, bool) {
	title := lower(ev.Title)
	if hasKeyword(title, "noc") || strings.Contains(title, "helpdesk") || strings.Contains(title, "help desk") {
		return Classification{Title: ev.Title, Type: model.DisplayNOCHelpdesk}, true
	}
	return Classification{}, false
}

func matchOfficeHours(ev model.Event, _ *NumberingTable) (Classification, bool) {
	title := lower(ev.Title)
	if !strings.Contains(title, "office hours") {
		return Classification{}, false
	}
	staff := staffGroups[lower(strings.TrimSpace(ev.Group))] ||
		strings.Contains(title, "coordinator") || strings.Contains(title, "liaison")
	if !staff {
		return Classification{}, false
	}
	if strings.Contains(title, "ad office hours") {
		return Classification{Title: ev.Title, Type: model.DisplayNOCHelpdesk}, true
	}
	return Classification{Title: ev.Title, Type: model.DisplayOfficeHours}, true
}

func matchRegistration(ev model.Event, _ *NumberingTable) (Classification, bool) {
	if strings.Contains(lower(ev.SessionTypeLabel), "registration") || strings.Contains(lower(ev.Title), "registration") {
		return Classification{Title: RegistrationTitle, Type: model.DisplayOfficeHours}, true
	}
	return Classification{}, false
}

func matchNone(ev model.Event, _ *NumberingTable) (Classification, bool) {
	if strings.EqualFold(strings.TrimSpace(ev.SessionTypeLabel), "none") {
		return Classification{Title: UnnamedTitle, Type: model.DisplaySession}, true
	}
	return Classification{}, false
}

func matchSession(ev model.Event, nt *NumberingTable) (Classification, bool) {
	if !IsSessionTyped(ev) {
		return Classification{}, false
	}
	if label, ok := nt.Label(ev.Start); ok {
		return Classification{Title: label, Type: model.DisplaySession}, true
	}
	return Classification{Title: ev.Title, Type: specialEventType(ev.Title)}, true
}

// specialEventType buckets a session-typed slot that did not get a number.
func specialEventType(title string) model.DisplayType {
	t := lower(title)
	switch {
	case strings.Contains(t, "iepg"):
		return model.DisplayNOCHelpdesk
	case containsAny(t, socialKeywords):
		return model.DisplayFood
	case containsAny(t, programKeywords):
		return model.DisplayOfficeHours
	default:
		return model.DisplaySession
	}
}

func matchFallback(ev model.Event, _ *NumberingTable) (Classification, bool) {
	title := ev.Title
	if strings.TrimSpace(ev.SessionTypeLabel) != "" {
		title = ev.SessionTypeLabel
	}
	return Classification{Title: title, Type: model.DisplaySession}, true
}

func containsAny(s string, kws []string) bool {
	for _, kw := range kws {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
