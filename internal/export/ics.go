package export

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/bryan-buckman/confsync/internal/model"
)

// ProductID identifies generated calendars.
const ProductID = "-//confsync//agenda//EN"

// ICS renders sessions as VEVENTs using their block times and room.
func ICS(calName string, now time.Time, sessions []model.SessionView) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(ProductID)
	if calName != "" {
		cal.SetXWRCalName(calName)
	}

	for _, s := range sessions {
		ev := cal.AddEvent(s.ID + "@confsync")
		ev.SetDtStampTime(now.UTC())
		ev.SetStartAt(s.Start.UTC())
		ev.SetEndAt(s.End.UTC())
		ev.SetSummary(s.Title)
		if s.RoomName != "" {
			ev.SetLocation(s.RoomName)
		}
		if s.DetailURL != "" {
			ev.SetURL(s.DetailURL)
		}
		if desc := description(s); desc != "" {
			ev.SetDescription(desc)
		}
	}
	return cal.Serialize()
}

func description(s model.SessionView) string {
	var b strings.Builder
	for _, group := range []struct {
		label string
		refs  []model.Ref
	}{{"Slides", s.Slides}, {"Drafts", s.Drafts}} {
		if len(group.refs) == 0 {
			continue
		}
		b.WriteString(group.label)
		b.WriteString(":\n")
		for _, r := range group.refs {
			b.WriteString("- ")
			b.WriteString(r.Title)
			if r.URL != "" {
				b.WriteString(" <" + r.URL + ">")
			}
			b.WriteString("\n")
		}
	}
	return strings.TrimSpace(b.String())
}
