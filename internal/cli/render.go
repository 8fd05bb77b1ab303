package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bryan-buckman/confsync/internal/model"
)

type styles struct {
	title   lipgloss.Style
	header  lipgloss.Style
	day     lipgloss.Style
	time    lipgloss.Style
	detail  lipgloss.Style
	starred lipgloss.Style
	empty   lipgloss.Style
	kinds   map[model.DisplayType]lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:   lipgloss.NewStyle().Bold(true),
		header:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		day:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).MarginTop(1),
		time:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		detail:  lipgloss.NewStyle().Foreground(lipgloss.Color("252")).PaddingLeft(14),
		starred: lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		empty:   lipgloss.NewStyle().Faint(true),
		kinds: map[model.DisplayType]lipgloss.Style{
			model.DisplayFood:        lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
			model.DisplaySession:     lipgloss.NewStyle().Foreground(lipgloss.Color("75")),
			model.DisplayOfficeHours: lipgloss.NewStyle().Foreground(lipgloss.Color("78")),
			model.DisplayNOCHelpdesk: lipgloss.NewStyle().Foreground(lipgloss.Color("170")),
			model.DisplayHackathon:   lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
		},
	}
}

func (s styles) kind(t model.DisplayType) lipgloss.Style {
	if st, ok := s.kinds[t]; ok {
		return st
	}
	return s.detail
}

func renderMeeting(m model.MeetingMetadata, now time.Time, s styles) string {
	state := "upcoming"
	switch {
	case m.Ongoing(now):
		state = "ongoing"
	case now.After(m.End):
		state = "past"
	}
	agenda := "agenda available"
	if !m.AgendaAvailable {
		agenda = "agenda not published"
	}
	loc := m.Location()
	lines := []string{
		s.title.Render(fmt.Sprintf("%s (%s, %s)", m.Name, m.City, m.Country)),
		s.header.Render(fmt.Sprintf("%s to %s %s", m.Start.In(loc).Format("2006-01-02"), m.End.In(loc).Format("2006-01-02"), loc)),
		s.header.Render(state + ", " + agenda),
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderAgenda(name string, blocks []model.Block, sessions []model.SessionView, loc *time.Location, s styles) string {
	if name == "" {
		name = "Agenda"
	}
	lines := []string{
		s.title.Render(name),
		s.header.Render(fmt.Sprintf("blocks: %d", len(blocks))),
	}
	if len(blocks) == 0 {
		lines = append(lines, s.empty.Render("Nothing synced yet. Run `confsync sync`."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	byBlock := make(map[string][]model.SessionView)
	for _, sv := range sessions {
		byBlock[sv.BlockID] = append(byBlock[sv.BlockID], sv)
	}

	lastDay := ""
	for _, b := range blocks {
		start, end := b.Start.In(loc), b.End.In(loc)
		if d := start.Format("Monday 2 January"); d != lastDay {
			lines = append(lines, s.day.Render(d))
			lastDay = d
		}
		slot := s.time.Render(start.Format("15:04") + "-" + end.Format("15:04"))
		lines = append(lines, slot+"  "+s.kind(b.DisplayType).Render(b.Title))
		for _, sv := range byBlock[b.ID] {
			lines = append(lines, s.detail.Render(sessionLine(sv, s)))
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func sessionLine(sv model.SessionView, s styles) string {
	var b strings.Builder
	if sv.Starred {
		b.WriteString(s.starred.Render("*") + " ")
	}
	b.WriteString(sv.Title)
	if sv.RoomName != "" {
		b.WriteString(" @ " + sv.RoomName)
	}
	b.WriteString(" [" + sv.ID + "]")
	return b.String()
}
