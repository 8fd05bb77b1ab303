package agenda

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bryan-buckman/confsync/internal/model"
)

// MinConcurrentSessions is how many session-typed events must share a start
// instant before that instant gets an ordinal label.
const MinConcurrentSessions = 2

// specialKeywords mark one-off slots that never take part in numbering.
var specialKeywords = []string{
	"plenary", "break", "reception", "social", "dinner", "lunch", "breakfast",
	"happy hour", "game night", "networking", "hackathon", "office hours",
	"noc", "helpdesk", "help desk", "registration", "tutorial", "newcomer",
	"new participant", "iepg", "hotrfc", "lightning talk", "code sprint",
}

var romanNumerals = []string{"I", "II", "III", "IV", "V", "VI", "VII", "VIII", "IX", "X"}

// Roman returns the roman numeral for 1..10 and the decimal form beyond.
func Roman(n int) string {
	if n >= 1 && n <= len(romanNumerals) {
		return romanNumerals[n-1]
	}
	return strconv.Itoa(n)
}

type dayKey struct {
	year, yday int
}

// NumberingTable maps qualifying start instants to their session label.
type NumberingTable struct {
	labels map[int64]string
	perDay map[dayKey][]time.Time
}

// Label returns the numbered label for start, if it qualified.
func (nt *NumberingTable) Label(start time.Time) (string, bool) {
	if nt == nil {
		return "", false
	}
	l, ok := nt.labels[start.Unix()]
	return l, ok
}

// Day returns the qualifying start instants of the day containing t, ascending.
func (nt *NumberingTable) Day(t time.Time, loc *time.Location) []time.Time {
	lt := t.In(loc)
	return nt.perDay[dayKey{lt.Year(), lt.YearDay()}]
}

// Len is the number of qualifying start instants.
func (nt *NumberingTable) Len() int { return len(nt.labels) }

// IsSpecial reports whether an event is a one-off slot by title or type.
func IsSpecial(ev model.Event) bool {
	title := strings.ToLower(ev.Title)
	typ := strings.ToLower(ev.SessionTypeLabel)
	for _, kw := range specialKeywords {
		if hasKeyword(title, kw) || hasKeyword(typ, kw) {
			return true
		}
	}
	return false
}

// IsSessionTyped reports whether the session-type label names a session.
func IsSessionTyped(ev model.Event) bool {
	return strings.Contains(strings.ToLower(ev.SessionTypeLabel), "session")
}

// BuildNumbering groups non-special, session-typed events by exact start
// instant and numbers every instant that reaches MinConcurrentSessions,
// per calendar day in loc.
func BuildNumbering(events []model.Event, loc *time.Location) *NumberingTable {
	if loc == nil {
		loc = time.UTC
	}
	counts := make(map[int64]int)
	starts := make(map[int64]time.Time)
	for _, ev := range events {
		if !IsSessionTyped(ev) || IsSpecial(ev) {
			continue
		}
		k := ev.Start.Unix()
		counts[k]++
		starts[k] = ev.Start
	}

	nt := &NumberingTable{
		labels: make(map[int64]string),
		perDay: make(map[dayKey][]time.Time),
	}
	for k, n := range counts {
		if n < MinConcurrentSessions {
			continue
		}
		lt := starts[k].In(loc)
		dk := dayKey{lt.Year(), lt.YearDay()}
		nt.perDay[dk] = append(nt.perDay[dk], starts[k])
	}
	for dk, list := range nt.perDay {
		sort.Slice(list, func(i, j int) bool { return list[i].Before(list[j]) })
		nt.perDay[dk] = list
		for rank, st := range list {
			nt.labels[st.Unix()] = st.In(loc).Format("Mon") + " Session " + Roman(rank+1)
		}
	}
	return nt
}

// hasKeyword is a substring match, except that keywords of three letters or
// fewer must stand as a whole word ("noc" must not hit "innocent").
func hasKeyword(s, kw string) bool {
	if len(kw) > 3 {
		return strings.Contains(s, kw)
	}
	return containsWord(s, kw)
}

func containsWord(s, kw string) bool {
	for from := 0; ; {
		i := strings.Index(s[from:], kw)
		if i < 0 {
			return false
		}
		i += from
		end := i + len(kw)
		if (i == 0 || !isWordByte(s[i-1])) && (end == len(s) || !isWordByte(s[end])) {
			return true
		}
		from = i + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
