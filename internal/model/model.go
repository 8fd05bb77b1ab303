// Package model defines shared data structures.
package model

import "time"

// DisplayType is the calendar column a Block is rendered in.
type DisplayType string

const (
	DisplayFood        DisplayType = "FOOD"
	DisplaySession     DisplayType = "SESSION"
	DisplayOfficeHours DisplayType = "OFFICE_HOURS"
	DisplayNOCHelpdesk DisplayType = "NOC_HELPDESK"
	DisplayHackathon   DisplayType = "HACKATHON"
	DisplayUnknown     DisplayType = "UNKNOWN"
)

// ParseDisplayType maps a stored value back to a DisplayType.
func ParseDisplayType(s string) DisplayType {
	switch DisplayType(s) {
	case DisplayFood, DisplaySession, DisplayOfficeHours, DisplayNOCHelpdesk, DisplayHackathon:
		return DisplayType(s)
	default:
		return DisplayUnknown
	}
}

// Event is a single decoded agenda feed record. It only lives for one sync run.
type Event struct {
	Key              string // feed-unique id
	Day              string
	StartRaw         string
	EndRaw           string
	Start            time.Time
	End              time.Time
	Title            string
	DetailURL        string
	Location         string
	Group            string
	Area             string
	SessionTypeLabel string
	Slides           []Ref
}

// Ref is a title/url pair used for slides and drafts.
type Ref struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// MeetingMetadata describes one conference meeting from the remote listing.
type MeetingMetadata struct {
	Number          string
	Name            string
	City            string
	Country         string
	Timezone        string
	Start           time.Time
	End             time.Time // derived: Start + 6 days + 23:59:59
	AgendaURL       string
	AgendaAvailable bool
}

// Location resolves the meeting timezone, falling back to UTC.
func (m MeetingMetadata) Location() *time.Location {
	if m.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(m.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Ongoing reports whether t falls inside [Start, End].
func (m MeetingMetadata) Ongoing(t time.Time) bool {
	return !t.Before(m.Start) && !t.After(m.End)
}

// Block is a display-classified time slot.
type Block struct {
	ID          string
	Title       string
	Start       time.Time
	End         time.Time
	DisplayType DisplayType
	Version     int64
}

// Session is a bookable agenda entry tied to a Block.
type Session struct {
	ID        string
	Title     string
	BlockID   string
	RoomID    string // empty when the event has no location
	DetailURL string
	Slides    []Ref
	Drafts    []Ref
	Starred   bool
	Version   int64
}

// Track is an area/group pair.
type Track struct {
	ID   string
	Name string
}

// Room is a meeting location.
type Room struct {
	ID   string
	Name string
}

// SessionTrack links a Session to a Track.
type SessionTrack struct {
	SessionID string
	TrackID   string
}

// SessionView is a Session joined with its Block and Room for display.
type SessionView struct {
	Session
	Start       time.Time
	End         time.Time
	DisplayType DisplayType
	RoomName    string
}

// Meta keys stored alongside the agenda.
const (
	MetaMeetingNumber = "meeting_number"
	MetaMeetingName   = "meeting_name"
	MetaTimezone      = "meeting_timezone"
	MetaVersion       = "generation_version"
	MetaAgendaETag    = "agenda_etag"
)
