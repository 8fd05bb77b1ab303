// Package export renders stored sessions as iCalendar and OPML documents.
package export

import (
	"encoding/xml"
	"fmt"
	"sort"
	"time"

	"github.com/bryan-buckman/confsync/internal/model"
)

// OPML represents the root of an OPML document.
type OPML struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    Head     `xml:"head"`
	Body    Body     `xml:"body"`
}

// Head contains OPML metadata.
type Head struct {
	Title       string `xml:"title,omitempty"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

// Body contains the outlines.
type Body struct {
	Outlines []Outline `xml:"outline"`
}

// Outline is a track folder or a session link.
type Outline struct {
	Text     string    `xml:"text,attr"`
	Title    string    `xml:"title,attr,omitempty"`
	Type     string    `xml:"type,attr,omitempty"`
	HTMLURL  string    `xml:"htmlUrl,attr,omitempty"`
	Created  string    `xml:"created,attr,omitempty"`
	Outlines []Outline `xml:"outline,omitempty"`
}

// UntrackedFolder holds sessions without an area/group track.
const UntrackedFolder = "Other"

// OPMLExport generates an outline of tracks, each listing its sessions in
// start order. Sessions without a track are grouped under UntrackedFolder.
func OPMLExport(title string, now time.Time, tracks []model.Track, links []model.SessionTrack, sessions []model.SessionView) ([]byte, error) {
	doc := OPML{
		Version: "2.0",
		Head: Head{
			Title:       title,
			DateCreated: now.Format(time.RFC1123Z),
		},
	}

	byID := make(map[string]model.SessionView, len(sessions))
	for _, s := range sessions {
		byID[s.ID] = s
	}
	names := make(map[string]string, len(tracks))
	for _, t := range tracks {
		names[t.ID] = t.Name
	}

	grouped := make(map[string][]model.SessionView)
	tracked := make(map[string]bool)
	for _, l := range links {
		s, ok := byID[l.SessionID]
		name, known := names[l.TrackID]
		if !ok || !known {
			continue
		}
		grouped[name] = append(grouped[name], s)
		tracked[s.ID] = true
	}
	for _, s := range sessions {
		if !tracked[s.ID] {
			grouped[UntrackedFolder] = append(grouped[UntrackedFolder], s)
		}
	}

	folders := make([]string, 0, len(grouped))
	for name := range grouped {
		if name != UntrackedFolder {
			folders = append(folders, name)
		}
	}
	sort.Strings(folders)
	if _, ok := grouped[UntrackedFolder]; ok {
		folders = append(folders, UntrackedFolder)
	}

	for _, name := range folders {
		list := grouped[name]
		sort.SliceStable(list, func(i, j int) bool { return list[i].Start.Before(list[j].Start) })
		folder := Outline{Text: name, Title: name}
		for _, s := range list {
			folder.Outlines = append(folder.Outlines, Outline{
				Text:    s.Title,
				Title:   s.Title,
				Type:    "link",
				HTMLURL: s.DetailURL,
				Created: s.Start.Format(time.RFC1123Z),
			})
		}
		doc.Body.Outlines = append(doc.Body.Outlines, folder)
	}

	output, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode opml: %w", err)
	}
	return append([]byte(xml.Header), output...), nil
}
