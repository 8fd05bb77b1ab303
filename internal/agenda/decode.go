// Package agenda turns a raw agenda feed into classified Blocks and Sessions.
package agenda

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bryan-buckman/confsync/internal/model"
)

// ErrEmptyAgenda is returned when a payload decodes but holds no usable events.
var ErrEmptyAgenda = errors.New("agenda contains no events")

// DecodeError reports a payload that is not a recognizable agenda shape.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode agenda: %s: %v", e.Reason, e.Err)
	}
	return "decode agenda: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// feedEvent is the wire shape of one agenda entry.
type feedEvent struct {
	Key      json.RawMessage `json:"key"`
	Day      string          `json:"day"`
	Start    string          `json:"start"`
	End      string          `json:"end"`
	Title    string          `json:"title"`
	URL      string          `json:"url"`
	Location string          `json:"location"`
	Group    string          `json:"group"`
	Area     string          `json:"area"`
	Type     string          `json:"type"`
	Status   string          `json:"status"`
	Slides   []model.Ref     `json:"slides"`
}

func (fe feedEvent) unscheduled() bool {
	switch strings.ToLower(strings.TrimSpace(fe.Status)) {
	case "notsched", "unscheduled":
		return true
	}
	return strings.EqualFold(strings.TrimSpace(fe.Type), "unscheduled")
}

// FirstArray returns the elements of the array held under the first key of a
// JSON object, in document order. The key name is not checked.
func FirstArray(payload []byte) ([]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	tok, err := dec.Token()
	if err != nil {
		return nil, &DecodeError{Reason: "payload is not JSON", Err: err}
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, &DecodeError{Reason: "top-level value is not an object"}
	}
	if !dec.More() {
		return nil, &DecodeError{Reason: "top-level object has no keys"}
	}
	if _, err := dec.Token(); err != nil {
		return nil, &DecodeError{Reason: "read first key", Err: err}
	}
	var items []json.RawMessage
	if err := dec.Decode(&items); err != nil {
		return nil, &DecodeError{Reason: "first key does not hold an array", Err: err}
	}
	if items == nil {
		return nil, &DecodeError{Reason: "first key does not hold an array"}
	}
	return items, nil
}

// Available reports whether payload has a non-empty array under its first key.
func Available(payload []byte) bool {
	items, err := FirstArray(payload)
	return err == nil && len(items) > 0
}

// Decoder parses agenda payloads. Times are read in Location.
type Decoder struct {
	Location *time.Location
	Logger   *slog.Logger
}

// NewDecoder returns a Decoder for the given conference timezone.
func NewDecoder(loc *time.Location, logger *slog.Logger) *Decoder {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{Location: loc, Logger: logger}
}

// Decode returns the events in payload order. Malformed or unscheduled
// entries are skipped; a malformed payload returns a *DecodeError.
// An empty result is not an error here.
func (d *Decoder) Decode(payload []byte) ([]model.Event, error) {
	items, err := FirstArray(payload)
	if err != nil {
		return nil, err
	}

	events := make([]model.Event, 0, len(items))
	for i, raw := range items {
		var fe feedEvent
		if err := json.Unmarshal(raw, &fe); err != nil {
			d.Logger.Debug("agenda entry skipped", "index", i, "err", err)
			continue
		}
		if fe.unscheduled() {
			continue
		}
		ev, err := d.toEvent(fe)
		if err != nil {
			d.Logger.Warn("agenda entry skipped", "index", i, "title", fe.Title, "err", err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func (d *Decoder) toEvent(fe feedEvent) (model.Event, error) {
	key := keyString(fe.Key)
	if key == "" {
		return model.Event{}, errors.New("missing key")
	}
	start, err := parseFeedTime(fe.Day, fe.Start, d.Location)
	if err != nil {
		return model.Event{}, fmt.Errorf("start: %w", err)
	}
	end, err := parseFeedTime(fe.Day, fe.End, d.Location)
	if err != nil {
		return model.Event{}, fmt.Errorf("end: %w", err)
	}
	// Entries that run past midnight carry the start day only.
	if end.Before(start) {
		end = end.AddDate(0, 0, 1)
	}

	return model.Event{
		Key:              key,
		Day:              fe.Day,
		StartRaw:         fe.Start,
		EndRaw:           fe.End,
		Start:            start,
		End:              end,
		Title:            strings.TrimSpace(fe.Title),
		DetailURL:        fe.URL,
		Location:         strings.TrimSpace(fe.Location),
		Group:            strings.TrimSpace(fe.Group),
		Area:             strings.TrimSpace(fe.Area),
		SessionTypeLabel: strings.TrimSpace(fe.Type),
		Slides:           fe.Slides,
	}, nil
}

// keyString accepts both string and numeric keys.
func keyString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

var clockLayouts = []string{"15:04", "1504", "15:04:05"}

func parseFeedTime(day, clock string, loc *time.Location) (time.Time, error) {
	date, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(day), loc)
	if err != nil {
		return time.Time{}, err
	}
	clock = strings.TrimSpace(clock)
	for _, layout := range clockLayouts {
		t, err := time.Parse(layout, clock)
		if err == nil {
			return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", clock)
}
