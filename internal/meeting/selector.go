// Package meeting decides which conference meeting (and agenda feed) is current.
package meeting

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bryan-buckman/confsync/internal/agenda"
	"github.com/bryan-buckman/confsync/internal/model"
)

// Getter fetches a URL body.
type Getter interface {
	Get(ctx context.Context, rawURL string) ([]byte, error)
}

// listing is the wire shape of the meeting listing API.
type listing struct {
	Objects []listingEntry `json:"objects"`
}

type listingEntry struct {
	Number   flexString `json:"number"`
	Type     string     `json:"type"`
	Date     string     `json:"date"`
	EndDate  string     `json:"end_date"` // unreliable; End is derived from Date
	City     string     `json:"city"`
	Country  string     `json:"country"`
	TimeZone string     `json:"time_zone"`
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// Options configures a Selector.
type Options struct {
	ListingURL        string
	AgendaURLTemplate string // one %s verb for the meeting number
	Concurrency       int
	Logger            *slog.Logger
	Now               func() time.Time
	// OnProbe is called once per availability probe.
	OnProbe func(number string, available bool)
}

// Selector detects the current meeting, memoized through a Cache.
type Selector struct {
	getter Getter
	cache  *Cache
	opts   Options
}

// NewSelector wires a Selector. The cache is owned by the caller so it can
// be invalidated explicitly.
func NewSelector(getter Getter, cache *Cache, opts Options) *Selector {
	if cache == nil {
		cache = NewCache()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Selector{getter: getter, cache: cache, opts: opts}
}

// Cache returns the selection cache.
func (s *Selector) Cache() *Cache { return s.cache }

// Detect returns the current meeting, or nil when none can be determined.
// Listing failures fall back to the stale cached value.
func (s *Selector) Detect(ctx context.Context) *model.MeetingMetadata {
	return s.cache.CheckAndMaybeRefresh(ctx, s.refresh)
}

func (s *Selector) refresh(ctx context.Context, prev *model.MeetingMetadata) *model.MeetingMetadata {
	candidates, err := s.Candidates(ctx)
	if err != nil {
		s.opts.Logger.Warn("meeting listing failed", "err", err, "stale", prev != nil)
		return nil
	}
	selected := Select(candidates, s.opts.Now())
	if selected == nil {
		s.opts.Logger.Warn("no usable meeting in listing", "candidates", len(candidates), "stale", prev != nil)
		return nil
	}
	s.opts.Logger.Info("meeting selected", "number", selected.Number, "start", selected.Start, "available", selected.AgendaAvailable)
	return selected
}

// Candidates fetches the listing, keeps IETF meetings and probes each agenda.
func (s *Selector) Candidates(ctx context.Context) ([]model.MeetingMetadata, error) {
	body, err := s.getter.Get(ctx, s.opts.ListingURL)
	if err != nil {
		return nil, fmt.Errorf("fetch listing: %w", err)
	}
	var l listing
	if err := json.Unmarshal(body, &l); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}

	var candidates []model.MeetingMetadata
	for _, e := range l.Objects {
		if !strings.Contains(strings.ToLower(e.Type), "ietf") {
			continue
		}
		m, err := s.toMeeting(e)
		if err != nil {
			s.opts.Logger.Debug("listing entry skipped", "number", e.Number, "err", err)
			continue
		}
		candidates = append(candidates, m)
	}
	s.probe(ctx, candidates)
	return candidates, nil
}

func (s *Selector) toMeeting(e listingEntry) (model.MeetingMetadata, error) {
	number := string(e.Number)
	if number == "" {
		return model.MeetingMetadata{}, fmt.Errorf("missing number")
	}
	m := model.MeetingMetadata{
		Number:    number,
		Name:      "IETF " + number,
		City:      e.City,
		Country:   e.Country,
		Timezone:  e.TimeZone,
		AgendaURL: fmt.Sprintf(s.opts.AgendaURLTemplate, number),
	}
	start, err := time.ParseInLocation("2006-01-02", e.Date, m.Location())
	if err != nil {
		return model.MeetingMetadata{}, fmt.Errorf("parse date: %w", err)
	}
	m.Start = start
	m.End = EndInstant(start)
	return m, nil
}

// EndInstant derives a meeting's end from its start date: the last second of
// the sixth calendar day after start, in start's zone.
func EndInstant(start time.Time) time.Time {
	y, m, d := start.Date()
	return time.Date(y, m, d+6, 23, 59, 59, 0, start.Location())
}

// probe fills AgendaAvailable for every candidate using a bounded worker
// pool. Each result is written to its own index, so completion order does
// not matter.
func (s *Selector) probe(ctx context.Context, candidates []model.MeetingMetadata) {
	jobs := make(chan int)
	var wg sync.WaitGroup
	workers := s.opts.Concurrency
	if workers > len(candidates) {
		workers = len(candidates)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				candidates[i].AgendaAvailable = s.available(ctx, candidates[i])
			}
		}()
	}
	for i := range candidates {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}

func (s *Selector) available(ctx context.Context, m model.MeetingMetadata) bool {
	body, err := s.getter.Get(ctx, m.AgendaURL)
	ok := err == nil && agenda.Available(body)
	if err != nil {
		s.opts.Logger.Debug("agenda probe failed", "number", m.Number, "err", err)
	}
	if s.opts.OnProbe != nil {
		s.opts.OnProbe(m.Number, ok)
	}
	return ok
}

// Select picks, in priority order: the most recent ongoing meeting with an
// available agenda, the soonest upcoming meeting with an available agenda,
// and the most recently ended meeting whatever its availability.
func Select(candidates []model.MeetingMetadata, now time.Time) *model.MeetingMetadata {
	sorted := append([]model.MeetingMetadata(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start.After(sorted[j].Start) })

	var upcoming, past *model.MeetingMetadata
	for i := range sorted {
		m := &sorted[i]
		switch {
		case m.Ongoing(now):
			if m.AgendaAvailable {
				return copyMeeting(m)
			}
		case m.Start.After(now):
			if m.AgendaAvailable && (upcoming == nil || m.Start.Before(upcoming.Start)) {
				upcoming = m
			}
		case m.End.Before(now):
			if past == nil || m.End.After(past.End) {
				past = m
			}
		}
	}
	if upcoming != nil {
		return copyMeeting(upcoming)
	}
	return copyMeeting(past)
}
