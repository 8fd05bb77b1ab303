package meeting

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryan-buckman/confsync/internal/model"
)

// fakeGetter serves canned bodies keyed by URL and counts calls.
type fakeGetter struct {
	mu     sync.Mutex
	bodies map[string]string
	calls  map[string]int
}

func newFakeGetter(bodies map[string]string) *fakeGetter {
	return &fakeGetter{bodies: bodies, calls: make(map[string]int)}
}

func (f *fakeGetter) Get(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	body, ok := f.bodies[url]
	if !ok {
		return nil, errors.New("404")
	}
	return []byte(body), nil
}

func (f *fakeGetter) set(url, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if body == "" {
		delete(f.bodies, url)
		return
	}
	f.bodies[url] = body
}

func (f *fakeGetter) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

const (
	listingURL = "https://dt/meetings"
	agendaTmpl = "https://dt/meeting/%s/agenda.json"
)

func agendaURL(n string) string { return fmt.Sprintf(agendaTmpl, n) }

func listingJSON(entries ...string) string {
	return `{"objects": [` + strings.Join(entries, ",") + `]}`
}

func entry(number, date string) string {
	return fmt.Sprintf(`{"number": %q, "type": "/api/v1/name/meetingtypename/ietf/", "date": %q, "end_date": "1999-01-01", "city": "X", "country": "YY", "time_zone": "UTC"}`, number, date)
}

const fullAgenda = `{"x": [{"key": "1"}]}`

var now = time.Date(2024, 11, 5, 12, 0, 0, 0, time.UTC)

func newSelector(g Getter, clock *time.Time) *Selector {
	nowFn := func() time.Time { return *clock }
	cache := NewCache().WithClock(nowFn, func() time.Duration { return 0 })
	return NewSelector(g, cache, Options{
		ListingURL:        listingURL,
		AgendaURLTemplate: agendaTmpl,
		Concurrency:       3,
		Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:               nowFn,
	})
}

func TestEndInstantIgnoresEndDate(t *testing.T) {
	g := newFakeGetter(map[string]string{listingURL: listingJSON(entry("121", "2024-11-02"))})
	clock := now
	cands, err := newSelector(g, &clock).Candidates(context.Background())
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, time.Date(2024, 11, 8, 23, 59, 59, 0, time.UTC), cands[0].End)
	assert.Equal(t, "IETF 121", cands[0].Name)
	assert.Equal(t, agendaURL("121"), cands[0].AgendaURL)
}

func TestEndInstantAcrossDSTChange(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	end := EndInstant(time.Date(2024, 11, 2, 0, 0, 0, 0, ny))
	assert.Equal(t, time.Date(2024, 11, 8, 23, 59, 59, 0, ny), end)
	h, m, s := end.Clock()
	assert.Equal(t, []int{23, 59, 59}, []int{h, m, s})
}

func TestCandidatesFilterAndProbe(t *testing.T) {
	interim := `{"number": "interim-2024-foo-01", "type": "/api/v1/name/meetingtypename/interim/", "date": "2024-10-01"}`
	g := newFakeGetter(map[string]string{
		listingURL:       listingJSON(entry("120", "2024-07-20"), interim, entry("121", "2024-11-02"), `{"number": 122, "type": "ietf", "date": "bad"}`),
		agendaURL("120"): `{"120": []}`,
		agendaURL("121"): fullAgenda,
	})
	clock := now
	var probes []string
	s := newSelector(g, &clock)
	var mu sync.Mutex
	s.opts.OnProbe = func(n string, ok bool) {
		mu.Lock()
		defer mu.Unlock()
		probes = append(probes, fmt.Sprintf("%s=%v", n, ok))
	}

	cands, err := s.Candidates(context.Background())
	require.NoError(t, err)
	require.Len(t, cands, 2)
	assert.False(t, cands[0].AgendaAvailable)
	assert.True(t, cands[1].AgendaAvailable)
	assert.ElementsMatch(t, []string{"120=false", "121=true"}, probes)
}

func meetingAt(number string, start time.Time, available bool) model.MeetingMetadata {
	return model.MeetingMetadata{Number: number, Start: start, End: EndInstant(start), AgendaAvailable: available}
}

func TestSelectPriority(t *testing.T) {
	ongoing := meetingAt("121", now.AddDate(0, 0, -2), true)
	upcoming := meetingAt("122", now.AddDate(0, 4, 0), true)
	later := meetingAt("123", now.AddDate(0, 8, 0), true)
	past := meetingAt("120", now.AddDate(0, -4, 0), false)
	older := meetingAt("119", now.AddDate(0, -8, 0), true)

	all := []model.MeetingMetadata{past, later, ongoing, older, upcoming}
	assert.Equal(t, "121", Select(all, now).Number)

	withoutOngoing := []model.MeetingMetadata{past, later, older, upcoming}
	assert.Equal(t, "122", Select(withoutOngoing, now).Number)

	pastOnly := []model.MeetingMetadata{older, past}
	assert.Equal(t, "120", Select(pastOnly, now).Number)

	assert.Nil(t, Select(nil, now))
}

func TestSelectSkipsUnavailableOngoingAndUpcoming(t *testing.T) {
	ongoing := meetingAt("121", now.AddDate(0, 0, -1), false)
	upcoming := meetingAt("122", now.AddDate(0, 4, 0), false)
	assert.Nil(t, Select([]model.MeetingMetadata{ongoing, upcoming}, now))

	past := meetingAt("120", now.AddDate(0, -4, 0), false)
	assert.Equal(t, "120", Select([]model.MeetingMetadata{ongoing, upcoming, past}, now).Number)
}

func TestDetectUsesCacheUntilStale(t *testing.T) {
	g := newFakeGetter(map[string]string{
		listingURL:       listingJSON(entry("121", "2024-11-02")),
		agendaURL("121"): fullAgenda,
	})
	clock := now
	s := newSelector(g, &clock)
	ctx := context.Background()

	m := s.Detect(ctx)
	require.NotNil(t, m)
	assert.Equal(t, "121", m.Number)
	assert.Equal(t, 1, g.count(listingURL))

	// Ongoing meeting: one hour TTL.
	clock = now.Add(59 * time.Minute)
	require.NotNil(t, s.Detect(ctx))
	assert.Equal(t, 1, g.count(listingURL))

	clock = now.Add(61 * time.Minute)
	require.NotNil(t, s.Detect(ctx))
	assert.Equal(t, 2, g.count(listingURL))

	s.Cache().Invalidate()
	require.NotNil(t, s.Detect(ctx))
	assert.Equal(t, 3, g.count(listingURL))
}

func TestDetectFallsBackToStaleCache(t *testing.T) {
	g := newFakeGetter(map[string]string{
		listingURL:       listingJSON(entry("121", "2024-11-02")),
		agendaURL("121"): fullAgenda,
	})
	clock := now
	s := newSelector(g, &clock)
	ctx := context.Background()

	require.NotNil(t, s.Detect(ctx))

	g.set(listingURL, "")
	clock = now.Add(2 * time.Hour)
	m := s.Detect(ctx)
	require.NotNil(t, m)
	assert.Equal(t, "121", m.Number)

	// The stale value was not restamped, so the next call retries.
	s.Detect(ctx)
	assert.Equal(t, 3, g.count(listingURL))
}

func TestDetectNilWithoutCacheOrListing(t *testing.T) {
	clock := now
	s := newSelector(newFakeGetter(map[string]string{}), &clock)
	assert.Nil(t, s.Detect(context.Background()))

	g := newFakeGetter(map[string]string{listingURL: `not json`})
	assert.Nil(t, newSelector(g, &clock).Detect(context.Background()))
}

func TestCacheIdleTTLAndJitter(t *testing.T) {
	clock := now
	var jitter time.Duration
	c := NewCache().WithClock(func() time.Time { return clock }, func() time.Duration { return jitter })
	upcoming := meetingAt("122", now.AddDate(0, 1, 0), true)
	c.Set(&upcoming)

	refreshed := 0
	refresh := func(context.Context, *model.MeetingMetadata) *model.MeetingMetadata {
		refreshed++
		return &upcoming
	}

	clock = now.Add(23 * time.Hour)
	c.CheckAndMaybeRefresh(context.Background(), refresh)
	assert.Equal(t, 0, refreshed)

	clock = now.Add(24*time.Hour + 2*time.Minute)
	jitter = 3 * time.Minute
	c.CheckAndMaybeRefresh(context.Background(), refresh)
	assert.Equal(t, 0, refreshed)

	jitter = time.Minute
	c.CheckAndMaybeRefresh(context.Background(), refresh)
	assert.Equal(t, 1, refreshed)
}

func TestDefaultJitterRange(t *testing.T) {
	c := NewCache()
	for i := 0; i < 100; i++ {
		j := c.jitter()
		assert.GreaterOrEqual(t, j, time.Duration(0))
		assert.Less(t, j, MaxJitter)
	}
}
