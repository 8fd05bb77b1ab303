// Package transform builds the Record Store batches for one sync run.
package transform

import (
	"context"
	"log/slog"
	"time"

	"github.com/bryan-buckman/confsync/internal/agenda"
	"github.com/bryan-buckman/confsync/internal/database"
	"github.com/bryan-buckman/confsync/internal/model"
)

// Stats counts what a batch inserts.
type Stats struct {
	Events    int `json:"events"`
	Blocks    int `json:"blocks"`
	Duplicate int `json:"duplicate_blocks"`
	Sessions  int `json:"sessions"`
	Tracks    int `json:"tracks"`
	Rooms     int `json:"rooms"`
}

// Transformer turns decoded events into store operations.
type Transformer struct {
	starred  agenda.StarredLookup
	location *time.Location
	rules    []agenda.Rule
	logger   *slog.Logger
}

// New creates a Transformer. starred is consulted per session so a re-sync
// keeps the user's flag; loc is the conference timezone used for numbering.
func New(starred agenda.StarredLookup, loc *time.Location, logger *slog.Logger) *Transformer {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transformer{starred: starred, location: loc, logger: logger}
}

// WithRules overrides the classification cascade.
func (t *Transformer) WithRules(rules []agenda.Rule) *Transformer {
	t.rules = rules
	return t
}

// Transform classifies events in order and returns one insert batch stamped
// with version. Tracks and rooms shared by several events are emitted once.
func (t *Transformer) Transform(ctx context.Context, events []model.Event, version int64) ([]database.Op, Stats) {
	nt := agenda.BuildNumbering(events, t.location)
	classifier := agenda.NewClassifier(t.rules, nt, t.starred, version, t.logger)

	stats := Stats{Events: len(events)}
	seenTracks := make(map[string]bool)
	seenRooms := make(map[string]bool)
	batch := make([]database.Op, 0, len(events)*3)

	for _, ev := range events {
		res := classifier.Classify(ctx, ev)
		if res.Block != nil {
			batch = append(batch, database.InsertBlock(*res.Block))
			stats.Blocks++
		} else {
			stats.Duplicate++
		}
		if res.Track != nil && !seenTracks[res.Track.ID] {
			seenTracks[res.Track.ID] = true
			batch = append(batch, database.InsertTrack(*res.Track, version))
			stats.Tracks++
		}
		if res.Room != nil && !seenRooms[res.Room.ID] {
			seenRooms[res.Room.ID] = true
			batch = append(batch, database.InsertRoom(*res.Room, version))
			stats.Rooms++
		}
		batch = append(batch, database.InsertSession(res.Session))
		stats.Sessions++
		if res.SessionTrack != nil {
			batch = append(batch, database.InsertSessionTrack(*res.SessionTrack, version))
		}
	}

	t.logger.Debug("agenda transformed",
		"events", stats.Events, "blocks", stats.Blocks, "duplicate_blocks", stats.Duplicate,
		"sessions", stats.Sessions, "numbered_slots", nt.Len())
	return batch, stats
}

// Purge returns the batch that removes sessions and blocks from earlier generations.
func Purge(version int64) []database.Op {
	return []database.Op{
		database.DeleteStale(database.EntitySession, version),
		database.DeleteStale(database.EntityBlock, version),
	}
}

// Version returns the generation stamp for a run starting at t.
func Version(t time.Time) int64 {
	return t.UnixMilli()
}
