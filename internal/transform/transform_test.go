package transform

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryan-buckman/confsync/internal/agenda"
	"github.com/bryan-buckman/confsync/internal/database"
	"github.com/bryan-buckman/confsync/internal/model"
)

var loc = time.FixedZone("CET", 3600)

func at(hh, mm int) time.Time { return time.Date(2024, 11, 5, hh, mm, 0, 0, loc) }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "t.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func events() []model.Event {
	return []model.Event{
		{Key: "1", Title: "TLS", Area: "sec", Group: "tls", Location: "Room A", SessionTypeLabel: "Session", Start: at(9, 30), End: at(11, 30)},
		{Key: "2", Title: "QUIC", Area: "wit", Group: "quic", Location: "Room B", SessionTypeLabel: "Session", Start: at(9, 30), End: at(11, 30)},
		{Key: "3", Title: "HTTPBIS", Area: "wit", Group: "httpbis", Location: "Room A", SessionTypeLabel: "Session", Start: at(9, 30), End: at(11, 30)},
		{Key: "4", Title: "Lunch", SessionTypeLabel: "Break", Start: at(11, 30), End: at(13, 0)},
		{Key: "5", Title: "Side Meeting", SessionTypeLabel: "None", Start: at(18, 0), End: at(19, 0)},
	}
}

func idsByEntity(batch []database.Op) map[database.Entity][]string {
	out := make(map[database.Entity][]string)
	for _, op := range batch {
		out[op.Entity] = append(out[op.Entity], op.String())
	}
	for _, v := range out {
		sort.Strings(v)
	}
	return out
}

func TestTransformDeterministic(t *testing.T) {
	tr := New(nil, loc, discard())
	a, _ := tr.Transform(context.Background(), events(), 42)
	b, _ := tr.Transform(context.Background(), events(), 42)
	assert.Equal(t, idsByEntity(a), idsByEntity(b))
	assert.Equal(t, a, b)
}

func TestTransformSharedBlock(t *testing.T) {
	batch, stats := New(nil, loc, discard()).Transform(context.Background(), events(), 1)

	assert.Equal(t, 5, stats.Sessions)
	assert.Equal(t, 3, stats.Blocks)
	assert.Equal(t, 2, stats.Duplicate)
	assert.Equal(t, 3, stats.Tracks)
	assert.Equal(t, 2, stats.Rooms)

	shared := agenda.BlockID(at(9, 30), at(11, 30))
	var blocks, pointing int
	for _, op := range batch {
		if op.Block != nil && op.Block.ID == shared {
			blocks++
			assert.Equal(t, "Tue Session I", op.Block.Title)
		}
		if op.Session != nil && op.Session.BlockID == shared {
			pointing++
		}
		assert.Equal(t, int64(1), op.Version)
	}
	assert.Equal(t, 1, blocks)
	assert.Equal(t, 3, pointing)
}

func TestTransformPreservesStarred(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	tr := New(db, loc, discard())

	first, _ := tr.Transform(ctx, events(), 1)
	require.NoError(t, db.Apply(ctx, first))
	require.NoError(t, db.SetStarred(ctx, agenda.SessionID("2"), true))

	second, _ := tr.Transform(ctx, events(), 2)
	for _, op := range second {
		if op.Session != nil && op.Session.ID == agenda.SessionID("2") {
			assert.True(t, op.Session.Starred)
			return
		}
	}
	t.Fatal("session 2 missing from batch")
}

func TestPurgeRemovesPreviousGeneration(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	tr := New(db, loc, discard())

	first, _ := tr.Transform(ctx, events(), 1)
	require.NoError(t, db.Apply(ctx, first))
	require.NoError(t, db.Apply(ctx, Purge(1)))

	// Event 5 disappears from the feed; event 3 moves to a new slot.
	next := events()[:4]
	next[2].Start, next[2].End = at(14, 0), at(15, 0)
	second, _ := tr.Transform(ctx, next, 2)
	require.NoError(t, db.Apply(ctx, second))
	require.NoError(t, db.Apply(ctx, Purge(2)))

	sessions, err := db.Sessions(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 4)
	for _, s := range sessions {
		assert.Equal(t, int64(2), s.Version)
		assert.NotEqual(t, agenda.SessionID("5"), s.ID)
	}

	blocks, err := db.Blocks(ctx)
	require.NoError(t, err)
	assert.Len(t, blocks, 3)
	for _, b := range blocks {
		assert.Equal(t, int64(2), b.Version)
	}
}

func TestPurgeOps(t *testing.T) {
	ops := Purge(9)
	require.Len(t, ops, 2)
	assert.Equal(t, database.EntitySession, ops[0].Entity)
	assert.Equal(t, database.EntityBlock, ops[1].Entity)
	for _, op := range ops {
		assert.Equal(t, database.OpDeleteStale, op.Kind)
		assert.Equal(t, int64(9), op.Version)
	}
}

func TestVersion(t *testing.T) {
	ts := time.UnixMilli(1730800000123)
	assert.Equal(t, int64(1730800000123), Version(ts))
}
