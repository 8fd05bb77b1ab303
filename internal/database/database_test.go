package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryan-buckman/confsync/internal/model"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

var t0 = time.Date(2024, 7, 23, 16, 30, 0, 0, time.UTC)

func block(id string, version int64) model.Block {
	return model.Block{ID: id, Title: "B " + id, Start: t0, End: t0.Add(time.Hour), DisplayType: model.DisplaySession, Version: version}
}

func session(id, blockID string, version int64) model.Session {
	return model.Session{ID: id, Title: "S " + id, BlockID: blockID, RoomID: "r1", Version: version,
		Slides: []model.Ref{{Title: "Chair slides", URL: "https://x/1"}, {Title: "Other", URL: "https://x/2"}}}
}

func TestApplyInsertAndRead(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	err := db.Apply(ctx, []Op{
		InsertBlock(block("b1", 1)),
		InsertRoom(model.Room{ID: "r1", Name: "Room 1"}, 1),
		InsertTrack(model.Track{ID: "t1", Name: "sec-tls"}, 1),
		InsertSession(session("s1", "b1", 1)),
		InsertSessionTrack(model.SessionTrack{SessionID: "s1", TrackID: "t1"}, 1),
	})
	require.NoError(t, err)

	blocks, err := db.Blocks(ctx)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.True(t, blocks[0].Start.Equal(t0))
	assert.Equal(t, model.DisplaySession, blocks[0].DisplayType)

	s, err := db.Session(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Room 1", s.RoomName)
	assert.True(t, s.Start.Equal(t0))
	assert.Equal(t, []model.Ref{{Title: "Chair slides", URL: "https://x/1"}, {Title: "Other", URL: "https://x/2"}}, s.Slides)

	byBlock, err := db.SessionsByBlock(ctx, "b1")
	require.NoError(t, err)
	assert.Len(t, byBlock, 1)

	links, err := db.SessionTracks(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.SessionTrack{{SessionID: "s1", TrackID: "t1"}}, links)

	_, err = db.Session(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = db.Block(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApplyIsAtomic(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	err := db.Apply(ctx, []Op{
		InsertBlock(block("b1", 1)),
		{Kind: OpInsert, Entity: EntityBlock},
	})
	require.Error(t, err)

	blocks, err := db.Blocks(ctx)
	require.NoError(t, err)
	assert.Empty(t, blocks)
}

func TestDeleteStaleKeepsCurrentGeneration(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Apply(ctx, []Op{
		InsertBlock(block("old", 1)),
		InsertSession(session("s-old", "old", 1)),
		InsertSessionTrack(model.SessionTrack{SessionID: "s-old", TrackID: "t1"}, 1),
	}))
	require.NoError(t, db.Apply(ctx, []Op{
		InsertBlock(block("new", 2)),
		InsertSession(session("s-new", "new", 2)),
	}))
	require.NoError(t, db.Apply(ctx, []Op{DeleteStale(EntitySession, 2), DeleteStale(EntityBlock, 2)}))

	blocks, err := db.Blocks(ctx)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "new", blocks[0].ID)

	sessions, err := db.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "s-new", sessions[0].ID)

	links, err := db.SessionTracks(ctx)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestStarredAndDraftsSurviveUpsert(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Apply(ctx, []Op{InsertSession(session("s1", "b1", 1))}))
	require.NoError(t, db.SetStarred(ctx, "s1", true))
	require.NoError(t, db.SetSessionDrafts(ctx, "s1", []model.Ref{{Title: "draft-ietf-tls-esni", URL: "https://d/1"}}))

	starred, err := db.SessionStarred(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, starred)

	// Neither the flag nor drafts are part of the upsert.
	require.NoError(t, db.Apply(ctx, []Op{InsertSession(session("s1", "b1", 2))}))

	got, err := db.Session(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, got.Starred)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, []model.Ref{{Title: "draft-ietf-tls-esni", URL: "https://d/1"}}, got.Drafts)

	list, err := db.StarredSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	fresh := session("s2", "b1", 2)
	fresh.Starred = true
	require.NoError(t, db.Apply(ctx, []Op{InsertSession(fresh)}))
	starred, err = db.SessionStarred(ctx, "s2")
	require.NoError(t, err)
	assert.True(t, starred, "new rows take the flag from the insert")

	missing, err := db.SessionStarred(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, missing)
	assert.ErrorIs(t, db.SetStarred(ctx, "nope", true), ErrNotFound)
}

func TestMeta(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	v, err := db.GetMeta(ctx, model.MetaMeetingNumber)
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, db.SetMeta(ctx, model.MetaMeetingNumber, "120"))
	require.NoError(t, db.SetMeta(ctx, model.MetaMeetingNumber, "121"))
	v, err = db.GetMeta(ctx, model.MetaMeetingNumber)
	require.NoError(t, err)
	assert.Equal(t, "121", v)
}

func TestRebind(t *testing.T) {
	pg := &DB{dialect: dialectPostgres}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))
	lite := &DB{dialect: dialectSQLite}
	assert.Equal(t, "x = ?", lite.rebind("x = ?"))
}

func TestRefsEncoding(t *testing.T) {
	refs := []model.Ref{{Title: "a", URL: "https://a"}, {Title: "b|c", URL: "https://b"}}
	assert.Equal(t, refs, decodeRefs(encodeRefs(refs)))
	assert.Nil(t, decodeRefs(""))
}
