package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bryan-buckman/confsync/internal/model"
	_ "modernc.org/sqlite"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// DB is the database/sql Record Store shared by both backends.
type DB struct {
	conn    *sql.DB
	dialect dialect
}

// Ensure DB implements Store interface.
var _ Store = (*DB)(nil)

// New opens or creates an SQLite database at the given path.
func New(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite allows a single writer; serialize through one connection.
	conn.SetMaxOpenConns(1)
	if _, err := conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	db := &DB{conn: conn, dialect: dialectSQLite}
	if err := db.migrate(sqliteSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS blocks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		start_ms INTEGER NOT NULL,
		end_ms INTEGER NOT NULL,
		display_type TEXT NOT NULL,
		version INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		version INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS tracks (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		version INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		block_id TEXT NOT NULL,
		room_id TEXT NOT NULL DEFAULT '',
		detail_url TEXT NOT NULL DEFAULT '',
		slides TEXT NOT NULL DEFAULT '',
		drafts TEXT NOT NULL DEFAULT '',
		starred INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS session_tracks (
		session_id TEXT NOT NULL,
		track_id TEXT NOT NULL,
		version INTEGER NOT NULL,
		PRIMARY KEY (session_id, track_id)
	);
	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_block_id ON sessions(block_id);
	CREATE INDEX IF NOT EXISTS idx_blocks_start ON blocks(start_ms);
	`

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// DatabaseType returns the database backend name.
func (db *DB) DatabaseType() string {
	if db.dialect == dialectPostgres {
		return "PostgreSQL"
	}
	return "SQLite"
}

func (db *DB) migrate(schema string) error {
	_, err := db.conn.Exec(schema)
	return err
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (db *DB) rebind(query string) string {
	if db.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// --- Batch ---

const (
	upsertBlock = `INSERT INTO blocks (id, title, start_ms, end_ms, display_type, version)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, start_ms = excluded.start_ms,
			end_ms = excluded.end_ms, display_type = excluded.display_type, version = excluded.version`
	upsertSession = `INSERT INTO sessions (id, title, block_id, room_id, detail_url, slides, starred, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, block_id = excluded.block_id,
			room_id = excluded.room_id, detail_url = excluded.detail_url, slides = excluded.slides,
			version = excluded.version`
	upsertTrack = `INSERT INTO tracks (id, name, version) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, version = excluded.version`
	upsertRoom = `INSERT INTO rooms (id, name, version) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, version = excluded.version`
	upsertSessionTrack = `INSERT INTO session_tracks (session_id, track_id, version) VALUES (?, ?, ?)
		ON CONFLICT(session_id, track_id) DO UPDATE SET version = excluded.version`
)

// Apply executes batch in one transaction.
func (db *DB) Apply(ctx context.Context, batch []Op) error {
	if len(batch) == 0 {
		return nil
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	for _, op := range batch {
		if err := db.applyOp(ctx, tx, op); err != nil {
			tx.Rollback()
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (db *DB) applyOp(ctx context.Context, tx *sql.Tx, op Op) error {
	if op.Kind == OpDeleteStale {
		return db.deleteStale(ctx, tx, op.Entity, op.Version)
	}
	var err error
	switch {
	case op.Block != nil:
		b := op.Block
		_, err = tx.ExecContext(ctx, db.rebind(upsertBlock),
			b.ID, b.Title, b.Start.UnixMilli(), b.End.UnixMilli(), string(b.DisplayType), b.Version)
	case op.Session != nil:
		s := op.Session
		_, err = tx.ExecContext(ctx, db.rebind(upsertSession),
			s.ID, s.Title, s.BlockID, s.RoomID, s.DetailURL, encodeRefs(s.Slides), s.Starred, s.Version)
	case op.Track != nil:
		_, err = tx.ExecContext(ctx, db.rebind(upsertTrack), op.Track.ID, op.Track.Name, op.Version)
	case op.Room != nil:
		_, err = tx.ExecContext(ctx, db.rebind(upsertRoom), op.Room.ID, op.Room.Name, op.Version)
	case op.SessionTrack != nil:
		_, err = tx.ExecContext(ctx, db.rebind(upsertSessionTrack), op.SessionTrack.SessionID, op.SessionTrack.TrackID, op.Version)
	default:
		err = errors.New("insert op without a record")
	}
	return err
}

func (db *DB) deleteStale(ctx context.Context, tx *sql.Tx, entity Entity, version int64) error {
	var stmts []string
	switch entity {
	case EntityBlock:
		stmts = []string{"DELETE FROM blocks WHERE version <> ?"}
	case EntitySession:
		// Join rows go with their sessions.
		stmts = []string{
			"DELETE FROM sessions WHERE version <> ?",
			"DELETE FROM session_tracks WHERE version <> ?",
		}
	case EntityTrack:
		stmts = []string{"DELETE FROM tracks WHERE version <> ?"}
	case EntityRoom:
		stmts = []string{"DELETE FROM rooms WHERE version <> ?"}
	case EntitySessionTrack:
		stmts = []string{"DELETE FROM session_tracks WHERE version <> ?"}
	default:
		return fmt.Errorf("unknown entity %q", entity)
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, db.rebind(q), version); err != nil {
			return err
		}
	}
	return nil
}

// --- Session Methods ---

// SessionStarred returns the stored starred flag for a session.
func (db *DB) SessionStarred(ctx context.Context, sessionID string) (bool, error) {
	var starred bool
	err := db.conn.QueryRowContext(ctx, db.rebind("SELECT starred FROM sessions WHERE id = ?"), sessionID).Scan(&starred)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return starred, err
}

const sessionViewSelect = `SELECT s.id, s.title, s.block_id, s.room_id, s.detail_url, s.slides, s.drafts,
		s.starred, s.version, COALESCE(b.start_ms, 0), COALESCE(b.end_ms, 0),
		COALESCE(b.display_type, ''), COALESCE(r.name, '')
	FROM sessions s
	LEFT JOIN blocks b ON b.id = s.block_id
	LEFT JOIN rooms r ON r.id = s.room_id`

// Sessions returns all sessions ordered by start time.
func (db *DB) Sessions(ctx context.Context) ([]model.SessionView, error) {
	return db.querySessions(ctx, sessionViewSelect+" ORDER BY b.start_ms, s.title")
}

// SessionsByBlock returns the sessions pointing at blockID.
func (db *DB) SessionsByBlock(ctx context.Context, blockID string) ([]model.SessionView, error) {
	return db.querySessions(ctx, sessionViewSelect+" WHERE s.block_id = ? ORDER BY s.title", blockID)
}

// StarredSessions returns the starred sessions ordered by start time.
func (db *DB) StarredSessions(ctx context.Context) ([]model.SessionView, error) {
	return db.querySessions(ctx, sessionViewSelect+" WHERE s.starred = ? ORDER BY b.start_ms, s.title", true)
}

// Session returns one session or ErrNotFound.
func (db *DB) Session(ctx context.Context, sessionID string) (*model.SessionView, error) {
	list, err := db.querySessions(ctx, sessionViewSelect+" WHERE s.id = ?", sessionID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return &list[0], nil
}

func (db *DB) querySessions(ctx context.Context, query string, args ...any) ([]model.SessionView, error) {
	rows, err := db.conn.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SessionView
	for rows.Next() {
		var v model.SessionView
		var slides, drafts, displayType string
		var startMs, endMs int64
		if err := rows.Scan(&v.ID, &v.Title, &v.BlockID, &v.RoomID, &v.DetailURL, &slides, &drafts,
			&v.Starred, &v.Version, &startMs, &endMs, &displayType, &v.RoomName); err != nil {
			return nil, err
		}
		v.Slides = decodeRefs(slides)
		v.Drafts = decodeRefs(drafts)
		v.Start = time.UnixMilli(startMs).UTC()
		v.End = time.UnixMilli(endMs).UTC()
		v.DisplayType = model.ParseDisplayType(displayType)
		out = append(out, v)
	}
	return out, rows.Err()
}

// SetStarred updates the starred flag of a session.
func (db *DB) SetStarred(ctx context.Context, sessionID string, starred bool) error {
	return db.updateSession(ctx, "UPDATE sessions SET starred = ? WHERE id = ?", starred, sessionID)
}

// SetSessionDrafts stores lazily loaded draft references.
func (db *DB) SetSessionDrafts(ctx context.Context, sessionID string, drafts []model.Ref) error {
	return db.updateSession(ctx, "UPDATE sessions SET drafts = ? WHERE id = ?", encodeRefs(drafts), sessionID)
}

func (db *DB) updateSession(ctx context.Context, query string, args ...any) error {
	res, err := db.conn.ExecContext(ctx, db.rebind(query), args...)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Block Methods ---

const blockSelect = "SELECT id, title, start_ms, end_ms, display_type, version FROM blocks"

// Blocks returns all blocks ordered by start time.
func (db *DB) Blocks(ctx context.Context) ([]model.Block, error) {
	return db.queryBlocks(ctx, blockSelect+" ORDER BY start_ms, end_ms")
}

// Block returns one block or ErrNotFound.
func (db *DB) Block(ctx context.Context, blockID string) (*model.Block, error) {
	list, err := db.queryBlocks(ctx, blockSelect+" WHERE id = ?", blockID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return &list[0], nil
}

func (db *DB) queryBlocks(ctx context.Context, query string, args ...any) ([]model.Block, error) {
	rows, err := db.conn.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Block
	for rows.Next() {
		var b model.Block
		var startMs, endMs int64
		var displayType string
		if err := rows.Scan(&b.ID, &b.Title, &startMs, &endMs, &displayType, &b.Version); err != nil {
			return nil, err
		}
		b.Start = time.UnixMilli(startMs).UTC()
		b.End = time.UnixMilli(endMs).UTC()
		b.DisplayType = model.ParseDisplayType(displayType)
		out = append(out, b)
	}
	return out, rows.Err()
}

// --- Track / Room Methods ---

// Tracks returns all tracks ordered by name.
func (db *DB) Tracks(ctx context.Context) ([]model.Track, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT id, name FROM tracks ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Track
	for rows.Next() {
		var t model.Track
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SessionTracks returns all session/track links.
func (db *DB) SessionTracks(ctx context.Context) ([]model.SessionTrack, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT session_id, track_id FROM session_tracks ORDER BY track_id, session_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SessionTrack
	for rows.Next() {
		var st model.SessionTrack
		if err := rows.Scan(&st.SessionID, &st.TrackID); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// Rooms returns all rooms ordered by name.
func (db *DB) Rooms(ctx context.Context) ([]model.Room, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT id, name FROM rooms ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Room
	for rows.Next() {
		var r model.Room
		if err := rows.Scan(&r.ID, &r.Name); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- Meta Methods ---

// GetMeta retrieves a meta value, "" when unset.
func (db *DB) GetMeta(ctx context.Context, key string) (string, error) {
	var val string
	err := db.conn.QueryRowContext(ctx, db.rebind("SELECT value FROM meta WHERE key = ?"), key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return val, err
}

// SetMeta saves a meta value.
func (db *DB) SetMeta(ctx context.Context, key, value string) error {
	_, err := db.conn.ExecContext(ctx,
		db.rebind("INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value"),
		key, value)
	return err
}
