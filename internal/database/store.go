// Package database provides the Record Store backends.
package database

import (
	"context"
	"errors"

	"github.com/bryan-buckman/confsync/internal/model"
)

// ErrNotFound is returned by point lookups and updates on a missing row.
var ErrNotFound = errors.New("record not found")

// Store defines the interface for Record Store operations.
// Both SQLite and PostgreSQL implementations satisfy this interface.
type Store interface {
	Close() error

	// DatabaseType returns the name of the database backend ("SQLite" or "PostgreSQL").
	DatabaseType() string

	// Apply executes a batch in a single transaction; either every op lands or none.
	// Upserts never change the starred flag of a session that already exists.
	Apply(ctx context.Context, batch []Op) error

	// SessionStarred returns the stored starred flag, false when the session is absent.
	SessionStarred(ctx context.Context, sessionID string) (bool, error)

	// Read operations
	Blocks(ctx context.Context) ([]model.Block, error)
	Block(ctx context.Context, blockID string) (*model.Block, error)
	Sessions(ctx context.Context) ([]model.SessionView, error)
	SessionsByBlock(ctx context.Context, blockID string) ([]model.SessionView, error)
	StarredSessions(ctx context.Context) ([]model.SessionView, error)
	Session(ctx context.Context, sessionID string) (*model.SessionView, error)
	Tracks(ctx context.Context) ([]model.Track, error)
	SessionTracks(ctx context.Context) ([]model.SessionTrack, error)
	Rooms(ctx context.Context) ([]model.Room, error)

	// User state
	SetStarred(ctx context.Context, sessionID string, starred bool) error
	SetSessionDrafts(ctx context.Context, sessionID string, drafts []model.Ref) error

	// Meta operations
	GetMeta(ctx context.Context, key string) (string, error)
	SetMeta(ctx context.Context, key, value string) error
}
