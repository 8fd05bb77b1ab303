package agenda

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bryan-buckman/confsync/internal/model"
)

// Namespaces for deterministic record ids.
var (
	blockNamespace   = uuid.MustParse("5b0c7f7e-3f0a-4b8e-9a5e-6f1d2c3b4a01")
	sessionNamespace = uuid.MustParse("5b0c7f7e-3f0a-4b8e-9a5e-6f1d2c3b4a02")
	trackNamespace   = uuid.MustParse("5b0c7f7e-3f0a-4b8e-9a5e-6f1d2c3b4a03")
	roomNamespace    = uuid.MustParse("5b0c7f7e-3f0a-4b8e-9a5e-6f1d2c3b4a04")
)

// BlockID derives a block id from its time range only.
func BlockID(start, end time.Time) string {
	key := strconv.FormatInt(start.UnixMilli(), 10) + "-" + strconv.FormatInt(end.UnixMilli(), 10)
	return uuid.NewSHA1(blockNamespace, []byte(key)).String()
}

// SessionID derives a session id from the feed key.
func SessionID(key string) string {
	return uuid.NewSHA1(sessionNamespace, []byte(key)).String()
}

// TrackID derives a track id from area and group.
func TrackID(area, group string) string {
	return uuid.NewSHA1(trackNamespace, []byte(area+group)).String()
}

// RoomID derives a room id from a location name.
func RoomID(location string) string {
	return uuid.NewSHA1(roomNamespace, []byte(location)).String()
}

// SessionTitle composes "{area} - {group} - {title}". A blank area or group
// keeps its " -" but loses the trailing space.
func SessionTitle(area, group, title string) string {
	var b strings.Builder
	b.WriteString(area)
	b.WriteString(" -")
	if area != "" {
		b.WriteString(" ")
	}
	b.WriteString(group)
	b.WriteString(" -")
	if group != "" {
		b.WriteString(" ")
	}
	b.WriteString(title)
	return b.String()
}

// StarredLookup returns the stored starred flag of a session (false if absent).
type StarredLookup interface {
	SessionStarred(ctx context.Context, sessionID string) (bool, error)
}

// Result is everything produced for one event. Block is nil when an earlier
// event in the same run already produced a block for the same time range.
type Result struct {
	Block        *model.Block
	Session      model.Session
	Track        *model.Track
	Room         *model.Room
	SessionTrack *model.SessionTrack
}

// Classifier maps events to records for a single sync run.
type Classifier struct {
	rules     []Rule
	numbering *NumberingTable
	starred   StarredLookup
	version   int64
	logger    *slog.Logger
	seen      map[string]bool
}

// NewClassifier starts a classification run. A nil rules slice uses DefaultRules.
func NewClassifier(rules []Rule, nt *NumberingTable, starred StarredLookup, version int64, logger *slog.Logger) *Classifier {
	if rules == nil {
		rules = DefaultRules
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		rules:     rules,
		numbering: nt,
		starred:   starred,
		version:   version,
		logger:    logger,
		seen:      make(map[string]bool),
	}
}

// Classify produces the records for ev.
func (c *Classifier) Classify(ctx context.Context, ev model.Event) Result {
	var res Result

	blockID := BlockID(ev.Start, ev.End)
	if c.seen[blockID] {
		c.logger.Debug("duplicate block dropped", "block_id", blockID, "title", ev.Title)
	} else {
		c.seen[blockID] = true
		cl := Classify(c.rules, ev, c.numbering)
		res.Block = &model.Block{
			ID:          blockID,
			Title:       cl.Title,
			Start:       ev.Start,
			End:         ev.End,
			DisplayType: cl.Type,
			Version:     c.version,
		}
	}

	sessionID := SessionID(ev.Key)
	res.Session = model.Session{
		ID:        sessionID,
		Title:     SessionTitle(ev.Area, ev.Group, ev.Title),
		BlockID:   blockID,
		DetailURL: ev.DetailURL,
		Slides:    ev.Slides,
		Starred:   c.lookupStarred(ctx, sessionID),
		Version:   c.version,
	}

	if strings.TrimSpace(ev.Location) != "" {
		res.Room = &model.Room{ID: RoomID(ev.Location), Name: ev.Location}
		res.Session.RoomID = res.Room.ID
	}

	if ev.Area != "" && ev.Group != "" {
		trackID := TrackID(ev.Area, ev.Group)
		res.Track = &model.Track{ID: trackID, Name: ev.Area + "-" + ev.Group}
		res.SessionTrack = &model.SessionTrack{SessionID: sessionID, TrackID: trackID}
	}
	return res
}

// lookupStarred only seeds new rows; the store keeps an existing row's flag.
func (c *Classifier) lookupStarred(ctx context.Context, sessionID string) bool {
	if c.starred == nil {
		return false
	}
	starred, err := c.starred.SessionStarred(ctx, sessionID)
	if err != nil {
		c.logger.Warn("read starred flag failed", "session_id", sessionID, "err", err)
		return false
	}
	return starred
}
