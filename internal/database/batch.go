package database

import (
	"fmt"
	"strings"

	"github.com/bryan-buckman/confsync/internal/model"
)

// Entity names a record kind in the store.
type Entity string

const (
	EntityBlock        Entity = "block"
	EntitySession      Entity = "session"
	EntityTrack        Entity = "track"
	EntityRoom         Entity = "room"
	EntitySessionTrack Entity = "session_track"
)

// OpKind is insert (upsert by id) or delete-stale.
type OpKind int

const (
	OpInsert OpKind = iota
	OpDeleteStale
)

// Op is one operation in a batch. Exactly one record pointer is set for an
// insert; a delete-stale op removes every row of Entity whose generation
// version differs from Version.
type Op struct {
	Kind   OpKind
	Entity Entity

	Block        *model.Block
	Session      *model.Session
	Track        *model.Track
	Room         *model.Room
	SessionTrack *model.SessionTrack

	Version int64
}

func (o Op) String() string {
	if o.Kind == OpDeleteStale {
		return fmt.Sprintf("delete %s where version != %d", o.Entity, o.Version)
	}
	return fmt.Sprintf("insert %s %s", o.Entity, o.id())
}

func (o Op) id() string {
	switch {
	case o.Block != nil:
		return o.Block.ID
	case o.Session != nil:
		return o.Session.ID
	case o.Track != nil:
		return o.Track.ID
	case o.Room != nil:
		return o.Room.ID
	case o.SessionTrack != nil:
		return o.SessionTrack.SessionID + "/" + o.SessionTrack.TrackID
	}
	return ""
}

// InsertBlock builds an upsert for b.
func InsertBlock(b model.Block) Op { return Op{Kind: OpInsert, Entity: EntityBlock, Block: &b, Version: b.Version} }

// InsertSession builds an upsert for s.
func InsertSession(s model.Session) Op {
	return Op{Kind: OpInsert, Entity: EntitySession, Session: &s, Version: s.Version}
}

// InsertTrack builds an upsert for t.
func InsertTrack(t model.Track, version int64) Op {
	return Op{Kind: OpInsert, Entity: EntityTrack, Track: &t, Version: version}
}

// InsertRoom builds an upsert for r.
func InsertRoom(r model.Room, version int64) Op {
	return Op{Kind: OpInsert, Entity: EntityRoom, Room: &r, Version: version}
}

// InsertSessionTrack builds an upsert for st.
func InsertSessionTrack(st model.SessionTrack, version int64) Op {
	return Op{Kind: OpInsert, Entity: EntitySessionTrack, SessionTrack: &st, Version: version}
}

// DeleteStale removes rows of entity not stamped with version.
func DeleteStale(entity Entity, version int64) Op {
	return Op{Kind: OpDeleteStale, Entity: entity, Version: version}
}

// Refs are stored as one text column: entries joined by RefSeparator, each
// entry "title" + FieldSeparator + "url".
const (
	RefSeparator   = "||"
	FieldSeparator = "|"
)

func encodeRefs(refs []model.Ref) string {
	parts := make([]string, 0, len(refs))
	for _, r := range refs {
		parts = append(parts, r.Title+FieldSeparator+r.URL)
	}
	return strings.Join(parts, RefSeparator)
}

func decodeRefs(s string) []model.Ref {
	if s == "" {
		return nil
	}
	entries := strings.Split(s, RefSeparator)
	refs := make([]model.Ref, 0, len(entries))
	for _, e := range entries {
		i := strings.LastIndex(e, FieldSeparator)
		if i < 0 {
			refs = append(refs, model.Ref{Title: e})
			continue
		}
		refs = append(refs, model.Ref{Title: e[:i], URL: e[i+len(FieldSeparator):]})
	}
	return refs
}
