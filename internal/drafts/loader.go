// Package drafts lazily attaches Internet-Draft references to sessions.
package drafts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/bryan-buckman/confsync/internal/database"
	"github.com/bryan-buckman/confsync/internal/model"
)

// DocURLTemplate builds the human-facing page of a draft.
const DocURLTemplate = "https://datatracker.ietf.org/doc/%s/"

// Getter fetches a URL body.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

type sessionDetail struct {
	Materials []string `json:"materials"`
}

// Loader resolves the drafts of a session on first view.
type Loader struct {
	getter          Getter
	store           database.Store
	parser          *gofeed.Parser
	sessionTemplate string
	feedTemplate    string
	logger          *slog.Logger
}

// NewLoader builds a Loader. sessionTemplate turns a relative detail path into
// a fetchable URL; feedTemplate points at a draft's change feed. Both take one
// %s verb.
func NewLoader(getter Getter, store database.Store, sessionTemplate, feedTemplate string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		getter:          getter,
		store:           store,
		parser:          gofeed.NewParser(),
		sessionTemplate: sessionTemplate,
		feedTemplate:    feedTemplate,
		logger:          logger,
	}
}

// Load returns the session, fetching and persisting its drafts when none are
// stored yet. Remote failures are logged and the session is returned as is.
func (l *Loader) Load(ctx context.Context, sessionID string) (*model.SessionView, error) {
	s, err := l.store.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(s.Drafts) > 0 || s.DetailURL == "" {
		return s, nil
	}

	logger := l.logger.With("session", sessionID)
	names, err := l.draftNames(ctx, l.detailURL(s.DetailURL))
	if err != nil {
		logger.Warn("load session detail", "err", err)
		return s, nil
	}
	if len(names) == 0 {
		return s, nil
	}

	refs := make([]model.Ref, 0, len(names))
	for _, name := range names {
		refs = append(refs, model.Ref{Title: l.title(ctx, logger, name), URL: fmt.Sprintf(DocURLTemplate, name)})
	}
	if err := l.store.SetSessionDrafts(ctx, sessionID, refs); err != nil {
		logger.Warn("save drafts", "err", err)
	}
	s.Drafts = refs
	return s, nil
}

// detailURL accepts absolute URLs and relative API paths whose last segment
// is the session id.
func (l *Loader) detailURL(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Scheme != "" {
		return raw
	}
	return fmt.Sprintf(l.sessionTemplate, lastSegment(raw))
}

func (l *Loader) draftNames(ctx context.Context, detailURL string) ([]string, error) {
	body, err := l.getter.Get(ctx, detailURL)
	if err != nil {
		return nil, err
	}
	var detail sessionDetail
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, fmt.Errorf("parse session detail: %w", err)
	}
	return DraftNames(detail.Materials), nil
}

// DraftNames keeps materials whose last path segment is a draft name, in order,
// without duplicates.
func DraftNames(materials []string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range materials {
		name := lastSegment(m)
		if !strings.HasPrefix(name, "draft-") || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// title reads the draft's change feed; the draft name is the fallback.
func (l *Loader) title(ctx context.Context, logger *slog.Logger, name string) string {
	body, err := l.getter.Get(ctx, fmt.Sprintf(l.feedTemplate, name))
	if err != nil {
		logger.Debug("draft feed unavailable", "draft", name, "err", err)
		return name
	}
	feed, err := l.parser.ParseString(string(body))
	if err != nil {
		logger.Debug("draft feed unparsable", "draft", name, "err", err)
		return name
	}
	if t := strings.TrimSpace(feed.Description); t != "" {
		return t
	}
	if t := strings.TrimSpace(strings.TrimPrefix(feed.Title, "Changes for ")); t != "" {
		return t
	}
	return name
}

func lastSegment(p string) string {
	if u, err := url.Parse(p); err == nil {
		p = u.Path
	}
	p = strings.TrimRight(p, "/")
	if p == "" {
		return ""
	}
	return path.Base(p)
}
