// Package server provides the HTTP server and handlers.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bryan-buckman/confsync/internal/database"
	"github.com/bryan-buckman/confsync/internal/export"
	"github.com/bryan-buckman/confsync/internal/model"
	"github.com/bryan-buckman/confsync/internal/syncer"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Syncer is the sync pipeline as seen by the API.
type Syncer interface {
	Run(ctx context.Context) (*syncer.Result, error)
	Running() bool
	Status() syncer.Status
}

// DraftLoader attaches drafts to a session on first view.
type DraftLoader interface {
	Load(ctx context.Context, sessionID string) (*model.SessionView, error)
}

// MeetingSource returns the cached meeting selection without refreshing it.
type MeetingSource interface {
	Peek() *model.MeetingMetadata
}

// Deps wires a Server.
type Deps struct {
	Store    database.Store
	Syncer   Syncer
	Drafts   DraftLoader
	Meetings MeetingSource
	Metrics  http.Handler
	Poller   *syncer.Poller
	Logger   *slog.Logger
	Now      func() time.Time
}

// Server is the main HTTP server.
type Server struct {
	db        database.Store
	syncer    Syncer
	drafts    DraftLoader
	meetings  MeetingSource
	metrics   http.Handler
	poller    *syncer.Poller
	logger    *slog.Logger
	now       func() time.Time
	router    chi.Router
	templates *template.Template
	http      *http.Server
}

// New creates a new server.
func New(deps Deps) (*Server, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"timeAgo": func(t time.Time) string { return timeAgo(t, time.Now()) },
		"clock":   func(t time.Time) string { return t.Format("15:04") },
	}).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	s := &Server{
		db:        deps.Store,
		syncer:    deps.Syncer,
		drafts:    deps.Drafts,
		meetings:  deps.Meetings,
		metrics:   deps.Metrics,
		poller:    deps.Poller,
		logger:    deps.Logger,
		now:       deps.Now,
		templates: tmpl,
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/", s.handleHome)
	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/sync", s.handleSync)
		r.Get("/status", s.handleStatus)
		r.Get("/meeting", s.handleMeeting)
		r.Get("/blocks", s.handleBlocks)
		r.Get("/blocks/{blockID}/sessions", s.handleBlockSessions)
		r.Get("/sessions/{sessionID}", s.handleSession)
		r.Post("/sessions/{sessionID}/star", s.handleStar(true))
		r.Delete("/sessions/{sessionID}/star", s.handleStar(false))
		r.Get("/agenda.ics", s.handleICS)
		r.Get("/export-opml", s.handleExportOPML)
	})

	s.router = r
}

// Handler exposes the router.
func (s *Server) Handler() http.Handler { return s.router }

// Start starts the poller and serves until Shutdown.
func (s *Server) Start(addr string) error {
	if s.poller != nil {
		s.poller.Start()
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("server starting", "addr", addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and stops the poller.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.poller != nil {
		s.poller.Stop()
	}
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// --- Page Handlers ---

type dayGroup struct {
	Day    string
	Blocks []model.Block
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	blocks, err := s.db.Blocks(ctx)
	if err != nil {
		s.serverError(w, "load blocks", err)
		return
	}
	m := s.currentMeeting(ctx)
	loc := time.UTC
	if m != nil {
		loc = m.Location()
	}

	var days []dayGroup
	for _, b := range blocks {
		b.Start, b.End = b.Start.In(loc), b.End.In(loc)
		day := b.Start.Format("Monday, 2 January")
		if len(days) == 0 || days[len(days)-1].Day != day {
			days = append(days, dayGroup{Day: day})
		}
		days[len(days)-1].Blocks = append(days[len(days)-1].Blocks, b)
	}

	data := map[string]interface{}{
		"Meeting": m,
		"Days":    days,
		"Status":  s.syncer.Status(),
	}
	s.render(w, "layout.html", data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": s.db.DatabaseType()})
}

// --- API Handlers ---

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.syncer.Running() {
		writeJSON(w, http.StatusConflict, map[string]string{"status": "running"})
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), syncer.RunTimeout)
		defer cancel()
		if _, err := s.syncer.Run(ctx); errors.Is(err, syncer.ErrSyncInProgress) {
			s.logger.Debug("manual sync skipped, sync in progress")
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.syncer.Status())
}

func (s *Server) handleMeeting(w http.ResponseWriter, r *http.Request) {
	m := s.currentMeeting(r.Context())
	if m == nil {
		http.Error(w, "No meeting", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleBlocks(w http.ResponseWriter, r *http.Request) {
	blocks, err := s.db.Blocks(r.Context())
	if err != nil {
		s.serverError(w, "load blocks", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(blocks))
}

func (s *Server) handleBlockSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	blockID := chi.URLParam(r, "blockID")
	if _, err := s.db.Block(ctx, blockID); err != nil {
		s.lookupError(w, "load block", err)
		return
	}
	sessions, err := s.db.SessionsByBlock(ctx, blockID)
	if err != nil {
		s.serverError(w, "load sessions", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(sessions))
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.drafts.Load(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.lookupError(w, "load session", err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleStar(starred bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")
		if err := s.db.SetStarred(r.Context(), id, starred); err != nil {
			s.lookupError(w, "set starred", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "starred": starred})
	}
}

func (s *Server) handleICS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessions, err := s.db.StarredSessions(ctx)
	if err != nil {
		s.serverError(w, "load starred sessions", err)
		return
	}
	name := "Starred sessions"
	if m := s.currentMeeting(ctx); m != nil {
		name = m.Name + " starred sessions"
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=agenda.ics")
	w.Write([]byte(export.ICS(name, s.now(), sessions)))
}

func (s *Server) handleExportOPML(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracks, err := s.db.Tracks(ctx)
	if err != nil {
		s.serverError(w, "load tracks", err)
		return
	}
	links, err := s.db.SessionTracks(ctx)
	if err != nil {
		s.serverError(w, "load session tracks", err)
		return
	}
	sessions, err := s.db.Sessions(ctx)
	if err != nil {
		s.serverError(w, "load sessions", err)
		return
	}

	title := "Agenda"
	if m := s.currentMeeting(ctx); m != nil {
		title = m.Name
	}
	data, err := export.OPMLExport(title, s.now(), tracks, links, sessions)
	if err != nil {
		s.serverError(w, "export opml", err)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Content-Disposition", "attachment; filename=agenda.opml")
	w.Write(data)
}

// --- Helpers ---

// currentMeeting prefers the live selection and falls back to what the last
// successful sync recorded.
func (s *Server) currentMeeting(ctx context.Context) *model.MeetingMetadata {
	if s.meetings != nil {
		if m := s.meetings.Peek(); m != nil {
			return m
		}
	}
	number, err := s.db.GetMeta(ctx, model.MetaMeetingNumber)
	if err != nil || number == "" {
		return nil
	}
	name, _ := s.db.GetMeta(ctx, model.MetaMeetingName)
	tz, _ := s.db.GetMeta(ctx, model.MetaTimezone)
	return &model.MeetingMetadata{Number: number, Name: name, Timezone: tz}
}

func (s *Server) lookupError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, database.ErrNotFound) {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	s.serverError(w, op, err)
}

func (s *Server) serverError(w http.ResponseWriter, op string, err error) {
	s.logger.Error(op, "err", err)
	http.Error(w, "Internal error", http.StatusInternalServerError)
}

func (s *Server) render(w http.ResponseWriter, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error("template", "err", err)
		http.Error(w, "Render error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}

func timeAgo(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	switch {
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
