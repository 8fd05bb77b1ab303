// Package syncer runs the agenda sync pipeline and schedules it.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryan-buckman/confsync/internal/agenda"
	"github.com/bryan-buckman/confsync/internal/database"
	"github.com/bryan-buckman/confsync/internal/model"
	"github.com/bryan-buckman/confsync/internal/notify"
	"github.com/bryan-buckman/confsync/internal/transform"
)

var (
	// ErrNoMeeting is returned when no meeting could be detected.
	ErrNoMeeting = errors.New("no current meeting")
	// ErrSyncInProgress is returned when a run is triggered while another is active.
	ErrSyncInProgress = errors.New("sync already in progress")
)

// CommitError reports a failed store commit and the phase it failed in.
// A failure in StatePurging means the new generation landed but stale rows
// from earlier generations remain until the next successful run.
type CommitError struct {
	Phase State
	Err   error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit failed in %s: %v", e.Phase, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }

// Detector finds the meeting to sync.
type Detector interface {
	Detect(ctx context.Context) *model.MeetingMetadata
}

// Getter fetches a URL body and its ETag.
type Getter interface {
	Head(ctx context.Context, url string) (string, error)
	Get(ctx context.Context, url string) ([]byte, error)
}

// Notifier is told when a run replaced the stored blocks.
type Notifier interface {
	Notify(ctx context.Context, ev notify.BlocksChanged)
}

// Recorder records run outcomes.
type Recorder interface {
	ObserveRun(outcome string, elapsed time.Duration, blocks, sessions int)
}

// Options configures an Orchestrator.
type Options struct {
	Logger   *slog.Logger
	Now      func() time.Time
	Notifier Notifier
	Metrics  Recorder
	Rules    []agenda.Rule
}

// Result summarizes one completed run.
type Result struct {
	MeetingNumber string          `json:"meeting_number"`
	Version       int64           `json:"version"`
	Stats         transform.Stats `json:"stats"`
	Elapsed       time.Duration   `json:"elapsed"`
	// Unchanged is set when the agenda ETag matched the stored one and
	// nothing was fetched or committed.
	Unchanged     bool            `json:"unchanged,omitempty"`
}

// Status is a snapshot of the orchestrator for the status endpoint.
type Status struct {
	State        State     `json:"state"`
	Running      bool      `json:"running"`
	LastStarted  time.Time `json:"last_started,omitempty"`
	LastFinished time.Time `json:"last_finished,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
	LastResult   *Result   `json:"last_result,omitempty"`
}

// Orchestrator sequences detect, fetch, decode, classify, commit and purge.
// At most one run is in flight at a time.
type Orchestrator struct {
	detector Detector
	getter   Getter
	store    database.Store
	opts     Options

	running atomic.Bool

	mu     sync.RWMutex
	status Status
}

// New wires an Orchestrator.
func New(detector Detector, getter Getter, store database.Store, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		detector: detector,
		getter:   getter,
		store:    store,
		opts:     opts,
		status:   Status{State: StateIdle},
	}
}

// Status returns the current status.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s := o.status
	s.Running = o.running.Load()
	return s
}

// Running reports whether a run is in flight.
func (o *Orchestrator) Running() bool { return o.running.Load() }

// Run executes one sync. It returns ErrSyncInProgress without side effects
// when another run is active.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer o.running.Store(false)

	started := o.opts.Now()
	r := &run{state: o.currentState()}
	o.setStarted(started)

	res, err := o.execute(ctx, r, transform.Version(started))
	elapsed := o.opts.Now().Sub(started)
	if err != nil {
		if r.state != StateFailed {
			if terr := r.transition(r.state, StateFailed); terr != nil {
				o.opts.Logger.Error("state machine", "err", terr)
			}
		}
		o.finish(r.state, nil, err)
		o.observe("failed", elapsed, transform.Stats{})
		o.opts.Logger.Error("sync failed", "err", err, "elapsed", elapsed)
		return nil, err
	}

	res.Elapsed = elapsed
	o.finish(r.state, res, nil)
	if res.Unchanged {
		o.observe("unchanged", elapsed, res.Stats)
		o.opts.Logger.Info("sync skipped, agenda unchanged", "meeting", res.MeetingNumber, "version", res.Version)
		return res, nil
	}
	o.observe("success", elapsed, res.Stats)
	o.opts.Logger.Info("sync done",
		"meeting", res.MeetingNumber, "version", res.Version,
		"blocks", res.Stats.Blocks, "sessions", res.Stats.Sessions, "elapsed", elapsed)
	return res, nil
}

func (o *Orchestrator) execute(ctx context.Context, r *run, version int64) (*Result, error) {
	step := func(to State) error {
		if err := r.transition(r.state, to); err != nil {
			return err
		}
		o.setState(to)
		return nil
	}

	if err := step(StateDetecting); err != nil {
		return nil, err
	}
	m := o.detector.Detect(ctx)
	if m == nil {
		return nil, ErrNoMeeting
	}
	logger := o.opts.Logger.With("meeting", m.Number, "version", version)

	if err := step(StateFetching); err != nil {
		return nil, err
	}
	etag, err := o.getter.Head(ctx, m.AgendaURL)
	if err != nil {
		logger.Warn("agenda head failed", "err", err)
		etag = ""
	}
	if stored, ok := o.storedGeneration(ctx, m, etag); ok {
		if err := step(StateDone); err != nil {
			return nil, err
		}
		return &Result{MeetingNumber: m.Number, Version: stored, Unchanged: true}, nil
	}
	payload, err := o.getter.Get(ctx, m.AgendaURL)
	if err != nil {
		return nil, fmt.Errorf("fetch agenda %s: %w", m.AgendaURL, err)
	}

	if err := step(StateDecoding); err != nil {
		return nil, err
	}
	loc := m.Location()
	events, err := agenda.NewDecoder(loc, logger).Decode(payload)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, agenda.ErrEmptyAgenda
	}

	if err := step(StateClassifying); err != nil {
		return nil, err
	}
	tr := transform.New(o.store, loc, logger)
	if o.opts.Rules != nil {
		tr.WithRules(o.opts.Rules)
	}
	batch, stats := tr.Transform(ctx, events, version)

	if err := step(StateCommitting); err != nil {
		return nil, err
	}
	if err := o.store.Apply(ctx, batch); err != nil {
		return nil, &CommitError{Phase: StateCommitting, Err: err}
	}

	if err := step(StatePurging); err != nil {
		return nil, err
	}
	if err := o.store.Apply(ctx, transform.Purge(version)); err != nil {
		return nil, &CommitError{Phase: StatePurging, Err: err}
	}
	o.saveMeta(ctx, logger, m, version, etag)
	if o.opts.Notifier != nil {
		o.opts.Notifier.Notify(ctx, notify.BlocksChanged{
			MeetingNumber: m.Number,
			Version:       version,
			Blocks:        stats.Blocks,
			Sessions:      stats.Sessions,
			At:            o.opts.Now(),
		})
	}

	if err := step(StateDone); err != nil {
		return nil, err
	}
	return &Result{MeetingNumber: m.Number, Version: version, Stats: stats}, nil
}

// saveMeta records which meeting the stored rows belong to. Failures only
// affect display labels and are logged.
func (o *Orchestrator) saveMeta(ctx context.Context, logger *slog.Logger, m *model.MeetingMetadata, version int64, etag string) {
	meta := [][2]string{
		{model.MetaMeetingNumber, m.Number},
		{model.MetaMeetingName, m.Name},
		{model.MetaTimezone, m.Timezone},
		{model.MetaVersion, strconv.FormatInt(version, 10)},
		{model.MetaAgendaETag, etag},
	}
	for _, kv := range meta {
		if err := o.store.SetMeta(ctx, kv[0], kv[1]); err != nil {
			logger.Warn("save meta", "key", kv[0], "err", err)
		}
	}
}

// storedGeneration returns the stored version when the last committed agenda
// belongs to m and carries the same non-empty ETag.
func (o *Orchestrator) storedGeneration(ctx context.Context, m *model.MeetingMetadata, etag string) (int64, bool) {
	if etag == "" {
		return 0, false
	}
	number, err := o.store.GetMeta(ctx, model.MetaMeetingNumber)
	if err != nil || number != m.Number {
		return 0, false
	}
	stored, err := o.store.GetMeta(ctx, model.MetaAgendaETag)
	if err != nil || stored != etag {
		return 0, false
	}
	v, err := o.store.GetMeta(ctx, model.MetaVersion)
	if err != nil {
		return 0, false
	}
	version, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return version, true
}

func (o *Orchestrator) currentState() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.status.State
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.status.State = s
	o.mu.Unlock()
}

func (o *Orchestrator) setStarted(t time.Time) {
	o.mu.Lock()
	o.status.LastStarted = t
	o.mu.Unlock()
}

func (o *Orchestrator) finish(s State, res *Result, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status.State = s
	o.status.LastFinished = o.opts.Now()
	if err != nil {
		o.status.LastError = err.Error()
		return
	}
	o.status.LastError = ""
	o.status.LastResult = res
}

func (o *Orchestrator) observe(outcome string, elapsed time.Duration, stats transform.Stats) {
	if o.opts.Metrics != nil {
		o.opts.Metrics.ObserveRun(outcome, elapsed, stats.Blocks, stats.Sessions)
	}
}
