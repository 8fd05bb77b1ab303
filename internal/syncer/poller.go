package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// RunTimeout bounds one scheduled run.
const RunTimeout = 10 * time.Minute

// Runner is what the Poller triggers.
type Runner interface {
	Run(ctx context.Context) (*Result, error)
}

// Poller runs the orchestrator on a cron schedule and once at start.
type Poller struct {
	runner   Runner
	schedule cron.Schedule
	spec     string
	logger   *slog.Logger

	cron *cron.Cron
	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

// NewPoller parses spec (standard five-field cron) and builds a Poller.
func NewPoller(runner Runner, spec string, logger *slog.Logger) (*Poller, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{runner: runner, schedule: schedule, spec: spec, logger: logger}, nil
}

// Next returns the next scheduled run after t.
func (p *Poller) Next(t time.Time) time.Time { return p.schedule.Next(t) }

// Start runs once immediately and then on every schedule tick.
func (p *Poller) Start() {
	p.ctx, p.stop = context.WithCancel(context.Background())
	p.cron = cron.New()
	p.cron.Schedule(p.schedule, cron.FuncJob(p.tick))

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.tick()
	}()
	p.cron.Start()
	p.logger.Info("poller started", "schedule", p.spec, "next", p.Next(time.Now()))
}

// Stop cancels an in-flight run and waits for scheduled jobs to finish.
func (p *Poller) Stop() {
	if p.cron == nil {
		return
	}
	p.stop()
	<-p.cron.Stop().Done()
	p.wg.Wait()
}

func (p *Poller) tick() {
	ctx, cancel := context.WithTimeout(p.ctx, RunTimeout)
	defer cancel()

	// Failures are logged by the orchestrator; the next tick retries.
	if _, err := p.runner.Run(ctx); errors.Is(err, ErrSyncInProgress) {
		p.logger.Debug("poller: run skipped, sync in progress")
	}
}
