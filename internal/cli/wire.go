package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/bryan-buckman/confsync/internal/config"
	"github.com/bryan-buckman/confsync/internal/database"
	"github.com/bryan-buckman/confsync/internal/drafts"
	"github.com/bryan-buckman/confsync/internal/fetch"
	"github.com/bryan-buckman/confsync/internal/meeting"
	"github.com/bryan-buckman/confsync/internal/metrics"
	"github.com/bryan-buckman/confsync/internal/notify"
	"github.com/bryan-buckman/confsync/internal/syncer"
)

type app struct {
	cfg          *config.Config
	logger       *slog.Logger
	store        database.Store
	cache        *meeting.Cache
	selector     *meeting.Selector
	metrics      *metrics.Metrics
	hub          *notify.Hub
	orchestrator *syncer.Orchestrator
	drafts       *drafts.Loader
	now          func() time.Time
	closers      []func() error
}

func wireApp(configPath string, logOut io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}
	cfg.ApplyEnv()

	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	store, err := database.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Database.Driver, err)
	}
	a := &app{cfg: cfg, logger: logger, store: store, now: time.Now}
	a.closers = append(a.closers, store.Close)

	fetcher := fetch.New(nil, cfg.HTTPTimeout)
	a.metrics = metrics.New()
	a.cache = meeting.NewCache()
	a.selector = meeting.NewSelector(fetcher, a.cache, meeting.Options{
		ListingURL:        cfg.MeetingsURL,
		AgendaURLTemplate: cfg.AgendaURLTemplate,
		Concurrency:       cfg.ProbeConcurrency,
		Logger:            logger.With("component", "meeting"),
		OnProbe:           a.metrics.ObserveProbe,
	})

	a.hub = notify.NewHub(logger)
	if len(cfg.Kafka.Brokers) > 0 {
		pub := notify.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		a.hub.Register(pub)
		a.closers = append(a.closers, pub.Close)
		logger.Info("kafka notifications enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	a.orchestrator = syncer.New(a.selector, fetcher, store, syncer.Options{
		Logger:   logger.With("component", "sync"),
		Notifier: a.hub,
		Metrics:  a.metrics,
	})
	a.drafts = drafts.NewLoader(fetcher, store, cfg.SessionURLTemplate, cfg.DraftFeedURLTemplate, logger.With("component", "drafts"))
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
