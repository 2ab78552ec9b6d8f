// Package engine wires every component a crawl run needs — Frontier,
// AdmissionFilter, rate Controller, browser Factory, extraction
// collaborators, Result Sink, Checkpoint Manager — and drives one run to
// completion. The dependency graph is assembled by hand in the same order
// every time (storage, then crawl collaborators, then workers) rather
// than through a DI container.
package engine

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/adaptivecrawl/webcrawler/internal/browser"
	"github.com/adaptivecrawl/webcrawler/internal/checkpoint"
	"github.com/adaptivecrawl/webcrawler/internal/clock/system"
	"github.com/adaptivecrawl/webcrawler/internal/config"
	"github.com/adaptivecrawl/webcrawler/internal/contentfilter"
	"github.com/adaptivecrawl/webcrawler/internal/crawler"
	"github.com/adaptivecrawl/webcrawler/internal/hash/sha256"
	"github.com/adaptivecrawl/webcrawler/internal/id/uuid"
	"github.com/adaptivecrawl/webcrawler/internal/keywordmatch"
	"github.com/adaptivecrawl/webcrawler/internal/logging"
	"github.com/adaptivecrawl/webcrawler/internal/markdownconv"
	"github.com/adaptivecrawl/webcrawler/internal/metrics"
	"github.com/adaptivecrawl/webcrawler/internal/pool"
	"github.com/adaptivecrawl/webcrawler/internal/ratecontroller"
	"github.com/adaptivecrawl/webcrawler/internal/sink"
	"github.com/adaptivecrawl/webcrawler/internal/worker"
)

// Engine owns every long-lived collaborator for one crawl run.
type Engine struct {
	cfg        config.Config
	logger     *zap.Logger
	frontier   *crawler.Frontier
	controller *ratecontroller.Controller
	factory    *browser.ChromedpFactory
	resultSink crawler.ResultSink
	manager    *pool.Manager
	checkpoint *checkpoint.Manager

	runID       string
	sinkCleanup func()
}

// New assembles an Engine from cfg, opening whatever backing resources the
// configured sink needs. Callers must call Close when done, success or not.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Engine, error) {
	metrics.Init()

	idGen := uuid.NewUUIDGenerator()
	runID := cfg.Run.RunID
	if runID == "" {
		generated, err := idGen.NewID()
		if err != nil {
			return nil, fmt.Errorf("generate run id: %w", err)
		}
		runID = generated
	}
	logger = logging.RunLogger(logger, runID)

	seedHosts, err := seedHostsOf(cfg.Run.Seeds)
	if err != nil {
		return nil, err
	}
	scope := crawler.ScopeExactHost
	if cfg.Run.AllowSubdomains {
		scope = crawler.ScopeSubdomains
	}
	if len(cfg.Run.AllowedHosts) > 0 {
		scope = crawler.ScopeExplicitHosts
	}
	admission := crawler.NewAdmissionFilter(crawler.AdmissionPolicy{
		Scope:             scope,
		SeedHosts:         seedHosts,
		AllowedHosts:      cfg.Run.AllowedHosts,
		Blocklist:         cfg.Run.Blocklist,
		PathPrefix:        cfg.Run.PathPrefix,
		AllowedExtensions: cfg.Run.AllowedExtensions,
	})
	frontier := crawler.NewFrontier(admission, cfg.Run.MaxPages)

	controller := ratecontroller.New(cfg.Controller)

	factory, err := browser.NewChromedpFactory(cfg.Browser, logger)
	if err != nil {
		return nil, fmt.Errorf("start browser factory: %w", err)
	}

	resultSink, cleanup, err := buildSink(ctx, cfg, logger)
	if err != nil {
		factory.Shutdown(ctx)
		return nil, err
	}

	var keywordMatcher crawler.KeywordMatcher
	var markdownConv crawler.MarkdownConverter
	if cfg.Run.MarkdownMode {
		markdownConv = markdownconv.New()
	} else {
		keywordMatcher = keywordmatch.New(cfg.Run.Keywords)
	}

	deps := worker.Deps{
		Frontier:          frontier,
		Admission:         admission,
		Sessions:          factory,
		RateController:    controller,
		Sink:              resultSink,
		ContentFilter:     contentfilter.New(cfg.Filter),
		KeywordMatcher:    keywordMatcher,
		MarkdownConverter: markdownConv,
		Hasher:            sha256.New(),
		Clock:             system.New(),
		Logger:            logger,
		Dedup:             crawler.NewResultDedup(),
		RetryPolicy:       crawler.NewExponentialRetryPolicy(),
		MaxDepth:          cfg.Run.MaxDepth,
		MaxAttempts:       3,
		MaxRestarts:       cfg.Run.MaxRestarts,
		StripQueryParams:  cfg.Run.StripQueryParams,
		EnableSPA:         cfg.Run.EnableSPA,
		SPAMaxClicks:      cfg.Run.SPAMaxClicksPerPage,
	}
	manager := pool.New(cfg.Pool, deps, controller, logger)

	cp := checkpoint.New(cfg.Run.CheckpointPath, cfg.Run.CheckpointInterval)

	e := &Engine{
		cfg:        cfg,
		logger:     logger,
		frontier:   frontier,
		controller: controller,
		factory:    factory,
		resultSink: resultSink,
		manager:     manager,
		checkpoint:  cp,
		runID:       runID,
		sinkCleanup: cleanup,
	}
	return e, e.seed(cfg)
}

func (e *Engine) seed(cfg config.Config) error {
	now := time.Now().UTC()
	for _, raw := range cfg.Run.Seeds {
		canonical, err := crawler.Canonicalize(raw, raw, cfg.Run.StripQueryParams)
		if err != nil {
			return fmt.Errorf("canonicalize seed %q: %w", raw, err)
		}
		e.frontier.TryEnqueue(canonical, 0, "", now)
	}
	return nil
}

// Run drives the crawl to completion: when resume is enabled it restores
// a checkpoint if one exists (warning, but still resuming, when its config
// fingerprint differs), installs a signal handler that
// emergency-checkpoints on SIGINT/SIGTERM, starts the periodic checkpoint
// loop, and blocks on the Worker Pool Manager until the Frontier runs dry
// or ctx is canceled.
func (e *Engine) Run(ctx context.Context) (crawler.RunStats, error) {
	if e.cfg.Run.Resume {
		e.tryResume()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats := crawler.RunStats{StartedAt: time.Now().UTC()}

	done := make(chan struct{})
	go func() {
		defer close(done)
		e.manager.Run(ctx, e.frontier)
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			e.saveCheckpoint(false)
			stats.PagesVisited = e.frontier.VisitedCount()
			return stats, nil
		case <-ctx.Done():
			e.saveCheckpoint(true)
		case <-ticker.C:
			state := e.controller.Snapshot()
			metrics.SetWorkerCounts(e.manager.ActiveWorkers(), state.TargetWorkers)
			metrics.SetRequestDelay(state.RequestDelay)
			metrics.SetFrontierDepth(e.frontier.Len())
			if e.checkpoint.ShouldSave(time.Now().UTC(), e.frontier.VisitedCount()) {
				e.saveCheckpoint(false)
			}
		}
	}
}

func (e *Engine) tryResume() {
	cp, err := checkpoint.LoadPreferEmergency(e.cfg.Run.CheckpointPath)
	if err != nil {
		return
	}
	if cp.ConfigFingerprint != e.cfg.Fingerprint() {
		e.logger.Warn("checkpoint config fingerprint mismatch, resuming anyway",
			zap.String("checkpoint_run_id", cp.RunID))
	}
	e.runID = cp.RunID
	e.frontier.Restore(cp.Frontier)
	e.logger.Info("resumed from checkpoint",
		zap.String("run_id", e.runID), zap.Time("saved_at", cp.SavedAt))
}

func (e *Engine) saveCheckpoint(emergency bool) {
	cp := checkpoint.Checkpoint{
		RunID:             e.runID,
		ConfigFingerprint: e.cfg.Fingerprint(),
		SavedAt:           time.Now().UTC(),
		Frontier:          e.frontier.Snapshot(),
		Controller:        e.controller.Snapshot(),
		Stats:             crawler.RunStats{PagesVisited: e.frontier.VisitedCount()},
	}
	if emergency {
		if err := e.checkpoint.EmergencySave(cp); err != nil {
			e.logger.Error("emergency checkpoint save failed", zap.Error(err))
			return
		}
		metrics.ObserveCheckpointSave("emergency")
		return
	}
	if err := e.checkpoint.Save(cp, cp.SavedAt, e.frontier.VisitedCount()); err != nil {
		e.logger.Error("checkpoint save failed", zap.Error(err))
		return
	}
	metrics.ObserveCheckpointSave("periodic")
}

// Close releases every backing resource opened by New.
func (e *Engine) Close(ctx context.Context) error {
	if e.resultSink != nil {
		if err := e.resultSink.Close(ctx); err != nil {
			e.logger.Warn("sink close failed", zap.Error(err))
		}
	}
	if e.sinkCleanup != nil {
		e.sinkCleanup()
	}
	return e.factory.Shutdown(ctx)
}

func buildSink(ctx context.Context, cfg config.Config, logger *zap.Logger) (crawler.ResultSink, func(), error) {
	switch cfg.SinkKind {
	case "memory":
		return sink.NewMemorySink(), func() {}, nil
	case "fs", "":
		s, err := sink.NewFSSink(cfg.FS)
		if err != nil {
			return nil, nil, fmt.Errorf("init fs sink: %w", err)
		}
		return s, func() {}, nil
	case "postgres":
		s, err := sink.NewPostgresSink(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("init postgres sink: %w", err)
		}
		return s, func() {}, nil
	case "gcs":
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("init gcs client: %w", err)
		}
		s, err := sink.NewGCSSink(ctx, client, cfg.GCS)
		if err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("init gcs sink: %w", err)
		}
		return s, func() { client.Close() }, nil
	case "pubsub":
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("init pubsub client: %w", err)
		}
		publisher := client.Publisher(cfg.PubSub.Topic)
		s, err := sink.NewPubSubSink(publisher)
		if err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("init pubsub sink: %w", err)
		}
		logger.Info("pubsub sink configured",
			zap.String("project", cfg.PubSub.ProjectID), zap.String("topic", cfg.PubSub.Topic))
		return s, func() { client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown sink kind %q", cfg.SinkKind)
	}
}

func seedHostsOf(seeds []string) ([]string, error) {
	hosts := make([]string, 0, len(seeds))
	for _, raw := range seeds {
		canonical, err := crawler.Canonicalize(raw, raw, nil)
		if err != nil {
			return nil, fmt.Errorf("parse seed %q: %w", raw, err)
		}
		parsed, err := url.Parse(canonical)
		if err != nil {
			return nil, fmt.Errorf("parse seed %q: %w", raw, err)
		}
		hosts = append(hosts, parsed.Hostname())
	}
	return hosts, nil
}
