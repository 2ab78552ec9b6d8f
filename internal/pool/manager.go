// Package pool implements the Worker Pool Manager: it keeps the number of
// live worker goroutines in step with the rate controller's published
// target, detects stalled workers via heartbeat, and drains the pool
// cooperatively (then forcibly) on shutdown, resizing and replacing
// crashed workers rather than running a fixed slice for the process
// lifetime.
package pool

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/adaptivecrawl/webcrawler/internal/crawler"
	"github.com/adaptivecrawl/webcrawler/internal/ratecontroller"
	"github.com/adaptivecrawl/webcrawler/internal/worker"
)

// Config tunes reconciliation cadence and shutdown grace.
type Config struct {
	ReconcileInterval time.Duration
	HeartbeatTimeout  time.Duration
	ShutdownGrace     time.Duration
	IdleDrainAfter    time.Duration
}

// Manager owns the live set of Worker goroutines and reconciles their
// count to RateController.Snapshot().TargetWorkers on every tick.
type Manager struct {
	cfg      Config
	deps     worker.Deps
	rc       *ratecontroller.Controller
	logger   *zap.Logger

	mu       sync.Mutex
	handles  map[int]*workerHandle
	nextID   int
	heartbeats chan int
}

type workerHandle struct {
	cancel   context.CancelFunc
	done     chan struct{}
	lastBeat time.Time
	worker   *worker.Worker
	draining bool
}

// New creates a Manager. deps.RateController must be set; the Manager
// reads its own copy via rc for reconciliation decisions that don't
// belong inside a Worker's own loop (crash replacement, forced shrink).
func New(cfg Config, deps worker.Deps, rc *ratecontroller.Controller, logger *zap.Logger) *Manager {
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = time.Second
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = 30 * time.Second
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 30 * time.Second
	}
	if cfg.IdleDrainAfter <= 0 {
		cfg.IdleDrainAfter = 5 * time.Second
	}
	return &Manager{
		cfg:        cfg,
		deps:       deps,
		rc:         rc,
		logger:     logger,
		handles:    make(map[int]*workerHandle),
		heartbeats: make(chan int, 64),
	}
}

// Run reconciles the worker count to the published target until ctx is
// canceled, then drains every live worker: first cooperatively by waiting
// up to ShutdownGrace, then by canceling their contexts outright.
func (m *Manager) Run(ctx context.Context, frontier *crawler.Frontier) {
	ticker := time.NewTicker(m.cfg.ReconcileInterval)
	defer ticker.Stop()

	idleSince := time.Time{}
	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return
		case id := <-m.heartbeats:
			m.mu.Lock()
			if h, ok := m.handles[id]; ok {
				h.lastBeat = time.Now()
			}
			m.mu.Unlock()
		case <-ticker.C:
			m.reconcile()
			m.reapStalled()

			if frontier.Len() == 0 && frontier.Outstanding() == 0 {
				if idleSince.IsZero() {
					idleSince = time.Now()
				} else if time.Since(idleSince) >= m.cfg.IdleDrainAfter {
					m.shutdown()
					return
				}
			} else {
				idleSince = time.Time{}
			}
		}
	}
}

func (m *Manager) reconcile() {
	target := m.rc.Snapshot().TargetWorkers
	m.mu.Lock()
	defer m.mu.Unlock()
	current := len(m.handles)
	switch {
	case current < target:
		for i := current; i < target; i++ {
			m.spawnLocked()
		}
	case current > target:
		// Surplus workers are asked to drain: finish the URL they're
		// currently on, then exit on their own rather than being
		// canceled mid-fetch. The handle stays in m.handles (and so
		// still counts toward "current") until its goroutine actually
		// exits and removes itself, which also keeps this branch from
		// re-draining the same worker on the next tick.
		needed := current - target
		for _, h := range m.handles {
			if needed <= 0 {
				break
			}
			if h.draining {
				continue
			}
			h.draining = true
			h.worker.Drain()
			needed--
		}
	}
}

func (m *Manager) spawnLocked() {
	id := m.nextID
	m.nextID++
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	w := worker.New(id, m.deps, m.heartbeats)
	m.handles[id] = &workerHandle{cancel: cancel, done: done, lastBeat: time.Now(), worker: w}

	go func() {
		defer close(done)
		w.Run(ctx)
		m.mu.Lock()
		delete(m.handles, id)
		m.mu.Unlock()
	}()
}

// reapStalled force-restarts any worker whose heartbeat is older than
// HeartbeatTimeout, and halves the controller's worker target so a
// systemic fault (e.g. the shared browser process crashed) doesn't spawn
// an equally-doomed replacement fleet on the next tick.
func (m *Manager) reapStalled() {
	m.mu.Lock()
	stalled := make([]int, 0)
	for id, h := range m.handles {
		if time.Since(h.lastBeat) > m.cfg.HeartbeatTimeout {
			stalled = append(stalled, id)
		}
	}
	for _, id := range stalled {
		m.handles[id].cancel()
		delete(m.handles, id)
	}
	m.mu.Unlock()

	if len(stalled) > 0 {
		m.logger.Warn("replacing stalled workers", zap.Int("count", len(stalled)))
		m.rc.ForceReduction()
	}
}

func (m *Manager) shutdown() {
	m.mu.Lock()
	handles := make([]*workerHandle, 0, len(m.handles))
	for _, h := range m.handles {
		h.worker.Drain()
		handles = append(handles, h)
	}
	m.handles = make(map[int]*workerHandle)
	m.mu.Unlock()

	deadline := time.After(m.cfg.ShutdownGrace)
	for _, h := range handles {
		select {
		case <-h.done:
		case <-deadline:
			h.cancel()
		}
	}
	for _, h := range handles {
		h.cancel()
	}
}

// ActiveWorkers reports the current live worker count, used by the CLI
// summary and by metrics.
func (m *Manager) ActiveWorkers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}
