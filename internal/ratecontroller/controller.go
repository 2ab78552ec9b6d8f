// Package ratecontroller implements the closed-loop adaptive controller
// that publishes the crawl's current target worker count and per-request
// delay, built on a ring buffer of recent outcomes and a single
// atomically-published state. Backoff/relax thresholds are fixed
// constants (see DESIGN.md, Open Question 3) rather than a multi-level
// recovery state machine.
package ratecontroller

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/adaptivecrawl/webcrawler/internal/crawler"
)

const windowSize = 20

// Config bounds the controller's output and sets its reaction cadence.
type Config struct {
	MinWorkers     int
	MaxWorkers     int
	InitialWorkers int
	MinDelay       time.Duration
	MaxDelay       time.Duration
	BaseDelay      time.Duration
	EvaluateEvery  int // re-decide after this many new outcomes

	// Aggressive doubles the rate-limited backoff multiplier (2.0x)
	// instead of the default 1.5x.
	Aggressive bool

	// Disabled holds the controller at its InitialWorkers/BaseDelay
	// setpoint for the whole run: outcomes are still recorded for
	// observability, but decide is never consulted to adjust it.
	Disabled bool
}

// Controller tracks a rolling window of recent fetch outcomes and
// publishes an adjusted crawler.ControllerState whenever the window
// triggers a decision. Reads of the published state (via Snapshot) never
// block on the mutex guarding the window — they read an atomic pointer.
type Controller struct {
	cfg Config

	mu          sync.Mutex
	window      []crawler.Outcome
	cursor      int
	since       int
	relaxStreak int

	published atomic.Pointer[crawler.ControllerState]
}

// New creates a Controller seeded at InitialWorkers/BaseDelay.
func New(cfg Config) *Controller {
	if cfg.EvaluateEvery <= 0 {
		cfg.EvaluateEvery = 5
	}
	c := &Controller{cfg: cfg}
	c.published.Store(&crawler.ControllerState{
		TargetWorkers: clamp(cfg.InitialWorkers, cfg.MinWorkers, cfg.MaxWorkers),
		RequestDelay:  cfg.BaseDelay,
		UpdatedAt:     time.Now().UTC(),
	})
	return c
}

// Snapshot returns the most recently published setpoint. Cheap and
// lock-free; called by every Worker before every claim and by the Worker
// Pool Manager on every reconciliation tick.
func (c *Controller) Snapshot() crawler.ControllerState {
	return *c.published.Load()
}

// RegisterOutcome records one fetch outcome and, every EvaluateEvery
// outcomes, recomputes the setpoint via decide and republishes it if it
// changed.
func (c *Controller) RegisterOutcome(o crawler.Outcome) {
	c.mu.Lock()
	if len(c.window) < windowSize {
		c.window = append(c.window, o)
	} else {
		c.window[c.cursor] = o
		c.cursor = (c.cursor + 1) % windowSize
	}
	c.since++
	due := c.since >= c.cfg.EvaluateEvery
	if due {
		c.since = 0
	}
	snapshot := c.orderedWindowLocked()
	streak := c.relaxStreak
	c.mu.Unlock()

	if !due || c.cfg.Disabled {
		return
	}
	current := c.Snapshot()
	next, newStreak := decide(snapshot, current, c.cfg, streak)

	c.mu.Lock()
	c.relaxStreak = newStreak
	c.mu.Unlock()

	if next != current {
		next.UpdatedAt = time.Now().UTC()
		c.published.Store(&next)
	}
}

// orderedWindowLocked returns the ring buffer contents in chronological
// order (oldest first). Callers must hold c.mu.
func (c *Controller) orderedWindowLocked() []crawler.Outcome {
	if len(c.window) < windowSize {
		return append([]crawler.Outcome(nil), c.window...)
	}
	ordered := make([]crawler.Outcome, windowSize)
	for i := 0; i < windowSize; i++ {
		ordered[i] = c.window[(c.cursor+i)%windowSize]
	}
	return ordered
}

// ForceReduction immediately halves the published worker target, used by
// the Worker Pool Manager when a crash-supervision threshold is tripped
// independent of the normal evaluation cadence.
func (c *Controller) ForceReduction() {
	current := c.Snapshot()
	current.TargetWorkers = clamp(current.TargetWorkers/2, c.cfg.MinWorkers, c.cfg.MaxWorkers)
	current.UpdatedAt = time.Now().UTC()
	c.published.Store(&current)
}

// decide is the pure decision function: given a chronologically ordered
// window of recent outcomes, the current state, and the consecutive-relax
// streak carried from the previous decision, it returns the next state and
// streak. It touches no locks and no clock other than through its caller,
// so it is trivial to table-test without a live browser.
//
// Thresholds (fraction of the window, unless noted):
//   - RateLimited >= 20%, OR any two RateLimited outcomes within the last
//     5: backoff. Delay *1.5 (*2.0 if cfg.Aggressive), workers -1.
//   - ServerError >= 30%: backoff. Delay *1.25, workers -1.
//   - Timeout >= 25%: backoff. Workers -1, delay unchanged.
//   - Otherwise, if the last half of the window is all Success and no
//     RateLimited appears anywhere in the full window: relax. Delay *0.9;
//     workers +1 only once current_delay has sat at MinDelay for at least
//     windowSize/2 consecutive qualifying relax decisions.
func decide(window []crawler.Outcome, current crawler.ControllerState, cfg Config, relaxStreak int) (crawler.ControllerState, int) {
	if len(window) == 0 {
		return current, relaxStreak
	}
	n := len(window)
	var rateLimited, serverErr, timeouts int
	for _, o := range window {
		switch o {
		case crawler.OutcomeRateLimited:
			rateLimited++
		case crawler.OutcomeServerError:
			serverErr++
		case crawler.OutcomeTimeout:
			timeouts++
		}
	}

	last5 := window
	if n > 5 {
		last5 = window[n-5:]
	}
	rateLimitedInLast5 := 0
	for _, o := range last5 {
		if o == crawler.OutcomeRateLimited {
			rateLimitedInLast5++
		}
	}

	next := current

	switch {
	case float64(rateLimited)/float64(n) >= 0.20 || rateLimitedInLast5 >= 2:
		multiplier := 1.5
		if cfg.Aggressive {
			multiplier = 2.0
		}
		next.RequestDelay = scaleDelay(current.RequestDelay, multiplier, cfg.MinDelay, cfg.MaxDelay)
		next.TargetWorkers = clamp(current.TargetWorkers-1, cfg.MinWorkers, cfg.MaxWorkers)
		return next, 0
	case float64(serverErr)/float64(n) >= 0.30:
		next.RequestDelay = scaleDelay(current.RequestDelay, 1.25, cfg.MinDelay, cfg.MaxDelay)
		next.TargetWorkers = clamp(current.TargetWorkers-1, cfg.MinWorkers, cfg.MaxWorkers)
		return next, 0
	case float64(timeouts)/float64(n) >= 0.25:
		next.TargetWorkers = clamp(current.TargetWorkers-1, cfg.MinWorkers, cfg.MaxWorkers)
		return next, 0
	}

	half := n / 2
	if half == 0 || rateLimited > 0 {
		return next, 0
	}
	lastHalf := window[n-half:]
	for _, o := range lastHalf {
		if o != crawler.OutcomeSuccess {
			return next, 0
		}
	}

	next.RequestDelay = scaleDelay(current.RequestDelay, 0.9, cfg.MinDelay, cfg.MaxDelay)
	newStreak := 0
	if current.RequestDelay == cfg.MinDelay {
		newStreak = relaxStreak + 1
	}
	if newStreak >= windowSize/2 {
		next.TargetWorkers = clamp(current.TargetWorkers+1, cfg.MinWorkers, cfg.MaxWorkers)
	}
	return next, newStreak
}

func scaleDelay(d time.Duration, factor float64, min, max time.Duration) time.Duration {
	scaled := time.Duration(float64(d) * factor)
	if scaled < min {
		return min
	}
	if scaled > max {
		return max
	}
	return scaled
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
