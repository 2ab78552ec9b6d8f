package ratecontroller

import (
	"testing"
	"time"

	"github.com/adaptivecrawl/webcrawler/internal/crawler"
)

func testConfig() Config {
	return Config{
		MinWorkers:     1,
		MaxWorkers:     10,
		InitialWorkers: 4,
		MinDelay:       50 * time.Millisecond,
		MaxDelay:       10 * time.Second,
		BaseDelay:      500 * time.Millisecond,
		EvaluateEvery:  1,
	}
}

func windowOf(outcomes ...crawler.Outcome) []crawler.Outcome {
	return outcomes
}

func TestDecideBacksOffAtTwentyPercentRateLimited(t *testing.T) {
	cfg := testConfig()
	current := crawler.ControllerState{TargetWorkers: 4, RequestDelay: 500 * time.Millisecond}
	window := make([]crawler.Outcome, 10)
	for i := range window {
		window[i] = crawler.OutcomeSuccess
	}
	window[0], window[5] = crawler.OutcomeRateLimited, crawler.OutcomeRateLimited // exactly 20%
	next, _ := decide(window, current, cfg, 0)
	if next.RequestDelay != 750*time.Millisecond {
		t.Fatalf("expected 1.5x backoff to 750ms, got %v", next.RequestDelay)
	}
	if next.TargetWorkers != 3 {
		t.Fatalf("expected target workers to drop by one, got %d", next.TargetWorkers)
	}
}

func TestDecideAggressiveDoublesBackoffMultiplier(t *testing.T) {
	cfg := testConfig()
	cfg.Aggressive = true
	current := crawler.ControllerState{TargetWorkers: 4, RequestDelay: 500 * time.Millisecond}
	window := make([]crawler.Outcome, 10)
	for i := range window {
		window[i] = crawler.OutcomeRateLimited
	}
	next, _ := decide(window, current, cfg, 0)
	if next.RequestDelay != time.Second {
		t.Fatalf("expected 2.0x aggressive backoff to 1s, got %v", next.RequestDelay)
	}
}

func TestDecideTwoRateLimitedInLastFiveTriggersBackoffBelowTwentyPercent(t *testing.T) {
	cfg := testConfig()
	current := crawler.ControllerState{TargetWorkers: 4, RequestDelay: 500 * time.Millisecond}
	window := make([]crawler.Outcome, 20)
	for i := range window {
		window[i] = crawler.OutcomeSuccess
	}
	// Below the 20% fraction threshold, but two of the last five are rate-limited.
	window[18], window[19] = crawler.OutcomeRateLimited, crawler.OutcomeRateLimited
	next, _ := decide(window, current, cfg, 0)
	if next.RequestDelay <= current.RequestDelay {
		t.Fatalf("expected the last-five alt trigger to fire a backoff")
	}
}

func TestDecideBacksOffAtThirtyPercentServerError(t *testing.T) {
	cfg := testConfig()
	current := crawler.ControllerState{TargetWorkers: 4, RequestDelay: 500 * time.Millisecond}
	window := make([]crawler.Outcome, 10)
	for i := range window {
		window[i] = crawler.OutcomeSuccess
	}
	window[0], window[1], window[2] = crawler.OutcomeServerError, crawler.OutcomeServerError, crawler.OutcomeServerError
	next, _ := decide(window, current, cfg, 0)
	if next.RequestDelay != 625*time.Millisecond {
		t.Fatalf("expected 1.25x backoff to 625ms, got %v", next.RequestDelay)
	}
	if next.TargetWorkers != 3 {
		t.Fatalf("expected target workers to drop by one, got %d", next.TargetWorkers)
	}
}

func TestDecideTimeoutAtTwentyFivePercentDropsWorkersOnly(t *testing.T) {
	cfg := testConfig()
	current := crawler.ControllerState{TargetWorkers: 4, RequestDelay: 500 * time.Millisecond}
	window := make([]crawler.Outcome, 4)
	for i := range window {
		window[i] = crawler.OutcomeTimeout
	}
	next, _ := decide(window, current, cfg, 0)
	if next.RequestDelay != current.RequestDelay {
		t.Fatalf("expected delay unchanged on timeout backoff, got %v (was %v)", next.RequestDelay, current.RequestDelay)
	}
	if next.TargetWorkers != 3 {
		t.Fatalf("expected target workers to drop by one, got %d", next.TargetWorkers)
	}
}

func TestDecideRelaxRequiresNoRateLimitedInFullWindow(t *testing.T) {
	cfg := testConfig()
	current := crawler.ControllerState{TargetWorkers: 4, RequestDelay: 500 * time.Millisecond}
	window := make([]crawler.Outcome, 10)
	for i := range window {
		window[i] = crawler.OutcomeSuccess
	}
	window[0] = crawler.OutcomeRateLimited // outside the last half, still disqualifies relax
	next, streak := decide(window, current, cfg, 0)
	if next.RequestDelay != current.RequestDelay {
		t.Fatalf("expected no relax when a RateLimited occurred anywhere in the window")
	}
	if streak != 0 {
		t.Fatalf("expected relax streak reset, got %d", streak)
	}
}

func TestDecideRelaxesDelayButWithholdsWorkerIncrementUntilHysteresisSatisfied(t *testing.T) {
	cfg := testConfig()
	cfg.BaseDelay = cfg.MinDelay // start already at the floor
	current := crawler.ControllerState{TargetWorkers: 4, RequestDelay: cfg.MinDelay}
	window := windowOf(crawler.OutcomeSuccess, crawler.OutcomeSuccess, crawler.OutcomeSuccess, crawler.OutcomeSuccess)

	streak := 0
	next := current
	for i := 0; i < windowSize/2-1; i++ {
		next, streak = decide(window, next, cfg, streak)
		if next.TargetWorkers != current.TargetWorkers {
			t.Fatalf("expected worker count unchanged before hysteresis threshold, iteration %d", i)
		}
	}
	next, streak = decide(window, next, cfg, streak)
	if next.TargetWorkers != current.TargetWorkers+1 {
		t.Fatalf("expected worker count to increase once streak reached windowSize/2, got %d streak=%d", next.TargetWorkers, streak)
	}
}

func TestDecideClampsToConfiguredBounds(t *testing.T) {
	cfg := testConfig()
	cfg.MaxWorkers = 4
	current := crawler.ControllerState{TargetWorkers: 4, RequestDelay: cfg.MaxDelay}
	window := []crawler.Outcome{crawler.OutcomeRateLimited, crawler.OutcomeRateLimited}
	next, _ := decide(window, current, cfg, 0)
	if next.TargetWorkers < cfg.MinWorkers {
		t.Fatalf("expected target workers clamped to >= %d, got %d", cfg.MinWorkers, next.TargetWorkers)
	}
}

func TestControllerRegisterOutcomeRepublishesSetpoint(t *testing.T) {
	c := New(testConfig())
	initial := c.Snapshot()
	for i := 0; i < 4; i++ {
		c.RegisterOutcome(crawler.OutcomeRateLimited)
	}
	updated := c.Snapshot()
	if updated.RequestDelay == initial.RequestDelay {
		t.Fatalf("expected published delay to change after rate-limited outcomes")
	}
}

func TestControllerDisabledNeverRepublishes(t *testing.T) {
	cfg := testConfig()
	cfg.Disabled = true
	c := New(cfg)
	initial := c.Snapshot()
	for i := 0; i < 40; i++ {
		c.RegisterOutcome(crawler.OutcomeRateLimited)
	}
	updated := c.Snapshot()
	if updated != initial {
		t.Fatalf("expected disabled controller to hold its initial setpoint, got %+v (was %+v)", updated, initial)
	}
}

func TestControllerForceReductionHalvesWorkers(t *testing.T) {
	c := New(testConfig())
	before := c.Snapshot().TargetWorkers
	c.ForceReduction()
	after := c.Snapshot().TargetWorkers
	if after >= before {
		t.Fatalf("expected forced reduction to lower target workers, before=%d after=%d", before, after)
	}
}
