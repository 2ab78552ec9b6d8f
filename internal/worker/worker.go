// Package worker implements the Worker: the loop that claims one URL at a
// time from the Frontier, renders it through a Browser Session, reports
// the outcome to the rate controller, extracts further links, and hands
// the result to a Result Sink. The loop shape is claim -> fetch -> report
// -> persist, generalized from an HTTP-probe-then-maybe-promote flow to
// an always-headless one.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/adaptivecrawl/webcrawler/internal/browser"
	"github.com/adaptivecrawl/webcrawler/internal/crawler"
	"github.com/adaptivecrawl/webcrawler/internal/ratecontroller"
)

// Deps bundles everything a Worker needs to process a claim. Built once
// by the Worker Pool Manager and shared read-only across every worker
// goroutine — none of these are worker-local state.
type Deps struct {
	Frontier          *crawler.Frontier
	Admission         *crawler.AdmissionFilter
	Sessions          browser.Factory
	RateController    *ratecontroller.Controller
	Sink              crawler.ResultSink
	ContentFilter     crawler.ContentFilter
	KeywordMatcher    crawler.KeywordMatcher
	MarkdownConverter crawler.MarkdownConverter
	Hasher            crawler.Hasher
	Clock             crawler.Clock
	Logger            *zap.Logger
	Dedup             *crawler.ResultDedup

	RetryPolicy *crawler.ExponentialRetryPolicy

	MaxDepth         int
	MaxAttempts      int
	MaxRestarts      int
	StripQueryParams []string
	EnableSPA        bool
	SPAMaxClicks     int
}

// Worker repeatedly claims and processes Frontier entries until its
// context is canceled or the Frontier is idle. It carries its own ID for
// logging and heartbeat reporting to the Worker Pool Manager, and owns a
// single Browser Session for its entire lifetime rather than one per
// claim — the session is only torn down and restarted, within a bounded
// budget, when a claim's outcome suggests the browser itself is in a bad
// state.
type Worker struct {
	id        int
	deps      Deps
	heartbeat chan<- int

	session  browser.Session
	restarts int

	draining bool
}

// New creates a Worker. heartbeat, if non-nil, receives this worker's id
// after every completed claim so the pool manager can detect stalls.
func New(id int, deps Deps, heartbeat chan<- int) *Worker {
	return &Worker{id: id, deps: deps, heartbeat: heartbeat}
}

// Drain asks the worker to finish whatever claim it currently holds and
// then exit on its own instead of continuing to pull new work — the
// cooperative counterpart to hard-canceling its context, used by the
// Worker Pool Manager when scaling down.
func (w *Worker) Drain() {
	w.draining = true
}

// Run blocks until ctx is canceled, a drain is requested and taken up, or
// the Frontier yields no claim for an extended idle period, signaled by
// maxIdleClaims consecutive empty claims.
func (w *Worker) Run(ctx context.Context) {
	const maxIdleClaims = 20
	idle := 0
	defer func() {
		if w.session != nil {
			w.session.Close(context.Background())
			w.session = nil
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if w.draining {
			return
		}

		state := w.deps.RateController.Snapshot()
		entry, ok := w.deps.Frontier.Claim(w.now())
		if !ok {
			idle++
			if idle >= maxIdleClaims {
				return
			}
			if !sleepCtx(ctx, 50*time.Millisecond) {
				return
			}
			continue
		}
		idle = 0

		if !sleepCtx(ctx, state.RequestDelay) {
			w.deps.Frontier.Requeue(entry)
			return
		}

		if !w.process(ctx, entry) {
			return
		}
		w.reportHeartbeat()
	}
}

func (w *Worker) now() time.Time {
	if w.deps.Clock != nil {
		return w.deps.Clock.Now()
	}
	return time.Now().UTC()
}

func (w *Worker) reportHeartbeat() {
	if w.heartbeat == nil {
		return
	}
	select {
	case w.heartbeat <- w.id:
	default:
	}
}

func (w *Worker) maxRestarts() int {
	if w.deps.MaxRestarts <= 0 {
		return 3
	}
	return w.deps.MaxRestarts
}

// startSession opens a fresh Browser Session without consuming any of the
// restart budget — that's only spent by recycleSession, when a session is
// torn down mid-lifetime because of a suspect outcome.
func (w *Worker) startSession(ctx context.Context) bool {
	session, err := w.deps.Sessions.NewSession(ctx)
	if err != nil {
		if w.deps.Logger != nil {
			w.deps.Logger.Warn("browser session start failed", zap.Int("worker_id", w.id), zap.Error(err))
		}
		return false
	}
	w.session = session
	return true
}

// recycleSession closes the current session and opens a new one, counted
// against MaxRestarts. Returns false once the budget is exhausted, at
// which point the Worker gives up rather than retry indefinitely — once
// its Run returns, the Worker Pool Manager's next reconcile spawns a
// replacement to meet the target.
func (w *Worker) recycleSession(ctx context.Context) bool {
	if w.session != nil {
		w.session.Close(context.Background())
		w.session = nil
	}
	if w.restarts >= w.maxRestarts() {
		if w.deps.Logger != nil {
			w.deps.Logger.Error("worker exhausted browser restart budget", zap.Int("worker_id", w.id), zap.Int("restarts", w.restarts))
		}
		return false
	}
	w.restarts++
	return w.startSession(ctx)
}

// process handles one claimed FrontierEntry and reports whether the
// Worker should keep running. It only returns false when the browser
// restart budget has been exhausted and there is no session left to
// process anything with.
func (w *Worker) process(ctx context.Context, entry crawler.FrontierEntry) bool {
	if w.session == nil && !w.startSession(ctx) {
		w.finish(entry, crawler.OutcomeNetworkErr, nil)
		return false
	}

	started := w.now()
	nav, err := w.session.Navigate(ctx, entry.URL)
	duration := w.now().Sub(started)

	outcome := classify(err, nav.StatusCode, nav.HTML)
	w.deps.RateController.RegisterOutcome(outcome)

	if outcome == crawler.OutcomeNetworkErr || outcome == crawler.OutcomeTimeout {
		if !w.recycleSession(ctx) {
			w.finish(entry, outcome, err)
			return false
		}
	}

	if outcome != crawler.OutcomeSuccess {
		if w.willRetry(entry, outcome, err) && w.deps.RetryPolicy != nil {
			sleepCtx(ctx, w.deps.RetryPolicy.Backoff(entry.Attempts))
		}
		w.finish(entry, outcome, err)
		if w.deps.Logger != nil {
			w.deps.Logger.Debug("fetch did not succeed",
				zap.String("url", entry.URL), zap.String("outcome", string(outcome)),
				zap.Int("status", nav.StatusCode), zap.Error(err))
		}
		return true
	}

	if nav.FinalURL != "" && w.deps.Admission != nil {
		canon, err := crawler.Canonicalize(nav.FinalURL, entry.URL, w.deps.StripQueryParams)
		if err != nil || !w.deps.Admission.Admit(canon) {
			w.finish(entry, crawler.OutcomeAdmissionRevoked, nil)
			return true
		}
	}

	if w.deps.ContentFilter != nil && !w.deps.ContentFilter.Accept(nav.Headers.Get("Content-Type"), len(nav.HTML)) {
		w.finish(entry, crawler.OutcomeSuccess, nil)
		return true
	}

	w.discoverLinks(nav.HTML, entry)
	if w.deps.EnableSPA {
		w.exploreSPA(ctx, w.session, nav, entry)
	}

	result, err := w.buildResult(nav, entry, duration)
	if err != nil {
		w.deps.Logger.Warn("failed to build page result", zap.String("url", entry.URL), zap.Error(err))
		w.finish(entry, outcome, nil)
		return true
	}

	if w.deps.Dedup != nil {
		switch result.Kind {
		case crawler.PageKindKeywordHit:
			result.KeywordHits = w.deps.Dedup.FilterKeywordHits(result.URL, result.KeywordHits)
			if len(result.KeywordHits) == 0 {
				w.finish(entry, outcome, nil)
				return true
			}
		case crawler.PageKindMarkdownDoc:
			if !w.deps.Dedup.AllowMarkdownDoc(result.URL) {
				w.finish(entry, outcome, nil)
				return true
			}
		}
	}

	if w.deps.Sink != nil {
		if err := w.deps.Sink.Put(ctx, result); err != nil {
			w.deps.Logger.Error("sink put failed", zap.String("url", entry.URL), zap.Error(err))
		}
	}
	w.finish(entry, outcome, nil)
	return true
}

// finish either requeues a retryable entry or marks it visited. Terminal
// outcomes (success, client error, admission revocation) always settle;
// transient ones (server error, timeout, network error) are retried up to
// MaxAttempts and the retry policy's own judgment, after which they also
// settle as visited-but-failed.
func (w *Worker) finish(entry crawler.FrontierEntry, outcome crawler.Outcome, err error) {
	if w.willRetry(entry, outcome, err) {
		w.deps.Frontier.Requeue(entry)
		return
	}
	w.deps.Frontier.Complete(entry.URL)
}

func (w *Worker) willRetry(entry crawler.FrontierEntry, outcome crawler.Outcome, err error) bool {
	retryable := outcome == crawler.OutcomeServerError || outcome == crawler.OutcomeTimeout || outcome == crawler.OutcomeNetworkErr
	if !retryable {
		return false
	}
	maxAttempts := w.deps.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if entry.Attempts >= maxAttempts {
		return false
	}
	if err != nil && w.deps.RetryPolicy != nil {
		return w.deps.RetryPolicy.ShouldRetry(err, entry.Attempts)
	}
	return true
}

func (w *Worker) buildResult(nav browser.NavigationResult, entry crawler.FrontierEntry, duration time.Duration) (crawler.PageResult, error) {
	hash := ""
	if w.deps.Hasher != nil {
		h, err := w.deps.Hasher.Hash([]byte(nav.HTML))
		if err == nil {
			hash = h
		}
	}
	base := crawler.PageResult{
		URL:         entry.URL,
		FinalURL:    nav.FinalURL,
		Depth:       entry.Depth,
		StatusCode:  nav.StatusCode,
		FetchedAt:   w.now(),
		Duration:    duration,
		ContentHash: hash,
		UsedSPA:     nav.UsedSPA,
	}

	if w.deps.KeywordMatcher != nil {
		base.Kind = crawler.PageKindKeywordHit
		base.KeywordHits = w.deps.KeywordMatcher.Find(nav.HTML)
		return base, nil
	}

	if w.deps.MarkdownConverter == nil {
		return crawler.PageResult{}, errors.New("no keyword matcher or markdown converter configured")
	}
	md, title, headings, links, images, words, err := w.deps.MarkdownConverter.Convert(nav.HTML, nav.FinalURL)
	if err != nil {
		return crawler.PageResult{}, fmt.Errorf("convert markdown: %w", err)
	}
	base.Kind = crawler.PageKindMarkdownDoc
	base.Markdown = md
	base.Title = title
	base.HeadingCount = headings
	base.LinkCount = links
	base.ImageCount = images
	base.WordCount = words
	return base, nil
}

// rateLimitBodyPattern catches the common "you've been throttled" page
// copy that some sites serve back with a 200 status instead of a 429,
// per the outcome-reporting body-content heuristic.
var rateLimitBodyPattern = regexp.MustCompile(`(?i)rate.?limit|too many requests|retry.?after|slow down|temporarily blocked|request quota`)

// rateLimitBodyMaxBytes bounds the body heuristic to small pages — a
// real rendered page that happens to mention "rate limit" in passing
// (e.g. documentation) is not itself a rate-limit response.
const rateLimitBodyMaxBytes = 4096

func classify(err error, status int, body string) crawler.Outcome {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return crawler.OutcomeTimeout
		}
		return crawler.OutcomeNetworkErr
	}
	switch {
	case status == http.StatusTooManyRequests:
		return crawler.OutcomeRateLimited
	case status >= 500:
		return crawler.OutcomeServerError
	case status >= 400:
		return crawler.OutcomeClientError
	case status >= 200 && status < 300 && looksLikeRateLimitBody(body):
		return crawler.OutcomeRateLimited
	default:
		return crawler.OutcomeSuccess
	}
}

func looksLikeRateLimitBody(body string) bool {
	if len(body) == 0 || len(body) > rateLimitBodyMaxBytes {
		return false
	}
	return rateLimitBodyPattern.MatchString(body)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
