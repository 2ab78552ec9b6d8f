package worker

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/adaptivecrawl/webcrawler/internal/browser"
	"github.com/adaptivecrawl/webcrawler/internal/crawler"
	"github.com/adaptivecrawl/webcrawler/internal/ratecontroller"
	"go.uber.org/zap"
)

type fakeSession struct {
	result browser.NavigationResult
	err    error
}

func (f *fakeSession) Navigate(context.Context, string) (browser.NavigationResult, error) {
	return f.result, f.err
}
func (f *fakeSession) EnumerateClickables(context.Context) ([]browser.ClickableHandle, error) {
	return nil, nil
}
func (f *fakeSession) Activate(context.Context, browser.ClickableHandle) (browser.NavigationResult, error) {
	return browser.NavigationResult{}, nil
}
func (f *fakeSession) Close(context.Context) error { return nil }

type fakeFactory struct {
	result browser.NavigationResult
	err    error
}

func (f *fakeFactory) NewSession(context.Context) (browser.Session, error) {
	return &fakeSession{result: f.result, err: f.err}, nil
}
func (f *fakeFactory) Shutdown(context.Context) error { return nil }

type fakeSink struct {
	mu      sync.Mutex
	results []crawler.PageResult
}

func (s *fakeSink) Put(_ context.Context, r crawler.PageResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
	return nil
}
func (s *fakeSink) Close(context.Context) error { return nil }

type fakeMatcher struct{}

func (fakeMatcher) Find(text string) []crawler.KeywordMatch { return nil }

func newTestDeps(t *testing.T, factory browser.Factory, sink *fakeSink) Deps {
	t.Helper()
	logger := zap.NewNop()
	filter := crawler.NewAdmissionFilter(crawler.AdmissionPolicy{
		Scope:     crawler.ScopeExactHost,
		SeedHosts: []string{"example.com"},
	})
	rc := ratecontroller.New(ratecontroller.Config{
		MinWorkers: 1, MaxWorkers: 4, InitialWorkers: 1,
		MinDelay: time.Millisecond, MaxDelay: time.Second, BaseDelay: 0,
		EvaluateEvery: 100,
	})
	return Deps{
		Frontier:       crawler.NewFrontier(filter, 0),
		Admission:      filter,
		Sessions:       factory,
		RateController: rc,
		Sink:           sink,
		KeywordMatcher: fakeMatcher{},
		Logger:         logger,
		MaxDepth:       2,
		MaxAttempts:    3,
	}
}

func TestWorkerProcessSuccessPublishesToSink(t *testing.T) {
	sink := &fakeSink{}
	factory := &fakeFactory{result: browser.NavigationResult{
		FinalURL:   "https://example.com/",
		StatusCode: http.StatusOK,
		HTML:       `<html><body><a href="/next">next</a></body></html>`,
		Headers:    http.Header{},
	}}
	deps := newTestDeps(t, factory, sink)
	deps.Frontier.TryEnqueue("https://example.com/", 0, "", time.Now())

	w := New(1, deps, nil)
	entry, ok := deps.Frontier.Claim(time.Now())
	if !ok {
		t.Fatalf("expected claimable entry")
	}
	w.process(context.Background(), entry)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.results) != 1 {
		t.Fatalf("expected one result in sink, got %d", len(sink.results))
	}
	if deps.Frontier.VisitedCount() != 1 {
		t.Fatalf("expected claimed url to be marked visited")
	}
	if deps.Frontier.Len() != 1 {
		t.Fatalf("expected discovered link to be enqueued, queue len=%d", deps.Frontier.Len())
	}
}

func TestWorkerRequeuesRetryableOutcome(t *testing.T) {
	sink := &fakeSink{}
	factory := &fakeFactory{result: browser.NavigationResult{StatusCode: http.StatusInternalServerError}}
	deps := newTestDeps(t, factory, sink)
	deps.Frontier.TryEnqueue("https://example.com/", 0, "", time.Now())

	w := New(1, deps, nil)
	entry, _ := deps.Frontier.Claim(time.Now())
	w.process(context.Background(), entry)

	if deps.Frontier.VisitedCount() != 0 {
		t.Fatalf("expected retryable outcome not to be marked visited yet")
	}
	if deps.Frontier.Len() != 1 {
		t.Fatalf("expected entry requeued, queue len=%d", deps.Frontier.Len())
	}
}

func TestWorkerSettlesAfterMaxAttempts(t *testing.T) {
	sink := &fakeSink{}
	factory := &fakeFactory{result: browser.NavigationResult{StatusCode: http.StatusInternalServerError}}
	deps := newTestDeps(t, factory, sink)
	deps.MaxAttempts = 1
	deps.Frontier.TryEnqueue("https://example.com/", 0, "", time.Now())

	w := New(1, deps, nil)
	entry, _ := deps.Frontier.Claim(time.Now())
	w.process(context.Background(), entry)

	if deps.Frontier.VisitedCount() != 1 {
		t.Fatalf("expected entry to settle as visited after exhausting attempts")
	}
}
