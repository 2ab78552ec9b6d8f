package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/antchfx/htmlquery"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config tunes the shared chromedp allocator and the per-domain pacing
// applied on top of whatever delay the rate controller already publishes
// — this is a hard floor so a single misbehaving domain can't be hammered
// even if the global controller has relaxed.
type Config struct {
	UserAgent       string
	NavigateTimeout time.Duration
	MaxConcurrent   int
	PerDomainQPS    float64
	Headless        bool
}

// ChromedpFactory owns the shared allocator context and hands out one tab
// context per NewSession call, bounded by a semaphore.
type ChromedpFactory struct {
	cfg     Config
	logger  *zap.Logger
	allocCtx context.Context
	cancel   context.CancelFunc
	sem      chan struct{}
	limiters sync.Map // host -> *rate.Limiter
}

// NewChromedpFactory starts the shared headless browser process.
func NewChromedpFactory(cfg Config, logger *zap.Logger) (*ChromedpFactory, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Flag("headless", cfg.Headless))
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	return &ChromedpFactory{
		cfg:      cfg,
		logger:   logger,
		allocCtx: allocCtx,
		cancel:   cancel,
		sem:      make(chan struct{}, cfg.MaxConcurrent),
	}, nil
}

// Shutdown tears down the shared browser process.
func (f *ChromedpFactory) Shutdown(_ context.Context) error {
	f.cancel()
	return nil
}

func (f *ChromedpFactory) domainLimiter(host string) *rate.Limiter {
	if f.cfg.PerDomainQPS <= 0 {
		return nil
	}
	v, _ := f.limiters.LoadOrStore(host, rate.NewLimiter(rate.Limit(f.cfg.PerDomainQPS), 1))
	return v.(*rate.Limiter)
}

// NewSession blocks until a concurrency slot is free, then opens a new
// browser tab context.
func (f *ChromedpFactory) NewSession(ctx context.Context) (Session, error) {
	select {
	case f.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	tabCtx, cancel := chromedp.NewContext(f.allocCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		<-f.sem
		return nil, fmt.Errorf("start tab: %w", err)
	}
	sess := &chromedpSession{
		factory: f,
		ctx:     tabCtx,
		cancel:  cancel,
	}
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if resp, ok := ev.(*network.EventResponseReceived); ok && resp.Type == network.ResourceTypeDocument {
			sess.recordResponse(resp)
		}
	})
	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		cancel()
		<-f.sem
		return nil, fmt.Errorf("enable network events: %w", err)
	}
	return sess, nil
}

type chromedpSession struct {
	factory *ChromedpFactory
	ctx     context.Context
	cancel  context.CancelFunc

	mu         sync.Mutex
	lastStatus int
	lastHeaders http.Header
}

func (s *chromedpSession) recordResponse(ev *network.EventResponseReceived) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastStatus = int(ev.Response.Status)
	hdr := make(http.Header, len(ev.Response.Headers))
	for k, v := range ev.Response.Headers {
		hdr.Set(k, fmt.Sprintf("%v", v))
	}
	s.lastHeaders = hdr
}

func (s *chromedpSession) resetResponse() {
	s.mu.Lock()
	s.lastStatus = 0
	s.lastHeaders = nil
	s.mu.Unlock()
}

// forwardCancel propagates cancellation of parent into cancel without
// tying the task context's lifetime to parent directly, so the tab
// context (s.ctx) stays alive for the session's next call once this one
// returns.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

func (s *chromedpSession) Navigate(ctx context.Context, rawURL string) (NavigationResult, error) {
	if host := hostOf(rawURL); host != "" {
		if limiter := s.factory.domainLimiter(host); limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return NavigationResult{}, fmt.Errorf("wait for domain pacing: %w", err)
			}
		}
	}

	taskCtx, cancel := context.WithTimeout(s.ctx, s.navTimeout())
	defer cancel()
	stopForward := forwardCancel(ctx, cancel)
	defer stopForward()

	s.resetResponse()

	var html, finalURL string
	tasks := chromedp.Tasks{
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, tasks); err != nil {
		return NavigationResult{}, fmt.Errorf("navigate %s: %w", rawURL, err)
	}

	s.mu.Lock()
	status, headers := s.lastStatus, s.lastHeaders
	s.mu.Unlock()
	if status == 0 {
		status = http.StatusOK
	}
	return NavigationResult{
		FinalURL:   finalURL,
		StatusCode: status,
		HTML:       html,
		Headers:    headers,
	}, nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func (s *chromedpSession) navTimeout() time.Duration {
	if s.factory.cfg.NavigateTimeout <= 0 {
		return 15 * time.Second
	}
	return s.factory.cfg.NavigateTimeout
}

// spaClickableXPath finds elements that behave like SPA router triggers:
// anchors with no href, list items inside <nav>, .nav-item/.menu-item
// elements, button/menuitem roles, enabled non-submit buttons, and
// elements carrying common client-routing attributes, but excludes
// anything that is just a normal link (those are already covered by
// <a href> extraction).
const spaClickableXPath = `//*[(self::a and not(@href)) or (self::li and ancestor::nav) or contains(concat(' ', normalize-space(@class), ' '), ' nav-item ') or contains(concat(' ', normalize-space(@class), ' '), ' menu-item ') or @role='button' or @role='menuitem' or @data-link or @ng-click or @onclick or (self::button and not(@disabled) and not(@type='submit'))]`

func (s *chromedpSession) EnumerateClickables(ctx context.Context) ([]ClickableHandle, error) {
	taskCtx, cancel := context.WithTimeout(s.ctx, s.navTimeout())
	defer cancel()
	stopForward := forwardCancel(ctx, cancel)
	defer stopForward()

	var html string
	if err := chromedp.Run(taskCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("snapshot dom: %w", err)
	}
	doc, err := htmlquery.Parse(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse dom for clickables: %w", err)
	}
	nodes, err := htmlquery.QueryAll(doc, spaClickableXPath)
	if err != nil {
		return nil, fmt.Errorf("query clickables: %w", err)
	}
	handles := make([]ClickableHandle, 0, len(nodes))
	for i, n := range nodes {
		handles = append(handles, ClickableHandle{
			XPath: "(" + spaClickableXPath + ")[" + strconv.Itoa(i+1) + "]",
			Text:  htmlquery.InnerText(n),
		})
	}
	return handles, nil
}

func (s *chromedpSession) Activate(ctx context.Context, handle ClickableHandle) (NavigationResult, error) {
	taskCtx, cancel := context.WithTimeout(s.ctx, s.navTimeout())
	defer cancel()
	stopForward := forwardCancel(ctx, cancel)
	defer stopForward()

	s.resetResponse()

	var html, finalURL string
	tasks := chromedp.Tasks{
		chromedp.Click(handle.XPath, chromedp.BySearch),
		chromedp.Sleep(300 * time.Millisecond),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, tasks); err != nil {
		return NavigationResult{}, fmt.Errorf("activate clickable: %w", err)
	}
	s.mu.Lock()
	status := s.lastStatus
	s.mu.Unlock()
	if status == 0 {
		status = http.StatusOK
	}
	return NavigationResult{FinalURL: finalURL, StatusCode: status, HTML: html, UsedSPA: true}, nil
}

func (s *chromedpSession) Close(_ context.Context) error {
	s.cancel()
	<-s.factory.sem
	return nil
}

