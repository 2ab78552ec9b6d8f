package worker

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/adaptivecrawl/webcrawler/internal/browser"
	"github.com/adaptivecrawl/webcrawler/internal/crawler"
)

// exploreSPA performs a bounded depth-first walk of clickable elements
// that do not surface as <a href> (router-driven single-page apps). Each
// (page_url, handle_text) pair is visited at most once per call so a
// symmetric UI (the same "Next" button reappearing after every click)
// cannot loop forever; the walk also stops after SPAMaxClicks activations
// regardless of how much is left undiscovered.
func (w *Worker) exploreSPA(ctx context.Context, session browser.Session, initial browser.NavigationResult, entry crawler.FrontierEntry) {
	maxClicks := w.deps.SPAMaxClicks
	if maxClicks <= 0 {
		maxClicks = 10
	}
	visitedPairs := make(map[string]struct{})
	w.walkSPA(ctx, session, initial, entry, visitedPairs, &maxClicks)
}

func (w *Worker) walkSPA(ctx context.Context, session browser.Session, current browser.NavigationResult, entry crawler.FrontierEntry, visited map[string]struct{}, budget *int) {
	if *budget <= 0 {
		return
	}
	select {
	case <-ctx.Done():
		return
	default:
	}

	handles, err := session.EnumerateClickables(ctx)
	if err != nil {
		if w.deps.Logger != nil {
			w.deps.Logger.Debug("enumerate clickables failed", zap.String("url", current.FinalURL), zap.Error(err))
		}
		return
	}

	originatingURL := current.FinalURL
	currentHash := w.contentHash(current.HTML)

	for i, handle := range handles {
		if *budget <= 0 {
			return
		}
		key := current.FinalURL + "|" + handle.Text
		if _, seen := visited[key]; seen {
			continue
		}
		visited[key] = struct{}{}

		next, err := session.Activate(ctx, handle)
		*budget--
		if err != nil {
			continue
		}

		outcome := classify(nil, next.StatusCode, next.HTML)
		w.deps.RateController.RegisterOutcome(outcome)
		if outcome != crawler.OutcomeSuccess {
			continue
		}

		locationChanged := next.FinalURL != "" && next.FinalURL != originatingURL
		switch {
		case locationChanged:
			w.offer(next.FinalURL, entry, w.now())
		default:
			nextHash := w.contentHash(next.HTML)
			if nextHash != "" && nextHash != currentHash {
				slug := slugify(handle.Text, i)
				w.offer(originatingURL+"#section-"+slug, entry, w.now())
			}
		}

		w.discoverLinks(next.HTML, entry)
		w.walkSPA(ctx, session, next, entry, visited, budget)

		if locationChanged {
			// Restore the tab to where this level of the walk started so
			// sibling clickables are activated from the same DOM state
			// they were enumerated against.
			if restored, err := session.Navigate(ctx, originatingURL); err == nil {
				current = restored
			} else if w.deps.Logger != nil {
				w.deps.Logger.Debug("restore navigation failed", zap.String("url", originatingURL), zap.Error(err))
			}
		}
	}
}

func (w *Worker) contentHash(html string) string {
	if w.deps.Hasher == nil {
		return ""
	}
	h, err := w.deps.Hasher.Hash([]byte(html))
	if err != nil {
		return ""
	}
	return h
}

var slugNonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// slugify derives a stable, URL-safe fragment identifier from a
// clickable's visible text, falling back to its ordinal position among
// sibling clickables when the text carries no usable characters (icon
// buttons, empty labels).
func slugify(text string, ordinal int) string {
	slug := slugNonAlnum.ReplaceAllString(strings.ToLower(strings.TrimSpace(text)), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return strconv.Itoa(ordinal)
	}
	return slug
}
