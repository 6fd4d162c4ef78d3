package crawl

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"stayscraper/internal/browser"
	"stayscraper/internal/core/listing"
	"stayscraper/internal/logger"
)

// MaxPages bounds a single run.
const MaxPages = 20

var ErrInvalidPages = fmt.Errorf("max pages must be between 1 and %d", MaxPages)

// RunError reports the page a run failed on. The records gathered before
// the failure are returned alongside it.
type RunError struct {
	Page int
	Err  error
}

func (e *RunError) Error() string { return fmt.Sprintf("page %d: %v", e.Page, e.Err) }
func (e *RunError) Unwrap() error { return e.Err }

// PageExtractor reads the listings on a session's current page.
type PageExtractor interface {
	Extract(ctx context.Context, s browser.Session) ([]listing.Record, error)
}

// Pager moves a session to its next page.
type Pager interface {
	Advance(ctx context.Context, s browser.Session) bool
}

// PageFunc observes each finished page. Both slices are copies. Errors
// and panics are logged and never stop the run.
type PageFunc func(page int, pageRecords, cumulative []listing.Record) error

type Crawler struct {
	sessions  browser.Source
	extractor PageExtractor
	pager     Pager
	pause     browser.PauseFunc
	log       *logger.Logger
}

// NewCrawler wires a crawler. A nil pause means browser.Pause.
func NewCrawler(sessions browser.Source, extractor PageExtractor, pager Pager, pause browser.PauseFunc) *Crawler {
	if pause == nil {
		pause = browser.Pause
	}
	return &Crawler{sessions: sessions, extractor: extractor, pager: pager, pause: pause, log: logger.New("Crawler")}
}

// ValidateRequest checks a search URL and page count before any browser
// work starts.
func ValidateRequest(searchURL string, maxPages int) error {
	if maxPages < 1 || maxPages > MaxPages {
		return ErrInvalidPages
	}
	u, err := url.Parse(searchURL)
	if err != nil || !u.IsAbs() || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("search url must be an absolute http(s) url: %q", searchURL)
	}
	return nil
}

// Run crawls up to maxPages result pages starting at searchURL and returns
// the de-duplicated listings numbered 1..n in discovery order.
func (c *Crawler) Run(ctx context.Context, searchURL string, maxPages int, onPage PageFunc) ([]listing.Record, error) {
	if maxPages < 1 || maxPages > MaxPages {
		return nil, ErrInvalidPages
	}

	var all []listing.Record
	err := browser.WithSession(ctx, c.sessions, func(s browser.Session) error {
		var err error
		all, err = c.run(ctx, s, searchURL, maxPages, onPage)
		return err
	})
	return all, err
}

func (c *Crawler) run(ctx context.Context, s browser.Session, searchURL string, maxPages int, onPage PageFunc) ([]listing.Record, error) {
	c.log.LogInfof("crawling %s (max %d pages)", searchURL, maxPages)
	if err := s.Navigate(ctx, searchURL); err != nil {
		return nil, &RunError{Page: 1, Err: fmt.Errorf("navigate: %w", err)}
	}
	c.pause(ctx, 2*time.Second, 4*time.Second)

	var (
		all  []listing.Record
		seen = map[string]bool{}
	)
	for page := 1; page <= maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return all, &RunError{Page: page, Err: err}
		}

		found, err := c.extractor.Extract(ctx, s)
		if err != nil {
			return all, &RunError{Page: page, Err: fmt.Errorf("extract: %w", err)}
		}
		if len(found) == 0 && page == 1 {
			c.log.LogWarnf("no listings on the first page of %s", searchURL)
			break
		}

		fresh := make([]listing.Record, 0, len(found))
		for _, r := range found {
			if r.ID != "" {
				if seen[r.ID] {
					continue
				}
				seen[r.ID] = true
			}
			fresh = append(fresh, r)
		}
		listing.Renumber(fresh, len(all))
		all = append(all, fresh...)
		c.log.LogInfof("page %d: %d new listings, %d total", page, len(fresh), len(all))

		c.notify(onPage, page, fresh, all)

		if page < maxPages && !c.pager.Advance(ctx, s) {
			c.log.LogInfof("no further pages after page %d", page)
			break
		}
		c.pause(ctx, time.Second, 2500*time.Millisecond)
	}

	c.log.LogSuccessf("crawled %d listings from %s", len(all), searchURL)
	return all, nil
}

func (c *Crawler) notify(onPage PageFunc, page int, fresh, all []listing.Record) {
	if onPage == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.log.LogErrorf("page callback panicked on page %d: %v", page, r)
		}
	}()
	if err := onPage(page, listing.Clone(fresh), listing.Clone(all)); err != nil {
		c.log.LogWarnf("page callback failed on page %d: %v", page, err)
	}
}

// IsRunError reports whether err came from a failed page.
func IsRunError(err error) (*RunError, bool) {
	var re *RunError
	ok := errors.As(err, &re)
	return re, ok
}
