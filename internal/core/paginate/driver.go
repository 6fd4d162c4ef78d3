// Package paginate moves a search results session to its next page.
package paginate

import (
	"context"
	"time"

	"stayscraper/internal/browser"
	"stayscraper/internal/logger"
)

const (
	settleMin = 1 * time.Second
	settleMax = 2 * time.Second
)

type Driver struct {
	next  []string
	pause browser.PauseFunc
	log   *logger.Logger
}

// New builds a driver over the next-control selectors, tried in order.
// A nil pause means browser.Pause.
func New(next []string, pause browser.PauseFunc) *Driver {
	if pause == nil {
		pause = browser.Pause
	}
	return &Driver{next: next, pause: pause, log: logger.New("Paginate")}
}

// Advance clicks the first usable next control. Without one it scrolls to
// the bottom and reports whether more content loaded. It never fails;
// false means there is nothing further to read.
func (d *Driver) Advance(ctx context.Context, s browser.Session) bool {
	if d.clickNext(ctx, s) {
		d.pause(ctx, settleMin, settleMax)
		return ctx.Err() == nil
	}
	if ctx.Err() != nil {
		return false
	}
	return d.scrollForMore(ctx, s)
}

func (d *Driver) clickNext(ctx context.Context, s browser.Session) bool {
	for _, sel := range d.next {
		els, err := s.QueryAll(ctx, sel)
		if err != nil {
			d.log.LogDebugf("next control %q: %v", sel, err)
			continue
		}
		for _, el := range els {
			ok, err := el.Clickable(ctx)
			if err != nil || !ok {
				continue
			}
			if err := el.Click(ctx); err != nil {
				d.log.LogDebugf("click %q: %v", sel, err)
				continue
			}
			d.log.LogDebugf("clicked next control %q", sel)
			return true
		}
	}
	return false
}

func (d *Driver) scrollForMore(ctx context.Context, s browser.Session) bool {
	before, err := s.ScrollHeight(ctx)
	if err != nil {
		d.log.LogDebugf("scroll height: %v", err)
		return false
	}
	if err := s.ScrollToBottom(ctx); err != nil {
		d.log.LogDebugf("scroll: %v", err)
		return false
	}
	d.pause(ctx, settleMin, settleMax)
	after, err := s.ScrollHeight(ctx)
	if err != nil {
		d.log.LogDebugf("scroll height: %v", err)
		return false
	}
	if after <= before {
		d.log.LogDebugf("no next control and page height stayed at %d", before)
		return false
	}
	return true
}
