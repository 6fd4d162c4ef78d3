package extract

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"stayscraper/internal/browser"
	"stayscraper/internal/core/ladder"
	"stayscraper/internal/core/listing"
	"stayscraper/internal/logger"
)

// maxLinkClimb bounds the ancestor walk when a card has no link inside.
const maxLinkClimb = 5

// Extractor turns the current page of a session into listing records.
// It keeps no state between calls.
type Extractor struct {
	ladder  *ladder.Ladder
	baseURL *url.URL
	log     *logger.Logger
}

// New builds an extractor. baseURL resolves relative links when the
// session cannot report its own location.
func New(l *ladder.Ladder, baseURL string) *Extractor {
	x := &Extractor{ladder: l, log: logger.New("Extractor")}
	if u, err := url.Parse(baseURL); err == nil && u.IsAbs() {
		x.baseURL = u
	}
	return x
}

// Extract runs the bulk tier and, when it yields nothing, the per-element
// fallback tier. An error means the page could not be read at all.
func (x *Extractor) Extract(ctx context.Context, s browser.Session) ([]listing.Record, error) {
	recs, bulkErr := x.Bulk(ctx, s)
	if bulkErr == nil && len(recs) > 0 {
		x.log.LogDebugf("bulk extraction: %d listings", len(recs))
		return recs, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if bulkErr != nil {
		x.log.LogWarnf("bulk extraction failed, using per-card selectors: %v", bulkErr)
	} else {
		x.log.LogDebugf("bulk extraction found no cards, using per-card selectors")
	}

	recs, err := x.Fallback(ctx, s)
	if err != nil {
		if bulkErr != nil {
			return nil, fmt.Errorf("page unreadable: bulk: %v; fallback: %w", bulkErr, err)
		}
		x.log.LogWarnf("per-card extraction failed: %v", err)
		return nil, nil
	}
	x.log.LogDebugf("per-card extraction: %d listings", len(recs))
	return recs, nil
}

// Bulk reads the document once and evaluates every card host-side.
func (x *Extractor) Bulk(ctx context.Context, s browser.Session) ([]listing.Record, error) {
	html, err := s.Document(ctx)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	rows, err := bulkRows(html, x.ladder)
	if err != nil {
		return nil, err
	}
	return x.records(rows, x.pageBase(ctx, s)), nil
}

// Fallback queries card containers and resolves each field through its
// own selector list. A failing card is logged and skipped.
func (x *Extractor) Fallback(ctx context.Context, s browser.Session) ([]listing.Record, error) {
	cards, err := x.findCards(ctx, s)
	if err != nil || len(cards) == 0 {
		return nil, err
	}

	var (
		rows    []row
		lastErr error
	)
	for i, card := range cards {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := x.cardRow(ctx, s, card)
		if err != nil {
			lastErr = err
			x.log.LogWarnf("skipping card %d: %v", i+1, err)
			continue
		}
		rows = append(rows, r)
	}
	if len(rows) == 0 && lastErr != nil {
		return nil, fmt.Errorf("all %d cards failed: %w", len(cards), lastErr)
	}
	return x.records(rows, x.pageBase(ctx, s)), nil
}

// findCards returns the matches of the first card selector that has any.
// A miss on every selector is an empty page, not an error.
func (x *Extractor) findCards(ctx context.Context, s browser.Session) ([]browser.Element, error) {
	var lastErr error
	misses := 0
	for _, sel := range x.ladder.Fallback.Cards {
		els, err := s.WaitAll(ctx, sel, x.ladder.Fallback.WaitTimeout)
		if err == nil && len(els) > 0 {
			x.log.LogDebugf("card selector %q matched %d elements", sel, len(els))
			return els, nil
		}
		if err == nil || errors.Is(err, browser.ErrNoElement) {
			misses++
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		lastErr = err
	}
	if misses == 0 && lastErr != nil {
		return nil, lastErr
	}
	return nil, nil
}

func (x *Extractor) cardRow(ctx context.Context, s browser.Session, card browser.Element) (row, error) {
	var r row
	tag, err := card.Tag(ctx)
	if err != nil {
		return r, fmt.Errorf("tag: %w", err)
	}
	isLink := tag == "a"

	if isLink {
		if r.href, err = card.Attr(ctx, "href"); err != nil {
			return r, fmt.Errorf("href: %w", err)
		}
	} else {
		r.href = x.linkOf(ctx, card)
	}
	r.href = strings.TrimSpace(r.href)

	if ref, _ := card.Attr(ctx, x.ladder.Bulk.LabelAttr); ref != "" {
		r.title = x.textByID(ctx, s, firstToken(ref))
	}
	if r.title == "" {
		r.title = firstText(ctx, card, x.ladder.Fallback.Title)
	}

	// link cards usually wrap only the photo; the fields sit beside them
	scope := card
	if isLink {
		if p, err := card.Parent(ctx); err == nil {
			scope = p
		}
	}
	if r.title == "" && isLink {
		r.title = firstText(ctx, scope, x.ladder.Fallback.Title)
	}
	r.price = firstText(ctx, scope, x.ladder.Fallback.Price)
	r.rating = firstText(ctx, scope, x.ladder.Fallback.Rating)
	r.address = firstText(ctx, scope, x.ladder.Fallback.Address)
	return r, nil
}

// linkOf finds a card's detail link below it, then above it.
func (x *Extractor) linkOf(ctx context.Context, card browser.Element) string {
	for _, sel := range x.ladder.Fallback.Link {
		el, err := card.Query(ctx, sel)
		if err != nil {
			continue
		}
		if href, _ := el.Attr(ctx, "href"); strings.TrimSpace(href) != "" {
			return href
		}
	}
	el := card
	for i := 0; i < maxLinkClimb; i++ {
		p, err := el.Parent(ctx)
		if err != nil {
			return ""
		}
		if tag, _ := p.Tag(ctx); tag == "a" {
			href, _ := p.Attr(ctx, "href")
			return href
		}
		el = p
	}
	return ""
}

func (x *Extractor) textByID(ctx context.Context, s browser.Session, id string) string {
	if id == "" {
		return ""
	}
	els, err := s.QueryAll(ctx, `[id="`+cssString(id)+`"]`)
	if err != nil || len(els) == 0 {
		return ""
	}
	t, _ := els[0].Text(ctx)
	return clean(t)
}

// firstText returns the first non-empty text along a selector list.
// Misses are expected and silent.
func firstText(ctx context.Context, root browser.Element, selectors []string) string {
	for _, sel := range selectors {
		el, err := root.Query(ctx, sel)
		if err != nil {
			continue
		}
		if t, err := el.Text(ctx); err == nil {
			if t = clean(t); t != "" {
				return t
			}
		}
	}
	return ""
}

// records resolves links and applies the title placeholder. Rows with
// neither a title nor a link are dropped, as are repeats of a listing id.
func (x *Extractor) records(rows []row, base *url.URL) []listing.Record {
	out := make([]listing.Record, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for _, r := range rows {
		link := resolveURL(base, r.href)
		if link == "" && r.title == "" {
			continue
		}
		id := listing.ID(link, x.ladder.DetailPath)
		if id != "" {
			if seen[id] {
				continue
			}
			seen[id] = true
		}
		n := len(out) + 1
		title := r.title
		if title == "" {
			title = listing.Placeholder(n)
		}
		out = append(out, listing.Record{
			No:      n,
			Title:   title,
			Price:   r.price,
			Address: r.address,
			Rating:  r.rating,
			URL:     link,
			ID:      id,
		})
	}
	return out
}

func (x *Extractor) pageBase(ctx context.Context, s browser.Session) *url.URL {
	if raw, err := s.URL(ctx); err == nil {
		if u, err := url.Parse(raw); err == nil && u.IsAbs() {
			return u
		}
	}
	return x.baseURL
}

func resolveURL(base *url.URL, href string) string {
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if ref.IsAbs() {
		return ref.String()
	}
	if base == nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

func cssString(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
