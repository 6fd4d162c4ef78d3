package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"stayscraper/internal/core/ladder"
	"stayscraper/internal/core/listing"
)

// row holds the raw field values of one card before URL resolution.
type row struct {
	href    string
	title   string
	price   string
	rating  string
	address string
}

// bulkRows evaluates the whole bulk ladder over one serialized document.
func bulkRows(html string, l *ladder.Ladder) ([]row, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	byID := map[string]*goquery.Selection{}
	doc.Find("[id]").Each(func(_ int, s *goquery.Selection) {
		id := s.AttrOr("id", "")
		if _, dup := byID[id]; !dup {
			byID[id] = s
		}
	})

	seen := map[string]bool{}
	var rows []row
	doc.Find(l.Bulk.Anchor).Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		id := listing.ID(href, l.DetailPath)
		if id == "" || seen[id] {
			return
		}
		seen[id] = true

		r := row{href: href}
		root := a.Parent()
		if ref := firstToken(a.AttrOr(l.Bulk.LabelAttr, "")); ref != "" {
			if label, ok := byID[ref]; ok {
				r.title = clean(label.Text())
				if c := cardContainer(label, l.Bulk.CardMarker); c != nil {
					root = c
				}
			}
		}

		priceRow := root.Find(l.Bulk.CardMarker).First()
		r.price = resolve(l.Bulk.Price, root, priceRow)
		r.rating = resolve(l.Bulk.Rating, root, priceRow)
		r.address = resolve(l.Bulk.Address, root, priceRow)
		rows = append(rows, r)
	})
	return rows, nil
}

// cardContainer climbs from the label node to the nearest ancestor that
// also holds the price row. The label is not always inside the card's
// price/rating subtree, so lookups re-anchor there.
func cardContainer(label *goquery.Selection, marker string) *goquery.Selection {
	for w := label.Parent(); w.Length() > 0; w = w.Parent() {
		if goquery.NodeName(w) == "body" {
			return nil
		}
		if w.Find(marker).Length() > 0 {
			return w
		}
	}
	return nil
}

// resolve walks a field ladder; first accepted text wins.
func resolve(strategies []ladder.Strategy, card, priceRow *goquery.Selection) string {
	for _, st := range strategies {
		scope := card
		if st.Scope == ladder.ScopeRow {
			if priceRow.Length() == 0 {
				continue
			}
			scope = priceRow
		}
		matches := scope.Find(st.Selector)
		if !st.Scan {
			matches = matches.First()
		}
		var found string
		matches.EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if t := clean(s.Text()); st.Accept(t) {
				found = t
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}
	return ""
}

func firstToken(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[0]
	}
	return ""
}

// clean trims and collapses whitespace. Both tiers use it so they agree
// on the same markup.
func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
