// Package ladder holds the site-specific selector ladders as data, so the
// extraction code stays generic and the brittle part can be swapped
// without a redeploy.
package ladder

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/andybalholm/cascadia"
	"gopkg.in/yaml.v3"
)

//go:embed selectors.yaml
var embedded []byte

// Scope says where a bulk strategy looks.
type Scope string

const (
	ScopeCard Scope = "card"
	// ScopeRow is the price row inside the card; skipped when a card has none.
	ScopeRow Scope = "row"
)

// Strategy is one rung of a bulk field ladder.
type Strategy struct {
	Selector string   `yaml:"selector"`
	Scope    Scope    `yaml:"scope"`
	Match    string   `yaml:"match"`
	Contains []string `yaml:"contains"`
	// MaxLen rejects texts of MaxLen runes or more.
	MaxLen int `yaml:"max_len"`
	// Scan checks every match instead of only the first.
	Scan bool `yaml:"scan"`

	re *regexp.Regexp
}

// Accept applies the strategy's text filters to an already trimmed text.
func (s Strategy) Accept(text string) bool {
	if text == "" {
		return false
	}
	if s.MaxLen > 0 && utf8.RuneCountInString(text) >= s.MaxLen {
		return false
	}
	if s.re != nil && !s.re.MatchString(text) {
		return false
	}
	if len(s.Contains) == 0 {
		return true
	}
	for _, w := range s.Contains {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

type Bulk struct {
	Anchor     string     `yaml:"anchor"`
	LabelAttr  string     `yaml:"label_attr"`
	CardMarker string     `yaml:"card_marker"`
	Price      []Strategy `yaml:"price"`
	Rating     []Strategy `yaml:"rating"`
	Address    []Strategy `yaml:"address"`
}

type Fallback struct {
	WaitTimeout time.Duration `yaml:"wait_timeout"`
	Cards       []string      `yaml:"cards"`
	Link        []string      `yaml:"link"`
	Title       []string      `yaml:"title"`
	Price       []string      `yaml:"price"`
	Rating      []string      `yaml:"rating"`
	Address     []string      `yaml:"address"`
}

type Pagination struct {
	Next []string `yaml:"next"`
}

type Ladder struct {
	DetailPath string     `yaml:"detail_path"`
	Bulk       Bulk       `yaml:"bulk"`
	Fallback   Fallback   `yaml:"fallback"`
	Pagination Pagination `yaml:"pagination"`
}

// Default returns the ladder compiled into the binary.
func Default() *Ladder {
	l, err := Parse(embedded)
	if err != nil {
		panic(fmt.Errorf("embedded selectors.yaml: %w", err))
	}
	return l
}

// Load reads a ladder file, or returns Default when path is empty.
func Load(path string) (*Ladder, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read selectors: %w", err)
	}
	l, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return l, nil
}

// Parse decodes and validates a ladder document.
func Parse(data []byte) (*Ladder, error) {
	var l Ladder
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parse selectors: %w", err)
	}
	if err := l.compile(); err != nil {
		return nil, err
	}
	return &l, nil
}

func (l *Ladder) compile() error {
	if l.DetailPath == "" {
		l.DetailPath = "/rooms/"
	}
	if l.Bulk.LabelAttr == "" {
		l.Bulk.LabelAttr = "aria-labelledby"
	}
	if l.Fallback.WaitTimeout <= 0 {
		l.Fallback.WaitTimeout = 10 * time.Second
	}

	var errs []error
	for name, sel := range map[string]string{"bulk.anchor": l.Bulk.Anchor, "bulk.card_marker": l.Bulk.CardMarker} {
		if err := checkSelector(sel); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	for name, ladder := range map[string][]Strategy{"price": l.Bulk.Price, "rating": l.Bulk.Rating, "address": l.Bulk.Address} {
		if len(ladder) == 0 {
			errs = append(errs, fmt.Errorf("bulk.%s: empty ladder", name))
		}
		for i := range ladder {
			if err := ladder[i].compile(); err != nil {
				errs = append(errs, fmt.Errorf("bulk.%s[%d]: %w", name, i, err))
			}
		}
	}
	for name, list := range map[string][]string{
		"fallback.cards": l.Fallback.Cards, "fallback.link": l.Fallback.Link, "fallback.title": l.Fallback.Title,
		"fallback.price": l.Fallback.Price, "fallback.rating": l.Fallback.Rating, "fallback.address": l.Fallback.Address,
		"pagination.next": l.Pagination.Next,
	} {
		if len(list) == 0 {
			errs = append(errs, fmt.Errorf("%s: empty ladder", name))
		}
		for i, sel := range list {
			if err := checkSelector(sel); err != nil {
				errs = append(errs, fmt.Errorf("%s[%d]: %w", name, i, err))
			}
		}
	}
	return errors.Join(errs...)
}

func (s *Strategy) compile() error {
	if s.Scope == "" {
		s.Scope = ScopeCard
	}
	if s.Scope != ScopeCard && s.Scope != ScopeRow {
		return fmt.Errorf("unknown scope %q", s.Scope)
	}
	if err := checkSelector(s.Selector); err != nil {
		return err
	}
	if s.Match != "" {
		re, err := regexp.Compile(s.Match)
		if err != nil {
			return fmt.Errorf("match: %w", err)
		}
		s.re = re
	}
	return nil
}

// checkSelector rejects selectors the host-side HTML matcher cannot run.
func checkSelector(sel string) error {
	if strings.TrimSpace(sel) == "" {
		return errors.New("empty selector")
	}
	if _, err := cascadia.ParseGroup(sel); err != nil {
		return fmt.Errorf("selector %q: %w", sel, err)
	}
	return nil
}
