package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// snapshotSession replays saved result pages. Navigate loads the first
// page; clicking any element moves to the next one.
type snapshotSession struct {
	pages  []string
	index  int
	url    string
	doc    *goquery.Document
	closed bool
}

// NewSnapshot returns a session over recorded HTML pages.
func NewSnapshot(pages ...string) (Session, error) {
	if len(pages) == 0 {
		return nil, errors.New("snapshot: no pages")
	}
	return &snapshotSession{pages: pages, index: -1}, nil
}

// SnapshotLauncher adapts NewSnapshot to a Manager engine.
func SnapshotLauncher(pages ...string) LaunchFunc {
	return func(context.Context, Options) (Session, error) {
		return NewSnapshot(pages...)
	}
}

func (s *snapshotSession) load(i int) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s.pages[i]))
	if err != nil {
		return fmt.Errorf("snapshot page %d: %w", i+1, err)
	}
	s.doc, s.index = doc, i
	return nil
}

func (s *snapshotSession) ready() error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.doc == nil {
		return errors.New("snapshot: not navigated")
	}
	return nil
}

func (s *snapshotSession) Navigate(ctx context.Context, url string) error {
	if s.closed {
		return ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.url = url
	return s.load(0)
}

func (s *snapshotSession) URL(context.Context) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	return s.url, nil
}

func (s *snapshotSession) Document(context.Context) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	return s.pages[s.index], nil
}

func (s *snapshotSession) QueryAll(_ context.Context, selector string) ([]Element, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.wrap(s.doc.Find(selector)), nil
}

func (s *snapshotSession) WaitAll(ctx context.Context, selector string, _ time.Duration) ([]Element, error) {
	els, err := s.QueryAll(ctx, selector)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, ErrNoElement
	}
	return els, nil
}

// ScrollHeight is the size of the recorded page; scrolling never grows it.
func (s *snapshotSession) ScrollHeight(context.Context) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	return len(s.pages[s.index]), nil
}

func (s *snapshotSession) ScrollToBottom(context.Context) error {
	return s.ready()
}

func (s *snapshotSession) Close() error {
	s.closed = true
	s.doc = nil
	return nil
}

func (s *snapshotSession) wrap(sel *goquery.Selection) []Element {
	out := make([]Element, 0, sel.Length())
	sel.Each(func(_ int, one *goquery.Selection) {
		out = append(out, &snapshotElement{s: s, sel: one})
	})
	return out
}

type snapshotElement struct {
	s   *snapshotSession
	sel *goquery.Selection
}

func (e *snapshotElement) Tag(context.Context) (string, error) {
	return goquery.NodeName(e.sel), nil
}

func (e *snapshotElement) Text(context.Context) (string, error) {
	return e.sel.Text(), nil
}

func (e *snapshotElement) Attr(_ context.Context, name string) (string, error) {
	return e.sel.AttrOr(name, ""), nil
}

func (e *snapshotElement) Query(_ context.Context, selector string) (Element, error) {
	found := e.sel.Find(selector).First()
	if found.Length() == 0 {
		return nil, ErrNoElement
	}
	return &snapshotElement{s: e.s, sel: found}, nil
}

func (e *snapshotElement) Parent(context.Context) (Element, error) {
	p := e.sel.Parent()
	if p.Length() == 0 || goquery.NodeName(p) == "#document" {
		return nil, ErrNoElement
	}
	return &snapshotElement{s: e.s, sel: p}, nil
}

func (e *snapshotElement) Clickable(context.Context) (bool, error) {
	if _, ok := e.sel.Attr("disabled"); ok {
		return false, nil
	}
	if _, ok := e.sel.Attr("hidden"); ok {
		return false, nil
	}
	if e.sel.AttrOr("aria-disabled", "") == "true" {
		return false, nil
	}
	style := strings.ReplaceAll(strings.ToLower(e.sel.AttrOr("style", "")), " ", "")
	return !strings.Contains(style, "display:none"), nil
}

func (e *snapshotElement) Click(context.Context) error {
	if err := e.s.ready(); err != nil {
		return err
	}
	next := e.s.index + 1
	if next >= len(e.s.pages) {
		return errors.New("snapshot: no further recorded page")
	}
	return e.s.load(next)
}
