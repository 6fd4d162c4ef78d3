package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Engine names a way of driving a browser.
type Engine string

const (
	EngineChromedp   Engine = "chromedp"
	EnginePlaywright Engine = "playwright"
	EngineStealth    Engine = "stealth"
	EngineSnapshot   Engine = "snapshot"
)

var (
	// ErrNoElement is returned when a selector matches nothing.
	ErrNoElement = errors.New("no matching element")
	// ErrSessionAcquisition matches any *AcquisitionError.
	ErrSessionAcquisition = errors.New("browser session could not be acquired")
	ErrSessionClosed      = errors.New("browser session closed")
)

// Session is one browser tab, owned by a single crawl run.
type Session interface {
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)
	// Document serializes the live DOM in one round trip.
	Document(ctx context.Context) (string, error)
	// QueryAll returns the current matches without waiting.
	QueryAll(ctx context.Context, selector string) ([]Element, error)
	// WaitAll waits up to timeout for at least one match, then returns
	// all of them. ErrNoElement when the wait runs out.
	WaitAll(ctx context.Context, selector string, timeout time.Duration) ([]Element, error)
	ScrollHeight(ctx context.Context) (int, error)
	ScrollToBottom(ctx context.Context) error
	Close() error
}

// Element is a handle on one DOM node of a Session.
type Element interface {
	Tag(ctx context.Context) (string, error)
	// Text is the node's textContent.
	Text(ctx context.Context) (string, error)
	// Attr returns "" for a missing attribute.
	Attr(ctx context.Context, name string) (string, error)
	Query(ctx context.Context, selector string) (Element, error)
	Parent(ctx context.Context) (Element, error)
	// Clickable reports visible and enabled.
	Clickable(ctx context.Context) (bool, error)
	Click(ctx context.Context) error
}

// Options configure every live engine.
type Options struct {
	Engine     Engine
	Stealth    bool
	Headless   bool
	Bin        string
	UserAgent  string
	Lang       string
	Width      int
	Height     int
	NavTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Engine == "" {
		o.Engine = EngineChromedp
	}
	if o.Lang == "" {
		o.Lang = "ko-KR"
	}
	if o.Width == 0 || o.Height == 0 {
		o.Width, o.Height = 1920, 1080
	}
	if o.NavTimeout <= 0 {
		o.NavTimeout = 45 * time.Second
	}
	return o
}

// AcquisitionError lists why each attempted strategy failed.
type AcquisitionError struct {
	Attempts map[Engine]error
	order    []Engine
}

func (e *AcquisitionError) add(engine Engine, err error) {
	if e.Attempts == nil {
		e.Attempts = make(map[Engine]error)
	}
	e.Attempts[engine] = err
	e.order = append(e.order, engine)
}

func (e *AcquisitionError) Error() string {
	parts := make([]string, 0, len(e.order))
	for _, engine := range e.order {
		parts = append(parts, fmt.Sprintf("%s: %v", engine, e.Attempts[engine]))
	}
	return fmt.Sprintf("%v (%s)", ErrSessionAcquisition, strings.Join(parts, "; "))
}

func (e *AcquisitionError) Is(target error) bool { return target == ErrSessionAcquisition }
