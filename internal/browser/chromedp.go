package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// commandTimeout bounds single DOM round trips.
const commandTimeout = 15 * time.Second

type chromedpSession struct {
	tab         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	navTimeout  time.Duration
}

func launchChromedp(ctx context.Context, o Options) (Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("lang", o.Lang),
		chromedp.WindowSize(o.Width, o.Height),
		chromedp.UserAgent(o.UserAgent),
	)
	if o.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if o.Bin != "" {
		opts = append(opts, chromedp.ExecPath(o.Bin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	setup := chromedp.ActionFunc(func(ctx context.Context) error {
		if _, err := page.AddScriptToEvaluateOnNewDocument(initScript(o.Lang)).Do(ctx); err != nil {
			return err
		}
		if o.UserAgent == "" {
			return nil
		}
		return emulation.SetUserAgentOverride(o.UserAgent).
			WithAcceptLanguage(acceptLanguage(o.Lang)).
			Do(ctx)
	})
	if err := chromedp.Run(tabCtx, setup); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	return &chromedpSession{
		tab:         tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		navTimeout:  o.NavTimeout,
	}, nil
}

// run executes actions on the tab, bounded by timeout and by the caller's ctx.
func (s *chromedpSession) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if err := s.tab.Err(); err != nil {
		return ErrSessionClosed
	}
	runCtx, cancel := context.WithTimeout(s.tab, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (s *chromedpSession) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, s.navTimeout, chromedp.Navigate(url))
}

func (s *chromedpSession) URL(ctx context.Context) (string, error) {
	var u string
	err := s.run(ctx, commandTimeout, chromedp.Location(&u))
	return u, err
}

func (s *chromedpSession) Document(ctx context.Context) (string, error) {
	var html string
	err := s.run(ctx, commandTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (s *chromedpSession) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	var nodes []*cdp.Node
	if err := s.run(ctx, commandTimeout, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return nil, err
	}
	return s.wrap(nodes), nil
}

func (s *chromedpSession) WaitAll(ctx context.Context, selector string, timeout time.Duration) ([]Element, error) {
	var nodes []*cdp.Node
	err := s.run(ctx, timeout, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll))
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, ErrNoElement
	}
	if err != nil {
		return nil, err
	}
	return s.wrap(nodes), nil
}

func (s *chromedpSession) ScrollHeight(ctx context.Context) (int, error) {
	var h int
	err := s.run(ctx, commandTimeout, chromedp.Evaluate(`document.body.scrollHeight`, &h))
	return h, err
}

func (s *chromedpSession) ScrollToBottom(ctx context.Context) error {
	return s.run(ctx, commandTimeout, chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil))
}

func (s *chromedpSession) Close() error {
	s.cancelTab()
	s.cancelAlloc()
	return nil
}

func (s *chromedpSession) wrap(nodes []*cdp.Node) []Element {
	out := make([]Element, len(nodes))
	for i, n := range nodes {
		out[i] = &chromedpElement{s: s, node: n}
	}
	return out
}

type chromedpElement struct {
	s    *chromedpSession
	node *cdp.Node
}

func (e *chromedpElement) Tag(context.Context) (string, error) {
	return strings.ToLower(e.node.NodeName), nil
}

func (e *chromedpElement) Text(ctx context.Context) (string, error) {
	var text string
	err := e.s.run(ctx, commandTimeout, chromedp.TextContent([]cdp.NodeID{e.node.NodeID}, &text, chromedp.ByNodeID))
	return text, err
}

func (e *chromedpElement) Attr(_ context.Context, name string) (string, error) {
	return e.node.AttributeValue(name), nil
}

func (e *chromedpElement) Query(ctx context.Context, selector string) (Element, error) {
	var nodes []*cdp.Node
	err := e.s.run(ctx, commandTimeout, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.FromNode(e.node), chromedp.AtLeast(0)))
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, ErrNoElement
	}
	return &chromedpElement{s: e.s, node: nodes[0]}, nil
}

func (e *chromedpElement) Parent(context.Context) (Element, error) {
	p := e.node.Parent
	if p == nil || p.NodeType != cdp.NodeTypeElement {
		return nil, ErrNoElement
	}
	return &chromedpElement{s: e.s, node: p}, nil
}

func (e *chromedpElement) Clickable(ctx context.Context) (bool, error) {
	if _, disabled := e.node.Attribute("disabled"); disabled {
		return false, nil
	}
	if e.node.AttributeValue("aria-disabled") == "true" {
		return false, nil
	}
	var box *dom.BoxModel
	err := e.s.run(ctx, commandTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		box, err = dom.GetBoxModel().WithNodeID(e.node.NodeID).Do(ctx)
		return err
	}))
	if err != nil {
		// no box model: not rendered
		return false, nil
	}
	return box.Width > 0 && box.Height > 0, nil
}

func (e *chromedpElement) Click(ctx context.Context) error {
	return e.s.run(ctx, commandTimeout, chromedp.MouseClickNode(e.node))
}
