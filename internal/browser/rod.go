package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// rodSession is the hardened strategy: go-rod driving a page prepared by
// go-rod/stealth, plus the shared init script.
type rodSession struct {
	launcher   *launcher.Launcher
	browser    *rod.Browser
	page       *rod.Page
	navTimeout time.Duration
}

func launchStealth(ctx context.Context, o Options) (Session, error) {
	l := launcher.New().
		Context(ctx).
		Headless(o.Headless).
		NoSandbox(true).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage").
		Set("lang", o.Lang).
		Set("window-size", fmt.Sprintf("%d,%d", o.Width, o.Height)).
		Delete("enable-automation")
	if o.Bin != "" {
		l = l.Bin(o.Bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		l.Kill()
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	s := &rodSession{launcher: l, browser: b, navTimeout: o.NavTimeout}

	if err := s.open(o); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *rodSession) open(o Options) error {
	p, err := stealth.Page(s.browser)
	if err != nil {
		return fmt.Errorf("stealth page: %w", err)
	}
	s.page = p

	if err := p.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      o.UserAgent,
		AcceptLanguage: acceptLanguage(o.Lang),
	}); err != nil {
		return fmt.Errorf("user agent: %w", err)
	}
	var headers []string
	for k, v := range navigationHeaders(o.UserAgent, o.Lang) {
		headers = append(headers, k, v)
	}
	if _, err := p.SetExtraHeaders(headers); err != nil {
		return fmt.Errorf("headers: %w", err)
	}
	if err := p.SetViewport(&proto.EmulationSetDeviceMetricsOverride{Width: o.Width, Height: o.Height}); err != nil {
		return fmt.Errorf("viewport: %w", err)
	}
	if _, err := p.EvalOnNewDocument(initScript(o.Lang)); err != nil {
		return fmt.Errorf("init script: %w", err)
	}
	return nil
}

func (s *rodSession) Navigate(ctx context.Context, url string) error {
	p := s.page.Context(ctx).Timeout(s.navTimeout)
	if err := p.Navigate(url); err != nil {
		return err
	}
	return p.WaitLoad()
}

func (s *rodSession) URL(ctx context.Context) (string, error) {
	info, err := s.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (s *rodSession) Document(ctx context.Context) (string, error) {
	return s.page.Context(ctx).Timeout(commandTimeout).HTML()
}

func (s *rodSession) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	els, err := s.page.Context(ctx).Timeout(commandTimeout).Elements(selector)
	if err != nil {
		return nil, err
	}
	return wrapRod(ctx, els), nil
}

func (s *rodSession) WaitAll(ctx context.Context, selector string, timeout time.Duration) ([]Element, error) {
	if _, err := s.page.Context(ctx).Timeout(timeout).Element(selector); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrNoElement
		}
		return nil, err
	}
	return s.QueryAll(ctx, selector)
}

func (s *rodSession) ScrollHeight(ctx context.Context) (int, error) {
	res, err := s.page.Context(ctx).Eval(`() => document.body.scrollHeight`)
	if err != nil {
		return 0, err
	}
	return res.Value.Int(), nil
}

func (s *rodSession) ScrollToBottom(ctx context.Context) error {
	_, err := s.page.Context(ctx).Eval(`() => window.scrollTo(0, document.body.scrollHeight)`)
	return err
}

func (s *rodSession) Close() error {
	var errs []string
	if s.page != nil {
		if err := s.page.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if err := s.browser.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	s.launcher.Kill()
	if len(errs) > 0 {
		return fmt.Errorf("close rod: %s", strings.Join(errs, "; "))
	}
	return nil
}

func wrapRod(ctx context.Context, els rod.Elements) []Element {
	out := make([]Element, len(els))
	for i, el := range els {
		out[i] = &rodElement{el: el.Context(ctx)}
	}
	return out
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Tag(ctx context.Context) (string, error) {
	res, err := e.el.Context(ctx).Eval(`() => this.tagName`)
	if err != nil {
		return "", err
	}
	return strings.ToLower(res.Value.Str()), nil
}

func (e *rodElement) Text(ctx context.Context) (string, error) {
	res, err := e.el.Context(ctx).Eval(`() => this.textContent`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (e *rodElement) Attr(ctx context.Context, name string) (string, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil || v == nil {
		return "", err
	}
	return *v, nil
}

func (e *rodElement) Query(ctx context.Context, selector string) (Element, error) {
	els, err := e.el.Context(ctx).Elements(selector)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, ErrNoElement
	}
	return &rodElement{el: els.First()}, nil
}

func (e *rodElement) Parent(ctx context.Context) (Element, error) {
	p, err := e.el.Context(ctx).Parent()
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNoElement
	}
	return &rodElement{el: p}, nil
}

func (e *rodElement) Clickable(ctx context.Context) (bool, error) {
	el := e.el.Context(ctx)
	visible, err := el.Visible()
	if err != nil || !visible {
		return false, err
	}
	disabled, err := el.Attribute("disabled")
	if err != nil {
		return false, err
	}
	return disabled == nil, nil
}

func (e *rodElement) Click(ctx context.Context) error {
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}
