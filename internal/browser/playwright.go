package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

type playwrightSession struct {
	pw         *playwright.Playwright
	browser    playwright.Browser
	bctx       playwright.BrowserContext
	page       playwright.Page
	navTimeout time.Duration
}

func launchPlaywright(_ context.Context, o Options) (Session, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("playwright run: %w", err)
	}
	launch := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(o.Headless),
		Args: []string{
			"--no-sandbox",
			"--disable-dev-shm-usage",
			"--disable-blink-features=AutomationControlled",
			"--lang=" + o.Lang,
			fmt.Sprintf("--window-size=%d,%d", o.Width, o.Height),
		},
		IgnoreDefaultArgs: []string{"--enable-automation"},
	}
	if o.Bin != "" {
		launch.ExecutablePath = playwright.String(o.Bin)
	}
	browser, err := pw.Chromium.Launch(launch)
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch: %w", err)
	}

	s := &playwrightSession{pw: pw, browser: browser, navTimeout: o.NavTimeout}
	if err := s.open(o); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *playwrightSession) open(o Options) error {
	var err error
	s.bctx, err = s.browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:        playwright.String(o.UserAgent),
		Locale:           playwright.String(o.Lang),
		Viewport:         &playwright.Size{Width: o.Width, Height: o.Height},
		ExtraHttpHeaders: navigationHeaders(o.UserAgent, o.Lang),
	})
	if err != nil {
		return fmt.Errorf("new context: %w", err)
	}
	if err := s.bctx.AddInitScript(playwright.Script{Content: playwright.String(initScript(o.Lang))}); err != nil {
		return fmt.Errorf("init script: %w", err)
	}
	s.page, err = s.bctx.NewPage()
	if err != nil {
		return fmt.Errorf("new page: %w", err)
	}
	return nil
}

func (s *playwrightSession) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(s.navTimeout.Milliseconds())),
	})
	return err
}

func (s *playwrightSession) URL(context.Context) (string, error) {
	return s.page.URL(), nil
}

func (s *playwrightSession) Document(context.Context) (string, error) {
	return s.page.Content()
}

func (s *playwrightSession) QueryAll(_ context.Context, selector string) ([]Element, error) {
	handles, err := s.page.QuerySelectorAll(selector)
	if err != nil {
		return nil, err
	}
	return wrapHandles(handles), nil
}

func (s *playwrightSession) WaitAll(ctx context.Context, selector string, timeout time.Duration) ([]Element, error) {
	_, err := s.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoElement, selector)
	}
	return s.QueryAll(ctx, selector)
}

func (s *playwrightSession) ScrollHeight(context.Context) (int, error) {
	v, err := s.page.Evaluate(`() => document.body.scrollHeight`)
	if err != nil {
		return 0, err
	}
	return toInt(v), nil
}

func (s *playwrightSession) ScrollToBottom(context.Context) error {
	_, err := s.page.Evaluate(`() => window.scrollTo(0, document.body.scrollHeight)`)
	return err
}

func (s *playwrightSession) Close() error {
	var errs []string
	if s.bctx != nil {
		if err := s.bctx.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if err := s.browser.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := s.pw.Stop(); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("close playwright: %s", strings.Join(errs, "; "))
	}
	return nil
}

func wrapHandles(handles []playwright.ElementHandle) []Element {
	out := make([]Element, len(handles))
	for i, h := range handles {
		out[i] = &playwrightElement{h: h}
	}
	return out
}

type playwrightElement struct {
	h playwright.ElementHandle
}

func (e *playwrightElement) Tag(context.Context) (string, error) {
	v, err := e.h.Evaluate(`el => el.tagName`)
	if err != nil {
		return "", err
	}
	tag, _ := v.(string)
	return strings.ToLower(tag), nil
}

func (e *playwrightElement) Text(context.Context) (string, error) {
	return e.h.TextContent()
}

func (e *playwrightElement) Attr(_ context.Context, name string) (string, error) {
	return e.h.GetAttribute(name)
}

func (e *playwrightElement) Query(_ context.Context, selector string) (Element, error) {
	h, err := e.h.QuerySelector(selector)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, ErrNoElement
	}
	return &playwrightElement{h: h}, nil
}

func (e *playwrightElement) Parent(context.Context) (Element, error) {
	js, err := e.h.EvaluateHandle(`el => el.parentElement`)
	if err != nil {
		return nil, err
	}
	parent := js.AsElement()
	if parent == nil {
		return nil, ErrNoElement
	}
	return &playwrightElement{h: parent}, nil
}

func (e *playwrightElement) Clickable(context.Context) (bool, error) {
	visible, err := e.h.IsVisible()
	if err != nil || !visible {
		return false, err
	}
	return e.h.IsEnabled()
}

func (e *playwrightElement) Click(context.Context) error {
	return e.h.Click()
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
