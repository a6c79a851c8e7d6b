// Package pwbrowser implements the browser interfaces on top of
// playwright-go and a Chromium instance.
package pwbrowser

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"mime"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/TRA3H/hunter/internal/browser"
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

// Launcher starts a fresh playwright driver and Chromium per Session.
type Launcher struct {
	// Timeout is the default navigation/action timeout.
	Timeout time.Duration
	Logger  *zap.Logger
}

// NewLauncher returns a Launcher with the given action timeout.
func NewLauncher(timeout time.Duration, log *zap.Logger) *Launcher {
	return &Launcher{Timeout: timeout, Logger: log.Named("browser")}
}

// Install downloads the driver and Chromium if they are missing.
func Install() error {
	return playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}})
}

func (l *Launcher) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Session, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}

	bctx, err := b.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(userAgents[rand.IntN(len(userAgents))]),
		Viewport:  &playwright.Size{Width: 1280, Height: 900},
	})
	if err != nil {
		_ = b.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("new browser context: %w", err)
	}
	if l.Timeout > 0 {
		bctx.SetDefaultTimeout(float64(l.Timeout.Milliseconds()))
	}

	s := &session{pw: pw, browser: b, bctx: bctx, log: l.Logger}
	// A cancelled unit of work must not leave Chromium running.
	s.stop = context.AfterFunc(ctx, func() {
		l.Logger.Warn("context done, closing browser", zap.Error(ctx.Err()))
		_ = s.Close()
	})
	return s, nil
}

type session struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	bctx    playwright.BrowserContext
	log     *zap.Logger
	stop    func() bool

	once     sync.Once
	closeErr error
}

func (s *session) NewPage(_ context.Context) (browser.Page, error) {
	p, err := s.bctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("new page: %w", err)
	}
	return &page{page: p}, nil
}

// WaitClosed polls until the browser disconnects or the last tab closes.
func (s *session) WaitClosed(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		if !s.browser.IsConnected() || len(s.bctx.Pages()) == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *session) Close() error {
	s.once.Do(func() {
		if s.stop != nil {
			s.stop()
		}
		var errs []error
		if s.browser.IsConnected() {
			errs = append(errs, s.browser.Close())
		}
		errs = append(errs, s.pw.Stop())
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

// ─── Page ────────────────────────────────────────────────────────────────────

type page struct {
	page playwright.Page
}

func (p *page) Goto(_ context.Context, url string) error {
	if _, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return fmt.Errorf("goto %s: %w", url, err)
	}
	// Network idle is best effort; long-polling pages never reach it.
	_ = p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(15000),
	})
	return nil
}

func (p *page) URL() string { return p.page.URL() }

func (p *page) Content() (string, error) { return p.page.Content() }

func (p *page) Query(selector string) ([]browser.Element, error) {
	return wrapAll(p.page.Locator(selector))
}

func (p *page) WaitFor(_ context.Context, selector string, timeout time.Duration) error {
	err := p.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", browser.ErrNotFound, selector, err)
	}
	return nil
}

func (p *page) Settle(ctx context.Context, d time.Duration) error {
	_ = p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(float64(d.Milliseconds())),
	})
	return ctx.Err()
}

func (p *page) ScrollHeight() (int, error) {
	v, err := p.page.Evaluate("document.body.scrollHeight")
	if err != nil {
		return 0, err
	}
	switch h := v.(type) {
	case int:
		return h, nil
	case int64:
		return int(h), nil
	case float64:
		return int(h), nil
	}
	return 0, fmt.Errorf("unexpected scrollHeight type %T", v)
}

func (p *page) ScrollToBottom() error {
	_, err := p.page.Evaluate("window.scrollTo(0, document.body.scrollHeight)")
	return err
}

func (p *page) Screenshot(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	_, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	})
	return err
}

func (p *page) Close() error { return p.page.Close() }

// ─── Element ─────────────────────────────────────────────────────────────────

type element struct {
	loc playwright.Locator
}

func wrapAll(loc playwright.Locator) ([]browser.Element, error) {
	all, err := loc.All()
	if err != nil {
		return nil, err
	}
	out := make([]browser.Element, 0, len(all))
	for _, l := range all {
		out = append(out, &element{loc: l})
	}
	return out, nil
}

func (e *element) TagName() (string, error) {
	v, err := e.loc.Evaluate("el => el.tagName.toLowerCase()", nil)
	if err != nil {
		return "", err
	}
	tag, _ := v.(string)
	return tag, nil
}

func (e *element) Text() (string, error) {
	v, err := e.loc.Evaluate("el => (el.innerText || el.textContent || '').trim()", nil)
	if err != nil {
		return "", err
	}
	text, _ := v.(string)
	return text, nil
}

func (e *element) Attr(name string) (string, bool, error) {
	v, err := e.loc.Evaluate("(el, name) => el.getAttribute(name)", name)
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	s, _ := v.(string)
	return s, true, nil
}

func (e *element) Query(selector string) ([]browser.Element, error) {
	return wrapAll(e.loc.Locator(selector))
}

func (e *element) Ancestor(tag string) (browser.Element, error) {
	anc := e.loc.Locator("xpath=ancestor::" + tag + "[1]")
	n, err := anc.Count()
	if err != nil || n == 0 {
		return nil, err
	}
	return &element{loc: anc}, nil
}

func (e *element) IsVisible() (bool, error) { return e.loc.IsVisible() }

func (e *element) IsChecked() (bool, error) { return e.loc.IsChecked() }

func (e *element) Click() error { return e.loc.Click() }

func (e *element) Fill(value string) error { return e.loc.Fill(value) }

func (e *element) SelectOption(label string) error {
	labels := []string{label}
	_, err := e.loc.SelectOption(playwright.SelectOptionValues{Labels: &labels})
	return err
}

func (e *element) SetInputFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return e.loc.SetInputFiles([]playwright.InputFile{{
		Name:     filepath.Base(path),
		MimeType: mimeType,
		Buffer:   data,
	}})
}
