// Package static implements browser.Page over HTML snapshots parsed with
// goquery. It runs no JavaScript: clicks on links navigate, checkboxes and
// radios toggle, fills rewrite value attributes, and submit controls are
// counted. It backs the "static" renderer and the package tests.
package static

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/TRA3H/hunter/internal/browser"
)

// Source resolves a URL to an HTML document.
type Source interface {
	Load(ctx context.Context, url string) (string, error)
}

// Pages is an in-memory Source keyed by absolute URL.
type Pages map[string]string

func (p Pages) Load(_ context.Context, u string) (string, error) {
	html, ok := p[u]
	if !ok {
		return "", fmt.Errorf("static: no page for %s", u)
	}
	return html, nil
}

// HTTPSource fetches pages over plain HTTP.
type HTTPSource struct {
	Client    *http.Client
	UserAgent string
}

func (h HTTPSource) Load(ctx context.Context, u string) (string, error) {
	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	if h.UserAgent != "" {
		req.Header.Set("User-Agent", h.UserAgent)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http GET %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("http GET %s: status %d", u, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(body), nil
}

// ─── Page ────────────────────────────────────────────────────────────────────

// Page is a goquery-backed browser.Page.
type Page struct {
	src     Source
	url     string
	doc     *goquery.Document
	clicks  []string
	submits int
}

// NewPage returns an empty page that loads documents from src.
func NewPage(src Source) *Page {
	return &Page{src: src}
}

// SetContent replaces the current document without consulting the Source.
func (p *Page) SetContent(pageURL, html string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("parse %s: %w", pageURL, err)
	}
	p.url = pageURL
	p.doc = doc
	return nil
}

func (p *Page) Goto(ctx context.Context, u string) error {
	if p.src == nil {
		return fmt.Errorf("static: no source to load %s", u)
	}
	html, err := p.src.Load(ctx, u)
	if err != nil {
		return err
	}
	return p.SetContent(u, html)
}

func (p *Page) URL() string { return p.url }

func (p *Page) Content() (string, error) {
	if p.doc == nil {
		return "", nil
	}
	return p.doc.Html()
}

func (p *Page) Query(selector string) ([]browser.Element, error) {
	if p.doc == nil {
		return nil, nil
	}
	return p.wrap(p.doc.Find(translate(selector))), nil
}

func (p *Page) WaitFor(_ context.Context, selector string, _ time.Duration) error {
	if p.doc == nil || p.doc.Find(translate(selector)).Length() == 0 {
		return browser.ErrNotFound
	}
	return nil
}

func (p *Page) Settle(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func (p *Page) ScrollHeight() (int, error) {
	if p.doc == nil {
		return 0, nil
	}
	return p.doc.Find("*").Length(), nil
}

func (p *Page) ScrollToBottom() error { return nil }

// Screenshot writes the current HTML to path; there is nothing to rasterize.
func (p *Page) Screenshot(path string) error {
	html, err := p.Content()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(html), 0o644)
}

func (p *Page) Close() error { return nil }

// Clicks lists a short description of every clicked element, in order.
func (p *Page) Clicks() []string { return append([]string(nil), p.clicks...) }

// Submitted reports whether any submit control was clicked.
func (p *Page) Submitted() bool { return p.submits > 0 }

func (p *Page) wrap(sel *goquery.Selection) []browser.Element {
	out := make([]browser.Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, &element{page: p, sel: s})
	})
	return out
}

// translate maps Playwright's :has-text() onto cascadia's :contains().
func translate(selector string) string {
	return strings.ReplaceAll(selector, ":has-text(", ":contains(")
}

// ─── Element ─────────────────────────────────────────────────────────────────

type element struct {
	page *Page
	sel  *goquery.Selection
}

func (e *element) TagName() (string, error) {
	return goquery.NodeName(e.sel), nil
}

func (e *element) Text() (string, error) {
	return strings.TrimSpace(e.sel.Text()), nil
}

func (e *element) Attr(name string) (string, bool, error) {
	v, ok := e.sel.Attr(name)
	return v, ok, nil
}

func (e *element) Query(selector string) ([]browser.Element, error) {
	return e.page.wrap(e.sel.Find(translate(selector))), nil
}

func (e *element) Ancestor(tag string) (browser.Element, error) {
	anc := e.sel.Parent().Closest(tag)
	if anc.Length() == 0 {
		return nil, nil
	}
	return &element{page: e.page, sel: anc}, nil
}

func (e *element) IsVisible() (bool, error) {
	if t, _ := e.sel.Attr("type"); strings.EqualFold(t, "hidden") {
		return false, nil
	}
	for s := e.sel; s.Length() > 0; s = s.Parent() {
		if _, hidden := s.Attr("hidden"); hidden {
			return false, nil
		}
		style := strings.ReplaceAll(strings.ToLower(s.AttrOr("style", "")), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return false, nil
		}
	}
	return true, nil
}

func (e *element) IsChecked() (bool, error) {
	_, ok := e.sel.Attr("checked")
	return ok, nil
}

func (e *element) Click() error {
	p := e.page
	tag := goquery.NodeName(e.sel)
	typ := strings.ToLower(e.sel.AttrOr("type", ""))
	p.clicks = append(p.clicks, describe(e.sel))

	switch {
	case tag == "input" && typ == "checkbox":
		if _, ok := e.sel.Attr("checked"); ok {
			e.sel.RemoveAttr("checked")
		} else {
			e.sel.SetAttr("checked", "checked")
		}
	case tag == "input" && typ == "radio":
		if name := e.sel.AttrOr("name", ""); name != "" {
			p.doc.Find(fmt.Sprintf("input[type='radio'][name='%s']", name)).RemoveAttr("checked")
		}
		e.sel.SetAttr("checked", "checked")
	case tag == "input" && typ == "submit",
		tag == "button" && (typ == "submit" || (typ == "" && e.sel.Closest("form").Length() > 0)):
		p.submits++
	case tag == "a":
		href := strings.TrimSpace(e.sel.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return nil
		}
		target, err := resolve(p.url, href)
		if err != nil {
			return err
		}
		return p.Goto(context.Background(), target)
	}
	return nil
}

func (e *element) Fill(value string) error {
	switch goquery.NodeName(e.sel) {
	case "textarea":
		e.sel.SetText(value)
	case "input":
		e.sel.SetAttr("value", value)
	default:
		return fmt.Errorf("static: cannot fill <%s>", goquery.NodeName(e.sel))
	}
	return nil
}

func (e *element) SelectOption(label string) error {
	if goquery.NodeName(e.sel) != "select" {
		return fmt.Errorf("static: <%s> is not a select", goquery.NodeName(e.sel))
	}
	options := e.sel.Find("option")
	match := options.FilterFunction(func(_ int, o *goquery.Selection) bool {
		return strings.TrimSpace(o.Text()) == label
	})
	if match.Length() == 0 {
		return fmt.Errorf("static: no option labelled %q", label)
	}
	options.RemoveAttr("selected")
	match.First().SetAttr("selected", "selected")
	return nil
}

func (e *element) SetInputFile(path string) error {
	if strings.ToLower(e.sel.AttrOr("type", "")) != "file" {
		return fmt.Errorf("static: element is not a file input")
	}
	e.sel.SetAttr("data-file", path)
	e.sel.SetAttr("value", filepath.Base(path))
	return nil
}

func describe(s *goquery.Selection) string {
	tag := goquery.NodeName(s)
	if id := s.AttrOr("id", ""); id != "" {
		return tag + "#" + id
	}
	if text := strings.TrimSpace(s.Text()); text != "" {
		return tag + ":" + text
	}
	if name := s.AttrOr("name", ""); name != "" {
		return tag + "[" + name + "]"
	}
	return tag
}

func resolve(base, href string) (string, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(ref).String(), nil
}

// ─── Launcher ────────────────────────────────────────────────────────────────

// Launcher hands out Sessions over one Source and remembers every page it
// opened so callers can inspect them afterwards.
type Launcher struct {
	Source Source

	mu    sync.Mutex
	pages []*Page
}

func (l *Launcher) Launch(_ context.Context, _ browser.LaunchOptions) (browser.Session, error) {
	return &session{launcher: l}, nil
}

// Pages returns every page opened through this launcher.
func (l *Launcher) Pages() []*Page {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Page(nil), l.pages...)
}

// LastPage returns the most recently opened page, or nil.
func (l *Launcher) LastPage() *Page {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.pages) == 0 {
		return nil
	}
	return l.pages[len(l.pages)-1]
}

type session struct {
	launcher *Launcher
}

func (s *session) NewPage(_ context.Context) (browser.Page, error) {
	p := NewPage(s.launcher.Source)
	s.launcher.mu.Lock()
	s.launcher.pages = append(s.launcher.pages, p)
	s.launcher.mu.Unlock()
	return p, nil
}

// WaitClosed returns at once: a static session has no window to close.
func (s *session) WaitClosed(ctx context.Context) error { return ctx.Err() }

func (s *session) Close() error { return nil }
