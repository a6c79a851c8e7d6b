// Package browser defines the page-automation surface used by the scrapers
// and the application drivers. One Session belongs to exactly one unit of
// work; pages and elements are never shared across goroutines.
//
// Two implementations exist: pwbrowser drives a real Chromium through
// playwright-go, and static renders HTML snapshots with goquery.
package browser

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a waited-for selector never appears.
var ErrNotFound = errors.New("browser: element not found")

// Querier is anything selectors can be run against: a Page or an Element.
type Querier interface {
	Query(selector string) ([]Element, error)
}

// Element is a single node on a page.
type Element interface {
	TagName() (string, error)
	Text() (string, error)
	// Attr returns the attribute value and whether it is present.
	Attr(name string) (string, bool, error)
	// Query returns descendants matching selector, in document order.
	Query(selector string) ([]Element, error)
	// Ancestor returns the nearest ancestor with the given tag, or nil.
	Ancestor(tag string) (Element, error)
	IsVisible() (bool, error)
	IsChecked() (bool, error)
	Click() error
	Fill(value string) error
	SelectOption(label string) error
	SetInputFile(path string) error
}

// Page is one open tab.
type Page interface {
	Goto(ctx context.Context, url string) error
	URL() string
	Content() (string, error)
	Query(selector string) ([]Element, error)
	// WaitFor blocks until selector matches or timeout passes, returning
	// ErrNotFound in the latter case.
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error
	// Settle waits for in-flight navigation and rendering, at most d.
	Settle(ctx context.Context, d time.Duration) error
	ScrollHeight() (int, error)
	ScrollToBottom() error
	Screenshot(path string) error
	Close() error
}

// Session owns one browser process/context.
type Session interface {
	NewPage(ctx context.Context) (Page, error)
	// WaitClosed blocks until the user closes the browser or ctx ends.
	WaitClosed(ctx context.Context) error
	Close() error
}

// LaunchOptions controls how a Session is started.
type LaunchOptions struct {
	Headless bool
}

// Launcher starts Sessions. A Session must be closed by the caller; it is
// also torn down when the launch context is cancelled.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Session, error)
}

// First returns the first element matching selector, or nil when nothing
// matches.
func First(q Querier, selector string) (Element, error) {
	els, err := q.Query(selector)
	if err != nil || len(els) == 0 {
		return nil, err
	}
	return els[0], nil
}

// FirstVisible returns the first visible element matching selector, or nil.
func FirstVisible(q Querier, selector string) (Element, error) {
	els, err := q.Query(selector)
	if err != nil {
		return nil, err
	}
	for _, el := range els {
		if ok, err := el.IsVisible(); err == nil && ok {
			return el, nil
		}
	}
	return nil, nil
}

// TextOf returns the trimmed text of the first match, or "".
func TextOf(q Querier, selector string) string {
	el, err := First(q, selector)
	if err != nil || el == nil {
		return ""
	}
	text, err := el.Text()
	if err != nil {
		return ""
	}
	return text
}
