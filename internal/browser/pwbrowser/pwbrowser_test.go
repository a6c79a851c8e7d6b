package pwbrowser_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/TRA3H/hunter/internal/browser"
	"github.com/TRA3H/hunter/internal/browser/pwbrowser"
)

// Requires an installed Chromium; run with HUNTER_PLAYWRIGHT_TESTS=1.
func TestLauncher_Integration(t *testing.T) {
	if os.Getenv("HUNTER_PLAYWRIGHT_TESTS") == "" {
		t.Skip("set HUNTER_PLAYWRIGHT_TESTS=1 to run against a real browser")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body>
			<label for="e">Email</label><input id="e" name="email">
			<select name="c"><option>One</option><option>Two</option></select>
		</body></html>`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	l := pwbrowser.NewLauncher(10*time.Second, zap.NewNop())
	sess, err := l.Launch(ctx, browser.LaunchOptions{Headless: true})
	require.NoError(t, err)
	defer sess.Close()

	page, err := sess.NewPage(ctx)
	require.NoError(t, err)
	require.NoError(t, page.Goto(ctx, srv.URL))

	email, err := browser.First(page, "[name='email']")
	require.NoError(t, err)
	require.NotNil(t, email)
	require.NoError(t, email.Fill("jane@example.com"))

	tag, err := email.TagName()
	require.NoError(t, err)
	assert.Equal(t, "input", tag)

	_, present, err := email.Attr("placeholder")
	require.NoError(t, err)
	assert.False(t, present)

	sel, _ := browser.First(page, "select")
	assert.NoError(t, sel.SelectOption("Two"))

	h, err := page.ScrollHeight()
	require.NoError(t, err)
	assert.Greater(t, h, 0)
}
