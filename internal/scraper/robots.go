package scraper

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

const (
	robotsCacheTTL     = 6 * time.Hour
	maxRobotsBodyBytes = 512 * 1024
)

// Policy is the site-access oracle consulted before any page load.
type Policy interface {
	IsAllowed(ctx context.Context, rawURL string) bool
}

// AllowAll is a Policy that permits everything.
type AllowAll struct{}

func (AllowAll) IsAllowed(context.Context, string) bool { return true }

// RobotsPolicy checks robots.txt with a per-host cache. Anything short of a
// parsed 2xx robots.txt (network error, 404, 5xx, garbage) permits access.
type RobotsPolicy struct {
	client    *http.Client
	userAgent string
	log       *zap.Logger

	mu    sync.Mutex
	cache map[string]robotsEntry
}

type robotsEntry struct {
	data      *robotstxt.RobotsData // nil = allow all
	fetchedAt time.Time
}

// NewRobotsPolicy returns a RobotsPolicy identifying itself as userAgent.
func NewRobotsPolicy(client *http.Client, userAgent string, log *zap.Logger) *RobotsPolicy {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RobotsPolicy{
		client:    client,
		userAgent: userAgent,
		log:       log.Named("robots"),
		cache:     make(map[string]robotsEntry),
	}
}

func (r *RobotsPolicy) IsAllowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		r.log.Warn("could not parse url for robots check, proceeding", zap.String("url", rawURL))
		return true
	}

	data := r.lookup(ctx, u)
	if data == nil {
		return true
	}
	path := u.EscapedPath()
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return data.TestAgent(path, r.userAgent)
}

func (r *RobotsPolicy) lookup(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	host := strings.ToLower(u.Host)

	r.mu.Lock()
	entry, ok := r.cache[host]
	r.mu.Unlock()
	if ok && time.Since(entry.fetchedAt) < robotsCacheTTL {
		return entry.data
	}

	scheme := u.Scheme
	if scheme == "" {
		scheme = "https"
	}
	data := r.fetch(ctx, scheme+"://"+host+"/robots.txt")

	r.mu.Lock()
	r.cache[host] = robotsEntry{data: data, fetchedAt: time.Now()}
	r.mu.Unlock()
	return data
}

func (r *RobotsPolicy) fetch(ctx context.Context, robotsURL string) *robotstxt.RobotsData {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, http.NoBody)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		r.log.Warn("could not fetch robots.txt, proceeding", zap.String("url", robotsURL), zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBodyBytes))
	if err != nil {
		return nil
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		r.log.Warn("unparseable robots.txt, proceeding", zap.String("url", robotsURL), zap.Error(err))
		return nil
	}
	return data
}
