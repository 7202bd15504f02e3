// Package taxonomy fetches the entity type catalogue from the annotation
// wiki and indexes it for the entity picker.
package taxonomy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Index groups data types by parent path segment.
type Index struct {
	DataTypes map[string][]string `json:"dataTypes"`
	SubTypes  map[string]string   `json:"subTypes"`
	Metadata  map[string]DataType `json:"metadata"`
}

// Build indexes types. A type whose path has more than one segment is a
// subtype of its first segment.
func Build(types []DataType) *Index {
	idx := &Index{
		DataTypes: make(map[string][]string),
		SubTypes:  make(map[string]string),
		Metadata:  make(map[string]DataType),
	}
	for _, dt := range types {
		parent, child, _ := strings.Cut(dt.Path, ":")
		if _, ok := idx.DataTypes[parent]; !ok {
			idx.DataTypes[parent] = []string{}
		}
		if child != "" {
			idx.SubTypes[dt.ID] = parent
			idx.DataTypes[parent] = append(idx.DataTypes[parent], dt.ID)
		}
		idx.Metadata[dt.ID] = dt
	}
	return idx
}

// Config configures a Client.
type Config struct {
	BaseURL     string
	IndexPath   string
	Concurrency int
	CacheTTL    time.Duration
	HTTPClient  *http.Client
	Log         *slog.Logger
}

const defaultFetchTimeout = 2 * time.Minute

// Client reads the wiki. The built index is cached for CacheTTL and
// concurrent refreshes share one fetch.
type Client struct {
	base       *url.URL
	indexPath  string
	limit      int
	ttl        time.Duration
	httpClient *http.Client
	log        *slog.Logger
	backoff    func(attempt int) time.Duration

	fetchTimeout time.Duration

	group     singleflight.Group
	mu        sync.Mutex
	cached    *Index
	fetchedAt time.Time
}

func NewClient(cfg Config) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid taxonomy base url %q", cfg.BaseURL)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Client{
		base:       base,
		indexPath:  cfg.IndexPath,
		limit:      cfg.Concurrency,
		ttl:        cfg.CacheTTL,
		httpClient: cfg.HTTPClient,
		log:        cfg.Log,
		backoff:    Backoff,

		fetchTimeout: defaultFetchTimeout,
	}, nil
}

// DataTypes returns the cached index, fetching it when missing or expired.
// The shared fetch outlives the caller that started it, bounded by
// fetchTimeout. A caller whose ctx ends returns early with ctx.Err().
func (c *Client) DataTypes(ctx context.Context) (*Index, error) {
	c.mu.Lock()
	if c.cached != nil && time.Since(c.fetchedAt) < c.ttl {
		idx := c.cached
		c.mu.Unlock()
		return idx, nil
	}
	c.mu.Unlock()

	ch := c.group.DoChan("datatypes", func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()
		idx, err := c.fetch(fctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cached, c.fetchedAt = idx, time.Now()
		c.mu.Unlock()
		return idx, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Index), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate drops the cached index.
func (c *Client) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cached = nil
}

func (c *Client) fetch(ctx context.Context) (*Index, error) {
	start := time.Now()
	body, err := c.get(ctx, c.resolve(c.indexPath))
	if err != nil {
		return nil, fmt.Errorf("fetch index: %w", err)
	}
	links, err := ExtractLinks(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	types := make([]DataType, len(links))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.limit)
	for i, href := range links {
		g.Go(func() error {
			u := c.resolve(href)
			page, err := c.get(gctx, u)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", u, err)
			}
			dt, err := ParseDataType(bytes.NewReader(page))
			if err != nil {
				return fmt.Errorf("%s: %w", u, err)
			}
			dt.URL = u
			types[i] = dt
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	c.log.Info("taxonomy fetched", "types", len(types), "duration_ms", time.Since(start).Milliseconds())
	return Build(types), nil
}

func (c *Client) resolve(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return c.base.String() + ref
	}
	return c.base.ResolveReference(u).String()
}

// get fetches u, retrying transient failures with backoff.
func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoff(attempt - 1)
			c.log.Warn("retrying taxonomy fetch", "url", u, "attempt", attempt, "backoff", wait)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
		body, err := c.getOnce(ctx, u)
		if err == nil {
			return body, nil
		}
		if !IsRetryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) getOnce(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("taxonomy wiki: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &RetryableError{StatusCode: resp.StatusCode, URL: u}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("taxonomy wiki status %d for %s", resp.StatusCode, u)
	}
	return body, nil
}
