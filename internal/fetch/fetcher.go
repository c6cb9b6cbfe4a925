package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/carsift/carsift/internal/archive"
	"github.com/carsift/carsift/internal/bypass"
	"github.com/carsift/carsift/internal/fingerprint"
	"github.com/carsift/carsift/internal/metrics"
	"github.com/carsift/carsift/pkg/httpclient"
	"github.com/carsift/carsift/pkg/proxy"
	"github.com/carsift/carsift/pkg/useragent"
	"github.com/google/uuid"
)

type contextKey string

const proxyKey contextKey = "proxy_url"

// PageFetcher is the capability handed to source adapters that retrieve
// static markup. The returned record always carries the HTTP outcome; a
// transport-level failure is reported in the record's Error field, not as a
// Go error.
type PageFetcher interface {
	Fetch(ctx context.Context, targetURL string) (*archive.FetchRecord, error)
}

// Config configures a Fetcher.
type Config struct {
	Timeout      time.Duration
	MaxRedirects int
	UseCookieJar bool
	ProxyPool    *proxy.Pool
	UAPool       *useragent.Pool
	Fingerprint  fingerprint.Profile
	// Proxy resolves the egress proxy for requests the rotating pool has
	// not pinned one to. Defaults to http.ProxyFromEnvironment, which
	// already exempts loopback hosts.
	Proxy func(*http.Request) (*url.URL, error)
	// Archive optionally retains every fetch transcript for diagnostics.
	Archive archive.Backend
}

// Fetcher performs single URL fetches with a browser-like TLS fingerprint,
// rotating user agents, and optional proxy rotation. One Fetcher is shared
// by all static-markup adapters; holding a single client across requests
// lets cookie jars (if configured) persist for the lifetime of the Fetcher.
type Fetcher struct {
	config    Config
	client    *httpclient.Client
	transport http.RoundTripper
}

var _ PageFetcher = (*Fetcher)(nil)

// NewFetcher initializes a new Fetcher with the given configuration.
func NewFetcher(cfg Config) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil)
	}
	if string(cfg.Fingerprint) == "" {
		cfg.Fingerprint = fingerprint.ProfileChrome
	}
	if cfg.Proxy == nil {
		cfg.Proxy = http.ProxyFromEnvironment
	}

	// One transport per fetcher allows connection pooling. Per-request proxy
	// rotation is injected through the request context because mutating
	// Transport.Proxy concurrently is not safe.
	proxyFunc := func(req *http.Request) (*url.URL, error) {
		if val := req.Context().Value(proxyKey); val != nil {
			if u, ok := val.(*url.URL); ok {
				return u, nil
			}
		}
		return cfg.Proxy(req)
	}

	transport, err := fingerprint.Transport(cfg.Fingerprint, proxyFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to setup transport: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: cfg.UseCookieJar,
		Transport:    transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Fetcher{
		config:    cfg,
		client:    client,
		transport: transport,
	}, nil
}

// Fetch executes a GET request to the target URL, tracking the duration,
// running block detection, and capturing the response into an
// archive.FetchRecord. The record is archived when a backend is configured.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) (*archive.FetchRecord, error) {
	start := time.Now()

	rec := &archive.FetchRecord{
		ID:        uuid.New().String(),
		URL:       targetURL,
		Method:    http.MethodGet,
		CreatedAt: start.UTC(),
	}

	var activeProxy *url.URL
	if f.config.ProxyPool != nil {
		activeProxy = f.config.ProxyPool.Next()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		rec.Error = fmt.Sprintf("failed to create request: %v", err)
		rec.Duration = time.Since(start)
		return f.finish(ctx, rec), nil
	}

	if activeProxy != nil {
		req = req.WithContext(context.WithValue(req.Context(), proxyKey, activeProxy))
	}

	req.Header.Set("User-Agent", f.config.UAPool.GetSequential())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-GB,en;q=0.5")

	resp, err := f.client.Do(req.Context(), req)
	if err != nil {
		if activeProxy != nil {
			_ = f.config.ProxyPool.MarkFailure(activeProxy)
		}
		rec.Error = fmt.Sprintf("request failed: %v", err)
		rec.Duration = time.Since(start)
		return f.finish(ctx, rec), nil
	}
	defer resp.Body.Close()

	if activeProxy != nil {
		_ = f.config.ProxyPool.MarkSuccess(activeProxy)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		rec.Error = fmt.Sprintf("failed to read body: %v", err)
	}

	rec.StatusCode = resp.StatusCode
	rec.Headers = resp.Header
	rec.Body = body
	rec.Duration = time.Since(start)

	// Run detection to identify if we were challenged
	bypass.Analyze(rec, bypass.DefaultDetectors())

	return f.finish(ctx, rec), nil
}

// finish archives the record and updates metrics before handing it back.
func (f *Fetcher) finish(ctx context.Context, rec *archive.FetchRecord) *archive.FetchRecord {
	domain := ""
	if u, err := url.Parse(rec.URL); err == nil {
		domain = u.Hostname()
	}
	metrics.RecordFetch(domain, rec)

	if f.config.Archive != nil {
		// Archiving is best-effort; the search must not fail because
		// diagnostics could not be written.
		_ = f.config.Archive.Save(ctx, rec)
	}
	return rec
}
