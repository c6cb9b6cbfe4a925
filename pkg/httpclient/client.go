// Package httpclient wraps net/http with the knobs scraping traffic needs:
// bounded redirects, optional cookie persistence, and a pluggable transport
// for proxying or TLS fingerprinting.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"
)

const defaultTimeout = 30 * time.Second

// Config controls how the client is built.
type Config struct {
	// Timeout bounds the whole request including body read. Zero means
	// defaultTimeout.
	Timeout time.Duration
	// MaxRedirects caps how many redirects are followed. A negative value
	// disables following entirely and returns the redirect response as-is.
	MaxRedirects int
	// UseCookieJar keeps cookies across requests, which some upstreams
	// require between the challenge page and the real content.
	UseCookieJar bool
	// Transport overrides the default round tripper.
	Transport http.RoundTripper
}

// Client is an http.Client with a context-first Do.
type Client struct {
	*http.Client
}

// New builds a client from cfg.
func New(cfg Config) (*Client, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	inner := &http.Client{Timeout: timeout}

	if cfg.MaxRedirects < 0 {
		inner.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	} else {
		limit := cfg.MaxRedirects
		inner.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= limit {
				return fmt.Errorf("httpclient: stopped after %d redirects", limit)
			}
			return nil
		}
	}

	if cfg.UseCookieJar {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("httpclient: cookie jar: %w", err)
		}
		inner.Jar = jar
	}

	if cfg.Transport != nil {
		inner.Transport = cfg.Transport
	}

	return &Client{Client: inner}, nil
}

// Do sends req under ctx. The request is cloned so cancellation applies
// even when the caller built it without a context.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if ctx == nil {
		return nil, errors.New("httpclient: nil context")
	}

	resp, err := c.Client.Do(req.Clone(ctx))
	if err != nil {
		return nil, fmt.Errorf("httpclient: %w", err)
	}
	return resp, nil
}
