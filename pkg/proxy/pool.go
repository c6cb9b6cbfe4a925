// Package proxy rotates outbound proxies and tracks their health so a
// flaky endpoint is benched instead of poisoning every fetch.
package proxy

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	defaultMaxFailures = 3
	defaultCooldown    = 5 * time.Minute
)

// ErrUnknownProxy is returned when a health mark addresses a URL the pool
// never handed out.
var ErrUnknownProxy = errors.New("proxy: not found in pool")

// endpoint tracks one proxy and its recent behavior.
type endpoint struct {
	url        *url.URL
	failures   int
	successes  int
	lastUsed   time.Time
	benched    bool
	benchUntil time.Time
}

// Config tunes the health policy.
type Config struct {
	// MaxFailures is how many consecutive failures bench a proxy.
	MaxFailures int
	// Cooldown is how long a benched proxy sits out.
	Cooldown time.Duration
}

// Pool hands out proxies round-robin, skipping benched ones until their
// cooldown expires. All methods are safe for concurrent use.
type Pool struct {
	mu          sync.Mutex
	endpoints   []*endpoint
	next        int
	maxFailures int
	cooldown    time.Duration
}

// NewPool builds an empty pool. Zero config fields take defaults.
func NewPool(cfg Config) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = defaultMaxFailures
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultCooldown
	}
	return &Pool{maxFailures: cfg.MaxFailures, cooldown: cfg.Cooldown}
}

// LoadFile adds one proxy URL per line. Blank lines and lines starting
// with '#' are skipped.
func (p *Pool) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("proxy: open list: %w", err)
	}
	defer f.Close()

	var raw []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		raw = append(raw, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("proxy: read list: %w", err)
	}

	return p.Add(raw...)
}

// Add registers proxy URLs. A missing scheme defaults to http.
func (p *Pool) Add(rawURLs ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, raw := range rawURLs {
		if !strings.Contains(raw, "://") {
			raw = "http://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("proxy: parse %q: %w", raw, err)
		}
		p.endpoints = append(p.endpoints, &endpoint{url: u})
	}
	return nil
}

// Next returns the next healthy proxy, reviving any whose cooldown has
// passed. It returns nil when the pool is empty or fully benched.
func (p *Pool) Next() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.endpoints) == 0 {
		return nil
	}

	now := time.Now()
	for tried := 0; tried < len(p.endpoints); tried++ {
		ep := p.endpoints[p.next]
		p.next = (p.next + 1) % len(p.endpoints)

		if ep.benched && now.After(ep.benchUntil) {
			ep.benched = false
			ep.failures = 0
		}
		if !ep.benched {
			ep.lastUsed = now
			return ep.url
		}
	}
	return nil
}

// MarkSuccess records a working request through the proxy, easing off
// its failure count.
func (p *Pool) MarkSuccess(proxyURL *url.URL) error {
	if proxyURL == nil {
		return errors.New("proxy: nil URL")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ep := p.findLocked(proxyURL)
	if ep == nil {
		return ErrUnknownProxy
	}

	ep.successes++
	if ep.failures > 0 {
		ep.failures--
	}
	return nil
}

// MarkFailure records a failed request through the proxy. Reaching the
// failure threshold benches it for the cooldown period.
func (p *Pool) MarkFailure(proxyURL *url.URL) error {
	if proxyURL == nil {
		return errors.New("proxy: nil URL")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ep := p.findLocked(proxyURL)
	if ep == nil {
		return ErrUnknownProxy
	}

	ep.failures++
	if ep.failures >= p.maxFailures {
		ep.benched = true
		ep.benchUntil = time.Now().Add(p.cooldown)
	}
	return nil
}

// findLocked matches an endpoint by URL string. Caller holds the lock.
func (p *Pool) findLocked(proxyURL *url.URL) *endpoint {
	target := proxyURL.String()
	for _, ep := range p.endpoints {
		if ep.url.String() == target {
			return ep
		}
	}
	return nil
}
