// Package useragent rotates browser User-Agent strings across upstream
// fetches so no single identity dominates a scrape session.
package useragent

import (
	"crypto/rand"
	"math/big"
	"sync/atomic"
)

// DefaultPool covers current desktop browsers. The Chrome entries should
// stay in step with the TLS fingerprint profile the fetcher presents.
var DefaultPool = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:126.0) Gecko/20100101 Firefox/126.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.0.0",
}

// Pool hands out User-Agent strings round-robin or at random. Safe for
// concurrent use.
type Pool struct {
	agents []string
	cursor atomic.Uint64
}

// NewPool builds a pool over the given strings, falling back to
// DefaultPool when none are provided. The input slice is copied.
func NewPool(agents []string) *Pool {
	if len(agents) == 0 {
		agents = DefaultPool
	}
	owned := make([]string, len(agents))
	copy(owned, agents)
	return &Pool{agents: owned}
}

// GetSequential returns the next string in round-robin order.
func (p *Pool) GetSequential() string {
	if len(p.agents) == 0 {
		return ""
	}
	idx := p.cursor.Add(1) - 1
	return p.agents[idx%uint64(len(p.agents))]
}

// GetRandom returns a uniformly chosen string. If the randomness source
// fails it degrades to round-robin.
func (p *Pool) GetRandom() string {
	if len(p.agents) == 0 {
		return ""
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(p.agents))))
	if err != nil {
		return p.GetSequential()
	}
	return p.agents[n.Int64()]
}

// GetAll returns a copy of the pool's contents.
func (p *Pool) GetAll() []string {
	owned := make([]string, len(p.agents))
	copy(owned, p.agents)
	return owned
}
