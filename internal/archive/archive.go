package archive

import (
	"context"
	"time"
)

// FetchRecord is the transcript of one upstream page fetch. Records exist
// for post-hoc debugging of parser drift and block diagnosis; the pipeline
// never reads them back during a search.
type FetchRecord struct {
	ID         string
	URL        string
	Method     string
	StatusCode int
	Headers    map[string][]string
	Body       []byte
	Duration   time.Duration
	Blocked    bool
	BlockSrc   string // e.g. "Cloudflare", "Akamai", "PerimeterX", "DataDome"
	CreatedAt  time.Time
	Error      string // non-empty if the fetch failed before an HTTP response
}

// Filter selects fetch records when querying the archive. URL matches any
// record whose URL contains it as a substring.
type Filter struct {
	URL     string
	Blocked *bool
	Since   *time.Time
	Limit   int
	Offset  int
}

// Backend stores and queries fetch transcripts.
type Backend interface {
	Save(ctx context.Context, rec *FetchRecord) error
	Query(ctx context.Context, filter Filter) ([]*FetchRecord, error)
	Close() error
}
