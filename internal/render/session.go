package render

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/chromedp/chromedp"
)

// Session is one exclusively-owned rendered-page context. It is created for
// a single adapter invocation and must be closed on every exit path.
type Session interface {
	// Navigate loads the URL and waits for the page's scripts to settle.
	Navigate(url string) error
	// Evaluate runs the JavaScript expression in the page and unmarshals
	// its result into out.
	Evaluate(expr string, out any) error
	// Close releases the browser tab and its resources.
	Close()
}

// Opener produces rendering sessions. Adapters that need script execution
// to populate listings take an Opener; everything else uses the plain page
// fetcher.
type Opener interface {
	Open(ctx context.Context) (Session, error)
}

// Browser is a chromedp-backed Opener sharing one exec allocator across
// sessions. Individual sessions get their own tab and are independent.
type Browser struct {
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	settleDelay time.Duration
}

// Config controls browser startup.
type Config struct {
	// BinaryPath overrides Chrome discovery. Empty means probe the usual
	// install locations and PATH.
	BinaryPath string
	// SettleDelay is how long Navigate waits after load for scripts to
	// populate the page. Defaults to 2s.
	SettleDelay time.Duration
	UserAgent   string
}

// NewBrowser starts a headless browser allocator. Call Close when the
// process shuts down.
func NewBrowser(cfg Config) *Browser {
	bin := cfg.BinaryPath
	if bin == "" {
		bin = findChromeBinary()
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	}
	delay := cfg.SettleDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(ua),
	)
	if bin != "" {
		opts = append(opts, chromedp.ExecPath(bin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	// Suppress chromedp log noise
	allocCtx, cancelSilent := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	return &Browser{
		allocCtx: allocCtx,
		cancelAlloc: func() {
			cancelSilent()
			cancelAlloc()
		},
		settleDelay: delay,
	}
}

// Open creates a fresh tab. The session is bound to ctx: cancelling ctx
// abandons any in-flight navigation.
func (b *Browser) Open(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	tabCtx, cancel := chromedp.NewContext(b.allocCtx)

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()

	return &chromeSession{ctx: tabCtx, cancel: cancel, done: done, settleDelay: b.settleDelay}, nil
}

// Close shuts the browser down.
func (b *Browser) Close() {
	b.cancelAlloc()
}

type chromeSession struct {
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
	settleDelay time.Duration
	closed      bool
}

func (s *chromeSession) Navigate(url string) error {
	runCtx, cancel := context.WithTimeout(s.ctx, 60*time.Second)
	defer cancel()

	err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.Sleep(s.settleDelay),
	)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (s *chromeSession) Evaluate(expr string, out any) error {
	runCtx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()

	if err := chromedp.Run(runCtx, chromedp.Evaluate(expr, out)); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	return nil
}

func (s *chromeSession) Close() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	s.cancel()
}

// findChromeBinary locates a Chrome/Chromium binary.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
