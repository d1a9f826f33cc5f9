package fetch

import (
	"context"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"

	"rental-finder/utils"
)

// BrowserFetcher renders pages in headless Chrome and returns the resulting
// document markup. One browser process is shared by all fetches; each fetch
// gets its own tab. The browser is launched on the first fetch.
type BrowserFetcher struct {
	allocCtx      context.Context
	cancel        context.CancelFunc
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	timeout       time.Duration
	retry         *utils.RetryConfig
	logger        *utils.Logger

	mu      sync.Mutex
	started bool
}

// NewBrowserFetcher starts the browser allocator. chromeBin may be empty, in
// which case the usual install locations are searched.
func NewBrowserFetcher(chromeBin string, timeout time.Duration, retry *utils.RetryConfig, logger *utils.Logger) *BrowserFetcher {
	bin := findChromeBinary(chromeBin)
	logger.Info("[fetch] Using browser binary: %q", bin)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.UserAgent(userAgent),
	)
	if bin != "" {
		opts = append(opts, chromedp.ExecPath(bin))
	}

	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	// suppress chromedp log noise
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	return &BrowserFetcher{
		allocCtx:      allocCtx,
		cancel:        cancel,
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
		timeout:       timeout,
		retry:         retry,
		logger:        logger,
	}
}

// startBrowser launches the shared browser. Tabs derived from browserCtx
// before this runs would each allocate their own process.
func (b *BrowserFetcher) startBrowser() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return nil
	}
	if err := chromedp.Run(b.browserCtx); err != nil {
		return eris.Wrap(err, "chromedp start browser")
	}
	b.started = true
	return nil
}

func (b *BrowserFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var html string

	err := b.retry.Do(ctx, "render-page", func() error {
		if err := b.startBrowser(); err != nil {
			return err
		}
		tabCtx, cancel := chromedp.NewContext(b.browserCtx)
		defer cancel()

		tabCtx, cancelTimeout := context.WithTimeout(tabCtx, b.timeout)
		defer cancelTimeout()
		stop := context.AfterFunc(ctx, cancelTimeout)
		defer stop()

		err := chromedp.Run(tabCtx,
			chromedp.Navigate(url),
			chromedp.WaitReady("body", chromedp.ByQuery),
			chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		)
		if err != nil {
			return eris.Wrap(err, "chromedp render")
		}
		return nil
	})
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	b.logger.Debug("[fetch] rendered %s (%d bytes)", url, len(html))
	return []byte(html), nil
}

// Close shuts the browser down.
func (b *BrowserFetcher) Close() {
	b.cancelBrowser()
	b.cancel()
}

// findChromeBinary locates a Chrome/Chromium binary.
func findChromeBinary(configured string) string {
	if configured != "" {
		return configured
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
