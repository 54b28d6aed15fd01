package scraper

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
	"github.com/williampepple1/ecoquery-scraper/internal/config"
	"github.com/williampepple1/ecoquery-scraper/internal/proxy"
)

// BrowserSession drives one headless Chrome tab through chromedp
type BrowserSession struct {
	Config *config.BrowserConfig

	tabCtx      context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
}

// NewBrowserSession launches Chrome and opens the tab used for the whole run
func NewBrowserSession(cfg *config.BrowserConfig, proxies *proxy.Manager) (*BrowserSession, error) {
	// Configure browser options
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.UserAgent(cfg.UserAgent),
	)
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	proxyAddr, err := proxies.ServerAddr()
	if err != nil {
		return nil, err
	}
	if proxyAddr != "" {
		opts = append(opts, chromedp.ProxyServer(proxyAddr))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	// The first Run starts the browser; it must not carry a per-call deadline.
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	return &BrowserSession{
		Config:      cfg,
		tabCtx:      tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
	}, nil
}

// Navigate loads url in the tab
func (s *BrowserSession) Navigate(ctx context.Context, url string) error {
	runCtx, cancel := s.bind(ctx)
	defer cancel()

	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		return ErrNavigation{URL: url, Err: err}
	}
	return nil
}

// HTML returns the outer HTML of the document element
func (s *BrowserSession) HTML(ctx context.Context) (string, error) {
	runCtx, cancel := s.bind(ctx)
	defer cancel()

	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// Close shuts the browser down
func (s *BrowserSession) Close() error {
	err := chromedp.Cancel(s.tabCtx)
	s.cancelTab()
	s.cancelAlloc()
	return err
}

// bind derives a context from the tab that also ends when ctx ends.
// chromedp resolves the tab from the context, so caller contexts cannot be used directly.
func (s *BrowserSession) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancelRun := context.WithCancel(s.tabCtx)
	cancelDeadline := context.CancelFunc(func() {})
	if deadline, ok := ctx.Deadline(); ok {
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
	}
	stop := context.AfterFunc(ctx, cancelRun)

	return runCtx, func() {
		stop()
		cancelDeadline()
		cancelRun()
	}
}
