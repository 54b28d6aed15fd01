package scraper

import (
	"context"
	"fmt"

	"github.com/williampepple1/ecoquery-scraper/internal/config"
	"github.com/williampepple1/ecoquery-scraper/internal/proxy"
)

// Page is a read-only view of the currently loaded document
type Page interface {
	// HTML returns a snapshot of the rendered DOM.
	HTML(ctx context.Context) (string, error)
}

// Session is a single browsing tab driven strictly sequentially
type Session interface {
	Page
	// Navigate loads url; ctx bounds the whole load.
	Navigate(ctx context.Context, url string) error
	// Close releases the tab and any browser process behind it.
	Close() error
}

// New opens a session for the configured engine
func New(cfg *config.AppConfig) (Session, error) {
	proxies := proxy.NewManager(&cfg.Proxies)

	var (
		session Session
		err     error
	)
	switch cfg.Browser.Engine {
	case config.EngineChromedp:
		session, err = NewBrowserSession(&cfg.Browser, proxies)
	case config.EngineRod:
		session, err = NewRodSession(&cfg.Browser, proxies)
	case config.EngineHTTP:
		session, err = NewHTTPSession(&cfg.Browser, proxies, cfg.Scraper.Timeouts.Navigation)
	default:
		return nil, fmt.Errorf("unsupported engine: %s", cfg.Browser.Engine)
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}
