package scraper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/williampepple1/ecoquery-scraper/internal/config"
	"github.com/williampepple1/ecoquery-scraper/internal/proxy"
)

// RodSession drives one Chromium tab through go-rod
type RodSession struct {
	Config *config.BrowserConfig

	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
}

// NewRodSession launches Chromium and opens the tab used for the whole run
func NewRodSession(cfg *config.BrowserConfig, proxies *proxy.Manager) (*RodSession, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)
	if cfg.ExecPath != "" {
		l = l.Bin(cfg.ExecPath)
	}

	proxyAddr, err := proxies.ServerAddr()
	if err != nil {
		return nil, err
	}
	if proxyAddr != "" {
		l = l.Proxy(proxyAddr)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	slog.Debug("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect to chromium: %w", err)
	}

	s := &RodSession{Config: cfg, launcher: l, browser: browser}
	if err := s.openPage(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *RodSession) openPage() error {
	page, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return fmt.Errorf("open tab: %w", err)
	}
	s.page = page

	if s.Config.Stealth {
		if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", err)
		}
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: s.Config.UserAgent}); err != nil {
		return fmt.Errorf("set user agent: %w", err)
	}
	return nil
}

// Navigate loads url and waits for the load event
func (s *RodSession) Navigate(ctx context.Context, url string) error {
	p := s.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return ErrNavigation{URL: url, Err: err}
	}
	if err := p.WaitLoad(); err != nil {
		return ErrNavigation{URL: url, Err: err}
	}
	return nil
}

// HTML returns the outer HTML of the document
func (s *RodSession) HTML(ctx context.Context) (string, error) {
	return s.page.Context(ctx).HTML()
}

// Close closes the browser and kills the launched process
func (s *RodSession) Close() error {
	err := s.browser.Close()
	s.launcher.Kill()
	s.launcher.Cleanup()
	return err
}
