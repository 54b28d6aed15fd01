package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/williampepple1/ecoquery-scraper/internal/config"
	"github.com/williampepple1/ecoquery-scraper/internal/proxy"
)

// HTTPSession fetches pages without a browser; it only suits servers that
// deliver the dataset markup already rendered
type HTTPSession struct {
	Config    *config.BrowserConfig
	collector *colly.Collector
	timeout   time.Duration

	loaded bool
	body   []byte
}

// fetchResult is filled by the response callback of one request. An abandoned
// request keeps writing to its own result, never to the session.
type fetchResult struct {
	status int
	body   []byte
}

const fetchResultKey = "fetch_result"

// NewHTTPSession creates a colly-backed session
func NewHTTPSession(cfg *config.BrowserConfig, proxies *proxy.Manager, timeout time.Duration) (*HTTPSession, error) {
	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.ParseHTTPErrorResponse = true
	collector.SetRequestTimeout(timeout)

	proxyURL, err := proxies.GetProxyURL()
	if err != nil {
		return nil, err
	}
	if proxyURL != nil {
		if err := collector.SetProxy(proxyURL.String()); err != nil {
			return nil, fmt.Errorf("set proxy: %w", err)
		}
	}

	s := &HTTPSession{
		Config:    cfg,
		collector: collector,
		timeout:   timeout,
	}
	collector.OnResponse(func(r *colly.Response) {
		if res, ok := r.Ctx.GetAny(fetchResultKey).(*fetchResult); ok {
			res.status = r.StatusCode
			res.body = r.Body
		}
	})
	return s, nil
}

// Navigate fetches url; a non-2xx answer is a navigation failure.
// The request runs in the background so that ctx ending returns at once.
func (s *HTTPSession) Navigate(ctx context.Context, url string) error {
	s.loaded = false
	s.body = nil

	if err := ctx.Err(); err != nil {
		return ErrNavigation{URL: url, Err: err}
	}

	timeout := s.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	s.collector.SetRequestTimeout(timeout)

	res := &fetchResult{}
	reqCtx := colly.NewContext()
	reqCtx.Put(fetchResultKey, res)

	done := make(chan error, 1)
	go func() {
		done <- s.collector.Request(http.MethodGet, url, nil, reqCtx, nil)
	}()

	var err error
	select {
	case <-ctx.Done():
		return ErrNavigation{URL: url, Err: ctx.Err()}
	case err = <-done:
	}

	if err != nil {
		var netErr interface{ Timeout() bool }
		switch {
		case ctx.Err() != nil:
			err = fmt.Errorf("%w: %v", ctx.Err(), err)
		case errors.As(err, &netErr) && netErr.Timeout():
			err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		return ErrNavigation{URL: url, Err: err}
	}
	if res.status < 200 || res.status > 299 {
		return ErrNavigation{URL: url, Err: ErrStatus{Code: res.status}}
	}
	s.body = res.body
	s.loaded = true
	return nil
}

// HTML returns the body of the last successful fetch
func (s *HTTPSession) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !s.loaded {
		return "", ErrNoPage
	}
	return string(s.body), nil
}

// Close is a no-op; the collector holds no process
func (s *HTTPSession) Close() error {
	return nil
}
