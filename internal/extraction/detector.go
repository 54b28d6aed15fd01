package extraction

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/williampepple1/ecoquery-scraper/internal/config"
	"github.com/williampepple1/ecoquery-scraper/internal/scraper"
)

// PageState is the classification of a loaded dataset page
type PageState int

const (
	StateNotRendered PageState = iota
	StateErrorPage
	StateRendered
)

func (s PageState) String() string {
	switch s {
	case StateErrorPage:
		return "error_page"
	case StateRendered:
		return "rendered"
	default:
		return "not_rendered"
	}
}

// Detector decides whether a loaded page is the site's error variant or real data.
// It only reads the DOM.
type Detector struct {
	Config       *config.ExtractionConfig
	Timeouts     config.TimeoutConfig
	PollInterval time.Duration
}

// NewDetector creates a detector from the application config
func NewDetector(cfg *config.AppConfig) *Detector {
	return &Detector{
		Config:       &cfg.Extraction,
		Timeouts:     cfg.Scraper.Timeouts,
		PollInterval: cfg.Scraper.PollInterval,
	}
}

// Classify waits for the page container, probes for the error marker and then
// waits for rendered content. The returned document is set only for StateRendered.
func (d *Detector) Classify(ctx context.Context, page scraper.Page) (PageState, *goquery.Document, error) {
	if err := d.WaitContainer(ctx, page); err != nil {
		return StateNotRendered, nil, err
	}

	isError, err := d.IsErrorPage(ctx, page)
	if err != nil {
		return StateNotRendered, nil, err
	}
	if isError {
		return StateErrorPage, nil, nil
	}

	doc, err := d.WaitRendered(ctx, page)
	if err != nil {
		return StateNotRendered, nil, err
	}
	return StateRendered, doc, nil
}

// WaitContainer waits for the page layout container, bounded by the selector timeout
func (d *Detector) WaitContainer(ctx context.Context, page scraper.Page) error {
	waitCtx, cancel := context.WithTimeout(ctx, d.Timeouts.Selector)
	defer cancel()

	_, err := waitFor(waitCtx, page, d.PollInterval, func(doc *goquery.Document) bool {
		return doc.Find(d.Config.ContainerSelector).Length() > 0
	})
	return scraper.WrapTimeout(err, "waiting for "+d.Config.ContainerSelector, d.Timeouts.Selector)
}

// IsErrorPage looks for the error marker for at most the error probe timeout.
// Running out of time means no marker.
func (d *Detector) IsErrorPage(ctx context.Context, page scraper.Page) (bool, error) {
	probeCtx, cancel := context.WithTimeout(ctx, d.Timeouts.ErrorProbe)
	defer cancel()

	_, err := waitFor(probeCtx, page, d.PollInterval, d.hasErrorMarker)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return false, nil
	default:
		return false, err
	}
}

// WaitRendered waits until the product heading holds real text, bounded by the navigation timeout
func (d *Detector) WaitRendered(ctx context.Context, page scraper.Page) (*goquery.Document, error) {
	waitCtx, cancel := context.WithTimeout(ctx, d.Timeouts.Navigation)
	defer cancel()

	doc, err := waitFor(waitCtx, page, d.PollInterval, d.isRendered)
	if err != nil {
		return nil, scraper.WrapTimeout(err, "waiting for rendered dataset", d.Timeouts.Navigation)
	}
	return doc, nil
}

func (d *Detector) hasErrorMarker(doc *goquery.Document) bool {
	marker := strings.ToLower(d.Config.ErrorMarker)
	found := false
	doc.Find(d.Config.ErrorSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		found = strings.Contains(strings.ToLower(s.Text()), marker)
		return !found
	})
	return found
}

func (d *Detector) isRendered(doc *goquery.Document) bool {
	heading := doc.Find(d.Config.ProductSelector).First()
	if heading.Length() == 0 {
		return false
	}
	text := strings.TrimSpace(heading.Text())
	return text != "" && text != d.Config.Placeholder
}
