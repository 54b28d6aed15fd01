package extraction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/williampepple1/ecoquery-scraper/internal/scraper"
)

// Snapshot parses the current DOM of page
func Snapshot(ctx context.Context, page scraper.Page) (*goquery.Document, error) {
	html, err := page.HTML(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("read page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return doc, nil
}

// waitFor snapshots page every interval until match accepts a snapshot or ctx ends
func waitFor(ctx context.Context, page scraper.Page, interval time.Duration, match func(*goquery.Document) bool) (*goquery.Document, error) {
	for {
		doc, err := Snapshot(ctx, page)
		if err != nil {
			return nil, err
		}
		if match(doc) {
			return doc, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}
