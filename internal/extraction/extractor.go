package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/williampepple1/ecoquery-scraper/internal/config"
	"github.com/williampepple1/ecoquery-scraper/internal/scraper"
	"github.com/williampepple1/ecoquery-scraper/pkg/models"
)

// ProductLabel names the product heading in sentinels
const ProductLabel = "Product name"

// NotFound is the sentinel for a section that could not be located
func NotFound(label string) string {
	return label + " not found"
}

// NotFoundAtParent is the sentinel for a traversal that ran out of ancestors at step
func NotFoundAtParent(label string, step int) string {
	return fmt.Sprintf("%s not found (parent %d)", label, step)
}

// Skipped is the sentinel for a probed section whose heading never appeared
func Skipped(label string) string {
	return label + " section skipped (timeout)"
}

// Extractor reads dataset values from a rendered page
type Extractor struct {
	Config       *config.ExtractionConfig
	PollInterval time.Duration
}

// NewExtractor creates a new data extractor
func NewExtractor(cfg *config.AppConfig) *Extractor {
	return &Extractor{
		Config:       &cfg.Extraction,
		PollInterval: cfg.Scraper.PollInterval,
	}
}

// Extract builds the record for id from a rendered snapshot. Fields with a
// probe are re-read from page once their heading shows up. The returned names
// are the fields that fell back to a sentinel.
func (e *Extractor) Extract(ctx context.Context, page scraper.Page, doc *goquery.Document, id int) (models.DatasetRecord, []string, error) {
	record := models.DatasetRecord{ID: id, ProductName: e.ProductName(doc)}

	var misses []string
	if record.ProductName == NotFound(ProductLabel) {
		misses = append(misses, "product_name")
	}

	for _, field := range e.Config.Fields {
		var value string
		if field.Probe > 0 {
			probed, found, err := e.probeSection(ctx, page, field)
			if err != nil {
				return models.DatasetRecord{}, nil, err
			}
			if found {
				value = e.Field(probed, field)
			} else {
				value = Skipped(field.Label)
			}
		} else {
			value = e.Field(doc, field)
		}

		if isSentinel(value, field.Label) {
			misses = append(misses, field.Name)
		}
		setField(&record, field.Name, value)
	}

	return record, misses, nil
}

// ProductName reads the product heading
func (e *Extractor) ProductName(doc *goquery.Document) string {
	heading := doc.Find(e.Config.ProductSelector).First()
	if heading.Length() == 0 {
		return NotFound(ProductLabel)
	}
	return strings.TrimSpace(heading.Text())
}

// Field locates the section for field and reads its value
func (e *Extractor) Field(doc *goquery.Document, field config.FieldConfig) string {
	heading, ok := e.FindSection(doc, field.Label)
	if !ok {
		return NotFound(field.Label)
	}
	return e.ReadSection(heading, field)
}

// FindSection returns the first section heading whose trimmed text equals label
func (e *Extractor) FindSection(doc *goquery.Document, label string) (*goquery.Selection, bool) {
	heading := doc.Find(e.Config.SectionSelector).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.TrimSpace(s.Text()) == label
	}).First()
	return heading, heading.Length() > 0
}

// ReadSection walks field.Depth ancestors up from heading and reads the value there.
// ModeText takes the first value element under the ancestor, ModeFull the ancestor's whole text.
func (e *Extractor) ReadSection(heading *goquery.Selection, field config.FieldConfig) string {
	ancestor := heading
	for step := 1; step <= field.Depth; step++ {
		ancestor = ancestor.Parent()
		if ancestor.Length() == 0 {
			return NotFoundAtParent(field.Label, step)
		}
	}

	if field.Mode == config.ModeFull {
		text := ancestor.Text()
		if text == "" {
			return NotFound(field.Label)
		}
		return strings.TrimSpace(text)
	}

	value := ancestor.Find(e.Config.ValueSelector).First()
	if value.Length() == 0 {
		return NotFound(field.Label)
	}
	return strings.TrimSpace(value.Text())
}

func (e *Extractor) probeSection(ctx context.Context, page scraper.Page, field config.FieldConfig) (*goquery.Document, bool, error) {
	probeCtx, cancel := context.WithTimeout(ctx, field.Probe)
	defer cancel()

	doc, err := waitFor(probeCtx, page, e.PollInterval, func(doc *goquery.Document) bool {
		_, ok := e.FindSection(doc, field.Label)
		return ok
	})
	switch {
	case err == nil:
		return doc, true, nil
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return nil, false, nil
	default:
		return nil, false, err
	}
}

func isSentinel(value, label string) bool {
	return value == NotFound(label) || value == Skipped(label) ||
		strings.HasPrefix(value, label+" not found (parent ")
}

func setField(record *models.DatasetRecord, name, value string) {
	switch name {
	case config.FieldGeography:
		record.Geography = value
	case config.FieldReferenceProduct:
		record.ReferenceProduct = value
	case config.FieldUnit:
		record.Unit = value
	case config.FieldDocumentation:
		record.Documentation = value
	}
}
