package extraction

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/williampepple1/ecoquery-scraper/internal/config"
	"github.com/williampepple1/ecoquery-scraper/internal/scraper"
)

// fakePage serves snapshots in order and repeats the last one.
type fakePage struct {
	mu        sync.Mutex
	snapshots []string
	err       error
	calls     int
}

func (p *fakePage) HTML(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if p.err != nil {
		return "", p.err
	}
	i := p.calls
	if i >= len(p.snapshots) {
		i = len(p.snapshots) - 1
	}
	p.calls++
	return p.snapshots[i], nil
}

func testConfig() *config.AppConfig {
	cfg := config.DefaultConfig()
	cfg.Scraper.PollInterval = 5 * time.Millisecond
	cfg.Scraper.Timeouts = config.TimeoutConfig{
		Navigation: 200 * time.Millisecond,
		Selector:   100 * time.Millisecond,
		ErrorProbe: 30 * time.Millisecond,
	}
	for i := range cfg.Extraction.Fields {
		if cfg.Extraction.Fields[i].Probe > 0 {
			cfg.Extraction.Fields[i].Probe = 50 * time.Millisecond
		}
	}
	return cfg
}

func section(label, value string) string {
	return `<section><div><div><h2 class="chakra-heading"> ` + label + ` </h2></div></div>` +
		`<p class="chakra-text">` + value + `</p><p class="chakra-text">ignored</p></section>`
}

func datasetPage(product string, sections ...string) string {
	return `<html><body><div class="chakra-stack"><h4 class="chakra-heading">` + product + `</h4>` +
		strings.Join(sections, "") + `</div></body></html>`
}

const errorPage = `<html><body><div class="chakra-stack"><h1 class="chakra-heading">Oh no... something went wrong</h1></div></body></html>`

const placeholderPage = `<html><body><div class="chakra-stack"><h4 class="chakra-heading">Dataset</h4></div></body></html>`

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return doc
}

func fieldByName(t *testing.T, cfg *config.AppConfig, name string) config.FieldConfig {
	t.Helper()
	for _, f := range cfg.Extraction.Fields {
		if f.Name == name {
			return f
		}
	}
	t.Fatalf("no field %q", name)
	return config.FieldConfig{}
}

func TestFieldReadsNestedValue(t *testing.T) {
	cfg := testConfig()
	e := NewExtractor(cfg)
	doc := mustDoc(t, datasetPage("steel", section("Geography", " GLO "), section("Unit", "kg")))

	if got := e.Field(doc, fieldByName(t, cfg, config.FieldGeography)); got != "GLO" {
		t.Fatalf("geography=%q", got)
	}
	if got := e.Field(doc, fieldByName(t, cfg, config.FieldUnit)); got != "kg" {
		t.Fatalf("unit=%q", got)
	}
}

func TestFieldSentinels(t *testing.T) {
	cfg := testConfig()
	e := NewExtractor(cfg)
	unit := fieldByName(t, cfg, config.FieldUnit)

	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "missing heading",
			html: datasetPage("steel", section("Geography", "GLO")),
			want: "Unit not found",
		},
		{
			name: "label must match exactly",
			html: datasetPage("steel", section("Units", "kg")),
			want: "Unit not found",
		},
		{
			name: "ancestors run out",
			html: `<html><body><h2 class="chakra-heading">Unit</h2></body></html>`,
			want: "Unit not found (parent 3)",
		},
		{
			name: "no value element",
			html: datasetPage("steel", `<section><div><div><h2 class="chakra-heading">Unit</h2></div></div><span>kg</span></section>`),
			want: "Unit not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Field(mustDoc(t, tt.html), unit); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDocumentationReadsWholeAncestor(t *testing.T) {
	cfg := testConfig()
	e := NewExtractor(cfg)
	doc := mustDoc(t, datasetPage("steel",
		`<section><div><div><h2 class="chakra-heading">Documentation</h2></div></div>`+
			`<p class="chakra-text">Includes casting, rolling</p><p>and finishing.</p></section>`))

	got := e.Field(doc, fieldByName(t, cfg, config.FieldDocumentation))
	if got != "DocumentationIncludes casting, rollingand finishing." {
		t.Fatalf("documentation=%q", got)
	}
}

func TestReadSectionDepthIsConfigurable(t *testing.T) {
	cfg := testConfig()
	e := NewExtractor(cfg)
	doc := mustDoc(t, datasetPage("steel",
		`<div><h2 class="chakra-heading">Unit</h2><p class="chakra-text">m3</p></div>`))

	heading, ok := e.FindSection(doc, "Unit")
	if !ok {
		t.Fatalf("heading not found")
	}
	field := config.FieldConfig{Name: config.FieldUnit, Label: "Unit", Depth: 1, Mode: config.ModeText}
	if got := e.ReadSection(heading, field); got != "m3" {
		t.Fatalf("depth 1 unit=%q", got)
	}
}

func TestExtract(t *testing.T) {
	cfg := testConfig()
	e := NewExtractor(cfg)
	html := datasetPage("market for steel",
		section("Reference Product", "steel, low-alloyed"),
		section("Unit", "kg"),
		section("Documentation", "Long text"),
	)
	page := &fakePage{snapshots: []string{html}}

	rec, misses, err := e.Extract(context.Background(), page, mustDoc(t, html), 42)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if rec.ID != 42 || rec.ProductName != "market for steel" {
		t.Fatalf("record=%+v", rec)
	}
	if rec.Geography != "Geography not found" {
		t.Fatalf("geography=%q", rec.Geography)
	}
	if rec.ReferenceProduct != "steel, low-alloyed" || rec.Unit != "kg" {
		t.Fatalf("record=%+v", rec)
	}
	if !strings.Contains(rec.Documentation, "Long text") {
		t.Fatalf("documentation=%q", rec.Documentation)
	}
	if len(misses) != 1 || misses[0] != config.FieldGeography {
		t.Fatalf("misses=%v", misses)
	}
}

func TestExtractSkipsDocumentationAfterProbe(t *testing.T) {
	cfg := testConfig()
	e := NewExtractor(cfg)
	html := datasetPage("market for steel", section("Unit", "kg"))
	page := &fakePage{snapshots: []string{html}}

	start := time.Now()
	rec, misses, err := e.Extract(context.Background(), page, mustDoc(t, html), 1)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if rec.Documentation != "Documentation section skipped (timeout)" {
		t.Fatalf("documentation=%q", rec.Documentation)
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Fatalf("probe returned before its bound")
	}
	if len(misses) != 3 {
		t.Fatalf("misses=%v, want geography, reference_product and documentation", misses)
	}
}

func TestExtractProbeWaitsForLateSection(t *testing.T) {
	cfg := testConfig()
	e := NewExtractor(cfg)
	early := datasetPage("market for steel", section("Unit", "kg"))
	late := datasetPage("market for steel", section("Unit", "kg"), section("Documentation", "Arrived late"))
	page := &fakePage{snapshots: []string{early, early, late}}

	rec, _, err := e.Extract(context.Background(), page, mustDoc(t, early), 1)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !strings.Contains(rec.Documentation, "Arrived late") {
		t.Fatalf("documentation=%q", rec.Documentation)
	}
}

func TestExtractPropagatesPageFault(t *testing.T) {
	cfg := testConfig()
	e := NewExtractor(cfg)
	html := datasetPage("market for steel")
	page := &fakePage{err: errors.New("target closed")}

	if _, _, err := e.Extract(context.Background(), page, mustDoc(t, html), 1); err == nil || !strings.Contains(err.Error(), "target closed") {
		t.Fatalf("expected page fault, got %v", err)
	}
}

func TestProductNameMissing(t *testing.T) {
	e := NewExtractor(testConfig())
	if got := e.ProductName(mustDoc(t, `<html><body></body></html>`)); got != "Product name not found" {
		t.Fatalf("product=%q", got)
	}
}

func TestClassify(t *testing.T) {
	rendered := datasetPage("market for steel")

	tests := []struct {
		name      string
		snapshots []string
		want      PageState
		wantErr   string
	}{
		{name: "rendered", snapshots: []string{rendered}, want: StateRendered},
		{name: "placeholder then rendered", snapshots: []string{placeholderPage, placeholderPage, rendered}, want: StateRendered},
		{name: "error page", snapshots: []string{errorPage}, want: StateErrorPage},
		{
			name:      "error marker other casing",
			snapshots: []string{strings.Replace(errorPage, "Oh no...", "Oh No", 1)},
			want:      StateErrorPage,
		},
		{
			name:      "placeholder forever",
			snapshots: []string{placeholderPage},
			want:      StateNotRendered,
			wantErr:   "timeout 200ms exceeded while waiting for rendered dataset",
		},
		{
			name:      "no container",
			snapshots: []string{`<html><body><h4 class="chakra-heading">steel</h4></body></html>`},
			want:      StateNotRendered,
			wantErr:   "waiting for .chakra-stack",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDetector(testConfig())
			state, doc, err := d.Classify(context.Background(), &fakePage{snapshots: tt.snapshots})
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				var timeout scraper.ErrTimeout
				if !errors.As(err, &timeout) {
					t.Fatalf("expected ErrTimeout, got %T", err)
				}
			} else if err != nil {
				t.Fatalf("classify: %v", err)
			}
			if state != tt.want {
				t.Fatalf("state=%s, want %s", state, tt.want)
			}
			if (doc != nil) != (state == StateRendered) {
				t.Fatalf("document should be returned only for rendered pages")
			}
		})
	}
}

func TestIsErrorPagePropagatesPageFault(t *testing.T) {
	d := NewDetector(testConfig())
	_, err := d.IsErrorPage(context.Background(), &fakePage{err: errors.New("session closed")})
	if err == nil || !strings.Contains(err.Error(), "session closed") {
		t.Fatalf("expected page fault, got %v", err)
	}
}

func TestIsErrorPageHonoursParentCancel(t *testing.T) {
	d := NewDetector(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := d.IsErrorPage(ctx, &fakePage{snapshots: []string{placeholderPage}}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancel, got %v", err)
	}
}
