package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/williampepple1/ecoquery-scraper/internal/config"
	"github.com/williampepple1/ecoquery-scraper/internal/scraper"
)

const renderedHTML = `<html><body><div class="chakra-stack">` +
	`<h4 class="chakra-heading">transport, freight, lorry</h4>` +
	`<section><div><div><h2 class="chakra-heading">Geography</h2></div></div><p class="chakra-text">RER</p></section>` +
	`<section><div><div><h2 class="chakra-heading">Reference Product</h2></div></div><p class="chakra-text">transport, freight, lorry</p></section>` +
	`<section><div><div><h2 class="chakra-heading">Unit</h2></div></div><p class="chakra-text">tkm</p></section>` +
	`<section><div><div><h2 class="chakra-heading">Documentation</h2></div></div><p class="chakra-text">Average lorry fleet</p></section>` +
	`</div></body></html>`

const errorHTML = `<html><body><div class="chakra-stack"><h1 class="chakra-heading">Oh no... something went wrong</h1></div></body></html>`

type stubSession struct {
	closed int
}

func (s *stubSession) Navigate(ctx context.Context, url string) error {
	return scraper.ErrNavigation{URL: url, Err: errors.New("unreachable")}
}

func (s *stubSession) HTML(ctx context.Context) (string, error) {
	return "", scraper.ErrNoPage
}

func (s *stubSession) Close() error {
	s.closed++
	return nil
}

func testConfig(t *testing.T, baseURL string, endID int) *config.AppConfig {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Scraper.BaseURL = baseURL
	cfg.Scraper.StartID = 1
	cfg.Scraper.EndID = endID
	cfg.Scraper.RequestDelay = 0
	cfg.Scraper.PollInterval = 5 * time.Millisecond
	cfg.Scraper.Timeouts = config.TimeoutConfig{
		Navigation: 2 * time.Second,
		Selector:   500 * time.Millisecond,
		ErrorProbe: 50 * time.Millisecond,
	}
	for i := range cfg.Extraction.Fields {
		if cfg.Extraction.Fields[i].Probe > 0 {
			cfg.Extraction.Fields[i].Probe = 200 * time.Millisecond
		}
	}
	cfg.Browser.Engine = config.EngineHTTP
	cfg.IO.OutputDir = filepath.Join(t.TempDir(), "output")
	return cfg
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	return rows
}

func TestExecuteCompletesDespitePerIDErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Path {
		case "/dataset/1":
			fmt.Fprint(w, renderedHTML)
		case "/dataset/2":
			fmt.Fprint(w, errorHTML)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL+"/dataset", 3)
	if err := execute(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), scraper.New); err != nil {
		t.Fatalf("run with per-ID errors should succeed, got %v", err)
	}

	rows := readRows(t, cfg.IO.OutputPath())
	if len(rows) != 4 {
		t.Fatalf("rows=%d, want header plus 3", len(rows))
	}
	if strings.Join(rows[0], ",") != "ID,Product Name,Geography,Reference Product,Unit,Documentation" {
		t.Fatalf("header=%q", rows[0])
	}
	if got := rows[1]; got[1] != "transport, freight, lorry" || got[2] != "RER" || got[4] != "tkm" ||
		!strings.Contains(got[5], "Average lorry fleet") {
		t.Fatalf("row 1=%q", got)
	}
	if rows[2][1] != "Error: Error page detected" {
		t.Fatalf("row 2=%q", rows[2])
	}
	if !strings.HasPrefix(rows[3][1], "Error: ") || !strings.Contains(rows[3][1], "unexpected status 404") {
		t.Fatalf("row 3=%q", rows[3])
	}
}

func TestExecuteClosesSessionWhenCanceled(t *testing.T) {
	cfg := testConfig(t, "http://example.test/dataset", 5)
	session := &stubSession{}
	open := func(*config.AppConfig) (scraper.Session, error) { return session, nil }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := execute(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), open)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled error, got %v", err)
	}
	if session.closed != 1 {
		t.Fatalf("session closed %d times, want 1", session.closed)
	}
	if rows := readRows(t, cfg.IO.OutputPath()); len(rows) != 1 {
		t.Fatalf("rows=%d, want header only", len(rows))
	}
}

func TestExecuteSessionOpenFailure(t *testing.T) {
	cfg := testConfig(t, "http://example.test/dataset", 2)
	open := func(*config.AppConfig) (scraper.Session, error) {
		return nil, errors.New("chrome not found")
	}

	err := execute(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), open)
	if err == nil || !strings.Contains(err.Error(), "opening browser session") {
		t.Fatalf("expected session error, got %v", err)
	}
}

func TestExecuteUnwritableOutput(t *testing.T) {
	cfg := testConfig(t, "http://example.test/dataset", 2)
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	cfg.IO.OutputDir = blocker

	opened := false
	open := func(*config.AppConfig) (scraper.Session, error) {
		opened = true
		return &stubSession{}, nil
	}

	err := execute(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), open)
	if err == nil || !strings.Contains(err.Error(), "preparing output") {
		t.Fatalf("expected output error, got %v", err)
	}
	if opened {
		t.Fatalf("session should not open when the output cannot be prepared")
	}
}
