package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/williampepple1/ecoquery-scraper/internal/config"
	"github.com/williampepple1/ecoquery-scraper/internal/io"
	"github.com/williampepple1/ecoquery-scraper/internal/scraper"
	"github.com/williampepple1/ecoquery-scraper/internal/worker"
	"github.com/williampepple1/ecoquery-scraper/pkg/models"
)

func main() {
	configFile := flag.String("config", "", "Path to configuration file (YAML)")
	flag.Parse()

	if err := run(*configFile); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configFile string) error {
	appConfig := config.DefaultConfig()
	if configFile != "" {
		var err error
		appConfig, err = config.Load(configFile)
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
	}

	logger, err := newLogger(appConfig.Log)
	if err != nil {
		return err
	}
	logger = logger.With(slog.String("run_id", uuid.NewString()))
	slog.SetDefault(logger)

	if configFile != "" {
		slog.Info("loaded configuration", slog.String("file", configFile))
	} else {
		slog.Info("using default configuration (no config file provided)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return execute(ctx, appConfig, logger, scraper.New)
}

// sessionOpener starts the browsing session for a run
type sessionOpener func(cfg *config.AppConfig) (scraper.Session, error)

// execute drives one run: it prepares the output, opens a session, visits
// every target and prints the summary. The session is closed on every return path.
func execute(ctx context.Context, appConfig *config.AppConfig, logger *slog.Logger, open sessionOpener) error {
	targets, err := io.NewTargetReader(appConfig).GetTargets()
	if err != nil {
		return fmt.Errorf("reading targets: %w", err)
	}

	writer, err := io.NewCSVWriter(appConfig.IO.OutputPath())
	if err != nil {
		return fmt.Errorf("preparing output: %w", err)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			logger.Error("close writer", slog.Any("error", err))
		}
	}()
	if writer.Created() {
		logger.Info("output file does not exist, created with header", slog.String("path", writer.Path()))
	} else {
		logger.Info("output file already exists, appending", slog.String("path", writer.Path()))
	}

	logger.Info("starting scrape",
		slog.String("base_url", appConfig.Scraper.BaseURL),
		slog.Int("datasets", len(targets)),
		slog.String("engine", appConfig.Browser.Engine),
		slog.Int("max_retries", appConfig.Scraper.MaxRetries),
		slog.Duration("retry_delay", appConfig.Scraper.RetryDelay),
		slog.Duration("request_delay", appConfig.Scraper.RequestDelay),
	)

	session, err := open(appConfig)
	if err != nil {
		return fmt.Errorf("opening browser session: %w", err)
	}
	closeSession := func() {
		if session == nil {
			return
		}
		if err := session.Close(); err != nil {
			logger.Error("close browser session", slog.Any("error", err))
		}
		session = nil
	}
	defer closeSession()

	metrics := worker.NewMetrics()
	metricsServer := startMetricsServer(appConfig.Metrics.Addr, metrics)

	w := worker.New(appConfig, session, writer, metrics, logger)
	summary, runErr := w.Run(ctx, targets)

	closeSession()
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(summary, len(targets), writer.Path())
	return runErr
}

func startMetricsServer(addr string, metrics *worker.Metrics) *http.Server {
	if addr == "" {
		return nil
	}
	server := &http.Server{
		Addr:    addr,
		Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))
	return server
}

func printSummary(summary models.RunSummary, planned int, outputPath string) {
	if abs, err := filepath.Abs(outputPath); err == nil {
		outputPath = abs
	}

	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Scraping completed")
	fmt.Printf("  Datasets planned:    %d\n", planned)
	fmt.Printf("  Datasets attempted:  %d\n", summary.TotalAttempted)
	fmt.Printf("  Successfully scraped: %d\n", summary.SuccessCount)
	fmt.Printf("  Failed to scrape:    %d\n", summary.ErrorCount)
	fmt.Printf("  Success rate:        %.2f%%\n", summary.SuccessRate())
	fmt.Printf("  Output file:         %s\n", outputPath)
	fmt.Println(separator)
}

func newLogger(cfg config.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		if isTerminal(os.Stdout) {
			handler = slog.NewTextHandler(os.Stdout, opts)
		} else {
			handler = slog.NewJSONHandler(os.Stdout, opts)
		}
	}

	return slog.New(handler), nil
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
