package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/williampepple1/ecoquery-scraper/internal/config"
	"github.com/williampepple1/ecoquery-scraper/internal/extraction"
	"github.com/williampepple1/ecoquery-scraper/internal/io"
	"github.com/williampepple1/ecoquery-scraper/internal/scraper"
	"github.com/williampepple1/ecoquery-scraper/pkg/models"
)

// RecordWriter persists each record as soon as it is built
type RecordWriter interface {
	Write(record models.DatasetRecord) error
}

// Worker visits dataset targets one at a time through a single session
type Worker struct {
	Config    *config.AppConfig
	Session   scraper.Session
	Detector  *extraction.Detector
	Extractor *extraction.Extractor
	Writer    RecordWriter
	Metrics   *Metrics
	Logger    *slog.Logger

	// Sleep waits out the request delay; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// New creates a worker wired to session and writer
func New(cfg *config.AppConfig, session scraper.Session, writer RecordWriter, metrics *Metrics, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		Config:    cfg,
		Session:   session,
		Detector:  extraction.NewDetector(cfg),
		Extractor: extraction.NewExtractor(cfg),
		Writer:    writer,
		Metrics:   metrics,
		Logger:    logger,
		Sleep:     sleepContext,
	}
}

// Run processes targets in order and writes exactly one record per target.
// Page failures become error records; only a write failure or ctx ending stops the run.
func (w *Worker) Run(ctx context.Context, targets []io.Target) (models.RunSummary, error) {
	var summary models.RunSummary

	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		record, outcome := w.process(ctx, target)
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		if err := w.Writer.Write(record); err != nil {
			return summary, fmt.Errorf("record %d: %w", target.ID, err)
		}
		summary.Record(outcome)
		w.Metrics.IncRecord(outcome)

		if err := w.Sleep(ctx, w.Config.Scraper.RequestDelay); err != nil {
			return summary, err
		}
	}

	return summary, nil
}

// process runs one target through navigation, detection and extraction.
// Every failure, panics included, is turned into a fault record here.
func (w *Worker) process(ctx context.Context, target io.Target) (record models.DatasetRecord, outcome models.Outcome) {
	logger := w.Logger.With(slog.Int("id", target.ID))
	start := time.Now()
	defer func() {
		w.Metrics.ObserveDuration(time.Since(start))
	}()
	defer func() {
		if r := recover(); r != nil {
			record, outcome = w.fault(logger, target, fmt.Errorf("panic: %v", r))
		}
	}()

	logger.Info("processing dataset", slog.String("url", target.URL))

	navTimeout := w.Config.Scraper.Timeouts.Navigation
	navCtx, cancel := context.WithTimeout(ctx, navTimeout)
	err := w.Session.Navigate(navCtx, target.URL)
	cancel()
	if err != nil {
		return w.fault(logger, target, scraper.WrapTimeout(err, "navigating to "+target.URL, navTimeout))
	}

	state, doc, err := w.Detector.Classify(ctx, w.Session)
	if err != nil {
		return w.fault(logger, target, err)
	}
	if state == extraction.StateErrorPage {
		logger.Warn("error page detected, skipping dataset")
		return models.ErrorPageRecord(target.ID), models.OutcomeErrorPage
	}

	record, misses, err := w.Extractor.Extract(ctx, w.Session, doc, target.ID)
	if err != nil {
		return w.fault(logger, target, err)
	}
	for _, field := range misses {
		w.Metrics.IncFieldMiss(field)
	}

	logger.Info("extracted dataset",
		slog.String("product_name", record.ProductName),
		slog.String("geography", record.Geography),
		slog.String("reference_product", record.ReferenceProduct),
		slog.String("unit", record.Unit),
		slog.String("documentation", truncate(record.Documentation, 100)),
	)
	return record, models.OutcomeSuccess
}

func (w *Worker) fault(logger *slog.Logger, target io.Target, err error) (models.DatasetRecord, models.Outcome) {
	errorType := scraper.ErrorTypeLabel(err)
	logger.Error("dataset failed", slog.String("error_type", errorType), slog.Any("error", err))
	w.Metrics.IncFault(errorType)
	return models.FaultRecord(target.ID, err), models.OutcomeFault
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
