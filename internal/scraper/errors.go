package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNoPage is returned when the DOM is read before any navigation succeeded
var ErrNoPage = errors.New("no page loaded")

// ErrTimeout indicates a bounded wait expired
type ErrTimeout struct {
	Op    string
	After time.Duration
	Err   error
}

func (e ErrTimeout) Error() string {
	return fmt.Sprintf("timeout %s exceeded while %s", e.After, e.Op)
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrNavigation indicates the browser could not load a URL
type ErrNavigation struct {
	URL string
	Err error
}

func (e ErrNavigation) Error() string {
	return fmt.Errorf("navigate %s: %w", e.URL, e.Err).Error()
}

func (e ErrNavigation) Unwrap() error {
	return e.Err
}

// ErrStatus indicates the server answered with a non-success status
type ErrStatus struct {
	Code int
}

func (e ErrStatus) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// WrapTimeout turns a context deadline into an ErrTimeout for op and passes other errors through
func WrapTimeout(err error, op string, after time.Duration) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Op: op, After: after, Err: err}
	}
	return err
}

// ErrorTypeLabel maps an error onto a small label set for metrics
func ErrorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) || errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	var status ErrStatus
	if errors.As(err, &status) {
		return "status"
	}
	var nav ErrNavigation
	if errors.As(err, &nav) {
		return "navigation"
	}
	return "other"
}
