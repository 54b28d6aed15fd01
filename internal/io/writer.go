package io

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/williampepple1/ecoquery-scraper/pkg/models"
)

// CSVWriter appends dataset records to a CSV file, one flush per record
type CSVWriter struct {
	path    string
	file    *os.File
	writer  *csv.Writer
	created bool
}

// NewCSVWriter opens filename for appending. A missing or empty file is
// initialised with the header row; an existing file only gets new rows.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	needsHeader := false
	info, err := os.Stat(filename)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		needsHeader = true
	case err != nil:
		return nil, fmt.Errorf("stat csv file: %w", err)
	case info.IsDir():
		return nil, fmt.Errorf("csv path %q is a directory", filename)
	case info.Size() == 0:
		needsHeader = true
	}

	f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open csv file: %w", err)
	}

	cw := &CSVWriter{
		path:    filename,
		file:    f,
		writer:  csv.NewWriter(f),
		created: needsHeader,
	}
	if needsHeader {
		if err := cw.writeRow(models.Header); err != nil {
			f.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
	}
	return cw, nil
}

// Created reports whether this writer wrote the header
func (cw *CSVWriter) Created() bool {
	return cw.created
}

// Path returns the file path as given
func (cw *CSVWriter) Path() string {
	return cw.path
}

// Write appends one record and flushes it to the file
func (cw *CSVWriter) Write(record models.DatasetRecord) error {
	if err := cw.writeRow(record.Row()); err != nil {
		return fmt.Errorf("write csv record %d: %w", record.ID, err)
	}
	return nil
}

// Close flushes and closes the file handle
func (cw *CSVWriter) Close() error {
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		cw.file.Close()
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

func (cw *CSVWriter) writeRow(row []string) error {
	if err := cw.writer.Write(row); err != nil {
		return err
	}
	cw.writer.Flush()
	return cw.writer.Error()
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
