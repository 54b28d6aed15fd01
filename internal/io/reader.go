package io

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/williampepple1/ecoquery-scraper/internal/config"
)

// Target is one dataset page to attempt
type Target struct {
	ID  int
	URL string
}

// TargetReader produces the ordered dataset targets of a run
type TargetReader struct {
	Config *config.AppConfig
}

// NewTargetReader creates a new target reader
func NewTargetReader(config *config.AppConfig) *TargetReader {
	return &TargetReader{
		Config: config,
	}
}

// ReadFromFile reads dataset IDs from a file, one per line; blank lines and # comments are skipped
func (r *TargetReader) ReadFromFile(filename string) ([]int, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var ids []int
	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		id, err := strconv.Atoi(text)
		if err != nil || id < 1 {
			return nil, fmt.Errorf("%s:%d: invalid dataset id %q", filename, line, text)
		}
		ids = append(ids, id)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return ids, nil
}

// GetTargets returns targets in ascending ID order, from the input file when set or the configured range
func (r *TargetReader) GetTargets() ([]Target, error) {
	var ids []int
	if r.Config.IO.InputFile != "" {
		var err error
		ids, err = r.ReadFromFile(r.Config.IO.InputFile)
		if err != nil {
			return nil, err
		}
		ids = uniqueSorted(ids)
	} else {
		for id := r.Config.Scraper.StartID; id <= r.Config.Scraper.EndID; id++ {
			ids = append(ids, id)
		}
	}

	targets := make([]Target, 0, len(ids))
	for _, id := range ids {
		targets = append(targets, Target{ID: id, URL: r.URLFor(id)})
	}
	return targets, nil
}

// URLFor builds the dataset page URL for id
func (r *TargetReader) URLFor(id int) string {
	return strings.TrimSuffix(r.Config.Scraper.BaseURL, "/") + "/" + strconv.Itoa(id)
}

func uniqueSorted(ids []int) []int {
	sort.Ints(ids)
	out := ids[:0]
	for i, id := range ids {
		if i > 0 && id == ids[i-1] {
			continue
		}
		out = append(out, id)
	}
	return out
}
