package models

import (
	"math"
	"strconv"
	"strings"
)

// ErrorPagePrefix prefixes the product name of every record that failed
const ErrorPagePrefix = "Error: "

// ErrorPageMessage is the product name written when the site reports a missing dataset
const ErrorPageMessage = ErrorPagePrefix + "Error page detected"

// DatasetRecord represents one output row for an attempted dataset ID
type DatasetRecord struct {
	ID               int
	ProductName      string
	Geography        string
	ReferenceProduct string
	Unit             string
	Documentation    string
}

// Header is the fixed column order of the output file
var Header = []string{"ID", "Product Name", "Geography", "Reference Product", "Unit", "Documentation"}

// Row returns the record as a row matching Header
func (r DatasetRecord) Row() []string {
	return []string{
		strconv.Itoa(r.ID),
		r.ProductName,
		r.Geography,
		r.ReferenceProduct,
		r.Unit,
		r.Documentation,
	}
}

// Failed reports whether the record was synthesized from an error
func (r DatasetRecord) Failed() bool {
	return strings.HasPrefix(r.ProductName, ErrorPagePrefix) &&
		r.Geography == "" && r.ReferenceProduct == "" && r.Unit == "" && r.Documentation == ""
}

// ErrorPageRecord builds the record for an ID whose page showed the site's error variant
func ErrorPageRecord(id int) DatasetRecord {
	return DatasetRecord{ID: id, ProductName: ErrorPageMessage}
}

// FaultRecord builds the record for an ID whose attempt failed with err
func FaultRecord(id int, err error) DatasetRecord {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return DatasetRecord{ID: id, ProductName: ErrorPagePrefix + msg}
}

// Outcome classifies how an attempted ID ended
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeErrorPage Outcome = "error_page"
	OutcomeFault     Outcome = "fault"
)

// RunSummary accumulates per-ID outcomes across a run
type RunSummary struct {
	TotalAttempted int
	SuccessCount   int
	ErrorCount     int
}

// Record counts one attempted ID
func (s *RunSummary) Record(outcome Outcome) {
	s.TotalAttempted++
	if outcome == OutcomeSuccess {
		s.SuccessCount++
		return
	}
	s.ErrorCount++
}

// SuccessRate returns the percentage of successful IDs rounded to two decimals
func (s RunSummary) SuccessRate() float64 {
	if s.TotalAttempted == 0 {
		return 0
	}
	rate := float64(s.SuccessCount) / float64(s.TotalAttempted) * 100
	return math.Round(rate*100) / 100
}
