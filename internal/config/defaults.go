package config

import "time"

// DefaultUserAgent is sent by every engine unless the config overrides it
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/90.0.4430.212 Safari/537.36"

// DefaultBaseURL is the dataset page prefix; the numeric ID is appended as the last path segment
const DefaultBaseURL = "https://ecoquery.ecoinvent.org/3.11/cutoff/dataset"

// DefaultOutputFile is the CSV file name written under the output directory
const DefaultOutputFile = "ecoinvent_data.csv"

// DefaultFields describes the labeled sections read from each dataset page.
// Documentation reads the whole ancestor text and only after its heading shows up.
var DefaultFields = []FieldConfig{
	{Name: FieldGeography, Label: "Geography", Depth: 3, Mode: ModeText},
	{Name: FieldReferenceProduct, Label: "Reference Product", Depth: 3, Mode: ModeText},
	{Name: FieldUnit, Label: "Unit", Depth: 3, Mode: ModeText},
	{Name: FieldDocumentation, Label: "Documentation", Depth: 3, Mode: ModeFull, Probe: 2 * time.Second},
}

func defaultFields() []FieldConfig {
	fields := make([]FieldConfig, len(DefaultFields))
	copy(fields, DefaultFields)
	return fields
}
