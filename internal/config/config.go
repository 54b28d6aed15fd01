package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/andybalholm/cascadia"
	"gopkg.in/yaml.v3"
)

// Supported browsing engines
const (
	EngineChromedp = "chromedp"
	EngineRod      = "rod"
	EngineHTTP     = "http"
)

// Section field names mapped onto record columns
const (
	FieldGeography        = "geography"
	FieldReferenceProduct = "reference_product"
	FieldUnit             = "unit"
	FieldDocumentation    = "documentation"
)

// Value modes for a section field
const (
	// ModeText reads the first value element below the ancestor
	ModeText = "text"
	// ModeFull reads the whole text content of the ancestor
	ModeFull = "full"
)

// AppConfig holds the complete application configuration
type AppConfig struct {
	Scraper    ScraperConfig    `yaml:"scraper"`
	IO         IOConfig         `yaml:"io"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Proxies    ProxyConfig      `yaml:"proxies"`
	Browser    BrowserConfig    `yaml:"browser"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Log        LogConfig        `yaml:"log"`
}

// ScraperConfig holds the run range, pacing and timeouts
type ScraperConfig struct {
	BaseURL      string        `yaml:"base_url"`
	StartID      int           `yaml:"start_id"`
	EndID        int           `yaml:"end_id"`
	RequestDelay time.Duration `yaml:"request_delay"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeouts     TimeoutConfig `yaml:"timeouts"`
}

// TimeoutConfig holds the bounds of every wait in a page attempt
type TimeoutConfig struct {
	// Navigation bounds page load and the wait for rendered content.
	Navigation time.Duration `yaml:"navigation"`
	// Selector bounds the wait for the page container.
	Selector time.Duration `yaml:"selector"`
	// ErrorProbe bounds the best-effort look for the error page marker.
	ErrorProbe time.Duration `yaml:"error_probe"`
}

// IOConfig holds the input/output configuration
type IOConfig struct {
	InputFile  string `yaml:"input_file"`
	OutputDir  string `yaml:"output_dir"`
	OutputFile string `yaml:"output_file"`
}

// OutputPath joins the output directory and file name
func (c IOConfig) OutputPath() string {
	return filepath.Join(c.OutputDir, c.OutputFile)
}

// ExtractionConfig describes where the dataset values live in the rendered page
type ExtractionConfig struct {
	ContainerSelector string        `yaml:"container_selector"`
	ErrorSelector     string        `yaml:"error_selector"`
	ErrorMarker       string        `yaml:"error_marker"`
	ProductSelector   string        `yaml:"product_selector"`
	Placeholder       string        `yaml:"placeholder"`
	SectionSelector   string        `yaml:"section_selector"`
	ValueSelector     string        `yaml:"value_selector"`
	Fields            []FieldConfig `yaml:"fields"`
}

// FieldConfig describes one labeled section of a dataset page
type FieldConfig struct {
	Name  string `yaml:"name"`
	Label string `yaml:"label"`
	// Depth is the number of ancestor steps from the heading to the section container.
	Depth int    `yaml:"depth"`
	Mode  string `yaml:"mode"`
	// Probe, when set, is how long to wait for the heading before skipping the field.
	Probe time.Duration `yaml:"probe"`
}

// ProxyConfig holds the proxy configuration
type ProxyConfig struct {
	Enabled bool     `yaml:"enabled"`
	Rotate  bool     `yaml:"rotate"`
	List    []string `yaml:"list"`
	Auth    struct {
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"auth"`
}

// BrowserConfig holds the browsing session configuration
type BrowserConfig struct {
	Engine    string `yaml:"engine"`
	Headless  bool   `yaml:"headless"`
	NoSandbox bool   `yaml:"no_sandbox"`
	Stealth   bool   `yaml:"stealth"`
	UserAgent string `yaml:"user_agent"`
	ExecPath  string `yaml:"exec_path"`
}

// MetricsConfig holds the optional Prometheus listener
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig holds the logger configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the built-in configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Scraper: ScraperConfig{
			BaseURL:      DefaultBaseURL,
			StartID:      1,
			EndID:        10,
			RequestDelay: 500 * time.Millisecond,
			MaxRetries:   1,
			RetryDelay:   time.Second,
			PollInterval: 100 * time.Millisecond,
			Timeouts: TimeoutConfig{
				Navigation: 30 * time.Second,
				Selector:   15 * time.Second,
				ErrorProbe: time.Second,
			},
		},
		IO: IOConfig{
			OutputDir:  "./output",
			OutputFile: DefaultOutputFile,
		},
		Extraction: ExtractionConfig{
			ContainerSelector: ".chakra-stack",
			ErrorSelector:     "h1.chakra-heading",
			ErrorMarker:       "Oh No",
			ProductSelector:   "h4.chakra-heading",
			Placeholder:       "Dataset",
			SectionSelector:   "h2.chakra-heading",
			ValueSelector:     "p.chakra-text",
			Fields:            defaultFields(),
		},
		Proxies: ProxyConfig{
			Rotate: true,
			List:   []string{},
		},
		Browser: BrowserConfig{
			Engine:    EngineChromedp,
			Headless:  true,
			NoSandbox: true,
			UserAgent: DefaultUserAgent,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load reads a YAML file over the defaults and validates the result
func Load(filename string) (*AppConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", filename, err)
	}

	if config.Browser.UserAgent == "" {
		config.Browser.UserAgent = DefaultUserAgent
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate ensures all configuration values are coherent
func (c *AppConfig) Validate() error {
	s := c.Scraper
	if s.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	parsedURL, err := url.Parse(s.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}
	if s.StartID < 1 {
		return fmt.Errorf("start id must be at least 1")
	}
	if s.EndID < s.StartID {
		return fmt.Errorf("end id (%d) cannot be below start id (%d)", s.EndID, s.StartID)
	}
	if s.RequestDelay < 0 {
		return fmt.Errorf("request delay cannot be negative")
	}
	if s.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if s.RetryDelay < 0 {
		return fmt.Errorf("retry delay cannot be negative")
	}
	if s.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if s.Timeouts.Navigation <= 0 {
		return fmt.Errorf("navigation timeout must be positive")
	}
	if s.Timeouts.Selector <= 0 {
		return fmt.Errorf("selector timeout must be positive")
	}
	if s.Timeouts.ErrorProbe <= 0 {
		return fmt.Errorf("error probe timeout must be positive")
	}

	if c.IO.OutputDir == "" {
		return fmt.Errorf("output dir cannot be empty")
	}
	if c.IO.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}

	switch c.Browser.Engine {
	case EngineChromedp, EngineRod, EngineHTTP:
	default:
		return fmt.Errorf("browser engine must be %s, %s or %s", EngineChromedp, EngineRod, EngineHTTP)
	}
	if c.Browser.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	if c.Proxies.Enabled && len(c.Proxies.List) == 0 {
		return fmt.Errorf("proxies enabled but list is empty")
	}

	return c.Extraction.validate()
}

func (e ExtractionConfig) validate() error {
	selectors := map[string]string{
		"container_selector": e.ContainerSelector,
		"error_selector":     e.ErrorSelector,
		"product_selector":   e.ProductSelector,
		"section_selector":   e.SectionSelector,
		"value_selector":     e.ValueSelector,
	}
	for name, sel := range selectors {
		if sel == "" {
			return fmt.Errorf("extraction %s cannot be empty", name)
		}
		if _, err := cascadia.Parse(sel); err != nil {
			return fmt.Errorf("extraction %s %q: %w", name, sel, err)
		}
	}
	if e.ErrorMarker == "" {
		return fmt.Errorf("extraction error_marker cannot be empty")
	}

	seen := make(map[string]bool, len(e.Fields))
	for _, f := range e.Fields {
		switch f.Name {
		case FieldGeography, FieldReferenceProduct, FieldUnit, FieldDocumentation:
		default:
			return fmt.Errorf("unknown extraction field %q", f.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate extraction field %q", f.Name)
		}
		seen[f.Name] = true
		if f.Label == "" {
			return fmt.Errorf("field %s: label cannot be empty", f.Name)
		}
		if f.Depth < 0 {
			return fmt.Errorf("field %s: depth cannot be negative", f.Name)
		}
		if f.Mode != ModeText && f.Mode != ModeFull {
			return fmt.Errorf("field %s: mode must be %s or %s", f.Name, ModeText, ModeFull)
		}
		if f.Probe < 0 {
			return fmt.Errorf("field %s: probe cannot be negative", f.Name)
		}
	}
	return nil
}
