// Package config handles loading and validating the settings of an analysis run.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/naka-gawa/pr-engagement/internal/domain"
)

const (
	DefaultDays                   = 5
	DefaultBreadthWeight          = 3.0
	DefaultDepthDiminishingFactor = 0.7
	DefaultAPIURL                 = "https://api.github.com"
	DefaultWebURL                 = "https://github.com"
	DefaultBatchSize              = 5
	DefaultPageDelay              = 50 * time.Millisecond
	DefaultRetryDelay             = 5 * time.Second
	DefaultRequestTimeout         = 30 * time.Second

	// MinBreadthWeight keeps breadth from being drowned out by depth.
	MinBreadthWeight = 0.25

	OutputTable = "table"
	OutputJSON  = "json"
)

// ParseError indicates a configuration file exists but contains invalid content.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid config at %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ValidationError reports a setting that is out of range.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Config represents the settings of one engagement analysis.
type Config struct {
	Organization string `yaml:"org"`
	Repository   string `yaml:"repo"`
	// Days is how far back the window starts; EndDays how far back it ends.
	Days    int `yaml:"days"`
	EndDays int `yaml:"end_days"`

	BreadthWeight          float64 `yaml:"breadth_weight"`
	DepthDiminishingFactor float64 `yaml:"depth_diminishing_factor"`

	// Token is never read from the file.
	Token  string `yaml:"-"`
	APIURL string `yaml:"api_url"`
	WebURL string `yaml:"web_url"`

	BatchSize      int           `yaml:"batch_size"`
	PageDelay      time.Duration `yaml:"page_delay"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// StagingDir keeps the raw documents on disk; empty stages in memory.
	StagingDir string `yaml:"staging_dir"`
	Detailed   bool   `yaml:"detailed"`
	WithNames  bool   `yaml:"with_names"`
	Output     string `yaml:"output"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Days:                   DefaultDays,
		BreadthWeight:          DefaultBreadthWeight,
		DepthDiminishingFactor: DefaultDepthDiminishingFactor,
		APIURL:                 DefaultAPIURL,
		WebURL:                 DefaultWebURL,
		BatchSize:              DefaultBatchSize,
		PageDelay:              DefaultPageDelay,
		RetryDelay:             DefaultRetryDelay,
		RequestTimeout:         DefaultRequestTimeout,
		Output:                 OutputTable,
	}
}

// Load builds a Config from defaults, the optional YAML file at path, a .env
// file in the working directory if present, and the environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &ParseError{Path: path, Err: err}
		}
	}

	// A missing .env is normal; variables may already be exported.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg.Token = os.Getenv("GITHUB_TOKEN")
	if apiURL := os.Getenv("GITHUB_API_URL"); apiURL != "" {
		cfg.APIURL = apiURL
	}
	return cfg, nil
}

// Validate checks every setting before any network activity happens.
func (c *Config) Validate() error {
	switch {
	case c.Organization == "":
		return &ValidationError{Field: "org", Reason: "must be set"}
	case c.Repository == "":
		return &ValidationError{Field: "repo", Reason: "must be set"}
	case c.Token == "":
		return &ValidationError{Field: "GITHUB_TOKEN", Reason: "environment variable is not set"}
	case c.BreadthWeight < MinBreadthWeight:
		return &ValidationError{Field: "weight", Reason: fmt.Sprintf("must be a number >= %v", MinBreadthWeight)}
	case c.DepthDiminishingFactor <= 0 || c.DepthDiminishingFactor >= 1:
		return &ValidationError{Field: "depth-diminishing-factor", Reason: "must be greater than 0 and less than 1"}
	case c.Days <= 0:
		return &ValidationError{Field: "days", Reason: "must be positive"}
	case c.EndDays < 0 || c.EndDays >= c.Days:
		return &ValidationError{Field: "end", Reason: "must be at least 0 and less than days"}
	case c.BatchSize < 1:
		return &ValidationError{Field: "batch_size", Reason: "must be at least 1"}
	case c.Output != OutputTable && c.Output != OutputJSON:
		return &ValidationError{Field: "output", Reason: fmt.Sprintf("must be %q or %q", OutputTable, OutputJSON)}
	}
	return nil
}

// Window derives the analysis window relative to now.
func (c *Config) Window(now time.Time) domain.Window {
	return domain.Window{
		Start: now.AddDate(0, 0, -c.Days),
		End:   now.AddDate(0, 0, -c.EndDays),
	}
}

// RepoWebURL is the browser URL of the analysed repository.
func (c *Config) RepoWebURL() string {
	return fmt.Sprintf("%s/%s/%s", c.WebURL, c.Organization, c.Repository)
}
