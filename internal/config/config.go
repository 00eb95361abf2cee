// Package config loads zenith's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/oodadoudou/ZenithAI-Reader/internal/bookmark"
	"github.com/oodadoudou/ZenithAI-Reader/internal/heading"
	"github.com/oodadoudou/ZenithAI-Reader/internal/logging"
	"github.com/oodadoudou/ZenithAI-Reader/internal/reader"
	"github.com/oodadoudou/ZenithAI-Reader/internal/search"
)

// Config holds the application configuration
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Reader    ReaderConfig    `yaml:"reader"`
	Parsing   ParsingConfig   `yaml:"parsing"`
	Search    SearchConfig    `yaml:"search"`
	Bookmarks BookmarksConfig `yaml:"bookmarks"`
	State     StateConfig     `yaml:"state"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// ReaderConfig tunes the RSVP session.
type ReaderConfig struct {
	WPM int `yaml:"wpm"`
}

// ParsingConfig holds the ingestion thresholds.
type ParsingConfig struct {
	TextHeadingRatio   float64 `yaml:"text_heading_ratio"`
	PDFHeadingRatio    float64 `yaml:"pdf_heading_ratio"`
	MinParagraphChars  int     `yaml:"min_paragraph_chars"`
	MinHeadingChars    int     `yaml:"min_heading_chars"`
	HeadingLabelChars  int     `yaml:"heading_label_chars"`
	FallbackParagraphs int     `yaml:"fallback_paragraphs"`
}

// SearchConfig holds search settings
type SearchConfig struct {
	Limit int `yaml:"limit"`
}

// BookmarksConfig holds bookmark display settings
type BookmarksConfig struct {
	SnippetLength int    `yaml:"snippet_length"`
	Sort          string `yaml:"sort"` // recent, paraAsc, paraDesc
}

// StateConfig holds the state store location. Empty means the XDG default.
type StateConfig struct {
	Dir string `yaml:"dir"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Reader:  ReaderConfig{WPM: 300},
		Parsing: ParsingConfig{
			TextHeadingRatio:   heading.Text.UpperRatio,
			PDFHeadingRatio:    heading.PDF.UpperRatio,
			MinParagraphChars:  20,
			MinHeadingChars:    3,
			HeadingLabelChars:  heading.DefaultLabelLength,
			FallbackParagraphs: 10,
		},
		Search:    SearchConfig{Limit: search.DefaultLimit},
		Bookmarks: BookmarksConfig{SnippetLength: bookmark.DefaultSnippetLength, Sort: string(bookmark.SortRecent)},
	}
}

// DefaultPath returns XDG_CONFIG_HOME/zenith/config.yml or
// ~/.config/zenith/config.yml.
func DefaultPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "zenith", "config.yml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "zenith", "config.yml")
}

// Load loads configuration.
// Order: defaults -> YAML file -> ApplyEnvOverrides -> Validate.
// An empty path reads DefaultPath() and tolerates its absence; an explicit
// path must exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error in %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnvOverrides applies ZENITH_* environment variable overrides
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("ZENITH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("ZENITH_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("ZENITH_WPM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Reader.WPM = n
		}
	}
	if v := os.Getenv("ZENITH_SEARCH_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Search.Limit = n
		}
	}
	if v := os.Getenv("ZENITH_STATE_DIR"); v != "" {
		c.State.Dir = v
	}
}

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	if _, err := logging.ParseFormat(c.Logging.Format); err != nil {
		return err
	}
	if c.Reader.WPM < 1 || c.Reader.WPM > 2000 {
		return fmt.Errorf("reader.wpm must be between 1 and 2000, got %d", c.Reader.WPM)
	}
	for name, r := range map[string]float64{
		"parsing.text_heading_ratio": c.Parsing.TextHeadingRatio,
		"parsing.pdf_heading_ratio":  c.Parsing.PDFHeadingRatio,
	} {
		if r <= 0 || r >= 1 {
			return fmt.Errorf("%s must be in (0, 1), got %v", name, r)
		}
	}
	for name, n := range map[string]int{
		"parsing.min_paragraph_chars": c.Parsing.MinParagraphChars,
		"parsing.min_heading_chars":   c.Parsing.MinHeadingChars,
		"parsing.heading_label_chars": c.Parsing.HeadingLabelChars,
		"parsing.fallback_paragraphs": c.Parsing.FallbackParagraphs,
		"search.limit":                c.Search.Limit,
		"bookmarks.snippet_length":    c.Bookmarks.SnippetLength,
	} {
		if n < 1 {
			return fmt.Errorf("%s must be positive, got %d", name, n)
		}
	}
	if _, err := bookmark.ParseSortMode(c.Bookmarks.Sort); err != nil {
		return err
	}
	return nil
}

// ReaderOptions maps the parsing section onto ingestion options.
func (c *Config) ReaderOptions(logger *slog.Logger) reader.Options {
	opts := reader.DefaultOptions()
	opts.TextHeading = heading.Text.WithRatio(c.Parsing.TextHeadingRatio)
	opts.PDFHeading = heading.PDF.WithRatio(c.Parsing.PDFHeadingRatio)
	opts.MinParagraphLength = c.Parsing.MinParagraphChars
	opts.MinHeadingLength = c.Parsing.MinHeadingChars
	opts.LabelLength = c.Parsing.HeadingLabelChars
	opts.FallbackThreshold = c.Parsing.FallbackParagraphs
	opts.Logger = logger
	return opts
}

// SearchOptions returns the query options.
func (c *Config) SearchOptions() search.Options {
	return search.Options{Limit: c.Search.Limit}
}

// BookmarkSort returns the configured bookmark order.
func (c *Config) BookmarkSort() bookmark.SortMode {
	mode, err := bookmark.ParseSortMode(c.Bookmarks.Sort)
	if err != nil {
		return bookmark.SortRecent
	}
	return mode
}
