// Package ui provides progress reporters and status rendering for the CLI.
package ui

import (
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/ingest"
)

// Config configures the progress reporter.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	Title      string // Header shown by the TUI

	// Interrupt is called when the user quits the TUI with q or ctrl+c,
	// which the terminal no longer delivers as SIGINT.
	Interrupt func()
}

// ConfigOption is a function that modifies Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain text output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) {
		c.ForcePlain = force
	}
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) {
		c.NoColor = noColor
	}
}

// WithTitle sets the TUI header.
func WithTitle(title string) ConfigOption {
	return func(c *Config) {
		c.Title = title
	}
}

// WithInterrupt sets the function called when the user quits the TUI.
func WithInterrupt(fn func()) ConfigOption {
	return func(c *Config) {
		c.Interrupt = fn
	}
}

// NewConfig creates a new Config with the given output and options.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{
		Output: output,
		Title:  "dsh ingest",
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// New returns the reporter for an ingest run: structured log events plus
// either the TUI or line-oriented console output. The TUI is used only on
// an interactive terminal outside CI with colour enabled.
func New(cfg Config, logger *slog.Logger) ingest.Reporter {
	return NewMulti(NewLog(logger), newDisplay(cfg))
}

func newDisplay(cfg Config) ingest.Reporter {
	if cfg.ForcePlain || cfg.NoColor || DetectNoColor() || DetectCI() || !IsTTY(cfg.Output) {
		return NewConsole(cfg.Output)
	}
	tui, err := NewTUI(cfg)
	if err != nil {
		return NewConsole(cfg.Output)
	}
	if cfg.Interrupt != nil {
		tui.OnInterrupt(cfg.Interrupt)
	}
	return tui
}

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// DetectNoColor checks if NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}
	for _, v := range ciVars {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
