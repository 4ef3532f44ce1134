// Package parse turns raw catalogue documents into dataset records.
//
// Two formats are supported: the CEH catalogue JSON representation and
// the ISO 19115 GEMINI XML representation. Parse failures are permanent:
// retrying the same bytes cannot succeed.
package parse

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/dataset"
	dsherrors "github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/errors"
)

// Format names a catalogue document representation.
type Format string

const (
	FormatJSON   Format = "json"
	FormatGemini Format = "gemini"
)

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatJSON, "":
		return FormatJSON, nil
	case FormatGemini, "xml":
		return FormatGemini, nil
	default:
		return "", fmt.Errorf("unknown format %q (valid: json, gemini)", s)
	}
}

// Parser converts one document into a dataset.
type Parser interface {
	Parse(content []byte) (*dataset.Dataset, error)
	Format() Format
}

// Registry dispatches to a parser by format.
type Registry struct {
	mu      sync.RWMutex
	parsers map[Format]Parser
}

// NewRegistry returns a registry holding the given parsers.
func NewRegistry(parsers ...Parser) *Registry {
	r := &Registry{parsers: make(map[Format]Parser)}
	for _, p := range parsers {
		r.Register(p)
	}
	return r
}

// DefaultRegistry returns a registry with the JSON and GEMINI parsers.
func DefaultRegistry() *Registry {
	return NewRegistry(NewJSONParser(), NewGeminiParser())
}

// Register adds or replaces a parser.
func (r *Registry) Register(p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers[p.Format()] = p
}

// Parse parses content with the parser registered for format, then
// normalizes the result.
func (r *Registry) Parse(format Format, content []byte) (*dataset.Dataset, error) {
	r.mu.RLock()
	p, ok := r.parsers[format]
	r.mu.RUnlock()
	if !ok {
		return nil, dsherrors.ParseError(fmt.Sprintf("no parser for format %q", format), nil)
	}

	ds, err := p.Parse(content)
	if err != nil {
		return nil, err
	}
	ds.Normalize()
	ds.SourceFormat = string(format)
	return ds, nil
}

// parseError builds the error returned for malformed documents.
func parseError(format Format, msg string, cause error) error {
	return dsherrors.ParseError(fmt.Sprintf("%s: %s", format, msg), cause).
		WithDetail("format", string(format))
}

// parseDate accepts the date layouts seen in catalogue records.
func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02", "2006/01/02", "2006-01", "2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// accessTypeFor maps catalogue online-resource functions to access types.
func accessTypeFor(function string) string {
	switch strings.ToLower(function) {
	case "download":
		return "download"
	case "fileaccess", "information":
		return "fileAccess"
	case "order":
		return "order"
	case "offlineaccess":
		return "offline"
	default:
		return "other"
	}
}

// roleFor maps a CI_RoleCode, defaulting unknown codes to other.
func roleFor(code string) dataset.Role {
	if code == "" {
		return dataset.RoleOther
	}
	return dataset.Role(code)
}
