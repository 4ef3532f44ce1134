// Package catalogue fetches metadata documents from the CEH Environmental
// Information Data Centre catalogue.
package catalogue

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	dsherrors "github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/errors"
	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/parse"
)

const (
	// DefaultBaseURL is the public EIDC catalogue.
	DefaultBaseURL = "https://catalogue.ceh.ac.uk"

	// DefaultTimeout bounds one request, not the retry loop around it.
	DefaultTimeout = 30 * time.Second

	// DefaultUserAgent identifies the harvester to the catalogue operators.
	DefaultUserAgent = "dsh-harvester/1.0"

	// maxDocumentSize caps a single metadata document.
	maxDocumentSize = 16 << 20
)

// Config configures the catalogue client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	PoolSize  int
}

// Client is the HTTP fetch collaborator used by the ingestion pipeline.
type Client struct {
	http      *http.Client
	transport *http.Transport
	cfg       Config
}

// NewClient creates a catalogue client, applying defaults to zero fields.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 4
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, dsherrors.ConfigError("invalid catalogue base URL", err).
			WithDetail("base_url", cfg.BaseURL)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	// No http.Client.Timeout: the per-request deadline comes from the
	// context so callers' cancellation still wins.
	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		IdleConnTimeout:     30 * time.Second,
	}

	return &Client{
		http:      &http.Client{Transport: transport},
		transport: transport,
		cfg:       cfg,
	}, nil
}

// DocumentURL returns the catalogue URL for a record in the given format.
func (c *Client) DocumentURL(id string, format parse.Format) string {
	escaped := url.PathEscape(id)
	if format == parse.FormatGemini {
		return fmt.Sprintf("%s/id/%s.xml?format=gemini", c.cfg.BaseURL, escaped)
	}
	return fmt.Sprintf("%s/id/%s?format=json", c.cfg.BaseURL, escaped)
}

// Fetch downloads one metadata document. Non-2xx responses are returned
// as *errors.HTTPError so the retry classifier can tell 429 and 5xx from
// 404.
func (c *Client) Fetch(ctx context.Context, id string, format parse.Format) ([]byte, error) {
	if strings.TrimSpace(id) == "" {
		return nil, dsherrors.ValidationError("empty dataset identifier", nil)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	target := c.DocumentURL(id, format)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if format == parse.FormatGemini {
		req.Header.Set("Accept", "application/xml")
	} else {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// A per-request deadline is transient; cancellation of the parent
		// context is not.
		if ctx.Err() == nil && reqCtx.Err() != nil {
			return nil, dsherrors.Transient(fmt.Errorf("fetch %s: %w", id, reqCtx.Err()))
		}
		return nil, fmt.Errorf("fetch %s: %w", id, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &dsherrors.HTTPError{
			Op:         "fetch " + id,
			URL:        target,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, dsherrors.Transient(fmt.Errorf("read %s: %w", id, err))
	}
	return body, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}
