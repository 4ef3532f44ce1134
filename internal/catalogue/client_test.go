package catalogue

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dsherrors "github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/errors"
	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/parse"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL + "/", Timeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestFetch_JSON(t *testing.T) {
	// Given: a catalogue returning a JSON record
	var gotPath, gotQuery, gotAccept string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery, gotAccept = r.URL.Path, r.URL.RawQuery, r.Header.Get("Accept")
		_, _ = w.Write([]byte(`{"id":"abc","title":"t"}`))
	})

	// When: fetching
	body, err := c.Fetch(context.Background(), "abc", parse.FormatJSON)

	// Then: the JSON endpoint is requested and the body returned
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"abc","title":"t"}`, string(body))
	assert.Equal(t, "/id/abc", gotPath)
	assert.Equal(t, "format=json", gotQuery)
	assert.Equal(t, "application/json", gotAccept)
}

func TestFetch_Gemini(t *testing.T) {
	var gotPath, gotAccept string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotAccept = r.URL.Path, r.Header.Get("Accept")
		_, _ = w.Write([]byte(`<x/>`))
	})

	_, err := c.Fetch(context.Background(), "abc", parse.FormatGemini)

	require.NoError(t, err)
	assert.Equal(t, "/id/abc.xml", gotPath)
	assert.Equal(t, "application/xml", gotAccept)
}

func TestFetch_StatusClassification(t *testing.T) {
	tests := []struct {
		status int
		want   dsherrors.Kind
	}{
		{http.StatusTooManyRequests, dsherrors.KindRateLimited},
		{http.StatusServiceUnavailable, dsherrors.KindTransient},
		{http.StatusNotFound, dsherrors.KindPermanent},
		{http.StatusForbidden, dsherrors.KindPermanent},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			})

			_, err := c.Fetch(context.Background(), "abc", parse.FormatJSON)

			require.Error(t, err)
			assert.Equal(t, tt.want, dsherrors.Classify(err))
			var httpErr *dsherrors.HTTPError
			require.ErrorAs(t, err, &httpErr)
			assert.Equal(t, tt.status, httpErr.StatusCode)
		})
	}
}

func TestFetch_RequestTimeoutIsTransient(t *testing.T) {
	// Given: a server slower than the per-request timeout
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, err := NewClient(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	// When: fetching
	_, err = c.Fetch(context.Background(), "abc", parse.FormatJSON)

	// Then: the timeout is retryable
	require.Error(t, err)
	assert.Equal(t, dsherrors.KindTransient, dsherrors.Classify(err))
}

func TestFetch_CancelledIsPermanent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Fetch(ctx, "abc", parse.FormatJSON)

	require.Error(t, err)
	assert.Equal(t, dsherrors.KindPermanent, dsherrors.Classify(err))
}

func TestFetch_EmptyID(t *testing.T) {
	c, err := NewClient(Config{})
	require.NoError(t, err)

	_, err = c.Fetch(context.Background(), " ", parse.FormatJSON)

	assert.ErrorIs(t, err, dsherrors.ErrValidation)
}

func TestDocumentURL_EscapesID(t *testing.T) {
	c, err := NewClient(Config{BaseURL: "https://example.org/"})
	require.NoError(t, err)

	assert.Equal(t, "https://example.org/id/a%2Fb?format=json", c.DocumentURL("a/b", parse.FormatJSON))
}
