package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

// Kind classifies a failure by whether retrying can help.
type Kind int

const (
	// KindPermanent failures never succeed on retry.
	KindPermanent Kind = iota
	// KindTransient failures are expected to clear on their own.
	KindTransient
	// KindRateLimited failures clear after a provider-imposed pause.
	KindRateLimited
)

// String returns a string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimited:
		return "rate_limited"
	case KindPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Classifier maps an error to a Kind.
type Classifier func(error) Kind

// kinded is implemented by errors that know their own classification.
type kinded interface {
	Kind() Kind
}

// Classify is the default Classifier. It honours errors that carry their
// own Kind, then falls back to network and HTTP heuristics. Anything it
// does not recognise is permanent.
func Classify(err error) Kind {
	if err == nil {
		return KindPermanent
	}

	var k kinded
	if stderrors.As(err, &k) {
		return k.Kind()
	}

	if stderrors.Is(err, context.Canceled) {
		return KindPermanent
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return KindTransient
	}
	if stderrors.Is(err, syscall.ECONNREFUSED) ||
		stderrors.Is(err, syscall.ECONNRESET) ||
		stderrors.Is(err, syscall.EPIPE) ||
		stderrors.Is(err, io.ErrUnexpectedEOF) {
		return KindTransient
	}
	var opErr *net.OpError
	if stderrors.As(err, &opErr) {
		return KindTransient
	}

	return KindPermanent
}

// ClassifyStatus classifies an HTTP status code.
// 429 is rate limited; 408 and 500/502/503/504 are transient.
func ClassifyStatus(code int) Kind {
	switch code {
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return KindTransient
	default:
		return KindPermanent
	}
}

// HTTPError is a non-2xx response from an upstream HTTP service.
type HTTPError struct {
	Op         string
	URL        string
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.URL, e.Status)
	}
	return fmt.Sprintf("%s %s: HTTP %d", e.Op, e.URL, e.StatusCode)
}

// Kind implements the classification contract used by Classify.
func (e *HTTPError) Kind() Kind {
	return ClassifyStatus(e.StatusCode)
}

// kindError pins a Kind onto an arbitrary error.
type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }
func (e *kindError) Kind() Kind    { return e.kind }

// Transient marks err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: KindTransient, err: err}
}

// Permanent marks err as not retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: KindPermanent, err: err}
}

// RateLimited marks err as a throttling failure.
func RateLimited(err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: KindRateLimited, err: err}
}
