package ui

import (
	"errors"
	"fmt"

	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/ingest"
)

// Multi fans events out to several reporters. Every reporter is called
// even when an earlier one fails or panics; failures are joined.
type Multi struct {
	sinks []ingest.Reporter
}

// NewMulti creates a fan-out reporter. Nil reporters are ignored.
func NewMulti(sinks ...ingest.Reporter) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// OnRunStart implements ingest.Reporter.
func (m *Multi) OnRunStart(total int) error {
	return m.each(func(r ingest.Reporter) error { return r.OnRunStart(total) })
}

// OnStage implements ingest.Reporter.
func (m *Multi) OnStage(ev ingest.StageEvent) error {
	return m.each(func(r ingest.Reporter) error { return r.OnStage(ev) })
}

// OnRunEnd implements ingest.Reporter.
func (m *Multi) OnRunEnd(res *ingest.Result) error {
	return m.each(func(r ingest.Reporter) error { return r.OnRunEnd(res) })
}

func (m *Multi) each(fn func(ingest.Reporter) error) error {
	var errs []error
	for i, s := range m.sinks {
		if err := callSafely(s, fn); err != nil {
			errs = append(errs, fmt.Errorf("reporter %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func callSafely(r ingest.Reporter, fn func(ingest.Reporter) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(r)
}

var _ ingest.Reporter = (*Multi)(nil)
