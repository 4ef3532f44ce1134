package ingest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/dataset"
	dsherrors "github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/errors"
	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/parse"
	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/store"
)

// noSleep makes retries instantaneous.
func noSleep(context.Context, time.Duration) error { return nil }

func fastRetrier(attempts int) *dsherrors.Retrier {
	cfg := dsherrors.DefaultRetryConfig()
	cfg.MaxAttempts = attempts
	return dsherrors.MustRetrier(cfg, dsherrors.WithSleeper(noSleep))
}

// fakeFetcher serves "content:<id>" unless a failure is scripted for the id.
// Scripted errors are consumed one per call.
type fakeFetcher struct {
	mu       sync.Mutex
	failures map[string][]error
	calls    map[string]int
	order    []string
	hook     func(id string) error
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{failures: map[string][]error{}, calls: map[string]int{}}
}

func (f *fakeFetcher) fail(id string, errs ...error) {
	f.failures[id] = append(f.failures[id], errs...)
}

func (f *fakeFetcher) Fetch(_ context.Context, id string, _ parse.Format) ([]byte, error) {
	f.mu.Lock()
	f.calls[id]++
	f.order = append(f.order, id)
	hook := f.hook
	var err error
	if errs := f.failures[id]; len(errs) > 0 {
		err = errs[0]
		f.failures[id] = errs[1:]
	}
	f.mu.Unlock()

	if hook != nil {
		if herr := hook(id); herr != nil {
			return nil, herr
		}
	}
	if err != nil {
		return nil, err
	}
	return []byte("content:" + id), nil
}

func (f *fakeFetcher) fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.order)
}

// fakeParser turns "content:<id>" into a dataset titled "Title <id>".
type fakeParser struct {
	mu    sync.Mutex
	bad   map[string]int // id -> remaining failures
	calls int
}

func (p *fakeParser) Parse(_ parse.Format, content []byte) (*dataset.Dataset, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	var id string
	if _, err := fmt.Sscanf(string(content), "content:%s", &id); err != nil {
		return nil, err
	}
	if p.bad[id] > 0 {
		p.bad[id]--
		return nil, dsherrors.ParseError("malformed document", nil)
	}
	return &dataset.Dataset{Identifier: id, Title: "Title " + id, Abstract: "About " + id}, nil
}

type fakeStore struct {
	mu    sync.Mutex
	saved map[string]*dataset.Dataset
}

func newFakeStore() *fakeStore {
	return &fakeStore{saved: map[string]*dataset.Dataset{}}
}

func (s *fakeStore) Save(_ context.Context, ds *dataset.Dataset) error {
	if err := ds.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[ds.Identifier] = ds
	return nil
}

func (s *fakeStore) ListIDs(_ context.Context, cursor string, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id := range s.saved {
		if id > cursor {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (s *fakeStore) GetMany(_ context.Context, ids []string) (map[string]*dataset.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]*dataset.Dataset{}
	for _, id := range ids {
		if ds, ok := s.saved[id]; ok {
			out[id] = ds
		}
	}
	return out, nil
}

type fakeEmbedder struct {
	mu   sync.Mutex
	fail map[string]bool // ids whose search text is rejected
}

func (e *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id := range e.fail {
		if strings.HasPrefix(text, "Title "+id+"\n") {
			return nil, dsherrors.Permanent(errors.New("model rejected input"))
		}
	}
	return []float32{1, 0}, nil
}

type fakeVectors struct {
	mu  sync.Mutex
	ids map[string][]float32
}

func newFakeVectors() *fakeVectors {
	return &fakeVectors{ids: map[string][]float32{}}
}

func (v *fakeVectors) Add(_ context.Context, ids []string, vecs [][]float32) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, id := range ids {
		v.ids[id] = vecs[i]
	}
	return nil
}

func (v *fakeVectors) Contains(id string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.ids[id]
	return ok
}

// memCheckpoint is an in-memory PartitionCheckpoint.
type memCheckpoint struct {
	mu        sync.Mutex
	partition string
	completed []string
	loadErr   error
	closed    bool
}

func (c *memCheckpoint) Load(context.Context) (*store.Checkpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loadErr != nil {
		return nil, c.loadErr
	}
	return &store.Checkpoint{Partition: c.partition, Completed: slices.Clone(c.completed), LastIndex: len(c.completed)}, nil
}

func (c *memCheckpoint) Append(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed = append(c.completed, id)
	return nil
}

func (c *memCheckpoint) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// recordingReporter captures events.
type recordingReporter struct {
	mu       sync.Mutex
	started  int
	events   []StageEvent
	ended    *Result
	panicOn  Stage
	errOnAll bool
}

func (r *recordingReporter) OnRunStart(total int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = total
	if r.errOnAll {
		return errors.New("sink unavailable")
	}
	return nil
}

func (r *recordingReporter) OnStage(ev StageEvent) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	if r.panicOn != StagePending && ev.Stage == r.panicOn {
		panic("reporter exploded")
	}
	if r.errOnAll {
		return errors.New("sink unavailable")
	}
	return nil
}

func (r *recordingReporter) OnRunEnd(res *Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended = res
	return nil
}

// terminal maps each id to its terminal stage.
func (r *recordingReporter) terminal() map[string]Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]Stage{}
	for _, ev := range r.events {
		if ev.Stage.IsTerminal() {
			out[ev.ID] = ev.Stage
		}
	}
	return out
}

// countingGate counts Wait calls.
type countingGate struct {
	mu    sync.Mutex
	waits int
}

func (g *countingGate) Wait(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.waits++
	return ctx.Err()
}

func succeededIDs(res *Result) []string {
	ids := make([]string, len(res.Succeeded))
	for i, r := range res.Succeeded {
		ids[i] = r.ID
	}
	return ids
}
