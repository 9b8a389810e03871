// Package entities holds the last-fetched list of each back-office resource.
// Mutations are never applied locally: every successful write re-fetches the
// whole list.
package entities

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"udpadijaya/posagent/internal/cache"
	"udpadijaya/posagent/internal/domain"
	"udpadijaya/posagent/internal/metrics"
	"udpadijaya/posagent/internal/remote"
)

// Deps are shared by every store of one terminal.
type Deps struct {
	Session  *remote.Session
	Cache    cache.SnapshotCache
	Terminal string
	TTL      time.Duration
	Logger   *zap.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Cache == nil {
		d.Cache = cache.NoopSnapshotCache{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.TTL <= 0 {
		d.TTL = 10 * time.Minute
	}
	return d
}

type resourceSpec[T any] struct {
	path    string
	altKeys []string
	id      func(T) int64
	order   func(a, b T) int
	// decode replaces the default envelope decoding of the list response.
	decode func(raw []byte) ([]T, error)
}

// Collection is a cache of one remote list. Loading reports whether any
// operation is in flight; overlapping calls are not serialized and the last
// response to arrive wins.
type Collection[T any] struct {
	deps Deps
	spec resourceSpec[T]

	mu    sync.RWMutex
	items []T
	err   error

	inflight atomic.Int32
}

func newCollection[T any](deps Deps, spec resourceSpec[T]) *Collection[T] {
	return &Collection[T]{deps: deps.withDefaults(), spec: spec}
}

func (c *Collection[T]) Resource() string {
	return c.spec.path
}

func (c *Collection[T]) Loading() bool {
	return c.inflight.Load() > 0
}

// Err is the error of the most recent operation, nil after a success.
func (c *Collection[T]) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

func (c *Collection[T]) Items() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.items)
}

func (c *Collection[T]) Find(id int64) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, item := range c.items {
		if c.spec.id(item) == id {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// FetchAll replaces the local list with the server's.
func (c *Collection[T]) FetchAll(ctx context.Context) ([]T, error) {
	done := c.begin()
	defer done()

	items, err := c.fetch(ctx)
	c.record(err)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Create posts body and re-fetches. The decoded response lands in out when
// out is not nil.
func (c *Collection[T]) Create(ctx context.Context, body any, out any) error {
	return c.mutate(ctx, http.MethodPost, c.spec.path, body, out)
}

func (c *Collection[T]) Update(ctx context.Context, id int64, body any, out any) error {
	return c.mutate(ctx, http.MethodPut, c.itemPath(id), body, out)
}

func (c *Collection[T]) Delete(ctx context.Context, id int64) error {
	return c.mutate(ctx, http.MethodDelete, c.itemPath(id), nil, nil)
}

// Warm loads the cached snapshot into an empty collection. It reports whether
// anything was loaded.
func (c *Collection[T]) Warm(ctx context.Context) (bool, error) {
	var items []T
	ok, err := c.deps.Cache.Get(ctx, c.cacheKey(), &items)
	if err != nil || !ok {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.items != nil {
		return false, nil
	}
	c.items = items
	return true, nil
}

func (c *Collection[T]) mutate(ctx context.Context, method string, path string, body any, out any) error {
	done := c.begin()
	defer done()

	raw, err := c.deps.Session.Do(ctx, method, path, body)
	if err == nil && out != nil {
		err = remote.DecodeEnvelope(raw, out)
	}
	if err != nil {
		c.record(err)
		return err
	}

	if _, err := c.fetch(ctx); err != nil {
		err = fmt.Errorf("refresh %s after %s: %w", c.spec.path, method, err)
		c.record(err)
		return err
	}
	c.record(nil)
	return nil
}

// call runs one request outside the fetch cycle. It still counts towards
// Loading and Err.
func (c *Collection[T]) call(ctx context.Context, method string, path string, body any, out any) error {
	done := c.begin()
	defer done()

	raw, err := c.deps.Session.Do(ctx, method, path, body)
	if err == nil && out != nil {
		err = remote.DecodeEnvelope(raw, out)
	}
	c.record(err)
	return err
}

func (c *Collection[T]) fetch(ctx context.Context) ([]T, error) {
	raw, err := c.deps.Session.Do(ctx, http.MethodGet, c.spec.path, nil)
	if err != nil {
		metrics.SnapshotRefreshTotal.WithLabelValues(c.spec.path, "error").Inc()
		return nil, err
	}

	var items []T
	if c.spec.decode != nil {
		items, err = c.spec.decode(raw)
	} else {
		err = remote.DecodeEnvelope(raw, &items, c.spec.altKeys...)
	}
	if err != nil {
		metrics.SnapshotRefreshTotal.WithLabelValues(c.spec.path, "error").Inc()
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	if c.spec.order != nil {
		slices.SortStableFunc(items, c.spec.order)
	}

	c.mu.Lock()
	c.items = items
	c.mu.Unlock()
	metrics.SnapshotRefreshTotal.WithLabelValues(c.spec.path, "ok").Inc()

	if err := c.deps.Cache.Set(ctx, c.cacheKey(), items, c.deps.TTL); err != nil {
		c.deps.Logger.Warn("snapshot cache write failed",
			zap.String("resource", c.spec.path),
			zap.String("terminal", c.deps.Terminal),
			zap.Error(err))
	}
	return slices.Clone(items), nil
}

func (c *Collection[T]) record(err error) {
	if err != nil && !errors.Is(err, context.Canceled) {
		c.deps.Logger.Warn("entity store operation failed",
			zap.String("resource", c.spec.path),
			zap.String("terminal", c.deps.Terminal),
			zap.Error(err))
	}
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

func (c *Collection[T]) begin() func() {
	c.inflight.Add(1)
	return func() { c.inflight.Add(-1) }
}

func (c *Collection[T]) itemPath(id int64) string {
	return c.spec.path + "/" + strconv.FormatInt(id, 10)
}

func (c *Collection[T]) cacheKey() string {
	return cache.Key(c.deps.Terminal, c.spec.path)
}

// newestFirst orders by date descending, then by id descending. Unparseable
// dates sort after parseable ones.
func newestFirst[T any](date func(T) string, id func(T) int64) func(a, b T) int {
	byID := idDesc(id)
	return func(a, b T) int {
		ta, okA := domain.ParseDate(date(a))
		tb, okB := domain.ParseDate(date(b))
		switch {
		case okA && !okB:
			return -1
		case !okA && okB:
			return 1
		case okA && okB && !ta.Equal(tb):
			if ta.After(tb) {
				return -1
			}
			return 1
		}
		return byID(a, b)
	}
}

func idDesc[T any](id func(T) int64) func(a, b T) int {
	return func(a, b T) int {
		switch ia, ib := id(a), id(b); {
		case ia > ib:
			return -1
		case ia < ib:
			return 1
		}
		return 0
	}
}
