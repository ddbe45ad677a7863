package profile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultStaleTime is how long a fetched row is served without a refresh.
const DefaultStaleTime = 5 * time.Minute

// Result is what a consumer sees for one cache key.
type Result struct {
	Data *Profile
	Err  error

	// Disabled is set when no user id was supplied; nothing was fetched.
	Disabled bool
	// Loading is set when the first fetch has not finished yet.
	Loading bool
	// Refreshing is set when stale data is served while a refetch runs.
	Refreshing bool
}

// NotFound reports the "profile not created yet" state, which is not an error.
func (r Result) NotFound() bool {
	return !r.Disabled && !r.Loading && r.Err == nil && r.Data == nil
}

// Observer receives cache activity, typically for metrics.
type Observer interface {
	CacheHit()
	CacheMiss()
	CacheFetch(err error)
}

// CacheOption configures a Cache during construction.
type CacheOption func(*Cache)

// WithStaleTime overrides DefaultStaleTime.
func WithStaleTime(d time.Duration) CacheOption {
	return func(c *Cache) {
		if d > 0 {
			c.staleTime = d
		}
	}
}

// WithObserver reports hits, misses and fetches to o.
func WithObserver(o Observer) CacheOption {
	return func(c *Cache) {
		c.observer = o
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.now = now
	}
}

type entry struct {
	data      *Profile
	err       error
	loaded    bool
	fetchedAt time.Time
	stale     bool
	// generation is bumped by every local write so a fetch issued earlier
	// cannot overwrite it.
	generation uint64
}

// Cache is the keyed profile store shared by every page of one visitor. At
// most one fetch per user id is in flight at a time.
type Cache struct {
	repo      Repository
	logger    *slog.Logger
	observer  Observer
	staleTime time.Duration
	now       func() time.Time

	group singleflight.Group

	mu        sync.Mutex
	entries   map[string]*entry
	listeners map[uint64]func(userID string, r Result)
	nextID    uint64
}

// NewCache creates an empty cache reading through repo.
func NewCache(repo Repository, logger *slog.Logger, opts ...CacheOption) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{
		repo:      repo,
		logger:    logger,
		staleTime: DefaultStaleTime,
		now:       time.Now,
		entries:   make(map[string]*entry),
		listeners: make(map[uint64]func(string, Result)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached row for userID. Fresh data is returned as is; stale
// data is returned immediately while a background refetch runs; with no data
// at all Get waits for the fetch until ctx is done and reports Loading if it
// has not finished by then.
func (c *Cache) Get(ctx context.Context, userID string) Result {
	if userID == "" {
		return Result{Disabled: true}
	}

	c.mu.Lock()
	e, ok := c.entries[userID]
	if ok && c.freshLocked(e) {
		res := resultOf(e)
		c.mu.Unlock()
		c.hit()
		return res
	}
	if ok && e.loaded && e.data != nil {
		res := resultOf(e)
		res.Refreshing = true
		c.mu.Unlock()
		c.hit()
		c.fetch(ctx, userID)
		return res
	}
	c.mu.Unlock()
	c.miss()

	select {
	case <-c.fetch(ctx, userID):
	case <-ctx.Done():
		c.mu.Lock()
		defer c.mu.Unlock()
		if e, ok := c.entries[userID]; ok && e.loaded {
			return resultOf(e)
		}
		return Result{Loading: true}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[userID]; ok {
		return resultOf(e)
	}
	return Result{Loading: true}
}

// Peek returns the cached entry without fetching.
func (c *Cache) Peek(userID string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[userID]
	if !ok || !e.loaded {
		return Result{}, false
	}
	return resultOf(e), true
}

func (c *Cache) fetch(ctx context.Context, userID string) <-chan singleflight.Result {
	c.mu.Lock()
	e := c.entryLocked(userID)
	generation := e.generation
	c.mu.Unlock()

	// The fetch is shared between callers, so it must outlive the request that started it.
	fetchCtx := context.WithoutCancel(ctx)
	return c.group.DoChan(userID, func() (any, error) {
		p, err := c.repo.Get(fetchCtx, userID)
		if err == nil && p != nil {
			err = p.Validate()
			if err != nil {
				p = nil
			}
		}
		if c.observer != nil {
			c.observer.CacheFetch(err)
		}
		c.store(userID, generation, p, err)
		return nil, nil
	})
}

func (c *Cache) store(userID string, generation uint64, p *Profile, err error) {
	c.mu.Lock()
	e, ok := c.entries[userID]
	if !ok || e.generation != generation {
		c.mu.Unlock()
		c.logger.Debug("discarding profile fetch superseded by local write", "user_id", userID)
		return
	}
	if err != nil {
		e.err = err
		e.loaded = true
		c.logger.Warn("profile fetch failed", "user_id", userID, "error", err)
	} else {
		e.data = p
		e.err = nil
		e.loaded = true
		e.stale = false
		e.fetchedAt = c.now()
	}
	res := resultOf(e)
	listeners := c.listenerSnapshot()
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(userID, res)
	}
}

// SetCached merges value onto the cached row without a round trip. Fields
// that are nil in value keep their cached contents.
func (c *Cache) SetCached(userID string, value Profile) {
	if userID == "" {
		return
	}

	c.mu.Lock()
	e := c.entryLocked(userID)
	var merged Profile
	if e.data != nil {
		merged = e.data.Merge(value)
	} else {
		merged = Profile{ID: userID}.Merge(value)
	}
	e.data = &merged
	e.err = nil
	e.loaded = true
	e.stale = false
	e.fetchedAt = c.now()
	e.generation++
	res := resultOf(e)
	listeners := c.listenerSnapshot()
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(userID, res)
	}
}

// Invalidate marks the entry stale so the next Get refetches.
func (c *Cache) Invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[userID]; ok {
		e.stale = true
	}
}

// Remove drops the entry entirely, used when the user signs out.
func (c *Cache) Remove(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[userID]; ok {
		e.generation++
		delete(c.entries, userID)
	}
}

// Subscribe registers fn for every published result. The returned func removes it.
func (c *Cache) Subscribe(fn func(userID string, r Result)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

func (c *Cache) entryLocked(userID string) *entry {
	e, ok := c.entries[userID]
	if !ok {
		e = &entry{}
		c.entries[userID] = e
	}
	return e
}

func (c *Cache) freshLocked(e *entry) bool {
	if !e.loaded || e.stale || e.err != nil || e.fetchedAt.IsZero() {
		return false
	}
	return c.now().Sub(e.fetchedAt) < c.staleTime
}

func (c *Cache) listenerSnapshot() []func(string, Result) {
	out := make([]func(string, Result), 0, len(c.listeners))
	for _, fn := range c.listeners {
		out = append(out, fn)
	}
	return out
}

func (c *Cache) hit() {
	if c.observer != nil {
		c.observer.CacheHit()
	}
}

func (c *Cache) miss() {
	if c.observer != nil {
		c.observer.CacheMiss()
	}
}

func resultOf(e *entry) Result {
	res := Result{Err: e.err}
	if e.data != nil {
		p := *e.data
		res.Data = &p
	}
	return res
}
