// Package visitor keeps one auth session and profile cache per browser.
package visitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"rigshare/internal/auth"
	"rigshare/internal/backend"
	"rigshare/internal/profile"
)

// DefaultIdleTimeout is how long a visitor may go without a request before it is swept.
const DefaultIdleTimeout = 30 * time.Minute

const sweepSchedule = "@every 1m"

// AuthFactory builds the auth client for a visitor, seeded with the refresh
// token from their cookie. Both backend.Client and memory.Backend satisfy it.
type AuthFactory interface {
	NewAuth(refreshToken string) *backend.AuthClient
}

// ProfileRepositoryFunc returns the repository a visitor's profile calls go
// through. Hosted deployments authenticate row calls with the visitor's own
// token; local stores ignore the client.
type ProfileRepositoryFunc func(client *backend.AuthClient) profile.Repository

// SharedProfiles returns a ProfileRepositoryFunc that hands every visitor repo.
func SharedProfiles(repo profile.Repository) ProfileRepositoryFunc {
	return func(*backend.AuthClient) profile.Repository { return repo }
}

// Visitor is one browser's view of the backend.
type Visitor struct {
	ID       string
	Auth     *backend.AuthClient
	Session  *auth.Provider
	Profiles *profile.Cache
	Settings *profile.Service

	mu       sync.Mutex
	lastSeen time.Time
	userID   string
	stop     []func()
}

// RefreshToken is the value to persist in the visitor's cookie.
func (v *Visitor) RefreshToken() string {
	return v.Auth.RefreshToken()
}

func (v *Visitor) touch(now time.Time) {
	v.mu.Lock()
	v.lastSeen = now
	v.mu.Unlock()
}

func (v *Visitor) idleSince(cutoff time.Time) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastSeen.Before(cutoff)
}

// track drops the cached profile of a user who signed out of this browser.
func (v *Visitor) track(state auth.State) {
	if state.IsLoading {
		return
	}
	next := ""
	if state.User != nil {
		next = state.User.ID
	}

	v.mu.Lock()
	prev := v.userID
	v.userID = next
	v.mu.Unlock()

	if prev != "" && prev != next {
		v.Profiles.Remove(prev)
	}
}

func (v *Visitor) close() {
	v.mu.Lock()
	stop := v.stop
	v.stop = nil
	v.mu.Unlock()

	for _, fn := range stop {
		fn()
	}
	v.Session.Close()
}

// Option configures a Registry.
type Option func(*Registry)

// WithIdleTimeout overrides DefaultIdleTimeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.idle = d
		}
	}
}

// WithProviderOptions passes opts to every visitor's auth provider.
func WithProviderOptions(opts ...auth.ProviderOption) Option {
	return func(r *Registry) {
		r.providerOpts = append(r.providerOpts, opts...)
	}
}

// WithCacheOptions passes opts to every visitor's profile cache.
func WithCacheOptions(opts ...profile.CacheOption) Option {
	return func(r *Registry) {
		r.cacheOpts = append(r.cacheOpts, opts...)
	}
}

// WithAvatarStore enables avatar uploads on the settings service.
func WithAvatarStore(store profile.AvatarStore) Option {
	return func(r *Registry) {
		r.avatars = store
	}
}

// WithCountHook reports the number of live visitors after every change.
func WithCountHook(fn func(int)) Option {
	return func(r *Registry) {
		r.onCount = fn
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// Registry creates visitors on first sight and sweeps idle ones.
type Registry struct {
	auths        AuthFactory
	profiles     ProfileRepositoryFunc
	logger       *slog.Logger
	idle         time.Duration
	now          func() time.Time
	providerOpts []auth.ProviderOption
	cacheOpts    []profile.CacheOption
	avatars      profile.AvatarStore
	onCount      func(int)

	mu       sync.Mutex
	visitors map[string]*Visitor
	sched    *cron.Cron
}

// NewRegistry wires a Registry. Call Start to begin sweeping.
func NewRegistry(auths AuthFactory, profiles ProfileRepositoryFunc, logger *slog.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		auths:    auths,
		profiles: profiles,
		logger:   logger,
		idle:     DefaultIdleTimeout,
		now:      time.Now,
		visitors: make(map[string]*Visitor),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Lookup returns the visitor for id, creating and starting one when the id is
// unknown. refreshToken seeds a new visitor's session; it is ignored for
// visitors already in memory. The bool reports whether a visitor was created.
func (r *Registry) Lookup(ctx context.Context, id, refreshToken string) (*Visitor, bool) {
	now := r.now()

	r.mu.Lock()
	if v, ok := r.visitors[id]; ok && id != "" {
		r.mu.Unlock()
		v.touch(now)
		return v, false
	}
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}
	v := r.newVisitor(id, refreshToken, now)
	r.visitors[id] = v
	count := len(r.visitors)
	r.mu.Unlock()

	r.reportCount(count)
	// The session fetch outlives the request that triggered it.
	v.Session.Start(context.WithoutCancel(ctx))
	r.logger.Debug("visitor created", "visitor_id", id, "restored", refreshToken != "")
	return v, true
}

func (r *Registry) newVisitor(id, refreshToken string, now time.Time) *Visitor {
	client := r.auths.NewAuth(refreshToken)
	repo := r.profiles(client)
	logger := r.logger.With("visitor_id", id)

	v := &Visitor{
		ID:       id,
		Auth:     client,
		Session:  auth.NewProvider(client, logger, r.providerOpts...),
		Profiles: profile.NewCache(repo, logger, r.cacheOpts...),
		Settings: profile.NewService(repo, r.avatars),
		lastSeen: now,
	}
	v.stop = append(v.stop, v.Session.Subscribe(v.track))
	return v
}

// Len reports how many visitors are held in memory.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.visitors)
}

// Sweep closes and forgets visitors idle for longer than the idle timeout.
// Their refresh tokens stay in their cookies, so a later request restores them.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idle)

	r.mu.Lock()
	var idle []*Visitor
	for id, v := range r.visitors {
		if v.idleSince(cutoff) {
			idle = append(idle, v)
			delete(r.visitors, id)
		}
	}
	count := len(r.visitors)
	r.mu.Unlock()

	for _, v := range idle {
		v.close()
	}
	if len(idle) > 0 {
		r.reportCount(count)
		r.logger.Info("swept idle visitors", "swept", len(idle), "remaining", count)
	}
	return len(idle)
}

func (r *Registry) reportCount(n int) {
	if r.onCount != nil {
		r.onCount(n)
	}
}

// Start schedules the idle sweep.
func (r *Registry) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sched != nil {
		return nil
	}
	sched := cron.New()
	if _, err := sched.AddFunc(sweepSchedule, func() { r.Sweep() }); err != nil {
		return err
	}
	sched.Start()
	r.sched = sched
	return nil
}

// Stop halts the sweep, waits for a running sweep, then closes every visitor.
func (r *Registry) Stop(ctx context.Context) {
	r.mu.Lock()
	sched := r.sched
	r.sched = nil
	visitors := r.visitors
	r.visitors = make(map[string]*Visitor)
	r.mu.Unlock()

	if sched != nil {
		select {
		case <-sched.Stop().Done():
		case <-ctx.Done():
		}
	}
	for _, v := range visitors {
		v.close()
	}
	r.reportCount(0)
}
