package auth

import (
	"context"
	"log/slog"
	"sync"
)

// State is the snapshot consumers branch on: loading, authenticated or anonymous.
type State struct {
	Session   *Session
	User      *User
	IsLoading bool
}

// Authenticated reports whether the state holds a resolved, live session.
func (s State) Authenticated() bool {
	return !s.IsLoading && s.Session != nil
}

// ProviderOption configures a Provider during construction.
type ProviderOption func(*Provider)

// WithEventHook registers a callback invoked for every auth event delivered to the provider.
func WithEventHook(hook func(EventKind)) ProviderOption {
	return func(p *Provider) {
		p.eventHook = hook
	}
}

// Provider holds one visitor's auth session and keeps it in sync with the
// backend client. Only the initial session fetch and the event subscription
// write the session; every write carries a sequence number taken when the
// write was issued, and writes older than the last applied one are dropped.
type Provider struct {
	client    Client
	logger    *slog.Logger
	eventHook func(EventKind)

	mu          sync.Mutex
	state       State
	issued      uint64
	applied     uint64
	started     bool
	closed      bool
	unsubscribe func()
	listeners   map[uint64]func(State)
	nextID      uint64

	notifyMu   sync.Mutex
	loaded     chan struct{}
	loadedOnce sync.Once
}

// NewProvider creates a Provider in the loading state. Call Start to populate it.
func NewProvider(client Client, logger *slog.Logger, opts ...ProviderOption) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Provider{
		client:    client,
		logger:    logger,
		state:     State{IsLoading: true},
		listeners: make(map[uint64]func(State)),
		loaded:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start subscribes to auth events and, without waiting on the subscription,
// fetches the current session. ctx bounds the initial fetch only.
func (p *Provider) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started || p.closed {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	unsubscribe := p.client.OnAuthStateChange(p.handleEvent)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		unsubscribe()
		return
	}
	p.unsubscribe = unsubscribe
	p.issued++
	seq := p.issued
	p.mu.Unlock()

	go func() {
		defer p.markLoaded()

		session, err := p.client.GetSession(ctx)
		if err != nil {
			p.logger.Warn("initial session fetch failed", "error", err)
			p.finishLoading()
			return
		}
		if !p.apply(seq, session) {
			p.logger.Debug("initial session superseded by auth event", "seq", seq)
		}
	}()
}

func (p *Provider) handleEvent(evt Event) {
	if p.eventHook != nil {
		p.eventHook(evt.Kind)
	}

	p.mu.Lock()
	p.issued++
	seq := p.issued
	p.mu.Unlock()

	p.apply(seq, evt.Session)
	p.markLoaded()
}

func (p *Provider) apply(seq uint64, session *Session) bool {
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()

	p.mu.Lock()
	if p.closed || seq <= p.applied {
		p.mu.Unlock()
		return false
	}
	p.applied = seq
	p.state = stateFor(session)
	snapshot := p.state
	listeners := p.listenerSnapshot()
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
	return true
}

func (p *Provider) finishLoading() {
	p.setLoading(false)
}

func (p *Provider) setLoading(loading bool) {
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()

	p.mu.Lock()
	if p.state.IsLoading == loading {
		p.mu.Unlock()
		return
	}
	p.state.IsLoading = loading
	snapshot := p.state
	listeners := p.listenerSnapshot()
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
}

func (p *Provider) markLoaded() {
	p.loadedOnce.Do(func() {
		close(p.loaded)
	})
}

func (p *Provider) listenerSnapshot() []func(State) {
	out := make([]func(State), 0, len(p.listeners))
	for _, fn := range p.listeners {
		out = append(out, fn)
	}
	return out
}

func stateFor(session *Session) State {
	if session == nil {
		return State{}
	}
	user := session.User
	return State{Session: session, User: &user}
}

// Snapshot returns the current state without blocking.
func (p *Provider) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Await blocks until the first session write lands or ctx is done, then
// returns the current state. The state may still be loading if ctx expired.
func (p *Provider) Await(ctx context.Context) State {
	select {
	case <-p.loaded:
	case <-ctx.Done():
	}
	return p.Snapshot()
}

// Subscribe registers fn to receive every state change. The returned func removes it.
func (p *Provider) Subscribe(fn func(State)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	id := p.nextID
	p.listeners[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
	}
}

// SignOut flags the provider as loading and asks the backend to end the
// session. The session itself is cleared by the resulting SIGNED_OUT event.
// If the backend call fails the loading flag is reset and the old session kept.
func (p *Provider) SignOut(ctx context.Context) error {
	p.setLoading(true)
	if err := p.client.SignOut(ctx); err != nil {
		p.setLoading(false)
		return err
	}
	return nil
}

// Close cancels the event subscription. The provider ignores writes afterwards.
func (p *Provider) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	unsubscribe := p.unsubscribe
	p.unsubscribe = nil
	p.listeners = make(map[uint64]func(State))
	p.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	p.markLoaded()
}
