package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type clientStub struct {
	mu           sync.Mutex
	listeners    map[int]func(Event)
	nextID       int
	unsubscribed int

	getSession func(ctx context.Context) (*Session, error)
	signOut    func(ctx context.Context) error
}

func newClientStub() *clientStub {
	return &clientStub{listeners: make(map[int]func(Event))}
}

func (c *clientStub) emit(evt Event) {
	c.mu.Lock()
	fns := make([]func(Event), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(evt)
	}
}

func (c *clientStub) GetSession(ctx context.Context) (*Session, error) {
	if c.getSession != nil {
		return c.getSession(ctx)
	}
	return nil, nil
}

func (c *clientStub) OnAuthStateChange(fn func(Event)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
		c.unsubscribed++
	}
}

func (c *clientStub) SignInWithPassword(ctx context.Context, creds Credentials) (*Session, error) {
	return nil, nil
}

func (c *clientStub) SignInWithIDToken(ctx context.Context, provider, idToken string) (*Session, error) {
	return nil, nil
}

func (c *clientStub) SignUp(ctx context.Context, params SignUpParams) (*Session, error) {
	return nil, nil
}

func (c *clientStub) VerifyOTP(ctx context.Context, tokenHash string, kind OTPType) (*Session, error) {
	return nil, nil
}

func (c *clientStub) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	return nil
}

func (c *clientStub) UpdateUser(ctx context.Context, attrs UserAttributes) (*User, error) {
	return nil, nil
}

func (c *clientStub) SignOut(ctx context.Context) error {
	if c.signOut != nil {
		return c.signOut(ctx)
	}
	c.emit(Event{Kind: EventSignedOut})
	return nil
}

func (c *clientStub) listenerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sessionFor(id, email string) *Session {
	return &Session{
		AccessToken:  "access-" + id,
		RefreshToken: "refresh-" + id,
		ExpiresAt:    time.Now().Add(time.Hour),
		User:         User{ID: id, Email: email},
	}
}

func awaitLoaded(t *testing.T, p *Provider) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	state := p.Await(ctx)
	if ctx.Err() != nil {
		t.Fatal("timed out waiting for provider to load")
	}
	return state
}

func TestProviderStartsLoading(t *testing.T) {
	p := NewProvider(newClientStub(), testLogger())

	state := p.Snapshot()
	if !state.IsLoading {
		t.Fatal("expected provider to start in loading state")
	}
	if state.Session != nil || state.User != nil {
		t.Fatalf("expected empty session while loading, got %+v", state)
	}
}

func TestProviderInitialFetchPopulatesSession(t *testing.T) {
	client := newClientStub()
	client.getSession = func(ctx context.Context) (*Session, error) {
		return sessionFor("user-1", "one@example.com"), nil
	}
	p := NewProvider(client, testLogger())
	p.Start(context.Background())
	defer p.Close()

	state := awaitLoaded(t, p)
	if state.IsLoading {
		t.Fatal("expected loading to finish")
	}
	if state.User == nil || state.User.ID != "user-1" {
		t.Fatalf("expected user-1, got %+v", state.User)
	}
	if !state.Authenticated() {
		t.Fatal("expected authenticated state")
	}
}

func TestProviderInitialFetchErrorEndsLoadingAnonymous(t *testing.T) {
	client := newClientStub()
	client.getSession = func(ctx context.Context) (*Session, error) {
		return nil, errors.New("network down")
	}
	p := NewProvider(client, testLogger())
	p.Start(context.Background())
	defer p.Close()

	state := awaitLoaded(t, p)
	deadline := time.Now().Add(time.Second)
	for state.IsLoading && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
		state = p.Snapshot()
	}
	if state.IsLoading || state.Session != nil {
		t.Fatalf("expected anonymous resolved state, got %+v", state)
	}
}

func TestProviderAppliesEventsInDeliveryOrder(t *testing.T) {
	client := newClientStub()
	p := NewProvider(client, testLogger())
	p.Start(context.Background())
	defer p.Close()
	awaitLoaded(t, p)

	client.emit(Event{Kind: EventSignedIn, Session: sessionFor("user-1", "one@example.com")})
	client.emit(Event{Kind: EventTokenRefreshed, Session: sessionFor("user-2", "two@example.com")})
	client.emit(Event{Kind: EventUserUpdated, Session: sessionFor("user-3", "three@example.com")})

	state := p.Snapshot()
	if state.User == nil || state.User.ID != "user-3" {
		t.Fatalf("expected latest event user, got %+v", state.User)
	}

	client.emit(Event{Kind: EventSignedOut})
	state = p.Snapshot()
	if state.Session != nil || state.User != nil {
		t.Fatalf("expected empty session after sign-out, got %+v", state)
	}
}

func TestProviderDiscardsSlowInitialFetch(t *testing.T) {
	client := newClientStub()
	release := make(chan struct{})
	fetched := make(chan struct{})
	client.getSession = func(ctx context.Context) (*Session, error) {
		<-release
		defer close(fetched)
		return sessionFor("stale", "stale@example.com"), nil
	}
	p := NewProvider(client, testLogger())
	p.Start(context.Background())
	defer p.Close()

	client.emit(Event{Kind: EventSignedIn, Session: sessionFor("fresh", "fresh@example.com")})
	close(release)
	<-fetched
	time.Sleep(20 * time.Millisecond)

	state := p.Snapshot()
	if state.User == nil || state.User.ID != "fresh" {
		t.Fatalf("expected event session to win over slow fetch, got %+v", state.User)
	}
	if state.IsLoading {
		t.Fatal("expected loading to be resolved by the event")
	}
}

func TestProviderSignOutClearsThroughEvent(t *testing.T) {
	client := newClientStub()
	client.getSession = func(ctx context.Context) (*Session, error) {
		return sessionFor("user-1", "one@example.com"), nil
	}
	p := NewProvider(client, testLogger())
	p.Start(context.Background())
	defer p.Close()
	awaitLoaded(t, p)

	var observed []State
	var mu sync.Mutex
	unsubscribe := p.Subscribe(func(s State) {
		mu.Lock()
		observed = append(observed, s)
		mu.Unlock()
	})
	defer unsubscribe()

	if err := p.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut returned error: %v", err)
	}

	state := p.Snapshot()
	if state.Session != nil || state.User != nil || state.IsLoading {
		t.Fatalf("expected anonymous state after sign-out, got %+v", state)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(observed) < 2 || !observed[0].IsLoading {
		t.Fatalf("expected loading flag before sign-out event, got %+v", observed)
	}
}

func TestProviderSignOutFailureKeepsSession(t *testing.T) {
	client := newClientStub()
	client.getSession = func(ctx context.Context) (*Session, error) {
		return sessionFor("user-1", "one@example.com"), nil
	}
	client.signOut = func(ctx context.Context) error {
		return &Error{Status: 500, Message: "backend unavailable"}
	}
	p := NewProvider(client, testLogger())
	p.Start(context.Background())
	defer p.Close()
	awaitLoaded(t, p)

	err := p.SignOut(context.Background())
	if err == nil || Message(err) != "backend unavailable" {
		t.Fatalf("expected backend error, got %v", err)
	}
	state := p.Snapshot()
	if state.IsLoading || state.User == nil {
		t.Fatalf("expected session retained and loading reset, got %+v", state)
	}
}

func TestProviderCloseCancelsSubscription(t *testing.T) {
	client := newClientStub()
	p := NewProvider(client, testLogger())
	p.Start(context.Background())
	awaitLoaded(t, p)

	if client.listenerCount() != 1 {
		t.Fatalf("expected exactly one subscription, got %d", client.listenerCount())
	}

	p.Close()
	if client.listenerCount() != 0 {
		t.Fatalf("expected subscription removed, got %d", client.listenerCount())
	}

	client.emit(Event{Kind: EventSignedIn, Session: sessionFor("late", "late@example.com")})
	if p.Snapshot().User != nil {
		t.Fatal("expected closed provider to ignore events")
	}
}

func TestProviderStartIsIdempotent(t *testing.T) {
	client := newClientStub()
	p := NewProvider(client, testLogger())
	p.Start(context.Background())
	p.Start(context.Background())
	defer p.Close()
	awaitLoaded(t, p)

	if client.listenerCount() != 1 {
		t.Fatalf("expected one subscription, got %d", client.listenerCount())
	}
}

func TestProviderEventHook(t *testing.T) {
	client := newClientStub()
	var kinds []EventKind
	p := NewProvider(client, testLogger(), WithEventHook(func(k EventKind) {
		kinds = append(kinds, k)
	}))
	p.Start(context.Background())
	defer p.Close()
	awaitLoaded(t, p)

	client.emit(Event{Kind: EventSignedIn, Session: sessionFor("user-1", "one@example.com")})
	client.emit(Event{Kind: EventSignedOut})

	if len(kinds) != 2 || kinds[0] != EventSignedIn || kinds[1] != EventSignedOut {
		t.Fatalf("unexpected hook calls: %v", kinds)
	}
}
