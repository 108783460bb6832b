package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oryonaisystem-create/smartbar-system-sub000/internal/models"
	"github.com/oryonaisystem-create/smartbar-system-sub000/internal/profiles"
	"github.com/oryonaisystem-create/smartbar-system-sub000/internal/telemetry"
)

// fakeProvider serves a fixed GetSession result and a broker for events.
type fakeProvider struct {
	session *Session
	err     error
	broker  *Broker
}

func newFakeProvider(s *Session, err error) *fakeProvider {
	return &fakeProvider{session: s, err: err, broker: NewBroker(8)}
}

func (f *fakeProvider) GetSession(ctx context.Context) (*Session, error) { return f.session, f.err }
func (f *fakeProvider) SignInWithPassword(ctx context.Context, u, p string) (*Session, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeProvider) SignInWithCode(ctx context.Context, c, r string) (*Session, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeProvider) Refresh(ctx context.Context) (*Session, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeProvider) SignOut(ctx context.Context) error     { return nil }
func (f *fakeProvider) Subscribe() (<-chan AuthEvent, func()) { return f.broker.Subscribe() }

// gatedStore wraps a profile service; Get for ids in gates blocks until the gate is closed.
type gatedStore struct {
	*profiles.Service
	mu        sync.Mutex
	gates     map[string]chan struct{}
	entered   chan string
	getErr    error
	provErr   error
	getCalls  int
	provCalls int
}

func newGatedStore() (*gatedStore, *profiles.MemoryRepository) {
	repo := profiles.NewMemoryRepository()
	return &gatedStore{
		Service: profiles.NewService(repo),
		gates:   map[string]chan struct{}{},
		entered: make(chan string, 8),
	}, repo
}

func (g *gatedStore) gate(id string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch := make(chan struct{})
	g.gates[id] = ch
	return ch
}

func (g *gatedStore) Get(ctx context.Context, id string) (*models.Profile, error) {
	g.mu.Lock()
	g.getCalls++
	gate := g.gates[id]
	getErr := g.getErr
	g.mu.Unlock()
	if gate != nil {
		g.entered <- id
		<-gate
	}
	if getErr != nil {
		return nil, getErr
	}
	return g.Service.Get(ctx, id)
}

func (g *gatedStore) Provision(ctx context.Context, p *models.Profile) (*models.Profile, error) {
	g.mu.Lock()
	g.provCalls++
	provErr := g.provErr
	g.mu.Unlock()
	if provErr != nil {
		return nil, provErr
	}
	return g.Service.Provision(ctx, p)
}

type eventLog struct {
	mu     sync.Mutex
	events []telemetry.Event
}

func (l *eventLog) Record(ev telemetry.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) types() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Type)
	}
	return out
}

func recordStates(r *Resolver) func() []State {
	var mu sync.Mutex
	var states []State
	r.OnChange(func(s Snapshot) {
		mu.Lock()
		states = append(states, s.State)
		mu.Unlock()
	})
	return func() []State {
		mu.Lock()
		defer mu.Unlock()
		return append([]State(nil), states...)
	}
}

func ana() *Session {
	return &Session{UserID: "u-ana", Email: "ana@bar.test", AccessToken: "at-ana", Metadata: map[string]string{"full_name": "Ana Souza"}}
}

func TestBoot_NoSessionEndsUnauthenticatedWithoutProfileLookup(t *testing.T) {
	store, _ := newGatedStore()
	r := NewResolver(newFakeProvider(nil, nil), store, Options{})
	states := recordStates(r)

	require.NoError(t, r.Boot(context.Background()))

	snap := r.Snapshot()
	require.Equal(t, StateUnauthenticated, snap.State)
	require.Nil(t, snap.Session)
	require.Equal(t, []State{StateBooting, StateUnauthenticated}, states())
	require.Zero(t, store.getCalls)
}

func TestBoot_MissingProfileIsProvisionedAsAdmin(t *testing.T) {
	store, repo := newGatedStore()
	rec := &eventLog{}
	r := NewResolver(newFakeProvider(ana(), nil), store, Options{Recorder: rec})
	states := recordStates(r)

	require.NoError(t, r.Boot(context.Background()))

	snap := r.Snapshot()
	require.Equal(t, StateAuthenticated, snap.State)
	require.Equal(t, models.RoleAdmin, snap.Role)
	require.Equal(t, "Ana Souza", snap.DisplayName)
	require.Equal(t, "u-ana", snap.Session.UserID)
	require.Equal(t, []State{StateBooting, StateLoadingProfile, StateAuthenticated}, states())

	stored, err := repo.Get(context.Background(), "u-ana")
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, stored.Role)
	require.Equal(t, "ana", stored.Username)
	require.Equal(t, 1, repo.Len())
	require.Equal(t, []string{"auth_resolved"}, rec.types())
}

func TestBoot_ProviderErrorEndsInError(t *testing.T) {
	store, _ := newGatedStore()
	rec := &eventLog{}
	r := NewResolver(newFakeProvider(nil, errors.New("provider unreachable")), store, Options{Recorder: rec})

	err := r.Boot(context.Background())
	require.ErrorContains(t, err, "provider unreachable")

	snap := r.Snapshot()
	require.Equal(t, StateError, snap.State)
	require.Error(t, snap.Err)
	require.Equal(t, []string{"auth_error"}, rec.types())
}

func TestBoot_ProfileFetchErrorEndsInError(t *testing.T) {
	store, _ := newGatedStore()
	store.getErr = errors.New("connection refused")
	r := NewResolver(newFakeProvider(ana(), nil), store, Options{})

	require.Error(t, r.Boot(context.Background()))
	require.Equal(t, StateError, r.Snapshot().State)
	require.Zero(t, store.provCalls)
}

func TestBoot_ProvisioningFailureStillAuthenticatesAsAdmin(t *testing.T) {
	store, repo := newGatedStore()
	store.provErr = errors.New("insert failed")
	r := NewResolver(newFakeProvider(ana(), nil), store, Options{})

	require.NoError(t, r.Boot(context.Background()))
	snap := r.Snapshot()
	require.Equal(t, StateAuthenticated, snap.State)
	require.Equal(t, models.RoleAdmin, snap.Role)
	require.Zero(t, repo.Len())
}

func TestResolve_StoredRoleIsUsed(t *testing.T) {
	store, _ := newGatedStore()
	_, err := store.Service.Provision(context.Background(), &models.Profile{ID: "u-ana", Email: "ana@bar.test", Role: models.RoleWaiter, AvatarURL: "https://cdn/ana.png"})
	require.NoError(t, err)
	r := NewResolver(newFakeProvider(ana(), nil), store, Options{AdminEmails: []string{"owner@bar.test"}, EnforceAllowList: true})

	require.NoError(t, r.Boot(context.Background()))
	snap := r.Snapshot()
	require.Equal(t, models.RoleWaiter, snap.Role)
	require.Equal(t, "https://cdn/ana.png", snap.AvatarURL)
}

func TestResolve_AllowListPromotesAndPersists(t *testing.T) {
	store, repo := newGatedStore()
	_, err := store.Service.Provision(context.Background(), &models.Profile{ID: "u-ana", Email: "ana@bar.test", Role: models.RoleKitchen})
	require.NoError(t, err)
	r := NewResolver(newFakeProvider(ana(), nil), store, Options{AdminEmails: []string{" ANA@bar.test "}, EnforceAllowList: true})

	require.NoError(t, r.Boot(context.Background()))
	require.Equal(t, models.RoleAdmin, r.Snapshot().Role)

	r.Wait()
	stored, err := repo.Get(context.Background(), "u-ana")
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, stored.Role)
}

func TestResolve_AllowListDisabledKeepsDemotion(t *testing.T) {
	store, repo := newGatedStore()
	_, err := store.Service.Provision(context.Background(), &models.Profile{ID: "u-ana", Email: "ana@bar.test", Role: models.RoleKitchen})
	require.NoError(t, err)
	r := NewResolver(newFakeProvider(ana(), nil), store, Options{AdminEmails: []string{"ana@bar.test"}, EnforceAllowList: false})

	require.NoError(t, r.Boot(context.Background()))
	require.Equal(t, models.RoleKitchen, r.Snapshot().Role)

	r.Wait()
	stored, _ := repo.Get(context.Background(), "u-ana")
	require.Equal(t, models.RoleKitchen, stored.Role)
}

func TestResolve_DiscardedResolutionDoesNotPromote(t *testing.T) {
	store, repo := newGatedStore()
	_, err := store.Service.Provision(context.Background(), &models.Profile{ID: "u-ana", Email: "ana@bar.test", Role: models.RoleKitchen})
	require.NoError(t, err)
	gate := store.gate("u-ana")
	r := NewResolver(newFakeProvider(ana(), nil), store, Options{AdminEmails: []string{"ana@bar.test"}, EnforceAllowList: true})

	bootErr := make(chan error, 1)
	go func() { bootErr <- r.Boot(context.Background()) }()
	require.Equal(t, "u-ana", <-store.entered)

	require.NoError(t, r.Handle(context.Background(), AuthEvent{Type: EventSignedOut}))
	close(gate)
	require.NoError(t, <-bootErr)
	r.Wait()

	require.Equal(t, StateUnauthenticated, r.Snapshot().State)
	stored, err := repo.Get(context.Background(), "u-ana")
	require.NoError(t, err)
	require.Equal(t, models.RoleKitchen, stored.Role)
}

func TestSignedOutDiscardsInFlightResolution(t *testing.T) {
	store, _ := newGatedStore()
	gate := store.gate("u-ana")
	rec := &eventLog{}
	r := NewResolver(newFakeProvider(ana(), nil), store, Options{Recorder: rec})

	bootErr := make(chan error, 1)
	go func() { bootErr <- r.Boot(context.Background()) }()
	require.Equal(t, "u-ana", <-store.entered)

	require.NoError(t, r.Handle(context.Background(), AuthEvent{Type: EventSignedOut}))
	close(gate)
	require.NoError(t, <-bootErr)

	snap := r.Snapshot()
	require.Equal(t, StateUnauthenticated, snap.State)
	require.Nil(t, snap.Session)
	require.Empty(t, snap.Role)
	require.Empty(t, rec.types(), "a discarded resolution records nothing")
}

func TestStaleBootResolutionNeverOverwritesNewerSignIn(t *testing.T) {
	store, _ := newGatedStore()
	gate := store.gate("u-ana")
	_, err := store.Service.Provision(context.Background(), &models.Profile{ID: "u-bob", Email: "bob@bar.test", Role: models.RoleWaiter})
	require.NoError(t, err)
	r := NewResolver(newFakeProvider(ana(), nil), store, Options{})

	bootErr := make(chan error, 1)
	go func() { bootErr <- r.Boot(context.Background()) }()
	require.Equal(t, "u-ana", <-store.entered)

	bob := &Session{UserID: "u-bob", Email: "bob@bar.test"}
	require.NoError(t, r.Handle(context.Background(), AuthEvent{Type: EventSignedIn, Session: bob}))
	require.Equal(t, "u-bob", r.Snapshot().Session.UserID)

	close(gate)
	require.NoError(t, <-bootErr)

	snap := r.Snapshot()
	require.Equal(t, StateAuthenticated, snap.State)
	require.Equal(t, "u-bob", snap.Session.UserID)
	require.Equal(t, models.RoleWaiter, snap.Role)
}

func TestCloseDiscardsLateCompletion(t *testing.T) {
	store, _ := newGatedStore()
	gate := store.gate("u-ana")
	r := NewResolver(newFakeProvider(ana(), nil), store, Options{})

	bootErr := make(chan error, 1)
	go func() { bootErr <- r.Boot(context.Background()) }()
	<-store.entered

	r.Close()
	close(gate)
	require.NoError(t, <-bootErr)
	require.Equal(t, StateLoadingProfile, r.Snapshot().State)

	require.ErrorIs(t, r.Boot(context.Background()), ErrClosed)
	require.ErrorIs(t, r.Handle(context.Background(), AuthEvent{Type: EventSignedOut}), ErrClosed)
}

func TestHandle_Validation(t *testing.T) {
	store, _ := newGatedStore()
	r := NewResolver(newFakeProvider(nil, nil), store, Options{})

	require.Error(t, r.Handle(context.Background(), AuthEvent{Type: EventSignedIn}))
	require.Error(t, r.Handle(context.Background(), AuthEvent{Type: "PASSWORD_RECOVERY"}))
}

func TestRun_ProcessesEventsInOrderAndClosesOnCancel(t *testing.T) {
	store, _ := newGatedStore()
	p := newFakeProvider(nil, nil)
	r := NewResolver(p, store, Options{})
	states := recordStates(r)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		p.broker.mu.Lock()
		defer p.broker.mu.Unlock()
		return len(p.broker.subs) == 1
	}, time.Second, 5*time.Millisecond)

	p.broker.Publish(AuthEvent{Type: EventSignedIn, Session: ana()})
	require.Eventually(t, func() bool { return r.Snapshot().State == StateAuthenticated }, time.Second, 5*time.Millisecond)

	p.broker.Publish(AuthEvent{Type: EventSignedOut})
	require.Eventually(t, func() bool { return r.Snapshot().State == StateUnauthenticated }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	r.Wait()
	require.ErrorIs(t, r.Boot(context.Background()), ErrClosed)
	require.Equal(t, []State{StateLoadingProfile, StateAuthenticated, StateUnauthenticated}, states())
}

func TestWaitFor(t *testing.T) {
	store, _ := newGatedStore()
	gate := store.gate("u-ana")
	r := NewResolver(newFakeProvider(nil, nil), store, Options{})

	go func() { _ = r.Handle(context.Background(), AuthEvent{Type: EventSignedIn, Session: ana()}) }()
	<-store.entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.WaitFor(ctx, func(s Snapshot) bool { return s.State == StateAuthenticated })
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(gate)
	snap, err := r.WaitFor(context.Background(), func(s Snapshot) bool { return s.State == StateAuthenticated })
	require.NoError(t, err)
	require.Equal(t, "u-ana", snap.Session.UserID)
}
