package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oryonaisystem-create/smartbar-system-sub000/internal/models"
	"github.com/oryonaisystem-create/smartbar-system-sub000/internal/profiles"
	"github.com/oryonaisystem-create/smartbar-system-sub000/internal/telemetry"
	"github.com/oryonaisystem-create/smartbar-system-sub000/pkg/logger"
	"github.com/oryonaisystem-create/smartbar-system-sub000/pkg/metrics"
)

const roleCorrectionTimeout = 10 * time.Second

var ErrClosed = errors.New("identity resolver closed")

// Options configure a Resolver.
type Options struct {
	// AdminEmails are promoted to admin on every resolution while EnforceAllowList is set.
	AdminEmails      []string
	EnforceAllowList bool
	Recorder         telemetry.Recorder
}

// Resolver owns the boot/login/logout state machine of one terminal.
//
// Every resolution is tagged with a generation number taken when it starts. A
// result is written only if its generation is still the latest and the resolver
// has not been closed, so a slow resolution for an old session can never
// overwrite the state set by a newer one or by a sign-out.
type Resolver struct {
	provider Provider
	profiles ProfileStore
	recorder telemetry.Recorder
	admins   map[string]struct{}
	enforce  bool

	mu        sync.Mutex
	snap      Snapshot
	gen       uint64
	closed    bool
	listeners map[int]func(Snapshot)
	nextID    int

	wg sync.WaitGroup
}

func NewResolver(p Provider, store ProfileStore, opts Options) *Resolver {
	admins := make(map[string]struct{}, len(opts.AdminEmails))
	for _, e := range opts.AdminEmails {
		if e = normalizeEmail(e); e != "" {
			admins[e] = struct{}{}
		}
	}
	rec := opts.Recorder
	if rec == nil {
		rec = telemetry.RecorderFunc(func(telemetry.Event) {})
	}
	return &Resolver{
		provider:  p,
		profiles:  store,
		recorder:  rec,
		admins:    admins,
		enforce:   opts.EnforceAllowList,
		snap:      Snapshot{State: StateBooting},
		listeners: make(map[int]func(Snapshot)),
	}
}

// Snapshot returns the current state.
func (r *Resolver) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap
}

// OnChange registers fn to be called with every applied state. Listeners run
// with the resolver lock held and must not call back into the resolver.
func (r *Resolver) OnChange(fn func(Snapshot)) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.listeners, id)
	}
}

// WaitFor blocks until the state satisfies pred or ctx is done.
func (r *Resolver) WaitFor(ctx context.Context, pred func(Snapshot) bool) (Snapshot, error) {
	changed := make(chan Snapshot, 1)
	unsubscribe := r.OnChange(func(s Snapshot) {
		if !pred(s) {
			return
		}
		select {
		case changed <- s:
		default:
		}
	})
	defer unsubscribe()

	if s := r.Snapshot(); pred(s) {
		return s, nil
	}
	select {
	case s := <-changed:
		return s, nil
	case <-ctx.Done():
		return r.Snapshot(), ctx.Err()
	}
}

// Boot resolves the session that already exists at the provider, if any.
func (r *Resolver) Boot(ctx context.Context) error {
	gen, ok := r.begin(Snapshot{State: StateBooting})
	if !ok {
		return ErrClosed
	}
	sess, err := r.provider.GetSession(ctx)
	if err != nil {
		err = fmt.Errorf("get session: %w", err)
		r.fail(gen, nil, err)
		return err
	}
	if sess == nil {
		if r.apply(gen, Snapshot{State: StateUnauthenticated}) {
			metrics.IdentityResolutions.WithLabelValues("unauthenticated").Inc()
		}
		return nil
	}
	if !r.apply(gen, Snapshot{State: StateLoadingProfile, Session: copySession(sess)}) {
		return nil
	}
	return r.resolve(ctx, gen, sess)
}

// Handle drives the machine with a single auth event and waits for the resulting resolution.
func (r *Resolver) Handle(ctx context.Context, ev AuthEvent) error {
	gen, sess, err := r.accept(ev)
	if err != nil || sess == nil {
		return err
	}
	return r.resolve(ctx, gen, sess)
}

// Run consumes provider events in arrival order until ctx is done, then closes the resolver.
// Each event is accepted synchronously, so a SIGNED_OUT received while an earlier
// resolution is still running invalidates it immediately.
func (r *Resolver) Run(ctx context.Context) {
	events, cancel := r.provider.Subscribe()
	defer cancel()
	defer r.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			gen, sess, err := r.accept(ev)
			if err != nil {
				logger.WarnEvent().Str("component", "identity").Err(err).Msg("auth event rejected")
				continue
			}
			if sess == nil {
				continue
			}
			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				_ = r.resolve(ctx, gen, sess)
			}()
		}
	}
}

// Close tears the resolver down. Resolutions that complete afterwards are discarded.
func (r *Resolver) Close() {
	r.mu.Lock()
	r.closed = true
	r.gen++
	r.mu.Unlock()
}

// Wait blocks until background resolutions and role corrections finish.
func (r *Resolver) Wait() {
	r.wg.Wait()
}

// accept starts a new generation for ev. For sign-in style events it returns the
// session to resolve; for sign-out it applies the final state directly.
func (r *Resolver) accept(ev AuthEvent) (uint64, *Session, error) {
	switch ev.Type {
	case EventSignedIn, EventTokenRefreshed:
		if ev.Session == nil || ev.Session.UserID == "" {
			return 0, nil, fmt.Errorf("%s event without session", ev.Type)
		}
		gen, ok := r.begin(Snapshot{State: StateLoadingProfile, Session: copySession(ev.Session)})
		if !ok {
			return 0, nil, ErrClosed
		}
		return gen, ev.Session, nil
	case EventSignedOut:
		if _, ok := r.begin(Snapshot{State: StateUnauthenticated}); !ok {
			return 0, nil, ErrClosed
		}
		metrics.IdentityResolutions.WithLabelValues("signed_out").Inc()
		return 0, nil, nil
	default:
		return 0, nil, fmt.Errorf("unknown auth event %q", ev.Type)
	}
}

func (r *Resolver) resolve(ctx context.Context, gen uint64, sess *Session) error {
	profile, provisioned, err := r.loadProfile(ctx, sess)
	if err != nil {
		err = fmt.Errorf("resolve profile %s: %w", sess.UserID, err)
		r.fail(gen, sess, err)
		return err
	}

	role := profile.Role
	email := sess.Email
	if email == "" {
		email = profile.Email
	}
	promote := r.enforce && r.isAdmin(email) && role != models.RoleAdmin
	if promote {
		role = models.RoleAdmin
	}

	name := profile.FullName
	if name == "" {
		name = profiles.DisplayName(sess.Metadata, email)
	}
	next := Snapshot{
		State:       StateAuthenticated,
		Session:     copySession(sess),
		Role:        role,
		AvatarURL:   profile.AvatarURL,
		DisplayName: name,
	}
	if !r.apply(gen, next) {
		metrics.IdentityResolutions.WithLabelValues("stale").Inc()
		return nil
	}
	if promote {
		r.correctRole(sess.UserID)
	}
	metrics.IdentityResolutions.WithLabelValues("authenticated").Inc()
	r.recorder.Record(telemetry.Event{
		Type:     "auth_resolved",
		Severity: telemetry.SeverityInfo,
		UserID:   sess.UserID,
		Message:  "operator authenticated",
		Context: map[string]interface{}{
			"role":        string(role),
			"provisioned": provisioned,
			"generation":  gen,
		},
	})
	return nil
}

// loadProfile returns the stored profile, provisioning an admin profile when none exists.
// A failed provisioning write still yields an in-memory admin profile.
func (r *Resolver) loadProfile(ctx context.Context, sess *Session) (*models.Profile, bool, error) {
	p, err := r.profiles.Get(ctx, sess.UserID)
	if err == nil {
		return p, false, nil
	}
	if !errors.Is(err, profiles.ErrNotFound) {
		return nil, false, err
	}

	fresh := &models.Profile{
		ID:       sess.UserID,
		Email:    sess.Email,
		Role:     models.RoleAdmin,
		Username: username(sess),
		FullName: profiles.DisplayName(sess.Metadata, sess.Email),
	}
	stored, err := r.profiles.Provision(ctx, fresh)
	if err != nil {
		logger.WarnEvent().Str("component", "identity").Str("user_id", sess.UserID).Err(err).
			Msg("profile provisioning failed; continuing with in-memory admin role")
		return fresh, true, nil
	}
	return stored, true, nil
}

// correctRole persists the allow-list promotion in the background; the outcome
// only gets logged.
func (r *Resolver) correctRole(userID string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), roleCorrectionTimeout)
		defer cancel()
		if err := r.profiles.UpdateRole(ctx, userID, models.RoleAdmin); err != nil {
			logger.WarnEvent().Str("component", "identity").Str("user_id", userID).Err(err).Msg("allow-list role correction failed")
			return
		}
		logger.InfoEvent().Str("component", "identity").Str("user_id", userID).Msg("allow-list role correction persisted")
	}()
}

func (r *Resolver) fail(gen uint64, sess *Session, err error) {
	if !r.apply(gen, Snapshot{State: StateError, Session: copySession(sess), Err: err}) {
		metrics.IdentityResolutions.WithLabelValues("stale").Inc()
		return
	}
	metrics.IdentityResolutions.WithLabelValues("error").Inc()
	ev := telemetry.Event{Type: "auth_error", Severity: telemetry.SeverityError, Message: err.Error()}
	if sess != nil {
		ev.UserID = sess.UserID
	}
	r.recorder.Record(ev)
}

// begin starts a new generation and applies s under it.
func (r *Resolver) begin(s Snapshot) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, false
	}
	r.gen++
	s.Generation = r.gen
	r.setLocked(s)
	return r.gen, true
}

// apply writes s only while gen is current and the resolver is open.
func (r *Resolver) apply(gen uint64, s Snapshot) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || gen != r.gen {
		return false
	}
	s.Generation = gen
	r.setLocked(s)
	return true
}

func (r *Resolver) setLocked(s Snapshot) {
	r.snap = s
	for _, fn := range r.listeners {
		fn(s)
	}
}

func (r *Resolver) isAdmin(email string) bool {
	_, ok := r.admins[normalizeEmail(email)]
	return ok
}

func normalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

func username(sess *Session) string {
	if u := sess.Metadata["preferred_username"]; u != "" {
		return u
	}
	if i := strings.Index(sess.Email, "@"); i > 0 {
		return sess.Email[:i]
	}
	return sess.UserID
}

func copySession(s *Session) *Session {
	if s == nil {
		return nil
	}
	cp := *s
	if s.Metadata != nil {
		cp.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
