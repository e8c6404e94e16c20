package goSession

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/loop"
	"github.com/MrEthical07/goSession/session"
)

type sessionRecorder struct {
	got []*Session
}

func (r *sessionRecorder) observe(s *Session) {
	r.got = append(r.got, s)
}

func (r *sessionRecorder) userIDs() []string {
	out := make([]string, 0, len(r.got))
	for _, s := range r.got {
		if s == nil {
			out = append(out, "")
			continue
		}
		out = append(out, s.UserID)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func newTestStore(t *testing.T) (*SessionStore, *fakeBackend, *loop.Manual) {
	t.Helper()
	backend := newFakeBackend()
	manual := loop.NewManual()
	store := newSessionStore(backend, sessionStoreOptions{
		dispatcher: manual,
		metrics:    NewMetrics(MetricsConfig{Enabled: true}),
		now:        func() time.Time { return time.Unix(1700000000, 0) },
	})
	t.Cleanup(store.Close)
	return store, backend, manual
}

func TestSessionStoreEstablishInstallsAndNotifies(t *testing.T) {
	store, backend, manual := newTestStore(t)
	ctx := context.Background()

	rec := &sessionRecorder{}
	store.Subscribe(rec.observe)

	cred := backend.issue(ProviderPassword, Identity{UserID: "u-1", Email: "a@b.co"})
	sess, err := store.Establish(ctx, cred)
	if err != nil {
		t.Fatalf("Establish failed: %v", err)
	}
	manual.Drain()

	if sess.UserID != "u-1" || sess.DisplayLabel != "a@b.co" || sess.Provider != ProviderPassword {
		t.Fatalf("unexpected session %+v", sess)
	}
	cur, ok := store.Current()
	if !ok || cur != sess {
		t.Fatalf("expected current %+v, got %+v ok=%v", sess, cur, ok)
	}
	if want := []string{"", "u-1"}; !equalStrings(rec.userIDs(), want) {
		t.Fatalf("expected notifications %v, got %v", want, rec.userIDs())
	}
}

func TestSessionStoreEstablishFailureLeavesStateUnchanged(t *testing.T) {
	store, backend, manual := newTestStore(t)
	ctx := context.Background()

	first, err := store.Establish(ctx, backend.issue(ProviderPassword, Identity{UserID: "u-1", Email: "a@b.co"}))
	if err != nil {
		t.Fatalf("Establish failed: %v", err)
	}

	rec := &sessionRecorder{}
	store.Subscribe(rec.observe)
	manual.Drain()

	_, err = store.Establish(ctx, Credential{Provider: ProviderPassword, Proof: "revoked"})
	if !errors.Is(err, ErrCredentialExchangeFailed) {
		t.Fatalf("expected ErrCredentialExchangeFailed, got %v", err)
	}
	if Kind(err) != KindCredentialExchangeFailed {
		t.Fatalf("expected credential exchange kind, got %v", Kind(err))
	}
	_, err = store.Establish(ctx, Credential{})
	if !errors.Is(err, ErrCredentialExchangeFailed) {
		t.Fatalf("expected ErrCredentialExchangeFailed for empty credential, got %v", err)
	}
	manual.Drain()

	cur, ok := store.Current()
	if !ok || cur != first {
		t.Fatalf("expected session to stay %+v, got %+v", first, cur)
	}
	if want := []string{"u-1"}; !equalStrings(rec.userIDs(), want) {
		t.Fatalf("expected only the immediate notification, got %v", rec.userIDs())
	}
}

func TestSessionStoreEstablishReplacesPriorSession(t *testing.T) {
	store, backend, manual := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Establish(ctx, backend.issue(ProviderPassword, Identity{UserID: "u-1", Email: "a@b.co"})); err != nil {
		t.Fatalf("Establish failed: %v", err)
	}
	if _, err := store.Establish(ctx, backend.issue(ProviderPhone, Identity{UserID: "u-2", Phone: "+919876543210"})); err != nil {
		t.Fatalf("Establish failed: %v", err)
	}
	manual.Drain()

	cur, _ := store.Current()
	if cur.UserID != "u-2" || cur.Provider != ProviderPhone || cur.DisplayLabel != "+919876543210" {
		t.Fatalf("expected phone session for u-2, got %+v", cur)
	}
}

func TestSessionStoreSubscribeImmediateNotificationFirst(t *testing.T) {
	store, backend, manual := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Establish(ctx, backend.issue(ProviderPassword, Identity{UserID: "u-1"})); err != nil {
		t.Fatalf("Establish failed: %v", err)
	}
	manual.Drain()

	rec := &sessionRecorder{}
	store.Subscribe(rec.observe)
	if err := store.SignOut(ctx); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}
	manual.Drain()

	if want := []string{"u-1", ""}; !equalStrings(rec.userIDs(), want) {
		t.Fatalf("expected %v, got %v", want, rec.userIDs())
	}
	if rec.got[0].Label() != UnknownUserLabel {
		t.Fatalf("expected unknown user label, got %q", rec.got[0].Label())
	}
}

func TestSessionStoreNotifiesInRegistrationOrder(t *testing.T) {
	store, backend, manual := newTestStore(t)

	var order []string
	store.Subscribe(func(*Session) { order = append(order, "first") })
	store.Subscribe(func(*Session) { order = append(order, "second") })
	if _, err := store.Establish(context.Background(), backend.issue(ProviderPassword, Identity{UserID: "u-1"})); err != nil {
		t.Fatalf("Establish failed: %v", err)
	}
	manual.Drain()

	want := []string{"first", "second", "first", "second"}
	if !equalStrings(order, want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
}

func TestSessionStoreDisposerIdempotent(t *testing.T) {
	store, backend, manual := newTestStore(t)

	rec := &sessionRecorder{}
	stop := store.Subscribe(rec.observe)
	stop()
	stop()

	if _, err := store.Establish(context.Background(), backend.issue(ProviderPassword, Identity{UserID: "u-1"})); err != nil {
		t.Fatalf("Establish failed: %v", err)
	}
	manual.Drain()

	if len(rec.got) != 0 {
		t.Fatalf("expected no deliveries after dispose, got %v", rec.userIDs())
	}
}

func TestSessionStoreSignOutIdempotent(t *testing.T) {
	store, backend, manual := newTestStore(t)
	ctx := context.Background()

	rec := &sessionRecorder{}
	store.Subscribe(rec.observe)
	manual.Drain()

	if err := store.SignOut(ctx); err != nil {
		t.Fatalf("first SignOut failed: %v", err)
	}
	if err := store.SignOut(ctx); err != nil {
		t.Fatalf("second SignOut failed: %v", err)
	}
	manual.Drain()

	if _, ok := store.Current(); ok {
		t.Fatal("expected no session")
	}
	if len(rec.got) != 1 {
		t.Fatalf("expected only the immediate notification, got %d", len(rec.got))
	}
	if backend.signOuts != 2 {
		t.Fatalf("expected backend sign-out on every call, got %d", backend.signOuts)
	}
}

func TestSessionStoreSignOutClearsWhenBackendFails(t *testing.T) {
	store, backend, manual := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Establish(ctx, backend.issue(ProviderPassword, Identity{UserID: "u-1"})); err != nil {
		t.Fatalf("Establish failed: %v", err)
	}
	backend.signOutErr = errors.New("network down")

	err := store.SignOut(ctx)
	if !errors.Is(err, ErrUnknown) {
		t.Fatalf("expected ErrUnknown, got %v", err)
	}
	manual.Drain()
	if _, ok := store.Current(); ok {
		t.Fatal("expected session to be cleared despite backend failure")
	}
}

func TestSessionStoreRevocationClearsSession(t *testing.T) {
	store, backend, manual := newTestStore(t)

	if _, err := store.Establish(context.Background(), backend.issue(ProviderPassword, Identity{UserID: "u-1"})); err != nil {
		t.Fatalf("Establish failed: %v", err)
	}
	rec := &sessionRecorder{}
	store.Subscribe(rec.observe)

	backend.revoke()
	manual.Drain()

	if _, ok := store.Current(); ok {
		t.Fatal("expected revoked session to be cleared")
	}
	if want := []string{"u-1", ""}; !equalStrings(rec.userIDs(), want) {
		t.Fatalf("expected %v, got %v", want, rec.userIDs())
	}
	if got := store.opts.metrics.Value(MetricSessionRevoked); got != 1 {
		t.Fatalf("expected one revocation, got %d", got)
	}
}

func TestSessionStoreRestoreMergesCachedCreatedAt(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()
	defer rdb.Close()

	backend := newFakeBackend()
	manual := loop.NewManual()
	cache := session.NewStore(rdb, "gs")
	cacheCfg := SessionConfig{CacheEnabled: true, CacheKey: "current", CacheTTL: time.Hour}
	clock := time.Unix(1700000000, 0)

	store := newSessionStore(backend, sessionStoreOptions{
		dispatcher: manual,
		cache:      cache,
		cacheCfg:   cacheCfg,
		now:        func() time.Time { return clock },
	})
	defer store.Close()

	ctx := context.Background()
	first, err := store.Establish(ctx, backend.issue(ProviderPassword, Identity{UserID: "u-1", Email: "a@b.co"}))
	if err != nil {
		t.Fatalf("Establish failed: %v", err)
	}

	restarted := newSessionStore(backend, sessionStoreOptions{
		dispatcher: manual,
		cache:      cache,
		cacheCfg:   cacheCfg,
		now:        func() time.Time { return clock.Add(time.Hour) },
	})
	defer restarted.Close()

	got, ok, err := restarted.Restore(ctx)
	if err != nil || !ok {
		t.Fatalf("Restore failed: ok=%v err=%v", ok, err)
	}
	if !got.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("expected CreatedAt %v from cache, got %v", first.CreatedAt, got.CreatedAt)
	}
	if got.DisplayLabel != "a@b.co" {
		t.Fatalf("expected label from backend identity, got %q", got.DisplayLabel)
	}
}

func TestSessionStoreCloseDuringExchangeLeavesIdentityToRestore(t *testing.T) {
	store, backend, _ := newTestStore(t)
	backend.onEstablish = store.Close

	ctx := context.Background()
	_, err := store.Establish(ctx, backend.issue(ProviderPassword, Identity{UserID: "u-1", Email: "a@b.co"}))
	if !errors.Is(err, ErrEngineClosed) {
		t.Fatalf("expected ErrEngineClosed, got %v", err)
	}
	if _, ok := store.Current(); ok {
		t.Fatal("expected no local session after closing mid-exchange")
	}

	backend.onEstablish = nil
	restarted := newSessionStore(backend, sessionStoreOptions{dispatcher: loop.NewManual()})
	defer restarted.Close()
	got, ok, err := restarted.Restore(ctx)
	if err != nil || !ok || got.UserID != "u-1" {
		t.Fatalf("expected the exchanged identity to restore, got %+v ok=%v err=%v", got, ok, err)
	}
}

func TestSessionStoreRestoreWithoutIdentity(t *testing.T) {
	store, _, _ := newTestStore(t)

	_, ok, err := store.Restore(context.Background())
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if ok {
		t.Fatal("expected nothing to restore")
	}
}

func TestSessionStoreCloseStopsDelivery(t *testing.T) {
	store, backend, manual := newTestStore(t)

	rec := &sessionRecorder{}
	store.Subscribe(rec.observe)
	manual.Drain()
	store.Close()

	if backend.listenerCount() != 0 {
		t.Fatal("expected backend watch to be removed")
	}
	if _, err := store.Establish(context.Background(), backend.issue(ProviderPassword, Identity{UserID: "u-1"})); !errors.Is(err, ErrEngineClosed) {
		t.Fatalf("expected ErrEngineClosed, got %v", err)
	}
	manual.Drain()
	if len(rec.got) != 1 {
		t.Fatalf("expected no delivery after close, got %v", rec.userIDs())
	}
}
