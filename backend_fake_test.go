package goSession

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/loop"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeUser struct {
	id     string
	secret string
}

type fakeSend struct {
	number      string
	timeout     time.Duration
	resendToken string
	cb          PhoneCallbacks
}

// fakeBackend is an in-memory IdentityBackend. Phone sends are recorded and completed
// by the test through the stored callbacks.
type fakeBackend struct {
	mu sync.Mutex

	users       map[string]fakeUser
	tokens      map[string]Identity
	codes       map[string]string
	phoneUsers  map[string]string
	credentials map[string]Identity
	current     *Identity
	nextID      int

	listeners  map[int]func(*Identity)
	listenerID int

	sends        []fakeSend
	sendErr      error
	signInErr    error
	establishErr error
	signOutErr   error
	onEstablish  func()
	resets       []string
	signOuts     int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		users:       map[string]fakeUser{},
		tokens:      map[string]Identity{},
		codes:       map[string]string{},
		phoneUsers:  map[string]string{},
		credentials: map[string]Identity{},
		listeners:   map[int]func(*Identity){},
	}
}

func (b *fakeBackend) addUser(email, secret string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := fmt.Sprintf("user-%d", b.nextID)
	b.users[email] = fakeUser{id: id, secret: secret}
	return id
}

func (b *fakeBackend) issueLocked(provider ProviderKind, ident Identity) Credential {
	b.nextID++
	proof := fmt.Sprintf("cred-%d", b.nextID)
	ident.Provider = provider
	b.credentials[proof] = ident
	return Credential{Provider: provider, Proof: proof, IssuedAt: time.Unix(1700000000, 0)}
}

func (b *fakeBackend) issue(provider ProviderKind, ident Identity) Credential {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.issueLocked(provider, ident)
}

func (b *fakeBackend) SignIn(_ context.Context, email, secret string) (Credential, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.signInErr != nil {
		return Credential{}, b.signInErr
	}
	u, ok := b.users[email]
	if !ok || u.secret != secret {
		return Credential{}, ErrInvalidCredentials
	}
	return b.issueLocked(ProviderPassword, Identity{UserID: u.id, Email: email}), nil
}

func (b *fakeBackend) CreateIdentity(_ context.Context, email, secret string) (Credential, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.users[email]; ok {
		return Credential{}, ErrAlreadyInUse
	}
	b.nextID++
	id := fmt.Sprintf("user-%d", b.nextID)
	b.users[email] = fakeUser{id: id, secret: secret}
	return b.issueLocked(ProviderPassword, Identity{UserID: id, Email: email}), nil
}

func (b *fakeBackend) ExchangeExternalToken(_ context.Context, token string) (Credential, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ident, ok := b.tokens[token]
	if !ok {
		return Credential{}, ErrInvalidCredentials
	}
	return b.issueLocked(ProviderFederated, ident), nil
}

func (b *fakeBackend) SendPhoneCode(_ context.Context, number string, timeout time.Duration, resendToken string, cb PhoneCallbacks) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sends = append(b.sends, fakeSend{number: number, timeout: timeout, resendToken: resendToken, cb: cb})
	return nil
}

// completeSend fires CodeSent for the latest send and records code for vid.
func (b *fakeBackend) completeSend(t *testing.T, vid, resendToken, code string) {
	t.Helper()
	b.mu.Lock()
	if len(b.sends) == 0 {
		b.mu.Unlock()
		t.Fatal("no phone send recorded")
	}
	s := b.sends[len(b.sends)-1]
	b.codes[vid] = code
	b.phoneUsers[vid] = s.number
	b.mu.Unlock()
	s.cb.CodeSent(vid, resendToken)
}

func (b *fakeBackend) lastSend(t *testing.T) fakeSend {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.sends) == 0 {
		t.Fatal("no phone send recorded")
	}
	return b.sends[len(b.sends)-1]
}

func (b *fakeBackend) ConfirmPhoneCode(_ context.Context, vid, code string) (Credential, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	want, ok := b.codes[vid]
	if !ok {
		return Credential{}, ErrExpired
	}
	if want != code {
		return Credential{}, ErrInvalidCredentials
	}
	delete(b.codes, vid)
	number := b.phoneUsers[vid]
	return b.issueLocked(ProviderPhone, Identity{UserID: "phone-" + number, Phone: number}), nil
}

func (b *fakeBackend) EstablishSession(_ context.Context, cred Credential) (Identity, error) {
	b.mu.Lock()
	if b.establishErr != nil {
		err := b.establishErr
		b.mu.Unlock()
		return Identity{}, err
	}
	ident, ok := b.credentials[cred.Proof]
	if !ok {
		b.mu.Unlock()
		return Identity{}, errors.New("credential revoked")
	}
	delete(b.credentials, cred.Proof)
	c := ident
	b.current = &c
	hook := b.onEstablish
	b.mu.Unlock()

	b.notify(&c)
	if hook != nil {
		hook()
	}
	return ident, nil
}

func (b *fakeBackend) CurrentIdentity(context.Context) (*Identity, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return nil, nil
	}
	c := *b.current
	return &c, nil
}

func (b *fakeBackend) SignOut(context.Context) error {
	b.mu.Lock()
	b.signOuts++
	if b.signOutErr != nil {
		err := b.signOutErr
		b.mu.Unlock()
		return err
	}
	b.current = nil
	b.mu.Unlock()

	b.notify(nil)
	return nil
}

// revoke drops the current identity the way a remote revocation would.
func (b *fakeBackend) revoke() {
	b.mu.Lock()
	b.current = nil
	b.mu.Unlock()
	b.notify(nil)
}

func (b *fakeBackend) OnIdentityChanged(fn func(*Identity)) func() {
	b.mu.Lock()
	b.listenerID++
	id := b.listenerID
	b.listeners[id] = fn
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}

func (b *fakeBackend) listenerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

func (b *fakeBackend) notify(ident *Identity) {
	b.mu.Lock()
	fns := make([]func(*Identity), 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn(ident)
	}
}

func (b *fakeBackend) SendPasswordReset(_ context.Context, email string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.users[email]; !ok {
		return ErrInvalidCredentials
	}
	b.resets = append(b.resets, email)
	return nil
}

type fakeTimers struct {
	mu      sync.Mutex
	pending []*fakeTimer
}

type fakeTimer struct {
	d       time.Duration
	fn      func()
	stopped bool
}

func (c *fakeTimers) AfterFunc(d time.Duration, fn func()) func() bool {
	t := &fakeTimer{d: d, fn: fn}
	c.mu.Lock()
	c.pending = append(c.pending, t)
	c.mu.Unlock()
	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		was := !t.stopped
		t.stopped = true
		return was
	}
}

func (c *fakeTimers) fireAll() {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()
	for _, t := range pending {
		if !t.stopped {
			t.fn()
		}
	}
}

type testEngine struct {
	*Engine
	backend *fakeBackend
	loop    *loop.Manual
	timers  *fakeTimers
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func newTestEngine(t *testing.T, configure func(*Builder)) *testEngine {
	t.Helper()

	backend := newFakeBackend()
	manual := loop.NewManual()
	timers := &fakeTimers{}

	cfg := DefaultConfig()
	cfg.Metrics.Enabled = true
	b := New().
		WithConfig(cfg).
		WithBackend(backend).
		WithDispatcher(manual).
		withClock(func() time.Time { return time.Unix(1700000000, 0) }, timers.AfterFunc).
		withSpawn(func(fn func()) { fn() })
	if configure != nil {
		configure(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEngine{
		Engine:  engine,
		backend: backend,
		loop:    manual,
		timers:  timers,
	}
}
