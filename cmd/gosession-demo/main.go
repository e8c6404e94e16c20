// Package main is an interactive console for goSession.
//
// It wires the engine to the Redis reference backend (miniredis when no address is
// configured), prints phone codes and reset links to stdout, runs federated sign-in
// through an OAuth2 consent prompt on the console and drives a MemoryRouter guarded by
// the engine.
//
// Run:
//
//	go run ./cmd/gosession-demo -test-numbers '+15555550100=123456'
//
// Configuration comes from GOSESSION_* environment variables; see goSession.Config.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/backend/redisbackend"
	"github.com/MrEthical07/goSession/federated/oauth2consent"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/metrics/export/prometheus"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type demo struct {
	engine  *goSession.Engine
	backend *redisbackend.Backend
	router  *goSession.MemoryRouter
	metrics *prometheus.PrometheusExporter
	in      *bufio.Reader
	out     io.Writer
	phone   *goSession.PhoneVerification
}

func main() {
	var (
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, GOSESSION_REDIS_ADDR or miniredis is used")
		metricsAddr = flag.String("metrics-addr", "", "serve Prometheus metrics on this address when set")
		idpKey      = flag.String("idp-key", "", "PEM file with the identity provider's RS256 public key")
		idpIssuer   = flag.String("idp-issuer", "https://accounts.google.com", "expected issuer of federated ID tokens")
		testNumbers = flag.String("test-numbers", "", "comma-separated number=code pairs verified without SMS")
		audit       = flag.Bool("audit", false, "log audit events")
	)
	flag.Parse()

	if err := run(*redisAddr, *metricsAddr, *idpKey, *idpIssuer, *testNumbers, *audit); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(redisAddr, metricsAddr, idpKey, idpIssuer, testNumbers string, audit bool) error {
	cfg, err := goSession.LoadConfigFromEnv()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if redisAddr == "" {
		redisAddr = cfg.Backend.RedisAddr
	}
	var (
		client  redis.UniversalClient
		cleanup func()
	)
	if redisAddr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		redisAddr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{redisAddr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		logger.Info("using miniredis", "addr", redisAddr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{redisAddr}})
		cleanup = func() { _ = client.Close() }
		logger.Info("using redis", "addr", redisAddr)
	}
	defer cleanup()

	in := bufio.NewReader(os.Stdin)

	bcfg := redisbackend.FromConfig(cfg)
	bcfg.Logger = logger
	bcfg.Mailer = redisbackend.ConsoleMailer{W: os.Stdout}
	bcfg.SMS = redisbackend.ConsoleSMS{W: os.Stdout}
	if bcfg.TestNumbers, err = parseTestNumbers(testNumbers); err != nil {
		return err
	}
	if idpKey != "" {
		verifier, err := newVerifier(idpKey, idpIssuer, cfg.Federated.ClientID)
		if err != nil {
			return err
		}
		bcfg.ExternalVerifier = verifier
	}
	backend, err := redisbackend.New(client, bcfg)
	if err != nil {
		return err
	}

	if audit {
		cfg.Audit.Enabled = true
	}
	builder := goSession.New().
		WithConfig(cfg).
		WithBackend(backend).
		WithRedis(client).
		WithLogger(logger)
	if audit {
		builder.WithAuditSink(goSession.NewSlogSink(logger))
	}
	if metricsAddr != "" {
		builder.WithMetricsEnabled(true).WithLatencyHistograms(true)
	}
	if cfg.Federated.Enabled && cfg.Federated.ClientID != "" {
		ocfg := oauth2consent.FromConfig(cfg.Federated)
		ocfg.Logger = logger
		consent, err := oauth2consent.New(ocfg, oauth2consent.ConsolePrompt{In: in, Out: os.Stdout})
		if err != nil {
			return err
		}
		builder.WithConsent(consent)
	}

	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	d := &demo{
		engine:  engine,
		backend: backend,
		router:  goSession.NewMemoryRouter(cfg.Guard.LoginLocation),
		metrics: prometheus.NewPrometheusExporter(engine),
		in:      in,
		out:     os.Stdout,
	}
	defer d.closePhone()

	if metricsAddr != "" {
		srv := &http.Server{Addr: metricsAddr, Handler: d.metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer srv.Close()
		logger.Info("serving metrics", "addr", metricsAddr)
	}

	if ok, err := engine.Restore(ctx); err != nil {
		logger.Warn("restore failed", "error", err)
	} else if ok {
		sess, _ := engine.CurrentSession()
		fmt.Fprintf(d.out, "restored session for %s\n", sess.Label())
	}

	d.router.Subscribe(func(location string) {
		fmt.Fprintf(d.out, "-> %s\n", location)
	})
	guard, err := engine.Guard(d.router)
	if err != nil {
		return err
	}
	defer guard.Close()

	fmt.Fprintln(d.out, "type 'help' for commands")
	return d.repl(ctx)
}

func (d *demo) repl(ctx context.Context) error {
	for {
		fmt.Fprintf(d.out, "%s> ", d.router.Location())
		line, err := readLine(ctx, d.in)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "quit" || fields[0] == "exit" {
			return nil
		}
		if err := d.dispatch(ctx, fields[0], fields[1:]); err != nil {
			fmt.Fprintf(d.out, "error: %v\n", err)
		}
	}
}

func (d *demo) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help":
		fmt.Fprint(d.out, usage)
		return nil
	case "register":
		if len(args) != 2 {
			return errUsage
		}
		return d.report(d.engine.Register(ctx, args[0], args[1]))
	case "signin":
		if len(args) != 2 {
			return errUsage
		}
		return d.report(d.engine.SignInWithPassword(ctx, args[0], args[1]))
	case "federated":
		return d.report(d.engine.SignInWithFederatedProvider(ctx))
	case "reset":
		if len(args) != 1 {
			return errUsage
		}
		if err := d.engine.SendPasswordReset(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintln(d.out, "reset link sent")
		return nil
	case "reset-confirm":
		if len(args) != 3 {
			return errUsage
		}
		if err := d.backend.ResetPassword(ctx, args[0], args[1], args[2]); err != nil {
			return err
		}
		fmt.Fprintln(d.out, "password updated")
		return nil
	case "phone":
		if len(args) != 1 {
			return errUsage
		}
		return d.startPhone(ctx, args[0])
	case "confirm":
		if len(args) != 1 {
			return errUsage
		}
		if d.phone == nil {
			return errors.New("no phone verification in progress")
		}
		return d.report(d.phone.Confirm(ctx, args[0]))
	case "resend":
		if d.phone == nil {
			return errors.New("no phone verification in progress")
		}
		return d.phone.Resend(ctx)
	case "signout":
		return d.engine.SignOut(ctx)
	case "whoami":
		sess, ok := d.engine.CurrentSession()
		if !ok {
			fmt.Fprintln(d.out, "signed out")
			return nil
		}
		fmt.Fprintf(d.out, "%s via %s (user %s, since %s)\n", sess.Label(), sess.Provider, sess.UserID, sess.CreatedAt.Format(time.RFC3339))
		return nil
	case "disable":
		if len(args) != 1 {
			return errUsage
		}
		return d.backend.Disable(ctx, args[0])
	case "go":
		if len(args) != 1 {
			return errUsage
		}
		return d.router.Navigate(args[0])
	case "metrics":
		fmt.Fprint(d.out, d.metrics.Render())
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (d *demo) report(res goSession.SignInResult, err error) error {
	if err != nil {
		return err
	}
	if !res.SignedIn() {
		fmt.Fprintf(d.out, "sign-in %s\n", res.Outcome)
		return nil
	}
	fmt.Fprintf(d.out, "signed in as %s\n", res.Session.Label())
	return nil
}

func (d *demo) startPhone(ctx context.Context, number string) error {
	if d.phone != nil {
		if !d.phone.State().Resolved() {
			return d.phone.Restart(ctx, number)
		}
		d.closePhone()
	}
	pv, err := d.engine.StartPhoneVerification(ctx, number)
	if err != nil {
		return err
	}
	pv.Subscribe(func(s goSession.PhoneSnapshot) {
		switch {
		case s.Err != nil:
			fmt.Fprintf(d.out, "\nphone %s: %s (%v)\n", s.Number, s.State, s.Err)
		case s.State == goSession.PhoneConfirmed && s.Session != nil:
			fmt.Fprintf(d.out, "\nphone %s: signed in as %s\n", s.Number, s.Session.Label())
		default:
			fmt.Fprintf(d.out, "\nphone %s: %s\n", s.Number, s.State)
		}
	})
	d.phone = pv
	return nil
}

func (d *demo) closePhone() {
	if d.phone != nil {
		d.phone.Close()
		d.phone = nil
	}
}

func readLine(ctx context.Context, in *bufio.Reader) (string, error) {
	type result struct {
		line string
		err  error
	}
	lines := make(chan result, 1)
	go func() {
		line, err := in.ReadString('\n')
		lines <- result{line: line, err: err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-lines:
		if r.err != nil && (r.err != io.EOF || r.line == "") {
			return "", r.err
		}
		return strings.TrimSpace(r.line), nil
	}
}

func parseTestNumbers(raw string) (map[string]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		number, code, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || number == "" || code == "" {
			return nil, fmt.Errorf("invalid test number %q, want number=code", pair)
		}
		out[number] = code
	}
	return out, nil
}

func newVerifier(keyFile, issuer, audience string) (*jwt.Manager, error) {
	pem, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("read identity provider key: %w", err)
	}
	return jwt.NewManager(jwt.Config{
		SigningMethod: jwt.MethodRS256,
		PublicKey:     pem,
		Issuer:        issuer,
		Audience:      audience,
		Leeway:        30 * time.Second,
	})
}

var errUsage = errors.New("wrong number of arguments, see 'help'")

const usage = `commands:
  register <email> <secret>        create an email identity and sign in
  signin <email> <secret>          sign in with email and secret
  reset <email>                    mail a password reset link
  reset-confirm <id> <token> <new> apply a reset link
  phone <number>                   send a verification code
  confirm <code>                   confirm the pending code
  resend                           send a fresh code
  federated                        sign in through the OAuth2 provider
  signout                          clear the session
  whoami                           show the current session
  disable <userID>                 revoke an identity in the backend
  go <location>                    navigate the router
  metrics                          print Prometheus metrics
  quit
`
