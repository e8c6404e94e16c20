package test

import (
	"context"
	"fmt"
	"io"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/backend/redisbackend"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func exampleEngine(rdb redis.UniversalClient, testNumbers map[string]string) (*goSession.Engine, error) {
	cfg := goSession.DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	bcfg := redisbackend.FromConfig(cfg)
	bcfg.SigningKey = []byte("example-signing-key-0123456789abcdef")
	bcfg.Mailer = redisbackend.ConsoleMailer{W: io.Discard}
	bcfg.SMS = redisbackend.ConsoleSMS{W: io.Discard}
	bcfg.TestNumbers = testNumbers

	backend, err := redisbackend.New(rdb, bcfg)
	if err != nil {
		return nil, err
	}
	return goSession.New().
		WithConfig(cfg).
		WithBackend(backend).
		WithRedis(rdb).
		Build()
}

// Example_register wires the engine to the Redis reference backend and registers an
// email identity.
func Example_register() {
	mr, err := miniredis.Run()
	if err != nil {
		panic(err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	engine, err := exampleEngine(rdb, nil)
	if err != nil {
		panic(err)
	}
	defer engine.Close()

	res, err := engine.Register(context.Background(), "ada@example.com", "correct-horse")
	if err != nil {
		panic(err)
	}
	fmt.Println(res.Session.Label(), res.Session.Provider)
	// Output: ada@example.com password
}

// ExampleEngine_StartPhoneVerification verifies a configured test number, which signs
// in without a typed code.
func ExampleEngine_StartPhoneVerification() {
	mr, err := miniredis.Run()
	if err != nil {
		panic(err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	engine, err := exampleEngine(rdb, map[string]string{"+15555550100": "123456"})
	if err != nil {
		panic(err)
	}
	defer engine.Close()

	ctx := context.Background()
	pv, err := engine.StartPhoneVerification(ctx, "+15555550100")
	if err != nil {
		panic(err)
	}
	defer pv.Close()

	snap, err := pv.Await(ctx, goSession.PhoneConfirmed, goSession.PhoneFailed)
	if err != nil {
		panic(err)
	}
	fmt.Println(snap.State, snap.Session.Label())
	// Output: confirmed +15555550100
}

func ExampleDecide() {
	cfg := goSession.DefaultConfig().Guard
	signedIn := goSession.SessionState{Known: true, Session: &goSession.Session{UserID: "u1"}}
	signedOut := goSession.SessionState{Known: true}

	for _, c := range []struct {
		state    goSession.SessionState
		location string
	}{
		{signedOut, "/(tabs)/profile"},
		{signedIn, "/login"},
		{goSession.SessionState{}, "/(tabs)"},
	} {
		target, ok := goSession.Decide(cfg, c.state, c.location)
		fmt.Printf("%s: %q %v\n", c.location, target, ok)
	}
	// Output:
	// /(tabs)/profile: "/login" true
	// /login: "/(tabs)" true
	// /(tabs): "" false
}
