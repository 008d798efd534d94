package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"abroadguide.org/internal/auth"
	"abroadguide.org/internal/config"
	"abroadguide.org/internal/httpapi"
	"abroadguide.org/internal/obs"
	"abroadguide.org/internal/store/pg"
	"abroadguide.org/internal/students"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Fatalf("load .env: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	var (
		identities   auth.IdentityStore
		studentStore students.Store
		probe        httpapi.ReadyProbe
		db           *pg.Store
	)
	if cfg.UsesPostgres() {
		db, err = pg.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := db.Ping(ctx); err != nil {
			obs.Warn("database not reachable at startup", map[string]any{"error": err.Error()})
		}
		cancel()
		identities = db
		studentStore = db.Students()
		probe = httpapi.ReadyFunc(db.Ping)
	} else {
		obs.Warn("GATEWAY_PG_DSN not set, using in-memory stores", nil)
		identities = auth.NewMemoryStore()
		studentStore = students.NewMemoryStore()
	}

	tokens, err := auth.NewTokens(cfg.Auth.Secret,
		auth.WithTokenTTL(cfg.Auth.TokenTTL),
		auth.WithTokenIssuer(cfg.Auth.TokenIssuer),
	)
	if err != nil {
		log.Fatalf("token service: %v", err)
	}
	authz := auth.NewAuthorizer(auth.WithDecisionObserver(func(_ auth.IdentityContext, d auth.Decision) {
		obs.RecordAuthzDecision(d.Allowed, string(d.Reason))
	}))
	gate, err := auth.NewGate(identities, tokens,
		auth.WithBcryptCost(cfg.Auth.BcryptCost),
		auth.WithAuthorizer(authz),
	)
	if err != nil {
		log.Fatalf("auth gate: %v", err)
	}
	svc, err := students.NewService(studentStore, authz, students.WithOwnerLookup(identities))
	if err != nil {
		log.Fatalf("students service: %v", err)
	}

	opts := []httpapi.Option{
		httpapi.WithVersion(version),
		httpapi.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
	}
	if probe != nil {
		opts = append(opts, httpapi.WithReadyProbe(probe))
	}
	api, err := httpapi.New(gate, svc, opts...)
	if err != nil {
		log.Fatalf("http api: %v", err)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	obs.Info("starting auth gateway", map[string]any{
		"version":  version,
		"addr":     srv.Addr,
		"postgres": cfg.UsesPostgres(),
	})

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	obs.Info("shutting down", nil)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		obs.Error("shutdown", err, nil)
	}
	if db != nil {
		_ = db.Close()
	}
	obs.Info("stopped", nil)
}
