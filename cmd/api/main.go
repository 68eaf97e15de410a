package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Temiboboye/zbai/internal/cache"
	"github.com/Temiboboye/zbai/internal/config"
	"github.com/Temiboboye/zbai/internal/dnsx"
	"github.com/Temiboboye/zbai/internal/executor"
	"github.com/Temiboboye/zbai/internal/ledger"
	"github.com/Temiboboye/zbai/internal/lists"
	"github.com/Temiboboye/zbai/internal/probe"
	"github.com/Temiboboye/zbai/internal/progress"
	"github.com/Temiboboye/zbai/internal/smtpx"
	"github.com/Temiboboye/zbai/internal/store"
	"github.com/Temiboboye/zbai/internal/verify"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Durability: Postgres when configured, in-memory otherwise.
	var jobStore store.JobStore
	var creditLedger ledger.Ledger
	if cfg.Database.URL != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer pool.Close()
		pingCtx, pingCancel := context.WithTimeout(ctx, 10*time.Second)
		if err := pool.Ping(pingCtx); err != nil {
			pingCancel()
			log.Fatalf("database ping: %v", err)
		}
		pingCancel()

		jobStore, err = store.NewPostgres(ctx, pool)
		if err != nil {
			log.Fatalf("job store: %v", err)
		}
		creditLedger, err = ledger.NewPostgres(ctx, pool)
		if err != nil {
			log.Fatalf("ledger: %v", err)
		}
		log.Println("connected to PostgreSQL, migrations applied")
	} else {
		log.Println("DB_URL not set, using in-memory store and ledger")
		jobStore = store.NewMemory()
		mem := ledger.NewMemory()
		mem.Credit(defaultOwner, 1_000_000)
		creditLedger = mem
	}

	// 2. Progress publication over redis, noop when not configured.
	var publisher progress.Publisher = progress.Noop{}
	if cfg.Redis.Addr != "" {
		rp, err := progress.NewRedis(cfg.Redis.Addr)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer rp.Close()
		publisher = rp
		log.Printf("publishing progress to redis at %s", cfg.Redis.Addr)
	}

	// 3. Domain lists with optional file overrides, reloadable via the
	// admin endpoint without a restart.
	domainLists := lists.Default()
	if err := loadListFiles(domainLists, cfg.Lists); err != nil {
		log.Fatalf("lists: %v", err)
	}

	// 4. The verification engine and its probe stack.
	domainCache := cache.New(cfg.Probe.CacheTTL)
	domainCache.StartCleanup(ctx, 5*time.Minute)

	engine := verify.NewEngine(
		dnsx.New(cfg.Resolver.Servers, cfg.Resolver.QueryTimeout, cfg.Resolver.Lifetime),
		smtpx.NewProber(cfg.Probe.HeloHost, cfg.Probe.SMTPTimeout, cfg.Probe.MaxSMTPConns),
		probe.NewClient(cfg.Probe.HTTPTimeout),
		domainCache,
		domainLists,
		verify.Budgets{
			Total: cfg.Probe.TotalBudget,
			DNS:   cfg.Resolver.Lifetime,
			HTTP:  cfg.Probe.HTTPTimeout,
			SMTP:  cfg.Probe.SMTPTimeout,
		},
	)

	exec := executor.New(engine, creditLedger, jobStore, publisher, executor.Options{
		Workers:       cfg.Executor.Workers,
		MaxBulk:       cfg.Executor.MaxBulk,
		FlushEvery:    cfg.Executor.FlushEvery,
		FlushInterval: cfg.Executor.FlushInterval,
		RatePerSec:    cfg.Executor.RatePerSec,
		RefundOnFail:  cfg.Executor.RefundOnFail,
	})
	defer exec.Close()

	// 5. HTTP surface.
	api := &apiServer{exec: exec, lists: domainLists, listCfg: cfg.Lists}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Owner-ID"},
	}))

	r.Get("/healthz", api.handleHealth)
	r.Group(func(r chi.Router) {
		r.Use(requireAPIKey(cfg.Server.APIKey))
		r.Post("/verify", api.handleVerify)
		r.Post("/verify/bulk", api.handleSubmitBulk)
		r.Get("/jobs", api.handleListJobs)
		r.Get("/jobs/{id}", api.handleGetJob)
		r.Post("/jobs/{id}/cancel", api.handleCancelJob)
		r.Post("/admin/lists/reload", api.handleReloadLists)
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 6. Graceful shutdown on SIGTERM / SIGINT.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		log.Printf("verification engine listening on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	<-quit
	log.Println("shutdown signal received, draining in-flight requests")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("graceful shutdown failed: %v", err)
	}
	log.Println("server shut down cleanly")
}

// loadListFiles applies the configured override files to the built-in lists.
func loadListFiles(l *lists.Lists, cfg config.ListsConfig) error {
	load := func(path string, apply func(f *os.File) error) error {
		if path == "" {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return apply(f)
	}

	if err := load(cfg.DisposableFile, func(f *os.File) error { return l.LoadDisposable(f) }); err != nil {
		return err
	}
	if err := load(cfg.RolesFile, func(f *os.File) error { return l.LoadRoles(f) }); err != nil {
		return err
	}
	return load(cfg.CatchAllFile, func(f *os.File) error { return l.LoadCatchAll(f) })
}
