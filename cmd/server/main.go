package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/pebly/pebly/internal/analytics"
	"github.com/pebly/pebly/internal/cache"
	"github.com/pebly/pebly/internal/config"
	"github.com/pebly/pebly/internal/db"
	"github.com/pebly/pebly/internal/geo"
	"github.com/pebly/pebly/internal/handlers"
	"github.com/pebly/pebly/internal/ipcheck"
	"github.com/pebly/pebly/internal/resolver"
)

func main() {
	// Optional .env for local development; real deployments set the env.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("dotenv: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer database.Close()

	geoReader, err := geo.Open(cfg.GeoIPPath)
	if err != nil {
		log.Printf("geo: %v (geo lookups disabled)", err)
		geoReader, _ = geo.Open("")
	}
	defer geoReader.Close()

	var checker *ipcheck.Checker
	if cfg.IPCheck {
		checker = ipcheck.NewChecker()
	}

	linkCache, err := cache.New(cfg.CacheSize)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}

	collector := analytics.NewCollector(database, geoReader, checker, cfg.BufferSize, cfg.FlushInterval)

	linkHandler := &handlers.LinkHandler{
		DB:    database,
		Cfg:   cfg,
		Cache: linkCache,
	}

	statsHandler := &handlers.StatsHandler{
		DB:  database,
		Agg: collector.Aggregator(),
	}

	redirectHandler := &handlers.RedirectHandler{
		Resolver: &resolver.Resolver{
			DB:        database,
			Cache:     linkCache,
			Collector: collector,
			Timeout:   cfg.StoreTimeout,
		},
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	// Owner API (authenticated)
	r.Route("/api", func(r chi.Router) {
		r.Use(handlers.AuthMiddleware(cfg.APIKey))
		r.Post("/links", linkHandler.Create)
		r.Get("/links", linkHandler.List)
		r.Get("/links/{code}", linkHandler.Get)
		r.Patch("/links/{code}", linkHandler.Update)
		r.Delete("/links/{code}", linkHandler.Delete)
		r.Get("/links/{code}/stats", statsHandler.Aggregates)
		r.Get("/links/{code}/qr", linkHandler.QRCode)
		r.Post("/rollups/rebuild", statsHandler.RebuildRollups)
	})

	// Password gate re-entry
	r.Post("/{code}/unlock", redirectHandler.Unlock)

	// All other routes → redirect handler
	r.NotFound(redirectHandler.ServeHTTP)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("pebly listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	<-stop
	log.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown: %v", err)
	}

	collector.Shutdown()
	if checker != nil {
		checker.Shutdown()
	}
	log.Println("goodbye")
}
