package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"legalease/api/internal/app"
	"legalease/api/internal/config"
	"legalease/api/internal/email"
	"legalease/api/internal/export"
	"legalease/api/internal/llm"
	"legalease/api/internal/logger"
	"legalease/api/internal/ratelimit"
	"legalease/api/internal/search"
	"legalease/api/internal/storage"
	"legalease/api/internal/store"
	"legalease/api/internal/versions"
)

func main() {
	cfg := config.Load()
	logger.Setup(cfg)
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	if err := os.MkdirAll(cfg.VersionsDir, 0o755); err != nil {
		log.Fatalf("failed to create versions dir: %v", err)
	}

	dataStore := store.NewPostgresStore(db)
	opts := app.Options{
		Versions: versions.New(cfg.VersionsDir),
		Exporter: export.NewService(export.ChromePDF, 30*time.Second),
	}

	// Collaborators below are optional; a nil field disables its feature.
	if strings.TrimSpace(cfg.OpenAI.APIKey) != "" {
		client, err := llm.New(llm.Config{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.Model,
		})
		if err != nil {
			log.Fatalf("language model client failed: %v", err)
		}
		opts.Converter = client
	} else {
		slog.Warn("OPENAI_API_KEY not set, conversions disabled")
	}

	if strings.TrimSpace(cfg.Storage.Endpoint) != "" {
		objects, err := storage.New(ctx, cfg.Storage, cfg.Storage.DocumentsBucket, cfg.Storage.BrandingBucket)
		if err != nil {
			log.Fatalf("object storage failed: %v", err)
		}
		opts.Objects = objects
	} else {
		slog.Warn("STORAGE_ENDPOINT not set, uploads and logos disabled")
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, search.NewPgSearch(db))
	opts.Search = searchService
	go searchService.ReindexAllFromPG(ctx)

	if strings.TrimSpace(cfg.RedisURL) != "" {
		limiter, err := ratelimit.NewRedisLimiter(cfg.RedisURL, cfg.ConvertRateLimit, time.Minute)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer limiter.Close()
		opts.Limiter = limiter
	}

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if mailer.IsConfigured() {
		opts.Mailer = mailer
	}

	if !cfg.IsDevelopment() && strings.TrimSpace(cfg.AuthJWTSecret) == "" {
		slog.Warn("LEGALEASE_AUTH_JWT_SECRET not set, requests are not authenticated")
	}

	service := app.New(cfg, dataStore, opts)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.UploadTimeout + 15*time.Second,
		WriteTimeout:      cfg.AITimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("LegalEase API listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}
