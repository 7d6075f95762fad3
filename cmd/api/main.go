package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"grievanceos/api/internal/app"
	"grievanceos/api/internal/authpw"
	"grievanceos/api/internal/config"
	"grievanceos/api/internal/email"
	"grievanceos/api/internal/export"
	"grievanceos/api/internal/search"
	"grievanceos/api/internal/session"
	"grievanceos/api/internal/storage"
	"grievanceos/api/internal/store"
	"grievanceos/api/internal/suggest"
	"grievanceos/api/internal/util"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.SessionSecret == "" {
		if cfg.IsProduction() {
			return errors.New("SESSION_SECRET must be set in production")
		}
		cfg.SessionSecret = util.NewID("dev")
		logger.Warn("SESSION_SECRET not set, using an ephemeral secret; sessions and invites reset on restart")
	}

	db, err := store.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.ApplyMigrations(cfg.DatabaseURL, logger); err != nil {
		return err
	}
	dataStore := store.NewPostgresStore(db)

	var revocations session.RevocationStore = dataStore
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisStore.Close()
		if err := redisStore.Ping(ctx); err != nil {
			return err
		}
		logger.Info("using redis for session revocation")
		revocations = redisStore
	} else {
		logger.Info("using postgres for session revocation")
		go purgeRevocations(ctx, dataStore, logger)
	}

	codec, err := session.NewCodec(cfg.SessionSecret)
	if err != nil {
		return err
	}
	sessions := session.NewManager(codec, revocations, cfg.IsProduction(), cfg.SessionTTL, logger)

	objects, err := storage.NewMinioStore(storage.Options{
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Bucket:    cfg.S3Bucket,
		UseSSL:    cfg.S3UseSSL,
		PublicURL: cfg.S3PublicURL,
	}, logger)
	if err != nil {
		return err
	}
	if err := objects.EnsureBucket(ctx); err != nil {
		// Uploads fail until storage comes up; everything else keeps working.
		logger.Warn("object storage not ready", slog.String("error", err.Error()))
	}

	pgfts := search.NewPgFTS(db)
	var meili *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meili.Close()
	}
	searchService := search.NewService(meili, pgfts, logger)
	if meili != nil {
		go searchService.ReindexAllFromPG(ctx)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	suggester := suggest.NewSuggester(
		suggest.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiBaseURL, &http.Client{}),
		suggest.Options{
			APIKey:      cfg.GeminiAPIKey,
			Models:      cfg.AIModels,
			CallTimeout: cfg.AICallTimeout,
			Budget:      cfg.AIBudget,
		},
		suggest.NewMetrics(registry),
		logger,
	)
	if !suggest.KeyConfigured(cfg.GeminiAPIKey) {
		logger.Warn("GEMINI_API_KEY not set, department suggestions disabled")
	}

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if !mailer.IsConfigured() {
		logger.Warn("SMTP not configured, invite links are returned in API responses")
	}

	service := app.New(cfg, app.Deps{
		Store:     dataStore,
		Accounts:  authpw.NewService(dataStore),
		Suggester: suggester,
		Objects:   objects,
		Search:    searchService,
		Exporter:  export.NewService(dataStore, logger),
		Mailer:    mailer,
		Logger:    logger,
	})

	httpServer := app.NewHTTPServer(service, sessions, app.HTTPOptions{
		CORSOrigin: cfg.CORSOrigin,
		Logger:     logger,
		Metrics:    app.NewMetrics(registry),
		Gatherer:   registry,
	})
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("GrievanceOS API listening", slog.String("addr", cfg.Addr), slog.String("env", cfg.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
	}
	return nil
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// purgeRevocations drops revoked session ids whose sessions have expired anyway.
func purgeRevocations(ctx context.Context, s *store.PostgresStore, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeExpiredRevocations(ctx)
			if err != nil {
				logger.Warn("purge revocations failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				logger.Debug("purged revocations", slog.Int64("count", n))
			}
		}
	}
}
