package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cinevault/internal/analytics"
	"cinevault/internal/catalog"
	"cinevault/internal/filehost"
	"cinevault/internal/migrate"
	"cinevault/internal/platform/config"
	"cinevault/internal/platform/logger"
	"cinevault/internal/platform/metrics"
	"cinevault/internal/storage"
	"cinevault/internal/stream"

	"github.com/go-chi/chi/v5"
)

const (
	shutdownTimeout    = 10 * time.Second
	tokenPurgeInterval = time.Hour
)

// purgeExpiredTokens periodically drops token records past their expiry.
func purgeExpiredTokens(ctx context.Context, usage *stream.UsageRepo, log *slog.Logger) {
	t := time.NewTicker(tokenPurgeInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := usage.PurgeExpired(ctx)
			if err != nil {
				log.Warn("token purge failed", "error", err)
				continue
			}
			if n > 0 {
				log.Debug("purged expired tokens", "count", n)
			}
		}
	}
}

func main() {
	_ = config.Load()
	cfg := config.FromEnv()

	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.DatabaseDSN); err != nil {
		log.Error("migrate up", "error", err)
		os.Exit(1)
	}

	db, err := storage.New(ctx, cfg.DatabaseDSN)
	if err != nil {
		log.Error("connect database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	movieRepo := catalog.NewMovieRepo(db)
	postRepo := catalog.NewPostRepo(db)
	catalogSvc := catalog.NewService(movieRepo, postRepo)
	recorder := analytics.NewRecorder(db)

	met := metrics.New()
	catalogHandler := catalog.NewHandler(catalogSvc, log)
	analyticsHandler := analytics.NewHandler(recorder, log)

	var streamSvc *stream.Service
	if err := cfg.ValidateBot(); err != nil {
		log.Warn("video access disabled", "error", err)
	} else {
		host := filehost.New(cfg.BotAPIBase, cfg.BotToken, cfg.BotChatID, cfg.UpstreamConnectTimeout, cfg.UpstreamResolveTimeout)
		var usage stream.UsageStore
		if cfg.TokenMaxUses > 0 {
			usageRepo := stream.NewUsageRepo(db)
			usage = usageRepo
			go purgeExpiredTokens(ctx, usageRepo, log)
		}
		streamSvc = stream.NewService(movieRepo, host, recorder, usage,
			cfg.TokenLifetime, cfg.TokenBinding, cfg.TokenMaxUses, log)
	}
	streamHandler := stream.NewHandler(streamSvc, log, met)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		met.Handler().ServeHTTP(w, req)
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Route("/api", func(r chi.Router) {
		catalogHandler.Routes(r)
		analyticsHandler.Routes(r)
		r.Post("/video-access", streamHandler.VideoAccess)
	})
	r.Get("/stream/{token}", streamHandler.Stream)

	addr := ":" + cfg.Port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", cfg.Port,
		"token_lifetime", cfg.TokenLifetime.String(),
		"token_binding", string(cfg.TokenBinding),
		"token_max_uses", cfg.TokenMaxUses,
		"log_level", cfg.LogLevel,
	)

	<-ctx.Done()

	log.Info("shutdown signal received, draining connections")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
