package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/talk2text/internal/api"
	"github.com/nikhilbhutani/talk2text/internal/api/handlers"
	"github.com/nikhilbhutani/talk2text/internal/cache"
	"github.com/nikhilbhutani/talk2text/internal/config"
	"github.com/nikhilbhutani/talk2text/internal/database"
	"github.com/nikhilbhutani/talk2text/internal/history"
	"github.com/nikhilbhutani/talk2text/internal/identity"
	"github.com/nikhilbhutani/talk2text/internal/metrics"
	"github.com/nikhilbhutani/talk2text/internal/pipeline"
	"github.com/nikhilbhutani/talk2text/internal/queue"
	"github.com/nikhilbhutani/talk2text/internal/speech"
	"github.com/nikhilbhutani/talk2text/internal/staging"
	"github.com/nikhilbhutani/talk2text/internal/transcript"
	"github.com/nikhilbhutani/talk2text/internal/transcription"
	"github.com/nikhilbhutani/talk2text/internal/upload"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	checks := map[string]handlers.Check{}

	repo, closeStore, err := openStore(ctx, cfg, checks)
	if err != nil {
		slog.Error("failed to open transcript store", "backend", cfg.Store.Backend, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	area, err := staging.NewArea(cfg.Upload.Dir, cfg.Upload.MaxBytes)
	if err != nil {
		slog.Error("failed to prepare upload dir", "error", err)
		os.Exit(1)
	}

	// Redis connection (optional): history cache and the staging sweep queue.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unavailable, running without history cache", "error", err)
		go sweepNow(area, cfg.Upload.StagingMaxAge)
	} else {
		repo = transcript.NewCached(repo, cache.NewCache(rdb, "talk2text:"), cfg.Store.HistoryCacheTTL)
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }

		qc := queue.NewClient(cfg.Redis)
		if err := qc.EnqueueStagingSweep(cfg.Upload.StagingMaxAge); err != nil {
			slog.Warn("failed to enqueue startup sweep", "error", err)
		}
		qc.Close()
	}

	recognizer, err := newRecognizer(ctx, cfg.STT)
	if err != nil {
		slog.Error("failed to create speech recognizer", "backend", cfg.STT.Backend, "error", err)
		os.Exit(1)
	}
	gateway := transcription.NewGateway(recognizer, speech.EncodingConfig{
		Encoding:        cfg.STT.Encoding,
		SampleRateHertz: cfg.STT.SampleRateHertz,
		LanguageCode:    cfg.STT.LanguageCode,
	}, cfg.STT.Timeout)

	policy := identity.Policy{TrustClientOwner: cfg.Auth.TrustClientOwner}
	verifier, gotrue := newIdentity(cfg.Auth)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := metrics.Register(reg); err != nil {
		slog.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}

	router := api.NewRouter(cfg, api.Deps{
		Pipeline: pipeline.New(upload.NewValidator(cfg.Upload.MaxBytes), gateway, repo, pipeline.Options{
			SurfaceUnsavedTranscript: cfg.Pipeline.SurfaceUnsavedTranscript,
			DetectEncoding:           cfg.STT.DetectEncoding,
		}),
		History:  history.NewService(repo, policy),
		Staging:  area,
		Policy:   policy,
		Verifier: verifier,
		GoTrue:   gotrue,
		Checks:   checks,
		Metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("starting API server",
			"addr", cfg.Addr(),
			"store", cfg.Store.Backend,
			"recognizer", recognizer.Name(),
			"trust_client_owner", policy.TrustClientOwner,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	slog.Info("server stopped")
}

func openStore(ctx context.Context, cfg *config.Config, checks map[string]handlers.Check) (transcript.Repository, func(), error) {
	switch cfg.Store.Backend {
	case "postgres":
		pool, err := database.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		if _, err := database.Migrate(ctx, pool, cfg.Database.MigrationsPath); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
		checks["database"] = pool.Ping
		return transcript.NewPostgres(pool), pool.Close, nil
	case "sqlite":
		s, err := transcript.OpenSQLite(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		checks["database"] = s.Ping
		return s, func() { s.Close() }, nil
	case "supabase":
		return transcript.NewSupabase(cfg.Store.SupabaseURL, cfg.Store.SupabaseKey), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func newRecognizer(ctx context.Context, cfg config.STTConfig) (speech.Recognizer, error) {
	switch cfg.Backend {
	case "google":
		return speech.NewGoogleRecognizer(ctx, speech.GoogleConfig{
			Endpoint:        cfg.GoogleEndpoint,
			APIKey:          cfg.GoogleAPIKey,
			CredentialsFile: cfg.GoogleCredsFile,
		})
	case "openai":
		return speech.NewOpenAIRecognizer(speech.OpenAIConfig{
			APIKey:  cfg.OpenAIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
		}), nil
	case "local":
		return speech.NewLocalRecognizer(speech.LocalConfig{
			BaseURL: cfg.LocalBaseURL,
			Model:   cfg.OpenAIModel,
		}), nil
	default:
		return nil, fmt.Errorf("unknown STT backend %q", cfg.Backend)
	}
}

// newIdentity prefers local JWT verification and falls back to asking Supabase Auth.
func newIdentity(cfg config.AuthConfig) (identity.Verifier, *identity.GoTrue) {
	var gotrue *identity.GoTrue
	if cfg.SupabaseURL != "" {
		gotrue = identity.NewGoTrue(cfg.SupabaseURL, cfg.SupabaseKey)
	}

	switch {
	case cfg.JWTSecret != "":
		return identity.NewJWTVerifier(cfg.JWTSecret), gotrue
	case gotrue != nil:
		return gotrue, gotrue
	default:
		slog.Warn("no token verifier configured, bearer tokens are ignored")
		return nil, nil
	}
}

func sweepNow(area *staging.Area, maxAge time.Duration) {
	n, err := area.Sweep(maxAge)
	if err != nil {
		slog.Warn("startup staging sweep incomplete", "removed", n, "error", err)
		return
	}
	slog.Info("startup staging sweep finished", "removed", n)
}
