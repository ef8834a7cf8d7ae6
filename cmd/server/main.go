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

	"github.com/maneesh/voicehub/internal/auth"
	"github.com/maneesh/voicehub/internal/config"
	"github.com/maneesh/voicehub/internal/handlers"
	"github.com/maneesh/voicehub/internal/logging"
	"github.com/maneesh/voicehub/internal/metrics"
	"github.com/maneesh/voicehub/internal/storage"
	"github.com/maneesh/voicehub/internal/sweeper"
	"github.com/maneesh/voicehub/internal/tracing"
	"github.com/maneesh/voicehub/internal/uploads"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

func Run(ctx context.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.Setup(os.Stdout, cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.Info("Starting VoiceHub upload service", "service", cfg.ServiceName, "port", cfg.ServicePort, "version", version)

	shutdownTracer, err := tracing.InitTracer(ctx, cfg.ServiceName, version, cfg.JaegerEndpoint)
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			logger.Error("Error shutting down tracer", "error", err)
		}
	}()

	logger.Info("Connecting to MinIO...", "endpoint", cfg.MinIOEndpoint, "bucket", cfg.MinIOBucketName)
	minioClient, err := storage.NewMinioClient(ctx, storage.MinioConfig{
		Endpoint:      cfg.MinIOEndpoint,
		AccessKey:     cfg.MinIOAccessKey,
		SecretKey:     cfg.MinIOSecretKey,
		BucketName:    cfg.MinIOBucketName,
		Region:        cfg.MinIORegion,
		UseSSL:        cfg.MinIOUseSSL,
		PublicBaseURL: cfg.PublicBaseURL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	logger.Info("Connecting to TiDB...", "host", cfg.TiDBHost)
	tidbClient, err := storage.NewTiDBClient(ctx, cfg.GetDSN())
	if err != nil {
		return fmt.Errorf("failed to initialize TiDB client: %w", err)
	}
	defer tidbClient.Close()

	logger.Info("Connecting to Redis...", "addr", cfg.GetRedisAddr())
	redisClient, err := storage.NewRedisClient(ctx, cfg.GetRedisAddr(), cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return fmt.Errorf("failed to initialize Redis client: %w", err)
	}
	defer redisClient.Close()

	verifier, err := newVerifier(ctx, cfg)
	if err != nil {
		return err
	}

	m := metrics.New()
	uploadMetrics := metrics.NewUploadMetrics(m.Registry())

	svc := uploads.NewService(minioClient, redisClient, tidbClient, uploads.Config{
		PartURLExpiry: cfg.PartURLExpiry,
		PartSize:      cfg.GetChunkSizeBytes(),
		Logger:        logger,
		Observer:      uploadMetrics,
	})

	router := handlers.NewRouter(handlers.RouterConfig{
		Service:  svc,
		Verifier: verifier,
		Metrics:  m,
		Checks: map[string]handlers.Pinger{
			"storage":  minioClient,
			"ledger":   tidbClient,
			"registry": redisClient,
		},
	})

	if cfg.SweepEnabled {
		stop := sweeper.Start(ctx, redisClient, minioClient, cfg.SweepInterval, cfg.SweepOlderThan, logger, uploadMetrics)
		defer stop()
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.ServicePort,
		Handler:           router,
		ReadHeaderTimeout: 20 * time.Second,
		// Small uploads stream the whole file through the request body.
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	eg.Go(func() error {
		logger.Info("Server listening", "port", cfg.ServicePort)
		err := httpServer.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	return eg.Wait()
}

// newVerifier prefers the identity provider and falls back to static tokens.
func newVerifier(ctx context.Context, cfg *config.Config) (auth.Verifier, error) {
	if cfg.AuthIssuer == "" && cfg.AuthJWKSURL == "" {
		slog.Warn("Using static bearer tokens, do not run this in production")
		return auth.ParseStaticTokens(cfg.AuthStaticTokens), nil
	}

	v, err := auth.NewOIDCVerifier(ctx, auth.Config{
		Issuer:   cfg.AuthIssuer,
		JWKSURL:  cfg.AuthJWKSURL,
		Audience: cfg.AuthAudience,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token verifier: %w", err)
	}
	return v, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := Run(ctx); err != nil {
		slog.Error("VoiceHub exited with error", "error", err)
		stop()
		os.Exit(1)
	}
	slog.Info("Server exited")
}
