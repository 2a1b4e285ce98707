package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/italolelis/lazypreview/internal/cleanup"
	"github.com/italolelis/lazypreview/internal/config"
	"github.com/italolelis/lazypreview/internal/fetch"
	"github.com/italolelis/lazypreview/internal/http/rest"
	"github.com/italolelis/lazypreview/internal/logctx"
	"github.com/italolelis/lazypreview/internal/normalize"
	"github.com/italolelis/lazypreview/internal/storage/sqlite"
	"github.com/italolelis/lazypreview/internal/telemetry"
	"github.com/italolelis/lazypreview/internal/uploads"
)

var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := logctx.New(os.Stdout, cfg.SlogLevel())
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("lazypreview starting...", "log_level", cfg.LogLevel, "version", version)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:   cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Database
	database, err := sqlite.InitDB(ctx, cfg.DBPath)
	if err != nil {
		logger.Error("DB error", "err", err)

		return err
	}
	defer database.Close()

	records := sqlite.NewInstrumentedRecordRepository(sqlite.NewRecordRepository(database), tel)

	// =========================================================================
	// Start Fetcher
	fetcher := fetch.NewInstrumentedFetcher(
		fetch.NewClient(
			fetch.NewLocalFetcher(fetch.ChunkSize),
			fetch.NewRemoteFetcher(fetch.NewHTTPClient(cfg.FetchTimeout), fetch.ChunkSize),
		),
		tel,
	)

	normalizer, err := buildNormalizer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to build url normalizer: %w", err)
	}

	store := uploads.NewStore(cfg.UploadDir, cfg.MaxUploadBytes)

	// =========================================================================
	// Start API Service
	server := setupServer(ctx, cfg, tel, rest.NewPreviewHandler(records, fetcher, normalizer, store, tel, rest.PreviewConfig{
		ChunkBytes:     cfg.ChunkBytes,
		MaxWindowBytes: cfg.MaxWindowBytes,
		MaxUploadBytes: cfg.MaxUploadBytes,
		ListLimit:      cfg.ListLimit,
		PublicURL:      cfg.Web.PublicURL,
	}))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Initializing API support", "host", cfg.Web.BindAddress)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("start shutdown")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return nil
	})

	// =========================================================================
	// Start Cleanup
	sweeper := &cleanup.Sweeper{
		Dir:          store.Dir(),
		KeepDuration: cfg.KeepUploadsFor,
		Interval:     cfg.CleanupInterval,
		OnDeleted:    func(string) { tel.RecordUploadExpired() },
	}

	g.Go(func() error {
		return sweeper.Run(ctx)
	})

	logger.Info("serving previews",
		"upload_dir", cfg.UploadDir,
		"chunk_bytes", cfg.ChunkBytes,
		"retention", cfg.KeepUploadsFor.String(),
	)

	return g.Wait()
}

// buildNormalizer assembles the share-link rewriters enabled by configuration.
func buildNormalizer(ctx context.Context, cfg *config.Config) (*normalize.Normalizer, error) {
	rewriters := []normalize.Rewriter{normalize.DropboxRewriter{}, normalize.DriveRewriter{}}

	if cfg.PutioToken != "" {
		rewriters = append(rewriters, normalize.NewPutioRewriter(ctx, cfg.PutioToken, nil))
	}

	if cfg.S3.Endpoint != "" || cfg.S3.AccessKey != "" {
		s3Rewriter, err := normalize.NewS3Rewriter(ctx, normalize.S3Config{
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			PathStyle: cfg.S3.PathStyle,
			Expiry:    cfg.S3.PresignExpiry,
		})
		if err != nil {
			return nil, err
		}

		rewriters = append(rewriters, s3Rewriter)
	}

	return normalize.New(rewriters...), nil
}

// setupServer prepares the handlers and services to create the http rest server.
func setupServer(ctx context.Context, cfg *config.Config, tel *telemetry.Telemetry, h *rest.PreviewHandler) *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)

	r.Handle("/metrics", tel.Handler())
	r.Mount("/", h.Routes())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      r,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}
