package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"laser-vision-backend/internal/config"
	"laser-vision-backend/internal/handlers"
	"laser-vision-backend/internal/platform"
	"laser-vision-backend/internal/repository"
	"laser-vision-backend/internal/services"
	"laser-vision-backend/internal/storage"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func Run() {
	configPath := "config.yaml"
	if p, ok := os.LookupEnv("LASER_CONFIG"); ok {
		configPath = p
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	setupLogger(cfg.Log.Level)

	if cfg.JWT.Secret == "" {
		log.Fatal().Msg("jwt.secret (or LASER_JWT_SECRET) is required")
	}

	ctx := context.Background()

	// Initialize storage
	fs, fileRoot, err := newFilesystem(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize storage")
	}
	log.Info().Str("driver", cfg.Storage.Driver).Msg("Storage initialized")

	// Initialize key-value store
	store, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize key-value store")
	}
	defer closeStore()

	// Initialize services
	fileSigner := platform.NewFileSigner(cfg.JWT.Secret, time.Duration(cfg.Runtime.FileURLTTLMinutes)*time.Minute)
	converter := platform.NewFileSrcConverter(cfg.App.Server.AndroidScheme, cfg.App.Server.Hostname)
	converter.Signer = fileSigner

	photoService := services.NewPhotoService(
		fs,
		platform.New(cfg.Runtime.Platform),
		converter,
		services.NewFetcher(
			time.Duration(cfg.Fetch.TimeoutSeconds)*time.Second,
			cfg.Fetch.RatePerSecond,
			cfg.Fetch.Burst,
			services.AllowedHosts(cfg.Fetch.AllowedHosts),
			services.AllowPrivateNetworks(cfg.Fetch.AllowPrivateNetworks),
		),
		services.WithUniqueNames(cfg.Storage.UniqueNames),
	)
	gallery := services.NewGalleryService(repository.Namespaced{Store: store, Prefix: cfg.App.AppID + "/"}, photoService)
	deviceService := services.NewDeviceService(cfg.JWT.Secret)
	wsHub := services.NewWSHub()

	router := handlers.NewRouter(handlers.RouterDeps{
		App:           cfg.App,
		Gallery:       gallery,
		DeviceService: deviceService,
		Hub:           wsHub,
		FileRoot:      fileRoot,
		FileSigner:    fileSigner,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var g errgroup.Group

	g.Go(func() error {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Str("app_id", cfg.App.AppID).
			Str("platform", cfg.Runtime.Platform).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			stop()
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		// Wait for interrupt signal for graceful shutdown
		<-sigCtx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
	}

	log.Info().Msg("Server exited")
}

// newFilesystem creates the configured storage driver. For the local driver it
// also returns the external root served behind translated file URIs.
func newFilesystem(ctx context.Context, cfg *config.Config) (storage.Filesystem, string, error) {
	switch cfg.Storage.Driver {
	case "s3":
		fs, err := storage.NewS3Filesystem(ctx, storage.S3Options{
			Region:     cfg.AWS.Region,
			Bucket:     cfg.AWS.S3Bucket,
			AccessKey:  cfg.AWS.AccessKey,
			SecretKey:  cfg.AWS.SecretKey,
			Endpoint:   cfg.AWS.Endpoint,
			DisableSSL: cfg.AWS.DisableSSL,
			Prefix:     cfg.Storage.S3Prefix,
		})
		return fs, "", err
	default:
		fs, err := storage.NewLocalFilesystem(map[storage.Directory]string{
			storage.DirectoryExternal: cfg.Storage.Local.External,
			storage.DirectoryData:     cfg.Storage.Local.Data,
			storage.DirectoryCache:    cfg.Storage.Local.Cache,
		})
		if err != nil {
			return nil, "", err
		}
		root, _ := fs.Root(storage.DirectoryExternal)
		return fs, root, nil
	}
}

// newStore creates the configured key-value store and its cleanup function
func newStore(ctx context.Context, cfg *config.Config) (repository.Store, func(), error) {
	if cfg.KV.Driver != "postgres" {
		return repository.NewMemoryStore(), func() {}, nil
	}

	db, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}
	log.Info().Msg("Database connection established")

	store := repository.NewPostgresStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}

	return store, db.Close, nil
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
