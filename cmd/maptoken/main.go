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

	"github.com/mandalnilabja/maptoken/internal/app"
	"github.com/mandalnilabja/maptoken/internal/broker"
	"github.com/mandalnilabja/maptoken/internal/config"
	"github.com/mandalnilabja/maptoken/internal/oauth"
	"github.com/mandalnilabja/maptoken/internal/secrets"
	"github.com/mandalnilabja/maptoken/internal/storage"
	"github.com/mandalnilabja/maptoken/internal/transport/http/handler"
	"github.com/mandalnilabja/maptoken/internal/transport/http/handler/tiles"
	"github.com/mandalnilabja/maptoken/internal/transport/http/middleware/ratelimit"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if len(os.Args) > 1 && os.Args[1] == "secret" {
		if err := runSecretCommand(os.Args[2:], os.Stdin); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.EnsureConfigFile(); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := setupLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := ensureAdminPassword(store); err != nil {
		return err
	}

	backend, err := newSecretStore(ctx, cfg, store)
	if err != nil {
		return err
	}
	resolver, err := secrets.NewResolver(backend, cfg.SecretCacheTTL)
	if err != nil {
		return fmt.Errorf("failed to create secret cache: %w", err)
	}
	defer resolver.Close()

	exchanger := oauth.NewExchanger(oauth.Config{
		TokenURL:         cfg.TokenURL,
		Scopes:           cfg.Scopes,
		ClientIDName:     cfg.ClientIDSecret,
		ClientSecretName: cfg.ClientSecretSecret,
	}, resolver)

	b, err := broker.New(exchanger, broker.Config{
		Margin:   cfg.RefreshMargin,
		Recorder: store,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create token broker: %w", err)
	}
	defer b.Close()
	go b.Run(ctx)

	var tileHandlers *tiles.Handlers
	if cfg.TileUpstream != "" {
		tileHandlers, err = tiles.New(cfg.TileUpstream, b.TokenSource(ctx), nil, logger)
		if err != nil {
			return err
		}
	}

	limiter := ratelimit.New(cfg.RateLimit)
	defer limiter.Close()

	repo := handler.NewRepo(handler.Deps{
		Storage:       store,
		Broker:        b,
		Secrets:       resolver,
		SecretBackend: cfg.SecretBackend,
		Tiles:         tileHandlers,
		Logger:        logger,
	})
	router := app.NewRouter(repo, &app.RouterOptions{
		Logger:         logger,
		Passwords:      store,
		AllowedOrigins: cfg.AllowedOrigins,
		Limiter:        limiter,
		TrustProxy:     cfg.TrustProxy,
		ManageSecrets:  cfg.SecretBackend == config.BackendSQLite,
	})

	printStartupBanner(cfg)

	srv := app.NewServer(cfg, router, logger)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openStorage() (storage.Storage, error) {
	if err := config.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	store, err := storage.NewSQLiteStorage(config.DBPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	return store, nil
}

// newSecretStore picks the backend holding the client credentials.
func newSecretStore(ctx context.Context, cfg *config.Config, store storage.Storage) (secrets.Store, error) {
	switch cfg.SecretBackend {
	case config.BackendSSM:
		awsCfg, err := secrets.LoadAWSConfig(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		return secrets.NewParameterStore(awsCfg, cfg.SSMPrefix), nil
	case config.BackendEnv:
		return secrets.NewEnvStore(secrets.DefaultEnvPrefix), nil
	default:
		return secrets.NewStorageStore(store), nil
	}
}
