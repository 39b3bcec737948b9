package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shopcore.dev/internal/auth"
	"shopcore.dev/internal/commerce"
	"shopcore.dev/internal/config"
	"shopcore.dev/internal/events"
	"shopcore.dev/internal/httpapi"
	"shopcore.dev/internal/mfa"
	"shopcore.dev/internal/migrate"
	"shopcore.dev/internal/obs"
	"shopcore.dev/internal/store/memory"
	"shopcore.dev/internal/store/pg"
)

var commit = "unknown"

// backend is implemented by both the Postgres and the in-memory store.
type backend interface {
	auth.Directory
	mfa.SecretStore
	commerce.Repository
}

func main() {
	configPath := flag.String("config", "", "path to a TOML config file (defaults to $SHOPCORE_CONFIG)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("shopcore-api stopped", "err", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := config.SetupLogger(cfg)

	obs.Init(config.Version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, probe, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	publisher := newPublisher(cfg, logger)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("close event publisher", "err", err)
		}
	}()

	svc, err := wireServices(ctx, cfg, store, publisher, logger)
	if err != nil {
		return err
	}

	api, err := httpapi.New(cfg, svc, probe, config.Version)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	grpcSrv := httpapi.NewGRPCServer(probe)
	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("listen grpc %s: %w", cfg.GRPC.Addr, err)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()
	go func() {
		logger.Info("grpc listening", "addr", cfg.GRPC.Addr)
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		logger.Error("server failed", "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	grpcSrv.GracefulStop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info("stopped")
	return nil
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (backend, httpapi.ReadyProbe, func(), error) {
	if cfg.Database.URL == "" {
		logger.Warn("database.url is empty, using the in-memory store")
		return memory.New(), httpapi.ReadyProbe{}, func() {}, nil
	}
	if cfg.Database.MigrateOnStart {
		if err := migrate.NewManager(cfg.MigrationURL(), migrate.WithLogger(logger)).Up(ctx); err != nil {
			return nil, httpapi.ReadyProbe{}, nil, fmt.Errorf("migrate on start: %w", err)
		}
	}
	store, err := pg.Open(cfg.Database)
	if err != nil {
		return nil, httpapi.ReadyProbe{}, nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		_ = store.Close()
		return nil, httpapi.ReadyProbe{}, nil, fmt.Errorf("ping database: %w", err)
	}
	closeFn := func() {
		if err := store.Close(); err != nil {
			logger.Warn("close database", "err", err)
		}
	}
	return store, httpapi.ReadyProbe{DB: store.DB()}, closeFn, nil
}

func newPublisher(cfg config.Config, logger *slog.Logger) events.Publisher {
	if len(cfg.Kafka.Brokers) == 0 {
		return events.NewLogPublisher(logger)
	}
	logger.Info("publishing commerce events to kafka", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	return events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
}

func wireServices(ctx context.Context, cfg config.Config, store backend, publisher events.Publisher, logger *slog.Logger) (httpapi.Services, error) {
	hasher, err := auth.NewHasher(cfg.Auth.BcryptCost)
	if err != nil {
		return httpapi.Services{}, err
	}
	tokens, err := auth.NewTokenProvider(auth.TokenConfig{
		Secret: cfg.Auth.TokenSecret,
		Expiry: cfg.Auth.TokenExpiry(),
		Issuer: cfg.Auth.TokenIssuer,
	})
	if err != nil {
		return httpapi.Services{}, err
	}
	evaluator, err := auth.NewEvaluator(store, cfg.Auth.PBACEnabled,
		auth.WithPermissionCache(cfg.Auth.PermissionCacheSize, cfg.Auth.PermissionCacheTTL))
	if err != nil {
		return httpapi.Services{}, err
	}
	rbac, err := auth.NewRBACService(store, hasher, evaluator)
	if err != nil {
		return httpapi.Services{}, err
	}

	settings := mfa.Settings{Digits: cfg.MFA.Digits, Period: cfg.MFA.Period, Discrepancy: cfg.MFA.Discrepancy}
	enroller, err := mfa.NewEnroller(cfg.MFA.Issuer, cfg.MFA.QRSize, settings)
	if err != nil {
		return httpapi.Services{}, err
	}
	mfaSvc, err := mfa.NewService(store, enroller, cfg.MFA.Discrepancy)
	if err != nil {
		return httpapi.Services{}, err
	}
	authSvc, err := auth.NewService(store, hasher, tokens, auth.WithOTPVerifier(mfaSvc))
	if err != nil {
		return httpapi.Services{}, err
	}
	shop, err := commerce.NewService(store, publisher)
	if err != nil {
		return httpapi.Services{}, err
	}

	if _, err := rbac.EnsureBuiltins(ctx); err != nil {
		return httpapi.Services{}, fmt.Errorf("bootstrap rbac: %w", err)
	}
	if cfg.Bootstrap.AdminUsername != "" {
		u, created, err := rbac.EnsureAdminUser(ctx, cfg.Bootstrap.AdminUsername, cfg.Bootstrap.AdminPassword)
		if err != nil {
			return httpapi.Services{}, fmt.Errorf("bootstrap admin: %w", err)
		}
		if created {
			logger.Info("bootstrap admin created", "user_id", u.ID, "username", u.Username)
		}
	}

	return httpapi.Services{
		Auth:      authSvc,
		Evaluator: evaluator,
		RBAC:      rbac,
		MFA:       mfaSvc,
		Commerce:  shop,
	}, nil
}
