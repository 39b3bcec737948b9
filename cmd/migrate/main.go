package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"shopcore.dev/internal/auth"
	"shopcore.dev/internal/config"
	"shopcore.dev/internal/migrate"
	"shopcore.dev/internal/store/pg"
)

const usage = "usage: migrate [-config file] [up|down|status|seed]"

func main() {
	configPath := flag.String("config", "", "path to a TOML config file (defaults to $SHOPCORE_CONFIG)")
	timeout := flag.Duration("timeout", time.Minute, "overall timeout")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err := run(*configPath, flag.Arg(0), *timeout); err != nil {
		slog.Error("migrate failed", "command", flag.Arg(0), "err", err)
		os.Exit(1)
	}
}

func run(configPath, command string, timeout time.Duration) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := config.SetupLogger(cfg)
	if cfg.Database.URL == "" {
		return errors.New("database.url is required (SHOPCORE_DATABASE_URL)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	mgr := migrate.NewManager(cfg.MigrationURL(), migrate.WithLogger(logger))
	switch command {
	case "up":
		return mgr.Up(ctx)
	case "down":
		return mgr.Down(ctx)
	case "status":
		st, err := mgr.Status(ctx)
		if err != nil {
			return err
		}
		fmt.Println(st)
		return nil
	case "seed":
		return seed(ctx, cfg, mgr)
	default:
		return fmt.Errorf("unknown command %q; %s", command, usage)
	}
}

// seed installs the permission catalogue, the ADMIN role and, when configured, the bootstrap admin.
func seed(ctx context.Context, cfg config.Config, mgr *migrate.Manager) error {
	store, err := pg.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	hasher, err := auth.NewHasher(cfg.Auth.BcryptCost)
	if err != nil {
		return err
	}
	rbac, err := auth.NewRBACService(store, hasher, nil)
	if err != nil {
		return err
	}

	seeders := []migrate.Seeder{{
		Name: "rbac-builtins",
		Run: func(ctx context.Context) error {
			_, err := rbac.EnsureBuiltins(ctx)
			return err
		},
	}}
	if cfg.Bootstrap.AdminUsername != "" {
		seeders = append(seeders, migrate.Seeder{
			Name: "bootstrap-admin",
			Run: func(ctx context.Context) error {
				_, _, err := rbac.EnsureAdminUser(ctx, cfg.Bootstrap.AdminUsername, cfg.Bootstrap.AdminPassword)
				return err
			},
		})
	}
	return mgr.Seed(ctx, seeders...)
}
