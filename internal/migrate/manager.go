// Package migrate applies the embedded schema with golang-migrate and runs seeders.
package migrate

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	gomigrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Seeder populates reference data after the schema is current.
type Seeder struct {
	Name string
	Run  func(ctx context.Context) error
}

// Status is the schema version recorded by golang-migrate.
type Status struct {
	Version uint
	Dirty   bool
	Applied bool
}

func (s Status) String() string {
	if !s.Applied {
		return "no migrations applied"
	}
	if s.Dirty {
		return fmt.Sprintf("version %d (dirty)", s.Version)
	}
	return fmt.Sprintf("version %d", s.Version)
}

// Manager runs migrations against a pgx5:// database URL.
type Manager struct {
	url    string
	logger *slog.Logger
}

// Option configures Manager.
type Option func(*Manager)

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager constructs a Manager. url must use the pgx5 scheme, see config.Config.MigrationURL.
func NewManager(url string, opts ...Option) *Manager {
	m := &Manager{url: url, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Up applies all pending migrations.
func (m *Manager) Up(ctx context.Context) error {
	return m.run(ctx, "up", func(mg *gomigrate.Migrate) error { return mg.Up() })
}

// Down reverts the most recent migration.
func (m *Manager) Down(ctx context.Context) error {
	return m.run(ctx, "down", func(mg *gomigrate.Migrate) error { return mg.Steps(-1) })
}

// Status reports the current schema version.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	var st Status
	err := m.run(ctx, "status", func(mg *gomigrate.Migrate) error {
		v, dirty, err := mg.Version()
		if errors.Is(err, gomigrate.ErrNilVersion) {
			return nil
		}
		if err != nil {
			return err
		}
		st = Status{Version: v, Dirty: dirty, Applied: true}
		return nil
	})
	return st, err
}

// Seed runs seeders in order and stops at the first failure.
func (m *Manager) Seed(ctx context.Context, seeders ...Seeder) error {
	for _, s := range seeders {
		if err := s.Run(ctx); err != nil {
			return fmt.Errorf("seed %s: %w", s.Name, err)
		}
		m.logger.InfoContext(ctx, "seed applied", "seed", s.Name)
	}
	return nil
}

func (m *Manager) run(ctx context.Context, op string, fn func(*gomigrate.Migrate) error) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	mg, err := gomigrate.NewWithSourceInstance("iofs", src, m.url)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	defer mg.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			mg.GracefulStop <- true
		case <-done:
		}
	}()

	if err := fn(mg); err != nil && !errors.Is(err, gomigrate.ErrNoChange) {
		return fmt.Errorf("migrate %s: %w", op, err)
	}
	if op != "status" {
		v, dirty, _ := mg.Version()
		m.logger.InfoContext(ctx, "migrations applied", "op", op, "version", v, "dirty", dirty)
	}
	return nil
}

// Files lists the embedded migration file names, for diagnostics and tests.
func Files() ([]string, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
