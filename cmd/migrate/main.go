package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/freshcart/grocery-delivery/internal/config"
)

const usage = "usage: migrate [-path URL] <up [N] | down [N] | version | force VERSION>"

type command func(m *migrate.Migrate, args []string, logger *slog.Logger) error

var commands = map[string]command{
	"up":      up,
	"down":    down,
	"version": version,
	"force":   force,
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	path := flag.String("path", config.Getenv("MIGRATIONS_PATH", "file://migrations"), "migrations source URL")
	flag.Parse()

	if err := run(*path, flag.Args(), logger); err != nil {
		logger.Error("migrate failed", "error", err)
		os.Exit(1)
	}
}

func run(source string, args []string, logger *slog.Logger) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}

	env, err := config.Require("POSTGRES_URL")
	if err != nil {
		return err
	}

	m, err := migrate.New(source, env[0])
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	return cmd(m, args[1:], logger)
}

func steps(args []string) (int, error) {
	if len(args) == 0 {
		return 0, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("step count must be a positive integer, got %q", args[0])
	}
	return n, nil
}

func up(m *migrate.Migrate, args []string, logger *slog.Logger) error {
	n, err := steps(args)
	if err != nil {
		return err
	}
	if n == 0 {
		err = m.Up()
	} else {
		err = m.Steps(n)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("no pending migrations")
		return nil
	}
	if err != nil {
		return fmt.Errorf("up: %w", err)
	}
	logger.Info("migrations applied")
	return nil
}

func down(m *migrate.Migrate, args []string, logger *slog.Logger) error {
	n, err := steps(args)
	if err != nil {
		return err
	}
	err = m.Steps(-max(n, 1))
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("nothing to roll back")
		return nil
	}
	if err != nil {
		return fmt.Errorf("down: %w", err)
	}
	logger.Info("rolled back", "steps", max(n, 1))
	return nil
}

func version(m *migrate.Migrate, _ []string, logger *slog.Logger) error {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		logger.Info("no migrations applied yet")
		return nil
	}
	if err != nil {
		return fmt.Errorf("version: %w", err)
	}
	logger.Info("current version", "version", v, "dirty", dirty)
	return nil
}

func force(m *migrate.Migrate, args []string, logger *slog.Logger) error {
	if len(args) != 1 {
		return errors.New("usage: migrate force VERSION")
	}
	v, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid version %q", args[0])
	}
	if err := m.Force(v); err != nil {
		return fmt.Errorf("force: %w", err)
	}
	logger.Info("version forced", "version", v)
	return nil
}
