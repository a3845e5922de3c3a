package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"pixelmint/internal/config"
	"pixelmint/internal/repository"
)

// Applies schema migrations. With no arguments it runs "up", which is
// what deploy jobs want; other goose commands (down, status, redo) can
// be passed explicitly.
func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [up|down|status|redo]\n", os.Args[0])
	}
	flag.Parse()

	command := "up"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	if err := run(command); err != nil {
		slog.Error("migration failed", "command", command, "error", err)
		os.Exit(1)
	}

	slog.Info("migration finished", "command", command)
}

func run(command string) error {
	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	return repository.RunMigrations(context.Background(), cfg.DSN(), command)
}
