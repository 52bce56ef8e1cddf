// Утилита управления схемой PostgreSQL: применяет и откатывает
// миграции каталога, склада, outbox и idempotency-ключей.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ordenio/pedidos/internal/storage/postgres"
)

const migrateTimeout = 30 * time.Second

type options struct {
	command string
	steps   int
	dsn     string
}

func main() {
	opts, err := parseArgs(os.Args[1:])
	if err != nil {
		fatalf("%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
	defer cancel()

	summary, err := run(ctx, opts)
	if err != nil {
		fatalf("%v", err)
	}
	fmt.Println(summary)
}

func parseArgs(args []string) (options, error) {
	var opts options

	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.IntVar(&opts.steps, "steps", 0, "number of migrations to apply or roll back (0 = all for up, 1 for down)")
	fs.StringVar(&opts.dsn, "dsn", "", "PostgreSQL DSN (fallback: PEDIDOS_POSTGRES_DSN)")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: migrate [-steps N] [-dsn DSN] <up|down|status>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts.command = strings.ToLower(strings.TrimSpace(fs.Arg(0)))
	switch opts.command {
	case "up", "down", "status":
	case "":
		return options{}, errors.New("command is required: up, down or status")
	default:
		return options{}, fmt.Errorf("unknown command %q: use up, down or status", opts.command)
	}

	if strings.TrimSpace(opts.dsn) == "" {
		opts.dsn = strings.TrimSpace(os.Getenv("PEDIDOS_POSTGRES_DSN"))
	}
	if opts.dsn == "" {
		return options{}, errors.New("PEDIDOS_POSTGRES_DSN (or -dsn) is required")
	}

	return opts, nil
}

func run(ctx context.Context, opts options) (string, error) {
	store, err := postgres.Open(ctx, opts.dsn)
	if err != nil {
		return "", fmt.Errorf("open postgres store: %w", err)
	}
	defer store.Close()

	switch opts.command {
	case "up":
		if err := store.MigrateUp(ctx, opts.steps); err != nil {
			return "", fmt.Errorf("migrate up: %w", err)
		}
	case "down":
		steps := opts.steps
		if steps <= 0 {
			steps = 1
		}
		if err := store.MigrateDown(ctx, steps); err != nil {
			return "", fmt.Errorf("migrate down: %w", err)
		}
	}

	version, applied, err := store.MigrationStatus(ctx)
	if err != nil {
		return "", fmt.Errorf("migration status: %w", err)
	}
	return fmt.Sprintf("%s ok: version=%d applied=%d", opts.command, version, applied), nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
