package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	"rewardengine/internal/config"
	"rewardengine/internal/observability"
	"rewardengine/internal/persistence"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

func usage() {
	fmt.Println("Usage: migrate [-config file] <up|down>")
	fmt.Println("  up   - apply all pending migrations")
	fmt.Println("  down - roll back the last migration")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  REWARD_POSTGRES_DSN    - Postgres connection string")
	fmt.Println("  REWARD_MIGRATIONS_DIR  - path to migrations directory (default: migrations)")
}

func main() {
	configPath := flag.String("config", os.Getenv("REWARD_CONFIG"), "path to a config file")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() != 1 {
		usage()
		os.Exit(1)
	}

	logger := observability.NewLogger("migrate")
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()

	ctx := context.Background()
	migrator := persistence.NewMigrator(db, os.DirFS(cfg.MigrationsDir), logger)

	switch flag.Arg(0) {
	case "up":
		if err := migrator.Up(ctx); err != nil {
			logger.Fatal().Err(err).Msg("migrate up")
		}
		logger.Info().Msg("all migrations applied")

	case "down":
		if err := migrator.Down(ctx); err != nil {
			logger.Fatal().Err(err).Msg("migrate down")
		}
		logger.Info().Msg("last migration rolled back")

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s (use 'up' or 'down')\n", flag.Arg(0))
		os.Exit(1)
	}
}
