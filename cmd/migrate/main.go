package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/database"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	var (
		command       string
		steps         int
		migrationsDir string
		databaseURL   string
	)

	flag.StringVar(&command, "command", "up", "Migration command: up, down, force, version, drop")
	flag.IntVar(&steps, "steps", 0, "Number of migrations to run (0 = all), or the version for force")
	flag.StringVar(&migrationsDir, "dir", "migrations", "Path to migrations directory")
	flag.StringVar(&databaseURL, "database", "", "Database URL (overrides DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		log.Fatal().Msg("DATABASE_URL environment variable or -database flag is required")
	}

	absPath, err := filepath.Abs(migrationsDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to get absolute path for migrations directory")
	}

	log.Info().
		Str("dir", absPath).
		Str("command", command).
		Int("steps", steps).
		Msg("Starting migration")

	if command == "up" && steps == 0 {
		if err := database.RunMigrationsFromPath(databaseURL, absPath); err != nil {
			log.Fatal().Err(err).Msg("Migration failed")
		}
		return
	}

	m, err := migrate.New(fmt.Sprintf("file://%s", absPath), databaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create migrate instance")
	}
	defer m.Close()

	switch command {
	case "up":
		err = m.Steps(steps)
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	case "force":
		if steps == 0 {
			log.Fatal().Msg("Force command requires -steps flag with version number")
		}
		err = m.Force(steps)
	case "version":
		err = database.LogVersion(m)
	case "drop":
		err = m.Drop()
	default:
		log.Fatal().Str("command", command).Msg("Unknown command")
	}

	if errors.Is(err, migrate.ErrNoChange) {
		log.Info().Msg("No migrations to apply")
		return
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}

	log.Info().Msg("Migration completed successfully")
}
