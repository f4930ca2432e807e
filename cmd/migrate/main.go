// Database migration CLI tool
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stratforge/internal/config"
	"github.com/ajitpratap0/stratforge/internal/db"
)

// migrator is the part of db.Migrator the commands drive
type migrator interface {
	Migrate(ctx context.Context) (int, error)
	Status(ctx context.Context) ([]db.MigrationStatus, error)
}

func main() {
	// Parse command line flags
	command := flag.String("command", "migrate", "Command to run: migrate or status")
	dbURL := flag.String("db", "", "Database connection URL (default: DATABASE_URL or the database config)")
	migrationsDir := flag.String("migrations", "", "Directory of migration files (default: the embedded set)")
	configPath := flag.String("config", "", "Path to config file")
	envFile := flag.String("env", ".env", "Env file loaded before the config")
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Failed to load env file: %v\n", err)
			os.Exit(1)
		}
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	config.InitLoggerTo(os.Stderr, cfg.App.LogLevel, "console")

	dsn := resolveDSN(*dbURL, os.Getenv("DATABASE_URL"), cfg.Database)

	// Connect to database
	database, err := db.OpenSQL(dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer func() {
		if err := database.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database connection")
		}
	}()

	ctx := context.Background()
	if err := database.PingContext(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to ping database")
		os.Exit(1)
	}

	var files fs.FS
	if *migrationsDir != "" {
		files = os.DirFS(*migrationsDir)
	}

	if err := execute(ctx, *command, db.NewMigrator(database, files), os.Stdout); err != nil {
		log.Error().Err(err).Str("command", *command).Msg("Migration command failed")
		fmt.Fprintf(os.Stderr, "Usage: migrate -command=[migrate|status]\n")
		os.Exit(1)
	}
}

// resolveDSN picks the connection string: the flag, then DATABASE_URL, then
// the database section of the config
func resolveDSN(flagURL, envURL string, cfg config.DatabaseConfig) string {
	if flagURL != "" {
		return flagURL
	}
	if envURL != "" {
		return envURL
	}
	return cfg.GetDSN()
}

func execute(ctx context.Context, command string, m migrator, out io.Writer) error {
	switch command {
	case "migrate":
		applied, err := m.Migrate(ctx)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		fmt.Fprintf(out, "Applied %d migration(s)\n", applied)
		return nil
	case "status":
		statuses, err := m.Status(ctx)
		if err != nil {
			return fmt.Errorf("status check failed: %w", err)
		}
		writeStatus(out, statuses)
		return nil
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func writeStatus(out io.Writer, statuses []db.MigrationStatus) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Version", "Description", "Status", "Applied At"})

	pending := 0
	for _, s := range statuses {
		state, at := "pending", "-"
		if s.Applied {
			state = "applied"
			if s.AppliedAt != nil {
				at = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		} else {
			pending++
		}
		t.AppendRow(table.Row{fmt.Sprintf("%03d", s.Version), s.Description, state, at})
	}
	t.SetCaption("%d migration(s), %d pending", len(statuses), pending)
	t.Render()
}
