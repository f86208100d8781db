package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/packfinderz-channelsync/pkg/config"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/db"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/logger"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/migrate"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	cmd := flag.String("cmd", migrate.CommandUp, "migration command: up|down|status|reset|version|create|validate")
	dir := flag.String("dir", migrate.DefaultDir, "goose migrations directory")
	name := flag.String("name", "", "migration name (for create)")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	// create and validate work on files only
	switch *cmd {
	case "create":
		if *name == "" {
			exitf("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(*dir, *name)
		if err != nil {
			exitf("failed to create migration: %v", err)
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		if err := migrate.ValidateDir(*dir); err != nil {
			exitf("migration validation failed: %v", err)
		}
		fmt.Println("migration validation passed")
		return
	}

	ctx := context.Background()
	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	dialect := migrate.Dialect(cfg.DB.Driver)
	ctx = logg.WithFields(ctx, map[string]any{
		"env":     cfg.App.Env,
		"cmd":     *cmd,
		"dir":     *dir,
		"dialect": dialect,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	requireResource(ctx, logg, "sql database", err)

	runner, err := migrate.NewRunner(sqlDB, dialect, *dir)
	requireResource(ctx, logg, "migration runner", err)

	var args []string
	if *cmd == migrate.CommandVersion {
		args = append(args, *version)
	}
	if err := runner.Exec(ctx, *cmd, args...); err != nil {
		logg.Error(ctx, "migration failed", err)
		os.Exit(1)
	}

	current, err := runner.Version(ctx)
	if err != nil {
		logg.Error(ctx, "failed to read schema version", err)
		os.Exit(1)
	}
	logg.Info(logg.WithField(ctx, "version", current), "migration finished")
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
