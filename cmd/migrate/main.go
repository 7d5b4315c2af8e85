package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/partsdepot/cart-service/pkg/config"
	"github.com/partsdepot/cart-service/pkg/db"
	"github.com/partsdepot/cart-service/pkg/logger"
	"github.com/partsdepot/cart-service/pkg/migrate"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: up|up-by-one|down|status|version|create|validate")
	dir := flag.String("dir", "", "migrations directory; empty uses the migrations built into the binary")
	name := flag.String("name", "", "migration name (for create)")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	// create and validate only touch the filesystem.
	switch *cmd {
	case "create":
		if *name == "" {
			exitf("missing -name for create")
		}
		target := *dir
		if target == "" {
			target = migrate.SourceDir
		}
		path, err := migrate.CreateSQLMigration(target, *name)
		if err != nil {
			exitf("failed to create migration: %v", err)
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		if err := migrate.Validate(migrate.Source(*dir)); err != nil {
			exitf("migration validation failed: %v", err)
		}
		fmt.Println("migration validation passed")
		return
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{
		"env": cfg.App.Env,
		"cmd": *cmd,
		"dir": *dir,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	requireResource(ctx, logg, "sql database", err)

	migrator, err := migrate.New(sqlDB, migrate.Source(*dir))
	requireResource(ctx, logg, "goose provider", err)

	if err := run(ctx, logg, migrator, *cmd, *version); err != nil {
		logg.Error(ctx, "migration failed", err)
		_ = dbClient.Close()
		os.Exit(1)
	}
	logg.Info(ctx, "migration finished")
}

func run(ctx context.Context, logg *logger.Logger, migrator *migrate.Migrator, cmd, version string) error {
	var (
		results []migrate.Result
		err     error
	)
	switch cmd {
	case "up":
		results, err = migrator.Up(ctx)
	case "up-by-one":
		results, err = migrator.UpByOne(ctx)
	case "down":
		results, err = migrator.Down(ctx)
	case "version":
		if version == "" {
			return fmt.Errorf("missing -version for version command")
		}
		results, err = migrator.To(ctx, version)
	case "status":
		statuses, err := migrator.Status(ctx)
		if err != nil {
			return err
		}
		for _, st := range statuses {
			fmt.Printf("%-8s %d  %s  %s\n", st.State, st.Version, st.AppliedAt, st.Path)
		}
		return nil
	default:
		return fmt.Errorf("unknown -cmd value: %s", cmd)
	}
	for _, r := range results {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"version":   r.Version,
			"file":      r.Path,
			"direction": r.Direction,
			"duration":  r.Duration,
		}), "migration step")
	}
	return err
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
