package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/angelmondragon/ordersettle/pkg/config"
	"github.com/angelmondragon/ordersettle/pkg/db"
	"github.com/angelmondragon/ordersettle/pkg/logger"
	"github.com/angelmondragon/ordersettle/pkg/migrate"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "up|down|status|version|create|validate")
	dir := flag.String("dir", migrate.DefaultDir, "directory for -cmd=create")
	name := flag.String("name", "", "migration name for -cmd=create")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	// create and validate work on files only
	switch *cmd {
	case "create":
		path, err := migrate.Scaffold(*dir, *name, time.Now())
		exitOn(err)
		fmt.Println("created migration:", path)
		return
	case "validate":
		exitOn(migrate.Check(migrate.Files()))
		fmt.Println("migration validation passed")
		return
	}

	cfg, err := config.Load()
	exitOn(err)
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": *cmd,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "database unavailable", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	exitOn(err)
	migrator, err := migrate.New(sqlDB, cfg.DB.Driver)
	exitOn(err)

	switch *cmd {
	case "up":
		applied, err := migrator.Up(ctx)
		exitOn(err)
		logg.Info(logg.WithField(ctx, "applied", applied), "migrate.up.complete")
	case "down":
		exitOn(migrator.Down(ctx))
	case "status":
		lines, err := migrator.Status(ctx)
		exitOn(err)
		for _, line := range lines {
			fmt.Println(line)
		}
	case "version":
		if *version == "" {
			exitOn(fmt.Errorf("missing -version"))
		}
		exitOn(migrator.To(ctx, *version))
	default:
		exitOn(fmt.Errorf("unknown -cmd value %q", *cmd))
	}
}

func exitOn(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, "migrate:", err)
	os.Exit(1)
}
