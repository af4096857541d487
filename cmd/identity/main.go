package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/adventuresafari/identity/internal/cli"
	"github.com/adventuresafari/identity/internal/config"
	"github.com/adventuresafari/identity/internal/hashing"
	"github.com/adventuresafari/identity/internal/logging"
	"github.com/adventuresafari/identity/internal/notifier"
	"github.com/adventuresafari/identity/internal/repositories/repomanager"
	"github.com/adventuresafari/identity/internal/services"

	"github.com/joho/godotenv"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("config error: %v", err)
		return
	}

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repomanager.Open(cfg.DatabaseDSN)
	if err != nil {
		logger.Error(ctx, "database open failed", "error", err.Error())
		return
	}
	defer db.Close()

	manager := repomanager.NewPostgresRepositoryManager()
	if err := manager.RunMigrations(ctx, db); err != nil {
		logger.Error(ctx, "migrations failed", "error", err.Error())
		return
	}

	hasher := hashing.NewBcrypt()
	notif := notifier.NewLogNotifier(logger)

	identity := services.NewIdentityService(db, manager, hasher, notif, logger, cfg)
	login := services.NewLoginService(db, manager, hasher, logger, cfg)

	app := cli.NewApp(cfg, identity, login, logger)
	app.Run(ctx)
}
