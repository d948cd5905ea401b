package main

import (
	"fmt"
	"os"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/freshcart/internal/config"
	"github.com/example/freshcart/internal/database"
	"github.com/example/freshcart/internal/logger"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "freshcart",
		Short: "FreshCart back-office API",
		// Running without a subcommand starts the server.
		RunE:         runServe,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(createAdminCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env holds what every subcommand needs.
type env struct {
	cfg *config.Config
	log *zap.Logger
	db  *gorm.DB
}

func bootstrap() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}

	log, err := logger.New(cfg.AppEnv)
	if err != nil {
		return nil, errors.Wrap(err, "build logger")
	}

	db, err := database.Connect(cfg.DatabaseURL, log)
	if err != nil {
		_ = log.Sync()
		return nil, errors.Wrap(err, "connect database")
	}

	return &env{cfg: cfg, log: log, db: db}, nil
}

func (r *env) close() {
	if sqlDB, err := r.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = r.log.Sync()
}
