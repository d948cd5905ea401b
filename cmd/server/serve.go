package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/freshcart/internal/cache"
	"github.com/example/freshcart/internal/database"
	"github.com/example/freshcart/internal/routes"
	"github.com/example/freshcart/internal/services"
	"github.com/example/freshcart/internal/storage"
)

const shutdownTimeout = 15 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := bootstrap()
	if err != nil {
		return err
	}
	defer rt.close()

	cfg, log := rt.cfg, rt.log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(rt.db); err != nil {
		return err
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb, err = cache.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.Warn("redis unavailable, running without cache", zap.Error(err))
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}
	store := cache.New(rdb, "freshcart:")

	disk, err := storage.New(ctx, cfg)
	if err != nil {
		return err
	}
	images := storage.NewImages(disk, cfg.ImageMaxWidth)

	telegram := services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat, log)
	sms := services.NewSMSService(services.SMSConfig{
		BaseURL:  cfg.SMSBaseURL,
		Username: cfg.SMSUsername,
		Password: cfg.SMSPassword,
		Enabled:  cfg.SMSEnabled,
	}, log)
	push := services.NewPushService(rt.db, cfg.ExpoHost, cfg.ExpoAccessToken, log)
	settings := services.NewSettingsService(rt.db, store, log)

	app := routes.NewApp(routes.Dependencies{
		DB:       rt.db,
		Config:   cfg,
		Log:      log,
		Images:   images,
		Settings: settings,
		Push:     push,
		Auth: services.NewAuthService(rt.db, store, sms, services.AuthConfig{
			JWTSecret:      cfg.JWTSecret,
			TokenTTL:       cfg.TokenExpires,
			AdminTokenTTL:  cfg.AdminTokenExpires,
			OTPTTL:         cfg.OTPTTL,
			OTPCooldown:    cfg.OTPCooldown,
			OTPMaxAttempts: cfg.OTPMaxAttempts,
		}, log),
		Orders:    services.NewOrderService(rt.db, settings, telegram, push, log),
		Analytics: services.NewAnalyticsService(rt.db, store, log),
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("port", cfg.AppPort), zap.String("env", cfg.AppEnv))
		errCh <- app.Listen(":" + cfg.AppPort)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		log.Error("shutdown", zap.Error(err))
		return err
	}
	return nil
}
