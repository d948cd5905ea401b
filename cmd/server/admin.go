package main

import (
	"os"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/freshcart/internal/cache"
	"github.com/example/freshcart/internal/database"
	"github.com/example/freshcart/internal/services"
)

func createAdminCmd() *cobra.Command {
	var (
		email    string
		name     string
		password string
	)

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create a dashboard account or reset its password",
		Long: `Create a dashboard account or reset its password.

The password may also be passed through ADMIN_PASSWORD to keep it out of
shell history.

Examples:
  freshcart create-admin --email ops@example.com --name Ops --password 's3cret-pass'
  ADMIN_PASSWORD='s3cret-pass' freshcart create-admin --email ops@example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("ADMIN_PASSWORD")
			}
			if email == "" || password == "" {
				return errors.New("--email and --password are required")
			}

			rt, err := bootstrap()
			if err != nil {
				return err
			}
			defer rt.close()

			if err := database.Migrate(rt.db); err != nil {
				return err
			}

			auth := services.NewAuthService(rt.db, cache.New(nil, ""), nil, services.AuthConfig{
				JWTSecret:     rt.cfg.JWTSecret,
				AdminTokenTTL: rt.cfg.AdminTokenExpires,
			}, rt.log)

			admin, created, err := auth.UpsertAdmin(cmd.Context(), email, name, password)
			if err != nil {
				return err
			}

			rt.log.Info("admin account saved",
				zap.String("email", admin.Email),
				zap.Bool("created", created),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "admin email")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&password, "password", "", "password (min 8 characters)")

	return cmd
}
