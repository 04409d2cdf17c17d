package main // Entry point package

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/estock/internal/config"
	"github.com/iliyamo/estock/internal/database"
	"github.com/iliyamo/estock/internal/docstore"
	"github.com/iliyamo/estock/internal/identity"
	"github.com/iliyamo/estock/internal/model"
	"github.com/iliyamo/estock/internal/session"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "estock",
		Short:        "Inventory tracking server",
		SilenceUsage: true,
		// serve is the default when no subcommand is given
		RunE: func(cmd *cobra.Command, args []string) error { return serve() },
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP server",
			RunE:  func(cmd *cobra.Command, args []string) error { return serve() },
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create the database schema",
			RunE:  func(cmd *cobra.Command, args []string) error { return migrate(cmd.Context()) },
		},
		newBootstrapCmd(),
	)
	return root
}

func serve() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	app := newApp(cfg)
	if err := app.Err(); err != nil {
		return err
	}
	app.Run()
	return nil
}

func migrate(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		return err
	}
	fmt.Println("schema up to date")
	return nil
}

// openDatabase connects to the configured store driver.
func openDatabase(cfg config.Config) (*sql.DB, error) {
	if cfg.StoreDriver == config.DriverSQLite {
		return database.OpenSQLite(cfg.SQLitePath)
	}
	return database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
}

func newBootstrapCmd() *cobra.Command {
	var email, password, name string
	cmd := &cobra.Command{
		Use:   "bootstrap-admin",
		Short: "Create or promote the first administrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			return bootstrapAdmin(ctx, email, password, name)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "administrator email")
	cmd.Flags().StringVar(&password, "password", "", "administrator password")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

// bootstrapAdmin finds or creates the identity, sets its password and writes
// an admin profile.  Running it again for the same email is harmless.
func bootstrapAdmin(ctx context.Context, email, password, name string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	defer func() { _ = log.Sync() }()

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		return err
	}

	ids := identity.NewService(identityConfig(cfg), db, nil, log)
	profiles := &session.Profiles{Store: docstore.NewSQLStore(db, nil, log)}

	id, err := ids.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, identity.ErrNotFound):
		id, err = ids.CreateIdentity(ctx, identity.CreateParams{Email: email, DisplayName: name, Password: password})
		if err != nil {
			return err
		}
	case err != nil:
		return err
	default:
		enabled := false
		if id, err = ids.UpdateIdentity(ctx, id.UID, identity.UpdateParams{Password: &password, Disabled: &enabled}); err != nil {
			return err
		}
	}
	if name == "" {
		name = id.DisplayName
	}
	if _, err := profiles.Provision(ctx, id, name, model.RoleAdmin, "bootstrap"); err != nil {
		return err
	}
	if err := ids.SetClaims(ctx, id.UID, map[string]any{"role": string(model.RoleAdmin)}); err != nil {
		return err
	}
	log.Info("administrator ready", zap.String("uid", id.UID), zap.String("email", id.Email))
	return nil
}
