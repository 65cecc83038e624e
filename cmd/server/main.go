// Package main is the entry point for the QC tracker web application.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"qctracker/internal/auth"
	"qctracker/internal/config"
	"qctracker/internal/database"
	"qctracker/internal/logging"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "qctracker",
		Short:         "Quality-control test record tracker",
		Long:          "qctracker records per-device QC checklist results and serves them over a web UI.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configFile)
		},
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "the config file to use")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the web server (default)",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd.Context(), configFile)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply pending database migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrate(cmd.Context(), cmd, configFile)
			},
		},
		newUserAddCmd(&configFile),
		&cobra.Command{
			Use:   "version",
			Short: "Print build information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "qctracker %s (built %s)\n", Version, BuildTime)
			},
		},
	)

	return root
}

func newUserAddCmd(configFile *string) *cobra.Command {
	var (
		username string
		password string
		fullName string
		isAdmin  bool
	)

	cmd := &cobra.Command{
		Use:   "useradd",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*configFile)
			if err != nil {
				return err
			}

			db, err := database.New(cmd.Context(), cfg.Database, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			users, err := auth.NewUserService(db, cfg.Auth.BcryptCost, logger)
			if err != nil {
				return err
			}

			user, err := users.Create(cmd.Context(), username, password, fullName, isAdmin)
			if err != nil {
				return fmt.Errorf("failed to create user %q: %w", username, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "created user %s (id %d, admin=%t)\n", user.Username, user.ID, user.IsAdmin)
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "login name")
	cmd.Flags().StringVarP(&password, "password", "p", "", "initial password")
	cmd.Flags().StringVar(&fullName, "full-name", "", "display name")
	cmd.Flags().BoolVar(&isAdmin, "admin", false, "grant administrator rights")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func runMigrate(ctx context.Context, cmd *cobra.Command, configFile string) error {
	cfg, logger, err := setup(configFile)
	if err != nil {
		return err
	}

	// New applies pending migrations before returning.
	db, err := database.New(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	version, err := db.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
	return nil
}

func setup(configFile string) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, logging.New(cfg.Logging), nil
}
