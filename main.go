package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Fixen7/lifequest-app/config"
	dbadapter "github.com/Fixen7/lifequest-app/db"
	"github.com/Fixen7/lifequest-app/model"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "lifequest",
		Short:         "Gamified personal productivity server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config/config.yaml", "path to the YAML config file")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap(cfgPath)
			if err != nil {
				return err
			}
			defer logger.Sync()
			return serve(cmd.Context(), cfg, logger)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap(cfgPath)
			if err != nil {
				return err
			}
			defer logger.Sync()
			db, err := dbadapter.Open(cfg.Database)
			if err != nil {
				return fmt.Errorf("db: %w", err)
			}
			if err := model.AutoMigrate(db); err != nil {
				return fmt.Errorf("db migrate: %w", err)
			}
			logger.Info("schema migrated", zap.String("mode", cfg.Database.Mode))
			return nil
		},
	})
	return root
}

func bootstrap(cfgPath string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}

	var logger *zap.Logger
	if cfg.Server.Debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, logger, nil
}
