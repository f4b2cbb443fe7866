package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/shopflow/internal/app"
	"github.com/vladislavdragonenkov/shopflow/internal/version"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "shop",
		Short:         "Orders, inventory and accounts services",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to shop.yaml (default: ./shop.yaml, /etc/shop/shop.yaml)")

	cmd.AddCommand(newServeCmd(opts), newSeedCmd(opts), newVersionCmd())
	return cmd
}

// loadConfig читает конфигурацию и настраивает логирование.
func (o *rootOptions) loadConfig(services []string) (app.Config, error) {
	cfg, err := app.Load(o.configPath)
	if err != nil {
		return app.Config{}, err
	}
	if len(services) > 0 {
		cfg.Services = services
		if err := cfg.Validate(); err != nil {
			return app.Config{}, err
		}
	}
	if err := app.ConfigureLogging(cfg.Log); err != nil {
		return app.Config{}, err
	}
	return cfg, nil
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var services []string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and message consumers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(services)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.WithFields(log.Fields{
				"http_addr": cfg.HTTP.Addr,
				"services":  cfg.Services,
				"version":   version.Version(),
			}).Info("запускаем shop")

			if err := app.Run(ctx, cfg); err != nil {
				return fmt.Errorf("shop stopped with error: %w", err)
			}
			log.Info("shop остановлен")
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&services, "services", nil, "services to run: orders,products,customers,inventory,accounts")
	return cmd
}

func newSeedCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Fill empty product and customer catalogues with sample data",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig([]string{app.ServiceProducts, app.ServiceCustomers})
			if err != nil {
				return err
			}
			if cfg.Storage.Driver == app.StorageMemory {
				log.Warn("storage.driver is memory: seeded data lives only for this command")
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Seed(ctx); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "seed ok")
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
