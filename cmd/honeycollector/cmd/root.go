// Package cmd contains the honeycollector command line interface implementation.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/edoardooldani/honeysensor/pkg/collector"
	"github.com/edoardooldani/honeysensor/pkg/conf"
	"github.com/edoardooldani/honeysensor/pkg/healthapi"
	"github.com/edoardooldani/honeysensor/pkg/logging"
	"github.com/edoardooldani/honeysensor/pkg/tsdb"
	"github.com/edoardooldani/honeysensor/pkg/version"

	hcconfig "github.com/edoardooldani/honeysensor/cmd/honeycollector/config"
)

const shutdownGracePeriod = 30 * time.Second

// Execute builds and runs the honeycollector root command.
func Execute() error {
	rootCmd, err := newRootCmd(run)
	if err != nil {
		return err
	}
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd.Execute()
}

type runFunc func(ctx context.Context, cfg *hcconfig.Config) error

func newRootCmd(run runFunc) (*cobra.Command, error) {
	cfg := hcconfig.New()

	rootCmd := &cobra.Command{
		Use:   "honeycollector",
		Short: "honeycollector terminates sensor mTLS sessions and persists validated alerts",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if path := viper.GetString(conf.ConfigFile); path != "" {
				viper.SetConfigFile(path)
				if err := viper.ReadInConfig(); err != nil {
					return fmt.Errorf("failed to read configuration file: %w", err)
				}
			}
			if err := viper.Unmarshal(cfg); err != nil {
				return fmt.Errorf("failed to parse configuration: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return logging.Init("honeycollector", version.Short(),
				viper.GetString(conf.LogLevel), viper.GetString(conf.LogEncoding))
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	if err := registerFlags(rootCmd, cfg); err != nil {
		return nil, fmt.Errorf("failed to register flags: %w", err)
	}
	return rootCmd, nil
}

const (
	flagListenAddr           = "listen.addr"
	flagListenCertFile       = "listen.cert_file"
	flagListenKeyFile        = "listen.key_file"
	flagListenClientCAFile   = "listen.client_ca_file"
	flagListenMaxMissedPings = "listen.max_missed_pings"

	flagTSDBAddr     = "tsdb.addr"
	flagTSDBDatabase = "tsdb.database"
	flagTSDBUsername = "tsdb.username"
	flagTSDBPassword = "tsdb.password"

	flagHealthAddr = "health.addr"
)

func registerFlags(cmd *cobra.Command, cfg *hcconfig.Config) error {
	pflags := cmd.PersistentFlags()

	if err := conf.RegisterFlags(cmd); err != nil {
		return err
	}

	pflags.StringVar(&cfg.Listen.Addr, flagListenAddr, cfg.Listen.Addr, "address the mTLS WebSocket listener binds to")
	pflags.StringVar(&cfg.Listen.CertFile, flagListenCertFile, "", "collector's mTLS server certificate")
	pflags.StringVar(&cfg.Listen.KeyFile, flagListenKeyFile, "", "collector's mTLS server key")
	pflags.StringVar(&cfg.Listen.ClientCAFile, flagListenClientCAFile, "", "CA certificate sensors' client certificates are signed by")
	pflags.IntVar(&cfg.Listen.MaxMissedPings, flagListenMaxMissedPings, cfg.Listen.MaxMissedPings, "consecutive missed pongs before closing a session")

	pflags.StringVar(&cfg.TSDB.Addr, flagTSDBAddr, "", "time-series database HTTP address")
	pflags.StringVar(&cfg.TSDB.Database, flagTSDBDatabase, "", "time-series database name")
	pflags.StringVar(&cfg.TSDB.Username, flagTSDBUsername, "", "time-series database username")
	pflags.StringVar(&cfg.TSDB.Password, flagTSDBPassword, "", "time-series database password")

	pflags.StringVar(&cfg.Health.Addr, flagHealthAddr, cfg.Health.Addr, "address the health/status/metrics server listens on")

	return viper.BindPFlags(pflags)
}

func run(ctx context.Context, cfg *hcconfig.Config) error {
	logger := logging.WithContext(ctx)
	logger.Info("loaded configuration", "listen_addr", cfg.Listen.Addr)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	writer, err := tsdb.New(tsdb.Config{
		Addr:     cfg.TSDB.Addr,
		Database: cfg.TSDB.Database,
		Username: cfg.TSDB.Username,
		Password: cfg.TSDB.Password,
	})
	if err != nil {
		return fmt.Errorf("connect tsdb writer: %w", err)
	}
	defer writer.Close()

	tlsConfig, err := cfg.Listen.TLSConfig()
	if err != nil {
		return fmt.Errorf("build listener tls config: %w", err)
	}

	srv := collector.NewServer(cfg.Listen.Addr, tlsConfig, writer, cfg.Listen.MaxMissedPings)

	health := healthapi.New("honeycollector", cfg.Health.Addr,
		healthapi.WithReadyCheck(func() (bool, string) { return true, "" }),
	)
	go func() {
		if err := health.Serve(); err != nil {
			logger.Warn("health server stopped", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.With("addr", cfg.Listen.Addr).Info("starting collector listener")
		errCh <- srv.Serve()
	}()

	logger.Info("started honeycollector")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("collector listener stopped", "error", err)
		}
	}

	stop()
	logger.Info("shutting down gracefully")

	fallbackCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	if err := srv.Shutdown(); err != nil {
		logger.Warn("forced shut down of collector listener", "error", err)
	}
	_ = health.Shutdown(fallbackCtx)

	logger.Info("graceful shut down completed")
	return nil
}
