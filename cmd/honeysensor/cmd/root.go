// Package cmd contains the honeysensor command line interface implementation.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/edoardooldani/honeysensor/pkg/anomaly"
	"github.com/edoardooldani/honeysensor/pkg/conf"
	"github.com/edoardooldani/honeysensor/pkg/flowtracker"
	"github.com/edoardooldani/honeysensor/pkg/frame"
	"github.com/edoardooldani/honeysensor/pkg/graph"
	"github.com/edoardooldani/honeysensor/pkg/healthapi"
	"github.com/edoardooldani/honeysensor/pkg/inference"
	"github.com/edoardooldani/honeysensor/pkg/logging"
	"github.com/edoardooldani/honeysensor/pkg/scaler"
	"github.com/edoardooldani/honeysensor/pkg/sensor"
	"github.com/edoardooldani/honeysensor/pkg/transport"
	"github.com/edoardooldani/honeysensor/pkg/types"
	"github.com/edoardooldani/honeysensor/pkg/version"
	"github.com/edoardooldani/honeysensor/pkg/vhost"

	hsconfig "github.com/edoardooldani/honeysensor/cmd/honeysensor/config"
)

const shutdownGracePeriod = 30 * time.Second

// Execute builds and runs the honeysensor root command.
func Execute() error {
	rootCmd, err := newRootCmd(run)
	if err != nil {
		return err
	}
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd.Execute()
}

type runFunc func(ctx context.Context, cfg *hsconfig.Config) error

func newRootCmd(run runFunc) (*cobra.Command, error) {
	cfg := hsconfig.New()

	rootCmd := &cobra.Command{
		Use:   "honeysensor",
		Short: "honeysensor captures traffic, detects anomalies, and deceives scanners with synthetic hosts",
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
			return logging.Init("honeysensor", version.Short(),
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
	flagIfaceName       = "interface.name"
	flagIfaceRingBuffer = "interface.ring_buffer_size"

	flagModelSharedLib   = "model.shared_library_path"
	flagModelAEPath      = "model.autoencoder_path"
	flagModelAEScaler    = "model.autoencoder_scaler"
	flagModelClsPath     = "model.classifier_path"
	flagModelClsScaler   = "model.classifier_scaler"

	flagAnomalyMAEThreshold = "anomaly.mae_threshold"
	flagAnomalyMedium       = "anomaly.medium_priority_threshold"
	flagAnomalyHigh         = "anomaly.high_priority_threshold"
	flagAnomalyEvictEvery   = "anomaly.eviction_interval"
	flagAnomalyEvictMaxAge  = "anomaly.eviction_max_age"

	flagVirtualCount    = "virtual.count"
	flagVirtualRangeMin = "virtual.ipv4_range_min"
	flagVirtualRangeMax = "virtual.ipv4_range_max"

	flagCollectorURL            = "collector.url"
	flagCollectorCertFile       = "collector.cert_file"
	flagCollectorKeyFile        = "collector.key_file"
	flagCollectorCAFile         = "collector.ca_file"
	flagCollectorRingBuffer     = "collector.ring_buffer_size"
	flagCollectorReconnectDelay = "collector.reconnect_delay"
	flagCollectorDialTimeout    = "collector.dial_timeout"

	flagHealthAddr = "health.addr"
)

func registerFlags(cmd *cobra.Command, cfg *hsconfig.Config) error {
	pflags := cmd.PersistentFlags()

	if err := conf.RegisterFlags(cmd); err != nil {
		return err
	}

	pflags.StringVar(&cfg.Interface.Name, flagIfaceName, "", "network interface to capture on")
	pflags.IntVar(&cfg.Interface.RingBufferSize, flagIfaceRingBuffer, cfg.Interface.RingBufferSize, "kernel capture ring buffer size in bytes (0 selects libpcap's default)")

	pflags.StringVar(&cfg.Model.SharedLibraryPath, flagModelSharedLib, "", "path to the ONNX Runtime shared library")
	pflags.StringVar(&cfg.Model.AutoencoderPath, flagModelAEPath, "", "path to the autoencoder ONNX model")
	pflags.StringVar(&cfg.Model.AutoencoderScaler, flagModelAEScaler, "", "path to the autoencoder scaler descriptor")
	pflags.StringVar(&cfg.Model.ClassifierPath, flagModelClsPath, "", "path to the classifier ONNX model")
	pflags.StringVar(&cfg.Model.ClassifierScaler, flagModelClsScaler, "", "path to the classifier scaler descriptor")

	pflags.Float64Var(&cfg.Anomaly.MAEThreshold, flagAnomalyMAEThreshold, cfg.Anomaly.MAEThreshold, "autoencoder MAE threshold gating the classifier stage")
	pflags.IntVar(&cfg.Anomaly.MediumPriorityThreshold, flagAnomalyMedium, cfg.Anomaly.MediumPriorityThreshold, "per-node anomaly count at which alert priority escalates to medium")
	pflags.IntVar(&cfg.Anomaly.HighPriorityThreshold, flagAnomalyHigh, cfg.Anomaly.HighPriorityThreshold, "per-node anomaly count at which alert priority escalates to high")
	pflags.DurationVar(&cfg.Anomaly.EvictionInterval, flagAnomalyEvictEvery, cfg.Anomaly.EvictionInterval, "interval between idle-flow eviction sweeps")
	pflags.DurationVar(&cfg.Anomaly.EvictionMaxAge, flagAnomalyEvictMaxAge, cfg.Anomaly.EvictionMaxAge, "idle duration after which a flow is evicted")

	pflags.IntVar(&cfg.Virtual.Count, flagVirtualCount, cfg.Virtual.Count, "number of virtual honeypot identities to seed")
	pflags.IntVar(&cfg.Virtual.IPv4RangeMin, flagVirtualRangeMin, cfg.Virtual.IPv4RangeMin, "lower bound of the virtual host IPv4 last-octet allocation window")
	pflags.IntVar(&cfg.Virtual.IPv4RangeMax, flagVirtualRangeMax, cfg.Virtual.IPv4RangeMax, "inclusive probe ceiling of the virtual host IPv4 last-octet allocation window")

	pflags.StringVar(&cfg.Collector.URL, flagCollectorURL, "", "collector WebSocket URL (wss://host:port/ingest)")
	pflags.StringVar(&cfg.Collector.CertFile, flagCollectorCertFile, "", "sensor's mTLS client certificate")
	pflags.StringVar(&cfg.Collector.KeyFile, flagCollectorKeyFile, "", "sensor's mTLS client key")
	pflags.StringVar(&cfg.Collector.CAFile, flagCollectorCAFile, "", "CA certificate that signed the collector's server certificate")
	pflags.IntVar(&cfg.Collector.RingBufferSize, flagCollectorRingBuffer, cfg.Collector.RingBufferSize, "capacity of the outbound ring buffer that takes packets when the live send channel is full")
	pflags.DurationVar(&cfg.Collector.ReconnectDelay, flagCollectorReconnectDelay, cfg.Collector.ReconnectDelay, "delay between reconnect attempts")
	pflags.DurationVar(&cfg.Collector.DialTimeout, flagCollectorDialTimeout, cfg.Collector.DialTimeout, "WebSocket handshake timeout")

	pflags.StringVar(&cfg.Health.Addr, flagHealthAddr, cfg.Health.Addr, "address the health/status/metrics server listens on")

	return viper.BindPFlags(pflags)
}

func run(ctx context.Context, cfg *hsconfig.Config) error {
	logger := logging.WithContext(ctx)
	logger.Info("loaded configuration", "interface", cfg.Interface.Name)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	src, err := frame.Open(cfg.Interface.Name, cfg.Interface.RingBufferSize)
	if err != nil {
		return fmt.Errorf("open capture interface: %w", err)
	}
	defer src.Close()

	aeScalerParams, err := scaler.Load(cfg.Model.AutoencoderScaler)
	if err != nil {
		return fmt.Errorf("load autoencoder scaler: %w", err)
	}
	clsScalerParams, err := scaler.Load(cfg.Model.ClassifierScaler)
	if err != nil {
		return fmt.Errorf("load classifier scaler: %w", err)
	}

	model, err := inference.NewRunner(inference.Config{
		SharedLibraryPath:  cfg.Model.SharedLibraryPath,
		AutoencoderPath:    cfg.Model.AutoencoderPath,
		AutoencoderInputs:  aeScalerParams.Len(),
		AutoencoderOutputs: aeScalerParams.Len(),
		ClassifierPath:     cfg.Model.ClassifierPath,
		ClassifierInputs:   clsScalerParams.Len(),
		ClassifierOutputs:  int(types.PortScan) + 1, // one softmax score per AnomalyClass
	})
	if err != nil {
		return fmt.Errorf("load inference models: %w", err)
	}
	defer model.Close()

	g := graph.New(src.LocalMAC(), graph.WithVirtualIPv4Range(cfg.Virtual.IPv4RangeMin, cfg.Virtual.IPv4RangeMax))
	responder := vhost.New(src)

	engine := anomaly.NewEngine(anomaly.Config{
		MAEThreshold:            cfg.Anomaly.MAEThreshold,
		MediumPriorityThreshold: cfg.Anomaly.MediumPriorityThreshold,
		HighPriorityThreshold:   cfg.Anomaly.HighPriorityThreshold,
	}, aeScalerParams, clsScalerParams, model, g)

	tlsConfig, err := cfg.Collector.TLSConfig()
	if err != nil {
		return fmt.Errorf("build collector tls config: %w", err)
	}
	client := transport.NewClient(transport.ClientConfig{
		URL:            cfg.Collector.URL,
		TLSConfig:      tlsConfig,
		RingBufferSize: cfg.Collector.RingBufferSize,
		ReconnectDelay: cfg.Collector.ReconnectDelay,
		DialTimeout:    cfg.Collector.DialTimeout,
	})
	go client.Run(ctx)

	tracker := flowtracker.New()

	se := sensor.New(sensor.Config{
		EvictionInterval: cfg.Anomaly.EvictionInterval,
		EvictionMaxAge:   cfg.Anomaly.EvictionMaxAge,
		VirtualHostCount: cfg.Virtual.Count,
	}, src, tracker, g, responder, engine, client)

	if err := se.SeedVirtualHosts(); err != nil {
		return fmt.Errorf("seed virtual hosts: %w", err)
	}

	health := healthapi.New("honeysensor", cfg.Health.Addr,
		healthapi.WithReadyCheck(func() (bool, string) { return true, "" }),
		healthapi.WithStatus(func() any {
			return map[string]any{"flows": tracker.Len()}
		}),
	)
	go func() {
		if err := health.Serve(); err != nil {
			logger.Warn("health server stopped", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- se.Run(ctx) }()

	logger.Info("started honeysensor")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Warn("capture loop stopped", "error", err)
		}
	}

	stop()
	logger.Info("shutting down gracefully")

	fallbackCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	_ = health.Shutdown(fallbackCtx)

	logger.Info("graceful shut down completed")
	return nil
}
