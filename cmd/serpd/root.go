package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/scorchedearth/scorched/metrics"
	"github.com/scorchedearth/scorched/server"
	"github.com/scorchedearth/scorched/util"
)

const shutdownTimeout = 30 * time.Second

// Config is the daemon configuration, filled from flags and SERPD_ variables
type Config struct {
	ListenAddress  string
	MaxConns       int
	RequestTimeout time.Duration
	// 0 disables the metrics server
	MetricsPort int
	LogLevel    string
	LogFile     string
}

func (c Config) Validate() error {
	if c.ListenAddress == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.MaxConns < 0 {
		return fmt.Errorf("max connections can't be negative")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port %d: must be between 0 and 65535", c.MetricsPort)
	}
	return nil
}

var (
	cobraConfig *Config
	rootCmd     = &cobra.Command{
		Use:           "serpd",
		Short:         "Scorched Earth relay",
		Long:          "Relay that pairs two players by room id and forwards their traffic",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          execute,
	}
)

func init() {
	cobraConfig = &Config{}
	rootCmd.PersistentFlags().StringVarP(&cobraConfig.ListenAddress, "listen-address", "l", server.DefaultAddress, "listen address")
	rootCmd.PersistentFlags().IntVar(&cobraConfig.MaxConns, "max-conns", 0, "maximum simultaneous connections, 0 for no limit")
	rootCmd.PersistentFlags().DurationVar(&cobraConfig.RequestTimeout, "request-timeout", server.DefaultRequestTimeout, "how long a client may take to send its request")
	rootCmd.PersistentFlags().IntVar(&cobraConfig.MetricsPort, "metrics-port", 0, "metrics endpoint http port, metrics are served under host:metrics-port/metrics. 0 disables it")
	rootCmd.PersistentFlags().StringVar(&cobraConfig.LogLevel, "log-level", "info", "log level")
	rootCmd.PersistentFlags().StringVar(&cobraConfig.LogFile, "log-file", "console", "log file")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func waitForExitSignal() {
	osSigs := make(chan os.Signal, 1)
	signal.Notify(osSigs, syscall.SIGINT, syscall.SIGTERM)
	<-osSigs
}

func execute(cmd *cobra.Command, args []string) error {
	// the command line wins over the environment
	util.SetFlagsFromEnvVars(cmd)

	if err := cobraConfig.Validate(); err != nil {
		log.Debugf("invalid config: %s", err)
		return fmt.Errorf("invalid config: %s", err)
	}

	if err := util.InitLog(cobraConfig.LogLevel, cobraConfig.LogFile); err != nil {
		log.Debugf("failed to initialize log: %s", err)
		return fmt.Errorf("failed to initialize log: %s", err)
	}

	var metricsServer *metrics.Metrics
	cfg := server.Config{
		Address:        cobraConfig.ListenAddress,
		MaxConns:       cobraConfig.MaxConns,
		RequestTimeout: cobraConfig.RequestTimeout,
	}
	if cobraConfig.MetricsPort > 0 {
		var err error
		metricsServer, err = metrics.NewServer(cobraConfig.MetricsPort, "")
		if err != nil {
			log.Debugf("setup metrics: %v", err)
			return fmt.Errorf("setup metrics: %v", err)
		}
		cfg.Meter = metricsServer.Meter
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("failed to create relay server: %v", err)
	}
	if err := srv.Listen(); err != nil {
		return fmt.Errorf("failed to bind relay server: %v", err)
	}

	wg := sync.WaitGroup{}
	startServers(&wg, metricsServer, srv)

	waitForExitSignal()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err = shutdownServers(ctx, metricsServer, srv)
	wg.Wait()
	return err
}

func startServers(wg *sync.WaitGroup, metricsServer *metrics.Metrics, srv *server.Server) {
	if metricsServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Infof("running metrics server: %s%s", metricsServer.Addr, metricsServer.Endpoint)
			if err := metricsServer.ListenAndServe(); err != nil {
				log.Fatalf("failed to start metrics server: %v", err)
			}
		}()
	}

	log.Infof("relay is listening on %s", srv.Addr())
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Serve(); !errors.Is(err, server.ErrServerClosed) {
			log.Fatalf("relay server stopped: %s", err)
		}
	}()
}

func shutdownServers(ctx context.Context, metricsServer *metrics.Metrics, srv *server.Server) error {
	var errs error

	if err := srv.Shutdown(ctx); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("failed to close relay server: %w", err))
	}

	if metricsServer != nil {
		log.Infof("shutting down metrics server")
		if err := metricsServer.Shutdown(ctx); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("failed to close metrics server: %w", err))
		}
	}

	return errs
}
