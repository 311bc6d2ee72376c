// Command ecs runs the External Configuration Service: it loads the
// node-seed and operational config, wires the coordination client,
// hash ring, multicaster, and gossip-based liveness detector into a
// Controller, and serves the admin, health, and metrics HTTP
// surfaces until it receives SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/abdulrahman86/ecs/internal/config"
	"github.com/abdulrahman86/ecs/internal/controller"
	"github.com/abdulrahman86/ecs/internal/dcs"
	"github.com/abdulrahman86/ecs/internal/ecsconfig"
	"github.com/abdulrahman86/ecs/internal/healthz"
	"github.com/abdulrahman86/ecs/internal/httpapi"
	"github.com/abdulrahman86/ecs/internal/launch"
	"github.com/abdulrahman86/ecs/internal/membership"
	"github.com/abdulrahman86/ecs/internal/metrics"
	"github.com/abdulrahman86/ecs/internal/multicast"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exit codes, per the controller surface's operational contract.
const (
	exitOK             = 0
	exitConfigError    = 1
	exitCoordination   = 2
	exitStartupFailure = 3
)

func main() {
	logger, err := initLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(exitStartupFailure)
	}
	defer logger.Sync()

	os.Exit(run(logger))
}

func run(logger *zap.Logger) int {
	configPath := os.Getenv("ECS_CONFIG_PATH")
	if configPath == "" {
		configPath = "./ecs.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load configuration", zap.Error(err))
		return exitConfigError
	}

	if lvl, lvlErr := zap.ParseAtomicLevel(cfg.Logging.Level); lvlErr == nil {
		logger = logger.WithOptions(zap.IncreaseLevel(lvl.Level()))
	}

	nodes, err := ecsconfig.LoadNodeSeedFile(cfg.NodeSeedFile, logger)
	if err != nil {
		logger.Error("failed to load node seed file", zap.Error(err), zap.String("path", cfg.NodeSeedFile))
		return exitConfigError
	}
	logger.Info("loaded node seed file", zap.Int("count", len(nodes)), zap.String("path", cfg.NodeSeedFile))

	dcsClient := dcs.NewInProcess(logger)
	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.DCS.ConnectTimeout)
	defer cancel()
	if err := dcsClient.Connect(connectCtx); err != nil {
		logger.Error("failed to connect to coordination service", zap.Error(err))
		return exitCoordination
	}
	defer dcsClient.Close()

	liveness, err := membership.New(membership.Config{
		Enabled:   cfg.Membership.Enabled,
		BindAddr:  cfg.Membership.BindAddr,
		BindPort:  cfg.Membership.BindPort,
		SeedNodes: cfg.Membership.SeedNodes,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize membership detector", zap.Error(err))
		return exitStartupFailure
	}
	defer liveness.Shutdown()

	m := metrics.New(nil)
	launcher := launch.NewSSH(launch.SSHConfig{Command: cfg.Launch.Command})
	multicaster := multicast.New(dcsClient, liveness, logger)

	ctrl := controller.New(controller.Config{
		ServerRoot:        cfg.DCS.ServerRoot,
		MetadataRoot:      cfg.DCS.MetadataRoot,
		MulticastDeadline: cfg.Multicast.Deadline,
	}, dcsClient, multicaster, launcher, liveness, m, logger)
	ctrl.LoadPool(nodes)

	adminMux := http.NewServeMux()
	httpapi.New(ctrl, logger).RegisterRoutes(adminMux)
	adminServer := &http.Server{Addr: cfg.Server.AdminAddr, Handler: adminMux}

	healthMux := http.NewServeMux()
	healthz.New(func() bool { return true }, logger).RegisterRoutes(healthMux)
	healthServer := &http.Server{Addr: cfg.Server.HealthAddr, Handler: healthMux}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: metricsMux}

	errCh := make(chan error, 3)
	startServer(adminServer, "admin", logger, errCh)
	startServer(healthServer, "health", logger, errCh)
	startServer(metricsServer, "metrics", logger, errCh)

	logger.Info("ecs started",
		zap.String("admin_addr", cfg.Server.AdminAddr),
		zap.String("health_addr", cfg.Server.HealthAddr),
		zap.String("metrics_addr", cfg.Server.MetricsAddr))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("server failed", zap.Error(err))
		return exitStartupFailure
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	for _, s := range []*http.Server{adminServer, healthServer, metricsServer} {
		if err := s.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown did not complete cleanly", zap.Error(err))
		}
	}
	return exitOK
}

func startServer(s *http.Server, name string, logger *zap.Logger, errCh chan<- error) {
	go func() {
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("%s server: %w", name, err)
		}
	}()
}

func initLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	return cfg.Build()
}
