package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"grimm.is/ruledit/internal/api"
	"grimm.is/ruledit/internal/config"
	"grimm.is/ruledit/internal/logging"
	"grimm.is/ruledit/internal/versions"
)

// loadConfig reads configFile, or the built-in defaults plus environment
// overrides when configFile is empty.
func loadConfig(configFile string) (*config.Config, error) {
	if configFile == "" {
		return config.LoadBytes("defaults.hcl", nil)
	}
	return config.Load(configFile)
}

// RunServe runs the API server until SIGINT or SIGTERM.
func RunServe(configFile string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logCfg := logging.DefaultConfig()
	logCfg.Level = level
	logCfg.JSON = cfg.LogJSON
	logging.SetDefault(logging.New(logCfg))
	logger := logging.WithComponent("api")

	store, err := versions.OpenSQLite(cfg.Database, nil)
	if err != nil {
		return fmt.Errorf("failed to open version store: %w", err)
	}
	defer store.Close()
	logging.WithComponent("versions").Info("version store opened", "path", cfg.Database)

	srv, err := api.NewServer(api.ServerOptions{
		Config: cfg,
		Store:  store,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Serve(ctx, cfg.Listen, api.DefaultServerConfig()); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
