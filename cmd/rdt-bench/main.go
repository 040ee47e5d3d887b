package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/aetherflow/rdt/cmd/rdt-bench/config"
	"github.com/aetherflow/rdt/cmd/rdt-bench/server"
)

var (
	configFile = flag.String("f", "configs/rdt-bench.yaml", "config file path")
	version    = "0.1.0"
)

func main() {
	flag.Parse()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("failed to create logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("starting rdt-bench", zap.String("version", version))

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build server", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Fatal("server error", zap.Error(err))
	case sig := <-sigCh:
		logger.Info("received signal", zap.String("signal", sig.String()))
		srv.Stop()
	}

	logger.Info("rdt-bench shutdown complete")
}

func loadConfig(filename string) (*config.Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("config file not found, using default config")
			return config.DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := config.DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zcfg.Level = level
	return zcfg.Build()
}
