package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/fx"

	"github.com/dmelo/convd/internal/config"
	"github.com/dmelo/convd/internal/daemon"
)

func main() {
	configFlag := flag.String("config", "", "config file path (default: <data-dir>/config.toml)")
	dataDirFlag := flag.String("data-dir", "", "data directory (overrides config)")
	listenFlag := flag.String("listen", "", "listen address (overrides config)")
	flag.Parse()

	cfg, err := resolveConfig(*configFlag, *dataDirFlag, *listenFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(cfg),
	)

	app.Run()
}

func resolveConfig(configPath, dataDir, listen string) (*config.Config, error) {
	cfg := config.Default()

	if configPath == "" {
		configPath = filepath.Join(cfg.DataDir, "config.toml")
	}
	if loaded, err := config.Load(configPath); err == nil {
		cfg = loaded
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}

	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if listen != "" {
		cfg.Listen = listen
	}
	return cfg, nil
}
