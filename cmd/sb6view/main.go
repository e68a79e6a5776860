// Package main is the entry point for the sb6view KTX/SBM previewer.
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/Faultbox/sb6go/internal/config"
	"github.com/Faultbox/sb6go/internal/logger"
	"github.com/Faultbox/sb6go/internal/viewer"
)

func main() {
	config.ParseFlags()

	if len(config.Args()) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: sb6view [flags] <file.ktx|file.sbm>")
		fmt.Fprintln(os.Stderr, "Keys: W wireframe, Space pause, +/- instances, Tab sub-object, M mip level, F fullscreen, P screenshot, Esc quit")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("=== sb6view ===")
	logger.Sugar.Debugf("Config: %+v", cfg)

	if config.SaveRequested() {
		if err := cfg.Save(); err != nil {
			logger.Warn("failed to save config", zap.Error(err))
		} else {
			logger.Info("config saved", zap.String("dir", config.ConfigDir()))
		}
	}

	v, err := viewer.New(cfg, config.Args()[0])
	if err != nil {
		logger.Error("failed to start viewer", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	defer v.Close()

	if err := v.Run(); err != nil {
		logger.Error("viewer error", zap.Error(err))
		v.Close()
		logger.Sync()
		os.Exit(1)
	}

	logger.Info("viewer closed normally")
}
