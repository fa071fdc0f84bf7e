// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/ipcbridge/internal/wiring"
	"github.com/bureau-foundation/ipcbridge/lib/config"
	"github.com/bureau-foundation/ipcbridge/lib/process"
	"github.com/bureau-foundation/ipcbridge/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		modeName    string
		resolveURL  string
		watch       bool
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("ipcbridge", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to config file (default: $IPCBRIDGE_CONFIG)")
	flagSet.StringVar(&modeName, "mode", "host", "which side to run: host or client")
	flagSet.StringVar(&resolveURL, "resolve", "", "client mode: ask the host which proxy it uses for this URL")
	flagSet.BoolVar(&watch, "watch", false, "client mode: print connected clients until interrupted")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		version.Print(os.Stdout, "ipcbridge")
		return nil
	}

	mode, err := wiring.ParseMode(modeName)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	container, err := wiring.New(cfg, wiring.Options{Mode: mode})
	if err != nil {
		return fmt.Errorf("wiring %s: %w", mode, err)
	}
	defer container.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container.Logger().Info("starting ipcbridge",
		"version", version.Info(),
		"environment", cfg.Environment,
		"network", cfg.Transport.Network,
		"address", cfg.Transport.Address,
	)

	switch mode {
	case wiring.ModeHost:
		return runHost(ctx, container)
	default:
		return runClient(ctx, container, clientOptions{resolve: resolveURL, watch: watch}, os.Stdout)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFile(path)
}
