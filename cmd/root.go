// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/uartlink/internal/config"
	"github.com/Thermoquad/uartlink/internal/logging"
)

var (
	cfgFile string

	// Loaded in PersistentPreRunE, valid inside every RunE
	cfg    *config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "uartlink",
	Short: "UART sensor link tool",
	Long: `uartlink - send, receive and analyze sensor record frames on a UART link.

Each frame carries one 46-byte sensor record (16 IR readings, 4 ultrasonic
readings, a millisecond timestamp and a sequence number) between a 0xAA
header and a 0x55 footer, protected by a CRC-8.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

Settings can also come from a config file (--config, UARTLINK_CONFIG or
./uartlink.yaml) and UARTLINK_* environment variables. Flags win over both.

For WebSocket authentication, the password is read from the UARTLINK_PASSWORD
environment variable, or prompted interactively if not set.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}
		logger, err = logging.InitLogger(cfg.Logging)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		logger = logger.With(zap.String("cmd", cmd.Name()))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()

	pf.StringVar(&cfgFile, "config", "", "Config file (YAML, TOML or JSON)")

	// Serial connection flags
	pf.StringP("port", "p", "", "Serial port device")
	pf.IntP("baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	pf.StringP("url", "u", "", "WebSocket URL (ws:// or wss://)")
	pf.String("username", "", "Username for HTTP Basic auth")
	pf.Bool("no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.String("log-format", "console", "Log format (console, json)")
	pf.String("log-file", "", "Also write logs to this rotating file")
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
