// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/Thermoquad/uartlink/internal/config"
	"github.com/Thermoquad/uartlink/pkg/link"
	"github.com/Thermoquad/uartlink/pkg/sensorlink"
)

// PasswordEnv holds the WebSocket Basic auth password.
const PasswordEnv = "UARTLINK_PASSWORD"

// Connection is an open link usable by Sender and Receiver
type Connection interface {
	sensorlink.Channel
	io.Closer
	Name() string
}

// doneNotifier reports when a connection has gone away for good
type doneNotifier interface {
	Done() <-chan struct{}
}

// connectionDone returns a channel closed when conn fails permanently, or
// nil when the transport cannot tell.
func connectionDone(conn sensorlink.Channel) <-chan struct{} {
	if c, ok := conn.(doneNotifier); ok {
		return c.Done()
	}
	return nil
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv(PasswordEnv); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Not a terminal; read a plain line instead
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// OpenConnection opens either a serial or WebSocket link from the config
func OpenConnection(ctx context.Context, lc config.LinkConfig) (Connection, string, error) {
	if lc.URL != "" {
		password := ""
		if lc.Username != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}

		conn, err := link.DialWebSocket(ctx, lc.URL, link.WebSocketOptions{
			Username:      lc.Username,
			Password:      password,
			SkipSSLVerify: lc.SkipSSLVerify,
			Logger:        logger,
		})
		if err != nil {
			return nil, "", err
		}
		logger.Info("connected", zap.String("url", lc.URL))
		return conn, fmt.Sprintf("WebSocket: %s", lc.URL), nil
	}

	if lc.Port != "" {
		conn, err := link.OpenSerial(lc.Port, lc.Baud)
		if err != nil {
			return nil, "", err
		}
		logger.Info("port opened", zap.String("port", lc.Port), zap.Int("baud", lc.Baud))
		return conn, fmt.Sprintf("Serial: %s @ %d baud", lc.Port, lc.Baud), nil
	}

	return nil, "", errors.New("either --port or --url must be specified")
}
