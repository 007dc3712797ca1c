// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/uartlink/pkg/sensorlink"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive link monitor",
	Long: `Display live link statistics, the latest sensor record and a log of link
events (lost packets, CRC errors, stalls) in a terminal UI.

Press 'q' or Ctrl+C to exit.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	conn, connInfo, err := OpenConnection(ctx, cfg.Link)
	if err != nil {
		return err
	}
	defer conn.Close()

	receiver := sensorlink.NewReceiver(conn, receiverOptions(cfg.Receiver)...)

	// Create TUI program
	m := initialModel(connInfo, receiver)
	p := tea.NewProgram(m, tea.WithContext(ctx))

	receiver.SetConsumer(sensorlink.ConsumerFunc(func(r sensorlink.Record) {
		p.Send(recordMsg{record: r, receivedAt: time.Now()})
	}))

	// Receiver goroutine
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-connectionDone(conn):
				p.Send(linkClosedMsg{})
				return
			default:
			}
			receiver.TryReceive(cfg.Receiver.PollTimeout)
		}
	}()

	_, err = p.Run()
	interrupted := ctx.Err() != nil
	cancel()
	<-done

	if err != nil && !interrupted && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
