// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/uartlink/pkg/sensorlink"
)

var (
	packetTestTimeout int
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test connection by waiting for a valid sensor frame",
	Long: `Wait for a valid sensor record frame on the connection until timeout.

This command connects to a serial port or WebSocket and waits for any valid
frame. It ignores stray bytes, bad headers and footers, and frames failing
the CRC check.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error

Useful for testing connectivity to a sensor node or WebSocket bridge.`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(packetTestTimeout)*time.Second)
	defer cancel()

	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection(ctx, cfg.Link)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("uartlink - Packet Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", packetTestTimeout)
	fmt.Printf("Waiting for valid sensor frame...\n\n")

	receiver := sensorlink.NewReceiver(conn, receiverOptions(cfg.Receiver)...)

	recordChan := make(chan sensorlink.Record, 1)
	receiver.SetConsumer(sensorlink.ConsumerFunc(func(r sensorlink.Record) {
		select {
		case recordChan <- r:
		default:
		}
	}))

	// Receiver goroutine
	go func() {
		for ctx.Err() == nil {
			if receiver.TryReceive(cfg.Receiver.PollTimeout) == sensorlink.DataReceived {
				return
			}
		}
	}()

	// Wait for frame or timeout
	select {
	case r := <-recordChan:
		stats := receiver.Stats()
		fmt.Printf("SUCCESS: Received valid frame\n")
		if stats.CRCErrors > 0 {
			fmt.Printf("(rejected %d frames with bad CRC before it)\n", stats.CRCErrors)
		}
		fmt.Printf("  Sequence: %d\n", r.Sequence)
		fmt.Printf("  Timestamp: %d ms\n", r.TimestampMs)
		fmt.Printf("  CRC: 0x%02X\n", r.CRC)
		os.Exit(0)

	case <-connectionDone(conn):
		fmt.Fprintf(os.Stderr, "Read error: connection closed\n")
		os.Exit(2)

	case <-ctx.Done():
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", packetTestTimeout)
		os.Exit(1)
	}

	return nil
}
