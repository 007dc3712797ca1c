// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Thermoquad/uartlink/pkg/capture"
	"github.com/Thermoquad/uartlink/pkg/sensorlink"
)

var replayRealtime bool

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Resend readings from a capture file",
	Long: `Resend the readings stored in a capture file (see receive --capture) through
a sender on the current connection.

Frames are re-stamped with this sender's clock and sequence numbers. By default
they go out at --rate frames per second; --realtime reproduces the original
inter-arrival timing instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().Float64("rate", 20, "Frames per second")
	replayCmd.Flags().BoolVar(&replayRealtime, "realtime", false, "Reproduce the captured timing")
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	reader, err := capture.NewReader(f)
	if err != nil {
		return err
	}
	header := reader.Header()

	ctx, cancel := signalContext()
	defer cancel()

	conn, connInfo, err := OpenConnection(ctx, cfg.Link)
	if err != nil {
		return err
	}
	defer conn.Close()

	sender := sensorlink.NewSender(conn, senderOptions(cfg.Sender)...)

	fmt.Printf("uartlink - Replay\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Capture: %s (session %s, started %s)\n",
		args[0], header.Session, header.Started.Local().Format(time.RFC3339))
	fmt.Printf("Press Ctrl+C to exit\n\n")

	limit := rate.Inf
	if !replayRealtime && cfg.Sender.Rate > 0 {
		limit = rate.Limit(cfg.Sender.Rate)
	}
	limiter := rate.NewLimiter(limit, 1)

	var sent, failed int
	var prev time.Time
	for {
		entry, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		if replayRealtime && !prev.IsZero() {
			if gap := entry.ReceivedAt.Sub(prev); gap > 0 {
				select {
				case <-time.After(gap):
				case <-ctx.Done():
				}
			}
		}
		prev = entry.ReceivedAt

		if err := limiter.Wait(ctx); err != nil {
			break
		}

		r := entry.Record
		if sender.Send(r.IR[:], r.Ultrasonic[:]) {
			sent++
		} else {
			failed++
			logger.Debug("replay frame failed", zap.Uint8("captured_seq", r.Sequence))
		}
	}

	fmt.Printf("Replayed %d frames, %d failed\n", sent, failed)
	return nil
}
