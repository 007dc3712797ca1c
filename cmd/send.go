// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Thermoquad/uartlink/internal/metrics"
	"github.com/Thermoquad/uartlink/pkg/sensorlink"
)

var sendCount int

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Transmit synthetic sensor records",
	Long: `Transmit sensor record frames with synthetic readings at a fixed rate.

Every call stamps the next sequence number, even when the write fails, so a
receiver on the other end sees failed transmissions as lost frames.

Use --count 0 to send until interrupted.`,
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().Float64("rate", 20, "Frames per second")
	sendCmd.Flags().IntVar(&sendCount, "count", 0, "Number of frames to send (0 = forever)")
	sendCmd.Flags().Duration("stats-interval", 5*time.Second, "Progress report interval")
	sendCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address")
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	conn, connInfo, err := OpenConnection(ctx, cfg.Link)
	if err != nil {
		return err
	}
	defer conn.Close()

	if cfg.Sender.Rate <= 0 {
		return fmt.Errorf("--rate must be positive")
	}

	sender := sensorlink.NewSender(conn, senderOptions(cfg.Sender)...)

	reg := metrics.NewRegistry()
	sendMetrics := metrics.NewSendMetrics(reg)
	serveMetrics(ctx, cfg.Metrics, reg)

	fmt.Printf("uartlink - Send\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Rate: %.1f frames/s\n", cfg.Sender.Rate)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	limiter := rate.NewLimiter(rate.Limit(cfg.Sender.Rate), 1)
	ir, us := newReadings()

	var sent, failed int
	report := time.NewTicker(statsInterval())
	defer report.Stop()

	for n := 0; sendCount == 0 || n < sendCount; n++ {
		if err := limiter.Wait(ctx); err != nil {
			break
		}

		syntheticReadings(n, ir, us)
		ok := sender.Send(ir, us)
		sendMetrics.Observe(ok, sender.Sequence())
		if ok {
			sent++
		} else {
			failed++
		}

		select {
		case <-report.C:
			fmt.Printf("[%s] sent=%d failed=%d next_seq=%d\n",
				time.Now().Format("15:04:05.000"), sent, failed, sender.Sequence())
		case <-connectionDone(conn):
			return fmt.Errorf("connection closed after %d frames (%d failed)", sent, failed)
		default:
		}
	}

	logger.Debug("send finished", zap.Int("sent", sent), zap.Int("failed", failed))
	fmt.Printf("\nSent %d frames, %d failed\n", sent, failed)
	return nil
}
