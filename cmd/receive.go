// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/uartlink/internal/metrics"
	"github.com/Thermoquad/uartlink/pkg/capture"
	"github.com/Thermoquad/uartlink/pkg/link"
	"github.com/Thermoquad/uartlink/pkg/publish"
	"github.com/Thermoquad/uartlink/pkg/sensorlink"
)

var receiveQuiet bool

var receiveCmd = &cobra.Command{
	Use:   "receive",
	Short: "Receive and display sensor records",
	Long: `Continuously receive sensor record frames and display them as they arrive.

Each valid record is printed with its sequence number, timestamp and readings.
Link statistics (received, lost, CRC errors, timeouts, latency) are printed
every --stats-interval.

Optional outputs:
  --capture FILE      record every valid record to a CBOR capture (see replay)
  --raw-log FILE      record every byte read from the link (see dump)
  --metrics-addr ADDR serve Prometheus metrics
  --mqtt-broker URL   publish records and statistics to MQTT

Supports both serial and WebSocket connections.`,
	RunE: runReceive,
}

func init() {
	rootCmd.AddCommand(receiveCmd)
	receiveCmd.Flags().BoolVarP(&receiveQuiet, "quiet", "q", false, "Only print statistics")
	receiveCmd.Flags().Duration("stats-interval", 5*time.Second, "Statistics interval")
	receiveCmd.Flags().String("capture", "", "Write valid records to this CBOR capture file")
	receiveCmd.Flags().String("raw-log", "", "Write raw received bytes to this file")
	receiveCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address")
	receiveCmd.Flags().String("mqtt-broker", "", "Publish records to this MQTT broker URL")
}

func runReceive(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	conn, connInfo, err := OpenConnection(ctx, cfg.Link)
	if err != nil {
		return err
	}
	defer conn.Close()

	var channel sensorlink.Channel = conn
	if cfg.Capture.RawFile != "" {
		f, err := os.Create(cfg.Capture.RawFile)
		if err != nil {
			return fmt.Errorf("failed to create raw log: %w", err)
		}
		defer f.Close()
		channel = link.NewTap(conn, f)
	}

	receiver := sensorlink.NewReceiver(channel, receiverOptions(cfg.Receiver)...)

	consumers := sensorlink.Consumers{}
	if !receiveQuiet {
		consumers = append(consumers, sensorlink.ConsumerFunc(func(r sensorlink.Record) {
			fmt.Print(sensorlink.FormatRecord(r, time.Now()))
		}))
	}

	if cfg.Capture.File != "" {
		f, err := os.Create(cfg.Capture.File)
		if err != nil {
			return fmt.Errorf("failed to create capture: %w", err)
		}
		defer f.Close()

		w, err := capture.NewWriter(f, capture.WithLogger(logger))
		if err != nil {
			return err
		}
		defer func() {
			if err := w.Flush(); err != nil {
				logger.Error("capture flush failed", zap.Error(err))
			}
			logger.Info("capture closed",
				zap.String("file", cfg.Capture.File),
				zap.String("session", w.Header().Session.String()),
				zap.Uint64("records", w.Count()))
		}()
		consumers = append(consumers, w)
	}

	var publisher *publish.MQTTPublisher
	if cfg.MQTT.Broker != "" {
		publisher, err = publish.Dial(cfg.MQTT.Broker,
			publish.WithQoS(byte(cfg.MQTT.QoS)),
			publish.WithRetain(cfg.MQTT.Retain),
			publish.WithPublishTimeout(cfg.MQTT.PublishTimeout),
			publish.WithLogger(logger))
		if err != nil {
			return err
		}
		defer publisher.Close()
		consumers = append(consumers, publisher)
	}

	receiver.SetConsumer(consumers)

	reg := metrics.NewRegistry()
	reg.MustRegister(metrics.NewLinkCollector(receiver, prometheus.Labels{"link": conn.Name()}))
	serveMetrics(ctx, cfg.Metrics, reg)

	fmt.Printf("uartlink - Receive\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	statsTicker := time.NewTicker(statsInterval())
	defer statsTicker.Stop()

	printStats := func() {
		stats := receiver.Stats()
		fmt.Println()
		fmt.Print(stats.String())
		fmt.Println()
		if publisher != nil {
			if err := publisher.PublishStats(stats); err != nil {
				logger.Warn("stats publish failed", zap.Error(err))
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			printStats()
			return nil
		case <-connectionDone(conn):
			// Drain what the bridge delivered before hanging up
			drainReceiver(receiver, conn)
			printStats()
			return fmt.Errorf("connection closed")
		case <-statsTicker.C:
			printStats()
		default:
		}

		receiver.TryReceive(cfg.Receiver.PollTimeout)
	}
}
