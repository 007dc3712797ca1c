// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Thermoquad/uartlink/internal/config"
	"github.com/Thermoquad/uartlink/internal/metrics"
	"github.com/Thermoquad/uartlink/pkg/sensorlink"
)

// syntheticReadings fills ir and ultrasonic with slowly varying values
// for frame n, so consecutive frames are distinguishable on the wire.
func syntheticReadings(n int, ir, ultrasonic []uint16) {
	phase := float64(n) / 20.0
	for i := range ir {
		v := 2048 + 1500*math.Sin(phase+float64(i)*math.Pi/8)
		ir[i] = uint16(v)
	}
	for i := range ultrasonic {
		// Distances in millimetres between 200 and 1800
		v := 1000 + 800*math.Cos(phase+float64(i)*math.Pi/2)
		ultrasonic[i] = uint16(v)
	}
}

// maxDrainAttempts bounds draining a channel that cannot report its backlog
const maxDrainAttempts = 64

type bufferedChannel interface {
	Buffered() int
}

// drainReceiver runs zero-timeout receive attempts until ch has nothing
// left buffered. Each attempt consumes at least one buffered byte, so
// stray bytes and rejected frames do not stop the drain. Channels that
// cannot report a backlog are drained until the first empty attempt.
func drainReceiver(receiver *sensorlink.Receiver, ch sensorlink.Channel) {
	if b, ok := ch.(bufferedChannel); ok {
		for b.Buffered() > 0 {
			receiver.TryReceive(0)
		}
		return
	}
	for i := 0; i < maxDrainAttempts; i++ {
		if receiver.TryReceive(0) != sensorlink.DataReceived {
			return
		}
	}
}

func newReadings() ([]uint16, []uint16) {
	return make([]uint16, sensorlink.IRChannels), make([]uint16, sensorlink.UltrasonicChannels)
}

// statsInterval returns the configured report interval, never zero
func statsInterval() time.Duration {
	if cfg.Receiver.StatsInterval <= 0 {
		return 5 * time.Second
	}
	return cfg.Receiver.StatsInterval
}

// senderOptions applies the sender config
func senderOptions(sc config.SenderConfig) []sensorlink.SenderOption {
	opts := []sensorlink.SenderOption{sensorlink.WithSenderLogger(logger)}
	if sc.TransmitTimeout > 0 {
		opts = append(opts, sensorlink.WithTransmitTimeout(sc.TransmitTimeout))
	}
	return opts
}

// receiverOptions applies the receiver config
func receiverOptions(rc config.ReceiverConfig) []sensorlink.ReceiverOption {
	opts := []sensorlink.ReceiverOption{sensorlink.WithReceiverLogger(logger)}
	if rc.BodyTimeout > 0 {
		opts = append(opts, sensorlink.WithBodyTimeout(rc.BodyTimeout))
	}
	return opts
}

// serveMetrics exposes reg on addr until ctx is cancelled. An empty addr
// disables the endpoint.
func serveMetrics(ctx context.Context, mc config.MetricsConfig, reg *prometheus.Registry) {
	if mc.Addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle(mc.Path, metrics.Handler(reg))
	srv := &http.Server{
		Addr:              mc.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics listening", zap.String("addr", mc.Addr), zap.String("path", mc.Path))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}
