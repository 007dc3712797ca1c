// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Thermoquad/uartlink/pkg/sensorlink"
)

const namespace = "uartlink"

// NewRegistry returns a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves reg in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// StatsSource is satisfied by *sensorlink.Receiver.
type StatsSource interface {
	Snapshot() (sensorlink.Statistics, uint8)
}

// LinkCollector exports receiver statistics. Every scrape takes a single
// snapshot so the counters are mutually consistent.
type LinkCollector struct {
	source StatsSource

	received *prometheus.Desc
	lost     *prometheus.Desc
	crc      *prometheus.Desc
	timeouts *prometheus.Desc
	latency  *prometheus.Desc
	expected *prometheus.Desc
}

// NewLinkCollector builds a collector over source. constLabels are
// attached to every series, e.g. the link name.
func NewLinkCollector(source StatsSource, constLabels prometheus.Labels) *LinkCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, constLabels)
	}
	return &LinkCollector{
		source:   source,
		received: desc("packets_received_total", "Valid frames accepted by the receiver."),
		lost:     desc("packets_lost_total", "Frames inferred lost from sequence gaps."),
		crc:      desc("crc_errors_total", "Frames rejected for checksum mismatch."),
		timeouts: desc("timeouts_total", "Header or body reads that timed out."),
		latency:  desc("latency_avg_ms", "Smoothed one-way latency estimate in milliseconds."),
		expected: desc("expected_sequence", "Sequence number the receiver expects next."),
	}
}

// Describe implements prometheus.Collector.
func (c *LinkCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.received
	ch <- c.lost
	ch <- c.crc
	ch <- c.timeouts
	ch <- c.latency
	ch <- c.expected
}

// Collect implements prometheus.Collector.
func (c *LinkCollector) Collect(ch chan<- prometheus.Metric) {
	s, expected := c.source.Snapshot()

	ch <- prometheus.MustNewConstMetric(c.received, prometheus.CounterValue, float64(s.PacketsReceived))
	ch <- prometheus.MustNewConstMetric(c.lost, prometheus.CounterValue, float64(s.PacketsLost))
	ch <- prometheus.MustNewConstMetric(c.crc, prometheus.CounterValue, float64(s.CRCErrors))
	ch <- prometheus.MustNewConstMetric(c.timeouts, prometheus.CounterValue, float64(s.Timeouts))
	ch <- prometheus.MustNewConstMetric(c.latency, prometheus.GaugeValue, s.AvgLatencyMs)
	ch <- prometheus.MustNewConstMetric(c.expected, prometheus.GaugeValue, float64(expected))
}

// SendMetrics counts transmit attempts on the sending side.
type SendMetrics struct {
	FramesSent *prometheus.CounterVec // labels: result=ok|error
	Sequence   prometheus.Gauge
}

// NewSendMetrics registers and returns sender metrics.
func NewSendMetrics(reg prometheus.Registerer) *SendMetrics {
	m := &SendMetrics{
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Frames handed to the transmit channel, by result.",
		}, []string{"result"}),
		Sequence: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sender_sequence",
			Help:      "Sequence number the sender stamps next.",
		}),
	}
	reg.MustRegister(m.FramesSent, m.Sequence)
	return m
}

// Observe records the outcome of one Send call.
func (m *SendMetrics) Observe(ok bool, nextSequence uint8) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.FramesSent.WithLabelValues(result).Inc()
	m.Sequence.Set(float64(nextSequence))
}
