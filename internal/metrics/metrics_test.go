// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/uartlink/pkg/sensorlink"
)

type staticSource struct {
	stats    sensorlink.Statistics
	expected uint8
}

func (s *staticSource) Snapshot() (sensorlink.Statistics, uint8) { return s.stats, s.expected }

// resettingSource clears itself right after every snapshot, as a
// concurrent ResetStats would.
type resettingSource struct {
	staticSource
	calls int
}

func (s *resettingSource) Snapshot() (sensorlink.Statistics, uint8) {
	s.calls++
	stats, expected := s.stats, s.expected
	s.stats, s.expected = sensorlink.Statistics{}, 0
	return stats, expected
}

func TestLinkCollector(t *testing.T) {
	src := &staticSource{
		stats: sensorlink.Statistics{
			PacketsReceived: 120,
			PacketsLost:     3,
			CRCErrors:       2,
			Timeouts:        7,
			AvgLatencyMs:    1.5,
		},
		expected: 121,
	}
	c := NewLinkCollector(src, prometheus.Labels{"link": "test"})

	expected := `
# HELP uartlink_packets_received_total Valid frames accepted by the receiver.
# TYPE uartlink_packets_received_total counter
uartlink_packets_received_total{link="test"} 120
# HELP uartlink_packets_lost_total Frames inferred lost from sequence gaps.
# TYPE uartlink_packets_lost_total counter
uartlink_packets_lost_total{link="test"} 3
# HELP uartlink_crc_errors_total Frames rejected for checksum mismatch.
# TYPE uartlink_crc_errors_total counter
uartlink_crc_errors_total{link="test"} 2
# HELP uartlink_timeouts_total Header or body reads that timed out.
# TYPE uartlink_timeouts_total counter
uartlink_timeouts_total{link="test"} 7
# HELP uartlink_latency_avg_ms Smoothed one-way latency estimate in milliseconds.
# TYPE uartlink_latency_avg_ms gauge
uartlink_latency_avg_ms{link="test"} 1.5
# HELP uartlink_expected_sequence Sequence number the receiver expects next.
# TYPE uartlink_expected_sequence gauge
uartlink_expected_sequence{link="test"} 121
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected)))
}

func TestLinkCollector_TracksSource(t *testing.T) {
	src := &staticSource{}
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewLinkCollector(src, nil))

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	src.stats.PacketsReceived = 5
	src.stats.PacketsLost = 1
	expected := `
# HELP uartlink_packets_lost_total Frames inferred lost from sequence gaps.
# TYPE uartlink_packets_lost_total counter
uartlink_packets_lost_total 1
# HELP uartlink_packets_received_total Valid frames accepted by the receiver.
# TYPE uartlink_packets_received_total counter
uartlink_packets_received_total 5
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"uartlink_packets_received_total", "uartlink_packets_lost_total"))
}

func TestLinkCollector_LiveReceiver(t *testing.T) {
	r := sensorlink.NewReceiver(nil)
	c := NewLinkCollector(r, nil)
	assert.Equal(t, 6, testutil.CollectAndCount(c))
}

func TestLinkCollector_SingleSnapshotPerScrape(t *testing.T) {
	src := &resettingSource{staticSource: staticSource{
		stats:    sensorlink.Statistics{PacketsReceived: 9},
		expected: 10,
	}}
	c := NewLinkCollector(src, nil)

	expected := `
# HELP uartlink_expected_sequence Sequence number the receiver expects next.
# TYPE uartlink_expected_sequence gauge
uartlink_expected_sequence 10
# HELP uartlink_packets_received_total Valid frames accepted by the receiver.
# TYPE uartlink_packets_received_total counter
uartlink_packets_received_total 9
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"uartlink_packets_received_total", "uartlink_expected_sequence"))
	assert.Equal(t, 1, src.calls)
}

func TestSendMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSendMetrics(reg)

	m.Observe(true, 1)
	m.Observe(true, 2)
	m.Observe(false, 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesSent.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesSent.WithLabelValues("error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Sequence))
}

func TestHandler(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(NewLinkCollector(&staticSource{expected: 4}, nil))

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "uartlink_expected_sequence 4")
	assert.Contains(t, string(body), "go_goroutines")
}
