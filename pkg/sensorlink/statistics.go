// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sensorlink

import "fmt"

// Statistics is a snapshot of the receiver's link health counters.
// Counters are 32 bits wide and wrap like their firmware counterparts.
type Statistics struct {
	PacketsReceived uint32
	PacketsLost     uint32 // inferred from sequence gaps
	CRCErrors       uint32
	Timeouts        uint32
	AvgLatencyMs    float64 // exponentially smoothed one-way latency
}

// recordLatency folds a latency sample into the smoothed average
func (s *Statistics) recordLatency(latencyMs uint32) {
	s.AvgLatencyMs = s.AvgLatencyMs*latencyHistoryWeight + float64(latencyMs)*latencySampleWeight
}

// LossRate returns the fraction of frames lost among those accounted for
func (s Statistics) LossRate() float64 {
	total := uint64(s.PacketsReceived) + uint64(s.PacketsLost)
	if total == 0 {
		return 0
	}
	return float64(s.PacketsLost) / float64(total)
}

// String returns a formatted statistics summary
func (s Statistics) String() string {
	result := "=== Link Statistics ===\n"
	result += fmt.Sprintf("Packets Received: %8d\n", s.PacketsReceived)
	result += fmt.Sprintf("Packets Lost:     %8d (%.1f%%)\n", s.PacketsLost, s.LossRate()*100.0)
	result += fmt.Sprintf("CRC Errors:       %8d\n", s.CRCErrors)
	result += fmt.Sprintf("Timeouts:         %8d\n", s.Timeouts)
	result += fmt.Sprintf("Avg Latency:      %8.1f ms\n", s.AvgLatencyMs)
	result += "=======================\n"
	return result
}
