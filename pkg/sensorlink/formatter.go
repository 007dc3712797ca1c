// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sensorlink

import (
	"fmt"
	"strings"
	"time"
)

// FormatRecord formats a record into a human-readable string
func FormatRecord(r Record, receivedAt time.Time) string {
	timestamp := receivedAt.Format("15:04:05.000")

	result := fmt.Sprintf("[%s] SENSOR_RECORD seq=%d ts=%d ms crc=0x%02X\n", timestamp, r.Sequence, r.TimestampMs, r.CRC)
	result += "  IR:         " + formatReadings(r.IR[:], 8, "              ") + "\n"
	result += "  Ultrasonic: " + formatReadings(r.Ultrasonic[:], 8, "              ") + "\n"
	return result
}

// formatReadings renders readings perLine at a time
func formatReadings(values []uint16, perLine int, indent string) string {
	var s strings.Builder
	for i, v := range values {
		if i > 0 {
			if i%perLine == 0 {
				s.WriteString("\n")
				s.WriteString(indent)
			} else {
				s.WriteString(" ")
			}
		}
		fmt.Fprintf(&s, "%5d", v)
	}
	return s.String()
}

// FormatFrame renders raw frame bytes as a hex dump
func FormatFrame(frame []byte) string {
	result := "  Frame: "
	for i, b := range frame {
		if i > 0 && i%16 == 0 {
			result += "\n         "
		}
		result += fmt.Sprintf("%02X ", b)
	}
	return result + "\n"
}
