// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package sensorlink implements the Mosaic/Fresco sensor link protocol.
//
// A sender node streams fixed-size sensor records to a receiver node over a
// byte-oriented serial link. Each record is wrapped in a one byte header and
// a one byte footer and protected by a CRC-8. The link is unidirectional and
// best-effort: there are no acknowledgements or retransmissions, and losses
// are only observable through the receiver's statistics.
package sensorlink

import "time"

// Protocol framing bytes
const (
	HeaderByte = 0xAA
	FooterByte = 0x55
)

// Record layout
const (
	IRChannels         = 16
	UltrasonicChannels = 4

	RecordSize = IRChannels*2 + UltrasonicChannels*2 + 4 + 1 + 1 // 46 bytes
	FrameSize  = RecordSize + 2                                 // header + record + footer
)

// Field offsets within the record (little-endian, no padding)
const (
	offsetIR         = 0
	offsetUltrasonic = offsetIR + IRChannels*2
	offsetTimestamp  = offsetUltrasonic + UltrasonicChannels*2
	offsetSequence   = offsetTimestamp + 4
	offsetCRC        = offsetSequence + 1
)

// CRC-8 configuration (x^8 + x^2 + x + 1)
const (
	crcPolynomial = 0x07
	crcInitial    = 0x00
)

// Default blocking budgets, matching the firmware HAL calls
const (
	DefaultTransmitTimeout = 100 * time.Millisecond
	DefaultBodyTimeout     = 50 * time.Millisecond
)

// Latency smoothing weights
const (
	latencyHistoryWeight = 0.9
	latencySampleWeight  = 0.1
)

// Receiver states
const (
	stateIdle = iota
	stateAwaitingHeader
	stateAwaitingFooter
	stateValidating
)
