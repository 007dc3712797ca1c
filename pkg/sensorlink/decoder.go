// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sensorlink

import "fmt"

// DecodeFrame validates a complete frame and returns the embedded record.
// Only a buffer of exactly FrameSize bytes is accepted; assembling frames
// from a byte stream is the Receiver's (or Decoder's) job.
func DecodeFrame(frame []byte) (Record, error) {
	if len(frame) != FrameSize {
		return Record{}, fmt.Errorf("%w: got %d bytes, want %d", ErrFrameLength, len(frame), FrameSize)
	}
	if frame[0] != HeaderByte {
		return Record{}, ErrBadHeader
	}
	if frame[FrameSize-1] != FooterByte {
		return Record{}, ErrBadFooter
	}

	body := frame[1 : 1+RecordSize]
	calculated := CalculateCRC8(body[:offsetCRC])
	if calculated != body[offsetCRC] {
		return Record{}, &ChecksumError{Expected: calculated, Received: body[offsetCRC]}
	}

	return unpackRecord(body), nil
}

// Decoder extracts frames from an arbitrary byte stream one byte at a time.
// It is the offline counterpart of the Receiver: it has no channel, clock or
// statistics, and is used to analyze raw captures.
type Decoder struct {
	state   int
	buffer  []byte
	skipped int // bytes discarded while hunting for a header
}

// NewDecoder creates a new stream decoder
func NewDecoder() *Decoder {
	return &Decoder{
		state:  stateAwaitingHeader,
		buffer: make([]byte, 0, FrameSize),
	}
}

// Reset drops any partial frame and waits for the next header
func (d *Decoder) Reset() {
	d.state = stateAwaitingHeader
	d.buffer = d.buffer[:0]
}

// Skipped returns the number of bytes discarded since the last header.
// The count restarts at zero whenever a header byte is accepted.
func (d *Decoder) Skipped() int {
	return d.skipped
}

// DecodeByte processes a single byte.
// Returns a record once a complete valid frame has been seen, nil while a
// frame is incomplete, and an error when a completed frame fails validation.
func (d *Decoder) DecodeByte(b byte) (*Record, error) {
	switch d.state {
	case stateAwaitingHeader:
		if b != HeaderByte {
			d.skipped++
			return nil, nil
		}
		d.skipped = 0
		d.buffer = append(d.buffer[:0], b)
		d.state = stateAwaitingFooter
		return nil, nil

	case stateAwaitingFooter:
		d.buffer = append(d.buffer, b)
		if len(d.buffer) < FrameSize {
			return nil, nil
		}
		d.state = stateValidating
		record, err := DecodeFrame(d.buffer)
		d.Reset()
		if err != nil {
			return nil, err
		}
		return &record, nil

	default:
		state := d.state
		d.Reset()
		return nil, fmt.Errorf("invalid state: %d", state)
	}
}
