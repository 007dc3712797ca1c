// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sensorlink

import (
	"encoding/binary"
	"fmt"
)

// Record is the fixed-layout sensor payload carried by every frame.
//
// Wire layout (little-endian, no padding):
//
//	IR[16] uint16 | Ultrasonic[4] uint16 | TimestampMs uint32 | Sequence uint8 | CRC uint8
type Record struct {
	IR          [IRChannels]uint16
	Ultrasonic  [UltrasonicChannels]uint16
	TimestampMs uint32
	Sequence    uint8
	CRC         uint8
}

// putFields writes every field except the CRC into buf[:RecordSize-1]
func (r *Record) putFields(buf []byte) {
	for i, v := range r.IR {
		binary.LittleEndian.PutUint16(buf[offsetIR+i*2:], v)
	}
	for i, v := range r.Ultrasonic {
		binary.LittleEndian.PutUint16(buf[offsetUltrasonic+i*2:], v)
	}
	binary.LittleEndian.PutUint32(buf[offsetTimestamp:], r.TimestampMs)
	buf[offsetSequence] = r.Sequence
}

// Checksum returns the CRC-8 of the record's fields, ignoring the CRC field
func (r Record) Checksum() uint8 {
	var buf [RecordSize]byte
	r.putFields(buf[:])
	return CalculateCRC8(buf[:offsetCRC])
}

// Sealed returns a copy of the record with its CRC field set
func (r Record) Sealed() Record {
	r.CRC = r.Checksum()
	return r
}

// MarshalBinary returns the RecordSize-byte wire form with a freshly
// computed CRC. It never fails.
func (r Record) MarshalBinary() ([]byte, error) {
	buf := make([]byte, RecordSize)
	r.putFields(buf)
	buf[offsetCRC] = CalculateCRC8(buf[:offsetCRC])
	return buf, nil
}

// UnmarshalBinary parses the RecordSize-byte wire form and verifies its CRC.
func (r *Record) UnmarshalBinary(data []byte) error {
	if len(data) != RecordSize {
		return fmt.Errorf("%w: record is %d bytes, expected %d", ErrFrameLength, len(data), RecordSize)
	}
	rec := unpackRecord(data)
	if want := CalculateCRC8(data[:offsetCRC]); rec.CRC != want {
		return &ChecksumError{Expected: want, Received: rec.CRC}
	}
	*r = rec
	return nil
}

// unpackRecord reads a record from exactly RecordSize bytes without validation
func unpackRecord(buf []byte) Record {
	var r Record
	for i := range r.IR {
		r.IR[i] = binary.LittleEndian.Uint16(buf[offsetIR+i*2:])
	}
	for i := range r.Ultrasonic {
		r.Ultrasonic[i] = binary.LittleEndian.Uint16(buf[offsetUltrasonic+i*2:])
	}
	r.TimestampMs = binary.LittleEndian.Uint32(buf[offsetTimestamp:])
	r.Sequence = buf[offsetSequence]
	r.CRC = buf[offsetCRC]
	return r
}
