// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sensorlink

// EncodeFrame lays out the record, sets its CRC and wraps it with the
// header and footer bytes. The returned slice is always FrameSize long.
func EncodeFrame(r Record) []byte {
	frame := make([]byte, FrameSize)
	frame[0] = HeaderByte

	body := frame[1 : 1+RecordSize]
	r.putFields(body)
	body[offsetCRC] = CalculateCRC8(body[:offsetCRC])

	frame[FrameSize-1] = FooterByte
	return frame
}
