// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sensorlink

import (
	"errors"
	"fmt"
)

var (
	// ErrChannelUnconfigured is returned when no transport has been configured.
	ErrChannelUnconfigured = errors.New("channel not configured")
	// ErrInvalidInput indicates missing or mis-sized reading arrays.
	ErrInvalidInput = errors.New("invalid input")
	// ErrTimeout is returned by a Channel when no data arrives within the budget.
	ErrTimeout = errors.New("timeout")
	// ErrLinkFault wraps any other transport failure.
	ErrLinkFault = errors.New("link fault")
	// ErrFrameSync indicates a frame with a bad header or footer.
	ErrFrameSync = errors.New("frame sync failure")
	// ErrChecksumMismatch indicates the embedded CRC does not match the record.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrFrameLength is returned for frame or record buffers of the wrong size.
	ErrFrameLength = errors.New("invalid frame length")
)

var (
	// ErrBadHeader indicates the first frame byte is not HeaderByte.
	ErrBadHeader = fmt.Errorf("%w: bad header", ErrFrameSync)
	// ErrBadFooter indicates the last frame byte is not FooterByte.
	ErrBadFooter = fmt.Errorf("%w: bad footer", ErrFrameSync)
)

// ChecksumError carries both CRC values of a rejected frame.
type ChecksumError struct {
	Expected uint8
	Received uint8
}

// Error implements error.
func (e *ChecksumError) Error() string {
	return fmt.Sprintf("CRC mismatch: expected 0x%02X, got 0x%02X", e.Expected, e.Received)
}

// Unwrap makes errors.Is(err, ErrChecksumMismatch) hold.
func (e *ChecksumError) Unwrap() error {
	return ErrChecksumMismatch
}
