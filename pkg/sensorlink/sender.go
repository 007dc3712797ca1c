// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sensorlink

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sender builds and transmits one frame per call (the Mosaic side).
type Sender struct {
	mu      sync.Mutex
	channel Channel
	clock   Clock
	timeout time.Duration
	log     *zap.Logger

	sequence uint8
}

// SenderOption configures a Sender.
type SenderOption func(*Sender)

// WithSenderClock overrides the timestamp source.
func WithSenderClock(c Clock) SenderOption {
	return func(s *Sender) { s.clock = c }
}

// WithTransmitTimeout sets the write budget per frame.
func WithTransmitTimeout(d time.Duration) SenderOption {
	return func(s *Sender) { s.timeout = d }
}

// WithSenderLogger attaches a logger.
func WithSenderLogger(l *zap.Logger) SenderOption {
	return func(s *Sender) { s.log = l }
}

// NewSender creates a sender bound to ch. ch may be nil and configured later.
func NewSender(ch Channel, opts ...SenderOption) *Sender {
	s := &Sender{
		channel: ch,
		clock:   NewMonotonicClock(),
		timeout: DefaultTransmitTimeout,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configure installs the transmit channel.
func (s *Sender) Configure(ch Channel) {
	s.mu.Lock()
	s.channel = ch
	s.mu.Unlock()
}

// Sequence returns the sequence number the next frame will carry.
func (s *Sender) Sequence() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sequence
}

// Send transmits one frame and reports whether the channel accepted it.
func (s *Sender) Send(ir, ultrasonic []uint16) bool {
	_, err := s.Transmit(ir, ultrasonic)
	return err == nil
}

// Transmit is Send with a structured error. The returned record is the one
// that was put on the wire (or attempted).
//
// The sequence counter advances as soon as a frame is built, so a frame
// that fails to transmit still consumes its sequence number and shows up as
// a loss on the receiver. Invalid input and a missing channel do not.
// Frames are written under the sender's lock so concurrent calls never
// interleave on the wire.
func (s *Sender) Transmit(ir, ultrasonic []uint16) (Record, error) {
	if len(ir) != IRChannels || len(ultrasonic) != UltrasonicChannels {
		return Record{}, ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.channel == nil {
		return Record{}, ErrChannelUnconfigured
	}

	var r Record
	copy(r.IR[:], ir)
	copy(r.Ultrasonic[:], ultrasonic)
	r.TimestampMs = s.clock.NowMs()
	r.Sequence = s.sequence
	s.sequence++

	frame := EncodeFrame(r)
	r.CRC = frame[1+offsetCRC]

	if err := s.channel.Write(frame, s.timeout); err != nil {
		s.log.Warn("transmit failed",
			zap.Uint8("sequence", r.Sequence),
			zap.Error(err))
		return r, err
	}
	return r, nil
}
