// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sensorlink

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Result is the outcome of a single receive attempt.
type Result int

const (
	// NoData means no valid frame was delivered by this attempt.
	NoData Result = iota
	// DataReceived means a validated record was handed to the consumer.
	DataReceived
)

// String implements fmt.Stringer.
func (r Result) String() string {
	if r == DataReceived {
		return "DataReceived"
	}
	return "NoData"
}

// Receiver resynchronizes on frame boundaries, validates frames, accounts
// sequence gaps and delivers records to a Consumer (the Fresco side).
//
// Each attempt starts from scratch at the header; there is no locked-on
// state carried between frames. TryReceive must be driven from a single
// goroutine, while Stats and ResetStats may be called from any goroutine.
type Receiver struct {
	channel     Channel
	consumer    Consumer
	clock       Clock
	bodyTimeout time.Duration
	log         *zap.Logger

	// mu guards everything below
	mu       sync.Mutex
	state    int
	expected uint8
	stats    Statistics
}

// ReceiverOption configures a Receiver.
type ReceiverOption func(*Receiver)

// WithReceiverClock overrides the clock used for latency estimation.
func WithReceiverClock(c Clock) ReceiverOption {
	return func(r *Receiver) { r.clock = c }
}

// WithBodyTimeout sets the budget for reading the rest of a frame after its header.
func WithBodyTimeout(d time.Duration) ReceiverOption {
	return func(r *Receiver) { r.bodyTimeout = d }
}

// WithReceiverLogger attaches a logger.
func WithReceiverLogger(l *zap.Logger) ReceiverOption {
	return func(r *Receiver) { r.log = l }
}

// NewReceiver creates a receiver bound to ch with zeroed statistics.
// ch may be nil and configured later.
func NewReceiver(ch Channel, opts ...ReceiverOption) *Receiver {
	r := &Receiver{
		channel:     ch,
		clock:       NewMonotonicClock(),
		bodyTimeout: DefaultBodyTimeout,
		log:         zap.NewNop(),
		state:       stateIdle,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Configure installs the receive channel and zeroes statistics and the
// expected sequence, like a fresh receiver.
func (r *Receiver) Configure(ch Channel) {
	r.channel = ch
	r.ResetStats()
}

// SetConsumer registers the consumer invoked for every validated record.
// A nil consumer disables delivery; frames are still accounted.
func (r *Receiver) SetConsumer(c Consumer) {
	r.consumer = c
}

// Poll drains whatever frame is immediately available.
func (r *Receiver) Poll() {
	r.TryReceive(0)
}

// TryReceive performs one receive attempt. It blocks for at most timeout
// waiting for a header byte, then at most the body timeout for the rest of
// the frame.
func (r *Receiver) TryReceive(timeout time.Duration) Result {
	if r.channel == nil {
		return NoData
	}
	defer r.setState(stateIdle)

	r.setState(stateAwaitingHeader)
	header, err := r.channel.ReadExact(1, timeout)
	if err != nil {
		r.readFailed(err)
		return NoData
	}
	if header[0] != HeaderByte {
		return NoData
	}

	r.setState(stateAwaitingFooter)
	body, err := r.channel.ReadExact(FrameSize-1, r.bodyTimeout)
	if err != nil {
		r.readFailed(err)
		return NoData
	}
	if body[FrameSize-2] != FooterByte {
		r.log.Debug("frame rejected", zap.Error(ErrBadFooter))
		return NoData
	}

	r.setState(stateValidating)
	frame := make([]byte, 0, FrameSize)
	frame = append(frame, header[0])
	frame = append(frame, body...)
	record, err := DecodeFrame(frame)
	if err != nil {
		r.mu.Lock()
		if errors.Is(err, ErrChecksumMismatch) {
			r.stats.CRCErrors++
		}
		r.mu.Unlock()
		r.log.Debug("frame rejected", zap.Error(err))
		return NoData
	}

	r.account(record)

	if c := r.consumer; c != nil {
		c.Consume(record)
	}
	return DataReceived
}

// account applies gap accounting and statistics for a valid record in a
// single critical section
func (r *Receiver) account(record Record) {
	now := r.clock.NowMs()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Gaps of 128 or more are indistinguishable from reordering and are
	// counted as-is.
	seqDiff := record.Sequence - r.expected
	if seqDiff > 1 {
		lost := uint32(seqDiff - 1)
		r.stats.PacketsLost += lost
		r.log.Debug("sequence gap",
			zap.Uint8("expected", r.expected),
			zap.Uint8("received", record.Sequence),
			zap.Uint32("lost", lost))
	}
	r.expected = record.Sequence + 1

	r.stats.PacketsReceived++
	r.stats.recordLatency(now - record.TimestampMs)
}

// readFailed counts timeouts; other faults are absorbed silently
func (r *Receiver) readFailed(err error) {
	if errors.Is(err, ErrTimeout) {
		r.mu.Lock()
		r.stats.Timeouts++
		r.mu.Unlock()
		return
	}
	r.log.Debug("link fault", zap.Error(err))
}

func (r *Receiver) setState(s int) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// Stats returns a consistent snapshot of the link statistics.
func (r *Receiver) Stats() Statistics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// ResetStats zeroes all counters and the expected sequence together.
func (r *Receiver) ResetStats() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = Statistics{}
	r.expected = 0
}

// ExpectedSequence returns the sequence number the next frame should carry.
func (r *Receiver) ExpectedSequence() uint8 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.expected
}

// Snapshot returns the statistics and the expected sequence taken under
// one lock, so a concurrent ResetStats is seen by both or neither.
func (r *Receiver) Snapshot() (Statistics, uint8) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats, r.expected
}

// State returns the receive state machine's current state name.
func (r *Receiver) State() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return stateName(r.state)
}

func stateName(s int) string {
	switch s {
	case stateIdle:
		return "Idle"
	case stateAwaitingHeader:
		return "AwaitingHeader"
	case stateAwaitingFooter:
		return "AwaitingFooter"
	case stateValidating:
		return "Validating"
	default:
		return "Unknown"
	}
}
