// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sensorlink

import "time"

// Channel is the byte-oriented transport between the two nodes.
//
// Write must return nil only if the whole buffer was accepted within the
// timeout. ReadExact returns exactly n bytes, or an error wrapping
// ErrTimeout when the budget expires, or ErrLinkFault for anything else.
// A zero timeout means "use what is already buffered".
type Channel interface {
	Write(p []byte, timeout time.Duration) error
	ReadExact(n int, timeout time.Duration) ([]byte, error)
}

// Clock is a monotonic millisecond clock. It is expected to wrap at 2^32.
type Clock interface {
	NowMs() uint32
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() uint32

// NowMs implements Clock.
func (f ClockFunc) NowMs() uint32 {
	return f()
}

// MonotonicClock counts milliseconds since it was created.
type MonotonicClock struct {
	epoch time.Time
}

// NewMonotonicClock creates a clock whose epoch is now.
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{epoch: time.Now()}
}

// NowMs implements Clock.
func (c *MonotonicClock) NowMs() uint32 {
	return uint32(time.Since(c.epoch).Milliseconds())
}

// Consumer receives every validated record.
type Consumer interface {
	Consume(Record)
}

// ConsumerFunc is func type of Consumer.
type ConsumerFunc func(Record)

// Consume implements Consumer.
func (f ConsumerFunc) Consume(r Record) {
	f(r)
}

// Consumers delivers each record to every non-nil member in order.
type Consumers []Consumer

// Consume implements Consumer.
func (cs Consumers) Consume(r Record) {
	for _, c := range cs {
		if c != nil {
			c.Consume(r)
		}
	}
}
