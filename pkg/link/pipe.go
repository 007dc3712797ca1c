// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Thermoquad/uartlink/pkg/sensorlink"
)

// Impairment lets a test or simulation tamper with bytes in flight. It
// returns the bytes to deliver; returning nil drops the write entirely.
type Impairment func(p []byte) []byte

// PipeEnd is one side of an in-memory link created by NewPipe.
type PipeEnd struct {
	rx   *byteQueue
	peer *PipeEnd

	mu      sync.Mutex
	impair  Impairment
	closed  bool
	written uint64
}

// NewPipe returns two connected channel ends. Bytes written to one end are
// read from the other.
func NewPipe() (*PipeEnd, *PipeEnd) {
	a := &PipeEnd{rx: newByteQueue()}
	b := &PipeEnd{rx: newByteQueue()}
	a.peer, b.peer = b, a
	return a, b
}

// SetImpairment installs a hook applied to every write from this end.
func (p *PipeEnd) SetImpairment(fn Impairment) {
	p.mu.Lock()
	p.impair = fn
	p.mu.Unlock()
}

// Write implements sensorlink.Channel. Writes never block.
func (p *PipeEnd) Write(data []byte, timeout time.Duration) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("%w: %v", sensorlink.ErrLinkFault, io.ErrClosedPipe)
	}
	impair := p.impair
	p.written += uint64(len(data))
	p.mu.Unlock()

	out := append([]byte(nil), data...)
	if impair != nil {
		out = impair(out)
	}
	if len(out) > 0 {
		p.peer.rx.push(out)
	}
	return nil
}

// ReadExact implements sensorlink.Channel.
func (p *PipeEnd) ReadExact(n int, timeout time.Duration) ([]byte, error) {
	return p.rx.readExact(n, timeout)
}

// Buffered returns the number of bytes waiting to be read on this end.
func (p *PipeEnd) Buffered() int {
	return p.rx.buffered()
}

// BytesWritten returns the number of bytes handed to Write, before impairment.
func (p *PipeEnd) BytesWritten() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written
}

// Close shuts both directions down. Bytes already queued stay readable.
func (p *PipeEnd) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.peer.rx.closeWithError(io.ErrClosedPipe)
	p.rx.closeWithError(io.ErrClosedPipe)
	return nil
}
