// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/Thermoquad/uartlink/pkg/sensorlink"
)

// SerialChannel is a sensorlink.Channel over a UART opened at 8N1.
type SerialChannel struct {
	port serial.Port
	name string

	// writing holds a token while a frame is on its way to the port. The
	// token outlives a timed-out Write so frames never interleave.
	writing chan struct{}
	readMu  sync.Mutex
	pending []byte // bytes read past a short request
}

// OpenSerial opens portName at the given baud rate.
func OpenSerial(portName string, baudRate int) (*SerialChannel, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	return newSerialChannel(port, portName), nil
}

func newSerialChannel(port serial.Port, name string) *SerialChannel {
	return &SerialChannel{
		port:    port,
		name:    name,
		writing: make(chan struct{}, 1),
	}
}

// Name returns the port name.
func (s *SerialChannel) Name() string {
	return s.name
}

// Write sends p, failing with ErrTimeout when the port does not accept all
// of it in time. A frame that times out keeps the port until it has been
// written in full; later writes wait for it within their own budget.
func (s *SerialChannel) Write(p []byte, timeout time.Duration) error {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case s.writing <- struct{}{}:
	case <-expired:
		return sensorlink.ErrTimeout
	}

	frame := make([]byte, len(p))
	copy(frame, p)

	done := make(chan error, 1)
	go func() {
		defer func() { <-s.writing }()
		for written := 0; written < len(frame); {
			n, err := s.port.Write(frame[written:])
			if err != nil {
				done <- err
				return
			}
			written += n
		}
		done <- nil
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: %v", sensorlink.ErrLinkFault, err)
		}
		return nil
	case <-expired:
		return sensorlink.ErrTimeout
	}
}

// ReadExact reads exactly n bytes within timeout. A zero timeout returns
// whatever is already buffered by the driver, failing with ErrTimeout if
// that is short. Bytes of a short read are kept for the next call.
func (s *SerialChannel) ReadExact(n int, timeout time.Duration) ([]byte, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()

	deadline := time.Now().Add(timeout)
	chunk := make([]byte, 256)

	for len(s.pending) < n {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			// One non-blocking pass before giving up
			remaining = time.Millisecond
		}
		if err := s.port.SetReadTimeout(remaining); err != nil {
			return nil, fmt.Errorf("%w: %v", sensorlink.ErrLinkFault, err)
		}

		want := n - len(s.pending)
		if want > len(chunk) {
			want = len(chunk)
		}
		got, err := s.port.Read(chunk[:want])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", sensorlink.ErrLinkFault, err)
		}
		s.pending = append(s.pending, chunk[:got]...)

		if got == 0 && !time.Now().Before(deadline) {
			return nil, sensorlink.ErrTimeout
		}
	}

	data := make([]byte, n)
	copy(data, s.pending[:n])
	s.pending = s.pending[n:]
	return data, nil
}

// Close releases the port.
func (s *SerialChannel) Close() error {
	return s.port.Close()
}
