// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"io"
	"sync"
	"time"

	"github.com/Thermoquad/uartlink/pkg/sensorlink"
)

// Tap wraps a channel and copies every byte it reads to w. The copy is
// a raw capture suitable for offline decoding.
type Tap struct {
	sensorlink.Channel

	mu  sync.Mutex
	w   io.Writer
	err error
}

// NewTap returns ch with reads mirrored to w.
func NewTap(ch sensorlink.Channel, w io.Writer) *Tap {
	return &Tap{Channel: ch, w: w}
}

// ReadExact implements sensorlink.Channel.
func (t *Tap) ReadExact(n int, timeout time.Duration) ([]byte, error) {
	data, err := t.Channel.ReadExact(n, timeout)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	if t.err == nil {
		_, t.err = t.w.Write(data)
	}
	t.mu.Unlock()
	return data, nil
}

// Err returns the first error from the mirror writer. Mirror failures
// never fail reads.
func (t *Tap) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}
