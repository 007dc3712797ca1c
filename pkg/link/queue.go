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

// byteQueue is an unbounded FIFO of received bytes with deadline-bounded
// exact reads. Bytes of a read that times out stay queued.
type byteQueue struct {
	mu     sync.Mutex
	buf    []byte
	notify chan struct{} // closed and replaced on every push
	err    error         // set once the producer side is gone
}

func newByteQueue() *byteQueue {
	return &byteQueue{notify: make(chan struct{})}
}

func (q *byteQueue) push(p []byte) {
	q.mu.Lock()
	q.buf = append(q.buf, p...)
	close(q.notify)
	q.notify = make(chan struct{})
	q.mu.Unlock()
}

// closeWithError wakes all readers; buffered bytes remain readable
func (q *byteQueue) closeWithError(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return
	}
	if err == nil {
		err = io.EOF
	}
	q.err = err
	close(q.notify)
	q.notify = make(chan struct{})
}

// buffered returns the number of queued bytes
func (q *byteQueue) buffered() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

func (q *byteQueue) readExact(n int, timeout time.Duration) ([]byte, error) {
	var timer *time.Timer
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		defer timer.Stop()
	}

	for {
		q.mu.Lock()
		if len(q.buf) >= n {
			data := make([]byte, n)
			copy(data, q.buf[:n])
			q.buf = q.buf[n:]
			q.mu.Unlock()
			return data, nil
		}
		if q.err != nil {
			err := q.err
			q.mu.Unlock()
			return nil, fmt.Errorf("%w: %v", sensorlink.ErrLinkFault, err)
		}
		wait := q.notify
		q.mu.Unlock()

		if timer == nil {
			return nil, sensorlink.ErrTimeout
		}
		select {
		case <-wait:
		case <-timer.C:
			return nil, sensorlink.ErrTimeout
		}
	}
}
