// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture records received sensor records to a CBOR stream and
// reads them back.
//
// A capture is a Header item followed by any number of Entry items, each
// encoded as a self-delimiting CBOR value. A truncated final item is
// reported as io.ErrUnexpectedEOF.
package capture

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Thermoquad/uartlink/pkg/sensorlink"
)

// FormatVersion is the capture format written by this package.
const FormatVersion = 1

var (
	// ErrUnsupportedVersion is returned for captures of an unknown format.
	ErrUnsupportedVersion = errors.New("unsupported capture version")
	// ErrFrameSizeMismatch is returned when a capture was recorded with a
	// different frame layout.
	ErrFrameSizeMismatch = errors.New("capture frame size mismatch")
)

// Header opens every capture.
type Header struct {
	Version   int       `cbor:"1,keyasint"`
	Session   uuid.UUID `cbor:"2,keyasint"`
	Started   time.Time `cbor:"3,keyasint"`
	FrameSize int       `cbor:"4,keyasint"`
}

// Entry is one received record.
type Entry struct {
	ReceivedAt time.Time         `cbor:"1,keyasint"`
	Record     sensorlink.Record `cbor:"2,keyasint"`
}

var encMode = func() cbor.EncMode {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	em, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Writer appends entries to a capture. It implements sensorlink.Consumer
// so it can be installed directly on a Receiver.
type Writer struct {
	mu      sync.Mutex
	bw      *bufio.Writer
	enc     *cbor.Encoder
	header  Header
	count   uint64
	err     error
	failed  sync.Once
	log     *zap.Logger
	nowFunc func() time.Time
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithLogger sets the logger for write failures.
func WithLogger(l *zap.Logger) WriterOption {
	return func(w *Writer) {
		w.log = l
	}
}

// WithNow overrides the wall clock used for timestamps.
func WithNow(now func() time.Time) WriterOption {
	return func(w *Writer) {
		w.nowFunc = now
	}
}

// NewWriter writes a fresh header to out and returns a Writer for it.
func NewWriter(out io.Writer, opts ...WriterOption) (*Writer, error) {
	w := &Writer{
		bw:      bufio.NewWriter(out),
		log:     zap.NewNop(),
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.enc = encMode.NewEncoder(w.bw)

	w.header = Header{
		Version:   FormatVersion,
		Session:   uuid.New(),
		Started:   w.nowFunc().UTC(),
		FrameSize: sensorlink.FrameSize,
	}
	if err := w.enc.Encode(w.header); err != nil {
		return nil, fmt.Errorf("failed to write capture header: %w", err)
	}
	if err := w.bw.Flush(); err != nil {
		return nil, fmt.Errorf("failed to write capture header: %w", err)
	}
	return w, nil
}

// Header returns the header written at construction.
func (w *Writer) Header() Header {
	return w.header
}

// Write appends one entry.
func (w *Writer) Write(e Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.err != nil {
		return w.err
	}
	if err := w.enc.Encode(e); err != nil {
		w.err = fmt.Errorf("failed to write capture entry: %w", err)
		return w.err
	}
	w.count++
	return nil
}

// Consume implements sensorlink.Consumer. Failures are logged once and
// remembered; see Err.
func (w *Writer) Consume(r sensorlink.Record) {
	err := w.Write(Entry{ReceivedAt: w.nowFunc().UTC(), Record: r})
	if err != nil {
		w.failed.Do(func() {
			w.log.Error("capture write failed", zap.Error(err))
		})
	}
}

// Count returns the number of entries written.
func (w *Writer) Count() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Err returns the first write error, if any.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Flush pushes buffered entries to the underlying writer.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.err != nil {
		return w.err
	}
	if err := w.bw.Flush(); err != nil {
		w.err = fmt.Errorf("failed to flush capture: %w", err)
	}
	return w.err
}

// Reader iterates a capture.
type Reader struct {
	dec    *cbor.Decoder
	header Header
}

// NewReader reads and validates the header of a capture.
func NewReader(in io.Reader) (*Reader, error) {
	r := &Reader{dec: cbor.NewDecoder(bufio.NewReader(in))}

	if err := r.dec.Decode(&r.header); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty capture: %w", io.ErrUnexpectedEOF)
		}
		return nil, fmt.Errorf("failed to read capture header: %w", err)
	}
	if r.header.Version != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, r.header.Version)
	}
	if r.header.FrameSize != sensorlink.FrameSize {
		return nil, fmt.Errorf("%w: recorded %d, expected %d",
			ErrFrameSizeMismatch, r.header.FrameSize, sensorlink.FrameSize)
	}
	return r, nil
}

// Header returns the capture header.
func (r *Reader) Header() Header {
	return r.header
}

// Next returns the next entry, or io.EOF after the last one.
func (r *Reader) Next() (Entry, error) {
	var e Entry
	if err := r.dec.Decode(&e); err != nil {
		if errors.Is(err, io.EOF) {
			return Entry{}, io.EOF
		}
		return Entry{}, fmt.Errorf("failed to read capture entry: %w", err)
	}
	return e, nil
}

// ReadAll returns every remaining entry.
func (r *Reader) ReadAll() ([]Entry, error) {
	var entries []Entry
	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return entries, err
		}
		entries = append(entries, e)
	}
}
