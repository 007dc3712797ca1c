// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"context"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/uartlink/internal/config"
	"github.com/Thermoquad/uartlink/pkg/link"
	"github.com/Thermoquad/uartlink/pkg/sensorlink"
)

func withTestConfig(t *testing.T) {
	t.Helper()
	prev := cfg
	cfg = &config.Config{
		Receiver: config.ReceiverConfig{
			PollTimeout: 10 * time.Millisecond,
			BodyTimeout: time.Millisecond,
		},
	}
	t.Cleanup(func() { cfg = prev })
}

// ============================================================
// Synthetic readings
// ============================================================

func TestSyntheticReadings(t *testing.T) {
	ir, us := newReadings()
	require.Len(t, ir, sensorlink.IRChannels)
	require.Len(t, us, sensorlink.UltrasonicChannels)

	prev := make([]uint16, len(ir))
	for n := 0; n < 200; n++ {
		syntheticReadings(n, ir, us)
		for _, v := range ir {
			assert.True(t, v >= 500 && v <= 3600, "IR reading %d out of range", v)
		}
		for _, v := range us {
			assert.True(t, v >= 200 && v <= 1800, "ultrasonic reading %d out of range", v)
		}
		if n > 0 {
			assert.NotEqual(t, prev, ir, "frame %d repeats the previous readings", n)
		}
		copy(prev, ir)
	}
}

// ============================================================
// dump
// ============================================================

func frameFor(seq uint8) []byte {
	r := sensorlink.Record{Sequence: seq, TimestampMs: 1000 * uint32(seq)}
	r.IR[0] = uint16(seq) * 10
	return sensorlink.EncodeFrame(r)
}

func TestDumpStream(t *testing.T) {
	var stream []byte
	stream = append(stream, 0x00, 0x11, 0x22) // noise before sync
	stream = append(stream, frameFor(0)...)
	stream = append(stream, frameFor(1)...)

	bad := frameFor(2)
	bad[10] ^= 0x40
	stream = append(stream, bad...)

	// 3 and 4 missing
	stream = append(stream, frameFor(5)...)
	stream = append(stream, 0x01, 0x02)

	var out bytes.Buffer
	summary, err := dumpStream(bytes.NewReader(stream), &out, false, true)
	require.NoError(t, err)

	assert.Equal(t, len(stream), summary.bytes)
	assert.Equal(t, 3, summary.frames)
	assert.Equal(t, 1, summary.crcErrors)
	assert.Equal(t, 0, summary.syncError)
	assert.Equal(t, 5, summary.skipped)
	// Frame 2 never advanced the cursor, so 5-2 = 3 counts two lost frames
	assert.EqualValues(t, 2, summary.lost)

	text := out.String()
	assert.Contains(t, text, "(skipped 3 bytes before header)")
	assert.Contains(t, text, "CRC mismatch")
	assert.Contains(t, text, "SENSOR_RECORD seq=5")
	assert.Contains(t, text, "Frame: AA ")
	assert.Contains(t, text, "(skipped 2 trailing bytes)")
	assert.Contains(t, summary.String(), "Frames:                  3")
}

func TestDumpStream_ErrorsOnly(t *testing.T) {
	var stream []byte
	stream = append(stream, frameFor(0)...)
	bad := frameFor(1)
	bad[sensorlink.FrameSize-1] = 0x00
	stream = append(stream, bad...)

	var out bytes.Buffer
	summary, err := dumpStream(bytes.NewReader(stream), &out, true, false)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.frames)
	assert.Equal(t, 1, summary.syncError)
	assert.NotContains(t, out.String(), "SENSOR_RECORD")
	assert.Contains(t, out.String(), "bad footer")
}

// ============================================================
// selftest
// ============================================================

func TestDrainReceiver_ReadsPastRejectedBytes(t *testing.T) {
	tx, rx := link.NewPipe()
	defer tx.Close()

	badFooter := sensorlink.EncodeFrame(sensorlink.Record{Sequence: 1})
	badFooter[sensorlink.FrameSize-1] = 0x00

	require.NoError(t, tx.Write([]byte{0x00, 0x13}, 0))
	require.NoError(t, tx.Write(sensorlink.EncodeFrame(sensorlink.Record{Sequence: 0}), 0))
	require.NoError(t, tx.Write(badFooter, 0))
	require.NoError(t, tx.Write(sensorlink.EncodeFrame(sensorlink.Record{Sequence: 2}), 0))

	receiver := sensorlink.NewReceiver(rx)
	drainReceiver(receiver, rx)

	assert.Zero(t, rx.Buffered())
	assert.EqualValues(t, 2, receiver.Stats().PacketsReceived)
	assert.Equal(t, uint8(3), receiver.ExpectedSequence())
}

func TestDrainReceiver_UnbufferedChannelStopsWhenEmpty(t *testing.T) {
	tx, rx := link.NewPipe()
	defer tx.Close()
	require.NoError(t, tx.Write(sensorlink.EncodeFrame(sensorlink.Record{Sequence: 0}), 0))

	// Hide Buffered so the fallback path runs
	receiver := sensorlink.NewReceiver(rx)
	drainReceiver(receiver, struct{ sensorlink.Channel }{rx})

	assert.EqualValues(t, 1, receiver.Stats().PacketsReceived)
	assert.EqualValues(t, 1, receiver.Stats().Timeouts)
}

func TestRunLoopback_Clean(t *testing.T) {
	withTestConfig(t)

	inj := &faultInjector{rng: rand.New(rand.NewSource(1))}
	result := runLoopback(context.Background(), 300, inj, nil)

	assert.Equal(t, 300, result.sent)
	assert.EqualValues(t, 300, result.stats.PacketsReceived)
	assert.EqualValues(t, 0, result.stats.PacketsLost)
	assert.EqualValues(t, 0, result.stats.CRCErrors)
	assert.NoError(t, result.check())
}

func TestRunLoopback_Impaired(t *testing.T) {
	withTestConfig(t)

	inj := &faultInjector{
		rng:     rand.New(rand.NewSource(42)),
		drop:    0.05,
		corrupt: 0.05,
	}
	result := runLoopback(context.Background(), 500, inj, nil)

	require.Greater(t, result.dropped, 0)
	require.Greater(t, result.corrupted, 0)
	assert.NoError(t, result.check())
	assert.Greater(t, result.stats.CRCErrors, uint32(0))
}

func TestSelftestResult_CheckDetectsMismatch(t *testing.T) {
	r := selftestResult{
		sent:    10,
		dropped: 1,
		stats:   sensorlink.Statistics{PacketsReceived: 8},
	}
	assert.Error(t, r.check())

	r.stats.PacketsReceived = 9
	r.stats.CRCErrors = 1
	assert.Error(t, r.check(), "CRC errors without corruption")
}

// ============================================================
// TUI
// ============================================================

type fakeLink struct {
	stats    sensorlink.Statistics
	expected uint8
}

func (f *fakeLink) Snapshot() (sensorlink.Statistics, uint8) { return f.stats, f.expected }

func (f *fakeLink) State() string { return "Idle" }

func TestModel_RecordAndStats(t *testing.T) {
	src := &fakeLink{}
	m := initialModel("Serial: test", src)

	assert.Contains(t, m.View(), "Waiting for first frame")

	r := sensorlink.Record{Sequence: 9, TimestampMs: 61000}
	r.IR[3] = 1234
	r.Ultrasonic[1] = 777
	next, _ := m.Update(recordMsg{record: r, receivedAt: time.Now()})
	m = next.(model)

	require.NotNil(t, m.latest)
	view := m.View()
	assert.Contains(t, view, "Receiving")
	assert.Contains(t, view, "1234")
	assert.Contains(t, view, "777 mm")
	assert.Contains(t, view, "1 minute and 1 second")
	assert.Contains(t, view, "Synchronized at seq 9")

	t0 := time.Now()
	next, _ = m.Update(tickMsg(t0))
	m = next.(model)

	src.stats = sensorlink.Statistics{PacketsReceived: 20, PacketsLost: 2, CRCErrors: 1}
	src.expected = 30
	next, _ = m.Update(tickMsg(t0.Add(2 * time.Second)))
	m = next.(model)

	assert.InDelta(t, 10.0, m.packetRate, 0.001)
	view = m.View()
	assert.Contains(t, view, "(9.1%)")
	assert.Contains(t, view, "2 packet(s) lost")
	assert.Contains(t, view, "1 CRC error(s)")

	src.stats = sensorlink.Statistics{}
	next, _ = m.Update(tickMsg(t0.Add(3 * time.Second)))
	m = next.(model)
	assert.Contains(t, m.View(), "Statistics reset")
	assert.Zero(t, m.packetRate)
}

func TestModel_LogIsBounded(t *testing.T) {
	m := initialModel("x", &fakeLink{})
	for i := 0; i < 250; i++ {
		m.addLogEntry("event", false)
	}
	assert.Len(t, m.eventLog, m.maxLogEntries)
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		ms   uint64
		want string
	}{
		{0, "0 seconds"},
		{1000, "1 second"},
		{59000, "59 seconds"},
		{61000, "1 minute and 1 second"},
		{3600000, "1 hour"},
		{90061000, "1 day, 1 hour, 1 minute, and 1 second"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatUptime(tt.ms))
	}
}

func TestRootCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"send", "receive", "monitor", "packet_test", "replay", "dump", "selftest"} {
		assert.True(t, names[want], "missing command %s", want)
	}
	assert.True(t, strings.HasPrefix(rootCmd.Use, "uartlink"))
}
