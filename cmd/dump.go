// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/uartlink/pkg/sensorlink"
)

var (
	dumpErrorsOnly bool
	dumpHex        bool
)

var dumpCmd = &cobra.Command{
	Use:   "dump FILE",
	Short: "Decode a raw byte capture offline",
	Long: `Decode a raw byte stream (see receive --raw-log) and display every frame found.

Bytes before the first header, bad footers and CRC mismatches are reported.
A summary of frames, errors and sequence gaps is printed at the end.`,
	Args: cobra.ExactArgs(1),
	RunE: runDump,
}

func init() {
	rootCmd.AddCommand(dumpCmd)
	dumpCmd.Flags().BoolVar(&dumpErrorsOnly, "errors-only", false, "Only print decode errors")
	dumpCmd.Flags().BoolVar(&dumpHex, "hex", false, "Also print the raw bytes of every valid frame")
}

// dumpSummary accumulates offline decode results
type dumpSummary struct {
	bytes     int
	frames    int
	crcErrors int
	syncError int
	skipped   int
	lost      uint32
	expected  uint8
}

func (s *dumpSummary) record(r *sensorlink.Record) {
	s.frames++
	// Same accounting as the live receiver
	if diff := r.Sequence - s.expected; diff > 1 {
		s.lost += uint32(diff - 1)
	}
	s.expected = r.Sequence + 1
}

func (s *dumpSummary) String() string {
	return fmt.Sprintf(`=== Dump Summary ===
Bytes:            %8d
Frames:           %8d
CRC Errors:       %8d
Framing Errors:   %8d
Skipped Bytes:    %8d
Packets Lost:     %8d
====================
`, s.bytes, s.frames, s.crcErrors, s.syncError, s.skipped, s.lost)
}

// dumpStream decodes every byte of in, writing results to out. Records
// are stamped with the sender clock since the capture has no arrival times.
func dumpStream(in io.Reader, out io.Writer, errorsOnly, hex bool) (*dumpSummary, error) {
	decoder := sensorlink.NewDecoder()
	summary := &dumpSummary{}
	br := bufio.NewReader(in)

	for {
		b, err := br.ReadByte()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return summary, err
		}
		offset := summary.bytes
		summary.bytes++

		skippedBefore := decoder.Skipped()
		r, err := decoder.DecodeByte(b)
		if skippedBefore > 0 && decoder.Skipped() == 0 {
			summary.skipped += skippedBefore
			fmt.Fprintf(out, "[offset %d] (skipped %d bytes before header)\n", offset, skippedBefore)
		}

		switch {
		case err != nil:
			if errors.Is(err, sensorlink.ErrChecksumMismatch) {
				summary.crcErrors++
			} else {
				summary.syncError++
			}
			fmt.Fprintf(out, "[offset %d] ERROR: %v\n", offset, err)
		case r != nil:
			summary.record(r)
			if !errorsOnly {
				fmt.Fprint(out, sensorlink.FormatRecord(*r, time.UnixMilli(int64(r.TimestampMs)).UTC()))
				if hex {
					fmt.Fprint(out, sensorlink.FormatFrame(sensorlink.EncodeFrame(*r)))
				}
			}
		}
	}

	if trailing := decoder.Skipped(); trailing > 0 {
		summary.skipped += trailing
		fmt.Fprintf(out, "(skipped %d trailing bytes)\n", trailing)
	}
	return summary, nil
}

func runDump(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	summary, err := dumpStream(f, os.Stdout, dumpErrorsOnly, dumpHex)
	fmt.Println()
	fmt.Print(summary.String())
	return err
}
