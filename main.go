// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// uartlink - UART Sensor Link Tool
//
// A CLI tool for sending, receiving and analyzing framed sensor records
// on a serial link or a serial-to-WebSocket bridge.

package main

import (
	"fmt"
	"os"

	"github.com/Thermoquad/uartlink/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
