// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && amd64

// Package x64 provides hardware initialization, automatically on import, for
// the Unified Extensible Firmware Interface (UEFI) application environment
// under a single x86_64 core.
//
// This package is only meant to be used with `GOOS=tamago` as
// supported by the TamaGo framework for bare metal Go, see
// https://github.com/usbarmory/tamago.
package x64

import (
	"fmt"
	"runtime/goos"
	"time"
	_ "unsafe"

	"github.com/usbarmory/tamago/amd64"
	"github.com/usbarmory/tamago/soc/intel/rtc"
	"github.com/usbarmory/tamago/soc/intel/uart"

	"github.com/usbarmory/go-efi/uefi"
)

// Peripheral registers
const (
	// Keyboard controller port
	KBD_PORT = 0x64

	// Communication port
	COM1 = 0x3f8
)

// set in x64.s
var (
	imageHandle uint64
	systemTable uint64
	conIn       uint64
	conOut      uint64
)

// Peripheral instances
var (
	// AMD64 core
	AMD64 = &amd64.CPU{
		// required before Init()
		TimerMultiplier: 1,
	}

	// Real-Time Clock
	RTC = &rtc.RTC{}

	// Serial port
	UART0 = &uart.UART{
		Index: 1,
		Base:  COM1,
		DTR:   true,
		RTS:   true,
	}

	// UEFI services
	UEFI = &uefi.Services{}
)

//go:linkname nanotime runtime/goos.Nanotime
func nanotime() int64 {
	return AMD64.GetTime()
}

// Init takes care of the lower level initialization triggered early in runtime
// setup.
//
//go:linkname Init runtime/goos.Hwinit1
func Init() {
	// initialize CPU
	AMD64.Init()

	// disable CPU idle time management
	goos.Idle = nil

	// initialize serial console
	UART0.Init()
}

// setTime initializes the CPU timer from the firmware real time clock,
// falling back to direct CMOS access.
func setTime() {
	if c, err := UEFI.Runtime.GetTime(); err == nil && c.Value.Validate() == nil {
		AMD64.SetTime(c.Value.Time(time.UTC).UnixNano())
		return
	}

	if t, err := RTC.Now(); err == nil {
		AMD64.SetTime(t.UnixNano())
	}
}

func init() {
	Console.ClearScreen()

	print("initializing EFI services\n")

	if err := UEFI.Init(imageHandle, systemTable, uefi.FirmwareMemory{}, uefi.Firmware{}); err != nil {
		fmt.Printf("could not initialize EFI services, %v\n", err)
		return
	}

	// the early console is superseded by the one bound to boot services
	UEFI.Console.ForceLine = Console.ForceLine
	Console = UEFI.Console

	setTime()

	if err := reserveHeap(UEFI.Boot); err != nil {
		fmt.Printf("WARNING: %v\n", err)
	}
}
