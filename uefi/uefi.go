// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package uefi implements typed bindings over the Unified Extensible Firmware
// Interface (UEFI) service tables and protocols following the specifications
// at:
//
//	https://uefi.org/specs/UEFI/2.10/
//
// Firmware tables are never copied: views are overlaid on firmware memory,
// accessed through the [Memory] interface, and firmware functions are invoked
// through the [Invoker] interface. On `GOOS=tamago` these are implemented by
// [FirmwareMemory] and [Firmware], as supported by the TamaGo framework for
// bare metal Go, see https://github.com/usbarmory/tamago.
//
// Every function table is also described by a Go interface (e.g.
// [RuntimeTable], [BootTable]) so that services can be exercised against
// simulated firmware.
package uefi

import (
	"errors"
	"fmt"
)

// SystemTable represents the EFI System Table, containing pointers to the
// runtime and boot services tables.
type SystemTable struct {
	Header               TableHeader
	FirmwareVendor       uint64
	FirmwareRevision     uint32
	_                    uint32
	ConsoleInHandle      uint64
	ConIn                uint64
	ConsoleOutHandle     uint64
	ConOut               uint64
	StandardErrorHandle  uint64
	StdErr               uint64
	RuntimeServices      uint64
	BootServices         uint64
	NumberOfTableEntries uint64
	ConfigurationTable   uint64
}

// Services represents the UEFI services instance.
type Services struct {
	// EFI System Table instance
	SystemTable *SystemTable

	// UEFI services
	Console *Console
	Boot    *BootServices
	Runtime *RuntimeServices

	// Mem and Call represent the firmware address space and calling
	// convention bridge.
	Mem  Memory
	Call Invoker

	imageHandle Handle
	systemTable uint64
}

// Init initializes an UEFI services instance using the argument pointers.
//
// A System Table, or any of the service tables it references, carrying an
// invalid signature is a firmware contract violation resulting in a panic
// with a [*FirmwareFault] value.
func (s *Services) Init(imageHandle uint64, systemTable uint64, mem Memory, call Invoker) (err error) {
	if mem == nil || call == nil {
		return errors.New("invalid firmware interface")
	}

	s.imageHandle = Handle(imageHandle)
	s.systemTable = systemTable
	s.Mem = mem
	s.Call = call

	s.SystemTable = &SystemTable{}

	if _, err = overlayTable("EFI_SYSTEM_TABLE", mem, systemTable, s.SystemTable, &s.SystemTable.Header, systemTableSignature); err != nil {
		return
	}

	if s.Boot, err = openBootServices(mem, call, s.SystemTable.BootServices, s.imageHandle); err != nil {
		return
	}

	if s.Runtime, err = openRuntimeServices(mem, call, s.SystemTable.RuntimeServices); err != nil {
		return
	}

	s.Console = NewConsole(s.Boot.binding(s.SystemTable.ConIn), s.Boot.binding(s.SystemTable.ConOut))

	return
}

// ImageHandle returns the UEFI image handle.
func (s *Services) ImageHandle() Handle {
	return s.imageHandle
}

// Address returns the EFI System Table pointer.
func (s *Services) Address() uint64 {
	return s.systemTable
}

// FirmwareVendor returns the firmware vendor string.
func (s *Services) FirmwareVendor() (string, error) {
	if err := s.Boot.life.check(); err != nil {
		return "", err
	}

	ucs2, err := readString(s.Mem, s.SystemTable.FirmwareVendor)

	if err != nil {
		return "", fmt.Errorf("could not read firmware vendor, %w", err)
	}

	return mustDecode("FirmwareVendor", ucs2), nil
}

// Revision returns the UEFI specification revision of the System Table.
func (s *Services) Revision() string {
	return revision(s.SystemTable.Header.Revision)
}

func revision(r uint32) string {
	major := r >> 16
	minor := r & 0xffff

	if minor%10 == 0 {
		return fmt.Sprintf("%d.%d", major, minor/10)
	}

	return fmt.Sprintf("%d.%d.%d", major, minor/10, minor%10)
}
