// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package efitest

import (
	"bytes"
	"encoding/binary"
	"unsafe"

	"github.com/usbarmory/go-efi/uefi"
)

// EFI Table Header Signatures
const (
	SystemTableSignature     = 0x5453595320494249 // IBI SYST
	BootServicesSignature    = 0x56524553544f4f42 // BOOTSERV
	RuntimeServicesSignature = 0x56524553544e5552 // RUNTSERV
	DXEServicesSignature     = 0x565245535f455844 // DXE_SERV
)

// Revision represents the simulated UEFI revision (2.70).
const Revision = 2<<16 | 70

const headerSize = 24

// EFI_RUNTIME_SERVICES function pointer offsets
const (
	RuntimeGetTime                   = 0x18
	RuntimeSetTime                   = 0x20
	RuntimeGetWakeupTime             = 0x28
	RuntimeSetWakeupTime             = 0x30
	RuntimeSetVirtualAddressMap      = 0x38
	RuntimeConvertPointer            = 0x40
	RuntimeGetVariable               = 0x48
	RuntimeGetNextVariableName       = 0x50
	RuntimeSetVariable               = 0x58
	RuntimeGetNextHighMonotonicCount = 0x60
	RuntimeResetSystem               = 0x68
	RuntimeQueryVariableInfo         = 0x80

	runtimeTableSize = 0x88
)

// EFI_BOOT_SERVICES function pointer offsets
const (
	BootAllocatePages         = 0x28
	BootFreePages             = 0x30
	BootGetMemoryMap          = 0x38
	BootAllocatePool          = 0x40
	BootFreePool              = 0x48
	BootHandleProtocol        = 0x98
	BootExit                  = 0xd8
	BootExitBootServices      = 0xe8
	BootGetNextMonotonicCount = 0xf0
	BootStall                 = 0xf8
	BootSetWatchdogTimer      = 0x100
	BootLocateHandleBuffer    = 0x138
	BootLocateProtocol        = 0x140

	bootTableSize = 0x178
)

// EFI_SIMPLE_TEXT_INPUT/OUTPUT_PROTOCOL function pointer offsets
const (
	ConInReadKeyStroke = 0x08
	ConOutOutputString = 0x08
	ConOutClearScreen  = 0x30

	conInProtocolSize  = 0x18
	conOutProtocolSize = 0x50
)

// DXE Services Table Dispatch() function pointer offset
const DXEDispatch = 0x80

const (
	dxeServicesSize     = 0xa8
	configurationTables = 16
)

// System represents simulated firmware: an EFI System Table and the tables
// it references, living in an arena and served through a recorder.
type System struct {
	*Arena
	Recorder

	// Image represents the image handle.
	Image uefi.Handle
	// Table represents the EFI System Table address.
	Table uint64

	// Table addresses
	BootServices    uint64
	RuntimeServices uint64
	ConIn           uint64
	ConOut          uint64

	// Boot and Runtime represent the services served at the
	// BootServices and RuntimeServices table addresses.
	Boot    *Boot
	Runtime *Runtime

	// Output represents the text written to the console.
	Output bytes.Buffer
	// Input represents pending console keystrokes.
	Input []uefi.InputKey

	st uefi.SystemTable
}

// NewSystem returns simulated firmware with its system, boot services,
// runtime services and console tables in a 1 MiB arena.
func NewSystem() *System {
	s := &System{
		Arena: NewArena(1 << 20),
		Image: 0x1000,
	}

	s.BootServices = s.table(BootServicesSignature, bootTableSize)
	s.RuntimeServices = s.table(RuntimeServicesSignature, runtimeTableSize)
	s.ConIn = s.Alloc(conInProtocolSize)
	s.ConOut = s.Alloc(conOutProtocolSize)

	s.st = uefi.SystemTable{
		Header: uefi.TableHeader{
			Signature:  SystemTableSignature,
			Revision:   Revision,
			HeaderSize: uint32(binary.Size(uefi.SystemTable{})),
		},
		FirmwareVendor:   s.PutString("EDK II"),
		FirmwareRevision: 0x10000,
		ConsoleInHandle:  0x2000,
		ConIn:            s.ConIn,
		ConsoleOutHandle: 0x2001,
		ConOut:           s.ConOut,
		RuntimeServices:  s.RuntimeServices,
		BootServices:     s.BootServices,
	}

	s.Table = s.Put(&s.st)
	s.st.ConfigurationTable = s.Alloc(configurationTables * (16 + 8))
	s.update()

	s.Boot = NewBoot(s.Arena)
	s.Runtime = NewRuntime()

	s.serveBoot()
	s.serveRuntime()
	s.serveConsole()

	return s
}

// Services returns an initialized UEFI services instance for the simulated
// firmware.
func (s *System) Services() (*uefi.Services, error) {
	svc := &uefi.Services{}

	if err := svc.Init(uint64(s.Image), s.Table, s.Arena, &s.Recorder); err != nil {
		return nil, err
	}

	return svc, nil
}

// SystemTable returns a pointer to the arena copy of the EFI System Table
// fields, changes are applied with Update.
func (s *System) SystemTable() *uefi.SystemTable {
	return &s.st
}

// Update writes the EFI System Table fields to the arena.
func (s *System) Update() {
	s.update()
}

func (s *System) update() {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, &s.st)
	copy(s.MustSlice(s.Table, buf.Len()), buf.Bytes())
}

func (s *System) table(signature uint64, size int) uint64 {
	addr := s.Alloc(size)

	hdr := uefi.TableHeader{
		Signature:  signature,
		Revision:   Revision,
		HeaderSize: uint32(size),
	}

	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, &hdr)
	copy(s.MustSlice(addr, headerSize), buf.Bytes())

	return addr
}

// InstallConfigurationTable adds an entry to the EFI Configuration Table.
func (s *System) InstallConfigurationTable(guid uefi.GUID, table uint64) {
	n := s.st.NumberOfTableEntries

	if n == configurationTables {
		panic("efitest: configuration table full")
	}

	entry := s.MustSlice(s.st.ConfigurationTable+n*24, 24)
	copy(entry, guid[:])
	binary.LittleEndian.PutUint64(entry[16:], table)

	s.st.NumberOfTableEntries += 1
	s.update()
}

// InstallDXEServices installs a DXE Services Table whose Dispatch() function
// returns the argument status.
func (s *System) InstallDXEServices(status uefi.Status) uint64 {
	addr := s.table(DXEServicesSignature, dxeServicesSize)
	s.InstallConfigurationTable(uefi.EFI_DXE_SERVICES_GUID, addr)
	s.HandleStatus(addr+DXEDispatch, status)

	return addr
}

func (s *System) serveConsole() {
	s.Handle(s.ConOut+ConOutOutputString, func(args ...uint64) uint64 {
		s.Output.WriteString(GoString(args[1]))
		return uint64(uefi.EFI_SUCCESS)
	})

	s.Handle(s.ConOut+ConOutClearScreen, func(args ...uint64) uint64 {
		s.Output.Reset()
		return uint64(uefi.EFI_SUCCESS)
	})

	s.Handle(s.ConIn+ConInReadKeyStroke, func(args ...uint64) uint64 {
		if len(s.Input) == 0 {
			return uint64(uefi.EFI_NOT_READY)
		}

		*Ptr[uefi.InputKey](args[1]) = s.Input[0]
		s.Input = s.Input[1:]

		return uint64(uefi.EFI_SUCCESS)
	})
}

// ucs2 returns the NUL terminated UCS-2 string at a raw call argument,
// including its terminator.
func ucs2(arg uint64) []uint16 {
	if arg == 0 {
		return nil
	}

	n := 0

	for *Ptr[uint16](arg + uint64(n*2)) != 0 {
		n++
	}

	return unsafe.Slice(Ptr[uint16](arg), n+1)
}

func raw(s uefi.Status) uint64 {
	return uint64(s)
}

func (s *System) serveRuntime() {
	rt := s.RuntimeServices
	r := func() *Runtime { return s.Runtime }

	s.Handle(rt+RuntimeGetTime, func(args ...uint64) uint64 {
		return raw(r().GetTime(Ptr[uefi.Time](args[0]), Ptr[uefi.TimeCapabilities](args[1])))
	})

	s.Handle(rt+RuntimeSetTime, func(args ...uint64) uint64 {
		return raw(r().SetTime(Ptr[uefi.Time](args[0])))
	})

	s.Handle(rt+RuntimeGetWakeupTime, func(args ...uint64) uint64 {
		return raw(r().GetWakeupTime(Ptr[bool](args[0]), Ptr[bool](args[1]), Ptr[uefi.Time](args[2])))
	})

	s.Handle(rt+RuntimeSetWakeupTime, func(args ...uint64) uint64 {
		return raw(r().SetWakeupTime(args[0] != 0, Ptr[uefi.Time](args[1])))
	})

	s.Handle(rt+RuntimeSetVirtualAddressMap, func(args ...uint64) uint64 {
		return raw(r().SetVirtualAddressMap(args[0], args[1], uint32(args[2]), Bytes(args[3], int(args[0]))))
	})

	s.Handle(rt+RuntimeConvertPointer, func(args ...uint64) uint64 {
		return raw(r().ConvertPointer(args[0], Ptr[uint64](args[1])))
	})

	s.Handle(rt+RuntimeGetVariable, func(args ...uint64) uint64 {
		size := Ptr[uint64](args[3])
		return raw(r().GetVariable(ucs2(args[0]), Ptr[uefi.GUID](args[1]), Ptr[uint32](args[2]), size, Bytes(args[4], int(*size))))
	})

	s.Handle(rt+RuntimeGetNextVariableName, func(args ...uint64) uint64 {
		size := Ptr[uint64](args[0])
		name := unsafe.Slice(Ptr[uint16](args[1]), *size/2)
		return raw(r().GetNextVariableName(size, name, Ptr[uefi.GUID](args[2])))
	})

	s.Handle(rt+RuntimeSetVariable, func(args ...uint64) uint64 {
		return raw(r().SetVariable(ucs2(args[0]), Ptr[uefi.GUID](args[1]), uint32(args[2]), Bytes(args[4], int(args[3]))))
	})

	s.Handle(rt+RuntimeGetNextHighMonotonicCount, func(args ...uint64) uint64 {
		return raw(r().GetNextHighMonotonicCount(Ptr[uint32](args[0])))
	})

	s.Handle(rt+RuntimeResetSystem, func(args ...uint64) uint64 {
		return raw(r().ResetSystem(uefi.ResetType(args[0]), uefi.Status(args[1]), Bytes(args[3], int(args[2]))))
	})

	s.Handle(rt+RuntimeQueryVariableInfo, func(args ...uint64) uint64 {
		return raw(r().QueryVariableInfo(uint32(args[0]), Ptr[uint64](args[1]), Ptr[uint64](args[2]), Ptr[uint64](args[3])))
	})
}

func (s *System) serveBoot() {
	bt := s.BootServices
	b := func() *Boot { return s.Boot }

	s.Handle(bt+BootAllocatePages, func(args ...uint64) uint64 {
		return raw(b().AllocatePages(uefi.AllocateType(args[0]), uefi.MemoryType(args[1]), args[2], Ptr[uint64](args[3])))
	})

	s.Handle(bt+BootFreePages, func(args ...uint64) uint64 {
		return raw(b().FreePages(args[0], args[1]))
	})

	s.Handle(bt+BootGetMemoryMap, func(args ...uint64) uint64 {
		size := Ptr[uint64](args[0])
		return raw(b().GetMemoryMap(size, Bytes(args[1], int(*size)), Ptr[uint64](args[2]), Ptr[uint64](args[3]), Ptr[uint32](args[4])))
	})

	s.Handle(bt+BootAllocatePool, func(args ...uint64) uint64 {
		return raw(b().AllocatePool(uefi.MemoryType(args[0]), args[1], Ptr[uint64](args[2])))
	})

	s.Handle(bt+BootFreePool, func(args ...uint64) uint64 {
		return raw(b().FreePool(args[0]))
	})

	s.Handle(bt+BootHandleProtocol, func(args ...uint64) uint64 {
		return raw(b().HandleProtocol(uefi.Handle(args[0]), Ptr[uefi.GUID](args[1]), Ptr[uint64](args[2])))
	})

	s.Handle(bt+BootExit, func(args ...uint64) uint64 {
		return raw(b().Exit(uefi.Handle(args[0]), uefi.Status(args[1]), args[2], args[3]))
	})

	s.Handle(bt+BootExitBootServices, func(args ...uint64) uint64 {
		return raw(b().ExitBootServices(uefi.Handle(args[0]), args[1]))
	})

	s.Handle(bt+BootGetNextMonotonicCount, func(args ...uint64) uint64 {
		return raw(b().GetNextMonotonicCount(Ptr[uint64](args[0])))
	})

	s.Handle(bt+BootStall, func(args ...uint64) uint64 {
		return raw(b().Stall(args[0]))
	})

	s.Handle(bt+BootSetWatchdogTimer, func(args ...uint64) uint64 {
		return raw(b().SetWatchdogTimer(args[0], args[1], args[2], nil))
	})

	s.Handle(bt+BootLocateHandleBuffer, func(args ...uint64) uint64 {
		return raw(b().LocateHandleBuffer(uefi.SearchType(args[0]), Ptr[uefi.GUID](args[1]), args[2], Ptr[uint64](args[3]), Ptr[uint64](args[4])))
	})

	s.Handle(bt+BootLocateProtocol, func(args ...uint64) uint64 {
		return raw(b().LocateProtocol(Ptr[uefi.GUID](args[0]), args[1], Ptr[uint64](args[2])))
	})
}
