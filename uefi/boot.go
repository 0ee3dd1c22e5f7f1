// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"unsafe"
)

// bootServicesTable represents the EFI_BOOT_SERVICES table layout.
type bootServicesTable struct {
	Header                              TableHeader
	RaiseTPL                            uint64
	RestoreTPL                          uint64
	AllocatePages                       uint64
	FreePages                           uint64
	GetMemoryMap                        uint64
	AllocatePool                        uint64
	FreePool                            uint64
	CreateEvent                         uint64
	SetTimer                            uint64
	WaitForEvent                        uint64
	SignalEvent                         uint64
	CloseEvent                          uint64
	CheckEvent                          uint64
	InstallProtocolInterface            uint64
	ReinstallProtocolInterface          uint64
	UninstallProtocolInterface          uint64
	HandleProtocol                      uint64
	_                                   uint64
	RegisterProtocolNotify              uint64
	LocateHandle                        uint64
	LocateDevicePath                    uint64
	InstallConfigurationTable           uint64
	LoadImage                           uint64
	StartImage                          uint64
	Exit                                uint64
	UnloadImage                         uint64
	ExitBootServices                    uint64
	GetNextMonotonicCount               uint64
	Stall                               uint64
	SetWatchdogTimer                    uint64
	ConnectController                   uint64
	DisconnectController                uint64
	OpenProtocol                        uint64
	CloseProtocol                       uint64
	OpenProtocolInformation             uint64
	ProtocolsPerHandle                  uint64
	LocateHandleBuffer                  uint64
	LocateProtocol                      uint64
	InstallMultipleProtocolInterfaces   uint64
	UninstallMultipleProtocolInterfaces uint64
	CalculateCrc32                      uint64
	CopyMem                             uint64
	SetMem                              uint64
	CreateEventEx                       uint64
}

// BootTable represents the EFI_BOOT_SERVICES function table.
type BootTable interface {
	AllocatePages(allocateType AllocateType, memoryType MemoryType, pages uint64, addr *uint64) Status
	FreePages(addr uint64, pages uint64) Status
	GetMemoryMap(mapSize *uint64, buf []byte, mapKey *uint64, descriptorSize *uint64, descriptorVersion *uint32) Status
	AllocatePool(memoryType MemoryType, size uint64, addr *uint64) Status
	FreePool(addr uint64) Status
	HandleProtocol(handle Handle, protocol *GUID, iface *uint64) Status
	Exit(image Handle, status Status, dataSize uint64, data uint64) Status
	ExitBootServices(image Handle, mapKey uint64) Status
	GetNextMonotonicCount(count *uint64) Status
	Stall(microseconds uint64) Status
	SetWatchdogTimer(timeout uint64, code uint64, dataSize uint64, data []uint16) Status
	LocateHandleBuffer(searchType SearchType, protocol *GUID, searchKey uint64, count *uint64, buf *uint64) Status
	LocateProtocol(protocol *GUID, registration uint64, iface *uint64) Status
}

// bootAdapter implements BootTable over a firmware EFI_BOOT_SERVICES
// instance.
type bootAdapter struct {
	base uint64
	call Invoker
}

func (b *bootAdapter) fn(offset uintptr, args ...uint64) Status {
	return Status(b.call.Call(slot(b.base, offset), args...))
}

var bt bootServicesTable

func (b *bootAdapter) AllocatePages(allocateType AllocateType, memoryType MemoryType, pages uint64, addr *uint64) Status {
	return b.fn(unsafe.Offsetof(bt.AllocatePages), uint64(allocateType), uint64(memoryType), pages, ptrval(addr))
}

func (b *bootAdapter) FreePages(addr uint64, pages uint64) Status {
	return b.fn(unsafe.Offsetof(bt.FreePages), addr, pages)
}

func (b *bootAdapter) GetMemoryMap(mapSize *uint64, buf []byte, mapKey *uint64, descriptorSize *uint64, descriptorVersion *uint32) Status {
	return b.fn(unsafe.Offsetof(bt.GetMemoryMap), ptrval(mapSize), sliceval(buf), ptrval(mapKey), ptrval(descriptorSize), ptrval(descriptorVersion))
}

func (b *bootAdapter) AllocatePool(memoryType MemoryType, size uint64, addr *uint64) Status {
	return b.fn(unsafe.Offsetof(bt.AllocatePool), uint64(memoryType), size, ptrval(addr))
}

func (b *bootAdapter) FreePool(addr uint64) Status {
	return b.fn(unsafe.Offsetof(bt.FreePool), addr)
}

func (b *bootAdapter) HandleProtocol(handle Handle, protocol *GUID, iface *uint64) Status {
	return b.fn(unsafe.Offsetof(bt.HandleProtocol), uint64(handle), ptrval(protocol), ptrval(iface))
}

func (b *bootAdapter) Exit(image Handle, status Status, dataSize uint64, data uint64) Status {
	return b.fn(unsafe.Offsetof(bt.Exit), uint64(image), uint64(status), dataSize, data)
}

func (b *bootAdapter) ExitBootServices(image Handle, mapKey uint64) Status {
	return b.fn(unsafe.Offsetof(bt.ExitBootServices), uint64(image), mapKey)
}

func (b *bootAdapter) GetNextMonotonicCount(count *uint64) Status {
	return b.fn(unsafe.Offsetof(bt.GetNextMonotonicCount), ptrval(count))
}

func (b *bootAdapter) Stall(microseconds uint64) Status {
	return b.fn(unsafe.Offsetof(bt.Stall), microseconds)
}

func (b *bootAdapter) SetWatchdogTimer(timeout uint64, code uint64, dataSize uint64, data []uint16) Status {
	return b.fn(unsafe.Offsetof(bt.SetWatchdogTimer), timeout, code, dataSize, sliceval(data))
}

func (b *bootAdapter) LocateHandleBuffer(searchType SearchType, protocol *GUID, searchKey uint64, count *uint64, buf *uint64) Status {
	return b.fn(unsafe.Offsetof(bt.LocateHandleBuffer), uint64(searchType), ptrval(protocol), searchKey, ptrval(count), ptrval(buf))
}

func (b *bootAdapter) LocateProtocol(protocol *GUID, registration uint64, iface *uint64) Status {
	return b.fn(unsafe.Offsetof(bt.LocateProtocol), ptrval(protocol), registration, ptrval(iface))
}

// BootServices represents an EFI Boot Services instance.
//
// All functions fail with [ErrBootServicesExited] once ExitBootServices() has
// been called, as well as all protocol views obtained through the instance.
type BootServices struct {
	// Header represents the boot services table header, it is only
	// populated for firmware instances.
	Header TableHeader

	// Policy represents the size discovery retry policy.
	Policy RetryPolicy

	table BootTable
	mem   Memory
	call  Invoker
	image Handle
	life  *Lifetime
}

// NewBootServices returns a boot services instance forwarding to the argument
// function table on behalf of the argument image handle.
//
// Protocol interfaces returned by the table are accessed through the argument
// memory and invoker.
func NewBootServices(t BootTable, image Handle, mem Memory, call Invoker) *BootServices {
	return &BootServices{
		table: t,
		mem:   mem,
		call:  call,
		image: image,
		life:  &Lifetime{},
	}
}

// openBootServices overlays the EFI_BOOT_SERVICES table at the argument
// address.
func openBootServices(mem Memory, call Invoker, addr uint64, image Handle) (s *BootServices, err error) {
	t := &bootServicesTable{}

	if _, err = overlayTable("EFI_BOOT_SERVICES", mem, addr, t, &t.Header, bootServicesSignature); err != nil {
		return
	}

	s = NewBootServices(&bootAdapter{base: addr, call: call}, image, mem, call)
	s.Header = t.Header

	return
}

// Lifetime returns the validity of boot phase memory.
func (s *BootServices) Lifetime() *Lifetime {
	return s.life
}

// ImageHandle returns the image handle on behalf of which services are
// invoked.
func (s *BootServices) ImageHandle() Handle {
	return s.image
}

func (s *BootServices) binding(addr uint64) *Binding {
	return &Binding{
		Addr: addr,
		Mem:  s.mem,
		Call: s.call,
		Life: s.life,
		Pool: s,
	}
}

// GetNextMonotonicCount calls EFI_BOOT_SERVICES.GetNextMonotonicCount().
func (s *BootServices) GetNextMonotonicCount() (c Completion[uint64], err error) {
	var count uint64

	if err = s.life.check(); err != nil {
		return
	}

	status := s.table.GetNextMonotonicCount(&count)

	return Complete(status, func() uint64 { return count })
}
