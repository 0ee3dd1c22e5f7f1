// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package efitest

import (
	"bytes"
	"encoding/binary"
	"slices"

	"github.com/usbarmory/go-efi/uefi"
)

// DefaultDescriptorSize represents the memory map descriptor stride, larger
// than the descriptor layout as found on most firmware.
const DefaultDescriptorSize = 48

type installed struct {
	handle uefi.Handle
	guid   uefi.GUID
	iface  uint64
}

// Watchdog represents the last SetWatchdogTimer() request.
type Watchdog struct {
	Timeout uint64
	Code    uint64
}

// Boot implements the uefi.BootTable interface, allocations are served from
// an [Arena].
type Boot struct {
	// Arena represents the memory serving allocations.
	Arena *Arena

	// Memory represents the memory map.
	Memory []uefi.MemoryDescriptor
	// MapKey represents the current memory map key, it changes on every
	// allocation.
	MapKey uint64
	// DescriptorSize represents the memory map descriptor stride.
	DescriptorSize uint64

	// Pool represents outstanding pool allocations and their size.
	Pool map[uint64]int

	// StaleKeys represents the number of ExitBootServices() calls which
	// fail with a stale map key, as caused by a concurrent allocation.
	StaleKeys int
	// Exited reports whether ExitBootServices() succeeded.
	Exited bool
	// ExitStatus represents the status of the last Exit() call.
	ExitStatus *uefi.Status

	// Watchdog represents the watchdog timer.
	Watchdog Watchdog
	// Stalled represents the total stall time in microseconds.
	Stalled uint64

	// Faults forces the return status of the named functions.
	Faults Faults

	protocols []installed
	count     uint64
}

// NewBoot returns a boot services simulation serving allocations from the
// argument arena.
func NewBoot(a *Arena) *Boot {
	return &Boot{
		Arena: a,
		Memory: []uefi.MemoryDescriptor{
			{Type: uefi.EfiConventionalMemory, PhysicalStart: 0, NumberOfPages: 0x9f},
			{Type: uefi.EfiReservedMemoryType, PhysicalStart: 0x9f000, NumberOfPages: 0x61},
			{Type: uefi.EfiBootServicesData, PhysicalStart: a.Base, NumberOfPages: uint64(len(a.buf) / uefi.PageSize)},
		},
		MapKey:         1,
		DescriptorSize: DefaultDescriptorSize,
		Pool:           make(map[uint64]int),
		Faults:         make(Faults),
	}
}

// Install installs a protocol interface on a handle.
func (b *Boot) Install(handle uefi.Handle, guid uefi.GUID, iface uint64) {
	b.protocols = append(b.protocols, installed{
		handle: handle,
		guid:   guid,
		iface:  iface,
	})
}

// AllocatePages implements uefi.BootTable.
func (b *Boot) AllocatePages(allocateType uefi.AllocateType, memoryType uefi.MemoryType, pages uint64, addr *uint64) uefi.Status {
	if status, ok := b.Faults.status("AllocatePages"); ok {
		return status
	}

	if addr == nil || pages == 0 || memoryType >= uefi.EfiMaxMemoryType {
		return uefi.EFI_INVALID_PARAMETER
	}

	size := int(pages * uefi.PageSize)

	switch allocateType {
	case uefi.AllocateAnyPages:
	case uefi.AllocateMaxAddress:
		if b.Arena.Base+uint64(b.Arena.next+size) > *addr {
			return uefi.EFI_OUT_OF_RESOURCES
		}
	case uefi.AllocateAddress:
		return uefi.EFI_NOT_FOUND
	default:
		return uefi.EFI_INVALID_PARAMETER
	}

	if b.Arena.next+size+uefi.PageSize > len(b.Arena.buf) {
		return uefi.EFI_OUT_OF_RESOURCES
	}

	*addr = b.Arena.AllocAligned(size, uefi.PageSize)

	b.Memory = append(b.Memory, uefi.MemoryDescriptor{
		Type:          memoryType,
		PhysicalStart: *addr,
		NumberOfPages: pages,
	})
	b.MapKey += 1

	return uefi.EFI_SUCCESS
}

// FreePages implements uefi.BootTable.
func (b *Boot) FreePages(addr uint64, pages uint64) uefi.Status {
	if status, ok := b.Faults.status("FreePages"); ok {
		return status
	}

	i := slices.IndexFunc(b.Memory, func(d uefi.MemoryDescriptor) bool {
		return d.PhysicalStart == addr && d.NumberOfPages == pages
	})

	if i < 0 {
		return uefi.EFI_NOT_FOUND
	}

	b.Memory = slices.Delete(b.Memory, i, i+1)
	b.MapKey += 1

	return uefi.EFI_SUCCESS
}

// GetMemoryMap implements uefi.BootTable.
func (b *Boot) GetMemoryMap(mapSize *uint64, buf []byte, mapKey *uint64, descriptorSize *uint64, descriptorVersion *uint32) uefi.Status {
	if status, ok := b.Faults.status("GetMemoryMap"); ok {
		return status
	}

	if mapSize == nil || mapKey == nil || descriptorSize == nil || descriptorVersion == nil {
		return uefi.EFI_INVALID_PARAMETER
	}

	required := uint64(len(b.Memory)) * b.DescriptorSize

	*descriptorSize = b.DescriptorSize
	*descriptorVersion = uefi.MemoryDescriptorVersion

	if *mapSize < required || uint64(len(buf)) < required {
		*mapSize = required
		return uefi.EFI_BUFFER_TOO_SMALL
	}

	for i, d := range b.Memory {
		w := new(bytes.Buffer)
		binary.Write(w, binary.LittleEndian, &d)
		copy(buf[uint64(i)*b.DescriptorSize:], w.Bytes())
	}

	*mapSize = required
	*mapKey = b.MapKey

	return uefi.EFI_SUCCESS
}

// AllocatePool implements uefi.BootTable.
func (b *Boot) AllocatePool(memoryType uefi.MemoryType, size uint64, addr *uint64) uefi.Status {
	if status, ok := b.Faults.status("AllocatePool"); ok {
		return status
	}

	if addr == nil || memoryType >= uefi.EfiMaxMemoryType {
		return uefi.EFI_INVALID_PARAMETER
	}

	if b.Arena.next+int(size)+8 > len(b.Arena.buf) {
		return uefi.EFI_OUT_OF_RESOURCES
	}

	*addr = b.Arena.Alloc(int(size))
	b.Pool[*addr] = int(size)
	b.MapKey += 1

	return uefi.EFI_SUCCESS
}

// FreePool implements uefi.BootTable.
func (b *Boot) FreePool(addr uint64) uefi.Status {
	if status, ok := b.Faults.status("FreePool"); ok {
		return status
	}

	if _, ok := b.Pool[addr]; !ok {
		return uefi.EFI_INVALID_PARAMETER
	}

	delete(b.Pool, addr)
	b.MapKey += 1

	return uefi.EFI_SUCCESS
}

// HandleProtocol implements uefi.BootTable.
func (b *Boot) HandleProtocol(handle uefi.Handle, protocol *uefi.GUID, iface *uint64) uefi.Status {
	if status, ok := b.Faults.status("HandleProtocol"); ok {
		return status
	}

	if protocol == nil || iface == nil {
		return uefi.EFI_INVALID_PARAMETER
	}

	for _, p := range b.protocols {
		if p.handle == handle && p.guid == *protocol {
			*iface = p.iface
			return uefi.EFI_SUCCESS
		}
	}

	return uefi.EFI_UNSUPPORTED
}

// Exit implements uefi.BootTable, the request is recorded and the function
// returns.
func (b *Boot) Exit(image uefi.Handle, status uefi.Status, dataSize uint64, data uint64) uefi.Status {
	b.ExitStatus = &status

	if status, ok := b.Faults.status("Exit"); ok {
		return status
	}

	return uefi.EFI_SUCCESS
}

// ExitBootServices implements uefi.BootTable.
func (b *Boot) ExitBootServices(image uefi.Handle, mapKey uint64) uefi.Status {
	if status, ok := b.Faults.status("ExitBootServices"); ok {
		return status
	}

	if b.StaleKeys > 0 {
		b.StaleKeys -= 1
		b.MapKey += 1
	}

	if mapKey != b.MapKey {
		return uefi.EFI_INVALID_PARAMETER
	}

	b.Exited = true

	return uefi.EFI_SUCCESS
}

// GetNextMonotonicCount implements uefi.BootTable.
func (b *Boot) GetNextMonotonicCount(count *uint64) uefi.Status {
	if status, ok := b.Faults.status("GetNextMonotonicCount"); ok {
		return status
	}

	if count == nil {
		return uefi.EFI_INVALID_PARAMETER
	}

	b.count += 1
	*count = b.count

	return uefi.EFI_SUCCESS
}

// Stall implements uefi.BootTable.
func (b *Boot) Stall(microseconds uint64) uefi.Status {
	b.Stalled += microseconds
	return uefi.EFI_SUCCESS
}

// SetWatchdogTimer implements uefi.BootTable.
func (b *Boot) SetWatchdogTimer(timeout uint64, code uint64, dataSize uint64, data []uint16) uefi.Status {
	if status, ok := b.Faults.status("SetWatchdogTimer"); ok {
		return status
	}

	if code <= 0xffff {
		return uefi.EFI_INVALID_PARAMETER
	}

	b.Watchdog = Watchdog{
		Timeout: timeout,
		Code:    code,
	}

	return uefi.EFI_SUCCESS
}

func (b *Boot) handles(searchType uefi.SearchType, protocol *uefi.GUID) (handles []uefi.Handle) {
	for _, p := range b.protocols {
		if searchType == uefi.ByProtocol && p.guid != *protocol {
			continue
		}

		if !slices.Contains(handles, p.handle) {
			handles = append(handles, p.handle)
		}
	}

	return
}

// LocateHandleBuffer implements uefi.BootTable, the handle buffer is
// allocated from the pool.
func (b *Boot) LocateHandleBuffer(searchType uefi.SearchType, protocol *uefi.GUID, searchKey uint64, count *uint64, buf *uint64) uefi.Status {
	if status, ok := b.Faults.status("LocateHandleBuffer"); ok {
		return status
	}

	switch {
	case count == nil || buf == nil:
		return uefi.EFI_INVALID_PARAMETER
	case searchType == uefi.ByProtocol && protocol == nil:
		return uefi.EFI_INVALID_PARAMETER
	case searchType == uefi.ByRegisterNotify:
		return uefi.EFI_UNSUPPORTED
	}

	handles := b.handles(searchType, protocol)

	if len(handles) == 0 {
		return uefi.EFI_NOT_FOUND
	}

	if status := b.AllocatePool(uefi.EfiBootServicesData, uint64(len(handles)*8), buf); status.IsError() {
		return status
	}

	for i, h := range handles {
		b.Arena.PutUint64(*buf+uint64(i*8), uint64(h))
	}

	*count = uint64(len(handles))

	return uefi.EFI_SUCCESS
}

// LocateProtocol implements uefi.BootTable.
func (b *Boot) LocateProtocol(protocol *uefi.GUID, registration uint64, iface *uint64) uefi.Status {
	if status, ok := b.Faults.status("LocateProtocol"); ok {
		return status
	}

	if protocol == nil || iface == nil {
		return uefi.EFI_INVALID_PARAMETER
	}

	for _, p := range b.protocols {
		if p.guid == *protocol {
			*iface = p.iface
			return uefi.EFI_SUCCESS
		}
	}

	return uefi.EFI_NOT_FOUND
}
