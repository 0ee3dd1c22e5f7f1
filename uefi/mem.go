// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"encoding/binary"
	"fmt"

	"github.com/u-root/u-root/pkg/boot/bzimage"
)

// initial number of descriptors for GetMemoryMap() size discovery
const memoryMapEntries = 64

// Advanced Configuration and Power Interface Specification (ACPI)
// Version 6.0 - Table 15-312 Address Range Types12
const AddressRangePersistentMemory = 7

// PageSize represents the EFI page size in bytes
const PageSize = 4096 // 4 KiB

// MemoryDescriptorVersion represents the EFI_MEMORY_DESCRIPTOR_VERSION
// supported by this package.
const MemoryDescriptorVersion = 1

var memoryDescriptorSize = binary.Size(MemoryDescriptor{})

// MemoryDescriptor represents an EFI Memory Descriptor
type MemoryDescriptor struct {
	Type          MemoryType
	_             uint32
	PhysicalStart uint64
	VirtualStart  uint64
	NumberOfPages uint64
	Attribute     uint64
}

// PhysicalEnd returns the descriptor physical end address.
func (d *MemoryDescriptor) PhysicalEnd() uint64 {
	return d.PhysicalStart + d.NumberOfPages*PageSize
}

// Size returns the descriptor size.
func (d *MemoryDescriptor) Size() int {
	return int(d.NumberOfPages * PageSize)
}

// E820 converts an EFI Memory Map entry to an x86 E820 one suitable for use
// after exiting EFI Boot Services.
func (d *MemoryDescriptor) E820() (bzimage.E820Entry, error) {
	e := bzimage.E820Entry{
		Addr: d.PhysicalStart,
		Size: d.NumberOfPages * PageSize,
	}

	if d.Type >= EfiMaxMemoryType {
		return e, fmt.Errorf("invalid memory type %d", d.Type)
	}

	// Unified Extensible Firmware Interface (UEFI) Specification
	// Version 2.10 - Table 7.10: Memory Type Usage after ExitBootServices()
	switch d.Type {
	case EfiLoaderCode, EfiLoaderData, EfiBootServicesCode, EfiBootServicesData, EfiConventionalMemory:
		e.MemType = bzimage.RAM
	case EfiPersistentMemory:
		e.MemType = AddressRangePersistentMemory
	case EfiACPIReclaimMemory:
		e.MemType = bzimage.ACPI
	case EfiACPIMemoryNVS:
		e.MemType = bzimage.NVS
	default:
		e.MemType = bzimage.Reserved
	}

	return e, nil
}

// MemoryMap represents an EFI Memory Map
type MemoryMap struct {
	Descriptors       []*MemoryDescriptor
	MapKey            uint64
	DescriptorSize    uint64
	DescriptorVersion uint32
}

// Lookup returns the descriptor of the region containing the argument
// physical address, or nil when the address is not mapped.
func (m *MemoryMap) Lookup(addr uint64) *MemoryDescriptor {
	for _, d := range m.Descriptors {
		if addr >= d.PhysicalStart && addr < d.PhysicalEnd() {
			return d
		}
	}

	return nil
}

// E820 converts the EFI Memory Map to an x86 E820 one.
func (m *MemoryMap) E820() (entries []bzimage.E820Entry, err error) {
	for _, d := range m.Descriptors {
		e, err := d.E820()

		if err != nil {
			return nil, err
		}

		entries = append(entries, e)
	}

	return
}

// GetMemoryMap calls EFI_BOOT_SERVICES.GetMemoryMap(), retrying with a larger
// buffer until the whole map is returned.
//
// The returned map key is only valid until the next memory allocation.
func (s *BootServices) GetMemoryMap() (c Completion[*MemoryMap], err error) {
	if err = s.life.check(); err != nil {
		return
	}

	m := &MemoryMap{}
	buf := make([]byte, memoryDescriptorSize*memoryMapEntries)

	buf, status, err := Discover(buf, s.Policy, func(buf []byte) (int, Status) {
		size := uint64(len(buf))
		status := s.table.GetMemoryMap(&size, buf, &m.MapKey, &m.DescriptorSize, &m.DescriptorVersion)
		return int(size), status
	})

	if err != nil {
		return
	}

	if m.DescriptorSize < uint64(memoryDescriptorSize) {
		fault("GetMemoryMap", status, "invalid descriptor size %d", m.DescriptorSize)
	}

	n := int(m.DescriptorSize)

	for i := 0; i+n <= len(buf); i += n {
		d := &MemoryDescriptor{}

		if err = unmarshalBinary(buf[i:i+n], d); err != nil {
			return
		}

		m.Descriptors = append(m.Descriptors, d)
	}

	return Complete(status, func() *MemoryMap { return m })
}
