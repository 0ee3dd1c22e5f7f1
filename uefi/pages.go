// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"errors"
)

// AllocateType represents an EFI_ALLOCATE_TYPE.
type AllocateType uint32

// EFI_ALLOCATE_TYPE
const (
	AllocateAnyPages AllocateType = iota
	AllocateMaxAddress
	AllocateAddress
	MaxAllocateType
)

// MemoryType represents an EFI_MEMORY_TYPE.
type MemoryType uint32

// EFI_MEMORY_TYPE
const (
	EfiReservedMemoryType MemoryType = iota
	EfiLoaderCode
	EfiLoaderData
	EfiBootServicesCode
	EfiBootServicesData
	EfiRuntimeServicesCode
	EfiRuntimeServicesData
	EfiConventionalMemory
	EfiUnusableMemory
	EfiACPIReclaimMemory
	EfiACPIMemoryNVS
	EfiMemoryMappedIO
	EfiMemoryMappedIOPortSpace
	EfiPalCode
	EfiPersistentMemory
	EfiUnacceptedMemoryType
	EfiMaxMemoryType
)

var memoryTypeNames = [...]string{
	"Reserved",
	"LoaderCode",
	"LoaderData",
	"BootServicesCode",
	"BootServicesData",
	"RuntimeServicesCode",
	"RuntimeServicesData",
	"Conventional",
	"Unusable",
	"ACPIReclaim",
	"ACPIMemoryNVS",
	"MemoryMappedIO",
	"MemoryMappedIOPortSpace",
	"PalCode",
	"Persistent",
	"Unaccepted",
}

func (t MemoryType) String() string {
	if int(t) < len(memoryTypeNames) {
		return memoryTypeNames[t]
	}

	return "OEM/OSV"
}

func pages(size int) uint64 {
	return (uint64(size) + PageSize - 1) / PageSize
}

// AllocatePages calls EFI_BOOT_SERVICES.AllocatePages(), the size is rounded
// up to the page size. The physical address argument is ignored for
// AllocateAnyPages requests and is otherwise either the maximum or the exact
// allocation address.
func (s *BootServices) AllocatePages(allocateType AllocateType, memoryType MemoryType, size int, physicalAddress uint64) (c Completion[uint64], err error) {
	if err = s.life.check(); err != nil {
		return
	}

	if allocateType >= MaxAllocateType || size <= 0 {
		return c, ErrInvalidParameter
	}

	status := s.table.AllocatePages(allocateType, memoryType, pages(size), &physicalAddress)

	return Complete(status, func() uint64 { return physicalAddress })
}

// FreePages calls EFI_BOOT_SERVICES.FreePages().
func (s *BootServices) FreePages(physicalAddress uint64, size int) (Status, error) {
	if err := s.life.check(); err != nil {
		return EFI_SUCCESS, err
	}

	return check(s.table.FreePages(physicalAddress, pages(size)))
}

// AllocatePool calls EFI_BOOT_SERVICES.AllocatePool().
func (s *BootServices) AllocatePool(memoryType MemoryType, size int) (c Completion[uint64], err error) {
	var addr uint64

	if err = s.life.check(); err != nil {
		return
	}

	if size <= 0 {
		return c, errors.New("invalid pool size")
	}

	status := s.table.AllocatePool(memoryType, uint64(size), &addr)

	return Complete(status, func() uint64 { return addr })
}

// FreePool calls EFI_BOOT_SERVICES.FreePool().
func (s *BootServices) FreePool(addr uint64) (Status, error) {
	if err := s.life.check(); err != nil {
		return EFI_SUCCESS, err
	}

	return check(s.table.FreePool(addr))
}
