// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"unsafe"
)

// Invoker represents the calling convention bridge towards firmware
// functions.
//
// Call invokes the function pointer stored at the argument slot address (a
// table base address plus the offset of one of its function pointer fields)
// and returns its raw return value, which is an EFI_STATUS for most services
// and a pointer or scalar for a few protocol functions.
type Invoker interface {
	Call(slot uint64, args ...uint64) uint64
}

// Obtaining a pointer in this fashion is typically unsafe and tamago/dma
// package would be best to handle this. However, as arguments are prepared
// right before invoking Go assembly, it is considered safe as it is identical
// as having *uint64 as callService prototype.
func ptrval[T any](p *T) uint64 {
	return uint64(uintptr(unsafe.Pointer(p)))
}

// sliceval returns the address of the first slice element, or 0 for empty
// slices.
func sliceval[T any](s []T) uint64 {
	if len(s) == 0 {
		return 0
	}

	return ptrval(&s[0])
}

func boolval(b bool) uint64 {
	if b {
		return 1
	}

	return 0
}

// slot returns the address of a function pointer field within a table.
func slot(base uint64, offset uintptr) uint64 {
	return base + uint64(offset)
}
