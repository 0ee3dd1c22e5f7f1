// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && amd64

package uefi

// defined in efi_amd64.s
func callService(fn uint64, args []uint64) (status uint64)

// Firmware implements the [Invoker] interface by calling UEFI services with
// the Microsoft x64 calling convention.
type Firmware struct{}

// Call invokes the function pointer stored at the argument slot address.
func (Firmware) Call(slot uint64, args ...uint64) uint64 {
	// the first four arguments are always loaded in registers
	if len(args) < 4 {
		a := make([]uint64, 4)
		copy(a, args)
		args = a
	}

	return callService(slot, args)
}
