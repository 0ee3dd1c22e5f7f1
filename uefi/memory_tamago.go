// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago

package uefi

import (
	"github.com/usbarmory/tamago/dma"
)

// FirmwareMemory implements the [Memory] interface over the identity mapped
// address space shared with the UEFI firmware.
type FirmwareMemory struct{}

// Slice returns a view of firmware memory, the region is never released as
// its lifetime is owned by the firmware.
func (FirmwareMemory) Slice(addr uint64, size int) (buf []byte, err error) {
	r, err := dma.NewRegion(uint(addr), size, true)

	if err != nil {
		return
	}

	_, buf = r.Reserve(size, 0)

	return
}
