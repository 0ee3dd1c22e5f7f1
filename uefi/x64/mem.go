// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && amd64

package x64

import (
	"fmt"
	"runtime"
	_ "unsafe"

	"github.com/usbarmory/go-efi/uefi"
)

//go:linkname _unused runtime.ramStart
var _unused uint64 = 0x00100000 // overridden in x64.s

//go:linkname RamSize runtime.ramSize
var RamSize uint64 = 0x2c000000 // 704MB

// reserveHeap claims, as loader data, the runtime heap which follows the
// image code region allocated by the firmware loader.
func reserveHeap(boot *uefi.BootServices) error {
	c, err := boot.GetMemoryMap()

	if err != nil {
		return fmt.Errorf("could not get memory map, %w", err)
	}

	ramStart, ramEnd := runtime.MemRegion()
	image := c.Value.Lookup(ramStart)

	if image == nil || image.Type != uefi.EfiLoaderCode {
		return fmt.Errorf("could not find image region at %#x", ramStart)
	}

	heapStart := image.PhysicalEnd()

	// the heap might already be part of the image region
	if heapStart >= ramEnd {
		return nil
	}

	if d := c.Value.Lookup(heapStart); d == nil || d.Type != uefi.EfiConventionalMemory {
		return fmt.Errorf("heap region at %#x is not available", heapStart)
	}

	if _, err = boot.AllocatePages(uefi.AllocateAddress, uefi.EfiLoaderData, int(ramEnd-heapStart), heapStart); err != nil {
		return fmt.Errorf("could not allocate heap at %#x, %w", heapStart, err)
	}

	return nil
}
