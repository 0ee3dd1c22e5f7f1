// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"testing"
)

func TestMemoryMapLookup(t *testing.T) {
	m := &MemoryMap{
		Descriptors: []*MemoryDescriptor{
			{Type: EfiConventionalMemory, PhysicalStart: 0, NumberOfPages: 0x9f},
			{Type: EfiLoaderCode, PhysicalStart: 0x100000, NumberOfPages: 0x10},
		},
	}

	if end := m.Descriptors[1].PhysicalEnd(); end != 0x110000 {
		t.Errorf("unexpected end address %#x", end)
	}

	for _, tt := range []struct {
		addr uint64
		desc *MemoryDescriptor
	}{
		{0, m.Descriptors[0]},
		{0x9efff, m.Descriptors[0]},
		{0x9f000, nil},
		{0x100000, m.Descriptors[1]},
		{0x10ffff, m.Descriptors[1]},
		{0x110000, nil},
	} {
		if d := m.Lookup(tt.addr); d != tt.desc {
			t.Errorf("unexpected descriptor for %#x", tt.addr)
		}
	}
}
