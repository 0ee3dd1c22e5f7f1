// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi_test

import (
	"errors"
	"testing"

	"github.com/usbarmory/go-efi/uefi"
	"github.com/usbarmory/go-efi/uefi/efitest"
)

func TestSetTime(t *testing.T) {
	sys, svc := open(t)

	tm, err := uefi.NewTime(2025, 6, 7, 8, 9, 10, 0, 60, 0)

	if err != nil {
		t.Fatal(err)
	}

	if _, err = svc.Runtime.SetTime(tm); err != nil {
		t.Fatal(err)
	}

	if sys.Runtime.Clock != *tm {
		t.Errorf("clock not set, %s", &sys.Runtime.Clock)
	}

	c, err := svc.Runtime.GetTimeAndCapabilities()

	if err != nil {
		t.Fatal(err)
	}

	if c.Value.Time != *tm || c.Value.Capabilities.Resolution != 1 {
		t.Errorf("unexpected time %s or capabilities %+v", &c.Value.Time, c.Value.Capabilities)
	}

	invalid := *tm
	invalid.Month = 13
	sys.Recorder.Reset()

	if _, err = svc.Runtime.SetTime(&invalid); err == nil {
		t.Error("invalid time accepted")
	}

	if len(sys.Calls) != 0 {
		t.Error("invalid time passed to firmware")
	}
}

func TestGetTimeFault(t *testing.T) {
	sys, svc := open(t)

	sys.Runtime.Faults["GetTime"] = uefi.EFI_DEVICE_ERROR

	if _, err := svc.Runtime.GetTime(); !errors.Is(err, uefi.ErrDeviceError) {
		t.Errorf("expected EFI_DEVICE_ERROR, got %v", err)
	}
}

func TestWakeupTime(t *testing.T) {
	sys, svc := open(t)

	tm, _ := uefi.NewTime(2025, 1, 1, 6, 0, 0, 0, uefi.UnspecifiedTimezone, 0)

	if _, err := svc.Runtime.SetWakeupTime(tm); err != nil {
		t.Fatal(err)
	}

	c, err := svc.Runtime.GetWakeupTime()

	if err != nil {
		t.Fatal(err)
	}

	if !c.Value.Enabled || c.Value.Time != *tm {
		t.Errorf("unexpected wakeup time %+v", c.Value)
	}

	if _, err = svc.Runtime.SetWakeupTime(nil); err != nil {
		t.Fatal(err)
	}

	if sys.Runtime.Wakeup.Enabled {
		t.Error("wakeup alarm not disabled")
	}
}

func TestSetVirtualAddressMap(t *testing.T) {
	sys, svc := open(t)

	m := []*uefi.MemoryDescriptor{
		{Type: uefi.EfiRuntimeServicesData, PhysicalStart: 0x100000, VirtualStart: 0xffff0000, NumberOfPages: 4},
		{Type: uefi.EfiRuntimeServicesData, PhysicalStart: 0x200000, VirtualStart: 0xffff4000, NumberOfPages: 1},
	}

	if _, err := svc.Runtime.SetVirtualAddressMap(m); err != nil {
		t.Fatal(err)
	}

	if len(sys.Runtime.VirtualMap) != 2 || sys.Runtime.VirtualMap[1] != *m[1] {
		t.Errorf("unexpected virtual map %+v", sys.Runtime.VirtualMap)
	}

	// the addressing mode can only change once
	if _, err := svc.Runtime.SetVirtualAddressMap(m); !errors.Is(err, uefi.ErrUnsupported) {
		t.Errorf("expected EFI_UNSUPPORTED, got %v", err)
	}
}

func TestConvertPointer(t *testing.T) {
	sys, svc := open(t)

	sys.Runtime.VirtualOffset = 0x1000

	c, err := svc.Runtime.ConvertPointer(0, 0x2000)

	if err != nil {
		t.Fatal(err)
	}

	if c.Value != 0x3000 {
		t.Errorf("unexpected pointer %#x", c.Value)
	}

	if _, err = svc.Runtime.ConvertPointer(0, 0); !errors.Is(err, uefi.ErrInvalidParameter) {
		t.Errorf("expected EFI_INVALID_PARAMETER, got %v", err)
	}
}

func TestHighMonotonicCount(t *testing.T) {
	_, svc := open(t)

	for i := uint32(1); i <= 2; i++ {
		c, err := svc.Runtime.GetNextHighMonotonicCount()

		if err != nil {
			t.Fatal(err)
		}

		if c.Value != i {
			t.Errorf("unexpected count %d", c.Value)
		}
	}
}

func TestQueryVariableInfo(t *testing.T) {
	sys, svc := open(t)

	sys.Runtime.Put("A", efitest.TestVendor, bootAccess, make([]byte, 12))

	c, err := svc.Runtime.QueryVariableInfo(bootAccess)

	if err != nil {
		t.Fatal(err)
	}

	info := c.Value

	if info.MaximumVariableStorageSize-info.RemainingVariableStorageSize != 16 {
		t.Errorf("unexpected storage information %+v", info)
	}

	if _, err = svc.Runtime.QueryVariableInfo(0); !errors.Is(err, uefi.ErrInvalidParameter) {
		t.Errorf("expected EFI_INVALID_PARAMETER, got %v", err)
	}
}
