// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi_test

import (
	"errors"
	"testing"
	"time"

	"github.com/usbarmory/go-efi/uefi"
	"github.com/usbarmory/go-efi/uefi/efitest"
)

func open(t *testing.T, prepare ...func(sys *efitest.System)) (*efitest.System, *uefi.Services) {
	t.Helper()

	sys := efitest.NewSystem()

	for _, fn := range prepare {
		fn(sys)
	}

	svc, err := sys.Services()

	if err != nil {
		t.Fatal(err)
	}

	return sys, svc
}

func TestInit(t *testing.T) {
	sys, svc := open(t)

	vendor, err := svc.FirmwareVendor()

	if err != nil {
		t.Fatal(err)
	}

	if vendor != "EDK II" {
		t.Errorf("unexpected vendor %q", vendor)
	}

	if svc.Revision() != "2.7" {
		t.Errorf("unexpected revision %s", svc.Revision())
	}

	if svc.ImageHandle() != sys.Image || svc.Address() != sys.Table {
		t.Errorf("unexpected image handle %#x or table %#x", svc.ImageHandle(), svc.Address())
	}

	if svc.Boot.Header.Signature != efitest.BootServicesSignature {
		t.Errorf("unexpected boot services signature %#x", svc.Boot.Header.Signature)
	}

	if svc.Runtime.Header.Signature != efitest.RuntimeServicesSignature {
		t.Errorf("unexpected runtime services signature %#x", svc.Runtime.Header.Signature)
	}
}

func TestInitInvalid(t *testing.T) {
	svc := &uefi.Services{}

	if err := svc.Init(0x1000, efitest.DefaultBase, nil, nil); err == nil {
		t.Error("missing firmware interface accepted")
	}
}

func TestInitInvalidSignature(t *testing.T) {
	sys := efitest.NewSystem()
	sys.SystemTable().Header.Signature = efitest.BootServicesSignature
	sys.Update()

	defer func() {
		f, ok := recover().(*uefi.FirmwareFault)

		if !ok {
			t.Fatal("expected *FirmwareFault panic")
		}

		if f.Op != "EFI_SYSTEM_TABLE" {
			t.Errorf("unexpected fault operation %s", f.Op)
		}
	}()

	sys.Services()
}

func TestCallAdapter(t *testing.T) {
	sys, svc := open(t)
	sys.Recorder.Reset()

	if _, err := svc.Runtime.GetTime(); err != nil {
		t.Fatal(err)
	}

	c, ok := sys.Last()

	if !ok || c.Slot != sys.RuntimeServices+efitest.RuntimeGetTime || len(c.Args) != 2 {
		t.Errorf("unexpected GetTime() call %+v", c)
	}

	if _, err := svc.Console.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}

	c, _ = sys.Last()

	if c.Slot != sys.ConOut+efitest.ConOutOutputString || len(c.Args) != 2 {
		t.Fatalf("unexpected OutputString() call %+v", c)
	}

	// protocol functions take the interface pointer first
	if c.Args[0] != sys.ConOut {
		t.Errorf("unexpected this pointer %#x", c.Args[0])
	}

	if len(sys.Calls) != 2 {
		t.Errorf("expected 2 calls, got %d", len(sys.Calls))
	}
}

func TestConsole(t *testing.T) {
	sys, svc := open(t)

	if _, err := svc.Console.Write([]byte("a\tb\n")); err != nil {
		t.Fatal(err)
	}

	if out := sys.Output.String(); out != "a        b\n\r" {
		t.Errorf("unexpected output %q", out)
	}

	if err := svc.Console.ClearScreen(); err != nil || sys.Output.Len() != 0 {
		t.Errorf("screen not cleared, %v", err)
	}

	buf := make([]byte, 16)

	if n, err := svc.Console.Read(buf); n != 0 || err != nil {
		t.Errorf("unexpected read %d, %v", n, err)
	}

	sys.Input = []uefi.InputKey{
		{UnicodeChar: 'o'},
		{ScanCode: 0x01},
		{UnicodeChar: 'k'},
		{UnicodeChar: 0x00e8},
	}

	n, err := svc.Console.Read(buf)

	if err != nil {
		t.Fatal(err)
	}

	if s := string(buf[:n]); s != "okè" {
		t.Errorf("unexpected input %q", s)
	}
}

func TestMemoryMap(t *testing.T) {
	sys, svc := open(t)

	c, err := svc.Boot.GetMemoryMap()

	if err != nil {
		t.Fatal(err)
	}

	m := c.Value

	if m.DescriptorSize != efitest.DefaultDescriptorSize || m.MapKey != sys.Boot.MapKey {
		t.Errorf("unexpected descriptor size %d or key %d", m.DescriptorSize, m.MapKey)
	}

	if len(m.Descriptors) != len(sys.Boot.Memory) {
		t.Fatalf("expected %d descriptors, got %d", len(sys.Boot.Memory), len(m.Descriptors))
	}

	for i, d := range m.Descriptors {
		if *d != sys.Boot.Memory[i] {
			t.Errorf("descriptor %d mismatch %+v", i, d)
		}
	}

	e820, err := m.E820()

	if err != nil {
		t.Fatal(err)
	}

	if len(e820) != len(m.Descriptors) || e820[0].Size != 0x9f*uefi.PageSize {
		t.Errorf("unexpected E820 map %+v", e820)
	}
}

func TestMemoryMapGrowth(t *testing.T) {
	sys, svc := open(t)

	for range 80 {
		sys.Boot.Memory = append(sys.Boot.Memory, uefi.MemoryDescriptor{Type: uefi.EfiLoaderData})
	}

	sys.Recorder.Reset()
	c, err := svc.Boot.GetMemoryMap()

	if err != nil {
		t.Fatal(err)
	}

	if len(c.Value.Descriptors) != 83 {
		t.Errorf("expected 83 descriptors, got %d", len(c.Value.Descriptors))
	}

	if len(sys.Calls) != 2 {
		t.Errorf("expected 2 calls, got %d", len(sys.Calls))
	}
}

func TestAllocatePool(t *testing.T) {
	sys, svc := open(t)

	c, err := svc.Boot.AllocatePool(uefi.EfiLoaderData, 64)

	if err != nil {
		t.Fatal(err)
	}

	if sys.Boot.Pool[c.Value] != 64 {
		t.Errorf("allocation not recorded")
	}

	if _, err = svc.Boot.FreePool(c.Value); err != nil {
		t.Fatal(err)
	}

	if _, err = svc.Boot.FreePool(c.Value); !errors.Is(err, uefi.ErrInvalidParameter) {
		t.Errorf("expected EFI_INVALID_PARAMETER, got %v", err)
	}

	if _, err = svc.Boot.AllocatePool(uefi.EfiLoaderData, 0); err == nil {
		t.Error("zero size pool allocation accepted")
	}
}

func TestAllocatePages(t *testing.T) {
	sys, svc := open(t)

	c, err := svc.Boot.AllocatePages(uefi.AllocateAnyPages, uefi.EfiLoaderData, uefi.PageSize+1, 0)

	if err != nil {
		t.Fatal(err)
	}

	if c.Value%uefi.PageSize != 0 {
		t.Errorf("unaligned allocation %#x", c.Value)
	}

	d := sys.Boot.Memory[len(sys.Boot.Memory)-1]

	if d.PhysicalStart != c.Value || d.NumberOfPages != 2 {
		t.Errorf("unexpected descriptor %+v", d)
	}

	if _, err = svc.Boot.FreePages(c.Value, 2*uefi.PageSize); err != nil {
		t.Fatal(err)
	}

	if _, err = svc.Boot.AllocatePages(uefi.AllocateAddress, uefi.EfiLoaderData, uefi.PageSize, 0x1000); !errors.Is(err, uefi.ErrNotFound) {
		t.Errorf("expected EFI_NOT_FOUND, got %v", err)
	}
}

func TestWatchdog(t *testing.T) {
	sys, svc := open(t)

	if _, err := svc.Boot.SetWatchdogTimer(5 * time.Minute); err != nil {
		t.Fatal(err)
	}

	if sys.Boot.Watchdog.Timeout != 300 || sys.Boot.Watchdog.Code <= 0xffff {
		t.Errorf("unexpected watchdog %+v", sys.Boot.Watchdog)
	}

	if _, err := svc.Boot.SetWatchdogTimer(-1); !errors.Is(err, uefi.ErrInvalidParameter) {
		t.Errorf("expected EFI_INVALID_PARAMETER, got %v", err)
	}

	if _, err := svc.Boot.Stall(2 * time.Millisecond); err != nil || sys.Boot.Stalled != 2000 {
		t.Errorf("unexpected stall %d, %v", sys.Boot.Stalled, err)
	}
}

func TestMonotonicCount(t *testing.T) {
	_, svc := open(t)

	a, err := svc.Boot.GetNextMonotonicCount()

	if err != nil {
		t.Fatal(err)
	}

	b, err := svc.Boot.GetNextMonotonicCount()

	if err != nil {
		t.Fatal(err)
	}

	if b.Value <= a.Value {
		t.Errorf("count not increasing %d <= %d", b.Value, a.Value)
	}
}

func TestExitBootServices(t *testing.T) {
	sys, svc := open(t)
	sys.Boot.StaleKeys = 1

	m, err := svc.Boot.ExitBootServices()

	if err != nil {
		t.Fatal(err)
	}

	if m.MapKey != sys.Boot.MapKey || !sys.Boot.Exited {
		t.Errorf("unexpected map key %d", m.MapKey)
	}

	if svc.Boot.Lifetime().Valid() {
		t.Error("boot services lifetime not ended")
	}

	if _, err = svc.Boot.GetMemoryMap(); !errors.Is(err, uefi.ErrBootServicesExited) {
		t.Errorf("expected ErrBootServicesExited, got %v", err)
	}

	if _, err = svc.FirmwareVendor(); !errors.Is(err, uefi.ErrBootServicesExited) {
		t.Errorf("expected ErrBootServicesExited, got %v", err)
	}

	if _, err = svc.DXEServices(); !errors.Is(err, uefi.ErrBootServicesExited) {
		t.Errorf("expected ErrBootServicesExited, got %v", err)
	}

	// runtime services survive
	if _, err = svc.Runtime.GetTime(); err != nil {
		t.Error(err)
	}
}

func TestExitBootServicesStale(t *testing.T) {
	sys, svc := open(t)
	sys.Boot.StaleKeys = 2

	if _, err := svc.Boot.ExitBootServices(); !errors.Is(err, uefi.ErrInvalidParameter) {
		t.Errorf("expected EFI_INVALID_PARAMETER, got %v", err)
	}

	if !svc.Boot.Lifetime().Valid() || sys.Boot.Exited {
		t.Error("boot services lifetime ended")
	}
}

func TestExit(t *testing.T) {
	sys, svc := open(t)

	if err := svc.Boot.Exit(uefi.EFI_ABORTED); err == nil {
		t.Error("returning Exit() should fail")
	}

	if sys.Boot.ExitStatus == nil || *sys.Boot.ExitStatus != uefi.EFI_ABORTED {
		t.Errorf("unexpected exit status")
	}
}

func TestConfigurationTables(t *testing.T) {
	_, svc := open(t, func(sys *efitest.System) {
		sys.InstallConfigurationTable(uefi.ACPI_20_TABLE_GUID, 0xe0000)
		sys.InstallConfigurationTable(uefi.SMBIOS3_TABLE_GUID, 0xf0000)
	})

	c, err := svc.ConfigurationTables()

	if err != nil {
		t.Fatal(err)
	}

	if len(c) != 2 {
		t.Fatalf("expected 2 tables, got %d", len(c))
	}

	ct, err := svc.LocateConfiguration(uefi.SMBIOS3_TABLE_GUID)

	if err != nil || ct.VendorTable != 0xf0000 {
		t.Errorf("unexpected table %+v, %v", ct, err)
	}

	if _, err = svc.LocateConfiguration(uefi.EFI_DXE_SERVICES_GUID); !errors.Is(err, uefi.ErrNotFound) {
		t.Errorf("expected EFI_NOT_FOUND, got %v", err)
	}
}

func TestDXEDispatch(t *testing.T) {
	var addr uint64

	sys, svc := open(t, func(sys *efitest.System) {
		addr = sys.InstallDXEServices(uefi.EFI_NOT_FOUND)
	})

	d, err := svc.DXEServices()

	if err != nil {
		t.Fatal(err)
	}

	if _, err = d.Dispatch(); !errors.Is(err, uefi.ErrNotFound) {
		t.Errorf("expected EFI_NOT_FOUND, got %v", err)
	}

	if c, _ := sys.Last(); c.Slot != addr+efitest.DXEDispatch {
		t.Errorf("unexpected slot %#x", c.Slot)
	}
}

func TestResetSystem(t *testing.T) {
	sys, svc := open(t)

	data := []byte{0xde, 0xad}

	if err := svc.Runtime.ResetSystem(uefi.EfiResetWarm, uefi.EFI_ABORTED, data); err == nil {
		t.Error("returning reset should fail")
	}

	if len(sys.Runtime.Resets) != 1 {
		t.Fatalf("expected 1 reset, got %d", len(sys.Runtime.Resets))
	}

	r := sys.Runtime.Resets[0]

	if r.Type != uefi.EfiResetWarm || r.Status != uefi.EFI_ABORTED || string(r.Data) != string(data) {
		t.Errorf("unexpected reset %+v", r)
	}
}
