// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi_test

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/usbarmory/go-efi/uefi"
	"github.com/usbarmory/go-efi/uefi/efitest"
)

const bootAccess = uefi.EFI_VARIABLE_NON_VOLATILE | uefi.EFI_VARIABLE_BOOTSERVICE_ACCESS

func TestVariableIterator(t *testing.T) {
	long := strings.Repeat("L", 64)
	names := []string{"BootOrder", long, "Boot0000"}

	sys, svc := open(t, func(sys *efitest.System) {
		for _, name := range names {
			sys.Runtime.Put(name, efitest.TestVendor, bootAccess, []byte{0x01})
		}
	})

	sys.Recorder.Reset()

	var got []string
	it := svc.Runtime.Variables()

	for v := range it.All() {
		if v.Vendor != efitest.TestVendor {
			t.Errorf("unexpected vendor %s", v.Vendor)
		}

		got = append(got, v.Name)
	}

	if err := it.Err(); err != nil {
		t.Fatal(err)
	}

	if !slices.Equal(got, names) {
		t.Errorf("unexpected names %v", got)
	}

	// one call per name, one resize for the long name and the terminating
	// EFI_NOT_FOUND
	if n := len(sys.Calls); n != len(names)+2 {
		t.Errorf("expected %d calls, got %d", len(names)+2, n)
	}

	// the enumeration is not restarted
	if it.Next() {
		t.Error("iterator advanced past the end")
	}

	if n := len(sys.Calls); n != len(names)+2 {
		t.Errorf("firmware called after the end of the enumeration")
	}
}

func TestVariableIteratorBreak(t *testing.T) {
	_, svc := open(t, func(sys *efitest.System) {
		sys.Runtime.Put("A", efitest.TestVendor, bootAccess, nil)
		sys.Runtime.Put("B", efitest.TestVendor, bootAccess, nil)
	})

	it := svc.Runtime.Variables()

	for range it.All() {
		break
	}

	// iteration resumes where it stopped
	if !it.Next() || it.Variable().Name != "B" {
		t.Errorf("unexpected variable %s", it.Variable())
	}
}

func TestVariableIteratorEmpty(t *testing.T) {
	_, svc := open(t)

	it := svc.Runtime.Variables()

	if it.Next() || it.Err() != nil {
		t.Errorf("empty store enumerated, %v", it.Err())
	}
}

func TestVariableIteratorFault(t *testing.T) {
	_, svc := open(t, func(sys *efitest.System) {
		sys.Runtime.Put("A", efitest.TestVendor, bootAccess, nil)
		sys.Runtime.Variables.Faults["GetNextVariableName"] = uefi.EFI_DEVICE_ERROR
	})

	defer func() {
		f, ok := recover().(*uefi.FirmwareFault)

		if !ok {
			t.Fatal("expected *FirmwareFault panic")
		}

		if f.Status != uefi.EFI_DEVICE_ERROR {
			t.Errorf("unexpected fault status %s", f.Status)
		}
	}()

	svc.Runtime.Variables().Next()
}

func TestVariableIteratorPolicy(t *testing.T) {
	_, svc := open(t, func(sys *efitest.System) {
		sys.Runtime.Put(strings.Repeat("L", 64), efitest.TestVendor, bootAccess, nil)
	})

	svc.Runtime.Policy = uefi.RetryPolicy{MaxAttempts: 1}
	it := svc.Runtime.Variables()

	if it.Next() {
		t.Fatal("capped enumeration advanced")
	}

	var tooSmall *uefi.BufferTooSmallError

	if !errors.As(it.Err(), &tooSmall) || tooSmall.Required != 65 {
		t.Errorf("expected BufferTooSmallError, got %v", it.Err())
	}
}

func TestGetVariable(t *testing.T) {
	sys, svc := open(t)

	data := make([]byte, 100)

	if _, err := svc.Runtime.SetVariable("Test", efitest.TestVendor, bootAccess, data); err != nil {
		t.Fatal(err)
	}

	sys.Recorder.Reset()
	c, err := svc.Runtime.GetVariable("Test", efitest.TestVendor)

	if err != nil {
		t.Fatal(err)
	}

	if len(c.Value.Data) != 100 || c.Value.Attributes != bootAccess {
		t.Errorf("unexpected variable %d bytes %s", len(c.Value.Data), c.Value.Attributes)
	}

	// 64 byte initial buffer
	if len(sys.Calls) != 2 {
		t.Errorf("expected 2 calls, got %d", len(sys.Calls))
	}

	if c, _ := sys.Last(); c.Slot != sys.RuntimeServices+efitest.RuntimeGetVariable {
		t.Errorf("unexpected slot %#x", c.Slot)
	}

	if _, err = svc.Runtime.SetVariable("Bad\x00Name", efitest.TestVendor, bootAccess, data); err == nil {
		t.Error("invalid name accepted")
	}
}
